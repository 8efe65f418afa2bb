package cpsat

import (
	"context"
	"errors"
	"time"
)

// ErrEngineUnavailable 引擎不可用，调用方应改走回退求解
var ErrEngineUnavailable = errors.New("cpsat: engine unavailable")

// Status 求解状态
type Status int

const (
	StatusUnknown Status = iota
	StatusModelInvalid
	StatusFeasible
	StatusInfeasible
	StatusOptimal
)

// String 状态名
func (s Status) String() string {
	switch s {
	case StatusModelInvalid:
		return "MODEL_INVALID"
	case StatusFeasible:
		return "FEASIBLE"
	case StatusInfeasible:
		return "INFEASIBLE"
	case StatusOptimal:
		return "OPTIMAL"
	default:
		return "UNKNOWN"
	}
}

// HasSolution 是否带可行解
func (s Status) HasSolution() bool {
	return s == StatusFeasible || s == StatusOptimal
}

// Params 求解参数
type Params struct {
	// MaxTime 墙钟时间上限，0 表示只受 ctx 约束
	MaxTime time.Duration
	// Workers 并行度，单线程引擎忽略
	Workers int
	Seed    int64
	// RelativeGap 相对间隙达到该值即视为最优
	RelativeGap float64
	// Enumerate 为 true 时回调所有目标值不超过 当前最优+PoolWindow 的解
	Enumerate  bool
	PoolWindow int64
}

// Solution 搜索过程中找到的一个解
type Solution struct {
	values    []int64
	Objective int64
	BestBound int64
	Conflicts int64
	Branches  int64
	WallTime  time.Duration
	Worker    int
}

// Value 变量取值
func (s *Solution) Value(v Var) int64 { return s.values[v.index()] }

// BoolValue 布尔变量取值
func (s *Solution) BoolValue(b BoolVar) bool { return s.values[b.idx] != 0 }

// SolutionCallback 解回调，返回 false 请求停止搜索；回调被串行调用
type SolutionCallback func(sol *Solution) bool

// Response 求解结果
type Response struct {
	Status    Status
	Objective int64
	BestBound int64
	// Conflicts 被证明无解的子问题数
	Conflicts int64
	// Branches 调用底层求解器的次数
	Branches  int64
	Solutions int
	WallTime  time.Duration
	values    []int64
}

// Value 最优解中的变量取值
func (r *Response) Value(v Var) int64 {
	if r.values == nil {
		return 0
	}
	return r.values[v.index()]
}

// BoolValue 最优解中的布尔变量取值
func (r *Response) BoolValue(b BoolVar) bool { return r.Value(b) != 0 }

// Engine 求解引擎
type Engine interface {
	Name() string
	Solve(ctx context.Context, m *Model, p Params, cb SolutionCallback) (*Response, error)
}

// Unavailable 总是返回 ErrEngineUnavailable 的引擎，用于强制回退
type Unavailable struct{}

// Name 引擎名
func (Unavailable) Name() string { return "unavailable" }

// Solve 直接报告不可用
func (Unavailable) Solve(context.Context, *Model, Params, SolutionCallback) (*Response, error) {
	return nil, ErrEngineUnavailable
}
