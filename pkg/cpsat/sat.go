package cpsat

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/crillab/gophersat/solver"
)

// ErrModelInvalid 模型结构非法
var ErrModelInvalid = errors.New("cpsat: model invalid")

// SATEngine 基于 gophersat 伪布尔求解器的引擎
//
// 模型先编码成伪布尔约束，目标通过反复收紧上界求最优：
// 每次改进后要求目标 ≤ 当前最优-1-间隙容差，直到无解即证明。
// Enumerate 时在证明最优后追加阻断子句，逐个枚举窗口内的解。
// 求解是单线程且确定的，Params.Workers 与 Seed 不起作用。
type SATEngine struct{}

// NewSATEngine 创建引擎
func NewSATEngine() *SATEngine {
	return &SATEngine{}
}

// Name 引擎名
func (e *SATEngine) Name() string { return "gophersat" }

type satResult struct {
	status solver.Status
	model  []bool
}

// satRun 一次 Solve 内对 gophersat 的调用
type satRun struct {
	enc      *encoding
	ctx      context.Context
	deadline time.Time
	calls    int64
	refuted  int64
}

func (r *satRun) expired() bool {
	if r.ctx.Err() != nil {
		return true
	}
	return !r.deadline.IsZero() && !time.Now().Before(r.deadline)
}

// solve 在基础约束上追加 extra 求解一次，超时或取消返回 Indet
//
// gophersat 不能中断，超时后正在进行的调用在后台跑完后丢弃。
func (r *satRun) solve(extra []solver.PBConstr) (solver.Status, []bool) {
	if r.expired() {
		return solver.Indet, nil
	}
	cs := make([]solver.PBConstr, 0, len(r.enc.cons)+len(extra))
	for _, c := range r.enc.cons {
		cs = append(cs, cloneConstr(c))
	}
	for _, c := range extra {
		cs = append(cs, cloneConstr(c))
	}

	done := make(chan satResult, 1)
	go func() {
		s := solver.New(solver.ParsePBConstrs(cs))
		res := satResult{status: s.Solve()}
		if res.status == solver.Sat {
			res.model = s.Model()
		}
		done <- res
	}()

	var timeout <-chan time.Time
	if !r.deadline.IsZero() {
		timer := time.NewTimer(time.Until(r.deadline))
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case res := <-done:
		r.calls++
		if res.status == solver.Unsat {
			r.refuted++
		}
		return res.status, res.model
	case <-r.ctx.Done():
	case <-timeout:
	}
	return solver.Indet, nil
}

func cloneConstr(c solver.PBConstr) solver.PBConstr {
	out := solver.PBConstr{Lits: append([]int(nil), c.Lits...), AtLeast: c.AtLeast}
	if c.Weights != nil {
		out.Weights = append([]int(nil), c.Weights...)
	}
	return out
}

type incumbent struct {
	values []int64
	model  []bool
	obj    int64
}

// satSearch 单次 Solve 的搜索状态，目标按最小化方向保存
type satSearch struct {
	run    *satRun
	enc    *encoding
	params Params
	cb     SolutionCallback
	start  time.Time

	best    incumbent
	hasBest bool
	bound   int64

	solutions int
	stopped   bool
	seen      map[string]bool
	blocks    []solver.PBConstr
	exhausted bool
}

func (s *satSearch) accept(model []bool) incumbent {
	values := s.enc.decode(model)
	inc := incumbent{values: values, model: model, obj: s.enc.objective(values)}
	s.best, s.hasBest = inc, true
	return inc
}

func (s *satSearch) emit(inc incumbent) {
	s.solutions++
	if s.cb == nil {
		return
	}
	sol := &Solution{
		values:    inc.values,
		Objective: s.enc.sign * inc.obj,
		BestBound: s.enc.sign * s.bound,
		Conflicts: s.run.refuted,
		Branches:  s.run.calls,
		WallTime:  time.Since(s.start),
	}
	if !s.cb(sol) {
		s.stopped = true
	}
}

// allowance 相对间隙允许的目标差
func (s *satSearch) allowance() int64 {
	if s.params.Enumerate || s.params.RelativeGap <= 0 {
		return 0
	}
	return int64(math.Floor(s.params.RelativeGap * math.Abs(float64(s.best.obj))))
}

// first 找第一个可行解；有提示时先固定提示变量求解，失败再放开
func (s *satSearch) first() solver.Status {
	status := solver.Indet
	var model []bool
	if hints := s.enc.hintUnits(); len(hints) > 0 {
		status, model = s.run.solve(hints)
	}
	if status != solver.Sat {
		status, model = s.run.solve(nil)
	}
	if status == solver.Sat {
		s.accept(model)
	}
	return status
}

// improve 收紧目标上界直到无解，返回是否完成证明
func (s *satSearch) improve(onImproved func(incumbent)) bool {
	if !s.enc.hasObj {
		return true
	}
	for !s.stopped {
		limit := satSub(satSub(s.best.obj, 1), s.allowance())
		status := solver.Unsat
		var model []bool
		if extra, ok := s.enc.atMost(limit); ok {
			status, model = s.run.solve(extra)
		}
		switch status {
		case solver.Sat:
			onImproved(s.accept(model))
		case solver.Unsat:
			s.bound = max(s.bound, satAdd(limit, 1))
			return true
		default:
			return false
		}
	}
	return false
}

// offer 去重后回调解，并阻断同一组区分位
func (s *satSearch) offer(inc incumbent) {
	key := s.enc.solutionKey(inc.model)
	if s.seen[key] {
		return
	}
	s.seen[key] = true
	if c, ok := s.enc.block(inc.model); ok {
		s.blocks = append(s.blocks, c)
	} else {
		s.exhausted = true
	}
	s.emit(inc)
}

// enumerate 枚举目标不超过 limit 的其余解，全部枚举完返回 true
func (s *satSearch) enumerate(limit int64) bool {
	bound, ok := s.enc.atMost(limit)
	if !ok {
		return true
	}
	for !s.stopped {
		if s.exhausted {
			return true
		}
		extra := append(append([]solver.PBConstr(nil), bound...), s.blocks...)
		status, model := s.run.solve(extra)
		switch status {
		case solver.Sat:
			values := s.enc.decode(model)
			s.offer(incumbent{values: values, model: model, obj: s.enc.objective(values)})
		case solver.Unsat:
			return true
		default:
			return false
		}
	}
	return false
}

func (s *satSearch) search() Status {
	if s.enc.infeasible {
		return StatusInfeasible
	}
	switch s.first() {
	case solver.Unsat:
		return StatusInfeasible
	case solver.Sat:
	default:
		return StatusUnknown
	}

	if !s.params.Enumerate {
		s.emit(s.best)
		if s.improve(s.emit) {
			return StatusOptimal
		}
		return StatusFeasible
	}

	// 先求最优，再按最优值确定窗口
	found := []incumbent{s.best}
	proven := s.improve(func(inc incumbent) { found = append(found, inc) })
	limit := satAdd(s.best.obj, s.params.PoolWindow)
	for i := len(found) - 1; i >= 0 && !s.stopped; i-- {
		if found[i].obj <= limit {
			s.offer(found[i])
		}
	}
	if !proven || s.stopped {
		return StatusFeasible
	}
	if s.enumerate(limit) && !s.stopped {
		return StatusOptimal
	}
	return StatusFeasible
}

// Solve 求解模型；回调按找到顺序串行调用
func (e *SATEngine) Solve(ctx context.Context, m *Model, p Params, cb SolutionCallback) (*Response, error) {
	start := time.Now()
	if err := m.Validate(); err != nil {
		return &Response{Status: StatusModelInvalid}, fmt.Errorf("%w: %v", ErrModelInvalid, err)
	}
	if p.PoolWindow < 0 {
		p.PoolWindow = 0
	}

	enc := encode(m)
	run := &satRun{enc: enc, ctx: ctx}
	if p.MaxTime > 0 {
		run.deadline = start.Add(p.MaxTime)
	}
	if dl, ok := ctx.Deadline(); ok && (run.deadline.IsZero() || dl.Before(run.deadline)) {
		run.deadline = dl
	}

	s := &satSearch{
		run:    run,
		enc:    enc,
		params: p,
		cb:     cb,
		start:  start,
		bound:  enc.objOff,
		seen:   make(map[string]bool),
	}
	status := s.search()

	resp := &Response{
		Status:    status,
		Conflicts: run.refuted,
		Branches:  run.calls,
		Solutions: s.solutions,
		WallTime:  time.Since(start),
	}
	if s.hasBest {
		resp.values = s.best.values
		resp.Objective = enc.sign * s.best.obj
		resp.BestBound = enc.sign * s.bound
	}
	return resp, nil
}
