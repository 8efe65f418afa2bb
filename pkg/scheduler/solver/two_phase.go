package solver

import (
	"context"
	"errors"
	"time"

	"github.com/paiban/medsched/pkg/cpsat"
	apperrors "github.com/paiban/medsched/pkg/errors"
	"github.com/paiban/medsched/pkg/logger"
	"github.com/paiban/medsched/pkg/model"
	"github.com/paiban/medsched/pkg/scheduler/builder"
	"github.com/paiban/medsched/pkg/scheduler/constraint"
)

// Stage 求解阶段
type Stage string

const (
	StageBuilding      Stage = "building"
	StagePhase1Solving Stage = "phase1_solving"
	StagePhase1Done    Stage = "phase1_done"
	StagePhase2Solving Stage = "phase2_solving"
	StageSelecting     Stage = "selecting"
	StageFormatted     Stage = "formatted"
)

// ProgressFunc 进度回调，percent 取 0-100
type ProgressFunc func(stage Stage, percent int, message string)

// EngineGreedy 配置为该引擎名时直接走回退求解
const EngineGreedy = "greedy"

// DefaultMinPhaseTime 每阶段的最短时间
const DefaultMinPhaseTime = 5 * time.Second

// Options 求解选项
type Options struct {
	// Engine 为空时使用 cpsat.NewSATEngine
	Engine cpsat.Engine
	// EngineName 为 "greedy" 时不调用引擎
	EngineName string
	// DisableFallback 引擎不可用时直接报错
	DisableFallback bool
	// MinPhaseTime 每阶段时间下限，0 取 DefaultMinPhaseTime
	MinPhaseTime time.Duration
	// Workers 覆盖 num_threads，0 表示沿用实例设置
	Workers int
	// FallbackIterations 回退搜索每条链的迭代次数，0 取 2000
	FallbackIterations int
	StopWhenFull       bool
	Progress           ProgressFunc
}

// PhaseReport 单阶段的求解报告
type PhaseReport struct {
	Status    string        `json:"status"`
	Objective int64         `json:"objective"`
	BestBound int64         `json:"best_bound"`
	Conflicts int64         `json:"conflicts"`
	Branches  int64         `json:"branches"`
	WallTime  time.Duration `json:"wall_time"`
	Solutions int           `json:"solutions"`
}

func reportOf(resp *cpsat.Response) PhaseReport {
	return PhaseReport{
		Status:    resp.Status.String(),
		Objective: resp.Objective,
		BestBound: resp.BestBound,
		Conflicts: resp.Conflicts,
		Branches:  resp.Branches,
		WallTime:  resp.WallTime,
		Solutions: resp.Solutions,
	}
}

// Outcome 两阶段求解的产出
type Outcome struct {
	Phase1 PhaseReport
	Phase2 PhaseReport
	Pool   *Pool
	Built  *builder.Built

	// Phase1Assign 第一阶段的最优分配，退化或回退时可能为空
	Phase1Assign []int
	FrozenSlacks int

	Degraded bool
	Fallback bool
	Engine   string
	// TimeSplit 两阶段分配到的时间
	TimeSplit [2]time.Duration
	Elapsed   time.Duration
}

// TwoPhaseSolver 两阶段求解：先最小化硬松弛，冻结后在软惩罚上优化并收集解池
type TwoPhaseSolver struct {
	inst *model.Instance
	opts Options
}

// NewTwoPhaseSolver 创建两阶段求解器
func NewTwoPhaseSolver(inst *model.Instance, opts Options) *TwoPhaseSolver {
	if opts.Engine == nil {
		opts.Engine = cpsat.NewSATEngine()
	}
	if opts.MinPhaseTime <= 0 {
		opts.MinPhaseTime = DefaultMinPhaseTime
	}
	if opts.FallbackIterations <= 0 {
		opts.FallbackIterations = 2000
	}
	return &TwoPhaseSolver{inst: inst, opts: opts}
}

// Name 返回求解器名称
func (t *TwoPhaseSolver) Name() string {
	return "TwoPhaseSolver"
}

func (t *TwoPhaseSolver) progress(stage Stage, percent int, msg string) {
	if t.opts.Progress != nil {
		t.opts.Progress(stage, percent, msg)
	}
}

func (t *TwoPhaseSolver) workers() int {
	if t.opts.Workers > 0 {
		return t.opts.Workers
	}
	if t.inst.Solver.NumThreads > 0 {
		return t.inst.Solver.NumThreads
	}
	return 1
}

// budget 第一阶段时间 max(下限, 总时长×比例)
func (t *TwoPhaseSolver) budget() (total, t1 time.Duration) {
	total = t.inst.Run.TotalTime
	if total <= 0 {
		total = t.inst.Solver.MaxTime
	}
	t1 = max(t.opts.MinPhaseTime, time.Duration(float64(total)*t.inst.Solver.Phase1Fraction))
	return total, t1
}

func canceled(err error) error {
	return apperrors.Wrap(err, apperrors.CodeCanceled, "求解已取消")
}

// Solve 执行建模、两阶段求解与解池收集
func (t *TwoPhaseSolver) Solve(ctx context.Context) (*Outcome, error) {
	start := time.Now()
	inst := t.inst
	slog := logger.NewSolveLogger(ctx)
	total, t1 := t.budget()
	slog.StartSolve(inst.NumDays(), inst.NumShifts(), inst.NumProviders(), total)

	t.progress(StageBuilding, 0, "构建约束模型")
	built, err := builder.Build(inst, inst.Weights)
	if err != nil {
		return nil, err
	}
	slog.ModelBuilt(built.Stats.Variables, built.Stats.Constraints, built.Stats.AssignVars)

	hint, err := NewGreedySolver(inst).Solve(ctx)
	if err != nil {
		return nil, canceled(err)
	}

	out := &Outcome{
		Pool:   NewPool(inst.Solver.PoolLimit, t.opts.StopWhenFull),
		Built:  built,
		Engine: t.opts.Engine.Name(),
	}
	if t.opts.EngineName == EngineGreedy {
		return t.fallback(ctx, out, hint, start, "配置为贪心引擎")
	}

	// 第一阶段
	out.TimeSplit[0] = t1
	t.progress(StagePhase1Solving, 10, "第一阶段：最小化硬约束松弛")
	built.SetHints(hint)
	built.Model.Minimize(built.HardSlackSum)
	resp1, err := t.opts.Engine.Solve(ctx, built.Model, cpsat.Params{
		MaxTime:     t1,
		Workers:     t.workers(),
		Seed:        inst.Run.Seed,
		RelativeGap: inst.Solver.RelativeGap,
	}, nil)
	if err != nil {
		if errors.Is(err, cpsat.ErrEngineUnavailable) {
			if t.opts.DisableFallback {
				return nil, apperrors.Wrap(err, apperrors.CodeEngineUnavailable, "求解引擎不可用")
			}
			return t.fallback(ctx, out, hint, start, "求解引擎不可用")
		}
		return nil, apperrors.Wrap(err, apperrors.CodeModelConstruction, "第一阶段求解失败")
	}
	if ctx.Err() != nil {
		return nil, canceled(ctx.Err())
	}
	out.Phase1 = reportOf(resp1)
	slog.PhaseDone("phase1", out.Phase1.Status, resp1.Objective, resp1.BestBound, resp1.WallTime)

	objective := built.SoftPenaltySum
	switch {
	case resp1.Status.HasSolution():
		out.Phase1Assign = built.Assignment(resp1.Value)
		out.FrozenSlacks = built.Freeze(built.SlackValues(resp1.Value))
		hint = out.Phase1Assign
	case resp1.Status == cpsat.StatusInfeasible || resp1.Status == cpsat.StatusModelInvalid:
		return nil, apperrors.ModelConstruction("第一阶段模型不可行（状态 %s），松弛设计下不应出现", out.Phase1.Status)
	default:
		out.Degraded = true
		objective = built.Combined(constraint.HardScale)
		slog.Degraded("第一阶段未找到可行解，第二阶段改用加权单目标")
	}
	t.progress(StagePhase1Done, 40, "第一阶段完成")

	// 第二阶段
	t2 := max(t.opts.MinPhaseTime, total-time.Since(start))
	out.TimeSplit[1] = t2
	t.progress(StagePhase2Solving, 45, "第二阶段：优化软约束并收集解池")
	built.SetHints(hint)
	built.Model.Minimize(objective)
	resp2, err := t.opts.Engine.Solve(ctx, built.Model, cpsat.Params{
		MaxTime:    t2,
		Workers:    t.workers(),
		Seed:       inst.Run.Seed,
		Enumerate:  true,
		PoolWindow: inst.Solver.PoolWindow,
	}, func(sol *cpsat.Solution) bool {
		assign := built.Assignment(sol.Value)
		out.Pool.Offer(&PoolEntry{
			Assign:    assign,
			Bits:      built.Bits(assign),
			Objective: sol.Objective,
			BestBound: sol.BestBound,
			Conflicts: sol.Conflicts,
			Branches:  sol.Branches,
			WallTime:  sol.WallTime,
		})
		return !out.Pool.ShouldStop()
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeModelConstruction, "第二阶段求解失败")
	}
	if ctx.Err() != nil {
		return nil, canceled(ctx.Err())
	}
	out.Phase2 = reportOf(resp2)
	slog.PhaseDone("phase2", out.Phase2.Status, resp2.Objective, resp2.BestBound, resp2.WallTime)

	if out.Pool.Len() == 0 {
		switch {
		case out.Phase1Assign != nil:
			out.Pool.Offer(&PoolEntry{
				Assign:    out.Phase1Assign,
				Bits:      built.Bits(out.Phase1Assign),
				Objective: built.SoftPenaltySum.Evaluate(resp1.Value),
				BestBound: resp1.BestBound,
				Conflicts: resp1.Conflicts,
				Branches:  resp1.Branches,
				WallTime:  resp1.WallTime,
			})
		case t.opts.DisableFallback:
			err := apperrors.Newf(apperrors.CodeTimeout, "求解时间 %s 内两阶段均未找到可行解", total)
			err.Cause = apperrors.ErrTimeout
			return nil, err
		default:
			// 两阶段都没有解，用回退搜索兜底
			return t.fallback(ctx, out, hint, start, "两阶段均未找到解")
		}
	}

	out.Elapsed = time.Since(start)
	return out, nil
}
