package solver

import (
	"context"
	"time"

	"github.com/paiban/medsched/pkg/logger"
	"github.com/paiban/medsched/pkg/scheduler/constraint"
	"github.com/paiban/medsched/pkg/scheduler/constraint/builtin"
	"github.com/paiban/medsched/pkg/scheduler/optimizer"
)

// EngineFallback 回退求解的引擎名
const EngineFallback = "fallback"

// fallback 单阶段回退：贪心初始解加并行退火链，评分为 hard·HardScale + soft，访问过的分配全部进入解池
func (t *TwoPhaseSolver) fallback(ctx context.Context, out *Outcome, initial []int, start time.Time, reason string) (*Outcome, error) {
	inst := t.inst
	slog := logger.NewSolveLogger(ctx)
	slog.Degraded(reason)

	total, _ := t.budget()
	remaining := max(t.opts.MinPhaseTime, total-time.Since(start))
	out.Fallback = true
	out.Engine = EngineFallback
	out.TimeSplit = [2]time.Duration{remaining, 0}
	t.progress(StagePhase1Solving, 10, "回退求解：贪心加局部搜索")

	mgr := builtin.NewManager(inst)
	cfg := optimizer.DefaultOptConfig()
	cfg.MaxTime = remaining
	cfg.MaxIterations = t.opts.FallbackIterations
	cfg.ParallelWorkers = t.workers()
	cfg.Seed = inst.Run.Seed

	search := optimizer.NewIslandOptimizer(cfg, inst, mgr)
	search.OnVisit = func(assign []int, score int64) {
		out.Pool.Offer(&PoolEntry{
			Assign:    assign,
			Bits:      out.Built.Bits(assign),
			Objective: score,
			WallTime:  time.Since(start),
		})
	}
	best, err := search.OptimizeIslands(ctx, initial)
	if err != nil || ctx.Err() != nil {
		return nil, canceled(firstErr(err, ctx.Err()))
	}

	sc := constraint.NewContext(inst)
	sc.SetAssignment(best.Assign)
	res := mgr.Evaluate(sc)
	out.Phase1 = PhaseReport{
		Status:    "FEASIBLE",
		Objective: res.Hard,
		WallTime:  time.Since(start),
		Solutions: out.Pool.Len(),
	}
	out.Phase2 = PhaseReport{
		Status:    "FEASIBLE",
		Objective: best.Score,
		WallTime:  time.Since(start),
		Solutions: out.Pool.Len(),
	}
	slog.PhaseDone(EngineFallback, out.Phase2.Status, best.Score, 0, out.Phase2.WallTime)
	t.progress(StagePhase1Done, 40, "回退求解完成")

	out.Elapsed = time.Since(start)
	return out, nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
