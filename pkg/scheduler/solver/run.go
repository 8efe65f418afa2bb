package solver

import (
	"context"
	"time"

	"github.com/paiban/medsched/pkg/logger"
	"github.com/paiban/medsched/pkg/model"
	"github.com/paiban/medsched/pkg/scheduler/diversity"
)

// Run 完整求解流程：归一化与建实例、两阶段求解、多样解挑选、结果整理
func Run(ctx context.Context, c *model.Case, opts Options) (*Result, error) {
	inst, warnings, err := model.Prepare(c)
	if err != nil {
		return nil, err
	}
	return Solve(ctx, inst, opts, warnings...)
}

// Solve 对已构造的实例求解
func Solve(ctx context.Context, inst *model.Instance, opts Options, warnings ...string) (*Result, error) {
	start := time.Now()
	tp := NewTwoPhaseSolver(inst, opts)
	out, err := tp.Solve(ctx)
	if err != nil {
		return nil, err
	}

	tp.progress(StageSelecting, 90, "挑选多样解")
	sel := diversity.Select(out.Pool.Candidates(), inst.Run.K, inst.Run.L, inst.Run.RelaxTo)
	slog := logger.NewSolveLogger(ctx)
	slog.PoolCollected(out.Pool.Len(), len(sel.Indices), sel.AchievedThreshold)

	res := Format(inst, out, sel)
	res.Warnings = warnings
	res.Statistics.Elapsed = time.Since(start)

	var best int64
	if len(res.Solutions) > 0 {
		best = res.Solutions[0].Objective
	}
	slog.SolveComplete(res.Statistics.Elapsed, best)
	tp.progress(StageFormatted, 100, "求解完成")
	return res, nil
}
