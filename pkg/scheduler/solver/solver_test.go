package solver

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paiban/medsched/pkg/cpsat"
	apperrors "github.com/paiban/medsched/pkg/errors"
	"github.com/paiban/medsched/pkg/model"
	"github.com/paiban/medsched/pkg/scheduler/constraint"
	"github.com/paiban/medsched/pkg/scheduler/diversity"
)

func fastOptions() Options {
	return Options{
		MinPhaseTime:       500 * time.Millisecond,
		Workers:            1,
		FallbackIterations: 60,
	}
}

// 周五到周日三天：每天一个医生日班和一个护士日班；Amy 周六休假
func wardCase() *model.Case {
	return model.NewCaseBuilder().
		Days("2025-03-07", 3).
		DailyShifts("D", "MD_DAY", 8, 10).
		DailyShifts("R", "RN_DAY", 7, 12, "RN").
		Provider("Amy", "MD", func(p *model.Provider) {
			p.ForbiddenDaysHard = []string{"2025-03-08"}
		}).
		Provider("Ben", "MD").
		Provider("Cat", "RN").
		Run(4, 1, 7, 2).
		Build()
}

func prepare(t *testing.T, c *model.Case) *model.Instance {
	t.Helper()
	inst, _, err := model.Prepare(c)
	require.NoError(t, err)
	return inst
}

// checkCoverage 每个班次要么分配给可上的人员，要么计为空缺
func checkCoverage(t *testing.T, inst *model.Instance, res *Result) {
	t.Helper()
	providerIndex := make(map[string]int)
	for p, prov := range inst.Providers {
		providerIndex[prov.Name] = p
	}
	for _, sch := range res.Solutions {
		seen := make(map[string]int)
		for _, a := range sch.Assignments {
			seen[a.ShiftID]++
			s, ok := inst.ShiftIndex(a.ShiftID)
			require.True(t, ok)
			assert.True(t, inst.Eligible[s][providerIndex[a.Provider]], "%s 不能上 %s", a.Provider, a.ShiftID)
		}
		for _, id := range sch.Unfilled {
			seen[id]++
		}
		assert.Len(t, seen, inst.NumShifts())
		for id, n := range seen {
			assert.Equal(t, 1, n, "班次 %s", id)
		}
	}
}

func TestRun_SingleShiftSingleProvider(t *testing.T) {
	c := model.NewCaseBuilder().
		Days("2025-03-03", 1).
		Shift("S1", "2025-03-03", "MD_DAY", 8, 10).
		Provider("X", "MD").
		Provider("Y", "MD").
		Run(5, 0, 1, 2).
		Build()

	res, err := Run(context.Background(), c, fastOptions())
	require.NoError(t, err)
	require.NotEmpty(t, res.Solutions)
	assert.LessOrEqual(t, len(res.Solutions), 2)

	for _, sch := range res.Solutions {
		assert.Len(t, sch.Assignments, 1)
		assert.Empty(t, sch.Unfilled)
		assert.Equal(t, int64(0), sch.Hard)
	}
	assert.Equal(t, int64(0), res.Statistics.Phase1.Objective)
	assert.Equal(t, "OPTIMAL", res.Statistics.Phase1.Status)
	assert.False(t, res.Statistics.Degraded)
	assert.False(t, res.Statistics.Fallback)
}

func TestRun_OnlyShiftForbidden(t *testing.T) {
	c := model.NewCaseBuilder().
		Days("2025-03-03", 1).
		Shift("S1", "2025-03-03", "MD_DAY", 8, 10).
		Provider("P", "MD", func(p *model.Provider) {
			p.ForbiddenDaysHard = []string{"2025-03-03"}
		}).
		Run(1, 0, 1, 2).
		Build()

	res, err := Run(context.Background(), c, fastOptions())
	require.NoError(t, err)
	require.Len(t, res.Solutions, 1)

	sch := res.Solutions[0]
	unfilled := sch.HardSlacks[string(constraint.TypeUnfilled)]
	cantWork := sch.HardSlacks[string(constraint.TypeCantWork)]
	assert.Equal(t, int64(1), unfilled+cantWork)
	assert.Greater(t, res.Statistics.Phase1.Objective, int64(0))
}

func TestRun_WardProperties(t *testing.T) {
	inst := prepare(t, wardCase())
	res, err := Solve(context.Background(), inst, fastOptions())
	require.NoError(t, err)
	require.NotEmpty(t, res.Solutions)
	assert.LessOrEqual(t, len(res.Solutions), 4)

	checkCoverage(t, inst, res)

	// 第一阶段硬松弛为 0，Amy 周六不会被排班
	require.Equal(t, int64(0), res.Statistics.Phase1.Objective)
	for _, sch := range res.Solutions {
		for _, a := range sch.Assignments {
			if a.Provider == "Amy" {
				assert.NotEqual(t, "2025-03-08", a.Date)
			}
		}
		assert.Equal(t, "", sch.Grid.Cells[0][1])
	}

	// 冻结后每个解重新计算的硬松弛都等于第一阶段的值
	for _, sch := range res.Solutions {
		assert.Equal(t, res.Statistics.Phase1.Objective, sch.Hard, "解 %d", sch.Rank)
	}

	st := res.Statistics
	assert.Equal(t, len(res.Solutions), st.SolutionsSelected)
	assert.GreaterOrEqual(t, st.SolutionsCollected, st.SolutionsSelected)
	assert.Equal(t, 1, st.RequestedL)
	assert.Greater(t, st.FrozenSlacks, 0)
	assert.NotEmpty(t, st.EffectiveConstants)
	assert.Equal(t, "gophersat", st.Engine)
}

func TestRun_DiversityBound(t *testing.T) {
	inst := prepare(t, wardCase())
	tp := NewTwoPhaseSolver(inst, fastOptions())
	out, err := tp.Solve(context.Background())
	require.NoError(t, err)

	cands := out.Pool.Candidates()
	sel := diversity.Select(cands, 3, 2, 0)
	assert.LessOrEqual(t, len(sel.Indices), 3)
	for i := range sel.Indices {
		for j := i + 1; j < len(sel.Indices); j++ {
			d := diversity.Hamming(cands[sel.Indices[i]].Bits, cands[sel.Indices[j]].Bits)
			assert.GreaterOrEqual(t, d, sel.AchievedThreshold)
		}
	}
}

func TestRun_Deterministic(t *testing.T) {
	run := func() *Result {
		res, err := Run(context.Background(), wardCase(), fastOptions())
		require.NoError(t, err)
		return res
	}
	a, b := run(), run()
	assert.Equal(t, a.Statistics.Phase1.Objective, b.Statistics.Phase1.Objective)
	assert.Equal(t, a.Solutions[0].Objective, b.Solutions[0].Objective)
}

func TestRun_Progress(t *testing.T) {
	var stages []Stage
	opts := fastOptions()
	opts.Progress = func(stage Stage, percent int, message string) {
		stages = append(stages, stage)
	}
	_, err := Run(context.Background(), wardCase(), opts)
	require.NoError(t, err)
	assert.Equal(t, []Stage{StageBuilding, StagePhase1Solving, StagePhase1Done, StagePhase2Solving, StageSelecting, StageFormatted}, stages)
}

func TestRun_Fallback(t *testing.T) {
	tests := []struct {
		name string
		opts func(o *Options)
	}{
		{"引擎不可用", func(o *Options) { o.Engine = cpsat.Unavailable{} }},
		{"配置为贪心", func(o *Options) { o.EngineName = EngineGreedy }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst := prepare(t, wardCase())
			opts := fastOptions()
			tt.opts(&opts)
			res, err := Solve(context.Background(), inst, opts)
			require.NoError(t, err)
			require.NotEmpty(t, res.Solutions)

			assert.Equal(t, EngineFallback, res.Statistics.Engine)
			assert.True(t, res.Statistics.Fallback)
			assert.True(t, res.Statistics.ReducedCoverage)
			checkCoverage(t, inst, res)
		})
	}
}

func TestRun_FallbackDisabled(t *testing.T) {
	opts := fastOptions()
	opts.Engine = cpsat.Unavailable{}
	opts.DisableFallback = true

	_, err := Run(context.Background(), wardCase(), opts)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeEngineUnavailable))
}

// silentEngine 在时间预算内找不到任何解
type silentEngine struct{}

func (silentEngine) Name() string { return "silent" }

func (silentEngine) Solve(context.Context, *cpsat.Model, cpsat.Params, cpsat.SolutionCallback) (*cpsat.Response, error) {
	return &cpsat.Response{Status: cpsat.StatusUnknown}, nil
}

func TestRun_NoSolutionWithinBudget(t *testing.T) {
	t.Run("禁用回退时报告超时", func(t *testing.T) {
		opts := fastOptions()
		opts.Engine = silentEngine{}
		opts.DisableFallback = true

		_, err := Run(context.Background(), wardCase(), opts)

		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.CodeTimeout))
		assert.ErrorIs(t, err, apperrors.ErrTimeout)
		assert.Equal(t, http.StatusGatewayTimeout, apperrors.GetHTTPStatus(err))
	})

	t.Run("允许回退时改用贪心", func(t *testing.T) {
		opts := fastOptions()
		opts.Engine = silentEngine{}

		res, err := Run(context.Background(), wardCase(), opts)

		require.NoError(t, err)
		require.NotEmpty(t, res.Solutions)
		assert.True(t, res.Statistics.Fallback)
	})
}

func TestRun_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, wardCase(), fastOptions())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeCanceled))
}

func TestRun_InputValidation(t *testing.T) {
	c := model.NewCaseBuilder().
		Days("2025-03-03", 1).
		Shift("S1", "2025-03-04", "MD_DAY", 8, 10).
		Provider("X", "MD").
		Build()

	_, err := Run(context.Background(), c, fastOptions())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeInputValidation))
}

func TestTwoPhaseSolver_Budget(t *testing.T) {
	inst := prepare(t, wardCase())
	tp := NewTwoPhaseSolver(inst, Options{})
	total, t1 := tp.budget()
	assert.Equal(t, 2*time.Second, total)
	assert.Equal(t, DefaultMinPhaseTime, t1, "下限 5 秒")
	assert.Equal(t, "TwoPhaseSolver", tp.Name())
}
