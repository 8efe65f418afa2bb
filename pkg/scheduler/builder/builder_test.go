package builder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paiban/medsched/pkg/cpsat"
	"github.com/paiban/medsched/pkg/model"
	"github.com/paiban/medsched/pkg/scheduler/constraint"
	"github.com/paiban/medsched/pkg/scheduler/constraint/builtin"
)

func prepare(t *testing.T, c *model.Case) *model.Instance {
	t.Helper()
	inst, _, err := model.Prepare(c)
	require.NoError(t, err)
	return inst
}

// 2025-03-01 为周六：四天各一个日班，A、B 两名医生，带齐各类限制
func richCase() *model.Case {
	return model.NewCaseBuilder().
		Days("2025-03-01", 4).
		DailyShifts("D", "MD_DAY", 8, 10).
		Provider("A", "MD", func(p *model.Provider) {
			p.ForbiddenDaysHard = []string{"2025-03-01", "2025-03-01"}
			p.PreferredDaysHard = map[string][]string{"2025-03-03": {"MD_NIGHT"}, "2025-03-04": {model.AnyType}}
			p.PreferredDaysSoft = map[string][]string{"2025-03-02": {"MD_DAY"}}
			p.MaxConsecutiveDays = model.IntPtr(1)
			maxTotal := 2
			p.Limits.MaxTotal = &maxTotal
			p.Limits.TypeRanges = map[string][2]int{"MD_DAY": {1, 1}}
		}).
		Provider("B", "MD", func(p *model.Provider) {
			p.ForbiddenDaysSoft = []string{"2025-03-03"}
			p.PreferredDaysSoft = map[string][]string{"2025-03-03": {"MD_DAY"}, "2025-03-04": {"MD_NIGHT"}}
			minTotal := 2
			p.Limits.MinTotal = &minTotal
			p.Limits.WeekendRange = &[2]int{1, 1}
		}).
		HardWeight(model.KeyTypeRange, 2).
		HardWeight(model.KeyWeekendRange, 3).
		Build()
}

// solveFixed 固定分配后求解，返回模型中的 U 与 Weighted
func solveFixed(t *testing.T, inst *model.Instance, assign []int) (int64, int64, *Built, *cpsat.Response) {
	t.Helper()
	built, err := Build(inst, inst.Weights)
	require.NoError(t, err)

	for s := range inst.Shifts {
		for p := range inst.Providers {
			x, ok := built.X.At(s, p)
			if !ok {
				continue
			}
			var v int64
			if assign[s] == p {
				v = 1
			}
			built.Model.AddEquality(cpsat.Sum(x), v)
		}
	}
	built.Model.Minimize(built.HardSlackSum)

	resp, err := cpsat.NewSATEngine().Solve(context.Background(), built.Model, cpsat.Params{Workers: 1}, nil)
	require.NoError(t, err)
	require.Equal(t, cpsat.StatusOptimal, resp.Status)

	u := built.HardSlackSum.Evaluate(resp.Value)
	w := built.SoftPenaltySum.Evaluate(resp.Value)
	return u, w, built, resp
}

func TestBuild_MatchesEvaluator(t *testing.T) {
	tests := []struct {
		name   string
		assign []int
	}{
		{"A 上三天 B 上一天", []int{0, 0, 1, 0}},
		{"交替排班", []int{0, 1, 0, 1}},
		{"B 包揽", []int{1, 1, 1, 1}},
		{"存在空缺", []int{constraint.Unassigned, 0, 1, constraint.Unassigned}},
		{"全部空缺", []int{-1, -1, -1, -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst := prepare(t, richCase())
			ctx := constraint.NewContext(inst)
			ctx.SetAssignment(tt.assign)
			want := builtin.NewManager(inst).Evaluate(ctx)

			u, w, built, resp := solveFixed(t, inst, tt.assign)
			assert.Equal(t, want.Hard, u, "硬松弛加权和")
			assert.Equal(t, want.Soft, w, "软惩罚加权和")
			assert.Equal(t, tt.assign, built.Assignment(resp.Value))

			slacks := built.SlackValues(resp.Value)
			for _, f := range want.Families {
				if f.Category != constraint.CategoryHard {
					continue
				}
				var sum int64
				for _, v := range slacks[f.Type] {
					sum += v
				}
				assert.Equal(t, f.Amount, sum, "松弛族 %s", f.Type)
			}
		})
	}
}

func TestBuild_Eligibility(t *testing.T) {
	c := model.NewCaseBuilder().
		Days("2025-03-03", 1).
		Shift("N1", "2025-03-03", "RN_DAY", 8, 8).
		Shift("M1", "2025-03-03", "MD_DAY", 8, 8).
		Shift("X1", "2025-03-03", "ICU", 18, 8, "RN").
		Provider("Doc", "MD").
		Provider("Nurse", "RN").
		Build()
	inst := prepare(t, c)

	built, err := Build(inst, inst.Weights)
	require.NoError(t, err)

	_, ok := built.X.At(0, 0)
	assert.False(t, ok, "MD 不能上 RN_DAY")
	_, ok = built.X.At(0, 1)
	assert.True(t, ok)
	_, ok = built.X.At(1, 1)
	assert.False(t, ok, "RN 不能上 MD_DAY")
	_, ok = built.X.At(2, 0)
	assert.False(t, ok, "显式允许列表优先")
	assert.Equal(t, 6, built.X.Len())
	assert.Equal(t, 3, built.X.Count())
	assert.Equal(t, 3, built.Stats.AssignVars)
	assert.Len(t, built.X.Vars(), 3)
}

func TestBuild_RestConflict(t *testing.T) {
	// 两个重叠班次只有一名人员
	c := model.NewCaseBuilder().
		Days("2025-03-03", 1).
		Shift("S1", "2025-03-03", "MD_DAY", 8, 10).
		Shift("S2", "2025-03-03", "MD_EVE", 10, 10).
		Provider("Solo", "MD").
		Build()
	inst := prepare(t, c)

	built, err := Build(inst, inst.Weights)
	require.NoError(t, err)
	assert.Equal(t, 1, built.Stats.RestPairs)

	built.Model.Minimize(built.HardSlackSum)
	resp, err := cpsat.NewSATEngine().Solve(context.Background(), built.Model, cpsat.Params{Workers: 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, cpsat.StatusOptimal, resp.Status)
	assert.Equal(t, int64(1), resp.Objective)

	assign := built.Assignment(resp.Value)
	assigned := 0
	for _, p := range assign {
		if p != constraint.Unassigned {
			assigned++
		}
	}
	assert.Equal(t, 1, assigned)
}

func TestBuild_HardOnWithoutShifts(t *testing.T) {
	// 必排日当天没有班次，松弛恒为 1
	c := model.NewCaseBuilder().
		Days("2025-03-03", 2).
		Shift("S1", "2025-03-03", "MD_DAY", 8, 10).
		Provider("A", "MD", func(p *model.Provider) {
			p.PreferredDaysHard = map[string][]string{"2025-03-04": {model.AnyType}}
		}).
		Build()
	inst := prepare(t, c)

	built, err := Build(inst, inst.Weights)
	require.NoError(t, err)
	built.Model.Minimize(built.HardSlackSum)
	resp, err := cpsat.NewSATEngine().Solve(context.Background(), built.Model, cpsat.Params{Workers: 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, cpsat.StatusOptimal, resp.Status)
	assert.Equal(t, int64(1), resp.Objective)
	assert.Equal(t, []int64{1}, built.SlackValues(resp.Value)[constraint.TypeHardOn])
}

func TestBuilt_FreezeAndBits(t *testing.T) {
	inst := prepare(t, richCase())
	built, err := Build(inst, inst.Weights)
	require.NoError(t, err)

	values := map[constraint.Type][]int64{constraint.TypeUnfilled: {0, 0, 0, 0}}
	before := built.Model.NumConstraints()
	assert.Equal(t, 4, built.Freeze(values))
	assert.Equal(t, before+4, built.Model.NumConstraints())

	bits := built.Bits([]int{0, constraint.Unassigned, 1, 1})
	require.Len(t, bits, 8)
	assert.Equal(t, []bool{true, false, false, false, false, true, false, true}, bits)

	combined := built.Combined(constraint.HardScale)
	assert.Equal(t, built.SoftPenaltySum.Offset(), combined.Offset())
}

func TestBuild_NilInstance(t *testing.T) {
	_, err := Build(nil, model.Weights{})
	require.Error(t, err)
}
