package constraint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paiban/medsched/pkg/model"
)

func TestManager_Register(t *testing.T) {
	manager := NewManager()

	manager.Register(&MockConstraint{name: "soft", typ: Type("soft"), category: CategorySoft, weight: 500})
	manager.Register(&MockConstraint{name: "hard", typ: Type("hard"), category: CategoryHard, weight: 1})
	manager.Register(&MockConstraint{name: "soft2", typ: Type("soft2"), category: CategorySoft, weight: 10})

	all := manager.GetAll()
	require.Len(t, all, 3)
	assert.Equal(t, "hard", all[0].Name(), "硬约束排在前面")
	assert.Equal(t, "soft", all[1].Name())
	assert.Equal(t, "soft2", all[2].Name())

	// 同类型替换
	manager.Register(&MockConstraint{name: "hard-v2", typ: Type("hard"), category: CategoryHard, weight: 1})
	assert.Equal(t, 3, manager.Count())
	assert.Equal(t, "hard-v2", manager.GetConstraint(Type("hard")).Name())
}

func TestManager_GetByCategory(t *testing.T) {
	manager := NewManager()
	manager.Register(&MockConstraint{name: "hard1", typ: Type("hard1"), category: CategoryHard})
	manager.Register(&MockConstraint{name: "soft1", typ: Type("soft1"), category: CategorySoft})

	assert.Len(t, manager.GetByCategory(CategoryHard), 1)
	assert.Len(t, manager.GetByCategory(CategorySoft), 1)
}

func TestManager_Evaluate(t *testing.T) {
	tests := []struct {
		name      string
		mocks     []*MockConstraint
		wantValid bool
		wantHard  int64
		wantSoft  int64
	}{
		{
			name:      "无约束",
			wantValid: true,
		},
		{
			name: "全部满足",
			mocks: []*MockConstraint{
				{name: "h", typ: "h", category: CategoryHard, weight: 1},
				{name: "s", typ: "s", category: CategorySoft, weight: 10},
			},
			wantValid: true,
		},
		{
			name: "软约束违反不影响可行性",
			mocks: []*MockConstraint{
				{name: "s", typ: "s", category: CategorySoft, weight: 10, amount: 3},
			},
			wantValid: true,
			wantSoft:  30,
		},
		{
			name: "硬约束松弛按权重计",
			mocks: []*MockConstraint{
				{name: "h1", typ: "h1", category: CategoryHard, weight: 2, amount: 2},
				{name: "h2", typ: "h2", category: CategoryHard, weight: 1, amount: 1},
				{name: "s", typ: "s", category: CategorySoft, weight: 500, amount: 1},
			},
			wantValid: false,
			wantHard:  5,
			wantSoft:  500,
		},
	}

	ctx := NewContext(testInstance(t))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager := NewManager()
			for _, m := range tt.mocks {
				manager.Register(m)
			}
			result := manager.Evaluate(ctx)
			assert.Equal(t, tt.wantValid, result.IsValid)
			assert.Equal(t, tt.wantHard, result.Hard)
			assert.Equal(t, tt.wantSoft, result.Soft)
			assert.Len(t, result.Families, len(tt.mocks))
			assert.Equal(t, tt.wantHard*HardScale+tt.wantSoft, manager.Score(ctx))
			assert.Equal(t, result.Score(), manager.Score(ctx))
		})
	}
}

func TestManager_ClearAndUnregister(t *testing.T) {
	manager := NewManager()
	manager.Register(&MockConstraint{name: "a", typ: Type("a"), category: CategoryHard})
	manager.Register(&MockConstraint{name: "b", typ: Type("b"), category: CategorySoft})

	manager.Unregister(Type("a"))
	assert.Equal(t, 1, manager.Count())
	assert.Nil(t, manager.GetConstraint(Type("a")))

	summary := manager.Summary()
	assert.Equal(t, 1, summary["soft"])

	manager.Clear()
	assert.Equal(t, 0, manager.Count())
}

// 三天，第 1、3 天各一个班次，周末为第 1、2 天
func testInstance(t *testing.T) *model.Instance {
	t.Helper()
	c := model.NewCaseBuilder().
		Days("2025-03-01", 3).
		Shift("S1", "2025-03-01", "MD_DAY", 8, 10).
		Shift("S2", "2025-03-01", "MD_NIGHT", 20, 12).
		Shift("S3", "2025-03-03", "MD_DAY", 8, 10).
		Provider("A", "MD").
		Provider("B", "MD").
		Build()
	inst, _, err := model.Prepare(c)
	require.NoError(t, err)
	return inst
}

func TestContext_Move(t *testing.T) {
	inst := testInstance(t)
	ctx := NewContext(inst)

	assert.Equal(t, []int{Unassigned, Unassigned, Unassigned}, ctx.Assign)
	assert.Equal(t, 0, ctx.Total(0))

	ctx.Move(0, 0)
	ctx.Move(1, 0)
	ctx.Move(2, 0)
	assert.Equal(t, 3, ctx.Total(0))
	assert.Equal(t, 2, ctx.DayLoad(0, 0))
	assert.True(t, ctx.Works(0, 2))
	assert.False(t, ctx.Works(0, 1))
	assert.Equal(t, 2, ctx.TypeCount(0, "MD_DAY"))
	assert.Equal(t, 2, ctx.WeekendCount(0))
	assert.Equal(t, []int{1, 1}, ctx.Clusters(0))
	assert.Equal(t, 1, ctx.MaxRun(0))

	ctx.Move(1, 1)
	ctx.Move(2, Unassigned)
	rebuilt := NewContext(inst)
	rebuilt.SetAssignment(ctx.Assign)
	for p := 0; p < inst.NumProviders(); p++ {
		assert.Equal(t, rebuilt.Total(p), ctx.Total(p))
		assert.Equal(t, rebuilt.WeekendCount(p), ctx.WeekendCount(p))
		assert.Equal(t, rebuilt.Clusters(p), ctx.Clusters(p))
	}
	assert.Equal(t, []int{0}, ctx.ProviderShifts(0))
	assert.Equal(t, []int{1}, ctx.ProviderShifts(1))
}

func TestContext_CloneIsIndependent(t *testing.T) {
	ctx := NewContext(testInstance(t))
	ctx.Move(0, 0)

	clone := ctx.Clone()
	clone.Move(0, 1)

	assert.Equal(t, 0, ctx.Assign[0])
	assert.Equal(t, 1, ctx.Total(0))
	assert.Equal(t, 1, clone.Assign[0])
	assert.Equal(t, 0, clone.Total(0))
}

func TestContext_FairBand(t *testing.T) {
	ctx := NewContext(testInstance(t))
	lo, hi := ctx.FairBand()
	assert.Equal(t, 1, lo)
	assert.Equal(t, 2, hi)
}

// MockConstraint 用于测试的模拟约束
type MockConstraint struct {
	name     string
	typ      Type
	category Category
	weight   int64
	amount   int64
}

func (m *MockConstraint) Name() string       { return m.name }
func (m *MockConstraint) Type() Type         { return m.typ }
func (m *MockConstraint) Category() Category { return m.category }
func (m *MockConstraint) Weight() int64 {
	if m.weight == 0 {
		return 1
	}
	return m.weight
}

func (m *MockConstraint) Evaluate(ctx *Context) (int64, []ViolationDetail) {
	if m.amount == 0 {
		return 0, nil
	}
	return m.amount, []ViolationDetail{
		{ConstraintType: m.typ, ConstraintName: m.name, Message: "违反约束", Amount: m.amount},
	}
}

func TestRestIndex(t *testing.T) {
	// S1 周六 8-18 与 S2 周六 20-08 间隔 2 小时，互斥；S3 周一不冲突
	inst := testInstance(t)
	idx := NewRestIndex(inst)

	assert.Equal(t, []int{1}, idx.Conflicts(0))
	assert.Equal(t, []int{0}, idx.Conflicts(1))
	assert.Empty(t, idx.Conflicts(2))

	ctx := NewContext(inst)
	ctx.Move(0, 0)
	assert.True(t, idx.Blocked(ctx, 1, 0))
	assert.False(t, idx.CanTake(ctx, 1, 0))
	assert.True(t, idx.CanTake(ctx, 1, 1))
	assert.True(t, idx.Feasible(ctx))

	ctx.Move(1, 0)
	assert.False(t, idx.Feasible(ctx))
}
