package optimizer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paiban/medsched/pkg/model"
	"github.com/paiban/medsched/pkg/scheduler/constraint"
	"github.com/paiban/medsched/pkg/scheduler/constraint/builtin"
)

// 五天，每天日班和夜班各一个，三名医生
func testInstance(t *testing.T) *model.Instance {
	t.Helper()
	c := model.NewCaseBuilder().
		Days("2025-03-03", 5).
		DailyShifts("D", "MD_DAY", 8, 10).
		DailyShifts("N", "MD_NIGHT", 20, 12).
		Provider("A", "MD").
		Provider("B", "MD").
		Provider("C", "MD").
		Build()
	inst, _, err := model.Prepare(c)
	require.NoError(t, err)
	return inst
}

func emptyAssign(inst *model.Instance) []int {
	out := make([]int, inst.NumShifts())
	for i := range out {
		out[i] = constraint.Unassigned
	}
	return out
}

func testConfig(seed int64) *OptimizationConfig {
	cfg := DefaultOptConfig()
	cfg.MaxIterations = 300
	cfg.MaxTime = 0
	cfg.NeighborhoodSize = 8
	cfg.ParallelWorkers = 3
	cfg.Seed = seed
	return cfg
}

func TestTabuList(t *testing.T) {
	tl := NewTabuList(2)
	tl.Add(1)
	tl.Add(2)
	tl.Add(2)
	assert.Equal(t, 2, tl.Len())
	tl.Add(3)
	assert.False(t, tl.Contains(1), "超出容量淘汰最旧的")
	assert.True(t, tl.Contains(2))
	assert.True(t, tl.Contains(3))
	tl.Clear()
	assert.Equal(t, 0, tl.Len())
}

func TestBoltzmannProbability(t *testing.T) {
	tests := []struct {
		name  string
		delta float64
		temp  float64
		want  float64
	}{
		{"更优解", -5, 10, 1},
		{"持平", 0, 10, 1},
		{"零温度", 5, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, boltzmannProbability(tt.delta, tt.temp))
		})
	}
	p := boltzmannProbability(10, 10)
	assert.InDelta(t, 0.3679, p, 1e-3)
}

func TestHashAssign(t *testing.T) {
	assert.Equal(t, hashAssign([]int{0, 1, -1}), hashAssign([]int{0, 1, -1}))
	assert.NotEqual(t, hashAssign([]int{0, 1, -1}), hashAssign([]int{1, 0, -1}))
}

func TestNeighborhood_MovesStayFeasible(t *testing.T) {
	inst := testInstance(t)
	rest := constraint.NewRestIndex(inst)
	gen := NewNeighborhoodGenerator(inst, rest, 7)
	ctx := constraint.NewContext(inst)

	applied := 0
	for i := 0; i < 500; i++ {
		before := append([]int(nil), ctx.Assign...)
		m := gen.Generate(ctx)
		require.Equal(t, before, ctx.Assign, "生成移动不改变上下文")
		if m == nil {
			continue
		}
		m.Apply(ctx)
		require.True(t, rest.Feasible(ctx), "移动 %s 破坏了休息要求", m.Type)
		if i%3 == 0 {
			m.Undo(ctx)
			require.Equal(t, before, ctx.Assign)
			continue
		}
		applied++
	}
	assert.Greater(t, applied, 0)
}

func TestNeighborhood_SetMoveWeights(t *testing.T) {
	inst := testInstance(t)
	gen := NewNeighborhoodGenerator(inst, constraint.NewRestIndex(inst), 1)
	gen.SetMoveWeights(map[MoveType]float64{MoveInsert: 1})
	ctx := constraint.NewContext(inst)

	m := gen.Generate(ctx)
	require.NotNil(t, m)
	assert.Equal(t, MoveInsert, m.Type)
	assert.Equal(t, "insert", m.Type.String())
}

func TestLocalSearch_Improves(t *testing.T) {
	inst := testInstance(t)
	mgr := builtin.NewManager(inst)
	initial := emptyAssign(inst)
	initialScore := mgr.Score(contextOf(inst, initial))

	visits := 0
	opt := NewLocalSearchOptimizer(testConfig(3), inst, mgr)
	opt.OnVisit = func(assign []int, score int64) { visits++ }
	best, err := opt.Optimize(context.Background(), initial)
	require.NoError(t, err)

	assert.Less(t, best.Score, initialScore)
	assert.Equal(t, best.Score, mgr.Score(contextOf(inst, best.Assign)))
	assert.True(t, constraint.NewRestIndex(inst).Feasible(contextOf(inst, best.Assign)))
	assert.Greater(t, visits, 1)
	assert.Equal(t, emptyAssign(inst), initial, "不修改输入")
}

func TestLocalSearch_Deterministic(t *testing.T) {
	inst := testInstance(t)
	mgr := builtin.NewManager(inst)

	run := func() *Solution {
		best, err := NewLocalSearchOptimizer(testConfig(11), inst, mgr).Optimize(context.Background(), emptyAssign(inst))
		require.NoError(t, err)
		return best
	}
	a, b := run(), run()
	assert.Equal(t, a.Assign, b.Assign)
	assert.Equal(t, a.Score, b.Score)
}

func TestLocalSearch_Canceled(t *testing.T) {
	inst := testInstance(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	best, err := NewLocalSearchOptimizer(testConfig(1), inst, builtin.NewManager(inst)).Optimize(ctx, emptyAssign(inst))
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, best)
	assert.Equal(t, emptyAssign(inst), best.Assign)
}

func TestIslandOptimizer(t *testing.T) {
	inst := testInstance(t)
	mgr := builtin.NewManager(inst)
	initial := emptyAssign(inst)

	var visits int
	io := NewIslandOptimizer(testConfig(5), inst, mgr)
	io.OnVisit = func(assign []int, score int64) { visits++ }
	best, err := io.OptimizeIslands(context.Background(), initial)
	require.NoError(t, err)
	require.NotNil(t, best)

	assert.Less(t, best.Score, mgr.Score(contextOf(inst, initial)))
	assert.GreaterOrEqual(t, visits, 3, "每条链至少回调初始状态")
}
