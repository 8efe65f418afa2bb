package cpsat

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solve(t *testing.T, m *Model, p Params, cb SolutionCallback) *Response {
	t.Helper()
	if p.MaxTime == 0 {
		p.MaxTime = 10 * time.Second
	}
	resp, err := NewSATEngine().Solve(context.Background(), m, p, cb)
	require.NoError(t, err)
	return resp
}

func TestSolve_LinearMinimize(t *testing.T) {
	m := NewModel("linear")
	x := m.NewIntVar(0, 10, "x")
	y := m.NewIntVar(0, 10, "y")
	m.AddGreaterOrEqual(Sum(x, y), 7)
	m.AddLessOrEqual(NewLinearExpr().Add(x), 4)
	m.Minimize(NewLinearExpr().AddTerm(x, 3).AddTerm(y, 2))

	resp := solve(t, m, Params{}, nil)

	assert.Equal(t, StatusOptimal, resp.Status)
	assert.Equal(t, int64(14), resp.Objective)
	assert.Equal(t, int64(14), resp.BestBound)
	assert.Equal(t, int64(0), resp.Value(x))
	assert.Equal(t, int64(7), resp.Value(y))
	assert.Greater(t, resp.Branches, int64(1))
	assert.GreaterOrEqual(t, resp.Conflicts, int64(1))
}

func TestSolve_NegativeDomain(t *testing.T) {
	m := NewModel("negative")
	x := m.NewIntVar(-7, 5, "x")
	y := m.NewIntVar(-3, 3, "y")
	m.AddLinearConstraint(NewLinearExpr().Add(x).AddTerm(y, 2), -4, -4)
	m.Minimize(NewLinearExpr().Add(y))

	resp := solve(t, m, Params{}, nil)

	require.Equal(t, StatusOptimal, resp.Status)
	assert.Equal(t, int64(-3), resp.Value(y))
	assert.Equal(t, int64(2), resp.Value(x))
}

func TestSolve_DuplicateTermsMerged(t *testing.T) {
	m := NewModel("merge")
	x := m.NewIntVar(0, 10, "x")
	m.AddLessOrEqual(NewLinearExpr().Add(x).Add(x).AddConstant(1), 5)
	m.Maximize(NewLinearExpr().Add(x))

	resp := solve(t, m, Params{}, nil)

	assert.Equal(t, StatusOptimal, resp.Status)
	assert.Equal(t, int64(2), resp.Objective)
}

func TestSolve_Infeasible(t *testing.T) {
	tests := []struct {
		name  string
		build func(m *Model)
	}{
		{"编码时即矛盾", func(m *Model) {
			a, b := m.NewBoolVar("a"), m.NewBoolVar("b")
			m.AddGreaterOrEqual(Sum(a, b), 3)
			m.Minimize(Sum(a))
		}},
		{"求解时矛盾", func(m *Model) {
			a, b, c := m.NewBoolVar("a"), m.NewBoolVar("b"), m.NewBoolVar("c")
			m.AddAtMostOne(a.Lit(), b.Lit())
			m.AddAtMostOne(b.Lit(), c.Lit())
			m.AddGreaterOrEqual(Sum(a, c), 2)
			m.AddGreaterOrEqual(Sum(b), 1)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewModel("infeasible")
			tt.build(m)

			resp := solve(t, m, Params{}, nil)

			assert.Equal(t, StatusInfeasible, resp.Status)
			assert.False(t, resp.Status.HasSolution())
			assert.Equal(t, 0, resp.Solutions)
		})
	}
}

func TestSolve_Enforcement(t *testing.T) {
	m := NewModel("enforce")
	b := m.NewBoolVar("b")
	x := m.NewIntVar(0, 10, "x")
	m.AddGreaterOrEqual(NewLinearExpr().Add(x), 5).OnlyEnforceIf(b.Lit())
	m.AddLessOrEqual(NewLinearExpr().Add(x), 2)
	m.Maximize(NewLinearExpr().Add(b).Add(x))

	resp := solve(t, m, Params{}, nil)

	assert.Equal(t, StatusOptimal, resp.Status)
	assert.False(t, resp.BoolValue(b))
	assert.Equal(t, int64(2), resp.Value(x))
}

func TestSolve_NegatedEnforcement(t *testing.T) {
	m := NewModel("enforce_not")
	b := m.NewBoolVar("b")
	x := m.NewIntVar(0, 10, "x")
	m.AddEquality(NewLinearExpr().Add(x), 0).OnlyEnforceIf(b.Not())
	m.AddEquality(NewLinearExpr().Add(x), 6).OnlyEnforceIf(b.Lit())
	m.Minimize(NewLinearExpr().AddTerm(x, -1))

	resp := solve(t, m, Params{}, nil)

	assert.Equal(t, StatusOptimal, resp.Status)
	assert.True(t, resp.BoolValue(b))
	assert.Equal(t, int64(6), resp.Value(x))
	assert.Equal(t, int64(-6), resp.Objective)
}

func TestSolve_ConstantLiterals(t *testing.T) {
	m := NewModel("constants")
	x := m.NewIntVar(0, 3, "x")
	m.AddEquality(NewLinearExpr().Add(x), 3).OnlyEnforceIf(m.TrueLiteral())
	m.AddEquality(NewLinearExpr().Add(x), 0).OnlyEnforceIf(m.TrueLiteral().Not())

	resp := solve(t, m, Params{}, nil)

	require.Equal(t, StatusOptimal, resp.Status)
	assert.Equal(t, int64(3), resp.Value(x))
}

func TestSolve_NonlinearEqualities(t *testing.T) {
	m := NewModel("nonlinear")
	x := m.NewIntVar(-3, 3, "x")
	y := m.NewIntVar(4, 5, "y")
	sq := m.NewIntVar(0, 9, "sq")
	d := m.NewIntVar(-5, 1, "d")
	ab := m.NewIntVar(0, 5, "ab")
	mx := m.NewIntVar(-3, 5, "mx")
	m.AddMultiplicationEquality(sq, x, x)
	m.AddEquality(NewLinearExpr().Add(d).AddTerm(x, -1), -2)
	m.AddAbsEquality(ab, d)
	m.AddMaxEquality(mx, x, y)
	m.Minimize(Sum(sq, ab, mx))

	resp := solve(t, m, Params{}, nil)

	require.Equal(t, StatusOptimal, resp.Status)
	assert.Equal(t, int64(6), resp.Objective)
	xv := resp.Value(x)
	assert.Equal(t, xv*xv, resp.Value(sq))
	assert.Equal(t, xv-2, resp.Value(d))
	assert.Equal(t, max(xv, resp.Value(y)), resp.Value(mx))
	abs := xv - 2
	if abs < 0 {
		abs = -abs
	}
	assert.Equal(t, abs, resp.Value(ab))
}

func TestSolve_Product(t *testing.T) {
	m := NewModel("cube")
	run := m.NewIntVar(0, 5, "run")
	sq := m.NewIntVar(0, 25, "sq")
	cube := m.NewIntVar(0, 125, "cube")
	m.AddMultiplicationEquality(sq, run, run)
	m.AddMultiplicationEquality(cube, sq, run)
	m.AddGreaterOrEqual(NewLinearExpr().Add(run), 3)
	m.Minimize(NewLinearExpr().Add(cube))

	resp := solve(t, m, Params{}, nil)

	require.Equal(t, StatusOptimal, resp.Status)
	assert.Equal(t, int64(3), resp.Value(run))
	assert.Equal(t, int64(9), resp.Value(sq))
	assert.Equal(t, int64(27), resp.Objective)
}

func TestSolve_AtMostOne(t *testing.T) {
	m := NewModel("amo")
	bs := []BoolVar{m.NewBoolVar("a"), m.NewBoolVar("b"), m.NewBoolVar("c")}
	m.AddAtMostOne(bs[0].Lit(), bs[1].Lit(), bs[2].Lit())
	m.Maximize(Sum(bs...))

	resp := solve(t, m, Params{}, nil)

	assert.Equal(t, StatusOptimal, resp.Status)
	assert.Equal(t, int64(1), resp.Objective)
}

func knapsack() *Model {
	weights := []int64{3, 4, 2, 5, 1, 6}
	values := []int64{4, 5, 3, 8, 1, 9}
	m := NewModel("knapsack")
	w := NewLinearExpr()
	v := NewLinearExpr()
	for i := range weights {
		b := m.NewBoolVar(fmt.Sprintf("item_%d", i))
		w.AddTerm(b, weights[i])
		v.AddTerm(b, values[i])
	}
	m.AddLessOrEqual(w, 10)
	m.Maximize(v)
	return m
}

func TestSolve_Knapsack(t *testing.T) {
	resp := solve(t, knapsack(), Params{Workers: 4, Seed: 7}, nil)

	assert.Equal(t, StatusOptimal, resp.Status)
	assert.Equal(t, int64(15), resp.Objective)
	assert.Equal(t, int64(15), resp.BestBound)
}

func TestSolve_RelativeGapBound(t *testing.T) {
	tests := []struct {
		name    string
		model   func() *Model
		optimum int64
		maxim   bool
	}{
		{"最小化", func() *Model {
			m := NewModel("linear")
			x := m.NewIntVar(0, 10, "x")
			y := m.NewIntVar(0, 10, "y")
			m.AddGreaterOrEqual(Sum(x, y), 7)
			m.AddLessOrEqual(NewLinearExpr().Add(x), 4)
			m.Minimize(NewLinearExpr().AddTerm(x, 3).AddTerm(y, 2))
			return m
		}, 14, false},
		{"最大化", knapsack, 15, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := solve(t, tt.model(), Params{RelativeGap: 0.5}, nil)

			require.Equal(t, StatusOptimal, resp.Status)
			gap := resp.Objective - resp.BestBound
			if tt.maxim {
				gap = -gap
				assert.GreaterOrEqual(t, resp.BestBound, tt.optimum, "上界不能低于真实最优")
			} else {
				assert.LessOrEqual(t, resp.BestBound, tt.optimum, "下界不能高于真实最优")
			}
			assert.GreaterOrEqual(t, gap, int64(0))
			abs := resp.Objective
			if abs < 0 {
				abs = -abs
			}
			assert.LessOrEqual(t, float64(gap), 0.5*float64(abs))
		})
	}
}

func TestSolve_EnumerateWindow(t *testing.T) {
	tests := []struct {
		name   string
		window int64
		want   int
	}{
		{"只收集最优", 0, 1},
		{"窗口内全部", 1, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewModel("enum")
			a, b, c := m.NewBoolVar("a"), m.NewBoolVar("b"), m.NewBoolVar("c")
			m.AddEquality(Sum(a, b, c), 2)
			m.Minimize(Sum(a))

			seen := make(map[string]int)
			resp := solve(t, m, Params{Enumerate: true, PoolWindow: tt.window}, func(s *Solution) bool {
				key := fmt.Sprint(s.Value(a), s.Value(b), s.Value(c))
				seen[key]++
				return true
			})

			assert.Equal(t, StatusOptimal, resp.Status)
			assert.Equal(t, int64(0), resp.Objective)
			assert.Len(t, seen, tt.want)
			assert.Equal(t, 1, seen["0 1 1"])
			assert.Equal(t, tt.want, resp.Solutions, "每个解只回调一次")
		})
	}
}

func TestSolve_EnumerateDecisionKey(t *testing.T) {
	m := NewModel("decision")
	a, b := m.NewBoolVar("a"), m.NewBoolVar("b")
	m.NewBoolVar("free")
	m.AddEquality(Sum(a, b), 1)
	m.AddDecisionStrategy(a, b)

	calls := 0
	resp := solve(t, m, Params{Enumerate: true}, func(*Solution) bool {
		calls++
		return true
	})

	assert.Equal(t, StatusOptimal, resp.Status)
	assert.Equal(t, 2, calls, "只按分支变量区分解")
}

func TestSolve_CallbackStops(t *testing.T) {
	m := NewModel("stop")
	for i := 0; i < 4; i++ {
		m.NewBoolVar(fmt.Sprintf("b%d", i))
	}

	calls := 0
	resp := solve(t, m, Params{Enumerate: true}, func(*Solution) bool {
		calls++
		return calls < 3
	})

	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, resp.Solutions)
	assert.Equal(t, StatusFeasible, resp.Status)
}

func TestSolve_HintsFollowed(t *testing.T) {
	m := NewModel("hint")
	x := m.NewIntVar(0, 10, "x")
	b := m.NewBoolVar("b")
	m.AddHint(x, 7)
	m.AddHint(b, 1)

	resp := solve(t, m, Params{}, nil)

	assert.Equal(t, StatusOptimal, resp.Status)
	assert.Equal(t, int64(7), resp.Value(x))
	assert.True(t, resp.BoolValue(b))
}

func TestSolve_InfeasibleHintsIgnored(t *testing.T) {
	m := NewModel("bad_hint")
	x := m.NewIntVar(0, 10, "x")
	m.AddGreaterOrEqual(NewLinearExpr().Add(x), 8)
	m.AddHint(x, 3)
	m.Minimize(NewLinearExpr().Add(x))

	resp := solve(t, m, Params{}, nil)

	require.Equal(t, StatusOptimal, resp.Status)
	assert.Equal(t, int64(8), resp.Value(x))
}

func TestSolve_Deterministic(t *testing.T) {
	build := func() (*Model, []BoolVar) {
		m := NewModel("det")
		var bs []BoolVar
		obj := NewLinearExpr()
		for i := 0; i < 8; i++ {
			b := m.NewBoolVar(fmt.Sprintf("b%d", i))
			bs = append(bs, b)
			obj.AddTerm(b, int64(i%3))
		}
		m.AddEquality(Sum(bs...), 4)
		m.Minimize(obj)
		return m, bs
	}

	run := func() []int64 {
		m, bs := build()
		resp := solve(t, m, Params{Seed: 3}, nil)
		require.Equal(t, StatusOptimal, resp.Status)
		out := make([]int64, len(bs))
		for i, b := range bs {
			out[i] = resp.Value(b)
		}
		return out
	}

	assert.Equal(t, run(), run())
}

func TestSolve_InvalidModel(t *testing.T) {
	m := NewModel("invalid")
	m.NewIntVar(5, 3, "empty")

	resp, err := NewSATEngine().Solve(context.Background(), m, Params{}, nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrModelInvalid))
	assert.Equal(t, StatusModelInvalid, resp.Status)
}

func TestSolve_ContextCanceled(t *testing.T) {
	m := NewModel("cancel")
	obj := NewLinearExpr()
	for i := 0; i < 40; i++ {
		obj.AddTerm(m.NewBoolVar(fmt.Sprintf("b%d", i)), int64(i%5-2))
	}
	m.Minimize(obj)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := NewSATEngine().Solve(ctx, m, Params{Enumerate: true, PoolWindow: 1 << 20}, nil)

	require.NoError(t, err)
	assert.Equal(t, StatusUnknown, resp.Status)
	assert.Equal(t, int64(0), resp.Branches)
}

func TestUnavailable(t *testing.T) {
	_, err := Unavailable{}.Solve(context.Background(), NewModel("x"), Params{}, nil)
	assert.ErrorIs(t, err, ErrEngineUnavailable)
}
