package builder

import (
	"github.com/paiban/medsched/pkg/cpsat"
	"github.com/paiban/medsched/pkg/scheduler/constraint"
)

// ValueFunc 读取变量取值，可由 cpsat.Solution.Value 或 cpsat.Response.Value 提供
type ValueFunc func(v cpsat.Var) int64

// Assignment 从解中读出分配向量，assign[s] 为人员索引或 constraint.Unassigned
func (b *Built) Assignment(value ValueFunc) []int {
	nS, nP := b.Inst.NumShifts(), b.Inst.NumProviders()
	assign := make([]int, nS)
	for s := 0; s < nS; s++ {
		assign[s] = constraint.Unassigned
		for p := 0; p < nP; p++ {
			if x, ok := b.X.At(s, p); ok && value(x) != 0 {
				assign[s] = p
				break
			}
		}
	}
	return assign
}

// Bits 分配向量对应的位向量，位置 s*P+p
func (b *Built) Bits(assign []int) []bool {
	bits := make([]bool, b.X.Len())
	for s, p := range assign {
		if p != constraint.Unassigned {
			bits[b.X.Pos(s, p)] = true
		}
	}
	return bits
}

// SlackValues 各硬约束族松弛变量的取值
func (b *Built) SlackValues(value ValueFunc) map[constraint.Type][]int64 {
	out := make(map[constraint.Type][]int64, len(b.Slacks))
	for _, f := range b.Slacks {
		vals := make([]int64, len(f.Vars))
		for i, v := range f.Vars {
			vals[i] = value(v)
		}
		out[f.Type] = vals
	}
	return out
}

// Freeze 把每个松弛变量固定为给定取值，返回新增约束数
func (b *Built) Freeze(values map[constraint.Type][]int64) int {
	n := 0
	for _, f := range b.Slacks {
		vals, ok := values[f.Type]
		if !ok {
			continue
		}
		for i, v := range f.Vars {
			if i >= len(vals) {
				break
			}
			b.Model.AddEquality(cpsat.Sum(v), vals[i]).WithName("freeze_" + string(f.Type))
			n++
		}
	}
	return n
}

// SetHints 以分配向量提示 x 与空缺变量；空向量清空提示
func (b *Built) SetHints(assign []int) {
	b.Model.ClearHints()
	if len(assign) != b.Inst.NumShifts() {
		return
	}
	for s, q := range assign {
		for p := range b.Inst.Providers {
			x, ok := b.X.At(s, p)
			if !ok {
				continue
			}
			var v int64
			if q == p {
				v = 1
			}
			b.Model.AddHint(x, v)
		}
	}
}

// Combined 退化运行的单目标 scale·HardSlackSum + SoftPenaltySum
func (b *Built) Combined(scale int64) *cpsat.LinearExpr {
	return cpsat.NewLinearExpr().AddExpr(b.HardSlackSum, scale).AddExpr(b.SoftPenaltySum, 1)
}
