package constraint

import (
	"github.com/paiban/medsched/pkg/model"
)

// RestIndex 班次之间的互斥关系（时间重叠或休息不足）
type RestIndex struct {
	inst      *model.Instance
	conflicts [][]int
}

// NewRestIndex 按实例的最短休息时间建立互斥索引
func NewRestIndex(inst *model.Instance) *RestIndex {
	idx := &RestIndex{
		inst:      inst,
		conflicts: make([][]int, inst.NumShifts()),
	}
	for _, pair := range inst.ConflictingPairs() {
		a, b := pair[0], pair[1]
		idx.conflicts[a] = append(idx.conflicts[a], b)
		idx.conflicts[b] = append(idx.conflicts[b], a)
	}
	return idx
}

// Conflicts 与班次 s 互斥的班次
func (r *RestIndex) Conflicts(s int) []int { return r.conflicts[s] }

// Blocked p 已经上了与 s 互斥的班次（s 自身除外）
func (r *RestIndex) Blocked(ctx *Context, s, p int) bool {
	for _, t := range r.conflicts[s] {
		if ctx.Assign[t] == p {
			return true
		}
	}
	return false
}

// CanTake p 的类型允许上 s 且不与已有班次互斥
func (r *RestIndex) CanTake(ctx *Context, s, p int) bool {
	return r.inst.Eligible[s][p] && !r.Blocked(ctx, s, p)
}

// Feasible 整份分配满足类型与休息要求
func (r *RestIndex) Feasible(ctx *Context) bool {
	for s, p := range ctx.Assign {
		if p == Unassigned {
			continue
		}
		if !r.CanTake(ctx, s, p) {
			return false
		}
	}
	return true
}
