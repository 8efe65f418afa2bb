package optimizer

import (
	"math/rand"

	"github.com/paiban/medsched/pkg/model"
	"github.com/paiban/medsched/pkg/scheduler/constraint"
)

// MoveType 邻域移动类型
type MoveType int

const (
	MoveSwap     MoveType = iota // 交换两个班次的人员
	MoveRelocate                 // 把班次改派给另一名人员
	MoveInsert                   // 填补空缺班次
	MoveRemove                   // 撤下一个班次
	MoveChain                    // 连续改派
)

// String 移动类型名
func (t MoveType) String() string {
	switch t {
	case MoveSwap:
		return "swap"
	case MoveRelocate:
		return "relocate"
	case MoveInsert:
		return "insert"
	case MoveRemove:
		return "remove"
	case MoveChain:
		return "chain"
	}
	return "unknown"
}

type change struct {
	shift    int
	from, to int
}

// Move 邻域移动，由若干改派组成
type Move struct {
	Type    MoveType
	changes []change
}

// Apply 在上下文上执行移动
func (m *Move) Apply(ctx *constraint.Context) {
	for _, c := range m.changes {
		ctx.Move(c.shift, c.to)
	}
}

// Undo 撤销移动
func (m *Move) Undo(ctx *constraint.Context) {
	for i := len(m.changes) - 1; i >= 0; i-- {
		c := m.changes[i]
		ctx.Move(c.shift, c.from)
	}
}

type weightedMove struct {
	typ    MoveType
	weight float64
}

// NeighborhoodGenerator 邻域生成器；生成的移动保持类型与休息要求
type NeighborhoodGenerator struct {
	inst        *model.Instance
	rest        *constraint.RestIndex
	rng         *rand.Rand
	moveWeights []weightedMove
}

// NewNeighborhoodGenerator 创建邻域生成器
func NewNeighborhoodGenerator(inst *model.Instance, rest *constraint.RestIndex, seed int64) *NeighborhoodGenerator {
	return &NeighborhoodGenerator{
		inst: inst,
		rest: rest,
		rng:  rand.New(rand.NewSource(seed)),
		moveWeights: []weightedMove{
			{MoveSwap, 0.30},
			{MoveRelocate, 0.35},
			{MoveInsert, 0.20},
			{MoveRemove, 0.05},
			{MoveChain, 0.10},
		},
	}
}

// SetMoveWeights 设置移动类型权重
func (n *NeighborhoodGenerator) SetMoveWeights(weights map[MoveType]float64) {
	n.moveWeights = n.moveWeights[:0]
	for _, t := range []MoveType{MoveSwap, MoveRelocate, MoveInsert, MoveRemove, MoveChain} {
		if w, ok := weights[t]; ok && w > 0 {
			n.moveWeights = append(n.moveWeights, weightedMove{t, w})
		}
	}
}

// selectMoveType 按权重选择移动类型
func (n *NeighborhoodGenerator) selectMoveType() MoveType {
	total := 0.0
	for _, m := range n.moveWeights {
		total += m.weight
	}
	r := n.rng.Float64() * total
	for _, m := range n.moveWeights {
		r -= m.weight
		if r < 0 {
			return m.typ
		}
	}
	return MoveRelocate
}

// Generate 生成一个可行移动；找不到时返回 nil，上下文不变
func (n *NeighborhoodGenerator) Generate(ctx *constraint.Context) *Move {
	switch t := n.selectMoveType(); t {
	case MoveSwap:
		return n.swap(ctx)
	case MoveInsert:
		return n.insert(ctx)
	case MoveRemove:
		return n.remove(ctx)
	case MoveChain:
		return n.chain(ctx)
	default:
		return n.relocate(ctx)
	}
}

func (n *NeighborhoodGenerator) pickShift(ctx *constraint.Context, assigned bool) int {
	var candidates []int
	for s, p := range ctx.Assign {
		if (p != constraint.Unassigned) == assigned {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return -1
	}
	return candidates[n.rng.Intn(len(candidates))]
}

func (n *NeighborhoodGenerator) pickProvider(ctx *constraint.Context, s, exclude int) int {
	var candidates []int
	for p := range n.inst.Providers {
		if p != exclude && n.rest.CanTake(ctx, s, p) {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return constraint.Unassigned
	}
	return candidates[n.rng.Intn(len(candidates))]
}

// relocate 把已排班次改派给另一名可上的人员
func (n *NeighborhoodGenerator) relocate(ctx *constraint.Context) *Move {
	s := n.pickShift(ctx, true)
	if s < 0 {
		return n.insert(ctx)
	}
	from := ctx.Assign[s]
	to := n.pickProvider(ctx, s, from)
	if to == constraint.Unassigned {
		return nil
	}
	return &Move{Type: MoveRelocate, changes: []change{{s, from, to}}}
}

// insert 填补空缺
func (n *NeighborhoodGenerator) insert(ctx *constraint.Context) *Move {
	s := n.pickShift(ctx, false)
	if s < 0 {
		return nil
	}
	to := n.pickProvider(ctx, s, constraint.Unassigned)
	if to == constraint.Unassigned {
		return nil
	}
	return &Move{Type: MoveInsert, changes: []change{{s, constraint.Unassigned, to}}}
}

// remove 撤下一个班次
func (n *NeighborhoodGenerator) remove(ctx *constraint.Context) *Move {
	s := n.pickShift(ctx, true)
	if s < 0 {
		return nil
	}
	return &Move{Type: MoveRemove, changes: []change{{s, ctx.Assign[s], constraint.Unassigned}}}
}

// swap 交换两个班次的人员
func (n *NeighborhoodGenerator) swap(ctx *constraint.Context) *Move {
	s1 := n.pickShift(ctx, true)
	if s1 < 0 {
		return nil
	}
	s2 := n.pickShift(ctx, true)
	p1, p2 := ctx.Assign[s1], ctx.Assign[s2]
	if s2 < 0 || p1 == p2 {
		return nil
	}
	if !n.inst.Eligible[s1][p2] || !n.inst.Eligible[s2][p1] {
		return nil
	}
	m := &Move{Type: MoveSwap, changes: []change{{s1, p1, constraint.Unassigned}, {s2, p2, p1}, {s1, constraint.Unassigned, p2}}}
	m.Apply(ctx)
	ok := !n.rest.Blocked(ctx, s1, p2) && !n.rest.Blocked(ctx, s2, p1)
	m.Undo(ctx)
	if !ok {
		return nil
	}
	return m
}

// chain 2 到 3 次连续改派，每一步都保持可行
func (n *NeighborhoodGenerator) chain(ctx *constraint.Context) *Move {
	steps := 2 + n.rng.Intn(2)
	m := &Move{Type: MoveChain}
	for i := 0; i < steps; i++ {
		step := n.relocate(ctx)
		if step == nil {
			break
		}
		step.Apply(ctx)
		m.changes = append(m.changes, step.changes...)
	}
	m.Undo(ctx)
	if len(m.changes) == 0 {
		return nil
	}
	return m
}
