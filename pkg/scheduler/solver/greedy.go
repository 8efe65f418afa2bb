// Package solver 提供两阶段排班求解、解池收集与回退求解
package solver

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"github.com/paiban/medsched/pkg/logger"
	"github.com/paiban/medsched/pkg/model"
	"github.com/paiban/medsched/pkg/scheduler/constraint"
	"github.com/paiban/medsched/pkg/scheduler/constraint/builtin"
)

// 贪心打分的各项代价，值越小越优先
const (
	costHardOnMet   = -1000
	costSoftOnMet   = -20
	costSoftOff     = 50
	costOverConsec  = 400
	costPerShift    = 10
	costNewCluster  = 5
	costWeekendHalf = 30
)

// GreedySolver 贪心构造初始排班，用作求解提示与回退的起点
type GreedySolver struct {
	inst   *model.Instance
	rest   *constraint.RestIndex
	log    *zerolog.Logger
	hardOn []map[int][]int
	softOn []map[int][]int
	forbid []map[int]bool
	offReq []map[int]bool
}

// NewGreedySolver 创建贪心求解器
func NewGreedySolver(inst *model.Instance) *GreedySolver {
	g := &GreedySolver{
		inst: inst,
		rest: constraint.NewRestIndex(inst),
		log:  logger.WithComponent("greedy"),
	}
	for _, prov := range inst.Providers {
		g.hardOn = append(g.hardOn, requirementShifts(inst, prov.PreferredDaysHard))
		g.softOn = append(g.softOn, requirementShifts(inst, prov.PreferredDaysSoft))
		g.forbid = append(g.forbid, daySet(builtin.DayIndexes(inst, prov.ForbiddenDaysHard)))
		g.offReq = append(g.offReq, daySet(builtin.DayIndexes(inst, prov.ForbiddenDaysSoft)))
	}
	return g
}

func requirementShifts(inst *model.Instance, prefs map[string][]string) map[int][]int {
	out := make(map[int][]int)
	for _, req := range builtin.Requirements(inst, prefs) {
		out[req.Day] = req.Shifts
	}
	return out
}

func daySet(days []int) map[int]bool {
	out := make(map[int]bool, len(days))
	for _, d := range days {
		out[d] = true
	}
	return out
}

// Name 返回求解器名称
func (g *GreedySolver) Name() string {
	return "GreedySolver"
}

// Solve 生成一份满足类型与休息要求的分配；无人可上的班次保持空缺
func (g *GreedySolver) Solve(ctx context.Context) ([]int, error) {
	inst := g.inst
	sc := constraint.NewContext(inst)

	// 可选人员少的班次先排，其次按日期和开始时间
	order := make([]int, inst.NumShifts())
	eligible := make([]int, inst.NumShifts())
	for s := range order {
		order[s] = s
		for p := range inst.Providers {
			if inst.Eligible[s][p] {
				eligible[s]++
			}
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		sa, sb := order[a], order[b]
		if eligible[sa] != eligible[sb] {
			return eligible[sa] < eligible[sb]
		}
		return inst.Shifts[sa].StartAt.Before(inst.Shifts[sb].StartAt)
	})

	filled := 0
	for _, s := range order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		best, bestCost := constraint.Unassigned, 0
		for p := range inst.Providers {
			cost, ok := g.cost(sc, s, p)
			if !ok {
				continue
			}
			if best == constraint.Unassigned || cost < bestCost {
				best, bestCost = p, cost
			}
		}
		if best != constraint.Unassigned {
			sc.Move(s, best)
			filled++
		}
	}

	g.log.Debug().Int("shifts", inst.NumShifts()).Int("filled", filled).Msg("贪心构造完成")
	return sc.Assign, nil
}

// cost 把 s 排给 p 的代价；不可排时返回 false
func (g *GreedySolver) cost(sc *constraint.Context, s, p int) (int, bool) {
	inst := g.inst
	if !g.rest.CanTake(sc, s, p) {
		return 0, false
	}
	d := inst.ShiftDay[s]
	if g.forbid[p][d] {
		return 0, false
	}
	prov := inst.Providers[p]
	if sc.Total(p) >= prov.MaxTotal(inst.NumShifts()) {
		return 0, false
	}

	cost := costPerShift * sc.Total(p)
	working := sc.Works(p, d)
	if !working {
		if shifts, ok := g.hardOn[p][d]; ok && containsInt(shifts, s) {
			cost += costHardOnMet
		}
		if g.offReq[p][d] {
			cost += costSoftOff
		}
		before := d > 0 && sc.Works(p, d-1)
		after := d+1 < inst.NumDays() && sc.Works(p, d+1)
		if !before && !after {
			cost += costNewCluster
		}
		if limit := prov.ConsecutiveCap(); limit > 0 && g.runThrough(sc, p, d) > limit {
			cost += costOverConsec
		}
		if inst.Days[d].IsWeekend && !g.weekendPartnerWorks(sc, p, d) {
			cost += costWeekendHalf
		}
	}
	if shifts, ok := g.softOn[p][d]; ok && containsInt(shifts, s) {
		cost += costSoftOnMet
	}
	return cost, true
}

// runThrough 若 p 在 d 上班，包含 d 的连续段长度
func (g *GreedySolver) runThrough(sc *constraint.Context, p, d int) int {
	n := 1
	for i := d - 1; i >= 0 && sc.Works(p, i); i-- {
		n++
	}
	for i := d + 1; i < g.inst.NumDays() && sc.Works(p, i); i++ {
		n++
	}
	return n
}

func (g *GreedySolver) weekendPartnerWorks(sc *constraint.Context, p, d int) bool {
	for _, pair := range g.inst.WeekendPairs() {
		switch d {
		case pair[0]:
			return sc.Works(p, pair[1])
		case pair[1]:
			return sc.Works(p, pair[0])
		}
	}
	return true
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
