package builder

import (
	"fmt"

	"github.com/paiban/medsched/pkg/cpsat"
	"github.com/paiban/medsched/pkg/scheduler/constraint/builtin"
)

// clusters cluster·Σ_p cc[p]²，cc 为工作段的段首数
func (b *build) clusters() {
	nD := b.inst.NumDays()
	if b.w.Cluster <= 0 || nD == 0 {
		return
	}
	for p := range b.inst.Providers {
		y := b.out.Y[p]
		starts := []cpsat.BoolVar{y[0]}
		for d := 1; d < nD; d++ {
			st := b.m.NewBoolVar(fmt.Sprintf("start_%d_%d", p, d))
			b.m.AddLessOrEqual(cpsat.Sum(st).AddTerm(y[d], -1), 0)
			b.m.AddLessOrEqual(cpsat.Sum(st, y[d-1]), 1)
			b.m.AddGreaterOrEqual(cpsat.Sum(st).AddTerm(y[d], -1).AddTerm(y[d-1], 1), 0)
			starts = append(starts, st)
		}
		ub := int64((nD + 1) / 2)
		cc := b.m.NewIntVar(0, ub, fmt.Sprintf("clusters_%d", p))
		b.m.AddEquality(cpsat.Sum(starts...).AddTerm(cc, -1), 0)
		sq := b.square(fmt.Sprintf("clusters_sq_%d", p), cc, ub)
		b.out.SoftPenaltySum.AddTerm(sq, b.w.Cluster)
	}
}

// clusterSizes cluster_size·Σ 段长³，段长取段尾那天的 run
func (b *build) clusterSizes() {
	if b.w.ClusterSize <= 0 {
		return
	}
	nD := b.inst.NumDays()
	for p := range b.inst.Providers {
		y := b.out.Y[p]
		runs := b.runLengths(p)
		for d := 0; d < nD; d++ {
			end := y[d].Lit()
			if d+1 < nD {
				e := b.m.NewBoolVar(fmt.Sprintf("end_%d_%d", p, d))
				b.m.AddLessOrEqual(cpsat.Sum(e).AddTerm(y[d], -1), 0)
				b.m.AddLessOrEqual(cpsat.Sum(e, y[d+1]), 1)
				b.m.AddGreaterOrEqual(cpsat.Sum(e).AddTerm(y[d], -1).AddTerm(y[d+1], 1), 0)
				end = e.Lit()
			}
			ub := int64(d + 1)
			sq := b.square(fmt.Sprintf("run_sq_%d_%d", p, d), runs[d], ub)
			cube := b.m.NewIntVar(0, ub*ub*ub, fmt.Sprintf("run_cube_%d_%d", p, d))
			b.m.AddMultiplicationEquality(cube, sq, runs[d])
			contrib := b.m.NewIntVar(0, ub*ub*ub, fmt.Sprintf("cluster_size_%d_%d", p, d))
			b.m.AddEquality(cpsat.Sum(contrib).AddTerm(cube, -1), 0).OnlyEnforceIf(end)
			b.m.AddEquality(cpsat.Sum(contrib), 0).OnlyEnforceIf(end.Not())
			b.out.SoftPenaltySum.AddTerm(contrib, b.w.ClusterSize)
		}
	}
}

// fairness unfair_number·Σ_p (less_f² + more_f²)，公平区间 [⌊n/m⌋, ⌈n/m⌉]
func (b *build) fairness() {
	nP := b.inst.NumProviders()
	if b.w.Unfair <= 0 || nP == 0 {
		return
	}
	nS := b.inst.NumShifts()
	lo := int64(nS / nP)
	hi := lo
	if nS%nP != 0 {
		hi++
	}
	for p := range b.inst.Providers {
		total, n := b.xsum(p, b.elig[p])
		if lo > 0 {
			less := b.posPart(fmt.Sprintf("unfair_less_%d", p),
				cpsat.NewLinearExpr().AddExpr(total, -1).AddConstant(lo), lo-int64(n), lo)
			b.out.SoftPenaltySum.AddTerm(b.square(fmt.Sprintf("unfair_less_sq_%d", p), less, lo), b.w.Unfair)
		}
		if hi < int64(n) {
			ub := int64(n) - hi
			more := b.posPart(fmt.Sprintf("unfair_more_%d", p), total.Clone().AddConstant(-hi), -hi, ub)
			b.out.SoftPenaltySum.AddTerm(b.square(fmt.Sprintf("unfair_more_sq_%d", p), more, ub), b.w.Unfair)
		}
	}
}

// weekendSplits cluster_weekend_start·Σ |y[d1] − y[d2]|，相邻两天都在周末集合中
func (b *build) weekendSplits() {
	if b.w.WeekendSplit <= 0 {
		return
	}
	pairs := b.inst.WeekendPairs()
	for p := range b.inst.Providers {
		y := b.out.Y[p]
		for _, pair := range pairs {
			diff := b.m.NewIntVar(-1, 1, fmt.Sprintf("weekend_diff_%d_%d", p, pair[0]))
			b.m.AddEquality(cpsat.Sum(y[pair[0]]).AddTerm(y[pair[1]], -1).AddTerm(diff, -1), 0)
			split := b.m.NewIntVar(0, 1, fmt.Sprintf("weekend_split_%d_%d", p, pair[0]))
			b.m.AddAbsEquality(split, diff)
			b.out.SoftPenaltySum.AddTerm(split, b.w.WeekendSplit)
		}
	}
}

// requestedOff requested_off·Σ 请求休息日的 y
func (b *build) requestedOff() {
	if b.w.SoftOff <= 0 {
		return
	}
	for p, prov := range b.inst.Providers {
		for _, d := range builtin.DayIndexes(b.inst, prov.ForbiddenDaysSoft) {
			b.out.SoftPenaltySum.AddTerm(b.out.Y[p][d], b.w.SoftOff)
		}
	}
}

// daysWanted days_wanted_not_met·Σ 偏好日未满足；当天无匹配班次的条目跳过
func (b *build) daysWanted() {
	if b.w.SoftOn <= 0 {
		return
	}
	for p, prov := range b.inst.Providers {
		for _, req := range builtin.Requirements(b.inst, prov.PreferredDaysSoft) {
			if len(req.Shifts) == 0 {
				continue
			}
			xs := b.eligibleOf(p, req.Shifts)
			if len(xs) == 0 {
				b.out.SoftPenaltySum.AddConstant(b.w.SoftOn)
				continue
			}
			sel := b.anyOf(fmt.Sprintf("soft_on_sel_%d_%d", p, req.Day), xs)
			b.out.SoftPenaltySum.AddConstant(b.w.SoftOn).AddTerm(sel, -b.w.SoftOn)
		}
	}
}
