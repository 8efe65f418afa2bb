// Package builder 把排班实例翻译为整数约束模型
//
// 模型由分配变量 x[p,s]、日上班变量 y[p,d]、连续天数 run[p,d]、
// 各硬约束族的松弛变量以及两条目标表达式组成：
// HardSlackSum 在第一阶段最小化，SoftPenaltySum 在第二阶段最小化。
// 所有辅助变量在 x 固定后都由传播唯一确定，口径与 constraint 包的评估器一致。
package builder

import (
	"fmt"

	"github.com/paiban/medsched/pkg/cpsat"
	apperrors "github.com/paiban/medsched/pkg/errors"
	"github.com/paiban/medsched/pkg/model"
	"github.com/paiban/medsched/pkg/scheduler/constraint"
	"github.com/paiban/medsched/pkg/scheduler/constraint/builtin"
)

// Arena 稠密的分配变量表，按班次优先（s*P+p）排列；不允许的组合只占哨兵位
type Arena struct {
	nProviders int
	vars       []cpsat.BoolVar
	ok         []bool
}

// Pos 组合 (s, p) 在位向量中的位置
func (a *Arena) Pos(s, p int) int { return s*a.nProviders + p }

// At 返回 x[p,s]；类型不允许时第二个返回值为 false
func (a *Arena) At(s, p int) (cpsat.BoolVar, bool) {
	i := a.Pos(s, p)
	return a.vars[i], a.ok[i]
}

// Len 位向量长度 |shifts|·|providers|
func (a *Arena) Len() int { return len(a.ok) }

// Count 实际创建的分配变量数
func (a *Arena) Count() int {
	n := 0
	for _, ok := range a.ok {
		if ok {
			n++
		}
	}
	return n
}

// Vars 全部分配变量，按班次优先顺序
func (a *Arena) Vars() []cpsat.BoolVar {
	out := make([]cpsat.BoolVar, 0, len(a.vars))
	for i, ok := range a.ok {
		if ok {
			out = append(out, a.vars[i])
		}
	}
	return out
}

// SlackFamily 一个硬约束族的松弛变量
type SlackFamily struct {
	Type   constraint.Type
	Weight int64
	Vars   []cpsat.IntVar
}

// Stats 建模规模
type Stats struct {
	Variables   int `json:"variables"`
	Constraints int `json:"constraints"`
	AssignVars  int `json:"assign_vars"`
	RestPairs   int `json:"rest_pairs"`
}

// Built 建模结果
type Built struct {
	Model   *cpsat.Model
	Inst    *model.Instance
	Weights model.Weights

	X *Arena
	// Y[p][d] 人员当天是否上班
	Y [][]cpsat.BoolVar

	Slacks []*SlackFamily

	HardSlackSum   *cpsat.LinearExpr
	SoftPenaltySum *cpsat.LinearExpr

	Stats Stats
}

// build 构建过程中的状态
type build struct {
	m    *cpsat.Model
	inst *model.Instance
	w    model.Weights
	out  *Built

	zero cpsat.IntVar
	// elig[p] 人员可上的班次
	elig [][]int
	runs [][]cpsat.IntVar
}

// Build 由实例构建约束模型
func Build(inst *model.Instance, w model.Weights) (*Built, error) {
	if inst == nil {
		return nil, apperrors.ModelConstruction("实例为空")
	}
	m := cpsat.NewModel("medsched")
	b := &build{
		m:    m,
		inst: inst,
		w:    w,
		out: &Built{
			Model:          m,
			Inst:           inst,
			Weights:        w,
			HardSlackSum:   cpsat.NewLinearExpr(),
			SoftPenaltySum: cpsat.NewLinearExpr(),
		},
		zero: m.NewConstant(0),
		runs: make([][]cpsat.IntVar, inst.NumProviders()),
	}

	b.assignVars()
	b.coverage()
	if err := b.dailyWork(); err != nil {
		return nil, err
	}
	b.rest()
	b.cantWork()
	b.consecutive()
	b.totals()
	b.hardOn()
	if w.TypeRange > 0 {
		b.typeRanges()
	}
	if w.WeekendRange > 0 {
		b.weekendRanges()
	}

	for _, f := range b.out.Slacks {
		for _, v := range f.Vars {
			b.out.HardSlackSum.AddTerm(v, f.Weight)
		}
	}

	b.clusters()
	b.clusterSizes()
	b.fairness()
	b.weekendSplits()
	b.requestedOff()
	b.daysWanted()

	m.AddDecisionStrategy(varsOf(b.out.X.Vars())...)

	if err := m.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeModelConstruction, "模型校验失败")
	}
	b.out.Stats.Variables = m.NumVariables()
	b.out.Stats.Constraints = m.NumConstraints()
	b.out.Stats.AssignVars = b.out.X.Count()
	return b.out, nil
}

func (b *build) addSlack(t constraint.Type, weight int64, vars ...cpsat.IntVar) {
	if len(vars) == 0 {
		return
	}
	for _, f := range b.out.Slacks {
		if f.Type == t {
			f.Vars = append(f.Vars, vars...)
			return
		}
	}
	b.out.Slacks = append(b.out.Slacks, &SlackFamily{Type: t, Weight: weight, Vars: vars})
}

// posPart 创建 max(expr, 0)，expr 的取值范围为 [lo, hi]
func (b *build) posPart(name string, expr *cpsat.LinearExpr, lo, hi int64) cpsat.IntVar {
	diff := b.m.NewIntVar(lo, hi, name+"_diff")
	b.m.AddEquality(expr.Clone().AddTerm(diff, -1), 0)
	out := b.m.NewIntVar(0, max(hi, 0), name)
	b.m.AddMaxEquality(out, diff, b.zero)
	return out
}

// square 创建 v²，v ∈ [0, ub]
func (b *build) square(name string, v cpsat.IntVar, ub int64) cpsat.IntVar {
	sq := b.m.NewIntVar(0, ub*ub, name)
	b.m.AddMultiplicationEquality(sq, v, v)
	return sq
}

// xsum 人员在给定班次上的分配变量之和
func (b *build) xsum(p int, shifts []int) (*cpsat.LinearExpr, int) {
	e := cpsat.NewLinearExpr()
	n := 0
	for _, s := range shifts {
		if x, ok := b.out.X.At(s, p); ok {
			e.Add(x)
			n++
		}
	}
	return e, n
}

// eligibleOf 给定班次中人员可上的部分
func (b *build) eligibleOf(p int, shifts []int) []cpsat.BoolVar {
	var out []cpsat.BoolVar
	for _, s := range shifts {
		if x, ok := b.out.X.At(s, p); ok {
			out = append(out, x)
		}
	}
	return out
}

func (b *build) assignVars() {
	inst := b.inst
	nS, nP := inst.NumShifts(), inst.NumProviders()
	a := &Arena{
		nProviders: nP,
		vars:       make([]cpsat.BoolVar, nS*nP),
		ok:         make([]bool, nS*nP),
	}
	b.elig = make([][]int, nP)
	for s := 0; s < nS; s++ {
		for p := 0; p < nP; p++ {
			if !inst.Eligible[s][p] {
				continue
			}
			i := a.Pos(s, p)
			a.vars[i] = b.m.NewBoolVar(fmt.Sprintf("x_%d_%d", p, s))
			a.ok[i] = true
			b.elig[p] = append(b.elig[p], s)
		}
	}
	b.out.X = a
}

// coverage Σ_p x[p,s] + unfilled[s] == 1
func (b *build) coverage() {
	var slacks []cpsat.IntVar
	for s := range b.inst.Shifts {
		u := b.m.NewBoolVar(fmt.Sprintf("unfilled_%d", s))
		e := cpsat.NewLinearExpr().Add(u)
		for p := range b.inst.Providers {
			if x, ok := b.out.X.At(s, p); ok {
				e.Add(x)
			}
		}
		b.m.AddEquality(e, 1).WithName("coverage")
		slacks = append(slacks, u.IntVar)
	}
	b.addSlack(constraint.TypeUnfilled, b.w.Unfilled, slacks...)
}

// dailyWork y[p,d] ↔ 当天至少一个班次
func (b *build) dailyWork() error {
	inst := b.inst
	b.out.Y = make([][]cpsat.BoolVar, inst.NumProviders())
	for p := range inst.Providers {
		b.out.Y[p] = make([]cpsat.BoolVar, inst.NumDays())
		for d := range inst.Days {
			if d >= len(inst.DayShifts) {
				return apperrors.ModelConstruction("日索引 %d 越界", d)
			}
			y := b.m.NewBoolVar(fmt.Sprintf("y_%d_%d", p, d))
			b.out.Y[p][d] = y
			xs := b.eligibleOf(p, inst.DayShifts[d])
			if len(xs) == 0 {
				b.m.AddEquality(cpsat.Sum(y), 0)
				continue
			}
			for _, x := range xs {
				b.m.AddLessOrEqual(cpsat.Sum(x).AddTerm(y, -1), 0)
			}
			b.m.AddGreaterOrEqual(cpsat.Sum(xs...).AddTerm(y, -1), 0)
		}
	}
	return nil
}

// rest 重叠或间隔不足的班次对同一人至多上一个
func (b *build) rest() {
	for _, pair := range b.inst.ConflictingPairs() {
		for p := range b.inst.Providers {
			xa, okA := b.out.X.At(pair[0], p)
			xb, okB := b.out.X.At(pair[1], p)
			if !okA || !okB {
				continue
			}
			b.m.AddAtMostOne(xa.Lit(), xb.Lit()).WithName("rest")
			b.out.Stats.RestPairs++
		}
	}
}

// cantWork 硬性休假日上的班次数
func (b *build) cantWork() {
	for p, prov := range b.inst.Providers {
		var shifts []int
		for _, d := range builtin.DayIndexes(b.inst, prov.ForbiddenDaysHard) {
			shifts = append(shifts, b.inst.DayShifts[d]...)
		}
		e, n := b.xsum(p, shifts)
		if n == 0 {
			continue
		}
		cw := b.m.NewIntVar(0, int64(n), fmt.Sprintf("cant_work_%d", p))
		b.m.AddEquality(e.AddTerm(cw, -1), 0)
		b.addSlack(constraint.TypeCantWork, b.w.CantWork, cw)
	}
}

// runLengths run[p,d]：y=0 时为 0，段首为 1，否则前一天加 1
func (b *build) runLengths(p int) []cpsat.IntVar {
	if b.runs[p] != nil {
		return b.runs[p]
	}
	y := b.out.Y[p]
	runs := make([]cpsat.IntVar, len(y))
	for d := range y {
		r := b.m.NewIntVar(0, int64(d+1), fmt.Sprintf("run_%d_%d", p, d))
		runs[d] = r
		if d == 0 {
			b.m.AddEquality(cpsat.Sum(r).AddTerm(y[0], -1), 0)
			continue
		}
		b.m.AddEquality(cpsat.Sum(r), 0).OnlyEnforceIf(y[d].Not())
		b.m.AddEquality(cpsat.Sum(r), 1).OnlyEnforceIf(y[d].Lit(), y[d-1].Not())
		b.m.AddEquality(cpsat.Sum(r).AddTerm(runs[d-1], -1), 1).OnlyEnforceIf(y[d].Lit(), y[d-1].Lit())
	}
	b.runs[p] = runs
	return runs
}

// consecutive consec[p] = max(max_cluster − cap, 0)，仅 0 < cap < |days|
func (b *build) consecutive() {
	nD := b.inst.NumDays()
	for p, prov := range b.inst.Providers {
		limit := prov.ConsecutiveCap()
		if limit <= 0 || limit >= nD {
			continue
		}
		runs := b.runLengths(p)
		mc := b.m.NewIntVar(0, int64(nD), fmt.Sprintf("max_cluster_%d", p))
		b.m.AddMaxEquality(mc, varsOf(runs)...)
		over := b.posPart(fmt.Sprintf("consec_%d", p), cpsat.Sum(mc).AddConstant(-int64(limit)), -int64(limit), int64(nD-limit))
		b.addSlack(constraint.TypeConsecutive, b.w.Consec, over)
	}
}

// totals 总班次数上下限
func (b *build) totals() {
	nS := b.inst.NumShifts()
	for p, prov := range b.inst.Providers {
		total, n := b.xsum(p, b.elig[p])
		if lo := int64(prov.MinTotal()); lo > 0 {
			less := b.posPart(fmt.Sprintf("shift_less_%d", p),
				cpsat.NewLinearExpr().AddExpr(total, -1).AddConstant(lo), lo-int64(n), lo)
			b.addSlack(constraint.TypeShiftLess, b.w.ShiftLess, less)
		}
		if hi := int64(prov.MaxTotal(nS)); hi < int64(n) {
			more := b.posPart(fmt.Sprintf("shift_more_%d", p),
				total.Clone().AddConstant(-hi), -hi, int64(n)-hi)
			b.addSlack(constraint.TypeShiftMore, b.w.ShiftMore, more)
		}
	}
}

// anyOf 创建 sel ↔ OR(xs)
func (b *build) anyOf(name string, xs []cpsat.BoolVar) cpsat.BoolVar {
	sel := b.m.NewBoolVar(name)
	b.m.AddLessOrEqual(cpsat.Sum(sel).AddExpr(cpsat.Sum(xs...), -1), 0)
	for _, x := range xs {
		b.m.AddLessOrEqual(cpsat.Sum(x).AddTerm(sel, -1), 0)
	}
	return sel
}

// hardOn 必排日未满足数；当天无可上的匹配班次时恒为未满足
func (b *build) hardOn() {
	for p, prov := range b.inst.Providers {
		reqs := builtin.Requirements(b.inst, prov.PreferredDaysHard)
		if len(reqs) == 0 {
			continue
		}
		var missConst int64
		var sels []cpsat.BoolVar
		for _, req := range reqs {
			xs := b.eligibleOf(p, req.Shifts)
			if len(xs) == 0 {
				missConst++
				continue
			}
			sels = append(sels, b.anyOf(fmt.Sprintf("hard_on_sel_%d_%d", p, req.Day), xs))
		}
		h := b.m.NewIntVar(0, int64(len(reqs)), fmt.Sprintf("hard_on_%d", p))
		// h + Σ sel == missConst + |sels|
		b.m.AddEquality(cpsat.Sum(h).AddExpr(cpsat.Sum(sels...), 1), missConst+int64(len(sels)))
		b.addSlack(constraint.TypeHardOn, b.w.CantWork, h)
	}
}

// rangeSlacks 计数落在 [lo, hi] 之外的不足与超出松弛
func (b *build) rangeSlacks(name string, cnt *cpsat.LinearExpr, n int, lo, hi int) []cpsat.IntVar {
	var out []cpsat.IntVar
	if lo > 0 {
		out = append(out, b.posPart(name+"_short",
			cpsat.NewLinearExpr().AddExpr(cnt, -1).AddConstant(int64(lo)), int64(lo-n), int64(lo)))
	}
	if hi < n {
		out = append(out, b.posPart(name+"_excess",
			cnt.Clone().AddConstant(-int64(hi)), -int64(hi), int64(n-hi)))
	}
	return out
}

func (b *build) typeRanges() {
	for p, prov := range b.inst.Providers {
		for _, typ := range builtin.SortedTypes(prov.Limits.TypeRanges) {
			r := prov.Limits.TypeRanges[typ]
			var shifts []int
			for _, s := range b.elig[p] {
				if b.inst.Shifts[s].Type == typ {
					shifts = append(shifts, s)
				}
			}
			cnt, n := b.xsum(p, shifts)
			b.addSlack(constraint.TypeTypeRange, b.w.TypeRange,
				b.rangeSlacks(fmt.Sprintf("type_range_%d_%s", p, typ), cnt, n, r[0], r[1])...)
		}
	}
}

func (b *build) weekendRanges() {
	for p, prov := range b.inst.Providers {
		r := prov.Limits.WeekendRange
		if r == nil {
			continue
		}
		var shifts []int
		for _, s := range b.elig[p] {
			if b.inst.Days[b.inst.ShiftDay[s]].IsWeekend {
				shifts = append(shifts, s)
			}
		}
		cnt, n := b.xsum(p, shifts)
		b.addSlack(constraint.TypeWeekendRange, b.w.WeekendRange,
			b.rangeSlacks(fmt.Sprintf("weekend_range_%d", p), cnt, n, r[0], r[1])...)
	}
}

func varsOf[T cpsat.Var](vs []T) []cpsat.Var {
	out := make([]cpsat.Var, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}
