package builtin

import (
	"fmt"

	"github.com/paiban/medsched/pkg/scheduler/constraint"
)

// WeekendSplitConstraint 周末被拆开上班
type WeekendSplitConstraint struct {
	*BaseConstraint
}

// NewWeekendSplitConstraint 创建周末完整性约束
func NewWeekendSplitConstraint(weight int64) *WeekendSplitConstraint {
	return &WeekendSplitConstraint{
		BaseConstraint: NewBaseConstraint("周末完整", constraint.TypeWeekendSplit, constraint.CategorySoft, weight),
	}
}

// Evaluate Σ_p Σ_相邻周末对 |y[d1] − y[d2]|
func (c *WeekendSplitConstraint) Evaluate(ctx *constraint.Context) (int64, []constraint.ViolationDetail) {
	inst := ctx.Instance
	pairs := inst.WeekendPairs()
	var amount int64
	var details []constraint.ViolationDetail
	for p, prov := range inst.Providers {
		for _, pair := range pairs {
			if ctx.Works(p, pair[0]) == ctx.Works(p, pair[1]) {
				continue
			}
			amount++
			details = append(details, c.CreateViolation(prov.Name, inst.Days[pair[0]].Date,
				fmt.Sprintf("人员 %s 只上了 %s/%s 周末中的一天", prov.Name, inst.Days[pair[0]].Date, inst.Days[pair[1]].Date), 1))
		}
	}
	return amount, details
}

// WeekendRangeConstraint 周末班次数区间
type WeekendRangeConstraint struct {
	*BaseConstraint
}

// NewWeekendRangeConstraint 创建周末区间约束
func NewWeekendRangeConstraint(weight int64) *WeekendRangeConstraint {
	return &WeekendRangeConstraint{
		BaseConstraint: NewBaseConstraint("周末班次区间", constraint.TypeWeekendRange, constraint.CategoryHard, weight),
	}
}

// Evaluate 周末班次数的不足量与超出量之和
func (c *WeekendRangeConstraint) Evaluate(ctx *constraint.Context) (int64, []constraint.ViolationDetail) {
	var amount int64
	var details []constraint.ViolationDetail
	for p, prov := range ctx.Instance.Providers {
		r := prov.Limits.WeekendRange
		if r == nil {
			continue
		}
		n := ctx.WeekendCount(p)
		gap := rangeGap(n, r[0], r[1])
		if gap == 0 {
			continue
		}
		amount += gap
		details = append(details, c.CreateViolation(prov.Name, "",
			fmt.Sprintf("人员 %s 周末 %d 个班次，要求 [%d, %d]", prov.Name, n, r[0], r[1]), gap))
	}
	return amount, details
}

// rangeGap 计数落在 [lo, hi] 之外的距离
func rangeGap(n, lo, hi int) int64 {
	switch {
	case n < lo:
		return int64(lo - n)
	case n > hi:
		return int64(n - hi)
	}
	return 0
}
