package builtin

import (
	"fmt"

	"github.com/paiban/medsched/pkg/scheduler/constraint"
)

// CantWorkConstraint 硬性休假日被排班
type CantWorkConstraint struct {
	*BaseConstraint
}

// NewCantWorkConstraint 创建硬性休假约束
func NewCantWorkConstraint(weight int64) *CantWorkConstraint {
	return &CantWorkConstraint{
		BaseConstraint: NewBaseConstraint("硬性休假", constraint.TypeCantWork, constraint.CategoryHard, weight),
	}
}

// Evaluate 统计休假日上的班次数
func (c *CantWorkConstraint) Evaluate(ctx *constraint.Context) (int64, []constraint.ViolationDetail) {
	inst := ctx.Instance
	var amount int64
	var details []constraint.ViolationDetail
	for p, prov := range inst.Providers {
		for _, d := range DayIndexes(inst, prov.ForbiddenDaysHard) {
			n := ctx.DayLoad(p, d)
			if n == 0 {
				continue
			}
			amount += int64(n)
			date := inst.Days[d].Date
			details = append(details, c.CreateViolation(prov.Name, date,
				fmt.Sprintf("人员 %s 在休假日 %s 上了 %d 个班次", prov.Name, date, n), int64(n)))
		}
	}
	return amount, details
}

// DaysWantedConstraint 要求上班的日期（硬性或偏好）
type DaysWantedConstraint struct {
	*BaseConstraint
	hard bool
}

// NewHardOnConstraint 必排日未满足的松弛；当天无班次或无匹配类型计为未满足
func NewHardOnConstraint(weight int64) *DaysWantedConstraint {
	return &DaysWantedConstraint{
		BaseConstraint: NewBaseConstraint("必排日", constraint.TypeHardOn, constraint.CategoryHard, weight),
		hard:           true,
	}
}

// NewSoftOnConstraint 偏好上班日未满足；当天无法满足的条目跳过
func NewSoftOnConstraint(weight int64) *DaysWantedConstraint {
	return &DaysWantedConstraint{
		BaseConstraint: NewBaseConstraint("偏好上班日", constraint.TypeSoftOn, constraint.CategorySoft, weight),
	}
}

// Evaluate 统计未满足的日期数
func (c *DaysWantedConstraint) Evaluate(ctx *constraint.Context) (int64, []constraint.ViolationDetail) {
	inst := ctx.Instance
	var amount int64
	var details []constraint.ViolationDetail
	for p, prov := range inst.Providers {
		prefs := prov.PreferredDaysSoft
		if c.hard {
			prefs = prov.PreferredDaysHard
		}
		for _, req := range Requirements(inst, prefs) {
			if len(req.Shifts) == 0 && !c.hard {
				continue
			}
			if satisfied(ctx, p, req.Shifts) {
				continue
			}
			amount++
			details = append(details, c.CreateViolation(prov.Name, req.Date,
				fmt.Sprintf("人员 %s 希望在 %s 上 %v 班次但未安排", prov.Name, req.Date, req.Types), 1))
		}
	}
	return amount, details
}

// RequestedOffConstraint 请求休息的日期仍上班
type RequestedOffConstraint struct {
	*BaseConstraint
}

// NewRequestedOffConstraint 创建请求休息约束
func NewRequestedOffConstraint(weight int64) *RequestedOffConstraint {
	return &RequestedOffConstraint{
		BaseConstraint: NewBaseConstraint("请求休息", constraint.TypeSoftOff, constraint.CategorySoft, weight),
	}
}

// Evaluate 统计在请求休息日上班的天数
func (c *RequestedOffConstraint) Evaluate(ctx *constraint.Context) (int64, []constraint.ViolationDetail) {
	inst := ctx.Instance
	var amount int64
	var details []constraint.ViolationDetail
	for p, prov := range inst.Providers {
		for _, d := range DayIndexes(inst, prov.ForbiddenDaysSoft) {
			if !ctx.Works(p, d) {
				continue
			}
			amount++
			date := inst.Days[d].Date
			details = append(details, c.CreateViolation(prov.Name, date,
				fmt.Sprintf("人员 %s 请求在 %s 休息", prov.Name, date), 1))
		}
	}
	return amount, details
}
