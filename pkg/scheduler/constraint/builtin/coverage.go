package builtin

import (
	"fmt"

	"github.com/paiban/medsched/pkg/scheduler/constraint"
)

// UnfilledConstraint 班次空缺
type UnfilledConstraint struct {
	*BaseConstraint
}

// NewUnfilledConstraint 创建空缺约束
func NewUnfilledConstraint(weight int64) *UnfilledConstraint {
	return &UnfilledConstraint{
		BaseConstraint: NewBaseConstraint("班次空缺", constraint.TypeUnfilled, constraint.CategoryHard, weight),
	}
}

// Evaluate 统计空缺班次
func (c *UnfilledConstraint) Evaluate(ctx *constraint.Context) (int64, []constraint.ViolationDetail) {
	var amount int64
	var details []constraint.ViolationDetail
	for s, p := range ctx.Assign {
		if p != constraint.Unassigned {
			continue
		}
		amount++
		sh := ctx.Instance.Shifts[s]
		details = append(details, c.CreateViolation("", sh.Date, fmt.Sprintf("班次 %s 无人值班", sh.ID), 1))
	}
	return amount, details
}

// TotalBoundConstraint 人员总班次数下限/上限
type TotalBoundConstraint struct {
	*BaseConstraint
	upper bool
}

// NewShiftLessConstraint 总班次数不足 min_total 的松弛
func NewShiftLessConstraint(weight int64) *TotalBoundConstraint {
	return &TotalBoundConstraint{
		BaseConstraint: NewBaseConstraint("总班次下限", constraint.TypeShiftLess, constraint.CategoryHard, weight),
	}
}

// NewShiftMoreConstraint 总班次数超过 max_total 的松弛
func NewShiftMoreConstraint(weight int64) *TotalBoundConstraint {
	return &TotalBoundConstraint{
		BaseConstraint: NewBaseConstraint("总班次上限", constraint.TypeShiftMore, constraint.CategoryHard, weight),
		upper:          true,
	}
}

// Evaluate 逐人计算越界量
func (c *TotalBoundConstraint) Evaluate(ctx *constraint.Context) (int64, []constraint.ViolationDetail) {
	inst := ctx.Instance
	var amount int64
	var details []constraint.ViolationDetail
	for p, prov := range inst.Providers {
		total := ctx.Total(p)
		var gap int
		if c.upper {
			gap = total - prov.MaxTotal(inst.NumShifts())
		} else {
			gap = prov.MinTotal() - total
		}
		if gap <= 0 {
			continue
		}
		amount += int64(gap)
		msg := fmt.Sprintf("人员 %s 共 %d 个班次，比下限少 %d", prov.Name, total, gap)
		if c.upper {
			msg = fmt.Sprintf("人员 %s 共 %d 个班次，比上限多 %d", prov.Name, total, gap)
		}
		details = append(details, c.CreateViolation(prov.Name, "", msg, int64(gap)))
	}
	return amount, details
}
