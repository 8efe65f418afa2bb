package builtin

import (
	"fmt"

	"github.com/paiban/medsched/pkg/scheduler/constraint"
)

// FairnessConstraint 班次数偏离公平区间
type FairnessConstraint struct {
	*BaseConstraint
}

// NewFairnessConstraint 创建公平性约束
func NewFairnessConstraint(weight int64) *FairnessConstraint {
	return &FairnessConstraint{
		BaseConstraint: NewBaseConstraint("班次公平", constraint.TypeUnfair, constraint.CategorySoft, weight),
	}
}

// Evaluate Σ_p (less² + more²)，区间为 [⌊n/m⌋, ⌈n/m⌉]
func (c *FairnessConstraint) Evaluate(ctx *constraint.Context) (int64, []constraint.ViolationDetail) {
	lo, hi := ctx.FairBand()
	var amount int64
	var details []constraint.ViolationDetail
	for p, prov := range ctx.Instance.Providers {
		total := ctx.Total(p)
		var dev int64
		switch {
		case total < lo:
			dev = int64(lo - total)
		case total > hi:
			dev = int64(total - hi)
		default:
			continue
		}
		amount += dev * dev
		details = append(details, c.CreateViolation(prov.Name, "",
			fmt.Sprintf("人员 %s 共 %d 个班次，公平区间 [%d, %d]", prov.Name, total, lo, hi), dev*dev))
	}
	return amount, details
}
