package builtin

import (
	"fmt"
	"sort"

	"github.com/paiban/medsched/pkg/scheduler/constraint"
)

// TypeRangeConstraint 按班次类型的数量区间
type TypeRangeConstraint struct {
	*BaseConstraint
}

// NewTypeRangeConstraint 创建类型区间约束
func NewTypeRangeConstraint(weight int64) *TypeRangeConstraint {
	return &TypeRangeConstraint{
		BaseConstraint: NewBaseConstraint("类型班次区间", constraint.TypeTypeRange, constraint.CategoryHard, weight),
	}
}

// Evaluate 各类型班次数的不足量与超出量之和
func (c *TypeRangeConstraint) Evaluate(ctx *constraint.Context) (int64, []constraint.ViolationDetail) {
	var amount int64
	var details []constraint.ViolationDetail
	for p, prov := range ctx.Instance.Providers {
		for _, typ := range SortedTypes(prov.Limits.TypeRanges) {
			r := prov.Limits.TypeRanges[typ]
			n := ctx.TypeCount(p, typ)
			gap := rangeGap(n, r[0], r[1])
			if gap == 0 {
				continue
			}
			amount += gap
			details = append(details, c.CreateViolation(prov.Name, "",
				fmt.Sprintf("人员 %s 的 %s 班次 %d 个，要求 [%d, %d]", prov.Name, typ, n, r[0], r[1]), gap))
		}
	}
	return amount, details
}

// SortedTypes 类型区间的键，按字典序
func SortedTypes(ranges map[string][2]int) []string {
	keys := make([]string, 0, len(ranges))
	for k := range ranges {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
