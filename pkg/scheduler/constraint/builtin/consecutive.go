package builtin

import (
	"fmt"

	"github.com/paiban/medsched/pkg/scheduler/constraint"
)

// ConsecutiveConstraint 最大连续工作天数
type ConsecutiveConstraint struct {
	*BaseConstraint
}

// NewConsecutiveConstraint 创建连续工作约束
func NewConsecutiveConstraint(weight int64) *ConsecutiveConstraint {
	return &ConsecutiveConstraint{
		BaseConstraint: NewBaseConstraint("最大连续工作天数", constraint.TypeConsecutive, constraint.CategoryHard, weight),
	}
}

// Evaluate 最长连续段超过上限的天数；上限为 0 或不小于天数时不约束
func (c *ConsecutiveConstraint) Evaluate(ctx *constraint.Context) (int64, []constraint.ViolationDetail) {
	inst := ctx.Instance
	var amount int64
	var details []constraint.ViolationDetail
	for p, prov := range inst.Providers {
		limit := prov.ConsecutiveCap()
		if limit <= 0 || limit >= inst.NumDays() {
			continue
		}
		over := ctx.MaxRun(p) - limit
		if over <= 0 {
			continue
		}
		amount += int64(over)
		details = append(details, c.CreateViolation(prov.Name, "",
			fmt.Sprintf("人员 %s 连续工作 %d 天，超过上限 %d", prov.Name, limit+over, limit), int64(over)))
	}
	return amount, details
}

// ClusterConstraint 工作段数量的平方和
type ClusterConstraint struct {
	*BaseConstraint
}

// NewClusterConstraint 创建工作段数量约束
func NewClusterConstraint(weight int64) *ClusterConstraint {
	return &ClusterConstraint{
		BaseConstraint: NewBaseConstraint("工作段数量", constraint.TypeCluster, constraint.CategorySoft, weight),
	}
}

// Evaluate Σ_p cc[p]²
func (c *ClusterConstraint) Evaluate(ctx *constraint.Context) (int64, []constraint.ViolationDetail) {
	inst := ctx.Instance
	var amount int64
	var details []constraint.ViolationDetail
	for p, prov := range inst.Providers {
		cc := int64(len(ctx.Clusters(p)))
		if cc == 0 {
			continue
		}
		amount += cc * cc
		if cc > 1 {
			details = append(details, c.CreateViolation(prov.Name, "",
				fmt.Sprintf("人员 %s 的排班被拆成 %d 段", prov.Name, cc), cc*cc))
		}
	}
	return amount, details
}

// ClusterSizeConstraint 工作段长度的立方和
type ClusterSizeConstraint struct {
	*BaseConstraint
}

// NewClusterSizeConstraint 创建工作段长度约束
func NewClusterSizeConstraint(weight int64) *ClusterSizeConstraint {
	return &ClusterSizeConstraint{
		BaseConstraint: NewBaseConstraint("工作段长度", constraint.TypeClusterSize, constraint.CategorySoft, weight),
	}
}

// Evaluate Σ_p Σ_段 L³
func (c *ClusterSizeConstraint) Evaluate(ctx *constraint.Context) (int64, []constraint.ViolationDetail) {
	var amount int64
	for p := range ctx.Instance.Providers {
		for _, l := range ctx.Clusters(p) {
			n := int64(l)
			amount += n * n * n
		}
	}
	return amount, nil
}
