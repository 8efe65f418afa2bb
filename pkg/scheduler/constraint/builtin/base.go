// Package builtin 提供内置约束实现
package builtin

import (
	"github.com/paiban/medsched/pkg/model"
	"github.com/paiban/medsched/pkg/scheduler/constraint"
)

// BaseConstraint 约束基类
type BaseConstraint struct {
	name     string
	typ      constraint.Type
	category constraint.Category
	weight   int64
}

// NewBaseConstraint 创建基础约束
func NewBaseConstraint(name string, typ constraint.Type, cat constraint.Category, weight int64) *BaseConstraint {
	return &BaseConstraint{
		name:     name,
		typ:      typ,
		category: cat,
		weight:   weight,
	}
}

// Name 返回约束名称
func (c *BaseConstraint) Name() string { return c.name }

// Type 返回约束类型
func (c *BaseConstraint) Type() constraint.Type { return c.typ }

// Category 返回约束类别
func (c *BaseConstraint) Category() constraint.Category { return c.category }

// Weight 返回约束权重
func (c *BaseConstraint) Weight() int64 { return c.weight }

// CreateViolation 创建违反详情
func (c *BaseConstraint) CreateViolation(provider, date, message string, amount int64) constraint.ViolationDetail {
	severity := "warning"
	if c.category == constraint.CategoryHard {
		severity = "error"
	}

	return constraint.ViolationDetail{
		ConstraintType: c.typ,
		ConstraintName: c.name,
		Provider:       provider,
		Date:           date,
		Message:        message,
		Severity:       severity,
		Amount:         amount,
	}
}

// DayIndexes 日历内的去重日期索引，日历外的日期忽略
func DayIndexes(inst *model.Instance, dates []string) []int {
	seen := make(map[int]bool, len(dates))
	var out []int
	for _, date := range dates {
		d, ok := inst.DayIndex(date)
		if !ok || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out
}

// DayRequirement 人员某天的类型要求
type DayRequirement struct {
	Day   int
	Date  string
	Types []string
	// Shifts 当天满足类型要求的班次；为空表示当天无法满足
	Shifts []int
}

// Requirements 把 日期→类型列表 映射展开为日历内的要求，按日期排序
// 类型列表为空的条目跳过
func Requirements(inst *model.Instance, prefs map[string][]string) []DayRequirement {
	var out []DayRequirement
	for _, d := range inst.Days {
		types, ok := prefs[d.Date]
		if !ok || len(types) == 0 {
			continue
		}
		out = append(out, DayRequirement{
			Day:    d.Index,
			Date:   d.Date,
			Types:  types,
			Shifts: inst.RequiredShifts(d.Index, types),
		})
	}
	return out
}

func satisfied(ctx *constraint.Context, p int, shifts []int) bool {
	for _, s := range shifts {
		if ctx.Assign[s] == p {
			return true
		}
	}
	return false
}
