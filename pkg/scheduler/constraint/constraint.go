// Package constraint 定义约束接口、排班上下文和管理器
//
// 约束在一份完整分配上重新计算松弛量与惩罚量，口径与求解模型一致，
// 用于结果复核、回退求解的评分以及两阶段冻结的校验。
package constraint

import (
	"github.com/paiban/medsched/pkg/model"
)

// Type 约束类型标识
type Type string

const (
	// 硬约束（第一阶段最小化的松弛族）
	TypeUnfilled     Type = "slack_unfilled"
	TypeShiftLess    Type = "slack_shift_less"
	TypeShiftMore    Type = "slack_shift_more"
	TypeCantWork     Type = "slack_cant_work"
	TypeConsecutive  Type = "slack_consec"
	TypeHardOn       Type = "slack_hard_on"
	TypeTypeRange    Type = "type_range"
	TypeWeekendRange Type = "weekend_range"

	// 软约束（第二阶段的加权惩罚）
	TypeCluster      Type = "cluster"
	TypeClusterSize  Type = "cluster_size"
	TypeUnfair       Type = "unfair_number"
	TypeWeekendSplit Type = "cluster_weekend_start"
	TypeSoftOn       Type = "days_wanted_not_met"
	TypeSoftOff      Type = "requested_off"
)

// Category 约束类别
type Category string

const (
	CategoryHard Category = "hard" // 硬约束（以松弛量计）
	CategorySoft Category = "soft" // 软约束（以惩罚量计）
)

// HardScale 单目标评分时硬松弛相对软惩罚的放大倍数
const HardScale int64 = 1_000_000

// Unassigned 分配向量中空缺的取值
const Unassigned = -1

// Constraint 约束接口
type Constraint interface {
	// Name 返回约束名称
	Name() string

	// Type 返回约束类型
	Type() Type

	// Category 返回约束类别
	Category() Category

	// Weight 返回约束权重
	Weight() int64

	// Evaluate 评估整份排班，返回未加权的违反量和违反详情
	Evaluate(ctx *Context) (amount int64, details []ViolationDetail)
}

// ViolationDetail 约束违反详情
type ViolationDetail struct {
	ConstraintType Type   `json:"constraint_type"`
	ConstraintName string `json:"constraint_name"`
	Provider       string `json:"provider,omitempty"`
	Date           string `json:"date,omitempty"`
	Message        string `json:"message"`
	Severity       string `json:"severity"` // error/warning
	Amount         int64  `json:"amount"`
}

// Context 排班上下文：实例与一份分配，以及按人员/日期的计数索引
type Context struct {
	Instance *model.Instance
	Assign   []int

	total   []int
	dayLoad [][]int
	byType  []map[string]int
	weekend []int
}

// NewContext 创建空分配的上下文（全部空缺）
func NewContext(inst *model.Instance) *Context {
	assign := make([]int, inst.NumShifts())
	for i := range assign {
		assign[i] = Unassigned
	}
	ctx := &Context{Instance: inst}
	ctx.SetAssignment(assign)
	return ctx
}

// SetAssignment 设置分配并重建索引；assign[s] 为人员索引或 Unassigned
func (c *Context) SetAssignment(assign []int) {
	inst := c.Instance
	c.Assign = append(c.Assign[:0], assign...)
	c.total = make([]int, inst.NumProviders())
	c.weekend = make([]int, inst.NumProviders())
	c.dayLoad = make([][]int, inst.NumProviders())
	c.byType = make([]map[string]int, inst.NumProviders())
	for p := range c.dayLoad {
		c.dayLoad[p] = make([]int, inst.NumDays())
		c.byType[p] = make(map[string]int)
	}
	for s, p := range c.Assign {
		if p != Unassigned {
			c.add(s, p, 1)
		}
	}
}

// Move 把班次 s 改派给 p（可为 Unassigned），增量维护索引
func (c *Context) Move(s, p int) {
	if old := c.Assign[s]; old != Unassigned {
		c.add(s, old, -1)
	}
	c.Assign[s] = p
	if p != Unassigned {
		c.add(s, p, 1)
	}
}

func (c *Context) add(s, p, delta int) {
	inst := c.Instance
	d := inst.ShiftDay[s]
	c.total[p] += delta
	c.dayLoad[p][d] += delta
	c.byType[p][inst.Shifts[s].Type] += delta
	if inst.Days[d].IsWeekend {
		c.weekend[p] += delta
	}
}

// Clone 深拷贝上下文
func (c *Context) Clone() *Context {
	out := &Context{Instance: c.Instance}
	out.SetAssignment(c.Assign)
	return out
}

// Total 人员总班次数
func (c *Context) Total(p int) int { return c.total[p] }

// Works 人员当天是否上班
func (c *Context) Works(p, d int) bool { return c.dayLoad[p][d] > 0 }

// DayLoad 人员当天班次数
func (c *Context) DayLoad(p, d int) int { return c.dayLoad[p][d] }

// TypeCount 人员某类型班次数
func (c *Context) TypeCount(p int, typ string) int { return c.byType[p][typ] }

// WeekendCount 人员在周末日的班次数
func (c *Context) WeekendCount(p int) int { return c.weekend[p] }

// Clusters 人员按日历位置相邻的连续上班段长度
func (c *Context) Clusters(p int) []int {
	var out []int
	run := 0
	for d := range c.dayLoad[p] {
		if c.dayLoad[p][d] > 0 {
			run++
			continue
		}
		if run > 0 {
			out = append(out, run)
			run = 0
		}
	}
	if run > 0 {
		out = append(out, run)
	}
	return out
}

// MaxRun 最长连续上班天数
func (c *Context) MaxRun(p int) int {
	longest := 0
	for _, l := range c.Clusters(p) {
		longest = max(longest, l)
	}
	return longest
}

// ProviderShifts 人员被分配的班次
func (c *Context) ProviderShifts(p int) []int {
	var out []int
	for s, q := range c.Assign {
		if q == p {
			out = append(out, s)
		}
	}
	return out
}

// FairBand 公平区间 [⌊n/m⌋, ⌈n/m⌉]
func (c *Context) FairBand() (int, int) {
	n, m := c.Instance.NumShifts(), c.Instance.NumProviders()
	if m == 0 {
		return 0, 0
	}
	lo := n / m
	hi := lo
	if n%m != 0 {
		hi++
	}
	return lo, hi
}

// FamilyScore 单个约束族的评估结果
type FamilyScore struct {
	Type     Type     `json:"type"`
	Name     string   `json:"name"`
	Category Category `json:"category"`
	Weight   int64    `json:"weight"`
	Amount   int64    `json:"amount"`
	Penalty  int64    `json:"penalty"`
}

// Result 约束评估结果
type Result struct {
	IsValid        bool              `json:"is_valid"`
	Hard           int64             `json:"hard"`
	Soft           int64             `json:"soft"`
	Families       []FamilyScore     `json:"families"`
	HardViolations []ViolationDetail `json:"hard_violations"`
	SoftViolations []ViolationDetail `json:"soft_violations"`
}

// Score 单目标评分 hard·HardScale + soft
func (r *Result) Score() int64 {
	return r.Hard*HardScale + r.Soft
}

// Amount 某约束族的未加权违反量
func (r *Result) Amount(t Type) int64 {
	for _, f := range r.Families {
		if f.Type == t {
			return f.Amount
		}
	}
	return 0
}
