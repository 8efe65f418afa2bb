package model

import (
	"fmt"
	"sort"
	"time"

	apperrors "github.com/paiban/medsched/pkg/errors"
)

// Day 日历中的一天
type Day struct {
	Index     int       `json:"index"`
	Date      string    `json:"date"`
	Time      time.Time `json:"-"`
	Weekday   string    `json:"weekday"`
	IsWeekend bool      `json:"is_weekend"`
}

// Instance 归一化、带索引的排班实例，每次求解独立构造
type Instance struct {
	Days          []Day
	Shifts        []*Shift
	Providers     []*Provider
	ProviderTypes []string

	// ShiftDay 班次所在日索引
	ShiftDay []int
	// DayShifts 每天的班次索引，按开始时间排序
	DayShifts [][]int
	// Eligible[s][p] 人员类型是否允许上该班次
	Eligible [][]bool

	Solver  SolverSettings
	Weights Weights
	Run     RunSettings

	Constants *Constants

	dayIndex   map[string]int
	shiftIndex map[string]int
}

// NewInstance 由已校验的案例构造实例；遇到无法解析的记录立即失败
func NewInstance(c *Case) (*Instance, error) {
	inst := &Instance{
		Constants:  &c.Constants,
		Solver:     c.Constants.ResolveSolver(),
		Weights:    c.Constants.ResolveWeights(),
		dayIndex:   make(map[string]int, len(c.Calendar.Days)),
		shiftIndex: make(map[string]int, len(c.Shifts)),
	}
	inst.Run = c.RunSettings(inst.Solver.MaxTime)

	weekend := make(map[string]bool, len(c.Calendar.WeekendDays))
	for _, w := range c.Calendar.WeekendDays {
		weekend[w] = true
	}

	for i, d := range c.Calendar.Days {
		t, err := ParseDate(d)
		if err != nil {
			return nil, apperrors.InputValidation(fmt.Sprintf("calendar.days[%d]", i), "日期格式应为 YYYY-MM-DD")
		}
		if _, dup := inst.dayIndex[d]; dup {
			return nil, apperrors.InputValidation(fmt.Sprintf("calendar.days[%d]", i), "日期重复")
		}
		name := t.Weekday().String()
		inst.dayIndex[d] = i
		inst.Days = append(inst.Days, Day{Index: i, Date: d, Time: t, Weekday: name, IsWeekend: weekend[name]})
	}

	typeSet := make(map[string]bool)
	names := make(map[string]bool, len(c.Providers))
	for i := range c.Providers {
		p := &c.Providers[i]
		field := fmt.Sprintf("providers[%d].name", i)
		if p.Name == "" {
			return nil, apperrors.InputValidation(field, "缺少人员姓名")
		}
		if names[p.Name] {
			return nil, apperrors.InputValidation(field, "人员姓名重复: "+p.Name)
		}
		names[p.Name] = true
		if p.Type == "" {
			p.Type = DefaultProviderType
		}
		typeSet[p.Type] = true
		inst.Providers = append(inst.Providers, p)
	}
	for t := range typeSet {
		inst.ProviderTypes = append(inst.ProviderTypes, t)
	}
	sort.Strings(inst.ProviderTypes)

	inst.DayShifts = make([][]int, len(inst.Days))
	for i := range c.Shifts {
		s := &c.Shifts[i]
		field := fmt.Sprintf("shifts[%d]", i)
		if s.ID == "" {
			return nil, apperrors.InputValidation(field+".id", "缺少班次ID")
		}
		if _, dup := inst.shiftIndex[s.ID]; dup {
			return nil, apperrors.InputValidation(field+".id", "班次ID重复: "+s.ID)
		}
		d, ok := inst.dayIndex[s.Date]
		if !ok {
			return nil, apperrors.InputValidation(field+".date", "日期不在排班日历中: "+s.Date)
		}
		if err := s.parseTimes(); err != nil {
			return nil, apperrors.InputValidation(field+".start/end", err.Error())
		}
		if !s.EndAt.After(s.StartAt) {
			return nil, apperrors.InputValidation(field+".end", "结束时间必须晚于开始时间")
		}
		inst.shiftIndex[s.ID] = len(inst.Shifts)
		inst.Shifts = append(inst.Shifts, s)
		inst.ShiftDay = append(inst.ShiftDay, d)
		inst.DayShifts[d] = append(inst.DayShifts[d], len(inst.Shifts)-1)
	}
	for d := range inst.DayShifts {
		list := inst.DayShifts[d]
		sort.SliceStable(list, func(a, b int) bool {
			return inst.Shifts[list[a]].StartAt.Before(inst.Shifts[list[b]].StartAt)
		})
	}

	inst.Eligible = make([][]bool, len(inst.Shifts))
	for s, sh := range inst.Shifts {
		allowed := InferAllowedTypes(sh, inst.ProviderTypes)
		row := make([]bool, len(inst.Providers))
		for p, prov := range inst.Providers {
			row[p] = containsString(allowed, prov.Type)
		}
		inst.Eligible[s] = row
	}
	return inst, nil
}

// NumShifts 班次数
func (inst *Instance) NumShifts() int { return len(inst.Shifts) }

// NumProviders 人员数
func (inst *Instance) NumProviders() int { return len(inst.Providers) }

// NumDays 天数
func (inst *Instance) NumDays() int { return len(inst.Days) }

// DayIndex 日期索引
func (inst *Instance) DayIndex(date string) (int, bool) {
	d, ok := inst.dayIndex[date]
	return d, ok
}

// ShiftIndex 班次索引
func (inst *Instance) ShiftIndex(id string) (int, bool) {
	s, ok := inst.shiftIndex[id]
	return s, ok
}

// RequiredShifts 某天满足类型要求的班次；day 无班次或无匹配类型时返回空
func (inst *Instance) RequiredShifts(d int, wanted []string) []int {
	var out []int
	for _, s := range inst.DayShifts[d] {
		if MatchesTypes(wanted, inst.Shifts[s].Type) {
			out = append(out, s)
		}
	}
	return out
}

// WeekendPairs 相邻且都属于周末的日期对
func (inst *Instance) WeekendPairs() [][2]int {
	var pairs [][2]int
	for d := 0; d+1 < len(inst.Days); d++ {
		a, b := inst.Days[d], inst.Days[d+1]
		if a.IsWeekend && b.IsWeekend && b.Time.Sub(a.Time) == 24*time.Hour {
			pairs = append(pairs, [2]int{d, d + 1})
		}
	}
	return pairs
}

// ConflictingPairs 需要互斥的班次对：时间重叠或间隔不足 minRest
func (inst *Instance) ConflictingPairs() [][2]int {
	order := make([]int, len(inst.Shifts))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return inst.Shifts[order[a]].StartAt.Before(inst.Shifts[order[b]].StartAt)
	})
	var pairs [][2]int
	for i := 0; i < len(order); i++ {
		a := inst.Shifts[order[i]]
		for j := i + 1; j < len(order); j++ {
			b := inst.Shifts[order[j]]
			// 按开始时间有序，之后的班次只会更晚
			if !a.Interval().TooClose(b.Interval(), inst.Solver.MinRest) {
				break
			}
			x, y := order[i], order[j]
			if x > y {
				x, y = y, x
			}
			pairs = append(pairs, [2]int{x, y})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i][0] != pairs[j][0] {
			return pairs[i][0] < pairs[j][0]
		}
		return pairs[i][1] < pairs[j][1]
	})
	return pairs
}

// Prepare 归一化案例并构造实例，返回未匹配的案例级限制条目
func Prepare(c *Case) (*Instance, []string, error) {
	unmatched := c.Normalize()
	inst, err := NewInstance(c)
	if err != nil {
		return nil, unmatched, err
	}
	return inst, unmatched, nil
}
