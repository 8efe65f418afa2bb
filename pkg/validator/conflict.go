package validator

import (
	"fmt"
	"sort"

	"github.com/paiban/medsched/pkg/model"
)

// ConflictType 冲突类型
type ConflictType string

const (
	ConflictOverlap      ConflictType = "overlap"      // 时间重叠
	ConflictRestTime     ConflictType = "rest_time"    // 休息时间不足
	ConflictConsecutive  ConflictType = "consecutive"  // 连续天数过多
	ConflictAvailability ConflictType = "availability" // 硬性休假日上班
	ConflictEligibility  ConflictType = "eligibility"  // 人员类型不符
	ConflictTotal        ConflictType = "total"        // 总班次数越界
	ConflictRequiredDay  ConflictType = "required_day" // 必排日未排
	ConflictUnfilled     ConflictType = "unfilled"     // 班次空缺
)

// Conflict 冲突信息
type Conflict struct {
	Type     ConflictType `json:"type"`
	Severity string       `json:"severity"` // error/warning
	Provider string       `json:"provider,omitempty"`
	Date     string       `json:"date,omitempty"`
	Message  string       `json:"message"`
	Shifts   []string     `json:"shifts,omitempty"`
}

// ConflictDetector 对一份排班结果做硬性规则审计
type ConflictDetector struct {
	inst *model.Instance
}

// NewConflictDetector 创建冲突检测器
func NewConflictDetector(inst *model.Instance) *ConflictDetector {
	return &ConflictDetector{inst: inst}
}

// DetectAll 检测所有冲突；assign[s] 为班次 s 的人员索引，-1 表示空缺
func (d *ConflictDetector) DetectAll(assign []int) []Conflict {
	var conflicts []Conflict
	conflicts = append(conflicts, d.detectUnfilled(assign)...)
	conflicts = append(conflicts, d.detectEligibility(assign)...)

	byProvider := make([][]int, d.inst.NumProviders())
	for s, p := range assign {
		if p >= 0 {
			byProvider[p] = append(byProvider[p], s)
		}
	}
	for p, shifts := range byProvider {
		conflicts = append(conflicts, d.detectRestTimeViolations(p, shifts)...)
		conflicts = append(conflicts, d.detectAvailability(p, shifts)...)
		conflicts = append(conflicts, d.detectConsecutiveDaysViolations(p, shifts)...)
		conflicts = append(conflicts, d.detectTotals(p, shifts)...)
		conflicts = append(conflicts, d.detectRequiredDays(p, shifts)...)
	}
	return conflicts
}

func (d *ConflictDetector) detectUnfilled(assign []int) []Conflict {
	var conflicts []Conflict
	for s, p := range assign {
		if p >= 0 {
			continue
		}
		sh := d.inst.Shifts[s]
		conflicts = append(conflicts, Conflict{
			Type:     ConflictUnfilled,
			Severity: "warning",
			Date:     sh.Date,
			Message:  fmt.Sprintf("班次 %s 无人值班", sh.DisplayName()),
			Shifts:   []string{sh.ID},
		})
	}
	return conflicts
}

func (d *ConflictDetector) detectEligibility(assign []int) []Conflict {
	var conflicts []Conflict
	for s, p := range assign {
		if p < 0 || d.inst.Eligible[s][p] {
			continue
		}
		sh, prov := d.inst.Shifts[s], d.inst.Providers[p]
		conflicts = append(conflicts, Conflict{
			Type:     ConflictEligibility,
			Severity: "error",
			Provider: prov.Name,
			Date:     sh.Date,
			Message:  fmt.Sprintf("人员 %s（%s）不允许上班次 %s", prov.Name, prov.Type, sh.DisplayName()),
			Shifts:   []string{sh.ID},
		})
	}
	return conflicts
}

// detectRestTimeViolations 检测时间重叠与休息时间不足
func (d *ConflictDetector) detectRestTimeViolations(p int, shifts []int) []Conflict {
	var conflicts []Conflict
	if len(shifts) < 2 {
		return conflicts
	}
	sorted := append([]int(nil), shifts...)
	sort.Slice(sorted, func(i, j int) bool {
		return d.inst.Shifts[sorted[i]].StartAt.Before(d.inst.Shifts[sorted[j]].StartAt)
	})
	name := d.inst.Providers[p].Name
	minRest := d.inst.Solver.MinRest
	for i := 0; i < len(sorted)-1; i++ {
		current, next := d.inst.Shifts[sorted[i]], d.inst.Shifts[sorted[i+1]]
		if current.Interval().Overlaps(next.Interval()) {
			conflicts = append(conflicts, Conflict{
				Type:     ConflictOverlap,
				Severity: "error",
				Provider: name,
				Date:     current.Date,
				Message:  fmt.Sprintf("人员 %s 的班次 %s 与 %s 时间重叠", name, current.ID, next.ID),
				Shifts:   []string{current.ID, next.ID},
			})
			continue
		}
		rest := next.StartAt.Sub(current.EndAt)
		if rest < minRest {
			conflicts = append(conflicts, Conflict{
				Type:     ConflictRestTime,
				Severity: "error",
				Provider: name,
				Date:     next.Date,
				Message:  fmt.Sprintf("人员 %s 班次间休息仅 %.1f 小时，少于要求的 %.0f 小时", name, rest.Hours(), minRest.Hours()),
				Shifts:   []string{current.ID, next.ID},
			})
		}
	}
	return conflicts
}

func (d *ConflictDetector) detectAvailability(p int, shifts []int) []Conflict {
	var conflicts []Conflict
	prov := d.inst.Providers[p]
	for _, s := range shifts {
		sh := d.inst.Shifts[s]
		if prov.IsForbiddenHard(sh.Date) {
			conflicts = append(conflicts, Conflict{
				Type:     ConflictAvailability,
				Severity: "error",
				Provider: prov.Name,
				Date:     sh.Date,
				Message:  fmt.Sprintf("人员 %s 在休假日 %s 被安排了班次 %s", prov.Name, sh.Date, sh.ID),
				Shifts:   []string{sh.ID},
			})
		}
	}
	return conflicts
}

// detectConsecutiveDaysViolations 检测连续工作天数（按日历位置相邻计算）
func (d *ConflictDetector) detectConsecutiveDaysViolations(p int, shifts []int) []Conflict {
	var conflicts []Conflict
	prov := d.inst.Providers[p]
	limit := prov.ConsecutiveCap()
	if limit <= 0 || limit >= d.inst.NumDays() || len(shifts) == 0 {
		return conflicts
	}
	worked := make([]bool, d.inst.NumDays())
	for _, s := range shifts {
		worked[d.inst.ShiftDay[s]] = true
	}

	run, maxRun, startDay, maxStart := 0, 0, 0, 0
	for day, w := range worked {
		if !w {
			run = 0
			continue
		}
		if run == 0 {
			startDay = day
		}
		run++
		if run > maxRun {
			maxRun, maxStart = run, startDay
		}
	}
	if maxRun > limit {
		conflicts = append(conflicts, Conflict{
			Type:     ConflictConsecutive,
			Severity: "error",
			Provider: prov.Name,
			Date:     d.inst.Days[maxStart].Date,
			Message:  fmt.Sprintf("人员 %s 连续工作 %d 天，超过限制 %d 天", prov.Name, maxRun, limit),
		})
	}
	return conflicts
}

func (d *ConflictDetector) detectTotals(p int, shifts []int) []Conflict {
	var conflicts []Conflict
	prov := d.inst.Providers[p]
	n := len(shifts)
	if lo := prov.MinTotal(); n < lo {
		conflicts = append(conflicts, Conflict{
			Type:     ConflictTotal,
			Severity: "error",
			Provider: prov.Name,
			Message:  fmt.Sprintf("人员 %s 共 %d 个班次，少于下限 %d", prov.Name, n, lo),
		})
	}
	if hi := prov.MaxTotal(d.inst.NumShifts()); n > hi {
		conflicts = append(conflicts, Conflict{
			Type:     ConflictTotal,
			Severity: "error",
			Provider: prov.Name,
			Message:  fmt.Sprintf("人员 %s 共 %d 个班次，超过上限 %d", prov.Name, n, hi),
		})
	}
	return conflicts
}

func (d *ConflictDetector) detectRequiredDays(p int, shifts []int) []Conflict {
	var conflicts []Conflict
	prov := d.inst.Providers[p]
	mine := make(map[int]bool, len(shifts))
	for _, s := range shifts {
		mine[s] = true
	}
	for _, date := range sortedKeys(prov.PreferredDaysHard) {
		wanted := prov.PreferredDaysHard[date]
		if len(wanted) == 0 {
			continue
		}
		day, ok := d.inst.DayIndex(date)
		if !ok {
			continue
		}
		met := false
		for _, s := range d.inst.RequiredShifts(day, wanted) {
			met = met || mine[s]
		}
		if !met {
			conflicts = append(conflicts, Conflict{
				Type:     ConflictRequiredDay,
				Severity: "error",
				Provider: prov.Name,
				Date:     date,
				Message:  fmt.Sprintf("人员 %s 要求在 %s 上班但未被安排", prov.Name, date),
			})
		}
	}
	return conflicts
}
