package validator

import (
	"fmt"
	"sort"

	apperrors "github.com/paiban/medsched/pkg/errors"
	"github.com/paiban/medsched/pkg/model"
)

// Report 案例校验报告
type Report struct {
	Valid    bool                        `json:"valid"`
	Errors   []apperrors.ValidationError `json:"errors,omitempty"`
	Warnings []string                    `json:"warnings,omitempty"`
	Summary  *Summary                    `json:"summary,omitempty"`
}

// Summary 通过校验的案例概况
type Summary struct {
	Days          int                       `json:"days"`
	WeekendDays   int                       `json:"weekend_days"`
	Shifts        int                       `json:"shifts"`
	Providers     int                       `json:"providers"`
	ProviderTypes []string                  `json:"provider_types"`
	ShiftsByType  map[string]int            `json:"shifts_by_type"`
	ConflictPairs int                       `json:"conflict_pairs"`
	Constants     []model.EffectiveConstant `json:"constants"`
	Capacity      *Capacity                 `json:"capacity"`
}

// Check 校验并归一化案例，生成报告；不会启动求解
func (v *Validator) Check(c *model.Case) *Report {
	report := &Report{}
	if errs := v.collect(c); errs.HasErrors() {
		report.Errors = errs.Errors
		return report
	}

	for _, name := range c.Normalize() {
		report.Warnings = append(report.Warnings, fmt.Sprintf("案例级限制中的人员 %q 未匹配到任何人员，已忽略", name))
	}
	inst, err := model.NewInstance(c)
	if err != nil {
		appErr := apperrors.From(err)
		for field, msg := range appErr.Fields {
			report.Errors = append(report.Errors, apperrors.ValidationError{Field: field, Message: fmt.Sprint(msg)})
		}
		if len(report.Errors) == 0 {
			report.Errors = append(report.Errors, apperrors.ValidationError{Field: "case", Message: appErr.Message})
		}
		return report
	}

	report.Valid = true
	report.Warnings = append(report.Warnings, instanceWarnings(c, inst)...)
	report.Summary = summarize(inst)
	report.Warnings = append(report.Warnings, report.Summary.Capacity.Warnings()...)
	return report
}

func instanceWarnings(c *model.Case, inst *model.Instance) []string {
	var out []string
	for s, sh := range inst.Shifts {
		staffed := false
		for _, ok := range inst.Eligible[s] {
			staffed = staffed || ok
		}
		if !staffed {
			out = append(out, fmt.Sprintf("班次 %s 没有符合类型要求的人员，只能空缺", sh.ID))
		}
	}
	for _, p := range inst.Providers {
		for _, d := range append(append([]string(nil), p.ForbiddenDaysHard...), p.ForbiddenDaysSoft...) {
			if _, ok := inst.DayIndex(d); !ok {
				out = append(out, fmt.Sprintf("人员 %s 的休假日期 %s 不在排班日历中", p.Name, d))
			}
		}
		for _, d := range sortedKeys(p.PreferredDaysHard) {
			if _, ok := inst.DayIndex(d); !ok {
				out = append(out, fmt.Sprintf("人员 %s 的必排日期 %s 不在排班日历中", p.Name, d))
			}
		}
		for _, d := range sortedKeys(p.PreferredDaysHard) {
			if p.IsForbiddenHard(d) {
				out = append(out, fmt.Sprintf("人员 %s 在 %s 同时被要求上班和禁止上班", p.Name, d))
			}
		}
	}
	if c.Run.RelaxTo != nil && c.Run.L != nil && *c.Run.RelaxTo > *c.Run.L {
		out = append(out, fmt.Sprintf("relax_to(%d) 大于 L(%d)，按 L 处理", *c.Run.RelaxTo, *c.Run.L))
	}
	return out
}

func summarize(inst *model.Instance) *Summary {
	s := &Summary{
		Days:          inst.NumDays(),
		Shifts:        inst.NumShifts(),
		Providers:     inst.NumProviders(),
		ProviderTypes: inst.ProviderTypes,
		ShiftsByType:  make(map[string]int),
		ConflictPairs: len(inst.ConflictingPairs()),
		Constants:     inst.Constants.Effective(),
		Capacity:      DiagnoseCapacity(inst),
	}
	for _, d := range inst.Days {
		if d.IsWeekend {
			s.WeekendDays++
		}
	}
	for _, sh := range inst.Shifts {
		s.ShiftsByType[sh.Type]++
	}
	return s
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
