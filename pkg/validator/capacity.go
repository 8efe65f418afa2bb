package validator

import (
	"fmt"
	"sort"

	"github.com/paiban/medsched/pkg/model"
)

// ProviderCapacity 人员可上班天数的上界
type ProviderCapacity struct {
	Provider string `json:"provider"`
	// EligibleDays 未被硬性禁止且当天有可上班次的天数
	EligibleDays int  `json:"eligible_days_upper_bound"`
	MinTotal     int  `json:"min_total"`
	MaxTotal     *int `json:"max_total,omitempty"`
}

// DayCapacity 某天某类班次的数量与可用人数
type DayCapacity struct {
	Date      string `json:"date"`
	Type      string `json:"type"`
	Shifts    int    `json:"shifts"`
	Available int    `json:"available"`
}

// Capacity 排班容量诊断
type Capacity struct {
	Providers []ProviderCapacity `json:"providers"`
	// Shortages 班次数多于可用人数的日期与类型
	Shortages []DayCapacity `json:"shortages,omitempty"`
}

// DiagnoseCapacity 估算每个人员可上班天数与每天每类班次的人手
func DiagnoseCapacity(inst *model.Instance) *Capacity {
	c := &Capacity{}
	for p, prov := range inst.Providers {
		days := 0
		for d, day := range inst.Days {
			if prov.IsForbiddenHard(day.Date) {
				continue
			}
			for _, s := range inst.DayShifts[d] {
				if inst.Eligible[s][p] {
					days++
					break
				}
			}
		}
		c.Providers = append(c.Providers, ProviderCapacity{
			Provider:     prov.Name,
			EligibleDays: days,
			MinTotal:     prov.MinTotal(),
			MaxTotal:     prov.Limits.MaxTotal,
		})
	}

	for d, day := range inst.Days {
		byType := make(map[string][]int)
		for _, s := range inst.DayShifts[d] {
			t := inst.Shifts[s].Type
			byType[t] = append(byType[t], s)
		}
		types := make([]string, 0, len(byType))
		for t := range byType {
			types = append(types, t)
		}
		sort.Strings(types)

		for _, t := range types {
			shifts := byType[t]
			available := 0
			for p, prov := range inst.Providers {
				if prov.IsForbiddenHard(day.Date) {
					continue
				}
				for _, s := range shifts {
					if inst.Eligible[s][p] {
						available++
						break
					}
				}
			}
			if len(shifts) > available {
				c.Shortages = append(c.Shortages, DayCapacity{
					Date:      day.Date,
					Type:      t,
					Shifts:    len(shifts),
					Available: available,
				})
			}
		}
	}
	return c
}

// Warnings 容量不足的提示
func (c *Capacity) Warnings() []string {
	var out []string
	for _, p := range c.Providers {
		if p.EligibleDays < p.MinTotal {
			out = append(out, fmt.Sprintf("人员 %s 最多可上 %d 天，少于最少班次数 %d", p.Provider, p.EligibleDays, p.MinTotal))
		}
	}
	for _, s := range c.Shortages {
		out = append(out, fmt.Sprintf("%s 的 %s 班次有 %d 个，可用人员只有 %d 人", s.Date, s.Type, s.Shifts, s.Available))
	}
	return out
}
