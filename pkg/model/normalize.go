package model

import (
	"strings"
	"unicode"
)

// NormName 姓名归一化：仅保留小写字母
func NormName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// InferAllowedTypes 推断班次允许的人员类型：
// 显式列表优先；否则取类型中 "_" 前缀（需为已知人员类型）；否则允许全部类型
func InferAllowedTypes(shift *Shift, providerTypes []string) []string {
	if len(shift.AllowedProviderTypes) > 0 {
		return dedupe(shift.AllowedProviderTypes)
	}
	if i := strings.Index(shift.Type, "_"); i >= 0 {
		prefix := shift.Type[:i]
		for _, t := range providerTypes {
			if t == prefix {
				return []string{prefix}
			}
		}
	}
	out := make([]string, len(providerTypes))
	copy(out, providerTypes)
	return out
}

// FindProvider 按姓名模糊查找人员：先比较归一化姓名，再要求查询的每个词都出现在归一化姓名中
func FindProvider(providers []Provider, query string) *Provider {
	target := NormName(query)
	if target != "" {
		for i := range providers {
			if NormName(providers[i].Name) == target {
				return &providers[i]
			}
		}
	}
	tokens := strings.FieldsFunc(strings.ToLower(query), unicode.IsSpace)
	if len(tokens) == 0 {
		return nil
	}
	for i := range providers {
		nrm := NormName(providers[i].Name)
		all := true
		for _, tok := range tokens {
			if !strings.Contains(nrm, tok) {
				all = false
				break
			}
		}
		if all {
			return &providers[i]
		}
	}
	return nil
}

// MergeCaseLimits 将案例级限制合并到对应人员，返回未匹配到人员的名称
func (c *Case) MergeCaseLimits() []string {
	if c.Limits == nil {
		return nil
	}
	var unmatched []string
	find := func(name string) *Provider {
		p := FindProvider(c.Providers, name)
		if p == nil {
			unmatched = append(unmatched, name)
		}
		return p
	}

	for _, it := range c.Limits.Total {
		p := find(it.Provider)
		if p == nil || len(it.Range) != 2 {
			continue
		}
		lo, hi := it.Range[0], it.Range[1]
		p.Limits.MinTotal = &lo
		p.Limits.MaxTotal = &hi
	}
	for _, it := range c.Limits.Weekend {
		p := find(it.Provider)
		if p == nil || len(it.Range) != 2 {
			continue
		}
		p.Limits.WeekendRange = &[2]int{it.Range[0], it.Range[1]}
	}
	for _, it := range c.Limits.Consecutive {
		p := find(it.Provider)
		if p == nil || it.Max == nil {
			continue
		}
		p.MaxConsecutiveDays = IntPtr(*it.Max)
	}
	for _, it := range c.Limits.TypeRanges {
		p := find(it.Provider)
		if p == nil || it.Type == "" || len(it.Range) != 2 {
			continue
		}
		if p.Limits.TypeRanges == nil {
			p.Limits.TypeRanges = make(map[string][2]int)
		}
		p.Limits.TypeRanges[it.Type] = [2]int{it.Range[0], it.Range[1]}
	}
	return unmatched
}

// Normalize 补齐默认值并合并案例级限制
func (c *Case) Normalize() []string {
	unmatched := c.MergeCaseLimits()

	if len(c.Calendar.WeekendDays) == 0 {
		if c.Constants.Calendar != nil && len(c.Constants.Calendar.WeekendDays) > 0 {
			c.Calendar.WeekendDays = append([]string(nil), c.Constants.Calendar.WeekendDays...)
		} else {
			c.Calendar.WeekendDays = append([]string(nil), DefaultWeekendDays...)
		}
	}

	for i := range c.Providers {
		p := &c.Providers[i]
		p.Name = strings.TrimSpace(p.Name)
		if p.Type == "" {
			p.Type = DefaultProviderType
		}
		if p.ForbiddenDaysHard == nil {
			p.ForbiddenDaysHard = []string{}
		}
		if p.ForbiddenDaysSoft == nil {
			p.ForbiddenDaysSoft = []string{}
		}
		if p.PreferredDaysHard == nil {
			p.PreferredDaysHard = map[string][]string{}
		}
		if p.PreferredDaysSoft == nil {
			p.PreferredDaysSoft = map[string][]string{}
		}
	}
	for i := range c.Shifts {
		c.Shifts[i].ID = strings.TrimSpace(c.Shifts[i].ID)
	}
	return unmatched
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
