package model

// Provider 医护人员
type Provider struct {
	Name               string              `json:"name" validate:"required"`
	Type               string              `json:"type"`
	ForbiddenDaysHard  []string            `json:"forbidden_days_hard"`
	ForbiddenDaysSoft  []string            `json:"forbidden_days_soft"`
	PreferredDaysHard  map[string][]string `json:"preferred_days_hard"`
	PreferredDaysSoft  map[string][]string `json:"preferred_days_soft"`
	MaxConsecutiveDays LooseInt            `json:"max_consecutive_days"`
	Limits             Limits              `json:"limits"`
}

// Limits 人员班次上下限
type Limits struct {
	MinTotal     *int              `json:"min_total,omitempty" validate:"omitempty,gte=0"`
	MaxTotal     *int              `json:"max_total,omitempty" validate:"omitempty,gte=0"`
	TypeRanges   map[string][2]int `json:"type_ranges,omitempty"`
	WeekendRange *[2]int           `json:"weekend_range,omitempty"`
}

// ConsecutiveCap 最大连续工作天数，0 表示不限
func (p *Provider) ConsecutiveCap() int {
	if !p.MaxConsecutiveDays.Set || p.MaxConsecutiveDays.Value <= 0 {
		return 0
	}
	return p.MaxConsecutiveDays.Value
}

// MinTotal 最少班次数，默认 0
func (p *Provider) MinTotal() int {
	if p.Limits.MinTotal == nil {
		return 0
	}
	return *p.Limits.MinTotal
}

// MaxTotal 最多班次数，默认为全部班次数
func (p *Provider) MaxTotal(nShifts int) int {
	if p.Limits.MaxTotal == nil {
		return nShifts
	}
	return *p.Limits.MaxTotal
}

// IsForbiddenHard 是否硬性不可上班
func (p *Provider) IsForbiddenHard(date string) bool {
	return containsString(p.ForbiddenDaysHard, date)
}

// IsForbiddenSoft 是否请求休息
func (p *Provider) IsForbiddenSoft(date string) bool {
	return containsString(p.ForbiddenDaysSoft, date)
}

// MatchesTypes 班次类型是否命中偏好列表
func MatchesTypes(wanted []string, shiftType string) bool {
	for _, t := range wanted {
		if t == AnyType || t == shiftType {
			return true
		}
	}
	return false
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
