package model

import (
	"fmt"
	"time"
)

// CaseBuilder 以代码方式构造案例，用于示例与测试
type CaseBuilder struct {
	c Case
}

// NewCaseBuilder 创建案例构造器
func NewCaseBuilder() *CaseBuilder {
	return &CaseBuilder{}
}

// Days 从 start 起连续 n 天
func (b *CaseBuilder) Days(start string, n int) *CaseBuilder {
	t, err := ParseDate(start)
	if err != nil {
		panic(fmt.Sprintf("无效的起始日期 %q", start))
	}
	for i := 0; i < n; i++ {
		b.c.Calendar.Days = append(b.c.Calendar.Days, t.AddDate(0, 0, i).Format(DateLayout))
	}
	return b
}

// Weekend 设置周末定义
func (b *CaseBuilder) Weekend(days ...string) *CaseBuilder {
	b.c.Calendar.WeekendDays = days
	return b
}

// Shift 添加班次：date 当天 startHour 点开始，持续 hours 小时
func (b *CaseBuilder) Shift(id, date, typ string, startHour, hours int, allowed ...string) *CaseBuilder {
	t, err := ParseDate(date)
	if err != nil {
		panic(fmt.Sprintf("无效的班次日期 %q", date))
	}
	start := t.Add(time.Duration(startHour) * time.Hour)
	end := start.Add(time.Duration(hours) * time.Hour)
	b.c.Shifts = append(b.c.Shifts, Shift{
		ID:                   id,
		Date:                 date,
		Type:                 typ,
		Start:                start.Format("2006-01-02T15:04:05"),
		End:                  end.Format("2006-01-02T15:04:05"),
		AllowedProviderTypes: allowed,
	})
	return b
}

// DailyShifts 为每天添加一个同类型班次，ID 为 前缀+序号
func (b *CaseBuilder) DailyShifts(prefix, typ string, startHour, hours int, allowed ...string) *CaseBuilder {
	for i, d := range b.c.Calendar.Days {
		b.Shift(fmt.Sprintf("%s%d", prefix, i+1), d, typ, startHour, hours, allowed...)
	}
	return b
}

// Provider 添加人员，可通过 fn 调整属性
func (b *CaseBuilder) Provider(name, typ string, fn ...func(p *Provider)) *CaseBuilder {
	p := Provider{Name: name, Type: typ}
	for _, f := range fn {
		f(&p)
	}
	b.c.Providers = append(b.c.Providers, p)
	return b
}

// Solver 设置求解常量
func (b *CaseBuilder) Solver(key string, v float64) *CaseBuilder {
	if b.c.Constants.Solver == nil {
		b.c.Constants.Solver = NumberTable{}
	}
	b.c.Constants.Solver[key] = Float(v)
	return b
}

// HardWeight 设置硬约束权重
func (b *CaseBuilder) HardWeight(key string, v float64) *CaseBuilder {
	if b.c.Constants.Weights.Hard == nil {
		b.c.Constants.Weights.Hard = NumberTable{}
	}
	b.c.Constants.Weights.Hard[key] = Float(v)
	return b
}

// SoftWeight 设置软约束权重
func (b *CaseBuilder) SoftWeight(key string, v float64) *CaseBuilder {
	if b.c.Constants.Weights.Soft == nil {
		b.c.Constants.Weights.Soft = NumberTable{}
	}
	b.c.Constants.Weights.Soft[key] = Float(v)
	return b
}

// Run 设置运行参数
func (b *CaseBuilder) Run(k, l int, seed int64, seconds float64) *CaseBuilder {
	b.c.Run = RunConfig{K: &k, L: &l, Seed: &seed}
	if seconds > 0 {
		b.c.Run.Time = &seconds
	}
	return b
}

// Build 返回案例副本
func (b *CaseBuilder) Build() *Case {
	c := b.c
	c.Shifts = append([]Shift(nil), b.c.Shifts...)
	c.Providers = append([]Provider(nil), b.c.Providers...)
	return &c
}

// SampleCase 一周的示例案例：每天日班/夜班，三名医生一名护士
func SampleCase() *Case {
	b := NewCaseBuilder().Days("2025-03-03", 7)
	for _, d := range b.c.Calendar.Days {
		b.Shift("D-"+d, d, "MD_DAY", 8, 10)
		b.Shift("N-"+d, d, "MD_NIGHT", 20, 12)
		b.Shift("R-"+d, d, "RN_DAY", 7, 12)
	}
	b.Provider("Alice Chen", "MD", func(p *Provider) {
		p.ForbiddenDaysHard = []string{"2025-03-05"}
		p.MaxConsecutiveDays = IntPtr(3)
	}).Provider("Bob Li", "MD", func(p *Provider) {
		p.ForbiddenDaysSoft = []string{"2025-03-08", "2025-03-09"}
		p.PreferredDaysSoft = map[string][]string{"2025-03-04": {"MD_NIGHT"}}
	}).Provider("Carol Wang", "MD", func(p *Provider) {
		p.PreferredDaysHard = map[string][]string{"2025-03-06": {AnyType}}
		p.MaxConsecutiveDays = IntPtr(4)
	}).Provider("Dan Zhou", "RN", func(p *Provider) {
		max := 7
		p.Limits.MaxTotal = &max
	})
	return b.Solver(KeyMaxTime, 30).Solver(KeyNumThreads, 4).Run(3, 2, 42, 0).Build()
}
