package stats

import (
	"fmt"
	"sort"
	"strings"

	"github.com/paiban/medsched/pkg/model"
)

// CoverageMetrics 覆盖率指标
type CoverageMetrics struct {
	TotalShifts     int     `json:"total_shifts"`     // 总班次数
	AssignedShifts  int     `json:"assigned_shifts"`  // 已分配班次数
	OverallCoverage float64 `json:"overall_coverage"` // 整体覆盖率 (%)

	// DailyCoverage 按日历顺序
	DailyCoverage     []DayCoverage      `json:"daily_coverage"`
	ShiftTypeCoverage map[string]float64 `json:"shift_type_coverage"`
	HourlyCoverage    map[int]float64    `json:"hourly_coverage"` // 按小时覆盖率 (0-23)

	UncoveredShifts []UncoveredShift `json:"uncovered_shifts"`
}

// DayCoverage 每日覆盖情况
type DayCoverage struct {
	Date         string  `json:"date"`
	TotalShifts  int     `json:"total_shifts"`
	Assigned     int     `json:"assigned"`
	CoverageRate float64 `json:"coverage_rate"`
	StaffCount   int     `json:"staff_count"`
	TotalHours   float64 `json:"total_hours"`
}

// UncoveredShift 未覆盖班次
type UncoveredShift struct {
	ShiftID   string `json:"shift_id"`
	Date      string `json:"date"`
	Type      string `json:"type"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// CoverageAnalyzer 覆盖率分析器
type CoverageAnalyzer struct{}

// NewCoverageAnalyzer 创建覆盖率分析器
func NewCoverageAnalyzer() *CoverageAnalyzer {
	return &CoverageAnalyzer{}
}

// Analyze 分析一份分配的覆盖率；没有班次时覆盖率为 100
func (c *CoverageAnalyzer) Analyze(inst *model.Instance, assign []int) *CoverageMetrics {
	metrics := &CoverageMetrics{
		ShiftTypeCoverage: make(map[string]float64),
		HourlyCoverage:    make(map[int]float64),
		OverallCoverage:   100,
	}
	if inst == nil || len(inst.Shifts) == 0 {
		return metrics
	}

	daily := make([]DayCoverage, len(inst.Days))
	staff := make([]map[int]bool, len(inst.Days))
	for d, day := range inst.Days {
		daily[d] = DayCoverage{Date: day.Date}
		staff[d] = make(map[int]bool)
	}
	typeTotals := make(map[string]int)
	typeAssigned := make(map[string]int)
	hourlyRequired := make(map[int]int)
	hourlyAssigned := make(map[int]int)

	for s, sh := range inst.Shifts {
		p := assign[s]
		isAssigned := p != Unassigned
		d := inst.ShiftDay[s]
		metrics.TotalShifts++
		daily[d].TotalShifts++
		typeTotals[sh.Type]++
		if isAssigned {
			metrics.AssignedShifts++
			daily[d].Assigned++
			daily[d].TotalHours += sh.DurationHours()
			staff[d][p] = true
			typeAssigned[sh.Type]++
		} else {
			metrics.UncoveredShifts = append(metrics.UncoveredShifts, UncoveredShift{
				ShiftID:   sh.ID,
				Date:      sh.Date,
				Type:      sh.Type,
				StartTime: sh.StartAt.Format("15:04"),
				EndTime:   sh.EndAt.Format("15:04"),
			})
		}

		// 跨午夜的班次按 24 小时制回绕
		startHour := sh.StartAt.Hour()
		hours := int(sh.DurationHours())
		for h := startHour; h < startHour+hours && h < startHour+24; h++ {
			hourlyRequired[h%24]++
			if isAssigned {
				hourlyAssigned[h%24]++
			}
		}
	}

	metrics.OverallCoverage = percent(metrics.AssignedShifts, metrics.TotalShifts)
	for d := range daily {
		daily[d].StaffCount = len(staff[d])
		daily[d].CoverageRate = 100
		if daily[d].TotalShifts > 0 {
			daily[d].CoverageRate = percent(daily[d].Assigned, daily[d].TotalShifts)
		}
	}
	metrics.DailyCoverage = daily
	for typ, total := range typeTotals {
		metrics.ShiftTypeCoverage[typ] = percent(typeAssigned[typ], total)
	}
	for hour := 0; hour < 24; hour++ {
		metrics.HourlyCoverage[hour] = 100
		if hourlyRequired[hour] > 0 {
			metrics.HourlyCoverage[hour] = percent(hourlyAssigned[hour], hourlyRequired[hour])
		}
	}
	return metrics
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

// Grid 人员×日期的排班网格，单元格为当天所上班次的类型（多个用 "/" 连接），不上班为空
type Grid struct {
	Days      []string   `json:"days"`
	Providers []string   `json:"providers"`
	Cells     [][]string `json:"cells"`
}

// BuildGrid 生成排班网格
func BuildGrid(inst *model.Instance, assign []int) *Grid {
	g := &Grid{
		Days:      make([]string, len(inst.Days)),
		Providers: make([]string, len(inst.Providers)),
		Cells:     make([][]string, len(inst.Providers)),
	}
	for d, day := range inst.Days {
		g.Days[d] = day.Date
	}
	for p, prov := range inst.Providers {
		g.Providers[p] = prov.Name
		g.Cells[p] = make([]string, len(inst.Days))
	}
	for d, shifts := range inst.DayShifts {
		for _, s := range shifts {
			p := assign[s]
			if p == Unassigned {
				continue
			}
			if g.Cells[p][d] != "" {
				g.Cells[p][d] += "/"
			}
			g.Cells[p][d] += inst.Shifts[s].Type
		}
	}
	return g
}

// GenerateCoverageReport 生成覆盖率文本报告
func (c *CoverageAnalyzer) GenerateCoverageReport(metrics *CoverageMetrics) string {
	var b strings.Builder
	b.WriteString("=== 覆盖率分析报告 ===\n\n")
	b.WriteString("【整体覆盖情况】\n")
	fmt.Fprintf(&b, "  总班次数: %d\n", metrics.TotalShifts)
	fmt.Fprintf(&b, "  已分配班次: %d\n", metrics.AssignedShifts)
	fmt.Fprintf(&b, "  覆盖率: %.1f%%\n\n", metrics.OverallCoverage)

	if len(metrics.UncoveredShifts) > 0 {
		b.WriteString("【未覆盖班次】\n")
		for _, sh := range metrics.UncoveredShifts {
			fmt.Fprintf(&b, "  - %s %s %s %s-%s\n", sh.ShiftID, sh.Date, sh.Type, sh.StartTime, sh.EndTime)
		}
		b.WriteString("\n")
	}

	types := make([]string, 0, len(metrics.ShiftTypeCoverage))
	for typ := range metrics.ShiftTypeCoverage {
		types = append(types, typ)
	}
	sort.Strings(types)
	if len(types) > 0 {
		b.WriteString("【按班次类型】\n")
		for _, typ := range types {
			fmt.Fprintf(&b, "  %s: %.1f%%\n", typ, metrics.ShiftTypeCoverage[typ])
		}
	}
	return b.String()
}
