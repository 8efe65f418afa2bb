// Package stats 提供排班结果的统计分析：工作量公平性、覆盖率与排班网格
package stats

import (
	"math"
	"sort"
	"strings"

	"github.com/paiban/medsched/pkg/model"
)

// Unassigned 空缺标记，与约束包一致
const Unassigned = -1

// FairnessMetrics 公平性指标
type FairnessMetrics struct {
	// 班次数公平性
	WorkloadGini     float64 `json:"workload_gini"`     // 班次数基尼系数 (0=完全公平, 1=完全不公平)
	WorkloadVariance float64 `json:"workload_variance"` // 班次数方差
	WorkloadStdDev   float64 `json:"workload_std_dev"`  // 班次数标准差
	AvgShifts        float64 `json:"avg_shifts"`        // 人均班次数
	MaxShifts        int     `json:"max_shifts"`
	MinShifts        int     `json:"min_shifts"`

	// 工时
	AvgHours float64 `json:"avg_hours"`
	MaxHours float64 `json:"max_hours"`
	MinHours float64 `json:"min_hours"`

	// 班次类型公平性
	ShiftTypeDistribution map[string]float64 `json:"shift_type_distribution"` // 各班次类型占比 (%)
	NightShiftGini        float64            `json:"night_shift_gini"`
	WeekendShiftGini      float64            `json:"weekend_shift_gini"`

	ProviderStats []ProviderStat `json:"provider_stats"`

	// 综合评分 (0-100)
	OverallFairnessScore float64 `json:"overall_fairness_score"`
}

// ProviderStat 人员工作量
type ProviderStat struct {
	Provider      string         `json:"provider"`
	Type          string         `json:"type"`
	ShiftCount    int            `json:"shift_count"`
	TotalHours    float64        `json:"total_hours"`
	NightShifts   int            `json:"night_shifts"`
	WeekendShifts int            `json:"weekend_shifts"`
	DaysWorked    int            `json:"days_worked"`
	ByType        map[string]int `json:"by_type"`
	Deviation     float64        `json:"deviation"` // 与平均班次数的偏差百分比
}

// FairnessAnalyzer 公平性分析器
type FairnessAnalyzer struct {
	nightShiftStart int // 夜班开始时间（小时）
	nightShiftEnd   int // 夜班结束时间（小时）
}

// NewFairnessAnalyzer 创建公平性分析器
func NewFairnessAnalyzer() *FairnessAnalyzer {
	return &FairnessAnalyzer{
		nightShiftStart: 20,
		nightShiftEnd:   6,
	}
}

// Analyze 分析一份分配的公平性；ProviderStats 按实例中的人员顺序排列
func (f *FairnessAnalyzer) Analyze(inst *model.Instance, assign []int) *FairnessMetrics {
	metrics := &FairnessMetrics{
		ShiftTypeDistribution: make(map[string]float64),
		OverallFairnessScore:  100,
	}
	if inst == nil || len(inst.Providers) == 0 {
		return metrics
	}

	providerStats := f.calculateProviderStats(inst, assign)
	counts := make([]float64, len(providerStats))
	hours := make([]float64, len(providerStats))
	nights := make([]float64, len(providerStats))
	weekends := make([]float64, len(providerStats))
	for i, st := range providerStats {
		counts[i] = float64(st.ShiftCount)
		hours[i] = st.TotalHours
		nights[i] = float64(st.NightShifts)
		weekends[i] = float64(st.WeekendShifts)
	}

	avg := Mean(counts)
	variance := Variance(counts)
	for i := range providerStats {
		if avg > 0 {
			providerStats[i].Deviation = (counts[i] - avg) / avg * 100
		}
	}
	maxC, minC := valueRange(counts)
	maxH, minH := valueRange(hours)

	metrics.WorkloadGini = Gini(counts)
	metrics.WorkloadVariance = variance
	metrics.WorkloadStdDev = math.Sqrt(variance)
	metrics.AvgShifts = avg
	metrics.MaxShifts = int(maxC)
	metrics.MinShifts = int(minC)
	metrics.AvgHours = Mean(hours)
	metrics.MaxHours = maxH
	metrics.MinHours = minH
	metrics.NightShiftGini = Gini(nights)
	metrics.WeekendShiftGini = Gini(weekends)
	metrics.ShiftTypeDistribution = f.calculateShiftTypeDistribution(inst, assign)
	metrics.ProviderStats = providerStats
	metrics.OverallFairnessScore = f.calculateOverallScore(metrics.WorkloadGini, metrics.NightShiftGini,
		metrics.WeekendShiftGini, metrics.WorkloadStdDev, avg)
	return metrics
}

// calculateProviderStats 逐人统计
func (f *FairnessAnalyzer) calculateProviderStats(inst *model.Instance, assign []int) []ProviderStat {
	out := make([]ProviderStat, len(inst.Providers))
	days := make([]map[int]bool, len(inst.Providers))
	for p, prov := range inst.Providers {
		out[p] = ProviderStat{Provider: prov.Name, Type: prov.Type, ByType: make(map[string]int)}
		days[p] = make(map[int]bool)
	}
	for s, p := range assign {
		if p == Unassigned || p >= len(out) {
			continue
		}
		sh := inst.Shifts[s]
		st := &out[p]
		st.ShiftCount++
		st.TotalHours += sh.DurationHours()
		st.ByType[sh.Type]++
		if f.isNightShift(sh) {
			st.NightShifts++
		}
		d := inst.ShiftDay[s]
		if inst.Days[d].IsWeekend {
			st.WeekendShifts++
		}
		days[p][d] = true
	}
	for p := range out {
		out[p].DaysWorked = len(days[p])
	}
	return out
}

// isNightShift 类型名带 NIGHT，或开始时间在夜间
func (f *FairnessAnalyzer) isNightShift(sh *model.Shift) bool {
	if strings.Contains(strings.ToUpper(sh.Type), "NIGHT") {
		return true
	}
	h := sh.StartAt.Hour()
	return h >= f.nightShiftStart || h < f.nightShiftEnd
}

// calculateShiftTypeDistribution 已分配班次中各类型的占比
func (f *FairnessAnalyzer) calculateShiftTypeDistribution(inst *model.Instance, assign []int) map[string]float64 {
	typeCounts := make(map[string]int)
	total := 0
	for s, p := range assign {
		if p == Unassigned {
			continue
		}
		typeCounts[inst.Shifts[s].Type]++
		total++
	}
	distribution := make(map[string]float64, len(typeCounts))
	for typ, n := range typeCounts {
		distribution[typ] = float64(n) / float64(total) * 100
	}
	return distribution
}

// calculateOverallScore 计算综合公平性评分
func (f *FairnessAnalyzer) calculateOverallScore(workloadGini, nightGini, weekendGini, stdDev, avg float64) float64 {
	const (
		workloadWeight = 0.4
		nightWeight    = 0.25
		weekendWeight  = 0.25
		stdDevWeight   = 0.1
	)

	cvScore := 100.0
	if avg > 0 {
		cvScore = math.Max(0, 100-stdDev/avg*200)
	}
	score := workloadWeight*(1-workloadGini)*100 +
		nightWeight*(1-nightGini)*100 +
		weekendWeight*(1-weekendGini)*100 +
		stdDevWeight*cvScore
	return math.Max(0, math.Min(100, score))
}

// CompareSchedules 比较两份分配的公平性
func (f *FairnessAnalyzer) CompareSchedules(inst *model.Instance, a, b []int) map[string]float64 {
	m1 := f.Analyze(inst, a)
	m2 := f.Analyze(inst, b)
	return map[string]float64{
		"workload_gini_diff":      m2.WorkloadGini - m1.WorkloadGini,
		"night_gini_diff":         m2.NightShiftGini - m1.NightShiftGini,
		"weekend_gini_diff":       m2.WeekendShiftGini - m1.WeekendShiftGini,
		"overall_score_diff":      m2.OverallFairnessScore - m1.OverallFairnessScore,
		"schedule1_overall_score": m1.OverallFairnessScore,
		"schedule2_overall_score": m2.OverallFairnessScore,
	}
}

// Mean 平均值
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Variance 总体方差
func Variance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := Mean(values)
	sumSquares := 0.0
	for _, v := range values {
		diff := v - mean
		sumSquares += diff * diff
	}
	return sumSquares / float64(len(values))
}

// StdDev 总体标准差
func StdDev(values []float64) float64 {
	return math.Sqrt(Variance(values))
}

func valueRange(values []float64) (hi, lo float64) {
	if len(values) == 0 {
		return 0, 0
	}
	hi, lo = values[0], values[0]
	for _, v := range values[1:] {
		hi = math.Max(hi, v)
		lo = math.Min(lo, v)
	}
	return hi, lo
}

// Gini 基尼系数，全零时为 0
func Gini(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	if sum == 0 {
		return 0
	}
	gini := 0.0
	for i, v := range sorted {
		gini += (2*float64(i+1) - float64(n) - 1) * v
	}
	gini = gini / (float64(n) * sum)
	return math.Max(0, math.Min(1, gini))
}
