package model

import (
	"encoding/json"
	"math"
	"sort"
	"time"
)

// Constants 求解常量，字段缺失或为 null 时使用默认值
type Constants struct {
	Solver    NumberTable  `json:"solver,omitempty"`
	Weights   WeightTables `json:"weights"`
	Objective NumberTable  `json:"objective,omitempty"`
	Calendar  *struct {
		WeekendDays []string `json:"weekend_days,omitempty"`
	} `json:"calendar,omitempty"`
}

// WeightTables 硬/软权重表
type WeightTables struct {
	Hard NumberTable `json:"hard,omitempty"`
	Soft NumberTable `json:"soft,omitempty"`
}

// NumberTable 数值常量表，非数值项（如布尔开关）解码时保留为 nil
type NumberTable map[string]*float64

// UnmarshalJSON 实现 json.Unmarshaler
func (t *NumberTable) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(NumberTable, len(raw))
	for k, v := range raw {
		var f float64
		if err := json.Unmarshal(v, &f); err != nil {
			out[k] = nil
			continue
		}
		out[k] = &f
	}
	*t = out
	return nil
}

// 常量路径
const (
	KeyMaxTime        = "max_time_in_seconds"
	KeyPhase1Fraction = "phase1_fraction"
	KeyRelativeGap    = "relative_gap"
	KeyNumThreads     = "num_threads"
	KeyMinRestHours   = "min_rest_hours"
	KeyPoolLimit      = "pool_limit"
	KeyPoolWindow     = "pool_window"

	KeySlackUnfilled  = "slack_unfilled"
	KeySlackShiftLess = "slack_shift_less"
	KeySlackShiftMore = "slack_shift_more"
	KeySlackCantWork  = "slack_cant_work"
	KeySlackConsec    = "slack_consec"
	KeyTypeRange      = "type_range"
	KeyWeekendRange   = "weekend_range"

	KeyCluster             = "cluster"
	KeyClusterSize         = "cluster_size"
	KeyUnfairNumber        = "unfair_number"
	KeyClusterWeekendStart = "cluster_weekend_start"
	KeyDaysWantedNotMet    = "days_wanted_not_met"
	KeyRequestedOff        = "requested_off"
)

var solverDefaults = map[string]float64{
	KeyMaxTime:        120,
	KeyPhase1Fraction: 0.4,
	KeyRelativeGap:    0.01,
	KeyNumThreads:     8,
	KeyMinRestHours:   12,
	KeyPoolLimit:      20000,
	KeyPoolWindow:     0,
}

var hardDefaults = map[string]float64{
	KeySlackUnfilled:  1,
	KeySlackShiftLess: 1,
	KeySlackShiftMore: 1,
	KeySlackCantWork:  1,
	KeySlackConsec:    1,
	KeyTypeRange:      0,
	KeyWeekendRange:   0,
}

var softDefaults = map[string]float64{
	KeyCluster:             500,
	KeyClusterSize:         10,
	KeyUnfairNumber:        10,
	KeyClusterWeekendStart: 50000,
	KeyDaysWantedNotMet:    10,
	KeyRequestedOff:        10,
}

// SolverSettings 解析后的求解参数
type SolverSettings struct {
	MaxTime        time.Duration
	Phase1Fraction float64
	RelativeGap    float64
	NumThreads     int
	MinRest        time.Duration
	PoolLimit      int
	PoolWindow     int64
}

// Weights 解析后的整数权重
type Weights struct {
	Unfilled     int64 `json:"slack_unfilled"`
	ShiftLess    int64 `json:"slack_shift_less"`
	ShiftMore    int64 `json:"slack_shift_more"`
	CantWork     int64 `json:"slack_cant_work"`
	Consec       int64 `json:"slack_consec"`
	TypeRange    int64 `json:"type_range"`
	WeekendRange int64 `json:"weekend_range"`

	Cluster      int64 `json:"cluster"`
	ClusterSize  int64 `json:"cluster_size"`
	Unfair       int64 `json:"unfair_number"`
	WeekendSplit int64 `json:"cluster_weekend_start"`
	SoftOn       int64 `json:"days_wanted_not_met"`
	SoftOff      int64 `json:"requested_off"`
}

// EffectiveConstant 生效常量记录
type EffectiveConstant struct {
	Path      string   `json:"path"`
	Raw       *float64 `json:"raw"`
	Used      float64  `json:"used"`
	Default   float64  `json:"default"`
	Defaulted bool     `json:"defaulted"`
}

func lookup(table NumberTable, key string, def float64) (float64, bool) {
	if table == nil {
		return def, true
	}
	v, ok := table[key]
	if !ok || v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return def, true
	}
	return *v, false
}

// ResolveSolver 解析求解参数
func (c *Constants) ResolveSolver() SolverSettings {
	get := func(k string) float64 {
		v, _ := lookup(c.Solver, k, solverDefaults[k])
		return v
	}
	s := SolverSettings{
		MaxTime:        time.Duration(get(KeyMaxTime) * float64(time.Second)),
		Phase1Fraction: get(KeyPhase1Fraction),
		RelativeGap:    get(KeyRelativeGap),
		NumThreads:     int(get(KeyNumThreads)),
		MinRest:        time.Duration(get(KeyMinRestHours) * float64(time.Hour)),
		PoolLimit:      int(get(KeyPoolLimit)),
		PoolWindow:     int64(get(KeyPoolWindow)),
	}
	if s.NumThreads < 1 {
		s.NumThreads = 1
	}
	if s.PoolLimit < 1 {
		s.PoolLimit = int(solverDefaults[KeyPoolLimit])
	}
	if s.PoolWindow < 0 {
		s.PoolWindow = 0
	}
	return s
}

// ResolveWeights 解析权重，小数按截断取整
func (c *Constants) ResolveWeights() Weights {
	hard := func(k string) int64 {
		v, _ := lookup(c.Weights.Hard, k, hardDefaults[k])
		return int64(v)
	}
	soft := func(k string) int64 {
		v, _ := lookup(c.Weights.Soft, k, softDefaults[k])
		return int64(v)
	}
	return Weights{
		Unfilled:     hard(KeySlackUnfilled),
		ShiftLess:    hard(KeySlackShiftLess),
		ShiftMore:    hard(KeySlackShiftMore),
		CantWork:     hard(KeySlackCantWork),
		Consec:       hard(KeySlackConsec),
		TypeRange:    hard(KeyTypeRange),
		WeekendRange: hard(KeyWeekendRange),

		Cluster:      soft(KeyCluster),
		ClusterSize:  soft(KeyClusterSize),
		Unfair:       soft(KeyUnfairNumber),
		WeekendSplit: soft(KeyClusterWeekendStart),
		SoftOn:       soft(KeyDaysWantedNotMet),
		SoftOff:      soft(KeyRequestedOff),
	}
}

// Effective 列出所有常量路径的生效值，标记使用默认值的项
func (c *Constants) Effective() []EffectiveConstant {
	var out []EffectiveConstant
	add := func(prefix string, table NumberTable, defaults map[string]float64) {
		keys := make([]string, 0, len(defaults))
		for k := range defaults {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			used, defaulted := lookup(table, k, defaults[k])
			var raw *float64
			if table != nil {
				raw = table[k]
			}
			out = append(out, EffectiveConstant{
				Path:      prefix + k,
				Raw:       raw,
				Used:      used,
				Default:   defaults[k],
				Defaulted: defaulted,
			})
		}
	}
	add("solver.", c.Solver, solverDefaults)
	add("weights.hard.", c.Weights.Hard, hardDefaults)
	add("weights.soft.", c.Weights.Soft, softDefaults)
	return out
}

// Float 构造常量值指针
func Float(v float64) *float64 {
	return &v
}
