package model

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// Case 一次排班求解的完整输入
type Case struct {
	Constants Constants   `json:"constants"`
	Calendar  Calendar    `json:"calendar"`
	Shifts    []Shift     `json:"shifts" validate:"dive"`
	Providers []Provider  `json:"providers" validate:"dive"`
	Limits    *CaseLimits `json:"limits,omitempty"`
	Run       RunConfig   `json:"run"`
}

// Calendar 排班日历
type Calendar struct {
	Days        []string `json:"days" validate:"required,min=1,dive,datetime=2006-01-02"`
	WeekendDays []string `json:"weekend_days,omitempty"`
}

// RunConfig 单次运行参数
type RunConfig struct {
	K       *int     `json:"k,omitempty" validate:"omitempty,gte=1,lte=1000"`
	L       *int     `json:"L,omitempty" validate:"omitempty,gte=0"`
	RelaxTo *int     `json:"relax_to,omitempty" validate:"omitempty,gte=0"`
	Seed    *int64   `json:"seed,omitempty"`
	Time    *float64 `json:"time,omitempty" validate:"omitempty,gt=0"`
}

// CaseLimits 案例级的人员限制（按姓名模糊匹配合并到人员上）
type CaseLimits struct {
	Total       []RangeLimit    `json:"total,omitempty"`
	Weekend     []RangeLimit    `json:"weekend,omitempty"`
	Consecutive []ConsecLimit   `json:"consecutive,omitempty"`
	TypeRanges  []TypeRangeItem `json:"type_ranges,omitempty"`
}

// RangeLimit 区间限制
type RangeLimit struct {
	Provider string `json:"provider"`
	Range    []int  `json:"range"`
}

// ConsecLimit 连续天数限制
type ConsecLimit struct {
	Provider string `json:"provider"`
	Max      *int   `json:"max"`
}

// TypeRangeItem 按班次类型的区间限制
type TypeRangeItem struct {
	Provider string `json:"provider"`
	Type     string `json:"type"`
	Range    []int  `json:"range"`
}

// RunSettings 解析后的运行参数
type RunSettings struct {
	K         int
	L         int
	RelaxTo   int
	Seed      int64
	HasSeed   bool
	TotalTime time.Duration
}

// DefaultK 默认返回解数量
const DefaultK = 5

// RunSettings 解析运行参数，total 为常量中的总时长
func (c *Case) RunSettings(total time.Duration) RunSettings {
	rs := RunSettings{K: DefaultK, TotalTime: total}
	if c.Run.K != nil && *c.Run.K > 0 {
		rs.K = *c.Run.K
	}
	if c.Run.L != nil && *c.Run.L > 0 {
		rs.L = *c.Run.L
	}
	if c.Run.RelaxTo != nil && *c.Run.RelaxTo > 0 {
		rs.RelaxTo = *c.Run.RelaxTo
	}
	if rs.RelaxTo > rs.L {
		rs.RelaxTo = rs.L
	}
	if c.Run.Seed != nil {
		rs.Seed = *c.Run.Seed
		rs.HasSeed = true
	}
	if c.Run.Time != nil && *c.Run.Time > 0 {
		rs.TotalTime = time.Duration(*c.Run.Time * float64(time.Second))
	}
	return rs
}

// DecodeCase 从 JSON 解码案例
func DecodeCase(r io.Reader) (*Case, error) {
	var c Case
	dec := json.NewDecoder(r)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("解析案例JSON失败: %w", err)
	}
	return &c, nil
}

// LoadCaseFile 读取案例文件
func LoadCaseFile(path string) (*Case, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开案例文件失败: %w", err)
	}
	defer f.Close()
	return DecodeCase(f)
}
