// Package model 定义排班实例的核心数据模型
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout 日期格式
const DateLayout = "2006-01-02"

// AnyType 偏好中表示任意班次类型
const AnyType = "ANY"

// DefaultProviderType 未声明类型的人员默认类型
const DefaultProviderType = "MD"

// DefaultWeekendDays 默认周末
var DefaultWeekendDays = []string{"Saturday", "Sunday"}

var timestampLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseDate 解析 YYYY-MM-DD 日期
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, strings.TrimSpace(s))
}

// ParseTimestamp 解析ISO时间戳，忽略 Z 或时区偏移，按墙上时间比较
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("空时间戳")
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC), nil
	}
	s = strings.TrimSuffix(s, "Z")
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("无法解析时间戳 %q", s)
}

// WeekdayName 返回日期的英文星期名，解析失败返回空串
func WeekdayName(date string) string {
	t, err := ParseDate(date)
	if err != nil {
		return ""
	}
	return t.Weekday().String()
}

// TimeRange 时间范围
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration 返回时间范围的持续时间
func (tr TimeRange) Duration() time.Duration {
	return tr.End.Sub(tr.Start)
}

// Overlaps 检查两个时间范围是否重叠
func (tr TimeRange) Overlaps(other TimeRange) bool {
	return tr.Start.Before(other.End) && other.Start.Before(tr.End)
}

// TooClose 两段时间重叠或间隔不足 gap
func (tr TimeRange) TooClose(other TimeRange, gap time.Duration) bool {
	first, second := tr, other
	if second.Start.Before(first.Start) {
		first, second = second, first
	}
	if second.Start.Before(first.End) {
		return true
	}
	return second.Start.Sub(first.End) < gap
}

// LooseInt 宽松整数：非整数值视为未设置
type LooseInt struct {
	Value int
	Set   bool
}

// IntPtr 构造已设置的 LooseInt
func IntPtr(v int) LooseInt {
	return LooseInt{Value: v, Set: true}
}

// UnmarshalJSON 实现 json.Unmarshaler
func (l *LooseInt) UnmarshalJSON(data []byte) error {
	*l = LooseInt{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		// 字符串或其他类型按未设置处理
		return nil
	}
	if v, err := strconv.Atoi(n.String()); err == nil {
		*l = LooseInt{Value: v, Set: true}
	}
	return nil
}

// MarshalJSON 实现 json.Marshaler
func (l LooseInt) MarshalJSON() ([]byte, error) {
	if !l.Set {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(l.Value)), nil
}
