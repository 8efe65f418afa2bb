package model

import (
	"strings"
	"time"
)

// Shift 班次
type Shift struct {
	ID                   string   `json:"id" validate:"required"`
	Name                 string   `json:"name,omitempty"`
	Date                 string   `json:"date" validate:"required,datetime=2006-01-02"`
	Type                 string   `json:"type" validate:"required"`
	Start                string   `json:"start" validate:"required"`
	End                  string   `json:"end" validate:"required"`
	AllowedProviderTypes []string `json:"allowed_provider_types,omitempty"`

	StartAt time.Time `json:"-"`
	EndAt   time.Time `json:"-"`
}

// Interval 班次时间段
func (s *Shift) Interval() TimeRange {
	return TimeRange{Start: s.StartAt, End: s.EndAt}
}

// DurationHours 返回班次时长（小时）
func (s *Shift) DurationHours() float64 {
	return s.EndAt.Sub(s.StartAt).Hours()
}

// RoleAndCode 拆分 "MD_D1" 形式的班次类型
func (s *Shift) RoleAndCode() (string, string) {
	if i := strings.Index(s.Type, "_"); i >= 0 {
		return s.Type[:i], s.Type[i+1:]
	}
	return "", s.Type
}

// DisplayName 展示名
func (s *Shift) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}

// parseTimes 解析起止时间
func (s *Shift) parseTimes() error {
	start, err := ParseTimestamp(s.Start)
	if err != nil {
		return err
	}
	end, err := ParseTimestamp(s.End)
	if err != nil {
		return err
	}
	s.StartAt, s.EndAt = start, end
	return nil
}
