// Package validator 提供排班输入校验与排班结果冲突检测
package validator

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	zh_translations "github.com/go-playground/validator/v10/translations/zh"

	apperrors "github.com/paiban/medsched/pkg/errors"
	"github.com/paiban/medsched/pkg/model"
)

// Validator 案例校验器：结构标签校验 + 语义校验
type Validator struct {
	validate   *validator.Validate
	translator ut.Translator
}

// New 创建校验器，lang 为 zh 或 en
func New(lang string) (*Validator, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(jsonFieldName)

	zhLocale, enLocale := zh.New(), en.New()
	uni := ut.New(enLocale, enLocale, zhLocale)

	var (
		trans ut.Translator
		err   error
	)
	switch lang {
	case "zh":
		trans, _ = uni.GetTranslator("zh")
		err = zh_translations.RegisterDefaultTranslations(validate, trans)
	default:
		trans, _ = uni.GetTranslator("en")
		err = en_translations.RegisterDefaultTranslations(validate, trans)
	}
	if err != nil {
		return nil, err
	}
	return &Validator{validate: validate, translator: trans}, nil
}

func jsonFieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return fld.Name
	}
	return name
}

// ValidateCase 校验案例；返回 CodeInputValidation 的 AppError 或 nil
func (v *Validator) ValidateCase(c *model.Case) error {
	if errs := v.collect(c); errs.HasErrors() {
		return errs.ToAppError()
	}
	return nil
}

func (v *Validator) collect(c *model.Case) *apperrors.ValidationErrors {
	errs := &apperrors.ValidationErrors{}
	v.structErrors(c, errs)
	checkCalendar(c, errs)
	checkShifts(c, errs)
	checkProviders(c, errs)
	checkLimits(c, errs)
	checkConstants(c, errs)
	return errs
}

func (v *Validator) structErrors(c *model.Case, errs *apperrors.ValidationErrors) {
	err := v.validate.Struct(c)
	if err == nil {
		return
	}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		errs.Add("case", err.Error())
		return
	}
	for _, fe := range fieldErrs {
		errs.Add(fieldPath(fe.Namespace()), fe.Translate(v.translator))
	}
}

// fieldPath 去掉命名空间中的根类型名
func fieldPath(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func checkCalendar(c *model.Case, errs *apperrors.ValidationErrors) {
	seen := make(map[string]bool, len(c.Calendar.Days))
	for i, d := range c.Calendar.Days {
		if seen[d] {
			errs.Addf(fmt.Sprintf("calendar.days[%d]", i), "日期重复: %s", d)
		}
		seen[d] = true
	}
	for i, w := range c.Calendar.WeekendDays {
		if !isWeekdayName(w) {
			errs.Addf(fmt.Sprintf("calendar.weekend_days[%d]", i), "无法识别的星期名: %s", w)
		}
	}
}

func checkShifts(c *model.Case, errs *apperrors.ValidationErrors) {
	days := make(map[string]bool, len(c.Calendar.Days))
	for _, d := range c.Calendar.Days {
		days[d] = true
	}
	ids := make(map[string]int, len(c.Shifts))
	for i, s := range c.Shifts {
		field := fmt.Sprintf("shifts[%d]", i)
		if s.ID != "" {
			if prev, dup := ids[s.ID]; dup {
				errs.Addf(field+".id", "班次ID重复: %s（与 shifts[%d] 相同）", s.ID, prev)
			} else {
				ids[s.ID] = i
			}
		}
		if s.Date != "" && !days[s.Date] {
			errs.Addf(field+".date", "日期不在排班日历中: %s", s.Date)
		}
		if s.Start == "" || s.End == "" {
			continue
		}
		start, err1 := model.ParseTimestamp(s.Start)
		end, err2 := model.ParseTimestamp(s.End)
		if err1 != nil {
			errs.Addf(field+".start", "无法解析的时间: %s", s.Start)
		}
		if err2 != nil {
			errs.Addf(field+".end", "无法解析的时间: %s", s.End)
		}
		if err1 == nil && err2 == nil && !end.After(start) {
			errs.Add(field+".end", "结束时间必须晚于开始时间")
		}
	}
}

func checkProviders(c *model.Case, errs *apperrors.ValidationErrors) {
	names := make(map[string]int, len(c.Providers))
	for i, p := range c.Providers {
		field := fmt.Sprintf("providers[%d]", i)
		key := strings.TrimSpace(p.Name)
		if key != "" {
			if prev, dup := names[key]; dup {
				errs.Addf(field+".name", "人员姓名重复: %s（与 providers[%d] 相同）", key, prev)
			} else {
				names[key] = i
			}
		}
		if p.MaxConsecutiveDays.Set && p.MaxConsecutiveDays.Value < 0 {
			errs.Add(field+".max_consecutive_days", "不能为负数")
		}
		lim := p.Limits
		if lim.MinTotal != nil && lim.MaxTotal != nil && *lim.MinTotal > *lim.MaxTotal {
			errs.Addf(field+".limits", "min_total(%d) 大于 max_total(%d)", *lim.MinTotal, *lim.MaxTotal)
		}
		for typ, r := range lim.TypeRanges {
			if r[0] < 0 || r[0] > r[1] {
				errs.Addf(field+".limits.type_ranges."+typ, "区间非法 [%d, %d]", r[0], r[1])
			}
		}
		if r := lim.WeekendRange; r != nil && (r[0] < 0 || r[0] > r[1]) {
			errs.Addf(field+".limits.weekend_range", "区间非法 [%d, %d]", r[0], r[1])
		}
	}
}

func checkLimits(c *model.Case, errs *apperrors.ValidationErrors) {
	if c.Limits == nil {
		return
	}
	checkRange := func(field string, r []int) {
		if len(r) != 2 {
			errs.Add(field, "区间应为两个整数 [min, max]")
			return
		}
		if r[0] < 0 || r[0] > r[1] {
			errs.Addf(field, "区间非法 [%d, %d]", r[0], r[1])
		}
	}
	for i, it := range c.Limits.Total {
		checkRange(fmt.Sprintf("limits.total[%d].range", i), it.Range)
	}
	for i, it := range c.Limits.Weekend {
		checkRange(fmt.Sprintf("limits.weekend[%d].range", i), it.Range)
	}
	for i, it := range c.Limits.TypeRanges {
		checkRange(fmt.Sprintf("limits.type_ranges[%d].range", i), it.Range)
	}
	for i, it := range c.Limits.Consecutive {
		if it.Max != nil && *it.Max < 0 {
			errs.Add(fmt.Sprintf("limits.consecutive[%d].max", i), "不能为负数")
		}
	}
}

func checkConstants(c *model.Case, errs *apperrors.ValidationErrors) {
	positive := func(key string) {
		if v := c.Constants.Solver[key]; v != nil && *v <= 0 {
			errs.Addf("constants.solver."+key, "必须大于0，当前为 %v", *v)
		}
	}
	positive(model.KeyMaxTime)
	positive(model.KeyNumThreads)
	if v := c.Constants.Solver[model.KeyPhase1Fraction]; v != nil && (*v <= 0 || *v > 1) {
		errs.Addf("constants.solver."+model.KeyPhase1Fraction, "应在 (0, 1] 内，当前为 %v", *v)
	}
	if v := c.Constants.Solver[model.KeyRelativeGap]; v != nil && *v < 0 {
		errs.Addf("constants.solver."+model.KeyRelativeGap, "不能为负数，当前为 %v", *v)
	}
	if v := c.Constants.Solver[model.KeyMinRestHours]; v != nil && *v < 0 {
		errs.Addf("constants.solver."+model.KeyMinRestHours, "不能为负数，当前为 %v", *v)
	}
	for _, tbl := range []struct {
		name  string
		table model.NumberTable
	}{{"hard", c.Constants.Weights.Hard}, {"soft", c.Constants.Weights.Soft}} {
		for key, v := range tbl.table {
			if v != nil && *v < 0 {
				errs.Addf("constants.weights."+tbl.name+"."+key, "权重不能为负数，当前为 %v", *v)
			}
		}
	}
}

var weekdayNames = []string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

func isWeekdayName(s string) bool {
	for _, n := range weekdayNames {
		if n == s {
			return true
		}
	}
	return false
}
