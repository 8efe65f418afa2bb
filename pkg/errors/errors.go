// Package errors 提供统一的错误处理框架
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Code 错误码
type Code string

const (
	// 通用错误码
	CodeUnknown      Code = "UNKNOWN"
	CodeInternal     Code = "INTERNAL_ERROR"
	CodeNotFound     Code = "NOT_FOUND"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeTimeout      Code = "TIMEOUT"
	CodeRateLimited  Code = "RATE_LIMITED"
	CodeCanceled     Code = "CANCELED"

	// 求解相关
	CodeInputValidation   Code = "INPUT_VALIDATION"
	CodeModelConstruction Code = "MODEL_CONSTRUCTION"
	CodeEngineUnavailable Code = "ENGINE_UNAVAILABLE"
	CodeSolverDegraded    Code = "SOLVER_DEGRADED"

	// 基础设施
	CodeDatabaseError Code = "DATABASE_ERROR"
	CodeCacheError    Code = "CACHE_ERROR"
	CodePublishError  Code = "PUBLISH_ERROR"
)

// AppError 应用错误
type AppError struct {
	Code       Code                   `json:"code"`
	Message    string                 `json:"message"`
	Details    string                 `json:"details,omitempty"`
	HTTPStatus int                    `json:"-"`
	Cause      error                  `json:"-"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails 添加详细信息
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithField 添加字段
func (e *AppError) WithField(key string, value interface{}) *AppError {
	if e.Fields == nil {
		e.Fields = make(map[string]interface{})
	}
	e.Fields[key] = value
	return e
}

// New 创建新错误
func New(code Code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

// Newf 格式化创建错误
func Newf(code Code, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap 包装错误
func Wrap(err error, code Code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Cause:      err,
	}
}

func codeToHTTPStatus(code Code) int {
	switch code {
	case CodeInputValidation:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeEngineUnavailable:
		return http.StatusServiceUnavailable
	case CodeSolverDegraded:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

// Is 检查错误是否为特定类型
func Is(err error, code Code) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// GetCode 获取错误码
func GetCode(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// GetHTTPStatus 获取HTTP状态码
func GetHTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// From 将任意错误转换为 AppError
func From(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Wrap(err, CodeInternal, "内部错误")
}

// 预定义错误，只读使用
var (
	ErrInternal = New(CodeInternal, "内部错误")
	ErrTimeout  = New(CodeTimeout, "操作超时")
)

// InputValidation 创建输入校验错误
func InputValidation(field, reason string) *AppError {
	return New(CodeInputValidation, fmt.Sprintf("字段 '%s' 无效: %s", field, reason)).WithField(field, reason)
}

// ModelConstruction 创建建模错误
func ModelConstruction(format string, args ...interface{}) *AppError {
	return New(CodeModelConstruction, "模型构建失败: "+fmt.Sprintf(format, args...))
}

// NotFound 创建资源不存在错误
func NotFound(resource, id string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s '%s' 不存在", resource, id))
}

// ValidationErrors 验证错误集合
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

// ValidationError 单个验证错误
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error 实现 error 接口
func (ve *ValidationErrors) Error() string {
	if len(ve.Errors) == 0 {
		return "验证失败"
	}
	return fmt.Sprintf("验证失败: %s - %s", ve.Errors[0].Field, ve.Errors[0].Message)
}

// Add 添加验证错误
func (ve *ValidationErrors) Add(field, message string) {
	ve.Errors = append(ve.Errors, ValidationError{Field: field, Message: message})
}

// Addf 格式化添加验证错误
func (ve *ValidationErrors) Addf(field, format string, args ...interface{}) {
	ve.Add(field, fmt.Sprintf(format, args...))
}

// HasErrors 检查是否有错误
func (ve *ValidationErrors) HasErrors() bool {
	return len(ve.Errors) > 0
}

// ToAppError 转换为 AppError
func (ve *ValidationErrors) ToAppError() *AppError {
	err := New(CodeInputValidation, "输入校验失败")
	err.Fields = make(map[string]interface{}, len(ve.Errors))
	msgs := make([]string, 0, len(ve.Errors))
	for _, e := range ve.Errors {
		if prev, ok := err.Fields[e.Field]; ok {
			err.Fields[e.Field] = fmt.Sprintf("%v; %s", prev, e.Message)
		} else {
			err.Fields[e.Field] = e.Message
		}
		msgs = append(msgs, e.Field+": "+e.Message)
	}
	err.Details = strings.Join(msgs, "\n")
	return err
}
