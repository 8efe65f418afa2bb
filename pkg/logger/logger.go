// Package logger 提供统一的日志框架
package logger

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	once   sync.Once
	logger zerolog.Logger
)

// Config 日志配置
type Config struct {
	Level      string `yaml:"level" json:"level" env:"LEVEL"`
	Format     string `yaml:"format" json:"format" env:"FORMAT"` // json/console
	Output     string `yaml:"output" json:"output" env:"OUTPUT"` // stdout/stderr/file
	FilePath   string `yaml:"file_path,omitempty" json:"file_path,omitempty" env:"FILE_PATH"`
	TimeFormat string `yaml:"time_format,omitempty" json:"time_format,omitempty" env:"TIME_FORMAT"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "console",
		Output:     "stdout",
		TimeFormat: time.RFC3339,
	}
}

// Init 初始化日志器，仅首次调用生效
func Init(cfg Config) {
	once.Do(func() {
		logger = New(cfg)
		zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	})
}

// New 按配置构造独立的日志器
func New(cfg Config) zerolog.Logger {
	var output io.Writer
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "file":
		output = os.Stdout
		if cfg.FilePath != "" {
			if f, err := os.OpenFile(cfg.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644); err == nil {
				output = f
			}
		}
	default:
		output = os.Stdout
	}

	if cfg.Format == "console" {
		tf := cfg.TimeFormat
		if tf == "" {
			tf = time.RFC3339
		}
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: tf}
	}

	return zerolog.New(output).Level(parseLevel(cfg.Level)).With().Timestamp().Logger()
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// Get 获取日志器
func Get() *zerolog.Logger {
	Init(DefaultConfig())
	return &logger
}

type ctxKey string

const (
	requestIDKey ctxKey = "request_id"
	runIDKey     ctxKey = "run_id"
)

// ContextWithRequestID 在上下文中记录请求ID
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// ContextWithRunID 在上下文中记录求解任务ID
func ContextWithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// RequestID 读取上下文中的请求ID
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithContext 从上下文创建日志器
func WithContext(ctx context.Context) *zerolog.Logger {
	c := Get().With()
	if reqID, ok := ctx.Value(requestIDKey).(string); ok {
		c = c.Str("request_id", reqID)
	}
	if runID, ok := ctx.Value(runIDKey).(string); ok {
		c = c.Str("run_id", runID)
	}
	l := c.Logger()
	return &l
}

// Debug 记录调试日志
func Debug() *zerolog.Event {
	return Get().Debug()
}

// Info 记录信息日志
func Info() *zerolog.Event {
	return Get().Info()
}

// Warn 记录警告日志
func Warn() *zerolog.Event {
	return Get().Warn()
}

// Error 记录错误日志
func Error() *zerolog.Event {
	return Get().Error()
}

// WithComponent 带组件名的子日志器
func WithComponent(name string) *zerolog.Logger {
	l := Get().With().Str("component", name).Logger()
	return &l
}

// SolveLogger 求解流程专用日志器
type SolveLogger struct {
	base zerolog.Logger
}

// NewSolveLogger 创建求解日志器
func NewSolveLogger(ctx context.Context) *SolveLogger {
	l := WithContext(ctx).With().Str("component", "solver").Logger()
	return &SolveLogger{base: l}
}

// StartSolve 记录求解开始
func (l *SolveLogger) StartSolve(days, shifts, providers int, total time.Duration) {
	l.base.Info().
		Int("days", days).
		Int("shifts", shifts).
		Int("providers", providers).
		Dur("budget", total).
		Msg("开始求解排班")
}

// ModelBuilt 记录模型规模
func (l *SolveLogger) ModelBuilt(vars, constraints, assignVars int) {
	l.base.Debug().
		Int("variables", vars).
		Int("constraints", constraints).
		Int("assignment_vars", assignVars).
		Msg("约束模型构建完成")
}

// PhaseDone 记录阶段结束
func (l *SolveLogger) PhaseDone(phase, status string, objective, bound int64, wall time.Duration) {
	l.base.Info().
		Str("phase", phase).
		Str("status", status).
		Int64("objective", objective).
		Int64("best_bound", bound).
		Dur("wall", wall).
		Msg("求解阶段完成")
}

// Degraded 记录降级
func (l *SolveLogger) Degraded(reason string) {
	l.base.Warn().Str("reason", reason).Msg("求解降级")
}

// PoolCollected 记录解池规模
func (l *SolveLogger) PoolCollected(collected, selected, threshold int) {
	l.base.Info().
		Int("collected", collected).
		Int("selected", selected).
		Int("threshold", threshold).
		Msg("多样解选择完成")
}

// SolveComplete 记录求解完成
func (l *SolveLogger) SolveComplete(duration time.Duration, objective int64) {
	l.base.Info().
		Dur("duration", duration).
		Int64("objective", objective).
		Msg("排班求解完成")
}
