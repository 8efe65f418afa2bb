// Package handler 提供HTTP请求处理器
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/paiban/medsched/internal/auth"
	"github.com/paiban/medsched/internal/metrics"
	"github.com/paiban/medsched/internal/middleware"
	"github.com/paiban/medsched/internal/runmanager"
	"github.com/paiban/medsched/internal/ws"
	apperrors "github.com/paiban/medsched/pkg/errors"
	"github.com/paiban/medsched/pkg/logger"
	"github.com/paiban/medsched/pkg/model"
	"github.com/paiban/medsched/pkg/validator"
)

// Runs 任务管理接口，*runmanager.Manager 满足
type Runs interface {
	Submit(ctx context.Context, c *model.Case) (runmanager.Run, error)
	Get(ctx context.Context, id string) (runmanager.Run, error)
	List(ctx context.Context) ([]runmanager.Run, error)
	Delete(id string) (runmanager.Run, error)
	Active() int
}

// HealthCheck 依赖健康检查
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Config 处理器依赖
type Config struct {
	Runs        Runs
	Validator   *validator.Validator
	Hub         *ws.Hub
	Metrics     *metrics.Collector
	Tokens      *auth.TokenManager
	RateLimiter *auth.RateLimiter
	Checks      []HealthCheck
	BodyLimit   int64
	CORSOrigins []string
	MetricsPath string
	Version     string
}

// Handler HTTP 处理器
type Handler struct {
	runs      Runs
	validator *validator.Validator
	hub       *ws.Hub
	metrics   *metrics.Collector
	checks    []HealthCheck
	version   string
	started   time.Time

	Mux *chi.Mux
}

// New 创建处理器并注册路由
func New(cfg Config) *Handler {
	h := &Handler{
		runs:      cfg.Runs,
		validator: cfg.Validator,
		hub:       cfg.Hub,
		metrics:   cfg.Metrics,
		checks:    cfg.Checks,
		version:   cfg.Version,
		started:   time.Now(),
		Mux:       chi.NewRouter(),
	}
	h.routes(cfg)
	return h
}

// ServeHTTP 实现 http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.Mux.ServeHTTP(w, r)
}

func (h *Handler) routes(cfg Config) {
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	h.Mux.Use(middleware.RequestID)
	h.Mux.Use(middleware.Logging(h.metrics))
	h.Mux.Use(middleware.Recovery)
	h.Mux.Use(middleware.SecurityHeaders)
	h.Mux.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if cfg.MetricsPath != "" {
		h.Mux.Handle(cfg.MetricsPath, h.metrics.Handler())
	}

	h.Mux.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(&middleware.AuthConfig{Tokens: cfg.Tokens}))
			r.Use(middleware.RateLimit(cfg.RateLimiter))

			r.With(middleware.BodyLimit(cfg.BodyLimit)).Post("/solve", h.Solve)
			r.With(middleware.BodyLimit(cfg.BodyLimit)).Post("/validate", h.Validate)
			r.Get("/example", h.Example)

			r.Route("/runs", func(r chi.Router) {
				r.Get("/", h.ListRuns)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.GetRun)
					r.Delete("/", h.CancelRun)
				})
			})

			r.Get("/ws/runs/{id}", h.RunEvents)
		})
	})
}

// decodeCase 解析请求体中的案例
func decodeCase(r *http.Request) (*model.Case, *apperrors.AppError) {
	c, err := model.DecodeCase(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperrors.InputValidation("body", "请求体过大")
		}
		return nil, apperrors.Wrap(err, apperrors.CodeInputValidation, "解析案例失败").WithDetails(err.Error())
	}
	return c, nil
}

// respondJSON 返回JSON响应
func respondJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.WithContext(r.Context()).Error().Err(err).Msg("写入响应失败")
	}
}

// ErrorResponse 错误响应体
type ErrorResponse struct {
	Error     bool                   `json:"error"`
	Code      apperrors.Code         `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// respondError 返回错误响应
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperrors.From(err)
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		logger.WithContext(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("请求处理失败")
	}
	respondJSON(w, r, appErr.HTTPStatus, ErrorResponse{
		Error:     true,
		Code:      appErr.Code,
		Message:   appErr.Message,
		Details:   appErr.Details,
		Fields:    appErr.Fields,
		RequestID: logger.RequestID(r.Context()),
	})
}
