package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/paiban/medsched/pkg/model"
)

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime"`
	ActiveRuns int               `json:"active_runs"`
	Checks     map[string]string `json:"checks,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Health 健康检查；任一依赖不可用时返回 503
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:     "ok",
		Version:    h.version,
		Uptime:     time.Since(h.started).Round(time.Second).String(),
		ActiveRuns: h.runs.Active(),
		Timestamp:  time.Now(),
	}
	status := http.StatusOK

	if len(h.checks) > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		resp.Checks = make(map[string]string, len(h.checks))
		for _, c := range h.checks {
			if err := c.Check(ctx); err != nil {
				resp.Checks[c.Name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[c.Name] = "ok"
		}
	}
	respondJSON(w, r, status, resp)
}

// Validate 校验案例并返回报告，不启动求解
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	c, appErr := decodeCase(r)
	if appErr != nil {
		respondError(w, r, appErr)
		return
	}
	respondJSON(w, r, http.StatusOK, h.validator.Check(c))
}

// Example 返回示例案例
func (h *Handler) Example(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, r, http.StatusOK, model.SampleCase())
}
