package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/paiban/medsched/internal/runmanager"
	apperrors "github.com/paiban/medsched/pkg/errors"
	"github.com/paiban/medsched/pkg/logger"
)

// SubmitResponse 提交求解的响应
type SubmitResponse struct {
	RunID    string            `json:"run_id"`
	Status   runmanager.Status `json:"status"`
	Warnings []string          `json:"warnings,omitempty"`
	Links    map[string]string `json:"links"`
}

// RunListResponse 任务列表
type RunListResponse struct {
	Runs   []runmanager.Run `json:"runs"`
	Total  int              `json:"total"`
	Active int              `json:"active"`
}

// Solve 校验案例并登记异步求解任务
func (h *Handler) Solve(w http.ResponseWriter, r *http.Request) {
	c, appErr := decodeCase(r)
	if appErr != nil {
		respondError(w, r, appErr)
		return
	}

	report := h.validator.Check(c)
	if !report.Valid {
		ve := &apperrors.ValidationErrors{Errors: report.Errors}
		respondError(w, r, ve.ToAppError())
		return
	}

	run, err := h.runs.Submit(r.Context(), c)
	if err != nil {
		respondError(w, r, err)
		return
	}
	logger.WithContext(r.Context()).Info().
		Str("run_id", run.ID).
		Int("shifts", report.Summary.Shifts).
		Int("providers", report.Summary.Providers).
		Msg("求解任务已提交")

	w.Header().Set("Location", "/api/v1/runs/"+run.ID)
	respondJSON(w, r, http.StatusAccepted, SubmitResponse{
		RunID:    run.ID,
		Status:   run.Status,
		Warnings: report.Warnings,
		Links: map[string]string{
			"self":   "/api/v1/runs/" + run.ID,
			"events": "/api/v1/ws/runs/" + run.ID,
		},
	})
}

// ListRuns 任务摘要列表，支持 status 与 limit 查询参数
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	status := runmanager.Status(r.URL.Query().Get("status"))
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > 500 {
			respondError(w, r, apperrors.InputValidation("limit", fmt.Sprintf("须为 1 到 500 的整数，收到 %q", s)))
			return
		}
		limit = n
	}

	runs, err := h.runs.List(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}

	out := make([]runmanager.Run, 0, len(runs))
	for _, run := range runs {
		if status != "" && run.Status != status {
			continue
		}
		out = append(out, run.Summary())
	}
	total := len(out)
	if len(out) > limit {
		out = out[:limit]
	}
	respondJSON(w, r, http.StatusOK, RunListResponse{Runs: out, Total: total, Active: h.runs.Active()})
}

// GetRun 任务详情，成功时带完整结果
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.runs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, run)
}

// CancelRun 取消进行中的任务或删除已结束的任务
func (h *Handler) CancelRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.runs.Delete(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, run.Summary())
}

// RunEvents 通过 websocket 推送任务进度
func (h *Handler) RunEvents(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		respondError(w, r, apperrors.New(apperrors.CodeEngineUnavailable, "进度推送未启用"))
		return
	}
	if err := h.hub.Serve(w, r, chi.URLParam(r, "id"), h.runs.Get); err != nil {
		respondError(w, r, err)
	}
}
