package middleware

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paiban/medsched/internal/auth"
	"github.com/paiban/medsched/internal/metrics"
	"github.com/paiban/medsched/pkg/logger"
)

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func decodeError(t *testing.T, body io.Reader) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.NewDecoder(body).Decode(&m))
	return m
}

func TestAuth(t *testing.T) {
	tokens := auth.NewTokenManager("s3cret", "medsched", time.Hour)
	valid, _, err := tokens.Issue("ops", "admin")
	require.NoError(t, err)

	var seen *auth.Claims
	h := Auth(&AuthConfig{Tokens: tokens, SkipPaths: []string{"/api/v1/health"}})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen, _ = auth.FromContext(r.Context())
			okHandler(w, r)
		}))

	tests := []struct {
		name   string
		path   string
		header string
		status int
	}{
		{"跳过健康检查", "/api/v1/health", "", http.StatusOK},
		{"缺少令牌", "/api/v1/runs", "", http.StatusUnauthorized},
		{"无效令牌", "/api/v1/runs", "Bearer nope", http.StatusUnauthorized},
		{"有效令牌", "/api/v1/runs", "Bearer " + valid, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusUnauthorized {
				body := decodeError(t, rec.Body)
				assert.Equal(t, "UNAUTHORIZED", body["code"])
			}
		})
	}
	require.NotNil(t, seen)
	assert.Equal(t, "ops", seen.Subject)
}

func TestAuth_Disabled(t *testing.T) {
	h := Auth(&AuthConfig{})(http.HandlerFunc(okHandler))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit(t *testing.T) {
	h := RateLimit(auth.NewRateLimiter(2, time.Minute))(http.HandlerFunc(okHandler))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
		if rec.Code == http.StatusTooManyRequests {
			assert.Equal(t, "60", rec.Header().Get("Retry-After"))
			assert.Equal(t, "RATE_LIMITED", decodeError(t, rec.Body)["code"])
		}
	}
	assert.Equal(t, []int{200, 200, 429}, codes)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)
	req.RemoteAddr = "10.0.0.2:5555"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, "其他地址不受影响")
}

func TestRequestID(t *testing.T) {
	var fromCtx string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fromCtx = logger.RequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	generated := rec.Header().Get(RequestIDHeader)
	assert.Len(t, generated, 36)
	assert.Equal(t, generated, fromCtx)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "client-42")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "client-42", rec.Header().Get(RequestIDHeader))
	assert.Equal(t, "client-42", fromCtx)
}

func TestRecovery(t *testing.T) {
	h := Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeError(t, rec.Body)
	assert.Equal(t, "INTERNAL_ERROR", body["code"])
	assert.Equal(t, "内部错误", body["message"])
}

func TestLogging_RecordsRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.New(reg)

	r := chi.NewRouter()
	r.Use(Logging(collector))
	r.Get("/runs/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs/"+id, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}

	families, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range families {
		if mf.GetName() != "medsched_http_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["path"] == "/runs/{id}" && labels["status"] == "404" {
				found = true
				assert.Equal(t, 2.0, m.GetCounter().GetValue())
			}
		}
	}
	assert.True(t, found, "按路由模板聚合")
}

func TestSecurityHeadersAndBodyLimit(t *testing.T) {
	h := SecurityHeaders(BodyLimit(4)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("toolong")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("ok")))
	assert.Equal(t, http.StatusOK, rec.Code)
}
