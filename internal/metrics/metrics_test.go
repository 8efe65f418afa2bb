package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// value 读取指标的当前值，labels 为空时取第一条
func value(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			match := true
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					match = false
				}
			}
			if !match {
				continue
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				return float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	t.Fatalf("指标 %s%v 不存在", name, labels)
	return 0
}

func TestCollector_RecordSolve(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.RecordSolve(SolveResult{
		Engine: "gophersat", Status: "OPTIMAL", Duration: 2 * time.Second,
		Pool: 12, Phase1: 3, Objective: 540, Coverage: 95.5, Gini: 0.12,
	})
	c.RecordSolve(SolveResult{Engine: "fallback", Status: "FEASIBLE", Degraded: true, Fallback: true})

	assert.Equal(t, 1.0, value(t, reg, "medsched_solves_total", map[string]string{"engine": "gophersat", "status": "OPTIMAL"}))
	assert.Equal(t, 1.0, value(t, reg, "medsched_solves_total", map[string]string{"engine": "fallback"}))
	assert.Equal(t, 2.0, value(t, reg, "medsched_pool_solutions", nil))
	assert.Equal(t, 1.0, value(t, reg, "medsched_degraded_solves_total", nil))
	assert.Equal(t, 1.0, value(t, reg, "medsched_fallback_solves_total", nil))
	assert.Equal(t, 0.0, value(t, reg, "medsched_last_objective", map[string]string{"phase": "phase2"}))
}

func TestCollector_RunsAndRequests(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.RunStarted()
	c.RunStarted()
	c.RunFinished()
	c.SetQueued(3)
	c.RecordRequest("POST", "/api/v1/solve", 202, 15*time.Millisecond)
	c.RecordFailure("gophersat", "failed", time.Second)
	c.DeliveryFailed("amqp")

	assert.Equal(t, 1.0, value(t, reg, "medsched_active_runs", nil))
	assert.Equal(t, 3.0, value(t, reg, "medsched_queued_runs", nil))
	assert.Equal(t, 1.0, value(t, reg, "medsched_http_requests_total", map[string]string{"status": "202"}))
	assert.Equal(t, 1.0, value(t, reg, "medsched_solves_total", map[string]string{"status": "failed"}))
	assert.Equal(t, 1.0, value(t, reg, "medsched_delivery_errors_total", map[string]string{"sink": "amqp"}))
}

func TestCollector_Nil(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RunStarted()
		c.RunFinished()
		c.SetQueued(1)
		c.RecordRequest("GET", "/", 200, time.Millisecond)
		c.RecordSolve(SolveResult{})
		c.RecordFailure("x", "failed", 0)
		c.DeliveryFailed("redis")
	})
}

func TestCollector_Handler(t *testing.T) {
	c := New(nil)
	c.RecordSolve(SolveResult{Engine: "gophersat", Status: "FEASIBLE"})

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `medsched_solves_total{engine="gophersat",status="FEASIBLE"} 1`)
}
