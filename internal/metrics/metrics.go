// Package metrics 提供Prometheus监控指标
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "medsched"

// Collector 指标收集器；nil 收集器的所有方法都是空操作
type Collector struct {
	// HTTP
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	// 求解任务
	solves        *prometheus.CounterVec
	solveDuration *prometheus.HistogramVec
	activeRuns    prometheus.Gauge
	queuedRuns    prometheus.Gauge
	poolSize      prometheus.Histogram
	degraded      prometheus.Counter
	fallbacks     prometheus.Counter

	// 解质量
	objective *prometheus.GaugeVec
	coverage  prometheus.Gauge
	gini      prometheus.Gauge

	// 旁路投递失败
	deliveryErrors *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New 创建收集器并注册到 reg；reg 为 nil 时使用独立注册表
func New(reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	c := &Collector{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP请求总数",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP请求延迟",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"method", "path"}),
		solves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "solves_total",
			Help:      "求解次数，按引擎与结果状态",
		}, []string{"engine", "status"}),
		solveDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "solve_duration_seconds",
			Help:      "求解耗时",
			Buckets:   []float64{0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0, 120.0, 300.0},
		}, []string{"engine"}),
		activeRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_runs",
			Help:      "正在求解的任务数",
		}),
		queuedRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queued_runs",
			Help:      "等待求解名额的任务数",
		}),
		poolSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pool_solutions",
			Help:      "第二阶段收集到的不同解数量",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		degraded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degraded_solves_total",
			Help:      "第一阶段未得到可行解的降级求解次数",
		}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_solves_total",
			Help:      "使用回退搜索的求解次数",
		}),
		objective: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_objective",
			Help:      "最近一次求解的目标值",
		}, []string{"phase"}),
		coverage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_coverage_rate",
			Help:      "最近一次最优解的班次覆盖率",
		}),
		gini: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_workload_gini",
			Help:      "最近一次最优解的工作量基尼系数",
		}),
		deliveryErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_errors_total",
			Help:      "状态旁路投递失败次数",
		}, []string{"sink"}),
		gatherer: reg,
	}

	reg.MustRegister(
		c.httpRequests, c.httpDuration,
		c.solves, c.solveDuration, c.activeRuns, c.queuedRuns, c.poolSize, c.degraded, c.fallbacks,
		c.objective, c.coverage, c.gini,
		c.deliveryErrors,
	)
	return c
}

// Handler 返回Prometheus格式的指标HTTP处理器
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// RecordRequest 记录请求指标
func (c *Collector) RecordRequest(method, path string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// SolveResult 一次求解的摘要
type SolveResult struct {
	Engine    string
	Status    string
	Duration  time.Duration
	Pool      int
	Degraded  bool
	Fallback  bool
	Phase1    int64
	Objective int64
	Coverage  float64
	Gini      float64
}

// RecordSolve 记录一次完成的求解
func (c *Collector) RecordSolve(r SolveResult) {
	if c == nil {
		return
	}
	c.solves.WithLabelValues(r.Engine, r.Status).Inc()
	c.solveDuration.WithLabelValues(r.Engine).Observe(r.Duration.Seconds())
	c.poolSize.Observe(float64(r.Pool))
	if r.Degraded {
		c.degraded.Inc()
	}
	if r.Fallback {
		c.fallbacks.Inc()
	}
	c.objective.WithLabelValues("phase1").Set(float64(r.Phase1))
	c.objective.WithLabelValues("phase2").Set(float64(r.Objective))
	c.coverage.Set(r.Coverage)
	c.gini.Set(r.Gini)
}

// RecordFailure 记录失败或取消的求解
func (c *Collector) RecordFailure(engine, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.solves.WithLabelValues(engine, status).Inc()
	c.solveDuration.WithLabelValues(engine).Observe(duration.Seconds())
}

// RunStarted 任务开始求解
func (c *Collector) RunStarted() {
	if c == nil {
		return
	}
	c.activeRuns.Inc()
}

// RunFinished 任务结束
func (c *Collector) RunFinished() {
	if c == nil {
		return
	}
	c.activeRuns.Dec()
}

// SetQueued 设置排队任务数
func (c *Collector) SetQueued(n int) {
	if c == nil {
		return
	}
	c.queuedRuns.Set(float64(n))
}

// DeliveryFailed 记录一次投递失败，sink 取 redis/postgres/amqp/websocket
func (c *Collector) DeliveryFailed(sink string) {
	if c == nil {
		return
	}
	c.deliveryErrors.WithLabelValues(sink).Inc()
}
