package runmanager

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/paiban/medsched/internal/metrics"
	apperrors "github.com/paiban/medsched/pkg/errors"
	"github.com/paiban/medsched/pkg/logger"
	"github.com/paiban/medsched/pkg/model"
	"github.com/paiban/medsched/pkg/scheduler/solver"
)

// SolveFunc 执行一次求解，默认 solver.Run
type SolveFunc func(ctx context.Context, c *model.Case, opts solver.Options) (*solver.Result, error)

// Config 任务管理配置
type Config struct {
	MaxConcurrent int
	Retention     time.Duration
	Options       solver.Options
	SinkTimeout   time.Duration
}

// Option 管理器选项
type Option func(*Manager)

// WithSinks 注册事件旁路
func WithSinks(sinks ...Sink) Option {
	return func(m *Manager) {
		for _, s := range sinks {
			if s != nil {
				m.sinks = append(m.sinks, s)
			}
		}
	}
}

// WithArchive 设置持久化查询
func WithArchive(a Archive) Option {
	return func(m *Manager) { m.archive = a }
}

// WithMetrics 设置指标收集器
func WithMetrics(c *metrics.Collector) Option {
	return func(m *Manager) { m.metrics = c }
}

// WithSolveFunc 替换求解函数
func WithSolveFunc(fn SolveFunc) Option {
	return func(m *Manager) { m.solve = fn }
}

type entry struct {
	run    Run
	cancel context.CancelFunc
}

// Manager 求解任务管理器；每个任务只有自己的执行协程写入，读取方拿到加锁复制的快照
type Manager struct {
	cfg     Config
	sem     chan struct{}
	solve   SolveFunc
	sinks   []Sink
	archive Archive
	metrics *metrics.Collector
	log     *zerolog.Logger

	mu     sync.RWMutex
	runs   map[string]*entry
	queued int

	wg       sync.WaitGroup
	base     context.Context
	shutdown context.CancelFunc
}

// New 创建任务管理器
func New(cfg Config, opts ...Option) *Manager {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = 5 * time.Second
	}
	base, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:      cfg,
		sem:      make(chan struct{}, cfg.MaxConcurrent),
		solve:    solver.Run,
		log:      logger.WithComponent("runmanager"),
		runs:     make(map[string]*entry),
		base:     base,
		shutdown: cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Submit 登记并异步执行一个求解任务
func (m *Manager) Submit(ctx context.Context, c *model.Case) (Run, error) {
	if c == nil {
		return Run{}, apperrors.InputValidation("case", "不能为空")
	}
	if err := m.base.Err(); err != nil {
		return Run{}, apperrors.New(apperrors.CodeEngineUnavailable, "任务管理器已关闭")
	}
	m.prune(time.Now())

	now := time.Now()
	run := Run{
		ID:        uuid.NewString(),
		Status:    StatusQueued,
		Message:   "等待求解",
		CreatedAt: now,
		UpdatedAt: now,
	}
	runCtx, cancel := context.WithCancel(logger.ContextWithRunID(m.base, run.ID))
	if rid := logger.RequestID(ctx); rid != "" {
		runCtx = logger.ContextWithRequestID(runCtx, rid)
	}

	m.mu.Lock()
	m.runs[run.ID] = &entry{run: run, cancel: cancel}
	m.queued++
	queued := m.queued
	m.mu.Unlock()
	m.metrics.SetQueued(queued)

	m.notify(EventCreated, run)
	m.log.Info().Str("run_id", run.ID).Msg("求解任务已登记")

	m.wg.Add(1)
	go m.execute(runCtx, cancel, run.ID, c)
	return run, nil
}

// execute 任务执行协程
func (m *Manager) execute(ctx context.Context, cancel context.CancelFunc, id string, c *model.Case) {
	defer m.wg.Done()
	defer cancel()

	select {
	case m.sem <- struct{}{}:
	case <-ctx.Done():
		m.dequeue()
		m.finish(id, nil, apperrors.Wrap(ctx.Err(), apperrors.CodeCanceled, "任务在排队时被取消"), 0)
		return
	}
	defer func() { <-m.sem }()
	m.dequeue()

	start := time.Now()
	m.metrics.RunStarted()
	defer m.metrics.RunFinished()

	if run, ok := m.update(id, func(r *Run) {
		r.Status = StatusRunning
		r.Message = "开始求解"
		r.StartedAt = &start
	}); ok {
		m.notify(EventStatus, run)
	}

	opts := m.cfg.Options
	opts.Progress = func(stage solver.Stage, percent int, message string) {
		if run, ok := m.update(id, func(r *Run) {
			r.Stage = string(stage)
			r.Progress = percent
			r.Message = message
		}); ok {
			m.notify(EventProgress, run)
		}
	}

	res, err := m.solve(ctx, c, opts)
	m.finish(id, res, err, time.Since(start))
}

func (m *Manager) dequeue() {
	m.mu.Lock()
	m.queued--
	queued := m.queued
	m.mu.Unlock()
	m.metrics.SetQueued(queued)
}

// finish 写入终态并投递
func (m *Manager) finish(id string, res *solver.Result, err error, elapsed time.Duration) {
	engine := m.cfg.Options.EngineName
	if engine == "" {
		engine = "cpsat"
	}
	if err == nil && res == nil {
		err = apperrors.New(apperrors.CodeInternal, "求解未返回结果")
	}
	run, ok := m.update(id, func(r *Run) {
		now := time.Now()
		r.CompletedAt = &now
		switch {
		case err == nil:
			r.Status = StatusSucceeded
			r.Progress = 100
			r.Message = "求解完成"
			r.Result = res
		case apperrors.Is(err, apperrors.CodeCanceled) || errors.Is(err, context.Canceled):
			r.Status = StatusCanceled
			r.Message = "任务已取消"
			r.Error = apperrors.From(err)
		default:
			r.Status = StatusFailed
			r.Progress = -1
			r.Error = apperrors.From(err)
			r.Message = r.Error.Message
		}
	})
	if !ok {
		return
	}

	log := m.log.With().Str("run_id", id).Str("status", string(run.Status)).Logger()
	switch run.Status {
	case StatusSucceeded:
		if res.Statistics == nil {
			break
		}
		sr := metrics.SolveResult{
			Engine:   res.Statistics.Engine,
			Status:   res.Status,
			Duration: elapsed,
			Pool:     res.Statistics.SolutionsCollected,
			Degraded: res.Statistics.Degraded,
			Fallback: res.Statistics.Fallback,
			Phase1:   res.Statistics.Phase1.Objective,
		}
		if len(res.Solutions) > 0 {
			sr.Objective = res.Solutions[0].Objective
			sr.Coverage = res.Solutions[0].Coverage
			sr.Gini = res.Solutions[0].Gini
		}
		m.metrics.RecordSolve(sr)
		log.Info().Dur("elapsed", elapsed).Int("solutions", len(res.Solutions)).Msg("求解任务完成")
	default:
		m.metrics.RecordFailure(engine, string(run.Status), elapsed)
		log.Warn().Err(err).Str("code", string(apperrors.GetCode(err))).Msg("求解任务未成功")
	}
	m.notify(EventFinished, run)
}

// update 在锁内修改任务并返回修改后的快照
func (m *Manager) update(id string, fn func(r *Run)) (Run, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.runs[id]
	if !ok {
		return Run{}, false
	}
	fn(&e.run)
	e.run.UpdatedAt = time.Now()
	return e.run, true
}

// notify 依次投递给各旁路
func (m *Manager) notify(kind EventKind, run Run) {
	ev := Event{Kind: kind, Run: run, At: time.Now()}
	for _, s := range m.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.SinkTimeout)
		if err := s.Notify(ctx, ev); err != nil {
			m.metrics.DeliveryFailed(s.Name())
			m.log.Warn().Err(err).Str("sink", s.Name()).Str("run_id", run.ID).Str("event", string(kind)).
				Msg("任务事件投递失败")
		}
		cancel()
	}
}

// Get 获取任务快照；内存中没有时查询持久化存储
func (m *Manager) Get(ctx context.Context, id string) (Run, error) {
	m.mu.RLock()
	e, ok := m.runs[id]
	var run Run
	if ok {
		run = e.run
	}
	m.mu.RUnlock()
	if ok {
		return run, nil
	}

	if m.archive != nil {
		r, err := m.archive.GetRun(ctx, id)
		if err != nil && !apperrors.Is(err, apperrors.CodeNotFound) {
			return Run{}, err
		}
		if r != nil {
			return *r, nil
		}
	}
	return Run{}, apperrors.NotFound("任务", id)
}

// List 按创建时间倒序列出任务摘要
func (m *Manager) List(ctx context.Context) ([]Run, error) {
	m.mu.RLock()
	out := make([]Run, 0, len(m.runs))
	seen := make(map[string]bool, len(m.runs))
	for id, e := range m.runs {
		out = append(out, e.run.Summary())
		seen[id] = true
	}
	m.mu.RUnlock()

	if m.archive != nil {
		archived, err := m.archive.ListRuns(ctx, 100)
		if err != nil {
			return nil, err
		}
		for _, r := range archived {
			if !seen[r.ID] {
				out = append(out, r.Summary())
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Delete 未结束的任务被取消（记录保留到结束）；已结束的任务从内存中移除
func (m *Manager) Delete(id string) (Run, error) {
	m.mu.Lock()
	e, ok := m.runs[id]
	if !ok {
		m.mu.Unlock()
		return Run{}, apperrors.NotFound("任务", id)
	}
	run := e.run
	if run.Status.Terminal() {
		delete(m.runs, id)
		m.mu.Unlock()
		m.log.Info().Str("run_id", id).Msg("已移除任务记录")
		return run, nil
	}
	cancel := e.cancel
	m.mu.Unlock()

	cancel()
	m.log.Info().Str("run_id", id).Msg("已请求取消任务")
	return run, nil
}

// Wait 等待某个任务结束或 ctx 到期
func (m *Manager) Wait(ctx context.Context, id string) (Run, error) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		run, err := m.Get(ctx, id)
		if err != nil {
			return Run{}, err
		}
		if run.Status.Terminal() {
			return run, nil
		}
		select {
		case <-ctx.Done():
			return run, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Active 未结束的任务数
func (m *Manager) Active() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, e := range m.runs {
		if !e.run.Status.Terminal() {
			n++
		}
	}
	return n
}

// prune 移除超过保留期的已结束任务
func (m *Manager) prune(now time.Time) {
	if m.cfg.Retention <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.runs {
		if e.run.Status.Terminal() && e.run.CompletedAt != nil && now.Sub(*e.run.CompletedAt) > m.cfg.Retention {
			delete(m.runs, id)
		}
	}
}

// Shutdown 取消所有任务并等待执行协程退出
func (m *Manager) Shutdown(ctx context.Context) error {
	m.shutdown()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
