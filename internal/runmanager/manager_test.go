package runmanager

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paiban/medsched/internal/metrics"
	apperrors "github.com/paiban/medsched/pkg/errors"
	"github.com/paiban/medsched/pkg/model"
	"github.com/paiban/medsched/pkg/scheduler/solver"
)

// recordingSink 记录收到的事件
type recordingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Notify(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

func (s *recordingSink) kinds(id string) []EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []EventKind
	for _, ev := range s.events {
		if ev.Run.ID == id {
			out = append(out, ev.Kind)
		}
	}
	return out
}

// staticArchive 固定内容的持久化查询
type staticArchive struct {
	runs map[string]Run
}

func (a *staticArchive) GetRun(_ context.Context, id string) (*Run, error) {
	r, ok := a.runs[id]
	if !ok {
		return nil, apperrors.NotFound("任务", id)
	}
	return &r, nil
}

func (a *staticArchive) ListRuns(_ context.Context, _ int) ([]Run, error) {
	out := make([]Run, 0, len(a.runs))
	for _, r := range a.runs {
		out = append(out, r)
	}
	return out, nil
}

func okSolve(_ context.Context, _ *model.Case, opts solver.Options) (*solver.Result, error) {
	opts.Progress(solver.StagePhase1Solving, 10, "第一阶段")
	opts.Progress(solver.StagePhase2Solving, 50, "第二阶段")
	return &solver.Result{
		Status:     "OPTIMAL",
		Solutions:  []*solver.Schedule{{Rank: 1, Objective: 42, Coverage: 100}},
		Statistics: &solver.Statistics{Engine: "fake", Status: "OPTIMAL", SolutionsCollected: 3},
	}, nil
}

// blockingSolve 阻塞到 ctx 结束
func blockingSolve(started chan<- struct{}) SolveFunc {
	return func(ctx context.Context, _ *model.Case, _ solver.Options) (*solver.Result, error) {
		if started != nil {
			started <- struct{}{}
		}
		<-ctx.Done()
		return nil, apperrors.Wrap(ctx.Err(), apperrors.CodeCanceled, "求解被取消")
	}
}

func waitDone(t *testing.T, m *Manager, id string) Run {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	run, err := m.Wait(ctx, id)
	require.NoError(t, err)
	return run
}

func TestManager_SubmitSucceeds(t *testing.T) {
	sink := &recordingSink{}
	m := New(Config{MaxConcurrent: 1}, WithSolveFunc(okSolve), WithSinks(sink), WithMetrics(metrics.New(nil)))
	defer m.Shutdown(context.Background())

	run, err := m.Submit(context.Background(), model.SampleCase())
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, run.Status)
	assert.NotEmpty(t, run.ID)

	done := waitDone(t, m, run.ID)
	assert.Equal(t, StatusSucceeded, done.Status)
	assert.Equal(t, 100, done.Progress)
	require.NotNil(t, done.Result)
	assert.Equal(t, int64(42), done.Result.Solutions[0].Objective)
	assert.NotNil(t, done.StartedAt)
	assert.NotNil(t, done.CompletedAt)
	assert.Nil(t, done.Error)

	assert.Equal(t,
		[]EventKind{EventCreated, EventStatus, EventProgress, EventProgress, EventFinished},
		sink.kinds(run.ID))
	assert.Equal(t, 0, m.Active())
}

func TestManager_Failures(t *testing.T) {
	tests := []struct {
		name     string
		solve    SolveFunc
		wantCode apperrors.Code
	}{
		{
			"建模失败",
			func(context.Context, *model.Case, solver.Options) (*solver.Result, error) {
				return nil, apperrors.ModelConstruction("变量越界")
			},
			apperrors.CodeModelConstruction,
		},
		{
			"普通错误转为内部错误",
			func(context.Context, *model.Case, solver.Options) (*solver.Result, error) {
				return nil, errors.New("boom")
			},
			apperrors.CodeInternal,
		},
		{
			"没有结果也没有错误",
			func(context.Context, *model.Case, solver.Options) (*solver.Result, error) {
				return nil, nil
			},
			apperrors.CodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(Config{}, WithSolveFunc(tt.solve))
			defer m.Shutdown(context.Background())

			run, err := m.Submit(context.Background(), model.SampleCase())
			require.NoError(t, err)
			done := waitDone(t, m, run.ID)
			assert.Equal(t, StatusFailed, done.Status)
			require.NotNil(t, done.Error)
			assert.Equal(t, tt.wantCode, done.Error.Code)
			assert.Equal(t, -1, done.Progress)
		})
	}
}

func TestManager_DeleteCancelsRunning(t *testing.T) {
	started := make(chan struct{}, 1)
	m := New(Config{MaxConcurrent: 1}, WithSolveFunc(blockingSolve(started)))
	defer m.Shutdown(context.Background())

	run, err := m.Submit(context.Background(), model.SampleCase())
	require.NoError(t, err)
	<-started
	assert.Equal(t, 1, m.Active())

	_, err = m.Delete(run.ID)
	require.NoError(t, err)
	done := waitDone(t, m, run.ID)
	assert.Equal(t, StatusCanceled, done.Status)

	// 已结束的任务再次删除时移除记录
	_, err = m.Delete(run.ID)
	require.NoError(t, err)
	_, err = m.Get(context.Background(), run.ID)
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
}

func TestManager_QueuedCancel(t *testing.T) {
	started := make(chan struct{}, 2)
	m := New(Config{MaxConcurrent: 1}, WithSolveFunc(blockingSolve(started)))
	defer m.Shutdown(context.Background())

	first, err := m.Submit(context.Background(), model.SampleCase())
	require.NoError(t, err)
	<-started
	second, err := m.Submit(context.Background(), model.SampleCase())
	require.NoError(t, err)

	got, err := m.Get(context.Background(), second.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, got.Status, "名额已满时排队")

	_, err = m.Delete(second.ID)
	require.NoError(t, err)
	done := waitDone(t, m, second.ID)
	assert.Equal(t, StatusCanceled, done.Status)
	assert.Nil(t, done.StartedAt)

	_, err = m.Delete(first.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, waitDone(t, m, first.ID).Status)
}

func TestManager_SinkErrorsAreIgnored(t *testing.T) {
	sink := &recordingSink{err: errors.New("下游不可用")}
	m := New(Config{}, WithSolveFunc(okSolve), WithSinks(sink, nil))
	defer m.Shutdown(context.Background())

	run, err := m.Submit(context.Background(), model.SampleCase())
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, waitDone(t, m, run.ID).Status)
}

func TestManager_GetAndList(t *testing.T) {
	old := Run{ID: "archived-1", Status: StatusSucceeded, CreatedAt: time.Now().Add(-time.Hour)}
	m := New(Config{}, WithSolveFunc(okSolve), WithArchive(&staticArchive{runs: map[string]Run{old.ID: old}}))
	defer m.Shutdown(context.Background())

	run, err := m.Submit(context.Background(), model.SampleCase())
	require.NoError(t, err)
	waitDone(t, m, run.ID)

	got, err := m.Get(context.Background(), "archived-1")
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, got.Status)

	_, err = m.Get(context.Background(), "missing")
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))

	list, err := m.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, run.ID, list[0].ID, "新任务在前")
	assert.Nil(t, list[0].Result, "列表不带结果体")
	assert.Equal(t, "archived-1", list[1].ID)
}

func TestManager_SubmitAfterShutdown(t *testing.T) {
	m := New(Config{}, WithSolveFunc(okSolve))
	require.NoError(t, m.Shutdown(context.Background()))

	_, err := m.Submit(context.Background(), model.SampleCase())
	assert.True(t, apperrors.Is(err, apperrors.CodeEngineUnavailable))

	_, err = m.Submit(context.Background(), nil)
	assert.Error(t, err)
}

func TestManager_Prune(t *testing.T) {
	m := New(Config{Retention: time.Minute}, WithSolveFunc(okSolve))
	defer m.Shutdown(context.Background())

	run, err := m.Submit(context.Background(), model.SampleCase())
	require.NoError(t, err)
	waitDone(t, m, run.ID)

	m.prune(time.Now())
	_, err = m.Get(context.Background(), run.ID)
	require.NoError(t, err, "保留期内不清理")

	m.prune(time.Now().Add(2 * time.Minute))
	_, err = m.Get(context.Background(), run.ID)
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
}

func TestManager_RealSolve(t *testing.T) {
	c := model.NewCaseBuilder().
		Days("2025-03-03", 2).
		DailyShifts("D", "MD_DAY", 8, 10).
		Provider("A", "MD").
		Provider("B", "MD").
		Run(2, 0, 1, 1).
		Build()

	m := New(Config{Options: solver.Options{MinPhaseTime: 300 * time.Millisecond, Workers: 1}})
	defer m.Shutdown(context.Background())

	run, err := m.Submit(context.Background(), c)
	require.NoError(t, err)
	done := waitDone(t, m, run.ID)
	require.Equal(t, StatusSucceeded, done.Status, "%+v", done.Error)
	require.NotEmpty(t, done.Result.Solutions)
	assert.Empty(t, done.Result.Solutions[0].Unfilled)
}
