// Package runmanager 管理异步求解任务：登记、排队、执行、进度更新与取消
package runmanager

import (
	"context"
	"time"

	apperrors "github.com/paiban/medsched/pkg/errors"
	"github.com/paiban/medsched/pkg/scheduler/solver"
)

// Status 任务状态
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Terminal 是否为终态
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// Run 一次求解任务的快照
type Run struct {
	ID          string              `json:"run_id"`
	Status      Status              `json:"status"`
	Stage       string              `json:"stage,omitempty"`
	Progress    int                 `json:"progress"`
	Message     string              `json:"message"`
	Error       *apperrors.AppError `json:"error,omitempty"`
	Result      *solver.Result      `json:"result,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
	StartedAt   *time.Time          `json:"started_at,omitempty"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
}

// Summary 不带结果体的快照，用于列表
func (r Run) Summary() Run {
	r.Result = nil
	return r
}

// EventKind 任务事件类型
type EventKind string

const (
	EventCreated  EventKind = "created"
	EventStatus   EventKind = "status"
	EventProgress EventKind = "progress"
	EventFinished EventKind = "finished"
)

// Event 推送给旁路的任务事件
type Event struct {
	Kind EventKind `json:"type"`
	Run  Run       `json:"run"`
	At   time.Time `json:"timestamp"`
}

// Sink 任务事件的旁路接收方（缓存、数据库、消息队列、websocket），投递失败只记录日志
type Sink interface {
	Name() string
	Notify(ctx context.Context, ev Event) error
}

// Archive 内存中找不到时查询的持久化存储
type Archive interface {
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)
}
