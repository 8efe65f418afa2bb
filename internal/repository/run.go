package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/paiban/medsched/internal/runmanager"
	apperrors "github.com/paiban/medsched/pkg/errors"
)

// runRow solve_runs 表的一行
type runRow struct {
	ID          string       `db:"id"`
	Status      string       `db:"status"`
	Stage       string       `db:"stage"`
	Progress    int          `db:"progress"`
	Message     string       `db:"message"`
	Error       []byte       `db:"error"`
	Result      []byte       `db:"result"`
	CreatedAt   time.Time    `db:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at"`
	StartedAt   sql.NullTime `db:"started_at"`
	CompletedAt sql.NullTime `db:"completed_at"`
}

// SolutionRow run_solutions 表的一行，保存选中解的摘要与分配
type SolutionRow struct {
	RunID       string          `db:"run_id" json:"run_id"`
	Rank        int             `db:"rank" json:"rank"`
	Objective   int64           `db:"objective" json:"objective"`
	Hard        int64           `db:"hard_penalty" json:"hard_penalty"`
	Soft        int64           `db:"soft_penalty" json:"soft_penalty"`
	Coverage    float64         `db:"coverage_rate" json:"coverage_rate"`
	Gini        float64         `db:"workload_gini" json:"workload_gini"`
	Unfilled    int             `db:"unfilled" json:"unfilled"`
	Assignments json.RawMessage `db:"assignments" json:"assignments"`
}

const runColumns = `id, status, stage, progress, message, error, result,
	created_at, updated_at, started_at, completed_at`

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// jsonArg JSONB 参数按文本传递，nil 写入 NULL
func jsonArg(b []byte) interface{} {
	if b == nil {
		return nil
	}
	return string(b)
}

func toRow(run runmanager.Run) (runRow, error) {
	row := runRow{
		ID:          run.ID,
		Status:      string(run.Status),
		Stage:       run.Stage,
		Progress:    run.Progress,
		Message:     run.Message,
		CreatedAt:   run.CreatedAt,
		UpdatedAt:   run.UpdatedAt,
		StartedAt:   nullTime(run.StartedAt),
		CompletedAt: nullTime(run.CompletedAt),
	}
	var err error
	if run.Error != nil {
		if row.Error, err = json.Marshal(run.Error); err != nil {
			return runRow{}, fmt.Errorf("序列化任务错误失败: %w", err)
		}
	}
	if run.Result != nil {
		if row.Result, err = json.Marshal(run.Result); err != nil {
			return runRow{}, fmt.Errorf("序列化求解结果失败: %w", err)
		}
	}
	return row, nil
}

func (r runRow) toRun() (runmanager.Run, error) {
	run := runmanager.Run{
		ID:          r.ID,
		Status:      runmanager.Status(r.Status),
		Stage:       r.Stage,
		Progress:    r.Progress,
		Message:     r.Message,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		StartedAt:   timePtr(r.StartedAt),
		CompletedAt: timePtr(r.CompletedAt),
	}
	if len(r.Error) > 0 {
		if err := json.Unmarshal(r.Error, &run.Error); err != nil {
			return runmanager.Run{}, fmt.Errorf("解析任务错误失败: %w", err)
		}
	}
	if len(r.Result) > 0 {
		if err := json.Unmarshal(r.Result, &run.Result); err != nil {
			return runmanager.Run{}, fmt.Errorf("解析求解结果失败: %w", err)
		}
	}
	return run, nil
}

// solutionRows 选中解的摘要行
func solutionRows(run runmanager.Run) ([]SolutionRow, error) {
	if run.Result == nil {
		return nil, nil
	}
	rows := make([]SolutionRow, 0, len(run.Result.Solutions))
	for _, sch := range run.Result.Solutions {
		assignments, err := json.Marshal(sch.Assignments)
		if err != nil {
			return nil, fmt.Errorf("序列化分配失败: %w", err)
		}
		rows = append(rows, SolutionRow{
			RunID:       run.ID,
			Rank:        sch.Rank,
			Objective:   sch.Objective,
			Hard:        sch.Hard,
			Soft:        sch.Soft,
			Coverage:    sch.Coverage,
			Gini:        sch.Gini,
			Unfilled:    len(sch.Unfilled),
			Assignments: assignments,
		})
	}
	return rows, nil
}

// RunRepository 求解任务仓储
type RunRepository struct {
	db DB
}

// NewRunRepository 创建求解任务仓储
func NewRunRepository(db DB) *RunRepository {
	return &RunRepository{db: db}
}

// Name 旁路名
func (r *RunRepository) Name() string {
	return "postgres"
}

// Notify 持久化任务事件；进度事件不落库
func (r *RunRepository) Notify(ctx context.Context, ev runmanager.Event) error {
	switch ev.Kind {
	case runmanager.EventCreated:
		return r.Create(ctx, ev.Run)
	case runmanager.EventStatus:
		return r.Update(ctx, ev.Run)
	case runmanager.EventFinished:
		return r.Complete(ctx, ev.Run)
	}
	return nil
}

// Create 创建任务记录
func (r *RunRepository) Create(ctx context.Context, run runmanager.Run) error {
	row, err := toRow(run)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO solve_runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = r.db.ExecContext(ctx, query,
		row.ID, row.Status, row.Stage, row.Progress, row.Message, jsonArg(row.Error), jsonArg(row.Result),
		row.CreatedAt, row.UpdatedAt, row.StartedAt, row.CompletedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "创建任务记录失败")
	}
	return nil
}

const updateRunSQL = `
	UPDATE solve_runs SET
		status = $2, stage = $3, progress = $4, message = $5, error = $6, result = $7,
		updated_at = $8, started_at = $9, completed_at = $10
	WHERE id = $1
`

func updateArgs(row runRow) []interface{} {
	return []interface{}{
		row.ID, row.Status, row.Stage, row.Progress, row.Message, jsonArg(row.Error), jsonArg(row.Result),
		row.UpdatedAt, row.StartedAt, row.CompletedAt,
	}
}

// Update 更新任务状态
func (r *RunRepository) Update(ctx context.Context, run runmanager.Run) error {
	row, err := toRow(run)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, updateRunSQL, updateArgs(row)...)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "更新任务记录失败")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.NotFound("任务", run.ID)
	}
	return nil
}

// Complete 在一个事务中写入终态与选中的解
func (r *RunRepository) Complete(ctx context.Context, run runmanager.Run) error {
	row, err := toRow(run)
	if err != nil {
		return err
	}
	solutions, err := solutionRows(run)
	if err != nil {
		return err
	}

	err = r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, updateRunSQL, updateArgs(row)...); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM run_solutions WHERE run_id = $1`, run.ID); err != nil {
			return err
		}
		for _, s := range solutions {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO run_solutions (
					run_id, rank, objective, hard_penalty, soft_penalty,
					coverage_rate, workload_gini, unfilled, assignments
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			`, s.RunID, s.Rank, s.Objective, s.Hard, s.Soft, s.Coverage, s.Gini, s.Unfilled, string(s.Assignments))
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "保存求解结果失败")
	}
	return nil
}

// GetRun 根据ID获取任务
func (r *RunRepository) GetRun(ctx context.Context, id string) (*runmanager.Run, error) {
	var row runRow
	err := r.db.GetContext(ctx, &row, `SELECT `+runColumns+` FROM solve_runs WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("任务", id)
		}
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "查询任务失败")
	}
	run, err := row.toRun()
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// List 分页查询任务摘要，返回本页与总数
func (r *RunRepository) List(ctx context.Context, filter ListFilter) ([]runmanager.Run, int, error) {
	f := filter.normalized()

	where, args := "", []interface{}{}
	if f.Status != "" {
		where = " WHERE status = $1"
		args = append(args, f.Status)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM solve_runs`+where, args...); err != nil {
		return nil, 0, apperrors.Wrap(err, apperrors.CodeDatabaseError, "统计任务失败")
	}

	query := fmt.Sprintf(`
		SELECT id, status, stage, progress, message, error, NULL AS result,
			created_at, updated_at, started_at, completed_at
		FROM solve_runs%s
		ORDER BY created_at %s
		LIMIT $%d OFFSET $%d
	`, where, f.OrderDir, len(args)+1, len(args)+2)
	args = append(args, f.Limit, f.Offset)

	var rows []runRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, apperrors.Wrap(err, apperrors.CodeDatabaseError, "查询任务列表失败")
	}
	runs := make([]runmanager.Run, 0, len(rows))
	for _, row := range rows {
		run, err := row.toRun()
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, run)
	}
	return runs, total, nil
}

// ListRuns 最近创建的任务
func (r *RunRepository) ListRuns(ctx context.Context, limit int) ([]runmanager.Run, error) {
	runs, _, err := r.List(ctx, DefaultListFilter().WithLimit(limit))
	return runs, err
}

// Solutions 任务选中解的摘要，按名次排列
func (r *RunRepository) Solutions(ctx context.Context, runID string) ([]SolutionRow, error) {
	var rows []SolutionRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT run_id, rank, objective, hard_penalty, soft_penalty,
			coverage_rate, workload_gini, unfilled, assignments
		FROM run_solutions WHERE run_id = $1 ORDER BY rank
	`, runID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "查询任务解失败")
	}
	return rows, nil
}

// Delete 删除任务及其解
func (r *RunRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM solve_runs WHERE id = $1`, id)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeDatabaseError, "删除任务失败")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.NotFound("任务", id)
	}
	return nil
}
