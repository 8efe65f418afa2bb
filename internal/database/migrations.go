package database

// Migrations 建表语句
var Migrations = []string{
	`CREATE TABLE IF NOT EXISTS solve_runs (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		stage TEXT NOT NULL DEFAULT '',
		progress INTEGER NOT NULL DEFAULT 0,
		message TEXT NOT NULL DEFAULT '',
		error JSONB,
		result JSONB,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		started_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_solve_runs_created_at ON solve_runs (created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_solve_runs_status ON solve_runs (status)`,

	// 每个任务选中的解，一行一个
	`CREATE TABLE IF NOT EXISTS run_solutions (
		run_id TEXT NOT NULL REFERENCES solve_runs(id) ON DELETE CASCADE,
		rank INTEGER NOT NULL,
		objective BIGINT NOT NULL,
		hard_penalty BIGINT NOT NULL,
		soft_penalty BIGINT NOT NULL,
		coverage_rate DOUBLE PRECISION NOT NULL,
		workload_gini DOUBLE PRECISION NOT NULL,
		unfilled INTEGER NOT NULL,
		assignments JSONB NOT NULL,
		PRIMARY KEY (run_id, rank)
	)`,
}
