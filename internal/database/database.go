// Package database 提供数据库连接、迁移和事务
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL 驱动

	"github.com/paiban/medsched/internal/config"
	"github.com/paiban/medsched/pkg/logger"
)

// slowQuery 超过该耗时的语句记慢查询日志
const slowQuery = 100 * time.Millisecond

// DB 数据库连接封装
type DB struct {
	*sqlx.DB
	cfg *config.DatabaseConfig
}

// New 创建新的数据库连接
func New(ctx context.Context, cfg *config.DatabaseConfig) (*DB, error) {
	db, err := sqlx.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("打开数据库连接失败: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("数据库连接测试失败: %w", err)
	}

	logger.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Name).
		Msg("数据库连接成功")

	return &DB{DB: db, cfg: cfg}, nil
}

// Wrap 包装已有连接，测试和外部连接池使用
func Wrap(db *sqlx.DB) *DB {
	return &DB{DB: db}
}

// Close 关闭数据库连接
func (db *DB) Close() error {
	if db.DB != nil {
		logger.Info().Msg("关闭数据库连接")
		return db.DB.Close()
	}
	return nil
}

// Health 健康检查
func (db *DB) Health(ctx context.Context) error {
	return db.PingContext(ctx)
}

// Migrate 按顺序执行建表语句，语句均可重复执行
func (db *DB) Migrate(ctx context.Context) error {
	for i, stmt := range Migrations {
		if _, err := db.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("执行迁移 %d 失败: %w", i+1, err)
		}
	}
	logger.Info().Int("migrations", len(Migrations)).Msg("数据库迁移完成")
	return nil
}

// Transaction 执行事务
func (db *DB) Transaction(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开始事务失败: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("事务回滚失败: %v (原始错误: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("事务提交失败: %w", err)
	}
	return nil
}

// ExecContext 执行SQL语句并记录慢查询
func (db *DB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	start := time.Now()
	result, err := db.DB.ExecContext(ctx, query, args...)
	logSlow(query, time.Since(start))
	return result, err
}

// GetContext 查询单行并记录慢查询
func (db *DB) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	start := time.Now()
	err := db.DB.GetContext(ctx, dest, query, args...)
	logSlow(query, time.Since(start))
	return err
}

// SelectContext 查询多行并记录慢查询
func (db *DB) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	start := time.Now()
	err := db.DB.SelectContext(ctx, dest, query, args...)
	logSlow(query, time.Since(start))
	return err
}

func logSlow(query string, d time.Duration) {
	if d > slowQuery {
		logger.Warn().
			Str("query", truncateQuery(query)).
			Dur("duration", d).
			Msg("慢SQL查询")
	}
}

// truncateQuery 截断长查询
func truncateQuery(query string) string {
	if len(query) > 200 {
		return query[:200] + "..."
	}
	return query
}
