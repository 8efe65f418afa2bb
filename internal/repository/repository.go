// Package repository 提供数据访问层
package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// ListFilter 列表查询过滤器
type ListFilter struct {
	Status   string `json:"status,omitempty"`
	Offset   int    `json:"offset"`
	Limit    int    `json:"limit"`
	OrderDir string `json:"order_dir,omitempty"` // asc/desc
}

// DefaultListFilter 返回默认过滤器
func DefaultListFilter() ListFilter {
	return ListFilter{
		Offset:   0,
		Limit:    20,
		OrderDir: "desc",
	}
}

// WithLimit 设置限制
func (f ListFilter) WithLimit(limit int) ListFilter {
	f.Limit = limit
	return f
}

// WithOffset 设置偏移
func (f ListFilter) WithOffset(offset int) ListFilter {
	f.Offset = offset
	return f
}

// WithStatus 设置状态过滤
func (f ListFilter) WithStatus(status string) ListFilter {
	f.Status = status
	return f
}

// normalized 修正越界的分页参数
func (f ListFilter) normalized() ListFilter {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if f.OrderDir != "asc" {
		f.OrderDir = "desc"
	}
	return f
}

// DB 数据库接口，*database.DB 满足
type DB interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	Transaction(ctx context.Context, fn func(tx *sqlx.Tx) error) error
}
