// Package store 在 Redis 中镜像求解任务状态，供多实例查询与重启后回读
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/paiban/medsched/internal/config"
	"github.com/paiban/medsched/internal/runmanager"
	apperrors "github.com/paiban/medsched/pkg/errors"
)

// Client 用到的 Redis 命令子集，*redis.Client 满足
type Client interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	ZAdd(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd
	ZRevRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	ZRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
}

// Open 按配置连接 Redis 并探活
func Open(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("连接 redis 失败: %w", err)
	}
	return rdb, nil
}

// RunStore 任务状态缓存
type RunStore struct {
	rdb    Client
	prefix string
	ttl    time.Duration
}

// New 创建任务状态缓存；ttl 为 0 表示不过期
func New(rdb Client, prefix string, ttl time.Duration) *RunStore {
	if prefix == "" {
		prefix = "medsched:run:"
	}
	return &RunStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *RunStore) key(id string) string {
	return s.prefix + id
}

func (s *RunStore) indexKey() string {
	return s.prefix + "index"
}

// Name 旁路名
func (s *RunStore) Name() string {
	return "redis"
}

// Notify 写入最新快照；新任务同时登记到按创建时间排序的索引
func (s *RunStore) Notify(ctx context.Context, ev runmanager.Event) error {
	if err := s.Put(ctx, ev.Run); err != nil {
		return err
	}
	if ev.Kind == runmanager.EventCreated {
		score := float64(ev.Run.CreatedAt.UnixNano())
		if err := s.rdb.ZAdd(ctx, s.indexKey(), redis.Z{Score: score, Member: ev.Run.ID}).Err(); err != nil {
			return apperrors.Wrap(err, apperrors.CodeCacheError, "登记任务索引失败")
		}
	}
	return nil
}

// Put 保存任务快照
func (s *RunStore) Put(ctx context.Context, run runmanager.Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("序列化任务失败: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key(run.ID), data, s.ttl).Err(); err != nil {
		return apperrors.Wrap(err, apperrors.CodeCacheError, "写入任务状态失败")
	}
	return nil
}

// GetRun 读取任务快照
func (s *RunStore) GetRun(ctx context.Context, id string) (*runmanager.Run, error) {
	data, err := s.rdb.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFound("任务", id)
		}
		return nil, apperrors.Wrap(err, apperrors.CodeCacheError, "读取任务状态失败")
	}
	var run runmanager.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("解析任务状态失败: %w", err)
	}
	return &run, nil
}

// ListRuns 最近创建的任务，已过期的条目从索引中清除
func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]runmanager.Run, error) {
	if limit <= 0 {
		limit = 100
	}
	ids, err := s.rdb.ZRevRange(ctx, s.indexKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeCacheError, "读取任务索引失败")
	}
	out := make([]runmanager.Run, 0, len(ids))
	var stale []interface{}
	for _, id := range ids {
		run, err := s.GetRun(ctx, id)
		if err != nil {
			if apperrors.Is(err, apperrors.CodeNotFound) {
				stale = append(stale, id)
				continue
			}
			return nil, err
		}
		out = append(out, *run)
	}
	if len(stale) > 0 {
		_ = s.rdb.ZRem(ctx, s.indexKey(), stale...).Err()
	}
	return out, nil
}

// Delete 删除任务快照
func (s *RunStore) Delete(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, s.key(id)).Err(); err != nil {
		return apperrors.Wrap(err, apperrors.CodeCacheError, "删除任务状态失败")
	}
	return s.rdb.ZRem(ctx, s.indexKey(), id).Err()
}

// Ping 探活
func (s *RunStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
