package optimizer

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/paiban/medsched/pkg/logger"
	"github.com/paiban/medsched/pkg/model"
)

// IslandOptimizer 岛屿模型并行优化器
// 多条独立的退火链并行运行，第 i 条链使用种子 Seed+i
type IslandOptimizer struct {
	config      *OptimizationConfig
	inst        *model.Instance
	evaluator   Evaluator
	islandCount int

	mu sync.Mutex
	// OnVisit 可选，由各链串行调用
	OnVisit VisitFunc
}

// NewIslandOptimizer 创建岛屿模型优化器；islandCount 取 ParallelWorkers，至少 1
func NewIslandOptimizer(config *OptimizationConfig, inst *model.Instance, evaluator Evaluator) *IslandOptimizer {
	if config == nil {
		config = DefaultOptConfig()
	}
	n := config.ParallelWorkers
	if n < 1 {
		n = 1
	}
	return &IslandOptimizer{
		config:      config,
		inst:        inst,
		evaluator:   evaluator,
		islandCount: n,
	}
}

// Island 岛屿（独立链）
type Island struct {
	ID        int
	Best      *Solution
	Optimizer *LocalSearchOptimizer
}

// OptimizeIslands 从同一初始分配出发并行运行所有链，返回全局最优
func (io *IslandOptimizer) OptimizeIslands(ctx context.Context, initial []int) (*Solution, error) {
	islands := make([]*Island, io.islandCount)
	for i := range islands {
		cfg := *io.config
		cfg.Seed = io.config.Seed + int64(i)
		opt := NewLocalSearchOptimizer(&cfg, io.inst, io.evaluator)
		if io.OnVisit != nil {
			opt.OnVisit = func(assign []int, score int64) {
				io.mu.Lock()
				defer io.mu.Unlock()
				io.OnVisit(assign, score)
			}
		}
		islands[i] = &Island{ID: i, Optimizer: opt}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, island := range islands {
		island := island
		g.Go(func() error {
			best, err := island.Optimizer.Optimize(gctx, initial)
			island.Best = best
			return err
		})
	}
	err := g.Wait()

	var globalBest *Solution
	for _, island := range islands {
		if island.Best == nil {
			continue
		}
		if globalBest == nil || island.Best.Score < globalBest.Score {
			globalBest = island.Best
		}
	}

	logger.WithComponent("island").Debug().
		Int("islands", io.islandCount).
		Int64("best_score", scoreOf(globalBest)).
		Msg("岛屿模型优化完成")
	return globalBest, err
}

func scoreOf(s *Solution) int64 {
	if s == nil {
		return -1
	}
	return s.Score
}
