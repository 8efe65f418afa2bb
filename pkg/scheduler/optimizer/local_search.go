// Package optimizer 提供基于局部搜索的排班优化算法
package optimizer

import (
	"context"
	"encoding/binary"
	"hash/fnv"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/paiban/medsched/pkg/logger"
	"github.com/paiban/medsched/pkg/model"
	"github.com/paiban/medsched/pkg/scheduler/constraint"
)

// OptimizationConfig 优化配置
type OptimizationConfig struct {
	MaxIterations    int           `json:"max_iterations"`    // 最大迭代次数
	MaxTime          time.Duration `json:"max_time"`          // 最大运行时间
	InitialTemp      float64       `json:"initial_temp"`      // 模拟退火初始温度
	CoolingRate      float64       `json:"cooling_rate"`      // 冷却速率
	TabuSize         int           `json:"tabu_size"`         // 禁忌表大小
	NeighborhoodSize int           `json:"neighborhood_size"` // 邻域大小
	ParallelWorkers  int           `json:"parallel_workers"`  // 并行链数
	StopOnPlateau    bool          `json:"stop_on_plateau"`   // 平台期停止
	PlateauThreshold int           `json:"plateau_threshold"` // 无改进迭代次数阈值
	Seed             int64         `json:"seed"`
}

// DefaultOptConfig 默认优化配置
func DefaultOptConfig() *OptimizationConfig {
	return &OptimizationConfig{
		MaxIterations:    1000,
		MaxTime:          30 * time.Second,
		InitialTemp:      100.0,
		CoolingRate:      0.99,
		TabuSize:         50,
		NeighborhoodSize: 20,
		ParallelWorkers:  4,
		StopOnPlateau:    true,
		PlateauThreshold: 100,
	}
}

// Solution 一份分配及其评分
type Solution struct {
	Assign []int
	Score  int64
}

// Clone 深拷贝
func (s *Solution) Clone() *Solution {
	return &Solution{Assign: append([]int(nil), s.Assign...), Score: s.Score}
}

// Evaluator 评分接口，分数越低越好；constraint.Manager 满足该接口
type Evaluator interface {
	Score(ctx *constraint.Context) int64
}

// VisitFunc 每接受一个新状态时回调，assign 为副本
type VisitFunc func(assign []int, score int64)

// LocalSearchOptimizer 模拟退火加禁忌表的局部搜索
type LocalSearchOptimizer struct {
	config    *OptimizationConfig
	inst      *model.Instance
	evaluator Evaluator
	neighbors *NeighborhoodGenerator
	tabuList  *TabuList
	rng       *rand.Rand
	log       *zerolog.Logger

	// OnVisit 可选
	OnVisit VisitFunc
}

// NewLocalSearchOptimizer 创建局部搜索优化器
func NewLocalSearchOptimizer(config *OptimizationConfig, inst *model.Instance, evaluator Evaluator) *LocalSearchOptimizer {
	if config == nil {
		config = DefaultOptConfig()
	}
	return &LocalSearchOptimizer{
		config:    config,
		inst:      inst,
		evaluator: evaluator,
		neighbors: NewNeighborhoodGenerator(inst, constraint.NewRestIndex(inst), config.Seed),
		tabuList:  NewTabuList(config.TabuSize),
		rng:       rand.New(rand.NewSource(config.Seed)),
		log:       logger.WithComponent("local_search"),
	}
}

// Optimize 从 initial 出发搜索，返回途中最优的分配
func (o *LocalSearchOptimizer) Optimize(ctx context.Context, initial []int) (*Solution, error) {
	start := time.Now()

	state := constraint.NewContext(o.inst)
	state.SetAssignment(initial)
	current := o.evaluator.Score(state)
	best := &Solution{Assign: append([]int(nil), state.Assign...), Score: current}
	o.visit(state.Assign, current)

	temperature := o.config.InitialTemp
	noImprovement := 0

	o.log.Debug().
		Int("max_iterations", o.config.MaxIterations).
		Dur("max_time", o.config.MaxTime).
		Int64("initial_score", current).
		Msg("开始局部搜索")

	for i := 0; i < o.config.MaxIterations; i++ {
		select {
		case <-ctx.Done():
			return best, ctx.Err()
		default:
		}
		if o.config.MaxTime > 0 && time.Since(start) > o.config.MaxTime {
			break
		}

		move, score, key := o.bestNeighbor(state)
		if move == nil {
			noImprovement++
			if o.config.StopOnPlateau && noImprovement >= o.config.PlateauThreshold {
				break
			}
			continue
		}

		accept := false
		if score < current {
			accept = true
		} else if !o.tabuList.Contains(key) {
			if o.rng.Float64() < boltzmannProbability(float64(score-current), temperature) {
				accept = true
			}
		}

		if accept {
			move.Apply(state)
			current = score
			o.tabuList.Add(key)
			o.visit(state.Assign, current)
			if current < best.Score {
				best = &Solution{Assign: append([]int(nil), state.Assign...), Score: current}
				noImprovement = 0
				o.log.Trace().Int("iteration", i).Int64("score", current).Msg("发现更优解")
			} else {
				noImprovement++
			}
		} else {
			noImprovement++
		}

		if o.config.StopOnPlateau && noImprovement >= o.config.PlateauThreshold {
			break
		}
		temperature *= o.config.CoolingRate
	}

	o.log.Debug().
		Int64("initial_score", o.evaluator.Score(contextOf(o.inst, initial))).
		Int64("best_score", best.Score).
		Dur("elapsed", time.Since(start)).
		Msg("局部搜索完成")
	return best, nil
}

func contextOf(inst *model.Instance, assign []int) *constraint.Context {
	ctx := constraint.NewContext(inst)
	ctx.SetAssignment(assign)
	return ctx
}

func (o *LocalSearchOptimizer) visit(assign []int, score int64) {
	if o.OnVisit != nil {
		o.OnVisit(append([]int(nil), assign...), score)
	}
}

// bestNeighbor 采样 NeighborhoodSize 个移动，返回评分最低的一个；上下文保持不变
func (o *LocalSearchOptimizer) bestNeighbor(state *constraint.Context) (*Move, int64, uint64) {
	var (
		best      *Move
		bestScore int64
		bestKey   uint64
	)
	for i := 0; i < o.config.NeighborhoodSize; i++ {
		m := o.neighbors.Generate(state)
		if m == nil {
			continue
		}
		m.Apply(state)
		score := o.evaluator.Score(state)
		key := hashAssign(state.Assign)
		m.Undo(state)
		if best == nil || score < bestScore {
			best, bestScore, bestKey = m, score, key
		}
	}
	return best, bestScore, bestKey
}

// hashAssign 分配向量的 FNV-1a 哈希
func hashAssign(assign []int) uint64 {
	h := fnv.New64a()
	var buf [4]byte
	for _, p := range assign {
		binary.LittleEndian.PutUint32(buf[:], uint32(int32(p)))
		h.Write(buf[:])
	}
	return h.Sum64()
}

// boltzmannProbability 计算模拟退火的接受概率
// delta: 能量差 (new - old)
// temperature: 当前温度
func boltzmannProbability(delta, temperature float64) float64 {
	if delta <= 0 {
		return 1.0
	}
	if temperature <= 0 {
		return 0.0
	}
	return math.Exp(-delta / temperature)
}

// TabuList 禁忌表（使用uint64哈希作为键）
type TabuList struct {
	items   map[uint64]struct{}
	order   []uint64
	maxSize int
	mu      sync.RWMutex
}

// NewTabuList 创建禁忌表
func NewTabuList(size int) *TabuList {
	if size <= 0 {
		size = 1
	}
	return &TabuList{
		items:   make(map[uint64]struct{}),
		order:   make([]uint64, 0, size),
		maxSize: size,
	}
}

// Add 添加到禁忌表，超出容量时移除最旧的
func (t *TabuList) Add(key uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.items[key]; exists {
		return
	}
	if len(t.order) >= t.maxSize {
		oldest := t.order[0]
		t.order = t.order[1:]
		delete(t.items, oldest)
	}
	t.items[key] = struct{}{}
	t.order = append(t.order, key)
}

// Contains 检查是否在禁忌表中
func (t *TabuList) Contains(key uint64) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, exists := t.items[key]
	return exists
}

// Len 禁忌表长度
func (t *TabuList) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.order)
}

// Clear 清空禁忌表
func (t *TabuList) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = make(map[uint64]struct{})
	t.order = t.order[:0]
}
