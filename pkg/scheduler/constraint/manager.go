package constraint

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/paiban/medsched/pkg/logger"
)

// Manager 约束管理器
type Manager struct {
	constraints []Constraint
	mu          sync.RWMutex
	log         *zerolog.Logger
}

// NewManager 创建约束管理器
func NewManager() *Manager {
	return &Manager{
		constraints: make([]Constraint, 0),
		log:         logger.WithComponent("constraint"),
	}
}

// Register 注册约束，同类型约束会被替换
func (m *Manager) Register(c Constraint) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, existing := range m.constraints {
		if existing.Type() == c.Type() {
			m.constraints[i] = c
			return
		}
	}

	m.constraints = append(m.constraints, c)

	// 硬约束在前，权重高的在前
	sort.SliceStable(m.constraints, func(i, j int) bool {
		ci, cj := m.constraints[i], m.constraints[j]
		if ci.Category() != cj.Category() {
			return ci.Category() == CategoryHard
		}
		return ci.Weight() > cj.Weight()
	})
}

// Unregister 注销约束
func (m *Manager) Unregister(t Type) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, c := range m.constraints {
		if c.Type() == t {
			m.constraints = append(m.constraints[:i], m.constraints[i+1:]...)
			return
		}
	}
}

// GetConstraint 获取约束
func (m *Manager) GetConstraint(t Type) Constraint {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.constraints {
		if c.Type() == t {
			return c
		}
	}
	return nil
}

// GetAll 获取所有约束
func (m *Manager) GetAll() []Constraint {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Constraint, len(m.constraints))
	copy(result, m.constraints)
	return result
}

// GetByCategory 按类别获取约束
func (m *Manager) GetByCategory(cat Category) []Constraint {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []Constraint
	for _, c := range m.constraints {
		if c.Category() == cat {
			result = append(result, c)
		}
	}
	return result
}

// Evaluate 评估所有约束
func (m *Manager) Evaluate(ctx *Context) *Result {
	constraints := m.GetAll()

	result := &Result{
		IsValid:        true,
		Families:       make([]FamilyScore, 0, len(constraints)),
		HardViolations: make([]ViolationDetail, 0),
		SoftViolations: make([]ViolationDetail, 0),
	}

	for _, c := range constraints {
		amount, details := c.Evaluate(ctx)
		penalty := amount * c.Weight()
		result.Families = append(result.Families, FamilyScore{
			Type:     c.Type(),
			Name:     c.Name(),
			Category: c.Category(),
			Weight:   c.Weight(),
			Amount:   amount,
			Penalty:  penalty,
		})
		if c.Category() == CategoryHard {
			result.Hard += penalty
			if amount > 0 {
				result.IsValid = false
				result.HardViolations = append(result.HardViolations, details...)
				m.log.Debug().Str("constraint", c.Name()).Int64("amount", amount).Msg("硬约束松弛")
			}
		} else {
			result.Soft += penalty
			result.SoftViolations = append(result.SoftViolations, details...)
		}
	}
	return result
}

// Score 单目标评分，供回退搜索使用
func (m *Manager) Score(ctx *Context) int64 {
	constraints := m.GetAll()
	var hard, soft int64
	for _, c := range constraints {
		amount, _ := c.Evaluate(ctx)
		if c.Category() == CategoryHard {
			hard += amount * c.Weight()
		} else {
			soft += amount * c.Weight()
		}
	}
	return hard*HardScale + soft
}

// Clear 清除所有约束
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.constraints = make([]Constraint, 0)
}

// Count 返回约束数量
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.constraints)
}

// Summary 返回约束摘要
func (m *Manager) Summary() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hard := 0
	soft := 0
	for _, c := range m.constraints {
		if c.Category() == CategoryHard {
			hard++
		} else {
			soft++
		}
	}

	return map[string]interface{}{
		"total": len(m.constraints),
		"hard":  hard,
		"soft":  soft,
	}
}
