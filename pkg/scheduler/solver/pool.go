package solver

import (
	"sync"
	"time"

	"github.com/paiban/medsched/pkg/scheduler/diversity"
)

// PoolEntry 解池中的一个解
type PoolEntry struct {
	Assign    []int         `json:"-"`
	Bits      []bool        `json:"-"`
	Objective int64         `json:"objective"`
	BestBound int64         `json:"best_bound"`
	Conflicts int64         `json:"conflicts"`
	Branches  int64         `json:"branches"`
	WallTime  time.Duration `json:"wall_time"`
}

func bitsKey(bits []bool) string {
	buf := make([]byte, (len(bits)+7)/8)
	for i, b := range bits {
		if b {
			buf[i/8] |= 1 << (i % 8)
		}
	}
	return string(buf)
}

// Pool 按位向量去重的解池，容量满后只接受严格更优的解替换最差解
type Pool struct {
	mu           sync.Mutex
	limit        int
	stopWhenFull bool
	entries      []*PoolEntry
	keys         []string
	index        map[string]int

	duplicates int
	dropped    int
	replaced   int
}

// NewPool 创建解池
func NewPool(limit int, stopWhenFull bool) *Pool {
	if limit < 1 {
		limit = 1
	}
	return &Pool{
		limit:        limit,
		stopWhenFull: stopWhenFull,
		index:        make(map[string]int),
	}
}

// Offer 记录一个解，返回是否被收入
func (p *Pool) Offer(e *PoolEntry) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := bitsKey(e.Bits)
	if _, dup := p.index[key]; dup {
		p.duplicates++
		return false
	}
	if len(p.entries) < p.limit {
		p.index[key] = len(p.entries)
		p.entries = append(p.entries, e)
		p.keys = append(p.keys, key)
		return true
	}

	worst := 0
	for i, x := range p.entries {
		if x.Objective > p.entries[worst].Objective {
			worst = i
		}
	}
	if e.Objective >= p.entries[worst].Objective {
		p.dropped++
		return false
	}
	delete(p.index, p.keys[worst])
	p.entries[worst] = e
	p.keys[worst] = key
	p.index[key] = worst
	p.replaced++
	return true
}

// Full 是否已达容量
func (p *Pool) Full() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries) >= p.limit
}

// ShouldStop 设置了满即停且已满
func (p *Pool) ShouldStop() bool {
	return p.stopWhenFull && p.Full()
}

// Len 解的数量
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Entries 解的快照，按收入位置排列
func (p *Pool) Entries() []*PoolEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*PoolEntry, len(p.entries))
	copy(out, p.entries)
	return out
}

// Candidates 供多样性挑选的候选列表，与 Entries 下标一致
func (p *Pool) Candidates() []diversity.Candidate {
	entries := p.Entries()
	out := make([]diversity.Candidate, len(entries))
	for i, e := range entries {
		out[i] = diversity.Candidate{Bits: e.Bits, Objective: e.Objective}
	}
	return out
}

// PoolStats 解池计数
type PoolStats struct {
	Size       int `json:"size"`
	Limit      int `json:"limit"`
	Duplicates int `json:"duplicates"`
	Dropped    int `json:"dropped"`
	Replaced   int `json:"replaced"`
}

// Stats 解池计数
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		Size:       len(p.entries),
		Limit:      p.limit,
		Duplicates: p.duplicates,
		Dropped:    p.dropped,
		Replaced:   p.replaced,
	}
}
