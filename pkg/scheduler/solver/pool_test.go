package solver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func entry(obj int64, bits ...bool) *PoolEntry {
	return &PoolEntry{Bits: bits, Objective: obj}
}

func TestPool_Offer(t *testing.T) {
	tests := []struct {
		name     string
		limit    int
		offers   []*PoolEntry
		accepted []bool
		want     []int64
		stats    PoolStats
	}{
		{
			name:     "按位向量去重",
			limit:    10,
			offers:   []*PoolEntry{entry(5, true, false), entry(3, true, false), entry(4, false, true)},
			accepted: []bool{true, false, true},
			want:     []int64{5, 4},
			stats:    PoolStats{Size: 2, Limit: 10, Duplicates: 1},
		},
		{
			name:     "满后更优的解替换最差解",
			limit:    2,
			offers:   []*PoolEntry{entry(5, true), entry(7, false), entry(6, true, true)},
			accepted: []bool{true, true, true},
			want:     []int64{5, 6},
			stats:    PoolStats{Size: 2, Limit: 2, Replaced: 1},
		},
		{
			name:     "满后不更优的解被丢弃",
			limit:    2,
			offers:   []*PoolEntry{entry(5, true), entry(7, false), entry(7, true, true)},
			accepted: []bool{true, true, false},
			want:     []int64{5, 7},
			stats:    PoolStats{Size: 2, Limit: 2, Dropped: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPool(tt.limit, false)
			for i, e := range tt.offers {
				assert.Equal(t, tt.accepted[i], p.Offer(e), "第 %d 个", i)
			}
			var got []int64
			for _, e := range p.Entries() {
				got = append(got, e.Objective)
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.stats, p.Stats())
		})
	}
}

func TestPool_ReplacedKeyCanReturn(t *testing.T) {
	p := NewPool(1, false)
	assert.True(t, p.Offer(entry(5, true)))
	assert.True(t, p.Offer(entry(3, false)))
	// 被替换掉的位向量不再视为重复
	assert.False(t, p.Offer(entry(5, true)), "不比当前更优")
	assert.Equal(t, 1, p.Stats().Dropped)
	assert.True(t, p.Offer(entry(1, true)))
}

func TestPool_StopWhenFull(t *testing.T) {
	p := NewPool(2, true)
	p.Offer(entry(1, true))
	assert.False(t, p.ShouldStop())
	p.Offer(entry(2, false))
	assert.True(t, p.Full())
	assert.True(t, p.ShouldStop())

	q := NewPool(1, false)
	q.Offer(entry(1, true))
	assert.True(t, q.Full())
	assert.False(t, q.ShouldStop())
}

func TestPool_Candidates(t *testing.T) {
	p := NewPool(0, false)
	assert.Equal(t, 1, p.Stats().Limit, "容量至少为 1")

	p = NewPool(5, false)
	p.Offer(entry(9, true, false))
	p.Offer(entry(2, false, true))
	c := p.Candidates()
	assert.Len(t, c, 2)
	assert.Equal(t, int64(9), c[0].Objective)
	assert.Equal(t, []bool{false, true}, c[1].Bits)
	assert.Equal(t, 2, p.Len())
}

func TestBitsKey(t *testing.T) {
	assert.Equal(t, bitsKey([]bool{true, false, true}), bitsKey([]bool{true, false, true}))
	assert.NotEqual(t, bitsKey([]bool{true, false}), bitsKey([]bool{false, true}))
	assert.Len(t, bitsKey(make([]bool, 9)), 2)
}
