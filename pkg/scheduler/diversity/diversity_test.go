package diversity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// 五个解，相对最优解的距离依次为 0..4
func ladderPool() []Candidate {
	return []Candidate{
		{Bits: []bool{false, false, false, false}, Objective: 0},
		{Bits: []bool{true, false, false, false}, Objective: 1},
		{Bits: []bool{true, true, false, false}, Objective: 2},
		{Bits: []bool{true, true, true, false}, Objective: 3},
		{Bits: []bool{true, true, true, true}, Objective: 4},
	}
}

func TestSelect(t *testing.T) {
	tests := []struct {
		name         string
		pool         []Candidate
		k, l, floor  int
		wantIndices  []int
		wantAchieved int
		wantFinal    int
	}{
		{
			name:         "k=3 L=2 不需要放宽",
			pool:         ladderPool(),
			k:            3,
			l:            2,
			wantIndices:  []int{0, 2, 4},
			wantAchieved: 2,
			wantFinal:    2,
		},
		{
			name:         "阈值过高逐步放宽",
			pool:         ladderPool(),
			k:            3,
			l:            5,
			wantIndices:  []int{0, 4, 2},
			wantAchieved: 2,
			wantFinal:    2,
		},
		{
			name:         "到达下限后按目标值补齐",
			pool:         ladderPool(),
			k:            4,
			l:            3,
			floor:        3,
			wantIndices:  []int{0, 3, 1, 2},
			wantAchieved: 1,
			wantFinal:    3,
		},
		{
			name:         "池小于 k 时全部返回",
			pool:         ladderPool(),
			k:            10,
			l:            0,
			wantIndices:  []int{0, 1, 2, 3, 4},
			wantAchieved: 1,
			wantFinal:    0,
		},
		{
			name:         "只选一个时报告请求值",
			pool:         ladderPool(),
			k:            1,
			l:            3,
			wantIndices:  []int{0},
			wantAchieved: 3,
			wantFinal:    3,
		},
		{
			name: "按目标值排序且同分保持原顺序",
			pool: []Candidate{
				{Bits: []bool{true, true}, Objective: 5},
				{Bits: []bool{false, false}, Objective: 1},
				{Bits: []bool{true, false}, Objective: 5},
			},
			k:            2,
			l:            0,
			wantIndices:  []int{1, 0},
			wantAchieved: 2,
			wantFinal:    0,
		},
		{
			name:         "空池",
			k:            3,
			l:            2,
			wantAchieved: 2,
			wantFinal:    2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel := Select(tt.pool, tt.k, tt.l, tt.floor)
			assert.Equal(t, tt.wantIndices, sel.Indices)
			assert.Equal(t, tt.wantAchieved, sel.AchievedThreshold)
			assert.Equal(t, tt.wantFinal, sel.FinalThreshold)
			assert.LessOrEqual(t, len(sel.Indices), tt.k)
		})
	}
}

func TestSelect_PairwiseBound(t *testing.T) {
	pool := ladderPool()
	for k := 1; k <= 5; k++ {
		for l := 0; l <= 5; l++ {
			sel := Select(pool, k, l, 0)
			for a := 0; a < len(sel.Indices); a++ {
				for b := a + 1; b < len(sel.Indices); b++ {
					d := Hamming(pool[sel.Indices[a]].Bits, pool[sel.Indices[b]].Bits)
					assert.GreaterOrEqual(t, d, sel.AchievedThreshold)
				}
			}
		}
	}
}

func TestHamming(t *testing.T) {
	tests := []struct {
		name string
		a, b []bool
		want int
	}{
		{"相同", []bool{true, false}, []bool{true, false}, 0},
		{"全不同", []bool{true, false}, []bool{false, true}, 2},
		{"空向量", nil, nil, 0},
		{"长度不同", []bool{true}, []bool{true, false, true}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Hamming(tt.a, tt.b))
			assert.Equal(t, tt.want, Hamming(tt.b, tt.a))
		})
	}
}
