// Package diversity 从解池中贪心挑选相互差异足够大的解
package diversity

import (
	"sort"
)

// Candidate 候选解：分配位向量与目标值
type Candidate struct {
	Bits      []bool
	Objective int64
}

// Selection 挑选结果
type Selection struct {
	// Indices 被选中的候选在输入池中的下标，按选中顺序
	Indices []int `json:"indices"`
	// AchievedThreshold 选中解两两之间的最小汉明距离；少于两个解时为请求值
	AchievedThreshold int `json:"achieved_threshold"`
	// FinalThreshold 挑选结束时放宽到的阈值
	FinalThreshold int `json:"final_threshold"`
}

// Hamming 两个等长位向量的汉明距离
func Hamming(a, b []bool) int {
	n := min(len(a), len(b))
	d := 0
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			d++
		}
	}
	// 长度不同时多出的置位也算差异
	for _, v := range a[n:] {
		if v {
			d++
		}
	}
	for _, v := range b[n:] {
		if v {
			d++
		}
	}
	return d
}

// Select 按目标值升序贪心挑选至多 k 个解
//
// 最优解无条件入选；之后每轮从头扫描，取第一个与所有已选解距离 ≥ threshold 的候选，
// 找不到则阈值减一（不低于 floor）重试；到达 floor 仍找不到时按目标值补齐。
func Select(pool []Candidate, k, threshold, floor int) Selection {
	sel := Selection{AchievedThreshold: threshold, FinalThreshold: threshold}
	if k <= 0 || len(pool) == 0 {
		return sel
	}
	if floor < 0 {
		floor = 0
	}
	if floor > threshold {
		floor = threshold
	}

	order := make([]int, len(pool))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return pool[order[a]].Objective < pool[order[b]].Objective
	})

	taken := make([]bool, len(pool))
	pick := func(i int) {
		taken[i] = true
		sel.Indices = append(sel.Indices, i)
	}
	pick(order[0])

	l := threshold
	for len(sel.Indices) < k && len(sel.Indices) < len(pool) {
		found := -1
		for _, i := range order {
			if taken[i] {
				continue
			}
			if farEnough(pool, sel.Indices, i, l) {
				found = i
				break
			}
		}
		if found >= 0 {
			pick(found)
			continue
		}
		if l > floor {
			l--
			continue
		}
		// 已到下限：按目标值补齐
		for _, i := range order {
			if len(sel.Indices) >= k {
				break
			}
			if !taken[i] {
				pick(i)
			}
		}
		break
	}
	sel.FinalThreshold = l

	if len(sel.Indices) >= 2 {
		sel.AchievedThreshold = MinPairwise(pool, sel.Indices)
	}
	return sel
}

func farEnough(pool []Candidate, selected []int, i, l int) bool {
	for _, j := range selected {
		if Hamming(pool[i].Bits, pool[j].Bits) < l {
			return false
		}
	}
	return true
}

// MinPairwise 给定候选两两之间的最小汉明距离，少于两个时返回 0
func MinPairwise(pool []Candidate, indices []int) int {
	if len(indices) < 2 {
		return 0
	}
	best := -1
	for a := 0; a < len(indices); a++ {
		for b := a + 1; b < len(indices); b++ {
			d := Hamming(pool[indices[a]].Bits, pool[indices[b]].Bits)
			if best < 0 || d < best {
				best = d
			}
		}
	}
	return best
}
