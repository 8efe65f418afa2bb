package cpsat

import "math/bits"

// 变量定义域与中间量的取值上限，超出部分饱和
const (
	maxBound int64 = 1 << 60
	minBound int64 = -maxBound
	satLimit int64 = 1 << 62
)

func clamp(x int64) int64 {
	if x > satLimit {
		return satLimit
	}
	if x < -satLimit {
		return -satLimit
	}
	return x
}

func satAdd(a, b int64) int64 {
	if b > 0 && a > satLimit-b {
		return satLimit
	}
	if b < 0 && a < -satLimit-b {
		return -satLimit
	}
	return clamp(a + b)
}

func satSub(a, b int64) int64 {
	return satAdd(a, -b)
}

func satMul(a, b int64) int64 {
	if a == 0 || b == 0 {
		return 0
	}
	neg := (a < 0) != (b < 0)
	hi, lo := bits.Mul64(absU(a), absU(b))
	if hi != 0 || lo > uint64(satLimit) {
		if neg {
			return -satLimit
		}
		return satLimit
	}
	if neg {
		return -int64(lo)
	}
	return int64(lo)
}

func absU(x int64) uint64 {
	if x < 0 {
		return uint64(-x)
	}
	return uint64(x)
}
