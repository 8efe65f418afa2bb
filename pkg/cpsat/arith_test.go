package cpsat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSaturatingArithmetic(t *testing.T) {
	assert.Equal(t, satLimit, satAdd(satLimit-1, 5))
	assert.Equal(t, -satLimit, satSub(-satLimit+1, 5))
	assert.Equal(t, satLimit, satMul(1<<40, 1<<40))
	assert.Equal(t, -satLimit, satMul(-(1 << 40), 1<<40))
	assert.Equal(t, int64(-12), satMul(-3, 4))
	assert.Equal(t, int64(0), satMul(0, satLimit))
}
