package cache

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

var owner = common.HexToAddress("0x00000000000000000000000000000000000a11ce")

func TestBalanceCacheTTL(t *testing.T) {
	c := NewBalanceCache(time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_, ok := c.Get(owner)
	assert.False(t, ok)

	c.Set(owner, decimal.RequireFromString("50"))
	v, ok := c.Get(owner)
	assert.True(t, ok)
	assert.True(t, v.Equal(decimal.RequireFromString("50")))

	now = now.Add(2 * time.Minute)
	_, ok = c.Get(owner)
	assert.False(t, ok)

	last, at, ok := c.Last(owner)
	assert.True(t, ok)
	assert.True(t, last.Equal(decimal.RequireFromString("50")))
	assert.Equal(t, now.Add(-2*time.Minute), at)
}

func TestBalanceCacheInvalidateKeepsLast(t *testing.T) {
	c := NewBalanceCache(time.Hour)
	c.Set(owner, decimal.NewFromInt(10))
	c.Invalidate(owner)

	_, ok := c.Get(owner)
	assert.False(t, ok)

	last, _, ok := c.Last(owner)
	assert.True(t, ok)
	assert.True(t, last.Equal(decimal.NewFromInt(10)))

	c.Clear()
	assert.Equal(t, 0, c.Len())
}
