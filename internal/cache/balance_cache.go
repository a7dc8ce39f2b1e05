package cache

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

type balanceEntry struct {
	value     decimal.Decimal
	fetchedAt time.Time
	fresh     bool
}

// BalanceCache кеш залоговых балансов по владельцу. Последнее известное
// значение хранится и после истечения TTL, чтобы его можно было показать
// как устаревшее.
type BalanceCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[common.Address]balanceEntry
	now     func() time.Time
}

// NewBalanceCache создает новый кеш
func NewBalanceCache(ttl time.Duration) *BalanceCache {
	return &BalanceCache{
		ttl:     ttl,
		entries: make(map[common.Address]balanceEntry),
		now:     time.Now,
	}
}

// Set сохраняет баланс в кеш
func (c *BalanceCache) Set(owner common.Address, value decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[owner] = balanceEntry{value: value, fetchedAt: c.now(), fresh: true}
}

// Get возвращает баланс, если он актуален
func (c *BalanceCache) Get(owner common.Address) (decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[owner]
	if !ok || !e.fresh {
		return decimal.Zero, false
	}

	// Проверяем, не истек ли TTL
	if c.now().Sub(e.fetchedAt) > c.ttl {
		return decimal.Zero, false
	}
	return e.value, true
}

// Last возвращает последнее известное значение независимо от TTL
func (c *BalanceCache) Last(owner common.Address) (decimal.Decimal, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[owner]
	if !ok {
		return decimal.Zero, time.Time{}, false
	}
	return e.value, e.fetchedAt, true
}

// Invalidate помечает значение устаревшим, следующий Get промахнется
func (c *BalanceCache) Invalidate(owner common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[owner]; ok {
		e.fresh = false
		c.entries[owner] = e
	}
}

// Clear очищает кеш
func (c *BalanceCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[common.Address]balanceEntry)
}

// Len количество владельцев в кеше
func (c *BalanceCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}
