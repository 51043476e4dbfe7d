package fetcher

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Provider identifiers for credit accounting.
const (
	ProviderHelius      = "helius"
	ProviderDexScreener = "dexscreener"
	ProviderPumpFun     = "pumpfun"
	ProviderRugCheck    = "rugcheck"
)

// Documented per-call unit costs. Every cache miss charges one of these;
// a cache hit charges nothing.
const (
	CostTokenData     = 1
	CostMetadataBatch = 1
	CostMetadataSolo  = 2
	CostBondingCurve  = 1
	CostHolders       = 10
	CostRugCheck      = 2
)

// Credits tracks external-API spend per provider. Counters only go up;
// the daily cron calls Reset. Budget 0 disables enforcement.
type Credits struct {
	mu       sync.RWMutex
	counters map[string]*atomic.Int64
	budget   int64
	warned   map[string]bool
}

func NewCredits(dailyBudget int64) *Credits {
	return &Credits{
		counters: make(map[string]*atomic.Int64),
		budget:   dailyBudget,
		warned:   make(map[string]bool),
	}
}

func (c *Credits) counter(provider string) *atomic.Int64 {
	c.mu.RLock()
	ctr, ok := c.counters[provider]
	c.mu.RUnlock()
	if ok {
		return ctr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctr, ok = c.counters[provider]; ok {
		return ctr
	}
	ctr = &atomic.Int64{}
	c.counters[provider] = ctr
	return ctr
}

func (c *Credits) Charge(provider string, units int64) {
	used := c.counter(provider).Add(units)
	if c.budget <= 0 {
		return
	}
	if used >= c.budget*8/10 {
		c.mu.Lock()
		first := !c.warned[provider]
		c.warned[provider] = true
		c.mu.Unlock()
		if first {
			log.Warn().Str("provider", provider).Int64("used", used).Int64("budget", c.budget).
				Msg("💳 credit budget at 80%")
		}
	}
}

func (c *Credits) Used(provider string) int64 {
	return c.counter(provider).Load()
}

func (c *Credits) Total() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var total int64
	for _, ctr := range c.counters {
		total += ctr.Load()
	}
	return total
}

// Exhausted reports whether the provider hit its daily budget. Free cached
// reads keep working; only paid enrichment consults this.
func (c *Credits) Exhausted(provider string) bool {
	if c.budget <= 0 {
		return false
	}
	return c.counter(provider).Load() >= c.budget
}

func (c *Credits) Snapshot() map[string]int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]int64, len(c.counters))
	for p, ctr := range c.counters {
		out[p] = ctr.Load()
	}
	return out
}

// Reset zeroes all counters. Called by the daily budget cron.
func (c *Credits) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ctr := range c.counters {
		ctr.Store(0)
	}
	c.warned = make(map[string]bool)
}
