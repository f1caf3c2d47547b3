package marketdata

import (
	"context"
	"sync"
	"time"

	"github.com/poorman/alphafunnel/internal/model"
)

type cacheKey struct {
	symbol string
	tf     model.Timeframe
	start  int64
	end    int64
}

type cacheEntry struct {
	dataset   model.Dataset
	fetchedAt time.Time
}

// CachedProvider wraps a Provider with a TTL read-through cache so the
// Optimizer (C3) fanning out many parameter combinations over the same
// dataset doesn't refetch it per goroutine.
type CachedProvider struct {
	inner Provider
	ttl   time.Duration

	mu      sync.Mutex
	entries map[cacheKey]cacheEntry
}

// NewCachedProvider wraps inner with an in-memory cache valid for ttl.
func NewCachedProvider(inner Provider, ttl time.Duration) *CachedProvider {
	return &CachedProvider{inner: inner, ttl: ttl, entries: make(map[cacheKey]cacheEntry)}
}

// FetchKlines returns the cached dataset if still fresh, otherwise
// delegates to the wrapped provider and refreshes the cache.
func (c *CachedProvider) FetchKlines(ctx context.Context, symbol string, tf model.Timeframe, start, end time.Time) (model.Dataset, error) {
	key := cacheKey{symbol: NormalizeSymbol(symbol), tf: tf, start: start.Unix(), end: end.Unix()}

	c.mu.Lock()
	if e, ok := c.entries[key]; ok && time.Since(e.fetchedAt) < c.ttl {
		c.mu.Unlock()
		return e.dataset, nil
	}
	c.mu.Unlock()

	ds, err := c.inner.FetchKlines(ctx, symbol, tf, start, end)
	if err != nil {
		return model.Dataset{}, err
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{dataset: ds, fetchedAt: time.Now()}
	c.mu.Unlock()
	return ds, nil
}

// Invalidate drops every cached entry for symbol, used by StreamRefresher
// when a fresh bar closes.
func (c *CachedProvider) Invalidate(symbol string) {
	sym := NormalizeSymbol(symbol)
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if k.symbol == sym {
			delete(c.entries, k)
		}
	}
}
