// Package coinregistry resolves the tradable coin universe and its
// exchange-fidelity constraints (max leverage, min notional) that C1's
// kernel enforces on every attempted fill.
package coinregistry

import (
	"context"
	"sort"
	"sync"

	"github.com/poorman/alphafunnel/internal/model"
)

// Registry answers which perpetual futures symbols are tradable and
// their per-symbol constraints.
type Registry interface {
	GetCoin(ctx context.Context, symbol string) (model.Coin, bool)
	TopByVolume(ctx context.Context, n int) ([]model.Coin, error)
}

// volumeRanked pairs a coin with its trailing 24h quote volume, used only
// to rank the catalog; volume itself isn't part of model.Coin.
type volumeRanked struct {
	coin   model.Coin
	volume float64
}

// StaticRegistry is an in-memory catalog filled by Refresher.Refresh from
// Binance's exchange info + 24h ticker endpoints, or by LoadFromStore.
type StaticRegistry struct {
	mu    sync.RWMutex
	coins map[string]volumeRanked
}

// NewStaticRegistry builds an empty registry; call Refresh to populate it.
func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{coins: make(map[string]volumeRanked)}
}

// Seed replaces the catalog wholesale, used by Refresh and by tests.
func (r *StaticRegistry) Seed(entries map[string]struct {
	Coin   model.Coin
	Volume float64
}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.coins = make(map[string]volumeRanked, len(entries))
	for symbol, e := range entries {
		r.coins[symbol] = volumeRanked{coin: e.Coin, volume: e.Volume}
	}
}

// Loader reads the persisted coin catalog back, for startup hydration
// before the first live Refresh completes. store.CoinStore satisfies
// this via its All method.
type Loader interface {
	All(ctx context.Context) ([]model.Coin, error)
}

// LoadFromStore seeds the registry from a durable catalog without
// waiting on a live Binance refresh; volume is unknown at load time so
// TopByVolume ranks these coins last until the next Refresh runs.
func (r *StaticRegistry) LoadFromStore(ctx context.Context, loader Loader) error {
	coins, err := loader.All(ctx)
	if err != nil {
		return err
	}
	entries := make(map[string]struct {
		Coin   model.Coin
		Volume float64
	}, len(coins))
	for _, c := range coins {
		entries[c.Symbol] = struct {
			Coin   model.Coin
			Volume float64
		}{Coin: c, Volume: 0}
	}
	r.Seed(entries)
	return nil
}

// GetCoin looks up a single symbol's constraints.
func (r *StaticRegistry) GetCoin(ctx context.Context, symbol string) (model.Coin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.coins[symbol]
	if !ok {
		return model.Coin{}, false
	}
	return v.coin, true
}

// TopByVolume returns the n tradable coins with the highest trailing
// volume, descending, for free/catalog-based candidates (spec source
// classes without a pattern-assigned coin list).
func (r *StaticRegistry) TopByVolume(ctx context.Context, n int) ([]model.Coin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ranked := make([]volumeRanked, 0, len(r.coins))
	for _, v := range r.coins {
		if v.coin.Tradable {
			ranked = append(ranked, v)
		}
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].volume > ranked[j].volume })

	if n > len(ranked) {
		n = len(ranked)
	}
	out := make([]model.Coin, n)
	for i := 0; i < n; i++ {
		out[i] = ranked[i].coin
	}
	return out, nil
}
