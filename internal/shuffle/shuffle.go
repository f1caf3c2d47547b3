// Package shuffle implements the empirical anti-lookahead check: permute a
// BTC series and confirm a candidate's signal sequence is materially
// sensitive to temporal order. The Shuffle Tester (C6).
package shuffle

import (
	"context"
	"math/rand"

	"github.com/poorman/alphafunnel/internal/fingerprint"
	"github.com/poorman/alphafunnel/internal/kernel"
	"github.com/poorman/alphafunnel/internal/logger"
	"github.com/poorman/alphafunnel/internal/metrics"
	"github.com/poorman/alphafunnel/internal/model"
)

var log = logger.Named("shuffle")

// VerdictStore is the durable, content-addressed verdict cache contract.
// internal/store implements it over SQLite.
type VerdictStore interface {
	Get(ctx context.Context, codeFingerprint string) (passed bool, found bool, err error)
	Put(ctx context.Context, codeFingerprint string, passed bool) error
}

// sameDistributionThreshold is the fraction of bars whose shuffled signal
// matches the original signal above which the logic is judged insensitive
// to temporal order, and therefore presumed to read future values.
const sameDistributionThreshold = 0.90

// Tester fronts a durable VerdictStore with a bounded in-memory cache so
// repeat lookups for the same fingerprint are wait-free.
type Tester struct {
	store VerdictStore
	cache *lru
}

// NewTester wraps store with an in-memory LRU of the given capacity.
func NewTester(store VerdictStore, cacheCapacity int) *Tester {
	return &Tester{store: store, cache: newLRU(cacheCapacity)}
}

// Test runs the shuffle check for a candidate's logic against btc, a ~30
// day BTC dataset at the candidate's timeframe, memoized by
// codeFingerprint.
func (t *Tester) Test(ctx context.Context, codeFingerprint string, logic kernel.CandidateLogic, btc model.Dataset, iterations int) (bool, error) {
	if v, ok := t.cache.get(codeFingerprint); ok {
		metrics.RecordShuffleCacheLookup("memory_hit")
		return v, nil
	}
	if v, found, err := t.store.Get(ctx, codeFingerprint); err != nil {
		return false, err
	} else if found {
		metrics.RecordShuffleCacheLookup("store_hit")
		t.cache.put(codeFingerprint, v)
		return v, nil
	}
	metrics.RecordShuffleCacheLookup("miss")

	passed := t.compute(logic, btc, codeFingerprint, iterations)

	if err := t.store.Put(ctx, codeFingerprint, passed); err != nil {
		return false, err
	}
	t.cache.put(codeFingerprint, passed)
	return passed, nil
}

func (t *Tester) compute(logic kernel.CandidateLogic, btc model.Dataset, codeFingerprint string, iterations int) bool {
	original := signalSequence(logic, btc.Bars)

	rng := rand.New(rand.NewSource(fingerprint.SeedOf(codeFingerprint)))

	var totalMatchRatio float64
	for iter := 0; iter < iterations; iter++ {
		permuted := permute(btc.Bars, rng)
		shuffled := signalSequence(logic, permuted)
		totalMatchRatio += matchRatio(original, shuffled)
	}
	avgMatch := totalMatchRatio / float64(iterations)
	metrics.ShuffleMatchRatio.Observe(avgMatch)

	passed := avgMatch < sameDistributionThreshold
	log.Debugf("fingerprint %s: avg match ratio across %d shuffles = %.3f, passed=%v", codeFingerprint, iterations, avgMatch, passed)
	return passed
}

func signalSequence(logic kernel.CandidateLogic, bars []model.OHLCV) []kernel.Signal {
	out := make([]kernel.Signal, len(bars))
	for i := range bars {
		out[i] = logic.ProduceSignal(kernel.BarWindow{Bars: bars, Index: i})
	}
	return out
}

func matchRatio(a, b []kernel.Signal) float64 {
	if len(a) == 0 {
		return 0
	}
	matches := 0
	for i := range a {
		if a[i] == b[i] {
			matches++
		}
	}
	return float64(matches) / float64(len(a))
}

func permute(bars []model.OHLCV, rng *rand.Rand) []model.OHLCV {
	out := make([]model.OHLCV, len(bars))
	copy(out, bars)
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
