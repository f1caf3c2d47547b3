package shuffle_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poorman/alphafunnel/internal/kernel"
	"github.com/poorman/alphafunnel/internal/model"
	"github.com/poorman/alphafunnel/internal/shuffle"
)

type fakeVerdictStore struct {
	mu     sync.Mutex
	verdicts map[string]bool
	puts   int
}

func newFakeVerdictStore() *fakeVerdictStore {
	return &fakeVerdictStore{verdicts: map[string]bool{}}
}

func (f *fakeVerdictStore) Get(ctx context.Context, fp string) (bool, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.verdicts[fp]
	return v, ok, nil
}

func (f *fakeVerdictStore) Put(ctx context.Context, fp string, passed bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verdicts[fp] = passed
	f.puts++
	return nil
}

// orderSensitive signals long only when the bar's position in a strictly
// ascending run matters: it fires precisely when Close is a new running
// high, which a shuffle destroys almost everywhere.
type orderSensitive struct{}

func (orderSensitive) Fingerprint() string { return "order-sensitive" }
func (orderSensitive) ProduceSignal(w kernel.BarWindow) kernel.Signal {
	if w.Index == 0 {
		return kernel.SignalNone
	}
	if w.Current().Close > w.Bars[w.Index-1].Close {
		return kernel.SignalOpenLong
	}
	return kernel.SignalNone
}

// constantSignal always returns the same signal regardless of bar order,
// the textbook lookahead-violating case the shuffle test exists to catch.
type constantSignal struct{}

func (constantSignal) Fingerprint() string                        { return "constant" }
func (constantSignal) ProduceSignal(kernel.BarWindow) kernel.Signal { return kernel.SignalOpenLong }

func btcDataset(n int) model.Dataset {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]model.OHLCV, n)
	for i := range bars {
		bars[i] = model.OHLCV{OpenTime: base.Add(time.Duration(i) * time.Hour), Close: float64(100 + i)}
	}
	return model.Dataset{Symbol: "BTCUSDT", Timeframe: model.TF1h, Bars: bars}
}

func TestTest_OrderInsensitiveLogicFailsShuffleCheck(t *testing.T) {
	store := newFakeVerdictStore()
	tester := shuffle.NewTester(store, 16)

	passed, err := tester.Test(context.Background(), "constant-fp", constantSignal{}, btcDataset(200), 20)
	require.NoError(t, err)
	assert.False(t, passed, "a signal that never varies with bar order must fail the shuffle test")
}

func TestTest_OrderSensitiveLogicPassesShuffleCheck(t *testing.T) {
	store := newFakeVerdictStore()
	tester := shuffle.NewTester(store, 16)

	passed, err := tester.Test(context.Background(), "order-sensitive-fp", orderSensitive{}, btcDataset(200), 20)
	require.NoError(t, err)
	assert.True(t, passed)
}

func TestTest_ResultIsMemoizedAndDeterministicAcrossCalls(t *testing.T) {
	store := newFakeVerdictStore()
	tester := shuffle.NewTester(store, 16)

	first, err := tester.Test(context.Background(), "order-sensitive-fp", orderSensitive{}, btcDataset(200), 20)
	require.NoError(t, err)
	second, err := tester.Test(context.Background(), "order-sensitive-fp", orderSensitive{}, btcDataset(200), 20)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, store.puts, "a cached fingerprint must not be recomputed or re-persisted")
}

func TestTest_ReadsThroughToDurableStoreOnCacheMiss(t *testing.T) {
	store := newFakeVerdictStore()
	require.NoError(t, store.Put(context.Background(), "pre-seeded", true))
	tester := shuffle.NewTester(store, 16)

	passed, err := tester.Test(context.Background(), "pre-seeded", constantSignal{}, btcDataset(200), 20)
	require.NoError(t, err)
	assert.True(t, passed, "a durable verdict must win over recomputing from a failing logic")
}
