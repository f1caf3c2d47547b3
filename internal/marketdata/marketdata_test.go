package marketdata_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poorman/alphafunnel/internal/marketdata"
	"github.com/poorman/alphafunnel/internal/model"
)

func TestNormalizeSymbol_AppendsUSDTSuffixWhenMissing(t *testing.T) {
	assert.Equal(t, "BTCUSDT", marketdata.NormalizeSymbol("btc"))
}

func TestNormalizeSymbol_LeavesExistingUSDTSuffixAlone(t *testing.T) {
	assert.Equal(t, "ETHUSDT", marketdata.NormalizeSymbol("ethusdt"))
}

type fakeProvider struct {
	mu    sync.Mutex
	calls int
	ds    model.Dataset
	err   error
}

func (f *fakeProvider) FetchKlines(ctx context.Context, symbol string, tf model.Timeframe, start, end time.Time) (model.Dataset, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.ds, f.err
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestCachedProvider_SecondCallWithinTTLHitsCache(t *testing.T) {
	inner := &fakeProvider{ds: model.Dataset{Symbol: "BTCUSDT"}}
	cached := marketdata.NewCachedProvider(inner, time.Minute)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	_, err := cached.FetchKlines(context.Background(), "btcusdt", model.TF1h, start, end)
	require.NoError(t, err)
	_, err = cached.FetchKlines(context.Background(), "btcusdt", model.TF1h, start, end)
	require.NoError(t, err)

	assert.Equal(t, 1, inner.callCount())
}

func TestCachedProvider_DistinctKeysEachFetchFromInner(t *testing.T) {
	inner := &fakeProvider{ds: model.Dataset{Symbol: "BTCUSDT"}}
	cached := marketdata.NewCachedProvider(inner, time.Minute)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	_, err := cached.FetchKlines(context.Background(), "BTCUSDT", model.TF1h, start, end)
	require.NoError(t, err)
	_, err = cached.FetchKlines(context.Background(), "ETHUSDT", model.TF1h, start, end)
	require.NoError(t, err)

	assert.Equal(t, 2, inner.callCount())
}

func TestCachedProvider_ExpiredTTLRefetchesFromInner(t *testing.T) {
	inner := &fakeProvider{ds: model.Dataset{Symbol: "BTCUSDT"}}
	cached := marketdata.NewCachedProvider(inner, time.Nanosecond)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	_, err := cached.FetchKlines(context.Background(), "BTCUSDT", model.TF1h, start, end)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	_, err = cached.FetchKlines(context.Background(), "BTCUSDT", model.TF1h, start, end)
	require.NoError(t, err)

	assert.Equal(t, 2, inner.callCount())
}

func TestCachedProvider_InvalidateForcesRefetchOnNextCall(t *testing.T) {
	inner := &fakeProvider{ds: model.Dataset{Symbol: "BTCUSDT"}}
	cached := marketdata.NewCachedProvider(inner, time.Hour)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	_, err := cached.FetchKlines(context.Background(), "BTCUSDT", model.TF1h, start, end)
	require.NoError(t, err)
	cached.Invalidate("btcusdt")
	_, err = cached.FetchKlines(context.Background(), "BTCUSDT", model.TF1h, start, end)
	require.NoError(t, err)

	assert.Equal(t, 2, inner.callCount())
}

func TestCachedProvider_InvalidateForOtherSymbolLeavesCacheIntact(t *testing.T) {
	inner := &fakeProvider{ds: model.Dataset{Symbol: "BTCUSDT"}}
	cached := marketdata.NewCachedProvider(inner, time.Hour)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	_, err := cached.FetchKlines(context.Background(), "BTCUSDT", model.TF1h, start, end)
	require.NoError(t, err)
	cached.Invalidate("ETHUSDT")
	_, err = cached.FetchKlines(context.Background(), "BTCUSDT", model.TF1h, start, end)
	require.NoError(t, err)

	assert.Equal(t, 1, inner.callCount())
}
