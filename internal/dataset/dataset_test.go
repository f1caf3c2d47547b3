package dataset_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poorman/alphafunnel/internal/config"
	"github.com/poorman/alphafunnel/internal/dataset"
	"github.com/poorman/alphafunnel/internal/model"
)

type fakeMarket struct {
	bars map[string][]model.OHLCV
	err  error
}

func (f fakeMarket) FetchKlines(ctx context.Context, symbol string, tf model.Timeframe, start, end time.Time) (model.Dataset, error) {
	if f.err != nil {
		return model.Dataset{}, f.err
	}
	return model.Dataset{Symbol: symbol, Timeframe: tf, Bars: f.bars[symbol]}, nil
}

type fakeRegistry struct {
	coins       map[string]model.Coin
	topByVolume []model.Coin
}

func (f fakeRegistry) GetCoin(ctx context.Context, symbol string) (model.Coin, bool) {
	c, ok := f.coins[symbol]
	return c, ok
}

func (f fakeRegistry) TopByVolume(ctx context.Context, n int) ([]model.Coin, error) {
	if n > len(f.topByVolume) {
		n = len(f.topByVolume)
	}
	return f.topByVolume[:n], nil
}

func oneBar() []model.OHLCV {
	return []model.OHLCV{{OpenTime: time.Now(), Open: 100, High: 101, Low: 99, Close: 100, Volume: 10}}
}

func TestISDataset_UsesTopByVolumeWhenCandidateHasNoPreferredCoins(t *testing.T) {
	market := fakeMarket{bars: map[string][]model.OHLCV{"BTCUSDT": oneBar()}}
	registry := fakeRegistry{
		coins:       map[string]model.Coin{"BTCUSDT": {Symbol: "BTCUSDT", Tradable: true}},
		topByVolume: []model.Coin{{Symbol: "BTCUSDT", Tradable: true}},
	}
	cfg := config.Defaults()
	p := dataset.NewProvider(market, registry, cfg)

	cand := model.Candidate{ID: "c1", SourceClass: model.SourceFree, Timeframe: model.TF1h}
	datasets, coins, err := p.ISDataset(context.Background(), cand)
	require.NoError(t, err)
	require.Contains(t, datasets, "BTCUSDT")
	assert.Contains(t, coins, "BTCUSDT")
}

func TestISDataset_PrefersCandidatesOwnPreferredCoinsOverCatalog(t *testing.T) {
	market := fakeMarket{bars: map[string][]model.OHLCV{"SOLUSDT": oneBar()}}
	registry := fakeRegistry{
		coins:       map[string]model.Coin{"SOLUSDT": {Symbol: "SOLUSDT", Tradable: true}},
		topByVolume: []model.Coin{{Symbol: "BTCUSDT", Tradable: true}},
	}
	cfg := config.Defaults()
	p := dataset.NewProvider(market, registry, cfg)

	cand := model.Candidate{
		ID:          "c2",
		SourceClass: model.SourcePatternDerived,
		Timeframe:   model.TF1h,
		PatternMeta: &model.PatternMeta{PreferredCoins: []model.PreferredCoin{{Symbol: "SOLUSDT", Edge: 0.5}}},
	}
	datasets, _, err := p.ISDataset(context.Background(), cand)
	require.NoError(t, err)
	assert.Contains(t, datasets, "SOLUSDT")
	assert.NotContains(t, datasets, "BTCUSDT")
}

func TestFetchUniverse_SkipsUntradableAndEmptyBarSymbols(t *testing.T) {
	market := fakeMarket{bars: map[string][]model.OHLCV{"BTCUSDT": oneBar(), "ETHUSDT": nil}}
	registry := fakeRegistry{
		coins: map[string]model.Coin{
			"BTCUSDT":  {Symbol: "BTCUSDT", Tradable: true},
			"ETHUSDT":  {Symbol: "ETHUSDT", Tradable: true},
			"DELISTED": {Symbol: "DELISTED", Tradable: false},
		},
		topByVolume: []model.Coin{
			{Symbol: "BTCUSDT", Tradable: true},
			{Symbol: "ETHUSDT", Tradable: true},
			{Symbol: "DELISTED", Tradable: false},
		},
	}
	cfg := config.Defaults()
	p := dataset.NewProvider(market, registry, cfg)

	cand := model.Candidate{ID: "c3", SourceClass: model.SourceFree, Timeframe: model.TF1h}
	datasets, coins, err := p.OOSDataset(context.Background(), cand)
	require.NoError(t, err)
	assert.Len(t, datasets, 1)
	assert.Contains(t, datasets, "BTCUSDT")
	assert.Len(t, coins, 1)
}

func TestISDataset_ErrorsWhenNoTradableCoinsResolve(t *testing.T) {
	market := fakeMarket{}
	registry := fakeRegistry{coins: map[string]model.Coin{}, topByVolume: nil}
	cfg := config.Defaults()
	p := dataset.NewProvider(market, registry, cfg)

	cand := model.Candidate{ID: "c4", SourceClass: model.SourceFree, Timeframe: model.TF1h}
	_, _, err := p.ISDataset(context.Background(), cand)
	assert.Error(t, err)
}

func TestBTCDataset_FetchesConfiguredShuffleSymbolOverRequestedWindow(t *testing.T) {
	market := fakeMarket{bars: map[string][]model.OHLCV{"BTCUSDT": oneBar()}}
	registry := fakeRegistry{}
	cfg := config.Defaults()
	cfg.ShuffleSymbol = "BTCUSDT"
	p := dataset.NewProvider(market, registry, cfg)

	ds, err := p.BTCDataset(context.Background(), model.Candidate{Timeframe: model.TF1h}, 30)
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", ds.Symbol)
	assert.Len(t, ds.Bars, 1)
}

func TestFetchUniverse_SkipsSymbolWhoseFetchErrsRatherThanFailingWhole(t *testing.T) {
	market := fakeMarket{err: errors.New("upstream unavailable")}
	registry := fakeRegistry{
		coins:       map[string]model.Coin{"BTCUSDT": {Symbol: "BTCUSDT", Tradable: true}},
		topByVolume: []model.Coin{{Symbol: "BTCUSDT", Tradable: true}},
	}
	cfg := config.Defaults()
	p := dataset.NewProvider(market, registry, cfg)

	_, _, err := p.ISDataset(context.Background(), model.Candidate{SourceClass: model.SourceFree})
	assert.Error(t, err, "every symbol failing its fetch leaves an empty universe, which is itself an error")
}
