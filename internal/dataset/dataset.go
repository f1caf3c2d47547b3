// Package dataset resolves a candidate into the IS/OOS/BTC datasets and
// coin universe the pipeline's stages need, bridging market data
// acquisition and coin selection behind pipeline.DatasetProvider.
package dataset

import (
	"context"
	"fmt"
	"time"

	"github.com/poorman/alphafunnel/internal/config"
	"github.com/poorman/alphafunnel/internal/coinregistry"
	"github.com/poorman/alphafunnel/internal/logger"
	"github.com/poorman/alphafunnel/internal/marketdata"
	"github.com/poorman/alphafunnel/internal/model"
)

var log = logger.Named("dataset")

// Provider resolves datasets for the pipeline, satisfying
// pipeline.DatasetProvider.
type Provider struct {
	market   marketdata.Provider
	coins    coinregistry.Registry
	cfg      *config.Config
}

// NewProvider builds a Provider over a market data source and coin
// registry.
func NewProvider(market marketdata.Provider, coins coinregistry.Registry, cfg *config.Config) *Provider {
	return &Provider{market: market, coins: coins, cfg: cfg}
}

// ISDataset returns the in-sample window: cfg.ISWindowDays immediately
// preceding the OOS window, non-overlapping with it.
func (p *Provider) ISDataset(ctx context.Context, cand model.Candidate) (map[string]model.Dataset, map[string]model.Coin, error) {
	now := time.Now().UTC()
	oosStart := now.AddDate(0, 0, -p.cfg.OOSWindowDays)
	isStart := oosStart.AddDate(0, 0, -p.cfg.ISWindowDays)
	return p.fetchUniverse(ctx, cand, isStart, oosStart)
}

// OOSDataset returns the out-of-sample window: the most recent
// cfg.OOSWindowDays up to now.
func (p *Provider) OOSDataset(ctx context.Context, cand model.Candidate) (map[string]model.Dataset, map[string]model.Coin, error) {
	now := time.Now().UTC()
	oosStart := now.AddDate(0, 0, -p.cfg.OOSWindowDays)
	return p.fetchUniverse(ctx, cand, oosStart, now)
}

// BTCDataset returns the trailing `days` of BTCUSDT bars at the
// candidate's timeframe, for the shuffle tester.
func (p *Provider) BTCDataset(ctx context.Context, cand model.Candidate, days int) (model.Dataset, error) {
	now := time.Now().UTC()
	start := now.AddDate(0, 0, -days)
	return p.market.FetchKlines(ctx, p.cfg.ShuffleSymbol, cand.Timeframe, start, now)
}

// fetchUniverse resolves the coin set a candidate trades, then fetches
// each symbol's bars over [start, end).
func (p *Provider) fetchUniverse(ctx context.Context, cand model.Candidate, start, end time.Time) (map[string]model.Dataset, map[string]model.Coin, error) {
	symbols, err := p.universeFor(ctx, cand)
	if err != nil {
		return nil, nil, err
	}
	if len(symbols) == 0 {
		return nil, nil, fmt.Errorf("dataset: no tradable coins resolved for candidate %s", cand.ID)
	}

	datasets := make(map[string]model.Dataset, len(symbols))
	coins := make(map[string]model.Coin, len(symbols))
	for _, symbol := range symbols {
		coin, ok := p.coins.GetCoin(ctx, symbol)
		if !ok || !coin.Tradable {
			continue
		}
		ds, err := p.market.FetchKlines(ctx, symbol, cand.Timeframe, start, end)
		if err != nil {
			log.Warnf("fetching %s %s bars for %s: %v", symbol, cand.Timeframe, cand.ID, err)
			continue
		}
		if len(ds.Bars) == 0 {
			continue
		}
		datasets[symbol] = ds
		coins[symbol] = coin
	}
	if len(datasets) == 0 {
		return nil, nil, fmt.Errorf("dataset: no bars fetched for any coin of candidate %s", cand.ID)
	}
	return datasets, coins, nil
}

// universeFor resolves which symbols a candidate is eligible to trade:
// a pattern-derived candidate's own preferred coins when present,
// otherwise the top-by-volume catalog slice.
func (p *Provider) universeFor(ctx context.Context, cand model.Candidate) ([]string, error) {
	if cand.SourceClass == model.SourcePatternDerived && cand.PatternMeta != nil && len(cand.PatternMeta.PreferredCoins) > 0 {
		symbols := make([]string, len(cand.PatternMeta.PreferredCoins))
		for i, pc := range cand.PatternMeta.PreferredCoins {
			symbols[i] = pc.Symbol
		}
		return symbols, nil
	}

	top, err := p.coins.TopByVolume(ctx, p.cfg.CoinUniverseSize)
	if err != nil {
		return nil, fmt.Errorf("dataset: resolving coin universe: %w", err)
	}
	symbols := make([]string, len(top))
	for i, c := range top {
		symbols[i] = c.Symbol
	}
	return symbols, nil
}
