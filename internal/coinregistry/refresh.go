package coinregistry

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/adshao/go-binance/v2/futures"

	"github.com/poorman/alphafunnel/internal/logger"
	"github.com/poorman/alphafunnel/internal/model"
)

var log = logger.Named("coinregistry")

// Persister is the durable sink a Refresher writes through to, so the
// catalog survives a process restart. store.CoinStore satisfies this.
type Persister interface {
	Upsert(ctx context.Context, c model.Coin, volume24h float64) error
}

// Refresher pulls exchange info and 24h ticker volume from Binance,
// writes it through to a durable Persister, and seeds an in-memory
// StaticRegistry for hot reads.
type Refresher struct {
	client *futures.Client
	target *StaticRegistry
	store  Persister
}

// NewRefresher builds a refresher writing into target and, if store is
// non-nil, persisting every entry to it as well.
func NewRefresher(client *futures.Client, target *StaticRegistry, store Persister) *Refresher {
	return &Refresher{client: client, target: target, store: store}
}

// Refresh fetches the current symbol list plus trailing 24h volume and
// reseeds the registry.
func (r *Refresher) Refresh(ctx context.Context) error {
	info, err := r.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return fmt.Errorf("coinregistry: fetching exchange info: %w", err)
	}

	tickers, err := r.client.NewListPriceChangeStatsService().Do(ctx)
	if err != nil {
		return fmt.Errorf("coinregistry: fetching 24h tickers: %w", err)
	}
	volumeBySymbol := make(map[string]float64, len(tickers))
	for _, t := range tickers {
		v, err := strconv.ParseFloat(t.QuoteVolume, 64)
		if err != nil {
			continue
		}
		volumeBySymbol[t.Symbol] = v
	}

	entries := make(map[string]struct {
		Coin   model.Coin
		Volume float64
	}, len(info.Symbols))

	for _, s := range info.Symbols {
		if !strings.HasSuffix(s.Symbol, "USDT") {
			continue
		}
		minNotional := 0.0
		for _, filter := range s.Filters {
			if filter["filterType"] == "MIN_NOTIONAL" {
				if raw, ok := filter["notional"].(string); ok {
					minNotional, _ = strconv.ParseFloat(raw, 64)
				}
			}
		}

		coin := model.Coin{
			Symbol:      s.Symbol,
			MaxLeverage: maxLeverageFor(s.Symbol),
			MinNotional: minNotional,
			Tradable:    s.Status == "TRADING",
		}
		entries[s.Symbol] = struct {
			Coin   model.Coin
			Volume float64
		}{Coin: coin, Volume: volumeBySymbol[s.Symbol]}
	}

	r.target.Seed(entries)

	if r.store != nil {
		for _, e := range entries {
			if err := r.store.Upsert(ctx, e.Coin, e.Volume); err != nil {
				log.Warnf("persisting coin %s: %v", e.Coin.Symbol, err)
			}
		}
	}

	log.Infof("refreshed coin registry: %d symbols", len(entries))
	return nil
}

// maxLeverageFor is a conservative fallback: Binance's actual per-bracket
// leverage table requires a signed leverage-bracket call per symbol,
// which this catalog refresh deliberately avoids to stay a public,
// unauthenticated call; the kernel still enforces whatever cap the
// candidate's own Parameters.Leverage requests against this ceiling.
func maxLeverageFor(symbol string) float64 {
	switch symbol {
	case "BTCUSDT", "ETHUSDT":
		return 125
	default:
		return 20
	}
}
