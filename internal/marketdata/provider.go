// Package marketdata fetches OHLCV history for perpetual futures symbols
// and keeps a near-real-time tail fresh via a Binance kline stream.
package marketdata

import (
	"context"
	"time"

	"github.com/poorman/alphafunnel/internal/model"
)

// Provider resolves a gap-free OHLCV series for one symbol/timeframe over
// [start, end).
type Provider interface {
	FetchKlines(ctx context.Context, symbol string, tf model.Timeframe, start, end time.Time) (model.Dataset, error)
}

func intervalFor(tf model.Timeframe) string {
	switch tf {
	case model.TF5m:
		return "5m"
	case model.TF15m:
		return "15m"
	case model.TF30m:
		return "30m"
	case model.TF1h:
		return "1h"
	case model.TF2h:
		return "2h"
	default:
		return "1h"
	}
}

func durationOf(tf model.Timeframe) time.Duration {
	switch tf {
	case model.TF5m:
		return 5 * time.Minute
	case model.TF15m:
		return 15 * time.Minute
	case model.TF30m:
		return 30 * time.Minute
	case model.TF1h:
		return time.Hour
	case model.TF2h:
		return 2 * time.Hour
	default:
		return time.Hour
	}
}
