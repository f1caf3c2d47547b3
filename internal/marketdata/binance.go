package marketdata

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"github.com/poorman/alphafunnel/internal/logger"
	"github.com/poorman/alphafunnel/internal/model"
)

var log = logger.Named("marketdata")

const binanceKlineLimit = 1500

// BinanceProvider fetches perpetual futures klines from Binance, paging
// through StartTime/EndTime with the API's per-request bar limit.
type BinanceProvider struct {
	client *futures.Client
}

// NewBinanceProvider wraps an authenticated futures client. apiKey/secret
// may be empty: kline history is public and needs no signature.
func NewBinanceProvider(apiKey, apiSecret string) *BinanceProvider {
	return &BinanceProvider{client: futures.NewClient(apiKey, apiSecret)}
}

// NormalizeSymbol upper-cases symbol and ensures the USDT-margined suffix
// every candidate and coin record expects.
func NormalizeSymbol(symbol string) string {
	symbol = strings.ToUpper(symbol)
	if !strings.HasSuffix(symbol, "USDT") {
		return symbol + "USDT"
	}
	return symbol
}

// FetchKlines pages through Binance's kline endpoint for [start, end),
// returning bars sorted ascending by open time.
func (p *BinanceProvider) FetchKlines(ctx context.Context, symbol string, tf model.Timeframe, start, end time.Time) (model.Dataset, error) {
	sym := NormalizeSymbol(symbol)
	interval := intervalFor(tf)

	var bars []model.OHLCV
	cursor := start
	for cursor.Before(end) {
		klines, err := p.client.NewKlinesService().
			Symbol(sym).
			Interval(interval).
			StartTime(cursor.UnixMilli()).
			EndTime(end.UnixMilli()).
			Limit(binanceKlineLimit).
			Do(ctx)
		if err != nil {
			return model.Dataset{}, fmt.Errorf("marketdata: fetching %s %s klines: %w", sym, interval, err)
		}
		if len(klines) == 0 {
			break
		}

		for _, k := range klines {
			bar, err := parseKline(k)
			if err != nil {
				log.Warnf("skipping unparseable kline for %s: %v", sym, err)
				continue
			}
			bars = append(bars, bar)
		}

		last := klines[len(klines)-1]
		next := time.UnixMilli(last.CloseTime).Add(time.Millisecond)
		if !next.After(cursor) {
			break // guards against a non-advancing cursor on a malformed response
		}
		cursor = next

		if len(klines) < binanceKlineLimit {
			break
		}
	}

	return model.Dataset{Symbol: sym, Timeframe: tf, Bars: bars}, nil
}

func parseKline(k *futures.Kline) (model.OHLCV, error) {
	open, err := strconv.ParseFloat(k.Open, 64)
	if err != nil {
		return model.OHLCV{}, err
	}
	high, err := strconv.ParseFloat(k.High, 64)
	if err != nil {
		return model.OHLCV{}, err
	}
	low, err := strconv.ParseFloat(k.Low, 64)
	if err != nil {
		return model.OHLCV{}, err
	}
	closePrice, err := strconv.ParseFloat(k.Close, 64)
	if err != nil {
		return model.OHLCV{}, err
	}
	volume, err := strconv.ParseFloat(k.Volume, 64)
	if err != nil {
		return model.OHLCV{}, err
	}
	return model.OHLCV{
		OpenTime: time.UnixMilli(k.OpenTime),
		Open:     open,
		High:     high,
		Low:      low,
		Close:    closePrice,
		Volume:   volume,
	}, nil
}
