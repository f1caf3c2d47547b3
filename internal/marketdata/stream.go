package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Invalidator drops cached data for a symbol once a fresher bar is known
// to exist. *CachedProvider satisfies this.
type Invalidator interface {
	Invalidate(symbol string)
}

type klineCloseEvent struct {
	Kline struct {
		Symbol   string `json:"s"`
		IsClosed bool   `json:"x"`
	} `json:"k"`
}

// StreamRefresher subscribes to Binance's per-symbol kline-close stream
// and invalidates the cache as soon as a bar closes, so the funnel never
// backtests against a stale tail.
type StreamRefresher struct {
	symbols []string
	tf      string
	cache   Invalidator
}

// NewStreamRefresher builds a refresher for symbols at Binance interval
// tf (e.g. "5m"), invalidating cache on every closed bar.
func NewStreamRefresher(symbols []string, tf string, cache Invalidator) *StreamRefresher {
	return &StreamRefresher{symbols: symbols, tf: tf, cache: cache}
}

// Run dials the combined stream and reconnects with backoff until ctx is
// cancelled.
func (r *StreamRefresher) Run(ctx context.Context) {
	if len(r.symbols) == 0 {
		return
	}

	streams := make([]string, len(r.symbols))
	for i, s := range r.symbols {
		streams[i] = fmt.Sprintf("%s@kline_%s", strings.ToLower(NormalizeSymbol(s)), r.tf)
	}
	url := fmt.Sprintf("wss://fstream.binance.com/stream?streams=%s", strings.Join(streams, "/"))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			log.Warnf("stream: dial failed: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		r.readLoop(ctx, conn)
		conn.Close()
	}
}

func (r *StreamRefresher) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("stream: read failed: %v", err)
			return
		}

		var combined struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(message, &combined); err != nil {
			continue
		}

		var evt klineCloseEvent
		if err := json.Unmarshal(combined.Data, &evt); err != nil {
			continue
		}
		if evt.Kline.IsClosed {
			r.cache.Invalidate(evt.Kline.Symbol)
		}
	}
}
