package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/poorman/alphafunnel/internal/model"
)

// CoinStore persists the coin catalog coinregistry.Refresher populates.
type CoinStore struct {
	db *sql.DB
}

// Upsert writes or replaces one coin's row.
func (s *CoinStore) Upsert(ctx context.Context, c model.Coin, volume24h float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO coins (symbol, max_leverage, min_notional, tradable, volume_24h, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(symbol) DO UPDATE SET
			max_leverage = excluded.max_leverage,
			min_notional = excluded.min_notional,
			tradable = excluded.tradable,
			volume_24h = excluded.volume_24h,
			updated_at = CURRENT_TIMESTAMP`,
		c.Symbol, c.MaxLeverage, c.MinNotional, c.Tradable, volume24h)
	if err != nil {
		return fmt.Errorf("store: upserting coin %s: %w", c.Symbol, err)
	}
	return nil
}

// Get loads a single coin by symbol.
func (s *CoinStore) Get(ctx context.Context, symbol string) (model.Coin, error) {
	row := s.db.QueryRowContext(ctx, `SELECT symbol, max_leverage, min_notional, tradable FROM coins WHERE symbol = ?`, symbol)
	var c model.Coin
	err := row.Scan(&c.Symbol, &c.MaxLeverage, &c.MinNotional, &c.Tradable)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Coin{}, ErrNotFound
	}
	if err != nil {
		return model.Coin{}, fmt.Errorf("store: loading coin %s: %w", symbol, err)
	}
	return c, nil
}

// TopByVolume returns the n tradable coins with the highest trailing 24h
// volume, descending.
func (s *CoinStore) TopByVolume(ctx context.Context, n int) ([]model.Coin, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, max_leverage, min_notional, tradable FROM coins
		WHERE tradable = 1 ORDER BY volume_24h DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("store: listing top coins: %w", err)
	}
	defer rows.Close()

	var out []model.Coin
	for rows.Next() {
		var c model.Coin
		if err := rows.Scan(&c.Symbol, &c.MaxLeverage, &c.MinNotional, &c.Tradable); err != nil {
			return nil, fmt.Errorf("store: scanning coin: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// All returns every coin in the catalog, for seeding an in-memory cache.
func (s *CoinStore) All(ctx context.Context) ([]model.Coin, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT symbol, max_leverage, min_notional, tradable FROM coins`)
	if err != nil {
		return nil, fmt.Errorf("store: listing all coins: %w", err)
	}
	defer rows.Close()

	var out []model.Coin
	for rows.Next() {
		var c model.Coin
		if err := rows.Scan(&c.Symbol, &c.MaxLeverage, &c.MinNotional, &c.Tradable); err != nil {
			return nil, fmt.Errorf("store: scanning coin: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
