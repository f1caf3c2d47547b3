package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// VerdictStore is the durable side of the shuffle verdict cache, keyed by
// code fingerprint so candidates sharing the same logic never re-run the
// shuffle test, whatever their parameters.
type VerdictStore struct {
	db *sql.DB
}

// Get reports whether codeFingerprint has a cached verdict.
func (s *VerdictStore) Get(ctx context.Context, codeFingerprint string) (passed bool, found bool, err error) {
	row := s.db.QueryRowContext(ctx, `SELECT passed FROM verdict_cache WHERE code_fingerprint = ?`, codeFingerprint)
	err = row.Scan(&passed)
	if errors.Is(err, sql.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("store: reading verdict for %s: %w", codeFingerprint, err)
	}
	return passed, true, nil
}

// Put records the verdict for codeFingerprint, overwriting any prior entry.
func (s *VerdictStore) Put(ctx context.Context, codeFingerprint string, passed bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO verdict_cache (code_fingerprint, passed)
		VALUES (?, ?)
		ON CONFLICT(code_fingerprint) DO UPDATE SET passed = excluded.passed, computed_at = CURRENT_TIMESTAMP`,
		codeFingerprint, passed)
	if err != nil {
		return fmt.Errorf("store: writing verdict for %s: %w", codeFingerprint, err)
	}
	return nil
}
