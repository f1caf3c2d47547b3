package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/poorman/alphafunnel/internal/model"
)

// ClaimStore implements the candidate claim protocol a worker uses to
// avoid racing another worker onto the same candidate.
type ClaimStore struct {
	db *sql.DB
}

// ClaimNextValidated atomically picks the oldest unclaimed validated
// candidate, claims it for workerID, and returns its full row. Returns
// (nil, nil) when nothing is available, satisfying pipeline.Claims.
func (s *ClaimStore) ClaimNextValidated(ctx context.Context, workerID string, now time.Time) (*model.Candidate, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: beginning claim transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT c.id FROM candidates c
		LEFT JOIN claims cl ON cl.candidate_id = c.id
		WHERE c.status = 'validated' AND cl.candidate_id IS NULL
		ORDER BY c.created_at ASC
		LIMIT 1`)
	var id string
	if err := row.Scan(&id); errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("store: selecting next validated candidate: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO claims (candidate_id, worker_id, claimed_at) VALUES (?, ?, ?)`, id, workerID, now); err != nil {
		return nil, fmt.Errorf("store: claiming candidate %s: %w", id, err)
	}

	candRow := tx.QueryRowContext(ctx, `
		SELECT id, name, code_blob, code_fingerprint, timeframe, source_class, pattern_meta,
		       status, sl_pct, tp_pct, leverage, exit_bars, score_backtest, last_evaluated_at,
		       created_at, updated_at
		FROM candidates WHERE id = ?`, id)
	cand, err := scanCandidate(candRow)
	if err != nil {
		return nil, fmt.Errorf("store: loading claimed candidate %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: committing claim on %s: %w", id, err)
	}
	return &cand, nil
}

// Release drops a worker's claim on a candidate once processing finishes.
func (s *ClaimStore) Release(ctx context.Context, candidateID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM claims WHERE candidate_id = ?`, candidateID)
	if err != nil {
		return fmt.Errorf("store: releasing claim on %s: %w", candidateID, err)
	}
	return nil
}

// ReleaseStale drops every claim older than olderThan, for the janitor to
// recover candidates abandoned by a crashed worker.
func (s *ClaimStore) ReleaseStale(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM claims WHERE claimed_at < ?`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("store: releasing stale claims: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: counting released stale claims: %w", err)
	}
	return int(n), nil
}
