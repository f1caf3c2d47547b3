package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/poorman/alphafunnel/internal/model"
)

// PoolStore durably mirrors the in-memory pool manager's ranked entries,
// so the leaderboard survives a process restart and can be inspected
// without going through the live pool.Manager.
type PoolStore struct {
	db *sql.DB
}

// Upsert writes or replaces one candidate's pool entry.
func (s *PoolStore) Upsert(ctx context.Context, e model.PoolEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pool_entries (candidate_id, score, last_evaluated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(candidate_id) DO UPDATE SET score = excluded.score, last_evaluated_at = excluded.last_evaluated_at`,
		e.CandidateID, e.Score, e.LastEvaluatedAt)
	if err != nil {
		return fmt.Errorf("store: upserting pool entry %s: %w", e.CandidateID, err)
	}
	return nil
}

// Remove deletes a candidate's pool entry, on eviction or retirement.
func (s *PoolStore) Remove(ctx context.Context, candidateID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pool_entries WHERE candidate_id = ?`, candidateID)
	if err != nil {
		return fmt.Errorf("store: removing pool entry %s: %w", candidateID, err)
	}
	return nil
}

// List returns every pool entry, score descending, for inspection.
func (s *PoolStore) List(ctx context.Context) ([]model.PoolEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT candidate_id, score, last_evaluated_at FROM pool_entries ORDER BY score DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: listing pool entries: %w", err)
	}
	defer rows.Close()

	var out []model.PoolEntry
	for rows.Next() {
		var e model.PoolEntry
		if err := rows.Scan(&e.CandidateID, &e.Score, &e.LastEvaluatedAt); err != nil {
			return nil, fmt.Errorf("store: scanning pool entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
