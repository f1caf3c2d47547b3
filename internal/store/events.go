package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/poorman/alphafunnel/internal/model"
)

// EventStore is the append-only evaluation event log.
type EventStore struct {
	db *sql.DB
}

// Record appends one (candidate_id, stage, outcome, reason, at) row,
// satisfying pipeline.EventRecorder.
func (s *EventStore) Record(ctx context.Context, candidateID, stage, outcome string, reason model.Reason, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO evaluation_events (candidate_id, stage, outcome, reason, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		candidateID, stage, outcome, string(reason), at)
	if err != nil {
		return fmt.Errorf("store: recording event %s/%s for %s: %w", stage, outcome, candidateID, err)
	}
	return nil
}

// Event is one row of the evaluation event log, for inspection.
type Event struct {
	ID          int64
	CandidateID string
	Stage       string
	Outcome     string
	Reason      model.Reason
	CreatedAt   time.Time
}

// ForCandidate returns every event recorded for candidateID, oldest first.
func (s *EventStore) ForCandidate(ctx context.Context, candidateID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, candidate_id, stage, outcome, reason, created_at
		FROM evaluation_events WHERE candidate_id = ? ORDER BY created_at ASC`, candidateID)
	if err != nil {
		return nil, fmt.Errorf("store: listing events for %s: %w", candidateID, err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var reason string
		if err := rows.Scan(&e.ID, &e.CandidateID, &e.Stage, &e.Outcome, &reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scanning event: %w", err)
		}
		e.Reason = model.Reason(reason)
		out = append(out, e)
	}
	return out, rows.Err()
}
