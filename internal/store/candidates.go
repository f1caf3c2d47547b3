package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/poorman/alphafunnel/internal/model"
)

// ErrNotFound is returned when a row lookup misses.
var ErrNotFound = errors.New("store: not found")

// CandidateStore is the candidates table accessor.
type CandidateStore struct {
	db *sql.DB
}

// Create inserts a new candidate row with the status carried on c.
func (s *CandidateStore) Create(ctx context.Context, c model.Candidate) error {
	meta, err := marshalPatternMeta(c.PatternMeta)
	if err != nil {
		return fmt.Errorf("store: marshaling pattern meta: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO candidates
			(id, name, code_blob, code_fingerprint, timeframe, source_class, pattern_meta,
			 status, sl_pct, tp_pct, leverage, exit_bars, score_backtest, last_evaluated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.CodeBlob, c.CodeFingerprint, string(c.Timeframe), string(c.SourceClass), meta,
		string(c.Status), c.Parameters.SLPct, c.Parameters.TPPct, c.Parameters.Leverage, c.Parameters.ExitBars,
		c.ScoreBacktest, nullTime(c.LastEvaluatedAt))
	if err != nil {
		return fmt.Errorf("store: inserting candidate %s: %w", c.ID, err)
	}
	return nil
}

// Get loads a candidate by id, satisfying retest.CandidateLoader.
func (s *CandidateStore) Get(ctx context.Context, id string) (model.Candidate, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, code_blob, code_fingerprint, timeframe, source_class, pattern_meta,
		       status, sl_pct, tp_pct, leverage, exit_bars, score_backtest, last_evaluated_at,
		       created_at, updated_at
		FROM candidates WHERE id = ?`, id)
	return scanCandidate(row)
}

// List returns every candidate with the given status, oldest first.
func (s *CandidateStore) List(ctx context.Context, status model.Status) ([]model.Candidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, code_blob, code_fingerprint, timeframe, source_class, pattern_meta,
		       status, sl_pct, tp_pct, leverage, exit_bars, score_backtest, last_evaluated_at,
		       created_at, updated_at
		FROM candidates WHERE status = ? ORDER BY created_at ASC`, string(status))
	if err != nil {
		return nil, fmt.Errorf("store: listing candidates by status %s: %w", status, err)
	}
	defer rows.Close()

	var out []model.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SetStatus updates a candidate's lifecycle status. reason is accepted for
// symmetry with the event log but not persisted on the row itself.
func (s *CandidateStore) SetStatus(ctx context.Context, candidateID string, status model.Status, reason model.Reason) error {
	_, err := s.db.ExecContext(ctx, `UPDATE candidates SET status = ? WHERE id = ?`, string(status), candidateID)
	if err != nil {
		return fmt.Errorf("store: setting status on %s: %w", candidateID, err)
	}
	return nil
}

// SetParametersAndScore persists the winning parameter combination and its
// scalar score after C3/C4 complete.
func (s *CandidateStore) SetParametersAndScore(ctx context.Context, candidateID string, params model.Params, score float64, evaluatedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE candidates
		SET sl_pct = ?, tp_pct = ?, leverage = ?, exit_bars = ?, score_backtest = ?, last_evaluated_at = ?
		WHERE id = ?`,
		params.SLPct, params.TPPct, params.Leverage, params.ExitBars, score, evaluatedAt, candidateID)
	if err != nil {
		return fmt.Errorf("store: setting parameters/score on %s: %w", candidateID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCandidate(r rowScanner) (model.Candidate, error) {
	var c model.Candidate
	var timeframe, sourceClass, status, meta string
	var lastEvaluatedAt sql.NullTime

	err := r.Scan(&c.ID, &c.Name, &c.CodeBlob, &c.CodeFingerprint, &timeframe, &sourceClass, &meta,
		&status, &c.Parameters.SLPct, &c.Parameters.TPPct, &c.Parameters.Leverage, &c.Parameters.ExitBars,
		&c.ScoreBacktest, &lastEvaluatedAt, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Candidate{}, ErrNotFound
	}
	if err != nil {
		return model.Candidate{}, fmt.Errorf("store: scanning candidate: %w", err)
	}

	c.Timeframe = model.Timeframe(timeframe)
	c.SourceClass = model.SourceClass(sourceClass)
	c.Status = model.Status(status)
	if lastEvaluatedAt.Valid {
		c.LastEvaluatedAt = lastEvaluatedAt.Time
	}
	pm, err := unmarshalPatternMeta(meta)
	if err != nil {
		return model.Candidate{}, fmt.Errorf("store: unmarshaling pattern meta: %w", err)
	}
	c.PatternMeta = pm
	return c, nil
}

func marshalPatternMeta(pm *model.PatternMeta) (string, error) {
	if pm == nil {
		return "", nil
	}
	b, err := json.Marshal(pm)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalPatternMeta(raw string) (*model.PatternMeta, error) {
	if raw == "" {
		return nil, nil
	}
	var pm model.PatternMeta
	if err := json.Unmarshal([]byte(raw), &pm); err != nil {
		return nil, err
	}
	return &pm, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
