// Package retest implements FIFO re-evaluation of stale pool members,
// performed only as idle-time work when a worker has no validated
// candidate to process: the Retest Scheduler (C9).
package retest

import (
	"context"
	"time"

	"github.com/poorman/alphafunnel/internal/logger"
	"github.com/poorman/alphafunnel/internal/model"
)

var log = logger.Named("retest")

// CandidateLoader fetches the full Candidate row for a pool entry's id.
type CandidateLoader interface {
	Get(ctx context.Context, id string) (model.Candidate, error)
}

// PoolReader exposes the pool's current ranked entries, read-only.
type PoolReader interface {
	Snapshot() []model.PoolEntry
}

// Scheduler picks the stalest pool entry due for retest.
type Scheduler struct {
	pool         PoolReader
	candidates   CandidateLoader
	intervalDays int
}

// NewScheduler builds a Scheduler over pool, loading full rows via
// candidates, treating any entry older than intervalDays as retest-due.
func NewScheduler(pool PoolReader, candidates CandidateLoader, intervalDays int) *Scheduler {
	return &Scheduler{pool: pool, candidates: candidates, intervalDays: intervalDays}
}

// Next returns the pool entry with the oldest LastEvaluatedAt older than
// the retest interval, if any exists, as of now.
func (s *Scheduler) Next(ctx context.Context, now time.Time) (*model.Candidate, bool) {
	entries := s.pool.Snapshot()
	cutoff := now.AddDate(0, 0, -s.intervalDays)

	var oldest *model.PoolEntry
	for i := range entries {
		e := entries[i]
		if e.LastEvaluatedAt.After(cutoff) {
			continue
		}
		if oldest == nil || e.LastEvaluatedAt.Before(oldest.LastEvaluatedAt) {
			oldest = &entries[i]
		}
	}
	if oldest == nil {
		return nil, false
	}

	cand, err := s.candidates.Get(ctx, oldest.CandidateID)
	if err != nil {
		log.Warnf("retest: loading candidate %s: %v", oldest.CandidateID, err)
		return nil, false
	}
	return &cand, true
}
