// Package pool implements the bounded ranked leaderboard of admitted
// candidates, with atomic admit/evict/revalidate operations: the Pool
// Manager (C8).
package pool

import (
	"sort"
	"sync"
	"time"

	"github.com/poorman/alphafunnel/internal/logger"
	"github.com/poorman/alphafunnel/internal/metrics"
	"github.com/poorman/alphafunnel/internal/model"
)

var log = logger.Named("pool")

// AdmitOutcome is the result of TryAdmit.
type AdmitOutcome int

const (
	Rejected AdmitOutcome = iota
	Admitted
	AdmittedWithEviction
)

// RevalidateOutcome is the result of Revalidate.
type RevalidateOutcome int

const (
	Retired RevalidateOutcome = iota
	StillActive
)

// Manager is a single mutex-guarded, score-descending leaderboard. A
// mutex is deliberately preferred here over a lock-free structure: the
// operation is rare relative to a kernel invocation and clarity matters
// more than throughput.
type Manager struct {
	mu       sync.Mutex
	maxSize  int
	minScore float64
	entries  []model.PoolEntry // kept sorted by Score descending
}

// NewManager constructs an empty pool with the given capacity and score
// floor.
func NewManager(maxSize int, minScore float64) *Manager {
	return &Manager{maxSize: maxSize, minScore: minScore}
}

// Size returns the current pool cardinality.
func (m *Manager) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Snapshot returns a copy of the current ranked entries, safe to read
// without holding the pool's lock.
func (m *Manager) Snapshot() []model.PoolEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.PoolEntry, len(m.entries))
	copy(out, m.entries)
	return out
}

// LoadEntries seeds the pool from a durable snapshot, such as the
// pool_entries table on process start, replacing any in-memory state.
func (m *Manager) LoadEntries(entries []model.PoolEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sorted := make([]model.PoolEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })
	m.entries = sorted
	m.recordOccupancy()
}

// worstIndex returns the index of the lowest-ranked entry, tie-broken by
// earliest LastEvaluatedAt (oldest evicted first). Caller must hold mu.
func (m *Manager) worstIndex() int {
	worst := len(m.entries) - 1
	for i := worst; i >= 0; i-- {
		if m.entries[i].Score < m.entries[worst].Score ||
			(m.entries[i].Score == m.entries[worst].Score && m.entries[i].LastEvaluatedAt.Before(m.entries[worst].LastEvaluatedAt)) {
			worst = i
		}
	}
	return worst
}

func (m *Manager) insertSorted(e model.PoolEntry) {
	idx := sort.Search(len(m.entries), func(i int) bool { return m.entries[i].Score < e.Score })
	m.entries = append(m.entries, model.PoolEntry{})
	copy(m.entries[idx+1:], m.entries[idx:])
	m.entries[idx] = e
}

// TryAdmit is the single atomic check-then-insert critical section for
// admitting a newly-validated candidate.
func (m *Manager) TryAdmit(candidateID string, score float64, now time.Time) (AdmitOutcome, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if score < m.minScore {
		metrics.RecordPoolAdmission("rejected")
		return Rejected, ""
	}
	if len(m.entries) < m.maxSize {
		m.insertSorted(model.PoolEntry{CandidateID: candidateID, Score: score, LastEvaluatedAt: now})
		log.Infof("admitted %s at score %.2f (pool size %d/%d)", candidateID, score, len(m.entries), m.maxSize)
		metrics.RecordPoolAdmission("admitted")
		m.recordOccupancy()
		return Admitted, ""
	}

	worst := m.worstIndex()
	if score > m.entries[worst].Score {
		evictedID := m.entries[worst].CandidateID
		m.entries = append(m.entries[:worst], m.entries[worst+1:]...)
		m.insertSorted(model.PoolEntry{CandidateID: candidateID, Score: score, LastEvaluatedAt: now})
		log.Infof("admitted %s at score %.2f, evicted %s", candidateID, score, evictedID)
		metrics.RecordPoolAdmission("admitted_with_eviction")
		m.recordOccupancy()
		return AdmittedWithEviction, evictedID
	}
	metrics.RecordPoolAdmission("rejected")
	return Rejected, ""
}

// recordOccupancy publishes the current size and score floor gauges.
// Caller must hold mu.
func (m *Manager) recordOccupancy() {
	size := len(m.entries)
	min := 0.0
	if size > 0 {
		min = m.entries[size-1].Score
	}
	metrics.SetPoolOccupancy(size, min)
}

// Revalidate updates a pool member's score after a retest, atomically
// deciding whether it survives.
func (m *Manager) Revalidate(candidateID string, newScore float64, now time.Time) RevalidateOutcome {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := -1
	for i, e := range m.entries {
		if e.CandidateID == candidateID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Retired
	}

	if newScore < m.minScore {
		m.entries = append(m.entries[:idx], m.entries[idx+1:]...)
		log.Infof("retest retired %s: score %.2f below floor %.2f", candidateID, newScore, m.minScore)
		metrics.RecordPoolAdmission("retired_on_retest")
		m.recordOccupancy()
		return Retired
	}

	if len(m.entries) == m.maxSize {
		excludingSelfMin := m.minExcluding(idx)
		if newScore <= excludingSelfMin {
			m.entries = append(m.entries[:idx], m.entries[idx+1:]...)
			log.Infof("retest retired %s: score %.2f at/below worst-excluding-self %.2f in full pool", candidateID, newScore, excludingSelfMin)
			metrics.RecordPoolAdmission("retired_on_retest")
			m.recordOccupancy()
			return Retired
		}
	}

	m.entries = append(m.entries[:idx], m.entries[idx+1:]...)
	m.insertSorted(model.PoolEntry{CandidateID: candidateID, Score: newScore, LastEvaluatedAt: now})
	m.recordOccupancy()
	return StillActive
}

func (m *Manager) minExcluding(skip int) float64 {
	min := -1.0
	for i, e := range m.entries {
		if i == skip {
			continue
		}
		if min < 0 || e.Score < min {
			min = e.Score
		}
	}
	return min
}
