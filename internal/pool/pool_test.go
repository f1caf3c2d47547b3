package pool_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/poorman/alphafunnel/internal/model"
	"github.com/poorman/alphafunnel/internal/pool"
)

func TestTryAdmit_RejectsBelowMinScore(t *testing.T) {
	m := pool.NewManager(3, 40)
	outcome, evicted := m.TryAdmit("cand-1", 39.9, time.Now())
	assert.Equal(t, pool.Rejected, outcome)
	assert.Empty(t, evicted)
	assert.Equal(t, 0, m.Size())
}

func TestTryAdmit_AdmitsIntoSpareCapacity(t *testing.T) {
	m := pool.NewManager(3, 40)
	outcome, evicted := m.TryAdmit("cand-1", 50, time.Now())
	assert.Equal(t, pool.Admitted, outcome)
	assert.Empty(t, evicted)
	assert.Equal(t, 1, m.Size())
}

func TestTryAdmit_EvictsWorstWhenFullAndBetter(t *testing.T) {
	now := time.Now()
	m := pool.NewManager(2, 40)
	m.TryAdmit("low", 45, now)
	m.TryAdmit("high", 80, now)

	outcome, evicted := m.TryAdmit("challenger", 60, now)
	assert.Equal(t, pool.AdmittedWithEviction, outcome)
	assert.Equal(t, "low", evicted)
	assert.Equal(t, 2, m.Size())
}

func TestTryAdmit_RejectsWhenFullAndNotBetterThanWorst(t *testing.T) {
	now := time.Now()
	m := pool.NewManager(2, 40)
	m.TryAdmit("low", 45, now)
	m.TryAdmit("high", 80, now)

	outcome, evicted := m.TryAdmit("weak", 44, now)
	assert.Equal(t, pool.Rejected, outcome)
	assert.Empty(t, evicted)
	assert.Equal(t, 2, m.Size())
}

func TestTryAdmit_TieBreaksEvictionByOldestLastEvaluated(t *testing.T) {
	older := time.Now().Add(-2 * time.Hour)
	newer := time.Now().Add(-1 * time.Hour)
	m := pool.NewManager(2, 40)
	m.TryAdmit("a", 50, older)
	m.TryAdmit("b", 50, newer)

	_, evicted := m.TryAdmit("c", 60, time.Now())
	assert.Equal(t, "a", evicted, "equal-score ties must evict the one with the oldest LastEvaluatedAt")
}

func TestSnapshot_IsSortedByScoreDescending(t *testing.T) {
	now := time.Now()
	m := pool.NewManager(5, 0)
	m.TryAdmit("mid", 50, now)
	m.TryAdmit("top", 90, now)
	m.TryAdmit("bottom", 10, now)

	snap := m.Snapshot()
	for i := 1; i < len(snap); i++ {
		assert.GreaterOrEqual(t, snap[i-1].Score, snap[i].Score)
	}
}

func TestLoadEntries_SeedsPoolSortedByScoreDescendingRegardlessOfInputOrder(t *testing.T) {
	now := time.Now()
	m := pool.NewManager(5, 0)
	m.LoadEntries([]model.PoolEntry{
		{CandidateID: "low", Score: 10, LastEvaluatedAt: now},
		{CandidateID: "high", Score: 90, LastEvaluatedAt: now},
		{CandidateID: "mid", Score: 50, LastEvaluatedAt: now},
	})

	assert.Equal(t, 3, m.Size())
	snap := m.Snapshot()
	assert.Equal(t, "high", snap[0].CandidateID)
	assert.Equal(t, "mid", snap[1].CandidateID)
	assert.Equal(t, "low", snap[2].CandidateID)
}

func TestRevalidate_RetiresEntryNotPresent(t *testing.T) {
	m := pool.NewManager(3, 40)
	outcome := m.Revalidate("ghost", 90, time.Now())
	assert.Equal(t, pool.Retired, outcome)
}

func TestRevalidate_RetiresWhenNewScoreBelowFloor(t *testing.T) {
	now := time.Now()
	m := pool.NewManager(3, 40)
	m.TryAdmit("cand", 50, now)

	outcome := m.Revalidate("cand", 30, now)
	assert.Equal(t, pool.Retired, outcome)
	assert.Equal(t, 0, m.Size())
}

func TestRevalidate_SurvivesWithUpdatedScoreWhenPoolNotFull(t *testing.T) {
	now := time.Now()
	m := pool.NewManager(5, 40)
	m.TryAdmit("cand", 50, now)

	outcome := m.Revalidate("cand", 55, now)
	assert.Equal(t, pool.StillActive, outcome)
	snap := m.Snapshot()
	assert.Equal(t, 55.0, snap[0].Score)
}

func TestRevalidate_RetiresWhenFullPoolAndNewScoreAtOrBelowWorstExcludingSelf(t *testing.T) {
	now := time.Now()
	m := pool.NewManager(2, 0)
	m.TryAdmit("a", 80, now)
	m.TryAdmit("b", 50, now)

	outcome := m.Revalidate("a", 40, now) // drops below "b", the only other member
	assert.Equal(t, pool.Retired, outcome)
	assert.Equal(t, 1, m.Size())
}

func TestRevalidate_SurvivesInFullPoolWhenStillAboveWorstExcludingSelf(t *testing.T) {
	now := time.Now()
	m := pool.NewManager(2, 0)
	m.TryAdmit("a", 80, now)
	m.TryAdmit("b", 50, now)

	outcome := m.Revalidate("a", 60, now)
	assert.Equal(t, pool.StillActive, outcome)
	assert.Equal(t, 2, m.Size())
}
