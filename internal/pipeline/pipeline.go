// Package pipeline runs N bounded workers that drive validated candidates
// through the stage sequence C3->C4->C5->(C6->C7->C8), claim stale
// candidates back via a janitor, and fall back to retest work when idle:
// the Worker Pool & Pipeline (C10).
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/poorman/alphafunnel/internal/config"
	"github.com/poorman/alphafunnel/internal/evaluator"
	"github.com/poorman/alphafunnel/internal/kernel"
	"github.com/poorman/alphafunnel/internal/logger"
	"github.com/poorman/alphafunnel/internal/metrics"
	"github.com/poorman/alphafunnel/internal/model"
	"github.com/poorman/alphafunnel/internal/optimizer"
	"github.com/poorman/alphafunnel/internal/pool"
	"github.com/poorman/alphafunnel/internal/retest"
	"github.com/poorman/alphafunnel/internal/scorer"
	"github.com/poorman/alphafunnel/internal/shuffle"
	"github.com/poorman/alphafunnel/internal/walkforward"
)

var log = logger.Named("pipeline")

// Claims is the candidate claim protocol: atomically mark a candidate
// in-process before starting, and release it on completion or timeout.
type Claims interface {
	ClaimNextValidated(ctx context.Context, workerID string, now time.Time) (*model.Candidate, error)
	Release(ctx context.Context, candidateID string) error
	ReleaseStale(ctx context.Context, olderThan time.Time) (int, error)
}

// CandidateUpdater records the lifecycle transitions the core writes.
type CandidateUpdater interface {
	SetStatus(ctx context.Context, candidateID string, status model.Status, reason model.Reason) error
	SetParametersAndScore(ctx context.Context, candidateID string, params model.Params, score float64, evaluatedAt time.Time) error
}

// EventRecorder appends an auditable (candidate_id, stage, outcome,
// reason, timestamp) row.
type EventRecorder interface {
	Record(ctx context.Context, candidateID, stage, outcome string, reason model.Reason, at time.Time) error
}

// DatasetProvider resolves the IS/OOS/BTC datasets and coin universe a
// candidate needs, hiding market-data acquisition and coin selection
// behind one seam.
type DatasetProvider interface {
	ISDataset(ctx context.Context, cand model.Candidate) (map[string]model.Dataset, map[string]model.Coin, error)
	OOSDataset(ctx context.Context, cand model.Candidate) (map[string]model.Dataset, map[string]model.Coin, error)
	BTCDataset(ctx context.Context, cand model.Candidate, days int) (model.Dataset, error)
}

// LogicLoader resolves a candidate's code blob into the typed capability
// the kernel drives.
type LogicLoader interface {
	Load(cand model.Candidate) (kernel.CandidateLogic, error)
}

// PoolPersister durably mirrors the in-memory pool's admit/evict/revalidate
// mutations, so the ranked leaderboard survives a process restart.
type PoolPersister interface {
	Upsert(ctx context.Context, e model.PoolEntry) error
	Remove(ctx context.Context, candidateID string) error
}

// Deps bundles every collaborator a worker needs.
type Deps struct {
	Claims    Claims
	Updater   CandidateUpdater
	Events    EventRecorder
	Datasets  DatasetProvider
	Logic     LogicLoader
	Pool      *pool.Manager
	PoolStore PoolPersister
	Shuffle   *shuffle.Tester
	Retest    *retest.Scheduler
	Config    *config.Config
}

// Pool runs cfg.WorkersCount worker goroutines plus a janitor, until ctx is
// cancelled.
type Pool struct {
	deps       Deps
	instanceID string
}

// NewPool constructs a worker pool over deps. Each instance gets a random
// id so worker names never collide with another funnel process claiming
// against the same store.
func NewPool(deps Deps) *Pool {
	return &Pool{deps: deps, instanceID: uuid.NewString()[:8]}
}

// Run blocks until ctx is cancelled, running WorkersCount workers and a
// stale-claim janitor.
func (p *Pool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < p.deps.Config.WorkersCount; i++ {
		workerID := p.workerName(i)
		g.Go(func() error {
			p.runWorker(gctx, workerID)
			return nil
		})
	}
	g.Go(func() error {
		p.runJanitor(gctx)
		return nil
	})

	return g.Wait()
}

func (p *Pool) workerName(i int) string {
	return fmt.Sprintf("%s-w%d", p.instanceID, i)
}

func (p *Pool) runJanitor(ctx context.Context) {
	interval := time.Duration(p.deps.Config.WorkersStaleTimeoutMinutes) * time.Minute / 4
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-time.Duration(p.deps.Config.WorkersStaleTimeoutMinutes) * time.Minute)
			n, err := p.deps.Claims.ReleaseStale(ctx, cutoff)
			if err != nil {
				log.Warnf("janitor: releasing stale claims: %v", err)
				continue
			}
			if n > 0 {
				log.Infof("janitor: released %d stale claims", n)
				metrics.StaleClaimsReleasedTotal.Add(float64(n))
			}
		}
	}
}

func (p *Pool) runWorker(ctx context.Context, workerID string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		cand, err := p.deps.Claims.ClaimNextValidated(ctx, workerID, time.Now())
		if err != nil {
			log.Warnf("%s: claiming candidate: %v", workerID, err)
			p.idleWait(ctx)
			continue
		}
		if cand != nil {
			metrics.CandidatesClaimedTotal.WithLabelValues(workerID).Inc()
			p.process(ctx, workerID, *cand)
			continue
		}

		if next, ok := p.deps.Retest.Next(ctx, time.Now()); ok {
			p.retestOne(ctx, workerID, *next)
			continue
		}

		p.idleWait(ctx)
	}
}

func (p *Pool) idleWait(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
	}
}

func (p *Pool) process(ctx context.Context, workerID string, cand model.Candidate) {
	defer func() {
		if err := p.deps.Claims.Release(ctx, cand.ID); err != nil {
			log.Warnf("%s: releasing claim on %s: %v", workerID, cand.ID, err)
		}
	}()

	logic, err := p.deps.Logic.Load(cand)
	if err != nil {
		p.fail(ctx, cand.ID, "load_logic", model.ReasonInsufficientData, err)
		return
	}

	isData, isCoins, err := p.deps.Datasets.ISDataset(ctx, cand)
	if err != nil {
		p.fail(ctx, cand.ID, "optimize", model.ReasonInsufficientData, err)
		return
	}

	optimizeStart := time.Now()
	best, err := optimizer.Optimize(ctx, logic, cand, isData, isCoins, p.deps.Config, 4)
	metrics.StageDuration.WithLabelValues("optimize").Observe(time.Since(optimizeStart).Seconds())
	if err != nil {
		p.event(ctx, cand.ID, "optimize", "rejected", model.ReasonNoCombinationPassed)
		p.setStatus(ctx, cand.ID, model.StatusFailed, model.ReasonNoCombinationPassed)
		return
	}
	p.event(ctx, cand.ID, "optimize", "passed", model.ReasonNone)

	oosData, oosCoins, err := p.deps.Datasets.OOSDataset(ctx, cand)
	if err != nil {
		p.fail(ctx, cand.ID, "evaluate", model.ReasonInsufficientData, err)
		return
	}

	evaluateStart := time.Now()
	evalResult, err := evaluator.Evaluate(ctx, logic, cand, best.Params, isData, oosData, mergeCoins(isCoins, oosCoins), p.deps.Config)
	metrics.StageDuration.WithLabelValues("evaluate").Observe(time.Since(evaluateStart).Seconds())
	if err != nil {
		reason := reasonFromEvalErr(err)
		p.event(ctx, cand.ID, "evaluate", "rejected", reason)
		p.setStatus(ctx, cand.ID, model.StatusFailed, reason)
		return
	}
	p.event(ctx, cand.ID, "evaluate", "passed", model.ReasonNone)

	score := scorer.Score(evalResult)
	if score < p.deps.Config.PoolMinScore {
		p.event(ctx, cand.ID, "score", "below_floor", model.ReasonScoreBelowThreshold)
		p.setStatus(ctx, cand.ID, model.StatusRetired, model.ReasonScoreBelowThreshold)
		return
	}
	p.event(ctx, cand.ID, "score", "passed", model.ReasonNone)

	btc, err := p.deps.Datasets.BTCDataset(ctx, cand, p.deps.Config.ShuffleDataDays)
	if err != nil {
		p.fail(ctx, cand.ID, "shuffle", model.ReasonInsufficientData, err)
		return
	}
	shuffleStart := time.Now()
	shufflePassed, err := p.deps.Shuffle.Test(ctx, cand.CodeFingerprint, logic, btc, p.deps.Config.ShuffleIterations)
	metrics.StageDuration.WithLabelValues("shuffle").Observe(time.Since(shuffleStart).Seconds())
	if err != nil {
		p.fail(ctx, cand.ID, "shuffle", model.ReasonInsufficientData, err)
		return
	}
	if !shufflePassed {
		p.event(ctx, cand.ID, "shuffle", "failed", model.ReasonShuffleFailed)
		p.setStatus(ctx, cand.ID, model.StatusRetired, model.ReasonShuffleFailed)
		return
	}
	p.event(ctx, cand.ID, "shuffle", "passed", model.ReasonNone)

	walkforwardStart := time.Now()
	wfaResult, err := walkforward.Validate(ctx, logic, best.Params, isData, isCoins, p.deps.Config)
	metrics.StageDuration.WithLabelValues("walkforward").Observe(time.Since(walkforwardStart).Seconds())
	if err != nil {
		p.fail(ctx, cand.ID, "walkforward", model.ReasonInsufficientData, err)
		return
	}
	if !wfaResult.Passed {
		p.event(ctx, cand.ID, "walkforward", "failed", model.ReasonWFAInsufficientWindows)
		p.setStatus(ctx, cand.ID, model.StatusRetired, model.ReasonWFAInsufficientWindows)
		return
	}
	p.event(ctx, cand.ID, "walkforward", "passed", model.ReasonNone)

	now := time.Now()
	if err := p.deps.Updater.SetParametersAndScore(ctx, cand.ID, best.Params, score, now); err != nil {
		log.Warnf("persisting parameters/score for %s: %v", cand.ID, err)
	}

	outcome, evictedID := p.deps.Pool.TryAdmit(cand.ID, score, now)
	switch outcome {
	case pool.Admitted, pool.AdmittedWithEviction:
		p.persistPoolUpsert(ctx, model.PoolEntry{CandidateID: cand.ID, Score: score, LastEvaluatedAt: now})
		p.event(ctx, cand.ID, "pool_admit", "admitted", model.ReasonNone)
		p.setStatus(ctx, cand.ID, model.StatusActive, model.ReasonNone)
		if outcome == pool.AdmittedWithEviction && evictedID != "" {
			p.persistPoolRemove(ctx, evictedID)
			p.event(ctx, evictedID, "pool_admit", "evicted", model.ReasonPoolRejectedBelowWorst)
			p.setStatus(ctx, evictedID, model.StatusRetired, model.ReasonPoolRejectedBelowWorst)
		}
	case pool.Rejected:
		p.event(ctx, cand.ID, "pool_admit", "rejected", model.ReasonPoolRejectedBelowWorst)
		p.setStatus(ctx, cand.ID, model.StatusRetired, model.ReasonPoolRejectedBelowWorst)
	}
}

func (p *Pool) retestOne(ctx context.Context, workerID string, cand model.Candidate) {
	isData, isCoins, err := p.deps.Datasets.ISDataset(ctx, cand)
	if err != nil {
		log.Warnf("%s: retest %s: loading dataset: %v", workerID, cand.ID, err)
		return
	}
	oosData, oosCoins, err := p.deps.Datasets.OOSDataset(ctx, cand)
	if err != nil {
		log.Warnf("%s: retest %s: loading OOS dataset: %v", workerID, cand.ID, err)
		return
	}
	logic, err := p.deps.Logic.Load(cand)
	if err != nil {
		log.Warnf("%s: retest %s: loading logic: %v", workerID, cand.ID, err)
		return
	}

	evalResult, err := evaluator.Evaluate(ctx, logic, cand, cand.Parameters, isData, oosData, mergeCoins(isCoins, oosCoins), p.deps.Config)
	if err != nil {
		p.event(ctx, cand.ID, "retest", "rejected", reasonFromEvalErr(err))
		p.deps.Pool.Revalidate(cand.ID, 0, time.Now())
		p.persistPoolRemove(ctx, cand.ID)
		p.setStatus(ctx, cand.ID, model.StatusRetired, reasonFromEvalErr(err))
		return
	}

	score := scorer.Score(evalResult)
	now := time.Now()
	if err := p.deps.Updater.SetParametersAndScore(ctx, cand.ID, cand.Parameters, score, now); err != nil {
		log.Warnf("retest: persisting score for %s: %v", cand.ID, err)
	}

	outcome := p.deps.Pool.Revalidate(cand.ID, score, now)
	if outcome == pool.Retired {
		p.persistPoolRemove(ctx, cand.ID)
		p.event(ctx, cand.ID, "retest", "retired", model.ReasonScoreBelowThreshold)
		p.setStatus(ctx, cand.ID, model.StatusRetired, model.ReasonScoreBelowThreshold)
	} else {
		p.persistPoolUpsert(ctx, model.PoolEntry{CandidateID: cand.ID, Score: score, LastEvaluatedAt: now})
		p.event(ctx, cand.ID, "retest", "still_active", model.ReasonNone)
	}
}

func (p *Pool) persistPoolUpsert(ctx context.Context, e model.PoolEntry) {
	if p.deps.PoolStore == nil {
		return
	}
	if err := p.deps.PoolStore.Upsert(ctx, e); err != nil {
		log.Warnf("persisting pool entry %s: %v", e.CandidateID, err)
	}
}

func (p *Pool) persistPoolRemove(ctx context.Context, candidateID string) {
	if p.deps.PoolStore == nil {
		return
	}
	if err := p.deps.PoolStore.Remove(ctx, candidateID); err != nil {
		log.Warnf("removing pool entry %s: %v", candidateID, err)
	}
}

func reasonFromEvalErr(err error) model.Reason {
	if r, ok := asRejection(err); ok {
		return r.Reason
	}
	return model.ReasonInsufficientData
}

func asRejection(err error) (evaluator.Rejection, bool) {
	r, ok := err.(evaluator.Rejection)
	return r, ok
}

func (p *Pool) fail(ctx context.Context, candidateID, stage string, reason model.Reason, err error) {
	log.Warnf("%s: %s: %v", candidateID, stage, err)
	p.event(ctx, candidateID, stage, "error", reason)
}

func (p *Pool) event(ctx context.Context, candidateID, stage, outcome string, reason model.Reason) {
	metrics.RecordStageOutcome(stage, outcome)
	if err := p.deps.Events.Record(ctx, candidateID, stage, outcome, reason, time.Now()); err != nil {
		log.Warnf("recording event %s/%s for %s: %v", stage, outcome, candidateID, err)
	}
}

func (p *Pool) setStatus(ctx context.Context, candidateID string, status model.Status, reason model.Reason) {
	if err := p.deps.Updater.SetStatus(ctx, candidateID, status, reason); err != nil {
		log.Warnf("setting status %s on %s: %v", status, candidateID, err)
	}
}

func mergeCoins(a, b map[string]model.Coin) map[string]model.Coin {
	out := make(map[string]model.Coin, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}
