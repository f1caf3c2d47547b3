package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poorman/alphafunnel/internal/config"
	"github.com/poorman/alphafunnel/internal/kernel"
	"github.com/poorman/alphafunnel/internal/kernel/primitives"
	"github.com/poorman/alphafunnel/internal/model"
	"github.com/poorman/alphafunnel/internal/pool"
	"github.com/poorman/alphafunnel/internal/retest"
	"github.com/poorman/alphafunnel/internal/shuffle"
)

type fakeClaims struct{}

func (fakeClaims) ClaimNextValidated(context.Context, string, time.Time) (*model.Candidate, error) {
	return nil, nil
}
func (fakeClaims) Release(context.Context, string) error                 { return nil }
func (fakeClaims) ReleaseStale(context.Context, time.Time) (int, error) { return 0, nil }

type recordedStatus struct {
	candidateID string
	status      model.Status
	reason      model.Reason
}

type fakeUpdater struct {
	mu       sync.Mutex
	statuses []recordedStatus
	scored   []string
}

func (f *fakeUpdater) SetStatus(ctx context.Context, candidateID string, status model.Status, reason model.Reason) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, recordedStatus{candidateID, status, reason})
	return nil
}

func (f *fakeUpdater) SetParametersAndScore(ctx context.Context, candidateID string, params model.Params, score float64, evaluatedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scored = append(f.scored, candidateID)
	return nil
}

func (f *fakeUpdater) lastStatus() (recordedStatus, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.statuses) == 0 {
		return recordedStatus{}, false
	}
	return f.statuses[len(f.statuses)-1], true
}

type recordedEvent struct {
	candidateID, stage, outcome string
	reason                      model.Reason
}

type fakeEvents struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (f *fakeEvents) Record(ctx context.Context, candidateID, stage, outcome string, reason model.Reason, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{candidateID, stage, outcome, reason})
	return nil
}

func (f *fakeEvents) stages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, e := range f.events {
		out[i] = e.stage + ":" + e.outcome
	}
	return out
}

type neverSignals struct{}

func (neverSignals) ProduceSignal(kernel.BarWindow) kernel.Signal { return kernel.SignalNone }
func (neverSignals) Fingerprint() string                          { return "never" }

type fakeLogicLoader struct{ logic kernel.CandidateLogic }

func (f fakeLogicLoader) Load(model.Candidate) (kernel.CandidateLogic, error) { return f.logic, nil }

func cyclicWinningBars(cycles int) []model.OHLCV {
	pattern := []float64{100, 100, 100, 120, 100, 100, 100, 115}
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var out []model.OHLCV
	for c := 0; c < cycles; c++ {
		for _, px := range pattern {
			out = append(out, model.OHLCV{
				OpenTime: base.Add(time.Duration(len(out)) * time.Hour),
				Open:     px, High: px * 1.01, Low: px * 0.99, Close: px, Volume: 1000,
			})
		}
	}
	return out
}

type fakeDatasets struct {
	isBars, oosBars, btcBars []model.OHLCV
	coins                    map[string]model.Coin
}

func (f fakeDatasets) ISDataset(ctx context.Context, cand model.Candidate) (map[string]model.Dataset, map[string]model.Coin, error) {
	return map[string]model.Dataset{"BTCUSDT": {Symbol: "BTCUSDT", Bars: f.isBars}}, f.coins, nil
}

func (f fakeDatasets) OOSDataset(ctx context.Context, cand model.Candidate) (map[string]model.Dataset, map[string]model.Coin, error) {
	return map[string]model.Dataset{"BTCUSDT": {Symbol: "BTCUSDT", Bars: f.oosBars}}, f.coins, nil
}

func (f fakeDatasets) BTCDataset(ctx context.Context, cand model.Candidate, days int) (model.Dataset, error) {
	return model.Dataset{Symbol: "BTCUSDT", Bars: f.btcBars}, nil
}

func testDeps(logic kernel.CandidateLogic, updater *fakeUpdater, events *fakeEvents) Deps {
	cfg := config.Defaults()
	coins := map[string]model.Coin{"BTCUSDT": {Symbol: "BTCUSDT", MaxLeverage: 20, MinNotional: 5, Tradable: true}}
	ds := fakeDatasets{
		isBars:  cyclicWinningBars(40),
		oosBars: cyclicWinningBars(20),
		btcBars: cyclicWinningBars(20),
		coins:   coins,
	}
	store := shuffleFakeStore{verdicts: map[string]bool{}}
	return Deps{
		Claims:    fakeClaims{},
		Updater:   updater,
		Events:    events,
		Datasets:  ds,
		Logic:     fakeLogicLoader{logic: logic},
		Pool:      pool.NewManager(cfg.PoolMaxSize, cfg.PoolMinScore),
		PoolStore: &fakePoolStore{},
		Shuffle:   shuffle.NewTester(store, 16),
		Retest:    retest.NewScheduler(emptyPoolReader{}, emptyCandidateLoader{}, cfg.RetestIntervalDays),
		Config:    cfg,
	}
}

type shuffleFakeStore struct{ verdicts map[string]bool }

func (s shuffleFakeStore) Get(ctx context.Context, fp string) (bool, bool, error) {
	v, ok := s.verdicts[fp]
	return v, ok, nil
}
func (s shuffleFakeStore) Put(ctx context.Context, fp string, passed bool) error {
	s.verdicts[fp] = passed
	return nil
}

type fakePoolStore struct {
	mu       sync.Mutex
	upserts  []model.PoolEntry
	removals []string
}

func (f *fakePoolStore) Upsert(ctx context.Context, e model.PoolEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, e)
	return nil
}

func (f *fakePoolStore) Remove(ctx context.Context, candidateID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removals = append(f.removals, candidateID)
	return nil
}

type emptyPoolReader struct{}

func (emptyPoolReader) Snapshot() []model.PoolEntry { return nil }

type emptyCandidateLoader struct{}

func (emptyCandidateLoader) Get(context.Context, string) (model.Candidate, error) {
	return model.Candidate{}, nil
}

func TestProcess_AdmitsAStrongCandidateIntoThePool(t *testing.T) {
	updater := &fakeUpdater{}
	events := &fakeEvents{}
	logic := primitives.ThresholdCross{Lookback: 4, UpperPct: 0.05, LowerPct: 0.05}
	deps := testDeps(logic, updater, events)
	p := NewPool(deps)

	cand := model.Candidate{
		ID:              "cand-1",
		CodeFingerprint: logic.Fingerprint(),
		SourceClass:     model.SourceFree,
		Timeframe:       model.Timeframe("4h"),
	}
	p.process(context.Background(), "worker-0", cand)

	status, ok := updater.lastStatus()
	require.True(t, ok)
	assert.Equal(t, model.StatusActive, status.status)
	assert.Contains(t, events.stages(), "pool_admit:admitted")
	assert.Equal(t, 1, deps.Pool.Size())

	poolStore := deps.PoolStore.(*fakePoolStore)
	require.Len(t, poolStore.upserts, 1)
	assert.Equal(t, "cand-1", poolStore.upserts[0].CandidateID)
}

func TestProcess_FailsCandidateWhenNoParamsPassOptimizer(t *testing.T) {
	updater := &fakeUpdater{}
	events := &fakeEvents{}
	deps := testDeps(neverSignals{}, updater, events)
	p := NewPool(deps)

	cand := model.Candidate{
		ID:          "cand-2",
		SourceClass: model.SourceFree,
		Timeframe:   model.Timeframe("4h"),
	}
	p.process(context.Background(), "worker-0", cand)

	status, ok := updater.lastStatus()
	require.True(t, ok)
	assert.Equal(t, model.StatusFailed, status.status)
	assert.Contains(t, events.stages(), "optimize:rejected")
	assert.Equal(t, 0, deps.Pool.Size())
}

func TestRetestOne_RetiresOnEvaluatorRejection(t *testing.T) {
	updater := &fakeUpdater{}
	events := &fakeEvents{}
	deps := testDeps(neverSignals{}, updater, events)
	p := NewPool(deps)

	now := time.Now()
	deps.Pool.TryAdmit("cand-3", 90, now)

	cand := model.Candidate{
		ID:          "cand-3",
		SourceClass: model.SourceFree,
		Timeframe:   model.Timeframe("4h"),
		Parameters:  model.Params{SLPct: 0.05, TPPct: 0.10},
	}
	p.retestOne(context.Background(), "worker-0", cand)

	status, ok := updater.lastStatus()
	require.True(t, ok)
	assert.Equal(t, model.StatusRetired, status.status)
	assert.Equal(t, 0, deps.Pool.Size())

	poolStore := deps.PoolStore.(*fakePoolStore)
	assert.Contains(t, poolStore.removals, "cand-3")
}

func TestMergeCoins_CombinesBothMapsPreferringLatterOnCollision(t *testing.T) {
	a := map[string]model.Coin{"BTCUSDT": {Symbol: "BTCUSDT", MaxLeverage: 10}}
	b := map[string]model.Coin{"BTCUSDT": {Symbol: "BTCUSDT", MaxLeverage: 20}, "ETHUSDT": {Symbol: "ETHUSDT"}}
	merged := mergeCoins(a, b)
	assert.Len(t, merged, 2)
	assert.Equal(t, 20.0, merged["BTCUSDT"].MaxLeverage)
}
