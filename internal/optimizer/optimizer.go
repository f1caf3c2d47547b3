// Package optimizer runs the Simulation Kernel across a candidate's
// enumerated parameter space, filters by threshold, and returns the best
// survivor: the Parametric Optimizer (C3).
package optimizer

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/poorman/alphafunnel/internal/config"
	"github.com/poorman/alphafunnel/internal/kernel"
	"github.com/poorman/alphafunnel/internal/logger"
	"github.com/poorman/alphafunnel/internal/model"
	"github.com/poorman/alphafunnel/internal/paramspace"
)

var log = logger.Named("optimizer")

// ErrNoCombinationPassed is returned when every tuple in the space fails
// threshold. The caller marks the candidate failed; the candidate row is
// not deleted.
var ErrNoCombinationPassed = errors.New("optimizer: no combination passed thresholds")

// minTradesC3 is the fixed trade-count floor the optimizer enforces,
// independent of the evaluator's timeframe-specific minimums.
const minTradesC3 = 10

// Scored pairs a parameter tuple with its kernel Result and combo_score.
type Scored struct {
	Params model.Params
	Result model.Result
	Score  float64
}

// Optimize builds the parameter space for cand, runs the kernel on isData
// for every tuple (bounded by workers concurrent kernel calls), and returns
// the best-scoring survivor.
func Optimize(ctx context.Context, logic kernel.CandidateLogic, cand model.Candidate, isData map[string]model.Dataset, coins map[string]model.Coin, cfg *config.Config, workers int) (Scored, error) {
	tuples, err := paramspace.Build(cand)
	if err != nil {
		return Scored{}, err
	}
	if len(tuples) == 0 {
		return Scored{}, ErrNoCombinationPassed
	}

	risk := kernel.RiskConfig{
		InitialEquity:          10000,
		RiskPerTradePct:        cfg.RiskPerTradePct,
		MaxConcurrentPositions: cfg.RiskMaxConcurrentPositions,
		FeeRate:                cfg.ExchangeFeeRate,
		SlippagePct:            cfg.ExchangeSlippagePct,
	}

	var mu sync.Mutex
	var survivors []Scored

	g, gctx := errgroup.WithContext(ctx)
	if workers < 1 {
		workers = 1
	}
	g.SetLimit(workers)

	for _, tuple := range tuples {
		tuple := tuple
		g.Go(func() error {
			res, err := kernel.Run(gctx, logic, tuple, isData, coins, risk, 100, "optimizer")
			if err != nil {
				if errors.Is(err, kernel.ErrInsufficientData) {
					return err
				}
				return nil
			}
			if res.TotalTrades == 0 {
				return nil
			}
			if !passesThresholds(res, cfg) {
				return nil
			}
			score := comboScore(res)
			mu.Lock()
			survivors = append(survivors, Scored{Params: tuple, Result: res, Score: score})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Scored{}, err
	}

	if len(survivors) == 0 {
		log.Debugf("candidate %s: zero of %d combinations passed thresholds", cand.ID, len(tuples))
		return Scored{}, ErrNoCombinationPassed
	}

	sort.Slice(survivors, func(i, j int) bool { return survivors[i].Score > survivors[j].Score })
	return survivors[0], nil
}

func passesThresholds(res model.Result, cfg *config.Config) bool {
	return res.Sharpe >= cfg.Thresholds.Sharpe &&
		res.WinRate >= cfg.Thresholds.WinRate &&
		res.TotalTrades >= minTradesC3 &&
		res.Expectancy >= cfg.Thresholds.Expectancy &&
		res.MaxDrawdown <= cfg.Thresholds.MaxDrawdown
}

func comboScore(res model.Result) float64 {
	edgeNorm := clamp(res.Expectancy/0.10, 0, 1)
	sharpeNorm := clamp(res.Sharpe/3.0, 0, 1)
	return (0.50*edgeNorm + 0.25*sharpeNorm + 0.15*res.WinRate + 0.10*(1-res.MaxDrawdown)) * 100
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
