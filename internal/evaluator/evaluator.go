// Package evaluator runs the Simulation Kernel on in-sample then
// out-of-sample splits with a candidate's chosen parameters, enforces the
// degradation policy, and blends the two into a recency-weighted result:
// the IS/OOS Evaluator (C4).
package evaluator

import (
	"context"
	"fmt"

	"github.com/poorman/alphafunnel/internal/config"
	"github.com/poorman/alphafunnel/internal/kernel"
	"github.com/poorman/alphafunnel/internal/logger"
	"github.com/poorman/alphafunnel/internal/model"
)

var log = logger.Named("evaluator")

// Result is the blended, recency-weighted metric set C5 scores.
type Result struct {
	Sharpe      float64
	MaxDrawdown float64
	WinRate     float64
	Expectancy  float64
	TotalReturn float64
	Degradation float64
	// OOSBonus is positive when OOS held up at least as well as IS (capped
	// at 0.20), negative (a penalty) when it degraded. It is returned on the
	// Result only and is not persisted or added into the score; the
	// scorer's recency_norm already accounts for degradation directly per
	// its own formula.
	OOSBonus float64
	IS       model.Result
	OOS      model.Result
}

// Rejection is returned (as an error, via errors.As) when a candidate fails
// a threshold or overfit check. Reason is always one of the closed
// model.Reason values.
type Rejection struct {
	Reason model.Reason
}

func (r Rejection) Error() string { return string(r.Reason) }

func tradeFloor(cfg *config.Config, tf model.Timeframe) (isMin, oosMin int) {
	pair, ok := cfg.Thresholds.TradesByTimeframe[string(tf)]
	if !ok {
		return 10, 5
	}
	return pair[0], pair[1]
}

func riskConfig(cfg *config.Config) kernel.RiskConfig {
	return kernel.RiskConfig{
		InitialEquity:          10000,
		RiskPerTradePct:        cfg.RiskPerTradePct,
		MaxConcurrentPositions: cfg.RiskMaxConcurrentPositions,
		FeeRate:                cfg.ExchangeFeeRate,
		SlippagePct:            cfg.ExchangeSlippagePct,
	}
}

func checkThresholds(res model.Result, cfg *config.Config, minTrades int, prefix string) model.Reason {
	if res.TotalTrades < minTrades {
		return model.Reason(prefix + "_trades_too_low")
	}
	if res.Sharpe < cfg.Thresholds.Sharpe {
		return model.Reason(prefix + "_sharpe_too_low")
	}
	if res.WinRate < cfg.Thresholds.WinRate {
		return model.Reason(prefix + "_win_rate_too_low")
	}
	if res.Expectancy < cfg.Thresholds.Expectancy {
		return model.Reason(prefix + "_expectancy_too_low")
	}
	if res.MaxDrawdown > cfg.Thresholds.MaxDrawdown {
		return model.Reason(prefix + "_drawdown_too_high")
	}
	return model.ReasonNone
}

// Evaluate runs IS then OOS with cand's params, enforcing thresholds and
// the degradation bound. A non-nil Rejection (IS/OOS threshold fail,
// overfit) leads the pipeline to mark the candidate failed, or retired on a
// retest; the candidate row is not deleted. A non-Rejection error means a
// structural failure (insufficient data).
func Evaluate(ctx context.Context, logic kernel.CandidateLogic, cand model.Candidate, params model.Params, isData, oosData map[string]model.Dataset, coins map[string]model.Coin, cfg *config.Config) (Result, error) {
	risk := riskConfig(cfg)
	isMinTrades, oosMinTrades := tradeFloor(cfg, cand.Timeframe)

	isRes, err := kernel.Run(ctx, logic, params, isData, coins, risk, 100, "evaluator_is")
	if err != nil {
		return Result{}, fmt.Errorf("evaluator: IS run: %w", err)
	}
	if reason := checkThresholds(isRes, cfg, isMinTrades, "is"); reason != model.ReasonNone {
		return Result{}, Rejection{Reason: reason}
	}

	oosRes, err := kernel.Run(ctx, logic, params, oosData, coins, risk, 20, "evaluator_oos")
	if err != nil {
		return Result{}, fmt.Errorf("evaluator: OOS run: %w", err)
	}
	if reason := checkThresholds(oosRes, cfg, oosMinTrades, "oos"); reason != model.ReasonNone {
		return Result{}, Rejection{Reason: reason}
	}

	degradation := 0.0
	if isRes.Sharpe != 0 {
		degradation = (isRes.Sharpe - oosRes.Sharpe) / isRes.Sharpe
	}
	if degradation > cfg.OOSMaxDegradation {
		return Result{}, Rejection{Reason: model.ReasonOOSOverfitted}
	}

	log.Debugf("candidate %s: IS sharpe=%.3f OOS sharpe=%.3f degradation=%.3f", cand.ID, isRes.Sharpe, oosRes.Sharpe, degradation)

	bonus := 0.0
	if oosRes.Sharpe >= isRes.Sharpe {
		abs := degradation
		if abs < 0 {
			abs = -abs
		}
		bonus = min(0.20, abs*0.5)
	} else {
		bonus = -degradation * 0.10
	}

	const isWeight, oosWeight = 0.4, 0.6
	blended := Result{
		Sharpe:      isWeight*isRes.Sharpe + oosWeight*oosRes.Sharpe,
		MaxDrawdown: isWeight*isRes.MaxDrawdown + oosWeight*oosRes.MaxDrawdown,
		WinRate:     isWeight*isRes.WinRate + oosWeight*oosRes.WinRate,
		Expectancy:  isWeight*isRes.Expectancy + oosWeight*oosRes.Expectancy,
		TotalReturn: isWeight*isRes.TotalReturn + oosWeight*oosRes.TotalReturn,
		Degradation: degradation,
		OOSBonus:    bonus,
		IS:          isRes,
		OOS:         oosRes,
	}
	return blended, nil
}
