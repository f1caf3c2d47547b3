// Package walkforward implements the expanding-window consistency check
// that runs a candidate's fixed parameters over growing prefixes of the
// in-sample data: the Walk-Forward Validator (C7).
package walkforward

import (
	"context"

	"github.com/poorman/alphafunnel/internal/config"
	"github.com/poorman/alphafunnel/internal/kernel"
	"github.com/poorman/alphafunnel/internal/logger"
	"github.com/poorman/alphafunnel/internal/model"
)

var log = logger.Named("walkforward")

// Result reports how many of the expanding windows cleared the minimum
// expectancy bar.
type Result struct {
	WindowsPassed int
	WindowsTotal  int
	Passed        bool
}

// Validate runs params, unchanged, over expanding prefixes of isData at
// cfg.WFAWindowPercentages and requires every window to clear
// cfg.WFAMinExpectancy.
func Validate(ctx context.Context, logic kernel.CandidateLogic, params model.Params, isData map[string]model.Dataset, coins map[string]model.Coin, cfg *config.Config) (Result, error) {
	risk := kernel.RiskConfig{
		InitialEquity:          10000,
		RiskPerTradePct:        cfg.RiskPerTradePct,
		MaxConcurrentPositions: cfg.RiskMaxConcurrentPositions,
		FeeRate:                cfg.ExchangeFeeRate,
		SlippagePct:            cfg.ExchangeSlippagePct,
	}

	total := len(cfg.WFAWindowPercentages)
	passed := 0
	for _, pct := range cfg.WFAWindowPercentages {
		window := prefixWindow(isData, pct)
		res, err := kernel.Run(ctx, logic, params, window, coins, risk, 20, "walkforward")
		if err != nil {
			return Result{}, err
		}
		if res.Expectancy >= cfg.WFAMinExpectancy {
			passed++
		}
	}

	log.Debugf("walk-forward: %d/%d windows passed (min expectancy %.4f)", passed, total, cfg.WFAMinExpectancy)

	return Result{
		WindowsPassed: passed,
		WindowsTotal:  total,
		Passed:        passed == total,
	}, nil
}

// prefixWindow slices every symbol's dataset down to its first pct
// fraction of bars, from day one (an expanding, not sliding, window).
func prefixWindow(datasets map[string]model.Dataset, pct float64) map[string]model.Dataset {
	out := make(map[string]model.Dataset, len(datasets))
	for symbol, ds := range datasets {
		cut := int(float64(len(ds.Bars)) * pct)
		if cut < 1 {
			cut = 1
		}
		if cut > len(ds.Bars) {
			cut = len(ds.Bars)
		}
		out[symbol] = model.Dataset{Symbol: ds.Symbol, Timeframe: ds.Timeframe, Bars: ds.Bars[:cut]}
	}
	return out
}
