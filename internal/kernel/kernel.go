// Package kernel implements the deterministic, single-threaded portfolio
// backtest: given a candidate's logic, a parameter tuple, and a set of
// per-symbol datasets, it replays the series bar by bar and returns
// aggregate trade statistics. No kernel invocation ever mutates state
// outside its own call; nothing here is safe to share across goroutines,
// and nothing needs to be.
package kernel

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/poorman/alphafunnel/internal/logger"
	"github.com/poorman/alphafunnel/internal/metrics"
	"github.com/poorman/alphafunnel/internal/model"
)

var log = logger.Named("kernel")

// ErrNoTrades is never actually returned: a zero-trade run yields a
// zero-value Result rather than an error, per the kernel's failure
// semantics. Kept as a sentinel for callers that want to special-case it
// with errors.Is against a wrapped Result check elsewhere.
var ErrNoTrades = errors.New("kernel: no trades produced")

// ErrInsufficientData is returned when a dataset has fewer than MinBars
// bars available after alignment.
var ErrInsufficientData = errors.New("kernel: insufficient data")

// Signal is the capability output a CandidateLogic produces per bar.
type Signal int

const (
	SignalNone Signal = iota
	SignalOpenLong
	SignalOpenShort
	SignalClose
)

// BarWindow is the read-only view of history a CandidateLogic sees at one
// step: every bar up to and including Index. Logic must never read past
// Index; the kernel itself enforces next-bar-open execution regardless.
type BarWindow struct {
	Bars  []model.OHLCV
	Index int
}

// Current returns the bar the window is currently closed on.
func (w BarWindow) Current() model.OHLCV { return w.Bars[w.Index] }

// CandidateLogic is the typed capability every strategy exposes to the
// kernel: produce a signal from a bar window, and report a stable
// fingerprint of the underlying logic (not the parameters).
type CandidateLogic interface {
	ProduceSignal(window BarWindow) Signal
	Fingerprint() string
}

// RiskConfig carries the sizing and execution-cost knobs that are
// configuration, not strategy parameters.
type RiskConfig struct {
	InitialEquity        float64
	RiskPerTradePct       float64
	MaxConcurrentPositions int
	FeeRate               float64
	SlippagePct           float64
}

// MinBars is the per-call data-sufficiency floor; the evaluator passes 100
// for IS and 20 for OOS.
type MinBars int

type openPosition struct {
	symbol      string
	direction   model.Direction
	entryPrice  float64
	entryTime   model.OHLCV
	notional    float64
	margin      float64
	barsHeld    int
}

// Run replays datasets bar by bar applying logic+params under cfg, and
// returns the aggregate Result. datasets must already be aligned to the
// candidate's timeframe; coins supplies per-symbol leverage/notional
// limits.
// Run replays datasets bar by bar under logic/params and returns aggregate
// trade statistics. caller identifies the component driving this
// invocation (optimizer, evaluator_is, evaluator_oos, walkforward) for
// metrics.
func Run(ctx context.Context, logic CandidateLogic, params model.Params, datasets map[string]model.Dataset, coins map[string]model.Coin, cfg RiskConfig, minBars int, caller string) (result model.Result, err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.RecordKernelRun(caller, outcome, time.Since(start).Seconds())
	}()

	for symbol, ds := range datasets {
		if len(ds.Bars) < minBars {
			log.Debugf("dataset %s has %d bars, below floor %d", symbol, len(ds.Bars), minBars)
			return model.Result{}, ErrInsufficientData
		}
	}

	symbols := make([]string, 0, len(datasets))
	for s := range datasets {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	cursor := make(map[string]int, len(symbols))
	open := make(map[string]*openPosition, len(symbols))
	equity := cfg.InitialEquity
	marginInUse := 0.0
	peakEquity := equity
	maxDrawdown := 0.0
	var trades []model.Trade

	exhausted := func() bool {
		for _, s := range symbols {
			if cursor[s] < len(datasets[s].Bars)-1 {
				return false
			}
		}
		return true
	}

	applyExit := func(symbol string, exitPrice float64, reason model.ExitReason, exitBar model.OHLCV) {
		pos := open[symbol]
		if pos == nil {
			return
		}
		sign := 1.0
		if pos.direction == model.DirectionShort {
			sign = -1.0
		}
		entryExec := slippageAdjust(pos.entryPrice, pos.direction, true, cfg.SlippagePct)
		exitExec := slippageAdjust(exitPrice, pos.direction, false, cfg.SlippagePct)
		priceChange := decimal.NewFromFloat(exitExec).Sub(decimal.NewFromFloat(entryExec)).Div(decimal.NewFromFloat(entryExec))
		pnlFrac := priceChange.Mul(decimal.NewFromFloat(sign))
		feeFrac := decimal.NewFromFloat(cfg.FeeRate).Mul(decimal.NewFromFloat(2))
		pnlFrac = pnlFrac.Sub(feeFrac)
		pnlFloat, _ := pnlFrac.Float64()
		pnlDollars := pos.notional * pnlFloat

		equity += pnlDollars
		marginInUse -= pos.margin
		if equity > peakEquity {
			peakEquity = equity
		}
		if peakEquity > 0 {
			dd := (peakEquity - equity) / peakEquity
			if dd > maxDrawdown {
				maxDrawdown = dd
			}
		}

		trades = append(trades, model.Trade{
			Symbol:      symbol,
			Direction:   pos.direction,
			EntryTime:   pos.entryTime.OpenTime,
			ExitTime:    exitBar.OpenTime,
			EntryPrice:  pos.entryPrice,
			ExitPrice:   exitPrice,
			Notional:    pos.notional,
			PnLFraction: pnlFloat,
			ExitReason:  reason,
		})
		delete(open, symbol)
	}

	for !exhausted() {
		select {
		case <-ctx.Done():
			return model.Result{}, ctx.Err()
		default:
		}

		for _, symbol := range symbols {
			bars := datasets[symbol].Bars
			i := cursor[symbol]
			if i >= len(bars)-1 {
				continue
			}
			bar := bars[i]

			if pos, ok := open[symbol]; ok {
				pos.barsHeld++
				exited := false
				slLevel := pos.entryPrice * (1 - params.SLPct)
				if pos.direction == model.DirectionShort {
					slLevel = pos.entryPrice * (1 + params.SLPct)
				}
				crossedSL := (pos.direction == model.DirectionLong && bar.Close <= slLevel) ||
					(pos.direction == model.DirectionShort && bar.Close >= slLevel)
				if crossedSL {
					applyExit(symbol, bar.Close, model.ExitStopLoss, bar)
					exited = true
				}
				if !exited && params.TPPct > 0 {
					tpLevel := pos.entryPrice * (1 + params.TPPct)
					if pos.direction == model.DirectionShort {
						tpLevel = pos.entryPrice * (1 - params.TPPct)
					}
					crossedTP := (pos.direction == model.DirectionLong && bar.Close >= tpLevel) ||
						(pos.direction == model.DirectionShort && bar.Close <= tpLevel)
					if crossedTP {
						applyExit(symbol, bar.Close, model.ExitTakeProfit, bar)
						exited = true
					}
				}
				if !exited && params.ExitBars > 0 && pos.barsHeld >= params.ExitBars {
					applyExit(symbol, bar.Close, model.ExitTime, bar)
					exited = true
				}
				if !exited && i == len(bars)-2 {
					applyExit(symbol, bars[i+1].Open, model.ExitEndOfSeries, bars[i+1])
					exited = true
				}
			}

			if _, stillOpen := open[symbol]; !stillOpen {
				window := BarWindow{Bars: bars, Index: i}
				sig := logic.ProduceSignal(window)
				if sig == SignalOpenLong || sig == SignalOpenShort {
					if len(open) < cfg.MaxConcurrentPositions {
						coin := coins[symbol]
						nextOpen := bars[i+1].Open
						pos, ok := openNewPosition(symbol, sig, nextOpen, bars[i+1], params, coin, equity, marginInUse, cfg)
						if ok {
							open[symbol] = pos
							marginInUse += pos.margin
						}
					}
				}
			}

			cursor[symbol] = i + 1
		}
	}

	for _, symbol := range symbols {
		if _, ok := open[symbol]; ok {
			bars := datasets[symbol].Bars
			last := bars[len(bars)-1]
			applyExit(symbol, last.Close, model.ExitEndOfSeries, last)
		}
	}

	if len(trades) == 0 {
		return model.Result{}, nil
	}

	return summarize(trades, cfg.InitialEquity, equity, maxDrawdown), nil
}

func openNewPosition(symbol string, sig Signal, entryPrice float64, entryBar model.OHLCV, params model.Params, coin model.Coin, equity, marginInUse float64, cfg RiskConfig) (*openPosition, bool) {
	if params.SLPct <= 0 {
		return nil, false
	}
	riskAmount := equity * cfg.RiskPerTradePct
	notional := riskAmount / params.SLPct
	effectiveLeverage := params.Leverage
	if coin.MaxLeverage > 0 && coin.MaxLeverage < effectiveLeverage {
		effectiveLeverage = coin.MaxLeverage
	}
	if effectiveLeverage <= 0 {
		effectiveLeverage = 1
	}
	marginNeeded := notional / effectiveLeverage

	maxMarginPerTrade := equity / float64(maxInt(cfg.MaxConcurrentPositions, 1))
	if marginNeeded > maxMarginPerTrade {
		marginNeeded = maxMarginPerTrade
		notional = marginNeeded * effectiveLeverage
	}

	if marginNeeded > (equity - marginInUse) {
		return nil, false
	}
	if coin.MinNotional > 0 && notional < coin.MinNotional {
		return nil, false
	}

	direction := model.DirectionLong
	if sig == SignalOpenShort {
		direction = model.DirectionShort
	}
	return &openPosition{
		symbol:     symbol,
		direction:  direction,
		entryPrice: entryPrice,
		entryTime:  entryBar,
		notional:   notional,
		margin:     marginNeeded,
	}, true
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// slippageAdjust applies adverse slippage to an execution price. Entries
// are pushed against the trade direction; exits likewise.
func slippageAdjust(price float64, dir model.Direction, isEntry bool, slippagePct float64) float64 {
	sign := 1.0
	if dir == model.DirectionLong {
		if isEntry {
			sign = 1.0 // pay more to get in
		} else {
			sign = -1.0 // receive less to get out
		}
	} else {
		if isEntry {
			sign = -1.0 // short entries fill lower
		} else {
			sign = 1.0 // short exits (buy back) fill higher
		}
	}
	return price * (1 + sign*slippagePct)
}

func summarize(trades []model.Trade, initialEquity, finalEquity, maxDrawdown float64) model.Result {
	wins := 0
	var sumWin, sumLoss, sumReturn, sumSq float64
	for _, t := range trades {
		if t.PnLFraction > 0 {
			wins++
			sumWin += t.PnLFraction
		} else {
			sumLoss += -t.PnLFraction
		}
		sumReturn += t.PnLFraction
		sumSq += t.PnLFraction * t.PnLFraction
	}
	n := float64(len(trades))
	winRate := float64(wins) / n
	avgWin := 0.0
	if wins > 0 {
		avgWin = sumWin / float64(wins)
	}
	avgLoss := 0.0
	if len(trades)-wins > 0 {
		avgLoss = sumLoss / float64(len(trades)-wins)
	}
	expectancy := winRate*avgWin - (1-winRate)*avgLoss

	mean := sumReturn / n
	variance := sumSq/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	stddev := math.Sqrt(variance)

	totalReturn := (finalEquity - initialEquity) / initialEquity

	sharpe := 0.0
	if stddev > 0 {
		tradesPerYear := n // absent explicit calendar span, treat the trade series itself as the annualization base
		sharpe = (mean / stddev) * math.Sqrt(tradesPerYear)
	}
	maxSharpe := math.Sqrt(250)
	if sharpe > maxSharpe {
		sharpe = maxSharpe
	}
	if totalReturn < 0 && sharpe > 0 {
		sharpe = 0
	}

	if maxDrawdown < 0 {
		maxDrawdown = 0
	}
	if maxDrawdown > 1 {
		maxDrawdown = 1
	}

	return model.Result{
		Sharpe:      sharpe,
		MaxDrawdown: maxDrawdown,
		WinRate:     winRate,
		Expectancy:  expectancy,
		TotalReturn: totalReturn,
		TotalTrades: len(trades),
		Trades:      trades,
	}
}
