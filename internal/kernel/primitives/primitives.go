// Package primitives ships a small precompiled library of logic primitives
// a generator could compose into a CandidateLogic: threshold-cross,
// moving-average-cross, RSI-band, and VWAP-reversion. These exist so the
// funnel has something concrete to drive C1 through C10 in tests; real
// candidate logic is produced and validated upstream of this module.
package primitives

import (
	"fmt"

	"github.com/poorman/alphafunnel/internal/fingerprint"
	"github.com/poorman/alphafunnel/internal/kernel"
	"github.com/poorman/alphafunnel/internal/model"
)

// ThresholdCross opens long when Close crosses above UpperPct over Lookback
// bars, short when it crosses below LowerPct.
type ThresholdCross struct {
	Lookback int
	UpperPct float64
	LowerPct float64
}

func (t ThresholdCross) Fingerprint() string {
	return fingerprint.Of(fmt.Sprintf("threshold-cross:%d:%f:%f", t.Lookback, t.UpperPct, t.LowerPct))
}

func (t ThresholdCross) ProduceSignal(w kernel.BarWindow) kernel.Signal {
	if w.Index < t.Lookback {
		return kernel.SignalNone
	}
	ref := w.Bars[w.Index-t.Lookback].Close
	cur := w.Current().Close
	change := (cur - ref) / ref
	switch {
	case change >= t.UpperPct:
		return kernel.SignalOpenLong
	case change <= -t.LowerPct:
		return kernel.SignalOpenShort
	default:
		return kernel.SignalNone
	}
}

// EMACross opens long on a fast-over-slow EMA crossover, short on the
// reverse crossover.
type EMACross struct {
	FastPeriod int
	SlowPeriod int
}

func (e EMACross) Fingerprint() string {
	return fingerprint.Of(fmt.Sprintf("ema-cross:%d:%d", e.FastPeriod, e.SlowPeriod))
}

func (e EMACross) ProduceSignal(w kernel.BarWindow) kernel.Signal {
	if w.Index < e.SlowPeriod+1 {
		return kernel.SignalNone
	}
	fastNow, fastPrev := ema(w.Bars, w.Index, e.FastPeriod)
	slowNow, slowPrev := ema(w.Bars, w.Index, e.SlowPeriod)
	if fastPrev <= slowPrev && fastNow > slowNow {
		return kernel.SignalOpenLong
	}
	if fastPrev >= slowPrev && fastNow < slowNow {
		return kernel.SignalOpenShort
	}
	return kernel.SignalNone
}

// ema returns the EMA value at index and at index-1, seeded from a simple
// average of the `period` closes ending at each point.
func ema(bars []model.OHLCV, index, period int) (now, prev float64) {
	k := 2.0 / (float64(period) + 1)
	seed := func(end int) float64 {
		start := end - period + 1
		sum := 0.0
		for i := start; i <= end; i++ {
			sum += bars[i].Close
		}
		return sum / float64(period)
	}
	prev = seed(index - 1)
	now = bars[index].Close*k + prev*(1-k)
	return now, prev
}

// RSIBand opens long when RSI drops below Oversold (mean-reversion entry),
// short when RSI rises above Overbought.
type RSIBand struct {
	Period     int
	Oversold   float64
	Overbought float64
}

func (r RSIBand) Fingerprint() string {
	return fingerprint.Of(fmt.Sprintf("rsi-band:%d:%f:%f", r.Period, r.Oversold, r.Overbought))
}

func (r RSIBand) ProduceSignal(w kernel.BarWindow) kernel.Signal {
	if w.Index < r.Period {
		return kernel.SignalNone
	}
	value := rsi(w.Bars, w.Index, r.Period)
	switch {
	case value <= r.Oversold:
		return kernel.SignalOpenLong
	case value >= r.Overbought:
		return kernel.SignalOpenShort
	default:
		return kernel.SignalNone
	}
}

// rsi computes a simple (non-smoothed) RSI over the `period` bars ending at
// index, from closes[index-period..index].
func rsi(bars []model.OHLCV, index, period int) float64 {
	var gains, losses float64
	for i := index - period + 1; i <= index; i++ {
		delta := bars[i].Close - bars[i-1].Close
		if delta > 0 {
			gains += delta
		} else {
			losses += -delta
		}
	}
	if losses == 0 {
		return 100
	}
	rs := (gains / float64(period)) / (losses / float64(period))
	return 100 - (100 / (1 + rs))
}

// VWAPReversion opens long when Close drops more than BandPct below the
// rolling volume-weighted average price over Window bars, short when it
// rises more than BandPct above it: a mean-reversion entry toward VWAP.
type VWAPReversion struct {
	Window  int
	BandPct float64
}

func (v VWAPReversion) Fingerprint() string {
	return fingerprint.Of(fmt.Sprintf("vwap-reversion:%d:%f", v.Window, v.BandPct))
}

func (v VWAPReversion) ProduceSignal(w kernel.BarWindow) kernel.Signal {
	if w.Index < v.Window {
		return kernel.SignalNone
	}
	vwap := rollingVWAP(w.Bars, w.Index, v.Window)
	if vwap == 0 {
		return kernel.SignalNone
	}
	cur := w.Current().Close
	deviation := (cur - vwap) / vwap
	switch {
	case deviation <= -v.BandPct:
		return kernel.SignalOpenLong
	case deviation >= v.BandPct:
		return kernel.SignalOpenShort
	default:
		return kernel.SignalNone
	}
}

// rollingVWAP computes the typical-price volume-weighted average over the
// `window` bars ending at index: VWAP = Sum(TypicalPrice*Volume)/Sum(Volume).
func rollingVWAP(bars []model.OHLCV, index, window int) float64 {
	var pv, vol float64
	for i := index - window + 1; i <= index; i++ {
		typical := (bars[i].High + bars[i].Low + bars[i].Close) / 3
		pv += typical * bars[i].Volume
		vol += bars[i].Volume
	}
	if vol == 0 {
		return 0
	}
	return pv / vol
}
