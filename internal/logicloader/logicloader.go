// Package logicloader decodes a candidate's stored code blob back into a
// kernel.CandidateLogic, satisfying pipeline.LogicLoader. Candidates are
// generated upstream of this module; here the blob is a small JSON
// descriptor naming one of the precompiled primitives and its
// parameters, never source code to compile or eval.
package logicloader

import (
	"encoding/json"
	"fmt"

	"github.com/poorman/alphafunnel/internal/kernel"
	"github.com/poorman/alphafunnel/internal/kernel/primitives"
	"github.com/poorman/alphafunnel/internal/model"
)

type descriptor struct {
	Type string `json:"type"`

	Lookback int     `json:"lookback,omitempty"`
	UpperPct float64 `json:"upper_pct,omitempty"`
	LowerPct float64 `json:"lower_pct,omitempty"`

	FastPeriod int `json:"fast_period,omitempty"`
	SlowPeriod int `json:"slow_period,omitempty"`

	Period     int     `json:"period,omitempty"`
	Oversold   float64 `json:"oversold,omitempty"`
	Overbought float64 `json:"overbought,omitempty"`

	Window  int     `json:"window,omitempty"`
	BandPct float64 `json:"band_pct,omitempty"`
}

// Loader decodes a candidate's CodeBlob into kernel.CandidateLogic.
type Loader struct{}

// NewLoader builds a stateless Loader.
func NewLoader() *Loader { return &Loader{} }

// Load satisfies pipeline.LogicLoader.
func (l *Loader) Load(cand model.Candidate) (kernel.CandidateLogic, error) {
	var d descriptor
	if err := json.Unmarshal([]byte(cand.CodeBlob), &d); err != nil {
		return nil, fmt.Errorf("logicloader: decoding candidate %s: %w", cand.ID, err)
	}

	switch d.Type {
	case "threshold-cross":
		return primitives.ThresholdCross{Lookback: d.Lookback, UpperPct: d.UpperPct, LowerPct: d.LowerPct}, nil
	case "ema-cross":
		return primitives.EMACross{FastPeriod: d.FastPeriod, SlowPeriod: d.SlowPeriod}, nil
	case "rsi-band":
		return primitives.RSIBand{Period: d.Period, Oversold: d.Oversold, Overbought: d.Overbought}, nil
	case "vwap-reversion":
		return primitives.VWAPReversion{Window: d.Window, BandPct: d.BandPct}, nil
	default:
		return nil, fmt.Errorf("logicloader: candidate %s: unknown logic type %q", cand.ID, d.Type)
	}
}
