// Package paramspace enumerates candidate parameter tuples from candidate
// metadata: the Parameter Space Builder (C2).
package paramspace

import "github.com/poorman/alphafunnel/internal/model"

var leverageGrid = []float64{1, 2, 3, 5, 10, 20, 40}

// timeframeGrid is the curated per-timeframe grid for absolute (non-pattern)
// candidates.
type timeframeGrid struct {
	slPct    []float64
	tpPct    []float64
	exitBars []int
}

var absoluteGrids = map[model.Timeframe]timeframeGrid{
	model.TF5m:  {slPct: pct(1, 2, 3, 4, 5), tpPct: pct(0, 2, 4, 6, 8, 10), exitBars: []int{0, 25, 50, 75, 100}},
	model.TF15m: {slPct: pct(1, 2, 3, 4, 5), tpPct: pct(0, 2, 4, 6, 8, 10), exitBars: []int{0, 25, 50, 75, 100}},
	model.TF30m: {slPct: pct(1, 2, 3, 4, 5), tpPct: pct(0, 2, 4, 6, 8, 10), exitBars: []int{0, 25, 50, 75, 100}},
	model.TF1h:  {slPct: pct(1, 2, 3, 4, 5), tpPct: pct(0, 2, 4, 6, 8, 10), exitBars: []int{0, 25, 50, 75, 100}},
	model.TF2h:  {slPct: pct(1, 2, 3, 4, 5), tpPct: pct(0, 2, 4, 6, 8, 10), exitBars: []int{0, 25, 50, 75, 100}},
}

func pct(vals ...float64) []float64 {
	out := make([]float64, len(vals))
	for i, v := range vals {
		out[i] = v / 100
	}
	return out
}

func pctOf(base float64, percents ...float64) []float64 {
	out := make([]float64, len(percents))
	for i, p := range percents {
		out[i] = base * p / 100
	}
	return out
}

func barsOf(base int, percents ...float64) []int {
	out := make([]int, len(percents))
	for i, p := range percents {
		out[i] = int(float64(base) * p / 100)
	}
	return out
}

// Build enumerates the finite tuple set for one candidate, per its
// source_class and, when pattern-derived, its execution type.
func Build(c model.Candidate) ([]model.Params, error) {
	var slOpts, tpOpts []float64
	var exitOpts []int

	switch {
	case c.SourceClass != model.SourcePatternDerived:
		grid := absoluteGrids[c.Timeframe]
		if grid.slPct == nil {
			grid = absoluteGrids[model.TF1h]
		}
		slOpts, tpOpts, exitOpts = grid.slPct, grid.tpPct, grid.exitBars

	case c.PatternMeta != nil && c.PatternMeta.ExecutionType == model.ExecutionTouchBased:
		m := c.PatternMeta
		tpOpts = pctOf(m.BaseTPMagnitude, 50, 75, 100, 125, 150)
		slOpts = pctOf(m.BaseTPMagnitude, 100, 150, 200, 250)
		exitOpts = barsOf(m.BaseHoldingBars, 0, 100, 150, 200)

	case c.PatternMeta != nil && c.PatternMeta.ExecutionType == model.ExecutionCloseBased:
		m := c.PatternMeta
		tpOpts = []float64{0}
		fallbackMultiples := []float64{4, 6, 8, 10}
		slOpts = make([]float64, len(fallbackMultiples))
		for i, mult := range fallbackMultiples {
			slOpts[i] = mult * m.BaseTPMagnitude // fallback: 4-10x magnitude when no ATR series is supplied
		}
		exitOpts = barsOf(m.BaseHoldingBars, 50, 75, 100, 125, 150)

	case c.PatternMeta != nil:
		m := c.PatternMeta
		tpOpts = pctOf(m.BaseTPMagnitude, 0, 50, 75, 100, 125, 150)
		slOpts = pctOf(m.BaseTPMagnitude, 50, 75, 100, 150, 200)
		exitOpts = barsOf(m.BaseHoldingBars, 0, 50, 100, 150, 200)

	default:
		grid := absoluteGrids[model.TF1h]
		slOpts, tpOpts, exitOpts = grid.slPct, grid.tpPct, grid.exitBars
	}

	var tuples []model.Params
	for _, sl := range slOpts {
		for _, tp := range tpOpts {
			for _, exit := range exitOpts {
				for _, lev := range leverageGrid {
					p := model.Params{SLPct: sl, TPPct: tp, ExitBars: exit, Leverage: lev}
					if p.HasNoExit() {
						continue
					}
					tuples = append(tuples, p)
				}
			}
		}
	}
	return tuples, nil
}
