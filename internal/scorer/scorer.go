// Package scorer normalizes evaluator output into a single scalar in
// [0,100]: the Scorer (C5). A pure function, deliberately ignorant of the
// pool's minimum-score floor — that short-circuit is the caller's call.
package scorer

import (
	"math"

	"github.com/poorman/alphafunnel/internal/evaluator"
)

// Score computes the weighted composite score from blended evaluator
// metrics.
func Score(res evaluator.Result) float64 {
	expectancyNorm := clamp(res.Expectancy/0.10, 0, 1)
	sharpeNorm := clamp(res.Sharpe/3.0, 0, 1)
	drawdownNorm := math.Max(0, 1-res.MaxDrawdown/0.30)
	recencyNorm := clamp(0.5-res.Degradation, 0, 1)

	return (0.40*expectancyNorm + 0.25*sharpeNorm + 0.10*res.WinRate + 0.15*drawdownNorm + 0.10*recencyNorm) * 100
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
