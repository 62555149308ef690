// Package scoring combines extracted signals into weighted composite scores.
//
// Every family scorer follows the same order of operations: compute raw
// sub-scores, apply boosts, clamp each to [0,1], multiply by its weight, sum,
// and clamp the composite to [0,1]. The breakdown reports the clamped
// sub-scores so callers can explain a score.
package scoring

import (
	"math"

	"github.com/onnwee/contentrank/internal/ranking"
	"github.com/onnwee/contentrank/internal/signals"
)

// Component is one raw sub-score of a composite.
type Component struct {
	Name  string
	Raw   float64
	Boost float64 // multiplier applied before clamping; 0 means none
}

// Result is a composite score with its explanation.
type Result struct {
	Score         float64            `json:"score"`
	Breakdown     map[string]float64 `json:"breakdown"`
	Contributions map[string]float64 `json:"contributions,omitempty"`
}

// Compute combines components with weights. Components without a weight
// contribute nothing but still appear in the breakdown.
func Compute(components []Component, weights map[string]float64) Result {
	res := Result{
		Breakdown:     make(map[string]float64, len(components)),
		Contributions: make(map[string]float64, len(components)),
	}
	var sum float64
	for _, c := range components {
		v := finite(c.Raw)
		if c.Boost > 0 {
			v *= c.Boost
		}
		v = Clamp(v)
		res.Breakdown[c.Name] = v

		contribution := v * weights[c.Name]
		res.Contributions[c.Name] = contribution
		sum += contribution
	}
	res.Score = Clamp(sum)
	return res
}

// Clamp limits v to [0,1]. NaN becomes 0.
func Clamp(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// Blend mixes a heuristic score with an enrichment score. A nil enrichment
// score returns the heuristic unchanged.
func Blend(heuristic float64, enriched *float64, heuristicRatio float64) float64 {
	if enriched == nil || math.IsNaN(*enriched) || math.IsInf(*enriched, 0) {
		return Clamp(heuristic)
	}
	r := Clamp(heuristicRatio)
	return Clamp(r*heuristic + (1-r)*Clamp(*enriched))
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Engine scores candidates of every family with one configuration snapshot.
// It holds no mutable state and is safe for concurrent use.
type Engine struct {
	weights   *ranking.Weights
	extractor *signals.Extractor
}

// NewEngine creates an engine from a published configuration snapshot.
func NewEngine(snap *ranking.Snapshot) *Engine {
	return &Engine{weights: snap.Weights, extractor: signals.FromSnapshot(snap)}
}

// Weights returns the weights the engine scores with.
func (e *Engine) Weights() *ranking.Weights { return e.weights }

// Extractor returns the signal extractor the engine uses.
func (e *Engine) Extractor() *signals.Extractor { return e.extractor }
