package classifier

import (
	"gonum.org/v1/gonum/stat"
)

// StrongNegativeThreshold is the default sentiment floor below which
// the negative-catalyst bypass fires (spec.md §4.F).
const StrongNegativeThreshold = -0.30

// confidenceFloor is the minimum confidence when no sources are present.
const confidenceFloor = 0.3

// SourceContribution is one sentiment source's output for an item.
type SourceContribution struct {
	Label      string
	Value      float64 // in [-1, 1]
	Weight     float64 // relative weight, normalized across present sources
	Confidence float64 // in [0, 1]
}

// SentimentResult is the aggregated output over whichever sources were present.
type SentimentResult struct {
	Sentiment          float64
	Confidence         float64
	Breakdown          map[string]float64 // label -> contribution (weight*value), omits absent sources
	BypassMinScore     bool
}

// Aggregate computes the weighted sentiment and confidence from
// whichever sources are present, using gonum/stat.Mean for the
// weighted average (spec.md §4.F: sentiment = Σ wᵢ·xᵢ / Σ wᵢ).
func Aggregate(sources []SourceContribution) SentimentResult {
	breakdown := make(map[string]float64, len(sources))
	if len(sources) == 0 {
		return SentimentResult{Confidence: confidenceFloor, Breakdown: breakdown}
	}

	values := make([]float64, len(sources))
	weights := make([]float64, len(sources))
	confidences := make([]float64, len(sources))
	for i, s := range sources {
		values[i] = s.Value
		weights[i] = s.Weight
		confidences[i] = s.Confidence
		breakdown[s.Label] = s.Weight * s.Value
	}

	sentiment := stat.Mean(values, weights)
	confidence := aggregateConfidence(len(sources), confidences)
	bypass := sentiment <= StrongNegativeThreshold

	return SentimentResult{
		Sentiment:      sentiment,
		Confidence:     confidence,
		Breakdown:      breakdown,
		BypassMinScore: bypass,
	}
}

// aggregateConfidence is monotone in the number of present sources: more
// sources present never lowers confidence, and the average per-source
// confidence is blended in so a single low-confidence source still
// pulls the result down somewhat.
func aggregateConfidence(n int, confidences []float64) float64 {
	if n == 0 {
		return confidenceFloor
	}
	avg := stat.Mean(confidences, nil)
	// More present sources push confidence toward 1; fewer sources
	// keep it closer to the floor plus the sources' own average.
	coverage := float64(n) / 4.0 // 4 possible sources per spec.md §4.F
	if coverage > 1 {
		coverage = 1
	}
	blended := confidenceFloor + (1-confidenceFloor)*coverage*avg
	if blended < confidenceFloor {
		blended = confidenceFloor
	}
	if blended > 1 {
		blended = 1
	}
	return blended
}
