// Package sentiment supplies the independently-produced sentiment
// sources spec.md §4.F's aggregator table describes: a lexicon-based
// scorer (always available) and an earnings-report heuristic (fires
// only on earnings-style items). Both are wired into
// internal/cycle.Orchestrator as a single SentimentSource; the LLM
// verdict source is folded in downstream by the orchestrator itself,
// not here.
package sentiment

import "strings"

// positiveWords and negativeWords are a small hand-built polarity
// lexicon in the VADER style spec.md §4.F names (word matching with a
// graded polarity per word; no library grounding exists anywhere in the retrieved
// pack for this concern -- see DESIGN.md).
var positiveWords = map[string]float64{
	"beat":        0.6,
	"beats":       0.6,
	"surge":       0.7,
	"surges":      0.7,
	"soar":        0.8,
	"soars":       0.8,
	"record":      0.5,
	"growth":      0.4,
	"profit":      0.5,
	"profitable":  0.5,
	"upgrade":     0.6,
	"upgraded":    0.6,
	"approval":    0.7,
	"approved":    0.7,
	"win":         0.5,
	"wins":        0.5,
	"strong":      0.4,
	"raise":       0.4,
	"raised":      0.4,
	"exceed":      0.6,
	"exceeds":     0.6,
	"positive":    0.3,
	"outperform":  0.6,
}

var negativeWords = map[string]float64{
	"miss":       -0.6,
	"misses":     -0.6,
	"plunge":     -0.8,
	"plunges":    -0.8,
	"slump":      -0.6,
	"slumps":     -0.6,
	"downgrade":  -0.6,
	"downgraded": -0.6,
	"delay":      -0.4,
	"delayed":    -0.4,
	"cut":        -0.4,
	"cuts":       -0.4,
	"loss":       -0.5,
	"losses":     -0.5,
	"weak":       -0.4,
	"warning":    -0.6,
	"investigation": -0.7,
	"lawsuit":    -0.6,
	"recall":     -0.6,
	"negative":   -0.3,
	"reject":     -0.5,
	"rejected":   -0.5,
	"bankruptcy": -0.9,
	"dilution":   -0.7,
	"offering":   -0.5,
	"delisting":  -0.9,
}

// LexiconScorer is the always-available lexicon-based sentiment
// source (spec.md §4.F, typical weight 0.25).
type LexiconScorer struct {
	weight float64
}

// NewLexiconScorer builds a LexiconScorer with the given aggregation
// weight. Pass 0 to use the spec's documented default (0.25).
func NewLexiconScorer(weight float64) *LexiconScorer {
	if weight <= 0 {
		weight = 0.25
	}
	return &LexiconScorer{weight: weight}
}

// Score returns the weighted-average polarity in [-1, 1] over every
// lexicon word found in text, and the confidence the Contributions
// caller should attach. Text with no lexicon hits returns zero
// sentiment at the confidence floor, never omitted: the lexicon
// source is defined to always be present.
func (l *LexiconScorer) Score(text string) (value float64, confidence float64) {
	lower := strings.ToLower(text)
	var sum float64
	var hits int
	for word, polarity := range positiveWords {
		if strings.Contains(lower, word) {
			sum += polarity
			hits++
		}
	}
	for word, polarity := range negativeWords {
		if strings.Contains(lower, word) {
			sum += polarity
			hits++
		}
	}
	if hits == 0 {
		return 0, 0.3
	}
	value = sum / float64(hits)
	if value > 1 {
		value = 1
	}
	if value < -1 {
		value = -1
	}
	confidence = 0.4 + 0.1*float64(hits)
	if confidence > 0.9 {
		confidence = 0.9
	}
	return value, confidence
}
