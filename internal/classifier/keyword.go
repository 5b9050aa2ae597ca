// Package classifier combines keyword scoring with multi-source
// sentiment aggregation (spec.md §4.F).
package classifier

import "strings"

// KeywordWeight pairs a catalyst tag with its contribution weight,
// mapped into [0, 1] once normalized against the catalog's max weight.
type KeywordWeight struct {
	Tag    string
	Weight float64
}

// criticalNegativeKeywords fire the negative-catalyst bypass regardless
// of the aggregated sentiment score (spec.md §4.F). The specification's
// two keyword-set variants for "critical negative" are unioned here
// rather than picked from, since missing a real catalyst is worse for
// this alerting system than one extra LLM-gated review.
var criticalNegativeKeywords = map[string]struct{}{
	"dilution":   {},
	"offering":   {},
	"bankruptcy": {},
	"delisting":  {},
	"going concern": {},
	"reverse split": {},
}

// DefaultCatalog is the built-in catalyst tag catalog. Values are
// relative weights, not probabilities; KeywordScorer normalizes them.
var DefaultCatalog = map[string]float64{
	"offering":       0.7,
	"dilution":       0.8,
	"fda":            0.9,
	"merger":         0.9,
	"acquisition":    0.85,
	"earnings-beat":  0.6,
	"earnings-miss":  0.6,
	"contract-win":   0.7,
	"uplisting":      0.75,
	"bankruptcy":     0.95,
	"delisting":      0.9,
	"going concern":  0.85,
	"reverse split":  0.6,
	"guidance-raise": 0.65,
	"guidance-cut":   0.65,
}

// KeywordScorer matches catalyst tags against item text and produces a
// normalized [0,1] score plus the set of tags hit.
type KeywordScorer struct {
	catalog map[string]float64
	maxW    float64
}

// NewKeywordScorer builds a scorer from catalog, falling back to
// DefaultCatalog when catalog is nil.
func NewKeywordScorer(catalog map[string]float64) *KeywordScorer {
	if catalog == nil {
		catalog = DefaultCatalog
	}
	max := 0.0
	for _, w := range catalog {
		if w > max {
			max = w
		}
	}
	if max == 0 {
		max = 1
	}
	return &KeywordScorer{catalog: catalog, maxW: max}
}

// MergeFile applies the "file overrides catalog for overlapping keys;
// union otherwise" policy from spec.md §4.F, returning a new scorer so
// the base catalog stays immutable for concurrent readers.
func (k *KeywordScorer) MergeFile(overrides map[string]float64) *KeywordScorer {
	merged := make(map[string]float64, len(k.catalog)+len(overrides))
	for tag, w := range k.catalog {
		merged[tag] = w
	}
	for tag, w := range overrides {
		merged[tag] = w
	}
	return NewKeywordScorer(merged)
}

// KeywordResult is the output of scoring one item's text.
type KeywordResult struct {
	Score             float64
	KeywordsHit       map[string]float64
	BypassMinScore    bool
}

// Score scans text for catalog tags (case-insensitive substring match)
// and returns the normalized score, the tags hit, and whether any
// critical-negative keyword fired (spec.md §4.F negative-catalyst
// override, honored downstream by the filter chain, not here).
func (k *KeywordScorer) Score(text string) KeywordResult {
	lower := strings.ToLower(text)
	hit := make(map[string]float64)
	var sum float64
	bypass := false

	for tag, weight := range k.catalog {
		if strings.Contains(lower, tag) {
			hit[tag] = weight
			sum += weight
			if _, critical := criticalNegativeKeywords[tag]; critical {
				bypass = true
			}
		}
	}

	score := sum / k.maxW
	if score > 1 {
		score = 1
	}
	return KeywordResult{Score: score, KeywordsHit: hit, BypassMinScore: bypass}
}
