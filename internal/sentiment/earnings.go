package sentiment

import "strings"

// earningsTriggers identifies an item as earnings-style; the heuristic
// source only fires (is included in the Contributions slice) when at
// least one of these is present, per spec.md §4.F.
var earningsTriggers = []string{
	"earnings",
	"quarterly results",
	"q1 results", "q2 results", "q3 results", "q4 results",
	"eps of",
	"revenue of",
	"guidance",
}

// earningsBeatWords and earningsMissWords drive the heuristic's
// polarity once an item is confirmed earnings-style.
var earningsBeatWords = []string{"beat", "beats", "exceeded", "exceeds", "above estimates", "raised guidance", "record revenue"}
var earningsMissWords = []string{"miss", "missed", "misses", "below estimates", "cut guidance", "lowered guidance", "shortfall"}

// EarningsHeuristic is the earnings-report sentiment source (spec.md
// §4.F, typical weight 0.35). It fires only on earnings-style items.
type EarningsHeuristic struct {
	weight float64
}

// NewEarningsHeuristic builds an EarningsHeuristic with the given
// aggregation weight. Pass 0 to use the spec's documented default
// (0.35).
func NewEarningsHeuristic(weight float64) *EarningsHeuristic {
	if weight <= 0 {
		weight = 0.35
	}
	return &EarningsHeuristic{weight: weight}
}

// IsEarningsItem reports whether text looks like an earnings release,
// the gate this source uses to decide whether to fire at all.
func IsEarningsItem(text string) bool {
	lower := strings.ToLower(text)
	for _, trigger := range earningsTriggers {
		if strings.Contains(lower, trigger) {
			return true
		}
	}
	return false
}

// Score returns the heuristic's polarity and label for an earnings
// item. Callers must gate on IsEarningsItem first; Score does not
// re-check it.
func (e *EarningsHeuristic) Score(text string) (value float64, label string) {
	lower := strings.ToLower(text)
	var beat, miss int
	for _, w := range earningsBeatWords {
		if strings.Contains(lower, w) {
			beat++
		}
	}
	for _, w := range earningsMissWords {
		if strings.Contains(lower, w) {
			miss++
		}
	}
	switch {
	case beat > 0 && miss == 0:
		return 0.6, "beat"
	case miss > 0 && beat == 0:
		return -0.6, "miss"
	case beat > 0 && miss > 0:
		return 0, "mixed"
	default:
		return 0, "inline"
	}
}
