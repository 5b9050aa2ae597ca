// Package domain holds the shared record types that flow through the
// catalyst pipeline: news items, their scoring envelope, dedup keys, price
// snapshots, config snapshots, alert artifacts and outcome records.
package domain

import "time"

// NewsItem is the normalized unit produced by an ingestor and carried
// through the pipeline. Source and SourceID together form its stable
// identity: SourceID is an accession number for filings, or a normalized
// URL+title hash for everything else.
type NewsItem struct {
	Source       string
	SourceID     string
	PublishedAt  time.Time // always UTC
	URL          string
	Title        string
	Summary      string
	Ticker       string // resolved ticker, empty until 4.D runs
	Provenance   map[string]string
	Annotations  map[string]interface{} // enrichment outputs: sentiment breakdown, keywords, LLM verdict, price
}

// NewAnnotations returns an initialized annotation map so callers never
// need to nil-check before writing into it.
func NewAnnotations() map[string]interface{} {
	return make(map[string]interface{})
}

// DedupKey carries the two signatures under which a NewsItem may be
// recognized as already-seen: an exact (source, source_id) key and a
// fuzzy content key derived from URL+title (or accession number, for
// filings, so that viewer/preview/archive URLs collapse to one key).
// TitleNorm is the normalized title carried alongside SigKey so a
// cross-source match can also be recognized by title similarity when
// the exact SigKey hash misses (0.8 Jaccard threshold).
type DedupKey struct {
	IDKey     string
	SigKey    string
	TitleNorm string
}

// Decision is the outcome of a dedup check_and_mark call.
type Decision int

const (
	Fresh Decision = iota
	SeenByID
	SeenBySig
)

func (d Decision) String() string {
	switch d {
	case Fresh:
		return "fresh"
	case SeenByID:
		return "seen_by_id"
	case SeenBySig:
		return "seen_by_sig"
	default:
		return "unknown"
	}
}

// ClassifiedItem is a NewsItem together with its scoring envelope. Score
// and Sentiment are guaranteed never to be NaN; a source with no
// contribution is simply absent from SentimentBreakdown rather than
// encoded as a zero.
type ClassifiedItem struct {
	NewsItem

	Score              float64
	Sentiment          float64
	Confidence         float64
	KeywordsHit        map[string]float64 // tag -> weight
	SentimentBreakdown map[string]float64 // source label -> contribution
	Categories         map[string]struct{}

	// BypassMinScore is set by the classifier's negative-catalyst override
	// and must be honored by the filter chain, not acted on here.
	BypassMinScore bool

	Price *PriceSnapshot
}

// HasCategory reports whether the item was tagged with the given category.
func (c *ClassifiedItem) HasCategory(name string) bool {
	_, ok := c.Categories[name]
	return ok
}

// PriceSnapshot is a point-in-time quote. Last and ChangePct may be
// explicitly missing (Missing == true) but are never NaN when present.
type PriceSnapshot struct {
	Ticker     string
	Last       float64
	PrevClose  float64
	ChangePct  float64
	AsOf       time.Time
	Provider   string
	Missing    bool
}

// OutcomeRecord is written whenever an alert is dispatched or rejected; it
// feeds the nightly report and the recommendation engine.
type OutcomeRecord struct {
	Timestamp  time.Time
	Ticker     string
	Source     string
	Decision   string // "dispatched" or a rejection reason
	Reasons    []string
	Score      float64
	Sentiment  float64
	Categories []string // keyword categories the item was tagged with, for the nightly report's per-category rollup
	Price      *PriceSnapshot
}
