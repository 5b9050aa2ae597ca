// Package filter implements the fixed, ordered gate sequence that
// decides whether a classified item is dispatched (spec.md §4.H). Gate
// order is significant for both cost (cheap checks first) and fairness
// (structural rejects before score-based ones), so gates are applied in
// a fixed slice rather than discovered dynamically.
package filter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/amenzel91/catalyst-bot/internal/domain"
	"github.com/amenzel91/catalyst-bot/internal/ticker"
)

// Reason names why a gate rejected an item; also the shape persisted to
// outcomes when the chain rejects.
type Reason string

const (
	ReasonSeen              Reason = "SEEN"
	ReasonMultiTicker       Reason = "MULTI_TICKER"
	ReasonPresentationNoise Reason = "PRESENTATION_NOISE"
	ReasonCommentary        Reason = "COMMENTARY"
	ReasonSourceBlocklist   Reason = "SOURCE_BLOCKLIST"
	ReasonNoTicker          Reason = "NO_TICKER"
	ReasonOTCTicker         Reason = "OTC_TICKER"
	ReasonForeignADR        Reason = "FOREIGN_ADR"
	ReasonInstrumentLike    Reason = "INSTRUMENT_LIKE"
	ReasonPriceInvalid      Reason = "PRICE_INVALID_OR_MISSING"
	ReasonPriceCeiling      Reason = "PRICE_CEILING"
	ReasonPriceFloor        Reason = "PRICE_FLOOR"
	ReasonMinScore          Reason = "MIN_SCORE"
	ReasonMinSentAbs        Reason = "MIN_SENT_ABS"
	ReasonCategoryAllow     Reason = "CATEGORY_ALLOW"
	ReasonFilterError       Reason = "FILTER_ERROR"
)

// Decision is the chain's verdict on one item.
type Decision struct {
	Pass   bool
	Reason Reason // empty when Pass is true
}

// Config holds every threshold the chain's gates consult. Pointer fields
// (PriceCeiling/PriceFloor) are nil when unconfigured, meaning that gate
// is skipped entirely rather than failing closed.
type Config struct {
	MaxTickers int

	SourceBlocklist map[string]struct{}

	PriceCeiling *float64
	PriceFloor   *float64

	// SubFloorOverride lets a very high pre-score rescue an item that
	// would otherwise fail PRICE_FLOOR.
	SubFloorOverrideEnabled   bool
	SubFloorOverrideThreshold float64

	MinScore    float64
	MinSentAbs  float64

	// CategoryAllow, when non-empty, requires at least one category in
	// the allow-list; empty means every category passes.
	CategoryAllow map[string]struct{}
}

// presentationNoiseRE matches generic scheduling announcements with no
// material terms ("to present at", "to participate in the X
// conference") that otherwise pass every other gate.
var presentationNoiseRE = regexp.MustCompile(`(?i)\bto (present|participate|speak) at\b|\bfireside chat\b`)

// commentaryRE matches opinion/column headline shapes rather than
// primary reporting.
var commentaryRE = regexp.MustCompile(`(?i)^why (is |did |does )?\S+.* (up|down|rising|falling|soaring|plunging)\b|\b(opinion|analysis):`)

var cashtagRE = regexp.MustCompile(`\$([A-Z]{1,5})\b`)

// Gate is one link in the chain; a panic inside Check is recovered by
// Run and converted to a FILTER_ERROR reject. Check's second return value
// overrides Reason when non-empty, for gates (like price ceiling/floor)
// that can fail for more than one named reason.
type Gate struct {
	Reason Reason
	Check  func(item domain.ClassifiedItem, cfg Config, alreadySeen bool) (pass bool, reasonOverride Reason)
}

// Chain is the fixed spec.md §4.H gate sequence.
var Chain = []Gate{
	{Reason: ReasonSeen, Check: gateSeen},
	{Reason: ReasonMultiTicker, Check: gateMultiTicker},
	{Reason: ReasonPresentationNoise, Check: gatePresentationNoise},
	{Reason: ReasonCommentary, Check: gateCommentary},
	{Reason: ReasonSourceBlocklist, Check: gateSourceBlocklist},
	{Reason: ReasonNoTicker, Check: gateNoTicker},
	{Reason: ReasonOTCTicker, Check: gateOTCOrForeign},
	{Reason: ReasonInstrumentLike, Check: gateInstrumentLike},
	{Reason: ReasonPriceInvalid, Check: gatePriceInvalid},
	{Reason: ReasonPriceCeiling, Check: gatePriceCeilingFloor},
	{Reason: ReasonMinScore, Check: gateMinScore},
	{Reason: ReasonMinSentAbs, Check: gateMinSentAbs},
	{Reason: ReasonCategoryAllow, Check: gateCategoryAllow},
}

// structuralGateCount is how many leading gates in Chain are structural
// rather than score-based -- everything before MIN_SCORE/MIN_SENT_ABS/
// CATEGORY_ALLOW. RunStructural uses this to stop before any gate whose
// outcome an LLM-enriched score or category set could change.
const structuralGateCount = len(Chain) - 3

// Run evaluates item through every gate in order, stopping at the first
// reject. alreadySeen is the dedup verdict from 4.B, computed upstream
// since the filter chain itself holds no dedup state. log receives a
// warning for any gate that panics; the chain still returns a clean
// FILTER_ERROR decision rather than propagating the panic.
func Run(item domain.ClassifiedItem, cfg Config, alreadySeen bool, log zerolog.Logger) Decision {
	return runChain(Chain, item, cfg, alreadySeen, log)
}

// RunStructural evaluates only the chain's structural gates -- SEEN
// through PRICE_CEILING/PRICE_FLOOR -- stopping at the first reject.
// Callers that enrich an item's score via costly work (the LLM stage,
// spec.md §4.G) should call this first and only enrich surviving items,
// per spec.md §8's "no LLM work performed after a structural reject"
// ordering invariant; Run still re-checks these gates afterward since
// enrichment itself never changes their outcome.
func RunStructural(item domain.ClassifiedItem, cfg Config, alreadySeen bool, log zerolog.Logger) Decision {
	return runChain(Chain[:structuralGateCount], item, cfg, alreadySeen, log)
}

func runChain(gates []Gate, item domain.ClassifiedItem, cfg Config, alreadySeen bool, log zerolog.Logger) Decision {
	for _, g := range gates {
		res, err := runGate(g, item, cfg, alreadySeen)
		if err != nil {
			log.Warn().Err(err).Str("gate", string(g.Reason)).Str("ticker", item.Ticker).Msg("filter gate failed")
		}
		if !res.ok {
			return Decision{Pass: false, Reason: res.reason}
		}
	}
	return Decision{Pass: true}
}

type gateResult struct {
	ok     bool
	reason Reason
}

func runGate(g Gate, item domain.ClassifiedItem, cfg Config, alreadySeen bool) (result gateResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = gateResult{ok: false, reason: ReasonFilterError}
			err = fmt.Errorf("filter: gate %s panicked: %v", g.Reason, r)
		}
	}()
	pass, override := g.Check(item, cfg, alreadySeen)
	if !pass {
		reason := g.Reason
		if override != "" {
			reason = override
		}
		return gateResult{ok: false, reason: reason}, nil
	}
	return gateResult{ok: true}, nil
}

func gateSeen(item domain.ClassifiedItem, cfg Config, alreadySeen bool) (bool, Reason) {
	return !alreadySeen, ""
}

func gateMultiTicker(item domain.ClassifiedItem, cfg Config, alreadySeen bool) (bool, Reason) {
	max := cfg.MaxTickers
	if max <= 0 {
		max = 1
	}
	candidates := uniqueCashtags(item.Title)
	return len(candidates) <= max, ""
}

func gatePresentationNoise(item domain.ClassifiedItem, cfg Config, alreadySeen bool) (bool, Reason) {
	return !presentationNoiseRE.MatchString(item.Title), ""
}

func gateCommentary(item domain.ClassifiedItem, cfg Config, alreadySeen bool) (bool, Reason) {
	return !commentaryRE.MatchString(item.Title), ""
}

func gateSourceBlocklist(item domain.ClassifiedItem, cfg Config, alreadySeen bool) (bool, Reason) {
	if len(cfg.SourceBlocklist) == 0 {
		return true, ""
	}
	_, blocked := cfg.SourceBlocklist[strings.ToLower(item.Source)]
	return !blocked, ""
}

func gateNoTicker(item domain.ClassifiedItem, cfg Config, alreadySeen bool) (bool, Reason) {
	return item.Ticker != "", ""
}

// gateOTCOrForeign defensively re-checks the structural ticker rules
// 4.D already applied during resolution, in case the resolver was
// bypassed or the item's Ticker field was mutated downstream.
func gateOTCOrForeign(item domain.ClassifiedItem, cfg Config, alreadySeen bool) (bool, Reason) {
	_, err := (&ticker.Resolver{}).Validate(item.Ticker)
	if err == nil {
		return true, ""
	}
	var rej ticker.RejectionError
	if ok := asRejection(err, &rej); ok {
		switch rej.Reason {
		case ticker.ReasonOTC:
			return false, ReasonOTCTicker
		case ticker.ReasonForeignADR:
			return false, ReasonForeignADR
		}
	}
	return true, ""
}

func gateInstrumentLike(item domain.ClassifiedItem, cfg Config, alreadySeen bool) (bool, Reason) {
	_, err := (&ticker.Resolver{}).Validate(item.Ticker)
	if err == nil {
		return true, ""
	}
	var rej ticker.RejectionError
	if ok := asRejection(err, &rej); ok && rej.Reason == ticker.ReasonInstrument {
		return false, ""
	}
	return true, ""
}

func gatePriceInvalid(item domain.ClassifiedItem, cfg Config, alreadySeen bool) (bool, Reason) {
	if cfg.PriceCeiling == nil && cfg.PriceFloor == nil {
		return true, ""
	}
	return item.Price != nil && !item.Price.Missing, ""
}

func gatePriceCeilingFloor(item domain.ClassifiedItem, cfg Config, alreadySeen bool) (bool, Reason) {
	if item.Price == nil || item.Price.Missing {
		return true, ""
	}
	last := item.Price.Last
	if cfg.PriceCeiling != nil && last > *cfg.PriceCeiling {
		return false, ReasonPriceCeiling
	}
	if cfg.PriceFloor != nil && last < *cfg.PriceFloor {
		if cfg.SubFloorOverrideEnabled && item.Score >= cfg.SubFloorOverrideThreshold {
			return true, ""
		}
		return false, ReasonPriceFloor
	}
	return true, ""
}

func gateMinScore(item domain.ClassifiedItem, cfg Config, alreadySeen bool) (bool, Reason) {
	if item.BypassMinScore {
		return true, ""
	}
	return item.Score >= cfg.MinScore, ""
}

func gateMinSentAbs(item domain.ClassifiedItem, cfg Config, alreadySeen bool) (bool, Reason) {
	abs := item.Sentiment
	if abs < 0 {
		abs = -abs
	}
	return abs >= cfg.MinSentAbs, ""
}

func gateCategoryAllow(item domain.ClassifiedItem, cfg Config, alreadySeen bool) (bool, Reason) {
	if len(cfg.CategoryAllow) == 0 {
		return true, ""
	}
	for cat := range cfg.CategoryAllow {
		if item.HasCategory(cat) {
			return true, ""
		}
	}
	return false, ""
}

func uniqueCashtags(text string) []string {
	matches := cashtagRE.FindAllStringSubmatch(text, -1)
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		out = append(out, m[1])
	}
	return out
}

func asRejection(err error, out *ticker.RejectionError) bool {
	rej, ok := err.(ticker.RejectionError)
	if !ok {
		return false
	}
	*out = rej
	return true
}
