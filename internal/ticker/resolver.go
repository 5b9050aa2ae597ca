// Package ticker resolves a NewsItem to a primary exchange-listed
// ticker and rejects anything that looks like OTC/foreign/instrument
// noise (spec.md §4.D). Filer-identifier mapping goes through an
// IdentifierMapper (backed by internal/clients/openfigi in production);
// headline resolution is a pure pattern match with no external call.
package ticker

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// cashtagRE matches a $TICKER cashtag of 1-5 uppercase letters.
var cashtagRE = regexp.MustCompile(`\$([A-Z]{1,5})\b`)

// upperTokenRE matches a bare uppercase token that could be a ticker
// (2-5 letters), used as a fallback when no cashtag is present.
var upperTokenRE = regexp.MustCompile(`\b([A-Z]{2,5})\b`)

// Reason names a resolution or validation failure.
type Reason string

const (
	ReasonNoTicker     Reason = "NO_TICKER"
	ReasonMultiTicker  Reason = "MULTI_TICKER"
	ReasonOTC          Reason = "OTC_TICKER"
	ReasonForeignADR   Reason = "FOREIGN_ADR"
	ReasonInstrument   Reason = "INSTRUMENT_LIKE"
	ReasonNotListed    Reason = "NOT_PRIMARY_LISTED"
)

// RejectionError carries a structured reason for why a ticker could not
// be resolved or failed validation.
type RejectionError struct {
	Reason Reason
	Detail string
}

func (e RejectionError) Error() string {
	if e.Detail == "" {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

// IdentifierMapper resolves a filer identifier (CIK, ISIN, ...) to its
// primary ticker. internal/clients/openfigi implements this for ISINs.
type IdentifierMapper interface {
	ResolveIdentifier(ctx context.Context, identifier string) (string, error)
}

// Listings reports whether a ticker is a currently active primary
// listing on a major US exchange (NASDAQ/NYSE/AMEX).
type Listings interface {
	IsPrimaryListed(ticker string) bool
}

// Resolver implements spec.md §4.D's resolve-then-validate pipeline.
type Resolver struct {
	mapper       IdentifierMapper
	listings     Listings
	maxTickers   int
}

// New returns a Resolver. maxTickers bounds how many distinct tickers a
// single item may mention before it's rejected as a sector/commentary
// piece (spec.md §4.D step 3); 0 defaults to 1.
func New(mapper IdentifierMapper, listings Listings, maxTickers int) *Resolver {
	if maxTickers <= 0 {
		maxTickers = 1
	}
	return &Resolver{mapper: mapper, listings: listings, maxTickers: maxTickers}
}

// ResolveFiling maps a filer identifier to its ticker via the mapper.
func (r *Resolver) ResolveFiling(ctx context.Context, filerIdentifier string) (string, error) {
	if filerIdentifier == "" {
		return "", RejectionError{Reason: ReasonNoTicker, Detail: "empty filer identifier"}
	}
	ticker, err := r.mapper.ResolveIdentifier(ctx, filerIdentifier)
	if err != nil {
		return "", fmt.Errorf("ticker: resolve filer identifier %q: %w", filerIdentifier, err)
	}
	if ticker == "" {
		return "", RejectionError{Reason: ReasonNoTicker, Detail: "no mapping for " + filerIdentifier}
	}
	return r.Validate(ticker)
}

// ResolveHeadline extracts and validates a ticker from free text,
// preferring cashtags ($ABC) and falling back to bare uppercase tokens.
// Text containing more than maxTickers distinct candidates is rejected
// as a sector/commentary item rather than attributed to any one ticker.
func (r *Resolver) ResolveHeadline(text string) (string, error) {
	candidates := uniqueOrdered(cashtagRE.FindAllStringSubmatch(text, -1))
	if len(candidates) == 0 {
		candidates = uniqueOrdered(upperTokenRE.FindAllStringSubmatch(text, -1))
	}
	if len(candidates) == 0 {
		return "", RejectionError{Reason: ReasonNoTicker}
	}
	if len(candidates) > r.maxTickers {
		return "", RejectionError{Reason: ReasonMultiTicker, Detail: strings.Join(candidates, ",")}
	}
	return r.Validate(candidates[0])
}

func uniqueOrdered(matches [][]string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		tok := m[1]
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// Validate runs the structural + listing checks from spec.md §4.D and
// returns the ticker unchanged if it passes all of them.
func (r *Resolver) Validate(rawTicker string) (string, error) {
	t := strings.ToUpper(strings.TrimSpace(rawTicker))
	if t == "" {
		return "", RejectionError{Reason: ReasonNoTicker}
	}

	if reason, ok := structuralReject(t); ok {
		return "", RejectionError{Reason: reason, Detail: t}
	}

	if r.listings != nil && !r.listings.IsPrimaryListed(t) {
		return "", RejectionError{Reason: ReasonNotListed, Detail: t}
	}

	return t, nil
}

// otcSuffixes are appended by data providers to flag OTC/pink-sheet tickers.
var otcSuffixes = []string{".OTC", ".PK", ".QB", ".QX", "-OTC", "-PK", "-QB", "-QX"}

// instrumentSuffixes flag warrants, units and rights rather than common stock.
// ".U" and "-U" legitimately denote preferred-share classes on some
// exchanges, so those two are only rejected when immediately preceded by
// "W" (warrant-unit combos like "-WU"), handled via a dedicated check.
var instrumentSuffixes = []string{"-W", "-WT", ".WS", "-R", ".R", ".WT"}

func structuralReject(t string) (Reason, bool) {
	for _, suf := range otcSuffixes {
		if strings.HasSuffix(t, suf) {
			return ReasonOTC, true
		}
	}
	bare := strings.TrimSuffix(strings.TrimSuffix(t, ".OTC"), "-OTC")
	if len(bare) >= 5 && strings.HasSuffix(bare, "F") {
		return ReasonForeignADR, true
	}
	for _, suf := range instrumentSuffixes {
		if strings.HasSuffix(t, suf) {
			return ReasonInstrument, true
		}
	}
	if strings.HasSuffix(t, "-WU") {
		return ReasonInstrument, true
	}
	return "", false
}
