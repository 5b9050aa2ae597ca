// Package feeds implements the pluggable source adapters of spec.md §4.C:
// press-release wires and filing indexes (polling HTTP+JSON/Atom), a
// realtime news websocket, and an optional price/volume scanner, plus the
// Manager that fetches all of them in parallel each cycle, normalizes
// their output, applies the article-freshness gate, and tracks per-source
// outages.
package feeds

import (
	"context"
	"time"

	"github.com/amenzel91/catalyst-bot/internal/domain"
)

// Diagnostics reports a single fetch's health without failing the cycle.
type Diagnostics struct {
	Err         error
	NotModified bool // upstream returned 304; no items, NextSince unchanged
}

// Ingestor is one pluggable source adapter. Implementations must not
// block past ctx's deadline and must never panic on a single malformed
// item -- skip it and keep going.
type Ingestor struct {
	// Name identifies the source for cadence floors, outage tracking and
	// NewsItem.Source.
	Name string

	// CadenceFloor is the source's published polite-request minimum. A
	// zero value means the source has no floor and the cycle's global
	// cadence applies unmodified.
	CadenceFloor time.Duration

	// Fetch returns items published since `since` (exclusive), the
	// cursor to pass as `since` on the next call, and diagnostics. A
	// non-nil Diagnostics.Err means the fetch failed; items is then
	// always empty and nextSince is unchanged from the input so the next
	// attempt retries the same window.
	Fetch func(ctx context.Context, since time.Time) (items []domain.NewsItem, nextSince time.Time, diag Diagnostics)
}
