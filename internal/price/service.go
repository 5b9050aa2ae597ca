// Package price implements the batched quote service (spec.md §4.E): a
// provider chain with fallback, a shared per-ticker TTL cache, and
// NaN/Inf-to-explicit-missing conversion so nothing downstream ever has
// to special-case a non-finite float.
package price

import (
	"context"
	"database/sql"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/amenzel91/catalyst-bot/internal/domain"
)

// Provider fetches quotes for one or more tickers. Providers are tried
// in the order given to New; a provider error does not abort the chain.
type Provider interface {
	Name() string
	Batch(ctx context.Context, tickers []string) (map[string]domain.PriceSnapshot, error)
}

// Service is the batch/single quote facade used by the classifier and
// filter chain.
type Service struct {
	db        *sql.DB
	providers []Provider
	ttl       time.Duration
	log       zerolog.Logger
}

// New returns a Service. providers are tried in order (primary batch
// provider first, then per-ticker fallbacks); ttl is the cache lifetime
// (default 60s when zero, per spec.md §4.E).
func New(db *sql.DB, providers []Provider, ttl time.Duration, log zerolog.Logger) *Service {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Service{db: db, providers: providers, ttl: ttl, log: log.With().Str("component", "price").Logger()}
}

// Single fetches one ticker via Batch for cache-path consistency.
func (s *Service) Single(ctx context.Context, ticker string) (domain.PriceSnapshot, error) {
	results, err := s.Batch(ctx, []string{ticker})
	if err != nil {
		return domain.PriceSnapshot{}, err
	}
	snap, ok := results[ticker]
	if !ok {
		return domain.PriceSnapshot{Ticker: ticker, Missing: true}, nil
	}
	return snap, nil
}

// Batch resolves a snapshot for every requested ticker: cache hits are
// served directly, misses are fetched through the provider chain (first
// provider that returns a value for a ticker wins), and every result is
// sanitized so Last/PrevClose/ChangePct are never NaN or Inf.
func (s *Service) Batch(ctx context.Context, tickers []string) (map[string]domain.PriceSnapshot, error) {
	out := make(map[string]domain.PriceSnapshot, len(tickers))
	missing := make([]string, 0, len(tickers))

	for _, t := range tickers {
		if snap, ok := s.readCache(t); ok {
			out[t] = snap
		} else {
			missing = append(missing, t)
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	for _, p := range s.providers {
		if len(missing) == 0 {
			break
		}
		fetched, err := p.Batch(ctx, missing)
		if err != nil {
			s.log.Warn().Err(err).Str("provider", p.Name()).Msg("provider batch failed, continuing chain")
			continue
		}
		remaining := missing[:0:0]
		for _, t := range missing {
			snap, ok := fetched[t]
			if !ok {
				remaining = append(remaining, t)
				continue
			}
			snap = sanitize(t, snap, p.Name())
			out[t] = snap
			s.writeCache(snap)
		}
		missing = remaining
	}

	for _, t := range missing {
		out[t] = domain.PriceSnapshot{Ticker: t, Missing: true, AsOf: time.Now().UTC()}
	}

	return out, nil
}

// sanitize converts any NaN/Inf field to an explicit-missing snapshot,
// since a non-finite quote is strictly worse than "we don't know".
func sanitize(ticker string, snap domain.PriceSnapshot, provider string) domain.PriceSnapshot {
	snap.Ticker = ticker
	snap.Provider = provider
	if snap.AsOf.IsZero() {
		snap.AsOf = time.Now().UTC()
	}
	if !isFinite(snap.Last) || !isFinite(snap.PrevClose) || !isFinite(snap.ChangePct) {
		snap.Missing = true
		snap.Last = 0
		snap.PrevClose = 0
		snap.ChangePct = 0
	}
	return snap
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func (s *Service) readCache(ticker string) (domain.PriceSnapshot, bool) {
	var snap domain.PriceSnapshot
	var asOf, expiresAt int64
	var missing int
	err := s.db.QueryRow(`
		SELECT last, prev_close, change_pct, missing, provider, as_of, expires_at
		FROM price_cache WHERE ticker = ?
	`, ticker).Scan(&snap.Last, &snap.PrevClose, &snap.ChangePct, &missing, &snap.Provider, &asOf, &expiresAt)
	if err != nil {
		return domain.PriceSnapshot{}, false
	}
	if time.Now().Unix() > expiresAt {
		return domain.PriceSnapshot{}, false
	}
	snap.Ticker = ticker
	snap.Missing = missing != 0
	snap.AsOf = time.Unix(asOf, 0).UTC()
	return snap, true
}

func (s *Service) writeCache(snap domain.PriceSnapshot) {
	missing := 0
	if snap.Missing {
		missing = 1
	}
	now := time.Now()
	_, err := s.db.Exec(`
		INSERT INTO price_cache (ticker, last, prev_close, change_pct, missing, provider, as_of, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticker) DO UPDATE SET
			last = excluded.last, prev_close = excluded.prev_close, change_pct = excluded.change_pct,
			missing = excluded.missing, provider = excluded.provider, as_of = excluded.as_of, expires_at = excluded.expires_at
	`, snap.Ticker, snap.Last, snap.PrevClose, snap.ChangePct, missing, snap.Provider, snap.AsOf.Unix(), now.Add(s.ttl).Unix())
	if err != nil {
		s.log.Warn().Err(err).Str("ticker", snap.Ticker).Msg("failed to write price cache entry")
	}
}
