// Package llm implements the router standing between the classifier
// and the filter chain (spec.md §4.G): a pre-filter gate, complexity
// tiering, a semantic cache keyed by normalized-prompt hash + model
// tier, and per-day/per-month cost ceilings. Any provider failure
// degrades to an absent verdict rather than propagating an error to the
// orchestrator.
package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/amenzel91/catalyst-bot/internal/events"
)

// Tier is a complexity routing tier.
type Tier string

const (
	TierCheap     Tier = "cheap"
	TierMedium    Tier = "medium"
	TierExpensive Tier = "expensive"
	TierPremium   Tier = "premium"
)

// Verdict is the LLM's judgement on an item, or the zero value when
// absent (pre-filtered, budget-exceeded, or a provider error occurred).
type Verdict struct {
	Present    bool
	Sentiment  float64 // [-1, 1]
	Label      string
	Confidence float64
	CostUSD    float64
}

// Provider performs one completion call for a given tier.
type Provider interface {
	Complete(ctx context.Context, tier Tier, prompt string) (Verdict, error)
}

// Cache is the semantic cache backing store.
type Cache interface {
	Get(promptHash string, tier Tier) (Verdict, bool, error)
	Set(promptHash string, tier Tier, verdict Verdict) error
}

// BudgetStatus snapshots the running cost counters for whichever window
// rejected (or nearly rejected) a reservation.
type BudgetStatus struct {
	Window   string // "daily" or "monthly"
	SpentUSD float64
	LimitUSD float64
}

// Budget tracks and enforces daily/monthly spend ceilings.
type Budget interface {
	// Reserve reports whether cost can be spent without exceeding either
	// ceiling; on true it has already recorded the spend. On false,
	// status names the window whose ceiling the spend would exceed, for
	// use in hard-stop event payloads; on true, status is the zero value.
	Reserve(cost float64) (ok bool, status BudgetStatus, err error)
}

// Config holds the router's tunable thresholds (spec.md §4.G, §6).
type Config struct {
	MinPrescale  float64
	BatchSize    int
	BatchDelay   time.Duration
	BatchTimeout time.Duration
}

// DefaultConfig mirrors spec.md §4.G's stated defaults.
func DefaultConfig() Config {
	return Config{
		MinPrescale:  0.3,
		BatchSize:    5,
		BatchDelay:   2 * time.Second,
		BatchTimeout: 2 * time.Second,
	}
}

// Router implements route(task, text, complexity_hint) -> Verdict.
type Router struct {
	provider Provider
	cache    Cache
	budget   Budget
	bus      *events.Bus
	cfg      Config
	log      zerolog.Logger

	mu         sync.Mutex
	cacheHits  int64
	cacheTotal int64
}

// New builds a Router. bus is optional; when non-nil, budget warnings
// and hard-stops are emitted as events.
func New(provider Provider, cache Cache, budget Budget, bus *events.Bus, cfg Config, log zerolog.Logger) *Router {
	return &Router{
		provider: provider,
		cache:    cache,
		budget:   budget,
		bus:      bus,
		cfg:      cfg,
		log:      log.With().Str("component", "llm").Logger(),
	}
}

// Route runs the full pre-filter -> cache -> provider -> budget pipeline.
// preScore is the classifier's pre-LLM score used for the prescale gate.
func (r *Router) Route(ctx context.Context, tier Tier, text string, preScore float64) Verdict {
	if preScore < r.cfg.MinPrescale {
		return Verdict{Present: false}
	}

	promptHash := normalizedHash(text)

	r.mu.Lock()
	r.cacheTotal++
	r.mu.Unlock()

	if cached, ok, err := r.cache.Get(promptHash, tier); err == nil && ok {
		r.mu.Lock()
		r.cacheHits++
		r.mu.Unlock()
		return cached
	}

	verdict, err := r.provider.Complete(ctx, tier, text)
	if err != nil {
		r.log.Warn().Err(err).Str("tier", string(tier)).Msg("llm provider failed, verdict absent")
		return Verdict{Present: false}
	}

	ok, status, err := r.budget.Reserve(verdict.CostUSD)
	if err != nil {
		r.log.Warn().Err(err).Msg("llm budget check failed, verdict absent")
		return Verdict{Present: false}
	}
	if !ok {
		if r.bus != nil {
			r.bus.Emit(events.LLMBudgetExceeded, "llm_router", &events.LLMBudgetExceededData{
				SpentUSD: status.SpentUSD,
				LimitUSD: status.LimitUSD,
				Window:   status.Window,
			})
		}
		return Verdict{Present: false}
	}

	verdict.Present = true
	if err := r.cache.Set(promptHash, tier, verdict); err != nil {
		r.log.Warn().Err(err).Msg("failed to write llm semantic cache entry")
	}
	return verdict
}

// CacheHitRate reports the cumulative cache hit ratio, used to confirm
// the ≥70% steady-state target from spec.md §4.G.
func (r *Router) CacheHitRate() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cacheTotal == 0 {
		return 0
	}
	return float64(r.cacheHits) / float64(r.cacheTotal)
}

// SelectTier maps a 0-1 complexity hint onto the three routable tiers,
// targeting the 60/30/8/2 share split from spec.md §4.G (the rare
// premium tier is reserved for callers that request it explicitly).
func SelectTier(complexityHint float64) Tier {
	switch {
	case complexityHint < 0.6:
		return TierCheap
	case complexityHint < 0.9:
		return TierMedium
	default:
		return TierExpensive
	}
}

// normalizedHash lowercases and collapses whitespace before hashing, so
// prompts differing only in incidental formatting share a cache key.
func normalizedHash(text string) string {
	norm := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	sum := sha256.Sum256([]byte(norm))
	return hex.EncodeToString(sum[:])
}

// encodeVerdict/decodeVerdict are package-level helpers for Cache
// implementations that persist verdicts as msgpack blobs (see
// sqlite_cache.go).
func encodeVerdict(v Verdict) ([]byte, error) {
	return msgpack.Marshal(v)
}

func decodeVerdict(b []byte) (Verdict, error) {
	var v Verdict
	err := msgpack.Unmarshal(b, &v)
	return v, err
}
