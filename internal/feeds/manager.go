package feeds

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/amenzel91/catalyst-bot/internal/domain"
	"github.com/amenzel91/catalyst-bot/internal/events"
)

// DefaultOutageThreshold is how many consecutive empty/errored cycles a
// source tolerates before Manager emits a feed-outage event.
const DefaultOutageThreshold = 5

// sourceState tracks the Manager's per-source bookkeeping across cycles.
type sourceState struct {
	since            time.Time
	lastFetchAt      time.Time
	consecutiveEmpty int
	outaged          bool
}

// Manager fans a cycle's fetch out across every registered Ingestor in
// parallel (spec.md §4.C: "combined wall-clock is the max, not the sum"),
// applies the per-source cadence floor, normalizes output, drops stale
// articles, and tracks consecutive-empty outages per source.
type Manager struct {
	bus             *events.Bus
	log             zerolog.Logger
	outageThreshold int

	mu        sync.Mutex
	ingestors []Ingestor
	state     map[string]*sourceState
}

// NewManager returns a Manager over ingestors. bus may be nil (events
// simply aren't emitted, useful in tests).
func NewManager(ingestors []Ingestor, bus *events.Bus, log zerolog.Logger) *Manager {
	state := make(map[string]*sourceState, len(ingestors))
	for _, in := range ingestors {
		state[in.Name] = &sourceState{}
	}
	return &Manager{
		ingestors:       ingestors,
		bus:             bus,
		log:             log.With().Str("component", "feeds_manager").Logger(),
		outageThreshold: DefaultOutageThreshold,
		state:           state,
	}
}

// FetchResult is one source's contribution to a cycle.
type FetchResult struct {
	Source      string
	Items       []domain.NewsItem
	Diagnostics Diagnostics
	Skipped     bool // cadence floor not yet elapsed; source was not fetched
}

// FetchCycle runs every ingestor concurrently, honoring each source's
// cadence floor against globalCadence, normalizes and freshness-filters
// the combined output, and updates outage bookkeeping. now is the cycle
// time (injected so callers stay test-friendly).
func (m *Manager) FetchCycle(ctx context.Context, now time.Time, maxArticleAge time.Duration, globalCadence time.Duration) ([]domain.NewsItem, []FetchResult) {
	results := make([]FetchResult, len(m.ingestors))

	var wg sync.WaitGroup
	for i, in := range m.ingestors {
		st := m.stateFor(in.Name)

		interval := globalCadence
		if in.CadenceFloor > interval {
			interval = in.CadenceFloor
		}
		if !st.lastFetchAt.IsZero() && now.Sub(st.lastFetchAt) < interval {
			results[i] = FetchResult{Source: in.Name, Skipped: true}
			continue
		}

		wg.Add(1)
		go func(idx int, in Ingestor, since time.Time) {
			defer wg.Done()
			items, nextSince, diag := in.Fetch(ctx, since)

			m.mu.Lock()
			st := m.state[in.Name]
			st.lastFetchAt = now
			if diag.Err == nil && !nextSince.IsZero() {
				st.since = nextSince
			}
			m.mu.Unlock()

			results[idx] = FetchResult{Source: in.Name, Items: items, Diagnostics: diag}
		}(i, in, st.since)
	}
	wg.Wait()

	var out []domain.NewsItem
	cutoff := now.Add(-maxArticleAge)
	for _, r := range results {
		if r.Skipped {
			continue
		}
		m.recordOutcome(r, now)
		for _, item := range r.Items {
			item.PublishedAt = NormalizeTime(item.PublishedAt)
			item.Title = NormalizeTitle(item.Title)
			if item.PublishedAt.Before(cutoff) {
				continue
			}
			out = append(out, item)
		}
	}
	return out, results
}

func (m *Manager) stateFor(name string) *sourceState {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.state[name]
	if !ok {
		st = &sourceState{}
		m.state[name] = st
	}
	return st
}

// recordOutcome updates consecutive-empty bookkeeping and emits
// feed-outage/feed-recovered events on threshold crossings.
func (m *Manager) recordOutcome(r FetchResult, now time.Time) {
	m.mu.Lock()
	st := m.state[r.Source]
	m.mu.Unlock()

	if len(r.Items) > 0 {
		wasOutaged := st.outaged
		st.consecutiveEmpty = 0
		st.outaged = false
		if wasOutaged {
			m.log.Info().Str("feed", r.Source).Msg("feed recovered")
			if m.bus != nil {
				m.bus.Emit(events.FeedRecovered, "feeds_manager", &events.FeedRecoveredData{Feed: r.Source})
			}
		}
		return
	}

	st.consecutiveEmpty++
	if st.consecutiveEmpty >= m.outageThreshold && !st.outaged {
		st.outaged = true
		lastErr := ""
		if r.Diagnostics.Err != nil {
			lastErr = r.Diagnostics.Err.Error()
		}
		m.log.Warn().Str("feed", r.Source).Int("consecutive_empty", st.consecutiveEmpty).Msg("feed outage")
		if m.bus != nil {
			m.bus.Emit(events.FeedOutage, "feeds_manager", &events.FeedOutageData{
				Feed:             r.Source,
				ConsecutiveEmpty: st.consecutiveEmpty,
				LastError:        lastErr,
			})
		}
	}
}
