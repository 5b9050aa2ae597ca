// Package cycle implements the single-pass driver spec.md §4.J
// describes: resolve market phase, fetch every feed in parallel, batch
// resolve tickers and prices, classify, optionally enrich via the LLM
// router, run the filter chain, dispatch survivors, and record outcomes
// and heartbeat stats, then sleep to the next cadence boundary.
package cycle

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/amenzel91/catalyst-bot/internal/alert"
	"github.com/amenzel91/catalyst-bot/internal/classifier"
	"github.com/amenzel91/catalyst-bot/internal/dedup"
	"github.com/amenzel91/catalyst-bot/internal/domain"
	"github.com/amenzel91/catalyst-bot/internal/events"
	"github.com/amenzel91/catalyst-bot/internal/feeds"
	"github.com/amenzel91/catalyst-bot/internal/filter"
	"github.com/amenzel91/catalyst-bot/internal/llm"
	"github.com/amenzel91/catalyst-bot/internal/marketphase"
	"github.com/amenzel91/catalyst-bot/internal/ticker"
	"github.com/amenzel91/catalyst-bot/internal/utils"
)

// FeedSource is the subset of *feeds.Manager the orchestrator needs.
type FeedSource interface {
	FetchCycle(ctx context.Context, now time.Time, maxArticleAge, globalCadence time.Duration) ([]domain.NewsItem, []feeds.FetchResult)
}

// TickerResolver is the subset of *ticker.Resolver the orchestrator needs.
type TickerResolver interface {
	ResolveHeadline(text string) (string, error)
	ResolveFiling(ctx context.Context, filerIdentifier string) (string, error)
}

// PriceProvider is the subset of *price.Service the orchestrator needs.
type PriceProvider interface {
	Batch(ctx context.Context, tickers []string) (map[string]domain.PriceSnapshot, error)
}

// Classifier is the subset of *classifier.Classifier the orchestrator needs.
type Classifier interface {
	Classify(item domain.NewsItem, text, sector string, sources []classifier.SourceContribution) domain.ClassifiedItem
}

// SentimentSource supplies the independently-produced sentiment
// contributions spec.md §4.F's aggregator table describes (lexicon, ML
// model, earnings heuristic). The orchestrator appends the LLM verdict
// (4.G) itself once it has one, so implementations should not include it.
type SentimentSource interface {
	Contributions(item domain.NewsItem, text string) []classifier.SourceContribution
}

// LLMRouter is the subset of *llm.Router the orchestrator needs.
type LLMRouter interface {
	Route(ctx context.Context, tier llm.Tier, text string, preScore float64) llm.Verdict
}

// DedupPeeker is the subset of *dedup.Store the orchestrator needs for
// the filter chain's SEEN gate; marking happens in the dispatcher after
// a successful delivery, not here.
type DedupPeeker interface {
	Peek(ctx context.Context, key domain.DedupKey) (domain.Decision, error)
}

// AlertBuilder is the subset of *alert.Builder the orchestrator needs.
type AlertBuilder interface {
	Build(item domain.ClassifiedItem) (alert.Artifact, error)
}

// Dispatcher is the subset of *alert.Dispatcher the orchestrator needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, item domain.ClassifiedItem, key domain.DedupKey, artifact alert.Artifact) alert.Result
	ResetCycle()
}

// OutcomeWriter is the subset of *outcomes.Store the orchestrator needs.
type OutcomeWriter interface {
	Write(ctx context.Context, rec domain.OutcomeRecord) error
}

// HeartbeatRecorder is the subset of *heartbeat.Accumulator the
// orchestrator needs.
type HeartbeatRecorder interface {
	RecordCycle(scanned, alerted, errored int, byReason map[string]int)
}

// ConfigProvider returns the live configuration snapshot a cycle should
// use; readers hold onto whatever they got for the cycle's duration
// (spec.md §5: in-flight cycles may continue on the snapshot they
// captured).
type ConfigProvider interface {
	Get() *domain.ConfigSnapshot
}

// Stats summarizes one RunOnce pass for the caller/logs.
type Stats struct {
	Scanned  int
	Alerted  int
	Errored  int
	ByReason map[string]int
}

// Orchestrator wires every pipeline stage together into the single-pass
// driver. All dependencies are interfaces so tests can substitute fakes
// for every external call.
type Orchestrator struct {
	feeds      FeedSource
	resolver   TickerResolver
	prices     PriceProvider
	classify   Classifier
	sentiment  SentimentSource
	llmRouter  LLMRouter // nil disables LLM enrichment entirely
	dedup      DedupPeeker
	builder    AlertBuilder
	dispatcher Dispatcher
	outcomes   OutcomeWriter
	heartbeat  HeartbeatRecorder
	config     ConfigProvider
	phases     *marketphase.Detector
	bus        *events.Bus
	log        zerolog.Logger
}

// Deps bundles every Orchestrator dependency for New.
type Deps struct {
	Feeds      FeedSource
	Resolver   TickerResolver
	Prices     PriceProvider
	Classifier Classifier
	Sentiment  SentimentSource
	LLMRouter  LLMRouter
	Dedup      DedupPeeker
	Builder    AlertBuilder
	Dispatcher Dispatcher
	Outcomes   OutcomeWriter
	Heartbeat  HeartbeatRecorder
	Config     ConfigProvider
	Phases     *marketphase.Detector
	Bus        *events.Bus
}

// New builds an Orchestrator from deps.
func New(deps Deps, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		feeds:      deps.Feeds,
		resolver:   deps.Resolver,
		prices:     deps.Prices,
		classify:   deps.Classifier,
		sentiment:  deps.Sentiment,
		llmRouter:  deps.LLMRouter,
		dedup:      deps.Dedup,
		builder:    deps.Builder,
		dispatcher: deps.Dispatcher,
		outcomes:   deps.Outcomes,
		heartbeat:  deps.Heartbeat,
		config:     deps.Config,
		phases:     deps.Phases,
		bus:        deps.Bus,
		log:        log.With().Str("component", "cycle").Logger(),
	}
}

// Run drives cycles until ctx is cancelled, sleeping to the next cadence
// boundary between passes.
func (o *Orchestrator) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		start := time.Now()
		_, cadence, err := o.RunOnce(ctx)
		if err != nil {
			o.log.Error().Err(err).Msg("cycle failed")
		}
		sleep := cadence - time.Since(start)
		if sleep < 0 {
			sleep = 0
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(sleep):
		}
	}
}

// RunOnce executes a single pass and returns its stats and the cadence
// that governed it (for Run's sleep and for tests).
func (o *Orchestrator) RunOnce(ctx context.Context) (Stats, time.Duration, error) {
	defer utils.OperationTimer("cycle_run_once", o.log)()

	now := time.Now().UTC()
	snap := o.config.Get()

	phase, changed, previous := o.phases.Transition(now)
	cadence := marketphase.Cadence(phase)
	if changed && o.bus != nil {
		o.bus.Emit(events.PhaseChanged, "cycle", &events.PhaseChangedData{
			Previous: string(previous),
			Current:  string(phase),
			Cadence:  cadence.String(),
		})
	}

	cycleCtx, cancel := context.WithTimeout(ctx, cadence)
	defer cancel()

	maxArticleAge := time.Duration(snap.Int("MAX_ARTICLE_AGE_MINUTES", 120)) * time.Minute
	items, _ := o.feeds.FetchCycle(cycleCtx, now, maxArticleAge, cadence)

	o.dispatcher.ResetCycle()

	stats := Stats{ByReason: map[string]int{}}

	resolved := make([]domain.NewsItem, 0, len(items))
	tickers := make([]string, 0, len(items))
	for _, item := range items {
		t, err := o.resolveTicker(cycleCtx, item)
		if err != nil {
			reason := rejectionReason(err)
			stats.ByReason[reason]++
			o.writeOutcome(cycleCtx, item, reason, 0, 0, nil)
			continue
		}
		item.Ticker = t
		resolved = append(resolved, item)
		tickers = append(tickers, t)
	}

	prices, err := o.prices.Batch(cycleCtx, tickers)
	if err != nil {
		o.log.Warn().Err(err).Msg("price batch failed, continuing with missing prices")
		prices = map[string]domain.PriceSnapshot{}
	}

	minPrescale := snap.Float("LLM_MIN_PRESCALE", 0.15)
	cfg := filterConfigFromSnapshot(snap)

	for _, item := range resolved {
		stats.Scanned++

		text := item.Title + " " + item.Summary
		var sources []classifier.SourceContribution
		if o.sentiment != nil {
			sources = o.sentiment.Contributions(item, text)
		}
		classified := o.classify.Classify(item, text, "", sources)

		if quote, ok := prices[item.Ticker]; ok {
			p := quote
			classified.Price = &p
		}

		key := dedup.Keys(classified.NewsItem)
		seen, err := o.dedup.Peek(cycleCtx, key)
		if err != nil {
			o.log.Warn().Err(err).Str("ticker", item.Ticker).Msg("dedup peek failed, treating as fresh")
			seen = domain.Fresh
		}
		alreadySeen := seen != domain.Fresh

		// Structural gates run before any LLM work (spec.md §8: no LLM
		// work performed after a structural reject) -- a SEEN duplicate
		// or a MULTI_TICKER/PRESENTATION_NOISE/COMMENTARY/SOURCE_BLOCKLIST
		// reject must never incur a billable LLM call.
		if decision := filter.RunStructural(classified, cfg, alreadySeen, o.log); !decision.Pass {
			reason := string(decision.Reason)
			stats.ByReason[reason]++
			o.writeOutcome(cycleCtx, classified.NewsItem, reason, classified.Score, classified.Sentiment, classified.Price, categoryNames(classified.Categories)...)
			continue
		}

		classified = o.enrichWithLLM(cycleCtx, classified, text, sources, minPrescale)
		categories := categoryNames(classified.Categories)

		decision := filter.Run(classified, cfg, alreadySeen, o.log)
		if !decision.Pass {
			reason := string(decision.Reason)
			stats.ByReason[reason]++
			o.writeOutcome(cycleCtx, classified.NewsItem, reason, classified.Score, classified.Sentiment, classified.Price, categories...)
			continue
		}

		artifact, err := o.builder.Build(classified)
		if err != nil {
			o.log.Warn().Err(err).Str("ticker", item.Ticker).Msg("artifact build failed")
			stats.Errored++
			stats.ByReason["BUILD_ERROR"]++
			o.writeOutcome(cycleCtx, classified.NewsItem, "BUILD_ERROR", classified.Score, classified.Sentiment, classified.Price, categories...)
			continue
		}

		result := o.dispatcher.Dispatch(cycleCtx, classified, key, artifact)
		switch {
		case result.Delivered:
			stats.Alerted++
			o.writeOutcome(cycleCtx, classified.NewsItem, "dispatched", classified.Score, classified.Sentiment, classified.Price, categories...)
		case result.Deferred:
			stats.ByReason["DEFERRED"]++
		default:
			stats.Errored++
			stats.ByReason["DISPATCH_ERROR"]++
			o.writeOutcome(cycleCtx, classified.NewsItem, "DISPATCH_ERROR", classified.Score, classified.Sentiment, classified.Price, categories...)
		}
	}

	if o.heartbeat != nil {
		o.heartbeat.RecordCycle(stats.Scanned, stats.Alerted, stats.Errored, stats.ByReason)
	}
	return stats, cadence, nil
}

// enrichWithLLM routes a classified item through the LLM and
// reclassifies with the verdict folded in as an additional weighted
// source (spec.md §4.F/§4.G), once its pre-LLM score clears the
// pre-filter floor. Callers must run filter.RunStructural first (spec.md
// §8: no LLM work performed after a structural reject) -- this only
// decides whether to skip enrichment for sub-floor or LLM-disabled
// items, not any of the other gates.
func (o *Orchestrator) enrichWithLLM(ctx context.Context, classified domain.ClassifiedItem, text string, sources []classifier.SourceContribution, minPrescale float64) domain.ClassifiedItem {
	if o.llmRouter == nil || classified.Score < minPrescale {
		return classified
	}

	tier := llm.SelectTier(classified.Score)
	verdict := o.llmRouter.Route(ctx, tier, text, classified.Score)
	if !verdict.Present {
		return classified
	}

	enriched := append(sources, classifier.SourceContribution{
		Label:      "llm",
		Value:      verdict.Sentiment,
		Weight:     0.15,
		Confidence: verdict.Confidence,
	})
	price := classified.Price
	reclassified := o.classify.Classify(classified.NewsItem, text, "", enriched)
	reclassified.Price = price
	if reclassified.Annotations == nil {
		reclassified.Annotations = domain.NewAnnotations()
	}
	reclassified.Annotations["llm_label"] = verdict.Label
	return reclassified
}

func (o *Orchestrator) resolveTicker(ctx context.Context, item domain.NewsItem) (string, error) {
	if item.Ticker != "" {
		return item.Ticker, nil
	}
	if acc := item.Provenance["accession_number"]; acc != "" {
		return o.resolver.ResolveFiling(ctx, acc)
	}
	return o.resolver.ResolveHeadline(item.Title + " " + item.Summary)
}

func (o *Orchestrator) writeOutcome(ctx context.Context, item domain.NewsItem, decision string, score, sentiment float64, price *domain.PriceSnapshot, categories ...string) {
	if o.outcomes == nil {
		return
	}
	if err := o.outcomes.Write(ctx, domain.OutcomeRecord{
		Timestamp:  time.Now().UTC(),
		Ticker:     item.Ticker,
		Source:     item.Source,
		Decision:   decision,
		Reasons:    []string{decision},
		Score:      score,
		Sentiment:  sentiment,
		Categories: categories,
		Price:      price,
	}); err != nil {
		o.log.Warn().Err(err).Msg("outcome write failed")
	}
}

func categoryNames(categories map[string]struct{}) []string {
	if len(categories) == 0 {
		return nil
	}
	names := make([]string, 0, len(categories))
	for name := range categories {
		names = append(names, name)
	}
	return names
}

func rejectionReason(err error) string {
	var rej ticker.RejectionError
	if asRejectionError(err, &rej) {
		return string(rej.Reason)
	}
	return "RESOLVE_ERROR"
}

func asRejectionError(err error, target *ticker.RejectionError) bool {
	if rej, ok := err.(ticker.RejectionError); ok {
		*target = rej
		return true
	}
	return false
}

func filterConfigFromSnapshot(snap *domain.ConfigSnapshot) filter.Config {
	cfg := filter.Config{
		MaxTickers:                snap.Int("MAX_TICKERS_PER_ITEM", 2),
		MinScore:                  snap.Float("MIN_SCORE", 0.25),
		MinSentAbs:                snap.Float("MIN_SENT_ABS", 0.0),
		SubFloorOverrideEnabled:   snap.Bool("FEATURE_SUBFLOOR_OVERRIDE", false),
		SubFloorOverrideThreshold: snap.Float("SUBFLOOR_OVERRIDE_THRESHOLD", 0.6),
	}
	if ceiling := snap.Float("PRICE_CEILING", 10.0); ceiling > 0 {
		cfg.PriceCeiling = &ceiling
	}
	if floor := snap.Float("PRICE_FLOOR", 0.0); floor > 0 {
		cfg.PriceFloor = &floor
	}
	return cfg
}
