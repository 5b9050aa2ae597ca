package heartbeat

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/amenzel91/catalyst-bot/internal/domain"
	"github.com/amenzel91/catalyst-bot/internal/events"
)

// DefaultWinThresholdPct is the minimum favorable price move, as a
// percentage, that counts a dispatched alert as a win (spec.md §4.K).
const DefaultWinThresholdPct = 5.0

// OutcomesReader is the subset of *outcomes.Store the nightly report needs.
type OutcomesReader interface {
	Between(ctx context.Context, from, to time.Time) ([]domain.OutcomeRecord, error)
}

// PriceBatcher is the subset of *price.Service the nightly report needs
// to look up each dispatched ticker's current price as its lookahead.
type PriceBatcher interface {
	Batch(ctx context.Context, tickers []string) (map[string]domain.PriceSnapshot, error)
}

// categoryStats accumulates win/total counts for one keyword category.
type categoryStats struct {
	wins  int
	total int
}

func (c categoryStats) winRate() float64 {
	if c.total == 0 {
		return 0
	}
	return float64(c.wins) / float64(c.total)
}

// NightlyReport computes the win-rate backtest and keyword-category
// rollup spec.md §4.K describes and posts it with approve/reject/
// view-detail/custom controls (routed into internal/control on
// approval). It implements trader-go/internal/scheduler's Job
// interface (Name/Run) so it can be registered on a robfig/cron
// schedule the same way the teacher registers its own jobs.
type NightlyReport struct {
	outcomes        OutcomesReader
	prices          PriceBatcher
	poster          *Poster
	bus             *events.Bus
	winThresholdPct float64
	log             zerolog.Logger

	now func() time.Time
}

// NewNightlyReport returns a NightlyReport. winThresholdPct <= 0 falls
// back to DefaultWinThresholdPct.
func NewNightlyReport(outcomes OutcomesReader, prices PriceBatcher, poster *Poster, bus *events.Bus, winThresholdPct float64, log zerolog.Logger) *NightlyReport {
	if winThresholdPct <= 0 {
		winThresholdPct = DefaultWinThresholdPct
	}
	return &NightlyReport{
		outcomes:        outcomes,
		prices:          prices,
		poster:          poster,
		bus:             bus,
		winThresholdPct: winThresholdPct,
		log:             log.With().Str("component", "nightly_report").Logger(),
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// Name identifies this job to a scheduler.
func (r *NightlyReport) Name() string { return "nightly_report" }

// Run executes the report against a background context, satisfying the
// scheduler's Job interface.
func (r *NightlyReport) Run() error {
	_, err := r.RunOnce(context.Background())
	return err
}

// RunOnce computes yesterday's metrics, posts the report, and returns
// the computed summary for callers that want it directly (tests, or a
// control-surface "run now" command).
func (r *NightlyReport) RunOnce(ctx context.Context) (events.NightlyReportData, error) {
	today := r.now().Truncate(24 * time.Hour)
	from := today.Add(-24 * time.Hour)
	to := today

	records, err := r.outcomes.Between(ctx, from, to)
	if err != nil {
		return events.NightlyReportData{}, fmt.Errorf("heartbeat: read outcomes: %w", err)
	}

	dispatched := make([]domain.OutcomeRecord, 0, len(records))
	for _, rec := range records {
		if rec.Decision == "dispatched" && rec.Price != nil && !rec.Price.Missing {
			dispatched = append(dispatched, rec)
		}
	}

	tickers := make([]string, 0, len(dispatched))
	for _, rec := range dispatched {
		tickers = append(tickers, rec.Ticker)
	}
	current, err := r.prices.Batch(ctx, tickers)
	if err != nil {
		r.log.Warn().Err(err).Msg("price batch failed, skipping win-rate computation for missing quotes")
		current = map[string]domain.PriceSnapshot{}
	}

	byCategory := make(map[string]*categoryStats)
	wins, total := 0, 0
	for _, rec := range dispatched {
		now, ok := current[rec.Ticker]
		if !ok || now.Missing || rec.Price.Last == 0 {
			continue
		}
		pctChange := (now.Last - rec.Price.Last) / rec.Price.Last * 100
		win := (rec.Sentiment > 0 && pctChange >= r.winThresholdPct) ||
			(rec.Sentiment < 0 && pctChange <= -r.winThresholdPct)

		total++
		if win {
			wins++
		}
		for _, cat := range rec.Categories {
			stats, ok := byCategory[cat]
			if !ok {
				stats = &categoryStats{}
				byCategory[cat] = stats
			}
			stats.total++
			if win {
				stats.wins++
			}
		}
	}

	var ranks []categoryRank
	for name, stats := range byCategory {
		if stats.total < 3 {
			continue // too few samples to rank meaningfully
		}
		ranks = append(ranks, categoryRank{name, stats.winRate()})
	}
	sort.Slice(ranks, func(i, j int) bool { return ranks[i].rate > ranks[j].rate })

	top, bottom := topBottomNames(ranks, 3)
	recommendations := buildRecommendations(ranks, r.winThresholdPct)

	winRate := 0.0
	if total > 0 {
		winRate = float64(wins) / float64(total)
	}

	summary := events.NightlyReportData{
		ReportDate:       from.Format("2006-01-02"),
		WinRate:          winRate,
		SampleSize:       total,
		TopCategories:    top,
		BottomCategories: bottom,
		Recommendations:  recommendations,
	}

	if r.poster != nil {
		if err := r.poster.Post(ctx, reportEmbed(summary), reportComponents()); err != nil {
			r.log.Warn().Err(err).Msg("nightly report post failed")
		}
	}
	if r.bus != nil {
		r.bus.Emit(events.NightlyReport, "heartbeat", &summary)
	}
	return summary, nil
}

// categoryRank is one keyword category's win rate, used to rank the
// top/bottom performers for the nightly report.
type categoryRank struct {
	name string
	rate float64
}

func topBottomNames(ranks []categoryRank, n int) ([]string, []string) {
	var top, bottom []string
	for i, r := range ranks {
		if i < n {
			top = append(top, r.name)
		}
	}
	for i := len(ranks) - 1; i >= 0 && len(bottom) < n; i-- {
		bottom = append(bottom, ranks[i].name)
	}
	return top, bottom
}

func buildRecommendations(ranks []categoryRank, winThresholdPct float64) []string {
	var recs []string
	for _, r := range ranks {
		switch {
		case r.rate < 0.3:
			recs = append(recs, fmt.Sprintf("category %q won only %.0f%% of alerts; consider raising MIN_SCORE for its keywords", r.name, r.rate*100))
		case r.rate > 0.7:
			recs = append(recs, fmt.Sprintf("category %q won %.0f%% of alerts; consider lowering MIN_SCORE to surface more of it", r.name, r.rate*100))
		}
	}
	return recs
}

func reportEmbed(s events.NightlyReportData) domain.Embed {
	return domain.Embed{
		Title:       fmt.Sprintf("Nightly report: %s", s.ReportDate),
		Description: fmt.Sprintf("Win rate %.0f%% over %d dispatched alerts", s.WinRate*100, s.SampleSize),
		Fields: []domain.EmbedField{
			{Name: "Top categories", Value: joinOrNone(s.TopCategories)},
			{Name: "Bottom categories", Value: joinOrNone(s.BottomCategories)},
			{Name: "Recommendations", Value: joinOrNone(s.Recommendations)},
		},
	}
}

func reportComponents() []domain.Component {
	return []domain.Component{
		{Kind: "button", Label: "View detail", CustomID: "nightly_report:view_detail", Style: "secondary"},
		{Kind: "button", Label: "Approve", CustomID: "nightly_report:approve", Style: "success"},
		{Kind: "button", Label: "Reject", CustomID: "nightly_report:reject", Style: "danger"},
		{Kind: "button", Label: "Custom", CustomID: "nightly_report:custom", Style: "secondary"},
	}
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	out := items[0]
	for _, item := range items[1:] {
		out += ", " + item
	}
	return out
}
