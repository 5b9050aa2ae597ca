package heartbeat

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amenzel91/catalyst-bot/internal/domain"
	"github.com/amenzel91/catalyst-bot/internal/events"
)

type fakeOutcomesReader struct {
	records []domain.OutcomeRecord
}

func (f *fakeOutcomesReader) Between(ctx context.Context, from, to time.Time) ([]domain.OutcomeRecord, error) {
	return f.records, nil
}

type fakePriceBatcher struct {
	prices map[string]domain.PriceSnapshot
}

func (f *fakePriceBatcher) Batch(ctx context.Context, tickers []string) (map[string]domain.PriceSnapshot, error) {
	out := make(map[string]domain.PriceSnapshot, len(tickers))
	for _, t := range tickers {
		if p, ok := f.prices[t]; ok {
			out[t] = p
		}
	}
	return out, nil
}

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestRunOnceComputesWinRateAndCategoryRollup(t *testing.T) {
	now := time.Date(2026, 7, 30, 6, 0, 0, 0, time.UTC)

	var records []domain.OutcomeRecord
	prices := map[string]domain.PriceSnapshot{}

	// 3 winning biotech alerts: positive sentiment, price rose 10%.
	for i, ticker := range []string{"BIO1", "BIO2", "BIO3"} {
		records = append(records, domain.OutcomeRecord{
			Timestamp:  now.Add(-time.Duration(i) * time.Hour),
			Ticker:     ticker,
			Source:     "wire",
			Decision:   "dispatched",
			Score:      0.8,
			Sentiment:  0.6,
			Categories: []string{"biotech"},
			Price:      &domain.PriceSnapshot{Ticker: ticker, Last: 10.0},
		})
		prices[ticker] = domain.PriceSnapshot{Ticker: ticker, Last: 11.0}
	}

	// 3 losing offering alerts: positive sentiment, price fell.
	for i, ticker := range []string{"OFF1", "OFF2", "OFF3"} {
		records = append(records, domain.OutcomeRecord{
			Timestamp:  now.Add(-time.Duration(i) * time.Hour),
			Ticker:     ticker,
			Source:     "wire",
			Decision:   "dispatched",
			Score:      0.6,
			Sentiment:  0.5,
			Categories: []string{"offering"},
			Price:      &domain.PriceSnapshot{Ticker: ticker, Last: 10.0},
		})
		prices[ticker] = domain.PriceSnapshot{Ticker: ticker, Last: 9.0}
	}

	// A rejected item with no price: must be excluded from the sample.
	records = append(records, domain.OutcomeRecord{
		Timestamp: now,
		Ticker:    "SKIP",
		Source:    "wire",
		Decision:  "MIN_SCORE",
		Score:     0.1,
	})

	bus := events.NewBus()
	var got *events.NightlyReportData
	bus.Subscribe(events.NightlyReport, func(e events.Event) {
		got = e.Data.(*events.NightlyReportData)
	})

	r := NewNightlyReport(
		&fakeOutcomesReader{records: records},
		&fakePriceBatcher{prices: prices},
		nil,
		bus,
		DefaultWinThresholdPct,
		zerolog.Nop(),
	)
	r.now = fixedNow(now)

	summary, err := r.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 6, summary.SampleSize)
	assert.InDelta(t, 0.5, summary.WinRate, 0.001)
	assert.Equal(t, []string{"biotech", "offering"}, summary.TopCategories)
	assert.Equal(t, []string{"offering", "biotech"}, summary.BottomCategories)
	require.Len(t, summary.Recommendations, 2)

	require.NotNil(t, got)
	assert.Equal(t, summary.ReportDate, got.ReportDate)
	assert.Equal(t, summary.SampleSize, got.SampleSize)
}

func TestRunOnceSkipsRecordsMissingCurrentPrice(t *testing.T) {
	now := time.Date(2026, 7, 30, 6, 0, 0, 0, time.UTC)

	records := []domain.OutcomeRecord{
		{
			Timestamp: now,
			Ticker:    "NOPRICE",
			Source:    "wire",
			Decision:  "dispatched",
			Sentiment: 0.5,
			Price:     &domain.PriceSnapshot{Ticker: "NOPRICE", Last: 10.0},
		},
	}

	r := NewNightlyReport(
		&fakeOutcomesReader{records: records},
		&fakePriceBatcher{prices: map[string]domain.PriceSnapshot{}},
		nil,
		nil,
		DefaultWinThresholdPct,
		zerolog.Nop(),
	)
	r.now = fixedNow(now)

	summary, err := r.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, summary.SampleSize)
	assert.Equal(t, 0.0, summary.WinRate)
	assert.Empty(t, summary.TopCategories)
	assert.Empty(t, summary.Recommendations)
}

func TestRunOnceExcludesNonDispatchedRecords(t *testing.T) {
	now := time.Date(2026, 7, 30, 6, 0, 0, 0, time.UTC)

	records := []domain.OutcomeRecord{
		{
			Timestamp: now,
			Ticker:    "REJECT",
			Source:    "wire",
			Decision:  "PRICE_INVALID_OR_MISSING",
			Sentiment: 0.5,
		},
	}

	r := NewNightlyReport(
		&fakeOutcomesReader{records: records},
		&fakePriceBatcher{prices: map[string]domain.PriceSnapshot{"REJECT": {Ticker: "REJECT", Last: 12.0}}},
		nil,
		nil,
		DefaultWinThresholdPct,
		zerolog.Nop(),
	)
	r.now = fixedNow(now)

	summary, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.SampleSize)
}

func TestNameReturnsJobIdentifier(t *testing.T) {
	r := NewNightlyReport(&fakeOutcomesReader{}, &fakePriceBatcher{}, nil, nil, 0, zerolog.Nop())
	assert.Equal(t, "nightly_report", r.Name())
}
