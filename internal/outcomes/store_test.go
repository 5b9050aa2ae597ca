package outcomes

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amenzel91/catalyst-bot/internal/domain"
	ctesting "github.com/amenzel91/catalyst-bot/internal/testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, cleanup := ctesting.NewTestDB(t, "outcomes")
	t.Cleanup(cleanup)
	return New(db.Conn())
}

func TestWriteAndBetweenRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Write(ctx, domain.OutcomeRecord{
		Timestamp:  now,
		Ticker:     "ABCD",
		Source:     "wire",
		Decision:   "dispatched",
		Reasons:    nil,
		Score:      0.7,
		Sentiment:  0.4,
		Categories: []string{"fda_approval", "biotech"},
		Price:      &domain.PriceSnapshot{Ticker: "ABCD", Last: 5.25},
	}))
	require.NoError(t, s.Write(ctx, domain.OutcomeRecord{
		Timestamp: now.Add(time.Minute),
		Ticker:    "WXYZ",
		Source:    "wire",
		Decision:  "MIN_SCORE",
		Reasons:   []string{"MIN_SCORE"},
		Score:     0.1,
	}))

	got, err := s.Between(ctx, now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "ABCD", got[0].Ticker)
	assert.Equal(t, "dispatched", got[0].Decision)
	assert.Equal(t, []string{"fda_approval", "biotech"}, got[0].Categories)
	require.NotNil(t, got[0].Price)
	assert.Equal(t, 5.25, got[0].Price.Last)
	assert.False(t, got[0].Price.Missing)

	assert.Equal(t, "WXYZ", got[1].Ticker)
	assert.Equal(t, []string{"MIN_SCORE"}, got[1].Reasons)
	assert.True(t, got[1].Price.Missing)
}

func TestBetweenExcludesOutOfRange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Write(ctx, domain.OutcomeRecord{Timestamp: now.Add(-48 * time.Hour), Ticker: "OLD", Source: "wire", Decision: "dispatched"}))
	require.NoError(t, s.Write(ctx, domain.OutcomeRecord{Timestamp: now, Ticker: "NEW", Source: "wire", Decision: "dispatched"}))

	got, err := s.Between(ctx, now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "NEW", got[0].Ticker)
}
