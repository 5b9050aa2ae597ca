package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amenzel91/catalyst-bot/internal/events"
	ctesting "github.com/amenzel91/catalyst-bot/internal/testing"
)

func newTestBudget(t *testing.T, limits BudgetLimits, bus *events.Bus) *SQLiteBudget {
	t.Helper()
	db, cleanup := ctesting.NewTestDB(t, "llmcache")
	t.Cleanup(cleanup)
	return NewSQLiteBudget(db, limits, bus)
}

func TestSQLiteBudgetReserveAccumulatesSpend(t *testing.T) {
	b := newTestBudget(t, BudgetLimits{DailyUSD: 1, MonthlyUSD: 10, WarnAtRatio: 0.8}, nil)

	ok, _, err := b.Reserve(0.4)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _, err = b.Reserve(0.4)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSQLiteBudgetReserveRejectsOverDailyCeiling(t *testing.T) {
	b := newTestBudget(t, BudgetLimits{DailyUSD: 1, MonthlyUSD: 10, WarnAtRatio: 0.8}, nil)

	ok, _, err := b.Reserve(0.9)
	require.NoError(t, err)
	require.True(t, ok)

	ok, status, err := b.Reserve(0.5)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "daily", status.Window)
}

func TestSQLiteBudgetEmitsWarningAtThreshold(t *testing.T) {
	bus := events.NewBus()
	var captured *events.LLMBudgetData
	bus.Subscribe(events.LLMBudgetWarning, func(e events.Event) {
		if d, ok := e.Data.(*events.LLMBudgetData); ok {
			captured = d
		}
	})

	b := newTestBudget(t, BudgetLimits{DailyUSD: 1, MonthlyUSD: 10, WarnAtRatio: 0.5}, bus)

	ok, _, err := b.Reserve(0.6)
	require.NoError(t, err)
	require.True(t, ok)

	require.NotNil(t, captured)
	assert.Equal(t, "daily", captured.Window)
}

func TestSQLiteCacheRoundTrip(t *testing.T) {
	db, cleanup := ctesting.NewTestDB(t, "llmcache")
	defer cleanup()
	cache := NewSQLiteCache(db)

	_, ok, err := cache.Get("somehash", TierCheap)
	require.NoError(t, err)
	assert.False(t, ok)

	want := Verdict{Present: true, Sentiment: 0.4, Label: "positive", Confidence: 0.8, CostUSD: 0.02}
	require.NoError(t, cache.Set("somehash", TierCheap, want))

	got, ok, err := cache.Get("somehash", TierCheap)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestSQLiteCacheDistinguishesTiers(t *testing.T) {
	db, cleanup := ctesting.NewTestDB(t, "llmcache")
	defer cleanup()
	cache := NewSQLiteCache(db)

	require.NoError(t, cache.Set("h", TierCheap, Verdict{Sentiment: 0.1}))
	require.NoError(t, cache.Set("h", TierExpensive, Verdict{Sentiment: 0.9}))

	cheap, ok, err := cache.Get("h", TierCheap)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0.1, cheap.Sentiment)

	expensive, ok, err := cache.Get("h", TierExpensive)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0.9, expensive.Sentiment)
}
