package httpcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ctesting "github.com/amenzel91/catalyst-bot/internal/testing"
)

type quote struct {
	Price float64 `json:"price"`
}

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	db, cleanup := ctesting.NewTestDB(t, "httpcache")
	t.Cleanup(cleanup)
	return New(db.Conn())
}

func TestStoreAndGetIfFreshRoundTrips(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.Store("alphavantage", "AAPL", quote{Price: 210.5}, time.Minute))

	var got quote
	ok, err := c.GetIfFresh("alphavantage", "AAPL", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 210.5, got.Price)
}

func TestGetIfFreshMissesAfterExpiration(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.Store("alphavantage", "AAPL", quote{Price: 210.5}, -time.Minute))

	var got quote
	ok, err := c.GetIfFresh("alphavantage", "AAPL", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetStaleReturnsExpiredEntry(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.Store("alphavantage", "AAPL", quote{Price: 210.5}, -time.Minute))

	var got quote
	ok, err := c.GetStale("alphavantage", "AAPL", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 210.5, got.Price)
}

func TestStoreOverwritesExistingKey(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.Store("alphavantage", "AAPL", quote{Price: 100}, time.Minute))
	require.NoError(t, c.Store("alphavantage", "AAPL", quote{Price: 200}, time.Minute))

	var got quote
	ok, err := c.GetIfFresh("alphavantage", "AAPL", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 200.0, got.Price)
}

func TestDeleteExpiredRemovesOnlyStaleEntries(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.Store("openfigi", "stale", quote{Price: 1}, -time.Minute))
	require.NoError(t, c.Store("openfigi", "fresh", quote{Price: 2}, time.Minute))

	n, err := c.DeleteExpired()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var got quote
	ok, err := c.GetStale("openfigi", "fresh", &got)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.GetStale("openfigi", "stale", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetIfFreshMissingKeyReturnsFalse(t *testing.T) {
	c := newTestCache(t)
	var got quote
	ok, err := c.GetIfFresh("openfigi", "nope", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}
