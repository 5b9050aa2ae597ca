package feeds

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amenzel91/catalyst-bot/internal/domain"
)

func TestRealtimeFeedIngestorDrainsBufferOnFetch(t *testing.T) {
	f := NewRealtimeNewsFeed("news_ws", "wss://example.invalid/stream", zerolog.Nop())
	now := time.Now().UTC()

	f.bufMu.Lock()
	f.buf = append(f.buf, domain.NewsItem{Source: "news_ws", Title: "first", PublishedAt: now})
	f.bufMu.Unlock()

	ing := f.Ingestor()
	items, next, diag := ing.Fetch(context.Background(), time.Time{})
	require.NoError(t, diag.Err)
	require.Len(t, items, 1)
	assert.Equal(t, "first", items[0].Title)
	assert.True(t, next.Equal(now))

	// A second immediate fetch finds the buffer already drained.
	items, _, _ = ing.Fetch(context.Background(), next)
	assert.Empty(t, items)
}

func TestRealtimeFeedIngestorSkipsItemsNotAfterSince(t *testing.T) {
	f := NewRealtimeNewsFeed("news_ws", "wss://example.invalid/stream", zerolog.Nop())
	now := time.Now().UTC()

	f.bufMu.Lock()
	f.buf = append(f.buf,
		domain.NewsItem{Source: "news_ws", Title: "old", PublishedAt: now.Add(-time.Minute)},
		domain.NewsItem{Source: "news_ws", Title: "new", PublishedAt: now},
	)
	f.bufMu.Unlock()

	ing := f.Ingestor()
	items, _, _ := ing.Fetch(context.Background(), now.Add(-30*time.Second))
	require.Len(t, items, 1)
	assert.Equal(t, "new", items[0].Title)
}
