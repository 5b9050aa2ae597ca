package feeds

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ctesting "github.com/amenzel91/catalyst-bot/internal/testing"
	"github.com/amenzel91/catalyst-bot/internal/httpcache"
)

func TestPressReleaseWireParsesArticles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte(`[{"id":"1","title":"Acme wins FDA approval","url":"https://x/1","summary":"s","published_at":"2026-07-29T10:00:00Z"}]`))
	}))
	defer srv.Close()

	ing := NewPressReleaseWire("wire", srv.URL, 0, srv.Client(), nil, zerolog.Nop())
	items, next, diag := ing.Fetch(context.Background(), time.Time{})

	require.NoError(t, diag.Err)
	require.Len(t, items, 1)
	assert.Equal(t, "Acme wins FDA approval", items[0].Title)
	assert.Equal(t, "wire", items[0].Source)
	assert.False(t, next.IsZero())
}

func TestPressReleaseWireHonors304NotModified(t *testing.T) {
	db, cleanup := ctesting.NewTestDB(t, "httpcache")
	t.Cleanup(cleanup)
	cache := httpcache.New(db.Conn())

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte(`[{"id":"1","title":"t","url":"https://x/1","published_at":"2026-07-29T10:00:00Z"}]`))
	}))
	defer srv.Close()

	ing := NewPressReleaseWire("wire", srv.URL, 0, srv.Client(), cache, zerolog.Nop())

	items, _, diag := ing.Fetch(context.Background(), time.Time{})
	require.NoError(t, diag.Err)
	require.Len(t, items, 1)

	items, _, diag = ing.Fetch(context.Background(), time.Time{})
	require.NoError(t, diag.Err)
	assert.True(t, diag.NotModified)
	assert.Empty(t, items)
	assert.Equal(t, 2, calls)
}

func TestPressReleaseWireNonOKStatusReturnsDiagnosticsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ing := NewPressReleaseWire("wire", srv.URL, 0, srv.Client(), nil, zerolog.Nop())
	items, _, diag := ing.Fetch(context.Background(), time.Time{})

	assert.Error(t, diag.Err)
	assert.Empty(t, items)
}

func TestFilingIndexParsesAtomEntries(t *testing.T) {
	atom := `<?xml version="1.0"?>
<feed>
  <entry>
    <id>urn:acc:0001</id>
    <title>8-K Filing</title>
    <summary>Material event</summary>
    <updated>2026-07-29T12:00:00Z</updated>
    <accession-number>0001-26-000123</accession-number>
    <link href="https://filings/0001"/>
  </entry>
</feed>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(atom))
	}))
	defer srv.Close()

	ing := NewFilingIndex("edgar", srv.URL, 0, srv.Client(), nil, zerolog.Nop())
	items, next, diag := ing.Fetch(context.Background(), time.Time{})

	require.NoError(t, diag.Err)
	require.Len(t, items, 1)
	assert.Equal(t, "0001-26-000123", items[0].SourceID)
	assert.Equal(t, "https://filings/0001", items[0].URL)
	assert.False(t, next.IsZero())
}

func TestFilingIndexSkipsEntriesNotAfterSince(t *testing.T) {
	atom := `<?xml version="1.0"?>
<feed>
  <entry>
    <id>urn:acc:0001</id>
    <title>old</title>
    <updated>2026-07-29T10:00:00Z</updated>
  </entry>
  <entry>
    <id>urn:acc:0002</id>
    <title>new</title>
    <updated>2026-07-29T14:00:00Z</updated>
  </entry>
</feed>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(atom))
	}))
	defer srv.Close()

	since := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)
	ing := NewFilingIndex("edgar", srv.URL, 0, srv.Client(), nil, zerolog.Nop())
	items, _, diag := ing.Fetch(context.Background(), since)

	require.NoError(t, diag.Err)
	require.Len(t, items, 1)
	assert.Equal(t, "new", items[0].Title)
}
