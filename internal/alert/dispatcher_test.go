package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amenzel91/catalyst-bot/internal/domain"
)

type fakeMarker struct {
	calls int
	key   domain.DedupKey
}

func (m *fakeMarker) CheckAndMark(ctx context.Context, key domain.DedupKey, source, ticker string) (domain.Decision, error) {
	m.calls++
	m.key = key
	return domain.Fresh, nil
}

func testItem() domain.ClassifiedItem {
	return domain.ClassifiedItem{NewsItem: domain.NewsItem{Ticker: "ABCD", Source: "wire"}}
}

func TestDispatchSuccessMarksDedupAfter2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	marker := &fakeMarker{}
	d := NewDispatcher(srv.URL, srv.Client(), marker, 0, zerolog.Nop())

	res := d.Dispatch(context.Background(), testItem(), domain.DedupKey{IDKey: "id1"}, Artifact{Embed: Embed{Title: "t"}})

	assert.True(t, res.Delivered)
	assert.Equal(t, 1, marker.calls)
}

func TestDispatchNonRetryableDoesNotMarkDedup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	marker := &fakeMarker{}
	d := NewDispatcher(srv.URL, srv.Client(), marker, 0, zerolog.Nop())

	res := d.Dispatch(context.Background(), testItem(), domain.DedupKey{IDKey: "id1"}, Artifact{Embed: Embed{Title: "t"}})

	assert.False(t, res.Delivered)
	assert.Error(t, res.Err)
	assert.Equal(t, 0, marker.calls)
}

func TestDispatchRetriesOn5xxThenSucceeds(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	marker := &fakeMarker{}
	d := NewDispatcher(srv.URL, srv.Client(), marker, 0, zerolog.Nop())
	d.maxRetries = 3

	res := d.Dispatch(context.Background(), testItem(), domain.DedupKey{IDKey: "id1"}, Artifact{Embed: Embed{Title: "t"}})

	assert.True(t, res.Delivered)
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
}

func TestDispatchDefersWhenPerCycleCapReached(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	marker := &fakeMarker{}
	d := NewDispatcher(srv.URL, srv.Client(), marker, 1, zerolog.Nop())

	first := d.Dispatch(context.Background(), testItem(), domain.DedupKey{IDKey: "id1"}, Artifact{Embed: Embed{Title: "t"}})
	require.True(t, first.Delivered)

	second := d.Dispatch(context.Background(), testItem(), domain.DedupKey{IDKey: "id2"}, Artifact{Embed: Embed{Title: "t"}})
	assert.True(t, second.Deferred)
	assert.Equal(t, 1, marker.calls, "deferred item must not be marked seen")
}

func TestDispatchResetCycleClearsCounter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher(srv.URL, srv.Client(), nil, 1, zerolog.Nop())
	d.Dispatch(context.Background(), testItem(), domain.DedupKey{IDKey: "id1"}, Artifact{Embed: Embed{Title: "t"}})
	d.ResetCycle()

	res := d.Dispatch(context.Background(), testItem(), domain.DedupKey{IDKey: "id2"}, Artifact{Embed: Embed{Title: "t"}})
	assert.True(t, res.Delivered)
}

func TestEncodeMultipartOmitsAttachmentsKeyWhenEmpty(t *testing.T) {
	body, contentType, err := encodeMultipart(Artifact{Embed: Embed{Title: "t"}})
	require.NoError(t, err)
	assert.Contains(t, contentType, "multipart/form-data")

	payloadJSON := extractPayloadJSON(t, body, contentType)
	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(payloadJSON, &decoded))
	_, hasAttachments := decoded["attachments"]
	assert.False(t, hasAttachments, "attachments key must be omitted entirely when there are zero files")
}

func extractPayloadJSON(t *testing.T, body []byte, contentType string) []byte {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, "http://example.invalid", nil)
	require.NoError(t, err)
	req.Header.Set("Content-Type", contentType)
	req.Body = io.NopCloser(bytes.NewReader(body))
	require.NoError(t, req.ParseMultipartForm(10<<20))
	return []byte(req.MultipartForm.Value["payload_json"][0])
}
