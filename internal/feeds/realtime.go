package feeds

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/amenzel91/catalyst-bot/internal/domain"
)

// Reconnect tuning, adapted from the teacher's market-status websocket
// client (internal/clients/tradernet).
const (
	realtimeDialTimeout      = 30 * time.Second
	realtimeBaseReconnect    = 5 * time.Second
	realtimeMaxReconnect     = 5 * time.Minute
	realtimeMaxReconnectTrys = 10
)

// realtimeMessage is the wire shape a news-wire websocket push carries.
type realtimeMessage struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Summary     string    `json:"summary"`
	PublishedAt time.Time `json:"published_at"`
}

// createHTTP1Client forces HTTP/1.1 in ALPN negotiation; required because
// Cloudflare-fronted websocket endpoints offer HTTP/2 on the TLS
// handshake but the websocket upgrade needs HTTP/1.1.
func createHTTP1Client() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSClientConfig:   &tls.Config{NextProtos: []string{"http/1.1"}},
			ForceAttemptHTTP2: false,
		},
	}
}

// RealtimeNewsFeed is a push-based news-wire websocket ingestor. Unlike
// the polling adapters, it accumulates items as they arrive and hands
// back whatever is buffered on each Ingestor().Fetch call, so the
// `since` parameter is advisory only (a safety filter against
// already-delivered items, not the request cursor).
type RealtimeNewsFeed struct {
	name string
	url  string

	httpClient *http.Client
	log        zerolog.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	stopped  bool
	stopChan chan struct{}

	bufMu sync.Mutex
	buf   []domain.NewsItem
}

// NewRealtimeNewsFeed constructs a disconnected feed; call Start to begin
// streaming.
func NewRealtimeNewsFeed(name, url string, log zerolog.Logger) *RealtimeNewsFeed {
	return &RealtimeNewsFeed{
		name:       name,
		url:        url,
		httpClient: createHTTP1Client(),
		log:        log.With().Str("component", "realtime_news_feed").Str("feed", name).Logger(),
		stopChan:   make(chan struct{}),
	}
}

// Start dials the feed and begins the background read loop, reconnecting
// with exponential backoff on drop.
func (f *RealtimeNewsFeed) Start(ctx context.Context) error {
	if err := f.connect(ctx); err != nil {
		f.log.Warn().Err(err).Msg("initial connect failed, retrying in background")
		go f.reconnectLoop(ctx)
		return err
	}
	go f.readLoop(ctx)
	return nil
}

// Stop closes the connection and halts reconnection attempts.
func (f *RealtimeNewsFeed) Stop() error {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return nil
	}
	f.stopped = true
	close(f.stopChan)
	conn := f.conn
	f.mu.Unlock()

	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "")
	}
	return nil
}

func (f *RealtimeNewsFeed) connect(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, realtimeDialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, f.url, &websocket.DialOptions{HTTPClient: f.httpClient})
	if err != nil {
		return fmt.Errorf("feeds: dial %s: %w", f.name, err)
	}

	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()
	return nil
}

func (f *RealtimeNewsFeed) reconnectLoop(ctx context.Context) {
	delay := realtimeBaseReconnect
	for attempt := 0; attempt < realtimeMaxReconnectTrys; attempt++ {
		select {
		case <-f.stopChan:
			return
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		if err := f.connect(ctx); err != nil {
			f.log.Warn().Err(err).Int("attempt", attempt+1).Msg("reconnect failed")
			delay = time.Duration(math.Min(float64(delay)*2, float64(realtimeMaxReconnect)))
			continue
		}
		f.log.Info().Msg("reconnected")
		go f.readLoop(ctx)
		return
	}
	f.log.Error().Msg("exhausted reconnect attempts")
}

func (f *RealtimeNewsFeed) readLoop(ctx context.Context) {
	for {
		f.mu.Lock()
		conn := f.conn
		f.mu.Unlock()
		if conn == nil {
			return
		}

		_, data, err := conn.Read(ctx)
		if err != nil {
			f.mu.Lock()
			stopped := f.stopped
			f.conn = nil
			f.mu.Unlock()
			if stopped {
				return
			}
			f.log.Warn().Err(err).Msg("read loop dropped, reconnecting")
			go f.reconnectLoop(ctx)
			return
		}

		var msg realtimeMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			f.log.Debug().Err(err).Msg("skipping malformed message")
			continue
		}
		f.bufMu.Lock()
		f.buf = append(f.buf, domain.NewsItem{
			Source:      f.name,
			SourceID:    msg.ID,
			PublishedAt: msg.PublishedAt,
			URL:         msg.URL,
			Title:       msg.Title,
			Summary:     msg.Summary,
			Provenance:  map[string]string{"adapter": "realtime_news_websocket"},
		})
		f.bufMu.Unlock()
	}
}

// Ingestor adapts the feed's push buffer to the pull-based Ingestor
// contract the Manager expects.
func (f *RealtimeNewsFeed) Ingestor() Ingestor {
	return Ingestor{
		Name:         f.name,
		CadenceFloor: 0,
		Fetch: func(ctx context.Context, since time.Time) ([]domain.NewsItem, time.Time, Diagnostics) {
			f.bufMu.Lock()
			defer f.bufMu.Unlock()

			if len(f.buf) == 0 {
				return nil, since, Diagnostics{}
			}
			out := make([]domain.NewsItem, 0, len(f.buf))
			next := since
			for _, item := range f.buf {
				if !since.IsZero() && !item.PublishedAt.After(since) {
					continue
				}
				out = append(out, item)
				if item.PublishedAt.After(next) {
					next = item.PublishedAt
				}
			}
			f.buf = f.buf[:0]
			return out, next, Diagnostics{}
		},
	}
}
