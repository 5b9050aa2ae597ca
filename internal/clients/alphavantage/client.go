// Package alphavantage provides a narrowly-scoped Alpha Vantage client
// used by the price provider chain (GLOBAL_QUOTE only): the feed and
// classifier layers need a current price and percent change, not
// fundamentals or technical indicators, so this client trims the
// upstream API surface down to that one endpoint plus the free-tier
// rate limiter and in-memory cache every Alpha Vantage caller needs.
package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const defaultBaseURL = "https://www.alphavantage.co/query"

// freeTierDailyLimit is Alpha Vantage's free-tier request budget; once
// exhausted the client refuses further calls until the next UTC midnight.
const freeTierDailyLimit = 25

// ErrRateLimitExceeded is returned once the daily free-tier budget is spent.
type ErrRateLimitExceeded struct{}

func (ErrRateLimitExceeded) Error() string { return "alphavantage: daily rate limit exceeded" }

// ErrInvalidAPIKey is returned when Alpha Vantage rejects the configured key.
type ErrInvalidAPIKey struct{}

func (ErrInvalidAPIKey) Error() string { return "alphavantage: invalid API key" }

// ErrSymbolNotFound is returned when a quote request matches no symbol.
type ErrSymbolNotFound struct{ Symbol string }

func (e ErrSymbolNotFound) Error() string {
	return fmt.Sprintf("alphavantage: symbol not found: %s", e.Symbol)
}

type cacheEntry struct {
	value     interface{}
	expiresAt time.Time
}

// GlobalQuote is the parsed GLOBAL_QUOTE response.
type GlobalQuote struct {
	Symbol          string
	Open            float64
	High            float64
	Low             float64
	Price           float64
	Volume          int64
	LatestTradeDate time.Time
	PreviousClose   float64
	Change          float64
	ChangePercent   float64
}

// ClientInterface lets callers depend on an interface for fakes in tests.
type ClientInterface interface {
	GetGlobalQuote(ctx context.Context, symbol string) (*GlobalQuote, error)
}

// Client is a minimal Alpha Vantage REST client scoped to quote lookups.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        zerolog.Logger

	mu           sync.Mutex
	cache        map[string]cacheEntry
	cacheTTL     time.Duration
	requestCount int
	resetAt      time.Time
}

var _ ClientInterface = (*Client)(nil)

// NewClient creates an Alpha Vantage client with the default 15-minute
// quote cache TTL and the free-tier daily request budget.
func NewClient(apiKey string, log zerolog.Logger) *Client {
	return &Client{
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		log:        log.With().Str("component", "alphavantage").Logger(),
		cache:      make(map[string]cacheEntry),
		cacheTTL:   15 * time.Minute,
		resetAt:    nextMidnightUTC(),
	}
}

// GetRemainingRequests reports how many of today's free-tier requests are left.
func (c *Client) GetRemainingRequests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rolloverIfExpiredLocked()
	return freeTierDailyLimit - c.requestCount
}

// ResetDailyCounter manually resets the daily request counter.
func (c *Client) ResetDailyCounter() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestCount = 0
	c.resetAt = nextMidnightUTC()
}

func (c *Client) rolloverIfExpiredLocked() {
	if time.Now().UTC().After(c.resetAt) {
		c.requestCount = 0
		c.resetAt = nextMidnightUTC()
	}
}

func (c *Client) checkRateLimit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rolloverIfExpiredLocked()
	if c.requestCount >= freeTierDailyLimit {
		return ErrRateLimitExceeded{}
	}
	c.requestCount++
	return nil
}

func (c *Client) setCache(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[key] = cacheEntry{value: value, expiresAt: time.Now().Add(ttl)}
}

func (c *Client) getFromCache(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.cache[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.cache, key)
		return nil, false
	}
	return entry.value, true
}

// ClearCache empties the in-memory quote cache.
func (c *Client) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]cacheEntry)
}

// buildCacheKey builds a stable cache key, excluding the API key so it
// never ends up as part of a cache identity (or a log line derived from one).
func buildCacheKey(function string, params map[string]string) string {
	var b strings.Builder
	b.WriteString(function)
	for k, v := range params {
		if k == "apikey" {
			continue
		}
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(v)
	}
	return b.String()
}

// GetGlobalQuote fetches (or returns a cached) GLOBAL_QUOTE for symbol.
func (c *Client) GetGlobalQuote(ctx context.Context, symbol string) (*GlobalQuote, error) {
	params := map[string]string{"symbol": symbol}
	key := buildCacheKey("GLOBAL_QUOTE", params)

	if cached, ok := c.getFromCache(key); ok {
		return cached.(*GlobalQuote), nil
	}

	if err := c.checkRateLimit(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("alphavantage: build request: %w", err)
	}
	q := req.URL.Query()
	q.Set("function", "GLOBAL_QUOTE")
	q.Set("symbol", symbol)
	q.Set("apikey", c.apiKey)
	req.URL.RawQuery = q.Encode()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("alphavantage: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("alphavantage: read body: %w", err)
	}
	if err := c.checkAPIError(body); err != nil {
		return nil, err
	}

	quote, err := parseGlobalQuote(body)
	if err != nil {
		return nil, err
	}
	if quote.Symbol == "" {
		return nil, ErrSymbolNotFound{Symbol: symbol}
	}

	c.setCache(key, quote, c.cacheTTL)
	return quote, nil
}

// checkAPIError inspects a response body for Alpha Vantage's
// sentinel error fields, which come back with HTTP 200 regardless.
func (c *Client) checkAPIError(body []byte) error {
	if strings.Contains(string(body), "Thank you for using Alpha Vantage") {
		return ErrRateLimitExceeded{}
	}

	var envelope struct {
		Note         string `json:"Note"`
		ErrorMessage string `json:"Error Message"`
		Information  string `json:"Information"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil
	}
	if envelope.Note != "" {
		return ErrRateLimitExceeded{}
	}
	if envelope.ErrorMessage != "" {
		return fmt.Errorf("alphavantage: %s", envelope.ErrorMessage)
	}
	if strings.Contains(envelope.Information, "API key") {
		return ErrInvalidAPIKey{}
	}
	return nil
}

func parseGlobalQuote(body []byte) (*GlobalQuote, error) {
	var envelope struct {
		Quote map[string]string `json:"Global Quote"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("alphavantage: decode global quote: %w", err)
	}
	q := envelope.Quote

	return &GlobalQuote{
		Symbol:          q["01. symbol"],
		Open:            parseFloat64(q["02. open"]),
		High:            parseFloat64(q["03. high"]),
		Low:             parseFloat64(q["04. low"]),
		Price:           parseFloat64(q["05. price"]),
		Volume:          parseInt64(q["06. volume"]),
		LatestTradeDate: parseDate(q["07. latest trading day"]),
		PreviousClose:   parseFloat64(q["08. previous close"]),
		Change:          parseFloat64(q["09. change"]),
		ChangePercent:   parseFloat64(strings.TrimSuffix(q["10. change percent"], "%")),
	}, nil
}

// parseFloat64 tolerates Alpha Vantage's various "no value" spellings and
// a trailing "%" on percentage fields, returning 0 rather than an error.
func parseFloat64(s string) float64 {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "%")
	switch s {
	case "", "None", "null", "-":
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseInt64(s string) int64 {
	s = strings.TrimSpace(s)
	switch s {
	case "", "None", "null", "-":
		return 0
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(f)
	}
	return 0
}

func parseDate(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// nextMidnightUTC returns the next UTC midnight after now, used to reset
// the free-tier daily request counter.
func nextMidnightUTC() time.Time {
	now := time.Now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return midnight.Add(24 * time.Hour)
}
