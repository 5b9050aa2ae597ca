package feeds

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/amenzel91/catalyst-bot/internal/domain"
	"github.com/amenzel91/catalyst-bot/internal/httpcache"
)

// conditionalState is the per-source ETag/Last-Modified pair persisted
// across fetches so repeat polls of an unchanged feed cost a 304 instead
// of a full body transfer.
type conditionalState struct {
	ETag         string `json:"etag"`
	LastModified string `json:"last_modified"`
}

const conditionalCacheProvider = "feeds_conditional"

func loadConditional(cache *httpcache.Cache, source string) conditionalState {
	if cache == nil {
		return conditionalState{}
	}
	var st conditionalState
	cache.GetStale(conditionalCacheProvider, source, &st)
	return st
}

func storeConditional(cache *httpcache.Cache, source string, resp *http.Response) {
	if cache == nil {
		return
	}
	st := conditionalState{ETag: resp.Header.Get("ETag"), LastModified: resp.Header.Get("Last-Modified")}
	cache.Store(conditionalCacheProvider, source, st, 30*24*time.Hour)
}

func doConditionalGet(ctx context.Context, client *http.Client, url, source string, cache *httpcache.Cache) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("feeds: build request for %s: %w", source, err)
	}
	st := loadConditional(cache, source)
	if st.ETag != "" {
		req.Header.Set("If-None-Match", st.ETag)
	}
	if st.LastModified != "" {
		req.Header.Set("If-Modified-Since", st.LastModified)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feeds: fetch %s: %w", source, err)
	}
	return resp, nil
}

// pressReleaseArticle is the JSON shape a press-release wire returns per
// article. Field names follow the common PRNewswire/BusinessWire export
// convention the teacher's API clients target.
type pressReleaseArticle struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Summary     string    `json:"summary"`
	PublishedAt time.Time `json:"published_at"`
}

// NewPressReleaseWire builds a press-release ingestor polling a JSON
// endpoint that accepts a `since` query parameter and returns a JSON
// array of articles, newest last. cadenceFloor is the wire's published
// polite-use minimum (spec.md §4.C); pass 0 if it posts none.
func NewPressReleaseWire(name, baseURL string, cadenceFloor time.Duration, client *http.Client, cache *httpcache.Cache, log zerolog.Logger) Ingestor {
	slog := log.With().Str("feed", name).Logger()
	return Ingestor{
		Name:         name,
		CadenceFloor: cadenceFloor,
		Fetch: func(ctx context.Context, since time.Time) ([]domain.NewsItem, time.Time, Diagnostics) {
			url := baseURL
			if !since.IsZero() {
				url = fmt.Sprintf("%s?since=%s", baseURL, since.UTC().Format(time.RFC3339))
			}
			resp, err := doConditionalGet(ctx, client, url, name, cache)
			if err != nil {
				slog.Warn().Err(err).Msg("press release fetch failed")
				return nil, since, Diagnostics{Err: err}
			}
			defer resp.Body.Close()

			if resp.StatusCode == http.StatusNotModified {
				return nil, since, Diagnostics{NotModified: true}
			}
			if resp.StatusCode != http.StatusOK {
				err := fmt.Errorf("feeds: %s returned %s", name, resp.Status)
				return nil, since, Diagnostics{Err: err}
			}

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return nil, since, Diagnostics{Err: fmt.Errorf("feeds: read %s body: %w", name, err)}
			}
			var articles []pressReleaseArticle
			if err := json.Unmarshal(body, &articles); err != nil {
				return nil, since, Diagnostics{Err: fmt.Errorf("feeds: decode %s body: %w", name, err)}
			}
			storeConditional(cache, name, resp)

			items := make([]domain.NewsItem, 0, len(articles))
			next := since
			for _, a := range articles {
				items = append(items, domain.NewsItem{
					Source:      name,
					SourceID:    a.ID,
					PublishedAt: a.PublishedAt,
					URL:         a.URL,
					Title:       a.Title,
					Summary:     a.Summary,
					Provenance:  map[string]string{"adapter": "press_release_wire"},
				})
				if a.PublishedAt.After(next) {
					next = a.PublishedAt
				}
			}
			return items, next, Diagnostics{}
		},
	}
}

// filingIndexFeed is the minimal Atom subset filing indexes (EDGAR-style
// full-text search feeds) publish per entry.
type filingIndexFeed struct {
	XMLName xml.Name      `xml:"feed"`
	Entries []filingEntry `xml:"entry"`
}

type filingEntry struct {
	ID        string    `xml:"id"`
	Title     string    `xml:"title"`
	Summary   string    `xml:"summary"`
	Updated   time.Time `xml:"updated"`
	AccNum    string    `xml:"accession-number"`
	Link      struct {
		Href string `xml:"href,attr"`
	} `xml:"link"`
}

// NewFilingIndex builds a filing-index ingestor polling an Atom feed
// endpoint (the shape EDGAR's full-text search and company filing feeds
// use). The accession number, when present, becomes SourceID so the
// ticker resolver's filer-identifier mapping (4.D) can key off it.
func NewFilingIndex(name, baseURL string, cadenceFloor time.Duration, client *http.Client, cache *httpcache.Cache, log zerolog.Logger) Ingestor {
	slog := log.With().Str("feed", name).Logger()
	return Ingestor{
		Name:         name,
		CadenceFloor: cadenceFloor,
		Fetch: func(ctx context.Context, since time.Time) ([]domain.NewsItem, time.Time, Diagnostics) {
			resp, err := doConditionalGet(ctx, client, baseURL, name, cache)
			if err != nil {
				slog.Warn().Err(err).Msg("filing index fetch failed")
				return nil, since, Diagnostics{Err: err}
			}
			defer resp.Body.Close()

			if resp.StatusCode == http.StatusNotModified {
				return nil, since, Diagnostics{NotModified: true}
			}
			if resp.StatusCode != http.StatusOK {
				err := fmt.Errorf("feeds: %s returned %s", name, resp.Status)
				return nil, since, Diagnostics{Err: err}
			}

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return nil, since, Diagnostics{Err: fmt.Errorf("feeds: read %s body: %w", name, err)}
			}
			var feed filingIndexFeed
			if err := xml.Unmarshal(body, &feed); err != nil {
				return nil, since, Diagnostics{Err: fmt.Errorf("feeds: decode %s body: %w", name, err)}
			}
			storeConditional(cache, name, resp)

			items := make([]domain.NewsItem, 0, len(feed.Entries))
			next := since
			for _, e := range feed.Entries {
				if !since.IsZero() && !e.Updated.After(since) {
					continue
				}
				sourceID := e.AccNum
				if sourceID == "" {
					sourceID = e.ID
				}
				items = append(items, domain.NewsItem{
					Source:      name,
					SourceID:    sourceID,
					PublishedAt: e.Updated,
					URL:         e.Link.Href,
					Title:       e.Title,
					Summary:     e.Summary,
					Provenance:  map[string]string{"adapter": "filing_index", "accession_number": e.AccNum},
				})
				if e.Updated.After(next) {
					next = e.Updated
				}
			}
			return items, next, Diagnostics{}
		},
	}
}
