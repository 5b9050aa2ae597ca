package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/amenzel91/catalyst-bot/internal/domain"
)

// DedupMarker commits the dedup key for a successfully dispatched item.
// Marking happens only after a 2xx response (spec.md §4.I idempotency
// contract) -- never before, so a deferred or failed item can still be
// retried on a later cycle.
type DedupMarker interface {
	CheckAndMark(ctx context.Context, key domain.DedupKey, source, ticker string) (domain.Decision, error)
}

// payloadAttachment is the JSON shape the multipart payload's
// attachments array declares per file. Whenever files are attached the
// array is present, which is what the platform needs to resolve
// `attachment://<filename>` references in the embed; with zero files
// the key is omitted (see payload below).
type payloadAttachment struct {
	ID          int    `json:"id"`
	Filename    string `json:"filename"`
	Description string `json:"description,omitempty"`
}

type payloadEmbed struct {
	Title       string             `json:"title"`
	Description string             `json:"description,omitempty"`
	Fields      []payloadField     `json:"fields,omitempty"`
	Image       *payloadEmbedImage `json:"image,omitempty"`
}

type payloadField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type payloadEmbedImage struct {
	URL string `json:"url"`
}

// payload is the multipart JSON part. Attachments uses omitempty:
// when an artifact carries zero files, the key is dropped entirely
// rather than sent as an empty array, matching the webhook consumers
// observed to silently drop images when the array key was present but
// empty versus absent (spec.md §4.I).
type payload struct {
	Embeds      []payloadEmbed      `json:"embeds"`
	Attachments []payloadAttachment `json:"attachments,omitempty"`
}

// Dispatcher delivers built Artifacts over a webhook, retrying transient
// failures with exponential backoff honoring any Retry-After header.
type Dispatcher struct {
	webhookURL string
	httpClient *http.Client
	dedup      DedupMarker
	log        zerolog.Logger

	maxRetries int

	perCycleCap int
	dispatched  int
}

func NewDispatcher(webhookURL string, httpClient *http.Client, dedup DedupMarker, perCycleCap int, log zerolog.Logger) *Dispatcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Dispatcher{
		webhookURL:  webhookURL,
		httpClient:  httpClient,
		dedup:       dedup,
		log:         log.With().Str("component", "alert_dispatcher").Logger(),
		maxRetries:  3,
		perCycleCap: perCycleCap,
	}
}

// Result reports the final disposition of a dispatch attempt.
type Result struct {
	Delivered bool
	Deferred  bool // per-cycle cap reached; retry next cycle without marking dedup
	Err       error
}

// ResetCycle clears the per-cycle dispatch counter; the orchestrator
// calls this once at the start of each pass.
func (d *Dispatcher) ResetCycle() {
	d.dispatched = 0
}

// Dispatch sends artifact for item, retrying on 5xx/429 and marking the
// item's dedup key only once the webhook responds with 2xx.
func (d *Dispatcher) Dispatch(ctx context.Context, item domain.ClassifiedItem, key domain.DedupKey, artifact Artifact) Result {
	if d.perCycleCap > 0 && d.dispatched >= d.perCycleCap {
		return Result{Deferred: true}
	}

	body, contentType, err := encodeMultipart(artifact)
	if err != nil {
		return Result{Err: fmt.Errorf("alert: encode payload: %w", err)}
	}

	var lastErr error
	wait := time.Second
	for attempt := 0; attempt < d.maxRetries; attempt++ {
		resp, err := d.post(ctx, contentType, body)
		if err != nil {
			lastErr = err
		} else {
			defer resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				d.dispatched++
				if d.dedup != nil {
					if _, markErr := d.dedup.CheckAndMark(ctx, key, item.Source, item.Ticker); markErr != nil {
						d.log.Warn().Err(markErr).Str("ticker", item.Ticker).Msg("dedup mark failed after successful dispatch")
					}
				}
				return Result{Delivered: true}
			}
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				wait = retryAfter(resp, wait)
				lastErr = fmt.Errorf("alert: webhook returned %d", resp.StatusCode)
			} else {
				snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
				d.log.Error().Int("status", resp.StatusCode).Bytes("response", snippet).Str("ticker", item.Ticker).Msg("non-retryable webhook failure")
				return Result{Err: fmt.Errorf("alert: non-retryable status %d", resp.StatusCode)}
			}
		}

		if attempt < d.maxRetries-1 {
			d.log.Warn().Err(lastErr).Int("attempt", attempt+1).Dur("wait", wait).Str("ticker", item.Ticker).Msg("retrying webhook dispatch")
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return Result{Err: ctx.Err()}
			}
			wait *= 2
			body, contentType, _ = encodeMultipart(artifact)
		}
	}

	return Result{Err: fmt.Errorf("alert: dispatch failed after %d attempts: %w", d.maxRetries, lastErr)}
}

func (d *Dispatcher) post(ctx context.Context, contentType string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return d.httpClient.Do(req)
}

// retryAfter honors a Retry-After header (seconds or HTTP-date) when
// present, falling back to the caller's current backoff otherwise.
func retryAfter(resp *http.Response, fallback time.Duration) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return fallback
}

// encodeMultipart builds the multipart/form-data body: a "payload_json"
// part carrying the embed + attachments array, plus one file part per
// attachment, each read from its absolute path.
func encodeMultipart(artifact Artifact) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	p := payload{
		Embeds:      []payloadEmbed{toPayloadEmbed(artifact.Embed)},
		Attachments: make([]payloadAttachment, 0, len(artifact.Attachments)),
	}
	for _, a := range artifact.Attachments {
		p.Attachments = append(p.Attachments, payloadAttachment{ID: a.ID, Filename: a.Filename, Description: a.Description})
	}

	jsonBytes, err := json.Marshal(p)
	if err != nil {
		return nil, "", fmt.Errorf("marshal payload: %w", err)
	}
	if err := w.WriteField("payload_json", string(jsonBytes)); err != nil {
		return nil, "", err
	}

	for _, a := range artifact.Attachments {
		f, err := os.Open(a.Path)
		if err != nil {
			return nil, "", fmt.Errorf("open attachment %s: %w", a.Path, err)
		}
		part, err := w.CreateFormFile(fmt.Sprintf("files[%d]", a.ID), a.Filename)
		if err != nil {
			f.Close()
			return nil, "", err
		}
		if _, err := io.Copy(part, f); err != nil {
			f.Close()
			return nil, "", err
		}
		f.Close()
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func toPayloadEmbed(e Embed) payloadEmbed {
	pe := payloadEmbed{Title: e.Title, Description: e.Description}
	for _, f := range e.Fields {
		pe.Fields = append(pe.Fields, payloadField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	if e.ImageRef != "" {
		pe.Image = &payloadEmbedImage{URL: e.ImageRef}
	}
	return pe
}
