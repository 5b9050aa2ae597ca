package heartbeat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/amenzel91/catalyst-bot/internal/domain"
)

// posterEmbed/posterField/posterComponent mirror the JSON shape the chat
// platform's webhook accepts, the same convention internal/alert's
// dispatcher uses for its own payload struct -- kept as a separate,
// smaller type here since heartbeat/report posts carry no file
// attachments and do carry interactive components, which the alert
// payload shape has no field for.
type posterEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Fields      []posterField  `json:"fields,omitempty"`
}

type posterField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type posterComponent struct {
	Kind     string `json:"type"`
	Label    string `json:"label"`
	CustomID string `json:"custom_id"`
	Style    string `json:"style,omitempty"`
}

type posterPayload struct {
	Embeds     []posterEmbed     `json:"embeds"`
	Components []posterComponent `json:"components,omitempty"`
}

// Poster delivers heartbeat/nightly-report messages over a webhook.
// Unlike internal/alert's Dispatcher, a missed heartbeat is not a
// critical-delivery event (spec.md's delivery contract binds only
// 4.I's alert path), so Poster makes one more attempt after any failed
// post (transport error or non-2xx status, including 4xx) and then
// gives up.
type Poster struct {
	webhookURL string
	httpClient *http.Client
}

// NewPoster returns a Poster. httpClient nil falls back to a 10s timeout.
func NewPoster(webhookURL string, httpClient *http.Client) *Poster {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Poster{webhookURL: webhookURL, httpClient: httpClient}
}

// Post sends embed with the given interactive components, retrying once
// on any failure.
func (p *Poster) Post(ctx context.Context, embed domain.Embed, components []domain.Component) error {
	if p.webhookURL == "" {
		return nil
	}

	payload := posterPayload{Embeds: []posterEmbed{toPosterEmbed(embed)}}
	for _, c := range components {
		payload.Components = append(payload.Components, posterComponent{
			Kind:     c.Kind,
			Label:    c.Label,
			CustomID: c.CustomID,
			Style:    c.Style,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("heartbeat: encode payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if err := p.post(ctx, body); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("heartbeat: post failed: %w", lastErr)
}

func (p *Poster) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func toPosterEmbed(e domain.Embed) posterEmbed {
	pe := posterEmbed{Title: e.Title, Description: e.Description}
	for _, f := range e.Fields {
		pe.Fields = append(pe.Fields, posterField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	return pe
}
