package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// tierModel maps a Tier to the upstream model name a given provider
// should use for that tier (spec.md §4.G: cheaper tier, cheaper model).
var tierModel = map[string]map[Tier]string{
	"openai": {
		TierCheap:     "gpt-4o-mini",
		TierMedium:    "gpt-4o-mini",
		TierExpensive: "gpt-4o",
		TierPremium:   "gpt-4o",
	},
	"anthropic": {
		TierCheap:     "claude-3-5-haiku-latest",
		TierMedium:    "claude-3-5-haiku-latest",
		TierExpensive: "claude-3-5-sonnet-latest",
		TierPremium:   "claude-3-5-sonnet-latest",
	},
}

// HTTPProvider is a minimal OpenAI/Anthropic-chat-style completion
// client. No HTTP SDK for either vendor appears anywhere in the
// retrieved pack (see DESIGN.md), so this speaks the wire format
// directly with net/http rather than introducing an unseen dependency.
type HTTPProvider struct {
	vendor     string // "openai" or "anthropic"
	apiKey     string
	httpClient *http.Client
	baseURL    string
}

// NewHTTPProvider builds a Provider for the named vendor. httpClient
// nil falls back to a 30s timeout.
func NewHTTPProvider(vendor, apiKey string, httpClient *http.Client) *HTTPProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	baseURL := "https://api.openai.com/v1/chat/completions"
	if vendor == "anthropic" {
		baseURL = "https://api.anthropic.com/v1/messages"
	}
	return &HTTPProvider{vendor: vendor, apiKey: apiKey, httpClient: httpClient, baseURL: baseURL}
}

type openAIRequest struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
}

type anthropicRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []openAIMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

// Complete routes prompt through the vendor's completion API and
// parses a sentiment verdict out of the model's one-line JSON reply
// ({"sentiment": -1..1, "confidence": 0..1, "label": "..."}).
func (p *HTTPProvider) Complete(ctx context.Context, tier Tier, prompt string) (Verdict, error) {
	model := tierModel[p.vendor][tier]
	if model == "" {
		model = tierModel["openai"][TierCheap]
	}

	instructed := prompt + "\n\nRespond with only a JSON object: " +
		`{"sentiment": <float -1..1>, "confidence": <float 0..1>, "label": "<short label>"}`

	req, err := p.buildRequest(ctx, model, instructed)
	if err != nil {
		return Verdict{}, err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Verdict{}, fmt.Errorf("llm: %s request: %w", p.vendor, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Verdict{}, fmt.Errorf("llm: %s returned status %d", p.vendor, resp.StatusCode)
	}

	text, err := p.extractText(resp.Body)
	if err != nil {
		return Verdict{}, err
	}
	return parseVerdictJSON(text)
}

func (p *HTTPProvider) buildRequest(ctx context.Context, model, prompt string) (*http.Request, error) {
	var payload interface{}
	if p.vendor == "anthropic" {
		payload = anthropicRequest{
			Model:     model,
			MaxTokens: 256,
			Messages:  []openAIMessage{{Role: "user", Content: prompt}},
		}
	} else {
		payload = openAIRequest{
			Model:    model,
			Messages: []openAIMessage{{Role: "user", Content: prompt}},
		}
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("llm: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("llm: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.vendor == "anthropic" {
		req.Header.Set("x-api-key", p.apiKey)
		req.Header.Set("anthropic-version", "2023-06-01")
	} else {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	return req, nil
}

func (p *HTTPProvider) extractText(body io.Reader) (string, error) {
	dec := json.NewDecoder(body)
	if p.vendor == "anthropic" {
		var out anthropicResponse
		if err := dec.Decode(&out); err != nil {
			return "", fmt.Errorf("llm: decode anthropic response: %w", err)
		}
		if len(out.Content) == 0 {
			return "", fmt.Errorf("llm: empty anthropic response")
		}
		return out.Content[0].Text, nil
	}
	var out openAIResponse
	if err := dec.Decode(&out); err != nil {
		return "", fmt.Errorf("llm: decode openai response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("llm: empty openai response")
	}
	return out.Choices[0].Message.Content, nil
}

type verdictJSON struct {
	Sentiment  float64 `json:"sentiment"`
	Confidence float64 `json:"confidence"`
	Label      string  `json:"label"`
}

// parseVerdictJSON pulls the JSON object out of text (models sometimes
// wrap it in prose or code fences despite instruction) and maps it to a
// Verdict.
func parseVerdictJSON(text string) (Verdict, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return Verdict{}, fmt.Errorf("llm: no JSON object in response")
	}

	var v verdictJSON
	if err := json.Unmarshal([]byte(text[start:end+1]), &v); err != nil {
		return Verdict{}, fmt.Errorf("llm: parse verdict json: %w", err)
	}

	return Verdict{
		Present:    true,
		Sentiment:  v.Sentiment,
		Confidence: v.Confidence,
		Label:      v.Label,
	}, nil
}
