package llm

import "context"

// NoopProvider always returns an absent Verdict, used when no LLM
// provider is configured (spec.md §4.G: the LLM stage is optional).
type NoopProvider struct{}

func (NoopProvider) Complete(ctx context.Context, tier Tier, prompt string) (Verdict, error) {
	return Verdict{}, nil
}

// NewProvider selects a Provider by vendor name. An empty or "none"
// vendor returns NoopProvider rather than erroring, so the router can
// always be constructed regardless of configuration.
func NewProvider(vendor, apiKey string) Provider {
	switch vendor {
	case "openai", "anthropic":
		return NewHTTPProvider(vendor, apiKey, nil)
	default:
		return NoopProvider{}
	}
}
