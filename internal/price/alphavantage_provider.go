package price

import (
	"context"

	"github.com/amenzel91/catalyst-bot/internal/clients/alphavantage"
	"github.com/amenzel91/catalyst-bot/internal/domain"
)

// AlphaVantageProvider adapts alphavantage.Client (single-symbol
// GLOBAL_QUOTE) to the Provider interface by issuing one request per
// ticker; its free-tier daily limit makes it a fallback provider rather
// than the primary batch source.
type AlphaVantageProvider struct {
	client *alphavantage.Client
}

// NewAlphaVantageProvider wraps client as a Provider.
func NewAlphaVantageProvider(client *alphavantage.Client) *AlphaVantageProvider {
	return &AlphaVantageProvider{client: client}
}

func (p *AlphaVantageProvider) Name() string { return "alphavantage" }

func (p *AlphaVantageProvider) Batch(ctx context.Context, tickers []string) (map[string]domain.PriceSnapshot, error) {
	out := make(map[string]domain.PriceSnapshot, len(tickers))
	for _, t := range tickers {
		quote, err := p.client.GetGlobalQuote(ctx, t)
		if err != nil {
			continue
		}
		out[t] = domain.PriceSnapshot{
			Ticker:    t,
			Last:      quote.Price,
			PrevClose: quote.PreviousClose,
			ChangePct: quote.ChangePercent,
			AsOf:      quote.LatestTradeDate.UTC(),
			Provider:  p.Name(),
		}
	}
	return out, nil
}
