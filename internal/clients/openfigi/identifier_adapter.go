package openfigi

import (
	"context"
	"fmt"
)

// ResolveIdentifier maps a filer identifier (treated as an ISIN) to its
// primary ticker, satisfying internal/ticker.IdentifierMapper. ctx is
// accepted for interface compatibility; the underlying client does not
// yet support cancellation.
func (c *Client) ResolveIdentifier(ctx context.Context, identifier string) (string, error) {
	results, err := c.LookupISIN(identifier)
	if err != nil {
		return "", fmt.Errorf("openfigi: resolve %s: %w", identifier, err)
	}
	if len(results) == 0 {
		return "", fmt.Errorf("openfigi: no mapping for %s", identifier)
	}
	return results[0].Ticker, nil
}
