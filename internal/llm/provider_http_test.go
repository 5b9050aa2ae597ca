package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVerdictJSONExtractsObjectFromProse(t *testing.T) {
	text := `Sure, here is the analysis: {"sentiment": -0.4, "confidence": 0.8, "label": "bearish"} Hope that helps.`

	v, err := parseVerdictJSON(text)

	require.NoError(t, err)
	assert.True(t, v.Present)
	assert.Equal(t, -0.4, v.Sentiment)
	assert.Equal(t, 0.8, v.Confidence)
	assert.Equal(t, "bearish", v.Label)
}

func TestParseVerdictJSONErrorsWithoutObject(t *testing.T) {
	_, err := parseVerdictJSON("no json here")
	assert.Error(t, err)
}

func TestNewProviderFallsBackToNoop(t *testing.T) {
	p := NewProvider("none", "")
	_, ok := p.(NoopProvider)
	assert.True(t, ok)
}

func TestNewProviderBuildsHTTPProviderForKnownVendors(t *testing.T) {
	p := NewProvider("openai", "key")
	_, ok := p.(*HTTPProvider)
	assert.True(t, ok)
}
