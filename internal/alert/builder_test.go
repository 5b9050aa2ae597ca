package alert

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amenzel91/catalyst-bot/internal/domain"
)

type fakeCharts struct {
	path string
	ok   bool
}

func (f fakeCharts) ChartPath(ticker string) (string, bool) { return f.path, f.ok }

type fakeGauges struct {
	path string
	ok   bool
}

func (f fakeGauges) GaugePath(ticker string, sentiment float64) (string, bool) { return f.path, f.ok }

func TestBuildWithNoAttachmentsProvidersLeavesAttachmentsEmpty(t *testing.T) {
	b := NewBuilder(nil, nil)
	item := domain.ClassifiedItem{NewsItem: domain.NewsItem{Ticker: "ABCD", Title: "FDA approval"}, Score: 0.7}

	artifact, err := b.Build(item)
	require.NoError(t, err)
	assert.Empty(t, artifact.Attachments)
	assert.Empty(t, artifact.Embed.ImageRef)
}

func TestBuildResolvesRelativeChartPathToAbsolute(t *testing.T) {
	b := NewBuilder(fakeCharts{path: "charts/abcd.png", ok: true}, nil)
	item := domain.ClassifiedItem{NewsItem: domain.NewsItem{Ticker: "ABCD"}, Score: 0.7}

	artifact, err := b.Build(item)
	require.NoError(t, err)
	require.Len(t, artifact.Attachments, 1)
	assert.True(t, filepath.IsAbs(artifact.Attachments[0].Path))
	assert.Equal(t, "attachment://abcd.png", artifact.Embed.ImageRef)
}

func TestBuildIncludesBothChartAndGaugeWithDistinctIDs(t *testing.T) {
	b := NewBuilder(
		fakeCharts{path: "/abs/chart.png", ok: true},
		fakeGauges{path: "/abs/gauge.png", ok: true},
	)
	item := domain.ClassifiedItem{NewsItem: domain.NewsItem{Ticker: "ABCD"}, Score: 0.7}

	artifact, err := b.Build(item)
	require.NoError(t, err)
	require.Len(t, artifact.Attachments, 2)
	assert.NotEqual(t, artifact.Attachments[0].ID, artifact.Attachments[1].ID)
}

func TestBuildSetsMissingPriceLineWhenPriceAbsent(t *testing.T) {
	b := NewBuilder(nil, nil)
	item := domain.ClassifiedItem{NewsItem: domain.NewsItem{Ticker: "ABCD"}}

	artifact, err := b.Build(item)
	require.NoError(t, err)
	assert.Contains(t, artifact.Embed.Description, "unavailable")
}

func TestBuildSetsPriceLineWhenPricePresent(t *testing.T) {
	b := NewBuilder(nil, nil)
	item := domain.ClassifiedItem{
		NewsItem: domain.NewsItem{Ticker: "ABCD"},
		Price:    &domain.PriceSnapshot{Last: 12.5, ChangePct: 0.05},
	}

	artifact, err := b.Build(item)
	require.NoError(t, err)
	assert.Contains(t, artifact.Embed.Description, "12.5")
}
