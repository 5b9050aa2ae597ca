package feeds

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUniverse struct{ symbols []string }

func (u fakeUniverse) Symbols(ctx context.Context) ([]string, error) { return u.symbols, nil }

type fakeHistory struct{ bars map[string]Bars }

func (h fakeHistory) Bars(ctx context.Context, ticker string) (Bars, error) {
	return h.bars[ticker], nil
}

func flatCloses(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestScannerTriggersOnVolumeSurge(t *testing.T) {
	closes := flatCloses(20, 5.0)
	volumes := flatCloses(19, 1000)
	volumes = append(volumes, 10000) // 10x the trailing average

	universe := fakeUniverse{symbols: []string{"ABCD"}}
	history := fakeHistory{bars: map[string]Bars{"ABCD": {Closes: closes, Volumes: volumes}}}

	ing := NewPriceVolumeScanner("scanner", universe, history, DefaultScannerConfig(), zerolog.Nop())
	items, _, diag := ing.Fetch(context.Background(), time.Time{})
	require.NoError(t, diag.Err)
	require.Len(t, items, 1)
	assert.Equal(t, "ABCD", items[0].Ticker)
	assert.Contains(t, items[0].Provenance["trigger"], "volume surge")
}

func TestScannerSkipsQuietTickers(t *testing.T) {
	closes := flatCloses(20, 5.0)
	volumes := flatCloses(20, 1000)

	universe := fakeUniverse{symbols: []string{"ABCD"}}
	history := fakeHistory{bars: map[string]Bars{"ABCD": {Closes: closes, Volumes: volumes}}}

	ing := NewPriceVolumeScanner("scanner", universe, history, DefaultScannerConfig(), zerolog.Nop())
	items, _, diag := ing.Fetch(context.Background(), time.Time{})
	require.NoError(t, diag.Err)
	assert.Empty(t, items)
}

func TestScannerSkipsTickersWithInsufficientHistory(t *testing.T) {
	universe := fakeUniverse{symbols: []string{"ABCD"}}
	history := fakeHistory{bars: map[string]Bars{"ABCD": {Closes: []float64{1, 2, 3}, Volumes: []float64{100, 100, 100}}}}

	ing := NewPriceVolumeScanner("scanner", universe, history, DefaultScannerConfig(), zerolog.Nop())
	items, _, diag := ing.Fetch(context.Background(), time.Time{})
	require.NoError(t, diag.Err)
	assert.Empty(t, items)
}
