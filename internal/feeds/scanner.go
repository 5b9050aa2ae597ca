package feeds

import (
	"context"
	"fmt"
	"time"

	talib "github.com/markcheno/go-talib"
	"github.com/rs/zerolog"

	"github.com/amenzel91/catalyst-bot/internal/domain"
)

// Bars is the recent price/volume history a Universe member provides to
// the scanner, oldest first.
type Bars struct {
	Closes  []float64
	Volumes []float64
}

// Universe enumerates the candidate tickers a cycle should screen.
type Universe interface {
	Symbols(ctx context.Context) ([]string, error)
}

// HistoryProvider returns recent bars for one ticker.
type HistoryProvider interface {
	Bars(ctx context.Context, ticker string) (Bars, error)
}

// ScannerConfig tunes the price/volume screen's trigger thresholds.
type ScannerConfig struct {
	RSIPeriod           int
	RSIOversold         float64
	RSIOverbought       float64
	MomentumPeriod      int
	VolumeSurgeMultiple float64 // current bar vs trailing average
}

// DefaultScannerConfig mirrors common technical-screen defaults (14-period
// RSI, 10-period momentum, 3x average-volume surge).
func DefaultScannerConfig() ScannerConfig {
	return ScannerConfig{
		RSIPeriod:           14,
		RSIOversold:         30,
		RSIOverbought:       70,
		MomentumPeriod:      10,
		VolumeSurgeMultiple: 3.0,
	}
}

// NewPriceVolumeScanner builds the optional candidate ingestor spec.md
// §4.C mentions: a scanner that finds candidates by price/volume screen,
// using the teacher's technical-analysis dependency (go-talib) rather
// than a news wire. Matches become synthetic NewsItems the classifier and
// filter chain treat like any other item; Ticker is already known (the
// scanner discovered it, rather than 4.D having to extract it) so it's
// set directly instead of left for the resolver.
func NewPriceVolumeScanner(name string, universe Universe, history HistoryProvider, cfg ScannerConfig, log zerolog.Logger) Ingestor {
	slog := log.With().Str("feed", name).Logger()
	return Ingestor{
		Name:         name,
		CadenceFloor: 0,
		Fetch: func(ctx context.Context, since time.Time) ([]domain.NewsItem, time.Time, Diagnostics) {
			symbols, err := universe.Symbols(ctx)
			if err != nil {
				slog.Warn().Err(err).Msg("universe lookup failed")
				return nil, since, Diagnostics{Err: err}
			}

			now := time.Now().UTC()
			var items []domain.NewsItem
			for _, ticker := range symbols {
				bars, err := history.Bars(ctx, ticker)
				if err != nil {
					slog.Debug().Err(err).Str("ticker", ticker).Msg("bars lookup failed, skipping")
					continue
				}
				reason, triggered := evaluateBars(bars, cfg)
				if !triggered {
					continue
				}
				items = append(items, domain.NewsItem{
					Source:      name,
					SourceID:    fmt.Sprintf("%s:%d", ticker, now.Unix()),
					PublishedAt: now,
					Ticker:      ticker,
					Title:       fmt.Sprintf("%s: %s", ticker, reason),
					Provenance:  map[string]string{"adapter": "price_volume_scanner", "trigger": reason},
				})
			}
			return items, now, Diagnostics{}
		},
	}
}

// evaluateBars applies the RSI/momentum/volume-surge rules and reports
// the first triggering condition, if any.
func evaluateBars(bars Bars, cfg ScannerConfig) (string, bool) {
	if len(bars.Closes) >= cfg.RSIPeriod+1 {
		rsi := talib.Rsi(bars.Closes, cfg.RSIPeriod)
		if last := lastFinite(rsi); last > 0 {
			switch {
			case last <= cfg.RSIOversold:
				return "RSI oversold reversal screen", true
			case last >= cfg.RSIOverbought:
				return "RSI overbought screen", true
			}
		}
	}

	if len(bars.Closes) >= cfg.MomentumPeriod+1 {
		mom := talib.Mom(bars.Closes, cfg.MomentumPeriod)
		if last := lastFinite(mom); last > 0 {
			return "momentum breakout screen", true
		}
	}

	if n := len(bars.Volumes); n >= 2 {
		avg := trailingAverage(bars.Volumes[:n-1])
		if avg > 0 && bars.Volumes[n-1] >= avg*cfg.VolumeSurgeMultiple {
			return "volume surge screen", true
		}
	}

	return "", false
}

func lastFinite(series []float64) float64 {
	for i := len(series) - 1; i >= 0; i-- {
		v := series[i]
		if v == v { // not NaN
			return v
		}
	}
	return 0
}

func trailingAverage(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
