package filter

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/amenzel91/catalyst-bot/internal/domain"
)

func baseItem() domain.ClassifiedItem {
	return domain.ClassifiedItem{
		NewsItem: domain.NewsItem{
			Source: "prnewswire",
			Title:  "Company announces FDA approval for new drug",
			Ticker: "ABCD",
		},
		Score:      0.5,
		Sentiment:  0.4,
		Categories: map[string]struct{}{"fda": {}},
	}
}

func defaultConfig() Config {
	return Config{MaxTickers: 1, MinScore: 0.3, MinSentAbs: 0.1}
}

func TestChainPassesCleanItem(t *testing.T) {
	d := Run(baseItem(), defaultConfig(), false, zerolog.Nop())
	assert.True(t, d.Pass)
}

func TestChainRejectsAlreadySeen(t *testing.T) {
	d := Run(baseItem(), defaultConfig(), true, zerolog.Nop())
	assert.False(t, d.Pass)
	assert.Equal(t, ReasonSeen, d.Reason)
}

func TestChainRejectsMultiTicker(t *testing.T) {
	item := baseItem()
	item.Title = "$ABCD and $EFGH both rally on sector news"
	d := Run(item, defaultConfig(), false, zerolog.Nop())
	assert.False(t, d.Pass)
	assert.Equal(t, ReasonMultiTicker, d.Reason)
}

func TestChainRejectsPresentationNoise(t *testing.T) {
	item := baseItem()
	item.Title = "Company to present at upcoming investor conference"
	d := Run(item, defaultConfig(), false, zerolog.Nop())
	assert.False(t, d.Pass)
	assert.Equal(t, ReasonPresentationNoise, d.Reason)
}

func TestChainRejectsCommentary(t *testing.T) {
	item := baseItem()
	item.Title = "Why ABCD is up today"
	d := Run(item, defaultConfig(), false, zerolog.Nop())
	assert.False(t, d.Pass)
	assert.Equal(t, ReasonCommentary, d.Reason)
}

func TestChainRejectsSourceBlocklist(t *testing.T) {
	cfg := defaultConfig()
	cfg.SourceBlocklist = map[string]struct{}{"prnewswire": {}}
	d := Run(baseItem(), cfg, false, zerolog.Nop())
	assert.False(t, d.Pass)
	assert.Equal(t, ReasonSourceBlocklist, d.Reason)
}

func TestChainRejectsNoTicker(t *testing.T) {
	item := baseItem()
	item.Ticker = ""
	d := Run(item, defaultConfig(), false, zerolog.Nop())
	assert.False(t, d.Pass)
	assert.Equal(t, ReasonNoTicker, d.Reason)
}

func TestChainRejectsOTCTicker(t *testing.T) {
	item := baseItem()
	item.Ticker = "ABCD.PK"
	d := Run(item, defaultConfig(), false, zerolog.Nop())
	assert.False(t, d.Pass)
	assert.Equal(t, ReasonOTCTicker, d.Reason)
}

func TestChainRejectsInstrumentLike(t *testing.T) {
	item := baseItem()
	item.Ticker = "ABCD-WT"
	d := Run(item, defaultConfig(), false, zerolog.Nop())
	assert.False(t, d.Pass)
	assert.Equal(t, ReasonInstrumentLike, d.Reason)
}

func TestChainRejectsPriceInvalidWhenCeilingConfigured(t *testing.T) {
	cfg := defaultConfig()
	ceiling := 20.0
	cfg.PriceCeiling = &ceiling
	item := baseItem()
	item.Price = nil
	d := Run(item, cfg, false, zerolog.Nop())
	assert.False(t, d.Pass)
	assert.Equal(t, ReasonPriceInvalid, d.Reason)
}

func TestChainRejectsOverPriceCeiling(t *testing.T) {
	cfg := defaultConfig()
	ceiling := 20.0
	cfg.PriceCeiling = &ceiling
	item := baseItem()
	item.Price = &domain.PriceSnapshot{Last: 25}
	d := Run(item, cfg, false, zerolog.Nop())
	assert.False(t, d.Pass)
	assert.Equal(t, ReasonPriceCeiling, d.Reason)
}

func TestChainRejectsUnderPriceFloor(t *testing.T) {
	cfg := defaultConfig()
	floor := 1.0
	cfg.PriceFloor = &floor
	item := baseItem()
	item.Price = &domain.PriceSnapshot{Last: 0.5}
	d := Run(item, cfg, false, zerolog.Nop())
	assert.False(t, d.Pass)
	assert.Equal(t, ReasonPriceFloor, d.Reason)
}

func TestChainSubFloorOverrideRescuesHighScore(t *testing.T) {
	cfg := defaultConfig()
	floor := 1.0
	cfg.PriceFloor = &floor
	cfg.SubFloorOverrideEnabled = true
	cfg.SubFloorOverrideThreshold = 0.4
	item := baseItem()
	item.Score = 0.9
	item.Price = &domain.PriceSnapshot{Last: 0.5}
	d := Run(item, cfg, false, zerolog.Nop())
	assert.True(t, d.Pass)
}

func TestChainRejectsMinScoreUnlessBypass(t *testing.T) {
	cfg := defaultConfig()
	item := baseItem()
	item.Score = 0.1

	d := Run(item, cfg, false, zerolog.Nop())
	assert.False(t, d.Pass)
	assert.Equal(t, ReasonMinScore, d.Reason)

	item.BypassMinScore = true
	d = Run(item, cfg, false, zerolog.Nop())
	assert.True(t, d.Pass)
}

func TestChainRejectsMinSentAbs(t *testing.T) {
	cfg := defaultConfig()
	cfg.MinSentAbs = 0.5
	item := baseItem()
	item.Sentiment = 0.1
	d := Run(item, cfg, false, zerolog.Nop())
	assert.False(t, d.Pass)
	assert.Equal(t, ReasonMinSentAbs, d.Reason)
}

func TestChainRejectsCategoryAllowWhenNoMatch(t *testing.T) {
	cfg := defaultConfig()
	cfg.CategoryAllow = map[string]struct{}{"merger": {}}
	d := Run(baseItem(), cfg, false, zerolog.Nop())
	assert.False(t, d.Pass)
	assert.Equal(t, ReasonCategoryAllow, d.Reason)
}

func TestChainPassesCategoryAllowOnMatch(t *testing.T) {
	cfg := defaultConfig()
	cfg.CategoryAllow = map[string]struct{}{"fda": {}}
	d := Run(baseItem(), cfg, false, zerolog.Nop())
	assert.True(t, d.Pass)
}

func TestRunStructuralPassesOnScoreFailureItem(t *testing.T) {
	item := baseItem()
	item.Score = 0 // would fail MIN_SCORE under Run, but that gate is not structural
	d := RunStructural(item, defaultConfig(), false, zerolog.Nop())
	assert.True(t, d.Pass)
}

func TestRunStructuralRejectsSeenBeforeAnyScoreGate(t *testing.T) {
	item := baseItem()
	item.Score = 0
	d := RunStructural(item, defaultConfig(), true, zerolog.Nop())
	assert.False(t, d.Pass)
	assert.Equal(t, ReasonSeen, d.Reason)
}

func TestRunStructuralStopsShortOfCategoryAllow(t *testing.T) {
	cfg := defaultConfig()
	cfg.CategoryAllow = map[string]struct{}{"merger": {}}
	d := RunStructural(baseItem(), cfg, false, zerolog.Nop())
	assert.True(t, d.Pass, "CATEGORY_ALLOW is score-dependent and must not run under RunStructural")
}

func TestChainStopsAtFirstFailure(t *testing.T) {
	item := baseItem()
	item.Ticker = ""
	item.Score = 0 // would also fail MIN_SCORE, but NO_TICKER comes first
	d := Run(item, defaultConfig(), false, zerolog.Nop())
	assert.Equal(t, ReasonNoTicker, d.Reason)
}
