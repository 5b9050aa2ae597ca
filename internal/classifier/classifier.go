package classifier

import (
	"github.com/amenzel91/catalyst-bot/internal/domain"
)

// SectorMultipliers maps a sector name to a post-hoc score multiplier,
// applied only when enabled (spec.md §4.F: feature-flagged).
type SectorMultipliers map[string]float64

// Classifier combines the keyword scorer and sentiment aggregator into
// the ClassifiedItem envelope.
type Classifier struct {
	keywords  *KeywordScorer
	sectors   SectorMultipliers
	sectorsOn bool
}

// New builds a Classifier. Pass nil catalog for DefaultCatalog; pass nil
// sectors (or sectorsOn=false) to disable the sector multiplier stage.
func New(catalog map[string]float64, sectors SectorMultipliers, sectorsOn bool) *Classifier {
	return &Classifier{
		keywords:  NewKeywordScorer(catalog),
		sectors:   sectors,
		sectorsOn: sectorsOn,
	}
}

// Classify scores item's text against the keyword catalog, aggregates
// the given sentiment sources, and applies the optional sector
// multiplier, returning a fully populated ClassifiedItem.
func (c *Classifier) Classify(item domain.NewsItem, text, sector string, sources []SourceContribution) domain.ClassifiedItem {
	kw := c.keywords.Score(text)
	sentiment := Aggregate(sources)

	score := kw.Score
	if c.sectorsOn {
		if mult, ok := c.sectors[sector]; ok {
			score *= mult
			if score > 1 {
				score = 1
			}
			if score < 0 {
				score = 0
			}
		}
	}

	bypass := kw.BypassMinScore || sentiment.BypassMinScore

	if item.Annotations == nil {
		item.Annotations = domain.NewAnnotations()
	}
	item.Annotations["sentiment_breakdown"] = sentiment.Breakdown
	item.Annotations["keywords_hit"] = kw.KeywordsHit

	return domain.ClassifiedItem{
		NewsItem:           item,
		Score:              score,
		Sentiment:          sentiment.Sentiment,
		Confidence:         sentiment.Confidence,
		KeywordsHit:        kw.KeywordsHit,
		SentimentBreakdown: sentiment.Breakdown,
		Categories:         categoriesOf(kw.KeywordsHit),
		BypassMinScore:     bypass,
	}
}

func categoriesOf(hit map[string]float64) map[string]struct{} {
	cats := make(map[string]struct{}, len(hit))
	for tag := range hit {
		cats[tag] = struct{}{}
	}
	return cats
}
