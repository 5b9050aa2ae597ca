// Package alert builds chat-platform embeds from classified items and
// dispatches them over a webhook (spec.md §4.I).
package alert

import (
	"fmt"
	"path/filepath"

	"github.com/amenzel91/catalyst-bot/internal/domain"
)

// Attachment describes one file to upload alongside an embed. Filename
// must match the `attachment://<filename>` URI referenced from the
// embed, and Path MUST be absolute -- a relative path here means some
// upstream cache returned a path it should have resolved itself.
type Attachment struct {
	ID          int
	Filename    string
	Path        string
	Description string
}

// Embed is the platform-agnostic message body the dispatcher serializes.
type Embed struct {
	Title       string
	Description string
	Fields      []EmbedField
	ImageRef    string // "attachment://<filename>" when a chart is attached
}

type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// Artifact is a fully built alert ready for dispatch: the embed plus its
// attachments array, which the outgoing payload's JSON part includes
// whenever at least one file is attached and omits when there are none
// (see payload in dispatcher.go).
type Artifact struct {
	Ticker      string
	Embed       Embed
	Attachments []Attachment
}

// ChartProvider supplies the absolute path to a rendered chart image for
// a ticker, or ("", false) when no chart is available.
type ChartProvider interface {
	ChartPath(ticker string) (string, bool)
}

// GaugeProvider supplies the absolute path to a rendered sentiment-gauge
// image, or ("", false) when gauges are disabled or unavailable.
type GaugeProvider interface {
	GaugePath(ticker string, sentiment float64) (string, bool)
}

// Builder composes Artifacts from ClassifiedItems.
type Builder struct {
	charts ChartProvider
	gauges GaugeProvider
}

func NewBuilder(charts ChartProvider, gauges GaugeProvider) *Builder {
	return &Builder{charts: charts, gauges: gauges}
}

// Build assembles the embed and attachments array for item. Attachment
// paths are resolved to absolute before being placed in the artifact,
// so a relative path from either provider never reaches the dispatcher
// as-is.
func (b *Builder) Build(item domain.ClassifiedItem) (Artifact, error) {
	embed := Embed{
		Title: fmt.Sprintf("%s: %s", item.Ticker, item.Title),
		Fields: []EmbedField{
			{Name: "Score", Value: fmt.Sprintf("%.2f", item.Score), Inline: true},
			{Name: "Sentiment", Value: fmt.Sprintf("%.2f", item.Sentiment), Inline: true},
			{Name: "Source", Value: item.Source, Inline: true},
			{Name: "Link", Value: item.URL},
		},
	}
	if len(item.KeywordsHit) > 0 {
		embed.Fields = append(embed.Fields, EmbedField{Name: "Tags", Value: tagList(item.KeywordsHit)})
	}
	embed.Description = priceLine(item.Price)

	var attachments []Attachment
	nextID := 0

	if b.charts != nil {
		if path, ok := b.charts.ChartPath(item.Ticker); ok {
			abs, err := toAbsolute(path)
			if err != nil {
				return Artifact{}, fmt.Errorf("alert: chart path for %s: %w", item.Ticker, err)
			}
			filename := filepath.Base(abs)
			attachments = append(attachments, Attachment{ID: nextID, Filename: filename, Path: abs, Description: "Chart"})
			embed.ImageRef = "attachment://" + filename
			nextID++
		}
	}

	if b.gauges != nil {
		if path, ok := b.gauges.GaugePath(item.Ticker, item.Sentiment); ok {
			abs, err := toAbsolute(path)
			if err != nil {
				return Artifact{}, fmt.Errorf("alert: gauge path for %s: %w", item.Ticker, err)
			}
			filename := filepath.Base(abs)
			attachments = append(attachments, Attachment{ID: nextID, Filename: filename, Path: abs, Description: "Sentiment Gauge"})
			nextID++
		}
	}

	return Artifact{Ticker: item.Ticker, Embed: embed, Attachments: attachments}, nil
}

func toAbsolute(path string) (string, error) {
	if filepath.IsAbs(path) {
		return path, nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return abs, nil
}

func priceLine(p *domain.PriceSnapshot) string {
	if p == nil || p.Missing {
		return "price: unavailable"
	}
	return fmt.Sprintf("last %.4f (%.2f%%)", p.Last, p.ChangePct*100)
}

func tagList(hit map[string]float64) string {
	out := ""
	for tag := range hit {
		if out != "" {
			out += ", "
		}
		out += tag
	}
	return out
}
