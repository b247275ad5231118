package selector

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/AmazyanAyoub/agent-scarper/pkg/types"
)

// MappingRanker maps card fields from a sample card's HTML using an external
// model. A nil ranker or an error falls back to HeuristicMapping.
type MappingRanker interface {
	MapFields(ctx context.Context, sampleHTML string) (types.FieldMapping, error)
}

// ResolveMapping asks the ranker first and falls back to structural
// heuristics on error or an unusable answer.
func ResolveMapping(ctx context.Context, ranker MappingRanker, sampleHTML string) types.FieldMapping {
	if ranker != nil {
		if m, err := ranker.MapFields(ctx, sampleHTML); err == nil && !m.IsZero() {
			return m
		}
	}
	return HeuristicMapping(sampleHTML)
}

// HeuristicMapping derives a field mapping from one sample card. Each field
// keeps alternatives so stale first choices degrade instead of failing.
func HeuristicMapping(sampleHTML string) types.FieldMapping {
	mapping := types.FieldMapping{
		Title: "h1, h2, h3, h4, [class*='title'], a",
		Price: "[class*='price'], [data-price]",
		Image: "img",
		Link:  "a",
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(sampleHTML))
	if err != nil {
		return mapping
	}

	for _, heading := range []string{"h1", "h2", "h3", "h4"} {
		if doc.Find(heading).Length() > 0 {
			mapping.Title = heading + ", [class*='title'], a"
			break
		}
	}
	if doc.Find("[class*='price']").Length() == 0 && priceRe.MatchString(doc.Text()) {
		// Price text exists but carries no price class; fall back to spans.
		mapping.Price = "[class*='price'], [data-price], span"
	}
	return mapping
}
