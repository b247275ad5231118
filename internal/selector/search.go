package selector

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/AmazyanAyoub/agent-scarper/pkg/types"
)

// SearchRanker supplies extra search-box candidates from an external model.
// A nil ranker or a ranker error leaves the heuristic results untouched.
type SearchRanker interface {
	RankSearchInputs(ctx context.Context, html string) ([]types.SearchCandidate, error)
}

var searchAttrRe = regexp.MustCompile(`(?i)search|query|keyword|product|term|lookup|find`)

// attributes inspected for search intent, in confidence order.
var intentAttrs = []string{"id", "name", "placeholder", "aria-label", "aria-labelledby", "data-testid", "data-test", "class"}

// DiscoverSearchInputs finds text inputs that look like site search boxes.
// Heuristic hits start at confidence 3 and gain a flat 2 when any inspected
// attribute matches a search-intent word. Ranker candidates are merged in,
// duplicates keep the higher confidence, and the result is sorted by
// confidence descending and capped at limit.
func DiscoverSearchInputs(ctx context.Context, html string, ranker SearchRanker, limit int) []types.SearchCandidate {
	if limit <= 0 {
		limit = 10
	}

	byCandidate := make(map[string]types.SearchCandidate)
	var order []string

	add := func(c types.SearchCandidate) {
		c.Selector = strings.TrimSpace(c.Selector)
		if c.Selector == "" {
			return
		}
		existing, ok := byCandidate[c.Selector]
		if !ok {
			byCandidate[c.Selector] = c
			order = append(order, c.Selector)
			return
		}
		if c.Confidence > existing.Confidence {
			byCandidate[c.Selector] = c
		}
	}

	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(html)); err == nil {
		doc.Find("input").Each(func(i int, s *goquery.Selection) {
			typ, _ := s.Attr("type")
			typ = strings.ToLower(strings.TrimSpace(typ))
			if typ != "search" && typ != "text" {
				return
			}

			confidence := 3
			var hits []string
			for _, attr := range intentAttrs {
				if val, ok := s.Attr(attr); ok && searchAttrRe.MatchString(val) {
					hits = append(hits, attr)
				}
			}
			if len(hits) > 0 {
				confidence += 2
			}

			add(types.SearchCandidate{
				Selector:   inputSelector(s, typ),
				Confidence: confidence,
				Reason:     reason(typ, hits),
			})
		})
	}

	if ranker != nil {
		if ranked, err := ranker.RankSearchInputs(ctx, html); err == nil {
			for _, c := range ranked {
				add(c)
			}
		}
	}

	out := make([]types.SearchCandidate, 0, len(order))
	for _, sel := range order {
		out = append(out, byCandidate[sel])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// inputSelector builds the most specific stable selector available for an
// input node.
func inputSelector(s *goquery.Selection, typ string) string {
	if id, ok := s.Attr("id"); ok && validClass(id) {
		return "#" + id
	}
	if name, ok := s.Attr("name"); ok && strings.TrimSpace(name) != "" {
		return fmt.Sprintf("input[name=%q]", name)
	}
	if ph, ok := s.Attr("placeholder"); ok && strings.TrimSpace(ph) != "" {
		return fmt.Sprintf("input[placeholder=%q]", ph)
	}
	return fmt.Sprintf("input[type=%q]", typ)
}

func reason(typ string, hits []string) string {
	if len(hits) == 0 {
		return "input type " + typ
	}
	return "input type " + typ + ", search terms in " + strings.Join(hits, ", ")
}
