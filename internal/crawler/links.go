package crawler

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/AmazyanAyoub/agent-scarper/pkg/types"
)

// extractLinks pulls anchors out of a page, resolved later by the frontier
// filter. Duplicate hrefs are dropped keeping the first occurrence.
func extractLinks(html string, maxLinks int) []types.FrontierEntry {
	if strings.TrimSpace(html) == "" {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	if maxLinks <= 0 {
		maxLinks = 200
	}

	seen := make(map[string]struct{})
	links := make([]types.FrontierEntry, 0, maxLinks)

	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, ok := s.Attr("href")
		if !ok {
			return true
		}
		href = strings.TrimSpace(href)
		if href == "" {
			return true
		}
		if _, exists := seen[href]; exists {
			return true
		}
		seen[href] = struct{}{}
		links = append(links, types.FrontierEntry{
			URL:        href,
			AnchorText: strings.TrimSpace(s.Text()),
		})
		return len(links) < maxLinks
	})

	return links
}
