// Package extract turns repeated card elements into structured records.
package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/AmazyanAyoub/agent-scarper/pkg/types"
)

// imageAttrs is the lookup order for lazy-loaded image sources. Real src
// comes last because lazy loaders leave placeholders there.
var imageAttrs = []string{"data-src", "data-image-src", "data-original", "data-lazy-src", "srcset", "src"}

// Records extracts one record per card matched by cardSelector, applying the
// field mapping inside each card. Cards with neither a link nor a title are
// dropped, and duplicates (same link, or same title when the link is empty)
// keep only the first occurrence. A limit <= 0 means no cap.
func Records(html, cardSelector string, mapping types.FieldMapping, baseURL string, limit int) []types.Record {
	if strings.TrimSpace(html) == "" || strings.TrimSpace(cardSelector) == "" {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	base, _ := url.Parse(baseURL)

	seen := make(map[string]struct{})
	var records []types.Record

	doc.Find(cardSelector).EachWithBreak(func(_ int, card *goquery.Selection) bool {
		rec := fromCard(card, mapping, base)
		if rec.Empty() {
			return true
		}
		key := rec.URL
		if key == "" {
			key = strings.ToLower(rec.Title)
		}
		if _, dup := seen[key]; dup {
			return true
		}
		seen[key] = struct{}{}
		records = append(records, rec)
		return limit <= 0 || len(records) < limit
	})

	return records
}

func fromCard(card *goquery.Selection, mapping types.FieldMapping, base *url.URL) types.Record {
	rec := types.Record{}

	if sel := firstMatch(card, mapping.Title); sel != nil {
		rec.Title = collapse(sel.First().Text())
	}
	if sel := firstMatch(card, mapping.Price); sel != nil {
		rec.Price = collapse(sel.First().Text())
	}
	if sel := firstMatch(card, mapping.Link); sel != nil {
		if href, ok := sel.First().Attr("href"); ok {
			rec.URL = absolute(base, href)
		}
	}
	if sel := firstMatch(card, mapping.Image); sel != nil {
		rec.ImageURL = absolute(base, imageSource(sel.First()))
	}
	return rec
}

// firstMatch tries each comma-separated selector alternative in order and
// returns the first non-empty match.
func firstMatch(card *goquery.Selection, selectors string) *goquery.Selection {
	for _, alt := range types.Alternatives(selectors) {
		if found := card.Find(alt); found.Length() > 0 {
			return found
		}
	}
	return nil
}

// imageSource resolves the displayed image URL across common lazy-load
// attribute conventions. srcset values keep only the first URL token.
func imageSource(img *goquery.Selection) string {
	for _, attr := range imageAttrs {
		val, ok := img.Attr(attr)
		if !ok {
			continue
		}
		val = strings.TrimSpace(val)
		if val == "" {
			continue
		}
		if attr == "srcset" {
			fields := strings.Fields(strings.Split(val, ",")[0])
			if len(fields) == 0 {
				continue
			}
			val = fields[0]
		}
		return val
	}
	return ""
}

func absolute(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || base == nil {
		return href
	}
	resolved, err := base.Parse(href)
	if err != nil {
		return href
	}
	return resolved.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
