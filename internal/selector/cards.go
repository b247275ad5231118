// Package selector discovers repeated card selectors and search inputs on a
// page, caching confirmed findings per domain.
package selector

import (
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/AmazyanAyoub/agent-scarper/pkg/types"
)

var priceRe = regexp.MustCompile(`(?i)([$€£¥]\s?\d[\d.,]*)|(\d[\d.,]*\s?(usd|eur|gbp|krw|jpy))`)

const sampleSize = 6

// CardOptions tunes cluster acceptance.
type CardOptions struct {
	MinSiblings int
	MaxMatches  int
	MaxClusters int
	TopK        int
}

func (o *CardOptions) normalise() {
	if o.MinSiblings <= 0 {
		o.MinSiblings = 3
	}
	if o.MaxMatches <= 0 {
		o.MaxMatches = 5000
	}
	if o.MaxClusters <= 0 {
		o.MaxClusters = 50
	}
	if o.TopK <= 0 {
		o.TopK = 3
	}
}

// DiscoverCards clusters elements by parent and class set, confirms each
// cluster's synthetic selector against the whole document, and returns the
// best-scoring candidates. Results are ordered by average score, ties broken
// by match count.
func DiscoverCards(htmlSrc string, opts CardOptions) []types.CardCandidate {
	opts.normalise()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlSrc))
	if err != nil {
		return nil
	}

	type cluster struct {
		selector string
		count    int
	}
	type clusterKey struct {
		parent   *html.Node
		tag      string
		classKey string
	}

	clusters := make(map[clusterKey]*cluster)
	doc.Find("[class]").Each(func(_ int, s *goquery.Selection) {
		node := s.Nodes[0]
		classes := classList(s)
		if len(classes) == 0 || node.Parent == nil {
			return
		}
		key := clusterKey{parent: node.Parent, tag: node.Data, classKey: strings.Join(classes, ".")}
		c, ok := clusters[key]
		if !ok {
			c = &cluster{selector: node.Data + "." + key.classKey}
			clusters[key] = c
		}
		c.count++
	})

	// Largest clusters first, and at most MaxClusters confirmed against the
	// document. Selector ties across parents collapse to one confirmation.
	ordered := make([]*cluster, 0, len(clusters))
	for _, c := range clusters {
		if c.count >= opts.MinSiblings {
			ordered = append(ordered, c)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].count != ordered[j].count {
			return ordered[i].count > ordered[j].count
		}
		return ordered[i].selector < ordered[j].selector
	})

	var candidates []types.CardCandidate
	confirmed := make(map[string]struct{})
	for _, c := range ordered {
		if len(confirmed) >= opts.MaxClusters {
			break
		}
		if _, done := confirmed[c.selector]; done {
			continue
		}
		confirmed[c.selector] = struct{}{}

		matcher, err := cascadia.Compile(c.selector)
		if err != nil {
			continue
		}
		matches := doc.FindMatcher(matcher)
		total := matches.Length()
		if total < opts.MinSiblings || total > opts.MaxMatches {
			continue
		}

		avg, sample := scoreMatches(matches)
		if avg <= 0 {
			continue
		}
		candidates = append(candidates, types.CardCandidate{
			Selector:   c.selector,
			MatchCount: total,
			AvgScore:   avg,
			SampleHTML: sample,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].AvgScore != candidates[j].AvgScore {
			return candidates[i].AvgScore > candidates[j].AvgScore
		}
		return candidates[i].MatchCount > candidates[j].MatchCount
	})
	if len(candidates) > opts.TopK {
		candidates = candidates[:opts.TopK]
	}
	return candidates
}

// scoreMatches rates a sample of matched nodes on card-like structure.
func scoreMatches(matches *goquery.Selection) (float64, string) {
	var total float64
	var sampled int
	var sample string

	matches.EachWithBreak(func(i int, s *goquery.Selection) bool {
		total += scoreNode(s)
		sampled++
		if i == 0 {
			if h, err := goquery.OuterHtml(s); err == nil {
				sample = h
			}
		}
		return sampled < sampleSize
	})
	if sampled == 0 {
		return 0, ""
	}
	return total / float64(sampled), sample
}

func scoreNode(s *goquery.Selection) float64 {
	var score float64
	if s.Find("img").Length() > 0 {
		score += 3
	}
	if s.Find("a[href]").Length() > 0 {
		score += 2
	}
	text := strings.Join(strings.Fields(s.Text()), " ")
	if priceRe.MatchString(text) {
		score += 4
	}
	if n := len(strings.Fields(text)); n >= 3 && n <= 80 {
		score++
	}
	return score
}

// classList returns the node's classes sorted, dropping tokens that would not
// survive a CSS query.
func classList(s *goquery.Selection) []string {
	raw, _ := s.Attr("class")
	fields := strings.Fields(raw)
	classes := fields[:0]
	for _, f := range fields {
		if validClass(f) {
			classes = append(classes, f)
		}
	}
	sort.Strings(classes)
	return classes
}

func validClass(c string) bool {
	for _, r := range c {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return c != ""
}
