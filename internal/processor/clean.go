// Package processor strips boilerplate from rendered HTML, leaving the text
// a relevance verifier should judge.
package processor

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// junkSelectors are removed outright before any content search.
const junkSelectors = "script,style,noscript,header,footer,nav,aside,form,iframe"

// Cleaner extracts the main readable content of a page.
type Cleaner struct {
	minLength int
}

// NewCleaner builds a cleaner. Pages whose extracted text falls under
// minLength characters are treated as junk and yield an empty string.
func NewCleaner(minLength int) *Cleaner {
	if minLength <= 0 {
		minLength = 300
	}
	return &Cleaner{minLength: minLength}
}

// ExtractMainText prefers <main> or <article>, falls back to the densest
// <div>, then to the whole document. Whitespace is collapsed to single
// spaces.
func (c *Cleaner) ExtractMainText(rawHTML string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}

	doc.Find(junkSelectors).Remove()

	if main := doc.Find("main,article").First(); main.Length() > 0 {
		text := collapseWhitespace(selectionText(main))
		if len(text) > c.minLength {
			return text
		}
	}

	var best string
	doc.Find("div").Each(func(_ int, s *goquery.Selection) {
		t := selectionText(s)
		if len(t) > len(best) {
			best = t
		}
	})
	if best == "" {
		best = selectionText(doc.Selection)
	}

	text := collapseWhitespace(best)
	if len(text) < c.minLength {
		return ""
	}
	return text
}

// selectionText walks the underlying nodes so that text fragments are joined
// with spaces rather than run together across element boundaries.
func selectionText(s *goquery.Selection) string {
	var b strings.Builder
	for _, node := range s.Nodes {
		appendText(node, &b)
	}
	return b.String()
}

func appendText(n *html.Node, b *strings.Builder) {
	if n.Type == html.TextNode {
		trimmed := strings.TrimSpace(n.Data)
		if trimmed != "" {
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(trimmed)
		}
		return
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		appendText(child, b)
	}
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
