package types

import "strings"

// FrontierEntry models a discovered link that has not been content-fetched yet.
// Entries are unique by normalised absolute URL.
type FrontierEntry struct {
	URL        string
	AnchorText string
	Score      float64
}

// CandidatePage is a fetched, boilerplate-stripped page awaiting relevance
// verification.
type CandidatePage struct {
	URL      string
	Text     string
	Score    float64
	Verified bool
}

// CrawlStatus reports how a crawl terminated.
type CrawlStatus string

const (
	StatusOK        CrawlStatus = "ok"
	StatusNoResults CrawlStatus = "no_results"
	StatusPartial   CrawlStatus = "partial"
)

// CrawlOutcome is what RunCrawl hands back to its caller. Diagnostics collect
// node-local failures that were swallowed so the crawl could continue.
type CrawlOutcome struct {
	Results     []CandidatePage
	Status      CrawlStatus
	Diagnostics []string
}

// Record is a normalised listing card pulled out of a result page.
type Record struct {
	Title    string            `json:"title,omitempty"`
	URL      string            `json:"url,omitempty"`
	Price    string            `json:"price,omitempty"`
	ImageURL string            `json:"image_url,omitempty"`
	Attrs    map[string]string `json:"attrs,omitempty"`
}

// Empty reports whether no field of the record carries a value.
func (r Record) Empty() bool {
	return r.Title == "" && r.URL == "" && r.Price == "" && r.ImageURL == "" && len(r.Attrs) == 0
}

// FieldMapping holds per-field selectors relative to a card root.
// Each value may be a comma-joined list of alternatives; the first selector
// that matches wins.
type FieldMapping struct {
	Title string `json:"title,omitempty" yaml:"title,omitempty"`
	Price string `json:"price,omitempty" yaml:"price,omitempty"`
	Image string `json:"image,omitempty" yaml:"image,omitempty"`
	Link  string `json:"link,omitempty" yaml:"link,omitempty"`
}

// IsZero reports whether no field selector is set.
func (m FieldMapping) IsZero() bool {
	return m.Title == "" && m.Price == "" && m.Image == "" && m.Link == ""
}

// Alternatives splits a comma-joined selector value into trimmed parts.
func Alternatives(selectors string) []string {
	if selectors == "" {
		return nil
	}
	parts := strings.Split(selectors, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// CardCandidate is a structurally clustered repeating-element selector with
// its confirmation count and sample scoring.
type CardCandidate struct {
	Selector   string
	MatchCount int
	AvgScore   float64
	SampleHTML string
}

// SearchCandidate is a ranked search-input selector.
type SearchCandidate struct {
	Selector   string
	Confidence int
	Reason     string
}

// SearchCondition is one constraint parsed from the user instruction.
// ApplyVia is either "keyword" (folded into the search query) or "filter"
// (applied on the result page).
type SearchCondition struct {
	Name     string
	Value    string
	ApplyVia string
}

// SearchIntent is the parsed search goal for an instruction.
type SearchIntent struct {
	Keyword    string
	Conditions []SearchCondition
}
