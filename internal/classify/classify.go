// Package classify decides what kind of site a URL points at, remembering
// past labels as few-shot examples for the external classifier.
package classify

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// SiteType is the fixed classification vocabulary.
type SiteType string

const (
	SiteTypeEcommerce         SiteType = "ecommerce"
	SiteTypeBlog              SiteType = "blog"
	SiteTypeNewsPortal        SiteType = "news_portal"
	SiteTypeWiki              SiteType = "wiki"
	SiteTypeForum             SiteType = "forum"
	SiteTypeCorporate         SiteType = "corporate"
	SiteTypeDirectory         SiteType = "directory"
	SiteTypeGovernment        SiteType = "government"
	SiteTypeEducation         SiteType = "education"
	SiteTypeDeveloperPlatform SiteType = "developer_platform"
	SiteTypeSocialMedia       SiteType = "social_media"
	SiteTypeSaaSTool          SiteType = "saas_tool"
	SiteTypePortfolio         SiteType = "portfolio_personal"
	SiteTypeUnknown           SiteType = "unknown"
)

var knownTypes = map[SiteType]struct{}{
	SiteTypeEcommerce: {}, SiteTypeBlog: {}, SiteTypeNewsPortal: {}, SiteTypeWiki: {},
	SiteTypeForum: {}, SiteTypeCorporate: {}, SiteTypeDirectory: {}, SiteTypeGovernment: {},
	SiteTypeEducation: {}, SiteTypeDeveloperPlatform: {}, SiteTypeSocialMedia: {},
	SiteTypeSaaSTool: {}, SiteTypePortfolio: {},
}

// ParseSiteType normalises free-form classifier output into the vocabulary,
// mapping anything unrecognised to SiteTypeUnknown.
func ParseSiteType(raw string) SiteType {
	t := SiteType(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := knownTypes[t]; ok {
		return t
	}
	return SiteTypeUnknown
}

// Classifier is the external model call. It receives the page snippet and
// balanced examples from the label memory.
type Classifier interface {
	Classify(ctx context.Context, url, snippet string, examples []Example) (SiteType, error)
}

// SnippetFetcher downloads raw HTML for the classification snippet.
// *fetcher.HTTPFetcher satisfies it.
type SnippetFetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

// Service classifies sites, consulting the label memory before the model and
// recording fresh labels afterwards.
type Service struct {
	fetcher      SnippetFetcher
	classifier   Classifier
	memory       *Memory
	snippetBytes int
	timeout      time.Duration
	logger       *slog.Logger
}

// NewService wires the classification path. A nil classifier makes every
// lookup miss resolve to SiteTypeUnknown. The classifier carries no deadline
// of its own, so timeout bounds each call; zero disables the bound.
func NewService(fetcher SnippetFetcher, classifier Classifier, memory *Memory, snippetBytes int, timeout time.Duration, logger *slog.Logger) *Service {
	if snippetBytes <= 0 {
		snippetBytes = 1000
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		fetcher:      fetcher,
		classifier:   classifier,
		memory:       memory,
		snippetBytes: snippetBytes,
		timeout:      timeout,
		logger:       logger,
	}
}

// ClassifySite returns the remembered label for the URL, or asks the
// classifier with a fresh page snippet. Any failure degrades to
// SiteTypeUnknown so the caller can fall back to the generic flow.
func (s *Service) ClassifySite(ctx context.Context, url string) SiteType {
	if s.memory != nil {
		if label, ok := s.memory.Lookup(url); ok {
			return label
		}
	}
	if s.classifier == nil {
		return SiteTypeUnknown
	}

	var snippet string
	if s.fetcher != nil {
		html, err := s.fetcher.Fetch(ctx, url)
		if err != nil {
			s.logger.Warn("classification snapshot failed", "url", url, "error", err)
		} else {
			snippet = s.snippet(html)
		}
	}

	var examples []Example
	if s.memory != nil {
		examples = s.memory.SelectExamples()
	}

	cctx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	label, err := s.classifier.Classify(cctx, url, snippet, examples)
	if err != nil {
		s.logger.Warn("classification failed", "url", url, "error", err)
		return SiteTypeUnknown
	}
	label = ParseSiteType(string(label))
	if label == SiteTypeUnknown {
		return label
	}

	if s.memory != nil {
		if err := s.memory.Save(url, label, snippet); err != nil {
			s.logger.Warn("label memory save failed", "url", url, "error", err)
		}
	}
	return label
}

// snippet strips markup and truncates the visible text.
func (s *Service) snippet(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	text := strings.Join(strings.Fields(doc.Text()), " ")
	if len(text) > s.snippetBytes {
		text = text[:s.snippetBytes]
	}
	return text
}
