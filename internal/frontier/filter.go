// Package frontier prunes and ranks discovered links before they are crawled.
package frontier

import (
	"context"
	"log/slog"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/AmazyanAyoub/agent-scarper/pkg/types"
)

// SimilarityScorer judges semantic relevance of a link against the user
// instruction. Implementations are external (embedding-backed); errors are
// treated as a zero score, never fatal.
type SimilarityScorer interface {
	Score(ctx context.Context, instruction, candidate string) (float64, error)
}

var blockExtensions = []string{
	".jpg", ".jpeg", ".png", ".gif", ".svg", ".ico", ".pdf",
	".zip", ".tar", ".gz", ".rar", ".css", ".js", ".woff", ".mp4", ".avi",
}

var defaultBlockKeywords = []string{
	"login", "signup", "register", "cart", "checkout", "privacy", "terms", "policy", "ads", "about",
}

// Options tunes the filter.
type Options struct {
	MaxLinks          int
	BlockKeywords     []string
	ExcludedDomains   []string
	FollowExternal    bool
	InstructionWeight float64
}

// Filter applies syntactic pruning and relevance scoring to a frontier.
type Filter struct {
	scorer   SimilarityScorer
	opts     Options
	excluded map[string]struct{}
	logger   *slog.Logger
}

// NewFilter builds a link filter. A nil scorer degrades to keyword-only
// scoring.
func NewFilter(scorer SimilarityScorer, opts Options, logger *slog.Logger) *Filter {
	if opts.MaxLinks <= 0 {
		opts.MaxLinks = 100
	}
	if opts.InstructionWeight <= 0 {
		opts.InstructionWeight = 0.5
	}
	if len(opts.BlockKeywords) == 0 {
		opts.BlockKeywords = defaultBlockKeywords
	}
	if logger == nil {
		logger = slog.Default()
	}
	excluded := make(map[string]struct{}, len(opts.ExcludedDomains))
	for _, host := range opts.ExcludedDomains {
		host = strings.ToLower(strings.TrimSpace(host))
		if host != "" {
			excluded[host] = struct{}{}
		}
	}
	return &Filter{scorer: scorer, opts: opts, excluded: excluded, logger: logger}
}

// Apply prunes the frontier syntactically, scores survivors against the
// instruction, and returns them sorted by score descending, capped at
// MaxLinks. Duplicates are removed deterministically by keeping the first
// occurrence.
func (f *Filter) Apply(ctx context.Context, entries []types.FrontierEntry, instruction, baseURL string) []types.FrontierEntry {
	baseDomain := registeredDomain(baseURL)
	instructionWords := strings.Fields(strings.ToLower(instruction))

	seen := make(map[string]struct{}, len(entries))
	kept := make([]types.FrontierEntry, 0, len(entries))

	for _, entry := range entries {
		href := resolve(baseURL, entry.URL)
		if href == "" {
			continue
		}
		parsed, err := url.Parse(href)
		if err != nil {
			continue
		}
		if !f.accept(parsed, href, baseDomain) {
			continue
		}
		if _, dup := seen[href]; dup {
			continue
		}
		seen[href] = struct{}{}

		score := f.score(ctx, parsed, entry.AnchorText, instruction, instructionWords)
		kept = append(kept, types.FrontierEntry{URL: href, AnchorText: entry.AnchorText, Score: score})
	}

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Score > kept[j].Score })
	if len(kept) > f.opts.MaxLinks {
		kept = kept[:f.opts.MaxLinks]
	}
	f.logger.Debug("frontier filtered", "in", len(entries), "out", len(kept))
	return kept
}

func (f *Filter) accept(parsed *url.URL, href, baseDomain string) bool {
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return false
	}
	if parsed.Fragment != "" {
		return false
	}
	if _, blocked := f.excluded[strings.ToLower(parsed.Hostname())]; blocked {
		return false
	}

	lower := strings.ToLower(href)
	for _, ext := range blockExtensions {
		if strings.HasSuffix(lower, ext) {
			return false
		}
	}
	for _, kw := range f.opts.BlockKeywords {
		if strings.Contains(lower, kw) {
			return false
		}
	}

	if !f.opts.FollowExternal && baseDomain != "" {
		if registeredDomain(href) != baseDomain {
			return false
		}
	}
	return true
}

// score blends instruction keyword hits in the slug/anchor with the external
// similarity score.
func (f *Filter) score(ctx context.Context, parsed *url.URL, anchor, instruction string, words []string) float64 {
	slug := strings.ToLower(parsed.Path)
	slug = strings.NewReplacer("-", " ", "_", " ", "/", " ").Replace(slug)
	anchorLower := strings.ToLower(anchor)

	var keywordHits float64
	for _, w := range words {
		if strings.Contains(slug, w) || strings.Contains(anchorLower, w) {
			keywordHits++
		}
	}

	score := keywordHits * f.opts.InstructionWeight
	if f.scorer != nil {
		sim, err := f.scorer.Score(ctx, instruction, strings.TrimSpace(slug+" "+anchorLower))
		if err != nil {
			f.logger.Debug("similarity scorer failed", "url", parsed.String(), "error", err)
		} else {
			score += sim
		}
	}
	return score
}

// resolve makes href absolute against base and drops obvious non-pages.
func resolve(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	for _, prefix := range []string{"mailto:", "tel:", "javascript:", "data:"} {
		if strings.HasPrefix(strings.ToLower(href), prefix) {
			return ""
		}
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ""
	}
	resolved, err := baseURL.Parse(href)
	if err != nil {
		return ""
	}
	return resolved.String()
}

// registeredDomain returns the eTLD+1 for grouping subdomains of one site.
func registeredDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	domain, err := publicsuffix.EffectiveTLDPlusOne(strings.ToLower(u.Hostname()))
	if err != nil {
		return strings.ToLower(u.Hostname())
	}
	return domain
}
