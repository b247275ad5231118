package selector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AmazyanAyoub/agent-scarper/internal/fetcher"
	"github.com/AmazyanAyoub/agent-scarper/pkg/types"
)

// SearchBrowser performs a live search interaction. *fetcher.ChromedpBrowser
// satisfies it.
type SearchBrowser interface {
	Search(ctx context.Context, req fetcher.SearchRequest) (fetcher.SearchResult, error)
}

// defaultResultSelectors are markers that a results page actually rendered.
var defaultResultSelectors = []string{
	".srp-results",
	".s-item",
	"[data-testid='listing']",
	"[data-component-type='s-search-result']",
}

// Validator confirms discovered selectors against the live site before they
// are cached.
type Validator struct {
	browser         SearchBrowser
	resultSelectors []string
	timeout         time.Duration
	logger          *slog.Logger
}

// NewValidator builds a validator. An empty resultSelectors list falls back
// to common marketplace result markers.
func NewValidator(browser SearchBrowser, resultSelectors []string, timeout time.Duration, logger *slog.Logger) (*Validator, error) {
	if browser == nil {
		return nil, errors.New("validator requires a search browser")
	}
	if len(resultSelectors) == 0 {
		resultSelectors = defaultResultSelectors
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{browser: browser, resultSelectors: resultSelectors, timeout: timeout, logger: logger}, nil
}

// ValidateSearch tries each candidate in confidence order and returns the
// first selector through which a search for keyword produced a results page,
// together with that page. Candidates whose interaction fails or times out
// are skipped.
func (v *Validator) ValidateSearch(ctx context.Context, pageURL, keyword string, candidates []types.SearchCandidate) (string, fetcher.SearchResult, error) {
	var lastErr error
	for _, cand := range candidates {
		res, err := v.browser.Search(ctx, fetcher.SearchRequest{
			URL:             pageURL,
			InputSelector:   cand.Selector,
			Keyword:         keyword,
			ResultSelectors: v.resultSelectors,
			Timeout:         v.timeout,
			UseSession:      true,
		})
		if err != nil {
			v.logger.Debug("search candidate failed", "selector", cand.Selector, "error", err)
			lastErr = err
			continue
		}
		if !res.ResultsSeen {
			v.logger.Debug("search candidate produced no results page", "selector", cand.Selector)
			continue
		}
		return cand.Selector, res, nil
	}
	if lastErr != nil {
		return "", fetcher.SearchResult{}, fmt.Errorf("no search candidate validated: %w", lastErr)
	}
	return "", fetcher.SearchResult{}, errors.New("no search candidate validated")
}
