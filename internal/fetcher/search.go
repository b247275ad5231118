package fetcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/AmazyanAyoub/agent-scarper/internal/session"
)

// SearchRequest describes one interactive search attempt: navigate, type the
// keyword into the input, submit, and wait for any of the result selectors.
type SearchRequest struct {
	URL             string
	InputSelector   string
	Keyword         string
	ResultSelectors []string
	Timeout         time.Duration
	Wait            time.Duration
	UseSession      bool
}

// SearchResult carries the page state after a submitted search.
type SearchResult struct {
	HTML        string
	FinalURL    string
	ResultsSeen bool
}

// Search drives a real search interaction in the browser. The input must be
// visible and enabled before typing; absence of every result selector is
// reported, not failed, so callers can fall back to other candidates.
func (b *ChromedpBrowser) Search(parentCtx context.Context, req SearchRequest) (SearchResult, error) {
	if strings.TrimSpace(req.URL) == "" || strings.TrimSpace(req.InputSelector) == "" {
		return SearchResult{}, fmt.Errorf("search request needs a URL and an input selector")
	}

	select {
	case b.semaphore <- struct{}{}:
		defer func() { <-b.semaphore }()
	case <-parentCtx.Done():
		return SearchResult{}, parentCtx.Err()
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = b.opts.NavigationTimeout
	}
	ctx, cancel := context.WithTimeout(parentCtx, timeout)
	defer cancel()

	execOpts := []chromedp.ExecAllocatorOption{
		chromedp.Flag("headless", b.opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("no-sandbox", true),
		chromedp.UserAgent(b.userAgent),
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, execOpts...)
	defer allocCancel()
	chromeCtx, chromeCancel := chromedp.NewContext(allocCtx)
	defer chromeCancel()

	domain := session.Domain(req.URL)
	var snap session.Snapshot
	if req.UseSession && b.sessions != nil {
		if loaded, ok, err := b.sessions.Load(domain); err == nil && ok {
			snap = loaded
		}
	}

	wait := req.Wait
	if wait <= 0 {
		wait = b.opts.CaptureDelay
	}

	var enabled bool
	var resultsSeen bool
	var html, finalURL string
	var captured session.Snapshot

	actions := []chromedp.Action{network.Enable()}
	if len(snap.Cookies) > 0 {
		actions = append(actions, restoreCookiesAction(snap.Cookies))
	}
	actions = append(actions,
		chromedp.Navigate(req.URL),
		chromedp.WaitVisible(req.InputSelector, chromedp.ByQuery),
		chromedp.Evaluate(fmt.Sprintf("!document.querySelector(%q).disabled", req.InputSelector), &enabled),
	)
	actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
		if !enabled {
			return fmt.Errorf("search input %q is disabled", req.InputSelector)
		}
		return nil
	}))
	actions = append(actions,
		chromedp.Click(req.InputSelector, chromedp.ByQuery),
		chromedp.SendKeys(req.InputSelector, req.Keyword+kb.Enter, chromedp.ByQuery),
		awaitAnySelector(req.ResultSelectors, &resultsSeen),
		chromedp.Evaluate("window.scrollTo(0, document.body.scrollHeight)", nil),
		chromedp.Sleep(wait),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Location(&finalURL),
		captureSnapshotAction(&captured),
	)

	if err := chromedp.Run(chromeCtx, actions...); err != nil {
		return SearchResult{}, fmt.Errorf("chromedp search: %w", err)
	}

	if int64(len(html)) > b.opts.MaxBodyBytes {
		html = html[:b.opts.MaxBodyBytes]
	}
	if finalURL == "" {
		finalURL = req.URL
	}
	if b.sessions != nil && !captured.Empty() {
		if err := b.sessions.Save(domain, captured); err != nil {
			b.logger.Warn("session save failed", "domain", domain, "error", err)
		}
	}

	return SearchResult{HTML: html, FinalURL: finalURL, ResultsSeen: resultsSeen}, nil
}

// awaitAnySelector polls until one of the selectors appears or the polling
// window lapses; the outcome lands in seen either way.
func awaitAnySelector(selectors []string, seen *bool) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if len(selectors) == 0 {
			*seen = true
			return nil
		}
		quoted := make([]string, 0, len(selectors))
		for _, sel := range selectors {
			quoted = append(quoted, fmt.Sprintf("%q", sel))
		}
		expr := fmt.Sprintf("[%s].some(s => document.querySelector(s) !== null)", strings.Join(quoted, ","))

		err := chromedp.Poll(expr, seen, chromedp.WithPollingTimeout(10*time.Second)).Do(ctx)
		if err != nil {
			if err == chromedp.ErrPollingTimeout {
				*seen = false
				return nil
			}
			return err
		}
		return nil
	})
}
