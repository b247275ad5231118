package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	useragent "github.com/EDDYCJY/fake-useragent"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"

	"github.com/AmazyanAyoub/agent-scarper/internal/session"
)

// BrowserOptions configures the chromedp fetch layer.
type BrowserOptions struct {
	Headless           bool
	UserAgent          string
	NavigationTimeout  time.Duration
	CaptureDelay       time.Duration
	ConcurrentSessions int
	MaxBodyBytes       int64
}

// ChromedpBrowser renders pages in headless Chrome, preloading and capturing
// per-domain session snapshots.
type ChromedpBrowser struct {
	opts      BrowserOptions
	sessions  session.Store
	semaphore chan struct{}
	logger    *slog.Logger
	userAgent string
}

// NewChromedpBrowser constructs a browser fetcher with bounded concurrency.
func NewChromedpBrowser(opts BrowserOptions, sessions session.Store, logger *slog.Logger) *ChromedpBrowser {
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = 60 * time.Second
	}
	if opts.CaptureDelay <= 0 {
		opts.CaptureDelay = 1500 * time.Millisecond
	}
	if opts.ConcurrentSessions <= 0 {
		opts.ConcurrentSessions = 1
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 5 * 1024 * 1024
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChromedpBrowser{
		opts:      opts,
		sessions:  sessions,
		semaphore: make(chan struct{}, opts.ConcurrentSessions),
		logger:    logger,
		userAgent: selectUserAgent(opts.UserAgent),
	}
}

// Fetch navigates to the target URL, waits for rendering to settle, and
// returns the final DOM outer HTML. When req.UseSession is set and a snapshot
// exists for the domain, cookies and localStorage are restored before
// navigation; the session state observed afterwards is written back through
// the store.
func (b *ChromedpBrowser) Fetch(parentCtx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.URL) == "" {
		return Result{}, fmt.Errorf("fetch request URL is empty")
	}

	select {
	case b.semaphore <- struct{}{}:
		defer func() { <-b.semaphore }()
	case <-parentCtx.Done():
		return Result{}, parentCtx.Err()
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
		loaded, ok, err := b.sessions.Load(domain)
		if err != nil {
			b.logger.Warn("session preload failed", "domain", domain, "error", err)
		} else if ok {
			snap = loaded
		}
	}

	wait := req.Wait
	if wait <= 0 {
		wait = b.opts.CaptureDelay
	}

	var html, finalURL string
	actions := []chromedp.Action{network.Enable()}
	if len(snap.Cookies) > 0 {
		actions = append(actions, restoreCookiesAction(snap.Cookies))
	}
	actions = append(actions, chromedp.Navigate(req.URL))
	if items := localStorageFor(snap, req.URL); len(items) > 0 {
		actions = append(actions, restoreLocalStorageAction(items), chromedp.Reload())
	}
	actions = append(actions,
		chromedp.Sleep(wait),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Location(&finalURL),
	)

	var captured session.Snapshot
	actions = append(actions, captureSnapshotAction(&captured))

	if err := chromedp.Run(chromeCtx, actions...); err != nil {
		return Result{}, fmt.Errorf("chromedp run: %w", err)
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

	return Result{HTML: html, FinalURL: finalURL}, nil
}

func restoreCookiesAction(cookies []session.Cookie) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		params := make([]*network.CookieParam, 0, len(cookies))
		for _, c := range cookies {
			param := &network.CookieParam{
				Name:     c.Name,
				Value:    c.Value,
				Domain:   c.Domain,
				Path:     c.Path,
				Secure:   c.Secure,
				HTTPOnly: c.HTTPOnly,
			}
			if c.Expires > 0 {
				epoch := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
				param.Expires = &epoch
			}
			params = append(params, param)
		}
		return network.SetCookies(params).Do(ctx)
	})
}

func restoreLocalStorageAction(items []session.StorageItem) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		for _, item := range items {
			script := fmt.Sprintf("window.localStorage.setItem(%q, %q)", item.Name, item.Value)
			if err := chromedp.Evaluate(script, nil).Do(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

func captureSnapshotAction(out *session.Snapshot) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		cookies, err := storage.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		for _, c := range cookies {
			out.Cookies = append(out.Cookies, session.Cookie{
				Name:     c.Name,
				Value:    c.Value,
				Domain:   c.Domain,
				Path:     c.Path,
				Expires:  c.Expires,
				HTTPOnly: c.HTTPOnly,
				Secure:   c.Secure,
				SameSite: string(c.SameSite),
			})
		}

		var origin string
		if err := chromedp.Evaluate("window.location.origin", &origin).Do(ctx); err != nil {
			return err
		}
		var entries [][]string
		if err := chromedp.Evaluate("Object.entries(window.localStorage)", &entries).Do(ctx); err != nil {
			return err
		}
		if len(entries) > 0 {
			items := make([]session.StorageItem, 0, len(entries))
			for _, pair := range entries {
				if len(pair) == 2 {
					items = append(items, session.StorageItem{Name: pair[0], Value: pair[1]})
				}
			}
			out.Origins = append(out.Origins, session.Origin{Origin: origin, LocalStorage: items})
		}
		return nil
	})
}

func localStorageFor(snap session.Snapshot, rawURL string) []session.StorageItem {
	if len(snap.Origins) == 0 {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	origin := u.Scheme + "://" + u.Host
	for _, o := range snap.Origins {
		if strings.EqualFold(o.Origin, origin) {
			return o.LocalStorage
		}
	}
	return nil
}

func selectUserAgent(base string) string {
	if strings.TrimSpace(base) != "" {
		return base
	}
	if ua := useragent.Chrome(); ua != "" {
		return ua
	}
	return "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120 Safari/537.36"
}
