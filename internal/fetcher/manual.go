package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/AmazyanAyoub/agent-scarper/internal/session"
)

// ManualSolver escalates a bot wall to a human: it opens an interactive
// session, waits for the challenge to be solved, and captures the resulting
// session state.
type ManualSolver interface {
	Solve(ctx context.Context, url string, wait time.Duration) (session.Snapshot, error)
}

// InteractiveSolver drives a visible Chrome window. The wait is a hard
// ceiling: when it elapses the session state is captured as-is rather than
// blocking forever.
type InteractiveSolver struct {
	userAgent string
	logger    *slog.Logger
}

// NewInteractiveSolver builds a solver sharing the gateway's user agent.
func NewInteractiveSolver(userAgent string, logger *slog.Logger) *InteractiveSolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &InteractiveSolver{userAgent: selectUserAgent(userAgent), logger: logger}
}

// Solve opens the URL in a headful browser and blocks up to wait for a human
// to clear the challenge, then captures cookies and localStorage.
func (s *InteractiveSolver) Solve(parentCtx context.Context, url string, wait time.Duration) (session.Snapshot, error) {
	if wait <= 0 {
		wait = 2 * time.Minute
	}

	s.logger.Warn("opening manual solve window; complete the challenge before the timeout",
		"url", url, "wait", wait.String())

	// The context ceiling covers navigation plus the full human wait.
	ctx, cancel := context.WithTimeout(parentCtx, wait+30*time.Second)
	defer cancel()

	execOpts := []chromedp.ExecAllocatorOption{
		chromedp.Flag("headless", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.UserAgent(s.userAgent),
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, execOpts...)
	defer allocCancel()

	chromeCtx, chromeCancel := chromedp.NewContext(allocCtx)
	defer chromeCancel()

	var snap session.Snapshot
	err := chromedp.Run(chromeCtx,
		network.Enable(),
		chromedp.Navigate(url),
		waitForHuman(wait),
		captureSnapshotAction(&snap),
	)
	if err != nil {
		return session.Snapshot{}, fmt.Errorf("manual solve for %s: %w", url, err)
	}
	return snap, nil
}

// waitForHuman sleeps in small slices so cancellation is honoured while the
// human works.
func waitForHuman(wait time.Duration) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		deadline := time.Now().Add(wait)
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for time.Now().Before(deadline) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
		return nil
	})
}
