package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/AmazyanAyoub/agent-scarper/internal/botwall"
	"github.com/AmazyanAyoub/agent-scarper/internal/robots"
	"github.com/AmazyanAyoub/agent-scarper/internal/session"
)

// OutcomeKind tags the result of one fetch attempt.
type OutcomeKind int

const (
	// OutcomeSuccess means clean HTML was retrieved.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeBlocked means a bot wall was detected.
	OutcomeBlocked
	// OutcomeFailed means a transport or navigation error occurred.
	OutcomeFailed
)

// Outcome is the explicit result of a single attempt inside the recovery
// ladder. Exactly one of HTML, Detection, or Err is meaningful, selected by
// Kind.
type Outcome struct {
	Kind      OutcomeKind
	HTML      string
	Detection *botwall.Detection
	Err       error
}

// Gateway is the single retrieval path for pages. It layers politeness,
// robots awareness, bot-wall detection, and the bounded recovery ladder on
// top of the browser automation layer.
type Gateway struct {
	browser  Browser
	solver   ManualSolver
	detector *botwall.Detector
	sessions session.Store
	limiter  *DomainLimiter
	robots   *robots.Agent

	manualWait time.Duration
	logger     *slog.Logger
}

// GatewayOptions wires the gateway's collaborators.
type GatewayOptions struct {
	Browser    Browser
	Solver     ManualSolver
	Detector   *botwall.Detector
	Sessions   session.Store
	Limiter    *DomainLimiter
	Robots     *robots.Agent
	ManualWait time.Duration
	Logger     *slog.Logger
}

// NewGateway builds a fetch gateway.
func NewGateway(opts GatewayOptions) (*Gateway, error) {
	if opts.Browser == nil {
		return nil, fmt.Errorf("gateway requires a browser")
	}
	if opts.Detector == nil {
		return nil, fmt.Errorf("gateway requires a bot-wall detector")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	manualWait := opts.ManualWait
	if manualWait <= 0 {
		manualWait = 2 * time.Minute
	}
	return &Gateway{
		browser:    opts.Browser,
		solver:     opts.Solver,
		detector:   opts.Detector,
		sessions:   opts.Sessions,
		limiter:    opts.Limiter,
		robots:     opts.Robots,
		manualWait: manualWait,
		logger:     logger,
	}, nil
}

// Fetch retrieves one page, running the bot-wall ladder when needed. The
// ladder is structurally bounded: initial attempt, at most one
// session-reuse retry, at most one manual solve followed by a final attempt.
// Exhaustion returns empty content, not an error; transport failures return
// the error so the caller can record it and continue.
func (g *Gateway) Fetch(ctx context.Context, rawURL string, wait time.Duration) (string, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	if g.robots != nil && !g.robots.Allowed(ctx, target) {
		g.logger.Debug("blocked by robots", "url", rawURL)
		return "", nil
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx, target.Hostname()); err != nil {
			return "", fmt.Errorf("domain limiter: %w", err)
		}
	}

	if g.robots != nil {
		if delay := g.robots.CrawlDelay(ctx, target); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return "", ctx.Err()
			case <-timer.C:
			}
		}
	}

	out := g.attempt(ctx, rawURL, wait)
	switch out.Kind {
	case OutcomeSuccess:
		return out.HTML, nil
	case OutcomeFailed:
		return "", out.Err
	}

	// Blocked. Stage one: a single session-reuse retry when a snapshot is
	// available for the domain.
	detection := out.Detection
	g.logger.Warn("bot wall detected",
		"url", rawURL, "signature", detection.Signature, "decision", string(detection.Decision))

	if detection.Decision == botwall.DecisionReuseSession && g.hasSession(rawURL) {
		out = g.attempt(ctx, rawURL, wait)
		switch out.Kind {
		case OutcomeSuccess:
			return out.HTML, nil
		case OutcomeFailed:
			return "", out.Err
		}
		g.logger.Info("stored session failed; escalating to manual solve", "url", rawURL)
	}

	// Stage two: manual solve, then exactly one final attempt.
	if g.solver == nil {
		g.logger.Warn("no manual solver configured; returning empty content", "url", rawURL)
		return "", nil
	}

	snap, solveErr := g.solver.Solve(ctx, rawURL, g.manualWait)
	if solveErr != nil {
		g.logger.Warn("manual solve failed", "url", rawURL, "error", solveErr)
	} else if g.sessions != nil && !snap.Empty() {
		if err := g.sessions.Save(session.Domain(rawURL), snap); err != nil {
			g.logger.Warn("session save after manual solve failed", "url", rawURL, "error", err)
		}
	}

	out = g.attempt(ctx, rawURL, wait)
	if out.Kind == OutcomeSuccess {
		return out.HTML, nil
	}
	if out.Kind == OutcomeFailed {
		return "", out.Err
	}
	g.logger.Warn("recovery ladder exhausted; page unavailable", "url", rawURL)
	return "", nil
}

// attempt performs one browser fetch plus the single bot-wall checkpoint.
func (g *Gateway) attempt(ctx context.Context, rawURL string, wait time.Duration) Outcome {
	result, err := g.browser.Fetch(ctx, Request{
		URL:        rawURL,
		Wait:       wait,
		UseSession: g.hasSession(rawURL),
	})
	if err != nil {
		return Outcome{Kind: OutcomeFailed, Err: fmt.Errorf("browser fetch %s: %w", rawURL, err)}
	}

	if detection := g.detector.Inspect(rawURL, result.HTML); detection != nil {
		return Outcome{Kind: OutcomeBlocked, Detection: detection}
	}
	return Outcome{Kind: OutcomeSuccess, HTML: result.HTML}
}

func (g *Gateway) hasSession(rawURL string) bool {
	return g.sessions != nil && g.sessions.Has(session.Domain(rawURL))
}
