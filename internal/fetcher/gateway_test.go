package fetcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/AmazyanAyoub/agent-scarper/internal/botwall"
	"github.com/AmazyanAyoub/agent-scarper/internal/session"
)

const blockedPage = `<html><body>detected unusual traffic</body></html>`

var cleanPage = `<html><title>Catalogue</title><body>` +
	strings.Repeat("<p>perfectly ordinary product listing text</p>", 200) + `</body></html>`

type scriptedBrowser struct {
	responses []string
	err       error
	calls     int
}

func (b *scriptedBrowser) Fetch(ctx context.Context, req Request) (Result, error) {
	if b.err != nil {
		return Result{}, b.err
	}
	idx := b.calls
	if idx >= len(b.responses) {
		idx = len(b.responses) - 1
	}
	b.calls++
	return Result{HTML: b.responses[idx], FinalURL: req.URL}, nil
}

type fakeSolver struct {
	snap   session.Snapshot
	err    error
	solved int
}

func (s *fakeSolver) Solve(ctx context.Context, url string, wait time.Duration) (session.Snapshot, error) {
	s.solved++
	return s.snap, s.err
}

type memSessions struct {
	domains map[string]session.Snapshot
}

func newMemSessions() *memSessions {
	return &memSessions{domains: make(map[string]session.Snapshot)}
}

func (m *memSessions) Has(domain string) bool {
	_, ok := m.domains[domain]
	return ok
}

func (m *memSessions) Load(domain string) (session.Snapshot, bool, error) {
	snap, ok := m.domains[domain]
	return snap, ok, nil
}

func (m *memSessions) Save(domain string, snap session.Snapshot) error {
	m.domains[domain] = snap
	return nil
}

func (m *memSessions) Path(domain string) string { return domain + ".json" }

func newTestGateway(t *testing.T, browser Browser, solver ManualSolver, sessions session.Store) *Gateway {
	t.Helper()
	gw, err := NewGateway(GatewayOptions{
		Browser:    browser,
		Solver:     solver,
		Detector:   botwall.NewDetector(sessions),
		Sessions:   sessions,
		ManualWait: 50 * time.Millisecond,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}
	return gw
}

func TestGatewayCleanFetch(t *testing.T) {
	browser := &scriptedBrowser{responses: []string{cleanPage}}
	gw := newTestGateway(t, browser, &fakeSolver{}, newMemSessions())

	html, err := gw.Fetch(context.Background(), "https://shop.example.com", 0)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if html != cleanPage {
		t.Fatal("expected the page body back unchanged")
	}
	if browser.calls != 1 {
		t.Fatalf("expected a single browser fetch, got %d", browser.calls)
	}
}

func TestGatewayTransportErrorSurfaces(t *testing.T) {
	browser := &scriptedBrowser{err: errors.New("net down")}
	gw := newTestGateway(t, browser, &fakeSolver{}, newMemSessions())

	_, err := gw.Fetch(context.Background(), "https://shop.example.com", 0)
	if err == nil || !strings.Contains(err.Error(), "net down") {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestGatewaySessionReuseRetry(t *testing.T) {
	sessions := newMemSessions()
	sessions.Save("shop.example.com", session.Snapshot{Cookies: []session.Cookie{{Name: "sid"}}})

	browser := &scriptedBrowser{responses: []string{blockedPage, cleanPage}}
	solver := &fakeSolver{}
	gw := newTestGateway(t, browser, solver, sessions)

	html, err := gw.Fetch(context.Background(), "https://shop.example.com/items", 0)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if html != cleanPage {
		t.Fatal("expected the retry to return the clean page")
	}
	if browser.calls != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", browser.calls)
	}
	if solver.solved != 0 {
		t.Fatal("session-reuse path must not invoke the manual solver")
	}
}

func TestGatewayManualSolveFinalAttempt(t *testing.T) {
	sessions := newMemSessions()
	browser := &scriptedBrowser{responses: []string{blockedPage, cleanPage}}
	solver := &fakeSolver{snap: session.Snapshot{Cookies: []session.Cookie{{Name: "cf_clearance"}}}}
	gw := newTestGateway(t, browser, solver, sessions)

	html, err := gw.Fetch(context.Background(), "https://shop.example.com/items", 0)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if html != cleanPage {
		t.Fatal("expected the post-solve attempt to return the clean page")
	}
	if solver.solved != 1 {
		t.Fatalf("expected one manual solve, got %d", solver.solved)
	}
	if !sessions.Has("shop.example.com") {
		t.Fatal("solved session should have been saved")
	}
}

func TestGatewayLadderExhaustionIsSoft(t *testing.T) {
	sessions := newMemSessions()
	sessions.Save("shop.example.com", session.Snapshot{Cookies: []session.Cookie{{Name: "sid"}}})

	browser := &scriptedBrowser{responses: []string{blockedPage}}
	solver := &fakeSolver{snap: session.Snapshot{Cookies: []session.Cookie{{Name: "sid2"}}}}
	gw := newTestGateway(t, browser, solver, sessions)

	html, err := gw.Fetch(context.Background(), "https://shop.example.com/items", 0)
	if err != nil {
		t.Fatalf("exhaustion must not be an error, got %v", err)
	}
	if html != "" {
		t.Fatal("exhaustion must return empty content")
	}
	// Initial attempt, one session retry, one post-solve attempt.
	if browser.calls != 3 {
		t.Fatalf("ladder must be bounded at 3 attempts, got %d", browser.calls)
	}
	if solver.solved != 1 {
		t.Fatalf("ladder must solve manually at most once, got %d", solver.solved)
	}
}
