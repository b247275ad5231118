package botwall

import (
	"strings"
	"testing"

	"github.com/AmazyanAyoub/agent-scarper/internal/session"
)

type fakeSessionStore struct {
	domains map[string]session.Snapshot
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{domains: make(map[string]session.Snapshot)}
}

func (f *fakeSessionStore) Has(domain string) bool {
	_, ok := f.domains[domain]
	return ok
}

func (f *fakeSessionStore) Load(domain string) (session.Snapshot, bool, error) {
	snap, ok := f.domains[domain]
	return snap, ok, nil
}

func (f *fakeSessionStore) Save(domain string, snap session.Snapshot) error {
	f.domains[domain] = snap
	return nil
}

func (f *fakeSessionStore) Path(domain string) string { return domain + ".json" }

// padClean makes a body large enough to dodge the small-response heuristic.
func padClean(body string) string {
	return body + strings.Repeat("<p>catalogue entry with plenty of text</p>", 200)
}

func TestDetectFirstMatchWins(t *testing.T) {
	d := NewDetector(nil)
	html := `<html><script src="recaptcha/api.js"></script><div id="cf-wrapper"></div></html>`
	if got := d.Detect(html); got != "recaptcha/api.js" {
		t.Fatalf("expected first signature in list order, got %q", got)
	}
}

func TestDetectCaseInsensitive(t *testing.T) {
	d := NewDetector(nil)
	if got := d.Detect("<html>DETECTED UNUSUAL TRAFFIC from your network</html>"); got != "detected unusual traffic" {
		t.Fatalf("expected case-insensitive match, got %q", got)
	}
}

func TestInspectEmptyBody(t *testing.T) {
	store := newFakeSessionStore()
	store.Save("shop.example.com", session.Snapshot{Cookies: []session.Cookie{{Name: "sid"}}})

	d := NewDetector(store)
	det := d.Inspect("https://shop.example.com/items", "   \n\t ")
	if det == nil {
		t.Fatal("expected a detection for an empty body")
	}
	if det.Signature != SignatureEmptyResponse {
		t.Fatalf("expected %q, got %q", SignatureEmptyResponse, det.Signature)
	}
	// Empty bodies always escalate to a manual solve, session or not.
	if det.Decision != DecisionManualSolve {
		t.Fatalf("expected manual solve, got %q", det.Decision)
	}
}

func TestInspectLiteralBeforeHeuristic(t *testing.T) {
	d := NewDetector(newFakeSessionStore())
	html := padClean(`<html><title>Attention Required</title><body>cf-challenge ahead</body></html>`)
	det := d.Inspect("https://example.com", html)
	if det == nil {
		t.Fatal("expected a detection")
	}
	if det.Signature != "cf-challenge" {
		t.Fatalf("literal signature should outrank title heuristic, got %q", det.Signature)
	}
}

func TestInspectCleanPage(t *testing.T) {
	d := NewDetector(newFakeSessionStore())
	html := padClean(`<html><title>Widget Shop</title><body><h1>Widgets</h1></body></html>`)
	if det := d.Inspect("https://example.com", html); det != nil {
		t.Fatalf("expected nil detection for a clean page, got %+v", det)
	}
}

func TestHeuristicSmallResponse(t *testing.T) {
	d := NewDetector(nil)
	html := `<html><title>example.com</title><body></body></html>`
	if got := d.HeuristicDetect("https://www.example.com", html); got != "suspicious_small_response" {
		t.Fatalf("expected small-response heuristic, got %q", got)
	}
}

func TestHeuristicChallengeSelector(t *testing.T) {
	d := NewDetector(nil)
	html := padClean(`<html><title>Totally fine storefront</title><body><div class="g-recaptcha"></div></body></html>`)
	if got := d.HeuristicDetect("https://example.com", html); got != ".g-recaptcha" {
		t.Fatalf("expected selector heuristic, got %q", got)
	}
}

func TestDecideUsesSessionState(t *testing.T) {
	store := newFakeSessionStore()
	d := NewDetector(store)

	if got := d.Decide("https://shop.example.com"); got != DecisionManualSolve {
		t.Fatalf("no session stored, expected manual solve, got %q", got)
	}

	store.Save("shop.example.com", session.Snapshot{Cookies: []session.Cookie{{Name: "sid"}}})
	if got := d.Decide("https://shop.example.com/page"); got != DecisionReuseSession {
		t.Fatalf("session stored, expected reuse, got %q", got)
	}
}
