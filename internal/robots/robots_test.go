package robots

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AmazyanAyoub/agent-scarper/internal/config"
)

func robotsServer(t *testing.T, body string, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		if hits != nil {
			hits.Add(1)
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %q: %v", raw, err)
	}
	return u
}

func testConfig(respect bool) config.RobotsConfig {
	return config.RobotsConfig{
		Respect:   respect,
		UserAgent: "agent-scarper/1.0",
		CacheTTL:  config.DurationFrom(time.Hour),
	}
}

func TestAllowedFollowsDisallowRules(t *testing.T) {
	srv := robotsServer(t, "User-agent: *\nDisallow: /private/\n", nil)
	agent := NewAgent(testConfig(true), nil, srv.Client())

	if !agent.Allowed(context.Background(), mustParse(t, srv.URL+"/public/page")) {
		t.Fatal("public path should be allowed")
	}
	if agent.Allowed(context.Background(), mustParse(t, srv.URL+"/private/page")) {
		t.Fatal("disallowed path should be blocked")
	}
}

func TestAllowedCachesRules(t *testing.T) {
	var hits atomic.Int64
	srv := robotsServer(t, "User-agent: *\nDisallow:\n", &hits)
	agent := NewAgent(testConfig(true), nil, srv.Client())

	target := mustParse(t, srv.URL+"/page")
	for i := 0; i < 3; i++ {
		agent.Allowed(context.Background(), target)
	}
	if hits.Load() != 1 {
		t.Fatalf("robots.txt fetched %d times, want 1", hits.Load())
	}

	agent.Purge(target.Hostname())
	agent.Allowed(context.Background(), target)
	if hits.Load() != 2 {
		t.Fatalf("purge did not evict the cache: %d fetches", hits.Load())
	}
}

func TestAllowedSkipsFetchWhenNotRespecting(t *testing.T) {
	var hits atomic.Int64
	srv := robotsServer(t, "User-agent: *\nDisallow: /\n", &hits)
	agent := NewAgent(testConfig(false), nil, srv.Client())

	if !agent.Allowed(context.Background(), mustParse(t, srv.URL+"/anything")) {
		t.Fatal("respect=false must allow everything")
	}
	if hits.Load() != 0 {
		t.Fatalf("robots.txt fetched %d times with respect disabled", hits.Load())
	}
}

func TestAllowedOverrideWinsOverRules(t *testing.T) {
	srv := robotsServer(t, "User-agent: *\nDisallow: /\n", nil)
	target := mustParse(t, srv.URL+"/blocked")

	cfg := testConfig(true)
	cfg.Overrides = []string{target.Hostname()}
	agent := NewAgent(cfg, nil, srv.Client())

	if !agent.Allowed(context.Background(), target) {
		t.Fatal("override host should bypass robots rules")
	}
}

func TestAllowedExcludedDomainDenied(t *testing.T) {
	srv := robotsServer(t, "User-agent: *\nDisallow:\n", nil)
	target := mustParse(t, srv.URL+"/page")

	agent := NewAgent(testConfig(false), []string{target.Hostname()}, srv.Client())
	if agent.Allowed(context.Background(), target) {
		t.Fatal("excluded domain must be denied even with respect disabled")
	}
}

func TestAllowedFailsOpenOnMissingRobots(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)
	agent := NewAgent(testConfig(true), nil, srv.Client())

	if !agent.Allowed(context.Background(), mustParse(t, srv.URL+"/page")) {
		t.Fatal("missing robots.txt should not block fetches")
	}
}

func TestAllowedRejectsRelativeURL(t *testing.T) {
	agent := NewAgent(testConfig(false), nil, nil)
	if agent.Allowed(context.Background(), mustParse(t, "/relative/only")) {
		t.Fatal("relative URLs are not fetchable")
	}
}

func TestCrawlDelayCapped(t *testing.T) {
	srv := robotsServer(t, "User-agent: *\nCrawl-delay: 120\n", nil)
	agent := NewAgent(testConfig(true), nil, srv.Client())

	got := agent.CrawlDelay(context.Background(), mustParse(t, srv.URL+"/page"))
	if got != maxCrawlDelay {
		t.Fatalf("crawl delay %v, want cap %v", got, maxCrawlDelay)
	}
}

func TestCrawlDelayZeroWhenUnset(t *testing.T) {
	srv := robotsServer(t, "User-agent: *\nDisallow:\n", nil)
	agent := NewAgent(testConfig(true), nil, srv.Client())

	if got := agent.CrawlDelay(context.Background(), mustParse(t, srv.URL+"/page")); got != 0 {
		t.Fatalf("crawl delay %v, want 0", got)
	}
}
