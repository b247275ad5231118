// Package robots gates fetches on robots.txt rules and the configured
// excluded-domain list.
package robots

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"github.com/AmazyanAyoub/agent-scarper/internal/config"
)

// maxCrawlDelay caps robots crawl-delay hints so a hostile robots.txt
// cannot stall the agent.
const maxCrawlDelay = 10 * time.Second

// Agent answers allow/deny questions for target URLs. Rules are fetched per
// host and cached until their TTL expires; hosts on the excluded list are
// denied without a fetch, hosts on the override list are always allowed.
type Agent struct {
	client    *http.Client
	userAgent string
	ttl       time.Duration
	respect   bool

	mu        sync.RWMutex
	cache     map[string]cacheEntry
	overrides map[string]struct{}
	excluded  map[string]struct{}
}

type cacheEntry struct {
	expires time.Time
	rules   *robotstxt.RobotsData
}

// NewAgent constructs the policy gate. excludedDomains is a hard deny list
// applied before robots rules regardless of the respect flag.
func NewAgent(cfg config.RobotsConfig, excludedDomains []string, client *http.Client) *Agent {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return &Agent{
		client:    client,
		userAgent: cfg.UserAgent,
		ttl:       cfg.CacheTTL.Or(30 * time.Minute),
		respect:   cfg.Respect,
		cache:     make(map[string]cacheEntry),
		overrides: hostSet(cfg.Overrides),
		excluded:  hostSet(excludedDomains),
	}
}

// Allowed reports whether the target URL may be fetched.
func (a *Agent) Allowed(ctx context.Context, target *url.URL) bool {
	if target == nil || !target.IsAbs() {
		return false
	}

	host := strings.ToLower(target.Hostname())
	if _, denied := a.excluded[host]; denied {
		return false
	}
	if !a.respect {
		return true
	}
	if _, ok := a.overrides[host]; ok {
		return true
	}

	group := a.groupFor(ctx, target)
	if group == nil {
		// Missing or unreadable robots.txt fails open.
		return true
	}
	return group.Test(target.Path)
}

// CrawlDelay returns the robots crawl-delay for the target's host, capped at
// maxCrawlDelay. Zero means no delay is requested.
func (a *Agent) CrawlDelay(ctx context.Context, target *url.URL) time.Duration {
	if target == nil || !target.IsAbs() || !a.respect {
		return 0
	}
	group := a.groupFor(ctx, target)
	if group == nil {
		return 0
	}
	if group.CrawlDelay > maxCrawlDelay {
		return maxCrawlDelay
	}
	return group.CrawlDelay
}

// Purge evicts cached rules for a host.
func (a *Agent) Purge(host string) {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return
	}
	a.mu.Lock()
	delete(a.cache, host)
	a.mu.Unlock()
}

// groupFor resolves the rule group matching the configured user agent,
// falling back to the wildcard group. A nil return means no usable rules.
func (a *Agent) groupFor(ctx context.Context, target *url.URL) *robotstxt.Group {
	rules, err := a.rulesFor(ctx, target)
	if err != nil {
		return nil
	}
	if group := rules.FindGroup(a.userAgent); group != nil {
		return group
	}
	return rules.FindGroup("*")
}

func (a *Agent) rulesFor(ctx context.Context, target *url.URL) (*robotstxt.RobotsData, error) {
	host := strings.ToLower(target.Host)

	a.mu.RLock()
	entry, ok := a.cache[host]
	a.mu.RUnlock()
	if ok && time.Now().Before(entry.expires) {
		return entry.rules, nil
	}

	data, err := a.fetchRules(ctx, target.Scheme, target.Host)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.cache[host] = cacheEntry{expires: time.Now().Add(a.ttl), rules: data}
	a.mu.Unlock()
	return data, nil
}

func (a *Agent) fetchRules(ctx context.Context, scheme, host string) (*robotstxt.RobotsData, error) {
	robotsURL := scheme + "://" + host + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build robots request: %w", err)
	}
	if a.userAgent != "" {
		req.Header.Set("User-Agent", a.userAgent)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("robots returned status %d", resp.StatusCode)
	}

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}
	return data, nil
}

func hostSet(hosts []string) map[string]struct{} {
	set := make(map[string]struct{}, len(hosts))
	for _, host := range hosts {
		host = strings.ToLower(strings.TrimSpace(host))
		if host != "" {
			set[host] = struct{}{}
		}
	}
	return set
}
