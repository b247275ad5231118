package crawler

import (
	"net/url"
	"strings"
	"sync"
)

// VisitedSet tracks canonicalised URLs that have already been handled. It is
// shared by concurrent batch workers, so marking is atomic with the check.
type VisitedSet struct {
	mu      sync.Mutex
	entries map[string]struct{}
}

// NewVisitedSet returns an empty set.
func NewVisitedSet() *VisitedSet {
	return &VisitedSet{entries: make(map[string]struct{})}
}

// VisitIfNew marks the URL and reports true exactly once per canonical key.
func (v *VisitedSet) VisitIfNew(rawURL string) bool {
	key := canonicalKey(rawURL)
	if key == "" {
		return false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.entries[key]; ok {
		return false
	}
	v.entries[key] = struct{}{}
	return true
}

// Contains reports whether the URL was already marked.
func (v *VisitedSet) Contains(rawURL string) bool {
	key := canonicalKey(rawURL)
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.entries[key]
	return ok
}

// Len returns the number of marked URLs.
func (v *VisitedSet) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.entries)
}

func canonicalKey(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return strings.TrimSpace(rawURL)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme == "" {
		scheme = "http"
	}
	host := strings.ToLower(u.Hostname())
	if port := u.Port(); port != "" && port != defaultPortForScheme(scheme) {
		host = host + ":" + port
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	key := scheme + "://" + host + path
	if q := u.RawQuery; q != "" {
		key += "?" + q
	}
	return key
}

func defaultPortForScheme(scheme string) string {
	switch scheme {
	case "http":
		return "80"
	case "https":
		return "443"
	default:
		return ""
	}
}
