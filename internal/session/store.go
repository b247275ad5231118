package session

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kennygrant/sanitize"
)

// Cookie mirrors the storage-state cookie shape captured from the browser.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

// StorageItem is one origin-scoped localStorage entry.
type StorageItem struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Origin groups localStorage entries under their origin.
type Origin struct {
	Origin       string        `json:"origin"`
	LocalStorage []StorageItem `json:"localStorage"`
}

// Snapshot is the persisted browser session state for one domain.
type Snapshot struct {
	Cookies []Cookie `json:"cookies"`
	Origins []Origin `json:"origins"`
}

// Empty reports whether the snapshot carries no state worth persisting.
func (s Snapshot) Empty() bool {
	return len(s.Cookies) == 0 && len(s.Origins) == 0
}

// Store persists per-domain session snapshots so a solved challenge can be
// reused across fetches.
type Store interface {
	Has(domain string) bool
	Load(domain string) (Snapshot, bool, error)
	Save(domain string, snap Snapshot) error
	Path(domain string) string
}

// FileStore keeps one JSON file per domain under a base directory.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore initialises the store directory.
func NewFileStore(dir string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("session store dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Path returns the on-disk location for a domain's snapshot.
func (s *FileStore) Path(domain string) string {
	return filepath.Join(s.dir, sanitize.BaseName(strings.ToLower(domain))+".json")
}

// Has reports whether a snapshot exists for the domain.
func (s *FileStore) Has(domain string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, err := os.Stat(s.Path(domain))
	return err == nil && !info.IsDir()
}

// Load reads the snapshot for a domain if present.
func (s *FileStore) Load(domain string) (Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.Path(domain))
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, fmt.Errorf("read session %s: %w", domain, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("decode session %s: %w", domain, err)
	}
	return snap, true, nil
}

// Save writes the snapshot to disk immediately. Last writer wins; snapshots
// are idempotently re-derivable so no locking beyond the store mutex is
// required.
func (s *FileStore) Save(domain string, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session %s: %w", domain, err)
	}
	if err := os.WriteFile(s.Path(domain), data, 0o644); err != nil {
		return fmt.Errorf("write session %s: %w", domain, err)
	}
	return nil
}

// Domain extracts the lowercased host (with port, if any) used as the store
// key for a URL.
func Domain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return strings.ToLower(strings.TrimSpace(rawURL))
	}
	return strings.ToLower(u.Host)
}
