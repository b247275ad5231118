package selector

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kennygrant/sanitize"

	"github.com/AmazyanAyoub/agent-scarper/pkg/types"
)

// SiteSelectors is the per-domain cache entry. A zero value in either field
// means that part has not been confirmed for the domain yet.
type SiteSelectors struct {
	Search string            `json:"search,omitempty"`
	Card   CardSelection     `json:"card,omitempty"`
	Extra  map[string]string `json:"extra,omitempty"`
}

// CardSelection pairs a confirmed card selector with its field mapping.
type CardSelection struct {
	Selector string             `json:"selector,omitempty"`
	Mapping  types.FieldMapping `json:"mapping,omitempty"`
}

// Cache stores confirmed selectors on disk, one JSON file per domain. Only
// selectors that survived validation should be saved.
type Cache struct {
	dir string
	mu  sync.Mutex
}

// NewCache creates the cache directory if needed.
func NewCache(dir string) (*Cache, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("selector cache dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create selector cache dir: %w", err)
	}
	return &Cache{dir: dir}, nil
}

// Load returns the cached selectors for a domain. A missing file is not an
// error; it returns an empty entry and false.
func (c *Cache) Load(domain string) (SiteSelectors, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.path(domain))
	if errors.Is(err, os.ErrNotExist) {
		return SiteSelectors{}, false, nil
	}
	if err != nil {
		return SiteSelectors{}, false, fmt.Errorf("read selector cache for %s: %w", domain, err)
	}
	var entry SiteSelectors
	if err := json.Unmarshal(data, &entry); err != nil {
		return SiteSelectors{}, false, fmt.Errorf("decode selector cache for %s: %w", domain, err)
	}
	return entry, true, nil
}

// Save overwrites the domain's entry.
func (c *Cache) Save(domain string, entry SiteSelectors) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("encode selector cache for %s: %w", domain, err)
	}
	if err := os.WriteFile(c.path(domain), data, 0o644); err != nil {
		return fmt.Errorf("write selector cache for %s: %w", domain, err)
	}
	return nil
}

func (c *Cache) path(domain string) string {
	name := sanitize.BaseName(strings.ToLower(strings.TrimSpace(domain)))
	if name == "" {
		name = "unknown"
	}
	return filepath.Join(c.dir, name+".json")
}
