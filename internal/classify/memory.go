package classify

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Example is one remembered classification, reused as few-shot context.
type Example struct {
	URL     string `json:"url"`
	Label   string `json:"label"`
	Snippet string `json:"snippet"`
}

const savedSnippetBytes = 500

// Memory is an append-only label store backed by one JSON file. Lookups by
// URL short-circuit the classifier entirely.
type Memory struct {
	path        string
	maxPerLabel int
	maxTotal    int

	mu       sync.Mutex
	loaded   bool
	examples []Example
	byURL    map[string]SiteType
}

// NewMemory opens (lazily) the label memory at path.
func NewMemory(path string, maxPerLabel, maxTotal int) *Memory {
	if maxPerLabel <= 0 {
		maxPerLabel = 2
	}
	if maxTotal <= 0 {
		maxTotal = 30
	}
	return &Memory{path: path, maxPerLabel: maxPerLabel, maxTotal: maxTotal}
}

// Lookup returns the remembered label for a URL.
func (m *Memory) Lookup(url string) (SiteType, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.loadLocked(); err != nil {
		return SiteTypeUnknown, false
	}
	label, ok := m.byURL[url]
	return label, ok
}

// Save appends a new example unless the URL is already remembered. Snippets
// are truncated before persisting.
func (m *Memory) Save(url string, label SiteType, snippet string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.loadLocked(); err != nil {
		return err
	}
	if _, exists := m.byURL[url]; exists {
		return nil
	}
	if len(snippet) > savedSnippetBytes {
		snippet = snippet[:savedSnippetBytes]
	}
	m.examples = append(m.examples, Example{URL: url, Label: string(label), Snippet: snippet})
	m.byURL[url] = label

	data, err := json.MarshalIndent(m.examples, "", "  ")
	if err != nil {
		return fmt.Errorf("encode label memory: %w", err)
	}
	if dir := filepath.Dir(m.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create label memory dir: %w", err)
		}
	}
	if err := os.WriteFile(m.path, data, 0o644); err != nil {
		return fmt.Errorf("write label memory: %w", err)
	}
	return nil
}

// SelectExamples picks a balanced few-shot set: at most maxPerLabel per
// label in first-seen order, capped globally at maxTotal.
func (m *Memory) SelectExamples() []Example {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.loadLocked(); err != nil {
		return nil
	}

	perLabel := make(map[string]int)
	out := make([]Example, 0, m.maxTotal)
	for _, e := range m.examples {
		if len(out) >= m.maxTotal {
			break
		}
		if perLabel[e.Label] >= m.maxPerLabel {
			continue
		}
		perLabel[e.Label]++
		out = append(out, e)
	}
	return out
}

func (m *Memory) loadLocked() error {
	if m.loaded {
		return nil
	}
	m.byURL = make(map[string]SiteType)
	data, err := os.ReadFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		m.loaded = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("read label memory: %w", err)
	}
	if err := json.Unmarshal(data, &m.examples); err != nil {
		return fmt.Errorf("decode label memory: %w", err)
	}
	for _, e := range m.examples {
		m.byURL[e.URL] = ParseSiteType(e.Label)
	}
	m.loaded = true
	return nil
}
