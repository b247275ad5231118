package classify

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestMemoryRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels.json")

	m := NewMemory(path, 2, 30)
	if err := m.Save("https://a.example.com", SiteTypeBlog, "posts and comments"); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Fresh instance must pick the label up from disk.
	reopened := NewMemory(path, 2, 30)
	label, ok := reopened.Lookup("https://a.example.com")
	if !ok || label != SiteTypeBlog {
		t.Fatalf("got %q %v", label, ok)
	}
}

func TestMemoryLookupMissingFile(t *testing.T) {
	m := NewMemory(filepath.Join(t.TempDir(), "absent.json"), 2, 30)
	if _, ok := m.Lookup("https://example.com"); ok {
		t.Fatal("lookup on missing file must miss")
	}
}

func TestMemorySaveSkipsExistingURL(t *testing.T) {
	m := NewMemory(filepath.Join(t.TempDir(), "labels.json"), 2, 30)
	if err := m.Save("https://example.com", SiteTypeWiki, "first"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := m.Save("https://example.com", SiteTypeForum, "second"); err != nil {
		t.Fatalf("save: %v", err)
	}

	label, _ := m.Lookup("https://example.com")
	if label != SiteTypeWiki {
		t.Fatalf("existing URL relabelled to %q", label)
	}
	if got := m.SelectExamples(); len(got) != 1 {
		t.Fatalf("duplicate URL stored twice: %d examples", len(got))
	}
}

func TestMemoryTruncatesSnippets(t *testing.T) {
	m := NewMemory(filepath.Join(t.TempDir(), "labels.json"), 2, 30)
	if err := m.Save("https://example.com", SiteTypeBlog, strings.Repeat("z", 2000)); err != nil {
		t.Fatalf("save: %v", err)
	}
	examples := m.SelectExamples()
	if len(examples) != 1 || len(examples[0].Snippet) != savedSnippetBytes {
		t.Fatalf("snippet not truncated: %d bytes", len(examples[0].Snippet))
	}
}

func TestSelectExamplesBalancesLabels(t *testing.T) {
	m := NewMemory(filepath.Join(t.TempDir(), "labels.json"), 2, 30)
	saves := []struct {
		url   string
		label SiteType
	}{
		{"https://b1.example.com", SiteTypeBlog},
		{"https://b2.example.com", SiteTypeBlog},
		{"https://b3.example.com", SiteTypeBlog},
		{"https://s1.example.com", SiteTypeEcommerce},
		{"https://s2.example.com", SiteTypeEcommerce},
		{"https://s3.example.com", SiteTypeEcommerce},
		{"https://w1.example.com", SiteTypeWiki},
	}
	for _, s := range saves {
		if err := m.Save(s.url, s.label, "snippet"); err != nil {
			t.Fatalf("save %s: %v", s.url, err)
		}
	}

	got := m.SelectExamples()
	if len(got) != 5 {
		t.Fatalf("got %d examples, want 5", len(got))
	}
	counts := make(map[string]int)
	for _, e := range got {
		counts[e.Label]++
	}
	if counts["blog"] != 2 || counts["ecommerce"] != 2 || counts["wiki"] != 1 {
		t.Fatalf("unbalanced selection: %v", counts)
	}
	// First-seen order within each label.
	if got[0].URL != "https://b1.example.com" || got[1].URL != "https://b2.example.com" {
		t.Fatalf("selection order changed: %v", got)
	}
}

func TestSelectExamplesGlobalCap(t *testing.T) {
	m := NewMemory(filepath.Join(t.TempDir(), "labels.json"), 5, 3)
	for _, url := range []string{"https://a.example.com", "https://b.example.com", "https://c.example.com", "https://d.example.com"} {
		if err := m.Save(url, SiteTypeBlog, "snippet"); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	if got := m.SelectExamples(); len(got) != 3 {
		t.Fatalf("got %d examples, want 3", len(got))
	}
}
