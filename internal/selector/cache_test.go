package selector

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/AmazyanAyoub/agent-scarper/pkg/types"
)

func TestCacheRoundTrip(t *testing.T) {
	cache, err := NewCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}

	entry := SiteSelectors{
		Search: "#search",
		Card: CardSelection{
			Selector: "li.item",
			Mapping:  types.FieldMapping{Title: "h3", Price: ".price", Image: "img", Link: "a"},
		},
	}
	if err := cache.Save("shop.example.com", entry); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, ok, err := cache.Load("shop.example.com")
	if err != nil || !ok {
		t.Fatalf("Load: ok=%v err=%v", ok, err)
	}
	if got.Search != entry.Search || got.Card != entry.Card {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestCacheMissIsNotAnError(t *testing.T) {
	cache, err := NewCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	_, ok, err := cache.Load("never-seen.example.com")
	if err != nil {
		t.Fatalf("cache miss must not error: %v", err)
	}
	if ok {
		t.Fatal("cache miss reported a hit")
	}
}

func TestCachePartialUpdatePreservesOtherFields(t *testing.T) {
	cache, err := NewCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	if err := cache.Save("shop.example.com", SiteSelectors{Search: "#search"}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	entry, _, _ := cache.Load("shop.example.com")
	entry.Card = CardSelection{Selector: "div.card", Mapping: types.FieldMapping{Title: "h2"}}
	if err := cache.Save("shop.example.com", entry); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, _, _ := cache.Load("shop.example.com")
	if got.Search != "#search" || got.Card.Selector != "div.card" {
		t.Fatalf("expected both selector kinds, got %+v", got)
	}
}

func TestCachePathIsSanitised(t *testing.T) {
	dir := t.TempDir()
	cache, err := NewCache(dir)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	path := cache.path("Shop.Example.com:8443")
	if filepath.Dir(path) != dir {
		t.Fatalf("path escaped the cache dir: %s", path)
	}
	base := filepath.Base(path)
	if strings.ContainsAny(base, ":/\\") || base != strings.ToLower(base) {
		t.Fatalf("unsafe cache file name: %s", base)
	}
}
