package frontier

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/AmazyanAyoub/agent-scarper/pkg/types"
)

type fixedScorer struct {
	scores map[string]float64
}

func (s fixedScorer) Score(_ context.Context, _, candidate string) (float64, error) {
	for key, score := range s.scores {
		if strings.Contains(candidate, key) {
			return score, nil
		}
	}
	return 0, nil
}

func entries(urls ...string) []types.FrontierEntry {
	out := make([]types.FrontierEntry, 0, len(urls))
	for _, u := range urls {
		out = append(out, types.FrontierEntry{URL: u})
	}
	return out
}

func newTestFilter(scorer SimilarityScorer, opts Options) *Filter {
	return NewFilter(scorer, opts, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestApplyDropsNonPageLinks(t *testing.T) {
	f := newTestFilter(nil, Options{})
	got := f.Apply(context.Background(), entries(
		"mailto:sales@example.com",
		"javascript:void(0)",
		"tel:+15551234",
		"/brochure.pdf",
		"/styles.css",
		"/section#reviews",
		"/catalog",
	), "widgets", "https://shop.example.com/")

	if len(got) != 1 || got[0].URL != "https://shop.example.com/catalog" {
		t.Fatalf("expected only the catalog link, got %+v", got)
	}
}

func TestApplyBlocksKeywordsAndExternalDomains(t *testing.T) {
	f := newTestFilter(nil, Options{})
	got := f.Apply(context.Background(), entries(
		"/login",
		"/cart",
		"/about",
		"https://tracker.invalid/pixel",
		"https://sub.shop.example.com/deals",
		"/products",
	), "widgets", "https://shop.example.com/")

	urls := make([]string, 0, len(got))
	for _, e := range got {
		urls = append(urls, e.URL)
	}
	want := map[string]bool{
		"https://sub.shop.example.com/deals": true,
		"https://shop.example.com/products":  true,
	}
	if len(urls) != len(want) {
		t.Fatalf("expected %d links, got %v", len(want), urls)
	}
	for _, u := range urls {
		if !want[u] {
			t.Fatalf("unexpected link survived: %s", u)
		}
	}
}

func TestApplyDropsExcludedDomains(t *testing.T) {
	f := newTestFilter(nil, Options{ExcludedDomains: []string{"Ads.shop.example.com"}})
	got := f.Apply(context.Background(), entries(
		"https://ads.shop.example.com/banner",
		"https://shop.example.com/products",
	), "widgets", "https://shop.example.com/")

	if len(got) != 1 || got[0].URL != "https://shop.example.com/products" {
		t.Fatalf("excluded domain survived: %v", got)
	}
}

func TestApplyKeepsExternalWhenConfigured(t *testing.T) {
	f := newTestFilter(nil, Options{FollowExternal: true})
	got := f.Apply(context.Background(), entries("https://other.example.org/widgets"),
		"widgets", "https://shop.example.com/")
	if len(got) != 1 {
		t.Fatalf("expected external link kept, got %+v", got)
	}
}

func TestApplyScoresAndSorts(t *testing.T) {
	scorer := fixedScorer{scores: map[string]float64{"deals": 0.9}}
	f := newTestFilter(scorer, Options{InstructionWeight: 0.5})

	got := f.Apply(context.Background(), entries(
		"/random-page",
		"/widget-catalog",
		"/deals",
	), "widget catalog", "https://shop.example.com/")

	if len(got) != 3 {
		t.Fatalf("expected 3 links, got %+v", got)
	}
	// widget-catalog matches both instruction words: 2 * 0.5 = 1.0, beating
	// the 0.9 similarity of deals.
	if got[0].URL != "https://shop.example.com/widget-catalog" {
		t.Fatalf("expected keyword-rich link first, got %s (score %f)", got[0].URL, got[0].Score)
	}
	if got[1].URL != "https://shop.example.com/deals" {
		t.Fatalf("expected similarity-scored link second, got %s", got[1].URL)
	}
	if got[2].Score != 0 {
		t.Fatalf("expected zero score for the unrelated link, got %f", got[2].Score)
	}
}

func TestApplyDedupesKeepingFirst(t *testing.T) {
	f := newTestFilter(nil, Options{})
	got := f.Apply(context.Background(), entries(
		"/catalog",
		"https://shop.example.com/catalog",
	), "widgets", "https://shop.example.com/")
	if len(got) != 1 {
		t.Fatalf("expected duplicates collapsed, got %+v", got)
	}
}

func TestApplyCapsFrontier(t *testing.T) {
	f := newTestFilter(nil, Options{MaxLinks: 2})
	got := f.Apply(context.Background(), entries("/a", "/b", "/c", "/d"),
		"widgets", "https://shop.example.com/")
	if len(got) != 2 {
		t.Fatalf("expected the frontier capped at 2, got %d", len(got))
	}
}
