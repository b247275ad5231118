package extract

import (
	"testing"

	"github.com/AmazyanAyoub/agent-scarper/pkg/types"
)

var mapping = types.FieldMapping{
	Title: "h3",
	Price: ".price",
	Image: "img",
	Link:  "a",
}

func TestRecordsExtractsFields(t *testing.T) {
	html := `<div class="card">
		<h3>Red Widget</h3>
		<a href="/product/1">view</a>
		<img src="/img/red.jpg">
		<span class="price">$19.99</span>
	</div>`

	got := Records(html, "div.card", mapping, "https://shop.example.com/search", 0)
	if len(got) != 1 {
		t.Fatalf("expected one record, got %+v", got)
	}
	rec := got[0]
	if rec.Title != "Red Widget" || rec.Price != "$19.99" {
		t.Fatalf("unexpected fields: %+v", rec)
	}
	if rec.URL != "https://shop.example.com/product/1" {
		t.Fatalf("link not resolved against base: %s", rec.URL)
	}
	if rec.ImageURL != "https://shop.example.com/img/red.jpg" {
		t.Fatalf("image not resolved against base: %s", rec.ImageURL)
	}
}

func TestRecordsImageAttributePriority(t *testing.T) {
	cases := []struct {
		name string
		img  string
		want string
	}{
		{"lazy data-src wins over src", `<img data-src="/lazy.jpg" src="/placeholder.gif">`, "https://s.example.com/lazy.jpg"},
		{"data-original wins over srcset", `<img data-original="/orig.jpg" srcset="/small.jpg 1x, /big.jpg 2x">`, "https://s.example.com/orig.jpg"},
		{"srcset keeps first URL only", `<img srcset="/small.jpg 1x, /big.jpg 2x" src="/fallback.jpg">`, "https://s.example.com/small.jpg"},
		{"plain src as last resort", `<img src="/plain.jpg">`, "https://s.example.com/plain.jpg"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			html := `<div class="card"><h3>Thing</h3>` + tc.img + `</div>`
			got := Records(html, "div.card", mapping, "https://s.example.com/", 0)
			if len(got) != 1 {
				t.Fatalf("expected one record, got %+v", got)
			}
			if got[0].ImageURL != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got[0].ImageURL)
			}
		})
	}
}

func TestRecordsDedupe(t *testing.T) {
	html := `
	<div class="card"><h3>Widget</h3><a href="/p/1">x</a><span class="price">$1</span></div>
	<div class="card"><h3>Widget again</h3><a href="/p/1">x</a><span class="price">$2</span></div>
	<div class="card"><h3>No Link</h3></div>
	<div class="card"><h3>no link</h3></div>`

	got := Records(html, "div.card", mapping, "https://s.example.com/", 0)
	if len(got) != 2 {
		t.Fatalf("expected duplicate link and duplicate title collapsed, got %+v", got)
	}
	if got[0].Price != "$1" {
		t.Fatal("dedupe must keep the first occurrence")
	}
}

func TestRecordsMappingAlternatives(t *testing.T) {
	alt := types.FieldMapping{Title: "h2, h3", Link: "a"}
	html := `<div class="card"><h3>Fallback Title</h3><a href="/p/9">x</a></div>`
	got := Records(html, "div.card", alt, "https://s.example.com/", 0)
	if len(got) != 1 || got[0].Title != "Fallback Title" {
		t.Fatalf("expected the second alternative to match, got %+v", got)
	}
}

func TestRecordsSkipsEmptyCardsAndHonorsLimit(t *testing.T) {
	html := `
	<div class="card"></div>
	<div class="card"><h3>A</h3><a href="/a">x</a></div>
	<div class="card"><h3>B</h3><a href="/b">x</a></div>
	<div class="card"><h3>C</h3><a href="/c">x</a></div>`

	got := Records(html, "div.card", mapping, "https://s.example.com/", 2)
	if len(got) != 2 {
		t.Fatalf("expected the limit respected, got %d", len(got))
	}
	if got[0].Title != "A" {
		t.Fatalf("empty card should be skipped, got %+v", got[0])
	}
}
