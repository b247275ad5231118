package crawler

import (
	"sync"
	"testing"
)

func TestVisitIfNewMarksOnce(t *testing.T) {
	v := NewVisitedSet()
	if !v.VisitIfNew("https://example.com/a") {
		t.Fatal("first visit should be new")
	}
	if v.VisitIfNew("https://example.com/a") {
		t.Fatal("second visit should not be new")
	}
	if v.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", v.Len())
	}
}

func TestVisitIfNewCanonicalises(t *testing.T) {
	v := NewVisitedSet()
	v.VisitIfNew("https://Example.com:443/a")
	if v.VisitIfNew("https://example.com/a") {
		t.Fatal("default port and host case should collapse to one key")
	}
	if !v.VisitIfNew("https://example.com/a?page=2") {
		t.Fatal("distinct query strings are distinct pages")
	}
}

func TestVisitIfNewConcurrent(t *testing.T) {
	v := NewVisitedSet()
	const workers = 16

	var wg sync.WaitGroup
	wins := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wins <- v.VisitIfNew("https://example.com/contended")
		}()
	}
	wg.Wait()
	close(wins)

	var winners int
	for won := range wins {
		if won {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
}
