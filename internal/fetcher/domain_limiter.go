package fetcher

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterSettings configures token-bucket style rate limiting per host.
type RateLimiterSettings struct {
	Requests int
	Window   time.Duration
}

// DomainLimiter spaces fetches per host: a fixed politeness gap between
// consecutive requests plus an optional token-bucket rate limit.
type DomainLimiter struct {
	gap     time.Duration
	limited bool
	every   rate.Limit
	burst   int

	mu    sync.Mutex
	hosts map[string]*hostSlot
}

type hostSlot struct {
	next   time.Time
	bucket *rate.Limiter
}

// NewDomainLimiter creates a limiter. A zero gap and empty rate settings
// yield a limiter that never blocks.
func NewDomainLimiter(gap time.Duration, cfg RateLimiterSettings) *DomainLimiter {
	d := &DomainLimiter{gap: gap, hosts: make(map[string]*hostSlot)}
	if cfg.Requests > 0 && cfg.Window > 0 {
		interval := cfg.Window / time.Duration(cfg.Requests)
		if interval <= 0 {
			interval = time.Millisecond
		}
		d.limited = true
		d.every = rate.Every(interval)
		d.burst = cfg.Requests
	}
	return d
}

// Wait reserves the next fetch slot for host and blocks until it arrives.
// Slots are claimed under the lock, so concurrent batch workers targeting
// one host queue up instead of being released together.
func (d *DomainLimiter) Wait(ctx context.Context, host string) error {
	if d == nil || host == "" {
		return nil
	}
	if d.gap <= 0 && !d.limited {
		return nil
	}
	host = strings.ToLower(host)

	d.mu.Lock()
	slot, ok := d.hosts[host]
	if !ok {
		slot = &hostSlot{}
		if d.limited {
			slot.bucket = rate.NewLimiter(d.every, d.burst)
		}
		d.hosts[host] = slot
	}
	now := time.Now()
	pause := slot.next.Sub(now)
	if pause < 0 {
		pause = 0
	}
	if d.gap > 0 {
		slot.next = now.Add(pause + d.gap)
	}
	bucket := slot.bucket
	d.mu.Unlock()

	if pause > 0 {
		timer := time.NewTimer(pause)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if bucket != nil {
		return bucket.Wait(ctx)
	}
	return nil
}
