// Package crawler runs the crawl loop: seed verification, link discovery,
// batched content fetches, and termination decisions.
package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AmazyanAyoub/agent-scarper/internal/config"
	"github.com/AmazyanAyoub/agent-scarper/internal/frontier"
	"github.com/AmazyanAyoub/agent-scarper/internal/processor"
	"github.com/AmazyanAyoub/agent-scarper/pkg/types"
)

// PageFetcher retrieves one page's rendered HTML. Empty content with a nil
// error means the fetch was softly refused (robots, unresolved bot wall).
// *fetcher.Gateway satisfies it.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string, wait time.Duration) (string, error)
}

// Verifier judges whether a page's text satisfies the user instruction.
// Implementations are external (LLM-backed); errors count as "not verified".
type Verifier interface {
	Verify(ctx context.Context, instruction, pageText string) (bool, error)
}

// state names one phase of the crawl loop.
type state string

const (
	stateSeed           state = "seed"
	stateVerifySeed     state = "verify_seed"
	stateCrawlLinks     state = "crawl_links"
	stateFilterLinks    state = "filter_links"
	stateCrawlHTMLBatch state = "crawl_html_batch"
	stateVerifyBatch    state = "verify_batch"
	stateExport         state = "export"
	stateNoResults      state = "no_results"
)

// crawlState is the full mutable state threaded through one crawl run.
type crawlState struct {
	seedURL     string
	instruction string

	depth      int
	batchIndex int

	frontier    []types.FrontierEntry
	linkMu      sync.Mutex
	linkSources []string // HTML of pages fetched at the current depth

	candidates []types.CandidatePage
	results    []types.CandidatePage
	verified   int

	visitedLink  *VisitedSet
	visitedFetch *VisitedSet

	diagnostics []string
}

// Orchestrator drives the crawl state machine.
type Orchestrator struct {
	cfg      config.CrawlConfig
	gateway  PageFetcher
	cleaner  *processor.Cleaner
	filter   *frontier.Filter
	verifier Verifier
	wait     time.Duration
	logger   *slog.Logger
}

// NewOrchestrator wires the crawl loop. All collaborators are required except
// the verifier, without which every candidate counts as verified.
func NewOrchestrator(cfg config.CrawlConfig, gw PageFetcher, cleaner *processor.Cleaner, filter *frontier.Filter, verifier Verifier, wait time.Duration, logger *slog.Logger) (*Orchestrator, error) {
	if gw == nil {
		return nil, fmt.Errorf("orchestrator requires a fetch gateway")
	}
	if cleaner == nil {
		cleaner = processor.NewCleaner(cfg.MinContentLength)
	}
	if filter == nil {
		return nil, fmt.Errorf("orchestrator requires a frontier filter")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 3
	}
	if cfg.BatchWorkers <= 0 {
		cfg.BatchWorkers = 1
	}
	if cfg.MaxTransitions <= 0 {
		cfg.MaxTransitions = 200
	}
	return &Orchestrator{
		cfg:      cfg,
		gateway:  gw,
		cleaner:  cleaner,
		filter:   filter,
		verifier: verifier,
		wait:     wait,
		logger:   logger,
	}, nil
}

// Run executes the crawl from seedURL until enough pages verify, the depth
// limit exhausts, or the transition ceiling trips.
func (o *Orchestrator) Run(ctx context.Context, seedURL, instruction string) (types.CrawlOutcome, error) {
	parsed, err := url.Parse(seedURL)
	if err != nil || parsed.Host == "" {
		return types.CrawlOutcome{}, fmt.Errorf("invalid seed url %q", seedURL)
	}

	st := &crawlState{
		seedURL:      seedURL,
		instruction:  instruction,
		visitedLink:  NewVisitedSet(),
		visitedFetch: NewVisitedSet(),
	}

	current := stateSeed
	for transitions := 0; transitions < o.cfg.MaxTransitions; transitions++ {
		if ctx.Err() != nil {
			return o.outcome(st, types.StatusPartial), ctx.Err()
		}
		o.logger.Debug("crawl transition", "state", string(current), "depth", st.depth, "verified", st.verified)

		var next state
		switch current {
		case stateSeed:
			next = o.stepSeed(ctx, st)
		case stateVerifySeed:
			next = o.stepVerify(ctx, st)
		case stateCrawlLinks:
			next = o.stepCrawlLinks(st)
		case stateFilterLinks:
			next = o.stepFilterLinks(ctx, st)
		case stateCrawlHTMLBatch:
			next = o.stepCrawlBatch(ctx, st)
		case stateVerifyBatch:
			next = o.stepVerify(ctx, st)
		case stateExport:
			return o.outcome(st, types.StatusOK), nil
		case stateNoResults:
			return o.outcome(st, types.StatusNoResults), nil
		default:
			return types.CrawlOutcome{}, fmt.Errorf("unknown crawl state %q", current)
		}
		current = next
	}

	st.diagnostics = append(st.diagnostics, "transition ceiling reached")
	if st.verified > 0 {
		return o.outcome(st, types.StatusPartial), nil
	}
	return o.outcome(st, types.StatusNoResults), nil
}

func (o *Orchestrator) outcome(st *crawlState, status types.CrawlStatus) types.CrawlOutcome {
	return types.CrawlOutcome{
		Results:     st.results,
		Status:      status,
		Diagnostics: st.diagnostics,
	}
}

// stepSeed fetches the seed page and stages it for verification. The seed
// counts as depth 1; a failed or refused fetch is recorded and the crawl
// proceeds with no candidate rather than aborting.
func (o *Orchestrator) stepSeed(ctx context.Context, st *crawlState) state {
	st.visitedFetch.VisitIfNew(st.seedURL)
	st.depth = 1
	html, err := o.gateway.Fetch(ctx, st.seedURL, o.wait)
	if err != nil {
		st.diagnostics = append(st.diagnostics, fmt.Sprintf("seed fetch: %v", err))
		return stateVerifySeed
	}
	if html == "" {
		st.diagnostics = append(st.diagnostics, "seed fetch returned no content")
		return stateVerifySeed
	}
	st.linkSources = append(st.linkSources, html)
	text := o.cleaner.ExtractMainText(html)
	if text != "" {
		st.candidates = append(st.candidates, types.CandidatePage{URL: st.seedURL, Text: text})
	}
	return stateVerifySeed
}

// stepVerify judges staged candidates and then picks the next phase.
func (o *Orchestrator) stepVerify(ctx context.Context, st *crawlState) state {
	for i := range st.candidates {
		cand := &st.candidates[i]
		ok := o.verifyOne(ctx, st.instruction, cand.Text)
		cand.Verified = ok
		if ok {
			st.verified++
			st.results = append(st.results, *cand)
		}
	}
	st.candidates = st.candidates[:0]
	return o.decide(st)
}

// decide applies the continuation rules after a verification round. Pending
// batches at the current depth run before the crawl descends a level.
func (o *Orchestrator) decide(st *crawlState) state {
	if st.verified >= o.cfg.TargetResults {
		return stateExport
	}
	if st.batchIndex*o.cfg.BatchSize < len(st.frontier) {
		return stateCrawlHTMLBatch
	}
	if st.depth < o.cfg.MaxDepth {
		return stateCrawlLinks
	}
	if st.verified > 0 {
		return stateExport
	}
	return stateNoResults
}

// stepCrawlLinks harvests raw anchors from every page fetched at the current
// depth.
func (o *Orchestrator) stepCrawlLinks(st *crawlState) state {
	var raw []types.FrontierEntry
	for _, html := range st.linkSources {
		raw = append(raw, extractLinks(html, o.cfg.MaxLinksPerPage)...)
	}
	st.linkSources = nil
	st.frontier = raw
	return stateFilterLinks
}

// stepFilterLinks prunes and ranks the raw frontier, drops already-seen
// links, and advances the depth counter.
func (o *Orchestrator) stepFilterLinks(ctx context.Context, st *crawlState) state {
	ranked := o.filter.Apply(ctx, st.frontier, st.instruction, st.seedURL)

	fresh := ranked[:0]
	for _, entry := range ranked {
		if st.visitedLink.VisitIfNew(entry.URL) {
			fresh = append(fresh, entry)
		}
	}
	st.frontier = fresh
	st.batchIndex = 0
	st.depth++

	if len(st.frontier) == 0 {
		return o.decide(st)
	}
	return stateCrawlHTMLBatch
}

// stepCrawlBatch fetches the next frontier slice concurrently and stages the
// cleaned pages for verification in frontier order.
func (o *Orchestrator) stepCrawlBatch(ctx context.Context, st *crawlState) state {
	start := st.batchIndex * o.cfg.BatchSize
	if start >= len(st.frontier) {
		return o.decide(st)
	}
	end := start + o.cfg.BatchSize
	if end > len(st.frontier) {
		end = len(st.frontier)
	}
	batch := st.frontier[start:end]
	st.batchIndex++

	pages := make([]types.CandidatePage, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.BatchWorkers)
	for i, entry := range batch {
		i, entry := i, entry
		if !st.visitedFetch.VisitIfNew(entry.URL) {
			continue
		}
		g.Go(func() error {
			html, err := o.gateway.Fetch(gctx, entry.URL, o.wait)
			if err != nil {
				o.logger.Warn("batch fetch failed", "url", entry.URL, "error", err)
				return nil
			}
			if html == "" {
				return nil
			}
			pages[i] = types.CandidatePage{URL: entry.URL, Text: o.cleaner.ExtractMainText(html), Score: entry.Score}
			st.appendLinkSource(html)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		st.diagnostics = append(st.diagnostics, fmt.Sprintf("batch fetch: %v", err))
	}

	for _, page := range pages {
		if page.URL != "" && page.Text != "" {
			st.candidates = append(st.candidates, page)
		}
	}
	return stateVerifyBatch
}

func (o *Orchestrator) verifyOne(ctx context.Context, instruction, text string) bool {
	if o.verifier == nil {
		return true
	}
	vctx := ctx
	if o.cfg.VerifyTimeout.Duration > 0 {
		var cancel context.CancelFunc
		vctx, cancel = context.WithTimeout(ctx, o.cfg.VerifyTimeout.Duration)
		defer cancel()
	}
	ok, err := o.verifier.Verify(vctx, instruction, text)
	if err != nil {
		o.logger.Warn("verification failed", "error", err)
		return false
	}
	return ok
}

// appendLinkSource is called from batch workers; crawlState is otherwise
// single-threaded, so only this slice needs guarding.
func (st *crawlState) appendLinkSource(html string) {
	st.linkMu.Lock()
	st.linkSources = append(st.linkSources, html)
	st.linkMu.Unlock()
}
