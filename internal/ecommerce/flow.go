package ecommerce

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AmazyanAyoub/agent-scarper/internal/config"
	"github.com/AmazyanAyoub/agent-scarper/internal/export"
	"github.com/AmazyanAyoub/agent-scarper/internal/extract"
	"github.com/AmazyanAyoub/agent-scarper/internal/selector"
	"github.com/AmazyanAyoub/agent-scarper/internal/session"
	"github.com/AmazyanAyoub/agent-scarper/pkg/types"
)

const recordLimit = 10

// PageFetcher retrieves one page's rendered HTML. *fetcher.Gateway
// satisfies it.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string, wait time.Duration) (string, error)
}

// RecordSink optionally persists extracted records beyond the JSON output.
// *export.SQLWriter satisfies it.
type RecordSink interface {
	SaveRecords(ctx context.Context, domain string, records []types.Record) error
}

// FlowResult is what the ecommerce path hands back to the caller.
type FlowResult struct {
	Records        []types.Record
	OutputPath     string
	SearchSelector string
	SearchKeyword  string
}

// Strategy coordinates the ecommerce steps: keyword building, search-box
// discovery and validation, card extraction, and export. Confirmed selectors
// are cached per domain and reused on later runs.
type Strategy struct {
	gateway       PageFetcher
	validator     *selector.Validator
	cache         *selector.Cache
	intent        IntentParser
	searchRanker  selector.SearchRanker
	mapper        selector.MappingRanker
	exporter      *export.Exporter
	sink          RecordSink
	cfg           config.SelectorConfig
	wait          time.Duration
	intentTimeout time.Duration
	logger        *slog.Logger
}

// NewStrategy wires the flow. The intent parser, rankers, and sink are
// optional, but the gateway, validator, cache, and exporter are required.
func NewStrategy(gw PageFetcher, validator *selector.Validator, cache *selector.Cache, exporter *export.Exporter, cfg config.SelectorConfig, wait time.Duration, logger *slog.Logger) (*Strategy, error) {
	if gw == nil || validator == nil || cache == nil || exporter == nil {
		return nil, errors.New("ecommerce strategy requires gateway, validator, cache, and exporter")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Strategy{
		gateway:   gw,
		validator: validator,
		cache:     cache,
		exporter:  exporter,
		cfg:       cfg,
		wait:      wait,
		logger:    logger,
	}, nil
}

// WithIntentParser sets the external search-intent parser.
func (s *Strategy) WithIntentParser(p IntentParser) *Strategy { s.intent = p; return s }

// WithSearchRanker sets the external search-candidate ranker.
func (s *Strategy) WithSearchRanker(r selector.SearchRanker) *Strategy { s.searchRanker = r; return s }

// WithMappingRanker sets the external card-field mapper.
func (s *Strategy) WithMappingRanker(r selector.MappingRanker) *Strategy { s.mapper = r; return s }

// WithRecordSink adds a persistence sink for extracted records.
func (s *Strategy) WithRecordSink(sink RecordSink) *Strategy { s.sink = sink; return s }

// WithIntentTimeout bounds each intent parser call; zero leaves it unbounded.
func (s *Strategy) WithIntentTimeout(d time.Duration) *Strategy { s.intentTimeout = d; return s }

// Run executes the full ecommerce flow against one site.
func (s *Strategy) Run(ctx context.Context, pageURL, instruction string) (FlowResult, error) {
	result := FlowResult{}
	result.SearchKeyword = BuildSearchKeyword(ctx, s.intent, instruction, s.intentTimeout, s.logger)
	domain := session.Domain(pageURL)

	cached, _, err := s.cache.Load(domain)
	if err != nil {
		s.logger.Warn("selector cache read failed", "domain", domain, "error", err)
	}

	if cached.Search != "" {
		s.logger.Info("using cached search selector", "domain", domain, "selector", cached.Search)
		known := []types.SearchCandidate{{Selector: cached.Search, Confidence: 100, Reason: "cached"}}
		sel, page, err := s.validator.ValidateSearch(ctx, pageURL, result.SearchKeyword, known)
		if err == nil {
			result.SearchSelector = sel
			s.populate(ctx, &result, domain, pageURL, page.HTML, cached)
			return result, nil
		}
		s.logger.Warn("cached search selector failed, rediscovering", "domain", domain, "error", err)
	}

	html, err := s.gateway.Fetch(ctx, pageURL, s.wait)
	if err != nil {
		return result, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	if html == "" {
		return result, fmt.Errorf("no content fetched for %s", pageURL)
	}

	candidates := selector.DiscoverSearchInputs(ctx, html, s.searchRanker, s.cfg.SearchLimit)
	if len(candidates) == 0 {
		return result, fmt.Errorf("no search input candidates found on %s", pageURL)
	}

	sel, page, err := s.validator.ValidateSearch(ctx, pageURL, result.SearchKeyword, candidates)
	if err != nil {
		return result, fmt.Errorf("validate search selectors on %s: %w", pageURL, err)
	}
	result.SearchSelector = sel

	cached.Search = sel
	if err := s.cache.Save(domain, cached); err != nil {
		s.logger.Warn("selector cache write failed", "domain", domain, "error", err)
	}

	s.populate(ctx, &result, domain, pageURL, page.HTML, cached)
	return result, nil
}

// populate extracts product cards from the results page, reusing the cached
// card selector when it still yields records and rediscovering otherwise.
func (s *Strategy) populate(ctx context.Context, result *FlowResult, domain, pageURL, resultHTML string, cached selector.SiteSelectors) {
	if resultHTML == "" {
		s.logger.Warn("no result page to extract from", "url", pageURL)
		return
	}

	if cached.Card.Selector != "" && !cached.Card.Mapping.IsZero() {
		records := extract.Records(resultHTML, cached.Card.Selector, cached.Card.Mapping, pageURL, recordLimit)
		if len(records) > 0 {
			result.Records = records
			s.export(ctx, result, domain)
			return
		}
		s.logger.Warn("cached card selector yielded nothing, rediscovering", "domain", domain, "selector", cached.Card.Selector)
	}

	cardCandidates := selector.DiscoverCards(resultHTML, selector.CardOptions{
		MinSiblings: s.cfg.MinSiblings,
		MaxMatches:  s.cfg.MaxCardMatches,
		MaxClusters: s.cfg.MaxNodes,
		TopK:        s.cfg.TopK,
	})
	for _, cand := range cardCandidates {
		mapping := selector.ResolveMapping(ctx, s.mapper, cand.SampleHTML)
		records := extract.Records(resultHTML, cand.Selector, mapping, pageURL, recordLimit)
		if len(records) == 0 {
			continue
		}
		result.Records = records

		cached.Card = selector.CardSelection{Selector: cand.Selector, Mapping: mapping}
		if err := s.cache.Save(domain, cached); err != nil {
			s.logger.Warn("selector cache write failed", "domain", domain, "error", err)
		}
		break
	}
	if len(result.Records) == 0 {
		s.logger.Warn("no product cards extracted", "url", pageURL)
		return
	}
	s.export(ctx, result, domain)
}

func (s *Strategy) export(ctx context.Context, result *FlowResult, domain string) {
	path, err := s.exporter.WriteProducts(domain, result.Records)
	if err != nil {
		s.logger.Error("product export failed", "domain", domain, "error", err)
	} else {
		result.OutputPath = path
	}
	if s.sink != nil {
		if err := s.sink.SaveRecords(ctx, domain, result.Records); err != nil {
			s.logger.Error("record sink failed", "domain", domain, "error", err)
		}
	}
}
