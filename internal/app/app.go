// Package app wires configuration into the crawl and ecommerce pipelines.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/AmazyanAyoub/agent-scarper/internal/botwall"
	"github.com/AmazyanAyoub/agent-scarper/internal/classify"
	"github.com/AmazyanAyoub/agent-scarper/internal/config"
	"github.com/AmazyanAyoub/agent-scarper/internal/crawler"
	"github.com/AmazyanAyoub/agent-scarper/internal/ecommerce"
	"github.com/AmazyanAyoub/agent-scarper/internal/export"
	"github.com/AmazyanAyoub/agent-scarper/internal/fetcher"
	"github.com/AmazyanAyoub/agent-scarper/internal/frontier"
	"github.com/AmazyanAyoub/agent-scarper/internal/processor"
	robotsclient "github.com/AmazyanAyoub/agent-scarper/internal/robots"
	"github.com/AmazyanAyoub/agent-scarper/internal/selector"
	"github.com/AmazyanAyoub/agent-scarper/internal/session"
	"github.com/AmazyanAyoub/agent-scarper/pkg/types"
)

// Capabilities are the externally-provided model hooks. Every field is
// optional; missing ones put the pipeline in a degraded but functional mode.
type Capabilities struct {
	Verifier     crawler.Verifier
	Scorer       frontier.SimilarityScorer
	Classifier   classify.Classifier
	IntentParser ecommerce.IntentParser
	SearchRanker selector.SearchRanker
	MapRanker    selector.MappingRanker
}

// Outcome is the CLI-facing result of one run.
type Outcome struct {
	SiteType    classify.SiteType
	Crawl       *types.CrawlOutcome
	Flow        *ecommerce.FlowResult
	OutputPaths []string
}

// App owns all wired components for one process lifetime.
type App struct {
	cfg      config.Config
	logger   *slog.Logger
	gateway  *fetcher.Gateway
	orch     *crawler.Orchestrator
	strategy *ecommerce.Strategy
	classify *classify.Service
	exporter *export.Exporter

	closers []func() error
}

// New builds the full pipeline from configuration.
func New(cfg config.Config, caps Capabilities) (*App, error) {
	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	sessions, err := session.NewFileStore(cfg.Session.Dir)
	if err != nil {
		return nil, fmt.Errorf("session store: %w", err)
	}

	httpFetcher := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:    cfg.Browser.UserAgent,
		MaxBodyBytes: cfg.Browser.MaxBodyBytes,
	})

	browser := fetcher.NewChromedpBrowser(fetcher.BrowserOptions{
		Headless:           cfg.Browser.Headless,
		UserAgent:          cfg.Browser.UserAgent,
		NavigationTimeout:  cfg.Browser.NavigationTimeout.Duration,
		CaptureDelay:       cfg.Browser.CaptureDelay.Duration,
		ConcurrentSessions: cfg.Browser.ConcurrentSessions,
		MaxBodyBytes:       cfg.Browser.MaxBodyBytes,
	}, sessions, logger)

	limiter := fetcher.NewDomainLimiter(cfg.Politeness.PerDomainDelay.Duration, fetcher.RateLimiterSettings{
		Requests: cfg.Politeness.RateLimit.Requests,
		Window:   cfg.Politeness.RateLimit.Window.Duration,
	})

	gateway, err := fetcher.NewGateway(fetcher.GatewayOptions{
		Browser:    browser,
		Solver:     fetcher.NewInteractiveSolver(cfg.Browser.UserAgent, logger),
		Detector:   botwall.NewDetector(sessions),
		Sessions:   sessions,
		Limiter:    limiter,
		Robots:     robotsclient.NewAgent(cfg.Robots, cfg.Crawl.ExcludedDomains, httpFetcher.Client()),
		ManualWait: cfg.Browser.ManualSolveWait.Duration,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	filter := frontier.NewFilter(caps.Scorer, frontier.Options{
		MaxLinks:          cfg.Crawl.MaxFrontierLinks,
		BlockKeywords:     cfg.Crawl.BlockKeywords,
		ExcludedDomains:   cfg.Crawl.ExcludedDomains,
		FollowExternal:    cfg.Crawl.FollowExternal,
		InstructionWeight: cfg.Crawl.InstructionWeight,
	}, logger)

	cleaner := processor.NewCleaner(cfg.Crawl.MinContentLength)
	orch, err := crawler.NewOrchestrator(cfg.Crawl, gateway, cleaner, filter, caps.Verifier, cfg.Browser.CaptureDelay.Duration, logger)
	if err != nil {
		return nil, err
	}

	exporter, err := export.NewExporter(cfg.Export.Dir, cfg.Export.Formats, logger)
	if err != nil {
		return nil, err
	}

	cache, err := selector.NewCache(cfg.Selector.CacheDir)
	if err != nil {
		return nil, err
	}
	validator, err := selector.NewValidator(browser, nil, cfg.Browser.NavigationTimeout.Duration, logger)
	if err != nil {
		return nil, err
	}

	strategy, err := ecommerce.NewStrategy(gateway, validator, cache, exporter, cfg.Selector, cfg.Browser.CaptureDelay.Duration, logger)
	if err != nil {
		return nil, err
	}
	strategy.WithIntentParser(caps.IntentParser).
		WithIntentTimeout(cfg.Intent.Timeout.Duration).
		WithSearchRanker(caps.SearchRanker).
		WithMappingRanker(caps.MapRanker)

	var closers []func() error
	if cfg.Export.DB.Driver != "" && cfg.Export.DB.DSN != "" {
		sqlWriter, err := export.NewSQLWriter(cfg.Export.DB)
		if err != nil {
			return nil, err
		}
		strategy.WithRecordSink(sqlWriter)
		closers = append(closers, sqlWriter.Close)
	}

	memory := classify.NewMemory(cfg.Classify.MemoryPath, cfg.Classify.MaxPerLabel, cfg.Classify.MaxTotalSamples)
	classSvc := classify.NewService(httpFetcher, caps.Classifier, memory, cfg.Classify.SnippetBytes, cfg.Classify.Timeout.Duration, logger)

	return &App{
		cfg:      cfg,
		logger:   logger,
		gateway:  gateway,
		orch:     orch,
		strategy: strategy,
		classify: classSvc,
		exporter: exporter,
		closers:  closers,
	}, nil
}

// Run classifies the seed site and dispatches to the matching pipeline:
// ecommerce sites get the search-and-extract flow, everything else the
// generic instruction-verified crawl.
func (a *App) Run(ctx context.Context, seedURL, instruction string) (Outcome, error) {
	siteType := a.classify.ClassifySite(ctx, seedURL)
	a.logger.Info("site classified", "url", seedURL, "type", string(siteType))

	out := Outcome{SiteType: siteType}
	if siteType == classify.SiteTypeEcommerce {
		flow, err := a.strategy.Run(ctx, seedURL, instruction)
		if err != nil {
			return out, err
		}
		out.Flow = &flow
		if flow.OutputPath != "" {
			out.OutputPaths = append(out.OutputPaths, flow.OutputPath)
		}
		return out, nil
	}

	crawl, err := a.orch.Run(ctx, seedURL, instruction)
	if err != nil {
		return out, err
	}
	out.Crawl = &crawl

	if crawl.Status != types.StatusNoResults && len(crawl.Results) > 0 {
		paths, err := a.exporter.WriteResults(session.Domain(seedURL), crawl.Results)
		if err != nil {
			return out, err
		}
		out.OutputPaths = paths
	}
	return out, nil
}

// Close releases resources owned by the app.
func (a *App) Close() error {
	var err error
	for _, closer := range a.closers {
		if cerr := closer(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}
	return err
}

func buildLogger(cfg config.LoggingConfig) (*slog.Logger, error) {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("unsupported log level %q", cfg.Level)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Structured {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler), nil
}
