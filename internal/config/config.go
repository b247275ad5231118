package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the full configuration required to initialise the agent.
type Config struct {
	Crawl      CrawlConfig      `yaml:"crawl"`
	Browser    BrowserConfig    `yaml:"browser"`
	Politeness PolitenessConfig `yaml:"politeness"`
	Robots     RobotsConfig     `yaml:"robots"`
	Selector   SelectorConfig   `yaml:"selector"`
	Intent     IntentConfig     `yaml:"intent"`
	Session    SessionConfig    `yaml:"session"`
	Classify   ClassifyConfig   `yaml:"classify"`
	Export     ExportConfig     `yaml:"export"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// CrawlConfig controls the crawl state machine.
type CrawlConfig struct {
	MaxDepth          int      `yaml:"max_depth"`
	TargetResults     int      `yaml:"target_results"`
	BatchSize         int      `yaml:"batch_size"`
	BatchWorkers      int      `yaml:"batch_workers"`
	MaxFrontierLinks  int      `yaml:"max_frontier_links"`
	MaxTransitions    int      `yaml:"max_transitions"`
	VerifyTimeout     Duration `yaml:"verify_timeout"`
	MinContentLength  int      `yaml:"min_content_length"`
	BlockKeywords     []string `yaml:"block_keywords"`
	ExcludedDomains   []string `yaml:"excluded_domains"`
	FollowExternal    bool     `yaml:"follow_external"`
	MaxLinksPerPage   int      `yaml:"max_links_per_page"`
	InstructionWeight float64  `yaml:"instruction_weight"`
}

// BrowserConfig controls the headless-browser fetch layer.
type BrowserConfig struct {
	Headless           bool     `yaml:"headless"`
	UserAgent          string   `yaml:"user_agent"`
	NavigationTimeout  Duration `yaml:"navigation_timeout"`
	CaptureDelay       Duration `yaml:"capture_delay"`
	ConcurrentSessions int      `yaml:"concurrent_sessions"`
	MaxBodyBytes       int64    `yaml:"max_body_bytes"`
	ManualSolveWait    Duration `yaml:"manual_solve_wait"`
}

// PolitenessConfig throttles per-domain traffic.
type PolitenessConfig struct {
	PerDomainDelay Duration        `yaml:"per_domain_delay"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig applies a token bucket per domain.
type RateLimitConfig struct {
	Requests int      `yaml:"requests"`
	Window   Duration `yaml:"window"`
}

// RobotsConfig configures robots.txt handling.
type RobotsConfig struct {
	Respect   bool     `yaml:"respect"`
	Overrides []string `yaml:"overrides"`
	UserAgent string   `yaml:"user_agent"`
	CacheTTL  Duration `yaml:"cache_ttl"`
}

// SelectorConfig tunes structural selector discovery.
type SelectorConfig struct {
	MinSiblings    int    `yaml:"min_siblings"`
	MaxCardMatches int    `yaml:"max_card_matches"`
	TopK           int    `yaml:"top_k"`
	MaxNodes       int    `yaml:"max_nodes"`
	SearchLimit    int    `yaml:"search_limit"`
	CacheDir       string `yaml:"cache_dir"`
}

// SessionConfig locates the per-domain browser session store.
type SessionConfig struct {
	Dir string `yaml:"dir"`
}

// IntentConfig bounds the external search-intent parser call.
type IntentConfig struct {
	Timeout Duration `yaml:"timeout"`
}

// ClassifyConfig controls the site-type classification memory and the
// deadline on the external classifier call.
type ClassifyConfig struct {
	MemoryPath      string   `yaml:"memory_path"`
	SnippetBytes    int      `yaml:"snippet_bytes"`
	MaxPerLabel     int      `yaml:"max_per_label"`
	MaxTotalSamples int      `yaml:"max_total_samples"`
	Timeout         Duration `yaml:"timeout"`
}

// ExportConfig selects output sinks for verified results and records.
type ExportConfig struct {
	Dir     string    `yaml:"dir"`
	Formats []string  `yaml:"formats"`
	DB      SQLConfig `yaml:"db"`
}

// SQLConfig describes an optional relational sink for extracted records.
type SQLConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	Table  string `yaml:"table"`
}

// LoggingConfig selects log verbosity and format.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Structured bool   `yaml:"structured"`
}

// Default returns a Config populated with sensible defaults.
func Default() Config {
	return Config{
		Crawl: CrawlConfig{
			MaxDepth:          3,
			TargetResults:     3,
			BatchSize:         3,
			BatchWorkers:      2,
			MaxFrontierLinks:  100,
			MaxTransitions:    200,
			VerifyTimeout:     DurationFrom(30 * time.Second),
			MinContentLength:  300,
			FollowExternal:    false,
			MaxLinksPerPage:   200,
			InstructionWeight: 0.5,
		},
		Browser: BrowserConfig{
			Headless:           true,
			NavigationTimeout:  DurationFrom(60 * time.Second),
			CaptureDelay:       DurationFrom(3 * time.Second),
			ConcurrentSessions: 1,
			MaxBodyBytes:       6 * 1024 * 1024,
			ManualSolveWait:    DurationFrom(120 * time.Second),
		},
		Politeness: PolitenessConfig{
			PerDomainDelay: DurationFrom(250 * time.Millisecond),
		},
		Robots: RobotsConfig{
			Respect:   false,
			Overrides: []string{},
			UserAgent: "agent-scarper/1.0",
			CacheTTL:  DurationFrom(6 * time.Hour),
		},
		Selector: SelectorConfig{
			MinSiblings:    3,
			MaxCardMatches: 5000,
			TopK:           3,
			MaxNodes:       50,
			SearchLimit:    10,
			CacheDir:       "data/selectors",
		},
		Intent: IntentConfig{
			Timeout: DurationFrom(30 * time.Second),
		},
		Session: SessionConfig{
			Dir: "data/sessions",
		},
		Classify: ClassifyConfig{
			MemoryPath:      "data/classified_sites.json",
			SnippetBytes:    1000,
			MaxPerLabel:     2,
			MaxTotalSamples: 30,
			Timeout:         DurationFrom(30 * time.Second),
		},
		Export: ExportConfig{
			Dir:     "outputs",
			Formats: []string{"json", "csv"},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Structured: true,
		},
	}
}

// Load reads, merges, and validates configuration from a YAML file.
func Load(path string) (*Config, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer fh.Close()
	return LoadFromReader(fh)
}

// LoadFromReader decodes configuration from an arbitrary reader.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decodeYAML(r, &cfg); err != nil {
		return nil, err
	}
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// Validate enforces required invariants for the agent configuration.
func (c Config) Validate() error {
	if c.Crawl.MaxDepth <= 0 {
		return fmt.Errorf("crawl.max_depth must be > 0 (got %d)", c.Crawl.MaxDepth)
	}
	if c.Crawl.TargetResults <= 0 {
		return fmt.Errorf("crawl.target_results must be > 0 (got %d)", c.Crawl.TargetResults)
	}
	if c.Crawl.BatchSize <= 0 {
		return fmt.Errorf("crawl.batch_size must be > 0 (got %d)", c.Crawl.BatchSize)
	}
	if c.Crawl.BatchWorkers <= 0 {
		return fmt.Errorf("crawl.batch_workers must be > 0 (got %d)", c.Crawl.BatchWorkers)
	}
	if c.Crawl.MaxTransitions <= 0 {
		return fmt.Errorf("crawl.max_transitions must be > 0 (got %d)", c.Crawl.MaxTransitions)
	}
	if c.Browser.MaxBodyBytes <= 0 {
		return fmt.Errorf("browser.max_body_bytes must be > 0 (got %d)", c.Browser.MaxBodyBytes)
	}
	if c.Browser.ConcurrentSessions <= 0 {
		return fmt.Errorf("browser.concurrent_sessions must be > 0 (got %d)", c.Browser.ConcurrentSessions)
	}
	if c.Selector.MinSiblings < 2 {
		return fmt.Errorf("selector.min_siblings must be >= 2 (got %d)", c.Selector.MinSiblings)
	}
	if c.Selector.MaxCardMatches <= c.Selector.MinSiblings {
		return fmt.Errorf("selector.max_card_matches must exceed min_siblings (got %d)", c.Selector.MaxCardMatches)
	}
	if c.Selector.TopK <= 0 {
		return fmt.Errorf("selector.top_k must be > 0 (got %d)", c.Selector.TopK)
	}
	if c.Robots.Respect && strings.TrimSpace(c.Robots.UserAgent) == "" {
		return errors.New("robots.user_agent must be set when robots.respect is true")
	}
	if rl := c.Politeness.RateLimit; rl.Requests < 0 {
		return fmt.Errorf("politeness.rate_limit.requests must be >= 0 (got %d)", rl.Requests)
	}
	for _, format := range c.Export.Formats {
		switch format {
		case "json", "csv":
		default:
			return fmt.Errorf("unsupported export format %q", format)
		}
	}
	if c.Export.DB.Driver != "" && c.Export.DB.DSN == "" {
		return errors.New("export.db.dsn must be set when export.db.driver is set")
	}
	return nil
}

func (c *Config) normalise() {
	c.Robots.UserAgent = strings.TrimSpace(c.Robots.UserAgent)
	c.Browser.UserAgent = strings.TrimSpace(c.Browser.UserAgent)
	c.Selector.CacheDir = strings.TrimSpace(c.Selector.CacheDir)
	c.Session.Dir = strings.TrimSpace(c.Session.Dir)
	c.Export.Dir = strings.TrimSpace(c.Export.Dir)

	if len(c.Robots.Overrides) > 0 {
		c.Robots.Overrides = dedupeLower(c.Robots.Overrides)
	}
	if len(c.Crawl.ExcludedDomains) > 0 {
		c.Crawl.ExcludedDomains = dedupeLower(c.Crawl.ExcludedDomains)
	}
	if len(c.Crawl.BlockKeywords) > 0 {
		c.Crawl.BlockKeywords = dedupeLower(c.Crawl.BlockKeywords)
	}
	if len(c.Export.Formats) > 0 {
		c.Export.Formats = dedupeLower(c.Export.Formats)
	}
}

func dedupeLower(values []string) []string {
	unique := make(map[string]struct{}, len(values))
	cleaned := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, ok := unique[v]; ok {
			continue
		}
		unique[v] = struct{}{}
		cleaned = append(cleaned, v)
	}
	sort.Strings(cleaned)
	return cleaned
}

// Enabled reports whether per-domain rate limiting is active.
func (r RateLimitConfig) Enabled() bool {
	return r.Requests > 0 && !r.Window.IsZero()
}
