package config

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestLoadFromReaderOverridesDefaults(t *testing.T) {
	yaml := `
crawl:
  max_depth: 5
  target_results: 7
  block_keywords: [Login, login, " CART "]
browser:
  navigation_timeout: 90s
logging:
  level: debug
`
	cfg, err := LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Crawl.MaxDepth != 5 || cfg.Crawl.TargetResults != 7 {
		t.Fatalf("overrides not applied: %+v", cfg.Crawl)
	}
	if cfg.Browser.NavigationTimeout.Duration != 90*time.Second {
		t.Fatalf("duration not parsed: %v", cfg.Browser.NavigationTimeout)
	}
	// Untouched sections keep their defaults.
	if cfg.Crawl.BatchSize != 3 {
		t.Fatalf("default batch size lost: %d", cfg.Crawl.BatchSize)
	}
	if got := cfg.Crawl.BlockKeywords; len(got) != 2 || got[0] != "cart" || got[1] != "login" {
		t.Fatalf("keywords not deduped and lowered: %v", got)
	}
}

func TestLoadFromReaderRejectsUnknownFields(t *testing.T) {
	if _, err := LoadFromReader(strings.NewReader("crawl:\n  max_dept: 3\n")); err == nil {
		t.Fatal("expected an error for a misspelled field")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"zero max depth":            func(c *Config) { c.Crawl.MaxDepth = 0 },
		"zero target results":       func(c *Config) { c.Crawl.TargetResults = 0 },
		"zero batch size":           func(c *Config) { c.Crawl.BatchSize = 0 },
		"min siblings below two":    func(c *Config) { c.Selector.MinSiblings = 1 },
		"card cap below siblings":   func(c *Config) { c.Selector.MaxCardMatches = 2 },
		"robots without user agent": func(c *Config) { c.Robots.Respect = true; c.Robots.UserAgent = " " },
		"unknown export format":     func(c *Config) { c.Export.Formats = []string{"xml"} },
		"db driver without dsn":     func(c *Config) { c.Export.DB.Driver = "postgres" },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected a validation error", name)
		}
	}
}

func TestDurationOr(t *testing.T) {
	if got := (Duration{}).Or(time.Minute); got != time.Minute {
		t.Fatalf("got %v", got)
	}
	if got := DurationFrom(5 * time.Second).Or(time.Minute); got != 5*time.Second {
		t.Fatalf("got %v", got)
	}
}

func TestDurationScalarForms(t *testing.T) {
	var d Duration
	if err := d.UnmarshalJSON([]byte(`"1m30s"`)); err != nil {
		t.Fatalf("string form: %v", err)
	}
	if d.Duration != 90*time.Second {
		t.Fatalf("got %v", d.Duration)
	}
	if err := d.UnmarshalJSON([]byte(`45`)); err != nil {
		t.Fatalf("numeric form: %v", err)
	}
	if d.Duration != 45*time.Second {
		t.Fatalf("got %v", d.Duration)
	}
	if err := d.UnmarshalJSON([]byte(`true`)); err == nil {
		t.Fatal("expected an error for a boolean value")
	}
}

func TestRateLimitEnabled(t *testing.T) {
	rl := RateLimitConfig{}
	if rl.Enabled() {
		t.Fatal("zero rate limit should be disabled")
	}
	rl = RateLimitConfig{Requests: 10, Window: DurationFrom(time.Minute)}
	if !rl.Enabled() {
		t.Fatal("populated rate limit should be enabled")
	}
}
