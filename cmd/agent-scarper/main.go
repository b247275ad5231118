package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/AmazyanAyoub/agent-scarper/internal/app"
	"github.com/AmazyanAyoub/agent-scarper/internal/config"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	seedURL := flag.String("url", "", "Seed URL to start from")
	instruction := flag.String("instruction", "", "What to look for, in natural language")
	flag.Parse()

	if strings.TrimSpace(*seedURL) == "" || strings.TrimSpace(*instruction) == "" {
		fmt.Fprintln(os.Stderr, "both -url and -instruction are required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	application, err := app.New(*cfg, app.Capabilities{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise: %v\n", err)
		os.Exit(1)
	}
	defer application.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	outcome, err := application.Run(ctx, *seedURL, *instruction)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
		os.Exit(1)
	}

	switch {
	case outcome.Flow != nil:
		fmt.Printf("site type: %s\nrecords: %d\n", outcome.SiteType, len(outcome.Flow.Records))
	case outcome.Crawl != nil:
		fmt.Printf("site type: %s\nstatus: %s\nverified pages: %d\n", outcome.SiteType, outcome.Crawl.Status, len(outcome.Crawl.Results))
	}
	for _, path := range outcome.OutputPaths {
		fmt.Printf("output: %s\n", path)
	}
}

// loadConfig falls back to defaults when the default config file is absent.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := config.Default()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return &cfg, nil
	}
	return config.Load(path)
}
