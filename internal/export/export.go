// Package export writes crawl results and extracted records to disk and,
// optionally, to a relational database.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kennygrant/sanitize"

	"github.com/AmazyanAyoub/agent-scarper/pkg/types"
)

// Exporter writes verified pages in the configured formats.
type Exporter struct {
	dir     string
	formats []string
	logger  *slog.Logger
	now     func() time.Time
}

// NewExporter prepares the output directory. Supported formats are "json"
// and "csv"; unknown entries are rejected up front.
func NewExporter(dir string, formats []string, logger *slog.Logger) (*Exporter, error) {
	if strings.TrimSpace(dir) == "" {
		dir = "outputs"
	}
	if len(formats) == 0 {
		formats = []string{"json"}
	}
	for _, f := range formats {
		switch strings.ToLower(f) {
		case "json", "csv":
		default:
			return nil, fmt.Errorf("unsupported export format %q", f)
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{dir: dir, formats: formats, logger: logger, now: time.Now}, nil
}

// WriteResults persists the verified pages once per configured format and
// returns the written paths.
func (e *Exporter) WriteResults(domain string, results []types.CandidatePage) ([]string, error) {
	stem := fmt.Sprintf("results_%s_%s", safeName(domain), e.now().Format("20060102T150405"))

	var paths []string
	for _, format := range e.formats {
		var (
			path string
			err  error
		)
		switch strings.ToLower(format) {
		case "json":
			path = filepath.Join(e.dir, stem+".json")
			err = writeJSON(path, results)
		case "csv":
			path = filepath.Join(e.dir, stem+".csv")
			err = writeCSV(path, results)
		}
		if err != nil {
			return paths, err
		}
		e.logger.Info("results exported", "path", path, "count", len(results))
		paths = append(paths, path)
	}
	return paths, nil
}

// WriteProducts stores extracted records under products/<domain>.json,
// overwriting the previous extraction for the domain.
func (e *Exporter) WriteProducts(domain string, records []types.Record) (string, error) {
	dir := filepath.Join(e.dir, "products")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create products dir: %w", err)
	}
	path := filepath.Join(dir, safeName(domain)+".json")
	if err := writeJSON(path, records); err != nil {
		return "", err
	}
	e.logger.Info("products exported", "path", path, "count", len(records))
	return path, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func writeCSV(path string, results []types.CandidatePage) error {
	fh, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer fh.Close()

	w := csv.NewWriter(fh)
	if err := w.Write([]string{"url", "score", "text"}); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	for _, r := range results {
		row := []string{r.URL, strconv.FormatFloat(r.Score, 'f', -1, 64), r.Text}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return nil
}

func safeName(domain string) string {
	name := sanitize.BaseName(strings.ToLower(strings.TrimSpace(domain)))
	if name == "" {
		return "site"
	}
	return name
}
