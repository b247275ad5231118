package export

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	pq "github.com/lib/pq"

	"github.com/AmazyanAyoub/agent-scarper/internal/config"
	"github.com/AmazyanAyoub/agent-scarper/pkg/types"
)

// SQLWriter persists extracted records into a relational table keyed by
// record URL.
type SQLWriter struct {
	db    *sql.DB
	table string
}

// NewSQLWriter opens and pings the database, creating the records table if
// it does not exist.
func NewSQLWriter(cfg config.SQLConfig) (*SQLWriter, error) {
	if cfg.Driver == "" || cfg.DSN == "" {
		return nil, errors.New("sql config missing driver or dsn")
	}
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open sql connection: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sql connection: %w", err)
	}

	table := strings.TrimSpace(cfg.Table)
	if table == "" {
		table = "records"
	}
	w := &SQLWriter{db: db, table: table}
	if err := w.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

// SaveRecords upserts the batch, replacing earlier extractions of the same
// URL from the same domain.
func (w *SQLWriter) SaveRecords(ctx context.Context, domain string, records []types.Record) error {
	if w == nil || w.db == nil {
		return nil
	}
	query := fmt.Sprintf(`
        INSERT INTO %s (url, domain, title, price, image_url, extracted_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (url) DO UPDATE SET
            domain = EXCLUDED.domain,
            title = EXCLUDED.title,
            price = EXCLUDED.price,
            image_url = EXCLUDED.image_url,
            extracted_at = EXCLUDED.extracted_at
    `, pq.QuoteIdentifier(w.table))

	now := time.Now()
	for _, rec := range records {
		if rec.URL == "" {
			continue
		}
		if _, err := w.db.ExecContext(ctx, query, rec.URL, domain, rec.Title, rec.Price, rec.ImageURL, now); err != nil {
			return fmt.Errorf("insert record %q: %w", rec.URL, err)
		}
	}
	return nil
}

// Close closes the underlying DB connection.
func (w *SQLWriter) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

func (w *SQLWriter) ensureSchema(ctx context.Context) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	    url TEXT PRIMARY KEY,
	    domain TEXT,
	    title TEXT,
	    price TEXT,
	    image_url TEXT,
	    extracted_at TIMESTAMPTZ
	)`, pq.QuoteIdentifier(w.table))
	if _, err := w.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
