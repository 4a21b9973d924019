// Package sqlite provides a SQLite-backed job submission ledger.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/Sentinel-Gate/edgegate/internal/domain/job"
)

const schema = `
CREATE TABLE IF NOT EXISTS job_submissions (
	job_id        TEXT PRIMARY KEY,
	transport     TEXT NOT NULL,
	status        TEXT NOT NULL,
	file_count    INTEGER NOT NULL,
	primary_error TEXT NOT NULL DEFAULT '',
	created_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS job_submissions_created_at ON job_submissions (created_at);
`

// timeLayout is fixed width so that text order is time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Ledger records the gateway-side facts of each job submission. It never
// stores processing status; that stays with the processing backend.
type Ledger struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Open opens (creating if needed) the ledger database at path.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dsn := path
	if path != MemoryPath {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("create ledger directory: %w", err)
			}
		}
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	if path == MemoryPath {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create ledger schema: %w", err)
	}
	logger.Debug("job ledger opened", "path", path)
	return &Ledger{db: db, path: path, logger: logger}, nil
}

// Append stores one submission record. A record for an existing job id is
// rejected.
func (l *Ledger) Append(ctx context.Context, rec job.Record) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO job_submissions (job_id, transport, status, file_count, primary_error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.JobID, string(rec.Transport), string(rec.Status), rec.FileCount, rec.PrimaryError,
		rec.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("append job %s: %w", rec.JobID, err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]job.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT job_id, transport, status, file_count, primary_error, created_at
		 FROM job_submissions ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query job ledger: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := make([]job.Record, 0, limit)
	for rows.Next() {
		var (
			rec       job.Record
			transport string
			status    string
			created   string
		)
		if err := rows.Scan(&rec.JobID, &transport, &status, &rec.FileCount, &rec.PrimaryError, &created); err != nil {
			return nil, fmt.Errorf("scan job ledger: %w", err)
		}
		rec.Transport = job.Transport(transport)
		rec.Status = job.Status(status)
		if rec.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			l.logger.Warn("job ledger row has an unreadable timestamp", "job_id", rec.JobID, "error", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read job ledger: %w", err)
	}
	return records, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

var _ job.Ledger = (*Ledger)(nil)
