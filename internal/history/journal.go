// Package history keeps a local journal of backup runs. It records only
// counts, outcomes and paths; no email address, password or session
// value is ever stored.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Outcome classifies how a run ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeAborted Outcome = "aborted"
	OutcomeFailed  Outcome = "failed"
)

// Run is one journal entry.
type Run struct {
	ID                 string
	StartedAt          time.Time
	FinishedAt         time.Time
	Outcome            Outcome
	ErrorCode          string
	Encrypted          bool
	TargetsExported    int
	AttachmentsFetched int
	AttachmentFailures int
	TrashCount         int
	ArchivePath        string
}

// Duration returns how long the run took.
func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Journal is the SQLite-backed run journal.
type Journal struct {
	db *sql.DB
}

// Open opens (creating if needed) the journal at path and applies
// migrations.
func Open(ctx context.Context, path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	return open(ctx, dsn)
}

func open(ctx context.Context, dsn string) (*Journal, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping journal: %w", err)
	}
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

// Record inserts run, assigning an ID when it has none, and returns the
// stored ID.
func (j *Journal) Record(ctx context.Context, run Run) (string, error) {
	const query = `INSERT INTO runs (
		id, started_at, finished_at, outcome, error_code, encrypted,
		targets_exported, attachments_fetched, attachment_failures, trash_count, archive_path
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	_, err := j.db.ExecContext(ctx, query,
		run.ID,
		formatTime(run.StartedAt),
		formatTime(run.FinishedAt),
		string(run.Outcome),
		run.ErrorCode,
		run.Encrypted,
		run.TargetsExported,
		run.AttachmentsFetched,
		run.AttachmentFailures,
		run.TrashCount,
		run.ArchivePath,
	)
	if err != nil {
		return "", fmt.Errorf("record run %s: %w", run.ID, err)
	}
	return run.ID, nil
}

// Recent returns up to limit runs, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Run, error) {
	const query = `SELECT id, started_at, finished_at, outcome, error_code, encrypted,
		targets_exported, attachments_fetched, attachment_failures, trash_count, archive_path
		FROM runs ORDER BY started_at DESC, id LIMIT ?`

	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	runs := []Run{}
	for rows.Next() {
		var (
			r                 Run
			started, finished string
			outcome           string
		)
		if err := rows.Scan(&r.ID, &started, &finished, &outcome, &r.ErrorCode, &r.Encrypted,
			&r.TargetsExported, &r.AttachmentsFetched, &r.AttachmentFailures, &r.TrashCount, &r.ArchivePath); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Outcome = Outcome(outcome)
		if r.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if r.FinishedAt, err = parseTime(finished); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// timeLayout is fixed width so stored times sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse run time %q: %w", s, err)
	}
	return t, nil
}
