package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Entry is one finished job.
type Entry struct {
	ID              string        `json:"id" yaml:"id"`
	Kind            string        `json:"kind" yaml:"kind"`
	Identity        string        `json:"identity,omitempty" yaml:"identity,omitempty"`
	Result          string        `json:"result" yaml:"result"`
	Message         string        `json:"message,omitempty" yaml:"message,omitempty"`
	Error           string        `json:"error,omitempty" yaml:"error,omitempty"`
	MatchedIdentity string        `json:"matched_identity,omitempty" yaml:"matched_identity,omitempty"`
	StartedAt       time.Time     `json:"started_at" yaml:"started_at"`
	FinishedAt      time.Time     `json:"finished_at" yaml:"finished_at"`
	Duration        time.Duration `json:"duration" yaml:"duration"`
}

// Journal persists job history backed by SQLite.
type Journal struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the journal database at path.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure journal directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	j := &Journal{db: db, path: path}
	if err := j.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

// Path returns the database location.
func (j *Journal) Path() string {
	return j.path
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Record inserts a finished job. Recording the same ID twice replaces the row.
func (j *Journal) Record(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		return fmt.Errorf("record job: missing id")
	}
	duration := entry.Duration
	if duration == 0 && !entry.StartedAt.IsZero() && entry.FinishedAt.After(entry.StartedAt) {
		duration = entry.FinishedAt.Sub(entry.StartedAt)
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO jobs (
            id, kind, identity, result, message, error, matched_identity,
            started_at, finished_at, duration_ms
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.Kind,
		nullableString(entry.Identity),
		entry.Result,
		nullableString(entry.Message),
		nullableString(entry.Error),
		nullableString(entry.MatchedIdentity),
		entry.StartedAt.UTC().Format(timeLayout),
		entry.FinishedAt.UTC().Format(timeLayout),
		duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("record job %s: %w", entry.ID, err)
	}
	return nil
}

// Recent returns up to limit jobs, newest first. A non-positive limit returns all jobs.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, kind, identity, result, message, error, matched_identity,
                started_at, finished_at, duration_ms
           FROM jobs
          ORDER BY finished_at DESC, id DESC
          LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return entries, nil
}

// Clear deletes every job and reports how many were removed.
func (j *Journal) Clear(ctx context.Context) (int64, error) {
	res, err := j.db.ExecContext(ctx, "DELETE FROM jobs")
	if err != nil {
		return 0, fmt.Errorf("clear jobs: %w", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		entry                             Entry
		identity, message, errText, match sql.NullString
		startedAt, finishedAt             string
		durationMS                        int64
	)
	if err := rows.Scan(&entry.ID, &entry.Kind, &identity, &entry.Result, &message, &errText, &match,
		&startedAt, &finishedAt, &durationMS); err != nil {
		return Entry{}, fmt.Errorf("scan job: %w", err)
	}
	entry.Identity = identity.String
	entry.Message = message.String
	entry.Error = errText.String
	entry.MatchedIdentity = match.String
	entry.StartedAt = parseTime(startedAt)
	entry.FinishedAt = parseTime(finishedAt)
	entry.Duration = time.Duration(durationMS) * time.Millisecond
	return entry, nil
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
