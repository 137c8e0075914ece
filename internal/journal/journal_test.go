package journal_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"facegate/internal/journal"
)

func openJournal(t *testing.T) *journal.Journal {
	t.Helper()
	j, err := journal.Open(filepath.Join(t.TempDir(), "state", "journal.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestRecordAndRecent(t *testing.T) {
	j := openJournal(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	entries := []journal.Entry{
		{ID: "a", Kind: "enroll", Identity: "alice", Result: "success", Message: "Enroll Success", StartedAt: base, FinishedAt: base.Add(2 * time.Second)},
		{ID: "b", Kind: "authenticate-extract", Result: "success", Message: "Match with alice !", MatchedIdentity: "alice", StartedAt: base.Add(time.Minute), FinishedAt: base.Add(time.Minute + time.Second)},
		{ID: "c", Kind: "authenticate", Result: "canceled", Message: "Canceled", Error: "session: canceled", StartedAt: base.Add(2 * time.Minute), FinishedAt: base.Add(2*time.Minute + 500*time.Millisecond)},
	}
	for _, e := range entries {
		if err := j.Record(ctx, e); err != nil {
			t.Fatalf("Record %s: %v", e.ID, err)
		}
	}

	recent, err := j.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 2 || recent[0].ID != "c" || recent[1].ID != "b" {
		t.Fatalf("expected newest first, got %+v", recent)
	}
	if recent[1].MatchedIdentity != "alice" {
		t.Fatalf("expected matched identity, got %q", recent[1].MatchedIdentity)
	}
	if recent[0].Duration != 500*time.Millisecond {
		t.Fatalf("expected derived duration, got %v", recent[0].Duration)
	}
	if !recent[0].StartedAt.Equal(base.Add(2 * time.Minute)) {
		t.Fatalf("unexpected start time %v", recent[0].StartedAt)
	}

	all, err := j.Recent(ctx, 0)
	if err != nil || len(all) != 3 {
		t.Fatalf("expected all entries, got %d err=%v", len(all), err)
	}
	if all[2].Identity != "alice" {
		t.Fatalf("expected identity to round-trip, got %q", all[2].Identity)
	}

	removed, err := j.Clear(ctx)
	if err != nil || removed != 3 {
		t.Fatalf("Clear removed %d err=%v", removed, err)
	}
	if rest, _ := j.Recent(ctx, 10); len(rest) != 0 {
		t.Fatalf("expected empty journal, got %d", len(rest))
	}
}

func TestRecordRequiresID(t *testing.T) {
	j := openJournal(t)
	if err := j.Record(context.Background(), journal.Entry{Kind: "standby", Result: "success"}); err == nil {
		t.Fatal("expected error for missing id")
	}
}

func TestReopenRejectsSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := journal.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = db.Close()

	if _, err := journal.Open(path); !errors.Is(err, journal.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}
