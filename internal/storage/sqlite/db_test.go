package sqlite

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "berichtsheft-test.db")
	db, err := InitDB(dbPath)
	if err != nil {
		t.Fatalf("InitDB failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestReportArchive(t *testing.T) {
	db := newTestDB(t)

	first := ArchivedReport{
		WeekStart:       "2026-01-05",
		TenantID:        "example-school",
		Content:         "erste Fassung",
		PeriodCount:     12,
		AssignmentCount: 3,
	}
	if err := InsertReport(db, first); err != nil {
		t.Fatalf("InsertReport failed: %v", err)
	}

	regenerated := first
	regenerated.Content = "zweite Fassung"
	if err := InsertReport(db, regenerated); err != nil {
		t.Fatalf("InsertReport failed: %v", err)
	}

	got, err := GetLatestReport(db, "2026-01-05")
	if err != nil {
		t.Fatalf("GetLatestReport failed: %v", err)
	}
	if got.Content != "zweite Fassung" {
		t.Fatalf("expected the regenerated report, got %q", got.Content)
	}
	if got.PeriodCount != 12 || got.AssignmentCount != 3 {
		t.Fatalf("counters lost: %+v", got)
	}

	if _, err := GetLatestReport(db, "2026-01-12"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected ErrNoRows for a missing week, got %v", err)
	}
}

func TestListReportWeeks(t *testing.T) {
	db := newTestDB(t)

	for _, week := range []string{"2026-01-05", "2026-01-12", "2026-01-05"} {
		if err := InsertReport(db, ArchivedReport{WeekStart: week, Content: "x"}); err != nil {
			t.Fatalf("InsertReport failed: %v", err)
		}
	}

	weeks, err := ListReportWeeks(db, 10)
	if err != nil {
		t.Fatalf("ListReportWeeks failed: %v", err)
	}
	if len(weeks) != 2 {
		t.Fatalf("expected 2 distinct weeks, got %v", weeks)
	}
	if weeks[0] != "2026-01-12" || weeks[1] != "2026-01-05" {
		t.Fatalf("expected newest first, got %v", weeks)
	}
}

func TestNotificationDedup(t *testing.T) {
	db := newTestDB(t)

	notified, err := WasNotified(db, 42, "U001")
	if err != nil {
		t.Fatalf("WasNotified failed: %v", err)
	}
	if notified {
		t.Fatal("fresh assignment must not count as notified")
	}

	if err := MarkNotified(db, 42, "U001"); err != nil {
		t.Fatalf("MarkNotified failed: %v", err)
	}
	// Marking twice must not error.
	if err := MarkNotified(db, 42, "U001"); err != nil {
		t.Fatalf("repeated MarkNotified failed: %v", err)
	}

	notified, err = WasNotified(db, 42, "U001")
	if err != nil {
		t.Fatalf("WasNotified failed: %v", err)
	}
	if !notified {
		t.Fatal("expected assignment to count as notified")
	}

	// Scoped per user.
	notified, err = WasNotified(db, 42, "U002")
	if err != nil {
		t.Fatalf("WasNotified failed: %v", err)
	}
	if notified {
		t.Fatal("notification must be scoped to the user it went to")
	}
}
