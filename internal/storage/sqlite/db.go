package sqlite

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS reports (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		week_start  TEXT NOT NULL,
		tenant_id   TEXT DEFAULT '',
		content     TEXT NOT NULL,
		period_count     INTEGER DEFAULT 0,
		assignment_count INTEGER DEFAULT 0,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_reports_week_start ON reports(week_start);

	CREATE TABLE IF NOT EXISTS notified_assignments (
		assignment_id INTEGER NOT NULL,
		slack_user    TEXT NOT NULL,
		notified_at   DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (assignment_id, slack_user)
	);
	`
	if _, err = db.Exec(schema); err != nil {
		return nil, err
	}

	return db, nil
}

// ArchivedReport is one stored weekly report.
type ArchivedReport struct {
	ID              int64
	WeekStart       string
	TenantID        string
	Content         string
	PeriodCount     int
	AssignmentCount int
	CreatedAt       time.Time
}

// InsertReport archives a rendered report. A week can be regenerated;
// every run gets its own row, newest wins on lookup.
func InsertReport(db *sql.DB, r ArchivedReport) error {
	_, err := db.Exec(
		`INSERT INTO reports (week_start, tenant_id, content, period_count, assignment_count)
		 VALUES (?, ?, ?, ?, ?)`,
		r.WeekStart, r.TenantID, r.Content, r.PeriodCount, r.AssignmentCount,
	)
	return err
}

// GetLatestReport returns the newest archived report for a week start
// (formatted 2006-01-02). sql.ErrNoRows when none exists.
func GetLatestReport(db *sql.DB, weekStart string) (ArchivedReport, error) {
	var r ArchivedReport
	err := db.QueryRow(
		`SELECT id, week_start, tenant_id, content, period_count, assignment_count, created_at
		 FROM reports WHERE week_start = ? ORDER BY id DESC LIMIT 1`,
		weekStart,
	).Scan(&r.ID, &r.WeekStart, &r.TenantID, &r.Content, &r.PeriodCount, &r.AssignmentCount, &r.CreatedAt)
	return r, err
}

// ListReportWeeks returns the distinct archived week starts, newest first.
func ListReportWeeks(db *sql.DB, limit int) ([]string, error) {
	rows, err := db.Query(
		`SELECT DISTINCT week_start FROM reports ORDER BY week_start DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var weeks []string
	for rows.Next() {
		var week string
		if err := rows.Scan(&week); err != nil {
			return nil, err
		}
		weeks = append(weeks, week)
	}
	return weeks, rows.Err()
}

// WasNotified reports whether a reminder for this assignment already
// went out to the given Slack user.
func WasNotified(db *sql.DB, assignmentID int64, slackUser string) (bool, error) {
	var count int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM notified_assignments WHERE assignment_id = ? AND slack_user = ?`,
		assignmentID, slackUser,
	).Scan(&count)
	return count > 0, err
}

// MarkNotified records a sent reminder. Repeat marks are harmless.
func MarkNotified(db *sql.DB, assignmentID int64, slackUser string) error {
	_, err := db.Exec(
		`INSERT OR IGNORE INTO notified_assignments (assignment_id, slack_user) VALUES (?, ?)`,
		assignmentID, slackUser,
	)
	return err
}
