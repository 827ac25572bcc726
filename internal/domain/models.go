package domain

import "time"

// Credentials hold a username/password pair for one of the remote systems.
// The optional hints short-cut tenant resolution when the caller already
// knows the login name or server. Credentials are never persisted here.
type Credentials struct {
	Username   string
	Secret     string
	TenantHint string
	ServerHint string
}

// TenantCandidate is one plausible school identity returned by the
// directory search (or taken from the configured fallback list).
type TenantCandidate struct {
	DisplayName string
	TenantID    string // the "loginName" the remote expects
	Server      string
	Address     string
}

// SessionHandle is the opaque result of a successful authentication:
// a bearer token plus the server/tenant pair it was issued against.
// It stays valid until Logout or remote-side expiry; nothing here
// tracks expiry.
type SessionHandle struct {
	Token    string
	Server   string
	TenantID string
	IssuedAt time.Time
}

// Period is one normalized lesson slot. Date and times keep the remote's
// packed integer encoding (YYYYMMDD, HHMM); everything downstream converts
// through the time codec.
type Period struct {
	Date       int
	StartTime  int
	EndTime    int
	Subject    string
	Teacher    string
	Room       string
	StatusCode string
	FreeText   string
}

// PeriodInfo is the fully normalized, display-ready form of a Period.
type PeriodInfo struct {
	Name            string
	Content         string
	ISOTimestamp    string
	MinutesDuration int
	Weekday         string
}

// Course is one LMS enrollment.
type Course struct {
	ID        int64
	ShortName string
	FullName  string
}

// Assignment is one LMS assignment with its parent course attached.
// DueDate/CutoffDate are unix seconds; 0 means "not set", never epoch zero.
type Assignment struct {
	ID         int64
	Name       string
	DueDate    int64
	CutoffDate int64
	Course     Course
}

// AssignmentStatus is derived from (now, due, cutoff) at read time and
// never stored.
type AssignmentStatus string

const (
	StatusUpcoming AssignmentStatus = "UPCOMING"
	StatusDueSoon  AssignmentStatus = "DUE_SOON"
	StatusOverdue  AssignmentStatus = "OVERDUE"
	StatusClosed   AssignmentStatus = "CLOSED"
	StatusUndated  AssignmentStatus = "UNDATED"
)

// AssignmentData is the (possibly partial) aggregation result: whatever
// succeeded, plus the errors of the steps that did not.
type AssignmentData struct {
	Courses     []Course
	Assignments []Assignment
	Errors      []string
}

// StartOfWeek returns the Monday 00:00:00 of the week containing t.
func StartOfWeek(t time.Time) time.Time {
	weekday := t.Weekday()
	if weekday == time.Sunday {
		weekday = 7
	}
	daysFromMonday := int(weekday) - int(time.Monday)
	return time.Date(t.Year(), t.Month(), t.Day()-daysFromMonday, 0, 0, 0, 0, t.Location())
}

// EndOfWeek returns the Sunday of the week containing t, at 00:00:00.
func EndOfWeek(t time.Time) time.Time {
	return StartOfWeek(t).AddDate(0, 0, 6)
}
