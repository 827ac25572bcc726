package moodle

import (
	"regexp"
	"strings"
	"time"

	"berichtsheft/internal/domain"
)

// dueSoonWindow is how far ahead an open assignment counts as urgent.
const dueSoonWindow = 48 * time.Hour

// StatusOf classifies an assignment relative to now. A set due date
// dominates: once it has passed the assignment is OVERDUE even while a
// later cutoff still accepts submissions, because the late flag on the
// submission is what the student cares about. Only assignments with no
// due date at all fall back to the cutoff.
func StatusOf(a domain.Assignment, now time.Time) domain.AssignmentStatus {
	nowUnix := now.Unix()

	switch {
	case a.DueDate > 0:
		if nowUnix < a.DueDate {
			if a.DueDate-nowUnix <= int64(dueSoonWindow.Seconds()) {
				return domain.StatusDueSoon
			}
			return domain.StatusUpcoming
		}
		return domain.StatusOverdue
	case a.CutoffDate > 0:
		if nowUnix < a.CutoffDate {
			return domain.StatusUpcoming
		}
		return domain.StatusClosed
	default:
		return domain.StatusUndated
	}
}

var (
	classPrefixLong  = regexp.MustCompile(`(?i)^(FA|FI)\s*[_ ]*\d{2}\s*[_ ]*\d{0,2}\s*[_ ]*`)
	classPrefixShort = regexp.MustCompile(`(?i)^(FA|FI)\s*[_ ]*`)
	parenSuffix      = regexp.MustCompile(`\s*\([^)]*\)\s*`)
	whitespaceRun    = regexp.MustCompile(`\s+`)
)

// CompactCourseName strips class-cohort prefixes and parenthesized
// suffixes from a course name so report headings stay readable.
func CompactCourseName(course domain.Course) string {
	raw := strings.TrimSpace(course.ShortName)
	if raw == "" {
		raw = strings.TrimSpace(course.FullName)
	}
	if raw == "" {
		return "Kurs"
	}

	name := classPrefixLong.ReplaceAllString(raw, "")
	name = classPrefixShort.ReplaceAllString(name, "")
	name = parenSuffix.ReplaceAllString(name, " ")
	name = strings.TrimSpace(whitespaceRun.ReplaceAllString(name, " "))
	if name == "" {
		return "Kurs"
	}

	if len([]rune(name)) > 48 {
		name = string([]rune(name)[:45]) + "…"
	}
	return name
}
