package moodle

import (
	"testing"
	"time"

	"berichtsheft/internal/domain"
)

func TestStatusOf(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	unix := now.Unix()

	tests := []struct {
		name       string
		assignment domain.Assignment
		want       domain.AssignmentStatus
	}{
		{
			name:       "due far in the future",
			assignment: domain.Assignment{DueDate: unix + 7*24*3600},
			want:       domain.StatusUpcoming,
		},
		{
			name:       "due within 48 hours",
			assignment: domain.Assignment{DueDate: unix + 24*3600},
			want:       domain.StatusDueSoon,
		},
		{
			name:       "due exactly at the 48h boundary",
			assignment: domain.Assignment{DueDate: unix + 48*3600},
			want:       domain.StatusDueSoon,
		},
		{
			name:       "due date passed",
			assignment: domain.Assignment{DueDate: unix - 3600},
			want:       domain.StatusOverdue,
		},
		{
			name:       "due passed but cutoff still open stays overdue",
			assignment: domain.Assignment{DueDate: unix - 3600, CutoffDate: unix + 24*3600},
			want:       domain.StatusOverdue,
		},
		{
			name:       "no due date, cutoff in the future",
			assignment: domain.Assignment{CutoffDate: unix + 24*3600},
			want:       domain.StatusUpcoming,
		},
		{
			name:       "no due date, cutoff passed",
			assignment: domain.Assignment{CutoffDate: unix - 3600},
			want:       domain.StatusClosed,
		},
		{
			name:       "no dates at all",
			assignment: domain.Assignment{},
			want:       domain.StatusUndated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusOf(tt.assignment, now); got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestCompactCourseName(t *testing.T) {
	tests := []struct {
		name   string
		course domain.Course
		want   string
	}{
		{
			name:   "strips cohort prefix",
			course: domain.Course{ShortName: "FA_23_2_Anwendungsentwicklung"},
			want:   "Anwendungsentwicklung",
		},
		{
			name:   "strips bare prefix and parentheses",
			course: domain.Course{ShortName: "FI Englisch (Kurs B)"},
			want:   "Englisch",
		},
		{
			name:   "falls back to fullname",
			course: domain.Course{FullName: "Wirtschaft und Gesellschaft"},
			want:   "Wirtschaft und Gesellschaft",
		},
		{
			name:   "empty names get a generic label",
			course: domain.Course{},
			want:   "Kurs",
		},
		{
			name:   "collapses whitespace",
			course: domain.Course{ShortName: "Mathe   für    Techniker"},
			want:   "Mathe für Techniker",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CompactCourseName(tt.course); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestCompactCourseNameTruncatesLongNames(t *testing.T) {
	long := ""
	for i := 0; i < 60; i++ {
		long += "x"
	}
	got := CompactCourseName(domain.Course{ShortName: long})
	if len([]rune(got)) != 46 {
		t.Fatalf("expected 45 runes plus ellipsis, got %d (%q)", len([]rune(got)), got)
	}
}
