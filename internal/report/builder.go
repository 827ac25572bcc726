package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"berichtsheft/internal/domain"
	"berichtsheft/internal/moodle"
)

// WeekInput carries everything one weekly report is built from. The
// Moodle and AI parts are optional; a report with only the timetable is
// still a complete report.
type WeekInput struct {
	WeekStart   time.Time
	Periods     []domain.PeriodInfo
	Skipped     int
	Assignments *domain.AssignmentData
	AISummary   string
	Now         time.Time
}

var statusLabels = map[domain.AssignmentStatus]string{
	domain.StatusDueSoon:  "⏳ Bald fällig!",
	domain.StatusUpcoming: "✅ Noch Zeit",
	domain.StatusOverdue:  "⚠️ Überfällig!",
	domain.StatusClosed:   "🔒 Geschlossen",
	domain.StatusUndated:  "Kein Datum...",
}

// BuildWeekReport renders the German markdown report for one week.
func BuildWeekReport(in WeekInput) string {
	var b strings.Builder

	weekEnd := in.WeekStart.AddDate(0, 0, 6)
	fmt.Fprintf(&b, "# Berichtsheft Woche %s - %s\n\n",
		in.WeekStart.Format("02.01.2006"), weekEnd.Format("02.01.2006"))

	writeTimetableSection(&b, in.Periods, in.Skipped)

	if in.Assignments != nil {
		b.WriteString("\n")
		writeAssignmentSection(&b, in.Assignments, in.Now)
	}

	if in.AISummary != "" {
		b.WriteString("\n## 🤖 KI-Zusammenfassung\n\n")
		b.WriteString(strings.TrimSpace(in.AISummary))
		b.WriteString("\n")
	}

	return b.String()
}

func writeTimetableSection(b *strings.Builder, periods []domain.PeriodInfo, skipped int) {
	fmt.Fprintf(b, "## 📅 Stundenplan (%d Stunden)\n\n", len(periods))
	if len(periods) == 0 {
		b.WriteString("Keine Stunden in dieser Woche.\n")
		return
	}

	// Periods arrive chronologically sorted, so grouping by weekday is
	// a single pass.
	currentDay := ""
	for _, p := range periods {
		if p.Weekday != currentDay {
			if currentDay != "" {
				b.WriteString("\n")
			}
			currentDay = p.Weekday
			fmt.Fprintf(b, "**%s**\n", currentDay)
		}
		fmt.Fprintf(b, "- %s (%d min): %s\n", clockFromISO(p.ISOTimestamp), p.MinutesDuration, p.Name)
		if p.Content != "" && p.Content != p.Name {
			fmt.Fprintf(b, "  %s\n", p.Content)
		}
	}

	if skipped > 0 {
		fmt.Fprintf(b, "\n_%d Einträge konnten nicht zugeordnet werden._\n", skipped)
	}
}

func writeAssignmentSection(b *strings.Builder, data *domain.AssignmentData, now time.Time) {
	b.WriteString("## 📚 Alle Upload-Hausaufgaben im Überblick\n\n")

	type courseGroup struct {
		course      domain.Course
		assignments []domain.Assignment
	}
	groups := make(map[int64]*courseGroup)
	for _, a := range data.Assignments {
		g, ok := groups[a.Course.ID]
		if !ok {
			g = &courseGroup{course: a.Course}
			groups[a.Course.ID] = g
		}
		g.assignments = append(g.assignments, a)
	}

	sorted := make([]*courseGroup, 0, len(groups))
	for _, g := range groups {
		sorted = append(sorted, g)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return moodle.CompactCourseName(sorted[i].course) < moodle.CompactCourseName(sorted[j].course)
	})

	for _, g := range sorted {
		fmt.Fprintf(b, "**%s**\n", moodle.CompactCourseName(g.course))

		// Due dates ascending, undated last.
		sort.SliceStable(g.assignments, func(i, j int) bool {
			return dueSortKey(g.assignments[i]) < dueSortKey(g.assignments[j])
		})

		for _, a := range g.assignments {
			status := statusLabels[moodle.StatusOf(a, now)]
			when := ""
			if due := formatUnixDE(a.DueDate); due != "" {
				when = fmt.Sprintf(" (fällig am `%s`)", due)
			} else if cut := formatUnixDE(a.CutoffDate); cut != "" {
				when = fmt.Sprintf(" (schließt `%s`)", cut)
			}
			fmt.Fprintf(b, "• %s%s -> %s\n", a.Name, when, status)
		}
		b.WriteString("\n")
	}

	if len(sorted) == 0 {
		b.WriteString("_Keine sichtbaren Aufgaben gefunden._\n")
	}

	if len(data.Errors) > 0 {
		b.WriteString("\n⚠️ Hinweise:\n")
		for _, e := range data.Errors {
			fmt.Fprintf(b, "- %s\n", e)
		}
	}
}

func dueSortKey(a domain.Assignment) int64 {
	if a.DueDate == 0 {
		return 1<<62 - 1
	}
	return a.DueDate
}

// formatUnixDE renders a unix timestamp as German date-time. Zero and
// negative values mean "not set" and render as nothing rather than a
// fake 1970 date.
func formatUnixDE(ts int64) string {
	if ts <= 0 {
		return ""
	}
	return time.Unix(ts, 0).Format("02.01.2006 15:04")
}

// clockFromISO cuts the HH:MM out of a local ISO timestamp.
func clockFromISO(iso string) string {
	if idx := strings.Index(iso, "T"); idx >= 0 && len(iso) >= idx+6 {
		return iso[idx+1 : idx+6]
	}
	return iso
}
