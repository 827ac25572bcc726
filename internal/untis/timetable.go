package untis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"berichtsheft/internal/domain"
)

// PlaceholderUnknown stands in for lesson fields the remote did not
// provide. A single consistent sentinel, never the empty string, so
// downstream grouping can tell "absent" from "explicitly empty".
const PlaceholderUnknown = "Unbekannt"

const fetchRetryBackoff = 500 * time.Millisecond

// WeekSchedule is the normalized result of one week fetch. Skipped
// counts raw records that could not be mapped even with placeholder
// substitution (missing date); they never abort the batch.
type WeekSchedule struct {
	Periods []domain.Period
	Skipped int
}

type timetableParams struct {
	Options timetableOptions `json:"options"`
}

type timetableOptions struct {
	StartDate     int      `json:"startDate"`
	EndDate       int      `json:"endDate"`
	ShowInfo      bool     `json:"showInfo"`
	ShowSubstText bool     `json:"showSubstText"`
	ShowLsText    bool     `json:"showLsText"`
	SubjectFields []string `json:"subjectFields"`
	TeacherFields []string `json:"teacherFields"`
	RoomFields    []string `json:"roomFields"`
}

type lessonElement struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	LongName string `json:"longname"`
}

type rawLesson struct {
	ID        int64           `json:"id"`
	Date      int             `json:"date"`
	StartTime int             `json:"startTime"`
	EndTime   int             `json:"endTime"`
	Subjects  []lessonElement `json:"su"`
	Teachers  []lessonElement `json:"te"`
	Rooms     []lessonElement `json:"ro"`
	Code      string          `json:"code"`
	Info      string          `json:"info"`
	SubstText string          `json:"substText"`
	LsText    string          `json:"lstext"`
}

// FetchWeek retrieves the lesson list for the week starting at weekStart
// (inclusive through weekStart+6 days) and normalizes it. An empty week
// is a valid result (holidays); only a transport error earns a single
// retry with a short backoff before the failure surfaces.
func (c *Client) FetchWeek(ctx context.Context, session *domain.SessionHandle, weekStart time.Time) (WeekSchedule, error) {
	weekEnd := weekStart.AddDate(0, 0, 6)
	params := timetableParams{Options: timetableOptions{
		StartDate:     PackDate(weekStart),
		EndDate:       PackDate(weekEnd),
		ShowInfo:      true,
		ShowSubstText: true,
		ShowLsText:    true,
		SubjectFields: []string{"id", "name", "longname"},
		TeacherFields: []string{"id", "name", "longname"},
		RoomFields:    []string{"id", "name", "longname"},
	}}

	url := c.serverURL(session.Server, session.TenantID)
	raw, err := c.call(ctx, url, "getTimetable", params, session.Token)
	if err != nil {
		var transport *TransportError
		if !errors.As(err, &transport) {
			return WeekSchedule{}, fmt.Errorf("fetching timetable: %w", err)
		}
		log.Printf("untis timetable transport error, retrying once: %v", err)
		select {
		case <-time.After(fetchRetryBackoff):
		case <-ctx.Done():
			return WeekSchedule{}, fmt.Errorf("fetching timetable cancelled: %w", ctx.Err())
		}
		raw, err = c.call(ctx, url, "getTimetable", params, session.Token)
		if err != nil {
			return WeekSchedule{}, fmt.Errorf("fetching timetable: %w", err)
		}
	}

	var lessons []rawLesson
	if err := unmarshalResult(raw, &lessons); err != nil {
		return WeekSchedule{}, fmt.Errorf("parsing timetable: %w", err)
	}

	schedule := WeekSchedule{}
	for _, lesson := range lessons {
		if lesson.Date == 0 {
			schedule.Skipped++
			continue
		}
		schedule.Periods = append(schedule.Periods, domain.Period{
			Date:       lesson.Date,
			StartTime:  lesson.StartTime,
			EndTime:    lesson.EndTime,
			Subject:    elementName(lesson.Subjects),
			Teacher:    elementName(lesson.Teachers),
			Room:       elementName(lesson.Rooms),
			StatusCode: lessonCode(lesson.Code),
			FreeText:   lessonText(lesson),
		})
	}
	if schedule.Skipped > 0 {
		log.Printf("untis timetable skipped=%d records without a date", schedule.Skipped)
	}

	sort.SliceStable(schedule.Periods, func(i, j int) bool {
		a, b := schedule.Periods[i], schedule.Periods[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		return a.StartTime < b.StartTime
	})

	return schedule, nil
}

// ToPeriodInfo derives the display-ready form of a period. Pure; all
// conversions go through the time codec.
func ToPeriodInfo(p domain.Period) (domain.PeriodInfo, error) {
	iso, err := PackedDateTimeToISO(p.Date, p.StartTime)
	if err != nil {
		return domain.PeriodInfo{}, fmt.Errorf("period timestamp: %w", err)
	}
	weekday, err := WeekdayName(p.Date)
	if err != nil {
		return domain.PeriodInfo{}, fmt.Errorf("period weekday: %w", err)
	}

	content := p.FreeText
	if content == "" {
		content = p.Subject
	}

	return domain.PeriodInfo{
		Name:            fmt.Sprintf("%s - %s", p.Subject, p.Teacher),
		Content:         content,
		ISOTimestamp:    iso,
		MinutesDuration: MinutesBetween(p.StartTime, p.EndTime),
		Weekday:         weekday,
	}, nil
}

func elementName(elements []lessonElement) string {
	if len(elements) == 0 {
		return PlaceholderUnknown
	}
	if elements[0].LongName != "" {
		return elements[0].LongName
	}
	if elements[0].Name != "" {
		return elements[0].Name
	}
	return PlaceholderUnknown
}

func lessonCode(code string) string {
	if code == "" {
		return "regular"
	}
	return code
}

func lessonText(lesson rawLesson) string {
	switch {
	case lesson.LsText != "":
		return lesson.LsText
	case lesson.SubstText != "":
		return lesson.SubstText
	default:
		return lesson.Info
	}
}

func unmarshalResult(raw json.RawMessage, target any) error {
	if len(raw) == 0 {
		return &TransportError{Op: "parse result", Err: fmt.Errorf("empty result")}
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return &TransportError{Op: "parse result", Err: err}
	}
	return nil
}
