package untis

import (
	"fmt"
	"time"
)

// The remote encodes dates as YYYY*10000+MM*100+DD and times of day as
// HH*100+MM. These helpers are the only place that arithmetic lives.

var weekdayNames = [7]string{
	"Sonntag",
	"Montag",
	"Dienstag",
	"Mittwoch",
	"Donnerstag",
	"Freitag",
	"Samstag",
}

// PackedDateTimeToISO renders a packed date/time pair as
// "YYYY-MM-DDTHH:MM:00". Validation is deliberately permissive: month and
// day are only range-checked (1..12, 1..31), so Feb 30 passes. That matches
// the remote system, which hands out such values unchecked.
func PackedDateTimeToISO(date, clock int) (string, error) {
	year := date / 10000
	month := (date % 10000) / 100
	day := date % 100
	hour := clock / 100
	minute := clock % 100

	if month < 1 || month > 12 {
		return "", fmt.Errorf("packed date %d: month %d out of range", date, month)
	}
	if day < 1 || day > 31 {
		return "", fmt.Errorf("packed date %d: day %d out of range", date, day)
	}

	return fmt.Sprintf("%04d-%02d-%02dT%02d:%02d:00", year, month, day, hour, minute), nil
}

// MinutesBetween converts both packed times to minutes since midnight and
// subtracts. A negative result means end precedes start; the caller decides
// whether that is a data error, so it is never clamped here.
func MinutesBetween(start, end int) int {
	startTotal := (start/100)*60 + start%100
	endTotal := (end/100)*60 + end%100
	return endTotal - startTotal
}

// WeekdayName maps a packed date to its German weekday name.
func WeekdayName(date int) (string, error) {
	year := date / 10000
	month := (date % 10000) / 100
	day := date % 100

	if month < 1 || month > 12 {
		return "", fmt.Errorf("packed date %d: month %d out of range", date, month)
	}
	if day < 1 || day > 31 {
		return "", fmt.Errorf("packed date %d: day %d out of range", date, day)
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return weekdayNames[int(t.Weekday())], nil
}

// PackDate converts a calendar date into the packed integer encoding.
func PackDate(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}
