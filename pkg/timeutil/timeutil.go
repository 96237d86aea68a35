// Package timeutil provides calendar-day helpers in the program's reporting
// timezone. Habit check-ins and streaks are counted in whole days of that zone,
// so every conversion goes through Location().
// No external dependencies - uses only standard library.
package timeutil

import (
	"sync/atomic"
	"time"
)

var location atomic.Pointer[time.Location]

func init() {
	location.Store(time.UTC)
}

// Location returns the reporting timezone (UTC unless configured).
func Location() *time.Location {
	return location.Load()
}

// SetLocation sets the reporting timezone. Nil resets it to UTC.
func SetLocation(loc *time.Location) {
	if loc == nil {
		loc = time.UTC
	}
	location.Store(loc)
}

// LoadLocation resolves an IANA name and installs it as the reporting timezone.
func LoadLocation(name string) error {
	if name == "" {
		SetLocation(time.UTC)
		return nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return err
	}
	SetLocation(loc)
	return nil
}

// Now returns the current time in the reporting timezone.
func Now() time.Time {
	return time.Now().In(Location())
}

// In converts a time to the reporting timezone.
func In(t time.Time) time.Time {
	return t.In(Location())
}

// Date creates midnight of the given date in the reporting timezone.
func Date(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, Location())
}

// StartOfDay returns the start of the day (00:00:00) in the reporting timezone.
func StartOfDay(t time.Time) time.Time {
	l := In(t)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, l.Location())
}

// StartOfWeek returns Monday 00:00:00 of the week containing t.
func StartOfWeek(t time.Time) time.Time {
	l := In(t)
	weekday := int(l.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	return StartOfDay(l.AddDate(0, 0, -(weekday - 1)))
}

// IsSameDay checks if two times fall on the same calendar day.
func IsSameDay(t1, t2 time.Time) bool {
	a1, a2 := In(t1), In(t2)
	return a1.Year() == a2.Year() && a1.YearDay() == a2.YearDay()
}

// IsConsecutiveDay checks if t2 is the calendar day after t1.
func IsConsecutiveDay(t1, t2 time.Time) bool {
	return IsSameDay(In(t1).AddDate(0, 0, 1), t2)
}

// DaysBetween returns the signed number of calendar days from t1 to t2.
// Rounds to the nearest day so DST shifts do not lose a day.
func DaysBetween(t1, t2 time.Time) int {
	d := StartOfDay(t2).Sub(StartOfDay(t1))
	hours := d.Hours()
	if hours < 0 {
		return -int((-hours + 12) / 24)
	}
	return int((hours + 12) / 24)
}

// Common date formats.
const (
	// FormatDate is the standard date format (YYYY-MM-DD).
	FormatDate = "2006-01-02"
	// FormatDateTime is the standard datetime format.
	FormatDateTime = "2006-01-02 15:04"
)

// FormatDateStr formats a time as YYYY-MM-DD in the reporting timezone.
func FormatDateStr(t time.Time) string {
	return In(t).Format(FormatDate)
}

// ParseDate parses YYYY-MM-DD as midnight in the reporting timezone.
func ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation(FormatDate, value, Location())
}
