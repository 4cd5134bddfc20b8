// Package clinictime anchors all date parsing, validation and formatting to
// the clinic's Asia/Kolkata wall clock. Appointments are stored in UTC; the
// conversion applies the fixed +5:30 offset (IST has no DST).
package clinictime

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// IST is the fixed Asia/Kolkata offset.
var IST = time.FixedZone("IST", 5*3600+1800)

var dateInput = regexp.MustCompile(`^\s*(\d{1,2})[/\-.](\d{1,2})[/\-.](\d{4})\s*$`)

// Date validation failures. Callers fold these into one combined re-prompt.
var (
	ErrBadFormat = errors.New("clinictime: not a D/M/YYYY date")
	ErrNotReal   = errors.New("clinictime: not a real calendar date")
	ErrPast      = errors.New("clinictime: date is in the past")
	ErrSunday    = errors.New("clinictime: clinic is closed on Sundays")
	ErrTooFar    = errors.New("clinictime: date is beyond the booking horizon")
)

// ParseDate parses a D/M/YYYY-style input (separators /, - and . all accepted)
// into a date at midnight IST. It rejects impossible calendar dates such as
// 30 February.
func ParseDate(input string) (time.Time, error) {
	m := dateInput.FindStringSubmatch(input)
	if m == nil {
		return time.Time{}, ErrBadFormat
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])

	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, ErrNotReal
	}
	date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, IST)
	// time.Date normalizes overflow (e.g. Feb 30 becomes Mar 2); reject that.
	if date.Day() != day || date.Month() != time.Month(month) || date.Year() != year {
		return time.Time{}, ErrNotReal
	}
	return date, nil
}

// ValidateBookingDate checks a parsed date against the clinic's booking rules:
// today-or-later in IST, not a Sunday, and within horizonDays of now when
// horizonDays is positive.
func ValidateBookingDate(date, now time.Time, horizonDays int) error {
	today := Midnight(now)
	if date.Before(today) {
		return ErrPast
	}
	if date.Weekday() == time.Sunday {
		return ErrSunday
	}
	if horizonDays > 0 && date.After(today.AddDate(0, 0, horizonDays)) {
		return ErrTooFar
	}
	return nil
}

// Midnight truncates an instant to midnight IST.
func Midnight(t time.Time) time.Time {
	t = t.In(IST)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, IST)
}

// ToUTC combines a midnight-IST date with a 24h "HH:MM" wall-clock time and
// returns the UTC instant for storage.
func ToUTC(date time.Time, hhmm string) (time.Time, error) {
	parts := strings.SplitN(hhmm, ":", 2)
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("clinictime: bad time value %q", hhmm)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return time.Time{}, fmt.Errorf("clinictime: bad hour in %q", hhmm)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return time.Time{}, fmt.Errorf("clinictime: bad minute in %q", hhmm)
	}
	local := time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, IST)
	return local.UTC(), nil
}

// FormatDate renders an instant as a friendly IST date, e.g.
// "Tuesday, 2 September 2025".
func FormatDate(t time.Time) string {
	return t.In(IST).Format("Monday, 2 January 2006")
}

// FormatTime renders an instant as an IST clock time, e.g. "10:00 AM".
func FormatTime(t time.Time) string {
	return t.In(IST).Format("3:04 PM")
}

// FormatDateTime renders an instant as a full IST date and time.
func FormatDateTime(t time.Time) string {
	return t.In(IST).Format("Monday, 2 January 2006 at 3:04 PM")
}

// At returns the same IST calendar day at the given wall-clock hour.
func At(t time.Time, hour, minute int) time.Time {
	t = t.In(IST)
	return time.Date(t.Year(), t.Month(), t.Day(), hour, minute, 0, 0, IST)
}
