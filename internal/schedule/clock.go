package schedule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the ISO date layout used for schedule dates and storage keys.
const DateLayout = "2006-01-02"

// Midnight is the time-of-day that marks a day boundary.
const Midnight = "00:00"

// MalformedTimeError reports a time-of-day that is not a valid HH:MM.
type MalformedTimeError struct {
	Value string
}

func (e *MalformedTimeError) Error() string {
	return fmt.Sprintf("malformed time of day %q, expected HH:MM", e.Value)
}

var reClock = regexp.MustCompile(`^(\d{2}):(\d{2})$`)

// ParseClock parses a strict HH:MM (00:00..23:59).
func ParseClock(s string) (hour, minute int, err error) {
	m := reClock.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, &MalformedTimeError{Value: s}
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	if hour > 23 || minute > 59 {
		return 0, 0, &MalformedTimeError{Value: s}
	}
	return hour, minute, nil
}

// ClockMinutes returns minutes since midnight for a HH:MM value.
func ClockMinutes(s string) (int, error) {
	h, m, err := ParseClock(s)
	if err != nil {
		return 0, err
	}
	return h*60 + m, nil
}

var reLooseClock = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

// SanitizeClock repairs time strings as the publisher prints them.
//
//   - "24:00" becomes "00:00" (the end of the day).
//   - "00:0N".."00:23" is a known publisher glitch for "NN:00".
//   - "9:30" is padded to "09:30".
//
// Anything else is returned trimmed and unchanged; ParseClock decides
// whether it is usable.
func SanitizeClock(raw string) string {
	t := strings.TrimSpace(raw)
	m := reLooseClock.FindStringSubmatch(t)
	if m == nil {
		return t
	}
	hh, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	switch {
	case hh == 24 && mm == 0:
		return Midnight
	case hh == 0 && mm > 0 && mm <= 23:
		return fmt.Sprintf("%02d:00", mm)
	case hh <= 23 && mm <= 59:
		return fmt.Sprintf("%02d:%02d", hh, mm)
	default:
		return t
	}
}

// At combines an ISO date and HH:MM into an instant in loc.
func At(date, clock string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", date, err)
	}
	h, m, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(d.Year(), d.Month(), d.Day(), h, m, 0, 0, loc), nil
}

// DateOf returns the ISO date of t in loc.
func DateOf(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DateLayout)
}

// AddDays shifts an ISO date by n calendar days.
func AddDays(date string, n int) (string, error) {
	d, err := time.Parse(DateLayout, date)
	if err != nil {
		return "", fmt.Errorf("parse date %q: %w", date, err)
	}
	return d.AddDate(0, 0, n).Format(DateLayout), nil
}
