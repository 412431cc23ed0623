package common

import (
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

// KST is the provider's local time zone. Calendar dates are derived in KST.
var KST = loadKST()

func loadKST() *time.Location {
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		return time.FixedZone("KST", 9*60*60)
	}
	return loc
}

// Date returns the calendar date y-m-d as UTC midnight, the form all dates are stored in.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DateOf truncates t to its calendar date in KST.
func DateOf(t time.Time) time.Time {
	y, m, d := t.In(KST).Date()
	return Date(y, m, d)
}

// Today returns the current KST calendar date.
func Today(clock clockwork.Clock) time.Time {
	return DateOf(clock.Now())
}

// DaysBetween returns to - from in whole calendar days.
func DaysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

// ParseYMD parses yyyyMMdd.
func ParseYMD(s string) (time.Time, error) {
	if len(s) != 8 {
		return time.Time{}, fmt.Errorf("invalid date %q: want yyyyMMdd", s)
	}
	t, err := time.Parse("20060102", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// FormatYMD formats a date as yyyyMMdd.
func FormatYMD(t time.Time) string {
	return t.Format("20060102")
}

// ParseISODate parses yyyy-MM-dd.
func ParseISODate(s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: use YYYY-MM-DD", s)
	}
	return t, nil
}
