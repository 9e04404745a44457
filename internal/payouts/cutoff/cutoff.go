// Package cutoff computes the recurring weekly cutoff that closes a payout
// batch. All arithmetic is done in UTC; a local clock never enters it.
package cutoff

import (
	"fmt"
	"time"
)

const week = 7 * 24 * time.Hour

type Schedule struct {
	Weekday time.Weekday
	Hour    int
	Minute  int
	// WarningLead is how long before the cutoff the deadline notice opens.
	WarningLead time.Duration
}

// Default is Tuesday 14:00 UTC with the notice opening Monday 19:00 UTC.
var Default = Schedule{
	Weekday:     time.Tuesday,
	Hour:        14,
	Minute:      0,
	WarningLead: 19 * time.Hour,
}

func (s Schedule) Validate() error {
	if s.Weekday < time.Sunday || s.Weekday > time.Saturday {
		return fmt.Errorf("invalid cutoff weekday %d", s.Weekday)
	}
	if s.Hour < 0 || s.Hour > 23 || s.Minute < 0 || s.Minute > 59 {
		return fmt.Errorf("invalid cutoff time %02d:%02d", s.Hour, s.Minute)
	}
	if s.WarningLead < 0 || s.WarningLead >= week {
		return fmt.Errorf("invalid warning lead %s", s.WarningLead)
	}
	return nil
}

// Next returns the soonest cutoff at or after now.
func (s Schedule) Next(now time.Time) time.Time {
	now = now.UTC()
	year, month, day := now.Date()
	daysAhead := (int(s.Weekday) - int(now.Weekday()) + 7) % 7
	next := time.Date(year, month, day+daysAhead, s.Hour, s.Minute, 0, 0, time.UTC)
	if next.Before(now) {
		next = next.AddDate(0, 0, 7)
	}
	return next
}

// IsWarningWindow reports whether now falls in [cutoff-WarningLead, cutoff).
func (s Schedule) IsWarningWindow(now time.Time) bool {
	left := s.Next(now).Sub(now)
	return left > 0 && left <= s.WarningLead
}

// Remaining is the time left until cutoff. passed is true once cutoff is
// reached, in which case the duration is zero rather than negative.
func Remaining(now, cutoff time.Time) (left time.Duration, passed bool) {
	left = cutoff.Sub(now)
	if left <= 0 {
		return 0, true
	}
	return left, false
}

// BatchDate is the calendar day, at UTC midnight, a cutoff falls on.
func BatchDate(cutoff time.Time) time.Time {
	year, month, day := cutoff.UTC().Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// FormatRemaining renders a countdown as "2d 3h 15m", or "Cutoff passed".
func FormatRemaining(left time.Duration, passed bool) string {
	if passed {
		return "Cutoff passed"
	}
	days := left / (24 * time.Hour)
	left -= days * 24 * time.Hour
	hours := left / time.Hour
	left -= hours * time.Hour
	minutes := left / time.Minute
	return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
}
