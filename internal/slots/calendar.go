// Package slots computes the dates and time slots offered to patients.
package slots

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/valenrosasc/chatbot/internal/models"
)

// Calendar produces the candidate dates offered for booking.
// Weekends are never offered; configured holidays are skipped too.
type Calendar struct {
	mu       sync.RWMutex
	holidays map[string]struct{}
}

// NewCalendar creates a calendar. Holidays use the DD-MM-YYYY layout; malformed
// entries are ignored.
func NewCalendar(holidays []string) *Calendar {
	c := &Calendar{}
	c.SetHolidays(holidays)
	return c
}

// SetHolidays replaces the holiday set.
func (c *Calendar) SetHolidays(holidays []string) {
	set := make(map[string]struct{}, len(holidays))
	for _, h := range holidays {
		d, err := ParseDate(h)
		if err != nil {
			continue
		}
		set[FormatDate(d)] = struct{}{}
	}

	c.mu.Lock()
	c.holidays = set
	c.mu.Unlock()
}

// NextBusinessDays walks forward from the day after startExclusive and collects
// count business days in chronological order.
func (c *Calendar) NextBusinessDays(startExclusive time.Time, count int) []time.Time {
	if count <= 0 {
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	day := time.Date(startExclusive.Year(), startExclusive.Month(), startExclusive.Day(), 0, 0, 0, 0, startExclusive.Location())
	days := make([]time.Time, 0, count)
	for len(days) < count {
		day = day.AddDate(0, 0, 1)
		if !IsBusinessDay(day) {
			continue
		}
		if _, closed := c.holidays[FormatDate(day)]; closed {
			continue
		}
		days = append(days, day)
	}
	return days
}

// NextBusinessDays is the holiday-free calendar walk.
func NextBusinessDays(startExclusive time.Time, count int) []time.Time {
	return NewCalendar(nil).NextBusinessDays(startExclusive, count)
}

// IsBusinessDay reports whether t falls on Monday through Friday.
func IsBusinessDay(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// FormatDate renders a date as DD-MM-YYYY.
func FormatDate(t time.Time) string {
	return t.Format(models.DateLayout)
}

// ParseDate parses a DD-MM-YYYY date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(models.DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// FormatDates renders dates as DD-MM-YYYY strings, preserving order.
func FormatDates(days []time.Time) []string {
	out := make([]string, len(days))
	for i, d := range days {
		out[i] = FormatDate(d)
	}
	return out
}

func parseClock(s string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time format: %s", s)
	}

	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}

	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}

	return hour, minute, nil
}
