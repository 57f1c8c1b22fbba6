// Package calendar implements business-day arithmetic for request due dates.
//
// A business day is a weekday that is not a configured holiday. All date math
// happens in the agency's local timezone; results are returned in UTC.
package calendar

import (
	"fmt"
	"sort"
	"time"
	_ "time/tzdata"
)

// DueHour is the local hour of day at which every due date falls.
const DueHour = 17

// Config describes the holiday coverage and timezone of a calendar.
type Config struct {
	Timezone  string
	FirstYear int
	LastYear  int
	Extra     []Holiday
}

// Holiday is a single non-working day. Only the calendar date of Date is used.
type Holiday struct {
	Date time.Time `yaml:"date"`
	Name string    `yaml:"name"`
}

type civilDate struct {
	year  int
	month time.Month
	day   int
}

func dateOf(t time.Time) civilDate {
	y, m, d := t.Date()
	return civilDate{year: y, month: m, day: d}
}

// Calendar answers business-day questions for a single timezone.
type Calendar struct {
	loc       *time.Location
	firstYear int
	lastYear  int
	holidays  map[civilDate]string
}

// New builds a calendar with the New York public holiday set for the configured years.
func New(cfg Config) (*Calendar, error) {
	tz := cfg.Timezone
	if tz == "" {
		tz = "America/New_York"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	first, last := cfg.FirstYear, cfg.LastYear
	if first == 0 && last == 0 {
		now := time.Now().In(loc).Year()
		first, last = now-5, now+5
	}
	if last < first {
		return nil, fmt.Errorf("holiday year range %d-%d is empty", first, last)
	}

	c := &Calendar{loc: loc, firstYear: first, lastYear: last, holidays: make(map[civilDate]string)}
	for year := first; year <= last; year++ {
		for _, h := range publicHolidays(year, loc) {
			c.holidays[dateOf(h.Date)] = h.Name
		}
	}
	for _, h := range cfg.Extra {
		c.holidays[dateOf(h.Date)] = h.Name
	}
	return c, nil
}

// MustNew is New for static configuration; it panics on error.
func MustNew(cfg Config) *Calendar {
	c, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return c
}

// Location returns the calendar timezone.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// IsHoliday reports whether t falls on a configured holiday in local time.
func (c *Calendar) IsHoliday(t time.Time) bool {
	_, ok := c.holidays[dateOf(t.In(c.loc))]
	return ok
}

// IsBusinessDay reports whether t is a weekday and not a holiday in local time.
func (c *Calendar) IsBusinessDay(t time.Time) bool {
	local := t.In(c.loc)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return !c.IsHoliday(local)
}

// NextBusinessDay returns t unchanged when it is a business day, otherwise the
// same clock time on the following business day.
func (c *Calendar) NextBusinessDay(t time.Time) time.Time {
	local := t.In(c.loc)
	for !c.IsBusinessDay(local) {
		local = local.AddDate(0, 0, 1)
	}
	return local.UTC()
}

// AddBusinessDays moves t forward by n business days keeping the local clock time.
// Non-positive n returns t rolled onto a business day.
func (c *Calendar) AddBusinessDays(t time.Time, n int) time.Time {
	local := t.In(c.loc)
	for n > 0 {
		local = local.AddDate(0, 0, 1)
		if c.IsBusinessDay(local) {
			n--
		}
	}
	return c.NextBusinessDay(local)
}

// NormalizeDueDate sets the local time of day to 17:00 and returns UTC.
func (c *Calendar) NormalizeDueDate(t time.Time) time.Time {
	local := t.In(c.loc)
	y, m, d := local.Date()
	return time.Date(y, m, d, DueHour, 0, 0, 0, c.loc).UTC()
}

// DueDate computes base + n business days at 17:00 local.
func (c *Calendar) DueDate(base time.Time, n int) time.Time {
	return c.NormalizeDueDate(c.AddBusinessDays(base, n))
}

// DueDateOn moves an explicit date to a business day and normalizes it to 17:00 local.
// Only the calendar date of the input (in its own location) is used.
func (c *Calendar) DueDateOn(date time.Time) time.Time {
	y, m, d := date.Date()
	return c.NormalizeDueDate(c.NextBusinessDay(time.Date(y, m, d, 12, 0, 0, 0, c.loc)))
}

// SubmittedAt rounds a creation instant forward to the next business day.
// A request created on a business day is submitted at its creation instant; one
// created on a weekend or holiday is submitted at the start of the next business day.
func (c *Calendar) SubmittedAt(created time.Time) time.Time {
	if c.IsBusinessDay(created) {
		return created.UTC()
	}
	next := c.NextBusinessDay(created).In(c.loc)
	y, m, d := next.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, c.loc).UTC()
}

// Holidays lists holidays in the given year ordered by date.
func (c *Calendar) Holidays(year int) []Holiday {
	out := make([]Holiday, 0, 16)
	for d, name := range c.holidays {
		if d.year != year {
			continue
		}
		out = append(out, Holiday{Date: time.Date(d.year, d.month, d.day, 0, 0, 0, 0, c.loc), Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// Covers reports whether holiday data is loaded for t's year.
func (c *Calendar) Covers(t time.Time) bool {
	y := t.In(c.loc).Year()
	return y >= c.firstYear && y <= c.lastYear
}
