package calendar

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// publicHolidays returns the observed federal and New York State holidays for a year.
func publicHolidays(year int, loc *time.Location) []Holiday {
	fixed := func(m time.Month, d int, name string) Holiday {
		return Holiday{Date: observed(time.Date(year, m, d, 0, 0, 0, 0, loc)), Name: name}
	}
	floating := func(m time.Month, wd time.Weekday, nth int, name string) Holiday {
		return Holiday{Date: nthWeekday(year, m, wd, nth, loc), Name: name}
	}

	out := []Holiday{
		fixed(time.January, 1, "New Year's Day"),
		floating(time.January, time.Monday, 3, "Martin Luther King Jr. Day"),
		fixed(time.February, 12, "Lincoln's Birthday"),
		floating(time.February, time.Monday, 3, "Washington's Birthday"),
		floating(time.May, time.Monday, -1, "Memorial Day"),
		fixed(time.July, 4, "Independence Day"),
		floating(time.September, time.Monday, 1, "Labor Day"),
		floating(time.October, time.Monday, 2, "Columbus Day"),
		{Date: nthWeekday(year, time.November, time.Monday, 1, loc).AddDate(0, 0, 1), Name: "Election Day"},
		fixed(time.November, 11, "Veterans Day"),
		floating(time.November, time.Thursday, 4, "Thanksgiving Day"),
		fixed(time.December, 25, "Christmas Day"),
	}
	if year >= 2021 {
		out = append(out, fixed(time.June, 19, "Juneteenth National Independence Day"))
	}
	return out
}

// observed shifts Saturday holidays to Friday and Sunday holidays to Monday.
func observed(t time.Time) time.Time {
	switch t.Weekday() {
	case time.Saturday:
		return t.AddDate(0, 0, -1)
	case time.Sunday:
		return t.AddDate(0, 0, 1)
	}
	return t
}

// nthWeekday returns the nth weekday of a month; nth of -1 means the last one.
func nthWeekday(year int, m time.Month, wd time.Weekday, nth int, loc *time.Location) time.Time {
	if nth < 0 {
		last := time.Date(year, m+1, 0, 0, 0, 0, 0, loc)
		offset := (int(last.Weekday()) - int(wd) + 7) % 7
		return last.AddDate(0, 0, -offset)
	}
	first := time.Date(year, m, 1, 0, 0, 0, 0, loc)
	offset := (int(wd) - int(first.Weekday()) + 7) % 7
	return first.AddDate(0, 0, offset+(nth-1)*7)
}

type holidayFile struct {
	Holidays []struct {
		Date string `yaml:"date"`
		Name string `yaml:"name"`
	} `yaml:"holidays"`
}

// LoadHolidayFile reads additional closure dates from a YAML document of the form
//
//	holidays:
//	  - date: 2024-12-24
//	    name: Christmas Eve closure
func LoadHolidayFile(path string) ([]Holiday, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read holiday file: %w", err)
	}
	return ParseHolidays(raw)
}

// ParseHolidays decodes the YAML holiday document.
func ParseHolidays(raw []byte) ([]Holiday, error) {
	var doc holidayFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode holiday file: %w", err)
	}
	out := make([]Holiday, 0, len(doc.Holidays))
	for _, h := range doc.Holidays {
		d, err := time.Parse("2006-01-02", h.Date)
		if err != nil {
			return nil, fmt.Errorf("holiday %q: %w", h.Name, err)
		}
		out = append(out, Holiday{Date: d, Name: h.Name})
	}
	return out, nil
}
