package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// DateTimeLayout is the canonical rendering of transaction timestamps
	DateTimeLayout = "2006-01-02 15:04:05"
	// MonthLayout is the layout of month labels
	MonthLayout = "2006-01"
	// DefaultClock is used when a record carries a date but no time
	DefaultClock = "00:00:00"
)

// MonthLabel returns the YYYY-MM grouping key for t
func MonthLabel(t time.Time) string {
	return t.Format(MonthLayout)
}

// ParseAmount parses a decimal amount, removing thousands separators and currency marks
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	replacer := strings.NewReplacer(",", "", "₩", "", "원", "", "$", "", " ", "")
	s = replacer.Replace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}
	return d, nil
}

var dateLayouts = []string{
	"2006-01-02",
	"2006.01.02",
	"2006/01/02",
	"20060102",
	"2006-1-2",
	"2006.1.2",
	"2006/1/2",
}

var clockLayouts = []string{
	"15:04:05",
	"15:04",
	"150405",
	"15:04:05.000",
}

var timestampLayouts = []string{
	time.RFC3339,
	DateTimeLayout,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006.01.02 15:04:05",
	"2006/01/02 15:04:05",
}

// ParseDateTime combines a date field and a time field into one timestamp.
// Anything after the first space of the date is ignored, and an empty
// clock defaults to midnight. Timestamps are naive and carry time.UTC.
func ParseDateTime(date, clock string) (time.Time, error) {
	date = strings.TrimSpace(date)
	if i := strings.IndexAny(date, " T"); i >= 0 {
		date = date[:i]
	}
	if date == "" {
		return time.Time{}, fmt.Errorf("date string cannot be empty")
	}

	clock = strings.TrimSpace(clock)
	if clock == "" || strings.EqualFold(clock, "nan") {
		clock = DefaultClock
	}

	day, err := parseWithLayouts(date, dateLayouts)
	if err != nil {
		return time.Time{}, fmt.Errorf("unable to parse date '%s': %w", date, err)
	}
	tod, err := parseWithLayouts(clock, clockLayouts)
	if err != nil {
		return time.Time{}, fmt.Errorf("unable to parse time '%s': %w", clock, err)
	}

	return time.Date(day.Year(), day.Month(), day.Day(),
		tod.Hour(), tod.Minute(), tod.Second(), tod.Nanosecond(), time.UTC), nil
}

// ParseTimestamp parses a single-field timestamp, falling back to a
// date-only value at midnight
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("time string cannot be empty")
	}
	if t, err := parseWithLayouts(s, timestampLayouts); err == nil {
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC), nil
	}
	if i := strings.Index(s, " "); i >= 0 {
		return ParseDateTime(s[:i], s[i+1:])
	}
	return ParseDateTime(s, "")
}

func parseWithLayouts(s string, layouts []string) (time.Time, error) {
	var lastErr error
	for _, layout := range layouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// NormalizeIdentifier trims a customer identifier. Masked card numbers are
// kept verbatim since the mask is part of the identity.
func NormalizeIdentifier(id string) string {
	id = strings.TrimSpace(id)
	if strings.EqualFold(id, "nan") {
		return ""
	}
	return id
}
