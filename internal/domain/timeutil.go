package domain

import (
	"strings"
	"time"
)

// TimestampLayout is the canonical persisted form of every timestamp.
const TimestampLayout = "2006-01-02T15:04:05Z"

// Accepted input layouts. Layouts without a zone are read as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseUTC parses an ISO-8601 style timestamp and normalises it to UTC.
// A trailing "Z" and missing zone are both treated as UTC.
func ParseUTC(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// ParseUTCPtr is ParseUTC returning nil on failure.
func ParseUTCPtr(raw string) *time.Time {
	t, ok := ParseUTC(raw)
	if !ok {
		return nil
	}
	return &t
}

// FormatUTC renders t in TimestampLayout.
func FormatUTC(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// FormatUTCPtr renders t or returns "" when nil.
func FormatUTCPtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return FormatUTC(*t)
}

// ClockLabel renders t as HH:MM in zone, or "" when t is nil.
func ClockLabel(t *time.Time, zone *time.Location) string {
	if t == nil {
		return ""
	}
	if zone == nil {
		zone = time.UTC
	}
	return t.In(zone).Format("15:04")
}

// AgeMinutes returns the minutes elapsed between t and now, if t is set.
func AgeMinutes(t *time.Time, now time.Time) (float64, bool) {
	if t == nil {
		return 0, false
	}
	return now.Sub(*t).Minutes(), true
}

// WithinGrace reports whether t is set and no more than grace before now.
func WithinGrace(t *time.Time, now time.Time, grace time.Duration) bool {
	age, ok := AgeMinutes(t, now)
	return ok && age <= grace.Minutes()
}
