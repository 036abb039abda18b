package core

import (
	"strings"
	"time"
)

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// NowFunc is the clock used across the app; mockable in tests.
var NowFunc = func() time.Time { return time.Now().UTC() }

// Today returns the calendar day of NowFunc in loc, at midnight.
func Today(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	now := NowFunc().In(loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
}
