// Package timespec normalizes the time arguments accepted on the command line
// ("now", unix seconds, calendar dates, relative offsets) into absolute UTC times.
package timespec

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var layouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

var units = map[string]time.Duration{
	"second": time.Second,
	"sec":    time.Second,
	"minute": time.Minute,
	"min":    time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
	"week":   7 * 24 * time.Hour,
}

// Parse resolves s relative to now. Results are UTC and truncated to whole seconds.
func Parse(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) == 0 {
		return time.Time{}, errors.New("empty time")
	}
	now = now.UTC().Truncate(time.Second)

	switch strings.ToLower(s) {
	case "now":
		return now, nil
	case "today":
		return now.Truncate(24 * time.Hour), nil
	case "yesterday":
		return now.Truncate(24*time.Hour).AddDate(0, 0, -1), nil
	case "tomorrow":
		return now.Truncate(24*time.Hour).AddDate(0, 0, 1), nil
	}

	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC().Truncate(time.Second), nil
		}
	}
	if s[0] == '+' || s[0] == '-' {
		if d, err := time.ParseDuration(s); err == nil {
			return now.Add(d).Truncate(time.Second), nil
		}
	}
	if d, ok := parseRelative(s); ok {
		return now.Add(d), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

// parseRelative handles "[+-]N unit[s]" and "N unit[s] ago".
func parseRelative(s string) (time.Duration, bool) {
	fields := strings.Fields(strings.ToLower(s))
	sign := time.Duration(1)
	if len(fields) == 3 && fields[2] == "ago" {
		sign = -1
		fields = fields[:2]
	}
	if len(fields) != 2 {
		return 0, false
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, false
	}
	unit, ok := units[strings.TrimSuffix(fields[1], "s")]
	if !ok {
		return 0, false
	}
	return sign * time.Duration(n) * unit, true
}

// Window resolves a [start, end] pair. An empty end means now. When start is
// empty or not before end, start falls back to end minus defaultDays days.
func Window(start, end string, defaultDays int, now time.Time) (time.Time, time.Time, error) {
	e := now.UTC().Truncate(time.Second)
	if len(strings.TrimSpace(end)) > 0 {
		var err error
		if e, err = Parse(end, now); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("end time: %w", err)
		}
	}

	var s time.Time
	if len(strings.TrimSpace(start)) > 0 {
		var err error
		if s, err = Parse(start, now); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("start time: %w", err)
		}
	}
	if s.IsZero() || !s.Before(e) {
		s = e.AddDate(0, 0, -defaultDays)
	}
	return s, e, nil
}
