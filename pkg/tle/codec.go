package tle

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// LineLength is the fixed width of an element set line.
	LineLength = 69

	secondsPerDay = 86400

	// Two-digit epoch years at or above the pivot belong to the 1900s.
	yearPivot = 57
)

// FormatError reports element set text (or a storage path derived from it)
// that does not follow the fixed-width layout.
type FormatError struct {
	Field  string
	Input  string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("malformed %s %q: %s", e.Field, e.Input, e.Reason)
}

func formatErr(field, input, reason string) error {
	return &FormatError{Field: field, Input: input, Reason: reason}
}

// ParseCatalogID extracts the catalog number from columns 3-7 of line1.
func ParseCatalogID(line1 string) (int, error) {
	if len(line1) < 7 {
		return 0, formatErr("line1", line1, "too short for a catalog number")
	}
	if line1[0] != '1' {
		return 0, formatErr("line1", line1, "line number is not 1")
	}
	s := strings.TrimSpace(line1[2:7])
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, formatErr("catalog id", s, "not a positive integer")
	}
	return id, nil
}

// ParseEpoch decodes the YYDDD.DDDDDDDD epoch in columns 19-32 of line1.
// The fractional day is converted to whole seconds by truncation.
func ParseEpoch(line1 string) (time.Time, error) {
	if len(line1) < 32 {
		return time.Time{}, formatErr("line1", line1, "too short for an epoch")
	}
	field := line1[18:32]

	yy := field[:2]
	if !isDigits(yy) {
		return time.Time{}, formatErr("epoch", field, "year is not numeric")
	}
	year, _ := strconv.Atoi(yy)
	if year >= yearPivot {
		year += 1900
	} else {
		year += 2000
	}

	day := strings.TrimSpace(field[2:])
	dayPart, fracPart, _ := strings.Cut(day, ".")
	if !isDigits(dayPart) || (len(fracPart) > 0 && !isDigits(fracPart)) || len(fracPart) > 12 {
		return time.Time{}, formatErr("epoch", field, "day of year is not numeric")
	}
	dayOfYear, _ := strconv.Atoi(dayPart)
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	daysInYear := int(start.AddDate(1, 0, 0).Sub(start) / (24 * time.Hour))
	if dayOfYear < 1 || dayOfYear > daysInYear {
		return time.Time{}, formatErr("epoch", field, "day of year out of range")
	}

	secs := int64(dayOfYear-1) * secondsPerDay
	if len(fracPart) > 0 {
		num, _ := strconv.ParseInt(fracPart, 10, 64)
		den := int64(1)
		for range len(fracPart) {
			den *= 10
		}
		secs += num * secondsPerDay / den
	}
	return start.Add(time.Duration(secs) * time.Second), nil
}

// ParseName strips the "0 " prefix of an optional name line.
// An empty line yields an empty name.
func ParseName(line0 string) (string, error) {
	line0 = strings.TrimRight(line0, "\r\n")
	if len(line0) == 0 {
		return "", nil
	}
	if len(line0) < 2 || line0[:2] != "0 " {
		return "", formatErr("line0", line0, `missing "0 " prefix`)
	}
	return strings.TrimSpace(line0[2:]), nil
}

// Truncate cuts line to LineLength. Shorter lines are returned unchanged.
func Truncate(line string) string {
	if len(line) > LineLength {
		return line[:LineLength]
	}
	return line
}

func isDigits(s string) bool {
	if len(s) == 0 {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// FormatEpoch encodes t (truncated to whole seconds, UTC) as the 14 column
// YYDDD.DDDDDDDD epoch field. ParseEpoch on the result yields t again.
func FormatEpoch(t time.Time) (string, error) {
	t = t.UTC().Truncate(time.Second)
	if t.Year() < 1900+yearPivot || t.Year() >= 2000+yearPivot {
		return "", formatErr("epoch", t.Format(time.RFC3339), "year outside the two-digit range")
	}
	secs := int64(t.Hour()*3600 + t.Minute()*60 + t.Second())
	// Round the fraction up so that truncating decode lands on the same second.
	frac := (secs*100_000_000 + secondsPerDay - 1) / secondsPerDay
	return fmt.Sprintf("%02d%03d.%08d", t.Year()%100, t.YearDay(), frac), nil
}
