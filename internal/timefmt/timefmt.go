// Package timefmt parses the date/time spellings found in calendar feeds and
// requests, and renders the canonical UTC timestamp the ledger expects.
package timefmt

import (
	"errors"
	"fmt"
	"time"
)

// CanonicalLayout is the ledger wire format: yyyy-MM-ddTHH:mm:ssZ in UTC.
const CanonicalLayout = "2006-01-02T15:04:05Z"

const utcLayout = "20060102T150405Z"

// layouts are tried in order; the first exact match wins.
var layouts = []string{
	utcLayout,
	"20060102T150405",
	"20060102",
	"20060102T1504",
	"2006-01-02T15:04",
}

// ErrFormat is matched by every *FormatError.
var ErrFormat = errors.New("unrecognized date/time format")

// FormatError reports a value that matched none of the known layouts.
type FormatError struct {
	Value string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("string %q was not recognized as a valid date/time", e.Value)
}

func (e *FormatError) Is(target error) bool {
	return target == ErrFormat
}

// Parse reads value using the first matching layout. Zone-less layouts are
// interpreted in loc (UTC when nil); the trailing-Z layout is always UTC.
func Parse(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range layouts {
		in := loc
		if layout == utcLayout {
			in = time.UTC
		}
		if t, err := time.ParseInLocation(layout, value, in); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &FormatError{Value: value}
}

// ParseDate accepts a plain yyyy-MM-dd date before falling back to Parse.
func ParseDate(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.ParseInLocation("2006-01-02", value, loc); err == nil {
		return t, nil
	}
	return Parse(value, loc)
}

// ToCanonical renders t in UTC, dropping sub-second precision.
func ToCanonical(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(CanonicalLayout)
}

// FromCanonical is the inverse of ToCanonical.
func FromCanonical(value string) (time.Time, error) {
	t, err := time.Parse(CanonicalLayout, value)
	if err != nil {
		return time.Time{}, &FormatError{Value: value}
	}
	return t, nil
}

// Normalize round-trips t through the canonical string form. The result is
// UTC with whole seconds.
func Normalize(t time.Time) (time.Time, error) {
	return FromCanonical(ToCanonical(t))
}
