package models

import "time"

// CalendarOccurrence is a single dated meeting, already expanded from any
// recurrence. The interval is half-open: [Start, End).
type CalendarOccurrence struct {
	Summary string    `json:"summary"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
}

// Range is a calendar filter window. End is inclusive of its whole day.
type Range struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether the occurrence lies fully inside the range.
func (r Range) Contains(o CalendarOccurrence) bool {
	if o.Start.Before(r.Start) {
		return false
	}
	return !o.End.After(r.EndOfDay())
}

// EndOfDay returns the last instant of the range's final day.
func (r Range) EndOfDay() time.Time {
	y, m, d := r.End.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, r.End.Location()).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// CurrentMonth returns the range covering the month that contains now.
func CurrentMonth(now time.Time) Range {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return Range{Start: start, End: start.AddDate(0, 1, -1)}
}
