package ics

import (
	"fmt"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	"calsync/internal/models"
)

const defaultMaxOccurrences = 5000

// ExpandOptions controls which events become occurrences.
type ExpandOptions struct {
	Location         *time.Location
	RequireOrganizer bool
	IncludeAllDay    bool
	MaxOccurrences   int
}

// Expand turns events into occurrences that lie fully inside r, converted to
// opts.Location, deduplicated by start and summary and sorted by start.
// Events whose RRULE cannot be parsed are returned as errors alongside the
// occurrences that could be built.
func Expand(events []Event, r models.Range, opts ExpandOptions) ([]models.CalendarOccurrence, []error) {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.MaxOccurrences <= 0 {
		opts.MaxOccurrences = defaultMaxOccurrences
	}

	// Instances moved by a RECURRENCE-ID override are dropped from their
	// series; the override event stands on its own.
	moved := make(map[string][]time.Time)
	for _, ev := range events {
		if ev.RecurrenceID != nil && ev.UID != "" {
			moved[ev.UID] = append(moved[ev.UID], *ev.RecurrenceID)
		}
	}

	var (
		out  []models.CalendarOccurrence
		errs []error
	)
	for _, ev := range events {
		if opts.RequireOrganizer && !ev.HasOrganizer {
			continue
		}
		if ev.AllDay && !opts.IncludeAllDay {
			continue
		}

		if ev.RRule == "" || ev.RecurrenceID != nil {
			out = appendIfContained(out, r, ev.Summary, ev.Start, ev.End, opts.Location)
			continue
		}

		starts, err := recurrences(ev, moved[ev.UID], r, opts.MaxOccurrences)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		duration := ev.End.Sub(ev.Start)
		for _, s := range starts {
			out = appendIfContained(out, r, ev.Summary, s, s.Add(duration), opts.Location)
		}
	}

	return dedup(out), errs
}

func recurrences(ev Event, moved []time.Time, r models.Range, limit int) ([]time.Time, error) {
	rule, err := rrule.StrToRRule(ev.RRule)
	if err != nil {
		return nil, fmt.Errorf("event %q: rrule %q: %w", ev.Summary, ev.RRule, err)
	}
	rule.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(rule)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}
	for _, m := range moved {
		set.ExDate(m.In(ev.Start.Location()))
	}

	loc := ev.Start.Location()
	starts := set.Between(r.Start.In(loc), r.EndOfDay().In(loc), true)
	if len(starts) > limit {
		starts = starts[:limit]
	}
	return starts, nil
}

func appendIfContained(out []models.CalendarOccurrence, r models.Range, summary string, start, end time.Time, loc *time.Location) []models.CalendarOccurrence {
	occ := models.CalendarOccurrence{Summary: summary, Start: start.In(loc), End: end.In(loc)}
	if !r.Contains(occ) {
		return out
	}
	return append(out, occ)
}

func dedup(in []models.CalendarOccurrence) []models.CalendarOccurrence {
	sort.SliceStable(in, func(i, j int) bool {
		if !in[i].Start.Equal(in[j].Start) {
			return in[i].Start.Before(in[j].Start)
		}
		return in[i].Summary < in[j].Summary
	})

	out := make([]models.CalendarOccurrence, 0, len(in))
	for i, occ := range in {
		if i > 0 && occ.Start.Equal(in[i-1].Start) && occ.Summary == in[i-1].Summary {
			continue
		}
		out = append(out, occ)
	}
	return out
}
