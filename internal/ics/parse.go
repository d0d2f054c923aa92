// Package ics reads meetings from an iCalendar file or feed and expands
// recurring events into dated occurrences.
package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"calsync/internal/timefmt"
)

// Event is a VEVENT reduced to what scheduling needs.
type Event struct {
	UID          string
	Summary      string
	Start        time.Time
	End          time.Time
	AllDay       bool
	HasOrganizer bool
	RRule        string
	ExDates      []time.Time
	RecurrenceID *time.Time
}

// Parse decodes an iCalendar payload. Zone-less times are read in loc.
// Events with an unreadable DTSTART are skipped; the returned count says how
// many.
func Parse(body []byte, loc *time.Location) ([]Event, int, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, 0, errors.New("empty calendar")
	}
	if loc == nil {
		loc = time.UTC
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("parse calendar: %w", err)
	}

	var (
		events  []Event
		skipped int
	)
	for _, ve := range cal.Events() {
		ev, err := parseEvent(ve, loc)
		if err != nil {
			skipped++
			continue
		}
		events = append(events, ev)
	}
	return events, skipped, nil
}

func parseEvent(ve *ical.VEvent, loc *time.Location) (Event, error) {
	var ev Event

	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		ev.UID = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		ev.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyOrganizer); p != nil && strings.TrimSpace(p.Value) != "" {
		ev.HasOrganizer = true
	}

	startProp := ve.GetProperty(ical.ComponentPropertyDtStart)
	if startProp == nil {
		return ev, errors.New("missing DTSTART")
	}
	start, allDay, err := propertyTime(startProp, loc)
	if err != nil {
		return ev, err
	}
	ev.Start = start
	ev.AllDay = allDay

	if endProp := ve.GetProperty(ical.ComponentPropertyDtEnd); endProp != nil {
		end, _, err := propertyTime(endProp, loc)
		if err != nil {
			return ev, err
		}
		ev.End = end
	} else if allDay {
		ev.End = start.AddDate(0, 0, 1)
	} else {
		ev.End = start
	}
	if ev.End.Before(ev.Start) {
		return ev, fmt.Errorf("event %q ends before it starts", ev.Summary)
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		ev.RRule = p.Value
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		zone := zoneOf(p, loc)
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := timefmt.Parse(part, zone); err == nil {
				ev.ExDates = append(ev.ExDates, t)
			}
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRecurrenceId); p != nil {
		if t, _, err := propertyTime(p, loc); err == nil {
			ev.RecurrenceID = &t
		}
	}

	return ev, nil
}

// propertyTime reads a DATE or DATE-TIME value honoring TZID.
func propertyTime(p *ical.IANAProperty, loc *time.Location) (time.Time, bool, error) {
	value := strings.TrimSpace(p.Value)
	allDay := !strings.Contains(value, "T")
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		allDay = true
	}
	t, err := timefmt.Parse(value, zoneOf(p, loc))
	if err != nil {
		return time.Time{}, false, err
	}
	return t, allDay, nil
}

func zoneOf(p *ical.IANAProperty, fallback *time.Location) *time.Location {
	tzs, ok := p.ICalParameters["TZID"]
	if !ok || len(tzs) == 0 {
		return fallback
	}
	zone, err := time.LoadLocation(strings.Trim(tzs[0], `"`))
	if err != nil {
		return fallback
	}
	return zone
}
