// Package schedule turns calendar meetings, productive-work requests and
// recurring templates into ordered time-entry drafts.
package schedule

import (
	"errors"
	"fmt"
	"time"

	"calsync/internal/models"
	"calsync/internal/timefmt"
)

var (
	ErrInvalidTemplate = errors.New("invalid recurring template")
	ErrInvalidRequest  = errors.New("invalid productive request")
	ErrInvalidWorkday  = errors.New("invalid workday bounds")
)

// Projects holds the ledger project identifiers drafts are filed under.
type Projects struct {
	Productive string
	Meetings   string
}

// DefaultProjects returns the built-in project identifiers.
func DefaultProjects() Projects {
	return Projects{
		Productive: models.DefaultProductiveProjectID,
		Meetings:   models.DefaultMeetingsProjectID,
	}
}

// Workday holds the day bounds as offsets from local midnight.
type Workday struct {
	Start      time.Duration
	End        time.Duration
	LunchStart time.Duration
	LunchEnd   time.Duration
}

// DefaultWorkday is 08:00-17:00 with lunch 12:00-13:00.
func DefaultWorkday() Workday {
	return Workday{
		Start:      8 * time.Hour,
		End:        17 * time.Hour,
		LunchStart: 12 * time.Hour,
		LunchEnd:   13 * time.Hour,
	}
}

// Validate checks Start <= LunchStart <= LunchEnd <= End within one day.
func (w Workday) Validate() error {
	if w.Start < 0 || w.End > 24*time.Hour {
		return fmt.Errorf("%w: bounds outside the day", ErrInvalidWorkday)
	}
	if !(w.Start <= w.LunchStart && w.LunchStart <= w.LunchEnd && w.LunchEnd <= w.End) || w.Start >= w.End {
		return fmt.Errorf("%w: expected start <= lunch start <= lunch end <= end", ErrInvalidWorkday)
	}
	return nil
}

// clockOn places a clock offset on day's calendar date in loc. Building the
// value from hour and minute keeps wall-clock times stable across DST changes.
func clockOn(day time.Time, offset time.Duration, loc *time.Location) time.Time {
	y, m, d := day.Date()
	h := int(offset / time.Hour)
	min := int((offset % time.Hour) / time.Minute)
	return time.Date(y, m, d, h, min, 0, 0, loc)
}

// dateOf keeps t's calendar date and places it at midnight in loc.
func dateOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

func newDraft(description string, start, end time.Time, projectID, taskID string) (models.TimeEntryDraft, error) {
	s, err := timefmt.Normalize(start)
	if err != nil {
		return models.TimeEntryDraft{}, err
	}
	e, err := timefmt.Normalize(end)
	if err != nil {
		return models.TimeEntryDraft{}, err
	}
	return models.TimeEntryDraft{
		Description: description,
		Start:       s,
		End:         e,
		ProjectID:   projectID,
		TaskID:      taskID,
	}, nil
}
