package schedule

import (
	"fmt"
	"time"

	"calsync/internal/classify"
	"calsync/internal/models"
	"calsync/internal/timefmt"
)

// Expander turns recurring templates into dated meeting drafts.
type Expander struct {
	classifier *classify.Classifier
	projectID  string
	loc        *time.Location
}

func NewExpander(classifier *classify.Classifier, projectID string, loc *time.Location) *Expander {
	if loc == nil {
		loc = time.Local
	}
	return &Expander{classifier: classifier, projectID: projectID, loc: loc}
}

// Expand walks StartDate..EndDate inclusive. A date whose weekday is in the
// template emits one draft and moves the cursor IntervalDays ahead; any other
// date moves it one day.
func (e *Expander) Expand(t models.RecurringTemplate) ([]models.TimeEntryDraft, error) {
	if err := e.validate(t); err != nil {
		return nil, err
	}

	taskID, ok := e.classifier.ClassifyByName(t.TaskName)
	if !ok {
		taskID = e.classifier.ID(models.TaskImprovement)
	}

	var drafts []models.TimeEntryDraft
	last := dateOf(t.EndDate, e.loc)
	for day := dateOf(t.StartDate, e.loc); !day.After(last); {
		if !t.DaysOfWeek.Has(day.Weekday()) {
			day = day.AddDate(0, 0, 1)
			continue
		}

		start, end, err := e.occurrence(t, day)
		if err != nil {
			return nil, err
		}
		draft, err := newDraft(t.Description, start, end, e.projectID, taskID)
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, draft)

		day = day.AddDate(0, 0, t.IntervalDays)
	}
	return drafts, nil
}

func (e *Expander) occurrence(t models.RecurringTemplate, day time.Time) (time.Time, time.Time, error) {
	date := day.Format("2006-01-02")
	start, err := timefmt.Parse(date+"T"+t.StartTime, e.loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := timefmt.Parse(date+"T"+t.EndTime, e.loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

func (e *Expander) validate(t models.RecurringTemplate) error {
	if t.IntervalDays < 1 {
		return fmt.Errorf("%w: interval must be at least 1 day, got %d", ErrInvalidTemplate, t.IntervalDays)
	}
	if dateOf(t.EndDate, e.loc).Before(dateOf(t.StartDate, e.loc)) {
		return fmt.Errorf("%w: end date %s is before start date %s", ErrInvalidTemplate,
			t.EndDate.Format("2006-01-02"), t.StartDate.Format("2006-01-02"))
	}

	start, end, err := e.occurrence(t, dateOf(t.StartDate, e.loc))
	if err != nil {
		return err
	}
	if !start.Before(end) {
		return fmt.Errorf("%w: start time %s must be before end time %s", ErrInvalidTemplate, t.StartTime, t.EndTime)
	}
	return nil
}
