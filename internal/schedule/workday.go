package schedule

import (
	"time"

	"calsync/internal/classify"
	"calsync/internal/models"
)

// GapScheduler fills the free time of a workday with productive drafts.
type GapScheduler struct {
	classifier *classify.Classifier
	projectID  string
	workday    Workday
	loc        *time.Location
}

func NewGapScheduler(classifier *classify.Classifier, projectID string, workday Workday, loc *time.Location) *GapScheduler {
	if loc == nil {
		loc = time.Local
	}
	return &GapScheduler{classifier: classifier, projectID: projectID, workday: workday, loc: loc}
}

// FillDay emits productive drafts for the gaps of date's workday that are not
// covered by lunch or by meetings. meetings must be sorted by start and belong
// to date. Weekends and days without a request produce nothing.
func (s *GapScheduler) FillDay(date time.Time, meetings []models.CalendarOccurrence, req *models.ProductiveRequest) ([]models.TimeEntryDraft, error) {
	if req == nil {
		return nil, nil
	}
	day := dateOf(date, s.loc)
	if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return nil, nil
	}

	taskID, ok := s.classifier.ClassifyByName(req.TaskName)
	if !ok {
		taskID = s.classifier.ID(models.TaskDevelopment)
	}

	var (
		workStart  = clockOn(day, s.workday.Start, s.loc)
		workEnd    = clockOn(day, s.workday.End, s.loc)
		lunchStart = clockOn(day, s.workday.LunchStart, s.loc)
		lunchEnd   = clockOn(day, s.workday.LunchEnd, s.loc)
		cursor     = workStart
		drafts     []models.TimeEntryDraft
	)

	emit := func(from, to time.Time) error {
		if !from.Before(to) {
			return nil
		}
		d, err := newDraft(req.Description, from, to, s.projectID, taskID)
		if err != nil {
			return err
		}
		drafts = append(drafts, d)
		return nil
	}

	// fillUntil covers [cursor, target) while stepping over lunch.
	fillUntil := func(target time.Time) error {
		if cursor.Before(lunchEnd) && target.After(lunchStart) {
			if cursor.Before(lunchStart) {
				if err := emit(cursor, lunchStart); err != nil {
					return err
				}
			}
			cursor = lunchEnd
		}
		if cursor.Before(target) {
			if err := emit(cursor, target); err != nil {
				return err
			}
			cursor = target
		}
		return nil
	}

	for _, m := range meetings {
		if cursor.Before(m.Start) {
			target := m.Start
			if target.After(workEnd) {
				target = workEnd
			}
			if err := fillUntil(target); err != nil {
				return nil, err
			}
		}
		if m.End.After(cursor) {
			cursor = m.End
		}
	}

	if cursor.Before(workEnd) {
		if err := fillUntil(workEnd); err != nil {
			return nil, err
		}
	}
	return drafts, nil
}
