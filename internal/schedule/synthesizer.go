package schedule

import (
	"fmt"
	"sort"
	"time"

	"calsync/internal/classify"
	"calsync/internal/models"
)

// maxRequestSpan bounds how many dates a single productive request may cover.
const maxRequestSpan = 366

// Synthesizer builds the drafts for each submission flow.
type Synthesizer struct {
	classifier *classify.Classifier
	projects   Projects
	loc        *time.Location
	expander   *Expander
	gaps       *GapScheduler
}

func NewSynthesizer(classifier *classify.Classifier, projects Projects, workday Workday, loc *time.Location) *Synthesizer {
	if loc == nil {
		loc = time.Local
	}
	return &Synthesizer{
		classifier: classifier,
		projects:   projects,
		loc:        loc,
		expander:   NewExpander(classifier, projects.Meetings, loc),
		gaps:       NewGapScheduler(classifier, projects.Productive, workday, loc),
	}
}

// Location returns the zone used for calendar dates and clock times.
func (s *Synthesizer) Location() *time.Location { return s.loc }

// Meetings emits one draft per calendar event, in input order.
func (s *Synthesizer) Meetings(events []models.CalendarOccurrence) ([]models.TimeEntryDraft, error) {
	drafts := make([]models.TimeEntryDraft, 0, len(events))
	for _, ev := range events {
		d, err := newDraft(ev.Summary, ev.Start, ev.End, s.projects.Meetings, s.classifier.Classify(ev.Summary))
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, d)
	}
	return drafts, nil
}

// Recurring expands every template and concatenates the results.
func (s *Synthesizer) Recurring(templates []models.RecurringTemplate) ([]models.TimeEntryDraft, error) {
	var drafts []models.TimeEntryDraft
	for i, t := range templates {
		out, err := s.expander.Expand(t)
		if err != nil {
			return nil, fmt.Errorf("template %d (%q): %w", i, t.Description, err)
		}
		drafts = append(drafts, out...)
	}
	return drafts, nil
}

// Productive fills the free time of each requested date around that date's
// meetings. A request covers every date from Start to End; when two requests
// claim the same date the earlier one in input order wins.
func (s *Synthesizer) Productive(events []models.CalendarOccurrence, requests []models.ProductiveRequest) ([]models.TimeEntryDraft, error) {
	meetingsByDay := make(map[string][]models.CalendarOccurrence)
	days := make(map[string]time.Time)
	for _, ev := range events {
		day := dateOf(ev.Start.In(s.loc), s.loc)
		key := day.Format(time.DateOnly)
		meetingsByDay[key] = append(meetingsByDay[key], ev)
		days[key] = day
	}

	requestByDay := make(map[string]*models.ProductiveRequest)
	for i := range requests {
		dates, err := s.requestDates(requests[i])
		if err != nil {
			return nil, err
		}
		for _, day := range dates {
			key := day.Format(time.DateOnly)
			if _, taken := requestByDay[key]; taken {
				continue
			}
			requestByDay[key] = &requests[i]
			days[key] = day
		}
	}

	keys := make([]string, 0, len(days))
	for k := range days {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var drafts []models.TimeEntryDraft
	for _, key := range keys {
		meetings := meetingsByDay[key]
		sort.SliceStable(meetings, func(i, j int) bool {
			return meetings[i].Start.Before(meetings[j].Start)
		})
		out, err := s.gaps.FillDay(days[key], meetings, requestByDay[key])
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, out...)
	}
	return drafts, nil
}

func (s *Synthesizer) requestDates(r models.ProductiveRequest) ([]time.Time, error) {
	if r.Start.IsZero() {
		return nil, fmt.Errorf("%w: %q has no start date", ErrInvalidRequest, r.Description)
	}
	first := dateOf(r.Start, s.loc)
	last := first
	if !r.End.IsZero() {
		if end := dateOf(r.End, s.loc); end.After(first) {
			last = end
		}
	}

	var dates []time.Time
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		if len(dates) == maxRequestSpan {
			return nil, fmt.Errorf("%w: %q spans more than %d days", ErrInvalidRequest, r.Description, maxRequestSpan)
		}
		dates = append(dates, day)
	}
	return dates, nil
}

// RequestsFromTickets turns the first ticket of each non-empty day into a
// single-day productive request.
func RequestsFromTickets(days []models.TicketsOnDay) []models.ProductiveRequest {
	var out []models.ProductiveRequest
	for _, d := range days {
		if len(d.Tickets) == 0 {
			continue
		}
		t := d.Tickets[0]
		out = append(out, models.ProductiveRequest{
			Description: t.Key + " | " + t.Summary,
			Start:       d.Date,
			End:         d.Date,
			TaskName:    models.DefaultTicketTaskName,
		})
	}
	return out
}
