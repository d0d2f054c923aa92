// Package service drives the entry flows: it reads the calendar and issue
// tracker, synthesizes drafts, submits them and records each run.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"calsync/internal/domain"
	"calsync/internal/events"
	"calsync/internal/metrics"
	"calsync/internal/models"
	"calsync/internal/schedule"
	"calsync/internal/submission"
)

const maxRangeDays = 366

// Dependencies groups the collaborators of TimeEntryService. Tickets,
// Recorder, Locker and Publisher are optional.
type Dependencies struct {
	Calendar    domain.CalendarSource
	Tickets     domain.TicketSource
	Synthesizer *schedule.Synthesizer
	Pipeline    *submission.Pipeline
	Recorder    domain.RunRecorder
	Locker      domain.RunLocker
	Publisher   domain.EventPublisher
	LockTTL     time.Duration
}

// Options tune a single create call.
type Options struct {
	DryRun bool
}

// Result is the outcome of one flow. Dry runs carry Drafts only.
type Result struct {
	RunID   string                   `json:"runId,omitempty"`
	DryRun  bool                     `json:"dryRun,omitempty"`
	Drafts  []models.TimeEntryDraft  `json:"drafts,omitempty"`
	Summary *models.ExecutionSummary `json:"summary,omitempty"`
}

// TicketsResult is the outcome of the ticket flow: meetings first, then
// productive entries derived from in-progress tickets.
type TicketsResult struct {
	Tickets    []models.TicketsOnDay `json:"tickets"`
	Meetings   *Result               `json:"meetings"`
	Productive *Result               `json:"productive"`
}

type TimeEntryService struct {
	calendar  domain.CalendarSource
	tickets   domain.TicketSource
	synth     *schedule.Synthesizer
	pipeline  *submission.Pipeline
	recorder  domain.RunRecorder
	locker    domain.RunLocker
	publisher domain.EventPublisher
	lockTTL   time.Duration
	now       func() time.Time
	logger    *zerolog.Logger
}

func NewTimeEntryService(deps Dependencies, logger *zerolog.Logger) *TimeEntryService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "time-entry-service").Logger()
	ttl := deps.LockTTL
	if ttl <= 0 {
		ttl = models.DefaultRunLockTTL
	}
	return &TimeEntryService{
		calendar:  deps.Calendar,
		tickets:   deps.Tickets,
		synth:     deps.Synthesizer,
		pipeline:  deps.Pipeline,
		recorder:  deps.Recorder,
		locker:    deps.Locker,
		publisher: deps.Publisher,
		lockTTL:   ttl,
		now:       time.Now,
		logger:    &l,
	}
}

// Location is the zone used for calendar dates.
func (s *TimeEntryService) Location() *time.Location {
	return s.synth.Location()
}

// TicketsEnabled reports whether an issue tracker is wired.
func (s *TimeEntryService) TicketsEnabled() bool {
	return s.tickets != nil
}

func (s *TimeEntryService) Events(ctx context.Context, rng models.Range) ([]models.CalendarOccurrence, error) {
	if err := validateRange(rng); err != nil {
		return nil, err
	}
	return s.readCalendar(ctx, rng)
}

func (s *TimeEntryService) CreateMeetings(ctx context.Context, rng models.Range, opts Options) (*Result, error) {
	if err := validateRange(rng); err != nil {
		return nil, err
	}
	occurrences, err := s.readCalendar(ctx, rng)
	if err != nil {
		return nil, err
	}
	drafts, err := s.synth.Meetings(occurrences)
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, models.FlowMeetings, rng, drafts, opts)
}

func (s *TimeEntryService) CreateProductive(ctx context.Context, requests []models.ProductiveRequest, opts Options) (*Result, error) {
	if len(requests) == 0 {
		return s.execute(ctx, models.FlowProductive, models.Range{}, nil, opts)
	}
	rng, err := requestsRange(requests)
	if err != nil {
		return nil, err
	}
	occurrences, err := s.readCalendar(ctx, rng)
	if err != nil {
		return nil, err
	}
	drafts, err := s.synth.Productive(occurrences, requests)
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, models.FlowProductive, rng, drafts, opts)
}

func (s *TimeEntryService) CreateRecurring(ctx context.Context, templates []models.RecurringTemplate, opts Options) (*Result, error) {
	drafts, err := s.synth.Recurring(templates)
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, models.FlowRecurring, templatesRange(templates), drafts, opts)
}

func (s *TimeEntryService) Tickets(ctx context.Context, rng models.Range) ([]models.TicketsOnDay, error) {
	if err := validateRange(rng); err != nil {
		return nil, err
	}
	return s.readTickets(ctx, rng)
}

// CreateFromTickets books the range's meetings, then fills each workday's
// gaps with the first ticket that was in progress on that day.
func (s *TimeEntryService) CreateFromTickets(ctx context.Context, rng models.Range, opts Options) (*TicketsResult, error) {
	if err := validateRange(rng); err != nil {
		return nil, err
	}
	days, err := s.readTickets(ctx, rng)
	if err != nil {
		return nil, err
	}
	occurrences, err := s.readCalendar(ctx, rng)
	if err != nil {
		return nil, err
	}

	meetingDrafts, err := s.synth.Meetings(occurrences)
	if err != nil {
		return nil, err
	}
	productiveDrafts, err := s.synth.Productive(occurrences, schedule.RequestsFromTickets(days))
	if err != nil {
		return nil, err
	}

	out := &TicketsResult{Tickets: days}
	if opts.DryRun {
		out.Meetings = &Result{DryRun: true, Drafts: meetingDrafts}
		out.Productive = &Result{DryRun: true, Drafts: productiveDrafts}
		return out, nil
	}

	release, err := s.lock(ctx, models.FlowTickets, rng)
	if err != nil {
		return nil, err
	}
	defer release()

	out.Meetings, err = s.submit(ctx, models.FlowMeetings, rng, meetingDrafts)
	if err != nil {
		return out, err
	}
	out.Productive, err = s.submit(ctx, models.FlowTickets, rng, productiveDrafts)
	return out, err
}

// Runs lists recent journal entries.
func (s *TimeEntryService) Runs(ctx context.Context, limit int) ([]*models.SubmissionRun, error) {
	if s.recorder == nil {
		return []*models.SubmissionRun{}, nil
	}
	return s.recorder.ListRuns(ctx, limit)
}

func (s *TimeEntryService) Run(ctx context.Context, id string) (*models.SubmissionRun, error) {
	if s.recorder == nil {
		return nil, fmt.Errorf("run %s: journal disabled", id)
	}
	return s.recorder.GetRun(ctx, id)
}

func (s *TimeEntryService) execute(ctx context.Context, flow models.Flow, rng models.Range, drafts []models.TimeEntryDraft, opts Options) (*Result, error) {
	if opts.DryRun {
		if drafts == nil {
			drafts = []models.TimeEntryDraft{}
		}
		return &Result{DryRun: true, Drafts: drafts}, nil
	}

	release, err := s.lock(ctx, flow, rng)
	if err != nil {
		return nil, err
	}
	defer release()

	return s.submit(ctx, flow, rng, drafts)
}

func (s *TimeEntryService) submit(ctx context.Context, flow models.Flow, rng models.Range, drafts []models.TimeEntryDraft) (*Result, error) {
	run := &models.SubmissionRun{
		ID:         uuid.NewString(),
		Flow:       flow,
		RangeStart: rng.Start,
		RangeEnd:   rng.End,
		StartedAt:  s.now().UTC(),
	}

	summary, err := s.pipeline.Submit(ctx, drafts)

	run.FinishedAt = s.now().UTC()
	run.TotalRequested = summary.TotalRequested
	run.TotalSuccess = summary.TotalSuccess
	run.TotalFailed = summary.TotalFailed
	run.Aborted = summary.Aborted
	run.Failed = summary.Failed
	if err != nil {
		run.Error = err.Error()
	}

	s.record(run)
	s.publish(run)
	metrics.ObserveRun(string(flow), runResult(run), run.FinishedAt.Sub(run.StartedAt).Seconds())

	s.logger.Info().
		Str("run_id", run.ID).
		Str("flow", string(flow)).
		Int("requested", run.TotalRequested).
		Int("success", run.TotalSuccess).
		Int("failed", run.TotalFailed).
		Bool("aborted", run.Aborted).
		Msg("submission run finished")

	return &Result{RunID: run.ID, Summary: &summary}, err
}

func (s *TimeEntryService) lock(ctx context.Context, flow models.Flow, rng models.Range) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	key := lockKey(flow, rng)
	ok, err := s.locker.Acquire(ctx, key, s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return nil, ErrRunInProgress
	}
	return func() {
		// The request context may already be done.
		if err := s.locker.Release(context.WithoutCancel(ctx), key); err != nil {
			s.logger.Warn().Err(err).Str("lock", key).Msg("failed to release run lock")
		}
	}, nil
}

// record stores the run. The journal is best effort and never fails a run.
func (s *TimeEntryService) record(run *models.SubmissionRun) {
	if s.recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.recorder.SaveRun(ctx, run); err != nil {
		s.logger.Error().Err(err).Str("run_id", run.ID).Msg("failed to save run")
	}
}

func (s *TimeEntryService) publish(run *models.SubmissionRun) {
	if s.publisher == nil {
		return
	}
	eventType := events.EventRunCompleted
	if run.Aborted {
		eventType = events.EventRunAborted
	}
	payload := events.RunEventPayload{
		RunID:          run.ID,
		Flow:           string(run.Flow),
		RangeStart:     run.RangeStart,
		RangeEnd:       run.RangeEnd,
		TotalRequested: run.TotalRequested,
		TotalSuccess:   run.TotalSuccess,
		TotalFailed:    run.TotalFailed,
		Aborted:        run.Aborted,
	}
	if err := s.publisher.PublishJSON(eventType, payload); err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("failed to publish event")
	}

	for _, d := range run.Failed {
		err := s.publisher.PublishJSON(events.EventEntryFailed, events.EntryFailedPayload{
			RunID:       run.ID,
			Description: d.Description,
			Start:       d.Start,
			End:         d.End,
			ProjectID:   d.ProjectID,
			TaskID:      d.TaskID,
		})
		if err != nil {
			s.logger.Warn().Err(err).Str("event", events.EventEntryFailed).Msg("failed to publish event")
		}
	}
}

func (s *TimeEntryService) readCalendar(ctx context.Context, rng models.Range) ([]models.CalendarOccurrence, error) {
	occurrences, err := s.calendar.ReadEvents(ctx, rng)
	if err != nil {
		return nil, fmt.Errorf("%w: read calendar: %w", ErrUpstream, err)
	}
	return occurrences, nil
}

func (s *TimeEntryService) readTickets(ctx context.Context, rng models.Range) ([]models.TicketsOnDay, error) {
	if s.tickets == nil {
		return nil, ErrTicketsDisabled
	}
	days, err := s.tickets.TicketsInProgress(ctx, rng.Start, rng.End)
	if err != nil {
		return nil, fmt.Errorf("%w: read tickets: %w", ErrUpstream, err)
	}
	return days, nil
}

func runResult(run *models.SubmissionRun) string {
	switch {
	case run.Aborted:
		return "aborted"
	case run.TotalFailed > 0:
		return "partial"
	default:
		return "ok"
	}
}

func lockKey(flow models.Flow, rng models.Range) string {
	return fmt.Sprintf("%s:%s:%s", flow, rng.Start.Format(time.DateOnly), rng.End.Format(time.DateOnly))
}

func validateRange(rng models.Range) error {
	if rng.Start.IsZero() || rng.End.IsZero() {
		return fmt.Errorf("%w: start and end are required", ErrInvalidRange)
	}
	if rng.End.Before(rng.Start) {
		return fmt.Errorf("%w: end is before start", ErrInvalidRange)
	}
	if rng.End.Sub(rng.Start) > maxRangeDays*24*time.Hour {
		return fmt.Errorf("%w: more than %d days", ErrInvalidRange, maxRangeDays)
	}
	return nil
}

// requestsRange is the smallest range covering every request's dates.
func requestsRange(requests []models.ProductiveRequest) (models.Range, error) {
	var rng models.Range
	for i, r := range requests {
		if r.Start.IsZero() {
			return models.Range{}, fmt.Errorf("request %d: %w", i, schedule.ErrInvalidRequest)
		}
		end := r.End
		if end.IsZero() || end.Before(r.Start) {
			end = r.Start
		}
		if rng.Start.IsZero() || r.Start.Before(rng.Start) {
			rng.Start = r.Start
		}
		if end.After(rng.End) {
			rng.End = end
		}
	}
	return rng, nil
}

func templatesRange(templates []models.RecurringTemplate) models.Range {
	var rng models.Range
	for _, t := range templates {
		if rng.Start.IsZero() || t.StartDate.Before(rng.Start) {
			rng.Start = t.StartDate
		}
		if t.EndDate.After(rng.End) {
			rng.End = t.EndDate
		}
	}
	return rng
}

// IsUpstream reports whether err came from the calendar or issue tracker.
func IsUpstream(err error) bool {
	return errors.Is(err, ErrUpstream)
}
