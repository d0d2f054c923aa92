// Package worker runs the submission flows on a cron schedule.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"calsync/internal/models"
	"calsync/internal/service"
)

// FlowRunner is the part of the time entry service the scheduler drives.
type FlowRunner interface {
	CreateMeetings(ctx context.Context, rng models.Range, opts service.Options) (*service.Result, error)
	CreateFromTickets(ctx context.Context, rng models.Range, opts service.Options) (*service.TicketsResult, error)
}

type Config struct {
	Spec         string
	Flow         models.Flow
	LookbackDays int
	Location     *time.Location
	// Timeout bounds one scheduled run.
	Timeout time.Duration
}

// Scheduler triggers a daily sync of the configured flow.
type Scheduler struct {
	runner FlowRunner
	cfg    Config
	cron   *cron.Cron
	now    func() time.Time
	logger *zerolog.Logger

	mu      sync.Mutex
	baseCtx context.Context
}

func NewScheduler(runner FlowRunner, cfg Config, logger *zerolog.Logger) (*Scheduler, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Minute
	}
	switch cfg.Flow {
	case models.FlowMeetings, models.FlowTickets:
	default:
		return nil, fmt.Errorf("scheduler: unsupported flow %q", cfg.Flow)
	}

	l := logger.With().Str("component", "scheduler").Str("flow", string(cfg.Flow)).Logger()
	s := &Scheduler{
		runner:  runner,
		cfg:     cfg,
		now:     time.Now,
		logger:  &l,
		baseCtx: context.Background(),
	}
	s.cron = cron.New(
		cron.WithLocation(cfg.Location),
		cron.WithLogger(cronLogger{logger: &l}),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger: &l})),
	)
	if _, err := s.cron.AddFunc(cfg.Spec, s.tick); err != nil {
		return nil, fmt.Errorf("scheduler: invalid spec %q: %w", cfg.Spec, err)
	}
	return s, nil
}

// Start runs the cron loop until ctx is done. In-flight runs see ctx
// cancellation and are awaited before Start returns.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info().Str("spec", s.cfg.Spec).Msg("scheduler started")

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("scheduler stopped")
	return nil
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	base := s.baseCtx
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(base, s.cfg.Timeout)
	defer cancel()
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error().Err(err).Msg("scheduled sync failed")
	}
}

// Range is the window a run started at now covers: the previous
// LookbackDays days through today.
func (s *Scheduler) Range(now time.Time) models.Range {
	y, m, d := now.In(s.cfg.Location).Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, s.cfg.Location)
	start := today
	if s.cfg.LookbackDays > 0 {
		start = today.AddDate(0, 0, -s.cfg.LookbackDays)
	}
	return models.Range{Start: start, End: today}
}

// RunOnce syncs the current window. A run already holding the lock is not
// an error.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	rng := s.Range(s.now())
	log := s.logger.With().
		Str("start", rng.Start.Format(time.DateOnly)).
		Str("end", rng.End.Format(time.DateOnly)).
		Logger()

	var err error
	switch s.cfg.Flow {
	case models.FlowMeetings:
		_, err = s.runner.CreateMeetings(ctx, rng, service.Options{})
	case models.FlowTickets:
		_, err = s.runner.CreateFromTickets(ctx, rng, service.Options{})
	}
	if errors.Is(err, service.ErrRunInProgress) {
		log.Info().Msg("sync skipped, run already in progress")
		return nil
	}
	if err != nil {
		return err
	}
	log.Info().Msg("scheduled sync finished")
	return nil
}

type cronLogger struct {
	logger *zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
