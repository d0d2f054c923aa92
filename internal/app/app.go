// Package app assembles the calsync components from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"calsync/internal/classify"
	"calsync/internal/clockify"
	"calsync/internal/config"
	"calsync/internal/database"
	"calsync/internal/domain"
	"calsync/internal/events"
	"calsync/internal/ics"
	"calsync/internal/jira"
	"calsync/internal/models"
	"calsync/internal/repository"
	"calsync/internal/schedule"
	"calsync/internal/service"
	"calsync/internal/submission"
)

// App holds the wired service and the resources it owns.
type App struct {
	Config  *config.Config
	Service *service.TimeEntryService
	DB      *database.DB
	Redis   *redis.Client
	Events  *events.EventBus

	closers []io.Closer
	logger  *zerolog.Logger
}

// Options relax wiring for one-shot use.
type Options struct {
	// AllowMissingLedger wires a ledger that rejects every entry when
	// Clockify credentials are absent, so dry runs still work.
	AllowMissingLedger bool
	// SkipJournal leaves the sqlite run journal out.
	SkipJournal bool
}

func New(ctx context.Context, cfg *config.Config, opts Options, logger *zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Events: events.NewEventBus(), logger: logger}

	loc, err := cfg.Calendar.Location()
	if err != nil {
		return nil, err
	}
	workday, err := cfg.Workday.Workday()
	if err != nil {
		return nil, err
	}

	ledger, err := a.initLedger(opts)
	if err != nil {
		return nil, err
	}
	tickets, err := a.initTickets()
	if err != nil {
		return nil, err
	}

	deps := service.Dependencies{
		Calendar: ics.NewReader(ics.Config{
			Source:           cfg.Calendar.Source,
			Location:         loc,
			RequireOrganizer: cfg.Calendar.OrganizerRequired(),
			IncludeAllDay:    cfg.Calendar.IncludeAllDay,
			MaxOccurrences:   cfg.Calendar.MaxOccurrences,
		}, logger),
		Synthesizer: schedule.NewSynthesizer(
			classify.New(cfg.Clockify.TaskIDs()),
			schedule.Projects{Productive: cfg.Clockify.Projects.Productive, Meetings: cfg.Clockify.Projects.Meetings},
			workday,
			loc,
		),
		Pipeline:  submission.NewPipeline(ledger, cfg.Clockify.SubmitDelay, logger),
		Locker:    a.initLocker(ctx),
		Publisher: a.Events,
	}
	if tickets != nil {
		deps.Tickets = tickets
	}

	if !opts.SkipJournal {
		db, err := database.NewDB(cfg.Database.Path, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.DB = db
		a.closers = append(a.closers, db)
		deps.Recorder = db
	}

	a.subscribeLogging()
	a.Service = service.NewTimeEntryService(deps, logger)
	return a, nil
}

func (a *App) initLedger(opts Options) (domain.LedgerClient, error) {
	cfg := a.Config.Clockify
	client, err := clockify.NewClient(clockify.Config{
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey,
		WorkspaceID: cfg.WorkspaceID,
		Timeout:     cfg.Timeout,
		Retry: clockify.RetryPolicy{
			MaxRetries:    cfg.MaxRetries,
			InitialDelay:  cfg.RetryInitialDelay,
			MaxDelay:      cfg.RetryMaxDelay,
			BackoffFactor: 2,
		},
	}, a.logger)
	if errors.Is(err, clockify.ErrNotConfigured) && opts.AllowMissingLedger {
		a.logger.Warn().Msg("clockify credentials missing, submissions will fail")
		return disabledLedger{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("init clockify client: %w", err)
	}
	return client, nil
}

func (a *App) initTickets() (*jira.Client, error) {
	cfg := a.Config.Jira
	if !cfg.Enabled() {
		return nil, nil
	}
	client, err := jira.NewClient(jira.Config{
		BaseURL:  cfg.BaseURL,
		Email:    cfg.Email,
		APIToken: cfg.APIToken,
		Timeout:  cfg.Timeout,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("init jira client: %w", err)
	}
	return client, nil
}

// initLocker prefers Redis with an in-memory fallback; without a Redis
// address the lock table is process-local.
func (a *App) initLocker(ctx context.Context) domain.RunLocker {
	memory := repository.NewMemoryRunLocker()
	if a.Config.Redis.Address == "" {
		return memory
	}

	client := repository.NewRedisClient(a.Config.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		a.logger.Warn().Err(err).Msg("redis connection failed, run locks stay in memory until it recovers")
	} else {
		a.logger.Info().Str("addr", a.Config.Redis.Address).Msg("redis connected")
	}
	a.Redis = client
	a.closers = append(a.closers, client)

	return repository.NewFailoverRunLocker(
		repository.NewRedisRunLocker(client, a.Config.Redis.LockPrefix),
		memory,
		a.logger,
	)
}

func (a *App) subscribeLogging() {
	a.Events.Subscribe(events.EventRunAborted, func(e *events.Event) error {
		a.logger.Warn().RawJSON("payload", e.Payload).Msg("submission run aborted")
		return nil
	})
	a.Events.Subscribe(events.EventEntryFailed, func(e *events.Event) error {
		a.logger.Debug().RawJSON("payload", e.Payload).Msg("time entry failed")
		return nil
	})
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn().Err(err).Msg("close resource")
		}
	}
	a.closers = nil
}

type disabledLedger struct{}

func (disabledLedger) CreateTimeEntry(context.Context, models.TimeEntryDraft) (*models.LedgerResponse, error) {
	return nil, clockify.ErrNotConfigured
}
