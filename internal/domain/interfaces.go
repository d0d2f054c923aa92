package domain

import (
	"context"
	"time"

	"calsync/internal/models"
)

// CalendarSource yields meetings in a date range, deduplicated and ordered by
// start.
type CalendarSource interface {
	ReadEvents(ctx context.Context, r models.Range) ([]models.CalendarOccurrence, error)
}

type LedgerClient interface {
	CreateTimeEntry(ctx context.Context, draft models.TimeEntryDraft) (*models.LedgerResponse, error)
}

type TicketSource interface {
	TicketsInProgress(ctx context.Context, start, end time.Time) ([]models.TicketsOnDay, error)
}

type RunRecorder interface {
	SaveRun(ctx context.Context, run *models.SubmissionRun) error
	GetRun(ctx context.Context, id string) (*models.SubmissionRun, error)
	ListRuns(ctx context.Context, limit int) ([]*models.SubmissionRun, error)
}

type RunLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}
