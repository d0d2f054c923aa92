// Package submission sends time-entry drafts to the ledger one at a time and
// accounts for every outcome.
package submission

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"calsync/internal/domain"
	"calsync/internal/metrics"
	"calsync/internal/models"
	"calsync/internal/timefmt"
)

// Pipeline submits drafts sequentially with a fixed pause between calls.
type Pipeline struct {
	ledger domain.LedgerClient
	delay  time.Duration
	logger *zerolog.Logger
}

func NewPipeline(ledger domain.LedgerClient, delay time.Duration, logger *zerolog.Logger) *Pipeline {
	if delay < 0 {
		delay = 0
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "submission").Logger()
	return &Pipeline{ledger: ledger, delay: delay, logger: &l}
}

// Submit posts every draft in order. A failed post is recorded and the run
// continues. When ctx is done the run stops before the next post and the
// partial summary is returned together with ctx.Err().
func (p *Pipeline) Submit(ctx context.Context, drafts []models.TimeEntryDraft) (models.ExecutionSummary, error) {
	summary := models.ExecutionSummary{
		TotalRequested: len(drafts),
		Succeeded:      []models.LedgerResponse{},
		Failed:         []models.TimeEntryDraft{},
	}

	for i, draft := range drafts {
		if i > 0 {
			if err := p.wait(ctx); err != nil {
				return p.abort(summary, i, err)
			}
		}
		if err := ctx.Err(); err != nil {
			return p.abort(summary, i, err)
		}

		resp, err := p.ledger.CreateTimeEntry(ctx, draft)
		if err != nil || resp == nil {
			metrics.IncEntry(metrics.OutcomeFailure)
			p.logger.Warn().Err(err).
				Str("description", draft.Description).
				Str("start", timefmt.ToCanonical(draft.Start)).
				Str("end", timefmt.ToCanonical(draft.End)).
				Msg("time entry rejected")
			summary.Failed = append(summary.Failed, draft)
			continue
		}

		metrics.IncEntry(metrics.OutcomeSuccess)
		summary.Succeeded = append(summary.Succeeded, *resp)
	}

	summary.Seal()
	p.logger.Info().
		Int("requested", summary.TotalRequested).
		Int("succeeded", summary.TotalSuccess).
		Int("failed", summary.TotalFailed).
		Msg("submission finished")
	return summary, nil
}

func (p *Pipeline) abort(summary models.ExecutionSummary, next int, err error) (models.ExecutionSummary, error) {
	summary.Aborted = true
	summary.Seal()
	p.logger.Warn().Err(err).
		Int("submitted", next).
		Int("remaining", summary.TotalRequested-next).
		Msg("submission aborted")
	return summary, err
}

func (p *Pipeline) wait(ctx context.Context) error {
	if p.delay == 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(p.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
