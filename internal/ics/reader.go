package ics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"calsync/internal/models"
)

const maxFeedBytes = 32 << 20

// Config selects the calendar and how its events are read.
type Config struct {
	// Source is a file path or an http(s)/webcal URL.
	Source           string
	Location         *time.Location
	RequireOrganizer bool
	IncludeAllDay    bool
	MaxOccurrences   int
	HTTPClient       *http.Client
}

// Reader implements domain.CalendarSource over an iCalendar file or feed.
type Reader struct {
	cfg    Config
	logger *zerolog.Logger
}

func NewReader(cfg Config, logger *zerolog.Logger) *Reader {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "ics").Logger()
	return &Reader{cfg: cfg, logger: &l}
}

// ReadEvents loads the calendar and returns the occurrences inside r.
func (r *Reader) ReadEvents(ctx context.Context, rng models.Range) ([]models.CalendarOccurrence, error) {
	body, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	events, skipped, err := Parse(body, r.cfg.Location)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		r.logger.Warn().Int("skipped", skipped).Msg("events without a readable start were ignored")
	}

	occ, errs := Expand(events, rng, ExpandOptions{
		Location:         r.cfg.Location,
		RequireOrganizer: r.cfg.RequireOrganizer,
		IncludeAllDay:    r.cfg.IncludeAllDay,
		MaxOccurrences:   r.cfg.MaxOccurrences,
	})
	for _, e := range errs {
		r.logger.Warn().Err(e).Msg("recurrence skipped")
	}

	r.logger.Debug().
		Int("events", len(events)).
		Int("occurrences", len(occ)).
		Time("from", rng.Start).
		Time("to", rng.End).
		Msg("calendar read")
	return occ, nil
}

func (r *Reader) load(ctx context.Context) ([]byte, error) {
	src := strings.TrimSpace(r.cfg.Source)
	if src == "" {
		return nil, errors.New("calendar source is not configured")
	}

	if strings.HasPrefix(src, "webcal://") {
		src = "https://" + strings.TrimPrefix(src, "webcal://")
	}
	if !strings.HasPrefix(src, "http://") && !strings.HasPrefix(src, "https://") {
		body, err := os.ReadFile(src)
		if err != nil {
			return nil, fmt.Errorf("read calendar file: %w", err)
		}
		return body, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/calendar")

	resp, err := r.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch calendar: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch calendar: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("read calendar feed: %w", err)
	}
	return body, nil
}
