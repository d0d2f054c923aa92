// Package clockify posts time entries to the Clockify REST API.
package clockify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"calsync/internal/metrics"
	"calsync/internal/models"
	"calsync/internal/timefmt"
)

const (
	DefaultBaseURL = "https://api.clockify.me"
	apiKeyHeader   = "x-api-key"
	maxErrorBody   = 4 << 10
)

var ErrNotConfigured = errors.New("clockify client is not configured")

// StatusError is returned for any non-2xx reply.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("clockify: unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("clockify: unexpected status %d: %s", e.StatusCode, e.Body)
}

type Config struct {
	BaseURL     string
	APIKey      string
	WorkspaceID string
	Timeout     time.Duration
	Retry       RetryPolicy
	HTTPClient  *http.Client
}

// Client implements domain.LedgerClient.
type Client struct {
	cfg      Config
	endpoint string
	http     *http.Client
	logger   *zerolog.Logger
}

func NewClient(cfg Config, logger *zerolog.Logger) (*Client, error) {
	if cfg.APIKey == "" || cfg.WorkspaceID == "" {
		return nil, ErrNotConfigured
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry == (RetryPolicy{}) {
		cfg.Retry = DefaultRetryPolicy()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "clockify").Logger()

	endpoint := strings.TrimRight(cfg.BaseURL, "/") + "/api/v1/workspaces/" + url.PathEscape(cfg.WorkspaceID) + "/time-entries"
	return &Client{cfg: cfg, endpoint: endpoint, http: httpClient, logger: &l}, nil
}

type timeEntryPayload struct {
	Description string `json:"description"`
	Start       string `json:"start"`
	End         string `json:"end"`
	ProjectID   string `json:"projectId"`
	TaskID      string `json:"taskId"`
}

// CreateTimeEntry posts one draft. Rate-limited replies are retried per the
// retry policy; any other failure is returned as is.
func (c *Client) CreateTimeEntry(ctx context.Context, draft models.TimeEntryDraft) (*models.LedgerResponse, error) {
	body, err := json.Marshal(timeEntryPayload{
		Description: draft.Description,
		Start:       timefmt.ToCanonical(draft.Start),
		End:         timefmt.ToCanonical(draft.End),
		ProjectID:   draft.ProjectID,
		TaskID:      draft.TaskID,
	})
	if err != nil {
		return nil, fmt.Errorf("encode time entry: %w", err)
	}

	for attempt := 1; ; attempt++ {
		resp, err := c.post(ctx, body)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt <= c.cfg.Retry.MaxRetries {
			delay := c.cfg.Retry.delayFor(attempt, resp)
			drain(resp)
			metrics.IncLedgerRetry()
			c.logger.Debug().Int("attempt", attempt).Dur("delay", delay).Msg("rate limited, retrying")
			if err := sleep(ctx, delay); err != nil {
				return nil, err
			}
			continue
		}

		return decode(resp)
	}
}

func (c *Client) post(ctx context.Context, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apiKeyHeader, c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post time entry: %w", err)
	}
	return resp, nil
}

func decode(resp *http.Response) (*models.LedgerResponse, error) {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var out models.LedgerResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode time entry: %w", err)
	}
	return &out, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	_ = resp.Body.Close()
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
