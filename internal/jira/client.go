// Package jira lists the issues the current user had in progress, day by day.
package jira

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"calsync/internal/models"
)

const (
	searchPath  = "/rest/api/2/search"
	pageSize    = 100
	maxDays     = 93
	maxErrBytes = 4 << 10
)

var (
	ErrNotConfigured = errors.New("jira client is not configured")
	ErrRangeTooLarge = fmt.Errorf("ticket range exceeds %d days", maxDays)
)

type Config struct {
	BaseURL    string
	Email      string
	APIToken   string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client implements domain.TicketSource against the Jira REST search API.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zerolog.Logger
}

func NewClient(cfg Config, logger *zerolog.Logger) (*Client, error) {
	if cfg.BaseURL == "" || cfg.Email == "" || cfg.APIToken == "" {
		return nil, ErrNotConfigured
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "jira").Logger()
	return &Client{cfg: cfg, http: httpClient, logger: &l}, nil
}

// InProgressJQL selects the current user's issues that were in progress on day.
func InProgressJQL(day time.Time) string {
	return fmt.Sprintf(`assignee = currentuser() AND status WAS "In Progress" ON "%s"`, day.Format(time.DateOnly))
}

// TicketsInProgress runs one search per calendar day from start to end.
func (c *Client) TicketsInProgress(ctx context.Context, start, end time.Time) ([]models.TicketsOnDay, error) {
	first := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	last := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, start.Location())
	if last.Before(first) {
		return nil, fmt.Errorf("ticket range ends before it starts")
	}
	if int(last.Sub(first).Hours()/24) >= maxDays {
		return nil, ErrRangeTooLarge
	}

	var out []models.TicketsOnDay
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		tickets, err := c.search(ctx, InProgressJQL(day))
		if err != nil {
			return nil, fmt.Errorf("tickets on %s: %w", day.Format(time.DateOnly), err)
		}
		out = append(out, models.TicketsOnDay{Date: day, Tickets: tickets})
	}
	return out, nil
}

type searchResponse struct {
	StartAt    int     `json:"startAt"`
	MaxResults int     `json:"maxResults"`
	Total      int     `json:"total"`
	Issues     []issue `json:"issues"`
}

type issue struct {
	Key    string `json:"key"`
	Fields struct {
		Summary   string `json:"summary"`
		IssueType struct {
			Name string `json:"name"`
		} `json:"issuetype"`
	} `json:"fields"`
}

func (c *Client) search(ctx context.Context, jql string) ([]models.Ticket, error) {
	tickets := []models.Ticket{}
	for startAt := 0; ; {
		page, err := c.searchPage(ctx, jql, startAt)
		if err != nil {
			return nil, err
		}
		for _, is := range page.Issues {
			tickets = append(tickets, models.Ticket{Key: is.Key, Summary: is.Fields.Summary, Type: is.Fields.IssueType.Name})
		}

		startAt += len(page.Issues)
		if len(page.Issues) == 0 || startAt >= page.Total {
			break
		}
	}
	c.logger.Debug().Str("jql", jql).Int("tickets", len(tickets)).Msg("jira search")
	return tickets, nil
}

func (c *Client) searchPage(ctx context.Context, jql string, startAt int) (*searchResponse, error) {
	q := url.Values{}
	q.Set("jql", jql)
	q.Set("fields", "summary,issuetype")
	q.Set("startAt", strconv.Itoa(startAt))
	q.Set("maxResults", strconv.Itoa(pageSize))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+searchPath+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.cfg.Email, c.cfg.APIToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("jira search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBytes))
		return nil, fmt.Errorf("jira search: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var page searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode jira search: %w", err)
	}
	return &page, nil
}
