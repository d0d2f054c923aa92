package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"calsync/internal/config"
	"calsync/internal/database"
	"calsync/internal/models"
	"calsync/internal/schedule"
	"calsync/internal/service"
	"calsync/internal/timefmt"
)

type mockEntries struct {
	mock.Mock
}

func (m *mockEntries) Location() *time.Location { return time.UTC }
func (m *mockEntries) TicketsEnabled() bool     { return true }

func (m *mockEntries) Events(ctx context.Context, rng models.Range) ([]models.CalendarOccurrence, error) {
	args := m.Called(ctx, rng)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.CalendarOccurrence), args.Error(1)
}

func (m *mockEntries) CreateMeetings(ctx context.Context, rng models.Range, opts service.Options) (*service.Result, error) {
	args := m.Called(ctx, rng, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Result), args.Error(1)
}

func (m *mockEntries) CreateProductive(ctx context.Context, reqs []models.ProductiveRequest, opts service.Options) (*service.Result, error) {
	args := m.Called(ctx, reqs, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Result), args.Error(1)
}

func (m *mockEntries) CreateRecurring(ctx context.Context, tmpls []models.RecurringTemplate, opts service.Options) (*service.Result, error) {
	args := m.Called(ctx, tmpls, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Result), args.Error(1)
}

func (m *mockEntries) Tickets(ctx context.Context, rng models.Range) ([]models.TicketsOnDay, error) {
	args := m.Called(ctx, rng)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.TicketsOnDay), args.Error(1)
}

func (m *mockEntries) CreateFromTickets(ctx context.Context, rng models.Range, opts service.Options) (*service.TicketsResult, error) {
	args := m.Called(ctx, rng, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.TicketsResult), args.Error(1)
}

func (m *mockEntries) Runs(ctx context.Context, limit int) ([]*models.SubmissionRun, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.SubmissionRun), args.Error(1)
}

func (m *mockEntries) Run(ctx context.Context, id string) (*models.SubmissionRun, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SubmissionRun), args.Error(1)
}

func noAuth() config.APIConfig {
	disabled := false
	return config.APIConfig{Enabled: true, Auth: config.APIAuthConfig{Enabled: &disabled}}
}

func newTestServer(t *testing.T, cfg config.APIConfig, svc TimeEntries) *httptest.Server {
	t.Helper()
	logger := zerolog.New(io.Discard)
	srv := NewHTTPServer(cfg, svc, &logger)
	srv.now = func() time.Time { return time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC) }
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func date(d int) time.Time {
	return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC)
}

func decodeJSON(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, config.APIConfig{Auth: config.APIAuthConfig{APIKeys: []config.APIClientKey{{Key: "k"}}}}, new(mockEntries))

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))
}

func TestEvents(t *testing.T) {
	svc := new(mockEntries)
	ts := newTestServer(t, noAuth(), svc)

	t.Run("DefaultsToCurrentMonth", func(t *testing.T) {
		svc.On("Events", mock.Anything, models.Range{Start: date(1), End: date(31)}).
			Return([]models.CalendarOccurrence{{Summary: "Standup"}}, nil).Once()

		resp, err := http.Get(ts.URL + "/api/v1/calendar/events")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var got []models.CalendarOccurrence
		decodeJSON(t, resp, &got)
		require.Len(t, got, 1)
		assert.Equal(t, "Standup", got[0].Summary)
	})

	t.Run("ExplicitRange", func(t *testing.T) {
		svc.On("Events", mock.Anything, models.Range{Start: date(4), End: date(8)}).
			Return([]models.CalendarOccurrence{}, nil).Once()

		resp, err := http.Get(ts.URL + "/api/v1/calendar/events?start=2024-03-04&end=20240308")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("BadDate", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/v1/calendar/events?start=03/04/2024")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var body map[string]string
		decodeJSON(t, resp, &body)
		assert.Contains(t, body["error"], "03/04/2024")
	})

	t.Run("EndWithoutStart", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/v1/calendar/events?end=2024-03-08")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("UpstreamFailure", func(t *testing.T) {
		svc.On("Events", mock.Anything, models.Range{Start: date(11), End: date(11)}).
			Return(nil, fmt.Errorf("%w: read calendar: timeout", service.ErrUpstream)).Once()

		resp, err := http.Get(ts.URL + "/api/v1/calendar/events?start=2024-03-11")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	})
}

func TestCreateMeetings(t *testing.T) {
	svc := new(mockEntries)
	ts := newTestServer(t, noAuth(), svc)
	rng := models.Range{Start: date(4), End: date(8)}

	t.Run("Submit", func(t *testing.T) {
		summary := &models.ExecutionSummary{TotalRequested: 1, TotalSuccess: 1, Succeeded: []models.LedgerResponse{{ID: "e1"}}}
		svc.On("CreateMeetings", mock.Anything, rng, service.Options{}).
			Return(&service.Result{RunID: "run-1", Summary: summary}, nil).Once()

		resp, err := http.Post(ts.URL+"/api/v1/time-entries/meetings?start=2024-03-04&end=2024-03-08", "application/json", http.NoBody)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var got service.Result
		decodeJSON(t, resp, &got)
		assert.Equal(t, "run-1", got.RunID)
		require.NotNil(t, got.Summary)
		assert.Equal(t, 1, got.Summary.TotalSuccess)
	})

	t.Run("DryRunXLSX", func(t *testing.T) {
		drafts := []models.TimeEntryDraft{{
			Description: "Standup",
			Start:       time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC),
			End:         time.Date(2024, 3, 4, 9, 15, 0, 0, time.UTC),
		}}
		svc.On("CreateMeetings", mock.Anything, rng, service.Options{DryRun: true}).
			Return(&service.Result{DryRun: true, Drafts: drafts}, nil).Once()

		resp, err := http.Post(ts.URL+"/api/v1/time-entries/meetings?start=2024-03-04&end=2024-03-08&dry_run=true&format=xlsx", "application/json", http.NoBody)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, xlsxContentType, resp.Header.Get("Content-Type"))

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		f, err := excelize.OpenReader(bytes.NewReader(body))
		require.NoError(t, err)
		defer f.Close()
		rows, err := f.GetRows("Entries")
		require.NoError(t, err)
		assert.Equal(t, "Standup", rows[1][4])
	})

	t.Run("Conflict", func(t *testing.T) {
		svc.On("CreateMeetings", mock.Anything, models.Range{Start: date(11), End: date(11)}, service.Options{}).
			Return(nil, service.ErrRunInProgress).Once()

		resp, err := http.Post(ts.URL+"/api/v1/time-entries/meetings?start=2024-03-11", "application/json", http.NoBody)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("Aborted", func(t *testing.T) {
		summary := &models.ExecutionSummary{TotalRequested: 3, TotalSuccess: 1, Aborted: true}
		svc.On("CreateMeetings", mock.Anything, models.Range{Start: date(12), End: date(12)}, service.Options{}).
			Return(&service.Result{RunID: "r", Summary: summary}, context.Canceled).Once()

		resp, err := http.Post(ts.URL+"/api/v1/time-entries/meetings?start=2024-03-12", "application/json", http.NoBody)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

		var body struct {
			Error  string         `json:"error"`
			Result service.Result `json:"result"`
		}
		decodeJSON(t, resp, &body)
		assert.True(t, body.Result.Summary.Aborted)
	})

	t.Run("Unexpected", func(t *testing.T) {
		svc.On("CreateMeetings", mock.Anything, models.Range{Start: date(13), End: date(13)}, service.Options{}).
			Return(nil, errors.New("disk on fire")).Once()

		resp, err := http.Post(ts.URL+"/api/v1/time-entries/meetings?start=2024-03-13", "application/json", http.NoBody)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

		var body map[string]string
		decodeJSON(t, resp, &body)
		assert.Equal(t, "internal error", body["error"])
	})
}

func TestCreateProductive(t *testing.T) {
	svc := new(mockEntries)
	ts := newTestServer(t, noAuth(), svc)

	t.Run("ResolvesDates", func(t *testing.T) {
		want := []models.ProductiveRequest{{Description: "Feature", Start: date(4), End: date(5), TaskName: "Development"}}
		svc.On("CreateProductive", mock.Anything, want, service.Options{DryRun: true}).
			Return(&service.Result{DryRun: true, Drafts: []models.TimeEntryDraft{}}, nil).Once()

		body := `[{"description":"Feature","start":"2024-03-04","end":"2024-03-05","taskName":"Development"}]`
		resp, err := http.Post(ts.URL+"/api/v1/time-entries/productive?dry_run=1", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		svc.AssertExpectations(t)
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/api/v1/time-entries/productive", "application/json", strings.NewReader(`{"nope":`))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("InvalidRequest", func(t *testing.T) {
		svc.On("CreateProductive", mock.Anything, mock.Anything, service.Options{}).
			Return(nil, fmt.Errorf("request 0: %w", schedule.ErrInvalidRequest)).Once()

		body := `[{"description":"Feature","start":"2024-03-04","end":"2026-03-05"}]`
		resp, err := http.Post(ts.URL+"/api/v1/time-entries/productive", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestCreateRecurring(t *testing.T) {
	svc := new(mockEntries)
	ts := newTestServer(t, noAuth(), svc)

	t.Run("InvalidTemplate", func(t *testing.T) {
		svc.On("CreateRecurring", mock.Anything, mock.MatchedBy(func(tmpls []models.RecurringTemplate) bool {
			return len(tmpls) == 1 && tmpls[0].DaysOfWeek.Has(time.Monday) && tmpls[0].IntervalDays == 7
		}), service.Options{}).
			Return(nil, fmt.Errorf("template 0: %w", schedule.ErrInvalidTemplate)).Once()

		body := `[{"description":"Planning","startDate":"2024-03-04","endDate":"2024-03-29","daysOfWeek":["Monday"],"startTime":"11:00","endTime":"10:00","interval":7}]`
		resp, err := http.Post(ts.URL+"/api/v1/time-entries/recurring", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		svc.AssertExpectations(t)
	})

	t.Run("FormatError", func(t *testing.T) {
		svc.On("CreateRecurring", mock.Anything, mock.Anything, service.Options{}).
			Return(nil, fmt.Errorf("template 0: %w", &timefmt.FormatError{Value: "9am"})).Once()

		body := `[{"description":"Planning","startDate":"2024-03-04","endDate":"2024-03-29","daysOfWeek":[1],"startTime":"9am","endTime":"10:00"}]`
		resp, err := http.Post(ts.URL+"/api/v1/time-entries/recurring", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestTickets(t *testing.T) {
	svc := new(mockEntries)
	ts := newTestServer(t, noAuth(), svc)
	rng := models.Range{Start: date(4), End: date(5)}

	t.Run("List", func(t *testing.T) {
		svc.On("Tickets", mock.Anything, rng).Return([]models.TicketsOnDay{
			{Date: date(4), Tickets: []models.Ticket{{Key: "ABC-1", Summary: "Login"}}},
		}, nil).Once()

		resp, err := http.Get(ts.URL + "/api/v1/tickets?start=2024-03-04&end=2024-03-05")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			TicketsOnDays []models.TicketsOnDay `json:"ticketsOnDays"`
		}
		decodeJSON(t, resp, &body)
		require.Len(t, body.TicketsOnDays, 1)
		assert.Equal(t, "ABC-1", body.TicketsOnDays[0].Tickets[0].Key)
	})

	t.Run("Disabled", func(t *testing.T) {
		svc.On("Tickets", mock.Anything, models.Range{Start: date(6), End: date(6)}).Return(nil, service.ErrTicketsDisabled).Once()

		resp, err := http.Get(ts.URL + "/api/v1/tickets?start=2024-03-06")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
	})

	t.Run("Create", func(t *testing.T) {
		svc.On("CreateFromTickets", mock.Anything, rng, service.Options{}).Return(&service.TicketsResult{
			Meetings:   &service.Result{RunID: "m"},
			Productive: &service.Result{RunID: "p"},
		}, nil).Once()

		resp, err := http.Post(ts.URL+"/api/v1/time-entries/tickets?start=2024-03-04&end=2024-03-05", "application/json", http.NoBody)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var got service.TicketsResult
		decodeJSON(t, resp, &got)
		assert.Equal(t, "m", got.Meetings.RunID)
		assert.Equal(t, "p", got.Productive.RunID)
	})
}

func TestRuns(t *testing.T) {
	svc := new(mockEntries)
	ts := newTestServer(t, noAuth(), svc)

	svc.On("Runs", mock.Anything, defaultRunsLimit).Return([]*models.SubmissionRun{{ID: "a"}}, nil).Once()
	svc.On("Runs", mock.Anything, 5).Return([]*models.SubmissionRun{}, nil).Once()
	svc.On("Run", mock.Anything, "a").Return(&models.SubmissionRun{ID: "a", Flow: models.FlowMeetings}, nil).Once()
	svc.On("Run", mock.Anything, "missing").Return(nil, fmt.Errorf("run missing: %w", database.ErrNotFound)).Once()

	cases := []struct {
		path   string
		status int
	}{
		{"/api/v1/runs", http.StatusOK},
		{"/api/v1/runs?limit=5", http.StatusOK},
		{"/api/v1/runs?limit=zero", http.StatusBadRequest},
		{"/api/v1/runs/a", http.StatusOK},
		{"/api/v1/runs/missing", http.StatusNotFound},
	}
	for _, tc := range cases {
		resp, err := http.Get(ts.URL + tc.path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, tc.status, resp.StatusCode, tc.path)
	}
	svc.AssertExpectations(t)
}

func TestAuth(t *testing.T) {
	svc := new(mockEntries)
	svc.On("Runs", mock.Anything, defaultRunsLimit).Return([]*models.SubmissionRun{}, nil)

	cfg := config.APIConfig{
		Enabled: true,
		Auth: config.APIAuthConfig{
			HeaderAPIKey: "x-api-key",
			APIKeys:      []config.APIClientKey{{Key: "valid-key", Name: "ops"}},
		},
	}
	ts := newTestServer(t, cfg, svc)

	do := func(key string) int {
		req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/runs", http.NoBody)
		if key != "" {
			req.Header.Set("x-api-key", key)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusUnauthorized, do(""))
	assert.Equal(t, http.StatusUnauthorized, do("wrong"))
	assert.Equal(t, http.StatusOK, do("valid-key"))
}

func TestRateLimit(t *testing.T) {
	svc := new(mockEntries)
	svc.On("Runs", mock.Anything, defaultRunsLimit).Return([]*models.SubmissionRun{}, nil)

	cfg := noAuth()
	cfg.RateLimit = config.APIRateLimitConfig{RPS: 1, Burst: 1}
	ts := newTestServer(t, cfg, svc)

	resp1, err := http.Get(ts.URL + "/api/v1/runs")
	require.NoError(t, err)
	resp1.Body.Close()
	assert.Equal(t, http.StatusOK, resp1.StatusCode)

	resp2, err := http.Get(ts.URL + "/api/v1/runs")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp2.StatusCode)
}

func TestHTTPServerStartStop(t *testing.T) {
	logger := zerolog.New(io.Discard)
	cfg := noAuth()
	cfg.HTTP.Port = 0
	srv := NewHTTPServer(cfg, new(mockEntries), &logger)

	done := make(chan error, 1)
	go func() { done <- srv.Start() }()
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
	assert.NoError(t, <-done)
}
