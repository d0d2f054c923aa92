package worker

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"calsync/internal/models"
	"calsync/internal/service"
)

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) CreateMeetings(ctx context.Context, rng models.Range, opts service.Options) (*service.Result, error) {
	args := m.Called(ctx, rng, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.Result), args.Error(1)
}

func (m *mockRunner) CreateFromTickets(ctx context.Context, rng models.Range, opts service.Options) (*service.TicketsResult, error) {
	args := m.Called(ctx, rng, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.TicketsResult), args.Error(1)
}

func newTestScheduler(t *testing.T, runner FlowRunner, cfg Config) *Scheduler {
	t.Helper()
	logger := zerolog.New(io.Discard)
	if cfg.Spec == "" {
		cfg.Spec = "0 18 * * 1-5"
	}
	s, err := NewScheduler(runner, cfg, &logger)
	require.NoError(t, err)
	return s
}

func TestSchedulerRange(t *testing.T) {
	cet := time.FixedZone("CET", 3600)
	s := newTestScheduler(t, new(mockRunner), Config{Flow: models.FlowTickets, Location: cet, LookbackDays: 2})

	// 23:30 UTC on the 4th is already the 5th in CET.
	rng := s.Range(time.Date(2024, 3, 4, 23, 30, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2024, 3, 3, 0, 0, 0, 0, cet), rng.Start)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, cet), rng.End)
}

func TestRunOnce(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 4, 18, 0, 0, 0, time.UTC)
	today := models.Range{
		Start: time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
	}

	t.Run("Tickets", func(t *testing.T) {
		runner := new(mockRunner)
		s := newTestScheduler(t, runner, Config{Flow: models.FlowTickets, Location: time.UTC})
		s.now = func() time.Time { return now }
		runner.On("CreateFromTickets", ctx, today, service.Options{}).Return(&service.TicketsResult{}, nil).Once()

		require.NoError(t, s.RunOnce(ctx))
		runner.AssertExpectations(t)
	})

	t.Run("Meetings", func(t *testing.T) {
		runner := new(mockRunner)
		s := newTestScheduler(t, runner, Config{Flow: models.FlowMeetings, Location: time.UTC})
		s.now = func() time.Time { return now }
		runner.On("CreateMeetings", ctx, today, service.Options{}).Return(&service.Result{}, nil).Once()

		require.NoError(t, s.RunOnce(ctx))
		runner.AssertExpectations(t)
	})

	t.Run("InProgressIsSkipped", func(t *testing.T) {
		runner := new(mockRunner)
		s := newTestScheduler(t, runner, Config{Flow: models.FlowMeetings, Location: time.UTC})
		s.now = func() time.Time { return now }
		runner.On("CreateMeetings", ctx, today, service.Options{}).Return(nil, service.ErrRunInProgress).Once()

		assert.NoError(t, s.RunOnce(ctx))
	})

	t.Run("Failure", func(t *testing.T) {
		runner := new(mockRunner)
		s := newTestScheduler(t, runner, Config{Flow: models.FlowMeetings, Location: time.UTC})
		s.now = func() time.Time { return now }
		runner.On("CreateMeetings", ctx, today, service.Options{}).Return(nil, errors.New("calendar down")).Once()

		assert.Error(t, s.RunOnce(ctx))
	})
}

func TestNewSchedulerValidation(t *testing.T) {
	logger := zerolog.New(io.Discard)

	_, err := NewScheduler(new(mockRunner), Config{Spec: "not a spec", Flow: models.FlowMeetings}, &logger)
	assert.Error(t, err)

	_, err = NewScheduler(new(mockRunner), Config{Spec: "@daily", Flow: models.FlowRecurring}, &logger)
	assert.Error(t, err)
}

func TestStartStops(t *testing.T) {
	s := newTestScheduler(t, new(mockRunner), Config{Flow: models.FlowMeetings, Location: time.UTC})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
