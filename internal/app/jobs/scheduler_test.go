package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/agency_layer/internal/app/integration"
	"github.com/R3E-Network/agency_layer/pkg/logger"
)

type agencyList []string

func (l agencyList) IDs(context.Context) ([]string, error) { return l, nil }

type fakeWork struct {
	mu       sync.Mutex
	calls    []string
	failFor  string
	windows  []time.Duration
	reminded chan struct{}
}

func (f *fakeWork) record(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, id)
	if id == f.failFor {
		return errors.New("store unavailable")
	}
	return nil
}

func (f *fakeWork) Reconcile(_ context.Context, id string) (integration.Report, error) {
	return integration.Report{AgencyID: id, ClientNames: 2}, f.record(id)
}

func (f *fakeWork) DueReminders(_ context.Context, id string, _ time.Time, window time.Duration) (int, error) {
	f.mu.Lock()
	f.windows = append(f.windows, window)
	f.mu.Unlock()
	if f.reminded != nil {
		select {
		case f.reminded <- struct{}{}:
		default:
		}
	}
	return 1, f.record(id)
}

func (f *fakeWork) MarkOverdue(_ context.Context, id string, _ time.Time) (int, error) {
	return 3, f.record(id)
}

func TestRunReconcileContinuesPastFailures(t *testing.T) {
	work := &fakeWork{failFor: "a2"}
	s := New(Config{}, agencyList{"a1", "a2", "a3"}, work, work, work, logger.NewNop())

	n, err := s.RunReconcile(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agency a2")
	assert.Equal(t, 6, n)
	assert.Equal(t, []string{"a1", "a2", "a3"}, work.calls)
}

func TestRunRemindersAndOverdue(t *testing.T) {
	work := &fakeWork{}
	s := New(Config{ReminderWindow: 30 * time.Minute}, agencyList{"a1", "a2"}, work, work, work, logger.NewNop())

	n, err := s.RunReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []time.Duration{30 * time.Minute, 30 * time.Minute}, work.windows)

	n, err = s.RunOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, n)
}

func TestStartRejectsInvalidSpec(t *testing.T) {
	work := &fakeWork{}
	s := New(Config{ReconcileSchedule: "not a schedule"}, agencyList{}, work, work, work, logger.NewNop())
	require.Error(t, s.Start(context.Background()))
}

func TestSchedulerRunsJobs(t *testing.T) {
	work := &fakeWork{reminded: make(chan struct{}, 1)}
	s := New(Config{ReminderSchedule: "@every 1s"}, agencyList{"a1"}, work, work, work, logger.NewNop())
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()))

	select {
	case <-work.reminded:
	case <-time.After(5 * time.Second):
		t.Fatal("reminder job did not run")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	require.NoError(t, s.Stop(ctx))
}
