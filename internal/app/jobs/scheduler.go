// Package jobs runs the periodic maintenance work: reconcile passes, post
// reminders and the overdue-invoice sweep.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/R3E-Network/agency_layer/internal/app/integration"
	"github.com/R3E-Network/agency_layer/internal/app/metrics"
	"github.com/R3E-Network/agency_layer/internal/app/system"
	"github.com/R3E-Network/agency_layer/pkg/logger"
)

var _ system.Service = (*Scheduler)(nil)

const (
	JobReconcile = "reconcile"
	JobReminders = "post-reminders"
	JobOverdue   = "overdue-sweep"
)

type AgencyLister interface {
	IDs(ctx context.Context) ([]string, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, agencyID string) (integration.Report, error)
}

type Reminders interface {
	DueReminders(ctx context.Context, agencyID string, now time.Time, window time.Duration) (int, error)
}

type OverdueSweeper interface {
	MarkOverdue(ctx context.Context, agencyID string, now time.Time) (int, error)
}

// Config holds cron specs; an empty spec disables that job.
type Config struct {
	ReconcileSchedule string
	ReminderSchedule  string
	OverdueSchedule   string
	ReminderWindow    time.Duration
	// RunTimeout bounds a single run across all agencies.
	RunTimeout time.Duration
}

// Scheduler owns a cron instance and implements system.Service.
type Scheduler struct {
	cfg        Config
	agencies   AgencyLister
	reconciler Reconciler
	reminders  Reminders
	overdue    OverdueSweeper
	log        *logger.Logger
	now        func() time.Time

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

func New(cfg Config, agencies AgencyLister, reconciler Reconciler, reminders Reminders, overdue OverdueSweeper, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewDefault("jobs")
	}
	if cfg.ReminderWindow <= 0 {
		cfg.ReminderWindow = time.Hour
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 10 * time.Minute
	}
	return &Scheduler{
		cfg:        cfg,
		agencies:   agencies,
		reconciler: reconciler,
		reminders:  reminders,
		overdue:    overdue,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *Scheduler) Name() string { return "jobs" }

// Start registers the configured jobs and starts the cron loop. Invalid
// specs fail Start.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	base, cancel := context.WithCancel(context.WithoutCancel(ctx))

	jobs := []struct {
		name string
		spec string
		run  func(context.Context) (int, error)
	}{
		{JobReconcile, s.cfg.ReconcileSchedule, s.RunReconcile},
		{JobReminders, s.cfg.ReminderSchedule, s.RunReminders},
		{JobOverdue, s.cfg.OverdueSchedule, s.RunOverdue},
	}
	for _, job := range jobs {
		if job.spec == "" {
			continue
		}
		job := job
		if _, err := c.AddFunc(job.spec, func() { s.execute(base, job.name, job.run) }); err != nil {
			cancel()
			return fmt.Errorf("schedule %s %q: %w", job.name, job.spec, err)
		}
		s.log.WithField("job", job.name).WithField("schedule", job.spec).Info("job scheduled")
	}

	c.Start()
	s.cron, s.cancel = c, cancel
	return nil
}

// Stop halts scheduling and waits for running jobs until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}

	done := c.Stop()
	select {
	case <-done.Done():
		cancel()
		return nil
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

func (s *Scheduler) execute(ctx context.Context, name string, run func(context.Context) (int, error)) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RunTimeout)
	defer cancel()

	start := time.Now()
	n, err := run(ctx)
	elapsed := time.Since(start)
	metrics.RecordJobRun(name, elapsed, err == nil)

	entry := s.log.WithField("job", name).WithField("changed", n).WithField("duration_ms", elapsed.Milliseconds())
	if err != nil {
		entry.WithError(err).Warn("job run failed")
		return
	}
	entry.Info("job run finished")
}

// forEachAgency applies fn to every agency. A failing agency does not stop
// the others; failures are joined.
func (s *Scheduler) forEachAgency(ctx context.Context, fn func(agencyID string) (int, error)) (int, error) {
	ids, err := s.agencies.IDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list agencies: %w", err)
	}
	total := 0
	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		n, err := fn(id)
		total += n
		if err != nil {
			errs = append(errs, fmt.Errorf("agency %s: %w", id, err))
		}
	}
	return total, errors.Join(errs...)
}

// RunReconcile repairs every agency and returns the total repair count.
func (s *Scheduler) RunReconcile(ctx context.Context) (int, error) {
	return s.forEachAgency(ctx, func(id string) (int, error) {
		report, err := s.reconciler.Reconcile(ctx, id)
		return report.Repairs(), err
	})
}

// RunReminders notifies staff about posts due within the reminder window.
func (s *Scheduler) RunReminders(ctx context.Context) (int, error) {
	now := s.now()
	return s.forEachAgency(ctx, func(id string) (int, error) {
		return s.reminders.DueReminders(ctx, id, now, s.cfg.ReminderWindow)
	})
}

// RunOverdue flags pending transactions past their due date.
func (s *Scheduler) RunOverdue(ctx context.Context) (int, error) {
	now := s.now()
	return s.forEachAgency(ctx, func(id string) (int, error) {
		return s.overdue.MarkOverdue(ctx, id, now)
	})
}
