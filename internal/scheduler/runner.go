// Package scheduler runs the engine's periodic jobs in a single cooperative
// loop: ingest, reconcile, rerank, alerts and the retention sweep.
package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/panelworks/production-engine/internal/application"
	"github.com/panelworks/production-engine/internal/config"
	"github.com/panelworks/production-engine/internal/domain"
	"github.com/panelworks/production-engine/pkg/errors"
	"github.com/panelworks/production-engine/pkg/metrics"
)

// Job names
const (
	JobIngest    = "ingest"
	JobReconcile = "reconcile"
	JobRerank    = "rerank"
	JobAlerts    = "alerts"
	JobSweep     = "sweep"
)

const (
	jobLockPrefix = "job/"
	jobLockTTL    = 30 * time.Minute

	tickInterval = time.Minute
)

// job is one named periodic job. due decides on every tick whether the job
// should fire given its last firing.
type job struct {
	name string
	due  func(now, lastFired time.Time) bool
	run  func(ctx context.Context) error
}

// Runner drives the named jobs on a one-minute tick. Each job is
// reentrancy-guarded by a process-wide named lock; when a previous run still
// holds the lock the late run is skipped, not queued.
type Runner struct {
	ingestion *application.IngestionService
	reconcile *application.Reconciler
	priority  *application.PriorityService
	alerting  *application.AlertingService

	tasks     domain.TaskRepository
	batches   domain.BatchRepository
	alerts    domain.AlertRepository
	jobStates domain.JobStateRepository
	locks     domain.LockManager
	metrics   *metrics.Metrics
	clock     domain.Clock
	logger    *slog.Logger

	sweepCfg config.SweepConfig

	jobs      []job
	lastFired map[string]time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRunner creates the periodic runner with the standard job set
func NewRunner(
	ingestion *application.IngestionService,
	reconciler *application.Reconciler,
	priority *application.PriorityService,
	alerting *application.AlertingService,
	tasks domain.TaskRepository,
	batches domain.BatchRepository,
	alerts domain.AlertRepository,
	jobStates domain.JobStateRepository,
	locks domain.LockManager,
	m *metrics.Metrics,
	clock domain.Clock,
	logger *slog.Logger,
	reconcileCfg config.ReconcileConfig,
	sweepCfg config.SweepConfig,
) *Runner {
	r := &Runner{
		ingestion: ingestion,
		reconcile: reconciler,
		priority:  priority,
		alerting:  alerting,
		tasks:     tasks,
		batches:   batches,
		alerts:    alerts,
		jobStates: jobStates,
		locks:     locks,
		metrics:   m,
		clock:     clock,
		logger:    logger.With("component", "scheduler"),
		sweepCfg:  sweepCfg,
		lastFired: make(map[string]time.Time),
	}

	reconcileEvery := time.Duration(reconcileCfg.TickMinutes) * time.Minute
	if reconcileEvery <= 0 {
		reconcileEvery = 15 * time.Minute
	}

	r.jobs = []job{
		{name: JobIngest, due: every(6 * time.Hour), run: r.runIngest},
		{name: JobReconcile, due: every(reconcileEvery), run: r.runReconcile},
		{name: JobRerank, due: every(6 * time.Hour), run: r.runRerank},
		{name: JobAlerts, due: dailyAt(7), run: r.runAlerts},
		{name: JobSweep, due: every(7 * 24 * time.Hour), run: r.runSweep},
	}
	return r
}

// Start launches the tick loop until Stop or context cancellation
func (r *Runner) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.done = make(chan struct{})
	r.mu.Unlock()

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()

		r.logger.Info("scheduler started", "jobs", len(r.jobs))
		for {
			select {
			case <-ctx.Done():
				r.logger.Info("scheduler stopped")
				return
			case <-ticker.C:
				r.tick(ctx)
			}
		}
	}()
}

// Stop halts the loop and waits for the in-flight tick to finish
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (r *Runner) tick(ctx context.Context) {
	now := r.clock.Now()
	for _, j := range r.jobs {
		if !j.due(now, r.lastFired[j.name]) {
			continue
		}
		r.lastFired[j.name] = now
		r.execute(ctx, j)
	}
}

// TriggerJob runs one job by name immediately, for the operator API.
// It honours the same reentrancy guard as the scheduled runs.
func (r *Runner) TriggerJob(ctx context.Context, name string) error {
	for _, j := range r.jobs {
		if j.name == name {
			return r.execute(ctx, j)
		}
	}
	return errors.ErrNotFoundWithID("job", name)
}

// JobNames lists the runnable job names
func (r *Runner) JobNames() []string {
	names := make([]string, len(r.jobs))
	for i, j := range r.jobs {
		names[i] = j.name
	}
	sort.Strings(names)
	return names
}

// ListJobStates returns the persisted per-job freshness records
func (r *Runner) ListJobStates(ctx context.Context) ([]domain.JobState, error) {
	return r.jobStates.List(ctx)
}

// execute runs one job under its named lock and records outcome, duration
// and freshness.
func (r *Runner) execute(ctx context.Context, j job) error {
	release, ok, err := r.locks.TryAcquire(ctx, jobLockPrefix+j.name, jobLockTTL)
	if err != nil {
		return err
	}
	if !ok {
		// Previous run still holds the lock: skip, never queue
		r.logger.Warn("job still running, skipping", "job", j.name)
		if r.metrics != nil {
			r.metrics.RecordJobRun(j.name, "skipped", 0)
		}
		return errors.ErrBusy("job " + j.name)
	}
	defer release()

	start := r.clock.Now()
	runErr := j.run(ctx)
	elapsed := r.clock.Now().Sub(start)

	outcome := "success"
	if runErr != nil {
		outcome = "error"
		r.logger.Error("job failed", "job", j.name, "duration", elapsed, "error", runErr)
	} else {
		r.logger.Info("job complete", "job", j.name, "duration", elapsed)
	}

	if r.metrics != nil {
		r.metrics.RecordJobRun(j.name, outcome, elapsed)
	}

	state := domain.JobState{
		Name:           j.name,
		LastOutcome:    outcome,
		LastDurationMS: elapsed.Milliseconds(),
	}
	if runErr == nil {
		state.LastSuccessAt = r.clock.Now()
	}
	if err := r.jobStates.Record(ctx, state); err != nil {
		r.logger.Error("failed to record job state", "job", j.name, "error", err)
	}

	return runErr
}

func (r *Runner) runIngest(ctx context.Context) error {
	_, err := r.ingestion.Ingest(ctx, false)
	return err
}

func (r *Runner) runReconcile(ctx context.Context) error {
	_, err := r.reconcile.Reconcile(ctx)
	return err
}

func (r *Runner) runRerank(ctx context.Context) error {
	_, err := r.priority.Rerank(ctx)
	return err
}

func (r *Runner) runAlerts(ctx context.Context) error {
	_, err := r.alerting.RunDetectors(ctx)
	return err
}

// runSweep applies the retention policy: old terminal tasks, old read
// alerts and batches that never received a member.
func (r *Runner) runSweep(ctx context.Context) error {
	now := r.clock.Now()

	taskCutoff := now.AddDate(0, 0, -r.sweepCfg.RetentionDays)
	tasksDeleted, err := r.tasks.DeleteCompletedBefore(ctx, taskCutoff)
	if err != nil {
		return err
	}

	alertCutoff := now.AddDate(0, 0, -r.sweepCfg.AlertRetentionDays)
	alertsDeleted, err := r.alerts.DeleteReadBefore(ctx, alertCutoff)
	if err != nil {
		return err
	}

	batchesDeleted, err := r.batches.DeleteEmptyBefore(ctx, taskCutoff)
	if err != nil {
		return err
	}

	r.logger.Info("sweep complete",
		"tasksDeleted", tasksDeleted,
		"alertsDeleted", alertsDeleted,
		"batchesDeleted", batchesDeleted,
	)
	return nil
}

// every fires when at least the interval elapsed since the last firing;
// a fresh process fires on its first tick.
func every(interval time.Duration) func(now, lastFired time.Time) bool {
	return func(now, lastFired time.Time) bool {
		return lastFired.IsZero() || now.Sub(lastFired) >= interval
	}
}

// dailyAt fires once per calendar day at or after the given local hour
func dailyAt(hour int) func(now, lastFired time.Time) bool {
	return func(now, lastFired time.Time) bool {
		if now.Hour() < hour {
			return false
		}
		if lastFired.IsZero() {
			return true
		}
		y1, m1, d1 := lastFired.Date()
		y2, m2, d2 := now.Date()
		return y1 != y2 || m1 != m2 || d1 != d2
	}
}
