package scheduler

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panelworks/production-engine/internal/domain"
	"github.com/panelworks/production-engine/pkg/errors"
)

type memLockManager struct {
	mu   sync.Mutex
	held map[string]bool
}

func newMemLockManager() *memLockManager {
	return &memLockManager{held: make(map[string]bool)}
}

func (m *memLockManager) TryAcquire(ctx context.Context, name string, ttl time.Duration) (domain.ReleaseFunc, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[name] {
		return nil, false, nil
	}
	m.held[name] = true
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.held, name)
	}, true, nil
}

type memJobStateRepo struct {
	states map[string]domain.JobState
}

func newMemJobStateRepo() *memJobStateRepo {
	return &memJobStateRepo{states: make(map[string]domain.JobState)}
}

func (r *memJobStateRepo) Record(ctx context.Context, state domain.JobState) error {
	r.states[state.Name] = state
	return nil
}

func (r *memJobStateRepo) List(ctx context.Context) ([]domain.JobState, error) {
	out := make([]domain.JobState, 0, len(r.states))
	for _, state := range r.states {
		out = append(out, state)
	}
	return out, nil
}

func fixedClock(t time.Time) domain.Clock {
	return domain.ClockFunc(func() time.Time { return t })
}

func newBareRunner(clock domain.Clock) (*Runner, *memLockManager, *memJobStateRepo) {
	locks := newMemLockManager()
	states := newMemJobStateRepo()
	return &Runner{
		jobStates: states,
		locks:     locks,
		clock:     clock,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		lastFired: make(map[string]time.Time),
	}, locks, states
}

func TestEvery_FiresOnFirstTickThenByInterval(t *testing.T) {
	due := every(6 * time.Hour)
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	assert.True(t, due(start, time.Time{}))
	assert.False(t, due(start.Add(5*time.Hour), start))
	assert.True(t, due(start.Add(6*time.Hour), start))
}

func TestDailyAt_OncePerDayAfterHour(t *testing.T) {
	due := dailyAt(7)
	morning := time.Date(2026, 3, 2, 7, 1, 0, 0, time.UTC)

	assert.False(t, due(morning.Add(-2*time.Hour), time.Time{}))
	assert.True(t, due(morning, time.Time{}))

	// Fired already today: quiet until tomorrow 07:00
	assert.False(t, due(morning.Add(5*time.Hour), morning))
	assert.False(t, due(morning.AddDate(0, 0, 1).Add(-2*time.Hour), morning))
	assert.True(t, due(morning.AddDate(0, 0, 1), morning))
}

func TestExecute_RecordsSuccessState(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	runner, _, states := newBareRunner(fixedClock(now))

	ran := false
	err := runner.execute(context.Background(), job{
		name: "probe",
		run: func(ctx context.Context) error {
			ran = true
			return nil
		},
	})
	require.NoError(t, err)
	assert.True(t, ran)

	state := states.states["probe"]
	assert.Equal(t, "success", state.LastOutcome)
	assert.Equal(t, now, state.LastSuccessAt)
}

func TestExecute_RecordsFailureWithoutFreshness(t *testing.T) {
	runner, _, states := newBareRunner(fixedClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)))

	err := runner.execute(context.Background(), job{
		name: "probe",
		run: func(ctx context.Context) error {
			return stderrors.New("boom")
		},
	})
	require.Error(t, err)

	state := states.states["probe"]
	assert.Equal(t, "error", state.LastOutcome)
	assert.True(t, state.LastSuccessAt.IsZero())
}

func TestExecute_SkipsWhenPreviousRunHoldsLock(t *testing.T) {
	runner, locks, states := newBareRunner(fixedClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)))

	_, ok, err := locks.TryAcquire(context.Background(), jobLockPrefix+"probe", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ran := false
	err = runner.execute(context.Background(), job{
		name: "probe",
		run: func(ctx context.Context) error {
			ran = true
			return nil
		},
	})
	assert.True(t, errors.IsCode(err, errors.CodeBusy))
	assert.False(t, ran)
	// A skipped run leaves no state record
	_, recorded := states.states["probe"]
	assert.False(t, recorded)
}

func TestTriggerJob_UnknownName(t *testing.T) {
	runner, _, _ := newBareRunner(fixedClock(time.Now()))

	err := runner.TriggerJob(context.Background(), "defrag")
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))
}

func TestTick_FiresDueJobsOnce(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	runner, _, _ := newBareRunner(fixedClock(now))

	runs := 0
	runner.jobs = []job{{
		name: "probe",
		due:  every(6 * time.Hour),
		run: func(ctx context.Context) error {
			runs++
			return nil
		},
	}}

	runner.tick(context.Background())
	runner.tick(context.Background())
	assert.Equal(t, 1, runs)
}
