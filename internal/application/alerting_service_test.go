package application

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panelworks/production-engine/internal/domain"
)

func TestRunDetectors_DeadlineTiers(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	now := env.clock.Now()

	overdue := env.seedTask("TASK-overdue", "ORD-1", "P-1", oakSolid())
	dueToday := env.seedTask("TASK-today", "ORD-2", "P-1", oakSolid())
	dueSoon := env.seedTask("TASK-soon", "ORD-3", "P-1", oakSolid())
	comfortable := env.seedTask("TASK-later", "ORD-4", "P-1", oakSolid())

	setDue(overdue, now.AddDate(0, 0, -1))
	setDue(dueToday, now)
	setDue(dueSoon, now.AddDate(0, 0, 2))
	setDue(comfortable, now.AddDate(0, 0, 5))

	emitted, err := env.alerting.RunDetectors(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, emitted)

	require.Len(t, env.alerts.byKind(domain.AlertDelayCritical), 1)
	require.Len(t, env.alerts.byKind(domain.AlertDelayUrgent), 1)
	require.Len(t, env.alerts.byKind(domain.AlertDelayWarning), 1)

	critical := env.alerts.byKind(domain.AlertDelayCritical)[0]
	assert.Equal(t, "task/TASK-overdue", critical.Entity)
	assert.True(t, critical.Email)

	warning := env.alerts.byKind(domain.AlertDelayWarning)[0]
	assert.False(t, warning.Email)
}

func TestRunDetectors_SameDayRunEmitsOnce(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	task := env.seedTask("TASK-1", "ORD-1", "P-1", oakSolid())
	setDue(task, env.clock.Now())

	first, err := env.alerting.RunDetectors(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first)

	// Second run the same day: the (entity, kind, day) key dedupes
	env.clock.Advance(2 * time.Hour)
	second, err := env.alerting.RunDetectors(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second)

	assert.Len(t, env.alerts.byKind(domain.AlertDelayUrgent), 1)
}

func TestRunDetectors_NextDayEmitsAgain(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	task := env.seedTask("TASK-1", "ORD-1", "P-1", oakSolid())
	setDue(task, env.clock.Now().AddDate(0, 0, -1))

	_, err := env.alerting.RunDetectors(ctx)
	require.NoError(t, err)

	env.clock.Advance(24 * time.Hour)
	emitted, err := env.alerting.RunDetectors(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, emitted)

	assert.Len(t, env.alerts.byKind(domain.AlertDelayCritical), 2)
}

func TestRunDetectors_QueueOverload(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	// Threshold is 5; six tasks queued at cut trips the detector
	for i := 0; i < 6; i++ {
		task := env.seedTask(
			fmt.Sprintf("TASK-%d", i), fmt.Sprintf("ORD-%d", i), "P-1",
			oakSolid(), domain.StationCut, domain.StationPack)
		task.EstimatedCompletionDate = nil
	}

	emitted, err := env.alerting.RunDetectors(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, emitted)

	alerts := env.alerts.byKind(domain.AlertQueueOverload)
	require.Len(t, alerts, 1)
	assert.Equal(t, "station/cut", alerts[0].Entity)
}

func TestRunDetectors_QueueAtThresholdStaysQuiet(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		task := env.seedTask(
			fmt.Sprintf("TASK-%d", i), fmt.Sprintf("ORD-%d", i), "P-1",
			oakSolid(), domain.StationCut, domain.StationPack)
		task.EstimatedCompletionDate = nil
	}

	emitted, err := env.alerting.RunDetectors(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, emitted)
}

func TestRunDetectors_StuckStage(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	task := env.seedTask("TASK-1", "ORD-1", "P-1", oakSolid(), domain.StationCut, domain.StationPack)
	task.EstimatedCompletionDate = nil

	_, err := env.production.StartStage(ctx, "TASK-1", "tablet", "worker-1")
	require.NoError(t, err)

	// Under the four-hour ceiling: quiet
	env.clock.Advance(3 * time.Hour)
	emitted, err := env.alerting.RunDetectors(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, emitted)

	// Past the ceiling: stuck
	env.clock.Advance(2 * time.Hour)
	emitted, err = env.alerting.RunDetectors(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, emitted)

	alerts := env.alerts.byKind(domain.AlertStuckTask)
	require.Len(t, alerts, 1)
	assert.Equal(t, "task/TASK-1", alerts[0].Entity)
	assert.Equal(t, "TASK-1", alerts[0].RelatedTaskID)
}

func TestRunDetectors_TerminalTasksIgnored(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	task := env.seedTask("TASK-1", "ORD-1", "P-1", oakSolid(), domain.StationPack)
	setDue(task, env.clock.Now().AddDate(0, 0, -3))

	done, err := env.production.CompleteRemaining(ctx, "TASK-1")
	require.NoError(t, err)
	require.True(t, done)

	emitted, err := env.alerting.RunDetectors(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, emitted)
	assert.Empty(t, env.alerts.byKind(domain.AlertDelayCritical))
}

func TestMarkRead(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	task := env.seedTask("TASK-1", "ORD-1", "P-1", oakSolid())
	setDue(task, env.clock.Now())

	_, err := env.alerting.RunDetectors(ctx)
	require.NoError(t, err)

	unread, err := env.alerting.ListUnread(ctx, 10)
	require.NoError(t, err)
	require.Len(t, unread, 1)

	require.NoError(t, env.alerting.MarkRead(ctx, unread[0].ID))

	unread, err = env.alerting.ListUnread(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, unread)
}

func setDue(task *domain.ProductionTask, due time.Time) {
	task.EstimatedCompletionDate = &due
}
