package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panelworks/production-engine/internal/domain"
	"github.com/panelworks/production-engine/pkg/errors"
)

func TestReconcile_CompletedStatusCompletesTasks(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.seedTask("TASK-1", "ORD-1", "P-1", oakSolid(), domain.StationCut, domain.StationPack)
	env.marketplace.orders["ORD-1"] = paidOrder("ORD-1")
	env.marketplace.orders["ORD-1"].StatusID = "production_completed"

	result, err := env.reconciler.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.OrdersChecked)
	assert.Equal(t, 1, result.TasksCompleted)

	task, _ := env.tasks.FindByTaskID(ctx, "TASK-1")
	assert.Equal(t, domain.TaskCompleted, task.Status)
	require.NoError(t, task.CheckInvariants())
}

func TestReconcile_CancelledStatusCancelsTasks(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.seedTask("TASK-1", "ORD-1", "P-1", oakSolid())
	env.seedTask("TASK-2", "ORD-1", "P-2", oakSolid())
	env.marketplace.orders["ORD-1"] = paidOrder("ORD-1")
	env.marketplace.orders["ORD-1"].StatusID = "cancelled"

	result, err := env.reconciler.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.TasksCancelled)

	for _, taskID := range []string{"TASK-1", "TASK-2"} {
		task, _ := env.tasks.FindByTaskID(ctx, taskID)
		assert.Equal(t, domain.TaskCancelled, task.Status)
	}
}

func TestReconcile_NoopStatusLeavesTasksAlone(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.seedTask("TASK-1", "ORD-1", "P-1", oakSolid())
	env.marketplace.orders["ORD-1"] = paidOrder("ORD-1")
	env.marketplace.orders["ORD-1"].StatusID = "in_production"

	result, err := env.reconciler.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.TasksCompleted)
	assert.Equal(t, 0, result.TasksCancelled)

	task, _ := env.tasks.FindByTaskID(ctx, "TASK-1")
	assert.Equal(t, domain.TaskPending, task.Status)
}

func TestReconcile_UnknownStatusAlertsWithoutStateChange(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.seedTask("TASK-1", "ORD-1", "P-1", oakSolid())
	env.marketplace.orders["ORD-1"] = paidOrder("ORD-1")
	env.marketplace.orders["ORD-1"].StatusID = "weird_new_status"

	_, err := env.reconciler.Reconcile(ctx)
	require.NoError(t, err)

	task, _ := env.tasks.FindByTaskID(ctx, "TASK-1")
	assert.Equal(t, domain.TaskPending, task.Status)

	alerts := env.alerts.byKind(domain.AlertSystemError)
	require.Len(t, alerts, 1)
	assert.Equal(t, "order/ORD-1", alerts[0].Entity)
}

func TestReconcile_OrderGoneFromMarketplace(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.seedTask("TASK-1", "ORD-ghost", "P-1", oakSolid())

	result, err := env.reconciler.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Errors)

	alerts := env.alerts.byKind(domain.AlertSystemError)
	require.Len(t, alerts, 1)
	assert.Equal(t, "order/ORD-ghost", alerts[0].Entity)

	task, _ := env.tasks.FindByTaskID(ctx, "TASK-1")
	assert.Equal(t, domain.TaskPending, task.Status)
}

func TestReconcile_TransientFetchFailureSkipsOrder(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.seedTask("TASK-1", "ORD-1", "P-1", oakSolid())
	env.marketplace.fetchErr = errors.ErrTransientExternal("marketplace")

	result, err := env.reconciler.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Errors)

	// Transient failure raises no alert and changes no state
	assert.Empty(t, env.alerts.byKind(domain.AlertSystemError))
	task, _ := env.tasks.FindByTaskID(ctx, "TASK-1")
	assert.Equal(t, domain.TaskPending, task.Status)
}

func TestReconcile_DrainsPushQueue(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	now := env.clock.Now()

	cursor, _ := env.cursor.Get(ctx)
	cursor.QueuePush("ORD-1", "production_completed", now)
	cursor.QueuePush("ORD-2", "shipped", now)
	require.NoError(t, env.cursor.Save(ctx, cursor))

	result, err := env.reconciler.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.PushesRetried)

	assert.Equal(t, []string{"ORD-1=production_completed"}, env.marketplace.pushesFor("ORD-1"))
	assert.Equal(t, []string{"ORD-2=shipped"}, env.marketplace.pushesFor("ORD-2"))

	cursor, _ = env.cursor.Get(ctx)
	assert.Empty(t, cursor.PendingPushes)
}

func TestReconcile_FailedPushStaysQueuedWithAttemptBump(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	cursor, _ := env.cursor.Get(ctx)
	cursor.QueuePush("ORD-1", "production_completed", env.clock.Now())
	require.NoError(t, env.cursor.Save(ctx, cursor))

	env.marketplace.setStatusErr = errors.ErrTransientExternal("marketplace")

	_, err := env.reconciler.Reconcile(ctx)
	require.NoError(t, err)

	cursor, _ = env.cursor.Get(ctx)
	require.Len(t, cursor.PendingPushes, 1)
	assert.Equal(t, 1, cursor.PendingPushes[0].Attempts)

	// Next run with a healthy marketplace clears the queue
	env.marketplace.setStatusErr = nil
	_, err = env.reconciler.Reconcile(ctx)
	require.NoError(t, err)

	cursor, _ = env.cursor.Get(ctx)
	assert.Empty(t, cursor.PendingPushes)
}

func TestReconcile_BusyWhenCatalogueLockHeld(t *testing.T) {
	env := newTestEnv()
	release := env.locks.holdLock(catalogueLock)
	defer release()

	_, err := env.reconciler.Reconcile(context.Background())
	assert.True(t, errors.IsCode(err, errors.CodeBusy))
}
