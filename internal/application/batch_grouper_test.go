package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panelworks/production-engine/internal/domain"
)

func TestGroupPending_GroupsBySpeciesAndTechnology(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	oak1 := env.seedTask("TASK-1", "ORD-1", "P-1", oakSolid())
	oak2 := env.seedTask("TASK-2", "ORD-2", "P-1", oakSolid())
	ash := env.seedTask("TASK-3", "ORD-3", "P-1", ashFingerJointed())

	assigned, err := env.grouper.GroupPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, assigned)

	assert.Equal(t, oak1.BatchID, oak2.BatchID)
	assert.NotEqual(t, oak1.BatchID, ash.BatchID)

	oakBatch, _ := env.batches.FindByBatchID(ctx, oak1.BatchID)
	require.NotNil(t, oakBatch)
	assert.Equal(t, "OAK-SOL-001", oakBatch.Name)
	assert.Equal(t, 2, oakBatch.TaskCount)
	assert.True(t, oakBatch.Contains("TASK-1"))
	assert.True(t, oakBatch.Contains("TASK-2"))

	ashBatch, _ := env.batches.FindByBatchID(ctx, ash.BatchID)
	assert.Equal(t, "ASH-FIN-001", ashBatch.Name)
}

func TestGroupPending_ReusesOpenBatchSameDay(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	first := env.seedTask("TASK-1", "ORD-1", "P-1", oakSolid())

	_, err := env.grouper.GroupPending(ctx)
	require.NoError(t, err)

	// A later ingest the same day joins the open batch
	env.clock.Advance(3 * time.Hour)
	second := env.seedTask("TASK-2", "ORD-2", "P-1", oakSolid())

	_, err = env.grouper.GroupPending(ctx)
	require.NoError(t, err)

	assert.Equal(t, first.BatchID, second.BatchID)
	batch, _ := env.batches.FindByBatchID(ctx, first.BatchID)
	assert.Equal(t, 2, batch.TaskCount)
}

func TestGroupPending_NewDayOpensNewBatch(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	first := env.seedTask("TASK-1", "ORD-1", "P-1", oakSolid())

	_, err := env.grouper.GroupPending(ctx)
	require.NoError(t, err)

	env.clock.Advance(24 * time.Hour)
	second := env.seedTask("TASK-2", "ORD-2", "P-1", oakSolid())

	_, err = env.grouper.GroupPending(ctx)
	require.NoError(t, err)

	assert.NotEqual(t, first.BatchID, second.BatchID)
}

func TestGroupPending_ClosedBatchGetsNextOrdinal(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	first := env.seedTask("TASK-1", "ORD-1", "P-1", oakSolid(), domain.StationPack)

	_, err := env.grouper.GroupPending(ctx)
	require.NoError(t, err)

	// Completing the only member closes the batch
	done, err := env.production.CompleteRemaining(ctx, "TASK-1")
	require.NoError(t, err)
	require.True(t, done)
	closed, _ := env.batches.FindByBatchID(ctx, first.BatchID)
	require.Equal(t, domain.BatchCompleted, closed.Status)

	// A same-day follow-up task opens the second batch of the group
	second := env.seedTask("TASK-2", "ORD-2", "P-1", oakSolid())
	_, err = env.grouper.GroupPending(ctx)
	require.NoError(t, err)

	batch, _ := env.batches.FindByBatchID(ctx, second.BatchID)
	require.NotNil(t, batch)
	assert.Equal(t, 2, batch.Ordinal)
	assert.Equal(t, "OAK-SOL-002", batch.Name)
}

func TestGroupPending_SkipsAlreadyBatchedAndNonPending(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.seedTask("TASK-1", "ORD-1", "P-1", oakSolid())

	_, err := env.grouper.GroupPending(ctx)
	require.NoError(t, err)

	// Nothing left to assign
	assigned, err := env.grouper.GroupPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, assigned)

	// An in-progress unbatched task stays out of batching
	inProgress := env.seedTask("TASK-2", "ORD-2", "P-1", oakSolid())
	_, err = env.production.StartStage(ctx, "TASK-2", "tablet", "worker")
	require.NoError(t, err)

	assigned, err = env.grouper.GroupPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, assigned)
	assert.Empty(t, inProgress.BatchID)
}
