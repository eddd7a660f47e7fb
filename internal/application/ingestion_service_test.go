package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panelworks/production-engine/internal/domain"
	"github.com/panelworks/production-engine/pkg/errors"
)

func paidOrder(orderID string, lines ...domain.ProductLine) *domain.MarketplaceOrder {
	return &domain.MarketplaceOrder{
		OrderID:      orderID,
		ProductLines: lines,
		Customer:     domain.MarketplaceCustomer{Name: "Jan Kowalski", InternalNumber: "ZAM-1001"},
		StatusID:     "paid",
	}
}

func TestIngest_MaterialisesTasksFromOrderLines(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.marketplace.orders["ORD-1"] = paidOrder("ORD-1",
		domain.ProductLine{ProductID: "P-1", Name: "Blat dębowy lity 120x60x3 cm", Quantity: 1},
		domain.ProductLine{ProductID: "P-2", Name: "Blat jesionowy lakierowany 80x40x2,5 cm", Quantity: 2},
	)

	result, err := env.ingestion.Ingest(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.NewOrders)
	assert.Equal(t, 2, result.NewTasks)
	assert.Equal(t, 0, result.Errors)

	tasks, _ := env.tasks.FindByMarketplaceOrder(ctx, "ORD-1")
	require.Len(t, tasks, 2)
	for _, task := range tasks {
		assert.Equal(t, domain.TaskPending, task.Status)
		assert.NotEmpty(t, task.Stages)
		assert.Equal(t, domain.StationPack, task.Stages[len(task.Stages)-1].WorkstationID)
		require.NotNil(t, task.EstimatedCompletionDate)
		// Post-ingest rerank replaced the sentinel
		assert.Less(t, task.PriorityOrder, domain.SentinelPriority)
		// Post-ingest grouping assigned a batch
		assert.NotEmpty(t, task.BatchID)
	}

	summary, _ := env.summaries.FindByOrderID(ctx, "ORD-1")
	require.NotNil(t, summary)
	assert.Equal(t, "Jan Kowalski", summary.CustomerName)
	assert.Equal(t, 2, summary.ItemCount)
	assert.False(t, summary.AllItemsReady)

	cursor, _ := env.cursor.Get(ctx)
	assert.Equal(t, domain.SyncOK, cursor.LastOutcome)
	assert.False(t, cursor.HighWaterMark.IsZero())
}

func TestIngest_ReplaySameWindowCreatesNothing(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.marketplace.orders["ORD-1"] = paidOrder("ORD-1",
		domain.ProductLine{ProductID: "P-1", Name: "Blat dębowy", Quantity: 1},
	)

	first, err := env.ingestion.Ingest(ctx, false)
	require.NoError(t, err)
	require.Equal(t, 1, first.NewTasks)

	env.clock.Advance(time.Hour)

	second, err := env.ingestion.Ingest(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 0, second.NewOrders)
	assert.Equal(t, 0, second.NewTasks)
	assert.Equal(t, 1, second.SkippedExisting)

	tasks, _ := env.tasks.FindByMarketplaceOrder(ctx, "ORD-1")
	assert.Len(t, tasks, 1)

	cursor, _ := env.cursor.Get(ctx)
	assert.Equal(t, env.clock.Now(), cursor.HighWaterMark)
}

func TestIngest_DuplicateLineWithinOrderCollapses(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.marketplace.orders["ORD-1"] = paidOrder("ORD-1",
		domain.ProductLine{ProductID: "P-1", Name: "Blat dębowy", Quantity: 1},
		domain.ProductLine{ProductID: "P-1", Name: "Blat dębowy", Quantity: 1},
	)

	result, err := env.ingestion.Ingest(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.NewTasks)

	tasks, _ := env.tasks.FindByMarketplaceOrder(ctx, "ORD-1")
	assert.Len(t, tasks, 1)
}

func TestIngest_KnownOrderStatusHandedToReconciliation(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.marketplace.orders["ORD-1"] = paidOrder("ORD-1",
		domain.ProductLine{ProductID: "P-1", Name: "Blat dębowy", Quantity: 1},
	)

	_, err := env.ingestion.Ingest(ctx, false)
	require.NoError(t, err)

	// The marketplace later reports the order cancelled; re-ingesting the
	// window must cancel the existing task instead of recreating it.
	env.marketplace.orders["ORD-1"].StatusID = "cancelled"
	env.clock.Advance(time.Hour)

	result, err := env.ingestion.Ingest(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 0, result.NewTasks)

	tasks, _ := env.tasks.FindByMarketplaceOrder(ctx, "ORD-1")
	require.Len(t, tasks, 1)
	assert.Equal(t, domain.TaskCancelled, tasks[0].Status)
}

func TestIngest_MarketplaceFailureKeepsCursor(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	env.marketplace.orders["ORD-1"] = paidOrder("ORD-1",
		domain.ProductLine{ProductID: "P-1", Name: "Blat dębowy", Quantity: 1},
	)
	_, err := env.ingestion.Ingest(ctx, false)
	require.NoError(t, err)
	before, _ := env.cursor.Get(ctx)

	env.marketplace.fetchErr = errors.ErrTransientExternal("marketplace")
	env.clock.Advance(time.Hour)

	_, err = env.ingestion.Ingest(ctx, false)
	require.Error(t, err)

	after, _ := env.cursor.Get(ctx)
	assert.Equal(t, before.HighWaterMark, after.HighWaterMark)
	// One system_error alert marks the failed run
	assert.Len(t, env.alerts.byKind(domain.AlertSystemError), 1)
}

func TestIngest_BusyWhenCatalogueLockHeld(t *testing.T) {
	env := newTestEnv()
	release := env.locks.holdLock(catalogueLock)
	defer release()

	_, err := env.ingestion.Ingest(context.Background(), false)
	assert.True(t, errors.IsCode(err, errors.CodeBusy))
}

func TestIngest_GroupsNewTasksIntoSpeciesBatches(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.marketplace.orders["ORD-1"] = paidOrder("ORD-1",
		domain.ProductLine{ProductID: "P-1", Name: "Blat dębowy lity", Quantity: 1},
		domain.ProductLine{ProductID: "P-2", Name: "Blat dębowy lity", Quantity: 1},
		domain.ProductLine{ProductID: "P-3", Name: "Blat bukowy", Quantity: 1},
	)

	_, err := env.ingestion.Ingest(ctx, false)
	require.NoError(t, err)

	tasks, _ := env.tasks.FindByMarketplaceOrder(ctx, "ORD-1")
	require.Len(t, tasks, 3)

	batchIDs := make(map[domain.WoodSpecies]string)
	for _, task := range tasks {
		require.NotEmpty(t, task.BatchID)
		if existing, ok := batchIDs[task.Attributes.WoodSpecies]; ok {
			assert.Equal(t, existing, task.BatchID)
		}
		batchIDs[task.Attributes.WoodSpecies] = task.BatchID
	}
	// Oak and beech land in different batches
	assert.NotEqual(t, batchIDs[domain.SpeciesOak], batchIDs[domain.SpeciesBeech])

	batch, _ := env.batches.FindByBatchID(ctx, batchIDs[domain.SpeciesOak])
	require.NotNil(t, batch)
	assert.Equal(t, 2, batch.TaskCount)
	assert.Equal(t, "OAK-SOL-001", batch.Name)
}
