package application

import (
	"io"
	"log/slog"
	"time"

	"github.com/panelworks/production-engine/internal/config"
	"github.com/panelworks/production-engine/internal/domain"
	"github.com/panelworks/production-engine/internal/planner"
)

// testEnv wires the full application layer over in-memory fakes, the same
// shape cmd/api assembles over MongoDB and Kafka.
type testEnv struct {
	clock       *fakeClock
	tasks       *fakeTaskRepo
	batches     *fakeBatchRepo
	summaries   *fakeSummaryRepo
	alerts      *fakeAlertRepo
	cursor      *fakeCursorRepo
	stations    *fakeStationRepo
	locks       *fakeLockManager
	publisher   *fakePublisher
	marketplace *fakeMarketplace

	packaging  *PackagingService
	priority   *PriorityService
	grouper    *BatchGrouper
	production *ProductionService
	reconciler *Reconciler
	ingestion  *IngestionService
	alerting   *AlertingService
}

func newTestEnv() *testEnv {
	env := &testEnv{
		clock:       newFakeClock(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)), // a Monday
		tasks:       newFakeTaskRepo(),
		batches:     newFakeBatchRepo(),
		summaries:   newFakeSummaryRepo(),
		alerts:      newFakeAlertRepo(),
		cursor:      newFakeCursorRepo(),
		stations:    newFakeStationRepo(),
		locks:       newFakeLockManager(),
		publisher:   &fakePublisher{},
		marketplace: newFakeMarketplace(),
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	env.packaging = NewPackagingService(
		env.summaries, env.tasks, env.marketplace, env.cursor,
		env.clock, logger, "shipped",
	)
	env.priority = NewPriorityService(env.tasks, env.locks, logger)
	env.grouper = NewBatchGrouper(env.batches, env.tasks, env.clock, logger)
	env.production = NewProductionService(
		env.tasks, env.batches, env.stations, env.packaging, env.alerts,
		env.cursor, env.priority, env.locks, env.publisher, nil,
		env.clock, logger, "production_completed",
	)
	env.reconciler = NewReconciler(
		env.marketplace, env.tasks, env.production, env.cursor, env.alerts,
		env.locks, env.clock, logger,
		config.ReconcileConfig{
			TickMinutes:       15,
			StatusMap:         testStatusMap(),
			CompletedStatusID: "production_completed",
			ShippedStatusID:   "shipped",
		},
	)
	env.ingestion = NewIngestionService(
		env.marketplace, env.tasks, env.summaries, env.stations, env.cursor,
		env.alerts, planner.New(nil, planner.DefaultMultipliers()),
		env.priority, env.grouper, env.reconciler, env.locks, env.publisher,
		nil, env.clock, logger,
		config.IngestConfig{
			WindowHours:         24,
			MaxOrdersPerPage:    100,
			ProductionStatusIDs: []string{"paid"},
		},
	)
	env.alerting = NewAlertingService(
		env.tasks, env.stations, env.alerts, env.publisher, nil,
		env.clock, logger,
		config.AlertsConfig{OverloadThreshold: 5, StuckHours: 4},
	)
	return env
}

func testStatusMap() config.StatusMap {
	return config.StatusMap{
		"paid":                 config.EffectIngest,
		"in_production":        config.EffectNoop,
		"production_completed": config.EffectCompleted,
		"shipped":              config.EffectCompleted,
		"cancelled":            config.EffectCancelled,
	}
}

// seedTask inserts a pending task with the given stages straight into the
// repository, bypassing ingestion.
func (env *testEnv) seedTask(taskID, orderID, productID string, attrs domain.Attributes, stations ...string) *domain.ProductionTask {
	if len(stations) == 0 {
		stations = []string{domain.StationCut, domain.StationPack}
	}
	stages := make([]domain.StageRecord, len(stations))
	for i, station := range stations {
		stages[i] = domain.StageRecord{
			WorkstationID:    station,
			EstimatedMinutes: 30,
		}
	}

	now := env.clock.Now()
	due := now.AddDate(0, 0, 7)
	task, err := domain.NewProductionTask(taskID, orderID, productID, attrs, 1, stages, &due, now)
	if err != nil {
		panic(err)
	}
	task.ClearDomainEvents()
	env.tasks.tasks[task.TaskID] = task
	return task
}

func oakSolid() domain.Attributes {
	return domain.Attributes{
		ProductName: "Oak panel",
		WoodSpecies: domain.SpeciesOak,
		Technology:  domain.TechnologySolid,
		WoodClass:   domain.ClassAB,
	}
}

func ashFingerJointed() domain.Attributes {
	return domain.Attributes{
		ProductName:  "Ash panel",
		WoodSpecies:  domain.SpeciesAsh,
		Technology:   domain.TechnologyFingerJoined,
		WoodClass:    domain.ClassBB,
		NeedsCoating: true,
		CoatingType:  "lacquer",
	}
}
