package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/panelworks/production-engine/internal/analyzer"
	"github.com/panelworks/production-engine/internal/config"
	"github.com/panelworks/production-engine/internal/domain"
	"github.com/panelworks/production-engine/internal/planner"
	"github.com/panelworks/production-engine/pkg/errors"
	"github.com/panelworks/production-engine/pkg/metrics"
)

// IngestionService pulls paid orders from the marketplace and materialises
// them into production tasks with planned stage records.
type IngestionService struct {
	marketplace domain.MarketplacePort
	tasks       domain.TaskRepository
	summaries   domain.SummaryRepository
	stations    domain.WorkstationRepository
	cursorRepo  domain.CursorRepository
	alerts      domain.AlertRepository
	planner     *planner.Planner
	priority    *PriorityService
	grouper     *BatchGrouper
	reconciler  *Reconciler
	locks       domain.LockManager
	publisher   domain.EventPublisher
	metrics     *metrics.Metrics
	clock       domain.Clock
	logger      *slog.Logger
	cfg         config.IngestConfig
}

// NewIngestionService creates the order ingestor
func NewIngestionService(
	marketplace domain.MarketplacePort,
	tasks domain.TaskRepository,
	summaries domain.SummaryRepository,
	stations domain.WorkstationRepository,
	cursorRepo domain.CursorRepository,
	alerts domain.AlertRepository,
	taskPlanner *planner.Planner,
	priority *PriorityService,
	grouper *BatchGrouper,
	reconciler *Reconciler,
	locks domain.LockManager,
	publisher domain.EventPublisher,
	m *metrics.Metrics,
	clock domain.Clock,
	logger *slog.Logger,
	cfg config.IngestConfig,
) *IngestionService {
	return &IngestionService{
		marketplace: marketplace,
		tasks:       tasks,
		summaries:   summaries,
		stations:    stations,
		cursorRepo:  cursorRepo,
		alerts:      alerts,
		planner:     taskPlanner,
		priority:    priority,
		grouper:     grouper,
		reconciler:  reconciler,
		locks:       locks,
		publisher:   publisher,
		metrics:     m,
		clock:       clock,
		logger:      logger.With("component", "ingestion_service"),
		cfg:         cfg,
	}
}

// Ingest runs one ingestion pass over [cursor, now]. fullScan ignores the
// cursor and re-reads the whole production-relevant window; replayed orders
// dedupe against the unique task index, so a full scan is always safe.
func (s *IngestionService) Ingest(ctx context.Context, fullScan bool) (*IngestResult, error) {
	release, ok, err := s.locks.TryAcquire(ctx, catalogueLock, lockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.ErrBusy("catalogue")
	}
	defer release()

	now := s.clock.Now()
	cursor, err := s.cursorRepo.Get(ctx)
	if err != nil {
		return nil, err
	}

	since := cursor.HighWaterMark
	if since.IsZero() {
		since = now.Add(-time.Duration(s.cfg.WindowHours) * time.Hour)
	}
	if fullScan {
		since = time.Time{}
	}

	result := &IngestResult{}
	stationNames, err := s.stationNames(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	pageToken := ""
	for {
		page, err := s.marketplace.FetchOrders(ctx, domain.OrderQuery{
			StatusIDs:      s.cfg.ProductionStatusIDs,
			ConfirmedSince: since,
			ConfirmedUntil: now,
			PageToken:      pageToken,
			Limit:          s.cfg.MaxOrdersPerPage,
		})
		if err != nil {
			// Marketplace failure: cursor stays put, one system_error a day
			s.emitSystemError(ctx, "job/ingest",
				fmt.Sprintf("ingestion aborted: %v", err))
			result.Errors++
			return result, err
		}

		for i := range page.Orders {
			order := &page.Orders[i]
			result.Fetched++
			if err := s.ingestOrder(ctx, order, seen, stationNames, result, now); err != nil {
				result.Errors++
				s.logger.Error("failed to ingest order",
					"orderId", order.OrderID, "error", err)
			}
		}

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	if _, err := s.priority.rerankLocked(ctx); err != nil {
		result.Errors++
		s.logger.Error("post-ingest rerank failed", "error", err)
	}
	if _, err := s.grouper.GroupPending(ctx); err != nil {
		result.Errors++
		s.logger.Error("post-ingest batch grouping failed", "error", err)
	}

	outcome := domain.SyncOK
	if result.Errors > 0 {
		outcome = domain.SyncPartial
	}
	cursor.Advance(now, "", outcome, now)
	if err := s.cursorRepo.Save(ctx, cursor); err != nil {
		return result, err
	}

	s.logger.Info("ingestion complete",
		"fetched", result.Fetched,
		"newOrders", result.NewOrders,
		"newTasks", result.NewTasks,
		"skipped", result.SkippedExisting,
		"errors", result.Errors,
	)
	return result, nil
}

// ingestOrder materialises one marketplace order, or hands an already-known
// order to the reconciliation path.
func (s *IngestionService) ingestOrder(
	ctx context.Context,
	order *domain.MarketplaceOrder,
	seen map[string]bool,
	stationNames map[string]string,
	result *IngestResult,
	now time.Time,
) error {
	exists, err := s.tasks.HasMarketplaceOrder(ctx, order.OrderID)
	if err != nil {
		return err
	}
	if exists {
		result.SkippedExisting++
		if s.reconciler != nil {
			s.reconciler.applyOrderStatus(ctx, order.OrderID, order.StatusID)
		}
		return nil
	}

	newTasks := 0
	for _, line := range order.ProductLines {
		dedupeKey := order.OrderID + "/" + line.ProductID
		if seen[dedupeKey] {
			continue
		}
		seen[dedupeKey] = true

		task, err := s.materialiseTask(ctx, order, line, stationNames, now)
		if err != nil {
			return err
		}

		if err := s.tasks.Insert(ctx, task); err != nil {
			if err == domain.ErrDuplicateTask {
				result.SkippedExisting++
				continue
			}
			return err
		}

		if s.metrics != nil {
			s.metrics.TasksCreated.WithLabelValues(
				string(task.Attributes.WoodSpecies),
				string(task.Attributes.Technology),
			).Inc()
		}
		s.publish(ctx, task.DomainEvents())
		task.ClearDomainEvents()
		newTasks++
	}

	if newTasks > 0 {
		result.NewOrders++
		result.NewTasks += newTasks
		if err := s.upsertSummary(ctx, order, now); err != nil {
			return err
		}
	}
	return nil
}

// materialiseTask runs the analyser and planner over one product line and
// builds the pending task with its stage records.
func (s *IngestionService) materialiseTask(
	ctx context.Context,
	order *domain.MarketplaceOrder,
	line domain.ProductLine,
	stationNames map[string]string,
	now time.Time,
) (*domain.ProductionTask, error) {
	attrs := analyzer.Analyze(line.Name, line.Comments)

	steps, err := s.planner.Plan(ctx, attrs)
	if err != nil {
		return nil, err
	}

	stages := make([]domain.StageRecord, len(steps))
	for i, step := range steps {
		stages[i] = domain.StageRecord{
			WorkstationID:    step.WorkstationID,
			WorkstationName:  stationNames[step.WorkstationID],
			EstimatedMinutes: step.EstimatedMinutes,
		}
	}

	due := planner.EstimateCompletion(steps, now)
	taskID := "TASK-" + uuid.NewString()

	return domain.NewProductionTask(
		taskID,
		order.OrderID,
		line.ProductID,
		attrs,
		line.Quantity,
		stages,
		&due,
		now,
	)
}

func (s *IngestionService) upsertSummary(ctx context.Context, order *domain.MarketplaceOrder, now time.Time) error {
	summary, err := s.summaries.FindByOrderID(ctx, order.OrderID)
	if err != nil {
		return err
	}
	if summary == nil {
		summary = domain.NewOrderSummary(order.OrderID, order.Customer.Name, order.Customer.InternalNumber, now)
	}

	tasks, err := s.tasks.FindByMarketplaceOrder(ctx, order.OrderID)
	if err != nil {
		return err
	}
	itemCount, completed := countSummaryItems(tasks)
	summary.Recompute(itemCount, completed, now)

	return s.summaries.Save(ctx, summary)
}

func (s *IngestionService) stationNames(ctx context.Context) (map[string]string, error) {
	stations, err := s.stations.List(ctx, false)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(stations))
	for _, station := range stations {
		names[station.StationID] = station.Name
	}
	return names, nil
}

func (s *IngestionService) emitSystemError(ctx context.Context, entity, message string) {
	alert := domain.NewAlert(domain.AlertSystemError, entity, "System error", message, s.clock.Now())
	if _, err := s.alerts.Emit(ctx, alert); err != nil {
		s.logger.Error("failed to emit system error alert", "entity", entity, "error", err)
	}
}

func (s *IngestionService) publish(ctx context.Context, events []domain.DomainEvent) {
	if s.publisher == nil || len(events) == 0 {
		return
	}
	if err := s.publisher.PublishAll(ctx, events); err != nil {
		s.logger.Warn("failed to publish domain events", "count", len(events), "error", err)
	}
}

// countSummaryItems counts an order's items for the summary roll-up.
// Cancelled tasks drop out of both counters so they never block packaging.
func countSummaryItems(tasks []*domain.ProductionTask) (itemCount, completedCount int) {
	for _, task := range tasks {
		if task.Status == domain.TaskCancelled {
			continue
		}
		itemCount++
		if task.Status == domain.TaskCompleted {
			completedCount++
		}
	}
	return itemCount, completedCount
}
