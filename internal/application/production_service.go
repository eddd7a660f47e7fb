// Package application hosts the use-case services: ingestion, priority,
// batching, shop-floor operations, reconciliation, packaging and alerting.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/panelworks/production-engine/internal/domain"
	"github.com/panelworks/production-engine/pkg/errors"
	"github.com/panelworks/production-engine/pkg/metrics"
)

// Named locks. The catalogue lock serialises ingestion, reranking and
// reconciliation; per-task locks linearise shop-floor read-modify-writes.
const (
	catalogueLock  = "catalogue"
	taskLockPrefix = "task/"

	lockTTL = 60 * time.Second

	// MaxQueueLimit caps the tablet queue page size
	MaxQueueLimit = 20
)

// reconcilerWorker marks stage records driven by reconciliation rather
// than a shop-floor worker.
const reconcilerWorker = "reconciler"

// ProductionService implements the shop-floor task operations: queue
// listing, start/complete/pause/resume/cancel and manual reordering.
type ProductionService struct {
	tasks     domain.TaskRepository
	batches   domain.BatchRepository
	stations  domain.WorkstationRepository
	summaries *PackagingService
	alerts    domain.AlertRepository
	cursor    domain.CursorRepository
	priority  *PriorityService
	locks     domain.LockManager
	publisher domain.EventPublisher
	metrics   *metrics.Metrics
	clock     domain.Clock
	logger    *slog.Logger

	// completedStatusID is queued for marketplace push-back on completion
	completedStatusID string
}

// NewProductionService creates the shop-floor operations service
func NewProductionService(
	tasks domain.TaskRepository,
	batches domain.BatchRepository,
	stations domain.WorkstationRepository,
	packaging *PackagingService,
	alerts domain.AlertRepository,
	cursor domain.CursorRepository,
	priority *PriorityService,
	locks domain.LockManager,
	publisher domain.EventPublisher,
	m *metrics.Metrics,
	clock domain.Clock,
	logger *slog.Logger,
	completedStatusID string,
) *ProductionService {
	return &ProductionService{
		tasks:             tasks,
		batches:           batches,
		stations:          stations,
		summaries:         packaging,
		alerts:            alerts,
		cursor:            cursor,
		priority:          priority,
		locks:             locks,
		publisher:         publisher,
		metrics:           m,
		clock:             clock,
		logger:            logger.With("component", "production_service"),
		completedStatusID: completedStatusID,
	}
}

// GetQueue returns the priority-ordered task queue for a workstation
func (s *ProductionService) GetQueue(ctx context.Context, stationID string, limit int) ([]TaskView, error) {
	station, err := s.stations.FindByStationID(ctx, stationID)
	if err != nil {
		return nil, err
	}
	if station == nil {
		return nil, errors.ErrNotFoundWithID("workstation", stationID)
	}

	if limit <= 0 || limit > MaxQueueLimit {
		limit = MaxQueueLimit
	}

	tasks, err := s.tasks.FindQueue(ctx, stationID, limit)
	if err != nil {
		return nil, err
	}

	views := make([]TaskView, 0, len(tasks))
	for _, task := range tasks {
		views = append(views, NewTaskView(task))
	}
	return views, nil
}

// StartStage marks the task's first pending stage in progress
func (s *ProductionService) StartStage(ctx context.Context, taskID, tabletID, workerID string) (*StartStageResult, error) {
	var result *StartStageResult
	err := s.withTask(ctx, taskID, func(task *domain.ProductionTask) error {
		now := s.clock.Now()
		stage, err := task.StartStage(tabletID, workerID, now)
		if err != nil {
			return mapStateError(err)
		}

		if task.BatchID != "" {
			s.recordBatchStarted(ctx, task.BatchID, now)
		}

		result = &StartStageResult{
			TaskID:  task.TaskID,
			Station: stage.WorkstationID,
			Message: fmt.Sprintf("stage %d started at %s", stage.SequenceInTask, stage.WorkstationID),
		}
		return nil
	})
	return result, err
}

// CompleteStage completes the in-progress stage; completing the final stage
// completes the task, maintains the batch counters, recomputes the order
// summary and queues the marketplace push-back.
func (s *ProductionService) CompleteStage(ctx context.Context, taskID, tabletID, notes string) (*CompleteStageResult, error) {
	var result *CompleteStageResult
	err := s.withTask(ctx, taskID, func(task *domain.ProductionTask) error {
		now := s.clock.Now()
		stage, taskCompleted, err := task.CompleteStage(notes, now)
		if err != nil {
			return mapStateError(err)
		}

		if s.metrics != nil {
			s.metrics.StagesCompleted.WithLabelValues(stage.WorkstationID).Inc()
		}

		result = &CompleteStageResult{TaskID: task.TaskID, TaskCompleted: taskCompleted}
		if next := task.NextPendingStage(); next != nil {
			result.NextStation = next.WorkstationID
		}

		if taskCompleted {
			s.onTaskTerminal(ctx, task, now, true)
		}
		return nil
	})
	return result, err
}

// Pause reverts the in-progress stage to pending and holds the task
func (s *ProductionService) Pause(ctx context.Context, taskID, reason string) (*PauseResult, error) {
	var result *PauseResult
	err := s.withTask(ctx, taskID, func(task *domain.ProductionTask) error {
		stage, err := task.Pause(reason, s.clock.Now())
		if err != nil {
			return mapStateError(err)
		}
		result = &PauseResult{TaskID: task.TaskID, Station: stage.WorkstationID, Reason: reason}
		return nil
	})
	return result, err
}

// Resume lifts a hold
func (s *ProductionService) Resume(ctx context.Context, taskID string) error {
	return s.withTask(ctx, taskID, func(task *domain.ProductionTask) error {
		if err := task.Resume(s.clock.Now()); err != nil {
			return mapStateError(err)
		}
		return nil
	})
}

// Cancel transitions the task to cancelled, keeping stage history
func (s *ProductionService) Cancel(ctx context.Context, taskID, reason string) error {
	return s.withTask(ctx, taskID, func(task *domain.ProductionTask) error {
		now := s.clock.Now()
		if err := task.Cancel(reason, now); err != nil {
			return mapStateError(err)
		}
		s.onTaskTerminal(ctx, task, now, false)
		return nil
	})
}

// ReorderItem is one entry of a manual queue reorder
type ReorderItem struct {
	TaskID        string `json:"taskId" binding:"required"`
	PriorityOrder int    `json:"priorityOrder" binding:"required"`
}

// Reorder applies manually assigned priorities, then reranks so the
// arbitrary integers renormalise to the gap-of-10 scheme.
func (s *ProductionService) Reorder(ctx context.Context, items []ReorderItem) (*ReorderResult, error) {
	if len(items) == 0 {
		return nil, errors.ErrValidation("reorder requires at least one entry")
	}

	priorities := make(map[string]int, len(items))
	for _, item := range items {
		priorities[item.TaskID] = item.PriorityOrder
	}
	if err := s.tasks.UpdatePriorities(ctx, priorities); err != nil {
		return nil, err
	}

	if _, err := s.priority.Rerank(ctx); err != nil {
		return nil, err
	}
	return &ReorderResult{UpdatedCount: len(items)}, nil
}

// CompleteRemaining drives a task to completed through the state machine.
// Used by the reconciler when the marketplace already reports the order
// done. A stage in progress under a shop-floor worker stops the loop: the
// reconciler never force-completes someone's active work.
func (s *ProductionService) CompleteRemaining(ctx context.Context, taskID string) (bool, error) {
	completed := false
	err := s.withTask(ctx, taskID, func(task *domain.ProductionTask) error {
		now := s.clock.Now()
		for !task.Status.IsTerminal() {
			if task.Status == domain.TaskOnHold {
				if err := task.Resume(now); err != nil {
					return mapStateError(err)
				}
			}

			if stage := task.InProgressStage(); stage != nil {
				if stage.WorkerID != "" && stage.WorkerID != reconcilerWorker {
					s.emitSystemError(ctx,
						"task/"+task.TaskID,
						fmt.Sprintf("marketplace reports order %s done but stage %d is in progress under worker %s",
							task.MarketplaceOrderID, stage.SequenceInTask, stage.WorkerID))
					return nil
				}
			} else {
				if _, err := task.StartStage("", reconcilerWorker, now); err != nil {
					return mapStateError(err)
				}
			}

			_, taskCompleted, err := task.CompleteStage("reconciled from marketplace status", now)
			if err != nil {
				return mapStateError(err)
			}
			if taskCompleted {
				completed = true
				s.onTaskTerminal(ctx, task, now, true)
			}
		}
		return nil
	})
	return completed, err
}

// CancelFromReconcile cancels a task on behalf of the reconciler. An
// already terminal task is a no-op, not an error.
func (s *ProductionService) CancelFromReconcile(ctx context.Context, taskID, reason string) (bool, error) {
	cancelled := false
	err := s.withTask(ctx, taskID, func(task *domain.ProductionTask) error {
		if task.Status.IsTerminal() {
			return nil
		}
		now := s.clock.Now()
		if err := task.Cancel(reason, now); err != nil {
			return mapStateError(err)
		}
		cancelled = true
		s.onTaskTerminal(ctx, task, now, false)
		return nil
	})
	return cancelled, err
}

// withTask linearises a read-modify-write of one task under its advisory
// lock, persists the result and publishes the produced domain events.
func (s *ProductionService) withTask(ctx context.Context, taskID string, fn func(*domain.ProductionTask) error) error {
	release, ok, err := s.locks.TryAcquire(ctx, taskLockPrefix+taskID, lockTTL)
	if err != nil {
		return err
	}
	if !ok {
		return errors.ErrBusy("task " + taskID)
	}
	defer release()

	task, err := s.tasks.FindByTaskID(ctx, taskID)
	if err != nil {
		return err
	}
	if task == nil {
		return errors.ErrNotFoundWithID("task", taskID)
	}

	if err := task.CheckInvariants(); err != nil {
		s.emitSystemError(ctx, "task/"+task.TaskID, err.Error())
		return errors.ErrDataInconsistency(err.Error())
	}

	if err := fn(task); err != nil {
		return err
	}

	if err := s.tasks.Save(ctx, task); err != nil {
		return err
	}

	s.publish(ctx, task.DomainEvents())
	task.ClearDomainEvents()
	return nil
}

// onTaskTerminal runs the side effects of a terminal transition: batch
// counters, order summary recompute, completion notice, status push-back.
func (s *ProductionService) onTaskTerminal(ctx context.Context, task *domain.ProductionTask, now time.Time, completed bool) {
	if completed && task.BatchID != "" {
		s.recordBatchCompleted(ctx, task.BatchID, now)
	}

	if err := s.summaries.RecomputeForOrder(ctx, task.MarketplaceOrderID); err != nil {
		s.logger.Error("failed to recompute order summary",
			"orderId", task.MarketplaceOrderID, "error", err)
	}

	if completed {
		if s.metrics != nil {
			s.metrics.TasksCompleted.Inc()
		}

		alert := domain.NewAlert(
			domain.AlertCompletionNotice,
			"task/"+task.TaskID,
			fmt.Sprintf("Task %s completed", task.TaskID),
			fmt.Sprintf("%s (order %s) finished production", task.Attributes.ProductName, task.MarketplaceOrderID),
			now,
		).ForTask(task.TaskID)
		if _, err := s.alerts.Emit(ctx, alert); err != nil {
			s.logger.Error("failed to emit completion notice", "taskId", task.TaskID, "error", err)
		}

		s.queueStatusPush(ctx, task.MarketplaceOrderID, s.completedStatusID, now)
	}
}

func (s *ProductionService) recordBatchStarted(ctx context.Context, batchID string, now time.Time) {
	batch, err := s.batches.FindByBatchID(ctx, batchID)
	if err != nil || batch == nil {
		return
	}
	batch.RecordTaskStarted(now)
	if err := s.batches.Save(ctx, batch); err != nil {
		s.logger.Error("failed to update batch", "batchId", batchID, "error", err)
	}
}

func (s *ProductionService) recordBatchCompleted(ctx context.Context, batchID string, now time.Time) {
	batch, err := s.batches.FindByBatchID(ctx, batchID)
	if err != nil || batch == nil {
		return
	}
	batch.RecordTaskCompleted(now)
	if err := s.batches.Save(ctx, batch); err != nil {
		s.logger.Error("failed to update batch", "batchId", batchID, "error", err)
		return
	}
	s.publish(ctx, batch.DomainEvents())
	batch.ClearDomainEvents()
}

// queueStatusPush enqueues a best-effort marketplace push; the reconciler
// drains the queue on its next run.
func (s *ProductionService) queueStatusPush(ctx context.Context, orderID, statusID string, now time.Time) {
	cursor, err := s.cursor.Get(ctx)
	if err != nil {
		s.logger.Error("failed to load cursor for status push", "orderId", orderID, "error", err)
		return
	}
	cursor.QueuePush(orderID, statusID, now)
	if err := s.cursor.Save(ctx, cursor); err != nil {
		s.logger.Error("failed to queue status push", "orderId", orderID, "error", err)
	}
}

func (s *ProductionService) emitSystemError(ctx context.Context, entity, message string) {
	alert := domain.NewAlert(domain.AlertSystemError, entity, "System error", message, s.clock.Now())
	if _, err := s.alerts.Emit(ctx, alert); err != nil {
		s.logger.Error("failed to emit system error alert", "entity", entity, "error", err)
	}
}

func (s *ProductionService) publish(ctx context.Context, events []domain.DomainEvent) {
	if s.publisher == nil || len(events) == 0 {
		return
	}
	if err := s.publisher.PublishAll(ctx, events); err != nil {
		s.logger.Warn("failed to publish domain events", "count", len(events), "error", err)
	}
}

// mapStateError maps domain sentinel errors to the application taxonomy
func mapStateError(err error) error {
	switch err {
	case domain.ErrTaskTerminal,
		domain.ErrTaskOnHold,
		domain.ErrTaskNotOnHold,
		domain.ErrNoPendingStage,
		domain.ErrStageInProgress,
		domain.ErrNoStageInProgress,
		domain.ErrNoStages:
		return errors.ErrPreconditionFailed(err.Error())
	default:
		return err
	}
}
