package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/panelworks/production-engine/internal/config"
	"github.com/panelworks/production-engine/internal/domain"
	"github.com/panelworks/production-engine/pkg/errors"
)

// Reconciler aligns internal task status with marketplace status. All
// writes flow through the state machine; the reconciler never by-passes it.
type Reconciler struct {
	marketplace domain.MarketplacePort
	tasks       domain.TaskRepository
	production  *ProductionService
	cursorRepo  domain.CursorRepository
	alerts      domain.AlertRepository
	locks       domain.LockManager
	clock       domain.Clock
	logger      *slog.Logger
	cfg         config.ReconcileConfig
}

// NewReconciler creates the status reconciler
func NewReconciler(
	marketplace domain.MarketplacePort,
	tasks domain.TaskRepository,
	production *ProductionService,
	cursorRepo domain.CursorRepository,
	alerts domain.AlertRepository,
	locks domain.LockManager,
	clock domain.Clock,
	logger *slog.Logger,
	cfg config.ReconcileConfig,
) *Reconciler {
	return &Reconciler{
		marketplace: marketplace,
		tasks:       tasks,
		production:  production,
		cursorRepo:  cursorRepo,
		alerts:      alerts,
		locks:       locks,
		clock:       clock,
		logger:      logger.With("component", "reconciler"),
		cfg:         cfg,
	}
}

// Reconcile runs one pass: pull marketplace status for every order with
// non-terminal tasks, apply the mapped effect, then retry queued pushes.
func (r *Reconciler) Reconcile(ctx context.Context) (*ReconcileResult, error) {
	release, ok, err := r.locks.TryAcquire(ctx, catalogueLock, lockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.ErrBusy("catalogue")
	}
	defer release()

	result := &ReconcileResult{}

	tasks, err := r.tasks.FindNonTerminal(ctx)
	if err != nil {
		return nil, err
	}

	orders := make(map[string]bool)
	for _, task := range tasks {
		orders[task.MarketplaceOrderID] = true
	}

	for orderID := range orders {
		result.OrdersChecked++
		order, err := r.marketplace.FetchOrder(ctx, orderID)
		if err != nil {
			if err == domain.ErrOrderNotFound {
				r.emitSystemError(ctx, "order/"+orderID,
					fmt.Sprintf("order %s has local tasks but is unknown to the marketplace", orderID))
				result.Errors++
				continue
			}
			// Transient marketplace failure: skip this pass, keep state
			result.Errors++
			r.logger.Warn("failed to fetch order status", "orderId", orderID, "error", err)
			continue
		}

		completed, cancelled := r.applyOrderStatus(ctx, orderID, order.StatusID)
		result.TasksCompleted += completed
		result.TasksCancelled += cancelled
	}

	retried, err := r.drainPushQueue(ctx)
	result.PushesRetried = retried
	if err != nil {
		result.Errors++
	}

	r.logger.Info("reconcile complete",
		"ordersChecked", result.OrdersChecked,
		"tasksCompleted", result.TasksCompleted,
		"tasksCancelled", result.TasksCancelled,
		"pushesRetried", result.PushesRetried,
		"errors", result.Errors,
	)
	return result, nil
}

// applyOrderStatus maps one external status onto the order's tasks. An
// unmapped status id is a data inconsistency: the state machine never
// advances on an unknown signal.
func (r *Reconciler) applyOrderStatus(ctx context.Context, orderID, statusID string) (completed, cancelled int) {
	effect, known := r.cfg.StatusMap.Effect(statusID)
	if !known {
		r.emitSystemError(ctx, "order/"+orderID,
			fmt.Sprintf("unknown marketplace status %q for order %s", statusID, orderID))
		return 0, 0
	}

	switch effect {
	case config.EffectIngest, config.EffectNoop:
		return 0, 0

	case config.EffectCompleted:
		tasks, err := r.tasks.FindByMarketplaceOrder(ctx, orderID)
		if err != nil {
			r.logger.Error("failed to load order tasks", "orderId", orderID, "error", err)
			return 0, 0
		}
		for _, task := range tasks {
			if task.Status.IsTerminal() {
				continue
			}
			done, err := r.production.CompleteRemaining(ctx, task.TaskID)
			if err != nil {
				r.logger.Error("failed to reconcile task to completed",
					"taskId", task.TaskID, "error", err)
				continue
			}
			if done {
				completed++
			}
		}
		return completed, 0

	case config.EffectCancelled:
		tasks, err := r.tasks.FindByMarketplaceOrder(ctx, orderID)
		if err != nil {
			r.logger.Error("failed to load order tasks", "orderId", orderID, "error", err)
			return 0, 0
		}
		for _, task := range tasks {
			done, err := r.production.CancelFromReconcile(ctx, task.TaskID, "cancelled by marketplace")
			if err != nil {
				r.logger.Error("failed to reconcile task to cancelled",
					"taskId", task.TaskID, "error", err)
				continue
			}
			if done {
				cancelled++
			}
		}
		return 0, cancelled
	}
	return 0, 0
}

// drainPushQueue retries the queued best-effort status pushes. A failed
// push stays queued with its attempt counter bumped.
func (r *Reconciler) drainPushQueue(ctx context.Context) (int, error) {
	cursor, err := r.cursorRepo.Get(ctx)
	if err != nil {
		return 0, err
	}
	if len(cursor.PendingPushes) == 0 {
		return 0, nil
	}

	retried := 0
	// Copy: DropPush mutates the slice under iteration
	pending := make([]domain.StatusPush, len(cursor.PendingPushes))
	copy(pending, cursor.PendingPushes)

	for _, push := range pending {
		retried++
		if err := r.marketplace.SetStatus(ctx, push.MarketplaceOrderID, push.StatusID); err != nil {
			r.logger.Warn("status push failed, keeping in queue",
				"orderId", push.MarketplaceOrderID,
				"statusId", push.StatusID,
				"attempts", push.Attempts+1,
				"error", err,
			)
			for i := range cursor.PendingPushes {
				if cursor.PendingPushes[i].MarketplaceOrderID == push.MarketplaceOrderID {
					cursor.PendingPushes[i].Attempts++
				}
			}
			continue
		}
		cursor.DropPush(push.MarketplaceOrderID)
	}

	if err := r.cursorRepo.Save(ctx, cursor); err != nil {
		return retried, err
	}
	return retried, nil
}

func (r *Reconciler) emitSystemError(ctx context.Context, entity, message string) {
	alert := domain.NewAlert(domain.AlertSystemError, entity, "System error", message, r.clock.Now())
	if _, err := r.alerts.Emit(ctx, alert); err != nil {
		r.logger.Error("failed to emit system error alert", "entity", entity, "error", err)
	}
}
