package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/panelworks/production-engine/internal/domain"
	"github.com/panelworks/production-engine/pkg/errors"
)

// PackagingService maintains the per-order summary roll-up and the
// order-level packaging gate.
type PackagingService struct {
	summaries   domain.SummaryRepository
	tasks       domain.TaskRepository
	marketplace domain.MarketplacePort
	cursorRepo  domain.CursorRepository
	clock       domain.Clock
	logger      *slog.Logger

	// shippedStatusID is pushed to the marketplace when packaging completes
	shippedStatusID string
}

// NewPackagingService creates the packaging coordinator
func NewPackagingService(
	summaries domain.SummaryRepository,
	tasks domain.TaskRepository,
	marketplace domain.MarketplacePort,
	cursorRepo domain.CursorRepository,
	clock domain.Clock,
	logger *slog.Logger,
	shippedStatusID string,
) *PackagingService {
	return &PackagingService{
		summaries:       summaries,
		tasks:           tasks,
		marketplace:     marketplace,
		cursorRepo:      cursorRepo,
		clock:           clock,
		logger:          logger.With("component", "packaging_service"),
		shippedStatusID: shippedStatusID,
	}
}

// RecomputeForOrder refreshes the order summary after a task terminal
// transition. A missing summary is created on the fly; the marketplace
// customer fields stay empty until the next ingestion touches the order.
func (s *PackagingService) RecomputeForOrder(ctx context.Context, marketplaceOrderID string) error {
	now := s.clock.Now()

	summary, err := s.summaries.FindByOrderID(ctx, marketplaceOrderID)
	if err != nil {
		return err
	}
	if summary == nil {
		summary = domain.NewOrderSummary(marketplaceOrderID, "", "", now)
	}

	tasks, err := s.tasks.FindByMarketplaceOrder(ctx, marketplaceOrderID)
	if err != nil {
		return err
	}

	itemCount, completedCount := countSummaryItems(tasks)
	summary.Recompute(itemCount, completedCount, now)

	return s.summaries.Save(ctx, summary)
}

// GetSummary returns the operator view of one order
func (s *PackagingService) GetSummary(ctx context.Context, marketplaceOrderID string) (*SummaryView, error) {
	summary, err := s.summaries.FindByOrderID(ctx, marketplaceOrderID)
	if err != nil {
		return nil, err
	}
	if summary == nil {
		return nil, errors.ErrNotFoundWithID("order summary", marketplaceOrderID)
	}
	view := NewSummaryView(summary)
	return &view, nil
}

// ListReadyForPackaging returns orders waiting for the packaging table
func (s *PackagingService) ListReadyForPackaging(ctx context.Context, limit int) ([]SummaryView, error) {
	summaries, err := s.summaries.ListReadyForPackaging(ctx, limit)
	if err != nil {
		return nil, err
	}
	views := make([]SummaryView, 0, len(summaries))
	for _, summary := range summaries {
		views = append(views, NewSummaryView(summary))
	}
	return views, nil
}

// StartPackaging moves a ready order onto the packaging table
func (s *PackagingService) StartPackaging(ctx context.Context, marketplaceOrderID string) error {
	summary, err := s.loadSummary(ctx, marketplaceOrderID)
	if err != nil {
		return err
	}
	if err := summary.StartPackaging(s.clock.Now()); err != nil {
		return mapSummaryError(err)
	}
	return s.summaries.Save(ctx, summary)
}

// CompletePackaging is the human acknowledgement that the order is boxed.
// It flips the packaging status and pushes the shipped-equivalent status to
// the marketplace; a failed push queues a retry and never reverses the flip.
func (s *PackagingService) CompletePackaging(ctx context.Context, marketplaceOrderID string) (*SummaryView, error) {
	summary, err := s.loadSummary(ctx, marketplaceOrderID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if err := summary.CompletePackaging(now); err != nil {
		return nil, mapSummaryError(err)
	}
	if err := s.summaries.Save(ctx, summary); err != nil {
		return nil, err
	}

	if err := s.marketplace.SetStatus(ctx, marketplaceOrderID, s.shippedStatusID); err != nil {
		s.logger.Warn("shipped status push failed, queueing retry",
			"orderId", marketplaceOrderID, "error", err)
		s.queuePush(ctx, marketplaceOrderID, now)
	}

	view := NewSummaryView(summary)
	return &view, nil
}

func (s *PackagingService) loadSummary(ctx context.Context, marketplaceOrderID string) (*domain.OrderSummary, error) {
	summary, err := s.summaries.FindByOrderID(ctx, marketplaceOrderID)
	if err != nil {
		return nil, err
	}
	if summary == nil {
		return nil, errors.ErrNotFoundWithID("order summary", marketplaceOrderID)
	}
	return summary, nil
}

func (s *PackagingService) queuePush(ctx context.Context, orderID string, now time.Time) {
	cursor, err := s.cursorRepo.Get(ctx)
	if err != nil {
		s.logger.Error("failed to load cursor for status push", "orderId", orderID, "error", err)
		return
	}
	cursor.QueuePush(orderID, s.shippedStatusID, now)
	if err := s.cursorRepo.Save(ctx, cursor); err != nil {
		s.logger.Error("failed to queue status push", "orderId", orderID, "error", err)
	}
}

// mapSummaryError maps domain packaging errors to the application taxonomy
func mapSummaryError(err error) error {
	switch err {
	case domain.ErrOrderNotReady, domain.ErrPackagingDone, domain.ErrPackagingNotStarted:
		return errors.ErrPreconditionFailed(err.Error())
	default:
		return err
	}
}
