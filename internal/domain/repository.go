package domain

import (
	"context"
	"errors"
	"time"
)

// ErrDuplicateTask is returned when the (marketplaceOrderId,
// marketplaceProductId) unique constraint rejects an insert.
var ErrDuplicateTask = errors.New("task already exists for marketplace product")

// TaskRepository persists ProductionTask aggregates
type TaskRepository interface {
	// Insert creates a new task; ErrDuplicateTask enforces the at-most-once
	// ingestion guarantee per (marketplace_order_id, marketplace_product_id).
	Insert(ctx context.Context, task *ProductionTask) error
	Save(ctx context.Context, task *ProductionTask) error
	FindByTaskID(ctx context.Context, taskID string) (*ProductionTask, error)
	FindByMarketplaceOrder(ctx context.Context, marketplaceOrderID string) ([]*ProductionTask, error)
	HasMarketplaceOrder(ctx context.Context, marketplaceOrderID string) (bool, error)

	// FindActive returns tasks with status in {pending, in_progress},
	// the domain of the priority engine.
	FindActive(ctx context.Context) ([]*ProductionTask, error)
	// FindNonTerminal additionally includes on_hold tasks.
	FindNonTerminal(ctx context.Context) ([]*ProductionTask, error)
	FindPendingUnbatched(ctx context.Context) ([]*ProductionTask, error)
	FindQueue(ctx context.Context, workstationID string, limit int) ([]*ProductionTask, error)

	UpdatePriorities(ctx context.Context, priorities map[string]int) error
	DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// BatchRepository persists ProductionBatch aggregates
type BatchRepository interface {
	Save(ctx context.Context, batch *ProductionBatch) error
	FindByBatchID(ctx context.Context, batchID string) (*ProductionBatch, error)
	// FindOpenByKey returns the newest non-terminal batch for the
	// (species, technology, day) group, or nil.
	FindOpenByKey(ctx context.Context, species WoodSpecies, technology Technology, batchDate string) (*ProductionBatch, error)
	NextOrdinal(ctx context.Context, species WoodSpecies, technology Technology, batchDate string) (int, error)
	DeleteEmptyBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SummaryRepository persists OrderSummary roll-ups
type SummaryRepository interface {
	Save(ctx context.Context, summary *OrderSummary) error
	FindByOrderID(ctx context.Context, marketplaceOrderID string) (*OrderSummary, error)
	ListReadyForPackaging(ctx context.Context, limit int) ([]*OrderSummary, error)
}

// AlertRepository persists alerts. The store is append-mostly: the only
// writer besides Emit is MarkRead.
type AlertRepository interface {
	// Emit inserts the alert unless one already exists for its
	// (entity, kind, day) key; it reports whether an insert happened.
	Emit(ctx context.Context, alert *Alert) (bool, error)
	MarkRead(ctx context.Context, alertID string, now time.Time) error
	ListUnread(ctx context.Context, limit int) ([]*Alert, error)
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// CursorRepository persists the single ingestion cursor row
type CursorRepository interface {
	Get(ctx context.Context) (*IngestionCursor, error)
	Save(ctx context.Context, cursor *IngestionCursor) error
}

// WorkstationRepository reads the workstation catalogue
type WorkstationRepository interface {
	List(ctx context.Context, activeOnly bool) ([]Workstation, error)
	FindByStationID(ctx context.Context, stationID string) (*Workstation, error)
	// SeedIfEmpty installs the canonical catalogue on first start.
	SeedIfEmpty(ctx context.Context, stations []Workstation) error
}

// WorkflowOverrideRepository reads persisted workflow overrides
type WorkflowOverrideRepository interface {
	Find(ctx context.Context, species WoodSpecies, technology Technology, needsCoating bool) (*WorkflowOverride, error)
}

// JobStateRepository persists scheduler job freshness
type JobStateRepository interface {
	Record(ctx context.Context, state JobState) error
	List(ctx context.Context) ([]JobState, error)
}

// ReleaseFunc releases an acquired named lock
type ReleaseFunc func()

// LockManager provides process-wide named locks. TryAcquire never blocks
// past the manager's wait ceiling; contention reports ok=false so callers
// can fail fast with busy.
type LockManager interface {
	TryAcquire(ctx context.Context, name string, ttl time.Duration) (release ReleaseFunc, ok bool, err error)
}

// EventPublisher publishes domain events to the event stream, best effort
type EventPublisher interface {
	PublishAll(ctx context.Context, events []DomainEvent) error
}

// Clock abstracts wall-clock time for deterministic tests
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface
type ClockFunc func() time.Time

// Now implements Clock
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock returns a Clock backed by time.Now in UTC
func SystemClock() Clock {
	return ClockFunc(func() time.Time { return time.Now().UTC() })
}
