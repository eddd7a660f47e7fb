package application

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/panelworks/production-engine/internal/domain"
)

// In-memory repository fakes for application-level tests. They implement
// the domain ports with the same observable semantics as the MongoDB
// implementations, including the unique-key behaviour the services rely on.

type fakeClock struct {
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }
func (c *fakeClock) Set(t time.Time)         { c.now = t }

type fakeTaskRepo struct {
	tasks map[string]*domain.ProductionTask
}

func newFakeTaskRepo() *fakeTaskRepo {
	return &fakeTaskRepo{tasks: make(map[string]*domain.ProductionTask)}
}

func (r *fakeTaskRepo) Insert(ctx context.Context, task *domain.ProductionTask) error {
	for _, existing := range r.tasks {
		if existing.MarketplaceOrderID == task.MarketplaceOrderID &&
			existing.MarketplaceProductID == task.MarketplaceProductID {
			return domain.ErrDuplicateTask
		}
	}
	r.tasks[task.TaskID] = task
	return nil
}

func (r *fakeTaskRepo) Save(ctx context.Context, task *domain.ProductionTask) error {
	r.tasks[task.TaskID] = task
	return nil
}

func (r *fakeTaskRepo) FindByTaskID(ctx context.Context, taskID string) (*domain.ProductionTask, error) {
	return r.tasks[taskID], nil
}

func (r *fakeTaskRepo) FindByMarketplaceOrder(ctx context.Context, orderID string) ([]*domain.ProductionTask, error) {
	var out []*domain.ProductionTask
	for _, task := range r.tasks {
		if task.MarketplaceOrderID == orderID {
			out = append(out, task)
		}
	}
	sortTasks(out)
	return out, nil
}

func (r *fakeTaskRepo) HasMarketplaceOrder(ctx context.Context, orderID string) (bool, error) {
	for _, task := range r.tasks {
		if task.MarketplaceOrderID == orderID {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeTaskRepo) FindActive(ctx context.Context) ([]*domain.ProductionTask, error) {
	var out []*domain.ProductionTask
	for _, task := range r.tasks {
		if task.Status == domain.TaskPending || task.Status == domain.TaskInProgress {
			out = append(out, task)
		}
	}
	sortTasks(out)
	return out, nil
}

func (r *fakeTaskRepo) FindNonTerminal(ctx context.Context) ([]*domain.ProductionTask, error) {
	var out []*domain.ProductionTask
	for _, task := range r.tasks {
		if !task.Status.IsTerminal() {
			out = append(out, task)
		}
	}
	sortTasks(out)
	return out, nil
}

func (r *fakeTaskRepo) FindPendingUnbatched(ctx context.Context) ([]*domain.ProductionTask, error) {
	var out []*domain.ProductionTask
	for _, task := range r.tasks {
		if task.Status == domain.TaskPending && task.BatchID == "" {
			out = append(out, task)
		}
	}
	sortTasks(out)
	return out, nil
}

func (r *fakeTaskRepo) FindQueue(ctx context.Context, workstationID string, limit int) ([]*domain.ProductionTask, error) {
	active, _ := r.FindActive(ctx)
	var out []*domain.ProductionTask
	for _, task := range active {
		stage := task.CurrentStage()
		if stage == nil || stage.WorkstationID != workstationID {
			continue
		}
		out = append(out, task)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *fakeTaskRepo) UpdatePriorities(ctx context.Context, priorities map[string]int) error {
	for taskID, priority := range priorities {
		if task, ok := r.tasks[taskID]; ok {
			task.PriorityOrder = priority
		}
	}
	return nil
}

func (r *fakeTaskRepo) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	for id, task := range r.tasks {
		if task.Status.IsTerminal() && task.UpdatedAt.Before(cutoff) {
			delete(r.tasks, id)
			deleted++
		}
	}
	return deleted, nil
}

func sortTasks(tasks []*domain.ProductionTask) {
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].PriorityOrder != tasks[j].PriorityOrder {
			return tasks[i].PriorityOrder < tasks[j].PriorityOrder
		}
		return tasks[i].TaskID < tasks[j].TaskID
	})
}

type fakeBatchRepo struct {
	batches map[string]*domain.ProductionBatch
}

func newFakeBatchRepo() *fakeBatchRepo {
	return &fakeBatchRepo{batches: make(map[string]*domain.ProductionBatch)}
}

func (r *fakeBatchRepo) Save(ctx context.Context, batch *domain.ProductionBatch) error {
	r.batches[batch.BatchID] = batch
	return nil
}

func (r *fakeBatchRepo) FindByBatchID(ctx context.Context, batchID string) (*domain.ProductionBatch, error) {
	return r.batches[batchID], nil
}

func (r *fakeBatchRepo) FindOpenByKey(ctx context.Context, species domain.WoodSpecies, technology domain.Technology, batchDate string) (*domain.ProductionBatch, error) {
	var best *domain.ProductionBatch
	for _, batch := range r.batches {
		if batch.WoodSpecies != species || batch.Technology != technology || batch.BatchDate != batchDate {
			continue
		}
		if batch.Status != domain.BatchPlanned && batch.Status != domain.BatchInProgress {
			continue
		}
		if best == nil || batch.Ordinal > best.Ordinal {
			best = batch
		}
	}
	return best, nil
}

func (r *fakeBatchRepo) NextOrdinal(ctx context.Context, species domain.WoodSpecies, technology domain.Technology, batchDate string) (int, error) {
	max := 0
	for _, batch := range r.batches {
		if batch.WoodSpecies == species && batch.Technology == technology && batch.BatchDate == batchDate {
			if batch.Ordinal > max {
				max = batch.Ordinal
			}
		}
	}
	return max + 1, nil
}

func (r *fakeBatchRepo) DeleteEmptyBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	for id, batch := range r.batches {
		if batch.TaskCount == 0 && batch.CreatedAt.Before(cutoff) {
			delete(r.batches, id)
			deleted++
		}
	}
	return deleted, nil
}

type fakeSummaryRepo struct {
	summaries map[string]*domain.OrderSummary
}

func newFakeSummaryRepo() *fakeSummaryRepo {
	return &fakeSummaryRepo{summaries: make(map[string]*domain.OrderSummary)}
}

func (r *fakeSummaryRepo) Save(ctx context.Context, summary *domain.OrderSummary) error {
	r.summaries[summary.MarketplaceOrderID] = summary
	return nil
}

func (r *fakeSummaryRepo) FindByOrderID(ctx context.Context, orderID string) (*domain.OrderSummary, error) {
	return r.summaries[orderID], nil
}

func (r *fakeSummaryRepo) ListReadyForPackaging(ctx context.Context, limit int) ([]*domain.OrderSummary, error) {
	var out []*domain.OrderSummary
	for _, summary := range r.summaries {
		if summary.AllItemsReady && summary.PackagingStatus != domain.PackagingCompleted {
			out = append(out, summary)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].MarketplaceOrderID < out[j].MarketplaceOrderID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeAlertRepo struct {
	alerts []*domain.Alert
}

func newFakeAlertRepo() *fakeAlertRepo { return &fakeAlertRepo{} }

func (r *fakeAlertRepo) Emit(ctx context.Context, alert *domain.Alert) (bool, error) {
	for _, existing := range r.alerts {
		if existing.Entity == alert.Entity && existing.Kind == alert.Kind && existing.Day == alert.Day {
			return false, nil
		}
	}
	r.alerts = append(r.alerts, alert)
	return true, nil
}

func (r *fakeAlertRepo) MarkRead(ctx context.Context, alertID string, now time.Time) error {
	for _, alert := range r.alerts {
		if alert.ID.Hex() == alertID {
			alert.IsRead = true
			alert.ReadAt = &now
			return nil
		}
	}
	return nil
}

func (r *fakeAlertRepo) ListUnread(ctx context.Context, limit int) ([]*domain.Alert, error) {
	var out []*domain.Alert
	for _, alert := range r.alerts {
		if !alert.IsRead {
			out = append(out, alert)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeAlertRepo) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	kept := r.alerts[:0]
	var deleted int64
	for _, alert := range r.alerts {
		if alert.IsRead && alert.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, alert)
	}
	r.alerts = kept
	return deleted, nil
}

// byKind returns the stored alerts of one kind
func (r *fakeAlertRepo) byKind(kind domain.AlertKind) []*domain.Alert {
	var out []*domain.Alert
	for _, alert := range r.alerts {
		if alert.Kind == kind {
			out = append(out, alert)
		}
	}
	return out
}

type fakeCursorRepo struct {
	cursor domain.IngestionCursor
}

func newFakeCursorRepo() *fakeCursorRepo { return &fakeCursorRepo{} }

func (r *fakeCursorRepo) Get(ctx context.Context) (*domain.IngestionCursor, error) {
	copied := r.cursor
	copied.PendingPushes = append([]domain.StatusPush(nil), r.cursor.PendingPushes...)
	return &copied, nil
}

func (r *fakeCursorRepo) Save(ctx context.Context, cursor *domain.IngestionCursor) error {
	r.cursor = *cursor
	return nil
}

type fakeStationRepo struct {
	stations []domain.Workstation
}

func newFakeStationRepo() *fakeStationRepo {
	return &fakeStationRepo{stations: domain.CanonicalWorkstations()}
}

func (r *fakeStationRepo) List(ctx context.Context, activeOnly bool) ([]domain.Workstation, error) {
	var out []domain.Workstation
	for _, station := range r.stations {
		if activeOnly && !station.Active {
			continue
		}
		out = append(out, station)
	}
	return out, nil
}

func (r *fakeStationRepo) FindByStationID(ctx context.Context, stationID string) (*domain.Workstation, error) {
	for i := range r.stations {
		if r.stations[i].StationID == stationID {
			return &r.stations[i], nil
		}
	}
	return nil, nil
}

func (r *fakeStationRepo) SeedIfEmpty(ctx context.Context, stations []domain.Workstation) error {
	if len(r.stations) == 0 {
		r.stations = stations
	}
	return nil
}

type fakeLockManager struct {
	mu   sync.Mutex
	held map[string]bool
}

func newFakeLockManager() *fakeLockManager {
	return &fakeLockManager{held: make(map[string]bool)}
}

func (m *fakeLockManager) TryAcquire(ctx context.Context, name string, ttl time.Duration) (domain.ReleaseFunc, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[name] {
		return nil, false, nil
	}
	m.held[name] = true
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.held, name)
	}, true, nil
}

// holdLock grabs a lock out-of-band to provoke busy responses
func (m *fakeLockManager) holdLock(name string) domain.ReleaseFunc {
	release, _, _ := m.TryAcquire(context.Background(), name, time.Minute)
	return release
}

type fakePublisher struct {
	events []domain.DomainEvent
}

func (p *fakePublisher) PublishAll(ctx context.Context, events []domain.DomainEvent) error {
	p.events = append(p.events, events...)
	return nil
}

func (p *fakePublisher) typesSeen() []string {
	out := make([]string, len(p.events))
	for i, event := range p.events {
		out[i] = event.EventType()
	}
	return out
}

type fakeMarketplace struct {
	orders       map[string]*domain.MarketplaceOrder
	fetchErr     error
	setStatusErr error
	statusCalls  []string // "orderID=statusID"
}

func newFakeMarketplace() *fakeMarketplace {
	return &fakeMarketplace{orders: make(map[string]*domain.MarketplaceOrder)}
}

func (m *fakeMarketplace) FetchOrders(ctx context.Context, query domain.OrderQuery) (*domain.OrderPage, error) {
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	page := &domain.OrderPage{}
	ids := make([]string, 0, len(m.orders))
	for id := range m.orders {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		page.Orders = append(page.Orders, *m.orders[id])
	}
	return page, nil
}

func (m *fakeMarketplace) FetchOrder(ctx context.Context, orderID string) (*domain.MarketplaceOrder, error) {
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	order, ok := m.orders[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return order, nil
}

func (m *fakeMarketplace) ListStatuses(ctx context.Context) ([]domain.MarketplaceStatus, error) {
	return nil, nil
}

func (m *fakeMarketplace) SetStatus(ctx context.Context, orderID, statusID string) error {
	if m.setStatusErr != nil {
		return m.setStatusErr
	}
	m.statusCalls = append(m.statusCalls, orderID+"="+statusID)
	return nil
}

func (m *fakeMarketplace) pushesFor(orderID string) []string {
	var out []string
	for _, call := range m.statusCalls {
		if strings.HasPrefix(call, orderID+"=") {
			out = append(out, call)
		}
	}
	return out
}
