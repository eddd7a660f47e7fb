package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/panelworks/production-engine/internal/config"
	"github.com/panelworks/production-engine/internal/domain"
	"github.com/panelworks/production-engine/pkg/metrics"
)

// AlertingService runs the read-only detectors: deadline breaches, queue
// overload and stuck stages. Emission is idempotent per (entity, kind, day)
// through the alert store's unique key; detectors never mutate tasks.
type AlertingService struct {
	tasks     domain.TaskRepository
	stations  domain.WorkstationRepository
	alerts    domain.AlertRepository
	publisher domain.EventPublisher
	metrics   *metrics.Metrics
	clock     domain.Clock
	logger    *slog.Logger
	cfg       config.AlertsConfig
}

// NewAlertingService creates the alerting service
func NewAlertingService(
	tasks domain.TaskRepository,
	stations domain.WorkstationRepository,
	alerts domain.AlertRepository,
	publisher domain.EventPublisher,
	m *metrics.Metrics,
	clock domain.Clock,
	logger *slog.Logger,
	cfg config.AlertsConfig,
) *AlertingService {
	return &AlertingService{
		tasks:     tasks,
		stations:  stations,
		alerts:    alerts,
		publisher: publisher,
		metrics:   m,
		clock:     clock,
		logger:    logger.With("component", "alerting_service"),
		cfg:       cfg,
	}
}

// RunDetectors runs every detector once and returns the number of newly
// emitted alerts.
func (s *AlertingService) RunDetectors(ctx context.Context) (int, error) {
	tasks, err := s.tasks.FindNonTerminal(ctx)
	if err != nil {
		return 0, err
	}
	now := s.clock.Now()

	emitted := 0
	emitted += s.detectDeadlineBreaches(ctx, tasks, now)
	emitted += s.detectQueueOverload(ctx, tasks, now)
	emitted += s.detectStuckStages(ctx, tasks, now)

	s.logger.Info("alert detectors complete", "tasks", len(tasks), "emitted", emitted)
	return emitted, nil
}

// detectDeadlineBreaches tiers non-terminal tasks by days until their
// estimated completion date: within two days warns, due today is urgent,
// overdue is critical.
func (s *AlertingService) detectDeadlineBreaches(ctx context.Context, tasks []*domain.ProductionTask, now time.Time) int {
	today := truncateToDay(now)

	emitted := 0
	for _, task := range tasks {
		if task.EstimatedCompletionDate == nil {
			continue
		}
		due := truncateToDay(*task.EstimatedCompletionDate)
		days := int(due.Sub(today).Hours() / 24)

		var kind domain.AlertKind
		switch {
		case days < 0:
			kind = domain.AlertDelayCritical
		case days == 0:
			kind = domain.AlertDelayUrgent
		case days <= 2:
			kind = domain.AlertDelayWarning
		default:
			continue
		}

		alert := domain.NewAlert(
			kind,
			"task/"+task.TaskID,
			fmt.Sprintf("Task %s deadline %s", task.TaskID, breachWord(days)),
			fmt.Sprintf("%s (order %s) is due %s; status %s",
				task.Attributes.ProductName, task.MarketplaceOrderID,
				due.Format("2006-01-02"), task.Status),
			now,
		).ForTask(task.TaskID)

		if s.emit(ctx, alert) {
			emitted++
		}
	}
	return emitted
}

// detectQueueOverload counts non-terminal tasks per current workstation and
// flags stations whose queue exceeds the configured threshold.
func (s *AlertingService) detectQueueOverload(ctx context.Context, tasks []*domain.ProductionTask, now time.Time) int {
	counts := make(map[string]int)
	for _, task := range tasks {
		if stage := task.CurrentStage(); stage != nil {
			counts[stage.WorkstationID]++
		}
	}

	stations, err := s.stations.List(ctx, true)
	if err != nil {
		s.logger.Error("failed to list workstations", "error", err)
		return 0
	}

	emitted := 0
	for _, station := range stations {
		count := counts[station.StationID]
		if count <= s.cfg.OverloadThreshold {
			continue
		}

		alert := domain.NewAlert(
			domain.AlertQueueOverload,
			"station/"+station.StationID,
			fmt.Sprintf("Queue overload at %s", station.Name),
			fmt.Sprintf("%d tasks are queued at %s (threshold %d)",
				count, station.Name, s.cfg.OverloadThreshold),
			now,
		)
		if s.emit(ctx, alert) {
			emitted++
		}
	}
	return emitted
}

// detectStuckStages flags stages in progress longer than the configured
// ceiling.
func (s *AlertingService) detectStuckStages(ctx context.Context, tasks []*domain.ProductionTask, now time.Time) int {
	ceiling := time.Duration(s.cfg.StuckHours) * time.Hour

	emitted := 0
	for _, task := range tasks {
		stage := task.InProgressStage()
		if stage == nil || stage.StartedAt == nil {
			continue
		}
		if now.Sub(*stage.StartedAt) <= ceiling {
			continue
		}

		alert := domain.NewAlert(
			domain.AlertStuckTask,
			"task/"+task.TaskID,
			fmt.Sprintf("Task %s stuck at %s", task.TaskID, stage.WorkstationID),
			fmt.Sprintf("stage %d has been in progress since %s",
				stage.SequenceInTask, stage.StartedAt.Format(time.RFC3339)),
			now,
		).ForTask(task.TaskID)
		if s.emit(ctx, alert) {
			emitted++
		}
	}
	return emitted
}

// ListUnread returns unread alerts for the operator UI
func (s *AlertingService) ListUnread(ctx context.Context, limit int) ([]AlertView, error) {
	alerts, err := s.alerts.ListUnread(ctx, limit)
	if err != nil {
		return nil, err
	}
	views := make([]AlertView, 0, len(alerts))
	for _, alert := range alerts {
		views = append(views, NewAlertView(alert))
	}
	return views, nil
}

// MarkRead flags one alert as read
func (s *AlertingService) MarkRead(ctx context.Context, alertID string) error {
	return s.alerts.MarkRead(ctx, alertID, s.clock.Now())
}

// emit writes the alert and, when it is new, counts it and mirrors it onto
// the event stream.
func (s *AlertingService) emit(ctx context.Context, alert *domain.Alert) bool {
	inserted, err := s.alerts.Emit(ctx, alert)
	if err != nil {
		s.logger.Error("failed to emit alert",
			"kind", alert.Kind, "entity", alert.Entity, "error", err)
		return false
	}
	if !inserted {
		return false
	}

	if s.metrics != nil {
		s.metrics.AlertsEmitted.WithLabelValues(string(alert.Kind)).Inc()
	}
	if s.publisher != nil {
		event := domain.NewAlertRaisedEvent(alert)
		if err := s.publisher.PublishAll(ctx, []domain.DomainEvent{event}); err != nil {
			s.logger.Warn("failed to publish alert event", "entity", alert.Entity, "error", err)
		}
	}
	return true
}

func breachWord(days int) string {
	switch {
	case days < 0:
		return "overdue"
	case days == 0:
		return "due today"
	default:
		return fmt.Sprintf("due in %d days", days)
	}
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
