package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AlertKind is the closed set of alert kinds
type AlertKind string

const (
	AlertDelayWarning     AlertKind = "delay_warning"
	AlertDelayUrgent      AlertKind = "delay_urgent"
	AlertDelayCritical    AlertKind = "delay_critical"
	AlertQueueOverload    AlertKind = "queue_overload"
	AlertStuckTask        AlertKind = "stuck_task"
	AlertCompletionNotice AlertKind = "completion_notice"
	AlertSystemError      AlertKind = "system_error"
)

// Alert is an emitted observation requiring attention. For a given
// (entity, kind, calendar-day) at most one alert exists; the repository
// enforces the idempotence key with a unique index.
type Alert struct {
	ID     primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Kind   AlertKind          `bson:"kind" json:"kind"`
	Entity string             `bson:"entity" json:"entity"` // e.g. "task/TASK-1234", "station/cut", "job/ingest"
	Day    string             `bson:"day" json:"day"`       // YYYY-MM-DD idempotence component

	Title   string `bson:"title" json:"title"`
	Message string `bson:"message" json:"message"`

	RelatedTaskID  string `bson:"relatedTaskId,omitempty" json:"relatedTaskId,omitempty"`
	RelatedBatchID string `bson:"relatedBatchId,omitempty" json:"relatedBatchId,omitempty"`

	// Email marks urgent/critical alerts for the external mail consumer
	Email  bool `bson:"email" json:"email"`
	IsRead bool `bson:"isRead" json:"isRead"`

	CreatedAt time.Time  `bson:"createdAt" json:"createdAt"`
	ReadAt    *time.Time `bson:"readAt,omitempty" json:"readAt,omitempty"`
}

// NewAlert creates an alert keyed for the given entity and day
func NewAlert(kind AlertKind, entity, title, message string, now time.Time) *Alert {
	return &Alert{
		ID:        primitive.NewObjectID(),
		Kind:      kind,
		Entity:    entity,
		Day:       now.Format("2006-01-02"),
		Title:     title,
		Message:   message,
		Email:     kind == AlertDelayUrgent || kind == AlertDelayCritical,
		CreatedAt: now,
	}
}

// ForTask links the alert to a task
func (a *Alert) ForTask(taskID string) *Alert {
	a.RelatedTaskID = taskID
	return a
}

// ForBatch links the alert to a batch
func (a *Alert) ForBatch(batchID string) *Alert {
	a.RelatedBatchID = batchID
	return a
}
