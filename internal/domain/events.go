package domain

import "time"

// DomainEvent is implemented by all production domain events
type DomainEvent interface {
	EventType() string
	OccurredAt() time.Time
	Subject() string
}

type baseEvent struct {
	Type string    `json:"type"`
	At   time.Time `json:"occurredAt"`
	Subj string    `json:"subject"`
}

func (e baseEvent) EventType() string     { return e.Type }
func (e baseEvent) OccurredAt() time.Time { return e.At }
func (e baseEvent) Subject() string       { return e.Subj }

// TaskCreatedEvent is emitted when a task is materialised from a marketplace order
type TaskCreatedEvent struct {
	baseEvent
	TaskID             string      `json:"taskId"`
	MarketplaceOrderID string      `json:"marketplaceOrderId"`
	WoodSpecies        WoodSpecies `json:"woodSpecies"`
	Technology         Technology  `json:"technology"`
	Quantity           int         `json:"quantity"`
	StageCount         int         `json:"stageCount"`
}

// NewTaskCreatedEvent creates a TaskCreatedEvent
func NewTaskCreatedEvent(t *ProductionTask) *TaskCreatedEvent {
	return &TaskCreatedEvent{
		baseEvent:          baseEvent{Type: "production.task.created", At: t.CreatedAt, Subj: "task/" + t.TaskID},
		TaskID:             t.TaskID,
		MarketplaceOrderID: t.MarketplaceOrderID,
		WoodSpecies:        t.Attributes.WoodSpecies,
		Technology:         t.Attributes.Technology,
		Quantity:           t.Quantity,
		StageCount:         len(t.Stages),
	}
}

// TaskStartedEvent is emitted on the first transition out of pending
type TaskStartedEvent struct {
	baseEvent
	TaskID        string `json:"taskId"`
	WorkstationID string `json:"workstationId"`
	WorkerID      string `json:"workerId,omitempty"`
}

// NewTaskStartedEvent creates a TaskStartedEvent
func NewTaskStartedEvent(t *ProductionTask, stage *StageRecord) *TaskStartedEvent {
	return &TaskStartedEvent{
		baseEvent:     baseEvent{Type: "production.task.started", At: t.UpdatedAt, Subj: "task/" + t.TaskID},
		TaskID:        t.TaskID,
		WorkstationID: stage.WorkstationID,
		WorkerID:      stage.WorkerID,
	}
}

// StageCompletedEvent is emitted when a non-final stage completes
type StageCompletedEvent struct {
	baseEvent
	TaskID          string `json:"taskId"`
	WorkstationID   string `json:"workstationId"`
	SequenceInTask  int    `json:"sequenceInTask"`
	DurationSeconds int64  `json:"durationSeconds"`
}

// NewStageCompletedEvent creates a StageCompletedEvent
func NewStageCompletedEvent(t *ProductionTask, stage *StageRecord) *StageCompletedEvent {
	return &StageCompletedEvent{
		baseEvent:       baseEvent{Type: "production.stage.completed", At: t.UpdatedAt, Subj: "task/" + t.TaskID},
		TaskID:          t.TaskID,
		WorkstationID:   stage.WorkstationID,
		SequenceInTask:  stage.SequenceInTask,
		DurationSeconds: stage.DurationSeconds,
	}
}

// TaskCompletedEvent is emitted when the final stage completes
type TaskCompletedEvent struct {
	baseEvent
	TaskID             string `json:"taskId"`
	MarketplaceOrderID string `json:"marketplaceOrderId"`
	BatchID            string `json:"batchId,omitempty"`
}

// NewTaskCompletedEvent creates a TaskCompletedEvent
func NewTaskCompletedEvent(t *ProductionTask) *TaskCompletedEvent {
	return &TaskCompletedEvent{
		baseEvent:          baseEvent{Type: "production.task.completed", At: t.UpdatedAt, Subj: "task/" + t.TaskID},
		TaskID:             t.TaskID,
		MarketplaceOrderID: t.MarketplaceOrderID,
		BatchID:            t.BatchID,
	}
}

// TaskCancelledEvent is emitted on cancellation
type TaskCancelledEvent struct {
	baseEvent
	TaskID string `json:"taskId"`
	Reason string `json:"reason"`
}

// NewTaskCancelledEvent creates a TaskCancelledEvent
func NewTaskCancelledEvent(t *ProductionTask, reason string) *TaskCancelledEvent {
	return &TaskCancelledEvent{
		baseEvent: baseEvent{Type: "production.task.cancelled", At: t.UpdatedAt, Subj: "task/" + t.TaskID},
		TaskID:    t.TaskID,
		Reason:    reason,
	}
}

// BatchCompletedEvent is emitted when every task of a batch completed
type BatchCompletedEvent struct {
	baseEvent
	BatchID   string `json:"batchId"`
	Name      string `json:"name"`
	TaskCount int    `json:"taskCount"`
}

// NewBatchCompletedEvent creates a BatchCompletedEvent
func NewBatchCompletedEvent(b *ProductionBatch) *BatchCompletedEvent {
	return &BatchCompletedEvent{
		baseEvent: baseEvent{Type: "production.batch.completed", At: b.UpdatedAt, Subj: "batch/" + b.BatchID},
		BatchID:   b.BatchID,
		Name:      b.Name,
		TaskCount: b.TaskCount,
	}
}

// AlertRaisedEvent mirrors a newly emitted alert
type AlertRaisedEvent struct {
	baseEvent
	Kind    AlertKind `json:"kind"`
	Title   string    `json:"title"`
	Entity  string    `json:"entity"`
	IsEmail bool      `json:"email"`
}

// NewAlertRaisedEvent creates an AlertRaisedEvent
func NewAlertRaisedEvent(a *Alert) *AlertRaisedEvent {
	return &AlertRaisedEvent{
		baseEvent: baseEvent{Type: "production.alert.raised", At: a.CreatedAt, Subj: "alert/" + a.Entity},
		Kind:      a.Kind,
		Title:     a.Title,
		Entity:    a.Entity,
		IsEmail:   a.Email,
	}
}
