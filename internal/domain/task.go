package domain

import (
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Errors for the ProductionTask aggregate. All of them map to
// PRECONDITION_FAILED at the application boundary.
var (
	ErrTaskTerminal      = errors.New("task is in a terminal state")
	ErrTaskOnHold        = errors.New("task is on hold")
	ErrTaskNotOnHold     = errors.New("task is not on hold")
	ErrNoPendingStage    = errors.New("task has no pending stage")
	ErrStageInProgress   = errors.New("task already has a stage in progress")
	ErrNoStageInProgress = errors.New("task has no stage in progress")
	ErrNoStages          = errors.New("task has no stage records")
)

// SentinelPriority is assigned to freshly ingested tasks so the priority
// engine ranks them on its next pass.
const SentinelPriority = 1_000_000

// TaskStatus represents the task lifecycle state
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskOnHold     TaskStatus = "on_hold"
	TaskCompleted  TaskStatus = "completed"
	TaskCancelled  TaskStatus = "cancelled"
)

// IsTerminal reports whether the status admits no further transitions
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskCancelled
}

// StageStatus represents a stage record's sub-lifecycle state
type StageStatus string

const (
	StagePending    StageStatus = "pending"
	StageInProgress StageStatus = "in_progress"
	StageCompleted  StageStatus = "completed"
	StageSkipped    StageStatus = "skipped"
)

// IsTerminal reports whether the stage status is terminal
func (s StageStatus) IsTerminal() bool {
	return s == StageCompleted || s == StageSkipped
}

// StageRecord is a task's passage through one workstation
type StageRecord struct {
	WorkstationID    string      `bson:"workstationId" json:"workstationId"`
	WorkstationName  string      `bson:"workstationName" json:"workstationName"`
	SequenceInTask   int         `bson:"sequenceInTask" json:"sequenceInTask"`
	Status           StageStatus `bson:"status" json:"status"`
	EstimatedMinutes int         `bson:"estimatedMinutes" json:"estimatedMinutes"`
	StartedAt        *time.Time  `bson:"startedAt,omitempty" json:"startedAt,omitempty"`
	CompletedAt      *time.Time  `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
	DurationSeconds  int64       `bson:"durationSeconds,omitempty" json:"durationSeconds,omitempty"`
	WorkerID         string      `bson:"workerId,omitempty" json:"workerId,omitempty"`
	TabletID         string      `bson:"tabletId,omitempty" json:"tabletId,omitempty"`
	Notes            string      `bson:"notes,omitempty" json:"notes,omitempty"`
}

// ProductionTask is the aggregate root for one physical unit of work,
// corresponding to one product line-item of one marketplace order. The task
// exclusively owns its stage records.
type ProductionTask struct {
	ID                   primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TaskID               string             `bson:"taskId" json:"taskId"`
	MarketplaceOrderID   string             `bson:"marketplaceOrderId" json:"marketplaceOrderId"`
	MarketplaceProductID string             `bson:"marketplaceProductId" json:"marketplaceProductId"`

	Attributes Attributes `bson:"attributes" json:"attributes"`
	Quantity   int        `bson:"quantity" json:"quantity"`

	PriorityOrder           int        `bson:"priorityOrder" json:"priorityOrder"`
	EstimatedCompletionDate *time.Time `bson:"estimatedCompletionDate,omitempty" json:"estimatedCompletionDate,omitempty"`
	ActualStartAt           *time.Time `bson:"actualStartAt,omitempty" json:"actualStartAt,omitempty"`
	ActualCompletionAt      *time.Time `bson:"actualCompletionAt,omitempty" json:"actualCompletionAt,omitempty"`

	Status TaskStatus    `bson:"status" json:"status"`
	Stages []StageRecord `bson:"stages" json:"stages"`

	BatchID          string `bson:"batchId,omitempty" json:"batchId,omitempty"`
	ShowOnClientPage bool   `bson:"showOnClientPage" json:"showOnClientPage"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`

	// Domain events - transient, not persisted
	domainEvents []DomainEvent `bson:"-" json:"-"`
}

// NewProductionTask creates a pending task with pending stage records for the
// given planned workstation sequence.
func NewProductionTask(
	taskID string,
	marketplaceOrderID string,
	marketplaceProductID string,
	attrs Attributes,
	quantity int,
	stages []StageRecord,
	estimatedCompletion *time.Time,
	now time.Time,
) (*ProductionTask, error) {
	if quantity < 1 {
		quantity = 1
	}
	if len(stages) == 0 {
		return nil, ErrNoStages
	}
	if !attrs.WoodSpecies.IsValid() {
		attrs.WoodSpecies = SpeciesOther
	}
	if !attrs.Technology.IsValid() {
		attrs.Technology = TechnologyFingerJoined
	}

	for i := range stages {
		stages[i].SequenceInTask = i + 1
		stages[i].Status = StagePending
	}

	task := &ProductionTask{
		ID:                      primitive.NewObjectID(),
		TaskID:                  taskID,
		MarketplaceOrderID:      marketplaceOrderID,
		MarketplaceProductID:    marketplaceProductID,
		Attributes:              attrs,
		Quantity:                quantity,
		PriorityOrder:           SentinelPriority,
		EstimatedCompletionDate: estimatedCompletion,
		Status:                  TaskPending,
		Stages:                  stages,
		ShowOnClientPage:        true,
		CreatedAt:               now,
		UpdatedAt:               now,
		domainEvents:            make([]DomainEvent, 0),
	}

	task.addDomainEvent(NewTaskCreatedEvent(task))

	return task, nil
}

// InProgressStage returns the stage currently in progress, or nil
func (t *ProductionTask) InProgressStage() *StageRecord {
	for i := range t.Stages {
		if t.Stages[i].Status == StageInProgress {
			return &t.Stages[i]
		}
	}
	return nil
}

// NextPendingStage returns the first pending stage by sequence, or nil
func (t *ProductionTask) NextPendingStage() *StageRecord {
	var next *StageRecord
	for i := range t.Stages {
		s := &t.Stages[i]
		if s.Status != StagePending {
			continue
		}
		if next == nil || s.SequenceInTask < next.SequenceInTask {
			next = s
		}
	}
	return next
}

// CurrentStage returns the stage a shop-floor queue should show for this
// task: the in-progress stage if any, otherwise the first pending stage.
func (t *ProductionTask) CurrentStage() *StageRecord {
	if s := t.InProgressStage(); s != nil {
		return s
	}
	return t.NextPendingStage()
}

// StartStage marks the first pending stage in progress. If the task was
// pending it transitions to in_progress and actual_start_at snaps to the
// stage's started_at.
func (t *ProductionTask) StartStage(tabletID, workerID string, now time.Time) (*StageRecord, error) {
	if t.Status.IsTerminal() {
		return nil, ErrTaskTerminal
	}
	if t.Status == TaskOnHold {
		return nil, ErrTaskOnHold
	}
	if t.InProgressStage() != nil {
		return nil, ErrStageInProgress
	}

	stage := t.NextPendingStage()
	if stage == nil {
		return nil, ErrNoPendingStage
	}

	stage.Status = StageInProgress
	stage.StartedAt = &now
	stage.TabletID = tabletID
	stage.WorkerID = workerID

	if t.Status == TaskPending {
		t.Status = TaskInProgress
		t.ActualStartAt = &now
		t.addDomainEvent(NewTaskStartedEvent(t, stage))
	}
	t.UpdatedAt = now

	return stage, nil
}

// CompleteStage completes the in-progress stage and, when no pending stages
// remain, completes the whole task. The task's actual_completion_at equals
// the last stage's completed_at.
func (t *ProductionTask) CompleteStage(notes string, now time.Time) (stage *StageRecord, taskCompleted bool, err error) {
	if t.Status.IsTerminal() {
		return nil, false, ErrTaskTerminal
	}

	stage = t.InProgressStage()
	if stage == nil {
		return nil, false, ErrNoStageInProgress
	}

	stage.Status = StageCompleted
	stage.CompletedAt = &now
	if stage.StartedAt != nil {
		stage.DurationSeconds = int64(now.Sub(*stage.StartedAt).Seconds())
	}
	if notes != "" {
		stage.Notes = notes
	}

	if t.NextPendingStage() == nil {
		t.Status = TaskCompleted
		t.ActualCompletionAt = &now
		taskCompleted = true
		t.addDomainEvent(NewTaskCompletedEvent(t))
	} else {
		t.addDomainEvent(NewStageCompletedEvent(t, stage))
	}
	t.UpdatedAt = now

	return stage, taskCompleted, nil
}

// Pause reverts the in-progress stage to pending and puts the task on hold.
// The stage note is prefixed so the pause survives in the audit trail.
func (t *ProductionTask) Pause(reason string, now time.Time) (*StageRecord, error) {
	if t.Status != TaskInProgress {
		return nil, ErrNoStageInProgress
	}

	stage := t.InProgressStage()
	if stage == nil {
		return nil, ErrNoStageInProgress
	}

	stage.Status = StagePending
	stage.StartedAt = nil
	stage.Notes = fmt.Sprintf("PAUSED: %s", reason)

	t.Status = TaskOnHold
	t.UpdatedAt = now

	return stage, nil
}

// Resume lifts the hold; the next StartStage reactivates the first pending stage
func (t *ProductionTask) Resume(now time.Time) error {
	if t.Status != TaskOnHold {
		return ErrTaskNotOnHold
	}

	t.Status = TaskInProgress
	t.UpdatedAt = now
	return nil
}

// Cancel transitions the task to cancelled. Stage records are left untouched
// for audit; the task stays visible on the client page.
func (t *ProductionTask) Cancel(reason string, now time.Time) error {
	if t.Status.IsTerminal() {
		return ErrTaskTerminal
	}

	t.Status = TaskCancelled
	t.UpdatedAt = now
	t.addDomainEvent(NewTaskCancelledEvent(t, reason))
	return nil
}

// CheckInvariants detects post-read invariant violations. The caller must
// not auto-repair; a DATA_INCONSISTENCY alert is the only legal reaction.
func (t *ProductionTask) CheckInvariants() error {
	inProgress := 0
	seen := make(map[int]bool, len(t.Stages))
	for i := range t.Stages {
		s := &t.Stages[i]
		if s.Status == StageInProgress {
			inProgress++
		}
		if seen[s.SequenceInTask] {
			return fmt.Errorf("task %s: duplicate stage sequence %d", t.TaskID, s.SequenceInTask)
		}
		seen[s.SequenceInTask] = true
	}
	for i := 1; i <= len(t.Stages); i++ {
		if !seen[i] {
			return fmt.Errorf("task %s: stage sequence %d missing", t.TaskID, i)
		}
	}

	if inProgress > 1 {
		return fmt.Errorf("task %s: %d stages in progress", t.TaskID, inProgress)
	}
	if t.Status == TaskPending && inProgress > 0 {
		return fmt.Errorf("task %s: pending task with an in-progress stage", t.TaskID)
	}
	if t.Status == TaskCompleted {
		if t.ActualCompletionAt == nil {
			return fmt.Errorf("task %s: completed without completion timestamp", t.TaskID)
		}
		for i := range t.Stages {
			if !t.Stages[i].Status.IsTerminal() {
				return fmt.Errorf("task %s: completed with non-terminal stage %d", t.TaskID, t.Stages[i].SequenceInTask)
			}
		}
	}
	return nil
}

// addDomainEvent adds a domain event to the task
func (t *ProductionTask) addDomainEvent(event DomainEvent) {
	t.domainEvents = append(t.domainEvents, event)
}

// DomainEvents returns all pending domain events
func (t *ProductionTask) DomainEvents() []DomainEvent {
	return t.domainEvents
}

// ClearDomainEvents clears all pending domain events
func (t *ProductionTask) ClearDomainEvents() {
	t.domainEvents = make([]DomainEvent, 0)
}
