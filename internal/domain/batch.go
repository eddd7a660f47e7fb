package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Errors for the ProductionBatch aggregate
var (
	ErrTaskAlreadyInBatch = errors.New("task already belongs to the batch")
	ErrBatchTerminal      = errors.New("batch is in a terminal state")
)

// BatchStatus represents the batch lifecycle state
type BatchStatus string

const (
	BatchPlanned    BatchStatus = "planned"
	BatchInProgress BatchStatus = "in_progress"
	BatchCompleted  BatchStatus = "completed"
	BatchCancelled  BatchStatus = "cancelled"
)

// BatchMember associates a task with a batch at a position
type BatchMember struct {
	TaskID          string `bson:"taskId" json:"taskId"`
	SequenceInBatch int    `bson:"sequenceInBatch" json:"sequenceInBatch"`
}

// ProductionBatch groups tasks sharing species and technology on one
// ingestion day.
type ProductionBatch struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	BatchID     string             `bson:"batchId" json:"batchId"`
	Name        string             `bson:"name" json:"name"`
	WoodSpecies WoodSpecies        `bson:"woodSpecies" json:"woodSpecies"`
	Technology  Technology         `bson:"technology" json:"technology"`
	BatchDate   string             `bson:"batchDate" json:"batchDate"` // YYYY-MM-DD
	Ordinal     int                `bson:"ordinal" json:"ordinal"`

	PlannedStartDate     *time.Time `bson:"plannedStartDate,omitempty" json:"plannedStartDate,omitempty"`
	ActualStartDate      *time.Time `bson:"actualStartDate,omitempty" json:"actualStartDate,omitempty"`
	ActualCompletionDate *time.Time `bson:"actualCompletionDate,omitempty" json:"actualCompletionDate,omitempty"`

	Status             BatchStatus   `bson:"status" json:"status"`
	TaskCount          int           `bson:"taskCount" json:"taskCount"`
	CompletedTaskCount int           `bson:"completedTaskCount" json:"completedTaskCount"`
	Members            []BatchMember `bson:"members" json:"members"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`

	domainEvents []DomainEvent `bson:"-" json:"-"`
}

// BatchName builds the deterministic batch name, e.g. "OAK-FIN-007"
func BatchName(species WoodSpecies, technology Technology, ordinal int) string {
	tech := strings.ToUpper(strings.ReplaceAll(string(technology), "-", ""))
	if len(tech) > 3 {
		tech = tech[:3]
	}
	return fmt.Sprintf("%s-%s-%03d", strings.ToUpper(string(species)), tech, ordinal)
}

// NewProductionBatch creates a planned batch for a (species, technology, day) group
func NewProductionBatch(batchID string, species WoodSpecies, technology Technology, batchDate string, ordinal int, now time.Time) *ProductionBatch {
	return &ProductionBatch{
		ID:           primitive.NewObjectID(),
		BatchID:      batchID,
		Name:         BatchName(species, technology, ordinal),
		WoodSpecies:  species,
		Technology:   technology,
		BatchDate:    batchDate,
		Ordinal:      ordinal,
		Status:       BatchPlanned,
		Members:      make([]BatchMember, 0),
		CreatedAt:    now,
		UpdatedAt:    now,
		domainEvents: make([]DomainEvent, 0),
	}
}

// AddTask appends a task at the next membership sequence
func (b *ProductionBatch) AddTask(taskID string, now time.Time) error {
	if b.Status == BatchCompleted || b.Status == BatchCancelled {
		return ErrBatchTerminal
	}
	for _, m := range b.Members {
		if m.TaskID == taskID {
			return ErrTaskAlreadyInBatch
		}
	}

	b.Members = append(b.Members, BatchMember{
		TaskID:          taskID,
		SequenceInBatch: len(b.Members) + 1,
	})
	b.TaskCount = len(b.Members)
	b.UpdatedAt = now
	return nil
}

// RecordTaskStarted moves a planned batch into progress
func (b *ProductionBatch) RecordTaskStarted(now time.Time) {
	if b.Status == BatchPlanned {
		b.Status = BatchInProgress
		b.ActualStartDate = &now
		b.UpdatedAt = now
	}
}

// RecordTaskCompleted bumps the completion counter and closes the batch
// when every member is done.
func (b *ProductionBatch) RecordTaskCompleted(now time.Time) {
	if b.CompletedTaskCount < b.TaskCount {
		b.CompletedTaskCount++
	}
	b.UpdatedAt = now

	if b.TaskCount > 0 && b.CompletedTaskCount == b.TaskCount {
		b.Status = BatchCompleted
		b.ActualCompletionDate = &now
		b.addDomainEvent(NewBatchCompletedEvent(b))
	}
}

// Contains reports membership of a task
func (b *ProductionBatch) Contains(taskID string) bool {
	for _, m := range b.Members {
		if m.TaskID == taskID {
			return true
		}
	}
	return false
}

func (b *ProductionBatch) addDomainEvent(event DomainEvent) {
	b.domainEvents = append(b.domainEvents, event)
}

// DomainEvents returns all pending domain events
func (b *ProductionBatch) DomainEvents() []DomainEvent {
	return b.domainEvents
}

// ClearDomainEvents clears all pending domain events
func (b *ProductionBatch) ClearDomainEvents() {
	b.domainEvents = make([]DomainEvent, 0)
}
