package application

import (
	"time"

	"github.com/panelworks/production-engine/internal/domain"
)

// TaskView is the tablet queue view-model for one task
type TaskView struct {
	TaskID             string     `json:"taskId"`
	MarketplaceOrderID string     `json:"marketplaceOrderId"`
	ProductName        string     `json:"productName"`
	ProductType        string     `json:"productType"`
	WoodSpecies        string     `json:"woodSpecies"`
	Technology         string     `json:"technology"`
	WoodClass          string     `json:"woodClass"`
	DimensionsText     string     `json:"dimensionsText,omitempty"`
	Quantity           int        `json:"quantity"`
	PriorityOrder      int        `json:"priorityOrder"`
	Status             string     `json:"status"`
	BatchID            string     `json:"batchId,omitempty"`
	CurrentStation     string     `json:"currentStation,omitempty"`
	CurrentStageStatus string     `json:"currentStageStatus,omitempty"`
	EstimatedMinutes   int        `json:"estimatedMinutes,omitempty"`
	EstimatedDate      *time.Time `json:"estimatedCompletionDate,omitempty"`
	CoatingType        string     `json:"coatingType,omitempty"`
	CoatingColor       string     `json:"coatingColor,omitempty"`
	CoatingGloss       string     `json:"coatingGloss,omitempty"`
	CoatingNotes       string     `json:"coatingNotes,omitempty"`
}

// NewTaskView maps a task to its queue view-model
func NewTaskView(task *domain.ProductionTask) TaskView {
	view := TaskView{
		TaskID:             task.TaskID,
		MarketplaceOrderID: task.MarketplaceOrderID,
		ProductName:        task.Attributes.ProductName,
		ProductType:        task.Attributes.ProductType,
		WoodSpecies:        string(task.Attributes.WoodSpecies),
		Technology:         string(task.Attributes.Technology),
		WoodClass:          string(task.Attributes.WoodClass),
		DimensionsText:     task.Attributes.DimensionsText,
		Quantity:           task.Quantity,
		PriorityOrder:      task.PriorityOrder,
		Status:             string(task.Status),
		BatchID:            task.BatchID,
		EstimatedDate:      task.EstimatedCompletionDate,
		CoatingType:        task.Attributes.CoatingType,
		CoatingColor:       task.Attributes.CoatingColor,
		CoatingGloss:       task.Attributes.CoatingGloss,
		CoatingNotes:       task.Attributes.CoatingNotes,
	}
	if stage := task.CurrentStage(); stage != nil {
		view.CurrentStation = stage.WorkstationID
		view.CurrentStageStatus = string(stage.Status)
		view.EstimatedMinutes = stage.EstimatedMinutes
	}
	return view
}

// StartStageResult reports a successful start_stage operation
type StartStageResult struct {
	TaskID  string `json:"taskId"`
	Station string `json:"station"`
	Message string `json:"message"`
}

// CompleteStageResult reports a successful complete_stage operation
type CompleteStageResult struct {
	TaskID        string `json:"taskId"`
	NextStation   string `json:"nextStation,omitempty"`
	TaskCompleted bool   `json:"taskCompleted"`
}

// PauseResult reports a successful pause operation
type PauseResult struct {
	TaskID  string `json:"taskId"`
	Station string `json:"station"`
	Reason  string `json:"reason"`
}

// ReorderResult reports a queue reorder
type ReorderResult struct {
	UpdatedCount int `json:"updatedCount"`
}

// IngestResult is the outcome record of one ingestion run
type IngestResult struct {
	Fetched         int `json:"fetched"`
	NewOrders       int `json:"newOrders"`
	NewTasks        int `json:"newTasks"`
	SkippedExisting int `json:"skippedExisting"`
	Errors          int `json:"errors"`
}

// ReconcileResult is the outcome record of one reconcile run
type ReconcileResult struct {
	OrdersChecked  int `json:"ordersChecked"`
	TasksCompleted int `json:"tasksCompleted"`
	TasksCancelled int `json:"tasksCancelled"`
	PushesRetried  int `json:"pushesRetried"`
	Errors         int `json:"errors"`
}

// AlertView is the operator view of an alert
type AlertView struct {
	ID             string     `json:"id"`
	Kind           string     `json:"kind"`
	Entity         string     `json:"entity"`
	Title          string     `json:"title"`
	Message        string     `json:"message"`
	RelatedTaskID  string     `json:"relatedTaskId,omitempty"`
	RelatedBatchID string     `json:"relatedBatchId,omitempty"`
	Email          bool       `json:"email"`
	IsRead         bool       `json:"isRead"`
	CreatedAt      time.Time  `json:"createdAt"`
	ReadAt         *time.Time `json:"readAt,omitempty"`
}

// NewAlertView maps an alert to its operator view
func NewAlertView(alert *domain.Alert) AlertView {
	return AlertView{
		ID:             alert.ID.Hex(),
		Kind:           string(alert.Kind),
		Entity:         alert.Entity,
		Title:          alert.Title,
		Message:        alert.Message,
		RelatedTaskID:  alert.RelatedTaskID,
		RelatedBatchID: alert.RelatedBatchID,
		Email:          alert.Email,
		IsRead:         alert.IsRead,
		CreatedAt:      alert.CreatedAt,
		ReadAt:         alert.ReadAt,
	}
}

// SummaryView is the operator view of an order summary
type SummaryView struct {
	MarketplaceOrderID  string     `json:"marketplaceOrderId"`
	CustomerName        string     `json:"customerName"`
	InternalOrderNumber string     `json:"internalOrderNumber,omitempty"`
	ItemCount           int        `json:"itemCount"`
	CompletedItemCount  int        `json:"completedItemCount"`
	AllItemsReady       bool       `json:"allItemsReady"`
	PackagingStatus     string     `json:"packagingStatus"`
	PackedAt            *time.Time `json:"packedAt,omitempty"`
}

// NewSummaryView maps a summary to its operator view
func NewSummaryView(summary *domain.OrderSummary) SummaryView {
	return SummaryView{
		MarketplaceOrderID:  summary.MarketplaceOrderID,
		CustomerName:        summary.CustomerName,
		InternalOrderNumber: summary.InternalOrderNumber,
		ItemCount:           summary.ItemCount,
		CompletedItemCount:  summary.CompletedItemCount,
		AllItemsReady:       summary.AllItemsReady,
		PackagingStatus:     string(summary.PackagingStatus),
		PackedAt:            summary.PackedAt,
	}
}
