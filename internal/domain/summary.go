package domain

import (
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Errors for the OrderSummary aggregate
var (
	ErrOrderNotReady       = errors.New("order items are not all ready")
	ErrPackagingDone       = errors.New("packaging already completed")
	ErrPackagingNotStarted = errors.New("packaging not in progress")
)

// PackagingStatus represents the order-level packaging state
type PackagingStatus string

const (
	PackagingWaiting    PackagingStatus = "waiting"
	PackagingInProgress PackagingStatus = "in_progress"
	PackagingCompleted  PackagingStatus = "completed"
)

// OrderSummary is the per-marketplace-order roll-up of production tasks
type OrderSummary struct {
	ID                  primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	MarketplaceOrderID  string             `bson:"marketplaceOrderId" json:"marketplaceOrderId"`
	CustomerName        string             `bson:"customerName" json:"customerName"`
	InternalOrderNumber string             `bson:"internalOrderNumber,omitempty" json:"internalOrderNumber,omitempty"`

	ItemCount          int             `bson:"itemCount" json:"itemCount"`
	CompletedItemCount int             `bson:"completedItemCount" json:"completedItemCount"`
	AllItemsReady      bool            `bson:"allItemsReady" json:"allItemsReady"`
	PackagingStatus    PackagingStatus `bson:"packagingStatus" json:"packagingStatus"`

	PackedAt  *time.Time `bson:"packedAt,omitempty" json:"packedAt,omitempty"`
	CreatedAt time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time  `bson:"updatedAt" json:"updatedAt"`
}

// NewOrderSummary creates a waiting summary for a marketplace order
func NewOrderSummary(marketplaceOrderID, customerName, internalOrderNumber string, now time.Time) *OrderSummary {
	return &OrderSummary{
		ID:                  primitive.NewObjectID(),
		MarketplaceOrderID:  marketplaceOrderID,
		CustomerName:        customerName,
		InternalOrderNumber: internalOrderNumber,
		PackagingStatus:     PackagingWaiting,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// Recompute refreshes the counters and the all_items_ready flag. Called on
// every task terminal transition and on ingestion.
func (s *OrderSummary) Recompute(itemCount, completedItemCount int, now time.Time) {
	s.ItemCount = itemCount
	s.CompletedItemCount = completedItemCount
	s.AllItemsReady = itemCount > 0 && completedItemCount == itemCount
	s.UpdatedAt = now
}

// StartPackaging moves a waiting order into packaging
func (s *OrderSummary) StartPackaging(now time.Time) error {
	if s.PackagingStatus == PackagingCompleted {
		return ErrPackagingDone
	}
	if !s.AllItemsReady {
		return ErrOrderNotReady
	}
	s.PackagingStatus = PackagingInProgress
	s.UpdatedAt = now
	return nil
}

// CompletePackaging is the human acknowledgement that the order is boxed.
// Only then is the shipped-equivalent status pushed to the marketplace.
func (s *OrderSummary) CompletePackaging(now time.Time) error {
	if s.PackagingStatus == PackagingCompleted {
		return ErrPackagingDone
	}
	if !s.AllItemsReady {
		return ErrOrderNotReady
	}
	s.PackagingStatus = PackagingCompleted
	s.PackedAt = &now
	s.UpdatedAt = now
	return nil
}
