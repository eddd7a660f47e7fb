package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SyncOutcome describes the last ingestion run
type SyncOutcome string

const (
	SyncOK      SyncOutcome = "ok"
	SyncPartial SyncOutcome = "partial"
	SyncFailed  SyncOutcome = "failed"
)

// StatusPush is a queued best-effort status push back to the marketplace.
// A failed push never reverses internal state; it is retried on the next
// reconcile run.
type StatusPush struct {
	MarketplaceOrderID string    `bson:"marketplaceOrderId" json:"marketplaceOrderId"`
	StatusID           string    `bson:"statusId" json:"statusId"`
	Attempts           int       `bson:"attempts" json:"attempts"`
	QueuedAt           time.Time `bson:"queuedAt" json:"queuedAt"`
}

// IngestionCursor is the single-row process-wide state of the order ingestor
type IngestionCursor struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	HighWaterMark time.Time          `bson:"highWaterMark" json:"highWaterMark"`
	LastPageToken string             `bson:"lastPageToken,omitempty" json:"lastPageToken,omitempty"`
	LastSyncAt    time.Time          `bson:"lastSyncAt" json:"lastSyncAt"`
	LastOutcome   SyncOutcome        `bson:"lastOutcome" json:"lastOutcome"`

	PendingPushes []StatusPush `bson:"pendingPushes" json:"pendingPushes"`
}

// Advance records a successful sync up to the given boundary
func (c *IngestionCursor) Advance(boundary time.Time, pageToken string, outcome SyncOutcome, now time.Time) {
	c.HighWaterMark = boundary
	c.LastPageToken = pageToken
	c.LastSyncAt = now
	c.LastOutcome = outcome
}

// QueuePush appends a status push, coalescing repeats for the same order
func (c *IngestionCursor) QueuePush(orderID, statusID string, now time.Time) {
	for i := range c.PendingPushes {
		if c.PendingPushes[i].MarketplaceOrderID == orderID {
			c.PendingPushes[i].StatusID = statusID
			return
		}
	}
	c.PendingPushes = append(c.PendingPushes, StatusPush{
		MarketplaceOrderID: orderID,
		StatusID:           statusID,
		QueuedAt:           now,
	})
}

// DropPush removes a push after it succeeded
func (c *IngestionCursor) DropPush(orderID string) {
	for i := range c.PendingPushes {
		if c.PendingPushes[i].MarketplaceOrderID == orderID {
			c.PendingPushes = append(c.PendingPushes[:i], c.PendingPushes[i+1:]...)
			return
		}
	}
}

// JobState records a scheduler job's freshness for the operator UI
type JobState struct {
	Name           string    `bson:"name" json:"name"`
	LastSuccessAt  time.Time `bson:"lastSuccessAt" json:"lastSuccessAt"`
	LastOutcome    string    `bson:"lastOutcome" json:"lastOutcome"`
	LastDurationMS int64     `bson:"lastDurationMs" json:"lastDurationMs"`
}
