package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/panelworks/production-engine/internal/domain"
)

// AlertRepository implements domain.AlertRepository using MongoDB
type AlertRepository struct {
	collection *mongo.Collection
}

// NewAlertRepository creates a new AlertRepository
func NewAlertRepository(db *mongo.Database) *AlertRepository {
	repo := &AlertRepository{
		collection: db.Collection("alerts"),
	}
	repo.ensureIndexes(context.Background())
	return repo
}

func (r *AlertRepository) ensureIndexes(ctx context.Context) {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "entity", Value: 1},
				{Key: "kind", Value: 1},
				{Key: "day", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "isRead", Value: 1}, {Key: "createdAt", Value: -1}},
		},
	}

	r.collection.Indexes().CreateMany(ctx, indexes)
}

// Emit inserts the alert unless one already exists for its
// (entity, kind, day) key. The unique index does the deduplication; a
// duplicate is a silent no-op reported as inserted=false.
func (r *AlertRepository) Emit(ctx context.Context, alert *domain.Alert) (bool, error) {
	_, err := r.collection.InsertOne(ctx, alert)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to emit alert: %w", err)
	}
	return true, nil
}

// MarkRead flags an alert as read
func (r *AlertRepository) MarkRead(ctx context.Context, alertID string, now time.Time) error {
	objectID, err := parseObjectID(alertID)
	if err != nil {
		return err
	}

	update := bson.M{"$set": bson.M{"isRead": true, "readAt": now}}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": objectID}, update)
	if err != nil {
		return fmt.Errorf("failed to mark alert read: %w", err)
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// ListUnread retrieves unread alerts, newest first
func (r *AlertRepository) ListUnread(ctx context.Context, limit int) ([]*domain.Alert, error) {
	filter := bson.M{"isRead": false}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var alerts []*domain.Alert
	if err := cursor.All(ctx, &alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

// DeleteReadBefore removes read alerts created before the cutoff
func (r *AlertRepository) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	filter := bson.M{
		"isRead":    true,
		"createdAt": bson.M{"$lt": cutoff},
	}
	result, err := r.collection.DeleteMany(ctx, filter)
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}
