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

// BatchRepository implements domain.BatchRepository using MongoDB
type BatchRepository struct {
	collection *mongo.Collection
}

// NewBatchRepository creates a new BatchRepository
func NewBatchRepository(db *mongo.Database) *BatchRepository {
	repo := &BatchRepository{
		collection: db.Collection("production_batches"),
	}
	repo.ensureIndexes(context.Background())
	return repo
}

func (r *BatchRepository) ensureIndexes(ctx context.Context) {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "batchId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "woodSpecies", Value: 1},
				{Key: "technology", Value: 1},
				{Key: "batchDate", Value: 1},
				{Key: "ordinal", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "members.taskId", Value: 1}},
		},
	}

	r.collection.Indexes().CreateMany(ctx, indexes)
}

// Save upserts a batch by its batchId
func (r *BatchRepository) Save(ctx context.Context, batch *domain.ProductionBatch) error {
	opts := options.Update().SetUpsert(true)
	filter := bson.M{"batchId": batch.BatchID}
	update := bson.M{"$set": batch}

	if _, err := r.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to save batch: %w", err)
	}
	return nil
}

// FindByBatchID retrieves a batch by its ID
func (r *BatchRepository) FindByBatchID(ctx context.Context, batchID string) (*domain.ProductionBatch, error) {
	var batch domain.ProductionBatch
	err := r.collection.FindOne(ctx, bson.M{"batchId": batchID}).Decode(&batch)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &batch, nil
}

// FindOpenByKey retrieves the newest non-terminal batch for a
// (species, technology, day) group, or nil when none is open.
func (r *BatchRepository) FindOpenByKey(ctx context.Context, species domain.WoodSpecies, technology domain.Technology, batchDate string) (*domain.ProductionBatch, error) {
	filter := bson.M{
		"woodSpecies": species,
		"technology":  technology,
		"batchDate":   batchDate,
		"status":      bson.M{"$in": []domain.BatchStatus{domain.BatchPlanned, domain.BatchInProgress}},
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "ordinal", Value: -1}})

	var batch domain.ProductionBatch
	err := r.collection.FindOne(ctx, filter, opts).Decode(&batch)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &batch, nil
}

// NextOrdinal returns the next free ordinal within a (species, technology, day) group
func (r *BatchRepository) NextOrdinal(ctx context.Context, species domain.WoodSpecies, technology domain.Technology, batchDate string) (int, error) {
	filter := bson.M{
		"woodSpecies": species,
		"technology":  technology,
		"batchDate":   batchDate,
	}
	opts := options.FindOne().
		SetSort(bson.D{{Key: "ordinal", Value: -1}}).
		SetProjection(bson.M{"ordinal": 1})

	var last struct {
		Ordinal int `bson:"ordinal"`
	}
	err := r.collection.FindOne(ctx, filter, opts).Decode(&last)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return 1, nil
		}
		return 0, err
	}
	return last.Ordinal + 1, nil
}

// DeleteEmptyBefore removes memberless batches created before the cutoff
func (r *BatchRepository) DeleteEmptyBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	filter := bson.M{
		"taskCount": 0,
		"createdAt": bson.M{"$lt": cutoff},
	}
	result, err := r.collection.DeleteMany(ctx, filter)
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}
