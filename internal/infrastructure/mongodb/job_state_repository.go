package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/panelworks/production-engine/internal/domain"
)

// JobStateRepository implements domain.JobStateRepository using MongoDB
type JobStateRepository struct {
	collection *mongo.Collection
}

// NewJobStateRepository creates a new JobStateRepository
func NewJobStateRepository(db *mongo.Database) *JobStateRepository {
	return &JobStateRepository{
		collection: db.Collection("job_states"),
	}
}

// Record upserts a job's freshness record keyed by job name
func (r *JobStateRepository) Record(ctx context.Context, state domain.JobState) error {
	opts := options.Update().SetUpsert(true)
	update := bson.M{"$set": state}

	if _, err := r.collection.UpdateOne(ctx, bson.M{"name": state.Name}, update, opts); err != nil {
		return fmt.Errorf("failed to record job state: %w", err)
	}
	return nil
}

// List retrieves all job states
func (r *JobStateRepository) List(ctx context.Context) ([]domain.JobState, error) {
	cursor, err := r.collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var states []domain.JobState
	if err := cursor.All(ctx, &states); err != nil {
		return nil, err
	}
	return states, nil
}
