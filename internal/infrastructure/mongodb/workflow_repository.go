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

// WorkflowOverrideRepository implements domain.WorkflowOverrideRepository
// using MongoDB
type WorkflowOverrideRepository struct {
	collection *mongo.Collection
}

// NewWorkflowOverrideRepository creates a new WorkflowOverrideRepository
func NewWorkflowOverrideRepository(db *mongo.Database) *WorkflowOverrideRepository {
	repo := &WorkflowOverrideRepository{
		collection: db.Collection("workflow_overrides"),
	}
	repo.ensureIndexes(context.Background())
	return repo
}

func (r *WorkflowOverrideRepository) ensureIndexes(ctx context.Context) {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "woodSpecies", Value: 1},
				{Key: "technology", Value: 1},
				{Key: "needsCoating", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
	}

	r.collection.Indexes().CreateMany(ctx, indexes)
}

// Find retrieves the override for a (species, technology, needsCoating)
// combination, or nil when none is stored.
func (r *WorkflowOverrideRepository) Find(ctx context.Context, species domain.WoodSpecies, technology domain.Technology, needsCoating bool) (*domain.WorkflowOverride, error) {
	filter := bson.M{
		"woodSpecies":  species,
		"technology":   technology,
		"needsCoating": needsCoating,
	}

	var override domain.WorkflowOverride
	err := r.collection.FindOne(ctx, filter).Decode(&override)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &override, nil
}

// Upsert stores or replaces an override
func (r *WorkflowOverrideRepository) Upsert(ctx context.Context, override *domain.WorkflowOverride) error {
	override.UpdatedAt = time.Now().UTC()

	opts := options.Update().SetUpsert(true)
	filter := bson.M{
		"woodSpecies":  override.WoodSpecies,
		"technology":   override.Technology,
		"needsCoating": override.NeedsCoating,
	}
	update := bson.M{"$set": override}

	if _, err := r.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to save workflow override: %w", err)
	}
	return nil
}
