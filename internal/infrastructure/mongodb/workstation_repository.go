package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/panelworks/production-engine/internal/domain"
)

// WorkstationRepository implements domain.WorkstationRepository using MongoDB
type WorkstationRepository struct {
	collection *mongo.Collection
}

// NewWorkstationRepository creates a new WorkstationRepository
func NewWorkstationRepository(db *mongo.Database) *WorkstationRepository {
	repo := &WorkstationRepository{
		collection: db.Collection("workstations"),
	}
	repo.ensureIndexes(context.Background())
	return repo
}

func (r *WorkstationRepository) ensureIndexes(ctx context.Context) {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "stationId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}

	r.collection.Indexes().CreateMany(ctx, indexes)
}

// List retrieves the workstation catalogue in sequence order
func (r *WorkstationRepository) List(ctx context.Context, activeOnly bool) ([]domain.Workstation, error) {
	filter := bson.M{}
	if activeOnly {
		filter["active"] = true
	}
	opts := options.Find().SetSort(bson.D{{Key: "sequenceOrder", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var stations []domain.Workstation
	if err := cursor.All(ctx, &stations); err != nil {
		return nil, err
	}
	return stations, nil
}

// FindByStationID retrieves a workstation by id
func (r *WorkstationRepository) FindByStationID(ctx context.Context, stationID string) (*domain.Workstation, error) {
	var station domain.Workstation
	err := r.collection.FindOne(ctx, bson.M{"stationId": stationID}).Decode(&station)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &station, nil
}

// SeedIfEmpty installs the catalogue on first start. An already populated
// collection is left untouched.
func (r *WorkstationRepository) SeedIfEmpty(ctx context.Context, stations []domain.Workstation) error {
	count, err := r.collection.CountDocuments(ctx, bson.M{}, options.Count().SetLimit(1))
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	docs := make([]any, len(stations))
	for i, s := range stations {
		docs[i] = s
	}
	if _, err := r.collection.InsertMany(ctx, docs); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			// Concurrent seeding; first writer wins
			return nil
		}
		return fmt.Errorf("failed to seed workstations: %w", err)
	}
	return nil
}
