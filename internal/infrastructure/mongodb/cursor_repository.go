package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/panelworks/production-engine/internal/domain"
	"github.com/panelworks/production-engine/pkg/errors"
)

// cursorKey is the fixed _id of the single ingestion cursor document
const cursorKey = "ingestion"

// CursorRepository implements domain.CursorRepository using MongoDB. The
// cursor lives in a single well-known document.
type CursorRepository struct {
	collection *mongo.Collection
}

// NewCursorRepository creates a new CursorRepository
func NewCursorRepository(db *mongo.Database) *CursorRepository {
	return &CursorRepository{
		collection: db.Collection("ingestion_cursor"),
	}
}

// cursorDocument persists the cursor under the fixed string key
type cursorDocument struct {
	Key    string                 `bson:"_id"`
	Cursor domain.IngestionCursor `bson:"cursor"`
}

// Get retrieves the cursor, returning a zero cursor on first run
func (r *CursorRepository) Get(ctx context.Context) (*domain.IngestionCursor, error) {
	var doc cursorDocument
	err := r.collection.FindOne(ctx, bson.M{"_id": cursorKey}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return &domain.IngestionCursor{ID: primitive.NewObjectID()}, nil
		}
		return nil, err
	}
	return &doc.Cursor, nil
}

// Save upserts the cursor document
func (r *CursorRepository) Save(ctx context.Context, cursor *domain.IngestionCursor) error {
	opts := options.Update().SetUpsert(true)
	update := bson.M{"$set": bson.M{"cursor": cursor}}

	if _, err := r.collection.UpdateOne(ctx, bson.M{"_id": cursorKey}, update, opts); err != nil {
		return fmt.Errorf("failed to save ingestion cursor: %w", err)
	}
	return nil
}

// parseObjectID converts a hex string into a Mongo ObjectID
func parseObjectID(id string) (primitive.ObjectID, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, errors.ErrValidation("invalid id").WithDetail("id", id)
	}
	return objectID, nil
}
