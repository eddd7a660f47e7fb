package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/panelworks/production-engine/internal/domain"
)

// SummaryRepository implements domain.SummaryRepository using MongoDB
type SummaryRepository struct {
	collection *mongo.Collection
}

// NewSummaryRepository creates a new SummaryRepository
func NewSummaryRepository(db *mongo.Database) *SummaryRepository {
	repo := &SummaryRepository{
		collection: db.Collection("order_summaries"),
	}
	repo.ensureIndexes(context.Background())
	return repo
}

func (r *SummaryRepository) ensureIndexes(ctx context.Context) {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "marketplaceOrderId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "packagingStatus", Value: 1}, {Key: "allItemsReady", Value: 1}},
		},
	}

	r.collection.Indexes().CreateMany(ctx, indexes)
}

// Save upserts a summary by its marketplace order id
func (r *SummaryRepository) Save(ctx context.Context, summary *domain.OrderSummary) error {
	opts := options.Update().SetUpsert(true)
	filter := bson.M{"marketplaceOrderId": summary.MarketplaceOrderID}
	update := bson.M{"$set": summary}

	if _, err := r.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to save order summary: %w", err)
	}
	return nil
}

// FindByOrderID retrieves a summary by marketplace order id
func (r *SummaryRepository) FindByOrderID(ctx context.Context, marketplaceOrderID string) (*domain.OrderSummary, error) {
	var summary domain.OrderSummary
	err := r.collection.FindOne(ctx, bson.M{"marketplaceOrderId": marketplaceOrderID}).Decode(&summary)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &summary, nil
}

// ListReadyForPackaging retrieves orders whose items are all ready and whose
// packaging has not completed, oldest first.
func (r *SummaryRepository) ListReadyForPackaging(ctx context.Context, limit int) ([]*domain.OrderSummary, error) {
	filter := bson.M{
		"allItemsReady":   true,
		"packagingStatus": bson.M{"$ne": domain.PackagingCompleted},
	}
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var summaries []*domain.OrderSummary
	if err := cursor.All(ctx, &summaries); err != nil {
		return nil, err
	}
	return summaries, nil
}
