// Package mongodb implements the domain repositories on MongoDB.
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

// TaskRepository implements domain.TaskRepository using MongoDB
type TaskRepository struct {
	collection *mongo.Collection
}

// NewTaskRepository creates a new TaskRepository
func NewTaskRepository(db *mongo.Database) *TaskRepository {
	repo := &TaskRepository{
		collection: db.Collection("production_tasks"),
	}
	repo.ensureIndexes(context.Background())
	return repo
}

// ensureIndexes creates the necessary indexes. The compound unique index on
// (marketplaceOrderId, marketplaceProductId) is the ingestion idempotence
// guarantee; everything else is query support.
func (r *TaskRepository) ensureIndexes(ctx context.Context) {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "taskId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "marketplaceOrderId", Value: 1},
				{Key: "marketplaceProductId", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "priorityOrder", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "batchId", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "updatedAt", Value: -1}},
		},
	}

	r.collection.Indexes().CreateMany(ctx, indexes)
}

// Insert creates a new task; a duplicate key on the marketplace product
// identity maps to domain.ErrDuplicateTask.
func (r *TaskRepository) Insert(ctx context.Context, task *domain.ProductionTask) error {
	_, err := r.collection.InsertOne(ctx, task)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrDuplicateTask
		}
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// Save upserts a task by its taskId
func (r *TaskRepository) Save(ctx context.Context, task *domain.ProductionTask) error {
	opts := options.Update().SetUpsert(true)
	filter := bson.M{"taskId": task.TaskID}
	update := bson.M{"$set": task}

	if _, err := r.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}
	return nil
}

// FindByTaskID retrieves a task by its ID
func (r *TaskRepository) FindByTaskID(ctx context.Context, taskID string) (*domain.ProductionTask, error) {
	var task domain.ProductionTask
	err := r.collection.FindOne(ctx, bson.M{"taskId": taskID}).Decode(&task)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &task, nil
}

// FindByMarketplaceOrder retrieves all tasks of one marketplace order
func (r *TaskRepository) FindByMarketplaceOrder(ctx context.Context, marketplaceOrderID string) ([]*domain.ProductionTask, error) {
	filter := bson.M{"marketplaceOrderId": marketplaceOrderID}
	opts := options.Find().SetSort(bson.D{{Key: "marketplaceProductId", Value: 1}})
	return r.findAll(ctx, filter, opts)
}

// HasMarketplaceOrder reports whether any task exists for the order
func (r *TaskRepository) HasMarketplaceOrder(ctx context.Context, marketplaceOrderID string) (bool, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"marketplaceOrderId": marketplaceOrderID}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// FindActive retrieves pending and in-progress tasks ordered by priority
func (r *TaskRepository) FindActive(ctx context.Context) ([]*domain.ProductionTask, error) {
	filter := bson.M{
		"status": bson.M{"$in": []domain.TaskStatus{domain.TaskPending, domain.TaskInProgress}},
	}
	opts := options.Find().SetSort(bson.D{{Key: "priorityOrder", Value: 1}, {Key: "createdAt", Value: 1}})
	return r.findAll(ctx, filter, opts)
}

// FindNonTerminal retrieves tasks not yet completed or cancelled
func (r *TaskRepository) FindNonTerminal(ctx context.Context) ([]*domain.ProductionTask, error) {
	filter := bson.M{
		"status": bson.M{"$nin": []domain.TaskStatus{domain.TaskCompleted, domain.TaskCancelled}},
	}
	opts := options.Find().SetSort(bson.D{{Key: "priorityOrder", Value: 1}, {Key: "createdAt", Value: 1}})
	return r.findAll(ctx, filter, opts)
}

// FindPendingUnbatched retrieves pending tasks not yet assigned to a batch
func (r *TaskRepository) FindPendingUnbatched(ctx context.Context) ([]*domain.ProductionTask, error) {
	filter := bson.M{
		"status":  domain.TaskPending,
		"batchId": bson.M{"$in": []any{"", nil}},
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	return r.findAll(ctx, filter, opts)
}

// FindQueue retrieves the priority-ordered work queue for one workstation:
// active tasks whose current stage sits at that station.
func (r *TaskRepository) FindQueue(ctx context.Context, workstationID string, limit int) ([]*domain.ProductionTask, error) {
	filter := bson.M{
		"status": bson.M{"$in": []domain.TaskStatus{domain.TaskPending, domain.TaskInProgress}},
		"stages": bson.M{"$elemMatch": bson.M{
			"workstationId": workstationID,
			"status":        bson.M{"$in": []domain.StageStatus{domain.StagePending, domain.StageInProgress}},
		}},
	}
	opts := options.Find().SetSort(bson.D{{Key: "priorityOrder", Value: 1}, {Key: "createdAt", Value: 1}})

	tasks, err := r.findAll(ctx, filter, opts)
	if err != nil {
		return nil, err
	}

	// The index filter is a superset: a task also matches when the station's
	// stage is merely upstream of the current one. Narrow to tasks whose
	// current stage is at the requested station.
	queue := make([]*domain.ProductionTask, 0, len(tasks))
	for _, task := range tasks {
		current := task.CurrentStage()
		if current == nil || current.WorkstationID != workstationID {
			continue
		}
		queue = append(queue, task)
		if limit > 0 && len(queue) >= limit {
			break
		}
	}
	return queue, nil
}

// UpdatePriorities bulk-writes new priority orders keyed by taskId
func (r *TaskRepository) UpdatePriorities(ctx context.Context, priorities map[string]int) error {
	if len(priorities) == 0 {
		return nil
	}

	models := make([]mongo.WriteModel, 0, len(priorities))
	now := time.Now().UTC()
	for taskID, priority := range priorities {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"taskId": taskID}).
			SetUpdate(bson.M{"$set": bson.M{"priorityOrder": priority, "updatedAt": now}}))
	}

	_, err := r.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return fmt.Errorf("failed to update priorities: %w", err)
	}
	return nil
}

// DeleteCompletedBefore removes terminal tasks last touched before the cutoff
func (r *TaskRepository) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	filter := bson.M{
		"status":    bson.M{"$in": []domain.TaskStatus{domain.TaskCompleted, domain.TaskCancelled}},
		"updatedAt": bson.M{"$lt": cutoff},
	}
	result, err := r.collection.DeleteMany(ctx, filter)
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}

func (r *TaskRepository) findAll(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*domain.ProductionTask, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var tasks []*domain.ProductionTask
	if err := cursor.All(ctx, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}
