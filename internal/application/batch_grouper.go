package application

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/panelworks/production-engine/internal/domain"
)

// BatchGrouper clusters pending tasks into (species, technology, day)
// batches with deterministic names.
type BatchGrouper struct {
	batches domain.BatchRepository
	tasks   domain.TaskRepository
	clock   domain.Clock
	logger  *slog.Logger
}

// NewBatchGrouper creates the batch grouper
func NewBatchGrouper(
	batches domain.BatchRepository,
	tasks domain.TaskRepository,
	clock domain.Clock,
	logger *slog.Logger,
) *BatchGrouper {
	return &BatchGrouper{
		batches: batches,
		tasks:   tasks,
		clock:   clock,
		logger:  logger.With("component", "batch_grouper"),
	}
}

type batchKey struct {
	species    domain.WoodSpecies
	technology domain.Technology
}

// GroupPending assigns every unbatched pending task to the open batch of
// its (species, technology) group for today, creating batches as needed.
// Returns the number of newly assigned tasks.
func (g *BatchGrouper) GroupPending(ctx context.Context) (int, error) {
	unbatched, err := g.tasks.FindPendingUnbatched(ctx)
	if err != nil {
		return 0, err
	}
	if len(unbatched) == 0 {
		return 0, nil
	}

	now := g.clock.Now()
	batchDate := now.Format("2006-01-02")

	groups := make(map[batchKey][]*domain.ProductionTask)
	for _, task := range unbatched {
		key := batchKey{task.Attributes.WoodSpecies, task.Attributes.Technology}
		groups[key] = append(groups[key], task)
	}

	// Deterministic group order keeps batch ordinals stable across runs
	keys := make([]batchKey, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].species != keys[j].species {
			return keys[i].species < keys[j].species
		}
		return keys[i].technology < keys[j].technology
	})

	assigned := 0
	for _, key := range keys {
		batch, err := g.openBatch(ctx, key, batchDate, now)
		if err != nil {
			return assigned, err
		}

		for _, task := range groups[key] {
			if err := batch.AddTask(task.TaskID, now); err != nil {
				if err == domain.ErrTaskAlreadyInBatch {
					continue
				}
				return assigned, err
			}
			task.BatchID = batch.BatchID
			task.UpdatedAt = now
			if err := g.tasks.Save(ctx, task); err != nil {
				return assigned, err
			}
			assigned++
		}

		if err := g.batches.Save(ctx, batch); err != nil {
			return assigned, err
		}

		g.logger.Info("batch updated",
			"batch", batch.Name,
			"batchId", batch.BatchID,
			"taskCount", batch.TaskCount,
		)
	}
	return assigned, nil
}

// openBatch finds the group's open batch for the day or creates the next one
func (g *BatchGrouper) openBatch(ctx context.Context, key batchKey, batchDate string, now time.Time) (*domain.ProductionBatch, error) {
	batch, err := g.batches.FindOpenByKey(ctx, key.species, key.technology, batchDate)
	if err != nil {
		return nil, err
	}
	if batch != nil {
		return batch, nil
	}

	ordinal, err := g.batches.NextOrdinal(ctx, key.species, key.technology, batchDate)
	if err != nil {
		return nil, err
	}

	batchID := "BATCH-" + uuid.NewString()
	return domain.NewProductionBatch(batchID, key.species, key.technology, batchDate, ordinal, now), nil
}
