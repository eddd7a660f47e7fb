package application

import (
	"context"
	"log/slog"
	"sort"

	"github.com/panelworks/production-engine/internal/domain"
	"github.com/panelworks/production-engine/pkg/errors"
)

// PriorityService maintains the total strict order over active tasks.
// Reranking is idempotent: two successive passes over an unchanged set
// assign identical priorities.
type PriorityService struct {
	tasks  domain.TaskRepository
	locks  domain.LockManager
	logger *slog.Logger
}

// NewPriorityService creates the priority engine
func NewPriorityService(tasks domain.TaskRepository, locks domain.LockManager, logger *slog.Logger) *PriorityService {
	return &PriorityService{
		tasks:  tasks,
		locks:  locks,
		logger: logger.With("component", "priority_service"),
	}
}

// Rerank recomputes priorities under the catalogue lock, failing fast with
// busy on contention.
func (s *PriorityService) Rerank(ctx context.Context) (int, error) {
	release, ok, err := s.locks.TryAcquire(ctx, catalogueLock, lockTTL)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, errors.ErrBusy("catalogue")
	}
	defer release()

	return s.rerankLocked(ctx)
}

// rerankLocked does the actual pass. Callers already holding the catalogue
// lock (the ingestor) come in here directly.
func (s *PriorityService) rerankLocked(ctx context.Context) (int, error) {
	tasks, err := s.tasks.FindActive(ctx)
	if err != nil {
		return 0, err
	}
	if len(tasks) == 0 {
		return 0, nil
	}

	sort.SliceStable(tasks, func(i, j int) bool {
		return lessByPriorityKey(tasks[i], tasks[j])
	})

	// Assign rank×10; gaps leave room for manual drag-reorder insertions.
	// Only changed tasks are written, which also repairs any duplicate
	// priority values left by manual edits.
	updates := make(map[string]int)
	for rank, task := range tasks {
		want := (rank + 1) * 10
		if task.PriorityOrder != want {
			updates[task.TaskID] = want
		}
	}

	if len(updates) > 0 {
		if err := s.tasks.UpdatePriorities(ctx, updates); err != nil {
			return 0, err
		}
	}

	s.logger.Info("rerank complete", "tasks", len(tasks), "updated", len(updates))
	return len(updates), nil
}

// lessByPriorityKey implements the composite sort key: deadline, species,
// technology (solid first), class rank, quantity descending, then the
// stable task id fallback.
func lessByPriorityKey(a, b *domain.ProductionTask) bool {
	switch {
	case a.EstimatedCompletionDate == nil && b.EstimatedCompletionDate != nil:
		return false
	case a.EstimatedCompletionDate != nil && b.EstimatedCompletionDate == nil:
		return true
	case a.EstimatedCompletionDate != nil && b.EstimatedCompletionDate != nil:
		if !a.EstimatedCompletionDate.Equal(*b.EstimatedCompletionDate) {
			return a.EstimatedCompletionDate.Before(*b.EstimatedCompletionDate)
		}
	}

	if a.Attributes.WoodSpecies != b.Attributes.WoodSpecies {
		return a.Attributes.WoodSpecies < b.Attributes.WoodSpecies
	}

	if a.Attributes.Technology != b.Attributes.Technology {
		return a.Attributes.Technology == domain.TechnologySolid
	}

	aClass, bClass := a.Attributes.WoodClass.ClassRank(), b.Attributes.WoodClass.ClassRank()
	if aClass != bClass {
		return aClass < bClass
	}

	if a.Quantity != b.Quantity {
		return a.Quantity > b.Quantity
	}

	return a.TaskID < b.TaskID
}
