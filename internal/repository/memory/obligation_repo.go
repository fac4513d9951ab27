package memory

import (
	"context"
	"fmt"
	"obligation_manager/internal/domain"
	"obligation_manager/internal/repository"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type ObligationRepository struct {
	mu          sync.RWMutex
	obligations map[string]domain.Obligation
	seq         map[string]int64
	nextSeq     int64
}

func NewObligationRepository() *ObligationRepository {
	return &ObligationRepository{
		obligations: make(map[string]domain.Obligation),
		seq:         make(map[string]int64),
	}
}

func (r *ObligationRepository) Save(ctx context.Context, obligation *domain.Obligation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if obligation.ID == "" {
		obligation.ID = uuid.NewString()
	}

	if _, exists := r.obligations[obligation.ID]; exists {
		return fmt.Errorf("%w: obligation %s", repository.ErrDuplicate, obligation.ID)
	}

	obligation.Version = 1
	obligation.CreatedAt = time.Now()

	r.nextSeq++
	r.seq[obligation.ID] = r.nextSeq
	r.obligations[obligation.ID] = *obligation

	return nil
}

func (r *ObligationRepository) Update(ctx context.Context, obligation *domain.Obligation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.obligations[obligation.ID]
	if !exists {
		return fmt.Errorf("%w: obligation %s", repository.ErrNotFound, obligation.ID)
	}

	if stored.Version != obligation.Version {
		return fmt.Errorf("%w: obligation %s version %d (stored %d)",
			repository.ErrVersionConflict, obligation.ID, obligation.Version, stored.Version)
	}

	obligation.Version++
	obligation.CreatedAt = stored.CreatedAt
	r.obligations[obligation.ID] = *obligation

	return nil
}

func (r *ObligationRepository) GetByID(ctx context.Context, id string) (*domain.Obligation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	obligation, exists := r.obligations[id]
	if !exists {
		return nil, fmt.Errorf("%w: obligation %s", repository.ErrNotFound, id)
	}
	return &obligation, nil
}

func (r *ObligationRepository) GetByWorkspaceID(ctx context.Context, workspaceID string) ([]*domain.Obligation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*domain.Obligation
	for id := range r.obligations {
		obligation := r.obligations[id]
		if obligation.WorkspaceID == workspaceID {
			result = append(result, &obligation)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return r.seq[result[i].ID] < r.seq[result[j].ID]
	})

	return result, nil
}

func (r *ObligationRepository) FindDue(ctx context.Context, workspaceID string, asOf time.Time) ([]*domain.Obligation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*domain.Obligation
	for id := range r.obligations {
		obligation := r.obligations[id]
		if obligation.WorkspaceID == workspaceID && obligation.IsDue(asOf) {
			result = append(result, &obligation)
		}
	}

	// Oldest overdue first; creation order breaks ties.
	sort.Slice(result, func(i, j int) bool {
		if !result[i].NextRunDate.Equal(result[j].NextRunDate) {
			return result[i].NextRunDate.Before(result[j].NextRunDate)
		}
		return r.seq[result[i].ID] < r.seq[result[j].ID]
	})

	return result, nil
}

func (r *ObligationRepository) WorkspaceIDs(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	var result []string
	for _, obligation := range r.obligations {
		if _, ok := seen[obligation.WorkspaceID]; ok {
			continue
		}
		seen[obligation.WorkspaceID] = struct{}{}
		result = append(result, obligation.WorkspaceID)
	}

	sort.Strings(result)
	return result, nil
}
