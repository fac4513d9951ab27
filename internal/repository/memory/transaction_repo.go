package memory

import (
	"context"
	"fmt"
	"obligation_manager/internal/domain"
	"obligation_manager/internal/repository"
	"sort"
	"sync"
	"time"
)

type TransactionRepository struct {
	mu           sync.RWMutex
	transactions map[string]*domain.Transaction
	index        map[string][]string
}

func NewTransactionRepository() *TransactionRepository {
	return &TransactionRepository{
		transactions: make(map[string]*domain.Transaction),
		index:        make(map[string][]string),
	}
}

func (r *TransactionRepository) Save(ctx context.Context, tx *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.transactions[tx.ID]; exists {
		return fmt.Errorf("%w: transaction %s", repository.ErrDuplicate, tx.ID)
	}

	r.transactions[tx.ID] = tx

	if tx.SourceObligationID != "" {
		r.index[tx.SourceObligationID] = append(r.index[tx.SourceObligationID], tx.ID)
	}

	return nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tx, exists := r.transactions[id]
	if !exists {
		return nil, fmt.Errorf("%w: transaction %s", repository.ErrNotFound, id)
	}
	return tx, nil
}

func (r *TransactionRepository) GetByObligationID(ctx context.Context, obligationID string) ([]*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*domain.Transaction
	for _, id := range r.index[obligationID] {
		result = append(result, r.transactions[id])
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Date.Before(result[j].Date)
	})

	return result, nil
}

func (r *TransactionRepository) GetByPeriod(ctx context.Context, workspaceID string, from, to time.Time) ([]*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*domain.Transaction
	for _, tx := range r.transactions {
		if tx.WorkspaceID == workspaceID && !tx.Date.Before(from) && !tx.Date.After(to) {
			result = append(result, tx)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Date.Before(result[j].Date)
	})

	return result, nil
}
