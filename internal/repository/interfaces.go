package repository

import (
	"context"
	"errors"
	"obligation_manager/internal/domain"
	"time"
)

type ObligationRepository interface {
	// Save persists a new obligation, assigning its id and initial version.
	Save(ctx context.Context, obligation *domain.Obligation) error
	// Update replaces a stored obligation. The stored version must match the
	// snapshot's version or ErrVersionConflict is returned; on success the
	// snapshot's version is incremented.
	Update(ctx context.Context, obligation *domain.Obligation) error
	GetByID(ctx context.Context, id string) (*domain.Obligation, error)
	GetByWorkspaceID(ctx context.Context, workspaceID string) ([]*domain.Obligation, error)
	// FindDue returns active, non-archived obligations with
	// next_run_date <= asOf, ordered ascending by next_run_date with ties
	// broken by creation order.
	FindDue(ctx context.Context, workspaceID string, asOf time.Time) ([]*domain.Obligation, error)
	WorkspaceIDs(ctx context.Context) ([]string, error)
}

type TransactionRepository interface {
	Save(ctx context.Context, transaction *domain.Transaction) error
	GetByID(ctx context.Context, id string) (*domain.Transaction, error)
	GetByObligationID(ctx context.Context, obligationID string) ([]*domain.Transaction, error)
	GetByPeriod(ctx context.Context, workspaceID string, from, to time.Time) ([]*domain.Transaction, error)
}

var (
	ErrNotFound        = errors.New("not found")
	ErrDuplicate       = errors.New("duplicate entry")
	ErrVersionConflict = errors.New("version conflict")
)
