package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
)

// Transaction is a concrete, one-off ledger entry materialized from a due
// obligation occurrence.
type Transaction struct {
	ID                 string            `json:"id"`
	WorkspaceID        string            `json:"workspace_id"`
	AccountID          string            `json:"account_id"`
	CategoryID         string            `json:"category_id"`
	SubcategoryID      string            `json:"subcategory_id,omitempty"`
	Kind               ObligationKind    `json:"kind"`
	Amount             decimal.Decimal   `json:"amount"`
	Currency           string            `json:"currency"`
	Date               time.Time         `json:"date"`
	SourceObligationID string            `json:"source_obligation_id"`
	Status             TransactionStatus `json:"status"`
	Description        string            `json:"description,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
}

// MaterializeTransaction builds the ledger transaction for the obligation's
// current occurrence, dated at its NextRunDate.
func MaterializeTransaction(o Obligation) *Transaction {
	return &Transaction{
		ID:                 uuid.NewString(),
		WorkspaceID:        o.WorkspaceID,
		AccountID:          o.AccountID,
		CategoryID:         o.CategoryID,
		SubcategoryID:      o.SubcategoryID,
		Kind:               o.Kind,
		Amount:             o.Amount,
		Currency:           o.Currency,
		Date:               o.NextRunDate,
		SourceObligationID: o.ID,
		Status:             StatusCompleted,
		CreatedAt:          time.Now(),
	}
}

func (tx *Transaction) WithDescription(desc string) *Transaction {
	tx.Description = desc
	return tx
}
