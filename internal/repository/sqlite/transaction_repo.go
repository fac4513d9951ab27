package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"obligation_manager/internal/domain"
	"obligation_manager/internal/repository"
	"time"

	"github.com/shopspring/decimal"
)

type TransactionRepository struct {
	db *sql.DB
}

const transactionColumns = `id, workspace_id, account_id, category_id, subcategory_id, kind, amount, currency,
	tx_date, source_obligation_id, status, description, created_at`

func (r *TransactionRepository) Save(ctx context.Context, tx *domain.Transaction) error {
	var exists int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM transactions WHERE id = ?`, tx.ID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists > 0 {
		return fmt.Errorf("%w: transaction %s", repository.ErrDuplicate, tx.ID)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO transactions (`+transactionColumns+`)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		tx.ID, tx.WorkspaceID, tx.AccountID, tx.CategoryID, nullStr(tx.SubcategoryID),
		string(tx.Kind), tx.Amount.String(), tx.Currency,
		formatTime(tx.Date), tx.SourceObligationID, string(tx.Status), nullStr(tx.Description),
		formatTime(tx.CreatedAt),
	)
	return err
}

func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: transaction %s", repository.ErrNotFound, id)
	}
	return tx, err
}

func (r *TransactionRepository) GetByObligationID(ctx context.Context, obligationID string) ([]*domain.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE source_obligation_id = ? ORDER BY tx_date`,
		obligationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTransactions(rows)
}

func (r *TransactionRepository) GetByPeriod(ctx context.Context, workspaceID string, from, to time.Time) ([]*domain.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE workspace_id = ? AND tx_date >= ? AND tx_date <= ?
		 ORDER BY tx_date`,
		workspaceID, formatTime(from), formatTime(to),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTransactions(rows)
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var (
		tx           domain.Transaction
		subcategory  sql.NullString
		amount       string
		dateStr      string
		description  sql.NullString
		createdAtStr string
	)

	err := row.Scan(
		&tx.ID, &tx.WorkspaceID, &tx.AccountID, &tx.CategoryID, &subcategory, &tx.Kind, &amount, &tx.Currency,
		&dateStr, &tx.SourceObligationID, &tx.Status, &description, &createdAtStr,
	)
	if err != nil {
		return nil, err
	}

	tx.SubcategoryID = subcategory.String
	tx.Description = description.String

	if tx.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("corrupt amount for transaction %s: %w", tx.ID, err)
	}
	if tx.Date, err = parseTime(dateStr); err != nil {
		return nil, err
	}
	if tx.CreatedAt, err = parseTime(createdAtStr); err != nil {
		return nil, err
	}

	return &tx, nil
}

func scanTransactions(rows *sql.Rows) ([]*domain.Transaction, error) {
	var result []*domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, tx)
	}
	return result, rows.Err()
}
