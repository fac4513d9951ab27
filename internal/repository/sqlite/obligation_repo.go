package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"obligation_manager/internal/domain"
	"obligation_manager/internal/repository"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ObligationRepository struct {
	db *sql.DB
}

const obligationColumns = `id, workspace_id, account_id, category_id, subcategory_id, kind, amount, currency,
	frequency, interval, day_of_week, day_of_month, month_of_year,
	valid_from, valid_until, next_run_date, last_run_date, is_active, is_archived, version, created_at`

func (r *ObligationRepository) Save(ctx context.Context, obligation *domain.Obligation) error {
	if obligation.ID == "" {
		obligation.ID = uuid.NewString()
	}

	var exists int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM obligations WHERE id = ?`, obligation.ID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists > 0 {
		return fmt.Errorf("%w: obligation %s", repository.ErrDuplicate, obligation.ID)
	}

	obligation.Version = 1
	obligation.CreatedAt = time.Now()

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO obligations (`+obligationColumns+`)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		obligation.ID, obligation.WorkspaceID, obligation.AccountID, obligation.CategoryID,
		nullStr(obligation.SubcategoryID), string(obligation.Kind), obligation.Amount.String(), obligation.Currency,
		string(obligation.Schedule.Frequency), obligation.Schedule.Interval,
		weekdayValue(obligation.Schedule.DayOfWeek), intValue(obligation.Schedule.DayOfMonth), monthValue(obligation.Schedule.MonthOfYear),
		formatTime(obligation.ValidFrom), formatTimePtr(obligation.ValidUntil),
		formatTime(obligation.NextRunDate), formatTimePtr(obligation.LastRunDate),
		obligation.IsActive, obligation.IsArchived, obligation.Version, formatTime(obligation.CreatedAt),
	)
	return err
}

func (r *ObligationRepository) Update(ctx context.Context, obligation *domain.Obligation) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE obligations SET
			workspace_id = ?, account_id = ?, category_id = ?, subcategory_id = ?,
			kind = ?, amount = ?, currency = ?,
			frequency = ?, interval = ?, day_of_week = ?, day_of_month = ?, month_of_year = ?,
			valid_from = ?, valid_until = ?, next_run_date = ?, last_run_date = ?,
			is_active = ?, is_archived = ?, version = version + 1
		 WHERE id = ? AND version = ?`,
		obligation.WorkspaceID, obligation.AccountID, obligation.CategoryID, nullStr(obligation.SubcategoryID),
		string(obligation.Kind), obligation.Amount.String(), obligation.Currency,
		string(obligation.Schedule.Frequency), obligation.Schedule.Interval,
		weekdayValue(obligation.Schedule.DayOfWeek), intValue(obligation.Schedule.DayOfMonth), monthValue(obligation.Schedule.MonthOfYear),
		formatTime(obligation.ValidFrom), formatTimePtr(obligation.ValidUntil),
		formatTime(obligation.NextRunDate), formatTimePtr(obligation.LastRunDate),
		obligation.IsActive, obligation.IsArchived,
		obligation.ID, obligation.Version,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var exists int
		if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM obligations WHERE id = ?`, obligation.ID).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return fmt.Errorf("%w: obligation %s", repository.ErrNotFound, obligation.ID)
		}
		return fmt.Errorf("%w: obligation %s version %d", repository.ErrVersionConflict, obligation.ID, obligation.Version)
	}

	obligation.Version++
	return nil
}

func (r *ObligationRepository) GetByID(ctx context.Context, id string) (*domain.Obligation, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+obligationColumns+` FROM obligations WHERE id = ?`, id)
	obligation, err := scanObligation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: obligation %s", repository.ErrNotFound, id)
	}
	return obligation, err
}

func (r *ObligationRepository) GetByWorkspaceID(ctx context.Context, workspaceID string) ([]*domain.Obligation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+obligationColumns+` FROM obligations WHERE workspace_id = ? ORDER BY rowid`,
		workspaceID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanObligations(rows)
}

func (r *ObligationRepository) FindDue(ctx context.Context, workspaceID string, asOf time.Time) ([]*domain.Obligation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+obligationColumns+` FROM obligations
		 WHERE workspace_id = ? AND is_active = 1 AND is_archived = 0 AND next_run_date <= ?
		 ORDER BY next_run_date, rowid`,
		workspaceID, formatTime(asOf),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanObligations(rows)
}

func (r *ObligationRepository) WorkspaceIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT workspace_id FROM obligations ORDER BY workspace_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		result = append(result, id)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanObligation(row rowScanner) (*domain.Obligation, error) {
	var (
		o             domain.Obligation
		subcategory   sql.NullString
		amount        string
		dayOfWeek     sql.NullInt64
		dayOfMonth    sql.NullInt64
		monthOfYear   sql.NullInt64
		validFromStr  string
		validUntilStr sql.NullString
		nextRunStr    string
		lastRunStr    sql.NullString
		createdAtStr  string
	)

	err := row.Scan(
		&o.ID, &o.WorkspaceID, &o.AccountID, &o.CategoryID, &subcategory, &o.Kind, &amount, &o.Currency,
		&o.Schedule.Frequency, &o.Schedule.Interval, &dayOfWeek, &dayOfMonth, &monthOfYear,
		&validFromStr, &validUntilStr, &nextRunStr, &lastRunStr, &o.IsActive, &o.IsArchived, &o.Version, &createdAtStr,
	)
	if err != nil {
		return nil, err
	}

	o.SubcategoryID = subcategory.String

	if o.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("corrupt amount for obligation %s: %w", o.ID, err)
	}

	if dayOfWeek.Valid {
		wd := time.Weekday(dayOfWeek.Int64)
		o.Schedule.DayOfWeek = &wd
	}
	if dayOfMonth.Valid {
		dom := int(dayOfMonth.Int64)
		o.Schedule.DayOfMonth = &dom
	}
	if monthOfYear.Valid {
		m := time.Month(monthOfYear.Int64)
		o.Schedule.MonthOfYear = &m
	}

	if o.ValidFrom, err = parseTime(validFromStr); err != nil {
		return nil, err
	}
	if validUntilStr.Valid {
		t, err := parseTime(validUntilStr.String)
		if err != nil {
			return nil, err
		}
		o.ValidUntil = &t
	}
	if o.NextRunDate, err = parseTime(nextRunStr); err != nil {
		return nil, err
	}
	if lastRunStr.Valid {
		t, err := parseTime(lastRunStr.String)
		if err != nil {
			return nil, err
		}
		o.LastRunDate = &t
	}
	if o.CreatedAt, err = parseTime(createdAtStr); err != nil {
		return nil, err
	}

	return &o, nil
}

func scanObligations(rows *sql.Rows) ([]*domain.Obligation, error) {
	var result []*domain.Obligation
	for rows.Next() {
		obligation, err := scanObligation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, obligation)
	}
	return result, rows.Err()
}

func weekdayValue(wd *time.Weekday) any {
	if wd == nil {
		return nil
	}
	return int64(*wd)
}

func intValue(v *int) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func monthValue(m *time.Month) any {
	if m == nil {
		return nil
	}
	return int64(*m)
}
