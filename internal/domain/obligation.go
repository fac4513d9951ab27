package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type ObligationKind string

const (
	KindIncome  ObligationKind = "income"
	KindExpense ObligationKind = "expense"

	// KindTransfer exists only to be rejected: transfers are never
	// recurring obligations.
	KindTransfer ObligationKind = "transfer"
)

type ObligationStatus string

const (
	ObligationActive   ObligationStatus = "active"
	ObligationPaused   ObligationStatus = "paused"
	ObligationArchived ObligationStatus = "archived"
)

var (
	ErrTransferNotAllowed = errors.New("transfers are not allowed for recurring obligations")
	ErrInvalidKind        = errors.New("invalid obligation kind")
	ErrInvalidAmount      = errors.New("obligation amount must be positive")
	ErrInvalidDateRange   = errors.New("valid_until must be after valid_from")
	ErrAlreadyPaused      = errors.New("obligation is already paused")
	ErrAlreadyActive      = errors.New("obligation is already active")
)

// Obligation is a recurring income/expense template that periodically
// produces concrete ledger transactions. It is mutated by replacement:
// every lifecycle method takes a value receiver and returns a new
// snapshot, so a snapshot held by one caller never changes under another.
type Obligation struct {
	ID            string           `json:"id,omitempty"`
	WorkspaceID   string           `json:"workspace_id"`
	AccountID     string           `json:"account_id"`
	CategoryID    string           `json:"category_id"`
	SubcategoryID string           `json:"subcategory_id,omitempty"`
	Kind          ObligationKind   `json:"kind"`
	Amount        decimal.Decimal  `json:"amount"`
	Currency      string           `json:"currency"`
	Schedule      Schedule         `json:"schedule"`
	ValidFrom     time.Time        `json:"valid_from"`
	ValidUntil    *time.Time       `json:"valid_until,omitempty"`
	NextRunDate   time.Time        `json:"next_run_date"`
	LastRunDate   *time.Time       `json:"last_run_date,omitempty"`
	IsActive      bool             `json:"is_active"`
	IsArchived    bool             `json:"is_archived"`
	Version       int              `json:"version"`
	CreatedAt     time.Time        `json:"created_at"`
}

type ObligationParams struct {
	WorkspaceID   string
	AccountID     string
	CategoryID    string
	SubcategoryID string
	Kind          ObligationKind
	Amount        decimal.Decimal
	Currency      string
	Schedule      Schedule
	ValidFrom     time.Time
	ValidUntil    *time.Time
	NextRunDate   *time.Time
}

// NewObligation builds an active obligation. The ID stays empty until the
// repository assigns one on first save. NextRunDate defaults to ValidFrom
// unless explicitly overridden.
func NewObligation(p ObligationParams) (Obligation, error) {
	switch p.Kind {
	case KindIncome, KindExpense:
	case KindTransfer:
		return Obligation{}, ErrTransferNotAllowed
	default:
		return Obligation{}, fmt.Errorf("%w: %q", ErrInvalidKind, p.Kind)
	}

	if !p.Amount.IsPositive() {
		return Obligation{}, fmt.Errorf("%w: %s", ErrInvalidAmount, p.Amount)
	}

	if err := p.Schedule.Validate(); err != nil {
		return Obligation{}, fmt.Errorf("invalid schedule: %w", err)
	}

	if p.ValidUntil != nil && !p.ValidUntil.After(p.ValidFrom) {
		return Obligation{}, ErrInvalidDateRange
	}

	nextRun := p.ValidFrom
	if p.NextRunDate != nil {
		// No occurrences before the validity window opens.
		if p.NextRunDate.Before(p.ValidFrom) {
			return Obligation{}, fmt.Errorf("%w: next_run_date %s before valid_from %s",
				ErrInvalidDateRange, p.NextRunDate.Format("2006-01-02"), p.ValidFrom.Format("2006-01-02"))
		}
		nextRun = *p.NextRunDate
	}

	return Obligation{
		WorkspaceID:   p.WorkspaceID,
		AccountID:     p.AccountID,
		CategoryID:    p.CategoryID,
		SubcategoryID: p.SubcategoryID,
		Kind:          p.Kind,
		Amount:        p.Amount,
		Currency:      p.Currency,
		Schedule:      p.Schedule,
		ValidFrom:     p.ValidFrom,
		ValidUntil:    copyTime(p.ValidUntil),
		NextRunDate:   nextRun,
		IsActive:      true,
	}, nil
}

// ObligationUpdate carries the fields an update may change; nil means
// "leave unchanged".
type ObligationUpdate struct {
	AccountID     *string
	CategoryID    *string
	SubcategoryID *string
	Kind          *ObligationKind
	Amount        *decimal.Decimal
	Currency      *string
	Schedule      *Schedule
	ValidFrom     *time.Time
	ValidUntil    *time.Time
}

// Update merges the changes, re-runs the creation validations on the merged
// field set and recomputes NextRunDate when a schedule-affecting field
// (schedule or valid_from) actually changed: an obligation that has already
// materialized advances its LastRunDate through the new rule, one that
// never ran resets to the new ValidFrom.
func (o Obligation) Update(u ObligationUpdate) (Obligation, error) {
	merged := o

	if u.AccountID != nil {
		merged.AccountID = *u.AccountID
	}
	if u.CategoryID != nil {
		merged.CategoryID = *u.CategoryID
	}
	if u.SubcategoryID != nil {
		merged.SubcategoryID = *u.SubcategoryID
	}
	if u.Kind != nil {
		merged.Kind = *u.Kind
	}
	if u.Amount != nil {
		merged.Amount = *u.Amount
	}
	if u.Currency != nil {
		merged.Currency = *u.Currency
	}
	if u.Schedule != nil {
		merged.Schedule = *u.Schedule
	}
	if u.ValidFrom != nil {
		merged.ValidFrom = *u.ValidFrom
	}
	if u.ValidUntil != nil {
		merged.ValidUntil = copyTime(u.ValidUntil)
	}

	switch merged.Kind {
	case KindIncome, KindExpense:
	case KindTransfer:
		return Obligation{}, ErrTransferNotAllowed
	default:
		return Obligation{}, fmt.Errorf("%w: %q", ErrInvalidKind, merged.Kind)
	}
	if !merged.Amount.IsPositive() {
		return Obligation{}, fmt.Errorf("%w: %s", ErrInvalidAmount, merged.Amount)
	}
	if err := merged.Schedule.Validate(); err != nil {
		return Obligation{}, fmt.Errorf("invalid schedule: %w", err)
	}
	if merged.ValidUntil != nil && !merged.ValidUntil.After(merged.ValidFrom) {
		return Obligation{}, ErrInvalidDateRange
	}

	scheduleChanged := !schedulesEqual(o.Schedule, merged.Schedule) || !o.ValidFrom.Equal(merged.ValidFrom)
	if scheduleChanged {
		if merged.LastRunDate != nil {
			merged.NextRunDate = merged.Schedule.NextOccurrence(*merged.LastRunDate)
			// No occurrences before the validity window opens.
			if merged.NextRunDate.Before(merged.ValidFrom) {
				merged.NextRunDate = merged.ValidFrom
			}
		} else {
			merged.NextRunDate = merged.ValidFrom
		}
	}

	return merged, nil
}

func (o Obligation) Pause() (Obligation, error) {
	if !o.IsActive {
		return Obligation{}, ErrAlreadyPaused
	}
	o.IsActive = false
	return o, nil
}

func (o Obligation) Resume() (Obligation, error) {
	if o.IsActive {
		return Obligation{}, ErrAlreadyActive
	}
	o.IsActive = true
	return o, nil
}

// Archive is idempotent and always succeeds. Archived is terminal; the
// entity only tracks the flags, rejecting further calls is the
// orchestrator's job.
func (o Obligation) Archive() Obligation {
	o.IsArchived = true
	o.IsActive = false
	return o
}

// Advance consumes the current NextRunDate as the materialized occurrence
// and moves to the next one. When the candidate falls past ValidUntil the
// obligation expires naturally: it deactivates but still records the
// candidate for auditability. Advance never fails; callers gate it with
// IsDue.
func (o Obligation) Advance() Obligation {
	consumed := o.NextRunDate
	o.LastRunDate = &consumed

	candidate := o.Schedule.NextOccurrence(consumed)
	o.NextRunDate = candidate

	if o.ValidUntil != nil && candidate.After(*o.ValidUntil) {
		o.IsActive = false
	}

	return o
}

func (o Obligation) IsDue(asOf time.Time) bool {
	return o.IsActive && !o.IsArchived && !o.NextRunDate.After(asOf)
}

func (o Obligation) Status() ObligationStatus {
	switch {
	case o.IsArchived:
		return ObligationArchived
	case o.IsActive:
		return ObligationActive
	default:
		return ObligationPaused
	}
}

func schedulesEqual(a, b Schedule) bool {
	if a.Frequency != b.Frequency || a.Interval != b.Interval {
		return false
	}
	if !weekdayPtrEqual(a.DayOfWeek, b.DayOfWeek) {
		return false
	}
	if !intPtrEqual(a.DayOfMonth, b.DayOfMonth) {
		return false
	}
	return monthPtrEqual(a.MonthOfYear, b.MonthOfYear)
}

func weekdayPtrEqual(a, b *time.Weekday) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func monthPtrEqual(a, b *time.Month) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
