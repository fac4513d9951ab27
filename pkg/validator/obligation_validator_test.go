package validator

import (
	"errors"
	"obligation_manager/internal/domain"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func validParams(t *testing.T) domain.ObligationParams {
	t.Helper()
	schedule, err := domain.NewMonthlySchedule(1, 15)
	if err != nil {
		t.Fatalf("unexpected schedule error: %v", err)
	}
	return domain.ObligationParams{
		WorkspaceID: "ws1",
		AccountID:   "acc1",
		CategoryID:  "cat1",
		Kind:        domain.KindExpense,
		Amount:      decimal.NewFromInt(100),
		Currency:    "USD",
		Schedule:    schedule,
		ValidFrom:   time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC),
	}
}

func TestValidateObligation_Valid(t *testing.T) {
	v := NewObligationValidator()

	if err := v.ValidateObligation(validParams(t)); err != nil {
		t.Errorf("expected valid params, got %v", err)
	}
}

func TestValidateObligation_Invalid(t *testing.T) {
	v := NewObligationValidator()

	cases := []struct {
		name    string
		mutate  func(*domain.ObligationParams)
		wantMsg string
	}{
		{"zero amount", func(p *domain.ObligationParams) { p.Amount = decimal.Zero }, "invalid obligation amount"},
		{"negative amount", func(p *domain.ObligationParams) { p.Amount = decimal.NewFromInt(-5) }, "invalid obligation amount"},
		{"lowercase currency", func(p *domain.ObligationParams) { p.Currency = "usd" }, "invalid currency"},
		{"long currency", func(p *domain.ObligationParams) { p.Currency = "USDT" }, "invalid currency"},
		{"missing workspace", func(p *domain.ObligationParams) { p.WorkspaceID = "" }, "workspace_id is required"},
		{"missing account", func(p *domain.ObligationParams) { p.AccountID = "" }, "invalid account reference"},
		{"missing category", func(p *domain.ObligationParams) { p.CategoryID = "" }, "category_id is required"},
		{"zero valid_from", func(p *domain.ObligationParams) { p.ValidFrom = time.Time{} }, "valid_from is required"},
	}

	for _, tc := range cases {
		params := validParams(t)
		tc.mutate(&params)

		err := v.ValidateObligation(params)
		if err == nil {
			t.Errorf("%s: expected validation error", tc.name)
			continue
		}
		if !strings.Contains(err.Error(), tc.wantMsg) {
			t.Errorf("%s: expected error containing %q, got %v", tc.name, tc.wantMsg, err)
		}
	}
}

func TestValidateAmount_Limits(t *testing.T) {
	v := NewObligationValidator()

	if err := v.ValidateAmount(decimal.NewFromInt(500), "USD"); err != nil {
		t.Errorf("expected amount within limit, got %v", err)
	}

	if err := v.ValidateAmount(decimal.NewFromInt(2000000), "USD"); err == nil {
		t.Error("expected error for amount over USD limit")
	}

	// Unknown currencies carry no limit.
	if err := v.ValidateAmount(decimal.NewFromInt(2000000), "JPY"); err != nil {
		t.Errorf("expected no limit for JPY, got %v", err)
	}

	if err := v.ValidateAmount(decimal.Zero, "USD"); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}
}
