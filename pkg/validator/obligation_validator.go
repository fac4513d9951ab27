package validator

import (
	"errors"
	"fmt"
	"obligation_manager/internal/domain"
	"regexp"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount   = errors.New("invalid obligation amount")
	ErrInvalidCurrency = errors.New("invalid currency")
	ErrInvalidAccount  = errors.New("invalid account reference")
)

type ObligationValidator struct {
	currencyRegex *regexp.Regexp
}

func NewObligationValidator() *ObligationValidator {
	return &ObligationValidator{
		currencyRegex: regexp.MustCompile(`^[A-Z]{3}$`),
	}
}

func (v *ObligationValidator) ValidateObligation(p domain.ObligationParams) error {
	var errs []error

	if !p.Amount.IsPositive() {
		errs = append(errs, ErrInvalidAmount)
	}

	if !v.currencyRegex.MatchString(p.Currency) {
		errs = append(errs, ErrInvalidCurrency)
	}

	if p.WorkspaceID == "" {
		errs = append(errs, errors.New("workspace_id is required"))
	}
	if p.AccountID == "" {
		errs = append(errs, ErrInvalidAccount)
	}
	if p.CategoryID == "" {
		errs = append(errs, errors.New("category_id is required"))
	}

	if p.ValidFrom.IsZero() {
		errs = append(errs, errors.New("valid_from is required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors: %v", errs)
	}

	return nil
}

func (v *ObligationValidator) ValidateAmount(amount decimal.Decimal, currency string) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	limits := map[string]int64{
		"USD": 1000000,
		"EUR": 900000,
		"GBP": 800000,
	}

	if max, exists := limits[currency]; exists && amount.GreaterThan(decimal.NewFromInt(max)) {
		return fmt.Errorf("amount exceeds maximum limit for %s: %s", currency, amount)
	}

	return nil
}
