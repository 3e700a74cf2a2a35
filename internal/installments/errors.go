package installments

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound            = errors.New("installment not found")
	ErrSaleNotFound        = errors.New("sale not found")
	ErrDebtNotFound        = errors.New("debt not found")
	ErrProductNotFound     = errors.New("product not found")
	ErrMoneyBoxNotFound    = errors.New("money box not found")
	ErrCustomerRequired    = errors.New("customer is required")
	ErrNoProducts          = errors.New("at least one product is required")
	ErrInvalidMonths       = errors.New("installment months must be positive")
	ErrInvalidTotal        = errors.New("total must be positive")
	ErrTooManyInstallments = errors.New("installment count too large for amount")
	ErrInvalidAmount       = errors.New("paid amount must be greater than zero")
	ErrMoneyBoxRequired    = errors.New("money box must be selected")
	ErrInvalidMethod       = errors.New("invalid payment method")
	ErrDueDateRequired     = errors.New("starting due date is required")
	ErrNothingToConvert    = errors.New("debt has no remaining balance")
	ErrAlreadyConverted    = errors.New("debt already has installments")
	ErrDuplicatePayment    = errors.New("payment already recorded for this request")
)

// FieldErrors carries per-field validation messages, keyed by JSON field
// name.
type FieldErrors map[string]string

// Error implements error.
func (f FieldErrors) Error() string {
	if len(f) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+f[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Fields returns the field map.
func (f FieldErrors) Fields() map[string]string {
	return f
}

// Add records msg for field unless one is already present.
func (f FieldErrors) Add(field, msg string) {
	if _, ok := f[field]; !ok {
		f[field] = msg
	}
}

// Err returns nil when empty.
func (f FieldErrors) Err() error {
	if len(f) == 0 {
		return nil
	}
	return f
}

// StockError reports a product whose requested quantity exceeds stock.
type StockError struct {
	ProductID   int64
	ProductName string
	Available   float64
	Required    float64
}

// ErrInsufficientStock is matched by every *StockError via errors.Is.
var ErrInsufficientStock = errors.New("insufficient stock")

// Error uses the backend wording so clients can pattern-match it.
func (e *StockError) Error() string {
	return fmt.Sprintf("Insufficient stock for product ID %d. Available: %s, Required: %s",
		e.ProductID, formatQty(e.Available), formatQty(e.Required))
}

// Is makes errors.Is(err, ErrInsufficientStock) true.
func (e *StockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

func formatQty(v float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.3f", v), "0"), ".")
}
