package debts

import (
	"time"

	"github.com/urcash/urcash/internal/platform/httpx"
)

// Status mirrors the settlement state of a debt.
type Status string

const (
	StatusUnpaid  Status = "unpaid"
	StatusPartial Status = "partial"
	StatusPaid    Status = "paid"
)

// Debt is an unpaid sale balance owned by the debts subsystem.
type Debt struct {
	ID                int64     `json:"id"`
	SaleID            int64     `json:"sale_id"`
	CustomerID        int64     `json:"customer_id"`
	CustomerName      string    `json:"customer_name,omitempty"`
	InvoiceNo         string    `json:"invoice_no"`
	RemainingAmount   float64   `json:"remaining_amount"`
	DueDate           time.Time `json:"due_date"`
	Status            Status    `json:"status"`
	InstallmentsCount int       `json:"installments_count"`
}

// ErrNotFound is returned for unknown debt ids.
var ErrNotFound = httpx.NotFoundError("debt not found")

// Eligible reports whether the debt may be converted into installments: it
// is not paid and has no installments yet.
func Eligible(d Debt) bool {
	return d.Status != StatusPaid && d.InstallmentsCount == 0
}

// FilterEligible keeps the convertible debts.
func FilterEligible(list []Debt) []Debt {
	out := make([]Debt, 0, len(list))
	for _, d := range list {
		if Eligible(d) {
			out = append(out, d)
		}
	}
	return out
}
