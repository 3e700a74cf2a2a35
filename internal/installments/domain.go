package installments

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// PaymentStatus enumerates installment settlement states.
type PaymentStatus string

const (
	StatusUnpaid  PaymentStatus = "unpaid"
	StatusPartial PaymentStatus = "partial"
	StatusPaid    PaymentStatus = "paid"
)

// Valid reports whether the status is one of the known values.
func (s PaymentStatus) Valid() bool {
	switch s {
	case StatusUnpaid, StatusPartial, StatusPaid:
		return true
	}
	return false
}

// PaymentMethod enumerates accepted payment instruments.
type PaymentMethod string

const (
	MethodCash         PaymentMethod = "cash"
	MethodCard         PaymentMethod = "card"
	MethodBankTransfer PaymentMethod = "bank_transfer"
)

// Valid reports whether the method is one of the known values.
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodCard, MethodBankTransfer:
		return true
	}
	return false
}

// DeriveStatus computes the settlement state from scheduled and paid amounts.
func DeriveStatus(amount, paid float64) PaymentStatus {
	switch {
	case paid <= 0:
		return StatusUnpaid
	case paid >= amount:
		return StatusPaid
	default:
		return StatusPartial
	}
}

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// Date is a calendar date serialised as yyyy-MM-dd. The zero value encodes
// as an empty string and is treated as "unknown".
type Date struct {
	time.Time
}

// NewDate truncates t to its calendar date in UTC.
func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a yyyy-MM-dd string. A longer ISO timestamp is accepted
// and truncated to its date part.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("installments: invalid date %q: %w", s, err)
	}
	return Date{t}, nil
}

// String formats the date as yyyy-MM-dd.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// MarshalJSON implements json.Marshaler.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON implements json.Unmarshaler. Unparsable values decode to the
// zero Date instead of failing the whole document.
func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		d.Time = time.Time{}
		return nil
	}
	if s == "" {
		d.Time = time.Time{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		d.Time = time.Time{}
		return nil
	}
	*d = parsed
	return nil
}

// Installment is a single scheduled payment obligation.
type Installment struct {
	ID            int64         `json:"id"`
	SaleID        int64         `json:"sale_id"`
	CustomerID    int64         `json:"customer_id"`
	Amount        float64       `json:"amount"`
	PaidAmount    float64       `json:"paid_amount"`
	DueDate       Date          `json:"due_date"`
	PaidAt        *time.Time    `json:"paid_at,omitempty"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	Notes         string        `json:"notes,omitempty"`
	CustomerName  string        `json:"customer_name,omitempty"`
	CustomerPhone string        `json:"customer_phone,omitempty"`
	InvoiceNo     string        `json:"invoice_no,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Outstanding returns the unpaid balance, never negative.
func (i Installment) Outstanding() float64 {
	if rest := i.Amount - i.PaidAmount; rest > 0 {
		return rest
	}
	return 0
}

// Plan groups all installments sharing one sale. Totals are optional: when
// the producer leaves them out Summarize recomputes them from Installments.
type Plan struct {
	SaleID          int64          `json:"sale_id"`
	InvoiceNo       string         `json:"invoice_no,omitempty"`
	CustomerID      int64          `json:"customer_id"`
	CustomerName    string         `json:"customer_name,omitempty"`
	CustomerPhone   string         `json:"customer_phone,omitempty"`
	Installments    []Installment  `json:"installments"`
	TotalAmount     *float64       `json:"total_amount,omitempty"`
	PaidAmount      *float64       `json:"paid_amount,omitempty"`
	RemainingAmount *float64       `json:"remaining_amount,omitempty"`
	PaymentStatus   *PaymentStatus `json:"payment_status,omitempty"`
	CreatedAt       *time.Time     `json:"created_at,omitempty"`
}

// PlanProduct is one product line of a plan creation request.
type PlanProduct struct {
	ProductID int64   `json:"product_id" validate:"required,gt=0"`
	Quantity  float64 `json:"quantity" validate:"required,gt=0"`
	Price     float64 `json:"price" validate:"gte=0"`
}

// PlanRequest describes an installment plan to create from products.
type PlanRequest struct {
	CustomerID        int64         `json:"customer_id" validate:"required,gt=0"`
	Products          []PlanProduct `json:"products" validate:"required,min=1,dive"`
	InstallmentMonths int           `json:"installment_months" validate:"required,gt=0,lte=120"`
	StartingDueDate   Date          `json:"starting_due_date"`
	PaymentMethod     PaymentMethod `json:"payment_method" validate:"required,oneof=cash card bank_transfer"`
	Notes             string        `json:"notes,omitempty" validate:"max=1000"`
	ActorID           int64         `json:"-"`
}

// Total returns Σ quantity × price over all product lines.
func (r PlanRequest) Total() float64 {
	var total float64
	for _, p := range r.Products {
		total += p.Quantity * p.Price
	}
	return total
}

// PlanResult is returned after a plan has been created.
type PlanResult struct {
	SaleID       int64         `json:"sale_id"`
	InvoiceNo    string        `json:"invoice_no"`
	TotalAmount  float64       `json:"total_amount"`
	Installments []Installment `json:"installments"`
}

// ConvertRequest converts a set of debts into installments.
type ConvertRequest struct {
	DebtIDs           []int64       `json:"debt_ids" validate:"required,min=1,dive,gt=0"`
	InstallmentMonths int           `json:"installment_months" validate:"required,gt=0,lte=120"`
	StartingDueDate   Date          `json:"starting_due_date"`
	PaymentMethod     PaymentMethod `json:"payment_method" validate:"omitempty,oneof=cash card bank_transfer"`
	ActorID           int64         `json:"-"`
}

// DebtResult is the per-debt outcome of a conversion batch.
type DebtResult struct {
	DebtID       int64         `json:"debt_id"`
	InvoiceNo    string        `json:"invoice_no,omitempty"`
	Installments []Installment `json:"installments,omitempty"`
	Err          error         `json:"-"`
	Error        string        `json:"error,omitempty"`
}

// OK reports whether the debt converted successfully. Decoded results only
// carry the Error text.
func (r DebtResult) OK() bool {
	return r.Err == nil && r.Error == ""
}

// ConversionSummary aggregates the outcome of a conversion batch.
type ConversionSummary struct {
	SuccessCount             int          `json:"success_count"`
	ErrorCount               int          `json:"error_count"`
	TotalInstallmentsCreated int          `json:"total_installments_created"`
	Results                  []DebtResult `json:"results"`
	Message                  string       `json:"message"`
}

// AllFailed reports whether every debt in the batch failed.
func (s ConversionSummary) AllFailed() bool {
	return len(s.Results) > 0 && s.SuccessCount == 0
}

// PaymentRequest records a payment against one installment.
type PaymentRequest struct {
	InstallmentID  int64         `json:"-"`
	PaidAmount     float64       `json:"paid_amount" validate:"required,gt=0"`
	PaymentMethod  PaymentMethod `json:"payment_method" validate:"required,oneof=cash card bank_transfer"`
	Notes          string        `json:"notes,omitempty" validate:"max=1000"`
	MoneyBoxID     int64         `json:"money_box_id" validate:"required,gt=0"`
	IdempotencyKey string        `json:"-"`
	ActorID        int64         `json:"-"`
}

// Receipt acknowledges a recorded payment.
type Receipt struct {
	ID            int64         `json:"id"`
	ReceiptNumber string        `json:"receipt_number"`
	InstallmentID int64         `json:"installment_id"`
	CustomerName  string        `json:"customer_name"`
	SaleInvoiceNo string        `json:"sale_invoice_no"`
	Amount        float64       `json:"amount"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	MoneyBoxID    int64         `json:"money_box_id"`
	Notes         string        `json:"notes,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// InstallmentInput creates or replaces a single installment.
type InstallmentInput struct {
	SaleID        int64         `json:"sale_id" validate:"required,gt=0"`
	CustomerID    int64         `json:"customer_id" validate:"required,gt=0"`
	Amount        float64       `json:"amount" validate:"gt=0"`
	PaidAmount    float64       `json:"paid_amount" validate:"gte=0"`
	DueDate       Date          `json:"due_date"`
	PaymentMethod PaymentMethod `json:"payment_method" validate:"required,oneof=cash card bank_transfer"`
	Notes         string        `json:"notes,omitempty" validate:"max=1000"`
}

// GroupedQuery filters the grouped installments listing.
type GroupedQuery struct {
	Page          int           `json:"page"`
	Limit         int           `json:"limit"`
	Search        string        `json:"search,omitempty"`
	PaymentStatus PaymentStatus `json:"payment_status,omitempty"`
	CustomerID    int64         `json:"customer_id,omitempty"`
}

// Normalize applies paging defaults.
func (q GroupedQuery) Normalize() GroupedQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = DefaultPageSize
	}
	if q.Limit > MaxPageSize {
		q.Limit = MaxPageSize
	}
	q.Search = strings.TrimSpace(q.Search)
	return q
}

// Offset returns the row offset for the page.
func (q GroupedQuery) Offset() int {
	q = q.Normalize()
	return (q.Page - 1) * q.Limit
}

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// GroupedPage is one page of the grouped listing.
type GroupedPage struct {
	Items      []Plan `json:"items"`
	Page       int    `json:"page"`
	Limit      int    `json:"limit"`
	Total      int    `json:"total"`
	TotalPages int    `json:"total_pages"`
}

// SaleInput is the synthetic sale created for a plan.
type SaleInput struct {
	InvoiceNo     string
	CustomerID    int64
	Total         float64
	PaymentMethod PaymentMethod
	Notes         string
	Lines         []PlanProduct
	ActorID       int64
}

// Sale is the persisted synthetic sale.
type Sale struct {
	ID           int64
	InvoiceNo    string
	CustomerName string
}

// CustomerOverdue summarises overdue installments of one customer.
type CustomerOverdue struct {
	CustomerID   int64   `json:"customer_id"`
	CustomerName string  `json:"customer_name"`
	Count        int     `json:"count"`
	Outstanding  float64 `json:"outstanding"`
	OldestDue    Date    `json:"oldest_due"`
}
