package installments

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// PlanSummary carries the display totals of a plan.
type PlanSummary struct {
	TotalAmount     float64       `json:"total_amount"`
	PaidAmount      float64       `json:"paid_amount"`
	RemainingAmount float64       `json:"remaining_amount"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
	Overdue         int           `json:"overdue"`
}

// Summarize returns plan totals. Server supplied totals win; absent ones are
// recomputed from the nested installments (remaining = total - paid).
func Summarize(p Plan) PlanSummary {
	var total, paid float64
	for _, inst := range p.Installments {
		total += inst.Amount
		paid += inst.PaidAmount
	}
	if p.TotalAmount != nil {
		total = *p.TotalAmount
	}
	if p.PaidAmount != nil {
		paid = *p.PaidAmount
	}
	remaining := total - paid
	if p.RemainingAmount != nil {
		remaining = *p.RemainingAmount
	}
	status := DeriveStatus(total, paid)
	if p.PaymentStatus != nil && p.PaymentStatus.Valid() {
		status = *p.PaymentStatus
	}
	return PlanSummary{
		TotalAmount:     total,
		PaidAmount:      paid,
		RemainingAmount: remaining,
		PaymentStatus:   status,
	}
}

// SummarizeAt is Summarize plus the overdue count relative to now.
func SummarizeAt(p Plan, now time.Time) PlanSummary {
	s := Summarize(p)
	s.Overdue = OverdueCount(p, now)
	return s
}

// IsOverdue reports whether a due date has passed at now. A due date stands
// for midnight UTC of that day, so an installment is overdue on its due day.
func IsOverdue(due Date, now time.Time) bool {
	return !due.IsZero() && due.Time.Before(now)
}

// OverdueCutoff is the latest due date that is overdue at now.
func OverdueCutoff(now time.Time) Date {
	return NewDate(now.UTC().Add(-time.Nanosecond))
}

// OverdueCount counts unpaid installments whose due date has passed at now.
// Installments without a usable due date are ignored.
func OverdueCount(p Plan, now time.Time) int {
	count := 0
	for _, inst := range p.Installments {
		if inst.PaymentStatus == StatusPaid {
			continue
		}
		if IsOverdue(inst.DueDate, now) {
			count++
		}
	}
	return count
}

// SuggestedPayment is the pre-filled amount for a payment: the outstanding
// balance, never negative.
func SuggestedPayment(inst Installment) float64 {
	return inst.Outstanding()
}

// Filter narrows a page of plans.
type Filter struct {
	PaymentStatus PaymentStatus
	CustomerID    int64
	Search        string
}

// FilterPlans applies f to plans. Search is split on whitespace and every
// term must occur, case-insensitively, in the customer name, phone, invoice
// number or sale id.
func FilterPlans(plans []Plan, f Filter) []Plan {
	terms := strings.Fields(strings.ToLower(f.Search))
	out := make([]Plan, 0, len(plans))
	for _, p := range plans {
		if f.PaymentStatus != "" && Summarize(p).PaymentStatus != f.PaymentStatus {
			continue
		}
		if f.CustomerID != 0 && p.CustomerID != f.CustomerID {
			continue
		}
		if !matchesAll(searchText(p), terms) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func searchText(p Plan) string {
	return strings.ToLower(strings.Join([]string{
		p.CustomerName,
		p.CustomerPhone,
		p.InvoiceNo,
		strconv.FormatInt(p.SaleID, 10),
	}, " "))
}

func matchesAll(haystack string, terms []string) bool {
	for _, term := range terms {
		if !strings.Contains(haystack, term) {
			return false
		}
	}
	return true
}

// GroupInstallments folds flat installments into plans keyed by sale id.
// Plans keep the order in which their sale first appears; installments are
// ordered by due date then id. Totals are filled from the installments.
func GroupInstallments(items []Installment) []Plan {
	index := make(map[int64]int)
	var plans []Plan
	for _, inst := range items {
		pos, ok := index[inst.SaleID]
		if !ok {
			pos = len(plans)
			index[inst.SaleID] = pos
			plans = append(plans, Plan{
				SaleID:        inst.SaleID,
				InvoiceNo:     inst.InvoiceNo,
				CustomerID:    inst.CustomerID,
				CustomerName:  inst.CustomerName,
				CustomerPhone: inst.CustomerPhone,
			})
		}
		plans[pos].Installments = append(plans[pos].Installments, inst)
	}
	for i := range plans {
		insts := plans[i].Installments
		sort.SliceStable(insts, func(a, b int) bool {
			if !insts[a].DueDate.Equal(insts[b].DueDate.Time) {
				return insts[a].DueDate.Before(insts[b].DueDate.Time)
			}
			return insts[a].ID < insts[b].ID
		})
		s := Summarize(plans[i])
		total, paid, remaining, status := s.TotalAmount, s.PaidAmount, s.RemainingAmount, s.PaymentStatus
		plans[i].TotalAmount = &total
		plans[i].PaidAmount = &paid
		plans[i].RemainingAmount = &remaining
		plans[i].PaymentStatus = &status
		if created := earliestCreated(insts); !created.IsZero() {
			plans[i].CreatedAt = &created
		}
	}
	return plans
}

func earliestCreated(insts []Installment) time.Time {
	var first time.Time
	for _, inst := range insts {
		if inst.CreatedAt.IsZero() {
			continue
		}
		if first.IsZero() || inst.CreatedAt.Before(first) {
			first = inst.CreatedAt
		}
	}
	return first
}
