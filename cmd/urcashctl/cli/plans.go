package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/urcash/urcash/internal/installments"
)

// PlanRow is the JSON shape of one listed plan.
type PlanRow struct {
	SaleID       int64                      `json:"sale_id"`
	InvoiceNo    string                     `json:"invoice_no"`
	CustomerName string                     `json:"customer_name"`
	Installments int                        `json:"installments"`
	Overdue      int                        `json:"overdue"`
	Summary      installments.PlanSummary   `json:"summary"`
	Items        []installments.Installment `json:"items,omitempty"`
}

// PlansOutput is the JSON response of the plans command.
type PlansOutput struct {
	Page       int       `json:"page"`
	TotalPages int       `json:"total_pages"`
	Total      int       `json:"total"`
	Plans      []PlanRow `json:"plans"`
}

func (a *App) plans(ctx context.Context, args []string) int {
	fs := a.flagSet("plans")
	var (
		q        installments.GroupedQuery
		status   string
		detailed bool
		asJSON   bool
	)
	fs.IntVar(&q.Page, "page", 1, "page number")
	fs.IntVar(&q.Limit, "limit", installments.DefaultPageSize, "plans per page")
	fs.StringVar(&q.Search, "search", "", "customer name, phone or invoice")
	fs.StringVar(&status, "status", "", "unpaid, partial or paid")
	fs.Int64Var(&q.CustomerID, "customer", 0, "customer id")
	fs.BoolVar(&detailed, "details", false, "include every installment")
	fs.BoolVar(&asJSON, "json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}
	q.PaymentStatus = installments.PaymentStatus(status)
	if status != "" && !q.PaymentStatus.Valid() {
		return a.usageError("plans", "invalid --status %q", status)
	}

	page, err := a.API.ListGrouped(ctx, q)
	if err != nil {
		return a.fail("plans", err)
	}
	now := a.Now()
	out := PlansOutput{Page: page.Page, TotalPages: page.TotalPages, Total: page.Total, Plans: make([]PlanRow, 0, len(page.Items))}
	for _, p := range page.Items {
		row := PlanRow{
			SaleID:       p.SaleID,
			InvoiceNo:    p.InvoiceNo,
			CustomerName: p.CustomerName,
			Installments: len(p.Installments),
			Overdue:      installments.OverdueCount(p, now),
			Summary:      installments.SummarizeAt(p, now),
		}
		if detailed {
			row.Items = p.Installments
		}
		out.Plans = append(out.Plans, row)
	}
	if asJSON {
		return a.writeJSON("plans", out)
	}

	loc := a.Localizer
	tw := tabwriter.NewWriter(a.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "SALE\tINVOICE\tCUSTOMER\tCOUNT\tTOTAL\tPAID\tREMAINING\tSTATUS\tOVERDUE")
	for _, row := range out.Plans {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\t%s\t%s\t%d\n",
			row.SaleID, row.InvoiceNo, row.CustomerName, row.Installments,
			loc.Amount(row.Summary.TotalAmount), loc.Amount(row.Summary.PaidAmount), loc.Amount(row.Summary.RemainingAmount),
			installments.StatusLabel(row.Summary.PaymentStatus), row.Overdue)
		if detailed {
			for _, inst := range row.Items {
				_, _ = fmt.Fprintf(tw, "  #%d\t%s\t\t\t%s\t%s\t%s\t%s\t\n",
					inst.ID, inst.DueDate.String(), loc.Amount(inst.Amount), loc.Amount(inst.PaidAmount),
					loc.Amount(inst.Outstanding()), installments.StatusLabel(inst.PaymentStatus))
			}
		}
	}
	_ = tw.Flush()
	_, _ = fmt.Fprintf(a.Stdout, "page %d/%d, %d plans\n", out.Page, out.TotalPages, out.Total)
	return ExitOK
}
