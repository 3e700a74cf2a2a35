package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
)

func (a *App) debts(ctx context.Context, args []string) int {
	fs := a.flagSet("debts")
	var (
		customerID int64
		all        bool
		asJSON     bool
	)
	fs.Int64Var(&customerID, "customer", 0, "customer id (required)")
	fs.BoolVar(&all, "all", false, "include debts that cannot be converted")
	fs.BoolVar(&asJSON, "json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}
	if customerID <= 0 {
		return a.usageError("debts", "--customer is required")
	}

	list, err := a.API.CustomerDebts(ctx, customerID, !all)
	if err != nil {
		return a.fail("debts", err)
	}
	if asJSON {
		return a.writeJSON("debts", list)
	}
	if len(list) == 0 {
		_, _ = fmt.Fprintln(a.Stdout, "no debts")
		return ExitOK
	}
	tw := tabwriter.NewWriter(a.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "DEBT\tINVOICE\tREMAINING\tDUE\tSTATUS\tINSTALLMENTS")
	for _, d := range list {
		due := ""
		if !d.DueDate.IsZero() {
			due = d.DueDate.Format("2006-01-02")
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\n",
			d.ID, d.InvoiceNo, a.Localizer.Amount(d.RemainingAmount), due, d.Status, d.InstallmentsCount)
	}
	_ = tw.Flush()
	return ExitOK
}
