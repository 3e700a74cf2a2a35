package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/urcash/urcash/internal/installments"
)

func (a *App) convert(ctx context.Context, args []string) int {
	fs := a.flagSet("convert")
	var (
		rawIDs []string
		months int
		start  string
		method string
		asJSON bool
	)
	fs.StringSliceVar(&rawIDs, "debt", nil, "debt id to convert (repeatable or comma separated)")
	fs.IntVar(&months, "months", 0, "number of monthly installments per debt")
	fs.StringVar(&start, "start", "", "first due date (YYYY-MM-DD, default today)")
	fs.StringVar(&method, "method", string(installments.MethodCash), "payment method")
	fs.BoolVar(&asJSON, "json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}
	ids, err := parseIDs(rawIDs)
	if err != nil {
		return a.usageError("convert", "%v", err)
	}
	if len(ids) == 0 {
		return a.usageError("convert", "at least one --debt is required")
	}
	if months <= 0 {
		return a.usageError("convert", "--months must be positive")
	}
	due := installments.NewDate(a.Now())
	if start != "" {
		if due, err = installments.ParseDate(start); err != nil {
			return a.usageError("convert", "invalid --start %q", start)
		}
	}

	summary, err := a.API.ConvertDebts(ctx, installments.ConvertRequest{
		DebtIDs:           ids,
		InstallmentMonths: months,
		StartingDueDate:   due,
		PaymentMethod:     installments.PaymentMethod(method),
	})
	if err != nil {
		return a.fail("convert", err)
	}

	code := ExitOK
	if summary.ErrorCount > 0 {
		code = ExitPartial
	}
	if summary.AllFailed() {
		code = ExitError
	}
	if asJSON {
		if c := a.writeJSON("convert", summary); c != ExitOK {
			return c
		}
		return code
	}

	tw := tabwriter.NewWriter(a.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "DEBT\tINVOICE\tINSTALLMENTS\tRESULT")
	for _, r := range summary.Results {
		result := "ok"
		if !r.OK() {
			result = a.Localizer.LocalizeMessage(r.Error)
			if r.Err != nil {
				result = a.Localizer.Localize(r.Err)
			}
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", r.DebtID, r.InvoiceNo, len(r.Installments), result)
	}
	_ = tw.Flush()
	msg := summary.Message
	if msg == "" {
		msg = a.Localizer.ConversionMessage(summary)
	}
	out := a.Stdout
	if code != ExitOK {
		out = a.Stderr
	}
	_, _ = fmt.Fprintln(out, msg)
	return code
}
