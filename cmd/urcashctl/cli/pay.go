package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/urcash/urcash/internal/installments"
)

func (a *App) pay(ctx context.Context, args []string) int {
	fs := a.flagSet("pay")
	var (
		id     int64
		amount float64
		method string
		boxID  int64
		notes  string
		key    string
		asJSON bool
	)
	fs.Int64Var(&id, "installment", 0, "installment id (required)")
	fs.Float64Var(&amount, "amount", 0, "amount to pay (default the outstanding balance)")
	fs.StringVar(&method, "method", string(installments.MethodCash), "cash, card or bank_transfer")
	fs.Int64Var(&boxID, "box", 0, "money box receiving the payment (required)")
	fs.StringVar(&notes, "notes", "", "payment notes")
	fs.StringVar(&key, "idempotency-key", "", "reuse a key to retry safely")
	fs.BoolVar(&asJSON, "json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}
	if id <= 0 {
		return a.usageError("pay", "--installment is required")
	}
	if boxID <= 0 {
		return a.fail("pay", installments.ErrMoneyBoxRequired)
	}

	if !fs.Changed("amount") {
		inst, err := a.API.Get(ctx, id)
		if err != nil {
			return a.fail("pay", err)
		}
		amount = installments.SuggestedPayment(inst)
		if amount <= 0 {
			return a.fail("pay", errNoSuggestion)
		}
	}
	if amount <= 0 {
		return a.fail("pay", installments.ErrInvalidAmount)
	}

	receipt, err := a.API.RecordPayment(ctx, installments.PaymentRequest{
		InstallmentID:  id,
		PaidAmount:     amount,
		PaymentMethod:  installments.PaymentMethod(method),
		Notes:          notes,
		MoneyBoxID:     boxID,
		IdempotencyKey: key,
	})
	if err != nil {
		return a.fail("pay", err)
	}
	if asJSON {
		return a.writeJSON("pay", receipt)
	}
	_, _ = fmt.Fprintln(a.Stdout, a.Localizer.PaymentMessage(*receipt))
	return ExitOK
}

var errNoSuggestion = errors.New("installment is fully paid")
