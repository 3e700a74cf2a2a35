package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/urcash/urcash/internal/debts"
	"github.com/urcash/urcash/internal/installments"
)

type stubBackend struct {
	page     installments.GroupedPage
	inst     installments.Installment
	summary  installments.ConversionSummary
	debtList []debts.Debt
	err      error

	lastQuery    installments.GroupedQuery
	lastPayment  installments.PaymentRequest
	lastConvert  installments.ConvertRequest
	eligibleOnly bool
	gets         int
}

func (s *stubBackend) ListGrouped(_ context.Context, q installments.GroupedQuery) (installments.GroupedPage, error) {
	s.lastQuery = q
	return s.page, s.err
}

func (s *stubBackend) Get(_ context.Context, id int64) (installments.Installment, error) {
	s.gets++
	if s.inst.ID != id {
		return installments.Installment{}, installments.ErrNotFound
	}
	return s.inst, nil
}

func (s *stubBackend) RecordPayment(_ context.Context, req installments.PaymentRequest) (*installments.Receipt, error) {
	s.lastPayment = req
	if s.err != nil {
		return nil, s.err
	}
	return &installments.Receipt{
		ID:            1,
		ReceiptNumber: "RCP-20240315-0001",
		InstallmentID: req.InstallmentID,
		Amount:        req.PaidAmount,
		PaymentMethod: req.PaymentMethod,
		MoneyBoxID:    req.MoneyBoxID,
	}, nil
}

func (s *stubBackend) ConvertDebts(_ context.Context, req installments.ConvertRequest) (installments.ConversionSummary, error) {
	s.lastConvert = req
	return s.summary, s.err
}

func (s *stubBackend) CustomerDebts(_ context.Context, _ int64, eligibleOnly bool) ([]debts.Debt, error) {
	s.eligibleOnly = eligibleOnly
	return s.debtList, s.err
}

type stubJobs struct {
	name, asOf string
	id         string
	stats      QueueStats
	err        error
}

func (s *stubJobs) Trigger(_ context.Context, name, asOf string) (string, error) {
	s.name, s.asOf = name, asOf
	return s.id, s.err
}

func (s *stubJobs) InspectQueue(context.Context) (QueueStats, error) {
	return s.stats, s.err
}

func newApp(api Backend, jobsRunner JobsRunner) (*App, *bytes.Buffer, *bytes.Buffer) {
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	app := &App{
		API:       api,
		Jobs:      jobsRunner,
		Localizer: installments.NewLocalizer(language.English),
		Stdout:    stdout,
		Stderr:    stderr,
		Now:       func() time.Time { return time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC) },
	}
	return app, stdout, stderr
}

func mustDate(t *testing.T, s string) installments.Date {
	t.Helper()
	d, err := installments.ParseDate(s)
	require.NoError(t, err)
	return d
}

func TestRunWithoutCommandPrintsUsage(t *testing.T) {
	app, _, stderr := newApp(&stubBackend{}, nil)
	require.Equal(t, ExitUsage, app.Run(context.Background(), nil))
	require.Contains(t, stderr.String(), "usage: urcashctl")

	require.Equal(t, ExitUsage, app.Run(context.Background(), []string{"refund"}))
	require.Contains(t, stderr.String(), `unknown command "refund"`)
}

func TestPlansJSONSummarisesPlans(t *testing.T) {
	api := &stubBackend{page: installments.GroupedPage{
		Page: 1, TotalPages: 1, Total: 1,
		Items: []installments.Plan{{
			SaleID:       7,
			InvoiceNo:    "INV-7",
			CustomerName: "Ali",
			Installments: []installments.Installment{
				{ID: 1, Amount: 50, PaidAmount: 50, DueDate: mustDate(t, "2024-02-01"), PaymentStatus: installments.StatusPaid},
				{ID: 2, Amount: 50, DueDate: mustDate(t, "2024-03-01"), PaymentStatus: installments.StatusUnpaid},
				{ID: 3, Amount: 50, DueDate: mustDate(t, "2024-04-01"), PaymentStatus: installments.StatusUnpaid},
			},
		}},
	}}
	app, stdout, stderr := newApp(api, nil)

	code := app.Run(context.Background(), []string{"plans", "--json", "--status", "partial", "--search", " ali "})
	require.Equal(t, ExitOK, code)
	require.Empty(t, stderr.String())
	require.Equal(t, installments.StatusPartial, api.lastQuery.PaymentStatus)
	require.Equal(t, " ali ", api.lastQuery.Search)

	var out PlansOutput
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &out))
	require.Len(t, out.Plans, 1)
	row := out.Plans[0]
	require.Equal(t, 3, row.Installments)
	require.Equal(t, 1, row.Overdue)
	require.Equal(t, 150.0, row.Summary.TotalAmount)
	require.Equal(t, 100.0, row.Summary.RemainingAmount)
	require.Equal(t, installments.StatusPartial, row.Summary.PaymentStatus)
	require.Empty(t, row.Items)
}

func TestPlansRejectsUnknownStatus(t *testing.T) {
	app, _, stderr := newApp(&stubBackend{}, nil)
	require.Equal(t, ExitUsage, app.Run(context.Background(), []string{"plans", "--status", "late"}))
	require.Contains(t, stderr.String(), "invalid --status")
}

func TestPlansTableOutput(t *testing.T) {
	api := &stubBackend{page: installments.GroupedPage{
		Page: 2, TotalPages: 3, Total: 21,
		Items: []installments.Plan{{SaleID: 9, InvoiceNo: "INV-9", CustomerName: "Sara"}},
	}}
	app, stdout, _ := newApp(api, nil)
	require.Equal(t, ExitOK, app.Run(context.Background(), []string{"plans", "--page", "2"}))
	require.Contains(t, stdout.String(), "INV-9")
	require.Contains(t, stdout.String(), "page 2/3, 21 plans")
	require.Equal(t, 2, api.lastQuery.Page)
}

func TestDebtsDefaultsToEligible(t *testing.T) {
	api := &stubBackend{debtList: []debts.Debt{{ID: 4, InvoiceNo: "INV-4", RemainingAmount: 300, Status: debts.StatusUnpaid}}}
	app, stdout, _ := newApp(api, nil)

	require.Equal(t, ExitUsage, app.Run(context.Background(), []string{"debts"}))

	require.Equal(t, ExitOK, app.Run(context.Background(), []string{"debts", "--customer", "3"}))
	require.True(t, api.eligibleOnly)
	require.Contains(t, stdout.String(), "INV-4")

	require.Equal(t, ExitOK, app.Run(context.Background(), []string{"debts", "--customer", "3", "--all"}))
	require.False(t, api.eligibleOnly)
}

func TestConvertExitCodes(t *testing.T) {
	partial := installments.ConversionSummary{
		SuccessCount: 1, ErrorCount: 1, TotalInstallmentsCreated: 3,
		Results: []installments.DebtResult{
			{DebtID: 1, InvoiceNo: "INV-1", Installments: make([]installments.Installment, 3)},
			{DebtID: 2, Error: "debt not found"},
		},
	}
	api := &stubBackend{summary: partial}
	app, stdout, _ := newApp(api, nil)

	code := app.Run(context.Background(), []string{"convert", "--debt", "1,2", "--months", "3", "--json"})
	require.Equal(t, ExitPartial, code)
	require.Equal(t, []int64{1, 2}, api.lastConvert.DebtIDs)
	require.Equal(t, "2024-03-15", api.lastConvert.StartingDueDate.String())
	require.Equal(t, installments.MethodCash, api.lastConvert.PaymentMethod)

	var decoded installments.ConversionSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &decoded))
	require.Equal(t, 3, decoded.TotalInstallmentsCreated)

	api.summary = installments.ConversionSummary{
		SuccessCount: 2, TotalInstallmentsCreated: 6,
		Results: []installments.DebtResult{{DebtID: 1}, {DebtID: 2}},
	}
	code = app.Run(context.Background(), []string{"convert", "--debt", "1", "--debt", "2", "--months", "3", "--start", "2024-01-31"})
	require.Equal(t, ExitOK, code)
	require.Equal(t, "2024-01-31", api.lastConvert.StartingDueDate.String())

	api.summary = installments.ConversionSummary{ErrorCount: 1, Results: []installments.DebtResult{{DebtID: 9, Error: "debt not found"}}}
	require.Equal(t, ExitError, app.Run(context.Background(), []string{"convert", "--debt", "9", "--months", "2"}))
}

func TestConvertValidatesFlags(t *testing.T) {
	app, _, stderr := newApp(&stubBackend{}, nil)
	require.Equal(t, ExitUsage, app.Run(context.Background(), []string{"convert", "--months", "3"}))
	require.Equal(t, ExitUsage, app.Run(context.Background(), []string{"convert", "--debt", "x", "--months", "3"}))
	require.Equal(t, ExitUsage, app.Run(context.Background(), []string{"convert", "--debt", "1"}))
	require.Equal(t, ExitUsage, app.Run(context.Background(), []string{"convert", "--debt", "1", "--months", "2", "--start", "soon"}))
	require.Contains(t, stderr.String(), "invalid --start")
}

func TestPayDefaultsToOutstandingBalance(t *testing.T) {
	api := &stubBackend{inst: installments.Installment{ID: 5, Amount: 600, PaidAmount: 150}}
	app, stdout, stderr := newApp(api, nil)

	code := app.Run(context.Background(), []string{"pay", "--installment", "5", "--box", "2", "--json"})
	require.Equal(t, ExitOK, code, stderr.String())
	require.Equal(t, 1, api.gets)
	require.Equal(t, 450.0, api.lastPayment.PaidAmount)
	require.Equal(t, installments.MethodCash, api.lastPayment.PaymentMethod)

	var receipt installments.Receipt
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &receipt))
	require.Equal(t, "RCP-20240315-0001", receipt.ReceiptNumber)
}

func TestPayExplicitAmountSkipsLookup(t *testing.T) {
	api := &stubBackend{}
	app, stdout, _ := newApp(api, nil)

	code := app.Run(context.Background(), []string{"pay", "--installment", "5", "--box", "2", "--amount", "100", "--method", "card", "--idempotency-key", "k1"})
	require.Equal(t, ExitOK, code)
	require.Zero(t, api.gets)
	require.Equal(t, "k1", api.lastPayment.IdempotencyKey)
	require.Contains(t, stdout.String(), "RCP-20240315-0001")
}

func TestPayFailures(t *testing.T) {
	api := &stubBackend{inst: installments.Installment{ID: 5, Amount: 100, PaidAmount: 100}}
	app, _, stderr := newApp(api, nil)

	require.Equal(t, ExitError, app.Run(context.Background(), []string{"pay", "--installment", "5"}))
	require.Zero(t, api.gets)

	require.Equal(t, ExitError, app.Run(context.Background(), []string{"pay", "--installment", "5", "--box", "1"}))
	require.Contains(t, stderr.String(), "installment is fully paid")

	require.Equal(t, ExitError, app.Run(context.Background(), []string{"pay", "--installment", "6", "--box", "1"}))

	api.err = errors.New("backend exploded")
	require.Equal(t, ExitError, app.Run(context.Background(), []string{"pay", "--installment", "5", "--box", "1", "--amount", "10"}))
	require.Contains(t, stderr.String(), "backend exploded")
}

func TestJobsCommands(t *testing.T) {
	runner := &stubJobs{id: "task-1", stats: QueueStats{Queue: "default", Pending: 2}}
	app, stdout, _ := newApp(&stubBackend{}, runner)

	require.Equal(t, ExitOK, app.Run(context.Background(), []string{"jobs", "trigger", "--as-of", "2024-03-01"}))
	require.Equal(t, "installments:overdue_scan", runner.name)
	require.Equal(t, "2024-03-01", runner.asOf)
	require.Contains(t, stdout.String(), "task-1")

	stdout.Reset()
	require.Equal(t, ExitOK, app.Run(context.Background(), []string{"jobs", "stats", "--json"}))
	var stats QueueStats
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &stats))
	require.Equal(t, 2, stats.Pending)

	runner.err = errors.New("redis down")
	require.Equal(t, ExitError, app.Run(context.Background(), []string{"jobs", "stats"}))

	noJobs, _, stderr := newApp(&stubBackend{}, nil)
	require.Equal(t, ExitError, noJobs.Run(context.Background(), []string{"jobs", "stats"}))
	require.Contains(t, stderr.String(), "redis is not configured")
}
