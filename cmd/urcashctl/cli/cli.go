// Package cli implements the urcashctl subcommands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/urcash/urcash/internal/debts"
	"github.com/urcash/urcash/internal/installments"
)

// Exit codes.
const (
	ExitOK      = 0
	ExitError   = 1
	ExitUsage   = 2
	ExitPartial = 10
)

// Backend is the API surface the commands use.
type Backend interface {
	ListGrouped(ctx context.Context, q installments.GroupedQuery) (installments.GroupedPage, error)
	Get(ctx context.Context, id int64) (installments.Installment, error)
	RecordPayment(ctx context.Context, req installments.PaymentRequest) (*installments.Receipt, error)
	ConvertDebts(ctx context.Context, req installments.ConvertRequest) (installments.ConversionSummary, error)
	CustomerDebts(ctx context.Context, customerID int64, eligibleOnly bool) ([]debts.Debt, error)
}

// JobsRunner triggers and inspects background jobs.
type JobsRunner interface {
	Trigger(ctx context.Context, name, asOf string) (string, error)
	InspectQueue(ctx context.Context) (QueueStats, error)
}

// App holds the dependencies shared by every subcommand.
type App struct {
	API       Backend
	Jobs      JobsRunner
	Localizer *installments.Localizer
	Stdout    io.Writer
	Stderr    io.Writer
	Now       func() time.Time
}

const usage = `usage: urcashctl <command> [flags]

commands:
  plans     list installment plans
  debts     list a customer's debts
  convert   convert debts into installments
  pay       record a payment against an installment
  jobs      trigger or inspect background jobs
`

// Run dispatches args to a subcommand and returns the process exit code.
func (a *App) Run(ctx context.Context, args []string) int {
	a.defaults()
	if len(args) == 0 {
		_, _ = io.WriteString(a.Stderr, usage)
		return ExitUsage
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "plans":
		return a.plans(ctx, rest)
	case "debts":
		return a.debts(ctx, rest)
	case "convert":
		return a.convert(ctx, rest)
	case "pay":
		return a.pay(ctx, rest)
	case "jobs":
		return a.jobs(ctx, rest)
	case "help", "-h", "--help":
		_, _ = io.WriteString(a.Stdout, usage)
		return ExitOK
	default:
		_, _ = fmt.Fprintf(a.Stderr, "urcashctl: unknown command %q\n\n%s", cmd, usage)
		return ExitUsage
	}
}

func (a *App) defaults() {
	if a.Stdout == nil {
		a.Stdout = os.Stdout
	}
	if a.Stderr == nil {
		a.Stderr = os.Stderr
	}
	if a.Localizer == nil {
		a.Localizer = installments.DefaultLocalizer
	}
	if a.Now == nil {
		a.Now = time.Now
	}
}

func (a *App) flagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(a.Stderr)
	return fs
}

// fail prints err localised for the operator and returns ExitError.
func (a *App) fail(cmd string, err error) int {
	_, _ = fmt.Fprintf(a.Stderr, "%s: %s\n", cmd, a.Localizer.Localize(err))
	return ExitError
}

func (a *App) usageError(cmd, format string, args ...any) int {
	_, _ = fmt.Fprintf(a.Stderr, "%s: %s\n", cmd, fmt.Sprintf(format, args...))
	return ExitUsage
}

func (a *App) writeJSON(cmd string, v any) int {
	enc := json.NewEncoder(a.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		_, _ = fmt.Fprintf(a.Stderr, "%s: encode json: %v\n", cmd, err)
		return ExitError
	}
	return ExitOK
}

func parseIDs(raw []string) ([]int64, error) {
	var ids []int64
	for _, item := range raw {
		for _, part := range strings.Split(item, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil || id <= 0 {
				return nil, fmt.Errorf("invalid id %q", part)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}
