package cli

import (
	"context"
	"fmt"

	"github.com/urcash/urcash/jobs"
)

func (a *App) jobs(ctx context.Context, args []string) int {
	if a.Jobs == nil {
		_, _ = fmt.Fprintln(a.Stderr, "jobs: redis is not configured")
		return ExitError
	}
	if len(args) == 0 {
		return a.usageError("jobs", "expected trigger or stats")
	}
	switch args[0] {
	case "trigger":
		return a.jobsTrigger(ctx, args[1:])
	case "stats":
		return a.jobsStats(ctx, args[1:])
	default:
		return a.usageError("jobs", "unknown subcommand %q", args[0])
	}
}

func (a *App) jobsTrigger(ctx context.Context, args []string) int {
	fs := a.flagSet("jobs trigger")
	var (
		name string
		asOf string
	)
	fs.StringVar(&name, "name", jobs.TaskOverdueScan, "task to enqueue ("+jobs.TaskOverdueScan+" or "+jobs.TaskCacheBump+")")
	fs.StringVar(&asOf, "as-of", "", "overdue scan date (YYYY-MM-DD)")
	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}
	id, err := a.Jobs.Trigger(ctx, name, asOf)
	if err != nil {
		_, _ = fmt.Fprintf(a.Stderr, "jobs trigger: %v\n", err)
		return ExitError
	}
	if id == "" {
		_, _ = fmt.Fprintf(a.Stdout, "%s already queued\n", name)
		return ExitOK
	}
	_, _ = fmt.Fprintf(a.Stdout, "enqueued %s (%s)\n", name, id)
	return ExitOK
}

func (a *App) jobsStats(ctx context.Context, args []string) int {
	fs := a.flagSet("jobs stats")
	asJSON := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}
	stats, err := a.Jobs.InspectQueue(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(a.Stderr, "jobs stats: %v\n", err)
		return ExitError
	}
	if *asJSON {
		return a.writeJSON("jobs stats", stats)
	}
	_, _ = fmt.Fprintf(a.Stdout, "queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
		stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
	return ExitOK
}
