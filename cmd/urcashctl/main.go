// Command urcashctl operates installment plans from the terminal.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/urcash/urcash/cmd/urcashctl/cli"
	"github.com/urcash/urcash/internal/apiclient"
	"github.com/urcash/urcash/internal/app"
	"github.com/urcash/urcash/internal/installments"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		return cli.ExitError
	}
	logger := app.NewLoggerTo(os.Stderr, cfg)

	jobsCLI, err := cli.NewJobsCLI(asynq.RedisClientOpt{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		DialTimeout: 3 * time.Second,
	})
	if err != nil {
		logger.Warn("jobs disabled", slog.Any("error", err))
	}
	application := &cli.App{
		API:       apiclient.NewClient(cfg.APIBaseURL, logger),
		Localizer: installments.NewLocalizer(cfg.Language()),
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
	}
	if jobsCLI != nil {
		application.Jobs = jobsCLI
		defer func() {
			if err := jobsCLI.Close(); err != nil {
				logger.Warn("close jobs client", slog.Any("error", err))
			}
		}()
	}
	return application.Run(ctx, os.Args[1:])
}
