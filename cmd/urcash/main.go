package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/urcash/urcash/internal/app"
	"github.com/urcash/urcash/internal/debts"
	"github.com/urcash/urcash/internal/installments"
	"github.com/urcash/urcash/internal/moneybox"
	"github.com/urcash/urcash/internal/observability"
	"github.com/urcash/urcash/internal/platform/cache"
	"github.com/urcash/urcash/internal/platform/db"
	"github.com/urcash/urcash/internal/products"
	"github.com/urcash/urcash/internal/shared"
	"github.com/urcash/urcash/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, db.Options{DSN: cfg.PGDSN, MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	productRepo := products.NewRepository(dbpool)
	moneyBoxRepo := moneybox.NewRepository(dbpool)
	debtService := debts.NewService(debts.NewRepository(dbpool))

	installmentService := installments.NewService(
		installments.NewRepository(dbpool),
		debtService,
		productRepo,
		installments.Options{
			Logger:      logger,
			Cache:       installments.NewCache(redisClient, cfg.CacheTTL),
			Audit:       auditLogger,
			Idempotency: idempotencyStore,
			Metrics:     metrics,
			Localizer:   installments.NewLocalizer(cfg.Language()),
		},
	)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		InstallmentsHandler: installments.NewHandler(logger, installmentService),
		DebtsHandler:        debts.NewHandler(logger, debtService),
		MoneyBoxHandler:     moneybox.NewHandler(logger, moneyBoxRepo),
		ProductsHandler:     products.NewHandler(logger, productRepo),
		JobHandler:          jobs.NewHandler(inspector, jobs.NewOverdueStore(redisClient, 0), logger),
		Metrics:             metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
