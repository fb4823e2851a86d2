package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/hermes-erp/hermes/internal/accounting"
	"github.com/hermes-erp/hermes/internal/app"
	"github.com/hermes-erp/hermes/internal/currency"
	"github.com/hermes-erp/hermes/internal/inventory"
	"github.com/hermes-erp/hermes/internal/masterdata"
	"github.com/hermes-erp/hermes/internal/observability"
	"github.com/hermes-erp/hermes/internal/payroll"
	"github.com/hermes-erp/hermes/internal/platform/cache"
	"github.com/hermes-erp/hermes/internal/platform/db"
	"github.com/hermes-erp/hermes/internal/procurement"
	"github.com/hermes-erp/hermes/internal/sales"
	"github.com/hermes-erp/hermes/internal/shared"
	"github.com/hermes-erp/hermes/jobs"
)

func main() {
	_ = godotenv.Load()
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

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	var redisClient *redis.Client
	if client, err := cache.New(ctx, cfg.RedisAddr); err != nil {
		logger.Warn("redis unavailable, currency cache disabled", slog.Any("error", err))
	} else {
		redisClient = client
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	services := app.NewServices(cfg, dbpool, redisClient, metrics.Registerer(), logger)

	redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient, err := jobs.NewClient(redisOpt)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpt)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		AccountingHandler:  accounting.NewHandler(logger, services.Accounting),
		CurrencyHandler:    currency.NewHandler(logger, services.Currency),
		MasterDataHandler:  masterdata.NewHandler(logger, services.MasterData),
		InventoryHandler:   inventory.NewHandler(logger, services.Inventory),
		SalesHandler:       sales.NewHandler(logger, services.Sales),
		ProcurementHandler: procurement.NewHandler(logger, services.Procurement),
		PayrollHandler:     payroll.NewHandler(logger, services.Payroll),
		JobHandler:         jobs.NewHandler(inspector, jobClient, services.PostingSources(), logger),
		Metrics:            metrics,
		Idempotency:        shared.NewIdempotencyStore(dbpool),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
