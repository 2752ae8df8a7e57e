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
	"github.com/redis/go-redis/v9"

	"github.com/kargoline/kargoline/internal/app"
	"github.com/kargoline/kargoline/internal/auth"
	"github.com/kargoline/kargoline/internal/blob"
	"github.com/kargoline/kargoline/internal/customers"
	"github.com/kargoline/kargoline/internal/invoices"
	"github.com/kargoline/kargoline/internal/manifests"
	"github.com/kargoline/kargoline/internal/observability"
	"github.com/kargoline/kargoline/internal/platform/cache"
	"github.com/kargoline/kargoline/internal/platform/db"
	"github.com/kargoline/kargoline/internal/reports"
	"github.com/kargoline/kargoline/internal/shared"
	"github.com/kargoline/kargoline/internal/shipments"
	"github.com/kargoline/kargoline/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "kargoline_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())

	blobStore, err := blob.NewFSStore(cfg.BlobDir)
	if err != nil {
		logger.Error("init blob store", slog.Any("error", err))
		os.Exit(1)
	}

	authz := auth.Middleware{Logger: logger}

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, sessionManager)

	customerRepo := customers.NewRepository(dbpool)
	customerService := customers.NewService(customerRepo)
	customerHandler := customers.NewHandler(logger, customerService, authz)

	shipmentRepo := shipments.NewRepository(dbpool)
	shipmentService := shipments.NewService(shipmentRepo, blobStore)
	shipmentHandler := shipments.NewHandler(logger, shipmentService, authz)

	invoiceRepo := invoices.NewRepository(dbpool)
	invoiceService := invoices.NewService(invoiceRepo, customerService, shipmentRepo)
	invoiceHandler := invoices.NewHandler(logger, invoiceService, authz)

	manifestRepo := manifests.NewRepository(dbpool)
	manifestService := manifests.NewService(manifestRepo, invoiceService)
	manifestHandler := manifests.NewHandler(logger, manifestService, authz)

	reportRepo := reports.NewRepository(dbpool)
	reportService := reports.NewService(reportRepo, redisClient, logger)
	reportHandler := reports.NewHandler(logger, reportService, authz)

	metrics := observability.NewMetrics()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Warn("init jobs client", slog.Any("error", err))
	} else {
		defer func() {
			if err := jobsClient.Close(); err != nil {
				logger.Warn("jobs client close", slog.Any("error", err))
			}
		}()
		if _, err := jobsClient.EnqueueReportWarmup(ctx); err != nil {
			logger.Warn("enqueue report warmup", slog.Any("error", err))
		}
	}

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		SessionManager:   sessionManager,
		AuthHandler:      authHandler,
		CustomersHandler: customerHandler,
		ShipmentsHandler: shipmentHandler,
		ManifestsHandler: manifestHandler,
		InvoicesHandler:  invoiceHandler,
		ReportsHandler:   reportHandler,
		JobHandler:       jobHandler,
		Metrics:          metrics,
		Pool:             dbpool,
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
