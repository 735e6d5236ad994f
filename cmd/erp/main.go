package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/0x3b3fc/erp-pro-sub001/internal/app"
	"github.com/0x3b3fc/erp-pro-sub001/internal/inventory"
	"github.com/0x3b3fc/erp-pro-sub001/internal/ledger/accounts"
	"github.com/0x3b3fc/erp-pro-sub001/internal/ledger/fiscalyears"
	"github.com/0x3b3fc/erp-pro-sub001/internal/ledger/journals"
	"github.com/0x3b3fc/erp-pro-sub001/internal/observability"
	"github.com/0x3b3fc/erp-pro-sub001/internal/platform/cache"
	"github.com/0x3b3fc/erp-pro-sub001/internal/platform/db"
	"github.com/0x3b3fc/erp-pro-sub001/internal/purchasing"
	"github.com/0x3b3fc/erp-pro-sub001/internal/shared"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, caching disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient != nil {
			_ = redisClient.Close()
		}
	}()

	metrics := observability.NewMetrics()
	auditLog := shared.NewAuditLogger(pool)
	idempotency := shared.NewIdempotencyStore(pool)

	accountsSvc := accounts.NewService(accounts.NewRepository(pool))
	fiscalYearsSvc := fiscalyears.NewService(fiscalyears.NewRepository(pool))
	journalsSvc := journals.NewService(journals.NewRepository(pool), auditLog)

	inventoryRepo := inventory.NewRepository(pool)
	inventorySvc := inventory.NewService(inventoryRepo, auditLog)
	if redisClient != nil {
		inventorySvc.WithCache(cache.NewVersioned(redisClient, "inventory", 10*time.Minute))
	}

	purchasingSvc := purchasing.NewService(
		purchasing.NewRepository(pool),
		journalsSvc,
		inventorySvc,
		accounts.NewRepository(pool),
		auditLog,
	)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Metrics:            metrics,
		Pool:               pool,
		AccountsHandler:    accounts.NewHandler(logger, accountsSvc),
		FiscalYearsHandler: fiscalyears.NewHandler(logger, fiscalYearsSvc),
		JournalsHandler:    journals.NewHandler(logger, journalsSvc),
		InventoryHandler:   inventory.NewHandler(logger, inventorySvc),
		PurchasingHandler:  purchasing.NewHandler(logger, purchasingSvc, idempotency),
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
