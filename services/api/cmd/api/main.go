package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/stanpay/stanpay2.0-sub000/services/api/internal/app"
	"github.com/stanpay/stanpay2.0-sub000/services/api/internal/clock"
	"github.com/stanpay/stanpay2.0-sub000/services/api/internal/config"
	"github.com/stanpay/stanpay2.0-sub000/services/api/internal/logging"
	"github.com/stanpay/stanpay2.0-sub000/services/api/internal/storage/postgres"
	transporthttp "github.com/stanpay/stanpay2.0-sub000/services/api/internal/transport/http"
	"github.com/stanpay/stanpay2.0-sub000/services/api/migrations"
)

const startupTimeout = 5 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	envPath, envErr := config.LoadEnvFile()
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	switch {
	case envErr != nil:
		logger.Warn("failed to load .env", zap.Error(envErr))
	case envPath == "":
		logger.Debug(".env not found in current or parent directories")
	default:
		logger.Info("loaded env file", zap.String("path", envPath))
	}

	startupCtx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	pool, err := pgxpool.New(startupCtx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to db: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(startupCtx); err != nil {
		return fmt.Errorf("db ping: %w", err)
	}
	applied, err := migrations.Apply(startupCtx, pool)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	if len(applied) > 0 {
		logger.Info("applied migrations", zap.Strings("names", applied))
	}

	clk := clock.NewSystem()
	inventory := postgres.NewInventoryRepository(pool)
	ledger := postgres.NewLedgerRepository(pool)
	purchaseRepo := postgres.NewPurchaseRepository(pool)

	claims := app.NewClaimManager(inventory, clk, app.WithClaimLogger(logger.Named("claims")))
	catalog := app.NewCatalog(inventory, clk)
	sessions := app.NewSessionManager(catalog, claims, ledger, clk, app.WithSessionLogger(logger.Named("sessions")))
	purchases := app.NewPurchaseService(purchaseRepo, ledger, claims, sessions, clk, app.WithPurchaseLogger(logger.Named("purchases")))
	sweeper := app.NewSweeper(sessions, claims, app.SweeperConfig{
		Interval:    cfg.SweepInterval,
		SessionIdle: cfg.SessionIdleTimeout,
		ClaimTTL:    cfg.ClaimTTL,
	}, logger.Named("sweeper"))

	mux := transporthttp.NewRouter(transporthttp.Services{
		Health:    pool,
		Catalog:   catalog,
		Sessions:  sessions,
		Purchases: purchases,
	})
	handler := transporthttp.RequestLogger(transporthttp.CORS(cfg.CORSOrigins, mux), logger.Named("http"))

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		sweeper.Run(sweepCtx)
	}()

	logger.Info("api listening", zap.String("port", cfg.Port))

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- server.ListenAndServe()
	}()

	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
		}
	case <-stopCtx.Done():
		logger.Info("shutdown signal received, stopping server")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("server shutdown error", zap.Error(err))
	}

	stopSweep()
	<-sweepDone
	sessions.CloseAll(shutdownCtx)
	logger.Info("server stopped")
	return nil
}
