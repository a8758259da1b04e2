package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"risparmi/internal/cli"
	apphttp "risparmi/internal/http"
	"risparmi/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	cfg := cli.LoadAndValidateConfig(logger)

	ledger := cli.InitLedger(context.Background(), logger, cfg)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Dependencies{
		Accounts:  ledger.Store,
		Engine:    ledger.Engine,
		Goals:     ledger.Goals,
		Recurring: ledger.Recurring,
	}, apphttp.Options{
		DefaultUserID:     cfg.DefaultUserID,
		PlannerCacheSize:  cfg.PlannerCacheSize,
		PlannerCacheTTL:   cfg.PlannerCacheTTL,
		RequestsPerMinute: cfg.RateLimitPerMinute,
	})

	// Auto-heal runs here because EmergencyResync must share the per-goal
	// guard with the handlers.
	var monitor *services.DriftMonitor
	if cfg.DriftAutoHeal {
		monitor = services.NewDriftMonitor(ledger.Goals, services.DriftMonitorConfig{
			Interval: cfg.DriftCheckInterval,
			UserIDs:  []string{cfg.DefaultUserID},
			AutoHeal: true,
		})
		if err := monitor.Start(context.Background()); err != nil {
			logger.Error("Failed to start drift monitor", "error", err)
			os.Exit(1)
		}
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if monitor != nil {
			if err := monitor.Stop(shutdownCtx); err != nil {
				logger.Error("Drift monitor stop error", "error", err)
			}
		}
		if err := ledger.Close(); err != nil {
			logger.Error("Ledger close error", "error", err)
		}
	})

	logger.Info("Starting risparmi server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"default_user", cfg.DefaultUserID)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		_ = ledger.Close()
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
