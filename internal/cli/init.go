// Package cli provides common CLI initialization utilities shared by
// cmd/risparmi, cmd/recurring-worker and cmd/ledger-worker.
package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"risparmi/internal/backend"
	"risparmi/internal/config"
	applog "risparmi/internal/log"
	"risparmi/internal/records"
	"risparmi/internal/services"
)

var level = new(slog.LevelVar)

// SetupLogger initializes structured logging at Info and sets it as the
// default logger. SetLogLevel adjusts it once configuration is known.
func SetupLogger() *slog.Logger {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger
}

// SetLogLevel changes the level of the logger returned by SetupLogger.
func SetLogLevel(s string) {
	level.Set(applog.ParseLevel(s))
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *slog.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	SetLogLevel(cfg.LogLevel)
	return cfg
}

// Ledger bundles the record store with the services operating on it.
type Ledger struct {
	Store     records.Store
	Events    services.EventPublisher
	Engine    *services.ContributionEngine
	Goals     *services.GoalManager
	Recurring *services.RecurringProcessor
	cleanup   backend.CleanupFunc
}

// Close releases the store and the broker connection.
func (l *Ledger) Close() error {
	if l.cleanup == nil {
		return nil
	}
	return l.cleanup()
}

// NewLedger wires the services over an already created backend.
func NewLedger(cfg *config.Config, res *backend.BackendResult) *Ledger {
	engine := services.NewContributionEngine(res.Store, res.Events, services.OverfundingPolicy(cfg.OverfundingPolicy))
	return &Ledger{
		Store:     res.Store,
		Events:    res.Events,
		Engine:    engine,
		Goals:     services.NewGoalManager(res.Store, engine, res.Events, cfg.PlanningAnnualRate),
		Recurring: services.NewRecurringProcessor(res.Store, engine),
		cleanup:   res.Cleanup,
	}
}

// InitLedger creates the configured backend and the ledger services.
// Exits the process on failure.
func InitLedger(ctx context.Context, logger *slog.Logger, cfg *config.Config) *Ledger {
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}

	res, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", backendCfg.Type)
		os.Exit(1)
	}

	logger.Info("Ledger initialized",
		"backend", backendCfg.Type,
		"events", res.Events != nil,
		"overfunding_policy", cfg.OverfundingPolicy)
	return NewLedger(cfg, res)
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *slog.Logger, timeout time.Duration, cleanup func()) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		cancel()

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup()
			}
			close(finished)
		}()

		select {
		case <-finished:
			logger.Info("Shutdown complete")
		case <-time.After(timeout):
			logger.Warn("Shutdown timeout reached")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
