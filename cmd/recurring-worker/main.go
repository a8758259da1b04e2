package main

import (
	"context"
	"time"

	"risparmi/internal/cli"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	logger.Info("Starting recurring-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	ledger := cli.InitLedger(context.Background(), logger, cfg)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		if err := ledger.Close(); err != nil {
			logger.Error("Ledger close error", "error", err)
		}
	})

	interval := cfg.RecurringInterval
	logger.Info("Recurring contribution processor configured",
		"interval", interval,
		"backend", cfg.DataBackend)

	process := func(now time.Time) {
		count, err := ledger.Recurring.ProcessDue(ctx, now)
		if err != nil {
			logger.Error("Recurring processing failed", "error", err)
			return
		}
		logger.Info("Recurring processing complete",
			"contributions_created", count,
			"next_check", now.Add(interval).Format("15:04:05"))
	}

	process(time.Now())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			cli.WaitForShutdown(ctx, done)
			logger.Info("Recurring-worker shutdown complete")
			return
		case now := <-ticker.C:
			process(now)
		}
	}
}
