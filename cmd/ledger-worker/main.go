package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
	"risparmi/internal/amqp"
	"risparmi/internal/cli"
	"risparmi/internal/services"
	"risparmi/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	logger.Info("Starting ledger-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if err := cfg.ValidateLedgerWorker(); err != nil {
		logger.Error("Invalid ledger-worker configuration", "error", err)
		os.Exit(1)
	}

	ledger := cli.InitLedger(context.Background(), logger, cfg)
	defer ledger.Close()

	consumer, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	// The monitor checks every configured user on start, which covers
	// events published while the worker was down. It only reports: a
	// resync from here could interleave with a contribution in flight in
	// the API server.
	monitor := services.NewDriftMonitor(ledger.Goals, services.DriftMonitorConfig{
		Interval: cfg.DriftCheckInterval,
		UserIDs:  []string{cfg.DefaultUserID},
	})
	ledgerWorker := worker.NewLedgerWorker(monitor)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return consumer.ConsumeLedgerEvents(gctx, ledgerWorker.HandleLedgerEvent)
	})
	g.Go(func() error {
		if err := monitor.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()

		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return monitor.Stop(stopCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Ledger worker stopped", "error", err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Ledger-worker shutdown complete")
}
