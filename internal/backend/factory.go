package backend

import (
	"context"
	"fmt"
	"log/slog"

	"risparmi/internal/amqp"
	"risparmi/internal/records"
	"risparmi/internal/records/memory"
	"risparmi/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var store records.Store
	switch config.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.InfoContext(ctx, "Initialized SQLite backend", "db_path", config.SQLiteDBPath)
		store = repo
	case MemoryBackend:
		dataDir := config.DataDirectory
		if dataDir == "" {
			dataDir = "data"
		}
		store = memory.NewFromFiles(dataDir, config.UserID)
		f.logger.InfoContext(ctx, "Initialized memory backend", "data_directory", dataDir, "user_id", config.UserID)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	result := &BackendResult{Store: store, Cleanup: store.Close}

	// AMQP is optional; without it ledger events are not published
	if config.AMQPURL == "" {
		return result, nil
	}
	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
	if err != nil {
		f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without ledger events", "error", err)
		return result, nil
	}
	f.logger.InfoContext(ctx, "Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)

	result.Events = client
	result.Cleanup = func() error {
		if err := client.Close(); err != nil {
			f.logger.Warn("Failed to close AMQP client", "error", err)
		}
		return store.Close()
	}
	return result, nil
}
