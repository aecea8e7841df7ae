package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"feedesk/internal/adapters"
	"feedesk/internal/amqp"
	"feedesk/internal/ledger"
	"feedesk/internal/storage"
	"feedesk/internal/storage/memory"
	"feedesk/internal/storage/postgres"
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
	return &DefaultFactory{logger: logger}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case MemoryBackend:
		return f.createMemoryBackend(), nil
	case SQLiteBackend:
		return f.createSQLiteBackend(config)
	case PostgresBackend:
		return f.createPostgresBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createMemoryBackend() *Result {
	store := memory.New()
	f.logger.Info("Initialized memory backend")
	return &Result{
		Store:   store,
		Feed:    store.Feed(),
		Ping:    func(context.Context) error { return nil },
		Cleanup: func() error { return nil },
	}
}

// createSQLiteBackend publishes payment inserts on the broker when one is
// reachable, and on an in-process feed otherwise.
func (f *DefaultFactory) createSQLiteBackend(config Config) (*Result, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	client := f.dialAMQP(config)
	result := &Result{
		AMQP: client,
		Ping: repo.Ping,
		Cleanup: func() error {
			var errs []error
			if client != nil {
				errs = append(errs, client.Close())
			}
			errs = append(errs, repo.Close())
			return errors.Join(errs...)
		},
	}
	if client != nil {
		result.Store = adapters.NewNotifyingStore(repo, client)
		result.Feed = client
	} else {
		feed := memory.NewFeed()
		result.Store = adapters.NewNotifyingStore(repo, feed)
		result.Feed = feed
	}

	f.logger.Info("Initialized SQLite backend",
		"db_path", config.SQLiteDBPath,
		"amqp_enabled", client != nil)
	return result, nil
}

// createPostgresBackend relies on the payments trigger for dashboard events.
// The broker, when configured, carries the same events to the export worker.
func (f *DefaultFactory) createPostgresBackend(ctx context.Context, config Config) (*Result, error) {
	if err := postgres.Migrate(ctx, config.DatabaseURL); err != nil {
		return nil, fmt.Errorf("failed to migrate postgres: %w", err)
	}
	pg, err := postgres.Open(ctx, config.DatabaseURL, config.PGMaxConns)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres store: %w", err)
	}

	client := f.dialAMQP(config)
	var store ledger.Store = pg
	if client != nil {
		store = adapters.NewNotifyingStore(pg, client)
	}

	f.logger.Info("Initialized postgres backend",
		"max_conns", config.PGMaxConns,
		"amqp_enabled", client != nil)

	return &Result{
		Store: store,
		Feed:  postgres.NewFeed(pg.Pool()),
		AMQP:  client,
		Ping:  pg.Ping,
		Cleanup: func() error {
			var err error
			if client != nil {
				err = client.Close()
			}
			pg.Close()
			return err
		},
	}, nil
}

func (f *DefaultFactory) dialAMQP(config Config) *amqp.Client {
	if config.AMQPURL == "" {
		return nil
	}
	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
	if err != nil {
		f.logger.Warn("Failed to initialize AMQP client, continuing without broker", "error", err)
		return nil
	}
	f.logger.Info("Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)
	return client
}
