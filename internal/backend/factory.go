package backend

import (
	"context"
	"errors"
	"fmt"

	"gestionjm/internal/amqp"
	"gestionjm/internal/core"
	"gestionjm/internal/identity"
	"gestionjm/internal/log"
	"gestionjm/internal/records"
	"gestionjm/internal/records/memory"
	"gestionjm/internal/services"
	"gestionjm/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
	// newPublisher is swapped in tests.
	newPublisher func(url, exchange, queue string) (services.Publisher, error)
}

func NewFactory(logger *log.Logger) *DefaultFactory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
		newPublisher: func(url, exchange, queue string) (services.Publisher, error) {
			return amqp.NewClient(url, exchange, queue)
		},
	}
}

var _ Factory = (*DefaultFactory)(nil)

// CreateBackend opens the record store, seeds default PINs and wires the
// ledger service with an optional AMQP publisher.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		repo records.Repository
		err  error
	)
	switch config.Type {
	case SQLiteBackend:
		repo, err = storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	case MemoryBackend:
		repo, err = memory.NewFromFile(config.SeedFile)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize memory backend: %w", err)
		}
		f.logger.Info("Initialized memory backend", "seed_file", config.SeedFile)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	ident := identity.NewProvider(repo, identity.WithLogger(f.logger.WithComponent(log.ComponentIdentity).Slog()))
	defaults := make(map[core.UserID]string, len(config.DefaultPins))
	for id, pin := range config.DefaultPins {
		defaults[core.UserID(id)] = pin
	}
	if err := ident.EnsureDefaults(ctx, defaults); err != nil {
		return nil, errors.Join(fmt.Errorf("seed default PINs: %w", err), repo.Close())
	}

	opts := []services.Option{services.WithLogger(f.logger)}
	if config.AMQPURL != "" {
		pub, err := f.newPublisher(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without sync", log.FieldError, err)
		} else {
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
			opts = append(opts, services.WithPublisher(pub))
		}
	}

	svc := services.NewLedgerService(repo, opts...)
	return &BackendResult{
		Service:  svc,
		Identity: ident,
		Cleanup:  svc.Close,
	}, nil
}
