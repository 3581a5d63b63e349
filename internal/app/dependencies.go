package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/storage/memory"
	"github.com/vladislavdragonenkov/fulfillment/internal/storage/postgres"
)

// Dependencies содержит хранилища приложения, собранные по выбранному драйверу.
type Dependencies struct {
	Orders      domain.OrderRepository
	Catalog     domain.CatalogAccessor
	Users       domain.UserDirectory
	Outbox      domain.OutboxRepository
	Idempotency domain.IdempotencyRepository

	// Store не nil только для postgres-драйвера.
	Store  *postgres.Store
	Logger *log.Entry
}

// NewDependencies создаёт хранилища согласно конфигурации.
// NOTE: memory-драйвер предназначен для development/demo и наполняется
// демонстрационным каталогом; в production используется postgres.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	switch cfg.StorageDriver {
	case StorageDriverPostgres:
		return newPostgresDependencies(ctx, cfg, logger)
	case StorageDriverMemory:
		return newMemoryDependencies(logger), nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

func newMemoryDependencies(logger *log.Entry) *Dependencies {
	if logger == nil {
		logger = log.WithField("component", "app")
	}
	users := memory.NewUserDirectory("demo-user")
	catalog := memory.NewCatalog(
		domain.Product{ID: "demo-widget", Name: "Widget", PriceMinor: 55000, Stock: 100},
		domain.Product{ID: "demo-gadget", Name: "Gadget", PriceMinor: 20000, Stock: 100},
		domain.Product{ID: "demo-gizmo", Name: "Gizmo", PriceMinor: 7500, Stock: 100},
	)
	logger.Info("using in-memory storage with demo catalog")

	return &Dependencies{
		Orders:      memory.NewOrderRepository(),
		Catalog:     catalog,
		Users:       users,
		Outbox:      memory.NewOutboxRepository(),
		Idempotency: memory.NewIdempotencyRepository(),
		Logger:      logger,
	}
}

func newPostgresDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	store, err := postgres.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres store: %w", err)
	}

	if cfg.PostgresAutoMigrate {
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		logger.Info("postgres migrations applied")
	}

	return &Dependencies{
		Orders:      postgres.NewOrderRepository(store),
		Catalog:     postgres.NewCatalogRepository(store),
		Users:       postgres.NewUserDirectory(store),
		Outbox:      postgres.NewOutboxRepository(store),
		Idempotency: postgres.NewIdempotencyRepository(store),
		Store:       store,
		Logger:      logger,
	}, nil
}

// Close освобождает ресурсы хранилищ.
func (d *Dependencies) Close() error {
	if d.Store != nil {
		return d.Store.Close()
	}
	return nil
}
