package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/barflow/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/barflow/internal/health"
	"github.com/vladislavdragonenkov/barflow/internal/service/outbox"
	"github.com/vladislavdragonenkov/barflow/internal/storage/memory"
	"github.com/vladislavdragonenkov/barflow/internal/storage/postgres"
	"github.com/vladislavdragonenkov/barflow/internal/transport/grpcstore"
)

const storagePingTimeout = 2 * time.Second

// outboxStore — то, что нужно от outbox воркеру и очистке.
type outboxStore interface {
	domain.OutboxRepository
	outbox.FinishedPurger
}

// runtimeDependencies — хранилище, выбранное конфигурацией.
type runtimeDependencies struct {
	repos          grpcstore.Repositories
	outboxRepo     outboxStore
	storageChecker healthcheck.Checker
	// watchOutbox подключает раннее пробуждение воркера при новых change-записях.
	watchOutbox func(ctx context.Context, wake func())
	closeFn     func() error
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (runtimeDependencies, error) {
	switch cfg.StorageDriver {
	case "", StorageDriverMemory:
		return initMemoryDependencies(), nil
	case StorageDriverPostgres:
		return initPostgresDependencies(ctx, cfg, logger)
	default:
		return runtimeDependencies{}, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

func initMemoryDependencies() runtimeDependencies {
	store := memory.NewStore()
	outboxRepo := store.Outbox()

	return runtimeDependencies{
		repos: grpcstore.Repositories{
			Menu:    store,
			Orders:  store,
			Battles: store,
			Promos:  store,
		},
		outboxRepo:     outboxRepo,
		storageChecker: healthcheck.NewPingChecker("storage", storagePingTimeout, store.Ping),
		watchOutbox: func(_ context.Context, wake func()) {
			outboxRepo.OnEnqueue(wake)
		},
		closeFn: func() error { return nil },
	}
}

func initPostgresDependencies(ctx context.Context, cfg Config, logger *log.Entry) (runtimeDependencies, error) {
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return runtimeDependencies{}, errors.New("postgres storage requires a DSN")
	}

	store, err := postgres.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		return runtimeDependencies{}, err
	}
	if cfg.PostgresAutoMigrate {
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return runtimeDependencies{}, fmt.Errorf("apply migrations: %w", err)
		}
		logger.Info("postgres migrations applied")
	}

	return runtimeDependencies{
		repos: grpcstore.Repositories{
			Menu:    postgres.NewMenuRepository(store),
			Orders:  postgres.NewOrderRepository(store),
			Battles: postgres.NewBattleRepository(store),
			Promos:  postgres.NewPromoRepository(store),
		},
		outboxRepo:     postgres.NewOutboxRepository(store),
		storageChecker: healthcheck.NewPingChecker("storage", storagePingTimeout, store.Ping),
		watchOutbox: func(ctx context.Context, wake func()) {
			listener := postgres.NewListener(store.DSN(), func(string) { wake() }, logger)
			go listener.Run(ctx)
		},
		closeFn: store.Close,
	}, nil
}
