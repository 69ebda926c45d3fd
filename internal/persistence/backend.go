package persistence

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Abdin71/supportflow-ai/internal/config"
	"github.com/Abdin71/supportflow-ai/internal/docstore"
	"github.com/Abdin71/supportflow-ai/internal/repository"
)

// Backend is an opened document store plus the connections behind it.
type Backend struct {
	Store    docstore.Store
	Postgres *Postgres
	Redis    *Redis

	closeStore func()
}

// OpenBackend opens the document store selected by STORE_DRIVER. The
// postgres driver fans changes out across processes through Redis unless
// REDIS_DISABLED is set.
func OpenBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Backend, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverMemory:
		logger.Info("using in-memory document store")
		return &Backend{Store: docstore.NewMemoryStore(repository.MemoryStoreOptions()...)}, nil
	case config.StoreDriverPostgres:
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	pg, err := NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, err
	}
	if cfg.Postgres.RunMigrations {
		if err := RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			pg.Close()
			return nil, err
		}
	}

	var (
		rdb      *Redis
		notifier docstore.Notifier
	)
	if cfg.Redis.Disabled {
		logger.Warn("redis disabled; changes are only visible to this process")
		notifier = docstore.NewLocalNotifier()
	} else {
		rdb, err = NewRedis(ctx, cfg.Redis, true, logger)
		if err != nil {
			pg.Close()
			return nil, err
		}
		notifier = docstore.NewRedisNotifier(rdb.Client, cfg.Redis.ChangesChannel, logger)
	}

	store := docstore.NewPostgresStore(pg.PoolHandle(), notifier, logger)
	if err := store.Start(ctx); err != nil {
		rdb.Close()
		pg.Close()
		return nil, fmt.Errorf("start change feed: %w", err)
	}

	return &Backend{Store: store, Postgres: pg, Redis: rdb, closeStore: store.Close}, nil
}

// Close releases the store and its connections.
func (b *Backend) Close() {
	if b.closeStore != nil {
		b.closeStore()
	}
	b.Redis.Close()
	b.Postgres.Close()
}
