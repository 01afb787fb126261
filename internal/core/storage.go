package core

import (
	"fmt"
	"herdbook/internal/infra/persistence/memory"
	"herdbook/internal/infra/persistence/postgres"
	"herdbook/internal/infra/persistence/redis"
	"herdbook/internal/infra/persistence/sqlite"
	"io"
	"log/slog"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
	StorageRedis    StorageDriver = "redis"    // shared Redis keyspace
)

// StorageConfig selects and parameterises the registry backend.
type StorageConfig struct {
	Driver      StorageDriver
	SQLitePath  string
	PostgresDSN string
	RedisURL    string
	RedisPrefix string
}

// OpenPersistentStore opens the configured backend, defaulting to sqlite. The
// logger receives bucket load warnings and snapshot write failures.
func OpenPersistentStore(engine *RulesEngine, cfg StorageConfig, logger *slog.Logger) (PersistentStore, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	driver := cfg.Driver
	if driver == "" {
		driver = StorageSQLite
	}
	logger = logger.With("storage", string(driver))
	switch driver {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageSQLite:
		return opened(sqlite.NewStore(cfg.SQLitePath, engine, sqlite.WithLogger(logger)))
	case StoragePostgres:
		return opened(postgres.NewStore(cfg.PostgresDSN, engine, postgres.WithLogger(logger)))
	case StorageRedis:
		return opened(redis.NewStore(cfg.RedisURL, engine, redis.WithLogger(logger), redis.WithPrefix(cfg.RedisPrefix)))
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}

// opened keeps a failed constructor from yielding a non-nil interface
// around a nil store.
func opened[S PersistentStore](store S, err error) (PersistentStore, error) {
	if err != nil {
		return nil, err
	}
	return store, nil
}

// CloseStore releases backend resources when the store holds any.
func CloseStore(store PersistentStore) error {
	if closer, ok := store.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
