package storage

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"aistudio/internal/infra"
)

// Open builds the backend named by cfg.HistoryStore. The returned close
// function releases any connection the backend holds and is never nil.
func Open(ctx context.Context, cfg *infra.Config, logger zerolog.Logger) (Store, func(), error) {
	backend, err := ParseBackend(cfg.HistoryStore)
	if err != nil {
		return nil, func() {}, err
	}

	switch backend {
	case BackendMemory:
		return NewMemoryStore(), func() {}, nil

	case BackendRedis:
		client, err := infra.NewRedisClient(ctx, cfg)
		if err != nil {
			return nil, func() {}, err
		}
		store, err := NewRedisStore(client)
		if err != nil {
			_ = client.Close()
			return nil, func() {}, err
		}
		return store, func() { _ = client.Close() }, nil

	case BackendPostgres:
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, func() {}, err
		}
		store, err := NewPostgresStore(infra.NewSQLRunner(pool, logger))
		if err == nil {
			err = store.EnsureSchema(ctx)
		}
		if err != nil {
			pool.Close()
			return nil, func() {}, err
		}
		return store, pool.Close, nil

	default:
		store, err := NewFileStore(cfg.StoragePath)
		if err != nil {
			return nil, func() {}, fmt.Errorf("storage: open %s: %w", cfg.StoragePath, err)
		}
		return store, func() {}, nil
	}
}
