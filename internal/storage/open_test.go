package storage

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aistudio/internal/infra"
)

func TestOpenSelectsBackend(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.Nop()

	t.Run("memory", func(t *testing.T) {
		store, closeFn, err := Open(ctx, &infra.Config{HistoryStore: "memory"}, logger)
		require.NoError(t, err)
		defer closeFn()
		assert.IsType(t, &MemoryStore{}, store)
	})

	t.Run("file", func(t *testing.T) {
		dir := t.TempDir()
		store, closeFn, err := Open(ctx, &infra.Config{HistoryStore: "FILE", StoragePath: dir}, logger)
		require.NoError(t, err)
		defer closeFn()
		fs, ok := store.(*FileStore)
		require.True(t, ok)
		assert.Equal(t, dir, fs.BasePath())
	})

	t.Run("redis", func(t *testing.T) {
		mr, err := miniredis.Run()
		require.NoError(t, err)
		defer mr.Close()

		store, closeFn, err := Open(ctx, &infra.Config{HistoryStore: "redis", RedisAddr: mr.Addr()}, logger)
		require.NoError(t, err)
		defer closeFn()

		require.NoError(t, store.Put(ctx, "k", []byte(historyJSON)))
		got, err := mr.Get("k")
		require.NoError(t, err)
		assert.JSONEq(t, historyJSON, got)
	})

	t.Run("unknown", func(t *testing.T) {
		_, closeFn, err := Open(ctx, &infra.Config{HistoryStore: "s3"}, logger)
		assert.Error(t, err)
		assert.NotNil(t, closeFn)
	})
}
