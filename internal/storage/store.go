// Package storage provides the key-value backends used to persist studio
// history between runs.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by Get when the key holds no value.
var ErrNotFound = errors.New("storage: key not found")

// Store is a minimal durable key-value contract.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Backend names accepted by HISTORY_STORE.
const (
	BackendFile     = "file"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// ParseBackend normalizes a backend name and rejects unknown values.
func ParseBackend(name string) (string, error) {
	switch n := strings.ToLower(strings.TrimSpace(name)); n {
	case "":
		return BackendFile, nil
	case BackendFile, BackendMemory, BackendRedis, BackendPostgres:
		return n, nil
	default:
		return "", fmt.Errorf("storage: unknown backend %q", name)
	}
}
