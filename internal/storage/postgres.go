package storage

import (
	"context"
	"errors"
	"fmt"

	"aistudio/internal/infra"
	"aistudio/internal/sqlinline"
)

// PostgresStore keeps values in the studio_kv table as jsonb.
type PostgresStore struct {
	sql infra.SQLExecutor
}

func NewPostgresStore(sql infra.SQLExecutor) (*PostgresStore, error) {
	if sql == nil {
		return nil, errors.New("storage: sql executor is required")
	}
	return &PostgresStore{sql: sql}, nil
}

// EnsureSchema creates the backing table when it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.sql.Exec(ctx, sqlinline.QEnsureStudioKV); err != nil {
		return fmt.Errorf("storage: ensure studio_kv: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var raw string
	if err := s.sql.QueryRow(ctx, sqlinline.QSelectStudioKV, key).Scan(&raw); err != nil {
		if infra.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: select studio_kv: %w", err)
	}
	return []byte(raw), nil
}

// Put stores value, which must be valid JSON.
func (s *PostgresStore) Put(ctx context.Context, key string, value []byte) error {
	if _, err := s.sql.Exec(ctx, sqlinline.QUpsertStudioKV, key, string(value)); err != nil {
		return fmt.Errorf("storage: upsert studio_kv: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := s.sql.Exec(ctx, sqlinline.QDeleteStudioKV, key); err != nil {
		return fmt.Errorf("storage: delete studio_kv: %w", err)
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
