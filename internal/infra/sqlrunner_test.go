package infra

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

type recordingPool struct {
	query string
	args  []any
	err   error
}

func (p *recordingPool) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	p.query = query
	p.args = args
	return pgconn.NewCommandTag("INSERT 0 1"), p.err
}

func (p *recordingPool) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	p.query = query
	p.args = args
	return errorRow{err: pgx.ErrNoRows}
}

func (p *recordingPool) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	p.query = query
	return nil, p.err
}

const markedQuery = `--sql 909f6e09-347e-4634-84f3-b59e3f2c4165
select 1;
`

func TestSQLRunnerStripsMarker(t *testing.T) {
	pool := &recordingPool{}
	runner := NewSQLRunner(pool, zerolog.Nop())

	if _, err := runner.Exec(context.Background(), markedQuery, "k"); err != nil {
		t.Fatalf("Exec error: %v", err)
	}
	if pool.query != "select 1;" {
		t.Fatalf("expected marker to be stripped, got %q", pool.query)
	}
	if len(pool.args) != 1 || pool.args[0] != "k" {
		t.Fatalf("unexpected args: %#v", pool.args)
	}
}

func TestSQLRunnerRejectsUnmarkedQuery(t *testing.T) {
	pool := &recordingPool{}
	runner := NewSQLRunner(pool, zerolog.Nop())

	if _, err := runner.Exec(context.Background(), "select 1;"); !errors.Is(err, ErrMissingMarker) {
		t.Fatalf("expected ErrMissingMarker, got %v", err)
	}
	if pool.query != "" {
		t.Fatal("unmarked query must not reach the pool")
	}
	var dest int
	if err := runner.QueryRow(context.Background(), "select 1;").Scan(&dest); !errors.Is(err, ErrMissingMarker) {
		t.Fatalf("expected ErrMissingMarker from QueryRow, got %v", err)
	}
}

func TestSQLRunnerPassesNoRowsThrough(t *testing.T) {
	runner := NewSQLRunner(&recordingPool{}, zerolog.Nop())

	var dest string
	err := runner.QueryRow(context.Background(), markedQuery).Scan(&dest)
	if !IsNoRows(err) {
		t.Fatalf("expected no rows, got %v", err)
	}
}

func TestSQLRunnerReturnsExecError(t *testing.T) {
	boom := errors.New("boom")
	runner := NewSQLRunner(&recordingPool{err: boom}, zerolog.Nop())

	if _, err := runner.Exec(context.Background(), markedQuery); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}
