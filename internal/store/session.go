package store

import (
	"context"
	"database/sql"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Session is one unit of work against the repository: either the store's
// auto-commit connection pool or an open transaction from WithTx.
type Session struct {
	q       querier
	dialect dialect
	// retry is only safe outside explicit transactions.
	retry bool
}

func (s *Session) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	query = s.dialect.rebind(query)
	var res sql.Result
	err := s.withRetry(ctx, func() error {
		var execErr error
		res, execErr = s.q.ExecContext(ctx, query, args...)
		return execErr
	})
	return res, err
}

// withRetry repeats op on lock contention, except inside an explicit
// transaction where the whole transaction is retried by WithTx instead.
func (s *Session) withRetry(ctx context.Context, op func() error) error {
	if !s.retry {
		return op()
	}
	return retryOnBusy(ensureContext(ctx), op)
}

func (s *Session) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.q.QueryContext(ensureContext(ctx), s.dialect.rebind(query), args...)
}

func (s *Session) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.q.QueryRowContext(ensureContext(ctx), s.dialect.rebind(query), args...)
}
