package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"earthgazer/internal/config"
	"earthgazer/internal/services"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// Store is the repository session factory. Its embedded Session runs each
// statement in its own implicit transaction; WithTx opens an explicit one.
type Store struct {
	*Session
	db     *sql.DB
	target string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Open connects to the configured database and initializes the schema.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	var (
		db     *sql.DB
		err    error
		d      dialect
		target string
	)
	switch cfg.Database.Driver {
	case config.DriverSQLite:
		d = dialectSQLite
		target = cfg.Database.URL
		db, err = sql.Open("sqlite", sqliteDSN(target))
		if err == nil && target == ":memory:" {
			db.SetMaxOpenConns(1)
		}
	case config.DriverPostgres:
		d = dialectPostgres
		target = redactURL(cfg.Database.URL)
		db, err = sql.Open("pgx", cfg.Database.URL)
	default:
		return nil, services.Wrap(services.ErrConfiguration, "store", "open", "unsupported driver "+cfg.Database.Driver, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", cfg.Database.Driver, err)
	}

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, services.Wrap(services.ErrTransient, "store", "open", "database unreachable", err)
	}

	store := &Store{
		Session: &Session{q: db, dialect: d, retry: true},
		db:      db,
		target:  target,
	}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Target describes the database the store is connected to, safe for display.
func (s *Store) Target() string {
	return s.target
}

// WithTx runs fn inside one transaction. The transaction is committed when fn
// returns nil and rolled back otherwise. Lock contention restarts fn.
func (s *Store) WithTx(ctx context.Context, fn func(*Session) error) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		if err := fn(&Session{q: tx, dialect: s.dialect}); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

func sqliteDSN(path string) string {
	params := "_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"
	if path == ":memory:" {
		return "file::memory:?" + params
	}
	return "file:" + filepath.ToSlash(path) + "?" + params
}

func redactURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.User == nil {
		return raw
	}
	return parsed.Redacted()
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

// isBusy reports lock contention that is worth retrying: SQLITE_BUSY, or a
// postgres serialization failure or deadlock.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	if isBusy(lastErr) {
		return services.Wrap(services.ErrTransient, "store", "write", "database busy", lastErr)
	}
	return lastErr
}

// rebind rewrites ? placeholders into $n for postgres.
func (d dialect) rebind(query string) string {
	if d != dialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
