// Package database provides the per-worker database session: a single
// logical connection with a prepared statement cache, transactions, and
// schema management for the supported drivers.
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/queryman/queryman/internal/config"
)

// ErrTxHeld is returned by Begin when the session already holds an open
// transaction.
var ErrTxHeld = errors.New("database: transaction already in progress")

// Querier is the query surface shared by Session and Tx. Store accessors
// are written against it so the same code runs inside and outside
// transactions.
type Querier interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	ExecContext(ctx context.Context, query string, args ...any) (int64, error)
}

// Session is one worker's handle on the database. A session keeps at most
// two underlying connections: one for an open transaction and one for
// statement preparation, so cache misses inside a transaction cannot
// deadlock. Sessions are not safe for concurrent use; each worker owns its
// own.
type Session struct {
	db       *sqlx.DB
	driver   string
	bindType int
	stmts    *stmtCache
	txHeld   bool
}

// Open connects to the database selected by cfg and verifies the
// connection with a ping.
func Open(cfg config.DatabaseConfig) (*Session, error) {
	driverName, dsn, err := buildDSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", cfg.Driver, err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to %s database: %w", cfg.Driver, err)
	}

	return &Session{
		db:       db,
		driver:   cfg.Driver,
		bindType: sqlx.BindType(driverName),
		stmts:    newStmtCache(cfg.MaxCachedStatements()),
	}, nil
}

func buildDSN(cfg config.DatabaseConfig) (driverName, dsn string, err error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		return "sqlite3", fmt.Sprintf("file:%s?_busy_timeout=10000", cfg.SQLite.File), nil
	case config.DriverPostgreSQL:
		pg := cfg.PostgreSQL
		sslmode := "disable"
		if pg.TLS {
			sslmode = "require"
		}
		host := pg.Host
		if pg.UnixSocket != "" {
			host = pg.UnixSocket
			sslmode = "disable"
		}
		return "postgres", fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			host, pg.Port, pg.User, pg.Password, pg.DBName, sslmode), nil
	case config.DriverMySQL:
		my := cfg.MySQL
		addr := fmt.Sprintf("tcp(%s:%d)", my.Host, my.Port)
		if my.UnixSocket != "" {
			addr = fmt.Sprintf("unix(%s)", my.UnixSocket)
		}
		tls := "false"
		if my.TLS && my.UnixSocket == "" {
			tls = "true"
		}
		// ANSI_QUOTES makes MySQL accept the double-quoted identifiers
		// the store queries use.
		return "mysql", fmt.Sprintf(
			"%s:%s@%s/%s?parseTime=true&tls=%s&sql_mode=%%27ANSI_QUOTES%%27",
			my.User, my.Password, addr, my.DBName, tls), nil
	default:
		return "", "", fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// MaxConcurrency returns how many sessions the driver supports running
// concurrently. SQLite serializes writers, so it gets a single worker.
func MaxConcurrency(driver string) int {
	if driver == config.DriverSQLite {
		return 1
	}
	return 64
}

// Driver returns the configured driver name.
func (s *Session) Driver() string {
	return s.driver
}

// Close finalizes cached statements and closes the connection.
func (s *Session) Close() error {
	s.stmts.clear()
	return s.db.Close()
}

// Ping verifies the connection.
func (s *Session) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Checkpoint reports whether the session is usable. On failure the
// statement cache is dropped so statements are re-prepared once the
// connection recovers.
func (s *Session) Checkpoint(ctx context.Context) bool {
	if err := s.db.PingContext(ctx); err != nil {
		slog.Warn("database checkpoint failed", "driver", s.driver, "err", err)
		s.stmts.clear()
		return false
	}
	return true
}

// CachedStatements returns the number of live cached statements.
func (s *Session) CachedStatements() int {
	return s.stmts.len()
}

func (s *Session) rebind(query string) string {
	query = translate(query, s.driver)
	if s.bindType == sqlx.QUESTION {
		return query
	}
	return sqlx.Rebind(s.bindType, query)
}

func (s *Session) stmt(ctx context.Context, query string) (*sqlx.Stmt, error) {
	return s.stmts.get(ctx, s.db, query, s.rebind(query))
}

// GetContext runs a single-row query through the statement cache.
func (s *Session) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	st, err := s.stmt(ctx, query)
	if err != nil {
		return err
	}
	return st.GetContext(ctx, dest, args...)
}

// SelectContext runs a multi-row query through the statement cache.
func (s *Session) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	st, err := s.stmt(ctx, query)
	if err != nil {
		return err
	}
	return st.SelectContext(ctx, dest, args...)
}

// ExecContext runs a statement through the statement cache and returns the
// number of affected rows.
func (s *Session) ExecContext(ctx context.Context, query string, args ...any) (int64, error) {
	st, err := s.stmt(ctx, query)
	if err != nil {
		return 0, err
	}
	res, err := st.ExecContext(ctx, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Begin opens a transaction. Only one transaction may be open per session.
func (s *Session) Begin(ctx context.Context) (*Tx, error) {
	if s.txHeld {
		return nil, ErrTxHeld
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	s.txHeld = true
	return &Tx{s: s, tx: tx}, nil
}

// Tx is an open transaction. Rollback after Commit is a no-op, so callers
// can unconditionally defer it.
type Tx struct {
	s    *Session
	tx   *sqlx.Tx
	done bool
}

func (t *Tx) stmt(ctx context.Context, query string) (*sqlx.Stmt, error) {
	st, err := t.s.stmt(ctx, query)
	if err != nil {
		return nil, err
	}
	return t.tx.StmtxContext(ctx, st), nil
}

// GetContext runs a single-row query inside the transaction.
func (t *Tx) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	st, err := t.stmt(ctx, query)
	if err != nil {
		return err
	}
	return st.GetContext(ctx, dest, args...)
}

// SelectContext runs a multi-row query inside the transaction.
func (t *Tx) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	st, err := t.stmt(ctx, query)
	if err != nil {
		return err
	}
	return st.SelectContext(ctx, dest, args...)
}

// ExecContext runs a statement inside the transaction and returns the
// number of affected rows.
func (t *Tx) ExecContext(ctx context.Context, query string, args ...any) (int64, error) {
	st, err := t.stmt(ctx, query)
	if err != nil {
		return 0, err
	}
	res, err := st.ExecContext(ctx, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	t.s.txHeld = false
	return t.tx.Commit()
}

// Rollback aborts the transaction unless it already committed.
func (t *Tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.s.txHeld = false
	return t.tx.Rollback()
}
