// Package sqlite implements the storage interface using SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	// Import SQLite driver
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/untoldecay/ccpm/internal/debug"
	"github.com/untoldecay/ccpm/internal/storage"
	"github.com/untoldecay/ccpm/internal/types"
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	queries
	db      *sql.DB
	dbPath  string
	closed  atomic.Bool
	timeout time.Duration
}

var _ storage.Storage = (*SQLiteStorage)(nil)

// Option configures a store at open time.
type Option func(*SQLiteStorage)

// WithBusyTimeout sets how long a writer waits on a locked database.
func WithBusyTimeout(d time.Duration) Option {
	return func(s *SQLiteStorage) { s.timeout = d }
}

// WithClock overrides the timestamp source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *SQLiteStorage) { s.now = now }
}

// New opens (creating if needed) the database at path, applies the schema and
// runs migrations.
func New(ctx context.Context, path string, opts ...Option) (*SQLiteStorage, error) {
	s := &SQLiteStorage{
		dbPath:  path,
		timeout: 30 * time.Second,
	}
	s.now = time.Now
	for _, opt := range opts {
		opt(s)
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	connStr := buildConnString(path, s.timeout)
	debug.Logf("opening sqlite database: %s", connStr)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps BEGIN/COMMIT issued through db.Exec on the same
	// connection, and SQLite only admits one writer anyway.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database %s: %w", path, err)
	}

	if path != ":memory:" {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s.db = db
	s.q = db
	return s, nil
}

func buildConnString(path string, busyTimeout time.Duration) string {
	var b strings.Builder
	if path == ":memory:" {
		b.WriteString("file::memory:?")
	} else {
		b.WriteString("file:")
		b.WriteString(path)
		b.WriteString("?")
	}
	fmt.Fprintf(&b, "_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)&_txlock=immediate&_time_format=sqlite",
		busyTimeout.Milliseconds())
	return b.String()
}

// RunInTransaction executes fn inside a BEGIN IMMEDIATE transaction.
func (s *SQLiteStorage) RunInTransaction(ctx context.Context, fn func(tx storage.Transaction) error) (err error) {
	if s.closed.Load() {
		return fmt.Errorf("database is closed")
	}
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if !committed {
			_ = sqlTx.Rollback()
		}
	}()

	tx := &sqliteTx{queries{q: sqlTx, now: s.now}}
	if err := fn(tx); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

// CreateTask runs in its own transaction so the MAX+1 number assignment and
// the insert cannot interleave with another writer.
func (s *SQLiteStorage) CreateTask(ctx context.Context, task *types.Task) error {
	return s.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.CreateTask(ctx, task)
	})
}

// AddDependency runs the cycle check and the insert in one transaction.
func (s *SQLiteStorage) AddDependency(ctx context.Context, taskID, dependsOnID int64) error {
	return s.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.AddDependency(ctx, taskID, dependsOnID)
	})
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLiteStorage) Path() string {
	return s.dbPath
}

// UnderlyingDB returns the underlying *sql.DB connection.
func (s *SQLiteStorage) UnderlyingDB() *sql.DB {
	return s.db
}

// sqliteTx is the Transaction handed to RunInTransaction callbacks.
type sqliteTx struct {
	queries
}

var _ storage.Transaction = (*sqliteTx)(nil)
