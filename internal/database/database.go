package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// Options tunes the SQLite connection pool.
type Options struct {
	// BusyTimeout bounds how long a statement waits on a locked database.
	BusyTimeout time.Duration
	// OpTimeout bounds every store operation; zero disables the limit.
	OpTimeout time.Duration
}

// DefaultOptions returns the options used when none are supplied.
func DefaultOptions() Options {
	return Options{
		BusyTimeout: 5 * time.Second,
		OpTimeout:   15 * time.Second,
	}
}

// DB wraps the SQLite connection pool that backs the record store
type DB struct {
	conn      *sql.DB
	path      string
	opTimeout time.Duration
	mu        sync.Mutex
}

// New opens the database at path and verifies the connection
func New(path string, opts Options) (*DB, error) {
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = DefaultOptions().BusyTimeout
	}

	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", opts.BusyTimeout.Milliseconds()))
	// Take the write lock at BEGIN so a read-then-write transaction waits on
	// busy_timeout instead of failing when another process commits first.
	q.Add("_txlock", "immediate")
	dsn := fmt.Sprintf("file:%s?%s", path, q.Encode())

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.BusyTimeout)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// WAL allows concurrent readers; writers are serialized by Transaction
	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)

	log.Debug().Str("path", path).Msg("Database connection established")

	return &DB{
		conn:      conn,
		path:      path,
		opTimeout: opts.OpTimeout,
	}, nil
}

// Path returns the database file path
func (db *DB) Path() string {
	return db.path
}

// Close releases the connection pool
func (db *DB) Close() error {
	if db == nil || db.conn == nil {
		return nil
	}
	return db.conn.Close()
}

// Ping checks that the backend is reachable
func (db *DB) Ping(ctx context.Context) error {
	ctx, cancel := db.withTimeout(ctx)
	defer cancel()
	if err := db.conn.PingContext(ctx); err != nil {
		return &PersistenceError{Op: "ping", Err: err}
	}
	return nil
}

func (db *DB) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if db.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, db.opTimeout)
}

// Transaction wraps fn in a write transaction. Writers are serialized
// because SQLite only admits one at a time.
func (db *DB) Transaction(ctx context.Context, fn func(*sql.Tx) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).Msg("Failed to rollback transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ReadTransaction runs fn in a read-only transaction that is always rolled
// back, so multi-statement reads observe one snapshot. Read-only transactions
// begin deferred and do not take the write lock.
func (db *DB) ReadTransaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("failed to begin read transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	return fn(tx)
}
