// Package storage persists expense records in a single SQLite table.
//
// A Store is an explicit handle created once at startup. Every operation
// borrows its own connection from the pool, runs exactly one transaction and
// returns the connection; nothing is cached between calls. SQLite serializes
// writers, and write-ahead journaling keeps readers from blocking on them.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"ledger/internal/core"
	applog "ledger/internal/log"

	_ "modernc.org/sqlite"
)

const (
	// DefaultBusyTimeout bounds how long an operation waits for the write lock.
	DefaultBusyTimeout = 5 * time.Second

	sentinelDate     = "2000-01-01"
	sentinelCategory = "test"
)

// Options configures Open.
type Options struct {
	Path        string
	BusyTimeout time.Duration

	// ReadOnly rejects every write with core.ErrReadOnly. The schema must
	// already exist.
	ReadOnly bool

	// SkipSelfTest disables the sentinel insert/delete run at startup.
	SkipSelfTest bool

	Logger *slog.Logger
}

// Store is the expense record store.
type Store struct {
	db       *sql.DB
	logger   *slog.Logger
	path     string
	readOnly bool
}

// Open prepares the backing file and returns a handle to it.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Path == "" {
		return nil, errors.New("database path is required")
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = DefaultBusyTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(applog.FieldComponent, applog.ComponentStorage)

	if opts.ReadOnly {
		if _, err := os.Stat(opts.Path); err != nil {
			return nil, fmt.Errorf("stat database: %w", err)
		}
	} else if err := os.MkdirAll(filepath.Dir(opts.Path), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := buildDSN(opts)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{
		db:       db,
		logger:   logger,
		path:     opts.Path,
		readOnly: opts.ReadOnly,
	}

	if opts.ReadOnly {
		if err := s.checkSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
	} else {
		version, err := ensureSchema(dsn)
		if err != nil {
			db.Close()
			return nil, err
		}
		logger.DebugContext(ctx, "Expense schema ready", "schema_version", version)
		if !opts.SkipSelfTest {
			if err := s.selfTest(ctx); err != nil {
				db.Close()
				return nil, fmt.Errorf("schema self-test: %w", err)
			}
		}
	}

	logger.InfoContext(ctx, "Expense store opened",
		applog.FieldOperation, applog.OpStartup,
		"path", opts.Path,
		"read_only", opts.ReadOnly,
		"busy_timeout", opts.BusyTimeout.String())

	return s, nil
}

// buildDSN attaches the per-connection pragmas so every pooled connection
// is configured the same way.
func buildDSN(opts Options) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", opts.BusyTimeout.Milliseconds()))
	if opts.ReadOnly {
		q.Add("_pragma", "query_only(1)")
	} else {
		q.Add("_pragma", "journal_mode(WAL)")
	}
	return opts.Path + "?" + q.Encode()
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// ReadOnly reports whether the store was opened in read-only mode.
func (s *Store) ReadOnly() bool {
	return s.readOnly
}

// Ping checks that the backing file is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return classify("ping", s.db.PingContext(ctx))
}

// withTx runs fn in one transaction on a dedicated connection. Errors are
// classified before they are returned.
func (s *Store) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return classify(op, err)
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return classify(op, err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.WarnContext(ctx, "Rollback failed", applog.FieldOperation, op, applog.FieldError, rbErr)
		}
		return classify(op, err)
	}

	if err := tx.Commit(); err != nil {
		return classify(op, err)
	}
	return nil
}

// selfTest writes and removes a sentinel row to prove the table is writable.
// Only the row it inserted is removed.
func (s *Store) selfTest(ctx context.Context) error {
	return s.withTx(ctx, "self-test", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO expenses (date, amount, category) VALUES (?, ?, ?)`,
			sentinelDate, 0.0, sentinelCategory)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id)
		return err
	})
}

// checkSchema confirms the expenses table exists without writing to it.
func (s *Store) checkSchema(ctx context.Context) error {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'expenses'`).Scan(&n)
	if err != nil {
		return classify("check schema", err)
	}
	if n == 0 {
		return fmt.Errorf("check schema: %w: expenses table does not exist", core.ErrStorage)
	}
	return nil
}
