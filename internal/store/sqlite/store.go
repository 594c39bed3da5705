// Package sqlite implements store.Store on SQLite.
//
// Every write transaction begins IMMEDIATE, so writers serialize on the
// database lock while readers keep going under WAL. Combined with the guarded
// statements in loans.go this keeps copy accounting exact under concurrent
// checkouts.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/jmoiron/sqlx"

	"github.com/libris/libris-server/internal/store"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

const driverName = "sqlite"

var dialect = goqu.Dialect("sqlite3")

func init() {
	sqlx.BindDriver(driverName, sqlx.QUESTION)
}

// Options tunes the connection.
type Options struct {
	// BusyTimeout is how long a connection waits for the write lock.
	BusyTimeout time.Duration
	// MaxOpenConns caps the pool size.
	MaxOpenConns int
}

// DefaultOptions returns the options used by Open.
func DefaultOptions() Options {
	return Options{BusyTimeout: 5 * time.Second, MaxOpenConns: 4}
}

// Store provides SQLite-backed persistence.
type Store struct {
	*queries

	db     *sqlx.DB
	logger *slog.Logger
}

var _ store.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path with default options.
func Open(path string, logger *slog.Logger) (*Store, error) {
	return OpenWithOptions(path, logger, DefaultOptions())
}

// OpenWithOptions opens the database at path and applies the schema.
func OpenWithOptions(path string, logger *slog.Logger, opts Options) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	db, err := sqlx.Open(driverName, dsn(path, opts))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxOpenConns)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("exec schema: %w", err)
	}

	return &Store{
		queries: &queries{ext: db},
		db:      db,
		logger:  logger,
	}, nil
}

// dsn builds a connection string whose pragmas apply to every pooled connection.
func dsn(path string, opts Options) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", opts.BusyTimeout.Milliseconds()))
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Set("_txlock", "immediate")
	return "file:" + path + "?" + q.Encode()
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InTx runs fn inside a single transaction.
func (s *Store) InTx(ctx context.Context, fn func(q store.Queries) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&queries{ext: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// queries implements store.Queries over either the pool or a transaction.
type queries struct {
	ext sqlx.ExtContext
}

// exec runs a goqu statement in prepared mode.
func (q *queries) exec(ctx context.Context, stmt interface {
	ToSQL() (string, []any, error)
}) (sql.Result, error) {
	query, args, err := stmt.ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build sql: %w", err)
	}
	return q.ext.ExecContext(ctx, query, args...)
}

// in expands a query with IN (?) placeholders for the given slice.
func (q *queries) in(query string, args ...any) (string, []any, error) {
	expanded, expandedArgs, err := sqlx.In(query, args...)
	if err != nil {
		return "", nil, err
	}
	return q.ext.Rebind(expanded), expandedArgs, nil
}

// mapWriteError converts constraint failures into store sentinels.
func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return fmt.Errorf("%w: %s", store.ErrAlreadyExists, constraintDetail(msg))
	case strings.Contains(msg, "CHECK constraint failed"):
		return fmt.Errorf("%w: %s", store.ErrGuardFailed, constraintDetail(msg))
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return fmt.Errorf("%w: referenced row missing", store.ErrNotFound)
	}
	return err
}

func constraintDetail(msg string) string {
	if i := strings.Index(msg, "constraint failed: "); i >= 0 {
		detail := msg[i+len("constraint failed: "):]
		if j := strings.Index(detail, " ("); j >= 0 {
			detail = detail[:j]
		}
		return detail
	}
	return msg
}

// notFound converts sql.ErrNoRows into store.ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

// rowsAffected returns ErrGuardFailed when a guarded write touched no row.
func rowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrGuardFailed
	}
	return nil
}

// timeLayout is RFC 3339 with a fixed-width fraction so stored values sort
// lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// formatTime formats a time.Time for storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime parses a RFC3339Nano string back to time.Time.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// parseNullableTime parses an optional time string.
func parseNullableTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// nullableString returns a sql.NullString from a *string.
func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// nullTimeString returns a sql.NullString from a *time.Time.
func nullTimeString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}
