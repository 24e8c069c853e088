/*
Package sqlstore provides the relational implementation of ledger.TxStore.

PURPOSE:
  Implements every persistence contract of the ledger package on
  database/sql. The same queries run on SQLite (development, tests) and
  PostgreSQL (production); a Dialect carries the differences: placeholder
  style, row locks and unique-violation detection.

KEY TABLES:
  obligations, late_fee_configs: recurring obligations and fee policies
  late_fee_charges:              one row per (obligation, period)
  payments, payment_allocations: immutable payments and their waterfall
  trust_accounts, trust_transactions: trust balances and postings
  expense_categories, expenses, receipt_extractions
  properties, units, leases:     owner context

INVARIANTS ENFORCED BY THE SCHEMA:
  - idx_unique_charge_period: at most one late-fee charge per period
  - payments.idempotency_key UNIQUE: safe payment retries
  - idx_trust_transactions_seq: no forked running balance
  - expenses CHECK: paid expenses carry a payment date and method

CONCURRENCY:
  SQLite runs on a single connection, so writers are serialized by the
  pool. PostgreSQL takes row locks with SELECT ... FOR UPDATE inside WithTx.
  Inside WithTx, use only the Store handed to fn: on SQLite the outer
  handle waits for the connection the transaction holds.

MONEY AND DATES:
  Decimals are stored as TEXT (exact), dates as YYYY-MM-DD and timestamps
  as fixed-width RFC 3339 with nanoseconds so they sort lexically.

MIGRATION:
  The schema lives in migrations/ and is embedded. Open applies it
  directly on SQLite; PostgreSQL is migrated by golang-migrate
  (MigratePostgres, cmd/migrate).

USAGE:
  store, err := sqlstore.Open(sqlstore.SQLite, ":memory:", logger)
  if err != nil {
      return err
  }
  defer store.Close()

SEE ALSO:
  - ledger/store.go: Interface definitions
  - migrate.go: golang-migrate runner
*/
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/wdeanegpt/property-sub001/ledger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const initMigration = "migrations/000001_init.up.sql"

// timestampLayout is RFC 3339 with fixed nanoseconds so stored values sort.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// =============================================================================
// DIALECTS
// =============================================================================

// Dialect captures what differs between the supported databases.
type Dialect struct {
	Name      string
	Driver    string
	Numbered  bool // $1, $2 placeholders instead of ?
	RowLocks  bool // supports SELECT ... FOR UPDATE
	uniqueErr func(error) bool
}

var (
	SQLite = Dialect{
		Name:   "sqlite",
		Driver: "sqlite3",
		uniqueErr: func(err error) bool {
			var se sqlite3.Error
			if errors.As(err, &se) {
				return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
					se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
			}
			return false
		},
	}

	Postgres = Dialect{
		Name:     "postgres",
		Driver:   "postgres",
		Numbered: true,
		RowLocks: true,
		uniqueErr: func(err error) bool {
			var pe *pq.Error
			return errors.As(err, &pe) && pe.Code == "23505"
		},
	}
)

// DialectFor returns the dialect registered under name.
func DialectFor(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql":
		return Postgres, nil
	default:
		return Dialect{}, fmt.Errorf("unknown database driver %q", name)
	}
}

// rebind rewrites ? placeholders to $n for numbered dialects.
func (d Dialect) rebind(query string) string {
	if !d.Numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d Dialect) isUniqueViolation(err error) bool {
	return err != nil && d.uniqueErr != nil && d.uniqueErr(err)
}

// =============================================================================
// STORE
// =============================================================================

// Store implements ledger.TxStore.
type Store struct {
	*queries
	db     *sql.DB
	logger *zap.Logger
}

var _ ledger.TxStore = (*Store)(nil)

// Open connects to the database. For SQLite, dsn is a file path or
// ":memory:" and the schema is applied; for PostgreSQL, dsn is a
// connection URL and the schema is expected to be migrated already.
func Open(d Dialect, dsn string, logger *zap.Logger) (*Store, error) {
	if d.Driver == SQLite.Driver {
		dsn = sqliteDSN(dsn)
	}
	db, err := sql.Open(d.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if d.Driver == SQLite.Driver {
		// One connection: serializes writers and keeps :memory: databases alive.
		db.SetMaxOpenConns(1)
	}

	store := NewWithDB(db, d, logger)
	if d.Driver == SQLite.Driver {
		if err := store.migrate(context.Background()); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}
	return store, nil
}

// NewWithDB wraps an existing connection pool without migrating it.
const sqliteParams = "_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000"

// sqliteDSN appends the connection parameters, keeping any query string
// already present in dsn.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&" + sqliteParams
	}
	return dsn + "?" + sqliteParams
}

func NewWithDB(db *sql.DB, d Dialect, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		queries: &queries{q: db, d: d},
		db:      db,
		logger:  logger.Named("sqlstore"),
	}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the pool for health checks and maintenance.
func (s *Store) DB() *sql.DB { return s.db }

// Dialect returns the store's dialect.
func (s *Store) Dialect() Dialect { return s.d }

func (s *Store) migrate(ctx context.Context) error {
	schema, err := migrationsFS.ReadFile(initMigration)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(schema))
	return err
}

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{q: sqlTx, d: s.d}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// =============================================================================
// QUERIES - Shared by the pool and by transactions
// =============================================================================

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements ledger.Store against either *sql.DB or *sql.Tx.
type queries struct {
	q querier
	d Dialect
}

func (s *queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.q.ExecContext(ctx, s.d.rebind(query), args...)
}

func (s *queries) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.q.QueryContext(ctx, s.d.rebind(query), args...)
}

func (s *queries) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.q.QueryRowContext(ctx, s.d.rebind(query), args...)
}

// lockRow checks a row exists and, on dialects with row locks, holds it
// until the surrounding transaction ends.
func (s *queries) lockRow(ctx context.Context, table, entity, id string) error {
	query := "SELECT id FROM " + table + " WHERE id = ?"
	if s.d.RowLocks {
		query += " FOR UPDATE"
	}
	var got string
	err := s.queryRow(ctx, query, id).Scan(&got)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.NewNotFoundError(entity, id)
	}
	if err != nil {
		return fmt.Errorf("failed to lock %s: %w", entity, err)
	}
	return nil
}

// requireAffected maps "no rows updated" to a NotFoundError.
func requireAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.NewNotFoundError(entity, id)
	}
	return nil
}

// =============================================================================
// FILTER BUILDER
// =============================================================================

// where accumulates AND-ed conditions with their arguments.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, args ...any) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, args...)
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

// whereIn adds "column IN (?, ...)" for a non-empty set.
func whereIn[T ~string](w *where, column string, values []T) {
	if len(values) == 0 {
		return
	}
	marks := make([]string, len(values))
	for i, v := range values {
		marks[i] = "?"
		w.args = append(w.args, string(v))
	}
	w.clauses = append(w.clauses, column+" IN ("+strings.Join(marks, ", ")+")")
}

// =============================================================================
// ENCODING HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string { return t.UTC().Format(timestampLayout) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(timestampLayout, s)
	return t
}

func formatDate(d ledger.Date) string { return d.String() }

func nullDate(d *ledger.Date) sql.NullString {
	if d == nil || d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseDate(s string) (ledger.Date, error) {
	return ledger.ParseDate(s)
}

func parseNullDate(ns sql.NullString) (*ledger.Date, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	d, err := ledger.ParseDate(ns.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("stored amount %q: %w", s, err)
	}
	return d, nil
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseNullDecimal(ns sql.NullString) (*decimal.Decimal, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	d, err := parseDecimal(ns.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
