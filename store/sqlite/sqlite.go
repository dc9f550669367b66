/*
Package sqlite provides a SQLite-backed implementation of generic.TxStore.

PURPOSE:
  Persists the vacation ledger in an embedded SQLite file. The same schema
  runs on PostgreSQL with minor dialect differences (see store/postgres).

KEY TABLES:
  employees:    Identity, hire/termination dates, supervisor
  accruals:     One row per (employee_id, year), UNIQUE
  consumptions: One row per (request origin, accrual year) drawn from
  adjustments:  Append-only audit trail of manual overrides

INDEXES:
  - idx_consumptions_origin:   Reversal lookup (hot path on withdrawal)
  - idx_consumptions_employee: Cash-out usage and monthly report
  - idx_adjustments_employee:  Audit trail and monthly report

AMOUNTS AND DATES:
  Day amounts are stored as decimal TEXT ("2.5"), never REAL.
  Calendar dates are TEXT "YYYY-MM-DD"; timestamps are RFC3339Nano UTC.

CONCURRENCY:
  WithTx holds a store-wide mutex for the whole transaction, so ledger
  mutations are serialized and LockEmployee is a no-op. Every statement
  inside WithTx goes through the *sql.Tx. Reads outside WithTx go straight
  to the pool.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery
  ":memory:" databases use a single connection; each new connection to
  ":memory:" would otherwise open an empty database.

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - generic/store.go: Interface definitions
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/vacation-ledger/generic"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements generic.TxStore using SQLite.
type Store struct {
	*conn
	db *sql.DB
	mu sync.Mutex
}

// conn runs the ledger queries against a pool or a transaction.
type conn struct {
	q queryer
}

var _ generic.TxStore = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{conn: &conn{q: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		hire_date TEXT NOT NULL,
		termination_date TEXT,
		cost_center TEXT NOT NULL DEFAULT '',
		supervisor_id TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS accruals (
		employee_id TEXT NOT NULL REFERENCES employees(id),
		year INTEGER NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		monthly_rate TEXT NOT NULL,
		months_accrued INTEGER NOT NULL DEFAULT 0,
		total_accrued TEXT NOT NULL,
		total_consumed TEXT NOT NULL,
		remaining TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (employee_id, year)
	);

	CREATE TABLE IF NOT EXISTS consumptions (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		accrual_year INTEGER NOT NULL,
		origin_kind TEXT NOT NULL CHECK (origin_kind IN ('LEAVE', 'CASHOUT')),
		request_id TEXT NOT NULL,
		days TEXT NOT NULL,
		consumed_at TEXT NOT NULL,
		FOREIGN KEY (employee_id, accrual_year) REFERENCES accruals(employee_id, year)
	);

	CREATE INDEX IF NOT EXISTS idx_consumptions_origin
		ON consumptions(origin_kind, request_id);
	CREATE INDEX IF NOT EXISTS idx_consumptions_employee
		ON consumptions(employee_id, consumed_at);

	CREATE TABLE IF NOT EXISTS adjustments (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL REFERENCES employees(id),
		accrual_year INTEGER NOT NULL,
		adjustment_type TEXT NOT NULL CHECK (adjustment_type IN ('initial_load', 'manual', 'correction')),
		previous_value TEXT NOT NULL,
		new_value TEXT NOT NULL,
		delta TEXT NOT NULL,
		spillover TEXT NOT NULL DEFAULT '0',
		reason TEXT NOT NULL DEFAULT '',
		actor TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_adjustments_employee
		ON adjustments(employee_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store generic.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&conn{q: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// Reset deletes every row. Used by demo scenario loading.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"consumptions", "adjustments", "accruals", "employees"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	return nil
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func (c *conn) SaveEmployee(ctx context.Context, emp generic.Employee) error {
	query := `
		INSERT INTO employees (id, name, email, hire_date, termination_date, cost_center, supervisor_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			hire_date = excluded.hire_date,
			termination_date = excluded.termination_date,
			cost_center = excluded.cost_center,
			supervisor_id = excluded.supervisor_id
	`

	var supervisor sql.NullString
	if emp.SupervisorID != nil {
		supervisor = nullString(string(*emp.SupervisorID))
	}
	_, err := c.q.ExecContext(ctx, query,
		emp.ID, emp.Name, emp.Email,
		formatDate(emp.HireDate),
		nullDate(emp.TerminationDate),
		emp.CostCenter,
		supervisor,
		formatTimestamp(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("save employee %s: %w", emp.ID, err)
	}
	return nil
}

const employeeColumns = "id, name, email, hire_date, termination_date, cost_center, supervisor_id"

func (c *conn) GetEmployee(ctx context.Context, id generic.EmployeeID) (*generic.Employee, error) {
	row := c.q.QueryRowContext(ctx, "SELECT "+employeeColumns+" FROM employees WHERE id = ?", id)
	emp, err := scanEmployee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, generic.ErrEmployeeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get employee %s: %w", id, err)
	}
	return &emp, nil
}

func (c *conn) ListEmployees(ctx context.Context) ([]generic.Employee, error) {
	rows, err := c.q.QueryContext(ctx, "SELECT "+employeeColumns+" FROM employees ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	defer rows.Close()

	var result []generic.Employee
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, emp)
	}
	return result, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEmployee(row scanner) (generic.Employee, error) {
	var (
		emp                     generic.Employee
		hire                    string
		termination, supervisor sql.NullString
	)
	if err := row.Scan(&emp.ID, &emp.Name, &emp.Email, &hire, &termination, &emp.CostCenter, &supervisor); err != nil {
		return emp, err
	}
	emp.HireDate = parseDate(hire)
	if termination.Valid {
		t := parseDate(termination.String)
		emp.TerminationDate = &t
	}
	if supervisor.Valid {
		id := generic.EmployeeID(supervisor.String)
		emp.SupervisorID = &id
	}
	return emp, nil
}

// LockEmployee is a no-op: WithTx already serializes writers.
func (c *conn) LockEmployee(context.Context, generic.EmployeeID) error { return nil }

// =============================================================================
// ACCRUALS
// =============================================================================

const accrualColumns = `employee_id, year, start_date, end_date, monthly_rate, months_accrued,
	total_accrued, total_consumed, remaining, created_at, updated_at`

func (c *conn) GetAccrual(ctx context.Context, id generic.EmployeeID, year int) (*generic.AccrualRecord, error) {
	row := c.q.QueryRowContext(ctx,
		"SELECT "+accrualColumns+" FROM accruals WHERE employee_id = ? AND year = ?", id, year)
	rec, err := scanAccrual(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, generic.ErrAccrualNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get accrual %s/%d: %w", id, year, err)
	}
	return &rec, nil
}

func (c *conn) ListAccruals(ctx context.Context, id generic.EmployeeID) ([]generic.AccrualRecord, error) {
	rows, err := c.q.QueryContext(ctx,
		"SELECT "+accrualColumns+" FROM accruals WHERE employee_id = ? ORDER BY year ASC", id)
	if err != nil {
		return nil, fmt.Errorf("list accruals %s: %w", id, err)
	}
	defer rows.Close()

	var result []generic.AccrualRecord
	for rows.Next() {
		rec, err := scanAccrual(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (c *conn) SaveAccrual(ctx context.Context, rec generic.AccrualRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	query := `
		INSERT INTO accruals (` + accrualColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(employee_id, year) DO UPDATE SET
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			monthly_rate = excluded.monthly_rate,
			months_accrued = excluded.months_accrued,
			total_accrued = excluded.total_accrued,
			total_consumed = excluded.total_consumed,
			remaining = excluded.remaining,
			updated_at = excluded.updated_at
	`
	_, err := c.q.ExecContext(ctx, query,
		rec.EmployeeID, rec.Year,
		formatDate(rec.StartDate), formatDate(rec.EndDate),
		rec.MonthlyRate.String(), rec.MonthsAccrued,
		rec.TotalAccrued.String(), rec.TotalConsumed.String(), rec.Remaining.String(),
		formatTimestamp(rec.CreatedAt), formatTimestamp(rec.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save accrual %s/%d: %w", rec.EmployeeID, rec.Year, err)
	}
	return nil
}

func scanAccrual(row scanner) (generic.AccrualRecord, error) {
	var (
		rec                                 generic.AccrualRecord
		start, end, rate, accrued, consumed string
		remaining, createdAt, updatedAt     string
	)
	err := row.Scan(&rec.EmployeeID, &rec.Year, &start, &end, &rate, &rec.MonthsAccrued,
		&accrued, &consumed, &remaining, &createdAt, &updatedAt)
	if err != nil {
		return rec, err
	}
	rec.StartDate = parseDate(start)
	rec.EndDate = parseDate(end)
	rec.MonthlyRate = parseDays(rate)
	rec.TotalAccrued = parseDays(accrued)
	rec.TotalConsumed = parseDays(consumed)
	rec.Remaining = parseDays(remaining)
	rec.CreatedAt = parseTimestamp(createdAt)
	rec.UpdatedAt = parseTimestamp(updatedAt)
	return rec, nil
}

// =============================================================================
// CONSUMPTIONS
// =============================================================================

const consumptionColumns = "id, employee_id, accrual_year, origin_kind, request_id, days, consumed_at"

func (c *conn) AddConsumption(ctx context.Context, cons generic.Consumption) error {
	if !cons.Days.IsPositive() {
		return generic.ErrInvalidAmount
	}
	if err := cons.Origin.Validate(); err != nil {
		return err
	}
	_, err := c.q.ExecContext(ctx,
		"INSERT INTO consumptions ("+consumptionColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
		cons.ID, cons.EmployeeID, cons.AccrualYear,
		string(cons.Origin.Kind), string(cons.Origin.RequestID),
		cons.Days.String(), formatTimestamp(cons.ConsumedAt),
	)
	if err != nil {
		return fmt.Errorf("add consumption %s: %w", cons.Origin, err)
	}
	return nil
}

func (c *conn) ConsumptionsByOrigin(ctx context.Context, origin generic.Origin) ([]generic.Consumption, error) {
	return c.queryConsumptions(ctx,
		"SELECT "+consumptionColumns+" FROM consumptions WHERE origin_kind = ? AND request_id = ? ORDER BY consumed_at, accrual_year",
		string(origin.Kind), string(origin.RequestID))
}

func (c *conn) ConsumptionsByEmployee(ctx context.Context, id generic.EmployeeID) ([]generic.Consumption, error) {
	return c.queryConsumptions(ctx,
		"SELECT "+consumptionColumns+" FROM consumptions WHERE employee_id = ? ORDER BY consumed_at, accrual_year",
		id)
}

func (c *conn) ConsumptionsInRange(ctx context.Context, id generic.EmployeeID, from, to time.Time) ([]generic.Consumption, error) {
	return c.queryConsumptions(ctx,
		"SELECT "+consumptionColumns+" FROM consumptions WHERE employee_id = ? AND consumed_at >= ? AND consumed_at <= ? ORDER BY consumed_at, accrual_year",
		id, formatTimestamp(from), formatTimestamp(to))
}

func (c *conn) DeleteConsumption(ctx context.Context, id generic.ConsumptionID) error {
	if _, err := c.q.ExecContext(ctx, "DELETE FROM consumptions WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete consumption %s: %w", id, err)
	}
	return nil
}

func (c *conn) queryConsumptions(ctx context.Context, query string, args ...any) ([]generic.Consumption, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query consumptions: %w", err)
	}
	defer rows.Close()

	var result []generic.Consumption
	for rows.Next() {
		var (
			cons                generic.Consumption
			kind, request, days string
			consumedAt          string
		)
		if err := rows.Scan(&cons.ID, &cons.EmployeeID, &cons.AccrualYear, &kind, &request, &days, &consumedAt); err != nil {
			return nil, err
		}
		cons.Origin = generic.Origin{Kind: generic.OriginKind(kind), RequestID: generic.RequestID(request)}
		cons.Days = parseDays(days)
		cons.ConsumedAt = parseTimestamp(consumedAt)
		result = append(result, cons)
	}
	return result, rows.Err()
}

// =============================================================================
// ADJUSTMENTS (append-only)
// =============================================================================

const adjustmentColumns = `id, employee_id, accrual_year, adjustment_type, previous_value, new_value,
	delta, spillover, reason, actor, created_at`

func (c *conn) AddAdjustment(ctx context.Context, adj generic.Adjustment) error {
	_, err := c.q.ExecContext(ctx,
		"INSERT INTO adjustments ("+adjustmentColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		adj.ID, adj.EmployeeID, adj.AccrualYear, string(adj.Type),
		adj.PreviousValue.String(), adj.NewValue.String(), adj.Delta.String(), adj.Spillover.String(),
		adj.Reason, adj.Actor, formatTimestamp(adj.CreatedAt),
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("adjustment %s already recorded: %w", adj.ID, err)
	}
	if err != nil {
		return fmt.Errorf("add adjustment %s/%d: %w", adj.EmployeeID, adj.AccrualYear, err)
	}
	return nil
}

func (c *conn) AdjustmentsByEmployee(ctx context.Context, id generic.EmployeeID) ([]generic.Adjustment, error) {
	rows, err := c.q.QueryContext(ctx,
		"SELECT "+adjustmentColumns+" FROM adjustments WHERE employee_id = ? ORDER BY created_at, rowid", id)
	if err != nil {
		return nil, fmt.Errorf("list adjustments %s: %w", id, err)
	}
	defer rows.Close()

	var result []generic.Adjustment
	for rows.Next() {
		var (
			adj                                generic.Adjustment
			kind, prev, next, delta, spill, at string
		)
		if err := rows.Scan(&adj.ID, &adj.EmployeeID, &adj.AccrualYear, &kind, &prev, &next,
			&delta, &spill, &adj.Reason, &adj.Actor, &at); err != nil {
			return nil, err
		}
		adj.Type = generic.AdjustmentType(kind)
		adj.PreviousValue = parseDays(prev)
		adj.NewValue = parseDays(next)
		adj.Delta = parseDays(delta)
		adj.Spillover = parseDays(spill)
		adj.CreatedAt = parseTimestamp(at)
		result = append(result, adj)
	}
	return result, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

// timestampLayout sorts lexically: fixed-width fraction, always UTC.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

func formatDate(t time.Time) string      { return t.Format(generic.DateLayout) }
func formatTimestamp(t time.Time) string { return t.UTC().Format(timestampLayout) }

func parseDate(s string) time.Time {
	t, _ := generic.ParseDate(s)
	return t
}

func parseTimestamp(s string) time.Time {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t.UTC()
}

func parseDays(s string) decimal.Decimal {
	return generic.MustParseDays(s)
}

func nullDate(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return nullString(formatDate(*t))
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
