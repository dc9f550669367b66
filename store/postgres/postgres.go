/*
Package postgres provides a PostgreSQL-backed implementation of generic.TxStore.

PURPOSE:
  Production storage for the vacation ledger. Same tables as store/sqlite,
  with NUMERIC amounts, DATE calendar days and TIMESTAMPTZ stamps.

CONCURRENCY:
  LockEmployee takes pg_advisory_xact_lock(hashtext(employee_id)). The lock
  lives until the enclosing transaction ends, so two mutations on the same
  employee serialize while different employees proceed in parallel.

QUERIES:
  Statements are built with squirrel (Dollar placeholders). NUMERIC columns
  are read back as ::text and parsed into decimal.Decimal so no precision is
  lost on the way through float64.

USAGE:
  pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
  store := postgres.New(pool)
  if err := store.Migrate(ctx); err != nil { ... }

SEE ALSO:
  - generic/store.go: Interface definitions
  - store/sqlite: Embedded implementation
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/warp/vacation-ledger/generic"
)

// Querier is implemented by *pgxpool.Pool, pgx.Tx and pgxmock.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB is a Querier that can open transactions.
type DB interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Store implements generic.TxStore on PostgreSQL.
type Store struct {
	*queries
	db DB
}

type queries struct {
	q Querier
}

var _ generic.TxStore = (*Store)(nil)

// New wraps a pool (or a mock of one).
func New(db DB) *Store {
	return &Store{queries: &queries{q: db}, db: db}
}

// NewPool parses the DSN, connects and pings.
func NewPool(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database DSN: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Schema is applied by Migrate. Every statement is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS employees (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT NOT NULL DEFAULT '',
	hire_date DATE NOT NULL,
	termination_date DATE,
	cost_center TEXT NOT NULL DEFAULT '',
	supervisor_id TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS accruals (
	employee_id TEXT NOT NULL REFERENCES employees(id),
	year INTEGER NOT NULL,
	start_date DATE NOT NULL,
	end_date DATE NOT NULL,
	monthly_rate NUMERIC(6,2) NOT NULL,
	months_accrued INTEGER NOT NULL DEFAULT 0 CHECK (months_accrued BETWEEN 0 AND 12),
	total_accrued NUMERIC(8,2) NOT NULL CHECK (total_accrued >= 0),
	total_consumed NUMERIC(8,2) NOT NULL CHECK (total_consumed >= 0),
	remaining NUMERIC(8,2) NOT NULL CHECK (remaining >= 0),
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (employee_id, year)
);

CREATE TABLE IF NOT EXISTS consumptions (
	id TEXT PRIMARY KEY,
	employee_id TEXT NOT NULL,
	accrual_year INTEGER NOT NULL,
	origin_kind TEXT NOT NULL CHECK (origin_kind IN ('LEAVE', 'CASHOUT')),
	request_id TEXT NOT NULL,
	days NUMERIC(8,2) NOT NULL CHECK (days > 0),
	consumed_at TIMESTAMPTZ NOT NULL,
	FOREIGN KEY (employee_id, accrual_year) REFERENCES accruals(employee_id, year)
);

CREATE INDEX IF NOT EXISTS idx_consumptions_origin ON consumptions(origin_kind, request_id);
CREATE INDEX IF NOT EXISTS idx_consumptions_employee ON consumptions(employee_id, consumed_at);

CREATE TABLE IF NOT EXISTS adjustments (
	id TEXT PRIMARY KEY,
	employee_id TEXT NOT NULL REFERENCES employees(id),
	accrual_year INTEGER NOT NULL,
	adjustment_type TEXT NOT NULL CHECK (adjustment_type IN ('initial_load', 'manual', 'correction')),
	previous_value NUMERIC(8,2) NOT NULL,
	new_value NUMERIC(8,2) NOT NULL,
	delta NUMERIC(8,2) NOT NULL,
	spillover NUMERIC(8,2) NOT NULL DEFAULT 0,
	reason TEXT NOT NULL DEFAULT '',
	actor TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_adjustments_employee ON adjustments(employee_id, created_at);
`

// Migrate creates the schema.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Reset truncates every ledger table.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.db.Exec(ctx, "TRUNCATE consumptions, adjustments, accruals, employees")
	return mapError(err, "reset", "")
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx runs fn in one transaction. Rollback on error or panic.
func (s *Store) WithTx(ctx context.Context, fn func(generic.Store) error) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback(ctx)
			panic(r)
		}
	}()

	if err := fn(&queries{q: tx}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("rollback failed: %w (original error: %v)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// LockEmployee takes a transaction-scoped advisory lock on the employee.
// Outside a transaction the lock is released immediately.
func (q *queries) LockEmployee(ctx context.Context, id generic.EmployeeID) error {
	_, err := q.q.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", string(id))
	return mapError(err, "lock employee", string(id))
}

// =============================================================================
// EMPLOYEES
// =============================================================================

var employeeColumns = []string{
	"id", "name", "email", "hire_date", "termination_date", "cost_center", "supervisor_id",
}

func (q *queries) SaveEmployee(ctx context.Context, emp generic.Employee) error {
	var supervisor *string
	if emp.SupervisorID != nil {
		s := string(*emp.SupervisorID)
		supervisor = &s
	}
	query := psql.Insert("employees").
		Columns(employeeColumns...).
		Values(string(emp.ID), emp.Name, emp.Email, emp.HireDate, emp.TerminationDate, emp.CostCenter, supervisor).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			hire_date = EXCLUDED.hire_date,
			termination_date = EXCLUDED.termination_date,
			cost_center = EXCLUDED.cost_center,
			supervisor_id = EXCLUDED.supervisor_id`)

	return q.exec(ctx, query, "save employee", string(emp.ID))
}

func (q *queries) GetEmployee(ctx context.Context, id generic.EmployeeID) (*generic.Employee, error) {
	sql, args, err := psql.Select(employeeColumns...).From("employees").
		Where(sq.Eq{"id": string(id)}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	emp, err := scanEmployee(q.q.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, generic.ErrEmployeeNotFound
	}
	if err != nil {
		return nil, mapError(err, "get employee", string(id))
	}
	return &emp, nil
}

func (q *queries) ListEmployees(ctx context.Context) ([]generic.Employee, error) {
	sql, args, err := psql.Select(employeeColumns...).From("employees").OrderBy("id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := q.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(err, "list employees", "")
	}
	defer rows.Close()

	var result []generic.Employee
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, mapError(err, "scan employee", "")
		}
		result = append(result, emp)
	}
	return result, rows.Err()
}

func scanEmployee(row pgx.Row) (generic.Employee, error) {
	var (
		emp         generic.Employee
		id          string
		termination *time.Time
		supervisor  *string
	)
	if err := row.Scan(&id, &emp.Name, &emp.Email, &emp.HireDate, &termination, &emp.CostCenter, &supervisor); err != nil {
		return emp, err
	}
	emp.ID = generic.EmployeeID(id)
	emp.HireDate = generic.Truncate(emp.HireDate)
	if termination != nil {
		t := generic.Truncate(*termination)
		emp.TerminationDate = &t
	}
	if supervisor != nil {
		sup := generic.EmployeeID(*supervisor)
		emp.SupervisorID = &sup
	}
	return emp, nil
}

// =============================================================================
// ACCRUALS
// =============================================================================

var accrualColumns = []string{
	"employee_id", "year", "start_date", "end_date", "monthly_rate::text", "months_accrued",
	"total_accrued::text", "total_consumed::text", "remaining::text", "created_at", "updated_at",
}

func (q *queries) GetAccrual(ctx context.Context, id generic.EmployeeID, year int) (*generic.AccrualRecord, error) {
	sql, args, err := psql.Select(accrualColumns...).From("accruals").
		Where(sq.Eq{"employee_id": string(id), "year": year}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rec, err := scanAccrual(q.q.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, generic.ErrAccrualNotFound
	}
	if err != nil {
		return nil, mapError(err, "get accrual", fmt.Sprintf("%s/%d", id, year))
	}
	return &rec, nil
}

func (q *queries) ListAccruals(ctx context.Context, id generic.EmployeeID) ([]generic.AccrualRecord, error) {
	sql, args, err := psql.Select(accrualColumns...).From("accruals").
		Where(sq.Eq{"employee_id": string(id)}).OrderBy("year ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := q.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(err, "list accruals", string(id))
	}
	defer rows.Close()

	var result []generic.AccrualRecord
	for rows.Next() {
		rec, err := scanAccrual(rows)
		if err != nil {
			return nil, mapError(err, "scan accrual", string(id))
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (q *queries) SaveAccrual(ctx context.Context, rec generic.AccrualRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	query := psql.Insert("accruals").
		Columns("employee_id", "year", "start_date", "end_date", "monthly_rate", "months_accrued",
			"total_accrued", "total_consumed", "remaining", "created_at", "updated_at").
		Values(string(rec.EmployeeID), rec.Year, rec.StartDate, rec.EndDate,
			numeric(rec.MonthlyRate), rec.MonthsAccrued,
			numeric(rec.TotalAccrued), numeric(rec.TotalConsumed), numeric(rec.Remaining),
			rec.CreatedAt, rec.UpdatedAt).
		Suffix(`ON CONFLICT (employee_id, year) DO UPDATE SET
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			monthly_rate = EXCLUDED.monthly_rate,
			months_accrued = EXCLUDED.months_accrued,
			total_accrued = EXCLUDED.total_accrued,
			total_consumed = EXCLUDED.total_consumed,
			remaining = EXCLUDED.remaining,
			updated_at = EXCLUDED.updated_at`)

	return q.exec(ctx, query, "save accrual", fmt.Sprintf("%s/%d", rec.EmployeeID, rec.Year))
}

func scanAccrual(row pgx.Row) (generic.AccrualRecord, error) {
	var (
		rec                             generic.AccrualRecord
		id                              string
		rate, accrued, consumed, remain string
	)
	err := row.Scan(&id, &rec.Year, &rec.StartDate, &rec.EndDate, &rate, &rec.MonthsAccrued,
		&accrued, &consumed, &remain, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return rec, err
	}
	rec.EmployeeID = generic.EmployeeID(id)
	rec.StartDate = generic.Truncate(rec.StartDate)
	rec.EndDate = generic.Truncate(rec.EndDate)
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	if rec.MonthlyRate, err = decimal.NewFromString(rate); err != nil {
		return rec, err
	}
	if rec.TotalAccrued, err = decimal.NewFromString(accrued); err != nil {
		return rec, err
	}
	if rec.TotalConsumed, err = decimal.NewFromString(consumed); err != nil {
		return rec, err
	}
	rec.Remaining, err = decimal.NewFromString(remain)
	return rec, err
}

// =============================================================================
// CONSUMPTIONS
// =============================================================================

var consumptionColumns = []string{
	"id", "employee_id", "accrual_year", "origin_kind", "request_id", "days::text", "consumed_at",
}

func (q *queries) AddConsumption(ctx context.Context, c generic.Consumption) error {
	if !c.Days.IsPositive() {
		return generic.ErrInvalidAmount
	}
	if err := c.Origin.Validate(); err != nil {
		return err
	}
	query := psql.Insert("consumptions").
		Columns("id", "employee_id", "accrual_year", "origin_kind", "request_id", "days", "consumed_at").
		Values(string(c.ID), string(c.EmployeeID), c.AccrualYear,
			string(c.Origin.Kind), string(c.Origin.RequestID), numeric(c.Days), c.ConsumedAt)

	return q.exec(ctx, query, "add consumption", c.Origin.String())
}

func (q *queries) ConsumptionsByOrigin(ctx context.Context, origin generic.Origin) ([]generic.Consumption, error) {
	return q.selectConsumptions(ctx, sq.Eq{
		"origin_kind": string(origin.Kind),
		"request_id":  string(origin.RequestID),
	})
}

func (q *queries) ConsumptionsByEmployee(ctx context.Context, id generic.EmployeeID) ([]generic.Consumption, error) {
	return q.selectConsumptions(ctx, sq.Eq{"employee_id": string(id)})
}

func (q *queries) ConsumptionsInRange(ctx context.Context, id generic.EmployeeID, from, to time.Time) ([]generic.Consumption, error) {
	return q.selectConsumptions(ctx, sq.And{
		sq.Eq{"employee_id": string(id)},
		sq.GtOrEq{"consumed_at": from},
		sq.LtOrEq{"consumed_at": to},
	})
}

func (q *queries) selectConsumptions(ctx context.Context, where sq.Sqlizer) ([]generic.Consumption, error) {
	sql, args, err := psql.Select(consumptionColumns...).From("consumptions").
		Where(where).OrderBy("consumed_at", "accrual_year").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := q.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(err, "query consumptions", "")
	}
	defer rows.Close()

	var result []generic.Consumption
	for rows.Next() {
		var (
			c                      generic.Consumption
			id, emp, kind, request string
			days                   string
		)
		if err := rows.Scan(&id, &emp, &c.AccrualYear, &kind, &request, &days, &c.ConsumedAt); err != nil {
			return nil, mapError(err, "scan consumption", "")
		}
		c.ID = generic.ConsumptionID(id)
		c.EmployeeID = generic.EmployeeID(emp)
		c.Origin = generic.Origin{Kind: generic.OriginKind(kind), RequestID: generic.RequestID(request)}
		c.ConsumedAt = c.ConsumedAt.UTC()
		if c.Days, err = decimal.NewFromString(days); err != nil {
			return nil, fmt.Errorf("parse consumption %s days: %w", id, err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (q *queries) DeleteConsumption(ctx context.Context, id generic.ConsumptionID) error {
	return q.exec(ctx, psql.Delete("consumptions").Where(sq.Eq{"id": string(id)}), "delete consumption", string(id))
}

// =============================================================================
// ADJUSTMENTS (append-only)
// =============================================================================

var adjustmentColumns = []string{
	"id", "employee_id", "accrual_year", "adjustment_type", "previous_value::text", "new_value::text",
	"delta::text", "spillover::text", "reason", "actor", "created_at",
}

func (q *queries) AddAdjustment(ctx context.Context, adj generic.Adjustment) error {
	query := psql.Insert("adjustments").
		Columns("id", "employee_id", "accrual_year", "adjustment_type", "previous_value", "new_value",
			"delta", "spillover", "reason", "actor", "created_at").
		Values(string(adj.ID), string(adj.EmployeeID), adj.AccrualYear, string(adj.Type),
			numeric(adj.PreviousValue), numeric(adj.NewValue), numeric(adj.Delta), numeric(adj.Spillover),
			adj.Reason, adj.Actor, adj.CreatedAt)

	return q.exec(ctx, query, "add adjustment", string(adj.ID))
}

func (q *queries) AdjustmentsByEmployee(ctx context.Context, id generic.EmployeeID) ([]generic.Adjustment, error) {
	sql, args, err := psql.Select(adjustmentColumns...).From("adjustments").
		Where(sq.Eq{"employee_id": string(id)}).OrderBy("created_at", "id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := q.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(err, "list adjustments", string(id))
	}
	defer rows.Close()

	var result []generic.Adjustment
	for rows.Next() {
		var (
			adj                      generic.Adjustment
			adjID, emp, kind         string
			prev, next, delta, spill string
		)
		if err := rows.Scan(&adjID, &emp, &adj.AccrualYear, &kind, &prev, &next,
			&delta, &spill, &adj.Reason, &adj.Actor, &adj.CreatedAt); err != nil {
			return nil, mapError(err, "scan adjustment", string(id))
		}
		adj.ID = generic.AdjustmentID(adjID)
		adj.EmployeeID = generic.EmployeeID(emp)
		adj.Type = generic.AdjustmentType(kind)
		adj.CreatedAt = adj.CreatedAt.UTC()
		for _, f := range []struct {
			dst *decimal.Decimal
			src string
		}{{&adj.PreviousValue, prev}, {&adj.NewValue, next}, {&adj.Delta, delta}, {&adj.Spillover, spill}} {
			if *f.dst, err = decimal.NewFromString(f.src); err != nil {
				return nil, fmt.Errorf("parse adjustment %s: %w", adjID, err)
			}
		}
		result = append(result, adj)
	}
	return result, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func (q *queries) exec(ctx context.Context, b sq.Sqlizer, op, id string) error {
	sql, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	_, err = q.q.Exec(ctx, sql, args...)
	return mapError(err, op, id)
}

// numeric binds a decimal as text and casts it server-side.
func numeric(d decimal.Decimal) sq.Sqlizer {
	return sq.Expr("(?::text)::numeric", d.String())
}

// mapError converts pgx errors into ledger sentinels.
func mapError(err error, op, id string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s %s: %w", op, id, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%s %s: %w", op, id, generic.ErrDuplicateAccrual)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%s %s: %w", op, id, generic.ErrEmployeeNotFound)
		case "23514": // check_violation
			return fmt.Errorf("%s %s: %w: %s", op, id, generic.ErrInvariantViolated, pgErr.ConstraintName)
		}
	}

	return fmt.Errorf("%s %s: %w", op, id, err)
}
