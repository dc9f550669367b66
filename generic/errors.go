/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Stores and the vacation package wrap these errors with additional context.

ERROR CATEGORIES:
  1. Not-found errors - Missing employee or accrual record
  2. Validation errors - Inputs the caller should have rejected
  3. Invariant errors - A ledger row no longer balances

NOT ERRORS:
  - Allocation shortfall is a field on the consume result, not an error.
  - Reversing a request that has no consumption left is a successful no-op.

USAGE:
  if errors.Is(err, generic.ErrEmployeeNotFound) {
      // 404
  }

SEE ALSO:
  - store.go: Stores map driver errors onto these sentinels
  - api/handlers.go: Maps these errors to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrEmployeeNotFound is returned when a referenced employee doesn't exist.
	ErrEmployeeNotFound = errors.New("employee not found")

	// ErrAccrualNotFound is returned by stores when no row exists for
	// (employee, year). The adjustment path treats it as "create".
	ErrAccrualNotFound = errors.New("accrual record not found")

	// ErrDuplicateAccrual is returned when inserting a second row for the
	// same (employee, year).
	ErrDuplicateAccrual = errors.New("duplicate accrual record")

	// ErrRequestAlreadyConsumed is returned when an origin that still has
	// consumption rows is consumed again. Reverse first.
	ErrRequestAlreadyConsumed = errors.New("request already consumed")

	// ErrInvalidAmount is returned for negative or zero day counts where a
	// positive amount is required.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidOrigin is returned for an unknown request kind or empty id.
	ErrInvalidOrigin = errors.New("invalid request origin")

	// ErrInvalidAdjustmentType is returned for an unknown adjustment category.
	ErrInvalidAdjustmentType = errors.New("invalid adjustment type")

	// ErrInvalidMonth is returned for report months outside 1-12.
	ErrInvalidMonth = errors.New("invalid month")

	// ErrInsufficientBalance is returned by callers that treat shortfall as fatal.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInvariantViolated is returned when a ledger row stops balancing.
	ErrInvariantViolated = errors.New("ledger invariant violated")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	EmployeeID EmployeeID
	Origin     Origin
	Available  decimal.Decimal
	Requested  decimal.Decimal
	Shortfall  decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: available %v, requested %v, shortfall %v",
		e.Available, e.Requested, e.Shortfall)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// InvariantError names the row and the field relation that failed.
type InvariantError struct {
	EmployeeID EmployeeID
	Year       int
	Reason     string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("ledger invariant violated for %s/%d: %s", e.EmployeeID, e.Year, e.Reason)
}

func (e *InvariantError) Unwrap() error {
	return ErrInvariantViolated
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidOrigin) ||
		errors.Is(err, ErrInvalidAdjustmentType) ||
		errors.Is(err, ErrInvalidMonth)
}

// IsConflict returns true for errors a caller may resolve by changing the request.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrDuplicateAccrual) ||
		errors.Is(err, ErrRequestAlreadyConsumed)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEmployeeNotFound) ||
		errors.Is(err, ErrAccrualNotFound)
}
