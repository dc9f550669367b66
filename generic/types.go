/*
Package generic provides the core primitives of the vacation ledger engine.

PURPOSE:
  This package contains the types and algorithms that every ledger component
  shares: day amounts, identifiers, the persisted entities (accrual records,
  consumptions, adjustments, employees), the store contract, and the FIFO
  allocator. It knows nothing about monthly rates or cash-out ceilings; those
  live in the vacation package.

KEY CONCEPTS IN THIS FILE (types.go):
  - Days: decimal day quantities (2.5 days/month never drifts)
  - Origin: tagged reference to the request that consumed days
  - AdjustmentType: closed set of adjustment categories
  - Identifiers: type-safe employee/request/record IDs

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal to avoid floating-point errors
  2. Type Safety: Strong typing for IDs prevents mixing employee/request IDs
  3. Closed enums: OriginKind and AdjustmentType are validated on the way in
  4. Auditability: Adjustments are append-only records

USAGE:
  rate := generic.Days(2.5)
  origin := generic.Origin{Kind: generic.OriginLeave, RequestID: "req-17"}

SEE ALSO:
  - ledger.go: AccrualRecord (the per-employee-per-year ledger entry)
  - allocation.go: FIFO allocator
  - store.go: Persistence interfaces
*/
package generic

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DAYS - Decimal quantity of vacation days
// =============================================================================

// Days converts a float literal into a decimal day amount.
func Days(value float64) decimal.Decimal {
	return decimal.NewFromFloat(value)
}

// DaysFromInt converts a whole number of days.
func DaysFromInt(value int) decimal.Decimal {
	return decimal.NewFromInt(int64(value))
}

// MustParseDays parses a decimal string, returning zero on malformed input.
func MustParseDays(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func MinDays(a, b decimal.Decimal) decimal.Decimal { return decimal.Min(a, b) }
func MaxDays(a, b decimal.Decimal) decimal.Decimal { return decimal.Max(a, b) }

// DayScale is the number of decimal places a stored day amount carries.
const DayScale = 2

// ValidScale reports whether d fits in DayScale decimal places.
func ValidScale(d decimal.Decimal) bool { return d.Equal(d.Truncate(DayScale)) }

// FloorZero clamps negative amounts to zero.
func FloorZero(d decimal.Decimal) decimal.Decimal { return MaxDays(d, decimal.Zero) }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID string
type RequestID string
type ConsumptionID string
type AdjustmentID string

// =============================================================================
// ORIGIN - Which request consumed the days
// =============================================================================

// OriginKind discriminates the request channel that consumed days.
type OriginKind string

const (
	OriginLeave   OriginKind = "LEAVE"
	OriginCashOut OriginKind = "CASHOUT"
)

// Valid reports whether k is one of the known kinds.
func (k OriginKind) Valid() bool {
	switch k {
	case OriginLeave, OriginCashOut:
		return true
	}
	return false
}

// ParseOriginKind accepts the canonical names and their lowercase forms.
func ParseOriginKind(s string) (OriginKind, error) {
	switch s {
	case "LEAVE", "leave":
		return OriginLeave, nil
	case "CASHOUT", "cashout", "cash_out":
		return OriginCashOut, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidOrigin, s)
}

// Origin identifies exactly one originating request. A leave request and a
// cash-out request may share the same RequestID; the Kind keeps them apart.
type Origin struct {
	Kind      OriginKind
	RequestID RequestID
}

func (o Origin) String() string { return string(o.Kind) + ":" + string(o.RequestID) }

// Validate rejects unknown kinds and empty request ids.
func (o Origin) Validate() error {
	if !o.Kind.Valid() || o.RequestID == "" {
		return fmt.Errorf("%w: %s", ErrInvalidOrigin, o)
	}
	return nil
}

func LeaveOrigin(id RequestID) Origin   { return Origin{Kind: OriginLeave, RequestID: id} }
func CashOutOrigin(id RequestID) Origin { return Origin{Kind: OriginCashOut, RequestID: id} }

// =============================================================================
// ADJUSTMENT TYPE
// =============================================================================

type AdjustmentType string

const (
	AdjustmentInitialLoad AdjustmentType = "initial_load" // Opening balance imported from a previous system
	AdjustmentManual      AdjustmentType = "manual"       // Admin override
	AdjustmentCorrection  AdjustmentType = "correction"   // Fix for a prior mistake
)

func (t AdjustmentType) Valid() bool {
	switch t {
	case AdjustmentInitialLoad, AdjustmentManual, AdjustmentCorrection:
		return true
	}
	return false
}

func ParseAdjustmentType(s string) (AdjustmentType, error) {
	t := AdjustmentType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidAdjustmentType, s)
	}
	return t, nil
}
