/*
allocation.go - FIFO distribution of a request across accrual periods

PURPOSE:
  An employee can hold entitlement in several accrual years at once. When a
  request consumes N days, the oldest year is drained first, then the next,
  until the request is covered or every year is empty.

  This file is pure: it decides the split, it does not touch the store.
  The vacation package applies the split to AccrualRecord rows.

KEY CONCEPTS:
  Bucket:
    One accrual year with a ceiling: how much this request may take from it.
    For leave the ceiling is the row's Remaining. For cash-out it is the
    per-period cash-out headroom.

  Distribution:
    The ordered allocations plus the shortfall (days that could not be
    placed). Shortfall is a result, not an error; callers decide whether
    to reject.

ORDERING:
  Buckets are sorted by Year ascending before the walk, so callers may pass
  them in any order. Zero or negative ceilings are skipped.

EXAMPLE:
  buckets := []Bucket{{Year: 2022, Ceiling: d(5)}, {Year: 2023, Ceiling: d(10)}, {Year: 2024, Ceiling: d(20)}}
  dist := Distribute(buckets, d(12))
  // dist.Allocations = [{2022, 5}, {2023, 7}], dist.Shortfall = 0

SEE ALSO:
  - vacation/engine.go: Leave consumption
  - vacation/cashout.go: Cash-out consumption
*/
package generic

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// BUCKETS AND ALLOCATIONS
// =============================================================================

// Bucket is one accrual year offered to the allocator.
type Bucket struct {
	Year    int
	Ceiling decimal.Decimal
}

// Allocation is the amount taken from one accrual year.
type Allocation struct {
	Year   int
	Amount decimal.Decimal
}

// Distribution describes how a request is split across accrual years.
type Distribution struct {
	Requested   decimal.Decimal
	Allocations []Allocation
	Allocated   decimal.Decimal
	Shortfall   decimal.Decimal
}

// IsSatisfiable reports whether the whole request was placed.
func (d Distribution) IsSatisfiable() bool { return d.Shortfall.IsZero() }

// =============================================================================
// DISTRIBUTE - Oldest year first
// =============================================================================

// Distribute splits requested across buckets, oldest year first.
// Sum(Allocations) + Shortfall == requested for any non-negative request.
func Distribute(buckets []Bucket, requested decimal.Decimal) Distribution {
	ordered := make([]Bucket, len(buckets))
	copy(ordered, buckets)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Year < ordered[j].Year })

	dist := Distribution{Requested: requested, Allocated: decimal.Zero}
	left := FloorZero(requested)

	for _, b := range ordered {
		if !left.IsPositive() {
			break
		}
		if !b.Ceiling.IsPositive() {
			continue
		}

		take := MinDays(left, b.Ceiling)
		dist.Allocations = append(dist.Allocations, Allocation{Year: b.Year, Amount: take})
		dist.Allocated = dist.Allocated.Add(take)
		left = left.Sub(take)
	}

	dist.Shortfall = left
	return dist
}

// SumAllocations totals the allocated amounts.
func SumAllocations(allocs []Allocation) decimal.Decimal {
	total := decimal.Zero
	for _, a := range allocs {
		total = total.Add(a.Amount)
	}
	return total
}
