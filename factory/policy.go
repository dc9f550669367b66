/*
Package factory provides JSON to Go policy conversion.

PURPOSE:
  Converts JSON policy definitions into vacation.Policy values. HR can tune
  the monthly rate and the ceilings in a file (POLICY_FILE) instead of
  environment variables, and GET /api/policy echoes the active policy back
  in the same shape.

JSON SCHEMA:
  {
    "id": "vacation-standard",
    "name": "Standard vacation",
    "unit": "days",
    "accrual": {
      "monthly_rate": 2.5,
      "yearly_cap": 30
    },
    "cash_out": {
      "cap_per_period": 15
    }
  }

DEFAULTS:
  Missing sections fall back to vacation.DefaultPolicy. Only "days" is an
  accepted unit; amounts are decimal days everywhere in the ledger.

USAGE:
  policy, err := factory.LoadPolicyFile("./policy.json")
  ledger := vacation.NewLedger(store, policy, logger)

SEE ALSO:
  - vacation/policy.go: Policy type definition
  - config/config.go: MONTHLY_RATE, YEARLY_CAP, CASHOUT_CAP fallbacks
*/
package factory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/warp/vacation-ledger/vacation"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// PolicyJSON is the JSON representation of a vacation policy.
type PolicyJSON struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	Unit    string       `json:"unit,omitempty"`
	Accrual *AccrualJSON `json:"accrual,omitempty"`
	CashOut *CashOutJSON `json:"cash_out,omitempty"`
}

// AccrualJSON represents accrual configuration.
type AccrualJSON struct {
	MonthlyRate *decimal.Decimal `json:"monthly_rate,omitempty"`
	YearlyCap   *decimal.Decimal `json:"yearly_cap,omitempty"`
}

// CashOutJSON represents the per-period cash-out ceiling.
type CashOutJSON struct {
	CapPerPeriod *decimal.Decimal `json:"cap_per_period,omitempty"`
}

// =============================================================================
// PARSING
// =============================================================================

// ParsePolicy parses a JSON document into a validated Policy.
// Unknown fields are rejected so a typo does not silently keep a default.
func ParsePolicy(data []byte) (vacation.Policy, error) {
	var pj PolicyJSON
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&pj); err != nil {
		return vacation.Policy{}, fmt.Errorf("failed to parse policy JSON: %w", err)
	}
	return FromJSON(pj)
}

// LoadPolicyFile reads and parses a policy file.
func LoadPolicyFile(path string) (vacation.Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return vacation.Policy{}, fmt.Errorf("read policy file: %w", err)
	}
	policy, err := ParsePolicy(data)
	if err != nil {
		return vacation.Policy{}, fmt.Errorf("%s: %w", path, err)
	}
	return policy, nil
}

// FromJSON converts PolicyJSON to vacation.Policy.
func FromJSON(pj PolicyJSON) (vacation.Policy, error) {
	if pj.Unit != "" && pj.Unit != "days" {
		return vacation.Policy{}, fmt.Errorf("unsupported unit %q: only days are tracked", pj.Unit)
	}

	policy := vacation.DefaultPolicy()
	if pj.Accrual != nil {
		if pj.Accrual.MonthlyRate != nil {
			policy.MonthlyRate = *pj.Accrual.MonthlyRate
		}
		if pj.Accrual.YearlyCap != nil {
			policy.YearlyCap = *pj.Accrual.YearlyCap
		}
	}
	if pj.CashOut != nil && pj.CashOut.CapPerPeriod != nil {
		policy.CashOutCap = *pj.CashOut.CapPerPeriod
	}

	if err := policy.Validate(); err != nil {
		return vacation.Policy{}, err
	}
	return policy, nil
}

// ToJSON converts a Policy to PolicyJSON.
func ToJSON(id, name string, policy vacation.Policy) PolicyJSON {
	rate, yearly, cashOut := policy.MonthlyRate, policy.YearlyCap, policy.CashOutCap
	return PolicyJSON{
		ID:   id,
		Name: name,
		Unit: "days",
		Accrual: &AccrualJSON{
			MonthlyRate: &rate,
			YearlyCap:   &yearly,
		},
		CashOut: &CashOutJSON{CapPerPeriod: &cashOut},
	}
}
