/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the ledger types from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

AMOUNTS:
  Day amounts are decimal.Decimal on both sides. Responses render them as
  JSON strings ("2.5"); requests accept a string or a number.

VALIDATION:
  Request types carry go-playground/validator tags. decimal.Decimal fields
  are validated through a custom type func that exposes them as float64, so
  "gte=0" reads as "not negative".

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/warp/vacation-ledger/generic"
	"github.com/warp/vacation-ledger/vacation"
)

// =============================================================================
// EMPLOYEES
// =============================================================================

// EmployeeDTO represents an employee in API responses.
type EmployeeDTO struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Email           string  `json:"email"`
	HireDate        string  `json:"hire_date"`
	TerminationDate *string `json:"termination_date,omitempty"`
	CostCenter      string  `json:"cost_center,omitempty"`
	SupervisorID    *string `json:"supervisor_id,omitempty"`
}

// SaveEmployeeRequest creates or updates an employee.
type SaveEmployeeRequest struct {
	ID              string `json:"id" validate:"required,max=64"`
	Name            string `json:"name" validate:"required"`
	Email           string `json:"email" validate:"omitempty,email"`
	HireDate        string `json:"hire_date" validate:"required,datetime=2006-01-02"`
	TerminationDate string `json:"termination_date" validate:"omitempty,datetime=2006-01-02"`
	CostCenter      string `json:"cost_center"`
	SupervisorID    string `json:"supervisor_id" validate:"omitempty,nefield=ID"`
}

func toEmployeeDTO(e generic.Employee) EmployeeDTO {
	dto := EmployeeDTO{
		ID:         string(e.ID),
		Name:       e.Name,
		Email:      e.Email,
		HireDate:   e.HireDate.Format(generic.DateLayout),
		CostCenter: e.CostCenter,
	}
	if e.TerminationDate != nil {
		s := e.TerminationDate.Format(generic.DateLayout)
		dto.TerminationDate = &s
	}
	if e.SupervisorID != nil {
		s := string(*e.SupervisorID)
		dto.SupervisorID = &s
	}
	return dto
}

// toEmployee assumes req passed validation.
func (req SaveEmployeeRequest) toEmployee() generic.Employee {
	emp := generic.Employee{
		ID:         generic.EmployeeID(req.ID),
		Name:       req.Name,
		Email:      req.Email,
		CostCenter: req.CostCenter,
	}
	emp.HireDate, _ = generic.ParseDate(req.HireDate)
	if req.TerminationDate != "" {
		t, _ := generic.ParseDate(req.TerminationDate)
		emp.TerminationDate = &t
	}
	if req.SupervisorID != "" {
		sup := generic.EmployeeID(req.SupervisorID)
		emp.SupervisorID = &sup
	}
	return emp
}

// =============================================================================
// BALANCES
// =============================================================================

// PeriodDTO is one accrual period row.
type PeriodDTO struct {
	Year          int             `json:"year"`
	Start         string          `json:"start"`
	End           string          `json:"end"`
	MonthsAccrued int             `json:"months_accrued,omitempty"`
	Accrued       decimal.Decimal `json:"accrued"`
	Consumed      decimal.Decimal `json:"consumed"`
	Remaining     decimal.Decimal `json:"remaining"`
}

// BalanceDTO is the response of GET /balance.
type BalanceDTO struct {
	EmployeeID     string          `json:"employee_id"`
	TotalAvailable decimal.Decimal `json:"total_available"`
	Periods        []PeriodDTO     `json:"periods"`
}

// CashOutPeriodDTO is one row of the cash-out breakdown.
type CashOutPeriodDTO struct {
	Year             int             `json:"year"`
	Remaining        decimal.Decimal `json:"remaining"`
	CashOutUsed      decimal.Decimal `json:"cash_out_used"`
	CashOutAvailable decimal.Decimal `json:"cash_out_available"`
}

// CashOutDTO is the response of GET /cashout.
type CashOutDTO struct {
	EmployeeID     string             `json:"employee_id"`
	TotalAvailable decimal.Decimal    `json:"total_available"`
	Periods        []CashOutPeriodDTO `json:"periods"`
}

func toBalanceDTO(b *vacation.Balance) BalanceDTO {
	dto := BalanceDTO{EmployeeID: string(b.EmployeeID), TotalAvailable: b.TotalAvailable, Periods: []PeriodDTO{}}
	for _, p := range b.ByPeriod {
		dto.Periods = append(dto.Periods, PeriodDTO{
			Year:      p.Year,
			Start:     p.Start.Format(generic.DateLayout),
			End:       p.End.Format(generic.DateLayout),
			Accrued:   p.Accrued,
			Consumed:  p.Consumed,
			Remaining: p.Remaining,
		})
	}
	return dto
}

func toCashOutDTO(b *vacation.CashOutBalance) CashOutDTO {
	dto := CashOutDTO{EmployeeID: string(b.EmployeeID), TotalAvailable: b.TotalAvailable, Periods: []CashOutPeriodDTO{}}
	for _, p := range b.ByPeriod {
		dto.Periods = append(dto.Periods, CashOutPeriodDTO(p))
	}
	return dto
}

func toPeriodDTOs(records []generic.AccrualRecord) []PeriodDTO {
	dtos := make([]PeriodDTO, 0, len(records))
	for _, r := range records {
		dtos = append(dtos, PeriodDTO{
			Year:          r.Year,
			Start:         r.StartDate.Format(generic.DateLayout),
			End:           r.EndDate.Format(generic.DateLayout),
			MonthsAccrued: r.MonthsAccrued,
			Accrued:       r.TotalAccrued,
			Consumed:      r.TotalConsumed,
			Remaining:     r.Remaining,
		})
	}
	return dtos
}

// =============================================================================
// CONSUMPTION
// =============================================================================

// ConsumeRequest draws days for a leave or cash-out request.
type ConsumeRequest struct {
	Kind      string          `json:"kind" validate:"required,oneof=leave cashout LEAVE CASHOUT"`
	RequestID string          `json:"request_id" validate:"required,max=128"`
	Days      decimal.Decimal `json:"days" validate:"gte=0,days"`
	// AllowShortfall consumes what is available instead of answering 409.
	AllowShortfall bool `json:"allow_shortfall"`
}

// AllocationDTO is one period's share of a request.
type AllocationDTO struct {
	Year int             `json:"year"`
	Days decimal.Decimal `json:"days"`
}

// ConsumeDTO is the response of POST /consume.
type ConsumeDTO struct {
	EmployeeID  string          `json:"employee_id"`
	Origin      string          `json:"origin"`
	Requested   decimal.Decimal `json:"requested"`
	Consumed    decimal.Decimal `json:"consumed"`
	Shortfall   decimal.Decimal `json:"shortfall"`
	Allocations []AllocationDTO `json:"allocations"`
}

// ReverseDTO is the response of DELETE /requests/{kind}/{id}.
type ReverseDTO struct {
	Origin   string          `json:"origin"`
	Restored decimal.Decimal `json:"restored"`
	Periods  []AllocationDTO `json:"periods"`
}

func toAllocationDTOs(allocs []generic.Allocation) []AllocationDTO {
	dtos := make([]AllocationDTO, 0, len(allocs))
	for _, a := range allocs {
		dtos = append(dtos, AllocationDTO{Year: a.Year, Days: a.Amount})
	}
	return dtos
}

func toConsumeDTO(r *vacation.ConsumeResult) ConsumeDTO {
	return ConsumeDTO{
		EmployeeID:  string(r.EmployeeID),
		Origin:      r.Origin.String(),
		Requested:   r.Requested,
		Consumed:    r.TotalConsumed,
		Shortfall:   r.Shortfall,
		Allocations: toAllocationDTOs(r.Allocations),
	}
}

// =============================================================================
// ADJUSTMENTS
// =============================================================================

// AdjustRequest overrides one period's accrued total.
type AdjustRequest struct {
	Year       int             `json:"year" validate:"required,gte=1900,lte=9999"`
	NewAccrued decimal.Decimal `json:"new_accrued" validate:"gte=0,days"`
	Type       string          `json:"type" validate:"required,oneof=initial_load manual correction"`
	Reason     string          `json:"reason" validate:"required,min=3"`
	Actor      string          `json:"actor" validate:"required"`
}

// AdjustmentDTO is one audit trail entry.
type AdjustmentDTO struct {
	ID            string          `json:"id"`
	EmployeeID    string          `json:"employee_id"`
	Year          int             `json:"year"`
	Type          string          `json:"type"`
	PreviousValue decimal.Decimal `json:"previous_value"`
	NewValue      decimal.Decimal `json:"new_value"`
	Delta         decimal.Decimal `json:"delta"`
	Spillover     decimal.Decimal `json:"spillover"`
	Reason        string          `json:"reason"`
	Actor         string          `json:"actor"`
	CreatedAt     string          `json:"created_at"`
}

// AdjustDTO is the response of POST /adjustments.
type AdjustDTO struct {
	Adjustment AdjustmentDTO `json:"adjustment"`
	Period     PeriodDTO     `json:"period"`
	Created    bool          `json:"created"`
}

func toAdjustmentDTO(a generic.Adjustment) AdjustmentDTO {
	return AdjustmentDTO{
		ID:            string(a.ID),
		EmployeeID:    string(a.EmployeeID),
		Year:          a.AccrualYear,
		Type:          string(a.Type),
		PreviousValue: a.PreviousValue,
		NewValue:      a.NewValue,
		Delta:         a.Delta,
		Spillover:     a.Spillover,
		Reason:        a.Reason,
		Actor:         a.Actor,
		CreatedAt:     a.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// RECALCULATION AND REPORTS
// =============================================================================

// RecalculateRequest optionally pins the as-of date.
type RecalculateRequest struct {
	AsOf string `json:"as_of" validate:"omitempty,datetime=2006-01-02"`
}

// asOf assumes req passed validation. Zero means today.
func (req RecalculateRequest) asOf() time.Time {
	if req.AsOf == "" {
		return time.Time{}
	}
	t, _ := generic.ParseDate(req.AsOf)
	return t
}

// QueuedDTO is returned when work was handed to the background worker.
type QueuedDTO struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// MonthlyReportQuery is the parsed query string of GET /reports/monthly.
type MonthlyReportQuery struct {
	Year  int `json:"year" validate:"gte=1900,lte=9999"`
	Month int `json:"month" validate:"gte=1,lte=12"`
}

// MonthlyReportDTO wraps the supervisor groups with the month asked for.
type MonthlyReportDTO struct {
	Month       string                      `json:"month"`
	Supervisors []vacation.SupervisorReport `json:"supervisors"`
}

// =============================================================================
// SCENARIOS AND ERRORS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest picks a scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	// Fields holds per-field validation messages.
	Fields map[string]string `json:"fields,omitempty"`
	// Shortfall is set on 409 for insufficient balance.
	Shortfall *ShortfallDTO `json:"shortfall,omitempty"`
}

// ShortfallDTO details an insufficient balance conflict.
type ShortfallDTO struct {
	Available decimal.Decimal `json:"available"`
	Requested decimal.Decimal `json:"requested"`
	Shortfall decimal.Decimal `json:"shortfall"`
}

// newValidator returns a validator that understands decimal.Decimal and
// reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	// days: at most generic.DayScale decimal places.
	_ = v.RegisterValidation("days", func(fl validator.FieldLevel) bool {
		field := fl.Field()
		switch field.Kind() {
		case reflect.Float32, reflect.Float64:
			return generic.ValidScale(decimal.NewFromFloat(field.Float()))
		}
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return generic.ValidScale(d)
		}
		return false
	})
	return v
}
