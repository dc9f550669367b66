/*
handlers.go - HTTP API handlers for the vacation ledger

PURPOSE:
  Exposes the ledger via REST API. Handles HTTP request/response, JSON
  serialization and validation, and delegates to the vacation package.

ENDPOINTS:
  Employees:
    GET    /api/employees                      List all employees
    POST   /api/employees                      Create or update employee
    GET    /api/employees/{id}                 Get employee details
    GET    /api/employees/{id}/balance         Remaining days per period
    GET    /api/employees/{id}/cashout         Cashable days per period
    POST   /api/employees/{id}/recalculate     Refresh accrual rows
    POST   /api/employees/{id}/consume         Draw days (leave or cash-out)
    GET    /api/employees/{id}/adjustments     Adjustment audit trail
    POST   /api/employees/{id}/adjustments     Override a period's accrued total

  Requests:
    DELETE /api/requests/{kind}/{requestID}    Reverse a consumed request

  Admin:
    POST   /api/admin/recalculate              Recalculate every employee

  Reports:
    GET    /api/reports/monthly?year=&month=   Monthly reconstruction

  Policy:
    GET    /api/policy                         Active rates and ceilings

  Scenarios:
    GET    /api/scenarios                      List demo scenarios
    POST   /api/scenarios/load                 Load a demo scenario

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (insufficient balance, request already consumed)
  - 500: Internal errors

SECURITY NOTE:
  No authentication or authorization. The actor on adjustments is taken
  from the request body as-is.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/warp/vacation-ledger/factory"
	"github.com/warp/vacation-ledger/generic"
	"github.com/warp/vacation-ledger/vacation"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is the persistence the handlers need: the ledger store plus a way
// to wipe it for demo scenarios.
type Store interface {
	generic.TxStore
	Reset(ctx context.Context) error
}

// Enqueuer hands a recalculation sweep to the background worker.
type Enqueuer interface {
	EnqueueRecalculate(ctx context.Context, asOf time.Time) (string, error)
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    Store
	Ledger   *vacation.Ledger
	Reporter *vacation.Reporter
	Logger   *slog.Logger

	// Queue is optional. Without it admin recalculation runs inline.
	Queue Enqueuer

	validate *validator.Validate

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler over the given store and ledger components.
func NewHandler(store Store, ledger *vacation.Ledger, reporter *vacation.Reporter, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Store:    store,
		Ledger:   ledger,
		Reporter: reporter,
		Logger:   logger,
		validate: newValidator(),
	}
}

// =============================================================================
// EMPLOYEE ENDPOINTS
// =============================================================================

// ListEmployees returns all employees.
// GET /api/employees
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Store.ListEmployees(r.Context())
	if err != nil {
		h.writeDomainError(w, r, "Failed to list employees", err)
		return
	}

	dtos := make([]EmployeeDTO, 0, len(employees))
	for _, e := range employees {
		dtos = append(dtos, toEmployeeDTO(e))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetEmployee returns a single employee with their accrual rows.
// GET /api/employees/{id}
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := generic.EmployeeID(chi.URLParam(r, "id"))

	emp, err := h.Store.GetEmployee(ctx, id)
	if err != nil {
		h.writeDomainError(w, r, "Failed to get employee", err)
		return
	}
	records, err := h.Store.ListAccruals(ctx, id)
	if err != nil {
		h.writeDomainError(w, r, "Failed to list accruals", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"employee": toEmployeeDTO(*emp),
		"periods":  toPeriodDTOs(records),
	})
}

// SaveEmployee creates or updates an employee.
// POST /api/employees
func (h *Handler) SaveEmployee(w http.ResponseWriter, r *http.Request) {
	var req SaveEmployeeRequest
	if !h.decode(w, r, &req) {
		return
	}
	emp := req.toEmployee()
	if emp.TerminationDate != nil && emp.TerminationDate.Before(emp.HireDate) {
		writeError(w, http.StatusBadRequest, "Invalid employee", errors.New("termination_date is before hire_date"))
		return
	}

	if err := h.Store.SaveEmployee(r.Context(), emp); err != nil {
		h.writeDomainError(w, r, "Failed to save employee", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(emp))
}

// =============================================================================
// BALANCE ENDPOINTS
// =============================================================================

// GetBalance returns the remaining days per period and in total.
// GET /api/employees/{id}/balance
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	bal, err := h.Ledger.AvailableBalance(r.Context(), generic.EmployeeID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, r, "Failed to get balance", err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(bal))
}

// GetCashOut returns the days still cashable per period.
// GET /api/employees/{id}/cashout
func (h *Handler) GetCashOut(w http.ResponseWriter, r *http.Request) {
	bal, err := h.Ledger.AvailableCashOut(r.Context(), generic.EmployeeID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, r, "Failed to get cash-out balance", err)
		return
	}
	writeJSON(w, http.StatusOK, toCashOutDTO(bal))
}

// Recalculate refreshes the employee's accrual rows.
// POST /api/employees/{id}/recalculate
func (h *Handler) Recalculate(w http.ResponseWriter, r *http.Request) {
	var req RecalculateRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}

	records, err := h.Ledger.Recalculate(r.Context(), generic.EmployeeID(chi.URLParam(r, "id")), req.asOf())
	if err != nil {
		h.writeDomainError(w, r, "Failed to recalculate", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"periods": toPeriodDTOs(records)})
}

// =============================================================================
// CONSUMPTION ENDPOINTS
// =============================================================================

// Consume draws days for a leave or cash-out request, oldest period first.
// Unless allow_shortfall is set, a request larger than the available
// balance is refused with 409 and nothing is recorded.
// POST /api/employees/{id}/consume
func (h *Handler) Consume(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := generic.EmployeeID(chi.URLParam(r, "id"))

	var req ConsumeRequest
	if !h.decode(w, r, &req) {
		return
	}
	kind, err := generic.ParseOriginKind(req.Kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request kind", err)
		return
	}
	origin := generic.Origin{Kind: kind, RequestID: generic.RequestID(req.RequestID)}

	if !req.AllowShortfall {
		available, err := h.available(ctx, id, kind)
		if err != nil {
			h.writeDomainError(w, r, "Failed to check balance", err)
			return
		}
		if req.Days.GreaterThan(available) {
			insufficient := &generic.InsufficientBalanceError{
				EmployeeID: id,
				Origin:     origin,
				Available:  available,
				Requested:  req.Days,
				Shortfall:  req.Days.Sub(available),
			}
			writeJSON(w, http.StatusConflict, ErrorResponse{
				Error:   "Insufficient balance",
				Details: insufficient.Error(),
				Shortfall: &ShortfallDTO{
					Available: insufficient.Available,
					Requested: insufficient.Requested,
					Shortfall: insufficient.Shortfall,
				},
			})
			return
		}
	}

	res, err := h.Ledger.ConsumeFor(ctx, id, origin, req.Days)
	if err != nil {
		h.writeDomainError(w, r, "Failed to consume", err)
		return
	}
	writeJSON(w, http.StatusCreated, toConsumeDTO(res))
}

func (h *Handler) available(ctx context.Context, id generic.EmployeeID, kind generic.OriginKind) (decimal.Decimal, error) {
	if kind == generic.OriginCashOut {
		bal, err := h.Ledger.AvailableCashOut(ctx, id)
		if err != nil {
			return decimal.Zero, err
		}
		return bal.TotalAvailable, nil
	}
	bal, err := h.Ledger.AvailableBalance(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	return bal.TotalAvailable, nil
}

// ReverseRequest gives back every day a request consumed. Reversing a
// request that holds nothing succeeds with an empty result.
// DELETE /api/requests/{kind}/{requestID}
func (h *Handler) ReverseRequest(w http.ResponseWriter, r *http.Request) {
	kind, err := generic.ParseOriginKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request kind", err)
		return
	}
	origin := generic.Origin{Kind: kind, RequestID: generic.RequestID(chi.URLParam(r, "requestID"))}

	res, err := h.Ledger.Reverse(r.Context(), origin)
	if err != nil {
		h.writeDomainError(w, r, "Failed to reverse request", err)
		return
	}
	writeJSON(w, http.StatusOK, ReverseDTO{
		Origin:   res.Origin.String(),
		Restored: res.TotalRestored,
		Periods:  toAllocationDTOs(res.Restored),
	})
}

// =============================================================================
// ADJUSTMENT ENDPOINTS
// =============================================================================

// CreateAdjustment overrides a period's accrued total and records the audit entry.
// POST /api/employees/{id}/adjustments
func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	var req AdjustRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.Ledger.Adjust(r.Context(), vacation.AdjustInput{
		EmployeeID: generic.EmployeeID(chi.URLParam(r, "id")),
		Year:       req.Year,
		NewAccrued: req.NewAccrued,
		Type:       generic.AdjustmentType(req.Type),
		Reason:     req.Reason,
		Actor:      req.Actor,
	})
	if err != nil {
		h.writeDomainError(w, r, "Failed to adjust accrual", err)
		return
	}

	period := toPeriodDTOs([]generic.AccrualRecord{res.Record})[0]
	writeJSON(w, http.StatusCreated, AdjustDTO{
		Adjustment: toAdjustmentDTO(res.Adjustment),
		Period:     period,
		Created:    res.Created,
	})
}

// ListAdjustments returns the employee's adjustment trail, oldest first.
// GET /api/employees/{id}/adjustments
func (h *Handler) ListAdjustments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := generic.EmployeeID(chi.URLParam(r, "id"))

	if _, err := h.Store.GetEmployee(ctx, id); err != nil {
		h.writeDomainError(w, r, "Failed to get employee", err)
		return
	}
	adjs, err := h.Ledger.Adjustments(ctx, id)
	if err != nil {
		h.writeDomainError(w, r, "Failed to list adjustments", err)
		return
	}

	dtos := make([]AdjustmentDTO, 0, len(adjs))
	for _, a := range adjs {
		dtos = append(dtos, toAdjustmentDTO(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"adjustments": dtos})
}

// =============================================================================
// ADMIN ENDPOINTS
// =============================================================================

// RecalculateAll refreshes every employee. With a queue configured the sweep
// is handed to the worker and 202 is returned.
// POST /api/admin/recalculate
func (h *Handler) RecalculateAll(w http.ResponseWriter, r *http.Request) {
	var req RecalculateRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}

	if h.Queue != nil {
		taskID, err := h.Queue.EnqueueRecalculate(r.Context(), req.asOf())
		if err != nil {
			h.writeDomainError(w, r, "Failed to enqueue recalculation", err)
			return
		}
		writeJSON(w, http.StatusAccepted, QueuedDTO{TaskID: taskID, Status: "queued"})
		return
	}

	summary, err := h.Ledger.RecalculateAll(r.Context(), req.asOf())
	if err != nil {
		h.writeDomainError(w, r, "Failed to recalculate", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// =============================================================================
// REPORT ENDPOINTS
// =============================================================================

// MonthlyReport reconstructs every employee's position for one month,
// grouped by supervisor.
// GET /api/reports/monthly?year=2024&month=3
func (h *Handler) MonthlyReport(w http.ResponseWriter, r *http.Request) {
	q, err := parseMonthlyReportQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid query", err)
		return
	}
	if err := h.validate.Struct(q); err != nil {
		writeValidationError(w, err)
		return
	}

	reports, err := h.Reporter.GenerateMonthlyReport(r.Context(), q.Year, time.Month(q.Month))
	if err != nil {
		h.writeDomainError(w, r, "Failed to generate report", err)
		return
	}
	if reports == nil {
		reports = []vacation.SupervisorReport{}
	}
	writeJSON(w, http.StatusOK, MonthlyReportDTO{
		Month:       vacation.ReportMonthKey(q.Year, time.Month(q.Month)),
		Supervisors: reports,
	})
}

func parseMonthlyReportQuery(r *http.Request) (MonthlyReportQuery, error) {
	var q MonthlyReportQuery
	values := r.URL.Query()
	year, err := strconv.Atoi(values.Get("year"))
	if err != nil {
		return q, fmt.Errorf("year: %w", err)
	}
	month, err := strconv.Atoi(values.Get("month"))
	if err != nil {
		return q, fmt.Errorf("month: %w", err)
	}
	q.Year, q.Month = year, month
	return q, nil
}

// GetPolicy returns the active policy in the POLICY_FILE shape.
// GET /api/policy
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, factory.ToJSON("vacation", "Vacation", h.Ledger.Policy))
}

// Healthz reports liveness.
// GET /healthz
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads and validates a JSON body. It writes the 400 itself and
// reports false when the request is unusable.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeValidationError(w, err)
		return false
	}
	return true
}

// writeDomainError maps ledger errors onto HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := http.StatusInternalServerError
	switch {
	case generic.IsClientError(err):
		status = http.StatusBadRequest
	case generic.IsNotFound(err):
		status = http.StatusNotFound
	case generic.IsConflict(err):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		h.Logger.Error(message,
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
	}
	writeError(w, status, message, err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func writeValidationError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		msg := fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		fields[fe.Field()] = msg
	}
	writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:   "Validation failed",
		Details: err.Error(),
		Fields:  fields,
	})
}
