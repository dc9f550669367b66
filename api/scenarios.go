/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates employees with their
	supervisors, recalculates accruals, and records consumption or
	adjustments that demonstrate specific ledger behavior.

AVAILABLE SCENARIOS:

	small-team:  Supervisor with reports hired across several years,
	             one terminated report and some leave taken
	cash-out:    Cash-out requests running into the per-period cap
	spillover:   Downward correction below days already consumed

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create employees (supervisors first)
 3. Recalculate accruals as of today
 4. Optionally consume, cash out, or adjust

Dates are relative to the ledger clock, so a scenario loaded on any day
shows the same shape.

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "small-team"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx, today)
 3. Add it to 'scenarioLoaders'

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Ledger endpoints used to explore a loaded scenario
*/
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/warp/vacation-ledger/generic"
	"github.com/warp/vacation-ledger/vacation"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "small-team",
		Name:        "Small Team",
		Description: "Supervisor with three reports hired across several years, one terminated, some leave taken",
	},
	{
		ID:          "cash-out",
		Name:        "Cash-Out Cap",
		Description: "Cash-out requests drawing the oldest period up to its 15-day cap",
	},
	{
		ID:          "spillover",
		Name:        "Correction Spillover",
		Description: "Accrued total corrected below days already taken; the excess is discarded",
	},
}

type scenarioLoader func(h *Handler, ctx context.Context, today time.Time) error

var scenarioLoaders = map[string]scenarioLoader{
	"small-team": (*Handler).loadSmallTeamScenario,
	"cash-out":   (*Handler).loadCashOutScenario,
	"spillover":  (*Handler).loadSpilloverScenario,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario wipes the store and loads a predefined scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}
	load, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	ctx := r.Context()
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.reset(ctx); err != nil {
		h.writeDomainError(w, r, "Failed to reset database", err)
		return
	}
	if err := load(h, ctx, h.today()); err != nil {
		h.writeDomainError(w, r, "Failed to load scenario", err)
		return
	}
	h.currentScenario = req.ScenarioID

	h.Logger.Info("scenario loaded", slog.String("scenario", req.ScenarioID))
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase drops every row.
// POST /api/scenarios/reset
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.reset(r.Context()); err != nil {
		h.writeDomainError(w, r, "Failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// reset requires h.mu.
func (h *Handler) reset(ctx context.Context) error {
	if err := h.Store.Reset(ctx); err != nil {
		return err
	}
	h.currentScenario = ""
	if inv := h.Ledger.Invalidator; inv != nil {
		if err := inv.Bump(ctx); err != nil {
			h.Logger.Warn("cache invalidation failed", slog.Any("error", err))
		}
	}
	return nil
}

func (h *Handler) today() time.Time {
	if h.Ledger.Now != nil {
		return generic.Truncate(h.Ledger.Now())
	}
	return generic.Today()
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadSmallTeamScenario(ctx context.Context, today time.Time) error {
	lead := generic.EmployeeID("sup-001")
	left := today.AddDate(0, -1, 0)

	employees := []generic.Employee{
		{ID: lead, Name: "Dana Reyes", Email: "dana.reyes@example.com", CostCenter: "CC-100", HireDate: today.AddDate(-8, -3, 0)},
		{ID: "emp-001", Name: "Ana Lopez", Email: "ana.lopez@example.com", CostCenter: "CC-110", HireDate: today.AddDate(-3, -2, 0), SupervisorID: &lead},
		{ID: "emp-002", Name: "Ben Ortiz", Email: "ben.ortiz@example.com", CostCenter: "CC-110", HireDate: today.AddDate(0, -7, 0), SupervisorID: &lead},
		{ID: "emp-003", Name: "Chloe Martin", Email: "chloe.martin@example.com", CostCenter: "CC-120", HireDate: today.AddDate(-2, 0, 0), TerminationDate: &left, SupervisorID: &lead},
		{ID: "emp-004", Name: "Eli Park", Email: "eli.park@example.com", CostCenter: "CC-900", HireDate: today.AddDate(-1, -1, 0)},
	}
	if err := h.seed(ctx, today, employees); err != nil {
		return err
	}
	// Chloe left before today; accrue up to her last day.
	if _, err := h.Ledger.Recalculate(ctx, "emp-003", today); err != nil {
		return err
	}

	if _, err := h.Ledger.Consume(ctx, "emp-001", "ana-summer", generic.Days(12)); err != nil {
		return err
	}
	if _, err := h.Ledger.Consume(ctx, "emp-001", "ana-winter", generic.Days(3.5)); err != nil {
		return err
	}
	if _, err := h.Ledger.Consume(ctx, "emp-002", "ben-long-weekend", generic.Days(2)); err != nil {
		return err
	}
	_, err := h.Ledger.Consume(ctx, "emp-003", "chloe-notice", generic.Days(5))
	return err
}

func (h *Handler) loadCashOutScenario(ctx context.Context, today time.Time) error {
	employees := []generic.Employee{
		{ID: "emp-101", Name: "Farah Haddad", Email: "farah.haddad@example.com", CostCenter: "CC-200", HireDate: today.AddDate(-2, -4, 0)},
	}
	if err := h.seed(ctx, today, employees); err != nil {
		return err
	}

	if _, err := h.Ledger.CashOut(ctx, "emp-101", "payout-q1", generic.Days(10)); err != nil {
		return err
	}
	if _, err := h.Ledger.CashOut(ctx, "emp-101", "payout-q2", generic.Days(8)); err != nil {
		return err
	}
	// Leave is not bound by the cash-out cap.
	_, err := h.Ledger.Consume(ctx, "emp-101", "farah-trip", generic.Days(6))
	return err
}

func (h *Handler) loadSpilloverScenario(ctx context.Context, today time.Time) error {
	hire := today.AddDate(-1, -6, 0)
	employees := []generic.Employee{
		{ID: "emp-201", Name: "Gus Novak", Email: "gus.novak@example.com", CostCenter: "CC-300", HireDate: hire},
	}
	if err := h.seed(ctx, today, employees); err != nil {
		return err
	}

	if _, err := h.Ledger.Consume(ctx, "emp-201", "gus-sabbatical", generic.Days(20)); err != nil {
		return err
	}
	_, err := h.Ledger.Adjust(ctx, vacation.AdjustInput{
		EmployeeID: "emp-201",
		Year:       hire.Year(),
		NewAccrued: generic.Days(15),
		Type:       generic.AdjustmentCorrection,
		Reason:     "Opening balance was overstated in the import",
		Actor:      "hr@example.com",
	})
	return err
}

// seed saves the employees in order and recalculates everyone as of today.
func (h *Handler) seed(ctx context.Context, today time.Time, employees []generic.Employee) error {
	for _, emp := range employees {
		if err := h.Store.SaveEmployee(ctx, emp); err != nil {
			return fmt.Errorf("save %s: %w", emp.ID, err)
		}
	}
	_, err := h.Ledger.RecalculateAll(ctx, today)
	return err
}
