// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/vacation-ledger/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	employees    map[generic.EmployeeID]generic.Employee
	accruals     map[accrualKey]generic.AccrualRecord
	consumptions []generic.Consumption
	adjustments  []generic.Adjustment
}

type accrualKey struct {
	EmployeeID generic.EmployeeID
	Year       int
}

func NewMemory() *Memory {
	return &Memory{
		employees: make(map[generic.EmployeeID]generic.Employee),
		accruals:  make(map[accrualKey]generic.AccrualRecord),
	}
}

// Reset drops every row.
func (m *Memory) Reset(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.employees = make(map[generic.EmployeeID]generic.Employee)
	m.accruals = make(map[accrualKey]generic.AccrualRecord)
	m.consumptions = nil
	m.adjustments = nil
	return nil
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func (m *Memory) SaveEmployee(_ context.Context, emp generic.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveEmployeeLocked(emp)
	return nil
}

func (m *Memory) saveEmployeeLocked(emp generic.Employee) {
	m.employees[emp.ID] = emp
}

func (m *Memory) GetEmployee(_ context.Context, id generic.EmployeeID) (*generic.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getEmployeeLocked(id)
}

func (m *Memory) getEmployeeLocked(id generic.EmployeeID) (*generic.Employee, error) {
	emp, ok := m.employees[id]
	if !ok {
		return nil, generic.ErrEmployeeNotFound
	}
	return &emp, nil
}

func (m *Memory) ListEmployees(_ context.Context) ([]generic.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listEmployeesLocked(), nil
}

func (m *Memory) listEmployeesLocked() []generic.Employee {
	result := make([]generic.Employee, 0, len(m.employees))
	for _, emp := range m.employees {
		result = append(result, emp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// LockEmployee is a no-op: WithTx already holds the store-wide write lock.
func (m *Memory) LockEmployee(_ context.Context, _ generic.EmployeeID) error { return nil }

// =============================================================================
// ACCRUAL RECORDS
// =============================================================================

func (m *Memory) GetAccrual(_ context.Context, id generic.EmployeeID, year int) (*generic.AccrualRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getAccrualLocked(id, year)
}

func (m *Memory) getAccrualLocked(id generic.EmployeeID, year int) (*generic.AccrualRecord, error) {
	rec, ok := m.accruals[accrualKey{EmployeeID: id, Year: year}]
	if !ok {
		return nil, generic.ErrAccrualNotFound
	}
	return &rec, nil
}

func (m *Memory) ListAccruals(_ context.Context, id generic.EmployeeID) ([]generic.AccrualRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listAccrualsLocked(id), nil
}

func (m *Memory) listAccrualsLocked(id generic.EmployeeID) []generic.AccrualRecord {
	var result []generic.AccrualRecord
	for k, rec := range m.accruals {
		if k.EmployeeID == id {
			result = append(result, rec)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Year < result[j].Year })
	return result
}

func (m *Memory) SaveAccrual(_ context.Context, rec generic.AccrualRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveAccrualLocked(rec)
}

func (m *Memory) saveAccrualLocked(rec generic.AccrualRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	m.accruals[accrualKey{EmployeeID: rec.EmployeeID, Year: rec.Year}] = rec
	return nil
}

// =============================================================================
// CONSUMPTIONS
// =============================================================================

func (m *Memory) AddConsumption(_ context.Context, c generic.Consumption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addConsumptionLocked(c)
}

func (m *Memory) addConsumptionLocked(c generic.Consumption) error {
	if !c.Days.IsPositive() {
		return generic.ErrInvalidAmount
	}
	if err := c.Origin.Validate(); err != nil {
		return err
	}

	// Keep the slice ordered by ConsumedAt; equal timestamps keep insertion order.
	i := sort.Search(len(m.consumptions), func(i int) bool {
		return m.consumptions[i].ConsumedAt.After(c.ConsumedAt)
	})
	m.consumptions = append(m.consumptions, generic.Consumption{})
	copy(m.consumptions[i+1:], m.consumptions[i:])
	m.consumptions[i] = c
	return nil
}

func (m *Memory) ConsumptionsByOrigin(_ context.Context, origin generic.Origin) ([]generic.Consumption, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterConsumptionsLocked(func(c generic.Consumption) bool { return c.Origin == origin }), nil
}

func (m *Memory) ConsumptionsByEmployee(_ context.Context, id generic.EmployeeID) ([]generic.Consumption, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterConsumptionsLocked(func(c generic.Consumption) bool { return c.EmployeeID == id }), nil
}

func (m *Memory) ConsumptionsInRange(_ context.Context, id generic.EmployeeID, from, to time.Time) ([]generic.Consumption, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filterConsumptionsLocked(inRange(id, from, to)), nil
}

func inRange(id generic.EmployeeID, from, to time.Time) func(generic.Consumption) bool {
	return func(c generic.Consumption) bool {
		return c.EmployeeID == id && generic.AfterOrEqual(c.ConsumedAt, from) && generic.BeforeOrEqual(c.ConsumedAt, to)
	}
}

func (m *Memory) filterConsumptionsLocked(keep func(generic.Consumption) bool) []generic.Consumption {
	var result []generic.Consumption
	for _, c := range m.consumptions {
		if keep(c) {
			result = append(result, c)
		}
	}
	return result
}

func (m *Memory) DeleteConsumption(_ context.Context, id generic.ConsumptionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteConsumptionLocked(id)
	return nil
}

func (m *Memory) deleteConsumptionLocked(id generic.ConsumptionID) {
	kept := m.consumptions[:0]
	for _, c := range m.consumptions {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	m.consumptions = kept
}

// =============================================================================
// ADJUSTMENTS
// =============================================================================

func (m *Memory) AddAdjustment(_ context.Context, adj generic.Adjustment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addAdjustmentLocked(adj)
	return nil
}

func (m *Memory) addAdjustmentLocked(adj generic.Adjustment) {
	i := sort.Search(len(m.adjustments), func(i int) bool {
		return m.adjustments[i].CreatedAt.After(adj.CreatedAt)
	})
	m.adjustments = append(m.adjustments, generic.Adjustment{})
	copy(m.adjustments[i+1:], m.adjustments[i:])
	m.adjustments[i] = adj
}

func (m *Memory) AdjustmentsByEmployee(_ context.Context, id generic.EmployeeID) ([]generic.Adjustment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.adjustmentsByEmployeeLocked(id), nil
}

func (m *Memory) adjustmentsByEmployeeLocked(id generic.EmployeeID) []generic.Adjustment {
	var result []generic.Adjustment
	for _, adj := range m.adjustments {
		if adj.EmployeeID == id {
			result = append(result, adj)
		}
	}
	return result
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// Transactions are fully serialized.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(generic.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()
	view := &txMemoryView{parent: tm.Memory}

	if err := fn(view); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	employees    map[generic.EmployeeID]generic.Employee
	accruals     map[accrualKey]generic.AccrualRecord
	consumptions []generic.Consumption
	adjustments  []generic.Adjustment
}

func (tm *TxMemory) snapshot() memorySnapshot {
	emps := make(map[generic.EmployeeID]generic.Employee, len(tm.employees))
	for k, v := range tm.employees {
		emps[k] = v
	}
	accs := make(map[accrualKey]generic.AccrualRecord, len(tm.accruals))
	for k, v := range tm.accruals {
		accs[k] = v
	}
	return memorySnapshot{
		employees:    emps,
		accruals:     accs,
		consumptions: append([]generic.Consumption{}, tm.consumptions...),
		adjustments:  append([]generic.Adjustment{}, tm.adjustments...),
	}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.employees = s.employees
	tm.accruals = s.accruals
	tm.consumptions = s.consumptions
	tm.adjustments = s.adjustments
}

// txMemoryView runs under the parent's write lock and calls the *Locked helpers.
type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) SaveEmployee(_ context.Context, emp generic.Employee) error {
	tv.parent.saveEmployeeLocked(emp)
	return nil
}

func (tv *txMemoryView) GetEmployee(_ context.Context, id generic.EmployeeID) (*generic.Employee, error) {
	return tv.parent.getEmployeeLocked(id)
}

func (tv *txMemoryView) ListEmployees(_ context.Context) ([]generic.Employee, error) {
	return tv.parent.listEmployeesLocked(), nil
}

func (tv *txMemoryView) LockEmployee(_ context.Context, _ generic.EmployeeID) error { return nil }

func (tv *txMemoryView) GetAccrual(_ context.Context, id generic.EmployeeID, year int) (*generic.AccrualRecord, error) {
	return tv.parent.getAccrualLocked(id, year)
}

func (tv *txMemoryView) ListAccruals(_ context.Context, id generic.EmployeeID) ([]generic.AccrualRecord, error) {
	return tv.parent.listAccrualsLocked(id), nil
}

func (tv *txMemoryView) SaveAccrual(_ context.Context, rec generic.AccrualRecord) error {
	return tv.parent.saveAccrualLocked(rec)
}

func (tv *txMemoryView) AddConsumption(_ context.Context, c generic.Consumption) error {
	return tv.parent.addConsumptionLocked(c)
}

func (tv *txMemoryView) ConsumptionsByOrigin(_ context.Context, origin generic.Origin) ([]generic.Consumption, error) {
	return tv.parent.filterConsumptionsLocked(func(c generic.Consumption) bool { return c.Origin == origin }), nil
}

func (tv *txMemoryView) ConsumptionsByEmployee(_ context.Context, id generic.EmployeeID) ([]generic.Consumption, error) {
	return tv.parent.filterConsumptionsLocked(func(c generic.Consumption) bool { return c.EmployeeID == id }), nil
}

func (tv *txMemoryView) ConsumptionsInRange(_ context.Context, id generic.EmployeeID, from, to time.Time) ([]generic.Consumption, error) {
	return tv.parent.filterConsumptionsLocked(inRange(id, from, to)), nil
}

func (tv *txMemoryView) DeleteConsumption(_ context.Context, id generic.ConsumptionID) error {
	tv.parent.deleteConsumptionLocked(id)
	return nil
}

func (tv *txMemoryView) AddAdjustment(_ context.Context, adj generic.Adjustment) error {
	tv.parent.addAdjustmentLocked(adj)
	return nil
}

func (tv *txMemoryView) AdjustmentsByEmployee(_ context.Context, id generic.EmployeeID) ([]generic.Adjustment, error) {
	return tv.parent.adjustmentsByEmployeeLocked(id), nil
}
