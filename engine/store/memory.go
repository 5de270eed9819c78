// Package store provides in-memory implementations of the engine's
// persistence contracts, used by tests and local development.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/yelush19/calmplan/engine"
)

// =============================================================================
// MEMORY STORE - In-memory EntityStore + RuleStore (for testing/dev)
// =============================================================================

type Memory struct {
	mu sync.RWMutex

	clients  map[engine.ClientID]engine.Client
	order    []engine.ClientID // stable ListClients order
	accounts map[engine.ClientID][]engine.ClientAccount

	reports []engine.PeriodicReport
	sheets  []engine.BalanceSheet
	recons  []engine.AccountReconciliation
	tasks   []engine.Task

	rules    []engine.Rule
	configID string
}

func NewMemory() *Memory {
	return &Memory{
		clients:  make(map[engine.ClientID]engine.Client),
		accounts: make(map[engine.ClientID][]engine.ClientAccount),
		configID: "config-1",
	}
}

// =============================================================================
// SEEDING - Test/dev setup helpers, not part of the engine contracts
// =============================================================================

func (m *Memory) PutClient(c engine.Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[c.ID]; !ok {
		m.order = append(m.order, c.ID)
	}
	m.clients[c.ID] = c
}

func (m *Memory) PutAccount(a engine.ClientAccount) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[a.ClientID] = append(m.accounts[a.ClientID], a)
}

func (m *Memory) PutTask(t engine.Task) engine.RecordID {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == "" {
		t.ID = engine.RecordID(uuid.NewString())
	}
	m.tasks = append(m.tasks, t)
	return t.ID
}

func (m *Memory) PutReport(r engine.PeriodicReport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = engine.RecordID(uuid.NewString())
	}
	m.reports = append(m.reports, r)
}

func (m *Memory) SeedRules(rules []engine.Rule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append([]engine.Rule(nil), rules...)
}

// Task returns a copy of a stored task, for test assertions.
func (m *Memory) Task(id engine.RecordID) (engine.Task, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.tasks {
		if t.ID == id {
			return t, true
		}
	}
	return engine.Task{}, false
}

// =============================================================================
// RULE STORE
// =============================================================================

func (m *Memory) LoadRules(_ context.Context) ([]engine.Rule, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]engine.Rule(nil), m.rules...), m.configID, nil
}

func (m *Memory) SaveRules(_ context.Context, configID string, rules []engine.Rule) (string, error) {
	if err := engine.ValidateRules(rules); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if configID != m.configID {
		return "", engine.ErrConfigConflict
	}
	m.rules = append([]engine.Rule(nil), rules...)
	m.configID = "config-" + uuid.NewString()
	return m.configID, nil
}

// =============================================================================
// CLIENT STORE
// =============================================================================

func (m *Memory) ListClients(_ context.Context) ([]engine.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]engine.Client, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.clients[id])
	}
	return out, nil
}

func (m *Memory) GetClient(_ context.Context, id engine.ClientID) (*engine.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", engine.ErrClientNotFound, id)
	}
	return &c, nil
}

func (m *Memory) UpdateClientServices(_ context.Context, id engine.ClientID, services []engine.ServiceType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[id]
	if !ok {
		return fmt.Errorf("%w: %s", engine.ErrClientNotFound, id)
	}
	c.Services = engine.NewServiceSet(services...)
	m.clients[id] = c
	return nil
}

func (m *Memory) UpdateClientReporting(_ context.Context, id engine.ClientID, reporting map[engine.FrequencyField]engine.Frequency) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[id]
	if !ok {
		return fmt.Errorf("%w: %s", engine.ErrClientNotFound, id)
	}
	copied := make(map[engine.FrequencyField]engine.Frequency, len(reporting))
	for k, v := range reporting {
		copied[k] = v
	}
	c.Reporting = copied
	m.clients[id] = c
	return nil
}

func (m *Memory) ListAccounts(_ context.Context, id engine.ClientID) ([]engine.ClientAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]engine.ClientAccount(nil), m.accounts[id]...), nil
}

// =============================================================================
// RECORD STORE
// =============================================================================

func (m *Memory) ListReports(_ context.Context) ([]engine.PeriodicReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]engine.PeriodicReport(nil), m.reports...), nil
}

func (m *Memory) ListBalanceSheets(_ context.Context) ([]engine.BalanceSheet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]engine.BalanceSheet(nil), m.sheets...), nil
}

func (m *Memory) ListReconciliations(_ context.Context) ([]engine.AccountReconciliation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]engine.AccountReconciliation(nil), m.recons...), nil
}

func (m *Memory) ListTasks(_ context.Context) ([]engine.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]engine.Task(nil), m.tasks...), nil
}

func (m *Memory) CreateReport(_ context.Context, r engine.PeriodicReport) (engine.RecordID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = engine.RecordID(uuid.NewString())
	m.reports = append(m.reports, r)
	return r.ID, nil
}

func (m *Memory) CreateBalanceSheet(_ context.Context, b engine.BalanceSheet) (engine.RecordID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b.ID = engine.RecordID(uuid.NewString())
	m.sheets = append(m.sheets, b)
	return b.ID, nil
}

func (m *Memory) CreateReconciliation(_ context.Context, r engine.AccountReconciliation) (engine.RecordID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = engine.RecordID(uuid.NewString())
	m.recons = append(m.recons, r)
	return r.ID, nil
}

func (m *Memory) CreateTask(_ context.Context, t engine.Task) (engine.RecordID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = engine.RecordID(uuid.NewString())
	m.tasks = append(m.tasks, t)
	return t.ID, nil
}

func (m *Memory) UpdateTaskStatus(_ context.Context, id engine.RecordID, status engine.RecordStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.tasks {
		if m.tasks[i].ID == id {
			m.tasks[i].Status = status
			return nil
		}
	}
	return fmt.Errorf("task %s not found", id)
}
