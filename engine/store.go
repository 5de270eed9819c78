/*
store.go - Persistence collaborator contracts

PURPOSE:
  Defines the interfaces between the engine and the persistence layer.
  The engine issues nothing but these calls; retry/backoff for transient
  failures belongs to the implementation, composed around these methods
  without changing engine logic.

KEY INTERFACES:
  RuleStore:   Versioned load/save of the operator-authored rule set
  ClientStore: Read access to clients and their bank accounts, plus the
               two narrow mutations the engine performs on clients
  RecordStore: List and create generated records; flip task status

IMPLEMENTATIONS:
  - store/sqlite: Production SQLite
  - engine/store: In-memory for testing

GENERATED RECORDS ARE NEVER DELETED:
  RecordStore has no Delete. Cleanup marks tasks not_relevant via
  UpdateTaskStatus; everything else only accumulates.
*/
package engine

import "context"

// =============================================================================
// RULE STORE - Versioned rule-set persistence
// =============================================================================

// RuleStore persists the rule set as one versioned configuration.
type RuleStore interface {
	// LoadRules returns the current rule set and its configuration ID.
	LoadRules(ctx context.Context) ([]Rule, string, error)

	// SaveRules replaces the rule set. configID must match the currently
	// stored version or ErrConfigConflict is returned. Returns the new
	// configuration ID.
	SaveRules(ctx context.Context, configID string, rules []Rule) (string, error)
}

// =============================================================================
// CLIENT STORE
// =============================================================================

type ClientStore interface {
	// ListClients returns all clients, active and inactive.
	ListClients(ctx context.Context) ([]Client, error)

	// GetClient returns one client or ErrClientNotFound.
	GetClient(ctx context.Context, id ClientID) (*Client, error)

	// UpdateClientServices replaces the client's declared service list.
	// The only client mutation the link resolver performs.
	UpdateClientServices(ctx context.Context, id ClientID, services []ServiceType) error

	// UpdateClientReporting replaces the client's reporting frequencies.
	UpdateClientReporting(ctx context.Context, id ClientID, reporting map[FrequencyField]Frequency) error

	// ListAccounts returns the client's bank accounts.
	ListAccounts(ctx context.Context, id ClientID) ([]ClientAccount, error)
}

// =============================================================================
// RECORD STORE
// =============================================================================

type RecordStore interface {
	ListReports(ctx context.Context) ([]PeriodicReport, error)
	ListBalanceSheets(ctx context.Context) ([]BalanceSheet, error)
	ListReconciliations(ctx context.Context) ([]AccountReconciliation, error)
	ListTasks(ctx context.Context) ([]Task, error)

	// CreateX persists one record and returns the assigned ID. A create
	// that returns an empty ID without error is reported as a warning by
	// the executor: the call went through but cannot be verified.
	CreateReport(ctx context.Context, r PeriodicReport) (RecordID, error)
	CreateBalanceSheet(ctx context.Context, b BalanceSheet) (RecordID, error)
	CreateReconciliation(ctx context.Context, r AccountReconciliation) (RecordID, error)
	CreateTask(ctx context.Context, t Task) (RecordID, error)

	// UpdateTaskStatus flips a task's status. Cleanup sweeps use it to
	// move tasks into not_relevant.
	UpdateTaskStatus(ctx context.Context, id RecordID, status RecordStatus) error
}

// EntityStore is the full persistence collaborator the engine requires.
type EntityStore interface {
	ClientStore
	RecordStore
}
