/*
Package sqlite provides a SQLite-backed implementation of the persistence
contracts.

PURPOSE:
  Implements engine.EntityStore and engine.RuleStore using SQLite. The
  same patterns apply to PostgreSQL - only minor dialect differences.

KEY TABLES:
  clients:                 Firm clients (services and reporting as JSON)
  client_accounts:         Bank accounts per client
  rule_configs:            Versioned rule-set JSON (single active row)
  periodic_reports:        Generated statutory reports
  balance_sheets:          Generated balance-sheet records
  account_reconciliations: Generated monthly reconciliations
  tasks:                   Generated office tasks
  sweep_runs:              Audit records of cleanup sweeps
  execution_runs:          Audit records of preview commits

GENERATED RECORDS ARE NEVER DELETED:
  There are no DELETE statements on the record tables. Cleanup flips a
  task's status to not_relevant; history stays queryable.

WAL MODE:
  SQLite is opened with WAL for better read concurrency; a sync.RWMutex
  guards writes the way the driver expects.

USAGE:
  store, err := sqlite.New("./data/calmplan.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - engine/store.go: Interface definitions
  - engine/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/yelush19/calmplan/engine"
	"github.com/yelush19/calmplan/factory"
)

// Store implements the persistence contracts using SQLite.
type Store struct {
	db      *sql.DB
	mu      sync.RWMutex
	factory *factory.RuleFactory
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db, factory: factory.NewRuleFactory()}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS clients (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		business_type TEXT NOT NULL,
		payment_method TEXT NOT NULL DEFAULT 'manual',
		services_json TEXT NOT NULL DEFAULT '[]',
		reporting_json TEXT NOT NULL DEFAULT '{}'
	);

	CREATE TABLE IF NOT EXISTS client_accounts (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL REFERENCES clients(id),
		bank_name TEXT NOT NULL,
		account_number TEXT NOT NULL,
		balance TEXT NOT NULL DEFAULT '0'
	);
	CREATE INDEX IF NOT EXISTS idx_accounts_client ON client_accounts(client_id);

	CREATE TABLE IF NOT EXISTS rule_configs (
		slot TEXT PRIMARY KEY,
		config_id TEXT NOT NULL,
		rules_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS periodic_reports (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL,
		report_year INTEGER NOT NULL,
		report_type TEXT NOT NULL,
		period TEXT NOT NULL,
		target_date TEXT NOT NULL,
		status TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_reports_client_year
		ON periodic_reports(client_id, report_year);

	CREATE TABLE IF NOT EXISTS balance_sheets (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL,
		tax_year INTEGER NOT NULL,
		current_stage TEXT NOT NULL,
		target_date TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sheets_client_year
		ON balance_sheets(client_id, tax_year);

	CREATE TABLE IF NOT EXISTS account_reconciliations (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL,
		account_id TEXT NOT NULL,
		period TEXT NOT NULL,
		due_date TEXT NOT NULL,
		status TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_recons_key
		ON account_reconciliations(client_id, account_id, period);

	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		client_id TEXT NOT NULL,
		category TEXT NOT NULL,
		title TEXT NOT NULL,
		due_date TEXT NOT NULL,
		status TEXT NOT NULL,
		reporting_month TEXT NOT NULL DEFAULT '',
		recurring INTEGER NOT NULL DEFAULT 0,
		cycle INTEGER NOT NULL DEFAULT 1
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_client_category
		ON tasks(client_id, category, reporting_month);

	CREATE TABLE IF NOT EXISTS sweep_runs (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		completed_at TEXT,
		clients_checked INTEGER NOT NULL DEFAULT 0,
		invalidated INTEGER NOT NULL DEFAULT 0,
		details_json TEXT NOT NULL DEFAULT '[]'
	);

	CREATE TABLE IF NOT EXISTS execution_runs (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		completed_at TEXT,
		clients INTEGER NOT NULL DEFAULT 0,
		created INTEGER NOT NULL DEFAULT 0,
		warnings INTEGER NOT NULL DEFAULT 0,
		errors INTEGER NOT NULL DEFAULT 0,
		details_json TEXT NOT NULL DEFAULT '[]'
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

const dateLayout = "2006-01-02"

// =============================================================================
// RULE STORE
// =============================================================================

func (s *Store) LoadRules(ctx context.Context) ([]engine.Rule, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var configID, rulesJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT config_id, rules_json FROM rule_configs WHERE slot = 'default'`).
		Scan(&configID, &rulesJSON)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to load rules: %w", err)
	}

	rules, err := s.factory.ParseRules(rulesJSON)
	if err != nil {
		return nil, "", fmt.Errorf("stored rules are corrupt: %w", err)
	}
	return rules, configID, nil
}

func (s *Store) SaveRules(ctx context.Context, configID string, rules []engine.Rule) (string, error) {
	if err := engine.ValidateRules(rules); err != nil {
		return "", err
	}
	rulesJSON, err := factory.MarshalRules(rules)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var current string
	err = s.db.QueryRowContext(ctx,
		`SELECT config_id FROM rule_configs WHERE slot = 'default'`).Scan(&current)
	switch {
	case err == sql.ErrNoRows:
		current = ""
	case err != nil:
		return "", fmt.Errorf("failed to read rule config: %w", err)
	}
	if configID != current {
		return "", engine.ErrConfigConflict
	}

	newID := uuid.NewString()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rule_configs (slot, config_id, rules_json, updated_at)
		VALUES ('default', ?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET
			config_id = excluded.config_id,
			rules_json = excluded.rules_json,
			updated_at = excluded.updated_at`,
		newID, rulesJSON, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return "", fmt.Errorf("failed to save rules: %w", err)
	}
	return newID, nil
}

// =============================================================================
// CLIENT STORE
// =============================================================================

func (s *Store) ListClients(ctx context.Context) ([]engine.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, active, business_type, payment_method, services_json, reporting_json
		FROM clients ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	var clients []engine.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, *c)
	}
	return clients, rows.Err()
}

func (s *Store) GetClient(ctx context.Context, id engine.ClientID) (*engine.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, active, business_type, payment_method, services_json, reporting_json
		FROM clients WHERE id = ?`, string(id))
	c, err := scanClient(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", engine.ErrClientNotFound, id)
	}
	return c, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row rowScanner) (*engine.Client, error) {
	var (
		c                        engine.Client
		active                   int
		servicesJSON, reportJSON string
	)
	err := row.Scan(&c.ID, &c.Name, &active, &c.BusinessType, &c.PaymentMethod,
		&servicesJSON, &reportJSON)
	if err != nil {
		return nil, err
	}
	c.Active = active != 0

	var services []engine.ServiceType
	if err := json.Unmarshal([]byte(servicesJSON), &services); err != nil {
		return nil, fmt.Errorf("client %s: corrupt services: %w", c.ID, err)
	}
	c.Services = engine.NewServiceSet(services...)

	if err := json.Unmarshal([]byte(reportJSON), &c.Reporting); err != nil {
		return nil, fmt.Errorf("client %s: corrupt reporting: %w", c.ID, err)
	}
	return &c, nil
}

// SaveClient inserts or replaces a client row. Used by the API layer and
// seeding; the engine itself only reads clients.
func (s *Store) SaveClient(ctx context.Context, c engine.Client) error {
	servicesJSON, err := json.Marshal(c.Services.List())
	if err != nil {
		return err
	}
	reporting := c.Reporting
	if reporting == nil {
		reporting = map[engine.FrequencyField]engine.Frequency{}
	}
	reportJSON, err := json.Marshal(reporting)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO clients (id, name, active, business_type, payment_method, services_json, reporting_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			active = excluded.active,
			business_type = excluded.business_type,
			payment_method = excluded.payment_method,
			services_json = excluded.services_json,
			reporting_json = excluded.reporting_json`,
		string(c.ID), c.Name, boolInt(c.Active), string(c.BusinessType),
		string(c.PaymentMethod), string(servicesJSON), string(reportJSON))
	if err != nil {
		return fmt.Errorf("failed to save client: %w", err)
	}
	return nil
}

func (s *Store) UpdateClientServices(ctx context.Context, id engine.ClientID, services []engine.ServiceType) error {
	servicesJSON, err := json.Marshal(services)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`UPDATE clients SET services_json = ? WHERE id = ?`,
		string(servicesJSON), string(id))
	if err != nil {
		return fmt.Errorf("failed to update services: %w", err)
	}
	return requireRow(res, id)
}

func (s *Store) UpdateClientReporting(ctx context.Context, id engine.ClientID, reporting map[engine.FrequencyField]engine.Frequency) error {
	reportJSON, err := json.Marshal(reporting)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`UPDATE clients SET reporting_json = ? WHERE id = ?`,
		string(reportJSON), string(id))
	if err != nil {
		return fmt.Errorf("failed to update reporting: %w", err)
	}
	return requireRow(res, id)
}

func requireRow(res sql.Result, id engine.ClientID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", engine.ErrClientNotFound, id)
	}
	return nil
}

func (s *Store) ListAccounts(ctx context.Context, id engine.ClientID) ([]engine.ClientAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, client_id, bank_name, account_number, balance
		FROM client_accounts WHERE client_id = ? ORDER BY id`, string(id))
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []engine.ClientAccount
	for rows.Next() {
		var (
			a       engine.ClientAccount
			balance string
		)
		if err := rows.Scan(&a.ID, &a.ClientID, &a.BankName, &a.AccountNumber, &balance); err != nil {
			return nil, err
		}
		a.Balance, err = decimal.NewFromString(balance)
		if err != nil {
			return nil, fmt.Errorf("account %s: corrupt balance: %w", a.ID, err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// SaveAccount inserts or replaces a bank-account row.
func (s *Store) SaveAccount(ctx context.Context, a engine.ClientAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO client_accounts (id, client_id, bank_name, account_number, balance)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			bank_name = excluded.bank_name,
			account_number = excluded.account_number,
			balance = excluded.balance`,
		string(a.ID), string(a.ClientID), a.BankName, a.AccountNumber,
		a.Balance.String())
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

// =============================================================================
// RECORD STORE
// =============================================================================

func (s *Store) ListReports(ctx context.Context) ([]engine.PeriodicReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, client_id, report_year, report_type, period, target_date, status
		FROM periodic_reports ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	var reports []engine.PeriodicReport
	for rows.Next() {
		var (
			r    engine.PeriodicReport
			date string
		)
		if err := rows.Scan(&r.ID, &r.ClientID, &r.ReportYear, &r.ReportType,
			&r.Period, &date, &r.Status); err != nil {
			return nil, err
		}
		r.TargetDate, err = time.Parse(dateLayout, date)
		if err != nil {
			return nil, fmt.Errorf("report %s: corrupt target date: %w", r.ID, err)
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

func (s *Store) ListBalanceSheets(ctx context.Context) ([]engine.BalanceSheet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, client_id, tax_year, current_stage, target_date
		FROM balance_sheets ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list balance sheets: %w", err)
	}
	defer rows.Close()

	var sheets []engine.BalanceSheet
	for rows.Next() {
		var (
			b    engine.BalanceSheet
			date string
		)
		if err := rows.Scan(&b.ID, &b.ClientID, &b.TaxYear, &b.CurrentStage, &date); err != nil {
			return nil, err
		}
		b.TargetDate, err = time.Parse(dateLayout, date)
		if err != nil {
			return nil, fmt.Errorf("balance sheet %s: corrupt target date: %w", b.ID, err)
		}
		sheets = append(sheets, b)
	}
	return sheets, rows.Err()
}

func (s *Store) ListReconciliations(ctx context.Context) ([]engine.AccountReconciliation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, client_id, account_id, period, due_date, status
		FROM account_reconciliations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list reconciliations: %w", err)
	}
	defer rows.Close()

	var recons []engine.AccountReconciliation
	for rows.Next() {
		var (
			r    engine.AccountReconciliation
			date string
		)
		if err := rows.Scan(&r.ID, &r.ClientID, &r.AccountID, &r.Period, &date, &r.Status); err != nil {
			return nil, err
		}
		r.DueDate, err = time.Parse(dateLayout, date)
		if err != nil {
			return nil, fmt.Errorf("reconciliation %s: corrupt due date: %w", r.ID, err)
		}
		recons = append(recons, r)
	}
	return recons, rows.Err()
}

func (s *Store) ListTasks(ctx context.Context) ([]engine.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, client_id, category, title, due_date, status, reporting_month, recurring, cycle
		FROM tasks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []engine.Task
	for rows.Next() {
		var (
			t         engine.Task
			date      string
			recurring int
		)
		if err := rows.Scan(&t.ID, &t.ClientID, &t.Category, &t.Title, &date,
			&t.Status, &t.ReportingMonth, &recurring, &t.Cycle); err != nil {
			return nil, err
		}
		t.DueDate, err = time.Parse(dateLayout, date)
		if err != nil {
			return nil, fmt.Errorf("task %s: corrupt due date: %w", t.ID, err)
		}
		t.Recurring = recurring != 0
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *Store) CreateReport(ctx context.Context, r engine.PeriodicReport) (engine.RecordID, error) {
	id := engine.RecordID(uuid.NewString())
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO periodic_reports (id, client_id, report_year, report_type, period, target_date, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(id), string(r.ClientID), r.ReportYear, string(r.ReportType),
		r.Period, r.TargetDate.Format(dateLayout), string(r.Status))
	if err != nil {
		return "", fmt.Errorf("failed to create report: %w", err)
	}
	return id, nil
}

func (s *Store) CreateBalanceSheet(ctx context.Context, b engine.BalanceSheet) (engine.RecordID, error) {
	id := engine.RecordID(uuid.NewString())
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO balance_sheets (id, client_id, tax_year, current_stage, target_date)
		VALUES (?, ?, ?, ?, ?)`,
		string(id), string(b.ClientID), b.TaxYear, b.CurrentStage,
		b.TargetDate.Format(dateLayout))
	if err != nil {
		return "", fmt.Errorf("failed to create balance sheet: %w", err)
	}
	return id, nil
}

func (s *Store) CreateReconciliation(ctx context.Context, r engine.AccountReconciliation) (engine.RecordID, error) {
	id := engine.RecordID(uuid.NewString())
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO account_reconciliations (id, client_id, account_id, period, due_date, status)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(id), string(r.ClientID), string(r.AccountID), r.Period,
		r.DueDate.Format(dateLayout), string(r.Status))
	if err != nil {
		return "", fmt.Errorf("failed to create reconciliation: %w", err)
	}
	return id, nil
}

func (s *Store) CreateTask(ctx context.Context, t engine.Task) (engine.RecordID, error) {
	id := engine.RecordID(uuid.NewString())
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, client_id, category, title, due_date, status, reporting_month, recurring, cycle)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(id), string(t.ClientID), string(t.Category), t.Title,
		t.DueDate.Format(dateLayout), string(t.Status), t.ReportingMonth,
		boolInt(t.Recurring), t.Cycle)
	if err != nil {
		return "", fmt.Errorf("failed to create task: %w", err)
	}
	return id, nil
}

func (s *Store) UpdateTaskStatus(ctx context.Context, id engine.RecordID, status engine.RecordStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ? WHERE id = ?`, string(status), string(id))
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("task %s not found", id)
	}
	return nil
}

// =============================================================================
// RUN RECORDS - Audit of sweeps and commits
// =============================================================================

func (s *Store) SaveSweepRun(ctx context.Context, run engine.SweepRun) error {
	details, err := json.Marshal(run.Details)
	if err != nil {
		return err
	}
	var completed any
	if run.CompletedAt != nil {
		completed = run.CompletedAt.UTC().Format(time.RFC3339)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sweep_runs (id, started_at, completed_at, clients_checked, invalidated, details_json)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			completed_at = excluded.completed_at,
			clients_checked = excluded.clients_checked,
			invalidated = excluded.invalidated,
			details_json = excluded.details_json`,
		run.ID, run.StartedAt.UTC().Format(time.RFC3339), completed,
		run.ClientsChecked, run.Invalidated, string(details))
	if err != nil {
		return fmt.Errorf("failed to save sweep run: %w", err)
	}
	return nil
}

func (s *Store) SaveExecutionRun(ctx context.Context, run engine.ExecutionRun) error {
	details, err := json.Marshal(run.Details)
	if err != nil {
		return err
	}
	var completed any
	if run.CompletedAt != nil {
		completed = run.CompletedAt.UTC().Format(time.RFC3339)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO execution_runs (id, started_at, completed_at, clients, created, warnings, errors, details_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			completed_at = excluded.completed_at,
			clients = excluded.clients,
			created = excluded.created,
			warnings = excluded.warnings,
			errors = excluded.errors,
			details_json = excluded.details_json`,
		run.ID, run.StartedAt.UTC().Format(time.RFC3339), completed,
		run.Clients, run.Created, run.Warnings, run.Errors, string(details))
	if err != nil {
		return fmt.Errorf("failed to save execution run: %w", err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
