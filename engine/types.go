/*
Package engine provides the core automation rule engine for the practice
manager.

PURPOSE:
  This package contains the types and algorithms that turn configurable
  business rules into recurring work records for an accounting firm's
  clients: periodic reports, balance sheets, bank-account reconciliations
  and office tasks. The engine matches rules against a client's services,
  expands them over a calendar range, deduplicates against records that
  already exist, and lets an operator preview and then commit the result.

KEY CONCEPTS IN THIS FILE (types.go):
  - Client: A firm client with services, business type and reporting setup
  - ServiceType / TaskCategory: Closed enumerations of the firm's domain
  - PeriodicReport / BalanceSheet / AccountReconciliation / Task:
    The four generated record families
  - PreviewItem: An uncommitted candidate record
  - ExecutionResult: Per-item outcome report of a commit run

DESIGN PRINCIPLES:
  1. Purity: Matching and expansion are pure functions over their inputs
  2. Type Safety: Strong typing for IDs, services and categories prevents
     a typo'd string from silently disabling a whole category
  3. Idempotence: Candidate keys are deterministic; scanning never writes
  4. Auditability: Every sweep invalidation carries a readable reason

SEE ALSO:
  - rule.go: Rule definitions (auto-link and auto-create variants)
  - preview.go: Candidate generation
  - execute.go: Commit with per-item verification
  - cleanup.go: Invalidation sweeps
*/
package engine

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ClientID string
type RuleID string
type AccountID string
type RecordID string

// =============================================================================
// SERVICES - What the firm does for a client
// =============================================================================

// ServiceType identifies a service the firm provides to a client.
type ServiceType string

const (
	ServicePayroll        ServiceType = "payroll"
	ServiceSocialSecurity ServiceType = "social_security"
	ServiceDeductions     ServiceType = "deductions"
	ServiceVAT            ServiceType = "vat"
	ServiceAdvances       ServiceType = "advances"
	ServiceBookkeeping    ServiceType = "bookkeeping"
	ServiceAnnualReport   ServiceType = "annual_report"
)

// KnownServices lists every valid service type. Used for validation.
var KnownServices = []ServiceType{
	ServicePayroll,
	ServiceSocialSecurity,
	ServiceDeductions,
	ServiceVAT,
	ServiceAdvances,
	ServiceBookkeeping,
	ServiceAnnualReport,
}

// ServiceSet is a set of services. The zero value is an empty set.
type ServiceSet map[ServiceType]bool

func NewServiceSet(services ...ServiceType) ServiceSet {
	s := make(ServiceSet, len(services))
	for _, svc := range services {
		s[svc] = true
	}
	return s
}

func (s ServiceSet) Has(svc ServiceType) bool { return s[svc] }

// Intersects reports whether any of the given services is in the set.
func (s ServiceSet) Intersects(services []ServiceType) bool {
	for _, svc := range services {
		if s[svc] {
			return true
		}
	}
	return false
}

// Minus returns the services in s that are not in other.
func (s ServiceSet) Minus(other ServiceSet) []ServiceType {
	var out []ServiceType
	for _, svc := range KnownServices {
		if s[svc] && !other[svc] {
			out = append(out, svc)
		}
	}
	return out
}

// List returns the set's members in the stable KnownServices order.
func (s ServiceSet) List() []ServiceType {
	var out []ServiceType
	for _, svc := range KnownServices {
		if s[svc] {
			out = append(out, svc)
		}
	}
	return out
}

// =============================================================================
// TASK CATEGORIES - The recurring obligations the firm tracks
// =============================================================================

// TaskCategory is a closed enumeration of task categories. The constant
// values are the Hebrew labels the firm works with; they double as the
// persisted category keys, so they must never change once records exist.
type TaskCategory string

const (
	CategoryWages          TaskCategory = "שכר"
	CategorySocialSecurity TaskCategory = "ביטוח לאומי"
	CategoryDeductions     TaskCategory = "מ\"ה ניכויים"
	CategoryVAT            TaskCategory = "מע\"מ"
	CategoryAdvances       TaskCategory = "מקדמות מ\"ה"
	CategoryBankRecon      TaskCategory = "התאמות בנקים"
	CategorySupplierPay    TaskCategory = "תשלומים לספקים"
)

// KnownCategories lists every valid category. Used for validation and for
// stable iteration order in sweeps.
var KnownCategories = []TaskCategory{
	CategoryWages,
	CategorySocialSecurity,
	CategoryDeductions,
	CategoryVAT,
	CategoryAdvances,
	CategoryBankRecon,
	CategorySupplierPay,
}

// =============================================================================
// CLIENT - External entity, read-only to the engine
// =============================================================================

// BusinessType classifies a client for rule conditions.
type BusinessType string

const (
	BusinessCompany     BusinessType = "company"
	BusinessFreelancer  BusinessType = "freelancer"
	BusinessPartnership BusinessType = "partnership"
	BusinessNonprofit   BusinessType = "nonprofit"
)

// PaymentMethod affects statutory due-day overrides (e.g. VAT filed via
// direct debit is granted a later day of month).
type PaymentMethod string

const (
	PaymentManual      PaymentMethod = "manual"
	PaymentDirectDebit PaymentMethod = "direct_debit"
)

// Client is the engine's read-only view of a firm client. The engine never
// creates or deletes clients; the only mutation it performs is adding
// auto-linked services via the link resolver.
type Client struct {
	ID            ClientID
	Name          string
	Active        bool
	BusinessType  BusinessType
	PaymentMethod PaymentMethod
	Services      ServiceSet

	// Reporting holds the client's filing frequency per frequency field.
	// A missing field is treated as FrequencyNotApplicable.
	Reporting map[FrequencyField]Frequency
}

// ClientAccount is a bank account of a client, reconciled monthly.
type ClientAccount struct {
	ID            AccountID
	ClientID      ClientID
	BankName      string
	AccountNumber string
	Balance       decimal.Decimal
}

// =============================================================================
// RECORD STATUS - Shared lifecycle of generated records
// =============================================================================

type RecordStatus string

const (
	StatusNotStarted  RecordStatus = "not_started"
	StatusInProgress  RecordStatus = "in_progress"
	StatusCompleted   RecordStatus = "completed"
	StatusNotRelevant RecordStatus = "not_relevant"
)

// IsActive reports whether a record still represents open work.
// Cleanup sweeps only ever touch active records, and only ever move them
// into StatusNotRelevant, never out of it.
func (s RecordStatus) IsActive() bool {
	return s != StatusCompleted && s != StatusNotRelevant
}

// =============================================================================
// GENERATED RECORD FAMILIES
// =============================================================================

// ReportType distinguishes the flavors of a periodic report.
type ReportType string

const (
	ReportAnnual      ReportType = "annual"
	ReportVATSummary  ReportType = "vat_summary"
	ReportWithholding ReportType = "withholding"
)

// PeriodicReport is a statutory report filed for a tax year.
type PeriodicReport struct {
	ID         RecordID
	ClientID   ClientID
	ReportYear int
	ReportType ReportType
	Period     string
	TargetDate time.Time
	Status     RecordStatus
}

// BalanceSheet tracks the preparation of a client's yearly balance sheet.
type BalanceSheet struct {
	ID           RecordID
	ClientID     ClientID
	TaxYear      int
	CurrentStage string
	TargetDate   time.Time
}

// AccountReconciliation tracks a monthly reconciliation of one bank account.
type AccountReconciliation struct {
	ID        RecordID
	ClientID  ClientID
	AccountID AccountID
	Period    string // month label, see Month.Label
	DueDate   time.Time
	Status    RecordStatus
}

// Task is a recurring office task in one of the fixed categories.
type Task struct {
	ID             RecordID
	ClientID       ClientID
	Category       TaskCategory
	Title          string
	DueDate        time.Time
	Status         RecordStatus
	ReportingMonth string // month label of the period the task covers
	Recurring      bool   // true when generated by a rule
	Cycle          int    // 1-based run index for cycle-based categories
}

// =============================================================================
// PREVIEW ITEM - Uncommitted candidate record
// =============================================================================

// TargetEntity names the record family a rule generates.
type TargetEntity string

const (
	TargetPeriodicReport TargetEntity = "periodic_report"
	TargetBalanceSheet   TargetEntity = "balance_sheet"
	TargetReconciliation TargetEntity = "account_reconciliation"
	TargetTask           TargetEntity = "task"
)

// EntityLabel returns the operator-facing label of a record family.
func (t TargetEntity) EntityLabel() string {
	switch t {
	case TargetPeriodicReport:
		return "דוח תקופתי"
	case TargetBalanceSheet:
		return "מאזן"
	case TargetReconciliation:
		return "התאמת בנק"
	case TargetTask:
		return "משימה"
	default:
		return string(t)
	}
}

// CreateData carries the fully formed payload of one candidate record.
// Exactly one field is non-nil, matching the item's Entity.
type CreateData struct {
	Report         *PeriodicReport
	BalanceSheet   *BalanceSheet
	Reconciliation *AccountReconciliation
	Task           *Task
}

// PreviewItem is one uncommitted candidate. Items are constructed fresh on
// every scan and never persisted; only Execute turns them into records.
type PreviewItem struct {
	// ID is a stable deterministic key used to deduplicate within one
	// preview pass, e.g. "c-17_task_מע\"מ_2026_3".
	ID string

	RuleID      RuleID
	RuleName    string
	ClientID    ClientID
	ClientName  string
	Entity      TargetEntity
	EntityLabel string
	Description string
	Checked     bool
	Create      CreateData
}

// PreviewResult is the outcome of one scan.
type PreviewResult struct {
	Items           []PreviewItem
	TotalClients    int // active clients scanned
	AffectedClients int // distinct clients across emitted items
}

// =============================================================================
// EXECUTION RESULT - Per-item outcome of a commit run
// =============================================================================

type ItemStatus string

const (
	ItemSuccess ItemStatus = "success"
	ItemWarning ItemStatus = "warning"
	ItemError   ItemStatus = "error"
)

type ExecutionDetail struct {
	ClientName  string
	EntityLabel string
	Description string
	Status      ItemStatus
	RecordID    RecordID // set on success
	Message     string   // set on warning/error
}

type ExecutionResult struct {
	Clients  int // distinct clients across executed items
	Created  int
	Warnings int
	Errors   int
	Details  []ExecutionDetail
}

// =============================================================================
// SWEEP REPORT - Audit trail of cleanup invalidations
// =============================================================================

// SweepEntry records one task invalidated by a cleanup sweep.
type SweepEntry struct {
	ClientID   ClientID
	ClientName string
	TaskID     RecordID
	TaskTitle  string
	Category   TaskCategory
	Reason     string
}

// SweepReport aggregates a cleanup run.
type SweepReport struct {
	ClientsChecked int
	Invalidated    []SweepEntry
}

func (r *SweepReport) String() string {
	return fmt.Sprintf("checked %d clients, invalidated %d tasks",
		r.ClientsChecked, len(r.Invalidated))
}

// =============================================================================
// RUN RECORDS - Persisted audit of sweeps and commits
// =============================================================================

// SweepRun records one cleanup sweep for later audit. CompletedAt is nil
// while the sweep is still running.
type SweepRun struct {
	ID             string
	StartedAt      time.Time
	CompletedAt    *time.Time
	ClientsChecked int
	Invalidated    int
	Details        []SweepEntry
}

// ExecutionRun records one preview commit for later audit.
type ExecutionRun struct {
	ID          string
	StartedAt   time.Time
	CompletedAt *time.Time
	Clients     int
	Created     int
	Warnings    int
	Errors      int
	Details     []ExecutionDetail
}
