/*
rule.go - Automation rule definitions

PURPOSE:
  Defines the two rule variants the engine understands:

  ServiceAutoLink:  "a client with service X also gets services Y, Z"
      Example: a payroll client implicitly gets social security and
      income-tax deductions handling.

  ReportAutoCreate: "a client with any of services X generates records
      of family T"
      Example: a VAT client gets a monthly/bimonthly VAT task; a
      bookkeeping client gets a reconciliation per bank account per month.

TAGGED UNION:
  A Rule carries a Kind plus exactly one variant payload (AutoLink or
  AutoCreate). Fields of the other variant must be nil; Validate enforces
  this exhaustively so a rule can never be half one thing, half another.

CONDITIONS:
  A rule may carry an optional condition restricting it to clients of a
  given business type. Absent condition means "applies to all".

SEE ALSO:
  - matcher.go: Decides which rules apply to a client
  - factory/rule.go: JSON parsing and save-time validation
*/
package engine

// =============================================================================
// RULE - Tagged union of the two automation variants
// =============================================================================

type RuleKind string

const (
	KindServiceAutoLink  RuleKind = "service_auto_link"
	KindReportAutoCreate RuleKind = "report_auto_create"
)

// ConditionField names a client attribute a rule condition can test.
// Only the business type is supported today.
type ConditionField string

const ConditionBusinessType ConditionField = "business_type"

// RuleCondition restricts a rule to clients matching an attribute value.
type RuleCondition struct {
	Field ConditionField
	Value string
}

// Matches reports whether the condition holds for the client.
// A nil condition matches everything.
func (c *RuleCondition) Matches(client Client) bool {
	if c == nil {
		return true
	}
	switch c.Field {
	case ConditionBusinessType:
		return string(client.BusinessType) == c.Value
	default:
		// Unknown fields never match; a typo'd condition disables the
		// rule instead of silently applying it to everyone.
		return false
	}
}

// AutoLinkSpec is the payload of a ServiceAutoLink rule.
type AutoLinkSpec struct {
	TriggerService  ServiceType
	AutoAddServices []ServiceType
}

// AutoCreateSpec is the payload of a ReportAutoCreate rule.
// Only the fields valid for Target are meaningful:
//   - ReportTypes:    TargetPeriodicReport only
//   - TaskCategories: TargetTask only
//   - DueDayOfMonth:  TargetTask only
//   - CyclesPerMonth: TargetTask only, cycle-based categories
type AutoCreateSpec struct {
	TriggerServices []ServiceType // OR-matched against client services
	Target          TargetEntity

	ReportTypes map[ReportType][]string

	TaskCategories []TaskCategory
	DueDayOfMonth  *int // 1..31, clamped to month length
	CyclesPerMonth int  // 0 or 1 = single run per month
}

// Rule is one automation rule. Identity is ID.
type Rule struct {
	ID          RuleID
	Name        string
	Description string
	Enabled     bool
	Condition   *RuleCondition

	Kind       RuleKind
	AutoLink   *AutoLinkSpec
	AutoCreate *AutoCreateSpec
}

// =============================================================================
// VALIDATION - Variant exhaustiveness, enforced at save time
// =============================================================================

// Validate checks structural invariants of the tagged union. Rules failing
// validation are rejected before they are persisted and never reach the
// matcher.
func (r Rule) Validate() error {
	if r.ID == "" {
		return &RuleValidationError{Field: "id", Reason: "must not be empty"}
	}
	if r.Name == "" {
		return &RuleValidationError{RuleID: r.ID, Field: "name", Reason: "must not be empty"}
	}
	if r.Condition != nil && r.Condition.Field != ConditionBusinessType {
		return &RuleValidationError{RuleID: r.ID, Field: "condition.field",
			Reason: "unsupported field " + string(r.Condition.Field)}
	}

	switch r.Kind {
	case KindServiceAutoLink:
		return r.validateAutoLink()
	case KindReportAutoCreate:
		return r.validateAutoCreate()
	default:
		return &RuleValidationError{RuleID: r.ID, Field: "kind",
			Reason: "unknown rule kind " + string(r.Kind)}
	}
}

func (r Rule) validateAutoLink() error {
	if r.AutoLink == nil {
		return &RuleValidationError{RuleID: r.ID, Field: "auto_link", Reason: "missing payload"}
	}
	if r.AutoCreate != nil {
		return &RuleValidationError{RuleID: r.ID, Field: "auto_create",
			Reason: "must be absent on a service_auto_link rule"}
	}
	if !validService(r.AutoLink.TriggerService) {
		return &RuleValidationError{RuleID: r.ID, Field: "trigger_service",
			Reason: "unknown service " + string(r.AutoLink.TriggerService)}
	}
	if len(r.AutoLink.AutoAddServices) == 0 {
		return &RuleValidationError{RuleID: r.ID, Field: "auto_add_services", Reason: "must not be empty"}
	}
	for _, svc := range r.AutoLink.AutoAddServices {
		if !validService(svc) {
			return &RuleValidationError{RuleID: r.ID, Field: "auto_add_services",
				Reason: "unknown service " + string(svc)}
		}
		if svc == r.AutoLink.TriggerService {
			return &RuleValidationError{RuleID: r.ID, Field: "auto_add_services",
				Reason: "must not contain the trigger service"}
		}
	}
	return nil
}

func (r Rule) validateAutoCreate() error {
	spec := r.AutoCreate
	if spec == nil {
		return &RuleValidationError{RuleID: r.ID, Field: "auto_create", Reason: "missing payload"}
	}
	if r.AutoLink != nil {
		return &RuleValidationError{RuleID: r.ID, Field: "auto_link",
			Reason: "must be absent on a report_auto_create rule"}
	}
	if len(spec.TriggerServices) == 0 {
		return &RuleValidationError{RuleID: r.ID, Field: "trigger_services", Reason: "must not be empty"}
	}
	for _, svc := range spec.TriggerServices {
		if !validService(svc) {
			return &RuleValidationError{RuleID: r.ID, Field: "trigger_services",
				Reason: "unknown service " + string(svc)}
		}
	}

	switch spec.Target {
	case TargetPeriodicReport:
		if len(spec.ReportTypes) == 0 {
			return &RuleValidationError{RuleID: r.ID, Field: "report_types",
				Reason: "required for periodic_report target"}
		}
	case TargetBalanceSheet, TargetReconciliation:
		// No extra configuration.
	case TargetTask:
		if len(spec.TaskCategories) == 0 {
			return &RuleValidationError{RuleID: r.ID, Field: "task_categories",
				Reason: "required for task target"}
		}
		for _, cat := range spec.TaskCategories {
			if !validCategory(cat) {
				return &RuleValidationError{RuleID: r.ID, Field: "task_categories",
					Reason: "unknown category " + string(cat)}
			}
		}
		if spec.DueDayOfMonth != nil && (*spec.DueDayOfMonth < 1 || *spec.DueDayOfMonth > 31) {
			return &RuleValidationError{RuleID: r.ID, Field: "due_day_of_month",
				Reason: "must be between 1 and 31"}
		}
		if spec.CyclesPerMonth < 0 {
			return &RuleValidationError{RuleID: r.ID, Field: "cycles_per_month",
				Reason: "must not be negative"}
		}
	default:
		return &RuleValidationError{RuleID: r.ID, Field: "target",
			Reason: "unknown target entity " + string(spec.Target)}
	}

	// Fields of other targets must be absent, never interpreted.
	if spec.Target != TargetPeriodicReport && len(spec.ReportTypes) > 0 {
		return &RuleValidationError{RuleID: r.ID, Field: "report_types",
			Reason: "only valid for periodic_report target"}
	}
	if spec.Target != TargetTask {
		if len(spec.TaskCategories) > 0 {
			return &RuleValidationError{RuleID: r.ID, Field: "task_categories",
				Reason: "only valid for task target"}
		}
		if spec.DueDayOfMonth != nil {
			return &RuleValidationError{RuleID: r.ID, Field: "due_day_of_month",
				Reason: "only valid for task target"}
		}
		if spec.CyclesPerMonth > 0 {
			return &RuleValidationError{RuleID: r.ID, Field: "cycles_per_month",
				Reason: "only valid for task target"}
		}
	}
	return nil
}

// ValidateRules validates a whole rule set, including ID uniqueness.
func ValidateRules(rules []Rule) error {
	seen := make(map[RuleID]bool, len(rules))
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return err
		}
		if seen[r.ID] {
			return &RuleValidationError{RuleID: r.ID, Field: "id", Reason: "duplicate rule id"}
		}
		seen[r.ID] = true
	}
	return nil
}

func validService(svc ServiceType) bool {
	for _, s := range KnownServices {
		if s == svc {
			return true
		}
	}
	return false
}

func validCategory(cat TaskCategory) bool {
	for _, c := range KnownCategories {
		if c == cat {
			return true
		}
	}
	return false
}
