/*
Package factory provides JSON to Go rule conversion.

PURPOSE:
  Converts JSON rule definitions into engine.Rule values. Rules are
  operator-authored data: the office admin edits them in the UI, they are
  stored as JSON, and the factory turns them back into validated typed
  rules. A rule that fails validation here is rejected at save time and
  never reaches the matcher.

JSON SCHEMA:
  {
    "id": "payroll-tasks",
    "name": "משימות שכר",
    "enabled": true,
    "kind": "report_auto_create",
    "condition": {"field": "business_type", "value": "company"},
    "trigger_services": ["payroll"],
    "target": "task",
    "task_categories": ["שכר", "ביטוח לאומי"],
    "due_day_of_month": 15
  }

VALIDATION LAYERS:
  1. Structural: go-playground/validator tags on the JSON types
  2. Semantic:   engine.Rule.Validate - variant exhaustiveness, closed
                 enumerations, due-day range

SEE ALSO:
  - engine/rule.go: The typed rule union and its invariants
  - presets.go: Canned rule sets for new installations
*/
package factory

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/yelush19/calmplan/engine"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// RuleJSON is the JSON representation of a rule.
type RuleJSON struct {
	ID          string         `json:"id" validate:"required"`
	Name        string         `json:"name" validate:"required"`
	Description string         `json:"description,omitempty"`
	Enabled     bool           `json:"enabled"`
	Kind        string         `json:"kind" validate:"required,oneof=service_auto_link report_auto_create"`
	Condition   *ConditionJSON `json:"condition,omitempty"`

	// service_auto_link fields
	TriggerService  string   `json:"trigger_service,omitempty"`
	AutoAddServices []string `json:"auto_add_services,omitempty"`

	// report_auto_create fields
	TriggerServices []string            `json:"trigger_services,omitempty"`
	Target          string              `json:"target,omitempty"`
	ReportTypes     map[string][]string `json:"report_types,omitempty"`
	TaskCategories  []string            `json:"task_categories,omitempty"`
	DueDayOfMonth   *int                `json:"due_day_of_month,omitempty" validate:"omitempty,min=1,max=31"`
	CyclesPerMonth  int                 `json:"cycles_per_month,omitempty" validate:"min=0"`
}

// ConditionJSON restricts a rule to clients matching an attribute.
type ConditionJSON struct {
	Field string `json:"field" validate:"required,oneof=business_type"`
	Value string `json:"value" validate:"required"`
}

// =============================================================================
// RULE FACTORY
// =============================================================================

// RuleFactory converts JSON rules to validated engine rules.
type RuleFactory struct {
	validate *validator.Validate
}

func NewRuleFactory() *RuleFactory {
	return &RuleFactory{validate: validator.New()}
}

// ParseRules parses a JSON array of rules and validates each one.
func (f *RuleFactory) ParseRules(jsonStr string) ([]engine.Rule, error) {
	var rjs []RuleJSON
	if err := json.Unmarshal([]byte(jsonStr), &rjs); err != nil {
		return nil, fmt.Errorf("failed to parse rules JSON: %w", err)
	}
	rules := make([]engine.Rule, 0, len(rjs))
	for _, rj := range rjs {
		rule, err := f.FromJSON(rj)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}
	if err := engine.ValidateRules(rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// FromJSON converts one JSON rule into a validated engine rule.
func (f *RuleFactory) FromJSON(rj RuleJSON) (*engine.Rule, error) {
	if err := f.validate.Struct(rj); err != nil {
		return nil, fmt.Errorf("%w: rule %s: %v", engine.ErrRuleInvalid, rj.ID, err)
	}

	rule := engine.Rule{
		ID:          engine.RuleID(rj.ID),
		Name:        rj.Name,
		Description: rj.Description,
		Enabled:     rj.Enabled,
		Kind:        engine.RuleKind(rj.Kind),
	}
	if rj.Condition != nil {
		rule.Condition = &engine.RuleCondition{
			Field: engine.ConditionField(rj.Condition.Field),
			Value: rj.Condition.Value,
		}
	}

	switch rule.Kind {
	case engine.KindServiceAutoLink:
		rule.AutoLink = &engine.AutoLinkSpec{
			TriggerService:  engine.ServiceType(rj.TriggerService),
			AutoAddServices: toServices(rj.AutoAddServices),
		}
	case engine.KindReportAutoCreate:
		spec := &engine.AutoCreateSpec{
			TriggerServices: toServices(rj.TriggerServices),
			Target:          engine.TargetEntity(rj.Target),
			TaskCategories:  toCategories(rj.TaskCategories),
			DueDayOfMonth:   rj.DueDayOfMonth,
			CyclesPerMonth:  rj.CyclesPerMonth,
		}
		if len(rj.ReportTypes) > 0 {
			spec.ReportTypes = make(map[engine.ReportType][]string, len(rj.ReportTypes))
			for rt, periods := range rj.ReportTypes {
				spec.ReportTypes[engine.ReportType(rt)] = periods
			}
		}
		rule.AutoCreate = spec
	}

	if err := rule.Validate(); err != nil {
		return nil, err
	}
	return &rule, nil
}

// ToJSON converts an engine rule back into its JSON representation.
func ToJSON(rule engine.Rule) RuleJSON {
	rj := RuleJSON{
		ID:          string(rule.ID),
		Name:        rule.Name,
		Description: rule.Description,
		Enabled:     rule.Enabled,
		Kind:        string(rule.Kind),
	}
	if rule.Condition != nil {
		rj.Condition = &ConditionJSON{
			Field: string(rule.Condition.Field),
			Value: rule.Condition.Value,
		}
	}
	if rule.AutoLink != nil {
		rj.TriggerService = string(rule.AutoLink.TriggerService)
		rj.AutoAddServices = fromServices(rule.AutoLink.AutoAddServices)
	}
	if rule.AutoCreate != nil {
		rj.TriggerServices = fromServices(rule.AutoCreate.TriggerServices)
		rj.Target = string(rule.AutoCreate.Target)
		rj.TaskCategories = fromCategories(rule.AutoCreate.TaskCategories)
		rj.DueDayOfMonth = rule.AutoCreate.DueDayOfMonth
		rj.CyclesPerMonth = rule.AutoCreate.CyclesPerMonth
		if len(rule.AutoCreate.ReportTypes) > 0 {
			rj.ReportTypes = make(map[string][]string, len(rule.AutoCreate.ReportTypes))
			for rt, periods := range rule.AutoCreate.ReportTypes {
				rj.ReportTypes[string(rt)] = periods
			}
		}
	}
	return rj
}

// MarshalRules serializes a rule set for storage.
func MarshalRules(rules []engine.Rule) (string, error) {
	rjs := make([]RuleJSON, 0, len(rules))
	for _, r := range rules {
		rjs = append(rjs, ToJSON(r))
	}
	data, err := json.Marshal(rjs)
	if err != nil {
		return "", fmt.Errorf("failed to marshal rules: %w", err)
	}
	return string(data), nil
}

func toServices(in []string) []engine.ServiceType {
	out := make([]engine.ServiceType, 0, len(in))
	for _, s := range in {
		out = append(out, engine.ServiceType(s))
	}
	return out
}

func fromServices(in []engine.ServiceType) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, string(s))
	}
	return out
}

func toCategories(in []string) []engine.TaskCategory {
	out := make([]engine.TaskCategory, 0, len(in))
	for _, c := range in {
		out = append(out, engine.TaskCategory(c))
	}
	return out
}

func fromCategories(in []engine.TaskCategory) []string {
	out := make([]string, 0, len(in))
	for _, c := range in {
		out = append(out, string(c))
	}
	return out
}
