package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yelush19/calmplan/engine"
)

func TestRuleValidate_AcceptsBothVariants(t *testing.T) {
	assert.NoError(t, payrollLinkRule().Validate())
	assert.NoError(t, payrollTaskRule().Validate())
	assert.NoError(t, vatTaskRule().Validate())
}

func TestRuleValidate_RejectsCrossVariantPayload(t *testing.T) {
	// GIVEN: An auto-link rule that also carries an auto-create payload
	// WHEN: Validating
	// THEN: Rejected - a rule is exactly one variant

	rule := payrollLinkRule()
	rule.AutoCreate = &engine.AutoCreateSpec{
		TriggerServices: []engine.ServiceType{engine.ServiceVAT},
		Target:          engine.TargetTask,
		TaskCategories:  []engine.TaskCategory{engine.CategoryVAT},
	}

	err := rule.Validate()
	require.Error(t, err)
	assert.True(t, engine.IsValidation(err))
}

func TestRuleValidate_RejectsForeignTargetFields(t *testing.T) {
	// Task-only configuration on a reconciliation rule must be rejected,
	// never silently ignored.
	day := 15
	rule := engine.Rule{
		ID: "recon", Name: "התאמות", Enabled: true,
		Kind: engine.KindReportAutoCreate,
		AutoCreate: &engine.AutoCreateSpec{
			TriggerServices: []engine.ServiceType{engine.ServiceBookkeeping},
			Target:          engine.TargetReconciliation,
			DueDayOfMonth:   &day,
		},
	}

	err := rule.Validate()
	require.Error(t, err)
	assert.True(t, engine.IsValidation(err))
}

func TestRuleValidate_RejectsUnknownService(t *testing.T) {
	rule := vatTaskRule()
	rule.AutoCreate.TriggerServices = []engine.ServiceType{"crypto_mining"}

	err := rule.Validate()
	require.Error(t, err)

	var verr *engine.RuleValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "trigger_services", verr.Field)
}

func TestRuleValidate_RejectsUnknownCategory(t *testing.T) {
	rule := vatTaskRule()
	rule.AutoCreate.TaskCategories = []engine.TaskCategory{"גינון"}

	err := rule.Validate()
	require.Error(t, err)
	assert.True(t, engine.IsValidation(err))
}

func TestRuleValidate_DueDayOutOfRange(t *testing.T) {
	for _, day := range []int{0, 32, -5} {
		d := day
		rule := vatTaskRule()
		rule.AutoCreate.DueDayOfMonth = &d
		assert.Error(t, rule.Validate(), "day %d should be rejected", day)
	}
}

func TestRuleValidate_PeriodicReportNeedsTypes(t *testing.T) {
	rule := engine.Rule{
		ID: "reports", Name: "דוחות", Enabled: true,
		Kind: engine.KindReportAutoCreate,
		AutoCreate: &engine.AutoCreateSpec{
			TriggerServices: []engine.ServiceType{engine.ServiceAnnualReport},
			Target:          engine.TargetPeriodicReport,
		},
	}
	assert.Error(t, rule.Validate())

	rule.AutoCreate.ReportTypes = map[engine.ReportType][]string{
		engine.ReportAnnual: {"yearly"},
	}
	assert.NoError(t, rule.Validate())
}

func TestRuleValidate_AutoLinkCannotAddItsTrigger(t *testing.T) {
	rule := payrollLinkRule()
	rule.AutoLink.AutoAddServices = append(rule.AutoLink.AutoAddServices, engine.ServicePayroll)
	assert.Error(t, rule.Validate())
}

func TestValidateRules_DuplicateID(t *testing.T) {
	err := engine.ValidateRules([]engine.Rule{vatTaskRule(), vatTaskRule()})
	require.Error(t, err)

	var verr *engine.RuleValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "id", verr.Field)
}

func TestRuleCondition_UnknownFieldNeverMatches(t *testing.T) {
	cond := &engine.RuleCondition{Field: "zodiac_sign", Value: "leo"}
	assert.False(t, cond.Matches(payrollClient("c-1")))
}
