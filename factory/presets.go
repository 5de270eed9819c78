package factory

import "github.com/yelush19/calmplan/engine"

// =============================================================================
// PRESETS - Canned rule set for a new installation
// =============================================================================

// DefaultRules returns the office's standard automation setup. New
// installations seed their rule store with this; operators edit from there.
func DefaultRules() []engine.Rule {
	due15 := 15

	return []engine.Rule{
		{
			ID:          "payroll-auto-link",
			Name:        "שירותים נלווים לשכר",
			Description: "לקוח שכר מקבל אוטומטית ביטוח לאומי וניכויים",
			Enabled:     true,
			Kind:        engine.KindServiceAutoLink,
			AutoLink: &engine.AutoLinkSpec{
				TriggerService: engine.ServicePayroll,
				AutoAddServices: []engine.ServiceType{
					engine.ServiceSocialSecurity,
					engine.ServiceDeductions,
				},
			},
		},
		{
			ID:      "payroll-tasks",
			Name:    "משימות שכר חודשיות",
			Enabled: true,
			Kind:    engine.KindReportAutoCreate,
			AutoCreate: &engine.AutoCreateSpec{
				TriggerServices: []engine.ServiceType{engine.ServicePayroll},
				Target:          engine.TargetTask,
				TaskCategories: []engine.TaskCategory{
					engine.CategoryWages,
					engine.CategorySocialSecurity,
					engine.CategoryDeductions,
				},
				DueDayOfMonth: &due15,
			},
		},
		{
			ID:      "vat-tasks",
			Name:    "דיווחי מע\"מ",
			Enabled: true,
			Kind:    engine.KindReportAutoCreate,
			AutoCreate: &engine.AutoCreateSpec{
				TriggerServices: []engine.ServiceType{engine.ServiceVAT},
				Target:          engine.TargetTask,
				TaskCategories:  []engine.TaskCategory{engine.CategoryVAT},
			},
		},
		{
			ID:      "advances-tasks",
			Name:    "מקדמות מס הכנסה",
			Enabled: true,
			Kind:    engine.KindReportAutoCreate,
			AutoCreate: &engine.AutoCreateSpec{
				TriggerServices: []engine.ServiceType{engine.ServiceAdvances},
				Target:          engine.TargetTask,
				TaskCategories:  []engine.TaskCategory{engine.CategoryAdvances},
			},
		},
		{
			ID:      "bank-reconciliations",
			Name:    "התאמות בנקים",
			Enabled: true,
			Kind:    engine.KindReportAutoCreate,
			AutoCreate: &engine.AutoCreateSpec{
				TriggerServices: []engine.ServiceType{engine.ServiceBookkeeping},
				Target:          engine.TargetReconciliation,
			},
		},
		{
			ID:      "supplier-payment-runs",
			Name:    "תשלומים לספקים",
			Enabled: true,
			Kind:    engine.KindReportAutoCreate,
			AutoCreate: &engine.AutoCreateSpec{
				TriggerServices: []engine.ServiceType{engine.ServiceBookkeeping},
				Target:          engine.TargetTask,
				TaskCategories:  []engine.TaskCategory{engine.CategorySupplierPay},
				CyclesPerMonth:  2,
			},
		},
		{
			ID:      "company-balance-sheet",
			Name:    "מאזן שנתי לחברות",
			Enabled: true,
			Kind:    engine.KindReportAutoCreate,
			Condition: &engine.RuleCondition{
				Field: engine.ConditionBusinessType,
				Value: string(engine.BusinessCompany),
			},
			AutoCreate: &engine.AutoCreateSpec{
				TriggerServices: []engine.ServiceType{engine.ServiceAnnualReport},
				Target:          engine.TargetBalanceSheet,
			},
		},
		{
			ID:      "annual-periodic-report",
			Name:    "דוח תקופתי שנתי",
			Enabled: true,
			Kind:    engine.KindReportAutoCreate,
			AutoCreate: &engine.AutoCreateSpec{
				TriggerServices: []engine.ServiceType{engine.ServiceAnnualReport},
				Target:          engine.TargetPeriodicReport,
				ReportTypes: map[engine.ReportType][]string{
					engine.ReportAnnual: {"yearly"},
				},
			},
		},
	}
}
