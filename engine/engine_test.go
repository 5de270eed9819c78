package engine_test

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yelush19/calmplan/engine"
	"github.com/yelush19/calmplan/engine/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func testLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestStore() *store.Memory {
	return store.NewMemory()
}

// payrollClient is a monthly payroll client with all three wage-family
// services declared.
func payrollClient(id string) engine.Client {
	return engine.Client{
		ID:            engine.ClientID(id),
		Name:          "לקוח " + id,
		Active:        true,
		BusinessType:  engine.BusinessCompany,
		PaymentMethod: engine.PaymentManual,
		Services: engine.NewServiceSet(
			engine.ServicePayroll,
			engine.ServiceSocialSecurity,
			engine.ServiceDeductions,
		),
		Reporting: map[engine.FrequencyField]engine.Frequency{
			engine.FieldPayrollFrequency: engine.FrequencyMonthly,
		},
	}
}

func vatClient(id string, freq engine.Frequency) engine.Client {
	return engine.Client{
		ID:            engine.ClientID(id),
		Name:          "לקוח " + id,
		Active:        true,
		BusinessType:  engine.BusinessFreelancer,
		PaymentMethod: engine.PaymentManual,
		Services:      engine.NewServiceSet(engine.ServiceVAT),
		Reporting: map[engine.FrequencyField]engine.Frequency{
			engine.FieldVATFrequency: freq,
		},
	}
}

func payrollTaskRule() engine.Rule {
	due := 15
	return engine.Rule{
		ID:      "payroll-tasks",
		Name:    "משימות שכר",
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
			DueDayOfMonth: &due,
		},
	}
}

func vatTaskRule() engine.Rule {
	return engine.Rule{
		ID:      "vat-tasks",
		Name:    "דיווחי מע\"מ",
		Enabled: true,
		Kind:    engine.KindReportAutoCreate,
		AutoCreate: &engine.AutoCreateSpec{
			TriggerServices: []engine.ServiceType{engine.ServiceVAT},
			Target:          engine.TargetTask,
			TaskCategories:  []engine.TaskCategory{engine.CategoryVAT},
		},
	}
}

func payrollLinkRule() engine.Rule {
	return engine.Rule{
		ID:      "payroll-auto-link",
		Name:    "שירותים נלווים לשכר",
		Enabled: true,
		Kind:    engine.KindServiceAutoLink,
		AutoLink: &engine.AutoLinkSpec{
			TriggerService: engine.ServicePayroll,
			AutoAddServices: []engine.ServiceType{
				engine.ServiceSocialSecurity,
				engine.ServiceDeductions,
			},
		},
	}
}

func mid(year int, m time.Month) time.Time {
	return time.Date(year, m, 10, 12, 0, 0, 0, time.UTC)
}
