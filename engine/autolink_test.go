package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yelush19/calmplan/engine"
)

func TestLinkResolver_AddsMissingServices(t *testing.T) {
	// GIVEN: A payroll client missing both auto-linked services
	// WHEN: Applying the link rules
	// THEN: Both are added and persisted

	mem := newTestStore()
	client := engine.Client{
		ID: "c-1", Name: "לקוח", Active: true,
		Services: engine.NewServiceSet(engine.ServicePayroll),
	}
	mem.PutClient(client)

	resolver := engine.NewLinkResolver(mem, mem, testLogger())
	added, err := resolver.Apply(context.Background(), client, []engine.Rule{payrollLinkRule()})
	require.NoError(t, err)

	assert.Equal(t, []engine.ServiceType{
		engine.ServiceSocialSecurity,
		engine.ServiceDeductions,
	}, added)

	stored, err := mem.GetClient(context.Background(), "c-1")
	require.NoError(t, err)
	assert.True(t, stored.Services.Has(engine.ServicePayroll))
	assert.True(t, stored.Services.Has(engine.ServiceSocialSecurity))
	assert.True(t, stored.Services.Has(engine.ServiceDeductions))
}

func TestLinkResolver_NothingMissing_NoWrite(t *testing.T) {
	// GIVEN: A client who already carries every linked service
	// WHEN: Applying the link rules
	// THEN: Nothing is added and no update is issued

	mem := newTestStore()
	client := payrollClient("c-1")
	mem.PutClient(client)

	resolver := engine.NewLinkResolver(mem, mem, testLogger())
	added, err := resolver.Apply(context.Background(), client, []engine.Rule{payrollLinkRule()})
	require.NoError(t, err)
	assert.Empty(t, added)
}

func TestLinkResolver_ApplyAll_SkipsInactiveClients(t *testing.T) {
	// GIVEN: One active and one inactive client, both missing services
	// WHEN: Running the global pass
	// THEN: Only the active client is touched

	mem := newTestStore()
	active := engine.Client{
		ID: "c-1", Name: "פעיל", Active: true,
		Services: engine.NewServiceSet(engine.ServicePayroll),
	}
	inactive := engine.Client{
		ID: "c-2", Name: "לא פעיל", Active: false,
		Services: engine.NewServiceSet(engine.ServicePayroll),
	}
	mem.PutClient(active)
	mem.PutClient(inactive)
	mem.SeedRules([]engine.Rule{payrollLinkRule()})

	resolver := engine.NewLinkResolver(mem, mem, testLogger())
	added, err := resolver.ApplyAll(context.Background())
	require.NoError(t, err)

	require.Len(t, added, 1)
	assert.Contains(t, added, engine.ClientID("c-1"))

	untouched, err := mem.GetClient(context.Background(), "c-2")
	require.NoError(t, err)
	assert.False(t, untouched.Services.Has(engine.ServiceSocialSecurity))
}

func TestLinkResolver_ThenPreview_PicksUpNewServices(t *testing.T) {
	// GIVEN: A payroll-only client, the link rule and the payroll task rule
	// WHEN: Auto-linking, then scanning one month
	// THEN: All three wage-family categories produce candidates

	mem := newTestStore()
	client := engine.Client{
		ID: "c-1", Name: "לקוח", Active: true,
		Services: engine.NewServiceSet(engine.ServicePayroll),
		Reporting: map[engine.FrequencyField]engine.Frequency{
			engine.FieldPayrollFrequency: engine.FrequencyMonthly,
		},
	}
	mem.PutClient(client)
	mem.SeedRules([]engine.Rule{payrollLinkRule(), payrollTaskRule()})

	resolver := engine.NewLinkResolver(mem, mem, testLogger())
	_, err := resolver.ApplyAll(context.Background())
	require.NoError(t, err)

	result := buildPreview(t, mem, engine.NewMonth(2026, 3), mid(2026, 3))
	assert.Len(t, result.Items, 3)
}
