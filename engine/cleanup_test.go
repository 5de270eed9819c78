package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yelush19/calmplan/engine"
	"github.com/yelush19/calmplan/engine/store"
)

func seedTask(mem *store.Memory, clientID string, cat engine.TaskCategory, month string, status engine.RecordStatus) engine.RecordID {
	due, _ := engine.ParseMonthLabel(month)
	return mem.PutTask(engine.Task{
		ClientID:       engine.ClientID(clientID),
		Category:       cat,
		Title:          string(cat) + " לחודש " + month,
		DueDate:        due.End(),
		Status:         status,
		ReportingMonth: month,
		Recurring:      true,
		Cycle:          1,
	})
}

func taskStatus(t *testing.T, mem *store.Memory, id engine.RecordID) engine.RecordStatus {
	t.Helper()
	task, ok := mem.Task(id)
	require.True(t, ok)
	return task.Status
}

func TestSweepServiceRemoval_InvalidatesOrphanedCategories(t *testing.T) {
	// GIVEN: A client with active VAT and wages tasks
	// WHEN: The VAT service is removed
	// THEN: VAT tasks go not_relevant, wages tasks are untouched

	mem := newTestStore()
	client := payrollClient("c-1")
	client.Services[engine.ServiceVAT] = true
	mem.PutClient(client)

	vatID := seedTask(mem, "c-1", engine.CategoryVAT, "03/2026", engine.StatusNotStarted)
	wagesID := seedTask(mem, "c-1", engine.CategoryWages, "03/2026", engine.StatusInProgress)

	oldServices := client.Services
	newServices := engine.NewServiceSet(
		engine.ServicePayroll, engine.ServiceSocialSecurity, engine.ServiceDeductions,
	)

	cleanup := engine.NewCleanup(mem, mem, testLogger())
	entries, err := cleanup.SweepServiceRemoval(context.Background(), client, oldServices, newServices)
	require.NoError(t, err)

	require.Len(t, entries, 1)
	assert.Equal(t, vatID, entries[0].TaskID)
	assert.Contains(t, entries[0].Reason, "service removed")

	assert.Equal(t, engine.StatusNotRelevant, taskStatus(t, mem, vatID))
	assert.Equal(t, engine.StatusInProgress, taskStatus(t, mem, wagesID))
}

func TestSweepServiceRemoval_CompletedTasksUntouched(t *testing.T) {
	// Completed work stays on the books even when the service goes away.
	mem := newTestStore()
	client := vatClient("c-1", engine.FrequencyMonthly)
	mem.PutClient(client)

	doneID := seedTask(mem, "c-1", engine.CategoryVAT, "02/2026", engine.StatusCompleted)

	cleanup := engine.NewCleanup(mem, mem, testLogger())
	entries, err := cleanup.SweepServiceRemoval(context.Background(), client,
		client.Services, engine.NewServiceSet())
	require.NoError(t, err)

	assert.Empty(t, entries)
	assert.Equal(t, engine.StatusCompleted, taskStatus(t, mem, doneID))
}

func TestSweepServiceRemoval_NothingRemoved_NoOp(t *testing.T) {
	mem := newTestStore()
	client := payrollClient("c-1")
	mem.PutClient(client)

	cleanup := engine.NewCleanup(mem, mem, testLogger())
	entries, err := cleanup.SweepServiceRemoval(context.Background(), client,
		client.Services, client.Services)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSweepFrequencyChange_InvalidatesOffCadenceMonths(t *testing.T) {
	// GIVEN: Monthly VAT tasks for January and March
	// WHEN: The VAT frequency changes to bimonthly
	// THEN: Only months off the new cadence are invalidated; January and
	//       March are odd months and both survive, February does not

	mem := newTestStore()
	client := vatClient("c-1", engine.FrequencyMonthly)
	mem.PutClient(client)

	janID := seedTask(mem, "c-1", engine.CategoryVAT, "01/2026", engine.StatusNotStarted)
	febID := seedTask(mem, "c-1", engine.CategoryVAT, "02/2026", engine.StatusNotStarted)
	marID := seedTask(mem, "c-1", engine.CategoryVAT, "03/2026", engine.StatusNotStarted)

	newReporting := map[engine.FrequencyField]engine.Frequency{
		engine.FieldVATFrequency: engine.FrequencyBimonthly,
	}

	cleanup := engine.NewCleanup(mem, mem, testLogger())
	entries, err := cleanup.SweepFrequencyChange(context.Background(), client,
		client.Reporting, newReporting)
	require.NoError(t, err)

	require.Len(t, entries, 1)
	assert.Equal(t, febID, entries[0].TaskID)

	assert.Equal(t, engine.StatusNotStarted, taskStatus(t, mem, janID))
	assert.Equal(t, engine.StatusNotRelevant, taskStatus(t, mem, febID))
	assert.Equal(t, engine.StatusNotStarted, taskStatus(t, mem, marID))
}

func TestSweepFrequencyChange_UnchangedFieldIgnored(t *testing.T) {
	// A payroll frequency change must not touch VAT tasks.
	mem := newTestStore()
	client := vatClient("c-1", engine.FrequencyMonthly)
	client.Reporting[engine.FieldPayrollFrequency] = engine.FrequencyMonthly
	mem.PutClient(client)

	vatID := seedTask(mem, "c-1", engine.CategoryVAT, "02/2026", engine.StatusNotStarted)

	newReporting := map[engine.FrequencyField]engine.Frequency{
		engine.FieldVATFrequency:     engine.FrequencyMonthly,
		engine.FieldPayrollFrequency: engine.FrequencyQuarterly,
	}

	cleanup := engine.NewCleanup(mem, mem, testLogger())
	entries, err := cleanup.SweepFrequencyChange(context.Background(), client,
		client.Reporting, newReporting)
	require.NoError(t, err)

	assert.Empty(t, entries)
	assert.Equal(t, engine.StatusNotStarted, taskStatus(t, mem, vatID))
}

func TestSweepFrequencyChange_LegacyTask_DueMonthMinusOne(t *testing.T) {
	// GIVEN: A legacy task without a stored reporting month, due mid-January
	// WHEN: The frequency changes to semi-annual
	// THEN: Its report month is December of the previous year - a valid
	//       semi-annual month - so it survives

	mem := newTestStore()
	client := vatClient("c-1", engine.FrequencyMonthly)
	mem.PutClient(client)

	legacyID := mem.PutTask(engine.Task{
		ClientID:  "c-1",
		Category:  engine.CategoryVAT,
		Title:     "מע\"מ",
		DueDate:   time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC),
		Status:    engine.StatusNotStarted,
		Recurring: true,
	})
	offCadenceID := mem.PutTask(engine.Task{
		ClientID:  "c-1",
		Category:  engine.CategoryVAT,
		Title:     "מע\"מ",
		DueDate:   time.Date(2026, time.February, 15, 0, 0, 0, 0, time.UTC),
		Status:    engine.StatusNotStarted,
		Recurring: true,
	})

	newReporting := map[engine.FrequencyField]engine.Frequency{
		engine.FieldVATFrequency: engine.FrequencySemiAnnual,
	}

	cleanup := engine.NewCleanup(mem, mem, testLogger())
	_, err := cleanup.SweepFrequencyChange(context.Background(), client,
		client.Reporting, newReporting)
	require.NoError(t, err)

	assert.Equal(t, engine.StatusNotStarted, taskStatus(t, mem, legacyID))
	assert.Equal(t, engine.StatusNotRelevant, taskStatus(t, mem, offCadenceID))
}

func TestSweepAll_AutoLinkCascade(t *testing.T) {
	// GIVEN: A client whose payroll was removed but whose auto-linked
	//        social_security and deductions flags were left behind, with
	//        active tasks in all three wage-family categories
	// WHEN: Running the system-wide sweep
	// THEN: All three tasks are invalidated - the dependents count as
	//       removed because their trigger parent is gone

	mem := newTestStore()
	client := engine.Client{
		ID: "c-1", Name: "לקוח", Active: true,
		Services: engine.NewServiceSet(
			engine.ServiceSocialSecurity,
			engine.ServiceDeductions,
		),
		Reporting: map[engine.FrequencyField]engine.Frequency{
			engine.FieldPayrollFrequency: engine.FrequencyMonthly,
		},
	}
	mem.PutClient(client)
	mem.SeedRules([]engine.Rule{payrollLinkRule()})

	wagesID := seedTask(mem, "c-1", engine.CategoryWages, "03/2026", engine.StatusNotStarted)
	socialID := seedTask(mem, "c-1", engine.CategorySocialSecurity, "03/2026", engine.StatusNotStarted)
	deductID := seedTask(mem, "c-1", engine.CategoryDeductions, "03/2026", engine.StatusInProgress)

	cleanup := engine.NewCleanup(mem, mem, testLogger())
	report, err := cleanup.SweepAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.ClientsChecked)
	assert.Len(t, report.Invalidated, 3)

	assert.Equal(t, engine.StatusNotRelevant, taskStatus(t, mem, wagesID))
	assert.Equal(t, engine.StatusNotRelevant, taskStatus(t, mem, socialID))
	assert.Equal(t, engine.StatusNotRelevant, taskStatus(t, mem, deductID))
}

func TestSweepAll_OtherClientsUntouched(t *testing.T) {
	// GIVEN: An orphaned client (payroll removed, linked flags left behind)
	//        and a healthy payroll client, each holding active tasks in the
	//        same three wage-family categories for the same month
	// WHEN: Running the system-wide sweep
	// THEN: Only the orphaned client's tasks are invalidated

	mem := newTestStore()
	orphaned := engine.Client{
		ID: "c-1", Name: "לקוח", Active: true,
		Services: engine.NewServiceSet(
			engine.ServiceSocialSecurity,
			engine.ServiceDeductions,
		),
		Reporting: map[engine.FrequencyField]engine.Frequency{
			engine.FieldPayrollFrequency: engine.FrequencyMonthly,
		},
	}
	mem.PutClient(orphaned)
	mem.PutClient(payrollClient("c-2"))
	mem.SeedRules([]engine.Rule{payrollLinkRule()})

	wageFamily := []engine.TaskCategory{
		engine.CategoryWages, engine.CategorySocialSecurity, engine.CategoryDeductions,
	}
	var orphanedIDs, healthyIDs []engine.RecordID
	for _, cat := range wageFamily {
		orphanedIDs = append(orphanedIDs, seedTask(mem, "c-1", cat, "03/2026", engine.StatusNotStarted))
		healthyIDs = append(healthyIDs, seedTask(mem, "c-2", cat, "03/2026", engine.StatusNotStarted))
	}

	cleanup := engine.NewCleanup(mem, mem, testLogger())
	report, err := cleanup.SweepAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.ClientsChecked)
	require.Len(t, report.Invalidated, 3)
	for _, entry := range report.Invalidated {
		assert.Equal(t, engine.ClientID("c-1"), entry.ClientID)
	}
	for _, id := range orphanedIDs {
		assert.Equal(t, engine.StatusNotRelevant, taskStatus(t, mem, id))
	}
	for _, id := range healthyIDs {
		assert.Equal(t, engine.StatusNotStarted, taskStatus(t, mem, id))
	}
}

func TestSweepAll_HealthyClientUntouched(t *testing.T) {
	mem := newTestStore()
	mem.PutClient(payrollClient("c-1"))
	mem.SeedRules([]engine.Rule{payrollLinkRule()})

	wagesID := seedTask(mem, "c-1", engine.CategoryWages, "03/2026", engine.StatusNotStarted)

	cleanup := engine.NewCleanup(mem, mem, testLogger())
	report, err := cleanup.SweepAll(context.Background())
	require.NoError(t, err)

	assert.Empty(t, report.Invalidated)
	assert.Equal(t, engine.StatusNotStarted, taskStatus(t, mem, wagesID))
}

func TestSweepAll_FrequencyCheckCoversRecurringTasks(t *testing.T) {
	// GIVEN: A quarterly VAT client with a leftover February task
	// WHEN: Running the system-wide sweep
	// THEN: February is not a quarterly filing month - invalidated

	mem := newTestStore()
	mem.PutClient(vatClient("c-1", engine.FrequencyQuarterly))

	febID := seedTask(mem, "c-1", engine.CategoryVAT, "02/2026", engine.StatusNotStarted)
	marID := seedTask(mem, "c-1", engine.CategoryVAT, "03/2026", engine.StatusNotStarted)

	cleanup := engine.NewCleanup(mem, mem, testLogger())
	report, err := cleanup.SweepAll(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Invalidated, 1)
	assert.Equal(t, engine.StatusNotRelevant, taskStatus(t, mem, febID))
	assert.Equal(t, engine.StatusNotStarted, taskStatus(t, mem, marID))
}

func TestSweep_ThenPreview_RegeneratesFreshSlot(t *testing.T) {
	// GIVEN: A task invalidated by a sweep
	// WHEN: Scanning the month again with the service restored
	// THEN: The slot is free and a fresh candidate is emitted

	mem := newTestStore()
	client := vatClient("c-1", engine.FrequencyMonthly)
	mem.PutClient(client)
	mem.SeedRules([]engine.Rule{vatTaskRule()})

	id := seedTask(mem, "c-1", engine.CategoryVAT, "03/2026", engine.StatusNotStarted)

	cleanup := engine.NewCleanup(mem, mem, testLogger())
	_, err := cleanup.SweepServiceRemoval(context.Background(), client,
		client.Services, engine.NewServiceSet())
	require.NoError(t, err)
	require.Equal(t, engine.StatusNotRelevant, taskStatus(t, mem, id))

	result := buildPreview(t, mem, engine.NewMonth(2026, time.March), mid(2026, time.March))
	require.Len(t, result.Items, 1)
	assert.Equal(t, "03/2026", result.Items[0].Create.Task.ReportingMonth)
}
