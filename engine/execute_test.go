package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yelush19/calmplan/engine"
	"github.com/yelush19/calmplan/engine/store"
)

func taskItem(id string, checked bool) engine.PreviewItem {
	return engine.PreviewItem{
		ID:          id,
		ClientID:    "c-1",
		ClientName:  "לקוח",
		Entity:      engine.TargetTask,
		EntityLabel: engine.TargetTask.EntityLabel(),
		Description: "משימה",
		Checked:     checked,
		Create: engine.CreateData{Task: &engine.Task{
			ClientID:       "c-1",
			Category:       engine.CategoryWages,
			Title:          "שכר לחודש 03/2026",
			DueDate:        time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC),
			Status:         engine.StatusNotStarted,
			ReportingMonth: "03/2026",
			Recurring:      true,
			Cycle:          1,
		}},
	}
}

func TestExecute_CreatesCheckedItems(t *testing.T) {
	// GIVEN: Two checked items and one unchecked
	// WHEN: Executing
	// THEN: Only the checked items are created, each with a record ID

	mem := newTestStore()
	ex := engine.NewExecutor(mem, testLogger())

	result, err := ex.Execute(context.Background(), []engine.PreviewItem{
		taskItem("i-1", true),
		taskItem("i-2", false),
		taskItem("i-3", true),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 0, result.Warnings)
	assert.Equal(t, 0, result.Errors)
	assert.Equal(t, 1, result.Clients)
	require.Len(t, result.Details, 2)
	for _, d := range result.Details {
		assert.Equal(t, engine.ItemSuccess, d.Status)
		assert.NotEmpty(t, d.RecordID)
	}

	tasks, err := mem.ListTasks(context.Background())
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestExecute_SingleFailure_BatchContinues(t *testing.T) {
	// GIVEN: A store that fails the second create
	// WHEN: Executing three checked items
	// THEN: Two succeed, one is reported as error, Execute returns nil

	mem := newTestStore()
	flaky := &failingSecondCreate{Memory: mem}
	ex := engine.NewExecutor(flaky, testLogger())

	result, err := ex.Execute(context.Background(), []engine.PreviewItem{
		taskItem("i-1", true),
		taskItem("i-2", true),
		taskItem("i-3", true),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 1, result.Errors)
	require.Len(t, result.Details, 3)
	assert.Equal(t, engine.ItemSuccess, result.Details[0].Status)
	assert.Equal(t, engine.ItemError, result.Details[1].Status)
	assert.NotEmpty(t, result.Details[1].Message)
	assert.Equal(t, engine.ItemSuccess, result.Details[2].Status)
}

func TestExecute_EmptyRecordID_IsWarning(t *testing.T) {
	// GIVEN: A store whose create reports no ID
	// WHEN: Executing
	// THEN: The item counts as a warning, not a success

	ex := engine.NewExecutor(&blankIDCreate{Memory: newTestStore()}, testLogger())

	result, err := ex.Execute(context.Background(), []engine.PreviewItem{taskItem("i-1", true)})
	require.NoError(t, err)

	assert.Equal(t, 0, result.Created)
	assert.Equal(t, 1, result.Warnings)
	require.Len(t, result.Details, 1)
	assert.Equal(t, engine.ItemWarning, result.Details[0].Status)
}

func TestExecute_Cancellation_ReturnsPartialResult(t *testing.T) {
	// GIVEN: A context cancelled before the run
	// WHEN: Executing
	// THEN: The context error comes back with an empty partial result

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ex := engine.NewExecutor(newTestStore(), testLogger())
	result, err := ex.Execute(ctx, []engine.PreviewItem{taskItem("i-1", true)})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.Equal(t, 0, result.Created)
}

func TestExecute_ThenRescan_ProducesNothing(t *testing.T) {
	// GIVEN: A preview committed in full
	// WHEN: Scanning the same range again
	// THEN: Every slot is occupied - the second preview is empty

	mem := newTestStore()
	mem.PutClient(payrollClient("c-1"))
	mem.SeedRules([]engine.Rule{payrollTaskRule()})

	first := buildPreview(t, mem, engine.NewMonth(2026, time.January), mid(2026, time.March))
	require.NotEmpty(t, first.Items)

	ex := engine.NewExecutor(mem, testLogger())
	execResult, err := ex.Execute(context.Background(), first.Items)
	require.NoError(t, err)
	assert.Equal(t, len(first.Items), execResult.Created)

	second := buildPreview(t, mem, engine.NewMonth(2026, time.January), mid(2026, time.March))
	assert.Empty(t, second.Items)
}

// =============================================================================
// STORE WRAPPERS
// =============================================================================

type failingSecondCreate struct {
	*store.Memory
	calls int
}

func (f *failingSecondCreate) CreateTask(ctx context.Context, t engine.Task) (engine.RecordID, error) {
	f.calls++
	if f.calls == 2 {
		return "", errors.New("unique constraint violated")
	}
	return f.Memory.CreateTask(ctx, t)
}

type blankIDCreate struct {
	*store.Memory
}

func (b *blankIDCreate) CreateTask(context.Context, engine.Task) (engine.RecordID, error) {
	return "", nil
}
