/*
cleanup.go - Invalidation sweeps

PURPOSE:
  Marks previously generated tasks not_relevant when the client setup that
  justified them changes. Three independent entry points:

  SweepServiceRemoval:  client lost a service -> its categories' active
                        tasks are invalidated
  SweepFrequencyChange: a reporting frequency changed -> active recurring
                        tasks whose report month is no longer a filing
                        month are invalidated
  SweepAll:             explicit bulk pass over every client, combining
                        both checks plus the effective-service correction
                        (a dependent service with an absent auto-link
                        parent counts as removed even if still flagged)

GUARANTEES:
  - Only active tasks (not completed, not already not_relevant) are touched
  - Tasks only ever transition INTO not_relevant, never out of it
  - Every invalidation is logged and reported with a readable reason
  - A single unreadable client or failed update never fails a whole sweep;
    it is logged and the sweep continues

REPORT MONTH:
  The month a task covers. Stored on tasks the engine creates; for legacy
  records without it, derived as the due month minus one (a January due
  date wraps to December of the previous year).
*/
package engine

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// =============================================================================
// CLEANUP ENGINE
// =============================================================================

type Cleanup struct {
	Store EntityStore
	Rules RuleStore
	Log   logrus.FieldLogger
}

func NewCleanup(store EntityStore, rules RuleStore, log logrus.FieldLogger) *Cleanup {
	return &Cleanup{Store: store, Rules: rules, Log: log}
}

// =============================================================================
// SERVICE-REMOVAL SWEEP
// =============================================================================

// SweepServiceRemoval invalidates the client's active tasks in every
// category belonging to a removed service. Call it with the service sets
// from before and after a client edit.
func (c *Cleanup) SweepServiceRemoval(ctx context.Context, client Client, oldServices, newServices ServiceSet) ([]SweepEntry, error) {
	removed := oldServices.Minus(newServices)
	if len(removed) == 0 {
		return nil, nil
	}

	orphaned := make(map[TaskCategory]bool)
	for _, svc := range removed {
		for _, cat := range CategoriesForService(svc) {
			orphaned[cat] = true
		}
	}

	tasks, err := c.Store.ListTasks(ctx)
	if err != nil {
		return nil, &ScanError{Stage: "list tasks", Err: err}
	}

	var entries []SweepEntry
	for _, t := range tasks {
		if t.ClientID != client.ID || !t.Status.IsActive() || !orphaned[t.Category] {
			continue
		}
		entry := c.invalidate(ctx, client, t,
			fmt.Sprintf("service removed: %s", t.Category))
		if entry != nil {
			entries = append(entries, *entry)
		}
	}
	return entries, nil
}

// =============================================================================
// FREQUENCY-CHANGE SWEEP
// =============================================================================

// SweepFrequencyChange invalidates the client's active recurring tasks in
// every category whose reporting frequency changed, when the task's report
// month is not a filing month under the new frequency.
func (c *Cleanup) SweepFrequencyChange(ctx context.Context, client Client, oldReporting, newReporting map[FrequencyField]Frequency) ([]SweepEntry, error) {
	changed := make(map[FrequencyField]bool)
	for field, freq := range newReporting {
		if oldReporting[field] != freq {
			changed[field] = true
		}
	}
	for field := range oldReporting {
		if _, ok := newReporting[field]; !ok {
			changed[field] = true
		}
	}
	if len(changed) == 0 {
		return nil, nil
	}

	tasks, err := c.Store.ListTasks(ctx)
	if err != nil {
		return nil, &ScanError{Stage: "list tasks", Err: err}
	}

	var entries []SweepEntry
	for _, t := range tasks {
		if t.ClientID != client.ID || !t.Status.IsActive() || !t.Recurring {
			continue
		}
		field, ok := FrequencyFieldFor(t.Category)
		if !ok || !changed[field] {
			continue
		}
		freq, ok := newReporting[field]
		if !ok {
			freq = FrequencyNotApplicable
		}
		month := taskReportMonth(t)
		if freq.Allows(month.M) {
			continue
		}
		entry := c.invalidate(ctx, client, t,
			fmt.Sprintf("frequency changed to %s: month %s no longer valid", freq, month.Label()))
		if entry != nil {
			entries = append(entries, *entry)
		}
	}
	return entries, nil
}

// =============================================================================
// SYSTEM-WIDE SWEEP
// =============================================================================

// SweepAll runs both checks over every client, using effective services
// (auto-link dependents with an absent parent count as removed) and the
// clients' current reporting frequencies.
func (c *Cleanup) SweepAll(ctx context.Context) (*SweepReport, error) {
	rules, _, err := c.Rules.LoadRules(ctx)
	if err != nil {
		return nil, &ScanError{Stage: "load rules", Err: err}
	}
	clients, err := c.Store.ListClients(ctx)
	if err != nil {
		return nil, &ScanError{Stage: "list clients", Err: err}
	}
	tasks, err := c.Store.ListTasks(ctx)
	if err != nil {
		return nil, &ScanError{Stage: "list tasks", Err: err}
	}

	byClient := make(map[ClientID][]Task)
	for _, t := range tasks {
		byClient[t.ClientID] = append(byClient[t.ClientID], t)
	}

	report := &SweepReport{}
	for _, client := range clients {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.ClientsChecked++
		effective := EffectiveServices(client, rules)

		for _, t := range byClient[client.ID] {
			if !t.Status.IsActive() {
				continue
			}
			if reason, gone := c.taskOrphaned(client, effective, t); gone {
				entry := c.invalidate(ctx, client, t, reason)
				if entry != nil {
					report.Invalidated = append(report.Invalidated, *entry)
				}
			}
		}
	}

	c.Log.WithFields(logrus.Fields{
		"clients":     report.ClientsChecked,
		"invalidated": len(report.Invalidated),
	}).Info("system-wide sweep complete")
	return report, nil
}

// taskOrphaned decides whether a task survives under the client's effective
// services and current frequencies.
func (c *Cleanup) taskOrphaned(client Client, effective ServiceSet, t Task) (string, bool) {
	svc, ok := serviceForCategory(t.Category)
	if ok && !effective.Has(svc) {
		return fmt.Sprintf("service removed: %s", t.Category), true
	}

	if !t.Recurring {
		return "", false
	}
	freq := ClientFrequency(client, t.Category)
	month := taskReportMonth(t)
	if !freq.Allows(month.M) {
		return fmt.Sprintf("frequency %s: month %s not valid", freq, month.Label()), true
	}
	return "", false
}

// =============================================================================
// HELPERS
// =============================================================================

// invalidate flips one task to not_relevant. A store failure is logged and
// swallowed so the sweep continues; nil is returned in that case.
func (c *Cleanup) invalidate(ctx context.Context, client Client, t Task, reason string) *SweepEntry {
	if err := c.Store.UpdateTaskStatus(ctx, t.ID, StatusNotRelevant); err != nil {
		c.Log.WithFields(logrus.Fields{
			"client": client.ID,
			"task":   t.ID,
		}).WithError(err).Warn("failed to invalidate task, skipping")
		return nil
	}
	c.Log.WithFields(logrus.Fields{
		"client":   client.Name,
		"task":     t.Title,
		"category": t.Category,
		"reason":   reason,
	}).Info("task invalidated")
	return &SweepEntry{
		ClientID:   client.ID,
		ClientName: client.Name,
		TaskID:     t.ID,
		TaskTitle:  t.Title,
		Category:   t.Category,
		Reason:     reason,
	}
}

// taskReportMonth returns the month a task covers: the stored reporting
// month when present, otherwise the due month minus one (January wraps to
// December of the previous year).
func taskReportMonth(t Task) Month {
	if t.ReportingMonth != "" {
		if m, err := ParseMonthLabel(t.ReportingMonth); err == nil {
			return m
		}
	}
	return MonthOf(t.DueDate).Prev()
}

// serviceForCategory is the inverse of the service->categories table.
func serviceForCategory(cat TaskCategory) (ServiceType, bool) {
	for _, svc := range KnownServices {
		for _, c := range serviceCategories[svc] {
			if c == cat {
				return svc, true
			}
		}
	}
	return "", false
}
