/*
execute.go - Commit of checked preview items

PURPOSE:
  Turns the checked subset of a preview into persisted records, one create
  call per item, and reports the outcome per item.

PARTIAL-FAILURE SEMANTICS:
  A single failed create never aborts the batch. Per item:
    - create returns an ID          -> success
    - create returns, but no ID     -> warning (cannot be verified)
    - create returns an error       -> error, continue with the next item

  The aggregated ExecutionResult always comes back with explicit counts,
  even when every item failed; Execute itself only errors on cancellation.

ORDERING:
  Items are committed sequentially in their preview order. Creation bursts
  and nondeterministic audit logs are worse than a slow batch here.
*/
package engine

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// =============================================================================
// EXECUTOR
// =============================================================================

type Executor struct {
	Store RecordStore
	Log   logrus.FieldLogger
}

func NewExecutor(store RecordStore, log logrus.FieldLogger) *Executor {
	return &Executor{Store: store, Log: log}
}

// Execute commits every checked item and aggregates a per-item report.
// The context is honored between items; on cancellation the partial result
// is returned along with the context error.
func (e *Executor) Execute(ctx context.Context, items []PreviewItem) (*ExecutionResult, error) {
	result := &ExecutionResult{}
	clients := make(map[ClientID]bool)

	for _, item := range items {
		if !item.Checked {
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
		clients[item.ClientID] = true

		detail := ExecutionDetail{
			ClientName:  item.ClientName,
			EntityLabel: item.EntityLabel,
			Description: item.Description,
		}

		id, err := e.createRecord(ctx, item)
		switch {
		case err != nil:
			detail.Status = ItemError
			detail.Message = err.Error()
			result.Errors++
			e.Log.WithFields(logrus.Fields{
				"client": item.ClientID,
				"entity": item.Entity,
				"item":   item.ID,
			}).WithError(err).Warn("item creation failed")
		case id == "":
			detail.Status = ItemWarning
			detail.Message = "created without a verifiable record id"
			result.Warnings++
		default:
			detail.Status = ItemSuccess
			detail.RecordID = id
			result.Created++
		}
		result.Details = append(result.Details, detail)
	}

	result.Clients = len(clients)
	e.Log.WithFields(logrus.Fields{
		"clients":  result.Clients,
		"created":  result.Created,
		"warnings": result.Warnings,
		"errors":   result.Errors,
	}).Info("execution complete")
	return result, nil
}

// createRecord dispatches on the item's entity. Exactly one payload field
// is set by the preview builder.
func (e *Executor) createRecord(ctx context.Context, item PreviewItem) (RecordID, error) {
	switch {
	case item.Create.Report != nil:
		return e.Store.CreateReport(ctx, *item.Create.Report)
	case item.Create.BalanceSheet != nil:
		return e.Store.CreateBalanceSheet(ctx, *item.Create.BalanceSheet)
	case item.Create.Reconciliation != nil:
		return e.Store.CreateReconciliation(ctx, *item.Create.Reconciliation)
	case item.Create.Task != nil:
		return e.Store.CreateTask(ctx, *item.Create.Task)
	default:
		return "", fmt.Errorf("preview item %s carries no create payload", item.ID)
	}
}
