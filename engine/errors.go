/*
errors.go - Centralized error types for the rule engine

PURPOSE:
  All error types in one place for consistency and discoverability.

ERROR CATEGORIES:
  1. Scan errors       - Failure enumerating clients or existing records.
     These abort a whole preview/sweep; nothing is partially returned.
  2. Validation errors - Malformed rules, rejected at save time.
  3. Item errors       - Failure creating one candidate record. These are
     NOT returned as errors: the executor records them per item in the
     ExecutionResult and continues with the batch.

USAGE:
  if engine.IsScanError(err) {
      // whole scan failed, nothing was returned
  }

SEE ALSO:
  - preview.go: Wraps store failures in ScanError
  - factory/rule.go: Produces RuleValidationError at parse time
*/
package engine

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrScanFailed is returned when enumerating clients or existing
	// records fails. A scan error aborts the whole operation.
	ErrScanFailed = errors.New("scan failed")

	// ErrRuleInvalid is returned when a rule definition is malformed.
	ErrRuleInvalid = errors.New("invalid rule")

	// ErrConfigConflict is returned when saving rules against a stale
	// configuration version.
	ErrConfigConflict = errors.New("rule configuration modified concurrently")

	// ErrClientNotFound is returned when a referenced client doesn't exist.
	ErrClientNotFound = errors.New("client not found")

	// ErrInvalidRange is returned for a missing or future scan start date.
	ErrInvalidRange = errors.New("invalid month range")

	// ErrOperationInProgress is returned on re-entrant invocation of a
	// long-running operation. There is no mid-batch cancellation beyond
	// the context; the guard only prevents overlapping runs.
	ErrOperationInProgress = errors.New("operation already in progress")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ScanError wraps a failure while loading the data a scan depends on.
type ScanError struct {
	Stage string // e.g. "list clients", "list tasks"
	Err   error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan failed at %s: %v", e.Stage, e.Err)
}

func (e *ScanError) Unwrap() error { return ErrScanFailed }

// RuleValidationError describes why a rule was rejected at save time.
type RuleValidationError struct {
	RuleID RuleID
	Field  string
	Reason string
}

func (e *RuleValidationError) Error() string {
	return fmt.Sprintf("rule %s: %s: %s", e.RuleID, e.Field, e.Reason)
}

func (e *RuleValidationError) Unwrap() error { return ErrRuleInvalid }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsScanError reports whether the whole scan was aborted.
func IsScanError(err error) bool { return errors.Is(err, ErrScanFailed) }

// IsValidation reports whether the error is a rule-authoring problem.
func IsValidation(err error) bool { return errors.Is(err, ErrRuleInvalid) }

// IsClientError reports whether the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrRuleInvalid) ||
		errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrConfigConflict)
}
