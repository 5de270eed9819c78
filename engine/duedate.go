package engine

import "time"

// =============================================================================
// DUE-DATE CALCULATION
// =============================================================================

// DueDayOverrides supplies statutory per-category due days, possibly
// depending on how the client pays (direct debit filers get extra days).
// It is an external collaborator; the engine ships a fixed default.
type DueDayOverrides interface {
	// OverrideDay returns the statutory day of month for the category,
	// or ok=false when the rule's own configuration should apply.
	OverrideDay(cat TaskCategory, payment PaymentMethod) (day int, ok bool)
}

// DueDate computes the concrete due date of a record generated for month m.
// Priority: statutory override, then the rule's due day, then the month's
// last day. The chosen day is clamped to the month length - a due date
// never rolls into the next month.
func DueDate(m Month, overrides DueDayOverrides, cat TaskCategory, payment PaymentMethod, ruleDay *int) time.Time {
	day := m.Days()
	if ruleDay != nil {
		day = *ruleDay
	}
	if overrides != nil {
		if d, ok := overrides.OverrideDay(cat, payment); ok {
			day = d
		}
	}
	if max := m.Days(); day > max {
		day = max
	}
	if day < 1 {
		day = 1
	}
	return time.Date(m.Year, m.M, day, 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// DEFAULT STATUTORY OVERRIDES
// =============================================================================

// StatutoryDueDays is the built-in override table: VAT and income-tax
// filings are due on the 15th, pushed to the 19th for direct-debit filers.
type StatutoryDueDays struct{}

func (StatutoryDueDays) OverrideDay(cat TaskCategory, payment PaymentMethod) (int, bool) {
	switch cat {
	case CategoryVAT, CategoryAdvances, CategoryDeductions:
		if payment == PaymentDirectDebit {
			return 19, true
		}
		return 15, true
	default:
		return 0, false
	}
}

// NoOverrides disables statutory overrides; the rule's configuration wins.
type NoOverrides struct{}

func (NoOverrides) OverrideDay(TaskCategory, PaymentMethod) (int, bool) { return 0, false }
