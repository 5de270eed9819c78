/*
frequency.go - Reporting frequency resolution

PURPOSE:
  Maps a task category to the client's reporting-frequency setting and
  decides whether a given calendar month is a filing month for that
  frequency. Also holds the fixed category/service lookup tables.

FILING CONVENTIONS (fixed, not configurable):
  monthly      every month
  bimonthly    Jan, Mar, May, Jul, Sep, Nov (odd months)
  quarterly    Mar, Jun, Sep, Dec
  semi_annual  Jun, Dec
  not_applicable  never - the category is skipped for the client

TABLES:
  The category->frequency-field and service->categories maps are typed
  constant tables over the closed enumerations in types.go. A category
  missing from categoryFrequencyFields has no frequency setting and is
  treated as monthly (bank reconciliations).

SEE ALSO:
  - preview.go: Skips months the resolver rejects
  - cleanup.go: Re-validates existing tasks after a frequency change
*/
package engine

import "time"

// =============================================================================
// FREQUENCY - A client's filing cadence for one obligation
// =============================================================================

type Frequency string

const (
	FrequencyMonthly       Frequency = "monthly"
	FrequencyBimonthly     Frequency = "bimonthly"
	FrequencyQuarterly     Frequency = "quarterly"
	FrequencySemiAnnual    Frequency = "semi_annual"
	FrequencyNotApplicable Frequency = "not_applicable"
)

// FrequencyField names a slot in a client's reporting setup.
type FrequencyField string

const (
	FieldVATFrequency       FrequencyField = "vat_reporting_frequency"
	FieldAdvancesFrequency  FrequencyField = "advances_reporting_frequency"
	FieldPayrollFrequency   FrequencyField = "payroll_reporting_frequency"
	FieldSuppliersFrequency FrequencyField = "suppliers_reporting_frequency"
)

// Allows reports whether m is a filing month for the frequency.
func (f Frequency) Allows(m time.Month) bool {
	switch f {
	case FrequencyMonthly:
		return true
	case FrequencyBimonthly:
		return int(m)%2 == 1
	case FrequencyQuarterly:
		return int(m)%3 == 0
	case FrequencySemiAnnual:
		return m == time.June || m == time.December
	case FrequencyNotApplicable:
		return false
	default:
		return false
	}
}

// ValidMonths returns the filing months of a year for the frequency,
// in calendar order.
func (f Frequency) ValidMonths() []time.Month {
	var out []time.Month
	for m := time.January; m <= time.December; m++ {
		if f.Allows(m) {
			out = append(out, m)
		}
	}
	return out
}

// =============================================================================
// FIXED LOOKUP TABLES
// =============================================================================

// categoryFrequencyFields maps a task category to the reporting field that
// governs it. Categories absent here (bank reconciliations) have no
// configurable cadence and run monthly.
var categoryFrequencyFields = map[TaskCategory]FrequencyField{
	CategoryVAT:            FieldVATFrequency,
	CategoryAdvances:       FieldAdvancesFrequency,
	CategoryWages:          FieldPayrollFrequency,
	CategorySocialSecurity: FieldPayrollFrequency,
	CategoryDeductions:     FieldPayrollFrequency,
	CategorySupplierPay:    FieldSuppliersFrequency,
}

// FrequencyFieldFor returns the reporting field governing a category.
func FrequencyFieldFor(cat TaskCategory) (FrequencyField, bool) {
	f, ok := categoryFrequencyFields[cat]
	return f, ok
}

// serviceCategories maps a service to the task categories it generates.
// Used by cleanup sweeps to find tasks orphaned by a service removal.
var serviceCategories = map[ServiceType][]TaskCategory{
	ServicePayroll:        {CategoryWages},
	ServiceSocialSecurity: {CategorySocialSecurity},
	ServiceDeductions:     {CategoryDeductions},
	ServiceVAT:            {CategoryVAT},
	ServiceAdvances:       {CategoryAdvances},
	ServiceBookkeeping:    {CategoryBankRecon, CategorySupplierPay},
}

// CategoriesForService returns the task categories a service generates.
func CategoriesForService(svc ServiceType) []TaskCategory {
	return serviceCategories[svc]
}

// cycleBasedCategories marks categories that run as multiple sub-batches
// within a single month (e.g. supplier payment runs).
var cycleBasedCategories = map[TaskCategory]bool{
	CategorySupplierPay: true,
}

// CycleBased reports whether a category runs in cycles within a month.
func CycleBased(cat TaskCategory) bool { return cycleBasedCategories[cat] }

// =============================================================================
// RESOLVER
// =============================================================================

// ClientFrequency resolves the filing frequency of a category for a client.
// Categories without a frequency field are monthly. A client without the
// field set has no filing obligation for that category.
func ClientFrequency(client Client, cat TaskCategory) Frequency {
	field, ok := categoryFrequencyFields[cat]
	if !ok {
		return FrequencyMonthly
	}
	freq, ok := client.Reporting[field]
	if !ok {
		return FrequencyNotApplicable
	}
	return freq
}

// MonthValidFor reports whether the category is due in the given month for
// this client.
func MonthValidFor(client Client, cat TaskCategory, m Month) bool {
	return ClientFrequency(client, cat).Allows(m.M)
}
