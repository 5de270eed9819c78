/*
preview.go - Candidate generation (read-only scan)

PURPOSE:
  Orchestrates matcher, month expansion, frequency resolution, due-date
  calculation and existence checking into a list of uncommitted candidate
  records. The scan performs no writes; running it twice yields identical
  items and no side effects.

EXPANSION PER RULE TARGET:
  periodic_report          one candidate per configured (type, period)
                           combination, for the scan's start year
  balance_sheet            one candidate for the scan's start year
  account_reconciliation   one candidate per bank account per month
  task                     one candidate per category per valid month
                           (per cycle, for cycle-based categories)

CONCURRENCY:
  Clients are scanned by a bounded worker pool (Workers, default 1 for
  strictly sequential behavior). Results are collected per client and
  reassembled in the original client enumeration order, so the output is
  reproducible regardless of pool size. The context is honored between
  clients; a store failure anywhere aborts the whole scan with a ScanError.

RACE NOTE:
  The existence check and the later create in the executor are not atomic.
  Two overlapping scan+execute runs can double-create records; the single
  operator workflow accepts this, and the API layer additionally guards
  against re-entrant runs.
*/
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// =============================================================================
// PREVIEW BUILDER
// =============================================================================

type PreviewBuilder struct {
	Store     EntityStore
	Rules     RuleStore
	Overrides DueDayOverrides
	Dedup     DedupPolicy
	Workers   int
	Log       logrus.FieldLogger
}

// NewPreviewBuilder returns a builder with the faithful defaults: statutory
// due-day overrides, coarse report dedup, sequential scanning.
func NewPreviewBuilder(store EntityStore, rules RuleStore, log logrus.FieldLogger) *PreviewBuilder {
	return &PreviewBuilder{
		Store:     store,
		Rules:     rules,
		Overrides: StatutoryDueDays{},
		Dedup:     DedupAnyExistsSuppressesAll,
		Workers:   1,
		Log:       log,
	}
}

// Build scans every active client and returns the candidate records a
// commit would create for the months from start through now.
func (b *PreviewBuilder) Build(ctx context.Context, start Month, now time.Time) (*PreviewResult, error) {
	months, err := MonthRange(start, now)
	if err != nil {
		return nil, err
	}

	rules, _, err := b.Rules.LoadRules(ctx)
	if err != nil {
		return nil, &ScanError{Stage: "load rules", Err: err}
	}

	clients, err := b.Store.ListClients(ctx)
	if err != nil {
		return nil, &ScanError{Stage: "list clients", Err: err}
	}
	var active []Client
	for _, c := range clients {
		if c.Active {
			active = append(active, c)
		}
	}

	existing, err := LoadExisting(ctx, b.Store)
	if err != nil {
		return nil, err
	}

	perClient, err := b.scanClients(ctx, active, rules, months, existing)
	if err != nil {
		return nil, err
	}

	result := &PreviewResult{TotalClients: len(active)}
	affected := make(map[ClientID]bool)
	for _, items := range perClient {
		for _, item := range items {
			result.Items = append(result.Items, item)
			affected[item.ClientID] = true
		}
	}
	result.AffectedClients = len(affected)

	b.Log.WithFields(logrus.Fields{
		"months":           len(months),
		"total_clients":    result.TotalClients,
		"affected_clients": result.AffectedClients,
		"items":            len(result.Items),
	}).Info("preview scan complete")
	return result, nil
}

// scanClients runs the per-client expansion through the worker pool and
// returns the items grouped by the original client enumeration order.
func (b *PreviewBuilder) scanClients(ctx context.Context, clients []Client, rules []Rule, months []Month, existing *ExistingRecords) ([][]PreviewItem, error) {
	workers := b.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(clients) {
		workers = len(clients)
	}

	scanCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	indexes := make(chan int)
	results := make([][]PreviewItem, len(clients))
	errs := make([]error, len(clients))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				items, err := b.scanClient(scanCtx, clients[i], rules, months, existing)
				if err != nil {
					errs[i] = err
					cancel()
					return
				}
				results[i] = items
			}
		}()
	}

feed:
	for i := range clients {
		select {
		case indexes <- i:
		case <-scanCtx.Done():
			break feed
		}
	}
	close(indexes)
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// scanClient expands every applicable rule for one client.
func (b *PreviewBuilder) scanClient(ctx context.Context, client Client, rules []Rule, months []Month, existing *ExistingRecords) ([]PreviewItem, error) {
	matched := MatchAutoCreate(rules, client)
	if len(matched) == 0 {
		return nil, nil
	}

	var (
		items    []PreviewItem
		seen     = make(map[string]bool)
		accounts []ClientAccount
		loaded   bool
	)
	emit := func(item PreviewItem) {
		if seen[item.ID] {
			return
		}
		seen[item.ID] = true
		item.Checked = true
		item.EntityLabel = item.Entity.EntityLabel()
		item.ClientID = client.ID
		item.ClientName = client.Name
		items = append(items, item)
	}

	for _, rule := range matched {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		spec := rule.AutoCreate
		year := months[0].Year

		switch spec.Target {
		case TargetPeriodicReport:
			b.expandReports(rule, client, year, existing, emit)

		case TargetBalanceSheet:
			b.expandBalanceSheet(rule, client, year, existing, emit)

		case TargetReconciliation:
			if !loaded {
				var err error
				accounts, err = b.Store.ListAccounts(ctx, client.ID)
				if err != nil {
					return nil, &ScanError{Stage: "list accounts", Err: err}
				}
				loaded = true
			}
			b.expandReconciliations(rule, client, accounts, months, existing, emit)

		case TargetTask:
			b.expandTasks(rule, client, months, existing, emit)
		}
	}
	return items, nil
}

func (b *PreviewBuilder) expandReports(rule Rule, client Client, year int, existing *ExistingRecords, emit func(PreviewItem)) {
	for _, rt := range reportTypeOrder(rule.AutoCreate.ReportTypes) {
		for _, period := range rule.AutoCreate.ReportTypes[rt] {
			if existing.ReportExists(b.Dedup, client.ID, year, rt, period) {
				continue
			}
			emit(PreviewItem{
				ID:          fmt.Sprintf("%s_report_%d_%s_%s", client.ID, year, rt, period),
				RuleID:      rule.ID,
				RuleName:    rule.Name,
				Entity:      TargetPeriodicReport,
				Description: fmt.Sprintf("דוח תקופתי %s %s לשנת %d", rt, period, year),
				Create: CreateData{Report: &PeriodicReport{
					ClientID:   client.ID,
					ReportYear: year,
					ReportType: rt,
					Period:     period,
					TargetDate: NewMonth(year, time.December).End(),
					Status:     StatusNotStarted,
				}},
			})
		}
	}
}

func (b *PreviewBuilder) expandBalanceSheet(rule Rule, client Client, year int, existing *ExistingRecords, emit func(PreviewItem)) {
	if existing.BalanceSheetExists(client.ID, year) {
		return
	}
	emit(PreviewItem{
		ID:          fmt.Sprintf("%s_balance_%d", client.ID, year),
		RuleID:      rule.ID,
		RuleName:    rule.Name,
		Entity:      TargetBalanceSheet,
		Description: fmt.Sprintf("מאזן לשנת מס %d", year),
		Create: CreateData{BalanceSheet: &BalanceSheet{
			ClientID:     client.ID,
			TaxYear:      year,
			CurrentStage: string(StatusNotStarted),
			TargetDate:   NewMonth(year+1, time.May).End(),
		}},
	})
}

func (b *PreviewBuilder) expandReconciliations(rule Rule, client Client, accounts []ClientAccount, months []Month, existing *ExistingRecords, emit func(PreviewItem)) {
	for _, acct := range accounts {
		for _, m := range months {
			if existing.ReconciliationExists(client.ID, acct.ID, m.Label()) {
				continue
			}
			desc := fmt.Sprintf("התאמת בנק %s %s לחודש %s", acct.BankName, acct.AccountNumber, m.Label())
			if !acct.Balance.IsZero() {
				desc += fmt.Sprintf(" (יתרה %s)", acct.Balance.StringFixed(2))
			}
			emit(PreviewItem{
				ID:          fmt.Sprintf("%s_recon_%s_%d_%d", client.ID, acct.ID, m.Year, int(m.M)),
				RuleID:      rule.ID,
				RuleName:    rule.Name,
				Entity:      TargetReconciliation,
				Description: desc,
				Create: CreateData{Reconciliation: &AccountReconciliation{
					ClientID:  client.ID,
					AccountID: acct.ID,
					Period:    m.Label(),
					DueDate:   DueDate(m, b.Overrides, CategoryBankRecon, client.PaymentMethod, nil),
					Status:    StatusNotStarted,
				}},
			})
		}
	}
}

func (b *PreviewBuilder) expandTasks(rule Rule, client Client, months []Month, existing *ExistingRecords, emit func(PreviewItem)) {
	spec := rule.AutoCreate
	for _, cat := range spec.TaskCategories {
		for _, m := range months {
			if !MonthValidFor(client, cat, m) {
				continue
			}

			cycles := 1
			if CycleBased(cat) && spec.CyclesPerMonth > 1 {
				cycles = spec.CyclesPerMonth
			}
			for cycle := 1; cycle <= cycles; cycle++ {
				if existing.TaskExists(client.ID, cat, m.Label(), cycle) {
					continue
				}
				id := fmt.Sprintf("%s_task_%s_%d_%d", client.ID, cat, m.Year, int(m.M))
				title := fmt.Sprintf("%s לחודש %s", cat, m.Label())
				if cycles > 1 {
					id = fmt.Sprintf("%s_%d", id, cycle)
					title = fmt.Sprintf("%s (סבב %d)", title, cycle)
				}
				emit(PreviewItem{
					ID:          id,
					RuleID:      rule.ID,
					RuleName:    rule.Name,
					Entity:      TargetTask,
					Description: title,
					Create: CreateData{Task: &Task{
						ClientID:       client.ID,
						Category:       cat,
						Title:          title,
						DueDate:        DueDate(m, b.Overrides, cat, client.PaymentMethod, spec.DueDayOfMonth),
						Status:         StatusNotStarted,
						ReportingMonth: m.Label(),
						Recurring:      true,
						Cycle:          cycle,
					}},
				})
			}
		}
	}
}

// reportTypeOrder returns map keys in a stable order so two scans of the
// same data produce identically ordered items.
func reportTypeOrder(types map[ReportType][]string) []ReportType {
	known := []ReportType{ReportAnnual, ReportVATSummary, ReportWithholding}
	var out []ReportType
	for _, rt := range known {
		if _, ok := types[rt]; ok {
			out = append(out, rt)
		}
	}
	var rest []string
	for rt := range types {
		if !containsReportType(known, rt) {
			rest = append(rest, string(rt))
		}
	}
	sort.Strings(rest)
	for _, rt := range rest {
		out = append(out, ReportType(rt))
	}
	return out
}

func containsReportType(list []ReportType, rt ReportType) bool {
	for _, x := range list {
		if x == rt {
			return true
		}
	}
	return false
}
