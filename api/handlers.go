/*
handlers.go - HTTP request handlers

PURPOSE:
  Implements the REST API endpoints. Handlers translate HTTP requests
  into engine calls and engine results back into JSON responses.

ENDPOINTS:
  Rules:
    GET  /api/rules                  Current rule set + config token
    PUT  /api/rules                  Replace rule set (409 on stale token)
    POST /api/rules/defaults         Reset to the canned rule set

  Clients:
    GET  /api/clients                List clients
    GET  /api/clients/{id}           Single client
    PUT  /api/clients/{id}/services  Update services, sweep + auto-link
    PUT  /api/clients/{id}/reporting Update frequencies, sweep

  Automation:
    POST /api/automation/preview     Scan without writing
    POST /api/automation/execute     Rebuild scan and commit selection
    POST /api/automation/sweep       Global cleanup sweep
    POST /api/automation/autolink    Apply link rules to all clients

SINGLE-FLIGHT GUARD:
  Preview, execute, sweep and autolink share one busy flag. A second
  invocation while one is running gets 409 rather than a concurrent scan,
  matching the engine's scan-then-commit model.

ERROR MAPPING:
  400  rule/request validation, bad month range
  404  client not found
  409  stale config token, operation already in progress
  500  everything else (scan failures included)

SEE ALSO:
  - dto.go: Request/response types
  - server.go: Route wiring
  - engine: PreviewBuilder, Executor, Cleanup, LinkResolver
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yelush19/calmplan/engine"
	"github.com/yelush19/calmplan/factory"
)

// Store is everything the handlers need from persistence.
type Store interface {
	engine.EntityStore
	engine.RuleStore
}

// AuditStore persists sweep and execution run records. May be nil, in
// which case runs are logged but not persisted.
type AuditStore interface {
	SaveSweepRun(ctx context.Context, run engine.SweepRun) error
	SaveExecutionRun(ctx context.Context, run engine.ExecutionRun) error
}

// Handler holds the API dependencies.
type Handler struct {
	store   Store
	audit   AuditStore
	factory *factory.RuleFactory
	log     logrus.FieldLogger

	// Workers bounds the preview scan pool. Zero means the engine default.
	Workers int

	busy atomic.Bool
}

// NewHandler creates a handler. audit may be nil.
func NewHandler(store Store, audit AuditStore, log logrus.FieldLogger) *Handler {
	return &Handler{
		store:   store,
		audit:   audit,
		factory: factory.NewRuleFactory(),
		log:     log,
	}
}

// =============================================================================
// RULE ENDPOINTS
// =============================================================================

func (h *Handler) GetRules(w http.ResponseWriter, r *http.Request) {
	rules, configID, err := h.store.LoadRules(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load rules", err)
		return
	}
	rjs := make([]factory.RuleJSON, 0, len(rules))
	for _, rule := range rules {
		rjs = append(rjs, factory.ToJSON(rule))
	}
	writeJSON(w, http.StatusOK, RuleSetDTO{ConfigID: configID, Rules: rjs})
}

func (h *Handler) SaveRules(w http.ResponseWriter, r *http.Request) {
	var req SaveRulesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	rules := make([]engine.Rule, 0, len(req.Rules))
	for _, rj := range req.Rules {
		rule, err := h.factory.FromJSON(rj)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid rule", err)
			return
		}
		rules = append(rules, *rule)
	}
	if err := engine.ValidateRules(rules); err != nil {
		writeError(w, http.StatusBadRequest, "invalid rule set", err)
		return
	}

	newID, err := h.store.SaveRules(r.Context(), req.ConfigID, rules)
	if err != nil {
		writeError(w, statusFor(err), "failed to save rules", err)
		return
	}
	h.log.WithField("rules", len(rules)).Info("rule set saved")
	writeJSON(w, http.StatusOK, map[string]string{"config_id": newID})
}

func (h *Handler) ResetDefaultRules(w http.ResponseWriter, r *http.Request) {
	_, configID, err := h.store.LoadRules(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load rules", err)
		return
	}
	newID, err := h.store.SaveRules(r.Context(), configID, factory.DefaultRules())
	if err != nil {
		writeError(w, statusFor(err), "failed to save rules", err)
		return
	}
	h.log.Info("rule set reset to defaults")
	writeJSON(w, http.StatusOK, map[string]string{"config_id": newID})
}

// =============================================================================
// CLIENT ENDPOINTS
// =============================================================================

func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.store.ListClients(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list clients", err)
		return
	}
	dtos := make([]ClientDTO, 0, len(clients))
	for _, c := range clients {
		dtos = append(dtos, toClientDTO(c))
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	client, err := h.store.GetClient(r.Context(), engine.ClientID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, statusFor(err), "failed to load client", err)
		return
	}
	writeJSON(w, http.StatusOK, toClientDTO(*client))
}

// UpdateServices replaces the client's declared services, then runs the
// two follow-ups the change requires: invalidate tasks of removed
// services and auto-add linked services for newly present triggers.
func (h *Handler) UpdateServices(w http.ResponseWriter, r *http.Request) {
	var req UpdateServicesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	services := make([]engine.ServiceType, 0, len(req.Services))
	for _, s := range req.Services {
		services = append(services, engine.ServiceType(s))
	}
	if err := validServices(services); err != nil {
		writeError(w, http.StatusBadRequest, "invalid service", err)
		return
	}

	ctx := r.Context()
	client, err := h.store.GetClient(ctx, engine.ClientID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, statusFor(err), "failed to load client", err)
		return
	}
	oldServices := client.Services
	newServices := engine.NewServiceSet(services...)

	if err := h.store.UpdateClientServices(ctx, client.ID, services); err != nil {
		writeError(w, statusFor(err), "failed to update services", err)
		return
	}

	cleanup := engine.NewCleanup(h.store, h.store, h.log)
	entries, err := cleanup.SweepServiceRemoval(ctx, *client, oldServices, newServices)
	if err != nil {
		writeError(w, statusFor(err), "service sweep failed", err)
		return
	}

	rules, _, err := h.store.LoadRules(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load rules", err)
		return
	}
	updated := *client
	updated.Services = newServices
	resolver := engine.NewLinkResolver(h.store, h.store, h.log)
	added, err := resolver.Apply(ctx, updated, rules)
	if err != nil {
		writeError(w, statusFor(err), "auto-link failed", err)
		return
	}

	final, err := h.store.GetClient(ctx, client.ID)
	if err != nil {
		writeError(w, statusFor(err), "failed to load client", err)
		return
	}
	addedStrs := make([]string, 0, len(added))
	for _, s := range added {
		addedStrs = append(addedStrs, string(s))
	}
	writeJSON(w, http.StatusOK, UpdateServicesResponse{
		Client:      toClientDTO(*final),
		Invalidated: toSweepEntryDTOs(entries),
		AutoAdded:   addedStrs,
	})
}

// UpdateReporting replaces the client's filing frequencies and invalidates
// tasks whose report month is no longer a filing month.
func (h *Handler) UpdateReporting(w http.ResponseWriter, r *http.Request) {
	var req UpdateReportingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	reporting := make(map[engine.FrequencyField]engine.Frequency, len(req.Reporting))
	for field, freq := range req.Reporting {
		if err := validFrequency(engine.FrequencyField(field), engine.Frequency(freq)); err != nil {
			writeError(w, http.StatusBadRequest, "invalid frequency", err)
			return
		}
		reporting[engine.FrequencyField(field)] = engine.Frequency(freq)
	}

	ctx := r.Context()
	client, err := h.store.GetClient(ctx, engine.ClientID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, statusFor(err), "failed to load client", err)
		return
	}
	oldReporting := client.Reporting

	if err := h.store.UpdateClientReporting(ctx, client.ID, reporting); err != nil {
		writeError(w, statusFor(err), "failed to update reporting", err)
		return
	}

	cleanup := engine.NewCleanup(h.store, h.store, h.log)
	entries, err := cleanup.SweepFrequencyChange(ctx, *client, oldReporting, reporting)
	if err != nil {
		writeError(w, statusFor(err), "frequency sweep failed", err)
		return
	}

	final, err := h.store.GetClient(ctx, client.ID)
	if err != nil {
		writeError(w, statusFor(err), "failed to load client", err)
		return
	}
	writeJSON(w, http.StatusOK, UpdateReportingResponse{
		Client:      toClientDTO(*final),
		Invalidated: toSweepEntryDTOs(entries),
	})
}

// =============================================================================
// AUTOMATION ENDPOINTS
// =============================================================================

func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	if !h.busy.CompareAndSwap(false, true) {
		writeError(w, http.StatusConflict, "operation in progress", engine.ErrOperationInProgress)
		return
	}
	defer h.busy.Store(false)

	var req PreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	result, err := h.runPreview(r.Context(), req.StartMonth, req.DedupPolicy)
	if err != nil {
		writeError(w, statusFor(err), "preview failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toPreviewResponse(result))
}

func (h *Handler) Execute(w http.ResponseWriter, r *http.Request) {
	if !h.busy.CompareAndSwap(false, true) {
		writeError(w, http.StatusConflict, "operation in progress", engine.ErrOperationInProgress)
		return
	}
	defer h.busy.Store(false)

	var req ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	ctx := r.Context()
	result, err := h.runPreview(ctx, req.StartMonth, req.DedupPolicy)
	if err != nil {
		writeError(w, statusFor(err), "preview failed", err)
		return
	}
	unchecked := make(map[string]bool, len(req.UncheckedIDs))
	for _, id := range req.UncheckedIDs {
		unchecked[id] = true
	}
	items := make([]engine.PreviewItem, 0, len(result.Items))
	for _, item := range result.Items {
		if unchecked[item.ID] {
			item.Checked = false
		}
		items = append(items, item)
	}

	runID := uuid.NewString()
	startedAt := time.Now()
	executor := engine.NewExecutor(h.store, h.log)
	execResult, err := executor.Execute(ctx, items)
	if err != nil {
		writeError(w, statusFor(err), "execution aborted", err)
		return
	}

	if h.audit != nil {
		completed := time.Now()
		run := engine.ExecutionRun{
			ID:          runID,
			StartedAt:   startedAt,
			CompletedAt: &completed,
			Clients:     execResult.Clients,
			Created:     execResult.Created,
			Warnings:    execResult.Warnings,
			Errors:      execResult.Errors,
			Details:     execResult.Details,
		}
		if err := h.audit.SaveExecutionRun(ctx, run); err != nil {
			h.log.WithError(err).Warn("failed to persist execution run")
		}
	}

	details := make([]ExecutionDetailDTO, 0, len(execResult.Details))
	for _, d := range execResult.Details {
		details = append(details, toExecutionDetailDTO(d))
	}
	writeJSON(w, http.StatusOK, ExecuteResponse{
		RunID:    runID,
		Clients:  execResult.Clients,
		Created:  execResult.Created,
		Warnings: execResult.Warnings,
		Errors:   execResult.Errors,
		Details:  details,
	})
}

func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	if !h.busy.CompareAndSwap(false, true) {
		writeError(w, http.StatusConflict, "operation in progress", engine.ErrOperationInProgress)
		return
	}
	defer h.busy.Store(false)

	ctx := r.Context()
	runID := uuid.NewString()
	startedAt := time.Now()

	cleanup := engine.NewCleanup(h.store, h.store, h.log)
	report, err := cleanup.SweepAll(ctx)
	if err != nil {
		writeError(w, statusFor(err), "sweep failed", err)
		return
	}

	if h.audit != nil {
		completed := time.Now()
		run := engine.SweepRun{
			ID:             runID,
			StartedAt:      startedAt,
			CompletedAt:    &completed,
			ClientsChecked: report.ClientsChecked,
			Invalidated:    len(report.Invalidated),
			Details:        report.Invalidated,
		}
		if err := h.audit.SaveSweepRun(ctx, run); err != nil {
			h.log.WithError(err).Warn("failed to persist sweep run")
		}
	}

	writeJSON(w, http.StatusOK, SweepResponse{
		RunID:          runID,
		ClientsChecked: report.ClientsChecked,
		Invalidated:    toSweepEntryDTOs(report.Invalidated),
	})
}

func (h *Handler) AutoLink(w http.ResponseWriter, r *http.Request) {
	if !h.busy.CompareAndSwap(false, true) {
		writeError(w, http.StatusConflict, "operation in progress", engine.ErrOperationInProgress)
		return
	}
	defer h.busy.Store(false)

	resolver := engine.NewLinkResolver(h.store, h.store, h.log)
	added, err := resolver.ApplyAll(r.Context())
	if err != nil {
		writeError(w, statusFor(err), "auto-link failed", err)
		return
	}
	resp := AutoLinkResponse{Added: make(map[string][]string, len(added))}
	for clientID, services := range added {
		strs := make([]string, 0, len(services))
		for _, s := range services {
			strs = append(strs, string(s))
		}
		resp.Added[string(clientID)] = strs
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) runPreview(ctx context.Context, startMonth, dedup string) (*engine.PreviewResult, error) {
	start, err := engine.ParseMonthLabel(startMonth)
	if err != nil {
		return nil, fmt.Errorf("%w: start_month %q: %v", engine.ErrInvalidRange, startMonth, err)
	}

	builder := engine.NewPreviewBuilder(h.store, h.store, h.log)
	if h.Workers > 0 {
		builder.Workers = h.Workers
	}
	switch engine.DedupPolicy(dedup) {
	case "":
		// engine default
	case engine.DedupAnyExistsSuppressesAll, engine.DedupPerCombination:
		builder.Dedup = engine.DedupPolicy(dedup)
	default:
		return nil, fmt.Errorf("%w: unknown dedup policy %q", engine.ErrRuleInvalid, dedup)
	}
	return builder.Build(ctx, start, time.Now())
}

func toPreviewResponse(result *engine.PreviewResult) PreviewResponse {
	items := make([]PreviewItemDTO, 0, len(result.Items))
	for _, item := range result.Items {
		items = append(items, toPreviewItemDTO(item))
	}
	return PreviewResponse{
		Items:           items,
		TotalClients:    result.TotalClients,
		AffectedClients: result.AffectedClients,
	}
}

func validServices(services []engine.ServiceType) error {
	for _, s := range services {
		known := false
		for _, k := range engine.KnownServices {
			if s == k {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("unknown service type %q", s)
		}
	}
	return nil
}

func validFrequency(field engine.FrequencyField, freq engine.Frequency) error {
	switch field {
	case engine.FieldVATFrequency, engine.FieldAdvancesFrequency,
		engine.FieldPayrollFrequency, engine.FieldSuppliersFrequency:
	default:
		return fmt.Errorf("unknown frequency field %q", field)
	}
	switch freq {
	case engine.FrequencyMonthly, engine.FrequencyBimonthly, engine.FrequencyQuarterly,
		engine.FrequencySemiAnnual, engine.FrequencyNotApplicable:
	default:
		return fmt.Errorf("unknown frequency %q", freq)
	}
	return nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrConfigConflict), errors.Is(err, engine.ErrOperationInProgress):
		return http.StatusConflict
	case errors.Is(err, engine.ErrClientNotFound):
		return http.StatusNotFound
	case engine.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
