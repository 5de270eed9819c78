/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Rules:
    RuleSetDTO, SaveRulesRequest (wrap factory.RuleJSON)

  Clients:
    ClientDTO, UpdateServicesRequest, UpdateReportingRequest

  Automation:
    PreviewRequest, PreviewResponse, PreviewItemDTO
    ExecuteRequest, ExecuteResponse, ExecutionDetailDTO
    SweepResponse, SweepEntryDTO, AutoLinkResponse

VALIDATION:
  Structural validation of rule bodies happens in the factory; handlers
  validate request shape (month labels, frequency values) before calling
  into the engine.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/rule.go: RuleJSON type
*/
package api

import (
	"github.com/yelush19/calmplan/engine"
	"github.com/yelush19/calmplan/factory"
)

// =============================================================================
// RULE TYPES
// =============================================================================

// RuleSetDTO is the stored rule set plus its optimistic-concurrency token.
type RuleSetDTO struct {
	ConfigID string             `json:"config_id"`
	Rules    []factory.RuleJSON `json:"rules"`
}

// SaveRulesRequest replaces the rule set. ConfigID must match the stored
// token or the save is rejected with 409.
type SaveRulesRequest struct {
	ConfigID string             `json:"config_id"`
	Rules    []factory.RuleJSON `json:"rules"`
}

// =============================================================================
// CLIENT TYPES
// =============================================================================

// ClientDTO represents a client in API responses.
type ClientDTO struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Active        bool              `json:"active"`
	BusinessType  string            `json:"business_type"`
	PaymentMethod string            `json:"payment_method"`
	Services      []string          `json:"services"`
	Reporting     map[string]string `json:"reporting"`
}

// UpdateServicesRequest replaces a client's declared service list.
type UpdateServicesRequest struct {
	Services []string `json:"services"`
}

// UpdateServicesResponse reports what the change triggered: tasks swept
// away for removed services and services auto-added by link rules.
type UpdateServicesResponse struct {
	Client      ClientDTO       `json:"client"`
	Invalidated []SweepEntryDTO `json:"invalidated"`
	AutoAdded   []string        `json:"auto_added"`
}

// UpdateReportingRequest replaces a client's filing frequencies.
type UpdateReportingRequest struct {
	Reporting map[string]string `json:"reporting"`
}

// UpdateReportingResponse reports the tasks invalidated by the change.
type UpdateReportingResponse struct {
	Client      ClientDTO       `json:"client"`
	Invalidated []SweepEntryDTO `json:"invalidated"`
}

// =============================================================================
// AUTOMATION TYPES
// =============================================================================

// PreviewRequest starts a scan from the given month up to the current one.
type PreviewRequest struct {
	StartMonth  string `json:"start_month"`            // "MM/YYYY"
	DedupPolicy string `json:"dedup_policy,omitempty"` // optional override
}

// PreviewItemDTO is one uncommitted candidate record.
type PreviewItemDTO struct {
	ID          string `json:"id"`
	RuleID      string `json:"rule_id"`
	RuleName    string `json:"rule_name"`
	ClientID    string `json:"client_id"`
	ClientName  string `json:"client_name"`
	Entity      string `json:"entity"`
	EntityLabel string `json:"entity_label"`
	Description string `json:"description"`
	Checked     bool   `json:"checked"`
}

// PreviewResponse is the outcome of one scan.
type PreviewResponse struct {
	Items           []PreviewItemDTO `json:"items"`
	TotalClients    int              `json:"total_clients"`
	AffectedClients int              `json:"affected_clients"`
}

// ExecuteRequest commits a preview. The scan is rebuilt server-side from
// StartMonth; UncheckedIDs lists the items the operator deselected.
type ExecuteRequest struct {
	StartMonth   string   `json:"start_month"`
	DedupPolicy  string   `json:"dedup_policy,omitempty"`
	UncheckedIDs []string `json:"unchecked_ids,omitempty"`
}

// ExecutionDetailDTO is the per-item outcome of a commit run.
type ExecutionDetailDTO struct {
	ClientName  string `json:"client_name"`
	EntityLabel string `json:"entity_label"`
	Description string `json:"description"`
	Status      string `json:"status"`
	RecordID    string `json:"record_id,omitempty"`
	Message     string `json:"message,omitempty"`
}

// ExecuteResponse summarizes a commit run.
type ExecuteResponse struct {
	RunID    string               `json:"run_id"`
	Clients  int                  `json:"clients"`
	Created  int                  `json:"created"`
	Warnings int                  `json:"warnings"`
	Errors   int                  `json:"errors"`
	Details  []ExecutionDetailDTO `json:"details"`
}

// SweepEntryDTO records one task invalidated by a cleanup sweep.
type SweepEntryDTO struct {
	ClientID   string `json:"client_id"`
	ClientName string `json:"client_name"`
	TaskID     string `json:"task_id"`
	TaskTitle  string `json:"task_title"`
	Category   string `json:"category"`
	Reason     string `json:"reason"`
}

// SweepResponse summarizes a global cleanup sweep.
type SweepResponse struct {
	RunID          string          `json:"run_id"`
	ClientsChecked int             `json:"clients_checked"`
	Invalidated    []SweepEntryDTO `json:"invalidated"`
}

// AutoLinkResponse reports the services added per client by a link pass.
type AutoLinkResponse struct {
	Added map[string][]string `json:"added"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toClientDTO(c engine.Client) ClientDTO {
	services := make([]string, 0, len(c.Services))
	for _, s := range c.Services.List() {
		services = append(services, string(s))
	}
	reporting := make(map[string]string, len(c.Reporting))
	for field, freq := range c.Reporting {
		reporting[string(field)] = string(freq)
	}
	return ClientDTO{
		ID:            string(c.ID),
		Name:          c.Name,
		Active:        c.Active,
		BusinessType:  string(c.BusinessType),
		PaymentMethod: string(c.PaymentMethod),
		Services:      services,
		Reporting:     reporting,
	}
}

func toPreviewItemDTO(item engine.PreviewItem) PreviewItemDTO {
	return PreviewItemDTO{
		ID:          item.ID,
		RuleID:      string(item.RuleID),
		RuleName:    item.RuleName,
		ClientID:    string(item.ClientID),
		ClientName:  item.ClientName,
		Entity:      string(item.Entity),
		EntityLabel: item.EntityLabel,
		Description: item.Description,
		Checked:     item.Checked,
	}
}

func toExecutionDetailDTO(d engine.ExecutionDetail) ExecutionDetailDTO {
	return ExecutionDetailDTO{
		ClientName:  d.ClientName,
		EntityLabel: d.EntityLabel,
		Description: d.Description,
		Status:      string(d.Status),
		RecordID:    string(d.RecordID),
		Message:     d.Message,
	}
}

func toSweepEntryDTO(e engine.SweepEntry) SweepEntryDTO {
	return SweepEntryDTO{
		ClientID:   string(e.ClientID),
		ClientName: e.ClientName,
		TaskID:     string(e.TaskID),
		TaskTitle:  e.TaskTitle,
		Category:   string(e.Category),
		Reason:     e.Reason,
	}
}

func toSweepEntryDTOs(entries []engine.SweepEntry) []SweepEntryDTO {
	out := make([]SweepEntryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, toSweepEntryDTO(e))
	}
	return out
}
