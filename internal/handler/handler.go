package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"fleetwall/internal/codec"
	"fleetwall/internal/deploy"
	"fleetwall/internal/domain"
	"fleetwall/internal/service"
)

// maxBodyBytes bounds import and parse request bodies
const maxBodyBytes = 10 << 20

const defaultReportLimit = 50

// ProvisioningHandler handles definition, deployment and report requests
type ProvisioningHandler struct {
	svc *service.ProvisioningService
}

// NewProvisioningHandler creates a new provisioning handler
func NewProvisioningHandler(svc *service.ProvisioningService) *ProvisioningHandler {
	return &ProvisioningHandler{svc: svc}
}

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// CommandsResponse is the dry-run view of a group deployment
type CommandsResponse struct {
	GroupID    string                    `json:"group_id"`
	Devices    int                       `json:"devices"`
	Operations []domain.Operation        `json:"operations"`
	Rejected   []*domain.ValidationError `json:"rejected,omitempty"`
}

// ImportResponse summarizes an accepted import
type ImportResponse struct {
	AddressLists int `json:"address_lists"`
	Rules        int `json:"rules"`
	Groups       int `json:"groups"`
}

// Routes registers every endpoint on mux
func (h *ProvisioningHandler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/address-lists", h.ListAddressLists)
	mux.HandleFunc("GET /api/rules", h.ListRules)

	mux.HandleFunc("GET /api/groups", h.ListGroups)
	mux.HandleFunc("GET /api/groups/{id}", h.GetGroup)
	mux.HandleFunc("GET /api/groups/{id}/commands", h.GetCommands)
	mux.HandleFunc("POST /api/groups/{id}/deploy", h.DeployGroup)
	mux.HandleFunc("GET /api/groups/{id}/devices/{device}/interfaces", h.GetInterfaces)

	mux.HandleFunc("GET /api/reports", h.ListReports)
	mux.HandleFunc("GET /api/reports/{id}", h.GetReport)

	mux.HandleFunc("POST /api/import/yaml", h.importWith(codec.NewYAMLCodec()))
	mux.HandleFunc("POST /api/import/json", h.importWith(codec.NewJSONCodec()))
	mux.HandleFunc("POST /api/import/ansible-inventory", h.ImportAnsibleInventory)
	mux.HandleFunc("GET /api/export/ansible-inventory", h.ExportAnsibleInventory)

	mux.HandleFunc("POST /api/parse", h.ParseOutput)
}

// ListAddressLists returns all address lists
func (h *ProvisioningHandler) ListAddressLists(w http.ResponseWriter, r *http.Request) {
	lists, err := h.svc.ListAddressLists(r.Context())
	if err != nil {
		h.writeServiceError(w, "Failed to list address lists", err)
		return
	}
	h.writeJSON(w, nonNil(lists), http.StatusOK)
}

// ListRules returns all rules, optionally filtered by ?group=
func (h *ProvisioningHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.svc.ListRules(r.Context(), r.URL.Query().Get("group"))
	if err != nil {
		h.writeServiceError(w, "Failed to list rules", err)
		return
	}
	h.writeJSON(w, nonNil(rules), http.StatusOK)
}

// ListGroups returns all device groups
func (h *ProvisioningHandler) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.svc.ListGroups(r.Context())
	if err != nil {
		h.writeServiceError(w, "Failed to list groups", err)
		return
	}
	h.writeJSON(w, nonNil(groups), http.StatusOK)
}

// GetGroup returns a single device group
func (h *ProvisioningHandler) GetGroup(w http.ResponseWriter, r *http.Request) {
	group, err := h.svc.GetGroup(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, "Failed to get group", err)
		return
	}
	h.writeJSON(w, group, http.StatusOK)
}

// GetCommands returns the commands a deployment would send, without
// contacting any device
func (h *ProvisioningHandler) GetCommands(w http.ResponseWriter, r *http.Request) {
	plan, group, err := h.svc.PlanGroup(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, "Failed to plan group", err)
		return
	}
	h.writeJSON(w, commandsResponse(plan, group), http.StatusOK)
}

func commandsResponse(plan *deploy.Plan, group *domain.DeviceGroup) CommandsResponse {
	return CommandsResponse{
		GroupID:    group.ID,
		Devices:    len(group.Devices),
		Operations: nonNil(plan.Operations),
		Rejected:   plan.Rejected,
	}
}

// DeployGroup deploys a group and returns the report in ?format=
func (h *ProvisioningHandler) DeployGroup(w http.ResponseWriter, r *http.Request) {
	exporter, err := codec.ExporterFor(r.URL.Query().Get("format"))
	if err != nil {
		h.writeError(w, "Invalid format", err.Error(), http.StatusBadRequest)
		return
	}

	// a client hanging up must not abandon devices mid-sequence
	ctx := context.WithoutCancel(r.Context())

	report, err := h.svc.DeployGroup(ctx, r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, "Failed to deploy group", err)
		return
	}
	h.writeReport(w, exporter, report)
}

// GetInterfaces runs the interface listing on one device and returns the
// parsed records
func (h *ProvisioningHandler) GetInterfaces(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.InspectInterfaces(r.Context(), r.PathValue("id"), r.PathValue("device"))
	if err != nil {
		h.writeServiceError(w, "Failed to inspect interfaces", err)
		return
	}
	h.writeJSON(w, result, http.StatusOK)
}

// ListReports returns report headers, newest first
func (h *ProvisioningHandler) ListReports(w http.ResponseWriter, r *http.Request) {
	limit := defaultReportLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			h.writeError(w, "Invalid limit", "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	reports, err := h.svc.ListReports(r.Context(), r.URL.Query().Get("group"), limit)
	if err != nil {
		h.writeServiceError(w, "Failed to list reports", err)
		return
	}
	h.writeJSON(w, nonNil(reports), http.StatusOK)
}

// GetReport returns a stored report in ?format=
func (h *ProvisioningHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	exporter, err := codec.ExporterFor(r.URL.Query().Get("format"))
	if err != nil {
		h.writeError(w, "Invalid format", err.Error(), http.StatusBadRequest)
		return
	}

	report, err := h.svc.GetReport(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, "Failed to get report", err)
		return
	}
	h.writeReport(w, exporter, report)
}

func (h *ProvisioningHandler) importWith(importer codec.Importer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
		defs, err := h.svc.Import(r.Context(), importer, body)
		if err != nil {
			log.Printf("Failed to import %s: %v", importer.Format(), err)
			h.writeError(w, "Failed to import "+importer.Format(), err.Error(), http.StatusBadRequest)
			return
		}
		h.writeJSON(w, importResponse(defs), http.StatusOK)
	}
}

// ImportAnsibleInventory replaces device groups from an inventory file,
// keeping stored address lists and rules
func (h *ProvisioningHandler) ImportAnsibleInventory(w http.ResponseWriter, r *http.Request) {
	inv, err := codec.NewAnsibleCodec().Parse(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, "Failed to parse inventory", err.Error(), http.StatusBadRequest)
		return
	}

	defs, err := h.svc.ImportGroups(r.Context(), inv.Groups)
	if err != nil {
		log.Printf("Failed to import inventory: %v", err)
		h.writeError(w, "Failed to import inventory", err.Error(), http.StatusBadRequest)
		return
	}
	h.writeJSON(w, importResponse(defs), http.StatusOK)
}

// ExportAnsibleInventory writes the stored device groups as an inventory
func (h *ProvisioningHandler) ExportAnsibleInventory(w http.ResponseWriter, r *http.Request) {
	groups, err := h.svc.ListGroups(r.Context())
	if err != nil {
		h.writeServiceError(w, "Failed to list groups", err)
		return
	}

	var buf bytes.Buffer
	if err := codec.NewAnsibleCodec().Export(groups, &buf); err != nil {
		h.writeServiceError(w, "Failed to export inventory", err)
		return
	}

	w.Header().Set("Content-Type", "application/x-yaml")
	w.Header().Set("Content-Disposition", "attachment; filename=inventory.yml")
	w.Write(buf.Bytes())
}

// ParseOutput parses tabular device output posted as the request body
func (h *ProvisioningHandler) ParseOutput(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}
	h.writeJSON(w, h.svc.ParseOutput(r.URL.Query().Get("family"), string(raw)), http.StatusOK)
}

func importResponse(defs *domain.Definitions) ImportResponse {
	return ImportResponse{
		AddressLists: len(defs.AddressLists),
		Rules:        len(defs.Rules),
		Groups:       len(defs.Groups),
	}
}

// Helper methods

func (h *ProvisioningHandler) writeReport(w http.ResponseWriter, exporter codec.Exporter, report *domain.GroupDeploymentReport) {
	var buf bytes.Buffer
	if err := exporter.Export(report, &buf); err != nil {
		log.Printf("Failed to export report %s: %v", report.ID, err)
		h.writeError(w, "Failed to export report", err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", exporter.ContentType())
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// writeServiceError maps service errors onto status codes
func (h *ProvisioningHandler) writeServiceError(w http.ResponseWriter, msg string, err error) {
	var (
		validation *domain.ValidationError
		command    *domain.CommandError
		connection *domain.ConnectionError
	)

	switch {
	case errors.Is(err, domain.ErrNotFound):
		h.writeError(w, "Not found", err.Error(), http.StatusNotFound)
	case errors.Is(err, service.ErrDeploymentInProgress):
		h.writeError(w, msg, err.Error(), http.StatusConflict)
	case errors.As(err, &validation):
		h.writeError(w, msg, err.Error(), http.StatusBadRequest)
	case errors.As(err, &command), errors.As(err, &connection):
		h.writeError(w, msg, err.Error(), http.StatusBadGateway)
	default:
		log.Printf("%s: %v", msg, err)
		h.writeError(w, msg, err.Error(), http.StatusInternalServerError)
	}
}

func (h *ProvisioningHandler) writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Failed to encode JSON: %v", err)
	}
}

func (h *ProvisioningHandler) writeError(w http.ResponseWriter, error, details string, statusCode int) {
	h.writeJSON(w, ErrorResponse{Error: error, Details: details}, statusCode)
}

// nonNil keeps empty collections encoding as [] rather than null
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
