package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"wisefido-ews/internal/models"
	"wisefido-ews/internal/service"
	"wisefido-ews/internal/trend"

	"go.uber.org/zap"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
	xlsxContentType     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// EWSHandler serves the patient, observation and alert endpoints.
type EWSHandler struct {
	svc           service.MonitoringService
	defaultTenant string
	logger        *zap.Logger
}

// NewEWSHandler creates the handler. defaultTenant is used when a request names none.
func NewEWSHandler(svc service.MonitoringService, defaultTenant string, logger *zap.Logger) *EWSHandler {
	return &EWSHandler{
		svc:           svc,
		defaultTenant: defaultTenant,
		logger:        logger,
	}
}

// ServeHTTP dispatches on path and method.
func (h *EWSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tenantID := tenantFrom(r, h.defaultTenant)
	if tenantID == "" {
		writeJSON(w, http.StatusBadRequest, Fail("tenant_id is required"))
		return
	}

	switch path := r.URL.Path; {
	case under(path, APIPrefix+"/patients"):
		h.servePatients(w, r, tenantID, splitPath(path, APIPrefix+"/patients"))
		return
	case under(path, APIPrefix+"/alerts"):
		h.serveAlerts(w, r, tenantID, splitPath(path, APIPrefix+"/alerts"))
		return
	}
	w.WriteHeader(http.StatusNotFound)
}

func (h *EWSHandler) servePatients(w http.ResponseWriter, r *http.Request, tenantID string, parts []string) {
	switch {
	case len(parts) == 0 && r.Method == http.MethodPost:
		h.EnrollPatient(w, r, tenantID)
	case len(parts) == 2 && parts[1] == "deactivate" && r.Method == http.MethodPost:
		h.DeactivatePatient(w, r, tenantID, parts[0])
	case len(parts) == 2 && parts[1] == "observations" && r.Method == http.MethodPost:
		h.SubmitObservation(w, r, tenantID, parts[0])
	case len(parts) == 2 && parts[1] == "observations" && r.Method == http.MethodGet:
		h.GetObservationHistory(w, r, tenantID, parts[0])
	case len(parts) == 2 && parts[1] == "alerts" && r.Method == http.MethodGet:
		h.ListPatientAlerts(w, r, tenantID, parts[0])
	case len(parts) == 2 && parts[1] == "chart" && r.Method == http.MethodGet:
		h.ExportChart(w, r, tenantID, parts[0])
	case len(parts) == 0 || len(parts) == 2:
		w.WriteHeader(http.StatusMethodNotAllowed)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *EWSHandler) serveAlerts(w http.ResponseWriter, r *http.Request, tenantID string, parts []string) {
	switch {
	case len(parts) == 0 && r.Method == http.MethodGet:
		h.ListOpenAlerts(w, r, tenantID)
	case len(parts) == 2 && parts[1] == "acknowledge" && r.Method == http.MethodPut:
		h.AcknowledgeAlert(w, r, tenantID, parts[0])
	case len(parts) == 2 && parts[1] == "resolve" && r.Method == http.MethodPut:
		h.ResolveAlert(w, r, tenantID, parts[0])
	case len(parts) == 0 || len(parts) == 2:
		w.WriteHeader(http.StatusMethodNotAllowed)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// ============================================
// Patients
// ============================================

func (h *EWSHandler) EnrollPatient(w http.ResponseWriter, r *http.Request, tenantID string) {
	var req service.EnrollPatientRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	req.TenantID = tenantID

	patient, err := h.svc.EnrollPatient(r.Context(), req)
	if err != nil {
		h.writeError(w, "EnrollPatient", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(patient))
}

func (h *EWSHandler) DeactivatePatient(w http.ResponseWriter, r *http.Request, tenantID, patientID string) {
	patient, err := h.svc.DeactivatePatient(r.Context(), tenantID, patientID)
	if err != nil {
		h.writeError(w, "DeactivatePatient", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(patient))
}

// ============================================
// Observations
// ============================================

type submitObservationBody struct {
	RecordedBy  string           `json:"recorded_by"`
	Notes       string           `json:"notes"`
	ActionTaken string           `json:"action_taken"`
	ObservedAt  *time.Time       `json:"observed_at"`
	Vitals      models.RawVitals `json:"vitals"`
}

type alertChangeDTO struct {
	Type  models.AlertChangeType `json:"type"`
	Alert models.Alert           `json:"alert"`
}

type scoredObservationDTO struct {
	Observation *models.Observation `json:"observation"`
	Trend       trend.Result        `json:"trend"`
	Alerts      []alertChangeDTO    `json:"alerts"`
}

func (h *EWSHandler) SubmitObservation(w http.ResponseWriter, r *http.Request, tenantID, patientID string) {
	var body submitObservationBody
	if err := readBodyJSON(r, maxBodyBytes, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	recordedBy := body.RecordedBy
	if recordedBy == "" {
		recordedBy = r.Header.Get("X-User-Id")
	}

	scored, err := h.svc.SubmitObservation(r.Context(), service.SubmitObservationRequest{
		TenantID:    tenantID,
		PatientID:   patientID,
		RecordedBy:  recordedBy,
		Notes:       body.Notes,
		ActionTaken: body.ActionTaken,
		Vitals:      body.Vitals,
		ObservedAt:  body.ObservedAt,
	})
	if err != nil {
		h.writeError(w, "SubmitObservation", err)
		return
	}

	resp := scoredObservationDTO{
		Observation: scored.Observation,
		Trend:       scored.Trend,
		Alerts:      make([]alertChangeDTO, 0, len(scored.Alerts)),
	}
	for _, c := range scored.Alerts {
		resp.Alerts = append(resp.Alerts, alertChangeDTO{Type: c.Type, Alert: c.Alert})
	}
	writeJSON(w, http.StatusOK, Ok(resp))
}

func (h *EWSHandler) GetObservationHistory(w http.ResponseWriter, r *http.Request, tenantID, patientID string) {
	limit := parseInt(r.URL.Query().Get("limit"), defaultHistoryLimit)
	if limit <= 0 || limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	observations, err := h.svc.GetObservationHistory(r.Context(), tenantID, patientID, limit)
	if err != nil {
		h.writeError(w, "GetObservationHistory", err)
		return
	}
	writeJSON(w, http.StatusOK, OkPage(observations))
}

func (h *EWSHandler) ExportChart(w http.ResponseWriter, r *http.Request, tenantID, patientID string) {
	data, err := h.svc.ExportChart(r.Context(), tenantID, patientID)
	if err != nil {
		h.writeError(w, "ExportChart", err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=ews-chart-%s.xlsx", patientID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// ============================================
// Alerts
// ============================================

func (h *EWSHandler) ListOpenAlerts(w http.ResponseWriter, r *http.Request, tenantID string) {
	alerts, err := h.svc.ListOpenAlerts(r.Context(), tenantID, r.URL.Query().Get("branch_id"))
	if err != nil {
		h.writeError(w, "ListOpenAlerts", err)
		return
	}
	writeJSON(w, http.StatusOK, OkPage(alerts))
}

func (h *EWSHandler) ListPatientAlerts(w http.ResponseWriter, r *http.Request, tenantID, patientID string) {
	alerts, err := h.svc.ListPatientAlerts(r.Context(), tenantID, patientID)
	if err != nil {
		h.writeError(w, "ListPatientAlerts", err)
		return
	}
	writeJSON(w, http.StatusOK, OkPage(alerts))
}

func (h *EWSHandler) AcknowledgeAlert(w http.ResponseWriter, r *http.Request, tenantID, alertID string) {
	alert, err := h.svc.AcknowledgeAlert(r.Context(), tenantID, alertID, r.Header.Get("X-User-Id"))
	if err != nil {
		h.writeError(w, "AcknowledgeAlert", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(alert))
}

func (h *EWSHandler) ResolveAlert(w http.ResponseWriter, r *http.Request, tenantID, alertID string) {
	alert, err := h.svc.ResolveAlert(r.Context(), tenantID, alertID)
	if err != nil {
		h.writeError(w, "ResolveAlert", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(alert))
}

// ============================================
// helpers
// ============================================

func (h *EWSHandler) writeError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(op+" failed", zap.Error(err))
	} else {
		h.logger.Debug(op+" rejected", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, Fail(err.Error()))
}
