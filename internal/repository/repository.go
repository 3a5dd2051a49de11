package repository

import (
	"context"
	"time"

	"wisefido-ews/internal/models"
)

// PatientsRepository stores monitoring enrolments. Patients are deactivated, never deleted.
type PatientsRepository interface {
	CreatePatient(ctx context.Context, tenantID string, patient *models.MonitoringPatient) error
	// GetPatient returns the patient with LastObservedAt filled in, or models.ErrNotFound.
	GetPatient(ctx context.Context, tenantID, patientID string) (*models.MonitoringPatient, error)
	UpdatePatientRisk(ctx context.Context, tenantID, patientID string, risk models.RiskLevel, at time.Time) error
	DeactivatePatient(ctx context.Context, tenantID, patientID string, at time.Time) error
	// ListActivePatients is the overdue scanner's work list. An empty tenantID lists every tenant.
	ListActivePatients(ctx context.Context, tenantID string) ([]*models.MonitoringPatient, error)
}

// ObservationsRepository is append-only: there is no update or delete.
type ObservationsRepository interface {
	InsertObservation(ctx context.Context, tenantID string, obs *models.Observation) error
	// GetLatestObservation returns the most recent observation or models.ErrNotFound.
	GetLatestObservation(ctx context.Context, tenantID, patientID string) (*models.Observation, error)
	// GetObservationBefore returns the most recent observation taken strictly before t, or
	// models.ErrNotFound.
	GetObservationBefore(ctx context.Context, tenantID, patientID string, t time.Time) (*models.Observation, error)
	// ListObservations returns newest first; limit <= 0 means no limit.
	ListObservations(ctx context.Context, tenantID, patientID string, limit int) ([]*models.Observation, error)
}

// AlertsRepository persists alerts. CreateAlert returns models.ErrAlertConflict when an open
// alert of the same (patient, kind) already exists; UpdateAlert returns it when alert.Version is stale
// or the stored alert is already resolved. On success UpdateAlert increments alert.Version.
type AlertsRepository interface {
	GetAlert(ctx context.Context, tenantID, alertID string) (*models.Alert, error)
	GetOpenAlert(ctx context.Context, tenantID, patientID string, kind models.AlertKind) (*models.Alert, error)
	CreateAlert(ctx context.Context, tenantID string, alert *models.Alert) error
	UpdateAlert(ctx context.Context, tenantID string, alert *models.Alert) error
	// ListOpenAlerts returns unresolved alerts of a branch, most severe first, then newest.
	// An empty branchID lists the whole tenant.
	ListOpenAlerts(ctx context.Context, tenantID, branchID string) ([]*models.Alert, error)
	// ListPatientAlerts returns every alert of a patient, newest first.
	ListPatientAlerts(ctx context.Context, tenantID, patientID string) ([]*models.Alert, error)
}

// MonitoringRepository is the persistence boundary of the early-warning core.
type MonitoringRepository interface {
	PatientsRepository
	ObservationsRepository
	AlertsRepository

	// WithinTx runs fn atomically. Repository calls made with the ctx passed to fn join the
	// transaction; nested calls reuse the outer transaction.
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
