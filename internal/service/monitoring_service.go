package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"wisefido-ews/internal/clients"
	"wisefido-ews/internal/consumer"
	"wisefido-ews/internal/evaluator"
	"wisefido-ews/internal/events"
	"wisefido-ews/internal/export"
	"wisefido-ews/internal/models"
	"wisefido-ews/internal/repository"
	"wisefido-ews/internal/scoring"
	"wisefido-ews/internal/trend"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MonitoringService is the external surface of the early-warning core.
type MonitoringService interface {
	SubmitObservation(ctx context.Context, req SubmitObservationRequest) (*ScoredObservation, error)
	ListOpenAlerts(ctx context.Context, tenantID, branchID string) ([]*models.Alert, error)
	AcknowledgeAlert(ctx context.Context, tenantID, alertID, actorID string) (*models.Alert, error)
	ResolveAlert(ctx context.Context, tenantID, alertID string) (*models.Alert, error)

	EnrollPatient(ctx context.Context, req EnrollPatientRequest) (*models.MonitoringPatient, error)
	DeactivatePatient(ctx context.Context, tenantID, patientID string) (*models.MonitoringPatient, error)
	GetObservationHistory(ctx context.Context, tenantID, patientID string, limit int) ([]*models.Observation, error)
	ListPatientAlerts(ctx context.Context, tenantID, patientID string) ([]*models.Alert, error)
	ExportChart(ctx context.Context, tenantID, patientID string) ([]byte, error)

	// EvaluateOverdue is the overdue scanner's entry point.
	EvaluateOverdue(ctx context.Context, tenantID string, patient *models.MonitoringPatient, now time.Time) ([]models.AlertChange, error)
}

// ClientLookup resolves care clients at enrollment.
type ClientLookup interface {
	GetClient(ctx context.Context, tenantID, clientID string) (*clients.ClientInfo, error)
}

// ============================================
// Request/Response DTOs
// ============================================

// SubmitObservationRequest carries one set of vitals.
type SubmitObservationRequest struct {
	TenantID    string
	PatientID   string
	RecordedBy  string
	Notes       string
	ActionTaken string
	Vitals      models.RawVitals
	ObservedAt  *time.Time // defaults to now
}

// ScoredObservation is the outcome of a submission.
type ScoredObservation struct {
	Observation *models.Observation  `json:"observation"`
	Trend       trend.Result         `json:"trend"`
	Alerts      []models.AlertChange `json:"-"`
}

// EnrollPatientRequest enrolls a care client into monitoring.
type EnrollPatientRequest struct {
	TenantID        string  `json:"-"`
	ClientID        string  `json:"client_id"`
	BranchID        string  `json:"branch_id"`
	Frequency       string  `json:"frequency"`
	AssignedCarerID *string `json:"assigned_carer_id,omitempty"`
	Notes           string  `json:"notes"`
}

// maxClockSkew bounds how far in the future an observed_at may lie.
const maxClockSkew = 5 * time.Minute

type monitoringService struct {
	repo      repository.MonitoringRepository
	engine    *evaluator.Engine
	locker    consumer.Locker
	publisher events.Publisher
	clients   ClientLookup
	logger    *zap.Logger
	now       func() time.Time
}

// NewMonitoringService creates the service. clientLookup may be nil, in which case enrollment
// trusts the caller's client and branch IDs.
func NewMonitoringService(
	repo repository.MonitoringRepository,
	engine *evaluator.Engine,
	locker consumer.Locker,
	publisher events.Publisher,
	clientLookup ClientLookup,
	logger *zap.Logger,
) MonitoringService {
	if publisher == nil {
		publisher = events.Multi{}
	}
	return &monitoringService{
		repo:      repo,
		engine:    engine,
		locker:    locker,
		publisher: publisher,
		clients:   clientLookup,
		logger:    logger,
		now:       time.Now,
	}
}

// ============================================
// Observations
// ============================================

func (s *monitoringService) SubmitObservation(ctx context.Context, req SubmitObservationRequest) (*ScoredObservation, error) {
	if strings.TrimSpace(req.RecordedBy) == "" {
		return nil, fmt.Errorf("recorded_by is required: %w", models.ErrInvalidRequest)
	}
	vitals, result, err := scoring.Evaluate(req.Vitals)
	if err != nil {
		return nil, err
	}

	now := s.now()
	observedAt := now
	if req.ObservedAt != nil {
		if req.ObservedAt.After(now.Add(maxClockSkew)) {
			return nil, &models.InvalidObservationError{Field: "observed_at", Reason: "is in the future"}
		}
		observedAt = *req.ObservedAt
	}

	release, err := consumer.LockAll(ctx, s.locker, alertLockKeys(req.TenantID, req.PatientID, models.AlertKinds...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to lock patient %s: %w", req.PatientID, err)
	}
	defer release()

	var scored *ScoredObservation
	err = s.repo.WithinTx(ctx, func(ctx context.Context) error {
		patient, err := s.activePatient(ctx, req.TenantID, req.PatientID)
		if err != nil {
			return err
		}

		// a backdated reading is compared with the one taken before it, not the newest
		previous, err := s.repo.GetObservationBefore(ctx, req.TenantID, req.PatientID, observedAt)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return err
		}
		latest := patient.IsLatest(observedAt)

		obs := &models.Observation{
			ObservationID:       uuid.New().String(),
			TenantID:            req.TenantID,
			PatientID:           req.PatientID,
			RecordedBy:          req.RecordedBy,
			ObservedAt:          observedAt,
			Vitals:              vitals,
			Scores:              result.Scores,
			TotalScore:          result.Total,
			SingleParamCritical: result.SingleParamCritical,
			RiskLevel:           result.RiskLevel,
			Notes:               req.Notes,
			ActionTaken:         req.ActionTaken,
			NextReviewAt:        scoring.NextReview(observedAt, patient.Frequency, result.RiskLevel),
			CreatedAt:           now,
		}
		if err := s.repo.InsertObservation(ctx, req.TenantID, obs); err != nil {
			return err
		}
		if latest {
			if err := s.repo.UpdatePatientRisk(ctx, req.TenantID, req.PatientID, result.RiskLevel, now); err != nil {
				return err
			}
			patient.RiskLevel = result.RiskLevel
		}

		tr := trend.Analyze(previous, obs)
		changes, err := s.engine.EvaluateObservation(ctx, req.TenantID, patient, obs, tr, now)
		if err != nil {
			return err
		}

		scored = &ScoredObservation{Observation: obs, Trend: tr, Alerts: changes}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Observation recorded",
		zap.String("tenant_id", req.TenantID),
		zap.String("patient_id", req.PatientID),
		zap.String("observation_id", scored.Observation.ObservationID),
		zap.Int("total_score", scored.Observation.TotalScore),
		zap.String("risk_level", string(scored.Observation.RiskLevel)),
		zap.Bool("deteriorating", scored.Trend.Deteriorating),
		zap.Int("alert_changes", len(scored.Alerts)),
	)
	s.publish(ctx, req.TenantID, scored.Alerts...)
	return scored, nil
}

func (s *monitoringService) GetObservationHistory(ctx context.Context, tenantID, patientID string, limit int) ([]*models.Observation, error) {
	if _, err := s.repo.GetPatient(ctx, tenantID, patientID); err != nil {
		return nil, err
	}
	return s.repo.ListObservations(ctx, tenantID, patientID, limit)
}

// ============================================
// Alerts
// ============================================

func (s *monitoringService) ListOpenAlerts(ctx context.Context, tenantID, branchID string) ([]*models.Alert, error) {
	return s.repo.ListOpenAlerts(ctx, tenantID, branchID)
}

func (s *monitoringService) ListPatientAlerts(ctx context.Context, tenantID, patientID string) ([]*models.Alert, error) {
	if _, err := s.repo.GetPatient(ctx, tenantID, patientID); err != nil {
		return nil, err
	}
	return s.repo.ListPatientAlerts(ctx, tenantID, patientID)
}

func (s *monitoringService) AcknowledgeAlert(ctx context.Context, tenantID, alertID, actorID string) (*models.Alert, error) {
	if strings.TrimSpace(actorID) == "" {
		return nil, fmt.Errorf("actor is required: %w", models.ErrInvalidRequest)
	}
	return s.transition(ctx, tenantID, alertID, func(ctx context.Context) (*models.Alert, *models.AlertChange, error) {
		return s.engine.Acknowledge(ctx, tenantID, alertID, actorID, s.now())
	})
}

func (s *monitoringService) ResolveAlert(ctx context.Context, tenantID, alertID string) (*models.Alert, error) {
	return s.transition(ctx, tenantID, alertID, func(ctx context.Context) (*models.Alert, *models.AlertChange, error) {
		return s.engine.Resolve(ctx, tenantID, alertID, s.now())
	})
}

// transition runs an alert state change under the alert's (patient, kind) lock.
func (s *monitoringService) transition(
	ctx context.Context,
	tenantID, alertID string,
	apply func(ctx context.Context) (*models.Alert, *models.AlertChange, error),
) (*models.Alert, error) {
	current, err := s.repo.GetAlert(ctx, tenantID, alertID)
	if err != nil {
		return nil, err
	}

	release, err := s.locker.Lock(ctx, consumer.AlertLockKey(tenantID, current.PatientID, current.Kind))
	if err != nil {
		return nil, fmt.Errorf("failed to lock alert %s: %w", alertID, err)
	}
	defer release()

	alert, change, err := apply(ctx)
	if err != nil {
		return nil, err
	}
	if change != nil {
		s.publish(ctx, tenantID, *change)
	}
	return alert, nil
}

func (s *monitoringService) EvaluateOverdue(ctx context.Context, tenantID string, patient *models.MonitoringPatient, now time.Time) ([]models.AlertChange, error) {
	release, err := s.locker.Lock(ctx, consumer.AlertLockKey(tenantID, patient.PatientID, models.AlertKindOverdue))
	if err != nil {
		return nil, fmt.Errorf("failed to lock patient %s: %w", patient.PatientID, err)
	}
	defer release()

	var changes []models.AlertChange
	err = s.repo.WithinTx(ctx, func(ctx context.Context) error {
		// an observation may have landed since the scanner listed the patient
		fresh, err := s.repo.GetPatient(ctx, tenantID, patient.PatientID)
		if err != nil {
			return err
		}
		changes, err = s.engine.EvaluateOverdue(ctx, tenantID, fresh, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, tenantID, changes...)
	return changes, nil
}

// ============================================
// Patients
// ============================================

func (s *monitoringService) EnrollPatient(ctx context.Context, req EnrollPatientRequest) (*models.MonitoringPatient, error) {
	clientID := strings.TrimSpace(req.ClientID)
	if clientID == "" {
		return nil, fmt.Errorf("client_id is required: %w", models.ErrInvalidRequest)
	}
	frequency, err := models.ParseFrequency(req.Frequency)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, models.ErrInvalidRequest)
	}

	branchID := strings.TrimSpace(req.BranchID)
	if s.clients != nil {
		info, err := s.clients.GetClient(ctx, req.TenantID, clientID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil, fmt.Errorf("unknown client %s: %w", clientID, models.ErrInvalidRequest)
			}
			return nil, err
		}
		if !info.Active() {
			return nil, fmt.Errorf("client %s is %s: %w", clientID, info.Status, models.ErrInvalidRequest)
		}
		if branchID == "" {
			branchID = info.BranchTag
		}
	}
	if branchID == "" {
		return nil, fmt.Errorf("branch_id is required: %w", models.ErrInvalidRequest)
	}

	now := s.now()
	patient := &models.MonitoringPatient{
		PatientID:       uuid.New().String(),
		TenantID:        req.TenantID,
		ClientID:        clientID,
		BranchID:        branchID,
		AssignedCarerID: req.AssignedCarerID,
		RiskLevel:       models.RiskLow,
		Frequency:       frequency,
		Active:          true,
		Notes:           req.Notes,
		EnrolledAt:      now,
		UpdatedAt:       now,
	}
	if err := s.repo.CreatePatient(ctx, req.TenantID, patient); err != nil {
		return nil, err
	}

	s.logger.Info("Patient enrolled",
		zap.String("tenant_id", req.TenantID),
		zap.String("patient_id", patient.PatientID),
		zap.String("client_id", clientID),
		zap.String("frequency", string(frequency)),
	)
	return patient, nil
}

func (s *monitoringService) DeactivatePatient(ctx context.Context, tenantID, patientID string) (*models.MonitoringPatient, error) {
	if err := s.repo.DeactivatePatient(ctx, tenantID, patientID, s.now()); err != nil {
		return nil, err
	}
	s.logger.Info("Patient deactivated",
		zap.String("tenant_id", tenantID),
		zap.String("patient_id", patientID),
	)
	return s.repo.GetPatient(ctx, tenantID, patientID)
}

func (s *monitoringService) ExportChart(ctx context.Context, tenantID, patientID string) ([]byte, error) {
	patient, err := s.repo.GetPatient(ctx, tenantID, patientID)
	if err != nil {
		return nil, err
	}
	observations, err := s.repo.ListObservations(ctx, tenantID, patientID, 0)
	if err != nil {
		return nil, err
	}
	alerts, err := s.repo.ListPatientAlerts(ctx, tenantID, patientID)
	if err != nil {
		return nil, err
	}
	return export.WriteChart(patient, observations, alerts, s.now())
}

// ============================================
// helpers
// ============================================

func (s *monitoringService) activePatient(ctx context.Context, tenantID, patientID string) (*models.MonitoringPatient, error) {
	patient, err := s.repo.GetPatient(ctx, tenantID, patientID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("patient %s: %w", patientID, models.ErrPatientNotActive)
	}
	if err != nil {
		return nil, err
	}
	if !patient.Active {
		return nil, fmt.Errorf("patient %s: %w", patientID, models.ErrPatientNotActive)
	}
	return patient, nil
}

// publish emits committed changes. Delivery failures are logged; the changes are already durable.
func (s *monitoringService) publish(ctx context.Context, tenantID string, changes ...models.AlertChange) {
	for _, change := range changes {
		event := events.NewEvent(tenantID, change, s.now())
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.Error("Failed to publish alert event",
				zap.String("event_type", string(event.Type)),
				zap.String("alert_id", change.Alert.AlertID),
				zap.Error(err),
			)
		}
	}
}

func alertLockKeys(tenantID, patientID string, kinds ...models.AlertKind) []string {
	keys := make([]string, len(kinds))
	for i, kind := range kinds {
		keys[i] = consumer.AlertLockKey(tenantID, patientID, kind)
	}
	return keys
}
