package evaluator

import (
	"fmt"
	"time"

	"wisefido-ews/internal/models"

	"github.com/google/uuid"
)

// AlertBuilder builds new alert records for one patient.
type AlertBuilder struct {
	tenantID string
	patient  *models.MonitoringPatient
}

// NewAlertBuilder creates an AlertBuilder.
func NewAlertBuilder(tenantID string, patient *models.MonitoringPatient) *AlertBuilder {
	return &AlertBuilder{tenantID: tenantID, patient: patient}
}

// BuildAlert builds an open alert. observation may be nil for alerts not raised by a reading.
func (b *AlertBuilder) BuildAlert(kind models.AlertKind, severity models.Severity, message string, observation *models.Observation, now time.Time) *models.Alert {
	alert := &models.Alert{
		AlertID:   uuid.New().String(),
		TenantID:  b.tenantID,
		PatientID: b.patient.PatientID,
		BranchID:  b.patient.BranchID,
		Kind:      kind,
		Severity:  severity,
		Message:   message,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
	if observation != nil {
		id := observation.ObservationID
		alert.ObservationID = &id
	}
	return alert
}

// HighScoreMessage describes a high_score alert.
func HighScoreMessage(obs *models.Observation) string {
	msg := fmt.Sprintf("NEWS2 score %d (%s risk)", obs.TotalScore, obs.RiskLevel)
	if obs.SingleParamCritical {
		msg += ", single parameter at 3"
	}
	return msg
}

// DeterioratingMessage describes a deteriorating alert.
func DeterioratingMessage(summary string) string {
	return "Deteriorating: " + summary
}

// OverdueMessage describes an overdue_observation alert.
func OverdueMessage(elapsed time.Duration, frequency models.MonitoringFrequency) string {
	return fmt.Sprintf("No observation for %s (expected every %s)", elapsed.Truncate(time.Minute), frequency.Interval())
}
