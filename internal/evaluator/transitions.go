package evaluator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wisefido-ews/internal/models"

	"go.uber.org/zap"
)

// Acknowledge moves an open alert to acknowledged. An acknowledged alert is returned unchanged with a
// nil change; a resolved one fails with models.ErrAlreadyResolved and is left as is.
func (e *Engine) Acknowledge(ctx context.Context, tenantID, alertID, actorID string, now time.Time) (*models.Alert, *models.AlertChange, error) {
	for attempt := 1; attempt <= e.opts.MaxUpsertAttempts; attempt++ {
		alert, err := e.repo.GetAlert(ctx, tenantID, alertID)
		if err != nil {
			return nil, nil, err
		}
		if alert.Resolved {
			return nil, nil, fmt.Errorf("acknowledge alert %s: %w", alertID, models.ErrAlreadyResolved)
		}
		if alert.Acknowledged {
			return alert, nil, nil
		}

		actor, at := actorID, now
		alert.Acknowledged = true
		alert.AcknowledgedBy = &actor
		alert.AcknowledgedAt = &at
		alert.UpdatedAt = now

		err = e.repo.UpdateAlert(ctx, tenantID, alert)
		if err == nil {
			e.logger.Info("Alert acknowledged",
				zap.String("alert_id", alertID),
				zap.String("patient_id", alert.PatientID),
				zap.String("actor_id", actorID),
			)
			return alert, &models.AlertChange{Type: models.AlertAcknowledged, Alert: *alert}, nil
		}
		if !errors.Is(err, models.ErrAlertConflict) {
			return nil, nil, err
		}
	}
	return nil, nil, fmt.Errorf("acknowledge alert %s after %d attempts: %w", alertID, e.opts.MaxUpsertAttempts, models.ErrRepositoryUnavailable)
}

// Resolve moves an open or acknowledged alert to resolved. Resolving twice returns the alert unchanged
// with a nil change.
func (e *Engine) Resolve(ctx context.Context, tenantID, alertID string, now time.Time) (*models.Alert, *models.AlertChange, error) {
	for attempt := 1; attempt <= e.opts.MaxUpsertAttempts; attempt++ {
		alert, err := e.repo.GetAlert(ctx, tenantID, alertID)
		if err != nil {
			return nil, nil, err
		}
		if alert.Resolved {
			return alert, nil, nil
		}

		markResolved(alert, now)
		err = e.repo.UpdateAlert(ctx, tenantID, alert)
		if err == nil {
			e.logger.Info("Alert resolved",
				zap.String("alert_id", alertID),
				zap.String("patient_id", alert.PatientID),
				zap.String("kind", string(alert.Kind)),
			)
			return alert, &models.AlertChange{Type: models.AlertResolved, Alert: *alert}, nil
		}
		if !errors.Is(err, models.ErrAlertConflict) {
			return nil, nil, err
		}
	}
	return nil, nil, fmt.Errorf("resolve alert %s after %d attempts: %w", alertID, e.opts.MaxUpsertAttempts, models.ErrRepositoryUnavailable)
}
