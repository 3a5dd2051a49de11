// Package evaluator decides which alerts a scored observation or an overdue check opens or upgrades,
// and applies acknowledge/resolve transitions.
//
// The engine never takes locks itself: callers serialise per (patient, kind) with a consumer.Locker and
// the repository rejects lost races with models.ErrAlertConflict, which the engine absorbs by re-reading.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wisefido-ews/internal/models"
	"wisefido-ews/internal/repository"
	"wisefido-ews/internal/trend"

	"go.uber.org/zap"
)

// MaxUpsertAttempts bounds the re-read/retry loop on models.ErrAlertConflict.
const MaxUpsertAttempts = 3

// Options tunes the engine.
type Options struct {
	// ResolveOverdueOnObservation resolves an open overdue_observation alert when a reading arrives.
	ResolveOverdueOnObservation bool
	MaxUpsertAttempts           int
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{ResolveOverdueOnObservation: true, MaxUpsertAttempts: MaxUpsertAttempts}
}

// Engine is the alert engine.
type Engine struct {
	repo   repository.AlertsRepository
	opts   Options
	logger *zap.Logger
}

// NewEngine creates an Engine.
func NewEngine(repo repository.AlertsRepository, opts Options, logger *zap.Logger) *Engine {
	if opts.MaxUpsertAttempts <= 0 {
		opts.MaxUpsertAttempts = MaxUpsertAttempts
	}
	return &Engine{repo: repo, opts: opts, logger: logger}
}

// candidate is a rule outcome waiting to be merged with the open alert of its kind.
type candidate struct {
	kind        models.AlertKind
	severity    models.Severity
	message     string
	observation *models.Observation
	// strict requires a higher severity before an open alert is touched.
	strict bool
}

// EvaluateObservation applies the high_score and deteriorating rules to a stored observation.
// It must run in the same repository transaction as the observation insert, with patient as read
// before that insert. A backdated reading leaves an open overdue alert in place.
func (e *Engine) EvaluateObservation(
	ctx context.Context,
	tenantID string,
	patient *models.MonitoringPatient,
	obs *models.Observation,
	tr trend.Result,
	now time.Time,
) ([]models.AlertChange, error) {
	var candidates []candidate

	if severity, ok := HighScoreSeverity(obs.RiskLevel); ok {
		candidates = append(candidates, candidate{
			kind:        models.AlertKindHighScore,
			severity:    severity,
			message:     HighScoreMessage(obs),
			observation: obs,
		})
	}
	if tr.Deteriorating {
		candidates = append(candidates, candidate{
			kind:        models.AlertKindDeteriorating,
			severity:    models.SeverityHigh,
			message:     DeterioratingMessage(tr.Summary),
			observation: obs,
		})
	}

	builder := NewAlertBuilder(tenantID, patient)
	var changes []models.AlertChange
	for _, c := range candidates {
		change, err := e.upsert(ctx, tenantID, builder, c, now)
		if err != nil {
			return nil, err
		}
		if change != nil {
			changes = append(changes, *change)
		}
	}

	if e.opts.ResolveOverdueOnObservation && patient.IsLatest(obs.ObservedAt) {
		change, err := e.resolveOpen(ctx, tenantID, patient.PatientID, models.AlertKindOverdue, obs, now)
		if err != nil {
			return nil, err
		}
		if change != nil {
			changes = append(changes, *change)
		}
	}

	return changes, nil
}

// EvaluateOverdue applies the overdue_observation rule at now. Inactive or not yet due patients
// produce no change, and a rescan at the same severity is a no-op.
func (e *Engine) EvaluateOverdue(ctx context.Context, tenantID string, patient *models.MonitoringPatient, now time.Time) ([]models.AlertChange, error) {
	if !patient.Active {
		return nil, nil
	}
	if !patient.Frequency.Valid() {
		return nil, fmt.Errorf("patient %s has unknown monitoring frequency %q", patient.PatientID, patient.Frequency)
	}

	elapsed := now.Sub(patient.Baseline())
	severity, overdue := OverdueSeverity(elapsed, patient.Frequency.Interval())
	if !overdue {
		return nil, nil
	}

	change, err := e.upsert(ctx, tenantID, NewAlertBuilder(tenantID, patient), candidate{
		kind:     models.AlertKindOverdue,
		severity: severity,
		message:  OverdueMessage(elapsed, patient.Frequency),
		strict:   true,
	}, now)
	if err != nil || change == nil {
		return nil, err
	}
	return []models.AlertChange{*change}, nil
}

// upsert opens an alert for c or upgrades the open one of the same kind.
func (e *Engine) upsert(ctx context.Context, tenantID string, builder *AlertBuilder, c candidate, now time.Time) (*models.AlertChange, error) {
	patientID := builder.patient.PatientID

	for attempt := 1; attempt <= e.opts.MaxUpsertAttempts; attempt++ {
		existing, err := e.repo.GetOpenAlert(ctx, tenantID, patientID, c.kind)
		switch {
		case errors.Is(err, models.ErrNotFound):
			alert := builder.BuildAlert(c.kind, c.severity, c.message, c.observation, now)
			err = e.repo.CreateAlert(ctx, tenantID, alert)
			if err == nil {
				e.logger.Info("Alert opened",
					zap.String("alert_id", alert.AlertID),
					zap.String("patient_id", patientID),
					zap.String("kind", string(c.kind)),
					zap.String("severity", string(c.severity)),
				)
				return &models.AlertChange{Type: models.AlertOpened, Alert: *alert, Observation: c.observation}, nil
			}

		case err != nil:
			return nil, err

		default:
			if !shouldUpgrade(existing.Severity, c.severity, c.strict) {
				return nil, nil
			}
			previous := existing.Severity
			existing.Severity = c.severity
			existing.Message = c.message
			existing.UpdatedAt = now
			if c.observation != nil {
				id := c.observation.ObservationID
				existing.ObservationID = &id
			}
			err = e.repo.UpdateAlert(ctx, tenantID, existing)
			if err == nil {
				e.logger.Info("Alert upgraded",
					zap.String("alert_id", existing.AlertID),
					zap.String("patient_id", patientID),
					zap.String("kind", string(c.kind)),
					zap.String("from", string(previous)),
					zap.String("to", string(c.severity)),
				)
				return &models.AlertChange{Type: models.AlertUpgraded, Alert: *existing, Observation: c.observation}, nil
			}
		}

		if !errors.Is(err, models.ErrAlertConflict) {
			return nil, err
		}
		e.logger.Debug("Alert upsert lost a race, retrying",
			zap.String("patient_id", patientID),
			zap.String("kind", string(c.kind)),
			zap.Int("attempt", attempt),
		)
	}

	return nil, fmt.Errorf("upsert %s alert for patient %s after %d attempts: %w",
		c.kind, patientID, e.opts.MaxUpsertAttempts, models.ErrRepositoryUnavailable)
}

// resolveOpen resolves the open alert of kind, if any.
func (e *Engine) resolveOpen(ctx context.Context, tenantID, patientID string, kind models.AlertKind, obs *models.Observation, now time.Time) (*models.AlertChange, error) {
	for attempt := 1; attempt <= e.opts.MaxUpsertAttempts; attempt++ {
		open, err := e.repo.GetOpenAlert(ctx, tenantID, patientID, kind)
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		markResolved(open, now)
		err = e.repo.UpdateAlert(ctx, tenantID, open)
		if err == nil {
			e.logger.Info("Alert resolved by new observation",
				zap.String("alert_id", open.AlertID),
				zap.String("patient_id", patientID),
				zap.String("kind", string(kind)),
			)
			return &models.AlertChange{Type: models.AlertResolved, Alert: *open, Observation: obs}, nil
		}
		if !errors.Is(err, models.ErrAlertConflict) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("resolve %s alert for patient %s after %d attempts: %w",
		kind, patientID, e.opts.MaxUpsertAttempts, models.ErrRepositoryUnavailable)
}

func shouldUpgrade(current, next models.Severity, strict bool) bool {
	if strict {
		return next.Rank() > current.Rank()
	}
	return next.Rank() >= current.Rank()
}

func markResolved(a *models.Alert, now time.Time) {
	t := now
	a.Resolved = true
	a.ResolvedAt = &t
	a.UpdatedAt = now
}
