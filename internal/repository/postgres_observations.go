package repository

import (
	"context"
	"time"

	"wisefido-ews/internal/models"
)

const observationColumns = `observation_id, tenant_id, patient_id, recorded_by, observed_at,
	respiratory_rate, spo2, supplemental_o2, systolic_bp, pulse_rate, consciousness, temperature,
	respiratory_rate_score, spo2_score, supplemental_o2_score, systolic_bp_score,
	pulse_rate_score, consciousness_score, temperature_score,
	total_score, single_param_critical, risk_level, notes, action_taken, next_review_at, created_at`

func scanObservation(row scanner) (*models.Observation, error) {
	var o models.Observation
	if err := row.Scan(
		&o.ObservationID, &o.TenantID, &o.PatientID, &o.RecordedBy, &o.ObservedAt,
		&o.RespiratoryRate, &o.SpO2, &o.SupplementalO2, &o.SystolicBP, &o.PulseRate, &o.Consciousness, &o.Temperature,
		&o.Scores.RespiratoryRate, &o.Scores.SpO2, &o.Scores.SupplementalO2, &o.Scores.SystolicBP,
		&o.Scores.PulseRate, &o.Scores.Consciousness, &o.Scores.Temperature,
		&o.TotalScore, &o.SingleParamCritical, &o.RiskLevel, &o.Notes, &o.ActionTaken, &o.NextReviewAt, &o.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &o, nil
}

// InsertObservation implements ObservationsRepository.
func (r *PostgresRepository) InsertObservation(ctx context.Context, tenantID string, o *models.Observation) error {
	query := `INSERT INTO ews_observations (` + observationColumns + `) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		$14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26
	)`
	_, err := r.q(ctx).ExecContext(ctx, query,
		o.ObservationID, tenantID, o.PatientID, o.RecordedBy, o.ObservedAt,
		o.RespiratoryRate, o.SpO2, o.SupplementalO2, o.SystolicBP, o.PulseRate, string(o.Consciousness), o.Temperature,
		o.Scores.RespiratoryRate, o.Scores.SpO2, o.Scores.SupplementalO2, o.Scores.SystolicBP,
		o.Scores.PulseRate, o.Scores.Consciousness, o.Scores.Temperature,
		o.TotalScore, o.SingleParamCritical, o.RiskLevel, o.Notes, o.ActionTaken, o.NextReviewAt, o.CreatedAt,
	)
	if err != nil {
		return mapErr("insert observation", err)
	}
	return nil
}

// GetLatestObservation implements ObservationsRepository.
func (r *PostgresRepository) GetLatestObservation(ctx context.Context, tenantID, patientID string) (*models.Observation, error) {
	query := `SELECT ` + observationColumns + `
		FROM ews_observations
		WHERE tenant_id = $1 AND patient_id = $2
		ORDER BY observed_at DESC, created_at DESC
		LIMIT 1
	`
	o, err := scanObservation(r.q(ctx).QueryRowContext(ctx, query, tenantID, patientID))
	if err != nil {
		return nil, mapErr("get latest observation", err)
	}
	return o, nil
}

// GetObservationBefore implements ObservationsRepository.
func (r *PostgresRepository) GetObservationBefore(ctx context.Context, tenantID, patientID string, t time.Time) (*models.Observation, error) {
	query := `SELECT ` + observationColumns + `
		FROM ews_observations
		WHERE tenant_id = $1 AND patient_id = $2 AND observed_at < $3
		ORDER BY observed_at DESC, created_at DESC
		LIMIT 1
	`
	o, err := scanObservation(r.q(ctx).QueryRowContext(ctx, query, tenantID, patientID, t))
	if err != nil {
		return nil, mapErr("get observation before", err)
	}
	return o, nil
}

// ListObservations implements ObservationsRepository.
func (r *PostgresRepository) ListObservations(ctx context.Context, tenantID, patientID string, limit int) ([]*models.Observation, error) {
	query := `SELECT ` + observationColumns + `
		FROM ews_observations
		WHERE tenant_id = $1 AND patient_id = $2
		ORDER BY observed_at DESC, created_at DESC
	`
	args := []any{tenantID, patientID}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := r.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr("list observations", err)
	}
	defer rows.Close()

	var out []*models.Observation
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, mapErr("scan observation", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("list observations", err)
	}
	return out, nil
}
