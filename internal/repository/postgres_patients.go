package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"wisefido-ews/internal/models"
)

const patientColumns = `p.patient_id, p.tenant_id, p.client_id, p.branch_id, p.assigned_carer_id,
	p.risk_level, p.frequency, p.active, p.notes, p.enrolled_at, p.deactivated_at, p.updated_at,
	(SELECT MAX(o.observed_at) FROM ews_observations o
	  WHERE o.tenant_id = p.tenant_id AND o.patient_id = p.patient_id) AS last_observed_at`

func scanPatient(row scanner) (*models.MonitoringPatient, error) {
	var (
		p             models.MonitoringPatient
		carer         sql.NullString
		deactivatedAt sql.NullTime
		lastObserved  sql.NullTime
	)
	if err := row.Scan(
		&p.PatientID, &p.TenantID, &p.ClientID, &p.BranchID, &carer,
		&p.RiskLevel, &p.Frequency, &p.Active, &p.Notes, &p.EnrolledAt, &deactivatedAt, &p.UpdatedAt,
		&lastObserved,
	); err != nil {
		return nil, err
	}
	p.AssignedCarerID = nullString(carer)
	p.DeactivatedAt = nullTime(deactivatedAt)
	p.LastObservedAt = nullTime(lastObserved)
	return &p, nil
}

// CreatePatient implements PatientsRepository.
func (r *PostgresRepository) CreatePatient(ctx context.Context, tenantID string, p *models.MonitoringPatient) error {
	query := `
		INSERT INTO monitoring_patients (
			patient_id, tenant_id, client_id, branch_id, assigned_carer_id,
			risk_level, frequency, active, notes, enrolled_at, deactivated_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.q(ctx).ExecContext(ctx, query,
		p.PatientID, tenantID, p.ClientID, p.BranchID, p.AssignedCarerID,
		p.RiskLevel, p.Frequency, p.Active, p.Notes, p.EnrolledAt, p.DeactivatedAt, p.UpdatedAt,
	)
	if err != nil {
		return mapErr("insert patient", err)
	}
	return nil
}

// GetPatient implements PatientsRepository.
func (r *PostgresRepository) GetPatient(ctx context.Context, tenantID, patientID string) (*models.MonitoringPatient, error) {
	query := `SELECT ` + patientColumns + `
		FROM monitoring_patients p
		WHERE p.tenant_id = $1 AND p.patient_id = $2
	`
	p, err := scanPatient(r.q(ctx).QueryRowContext(ctx, query, tenantID, patientID))
	if err != nil {
		return nil, mapErr("get patient", err)
	}
	return p, nil
}

// UpdatePatientRisk implements PatientsRepository.
func (r *PostgresRepository) UpdatePatientRisk(ctx context.Context, tenantID, patientID string, risk models.RiskLevel, at time.Time) error {
	query := `
		UPDATE monitoring_patients
		SET risk_level = $1, updated_at = $2
		WHERE tenant_id = $3 AND patient_id = $4
	`
	res, err := r.q(ctx).ExecContext(ctx, query, risk, at, tenantID, patientID)
	if err != nil {
		return mapErr("update patient risk", err)
	}
	return requireOneRow(res, "update patient risk", models.ErrNotFound)
}

// DeactivatePatient implements PatientsRepository. Deactivating twice is a no-op.
func (r *PostgresRepository) DeactivatePatient(ctx context.Context, tenantID, patientID string, at time.Time) error {
	query := `
		UPDATE monitoring_patients
		SET active = FALSE,
		    deactivated_at = COALESCE(deactivated_at, $1),
		    updated_at = $1
		WHERE tenant_id = $2 AND patient_id = $3
	`
	res, err := r.q(ctx).ExecContext(ctx, query, at, tenantID, patientID)
	if err != nil {
		return mapErr("deactivate patient", err)
	}
	return requireOneRow(res, "deactivate patient", models.ErrNotFound)
}

// ListActivePatients implements PatientsRepository.
func (r *PostgresRepository) ListActivePatients(ctx context.Context, tenantID string) ([]*models.MonitoringPatient, error) {
	query := `SELECT ` + patientColumns + `
		FROM monitoring_patients p
		WHERE p.active = TRUE`
	var args []any
	if tenantID != "" {
		query += ` AND p.tenant_id = $1`
		args = append(args, tenantID)
	}
	query += ` ORDER BY p.enrolled_at, p.patient_id`

	rows, err := r.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr("list active patients", err)
	}
	defer rows.Close()

	var patients []*models.MonitoringPatient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, mapErr("scan patient", err)
		}
		patients = append(patients, p)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr("list active patients", err)
	}
	return patients, nil
}

func requireOneRow(res sql.Result, op string, sentinel error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return mapErr(op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, sentinel)
	}
	return nil
}
