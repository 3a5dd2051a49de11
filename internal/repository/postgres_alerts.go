package repository

import (
	"context"
	"database/sql"
	"fmt"

	"wisefido-ews/internal/models"
)

const alertColumns = `alert_id, tenant_id, patient_id, branch_id, observation_id, kind, severity, message,
	acknowledged, acknowledged_by, acknowledged_at, resolved, resolved_at, created_at, updated_at, version`

// severityOrder ranks severities in SQL the same way models.Severity.Rank does.
const severityOrder = `CASE severity WHEN 'critical' THEN 4 WHEN 'high' THEN 3 WHEN 'medium' THEN 2 WHEN 'low' THEN 1 ELSE 0 END`

func scanAlert(row scanner) (*models.Alert, error) {
	var (
		a              models.Alert
		observationID  sql.NullString
		acknowledgedBy sql.NullString
		acknowledgedAt sql.NullTime
		resolvedAt     sql.NullTime
	)
	if err := row.Scan(
		&a.AlertID, &a.TenantID, &a.PatientID, &a.BranchID, &observationID, &a.Kind, &a.Severity, &a.Message,
		&a.Acknowledged, &acknowledgedBy, &acknowledgedAt, &a.Resolved, &resolvedAt, &a.CreatedAt, &a.UpdatedAt, &a.Version,
	); err != nil {
		return nil, err
	}
	a.ObservationID = nullString(observationID)
	a.AcknowledgedBy = nullString(acknowledgedBy)
	a.AcknowledgedAt = nullTime(acknowledgedAt)
	a.ResolvedAt = nullTime(resolvedAt)
	return &a, nil
}

func (r *PostgresRepository) queryAlerts(ctx context.Context, op, query string, args ...any) ([]*models.Alert, error) {
	rows, err := r.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr(op, err)
	}
	defer rows.Close()

	var alerts []*models.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, mapErr("scan alert", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(op, err)
	}
	return alerts, nil
}

// GetAlert implements AlertsRepository.
func (r *PostgresRepository) GetAlert(ctx context.Context, tenantID, alertID string) (*models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM ews_alerts WHERE tenant_id = $1 AND alert_id = $2`
	a, err := scanAlert(r.q(ctx).QueryRowContext(ctx, query, tenantID, alertID))
	if err != nil {
		return nil, mapErr("get alert", err)
	}
	return a, nil
}

// GetOpenAlert implements AlertsRepository.
func (r *PostgresRepository) GetOpenAlert(ctx context.Context, tenantID, patientID string, kind models.AlertKind) (*models.Alert, error) {
	query := `SELECT ` + alertColumns + `
		FROM ews_alerts
		WHERE tenant_id = $1 AND patient_id = $2 AND kind = $3 AND resolved = FALSE
	`
	a, err := scanAlert(r.q(ctx).QueryRowContext(ctx, query, tenantID, patientID, kind))
	if err != nil {
		return nil, mapErr("get open alert", err)
	}
	return a, nil
}

// CreateAlert implements AlertsRepository. The insert is conditional on the partial unique
// index, so a concurrent opener loses with models.ErrAlertConflict instead of a duplicate row.
func (r *PostgresRepository) CreateAlert(ctx context.Context, tenantID string, a *models.Alert) error {
	query := `INSERT INTO ews_alerts (` + alertColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (tenant_id, patient_id, kind) WHERE resolved = FALSE DO NOTHING
	`
	if a.Version == 0 {
		a.Version = 1
	}
	res, err := r.q(ctx).ExecContext(ctx, query,
		a.AlertID, tenantID, a.PatientID, a.BranchID, a.ObservationID, a.Kind, a.Severity, a.Message,
		a.Acknowledged, a.AcknowledgedBy, a.AcknowledgedAt, a.Resolved, a.ResolvedAt, a.CreatedAt, a.UpdatedAt, a.Version,
	)
	if err != nil {
		return mapErr("insert alert", err)
	}
	return requireOneRow(res, "insert alert", models.ErrAlertConflict)
}

// UpdateAlert implements AlertsRepository.
func (r *PostgresRepository) UpdateAlert(ctx context.Context, tenantID string, a *models.Alert) error {
	query := `
		UPDATE ews_alerts
		SET observation_id = $1, severity = $2, message = $3,
		    acknowledged = $4, acknowledged_by = $5, acknowledged_at = $6,
		    resolved = $7, resolved_at = $8, updated_at = $9,
		    version = version + 1
		WHERE tenant_id = $10 AND alert_id = $11 AND version = $12 AND resolved = FALSE
	`
	res, err := r.q(ctx).ExecContext(ctx, query,
		a.ObservationID, a.Severity, a.Message,
		a.Acknowledged, a.AcknowledgedBy, a.AcknowledgedAt,
		a.Resolved, a.ResolvedAt, a.UpdatedAt,
		tenantID, a.AlertID, a.Version,
	)
	if err != nil {
		return mapErr("update alert", err)
	}
	if err := requireOneRow(res, "update alert", models.ErrAlertConflict); err != nil {
		return fmt.Errorf("alert %s version %d: %w", a.AlertID, a.Version, err)
	}
	a.Version++
	return nil
}

// ListOpenAlerts implements AlertsRepository.
func (r *PostgresRepository) ListOpenAlerts(ctx context.Context, tenantID, branchID string) ([]*models.Alert, error) {
	query := `SELECT ` + alertColumns + `
		FROM ews_alerts
		WHERE tenant_id = $1 AND resolved = FALSE AND ($2 = '' OR branch_id = $2)
		ORDER BY ` + severityOrder + ` DESC, created_at DESC
	`
	return r.queryAlerts(ctx, "list open alerts", query, tenantID, branchID)
}

// ListPatientAlerts implements AlertsRepository.
func (r *PostgresRepository) ListPatientAlerts(ctx context.Context, tenantID, patientID string) ([]*models.Alert, error) {
	query := `SELECT ` + alertColumns + `
		FROM ews_alerts
		WHERE tenant_id = $1 AND patient_id = $2
		ORDER BY created_at DESC
	`
	return r.queryAlerts(ctx, "list patient alerts", query, tenantID, patientID)
}
