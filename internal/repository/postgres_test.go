package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wisefido-ews/internal/models"
)

func setupMockRepository(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	return db, mock, NewPostgresRepository(db, zap.NewNop())
}

var patientRowColumns = []string{
	"patient_id", "tenant_id", "client_id", "branch_id", "assigned_carer_id",
	"risk_level", "frequency", "active", "notes", "enrolled_at", "deactivated_at", "updated_at",
	"last_observed_at",
}

var alertRowColumns = []string{
	"alert_id", "tenant_id", "patient_id", "branch_id", "observation_id", "kind", "severity", "message",
	"acknowledged", "acknowledged_by", "acknowledged_at", "resolved", "resolved_at", "created_at", "updated_at", "version",
}

// ============================================
// Patients
// ============================================

func TestGetPatient_Success(t *testing.T) {
	db, mock, repo := setupMockRepository(t)
	defer db.Close()

	tenantID := uuid.New().String()
	patientID := uuid.New().String()
	enrolledAt := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	lastObserved := enrolledAt.Add(2 * time.Hour)

	rows := sqlmock.NewRows(patientRowColumns).AddRow(
		patientID, tenantID, "client-1", "branch-1", nil,
		"medium", "1h", true, "", enrolledAt, nil, enrolledAt,
		lastObserved,
	)
	mock.ExpectQuery(`SELECT .* FROM monitoring_patients p`).
		WithArgs(tenantID, patientID).
		WillReturnRows(rows)

	p, err := repo.GetPatient(context.Background(), tenantID, patientID)

	require.NoError(t, err)
	assert.Equal(t, patientID, p.PatientID)
	assert.Equal(t, models.RiskMedium, p.RiskLevel)
	assert.Equal(t, models.FrequencyHourly, p.Frequency)
	assert.True(t, p.Active)
	assert.Nil(t, p.AssignedCarerID)
	assert.Nil(t, p.DeactivatedAt)
	require.NotNil(t, p.LastObservedAt)
	assert.True(t, lastObserved.Equal(*p.LastObservedAt))
	assert.True(t, p.NextDue().Equal(lastObserved.Add(time.Hour)))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPatient_NotFound(t *testing.T) {
	db, mock, repo := setupMockRepository(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM monitoring_patients p`).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetPatient(context.Background(), "t", "p")

	assert.ErrorIs(t, err, models.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPatient_DriverFailureIsUnavailable(t *testing.T) {
	db, mock, repo := setupMockRepository(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM monitoring_patients p`).
		WillReturnError(errors.New("connection refused"))

	_, err := repo.GetPatient(context.Background(), "t", "p")

	assert.ErrorIs(t, err, models.ErrRepositoryUnavailable)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestGetPatient_MalformedIDIsNotFound(t *testing.T) {
	db, mock, repo := setupMockRepository(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM monitoring_patients p`).
		WithArgs("t", "abc").
		WillReturnError(&pq.Error{Code: "22P02", Message: `invalid input syntax for type uuid: "abc"`})

	_, err := repo.GetPatient(context.Background(), "t", "abc")

	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.NotErrorIs(t, err, models.ErrRepositoryUnavailable)
}

func TestCreatePatient_Duplicate(t *testing.T) {
	db, mock, repo := setupMockRepository(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO monitoring_patients`).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value"})

	err := repo.CreatePatient(context.Background(), "t", &models.MonitoringPatient{PatientID: "p"})

	assert.ErrorIs(t, err, models.ErrAlreadyExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeactivatePatient_Missing(t *testing.T) {
	db, mock, repo := setupMockRepository(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectExec(`UPDATE monitoring_patients`).
		WithArgs(now, "t", "p").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.DeactivatePatient(context.Background(), "t", "p", now)

	assert.ErrorIs(t, err, models.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListActivePatients(t *testing.T) {
	db, mock, repo := setupMockRepository(t)
	defer db.Close()

	enrolled := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(patientRowColumns).
		AddRow("p1", "t", "c1", "b1", "carer-9", "low", "12h", true, "", enrolled, nil, enrolled, nil).
		AddRow("p2", "t", "c2", "b1", nil, "high", "15m", true, "", enrolled, nil, enrolled, enrolled)
	mock.ExpectQuery(`SELECT .* WHERE p.active = TRUE AND p.tenant_id = \$1`).
		WithArgs("t").
		WillReturnRows(rows)

	patients, err := repo.ListActivePatients(context.Background(), "t")

	require.NoError(t, err)
	require.Len(t, patients, 2)
	require.NotNil(t, patients[0].AssignedCarerID)
	assert.Equal(t, "carer-9", *patients[0].AssignedCarerID)
	assert.Nil(t, patients[0].LastObservedAt)
	assert.True(t, patients[0].Baseline().Equal(enrolled))
	assert.NotNil(t, patients[1].LastObservedAt)
}

func TestListActivePatients_AllTenants(t *testing.T) {
	db, mock, repo := setupMockRepository(t)
	defer db.Close()

	enrolled := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(patientRowColumns).
		AddRow("p1", "t1", "c1", "b1", nil, "low", "1h", true, "", enrolled, nil, enrolled, nil).
		AddRow("p2", "t2", "c2", "b9", nil, "low", "1h", true, "", enrolled, nil, enrolled, nil)
	mock.ExpectQuery(`SELECT .* WHERE p.active = TRUE ORDER BY`).
		WillReturnRows(rows)

	patients, err := repo.ListActivePatients(context.Background(), "")

	require.NoError(t, err)
	require.Len(t, patients, 2)
	assert.Equal(t, "t1", patients[0].TenantID)
	assert.Equal(t, "t2", patients[1].TenantID)
	require.NoError(t, mock.ExpectationsWereMet())
}

// ============================================
// Observations
// ============================================

func TestInsertObservation(t *testing.T) {
	db, mock, repo := setupMockRepository(t)
	defer db.Close()

	obs := &models.Observation{
		ObservationID: "o1",
		PatientID:     "p1",
		RecordedBy:    "nurse",
		Vitals: models.Vitals{
			RespiratoryRate: 21, SpO2: 95, SystolicBP: 105, PulseRate: 95,
			Consciousness: models.ConsciousnessAlert, Temperature: 37.0,
		},
		Scores:     models.ComponentScores{RespiratoryRate: 1, SpO2: 2, SystolicBP: 2, PulseRate: 1},
		TotalScore: 6,
		RiskLevel:  models.RiskMedium,
	}

	mock.ExpectExec(`INSERT INTO ews_observations`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.InsertObservation(context.Background(), "t", obs))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListObservations_WithLimit(t *testing.T) {
	db, mock, repo := setupMockRepository(t)
	defer db.Close()

	observed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"observation_id", "tenant_id", "patient_id", "recorded_by", "observed_at",
		"respiratory_rate", "spo2", "supplemental_o2", "systolic_bp", "pulse_rate", "consciousness", "temperature",
		"respiratory_rate_score", "spo2_score", "supplemental_o2_score", "systolic_bp_score",
		"pulse_rate_score", "consciousness_score", "temperature_score",
		"total_score", "single_param_critical", "risk_level", "notes", "action_taken", "next_review_at", "created_at",
	}).AddRow(
		"o1", "t", "p1", "nurse", observed,
		21, 95, false, 105, 95, "A", 37.0,
		1, 2, 0, 2, 1, 0, 0,
		6, false, "medium", "", "", observed.Add(time.Hour), observed,
	)
	mock.ExpectQuery(`SELECT .* FROM ews_observations .* LIMIT \$3`).
		WithArgs("t", "p1", 5).
		WillReturnRows(rows)

	obs, err := repo.ListObservations(context.Background(), "t", "p1", 5)

	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.Equal(t, 6, obs[0].TotalScore)
	assert.Equal(t, models.ConsciousnessAlert, obs[0].Consciousness)
	assert.Equal(t, []int{1, 2, 0, 2, 1, 0, 0}, obs[0].Scores.Values())
	assert.Equal(t, models.RiskMedium, obs[0].RiskLevel)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetLatestObservation_None(t *testing.T) {
	db, mock, repo := setupMockRepository(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM ews_observations`).
		WithArgs("t", "p1").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetLatestObservation(context.Background(), "t", "p1")

	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestGetObservationBefore(t *testing.T) {
	db, mock, repo := setupMockRepository(t)
	defer db.Close()

	before := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT .* FROM ews_observations\s+WHERE tenant_id = \$1 AND patient_id = \$2 AND observed_at < \$3`).
		WithArgs("t", "p1", before).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetObservationBefore(context.Background(), "t", "p1", before)

	assert.ErrorIs(t, err, models.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

// ============================================
// Alerts
// ============================================

func newTestAlert() *models.Alert {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	obsID := "o1"
	return &models.Alert{
		AlertID:       uuid.New().String(),
		PatientID:     "p1",
		BranchID:      "b1",
		ObservationID: &obsID,
		Kind:          models.AlertKindHighScore,
		Severity:      models.SeverityHigh,
		Message:       "NEWS2 score 6 (medium)",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestCreateAlert_Success(t *testing.T) {
	db, mock, repo := setupMockRepository(t)
	defer db.Close()

	a := newTestAlert()
	mock.ExpectExec(`INSERT INTO ews_alerts .* ON CONFLICT \(tenant_id, patient_id, kind\) WHERE resolved = FALSE DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.CreateAlert(context.Background(), "t", a))
	assert.Equal(t, 1, a.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAlert_OpenAlertExists(t *testing.T) {
	db, mock, repo := setupMockRepository(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO ews_alerts`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.CreateAlert(context.Background(), "t", newTestAlert())

	assert.ErrorIs(t, err, models.ErrAlertConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAlert_IncrementsVersion(t *testing.T) {
	db, mock, repo := setupMockRepository(t)
	defer db.Close()

	a := newTestAlert()
	a.Version = 3
	a.Severity = models.SeverityCritical

	mock.ExpectExec(`UPDATE ews_alerts`).
		WithArgs(sqlmock.AnyArg(), models.SeverityCritical, a.Message,
			false, nil, nil, false, nil, a.UpdatedAt,
			"t", a.AlertID, 3).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateAlert(context.Background(), "t", a))
	assert.Equal(t, 4, a.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAlert_StaleVersion(t *testing.T) {
	db, mock, repo := setupMockRepository(t)
	defer db.Close()

	a := newTestAlert()
	a.Version = 2
	mock.ExpectExec(`UPDATE ews_alerts`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateAlert(context.Background(), "t", a)

	assert.ErrorIs(t, err, models.ErrAlertConflict)
	assert.Equal(t, 2, a.Version)
}

func TestListOpenAlerts_BranchFilter(t *testing.T) {
	db, mock, repo := setupMockRepository(t)
	defer db.Close()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(alertRowColumns).
		AddRow("a1", "t", "p1", "b1", "o1", "high_score", "critical", "m", false, nil, nil, false, nil, now, now, 1).
		AddRow("a2", "t", "p2", "b1", nil, "overdue_observation", "medium", "m", true, "nurse", now, false, nil, now, now, 2)
	mock.ExpectQuery(`SELECT .* FROM ews_alerts .* ORDER BY CASE severity`).
		WithArgs("t", "b1").
		WillReturnRows(rows)

	alerts, err := repo.ListOpenAlerts(context.Background(), "t", "b1")

	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, models.SeverityCritical, alerts[0].Severity)
	require.NotNil(t, alerts[0].ObservationID)
	assert.Nil(t, alerts[1].ObservationID)
	assert.Equal(t, models.AlertStatusAcknowledged, alerts[1].Status())
	require.NotNil(t, alerts[1].AcknowledgedBy)
	assert.Equal(t, "nurse", *alerts[1].AcknowledgedBy)
	require.NoError(t, mock.ExpectationsWereMet())
}

// ============================================
// Transactions
// ============================================

func TestWithinTx_Commit(t *testing.T) {
	db, mock, repo := setupMockRepository(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE monitoring_patients`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO ews_alerts`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.WithinTx(context.Background(), func(ctx context.Context) error {
		if err := repo.UpdatePatientRisk(ctx, "t", "p1", models.RiskHigh, time.Now()); err != nil {
			return err
		}
		// nested transactions join the outer one
		return repo.WithinTx(ctx, func(ctx context.Context) error {
			return repo.CreateAlert(ctx, "t", newTestAlert())
		})
	})

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTx_RollbackOnError(t *testing.T) {
	db, mock, repo := setupMockRepository(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO ews_alerts`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.WithinTx(context.Background(), func(ctx context.Context) error {
		return repo.CreateAlert(ctx, "t", newTestAlert())
	})

	assert.ErrorIs(t, err, models.ErrAlertConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	db, mock, repo := setupMockRepository(t)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS monitoring_patients`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.EnsureSchema(context.Background()))
	assert.Contains(t, schemaSQL, "ews_alerts_one_open_idx")
}

func TestMissingTables(t *testing.T) {
	db, mock, repo := setupMockRepository(t)
	defer db.Close()

	for _, table := range SchemaTables {
		mock.ExpectQuery(`SELECT to_regclass\(\$1\) IS NOT NULL`).
			WithArgs(table).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(table != "ews_alerts"))
	}

	missing, err := repo.MissingTables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"ews_alerts"}, missing)
	require.NoError(t, mock.ExpectationsWereMet())
}
