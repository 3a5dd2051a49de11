package consumer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"wisefido-ews/internal/models"
	"wisefido-ews/internal/repository"
)

var scanBase = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

type fakeOverdueEvaluator struct {
	mu      sync.Mutex
	seen    []string
	tenants map[string]string
	failFor string
}

func (f *fakeOverdueEvaluator) EvaluateOverdue(_ context.Context, tenantID string, p *models.MonitoringPatient, _ time.Time) ([]models.AlertChange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, p.PatientID)
	if f.tenants == nil {
		f.tenants = map[string]string{}
	}
	f.tenants[p.PatientID] = tenantID
	if p.PatientID == f.failFor {
		return nil, errors.New("boom")
	}
	return nil, nil
}

func enroll(t *testing.T, repo *repository.MemoryRepository, id string, freq models.MonitoringFrequency, active bool) {
	t.Helper()
	enrollIn(t, repo, "t1", id, freq, active)
}

func enrollIn(t *testing.T, repo *repository.MemoryRepository, tenantID, id string, freq models.MonitoringFrequency, active bool) {
	t.Helper()
	require.NoError(t, repo.CreatePatient(context.Background(), tenantID, &models.MonitoringPatient{
		PatientID: id, BranchID: "b1", Frequency: freq, Active: active,
		EnrolledAt: scanBase, UpdatedAt: scanBase,
	}))
}

func TestScanOnce(t *testing.T) {
	repo := repository.NewMemoryRepository()
	enroll(t, repo, "hourly-overdue", models.FrequencyHourly, true)
	enroll(t, repo, "daily-ok", models.FrequencyDaily, true)
	enroll(t, repo, "hourly-failing", models.FrequencyHourly, true)
	enroll(t, repo, "inactive", models.FrequencyEvery15Min, false)

	// a recent reading keeps this one on schedule
	enroll(t, repo, "hourly-observed", models.FrequencyHourly, true)
	require.NoError(t, repo.InsertObservation(context.Background(), "t1", &models.Observation{
		ObservationID: "o1", PatientID: "hourly-observed", ObservedAt: scanBase.Add(80 * time.Minute),
	}))

	eval := &fakeOverdueEvaluator{failFor: "hourly-failing"}
	scanner := NewOverdueScanner(repo, eval, "t1", time.Minute, 2, zap.NewNop())

	report, err := scanner.ScanOnce(context.Background(), scanBase.Add(90*time.Minute))

	require.NoError(t, err)
	assert.Equal(t, ScanReport{Patients: 4, Overdue: 2, Failed: 1}, report)
	assert.ElementsMatch(t, []string{"hourly-overdue", "hourly-failing"}, eval.seen)
}

func TestScanOnce_EveryTenant(t *testing.T) {
	repo := repository.NewMemoryRepository()
	enrollIn(t, repo, "t1", "p1", models.FrequencyHourly, true)
	enrollIn(t, repo, "t2", "p2", models.FrequencyHourly, true)

	eval := &fakeOverdueEvaluator{}
	scanner := NewOverdueScanner(repo, eval, "", time.Minute, 2, zap.NewNop())

	report, err := scanner.ScanOnce(context.Background(), scanBase.Add(150*time.Minute))

	require.NoError(t, err)
	assert.Equal(t, ScanReport{Patients: 2, Overdue: 2}, report)
	assert.Equal(t, map[string]string{"p1": "t1", "p2": "t2"}, eval.tenants)
}

func TestScanOnce_TenantScope(t *testing.T) {
	repo := repository.NewMemoryRepository()
	enrollIn(t, repo, "t1", "p1", models.FrequencyHourly, true)
	enrollIn(t, repo, "t2", "p2", models.FrequencyHourly, true)

	eval := &fakeOverdueEvaluator{}
	scanner := NewOverdueScanner(repo, eval, "t2", time.Minute, 1, zap.NewNop())

	report, err := scanner.ScanOnce(context.Background(), scanBase.Add(150*time.Minute))

	require.NoError(t, err)
	assert.Equal(t, ScanReport{Patients: 1, Overdue: 1}, report)
	assert.Equal(t, []string{"p2"}, eval.seen)
}

type failingPatients struct {
	repository.PatientsRepository
}

func (failingPatients) ListActivePatients(context.Context, string) ([]*models.MonitoringPatient, error) {
	return nil, models.ErrRepositoryUnavailable
}

func TestScanOnce_ListFailure(t *testing.T) {
	scanner := NewOverdueScanner(failingPatients{}, &fakeOverdueEvaluator{}, "t1", time.Minute, 1, zap.NewNop())

	_, err := scanner.ScanOnce(context.Background(), scanBase)

	assert.ErrorIs(t, err, models.ErrRepositoryUnavailable)
}

func TestStart_RunsImmediatelyAndStops(t *testing.T) {
	repo := repository.NewMemoryRepository()
	enroll(t, repo, "p1", models.FrequencyEvery15Min, true)

	eval := &fakeOverdueEvaluator{}
	scanner := NewOverdueScanner(repo, eval, "t1", time.Hour, 1, zap.NewNop())
	scanner.now = func() time.Time { return scanBase.Add(time.Hour) }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- scanner.Start(ctx) }()

	require.Eventually(t, func() bool {
		eval.mu.Lock()
		defer eval.mu.Unlock()
		return len(eval.seen) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scanner did not stop")
	}
}
