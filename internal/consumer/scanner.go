package consumer

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"wisefido-ews/internal/models"
	"wisefido-ews/internal/repository"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// OverdueEvaluator applies the overdue rule to one patient.
type OverdueEvaluator interface {
	EvaluateOverdue(ctx context.Context, tenantID string, patient *models.MonitoringPatient, now time.Time) ([]models.AlertChange, error)
}

// ScanReport summarises one scan.
type ScanReport struct {
	Patients int // active patients inspected
	Overdue  int // patients past their next due time
	Failed   int // patients whose evaluation returned an error
}

// OverdueScanner periodically checks every active patient for a missed observation.
type OverdueScanner struct {
	patients  repository.PatientsRepository
	evaluator OverdueEvaluator
	tenantID  string
	interval  time.Duration
	workers   int
	logger    *zap.Logger
	now       func() time.Time
}

// NewOverdueScanner creates a scanner. An empty tenantID scans every tenant; workers bounds
// concurrent evaluations.
func NewOverdueScanner(
	patients repository.PatientsRepository,
	evaluator OverdueEvaluator,
	tenantID string,
	interval time.Duration,
	workers int,
	logger *zap.Logger,
) *OverdueScanner {
	if workers <= 0 {
		workers = 1
	}
	return &OverdueScanner{
		patients:  patients,
		evaluator: evaluator,
		tenantID:  tenantID,
		interval:  interval,
		workers:   workers,
		logger:    logger,
		now:       time.Now,
	}
}

// Start scans immediately and then on every tick until ctx is done. Tick errors are logged.
func (s *OverdueScanner) Start(ctx context.Context) error {
	scope := s.tenantID
	if scope == "" {
		scope = "all"
	}
	s.logger.Info("Overdue scanner started",
		zap.String("tenant_scope", scope),
		zap.Duration("interval", s.interval),
		zap.Int("workers", s.workers),
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Overdue scanner stopped")
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *OverdueScanner) tick(ctx context.Context) {
	report, err := s.ScanOnce(ctx, s.now())
	if err != nil {
		s.logger.Error("Overdue scan failed", zap.Error(err))
		return
	}
	s.logger.Debug("Overdue scan finished",
		zap.Int("patients", report.Patients),
		zap.Int("overdue", report.Overdue),
		zap.Int("failed", report.Failed),
	)
}

// ScanOnce evaluates every active patient as of now. A per-patient failure is counted and logged;
// only listing the patients can fail the scan.
func (s *OverdueScanner) ScanOnce(ctx context.Context, now time.Time) (ScanReport, error) {
	patients, err := s.patients.ListActivePatients(ctx, s.tenantID)
	if err != nil {
		return ScanReport{}, fmt.Errorf("failed to list active patients: %w", err)
	}

	var overdue, failed atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(s.workers)

	for _, p := range patients {
		if !now.After(p.NextDue()) {
			continue
		}
		overdue.Add(1)

		p := p
		g.Go(func() error {
			if ctx.Err() != nil {
				failed.Add(1)
				return nil
			}
			if _, err := s.evaluator.EvaluateOverdue(ctx, p.TenantID, p, now); err != nil {
				failed.Add(1)
				s.logger.Error("Failed to evaluate overdue patient",
					zap.String("tenant_id", p.TenantID),
					zap.String("patient_id", p.PatientID),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	return ScanReport{
		Patients: len(patients),
		Overdue:  int(overdue.Load()),
		Failed:   int(failed.Load()),
	}, nil
}
