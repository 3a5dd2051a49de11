package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"wisefido-ews/internal/models"
)

type memoryTxKey struct{}

type memoryState struct {
	patients     map[string]models.MonitoringPatient
	observations map[string][]models.Observation // tenant/patient -> oldest first
	alerts       map[string]models.Alert
}

func (s *memoryState) clone() *memoryState {
	c := &memoryState{
		patients:     make(map[string]models.MonitoringPatient, len(s.patients)),
		observations: make(map[string][]models.Observation, len(s.observations)),
		alerts:       make(map[string]models.Alert, len(s.alerts)),
	}
	for k, v := range s.patients {
		c.patients[k] = v
	}
	for k, v := range s.observations {
		c.observations[k] = append([]models.Observation(nil), v...)
	}
	for k, v := range s.alerts {
		c.alerts[k] = v
	}
	return c
}

// MemoryRepository is an in-process MonitoringRepository, used by tests and when no database is configured.
// Transactions are serialised and work on a copy of the state that replaces the live one on commit.
type MemoryRepository struct {
	writeMu sync.Mutex // serialises writers and transactions
	mu      sync.RWMutex
	state   *memoryState
}

var _ MonitoringRepository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{state: &memoryState{
		patients:     make(map[string]models.MonitoringPatient),
		observations: make(map[string][]models.Observation),
		alerts:       make(map[string]models.Alert),
	}}
}

func key(tenantID, id string) string { return tenantID + "/" + id }

// WithinTx implements MonitoringRepository.
func (r *MemoryRepository) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(memoryTxKey{}).(*memoryState); ok {
		return fn(ctx)
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	r.mu.RLock()
	work := r.state.clone()
	r.mu.RUnlock()

	if err := fn(context.WithValue(ctx, memoryTxKey{}, work)); err != nil {
		return err
	}

	r.mu.Lock()
	r.state = work
	r.mu.Unlock()
	return nil
}

// read runs fn against the transaction state or a read-locked live state.
func (r *MemoryRepository) read(ctx context.Context, fn func(s *memoryState) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s, ok := ctx.Value(memoryTxKey{}).(*memoryState); ok {
		return fn(s)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return fn(r.state)
}

// write runs fn against the transaction state, or as its own single-call transaction.
func (r *MemoryRepository) write(ctx context.Context, fn func(s *memoryState) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s, ok := ctx.Value(memoryTxKey{}).(*memoryState); ok {
		return fn(s)
	}
	return r.WithinTx(ctx, func(ctx context.Context) error {
		return fn(ctx.Value(memoryTxKey{}).(*memoryState))
	})
}

func lastObservedAt(s *memoryState, tenantID, patientID string) *time.Time {
	var last *time.Time
	for _, o := range s.observations[key(tenantID, patientID)] {
		if last == nil || o.ObservedAt.After(*last) {
			t := o.ObservedAt
			last = &t
		}
	}
	return last
}

func (r *MemoryRepository) CreatePatient(ctx context.Context, tenantID string, p *models.MonitoringPatient) error {
	return r.write(ctx, func(s *memoryState) error {
		k := key(tenantID, p.PatientID)
		if _, exists := s.patients[k]; exists {
			return fmt.Errorf("patient %s already enrolled: %w", p.PatientID, models.ErrAlreadyExists)
		}
		stored := *p
		stored.TenantID = tenantID
		stored.LastObservedAt = nil
		s.patients[k] = stored
		return nil
	})
}

func (r *MemoryRepository) GetPatient(ctx context.Context, tenantID, patientID string) (*models.MonitoringPatient, error) {
	var out *models.MonitoringPatient
	err := r.read(ctx, func(s *memoryState) error {
		p, ok := s.patients[key(tenantID, patientID)]
		if !ok {
			return fmt.Errorf("get patient %s: %w", patientID, models.ErrNotFound)
		}
		p.LastObservedAt = lastObservedAt(s, tenantID, patientID)
		out = &p
		return nil
	})
	return out, err
}

func (r *MemoryRepository) UpdatePatientRisk(ctx context.Context, tenantID, patientID string, risk models.RiskLevel, at time.Time) error {
	return r.write(ctx, func(s *memoryState) error {
		k := key(tenantID, patientID)
		p, ok := s.patients[k]
		if !ok {
			return fmt.Errorf("update patient risk %s: %w", patientID, models.ErrNotFound)
		}
		p.RiskLevel = risk
		p.UpdatedAt = at
		s.patients[k] = p
		return nil
	})
}

func (r *MemoryRepository) DeactivatePatient(ctx context.Context, tenantID, patientID string, at time.Time) error {
	return r.write(ctx, func(s *memoryState) error {
		k := key(tenantID, patientID)
		p, ok := s.patients[k]
		if !ok {
			return fmt.Errorf("deactivate patient %s: %w", patientID, models.ErrNotFound)
		}
		p.Active = false
		if p.DeactivatedAt == nil {
			t := at
			p.DeactivatedAt = &t
		}
		p.UpdatedAt = at
		s.patients[k] = p
		return nil
	})
}

func (r *MemoryRepository) ListActivePatients(ctx context.Context, tenantID string) ([]*models.MonitoringPatient, error) {
	var out []*models.MonitoringPatient
	err := r.read(ctx, func(s *memoryState) error {
		for _, p := range s.patients {
			if !p.Active || (tenantID != "" && p.TenantID != tenantID) {
				continue
			}
			p := p
			p.LastObservedAt = lastObservedAt(s, p.TenantID, p.PatientID)
			out = append(out, &p)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EnrolledAt.Equal(out[j].EnrolledAt) {
			return out[i].EnrolledAt.Before(out[j].EnrolledAt)
		}
		return out[i].PatientID < out[j].PatientID
	})
	return out, err
}

func (r *MemoryRepository) InsertObservation(ctx context.Context, tenantID string, o *models.Observation) error {
	return r.write(ctx, func(s *memoryState) error {
		if _, ok := s.patients[key(tenantID, o.PatientID)]; !ok {
			return fmt.Errorf("insert observation for %s: %w", o.PatientID, models.ErrNotFound)
		}
		stored := *o
		stored.TenantID = tenantID
		k := key(tenantID, o.PatientID)
		s.observations[k] = append(s.observations[k], stored)
		return nil
	})
}

// sortedObservations returns the patient's observations newest first.
func sortedObservations(s *memoryState, tenantID, patientID string) []models.Observation {
	obs := append([]models.Observation(nil), s.observations[key(tenantID, patientID)]...)
	sort.SliceStable(obs, func(i, j int) bool {
		if !obs[i].ObservedAt.Equal(obs[j].ObservedAt) {
			return obs[i].ObservedAt.After(obs[j].ObservedAt)
		}
		return obs[i].CreatedAt.After(obs[j].CreatedAt)
	})
	return obs
}

func (r *MemoryRepository) GetLatestObservation(ctx context.Context, tenantID, patientID string) (*models.Observation, error) {
	var out *models.Observation
	err := r.read(ctx, func(s *memoryState) error {
		obs := sortedObservations(s, tenantID, patientID)
		if len(obs) == 0 {
			return fmt.Errorf("latest observation of %s: %w", patientID, models.ErrNotFound)
		}
		out = &obs[0]
		return nil
	})
	return out, err
}

func (r *MemoryRepository) GetObservationBefore(ctx context.Context, tenantID, patientID string, t time.Time) (*models.Observation, error) {
	var out *models.Observation
	err := r.read(ctx, func(s *memoryState) error {
		for _, o := range sortedObservations(s, tenantID, patientID) {
			if o.ObservedAt.Before(t) {
				out = &o
				return nil
			}
		}
		return fmt.Errorf("observation of %s before %s: %w", patientID, t.Format(time.RFC3339), models.ErrNotFound)
	})
	return out, err
}

func (r *MemoryRepository) ListObservations(ctx context.Context, tenantID, patientID string, limit int) ([]*models.Observation, error) {
	var out []*models.Observation
	err := r.read(ctx, func(s *memoryState) error {
		obs := sortedObservations(s, tenantID, patientID)
		if limit > 0 && len(obs) > limit {
			obs = obs[:limit]
		}
		for i := range obs {
			out = append(out, &obs[i])
		}
		return nil
	})
	return out, err
}

func (r *MemoryRepository) GetAlert(ctx context.Context, tenantID, alertID string) (*models.Alert, error) {
	var out *models.Alert
	err := r.read(ctx, func(s *memoryState) error {
		a, ok := s.alerts[key(tenantID, alertID)]
		if !ok {
			return fmt.Errorf("get alert %s: %w", alertID, models.ErrNotFound)
		}
		out = &a
		return nil
	})
	return out, err
}

func findOpenAlert(s *memoryState, tenantID, patientID string, kind models.AlertKind) (models.Alert, bool) {
	for _, a := range s.alerts {
		if a.TenantID == tenantID && a.PatientID == patientID && a.Kind == kind && !a.Resolved {
			return a, true
		}
	}
	return models.Alert{}, false
}

func (r *MemoryRepository) GetOpenAlert(ctx context.Context, tenantID, patientID string, kind models.AlertKind) (*models.Alert, error) {
	var out *models.Alert
	err := r.read(ctx, func(s *memoryState) error {
		a, ok := findOpenAlert(s, tenantID, patientID, kind)
		if !ok {
			return fmt.Errorf("open %s alert of %s: %w", kind, patientID, models.ErrNotFound)
		}
		out = &a
		return nil
	})
	return out, err
}

func (r *MemoryRepository) CreateAlert(ctx context.Context, tenantID string, a *models.Alert) error {
	return r.write(ctx, func(s *memoryState) error {
		if !a.Resolved {
			if _, ok := findOpenAlert(s, tenantID, a.PatientID, a.Kind); ok {
				return fmt.Errorf("insert %s alert for %s: %w", a.Kind, a.PatientID, models.ErrAlertConflict)
			}
		}
		if a.Version == 0 {
			a.Version = 1
		}
		stored := *a
		stored.TenantID = tenantID
		s.alerts[key(tenantID, a.AlertID)] = stored
		return nil
	})
}

func (r *MemoryRepository) UpdateAlert(ctx context.Context, tenantID string, a *models.Alert) error {
	return r.write(ctx, func(s *memoryState) error {
		k := key(tenantID, a.AlertID)
		current, ok := s.alerts[k]
		if !ok || current.Version != a.Version || current.Resolved {
			return fmt.Errorf("update alert %s version %d: %w", a.AlertID, a.Version, models.ErrAlertConflict)
		}
		stored := *a
		stored.TenantID = tenantID
		stored.Kind = current.Kind
		stored.PatientID = current.PatientID
		stored.BranchID = current.BranchID
		stored.CreatedAt = current.CreatedAt
		stored.Version = current.Version + 1
		s.alerts[k] = stored
		a.Version = stored.Version
		return nil
	})
}

// SortAlertsBySeverity orders alerts most severe first, then newest first.
func SortAlertsBySeverity(alerts []*models.Alert) {
	sort.SliceStable(alerts, func(i, j int) bool {
		ri, rj := alerts[i].Severity.Rank(), alerts[j].Severity.Rank()
		if ri != rj {
			return ri > rj
		}
		return alerts[i].CreatedAt.After(alerts[j].CreatedAt)
	})
}

func (r *MemoryRepository) ListOpenAlerts(ctx context.Context, tenantID, branchID string) ([]*models.Alert, error) {
	var out []*models.Alert
	err := r.read(ctx, func(s *memoryState) error {
		for _, a := range s.alerts {
			if a.TenantID != tenantID || a.Resolved || (branchID != "" && a.BranchID != branchID) {
				continue
			}
			a := a
			out = append(out, &a)
		}
		return nil
	})
	SortAlertsBySeverity(out)
	return out, err
}

func (r *MemoryRepository) ListPatientAlerts(ctx context.Context, tenantID, patientID string) ([]*models.Alert, error) {
	var out []*models.Alert
	err := r.read(ctx, func(s *memoryState) error {
		for _, a := range s.alerts {
			if a.TenantID == tenantID && a.PatientID == patientID {
				a := a
				out = append(out, &a)
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, err
}
