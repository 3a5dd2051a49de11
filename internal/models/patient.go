package models

import (
	"fmt"
	"strings"
	"time"
)

// MonitoringFrequency is the configured observation interval for a patient.
type MonitoringFrequency string

const (
	FrequencyEvery15Min MonitoringFrequency = "15m"
	FrequencyHourly     MonitoringFrequency = "1h"
	Frequency4Hourly    MonitoringFrequency = "4h"
	Frequency12Hourly   MonitoringFrequency = "12h"
	FrequencyDaily      MonitoringFrequency = "24h"
)

var frequencyIntervals = map[MonitoringFrequency]time.Duration{
	FrequencyEvery15Min: 15 * time.Minute,
	FrequencyHourly:     time.Hour,
	Frequency4Hourly:    4 * time.Hour,
	Frequency12Hourly:   12 * time.Hour,
	FrequencyDaily:      24 * time.Hour,
}

var frequencyAliases = map[string]MonitoringFrequency{
	"15m":       FrequencyEvery15Min,
	"15min":     FrequencyEvery15Min,
	"every_15m": FrequencyEvery15Min,
	"1h":        FrequencyHourly,
	"hourly":    FrequencyHourly,
	"4h":        Frequency4Hourly,
	"4_hourly":  Frequency4Hourly,
	"12h":       Frequency12Hourly,
	"12_hourly": Frequency12Hourly,
	"24h":       FrequencyDaily,
	"daily":     FrequencyDaily,
}

// ParseFrequency accepts the canonical values plus the aliases used by the care app.
func ParseFrequency(s string) (MonitoringFrequency, error) {
	if f, ok := frequencyAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return f, nil
	}
	return "", fmt.Errorf("unknown monitoring frequency %q", s)
}

// Valid reports whether f is one of the enumerated intervals.
func (f MonitoringFrequency) Valid() bool {
	_, ok := frequencyIntervals[f]
	return ok
}

// Interval returns the duration between expected observations, zero for unknown values.
func (f MonitoringFrequency) Interval() time.Duration {
	return frequencyIntervals[f]
}

// MonitoringPatient is a client enrolled in early-warning monitoring (monitoring_patients table).
type MonitoringPatient struct {
	PatientID       string              `json:"patient_id" db:"patient_id"`
	TenantID        string              `json:"tenant_id" db:"tenant_id"`
	ClientID        string              `json:"client_id" db:"client_id"`
	BranchID        string              `json:"branch_id" db:"branch_id"`
	AssignedCarerID *string             `json:"assigned_carer_id,omitempty" db:"assigned_carer_id"`
	RiskLevel       RiskLevel           `json:"risk_level" db:"risk_level"`
	Frequency       MonitoringFrequency `json:"frequency" db:"frequency"`
	Active          bool                `json:"active" db:"active"`
	Notes           string              `json:"notes" db:"notes"`
	EnrolledAt      time.Time           `json:"enrolled_at" db:"enrolled_at"`
	DeactivatedAt   *time.Time          `json:"deactivated_at,omitempty" db:"deactivated_at"`
	UpdatedAt       time.Time           `json:"updated_at" db:"updated_at"`

	// LastObservedAt is derived from the observations table, never written directly.
	LastObservedAt *time.Time `json:"last_observed_at,omitempty" db:"-"`
}

// Baseline is the instant the monitoring clock counts from: the last observation, or enrollment.
func (p *MonitoringPatient) Baseline() time.Time {
	if p.LastObservedAt != nil {
		return *p.LastObservedAt
	}
	return p.EnrolledAt
}

// IsLatest reports whether a reading taken at observedAt is at least as recent as every stored one.
func (p *MonitoringPatient) IsLatest(observedAt time.Time) bool {
	return p.LastObservedAt == nil || !observedAt.Before(*p.LastObservedAt)
}

// NextDue is Baseline plus the monitoring interval.
func (p *MonitoringPatient) NextDue() time.Time {
	return p.Baseline().Add(p.Frequency.Interval())
}
