package models

import "time"

// AlertKind identifies the triggering condition. At most one unresolved alert exists per (patient, kind).
type AlertKind string

const (
	AlertKindHighScore     AlertKind = "high_score"
	AlertKindDeteriorating AlertKind = "deteriorating"
	AlertKindOverdue       AlertKind = "overdue_observation"
)

// AlertKinds lists every kind in lock order.
var AlertKinds = []AlertKind{AlertKindHighScore, AlertKindDeteriorating, AlertKindOverdue}

// Severity of an alert, ordered low < medium < high < critical.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities; unknown values rank below low.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// AlertStatus is derived from the acknowledged/resolved flags.
type AlertStatus string

const (
	AlertStatusOpen         AlertStatus = "open"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusResolved     AlertStatus = "resolved"
)

// Alert is one triggering-condition instance (ews_alerts table). Never deleted.
type Alert struct {
	AlertID        string     `json:"alert_id" db:"alert_id"`
	TenantID       string     `json:"tenant_id" db:"tenant_id"`
	PatientID      string     `json:"patient_id" db:"patient_id"`
	BranchID       string     `json:"branch_id" db:"branch_id"`
	ObservationID  *string    `json:"observation_id,omitempty" db:"observation_id"`
	Kind           AlertKind  `json:"kind" db:"kind"`
	Severity       Severity   `json:"severity" db:"severity"`
	Message        string     `json:"message" db:"message"`
	Acknowledged   bool       `json:"acknowledged" db:"acknowledged"`
	AcknowledgedBy *string    `json:"acknowledged_by,omitempty" db:"acknowledged_by"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty" db:"acknowledged_at"`
	Resolved       bool       `json:"resolved" db:"resolved"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
	Version        int        `json:"version" db:"version"`
}

// Status reports the lifecycle state.
func (a *Alert) Status() AlertStatus {
	switch {
	case a.Resolved:
		return AlertStatusResolved
	case a.Acknowledged:
		return AlertStatusAcknowledged
	}
	return AlertStatusOpen
}

// AlertChangeType is the lifecycle transition an alert went through.
type AlertChangeType string

const (
	AlertOpened       AlertChangeType = "AlertOpened"
	AlertUpgraded     AlertChangeType = "AlertUpgraded"
	AlertAcknowledged AlertChangeType = "AlertAcknowledged"
	AlertResolved     AlertChangeType = "AlertResolved"
)

// AlertChange is a persisted transition plus the observation that caused it, if any.
type AlertChange struct {
	Type        AlertChangeType
	Alert       Alert
	Observation *Observation
}
