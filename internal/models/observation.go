package models

import (
	"fmt"
	"strings"
	"time"
)

// Consciousness is the ACVPU-style level recorded as A, V, P or U.
type Consciousness string

const (
	ConsciousnessAlert        Consciousness = "A"
	ConsciousnessVoice        Consciousness = "V"
	ConsciousnessPain         Consciousness = "P"
	ConsciousnessUnresponsive Consciousness = "U"
)

// ParseConsciousness accepts the single letter or the full word, case-insensitive.
func ParseConsciousness(s string) (Consciousness, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "a", "alert":
		return ConsciousnessAlert, nil
	case "v", "voice":
		return ConsciousnessVoice, nil
	case "p", "pain":
		return ConsciousnessPain, nil
	case "u", "unresponsive":
		return ConsciousnessUnresponsive, nil
	}
	return "", fmt.Errorf("unknown consciousness level %q", s)
}

// RiskLevel is the clinical risk tier derived from the total score.
type RiskLevel string

const (
	RiskLow       RiskLevel = "low"
	RiskLowMedium RiskLevel = "low-medium"
	RiskMedium    RiskLevel = "medium"
	RiskHigh      RiskLevel = "high"
)

// RawVitals is the untrusted ingestion payload. A nil field means the value was not supplied.
type RawVitals struct {
	RespiratoryRate *int     `json:"respiratory_rate"`
	SpO2            *int     `json:"spo2"`
	SupplementalO2  *bool    `json:"supplemental_o2"`
	SystolicBP      *int     `json:"systolic_bp"`
	PulseRate       *int     `json:"pulse_rate"`
	Consciousness   *string  `json:"consciousness"`
	Temperature     *float64 `json:"temperature"`
}

// Vitals is a validated reading; every field is present and within plausible bounds.
type Vitals struct {
	RespiratoryRate int           `json:"respiratory_rate" db:"respiratory_rate"`
	SpO2            int           `json:"spo2" db:"spo2"`
	SupplementalO2  bool          `json:"supplemental_o2" db:"supplemental_o2"`
	SystolicBP      int           `json:"systolic_bp" db:"systolic_bp"`
	PulseRate       int           `json:"pulse_rate" db:"pulse_rate"`
	Consciousness   Consciousness `json:"consciousness" db:"consciousness"`
	Temperature     float64       `json:"temperature" db:"temperature"`
}

// ComponentScores holds the 0-3 band score of each parameter.
type ComponentScores struct {
	RespiratoryRate int `json:"respiratory_rate_score" db:"respiratory_rate_score"`
	SpO2            int `json:"spo2_score" db:"spo2_score"`
	SupplementalO2  int `json:"supplemental_o2_score" db:"supplemental_o2_score"`
	SystolicBP      int `json:"systolic_bp_score" db:"systolic_bp_score"`
	PulseRate       int `json:"pulse_rate_score" db:"pulse_rate_score"`
	Consciousness   int `json:"consciousness_score" db:"consciousness_score"`
	Temperature     int `json:"temperature_score" db:"temperature_score"`
}

// Values lists the scores in chart order: RR, SpO2, O2, SBP, pulse, consciousness, temperature.
func (c ComponentScores) Values() []int {
	return []int{c.RespiratoryRate, c.SpO2, c.SupplementalO2, c.SystolicBP, c.PulseRate, c.Consciousness, c.Temperature}
}

// Sum adds up all component scores.
func (c ComponentScores) Sum() int {
	total := 0
	for _, v := range c.Values() {
		total += v
	}
	return total
}

// Observation is one recorded vital-signs check (observations table). Append-only.
type Observation struct {
	ObservationID string    `json:"observation_id" db:"observation_id"`
	TenantID      string    `json:"tenant_id" db:"tenant_id"`
	PatientID     string    `json:"patient_id" db:"patient_id"`
	RecordedBy    string    `json:"recorded_by" db:"recorded_by"`
	ObservedAt    time.Time `json:"observed_at" db:"observed_at"`

	Vitals
	Scores              ComponentScores `json:"scores"`
	TotalScore          int             `json:"total_score" db:"total_score"`
	SingleParamCritical bool            `json:"single_param_critical" db:"single_param_critical"`
	RiskLevel           RiskLevel       `json:"risk_level" db:"risk_level"`

	Notes        string    `json:"notes" db:"notes"`
	ActionTaken  string    `json:"action_taken" db:"action_taken"`
	NextReviewAt time.Time `json:"next_review_at" db:"next_review_at"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
