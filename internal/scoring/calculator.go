// Package scoring turns validated vital signs into early-warning scores and risk tiers.
// Everything here is pure and deterministic.
package scoring

import (
	"fmt"
	"math"

	"wisefido-ews/internal/models"
)

// Plausible physiological bounds; readings outside them are rejected before scoring.
const (
	minRespiratoryRate = 0
	maxRespiratoryRate = 80
	minSpO2            = 50
	maxSpO2            = 100
	minSystolicBP      = 40
	maxSystolicBP      = 300
	minPulseRate       = 20
	maxPulseRate       = 250
	minTemperature     = 25.0
	maxTemperature     = 45.0
)

// Result is the output of Score.
type Result struct {
	Scores              models.ComponentScores
	Total               int
	SingleParamCritical bool
	RiskLevel           models.RiskLevel
}

// Validate checks that every vital is present and plausible.
func Validate(raw models.RawVitals) (models.Vitals, error) {
	var v models.Vitals

	rr, err := requireInt("respiratory_rate", raw.RespiratoryRate, minRespiratoryRate, maxRespiratoryRate)
	if err != nil {
		return v, err
	}
	spo2, err := requireInt("spo2", raw.SpO2, minSpO2, maxSpO2)
	if err != nil {
		return v, err
	}
	if raw.SupplementalO2 == nil {
		return v, &models.InvalidObservationError{Field: "supplemental_o2", Reason: "is required"}
	}
	sbp, err := requireInt("systolic_bp", raw.SystolicBP, minSystolicBP, maxSystolicBP)
	if err != nil {
		return v, err
	}
	pulse, err := requireInt("pulse_rate", raw.PulseRate, minPulseRate, maxPulseRate)
	if err != nil {
		return v, err
	}
	if raw.Consciousness == nil {
		return v, &models.InvalidObservationError{Field: "consciousness", Reason: "is required"}
	}
	level, err := models.ParseConsciousness(*raw.Consciousness)
	if err != nil {
		return v, &models.InvalidObservationError{Field: "consciousness", Reason: "must be one of A, V, P, U"}
	}
	if raw.Temperature == nil {
		return v, &models.InvalidObservationError{Field: "temperature", Reason: "is required"}
	}
	temp := *raw.Temperature
	if math.IsNaN(temp) || temp < minTemperature || temp > maxTemperature {
		return v, &models.InvalidObservationError{
			Field:  "temperature",
			Reason: fmt.Sprintf("must be between %.1f and %.1f", minTemperature, maxTemperature),
		}
	}

	return models.Vitals{
		RespiratoryRate: rr,
		SpO2:            spo2,
		SupplementalO2:  *raw.SupplementalO2,
		SystolicBP:      sbp,
		PulseRate:       pulse,
		Consciousness:   level,
		Temperature:     roundTenth(temp),
	}, nil
}

func requireInt(field string, v *int, lo, hi int) (int, error) {
	if v == nil {
		return 0, &models.InvalidObservationError{Field: field, Reason: "is required"}
	}
	if *v < lo || *v > hi {
		return 0, &models.InvalidObservationError{Field: field, Reason: fmt.Sprintf("must be between %d and %d", lo, hi)}
	}
	return *v, nil
}

func roundTenth(f float64) float64 {
	return math.Round(f*10) / 10
}

// Evaluate validates raw and scores it.
func Evaluate(raw models.RawVitals) (models.Vitals, Result, error) {
	v, err := Validate(raw)
	if err != nil {
		return v, Result{}, err
	}
	return v, Score(v), nil
}

// Score applies the banding tables. v must come from Validate.
func Score(v models.Vitals) Result {
	scores := models.ComponentScores{
		RespiratoryRate: RespiratoryRateScore(v.RespiratoryRate),
		SpO2:            SpO2Score(v.SpO2),
		SupplementalO2:  SupplementalO2Score(v.SupplementalO2),
		SystolicBP:      SystolicBPScore(v.SystolicBP),
		PulseRate:       PulseRateScore(v.PulseRate),
		Consciousness:   ConsciousnessScore(v.Consciousness),
		Temperature:     TemperatureScore(v.Temperature),
	}

	critical := false
	for _, s := range scores.Values() {
		if s == 3 {
			critical = true
			break
		}
	}
	total := scores.Sum()

	return Result{
		Scores:              scores,
		Total:               total,
		SingleParamCritical: critical,
		RiskLevel:           Classify(total, critical),
	}
}

func RespiratoryRateScore(rr int) int {
	switch {
	case rr <= 8:
		return 3
	case rr <= 11:
		return 1
	case rr <= 20:
		return 0
	case rr <= 24:
		return 2
	}
	return 3
}

func SpO2Score(spo2 int) int {
	switch {
	case spo2 <= 91:
		return 3
	case spo2 <= 93:
		return 2
	case spo2 <= 95:
		return 1
	}
	return 0
}

func SupplementalO2Score(onOxygen bool) int {
	if onOxygen {
		return 2
	}
	return 0
}

func SystolicBPScore(sbp int) int {
	switch {
	case sbp <= 90:
		return 3
	case sbp <= 100:
		return 2
	case sbp <= 110:
		return 1
	case sbp <= 219:
		return 0
	}
	return 3
}

func PulseRateScore(pulse int) int {
	switch {
	case pulse <= 40:
		return 3
	case pulse <= 50:
		return 1
	case pulse <= 90:
		return 0
	case pulse <= 110:
		return 1
	case pulse <= 130:
		return 2
	}
	return 3
}

func ConsciousnessScore(c models.Consciousness) int {
	if c == models.ConsciousnessAlert {
		return 0
	}
	return 3
}

// TemperatureScore bands a temperature already rounded to one decimal.
func TemperatureScore(temp float64) int {
	t := roundTenth(temp)
	switch {
	case t <= 35.0:
		return 3
	case t <= 36.0:
		return 1
	case t <= 38.0:
		return 0
	case t <= 39.0:
		return 1
	}
	return 2
}
