package scoring

import (
	"time"

	"wisefido-ews/internal/models"
)

// Classify maps a total score and the single-parameter-critical flag to a risk tier.
// A lone critical parameter lifts an otherwise low total to low-medium.
func Classify(total int, singleParamCritical bool) models.RiskLevel {
	switch {
	case total >= 7:
		return models.RiskHigh
	case total >= 5:
		return models.RiskMedium
	case singleParamCritical:
		return models.RiskLowMedium
	}
	return models.RiskLow
}

// ReviewInterval is the longest clinically acceptable gap before the next observation for a tier.
func ReviewInterval(risk models.RiskLevel) time.Duration {
	switch risk {
	case models.RiskHigh:
		return 15 * time.Minute
	case models.RiskMedium, models.RiskLowMedium:
		return time.Hour
	}
	return 12 * time.Hour
}

// NextReview is the earlier of the patient's monitoring interval and the tier's review interval.
func NextReview(observedAt time.Time, frequency models.MonitoringFrequency, risk models.RiskLevel) time.Time {
	next := observedAt.Add(ReviewInterval(risk))
	if interval := frequency.Interval(); interval > 0 {
		if byFrequency := observedAt.Add(interval); byFrequency.Before(next) {
			return byFrequency
		}
	}
	return next
}
