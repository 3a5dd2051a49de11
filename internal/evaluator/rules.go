package evaluator

import (
	"time"

	"wisefido-ews/internal/models"
)

// HighScoreSeverity maps a risk level to the high_score alert severity. Only medium and high risk alert.
func HighScoreSeverity(risk models.RiskLevel) (models.Severity, bool) {
	switch risk {
	case models.RiskMedium:
		return models.SeverityHigh, true
	case models.RiskHigh:
		return models.SeverityCritical, true
	}
	return "", false
}

// OverdueSeverity reports whether a patient last seen elapsed ago is overdue for an interval,
// and how severe: medium once past due, high beyond twice the interval.
func OverdueSeverity(elapsed, interval time.Duration) (models.Severity, bool) {
	if interval <= 0 || elapsed <= interval {
		return "", false
	}
	if elapsed > 2*interval {
		return models.SeverityHigh, true
	}
	return models.SeverityMedium, true
}
