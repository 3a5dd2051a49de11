// Package trend compares consecutive observations of a patient to detect deterioration.
package trend

import (
	"fmt"
	"strings"

	"wisefido-ews/internal/models"
)

// ScoreRiseThreshold is the total-score increase that counts as deterioration.
const ScoreRiseThreshold = 2

// Result describes the change between two observations.
type Result struct {
	Deteriorating bool   `json:"deteriorating"`
	Summary       string `json:"summary"`
	PreviousTotal *int   `json:"previous_total,omitempty"`
}

// Analyze compares current against previous. previous is nil for a first observation,
// which never counts as deteriorating.
func Analyze(previous, current *models.Observation) Result {
	if previous == nil {
		return Result{Summary: "no baseline"}
	}

	prevTotal := previous.TotalScore
	res := Result{PreviousTotal: &prevTotal}

	var reasons []string
	if current.TotalScore-previous.TotalScore >= ScoreRiseThreshold {
		reasons = append(reasons, fmt.Sprintf("score rose %d→%d", previous.TotalScore, current.TotalScore))
	}
	if previous.Consciousness == models.ConsciousnessAlert && current.Consciousness != models.ConsciousnessAlert {
		reasons = append(reasons, fmt.Sprintf("consciousness %s→%s", previous.Consciousness, current.Consciousness))
	}

	if len(reasons) == 0 {
		res.Summary = fmt.Sprintf("score %d→%d", previous.TotalScore, current.TotalScore)
		return res
	}
	res.Deteriorating = true
	res.Summary = strings.Join(reasons, "; ")
	return res
}
