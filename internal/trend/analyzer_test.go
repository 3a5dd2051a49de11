package trend

import (
	"testing"

	"wisefido-ews/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func obs(total int, c models.Consciousness) *models.Observation {
	o := &models.Observation{TotalScore: total}
	o.Consciousness = c
	return o
}

func TestAnalyze_FirstObservation(t *testing.T) {
	res := Analyze(nil, obs(9, models.ConsciousnessPain))
	assert.False(t, res.Deteriorating)
	assert.Equal(t, "no baseline", res.Summary)
	assert.Nil(t, res.PreviousTotal)
}

func TestAnalyze_ScoreRise(t *testing.T) {
	res := Analyze(obs(3, models.ConsciousnessAlert), obs(6, models.ConsciousnessAlert))
	assert.True(t, res.Deteriorating)
	assert.Equal(t, "score rose 3→6", res.Summary)
	require.NotNil(t, res.PreviousTotal)
	assert.Equal(t, 3, *res.PreviousTotal)

	res = Analyze(obs(4, models.ConsciousnessAlert), obs(7, models.ConsciousnessAlert))
	assert.True(t, res.Deteriorating)
	assert.Equal(t, "score rose 4→7", res.Summary)
}

func TestAnalyze_RiseOfExactlyTwo(t *testing.T) {
	assert.True(t, Analyze(obs(1, models.ConsciousnessAlert), obs(3, models.ConsciousnessAlert)).Deteriorating)
}

func TestAnalyze_SmallRiseOrFall(t *testing.T) {
	res := Analyze(obs(3, models.ConsciousnessAlert), obs(4, models.ConsciousnessAlert))
	assert.False(t, res.Deteriorating)
	assert.Equal(t, "score 3→4", res.Summary)

	assert.False(t, Analyze(obs(8, models.ConsciousnessAlert), obs(2, models.ConsciousnessAlert)).Deteriorating)
}

func TestAnalyze_ConsciousnessDrop(t *testing.T) {
	res := Analyze(obs(5, models.ConsciousnessAlert), obs(5, models.ConsciousnessPain))
	assert.True(t, res.Deteriorating)
	assert.Equal(t, "consciousness A→P", res.Summary)
}

func TestAnalyze_AlreadyNonAlertIsNotANewDrop(t *testing.T) {
	assert.False(t, Analyze(obs(5, models.ConsciousnessVoice), obs(5, models.ConsciousnessPain)).Deteriorating)
}

func TestAnalyze_BothReasons(t *testing.T) {
	res := Analyze(obs(2, models.ConsciousnessAlert), obs(8, models.ConsciousnessUnresponsive))
	assert.True(t, res.Deteriorating)
	assert.Equal(t, "score rose 2→8; consciousness A→U", res.Summary)
}
