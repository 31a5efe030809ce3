// Package statematch scores how well a task fits the user's current capacity.
//
// This is the [0,1] fit used for MIT selection and task prioritization.
// Package scoring carries a separate, coarser 0-100 fit term.
package statematch

import (
	"math"

	"github.com/fentz26/potok/internal/models"
)

// Breakdown exposes the sub-terms of a score.
type Breakdown struct {
	EnergyMatch     float64 `json:"energy_match"`
	FocusMatch      float64 `json:"focus_match"`
	StressPenalty   float64 `json:"stress_penalty"`
	MotivationBonus float64 `json:"motivation_bonus"`
}

// Result is the outcome of scoring one task.
type Result struct {
	Score          float64   `json:"score"`
	Breakdown      Breakdown `json:"breakdown"`
	ShouldDefer    bool      `json:"should_defer"`
	Recommendation string    `json:"recommendation"`
}

// Scored pairs a task with its result.
type Scored struct {
	Task   models.Task
	Result Result
}

// Score computes the fit of task against state. Pure.
func Score(task models.Task, state models.UserState, circadian models.CircadianContext) Result {
	energyMatch := math.Max(0, 1-math.Abs(state.EffectiveEnergy()-float64(task.RequiredEnergy))/10)
	focusMatch := math.Max(0, 1-math.Abs(state.EffectiveFocus()-float64(task.RequiredFocus))/100)
	motivationBonus := state.Motivation / 10
	stressPenalty := state.Stress / 10

	score := clamp01(energyMatch*0.4 + focusMatch*0.4 + motivationBonus*0.1 - stressPenalty*0.1)

	return Result{
		Score: score,
		Breakdown: Breakdown{
			EnergyMatch:     energyMatch,
			FocusMatch:      focusMatch,
			StressPenalty:   stressPenalty,
			MotivationBonus: motivationBonus,
		},
		ShouldDefer:    shouldDefer(score, task, state),
		Recommendation: recommend(score, task, state, circadian, energyMatch, focusMatch),
	}
}

// ScoreBatch scores every task against the same state.
func ScoreBatch(tasks []models.Task, state models.UserState, circadian models.CircadianContext) []Scored {
	out := make([]Scored, len(tasks))
	for i, t := range tasks {
		out[i] = Scored{Task: t, Result: Score(t, state, circadian)}
	}
	return out
}

// CircadianBonus rewards starting demanding tasks during a peak window.
func CircadianBonus(task models.Task, circadian models.CircadianContext) float64 {
	if !circadian.IsPeak {
		return 0
	}
	switch task.ComplexityLevel() {
	case models.LevelHigh:
		return 0.15
	case models.LevelMedium:
		return 0.10
	default:
		return 0.05
	}
}

func shouldDefer(score float64, task models.Task, state models.UserState) bool {
	if score < 0.3 {
		return true
	}
	high := task.ComplexityLevel() == models.LevelHigh
	if high && state.Energy < 5 {
		return true
	}
	if state.Stress > 7 && high {
		return true
	}
	return false
}

func recommend(score float64, task models.Task, state models.UserState, circadian models.CircadianContext, energyMatch, focusMatch float64) string {
	switch {
	case score >= 0.8:
		if circadian.IsPeak {
			return "Excellent fit, and this is your peak time. Start right now."
		}
		return "Excellent fit for your current state."
	case score >= 0.6:
		return "Good fit. You can start on it."
	case score >= 0.4:
		if energyMatch < 0.5 {
			return "Moderate fit. Better once your energy picks up."
		}
		if focusMatch < 0.5 {
			return "Moderate fit. Best done during your hours of strongest concentration."
		}
		return "Moderate fit. Doable, but expect it to take effort."
	}

	if state.Stress > 7 {
		return "Low fit. Bring your stress down first and take a break."
	}
	if task.ComplexityLevel() == models.LevelHigh && state.Energy < 5 {
		return "Low fit. Postpone until morning or after rest; this task needs more energy."
	}
	if focusMatch < 0.3 {
		return "Low fit. This task needs deep concentration; do it during peak hours."
	}
	return "Low fit. Consider postponing to a better moment."
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
