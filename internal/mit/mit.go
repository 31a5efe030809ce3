// Package mit selects the Most Important Task and ranks the active task list
// against the user's current state.
package mit

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/fentz26/potok/internal/models"
	"github.com/fentz26/potok/internal/scoring"
	"github.com/fentz26/potok/internal/statematch"
)

const (
	stateMatchWeight = 0.5
	priorityWeight   = 0.35
	deadlineWeight   = 0.15

	defaultDuration = 60 // minutes
)

type candidate struct {
	task     models.Task
	match    statematch.Result
	priority float64
	deadline float64
	bonus    float64
	final    float64
}

// Select returns the highest scoring active task, or nil when no task is
// pending or in progress. Ties go to the earlier deadline, then the lower ID.
func Select(tasks []models.Task, state models.UserState, circadian models.CircadianContext) *models.MitResult {
	var best *candidate
	for _, t := range tasks {
		if !t.Status.IsActive() {
			continue
		}
		match := statematch.Score(t, state, circadian)
		c := candidate{
			task:     t,
			match:    match,
			priority: PriorityScore(t),
			deadline: DeadlineUrgency(t, state.CurrentTime),
			bonus:    statematch.CircadianBonus(t, circadian),
		}
		c.final = c.match.Score*stateMatchWeight + c.priority*priorityWeight + c.deadline*deadlineWeight + c.bonus
		if best == nil || c.final > best.final || (c.final == best.final && scoring.TieBreak(&c.task, &best.task)) {
			cc := c
			best = &cc
		}
	}
	if best == nil {
		return nil
	}

	duration := best.task.EstimatedDuration
	if duration <= 0 {
		duration = defaultDuration
	}
	return &models.MitResult{
		TaskID:            best.task.ID,
		UserID:            best.task.UserID,
		Title:             best.task.Title,
		Description:       best.task.Description,
		PriorityScore:     best.priority,
		StateMatchScore:   best.match.Score,
		DeadlineUrgency:   best.deadline,
		CircadianBonus:    best.bonus,
		FinalScore:        best.final,
		Reason:            reason(best, circadian),
		RecommendedTime:   RecommendedTime(best.task, circadian),
		EstimatedDuration: duration,
	}
}

// Prioritize ranks tasks by calculated priority on a 0-10 scale, highest
// first. Every task is ranked; filtering is up to the caller.
func Prioritize(tasks []models.Task, state models.UserState, circadian models.CircadianContext) []models.PrioritizedTask {
	out := make([]models.PrioritizedTask, 0, len(tasks))
	for _, sc := range statematch.ScoreBatch(tasks, state, circadian) {
		priority := sc.Result.Score*stateMatchWeight +
			PriorityScore(sc.Task)*priorityWeight +
			DeadlineUrgency(sc.Task, state.CurrentTime)*deadlineWeight
		out = append(out, models.PrioritizedTask{
			Task:                  sc.Task,
			CalculatedPriority:    math.Round(priority*10*100) / 100,
			StateMatchScore:       sc.Result.Score,
			Recommendation:        sc.Result.Recommendation,
			ShouldDefer:           sc.Result.ShouldDefer,
			CompletionProbability: EstimateCompletion(sc.Task, state, sc.Result.Score),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CalculatedPriority != out[j].CalculatedPriority {
			return out[i].CalculatedPriority > out[j].CalculatedPriority
		}
		return scoring.TieBreak(&out[i].Task, &out[j].Task)
	})
	return out
}

// PriorityScore maps the priority level onto high 1.0, medium 0.6, low 0.3.
func PriorityScore(t models.Task) float64 {
	switch t.PriorityLevel() {
	case models.LevelHigh:
		return 1.0
	case models.LevelMedium:
		return 0.6
	default:
		return 0.3
	}
}

// DeadlineUrgency bands the days left until the deadline, measured from now.
func DeadlineUrgency(t models.Task, now time.Time) float64 {
	if !t.HasDeadline() {
		return 0.2
	}
	days := t.Deadline.Sub(now).Hours() / 24
	switch {
	case days < 1:
		return 1.0
	case days <= 3:
		return 0.6
	case days <= 7:
		return 0.3
	default:
		return 0.1
	}
}

// EstimateCompletion is a heuristic completion probability in [0,1] built
// from state fit, energy against complexity, and deadline slack.
func EstimateCompletion(t models.Task, state models.UserState, stateMatch float64) float64 {
	p := stateMatch * 0.5

	need := complexityFactor(t)
	ratio := state.Energy / 10
	if ratio >= need {
		p += 0.3
	} else {
		p += ratio / need * 0.3
	}

	if t.HasDeadline() {
		days := t.Deadline.Sub(state.CurrentTime).Hours() / 24
		switch {
		case days >= 3:
			p += 0.2
		case days >= 1:
			p += 0.15
		default:
			p += 0.05
		}
	} else {
		p += 0.15
	}
	return math.Max(0, math.Min(1, p))
}

// RecommendedTime suggests when to work on t.
func RecommendedTime(t models.Task, circadian models.CircadianContext) string {
	if circadian.IsPeak {
		return "now (peak time)"
	}
	level := t.ComplexityLevel()
	if level == models.LevelHigh || t.RequiredEnergy >= 7 {
		return "08:00-12:00 (morning peak)"
	}
	if level == models.LevelMedium {
		return "08:00-12:00 or 16:00-18:00 (peak periods)"
	}
	return "12:00-14:00 or 18:00-20:00 (time for light tasks)"
}

func complexityFactor(t models.Task) float64 {
	switch t.ComplexityLevel() {
	case models.LevelHigh:
		return 0.8
	case models.LevelLow:
		return 0.4
	default:
		return 0.6
	}
}

func reason(c *candidate, circadian models.CircadianContext) string {
	var reasons []string
	if c.priority >= 1.0 {
		reasons = append(reasons, "high priority")
	}
	switch {
	case c.match.Score >= 0.7:
		reasons = append(reasons, "excellent match for your current state")
	case c.match.Score >= 0.5:
		reasons = append(reasons, "good match for your state")
	}
	if c.deadline >= 0.6 {
		reasons = append(reasons, "deadline approaching")
	}
	if circadian.IsPeak && c.bonus > 0 {
		reasons = append(reasons, "this is your peak productivity time")
	}
	if len(reasons) == 0 {
		return "most balanced task for right now"
	}
	return strings.Join(reasons, ", ")
}
