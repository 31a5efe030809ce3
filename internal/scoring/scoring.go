// Package scoring computes per-task, per-slot priority scores.
package scoring

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/fentz26/potok/internal/config"
	"github.com/fentz26/potok/internal/forecast"
	"github.com/fentz26/potok/internal/models"
)

// UrgencyLevel bands an urgency score.
type UrgencyLevel string

const (
	UrgencyCritical UrgencyLevel = "critical"
	UrgencyHigh     UrgencyLevel = "high"
	UrgencyMedium   UrgencyLevel = "medium"
	UrgencyLow      UrgencyLevel = "low"
)

// Scorer computes TaskScores. It holds no per-run state.
type Scorer struct {
	cfg      *config.Config
	forecast *forecast.Engine
}

// New creates a scorer. The forecast engine supplies interruption data for
// slots outside a projection.
func New(cfg *config.Config, fe *forecast.Engine) *Scorer {
	return &Scorer{cfg: cfg, forecast: fe}
}

// ScoreAll scores every task against one slot, highest normalized priority
// first. Ties go to the earlier deadline, then the lower task ID.
func (s *Scorer) ScoreAll(tasks []models.Task, state models.UserState, set *forecast.Set, slot models.TimeSlot) []models.TaskScore {
	scores := make([]models.TaskScore, 0, len(tasks))
	for _, t := range tasks {
		scores = append(scores, s.Score(t, state, set, slot))
	}
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].NormalizedPriority != scores[j].NormalizedPriority {
			return scores[i].NormalizedPriority > scores[j].NormalizedPriority
		}
		return TieBreak(&scores[i].Task, &scores[j].Task)
	})
	return scores
}

// Score computes the full score of one task in one slot.
func (s *Scorer) Score(task models.Task, state models.UserState, set *forecast.Set, slot models.TimeSlot) models.TaskScore {
	urgency := s.Urgency(task, state.CurrentTime)
	importance := s.Importance(task)
	stateMatch := s.StateMatch(task, state)
	completion := s.CompletionProbability(task, state, set, slot)
	return models.TaskScore{
		Task:                  task,
		Urgency:               urgency,
		Importance:            importance,
		StateMatch:            stateMatch,
		CompletionProbability: completion,
		NormalizedPriority:    s.NormalizedPriority(urgency, importance, stateMatch, completion),
		Reason:                s.reason(urgency, importance, stateMatch, completion),
	}
}

// Urgency rates deadline pressure in [0,100] at instant now.
func (s *Scorer) Urgency(task models.Task, now time.Time) float64 {
	band := 20.0
	if task.HasDeadline() {
		left := task.Deadline.Sub(now)
		if left <= 0 {
			return 100
		}
		ratio := (float64(task.EstimatedDuration) / 60) / left.Hours()
		switch {
		case ratio >= 0.8:
			band = 100
		case ratio >= 0.5:
			band = 80
		case ratio >= 0.3:
			band = 60
		case ratio >= 0.1:
			band = 40
		}
	}
	boost := float64(task.Priority-1) * 5
	return math.Round(clamp(band+boost, 0, 100))
}

// Importance rates priority and category in [0,100].
func (s *Scorer) Importance(task models.Task) float64 {
	importance := float64(task.Priority*20 + s.cfg.CategoryBonus[task.Category])
	return math.Round(clamp(importance, 0, 100))
}

// StateMatch is the coarse 0-100 fit of the task to the user's raw state.
func (s *Scorer) StateMatch(task models.Task, state models.UserState) float64 {
	sm := s.cfg.StateMatch

	energyFit := 100 - math.Abs(state.Energy-float64(task.RequiredEnergy)*10)
	focusFit := 100 - math.Abs(state.Focus-float64(task.RequiredFocus)*10)
	stressFit := 100.0
	if state.Stress > sm.HighStressThreshold && task.Complexity > sm.LowComplexityThreshold {
		stressFit = 100 - float64(task.Complexity-4)*15
	}
	complexityFit := 100 - math.Abs(state.Focus-float64(task.Complexity)*10)

	v := energyFit*sm.EnergyWeight +
		focusFit*sm.FocusWeight +
		stressFit*sm.StressWeight +
		complexityFit*sm.ComplexityWeight
	return math.Round(clamp(v, 0, 100))
}

// CompletionProbability estimates in [0,100] how likely the task is to be
// finished if started at the beginning of slot.
func (s *Scorer) CompletionProbability(task models.Task, state models.UserState, set *forecast.Set, slot models.TimeSlot) float64 {
	c := s.cfg.Completion
	duration := float64(task.EstimatedDuration)
	slotMinutes := float64(slot.Duration)

	durationFit := 100.0
	if duration > slotMinutes && duration > 0 {
		durationFit = slotMinutes / duration * 100
	}

	interruptionFactor := 100.0
	lost := s.lostMinutes(set, slot.Start)
	if effective := slotMinutes - float64(lost); duration > 0 && effective < duration {
		interruptionFactor = math.Max(0, effective/duration*100)
	}

	deadlineFactor := math.Min(100, s.Urgency(task, state.CurrentTime))

	p := durationFit*c.DurationFitWeight +
		interruptionFactor*c.InterruptionWeight +
		deadlineFactor*c.DeadlineWeight +
		c.BaseProbability
	return math.Round(clamp(p, 0, 100))
}

// NormalizedPriority combines the sub-scores, rounded to 2 decimals and
// clamped to [0,100].
func (s *Scorer) NormalizedPriority(urgency, importance, stateMatch, completion float64) float64 {
	w := s.cfg.Weights
	uw := w.Urgency.Normal
	switch {
	case urgency > s.cfg.Urgency.Critical:
		uw = w.Urgency.Critical
	case urgency > s.cfg.Urgency.High:
		uw = w.Urgency.High
	}
	p := urgency*uw + importance*w.Importance + stateMatch*w.StateMatch + completion*w.CompletionProb
	return clamp(math.Round(p*100)/100, 0, 100)
}

// Level bands an urgency score.
func (s *Scorer) Level(urgency float64) UrgencyLevel {
	switch {
	case urgency >= s.cfg.Urgency.Critical:
		return UrgencyCritical
	case urgency >= s.cfg.Urgency.High:
		return UrgencyHigh
	case urgency >= s.cfg.Urgency.Medium:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}

// TieBreak orders tasks with equal scores: earlier deadline first, tasks
// without a deadline last, then by ID.
func TieBreak(a, b *models.Task) bool {
	switch {
	case a.HasDeadline() && !b.HasDeadline():
		return true
	case !a.HasDeadline() && b.HasDeadline():
		return false
	case a.HasDeadline() && !a.Deadline.Equal(b.Deadline):
		return a.Deadline.Before(b.Deadline)
	}
	return a.ID < b.ID
}

func (s *Scorer) lostMinutes(set *forecast.Set, at time.Time) int {
	if d, ok := set.DayOf(at); ok {
		return d.Interruptions.LostMinutes()
	}
	if s.forecast == nil {
		return 0
	}
	return s.forecast.Interruptions(at).LostMinutes()
}

func (s *Scorer) reason(urgency, importance, stateMatch, completion float64) string {
	var reasons []string
	switch {
	case urgency > s.cfg.Urgency.Critical:
		reasons = append(reasons, "critical deadline")
	case urgency > s.cfg.Urgency.High:
		reasons = append(reasons, "close deadline")
	}
	if importance >= 80 {
		reasons = append(reasons, "high importance")
	}
	switch {
	case stateMatch >= 80:
		reasons = append(reasons, "great fit for current state")
	case stateMatch < 40:
		reasons = append(reasons, "poor fit for current state")
	}
	switch {
	case completion >= 80:
		reasons = append(reasons, "high chance of completion")
	case completion < 50:
		reasons = append(reasons, "low chance of completion in this slot")
	}
	if len(reasons) == 0 {
		return "standard priority"
	}
	return strings.Join(reasons, ", ")
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
