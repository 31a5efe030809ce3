// Package recommend turns a scheduling run into ranked advisories and
// feasibility warnings.
package recommend

import (
	"fmt"
	"sort"
	"time"

	"github.com/fentz26/potok/internal/config"
	"github.com/fentz26/potok/internal/forecast"
	"github.com/fentz26/potok/internal/models"
	"github.com/fentz26/potok/internal/workload"
)

const (
	deadlineAdvisoryWindow = 24 * time.Hour
	deadlineWarningWindow  = 12 * time.Hour
)

// Alternatives offered for every task that could not be placed.
var Alternatives = []string{
	"Revise the deadline",
	"Reduce the estimated duration",
	"Delegate the task",
	"Split it into stages",
}

// Engine builds advisories. Pure.
type Engine struct {
	cfg      *config.Config
	analyzer *workload.Analyzer
}

// New creates a recommendation engine.
func New(cfg *config.Config) *Engine {
	return &Engine{cfg: cfg, analyzer: workload.New(cfg)}
}

// Recommend returns the advisories of a run, most severe first. Advisories of
// equal severity keep the order state, break, workload, unfeasible, deadline.
func (e *Engine) Recommend(scheduled []models.Task, unfeasible []models.UnfeasibleTask, state models.UserState, set *forecast.Set) []models.Recommendation {
	var out []models.Recommendation
	out = append(out, e.stateAlerts(state)...)
	out = append(out, e.breakAdvisories(scheduled)...)
	out = append(out, e.workloadAdvisories(set)...)
	out = append(out, e.unfeasibleAdvisories(unfeasible)...)
	out = append(out, e.deadlineAdvisories(scheduled)...)

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority.Rank() < out[j].Priority.Rank()
	})
	return out
}

// Warnings builds the warning list of the feasibility report.
func (e *Engine) Warnings(scheduled []models.Task, unfeasible []models.UnfeasibleTask) []models.Warning {
	var out []models.Warning
	for _, u := range unfeasible {
		level := models.SeverityHigh
		if u.Task.Priority >= 4 {
			level = models.SeverityCritical
		}
		msg := "No suitable time slot before the deadline"
		if u.Reason != "" {
			msg = u.Reason
		}
		out = append(out, models.Warning{
			TaskID:       u.Task.ID,
			TaskTitle:    u.Task.Title,
			Level:        level,
			Message:      msg,
			Alternatives: append([]string(nil), Alternatives...),
		})
	}
	for _, t := range scheduled {
		start, ok := firstStart(t)
		if !ok || !t.HasDeadline() || t.Priority < 3 {
			continue
		}
		if t.Deadline.Sub(start) < deadlineWarningWindow {
			out = append(out, models.Warning{
				TaskID:       t.ID,
				TaskTitle:    t.Title,
				Level:        models.SeverityHigh,
				Message:      "Scheduled at the last moment before its deadline",
				Alternatives: []string{"Do it earlier at the first opportunity"},
			})
		}
	}
	return out
}

func (e *Engine) stateAlerts(state models.UserState) []models.Recommendation {
	a := e.cfg.StateAlerts
	var out []models.Recommendation
	if state.Energy < a.LowEnergy {
		out = append(out, models.Recommendation{
			Type:     models.RecommendationState,
			Priority: models.SeverityHigh,
			Message:  "Energy is very low. Rest or stick to light tasks.",
		})
	}
	if state.Stress > a.HighStress {
		out = append(out, models.Recommendation{
			Type:     models.RecommendationState,
			Priority: models.SeverityHigh,
			Message:  "Stress is high. Take a break or do a breathing exercise.",
		})
	}
	if state.Focus < a.LowFocus {
		out = append(out, models.Recommendation{
			Type:     models.RecommendationState,
			Priority: models.SeverityMedium,
			Message:  "Concentration is low. A short walk or a change of activity may help.",
		})
	}
	if state.Motivation < a.LowMotivation {
		out = append(out, models.Recommendation{
			Type:     models.RecommendationState,
			Priority: models.SeverityMedium,
			Message:  "Motivation is low. Start with an easy task to build momentum.",
		})
	}
	return out
}

type placement struct {
	task  models.Task
	start time.Time
	end   time.Time
}

// breakAdvisories checks the gaps between consecutive occurrences of each
// day, and the length of blocks worked without a proper break.
func (e *Engine) breakAdvisories(scheduled []models.Task) []models.Recommendation {
	b := e.cfg.Breaks
	byDay := make(map[string][]placement)
	var days []string
	for _, t := range scheduled {
		for _, occ := range t.ScheduledDates {
			key := occ.StartTime.Format(forecast.DateLayout)
			if _, ok := byDay[key]; !ok {
				days = append(days, key)
			}
			byDay[key] = append(byDay[key], placement{task: t, start: occ.StartTime, end: occ.EndTime()})
		}
	}
	sort.Strings(days)

	var out []models.Recommendation
	for _, day := range days {
		ps := byDay[day]
		sort.SliceStable(ps, func(i, j int) bool { return ps[i].start.Before(ps[j].start) })

		blockStart, blockEnd := ps[0].start, ps[0].end
		flagged := false
		check := func() {
			if !flagged && e.overFocus(blockStart, blockEnd) {
				out = append(out, e.focusAdvisory(day, blockStart, blockEnd))
				flagged = true
			}
		}
		check()
		for i := 1; i < len(ps); i++ {
			gap := int(ps[i].start.Sub(blockEnd) / time.Minute)
			if gap >= b.MinBreakAfterTask {
				blockStart, blockEnd = ps[i].start, ps[i].end
				flagged = false
				check()
				continue
			}
			out = append(out, models.Recommendation{
				Type:     models.RecommendationBreak,
				Priority: models.SeverityMedium,
				Message: fmt.Sprintf("Take a break of at least %d minutes between %q and %q.",
					b.MinBreakAfterTask, ps[i-1].task.Title, ps[i].task.Title),
				TaskID: ps[i].task.ID,
				Date:   day,
			})
			if ps[i].end.After(blockEnd) {
				blockEnd = ps[i].end
			}
			check()
		}
	}
	return out
}

func (e *Engine) overFocus(start, end time.Time) bool {
	return int(end.Sub(start)/time.Minute) > e.cfg.Breaks.MaxFocusTimeWithoutBreak
}

func (e *Engine) focusAdvisory(day string, start, end time.Time) models.Recommendation {
	b := e.cfg.Breaks
	return models.Recommendation{
		Type:     models.RecommendationBreak,
		Priority: models.SeverityHigh,
		Message: fmt.Sprintf("%s-%s runs %d minutes without a break, over the %d-minute limit. Plan a long break (%d minutes).",
			start.Format("15:04"), end.Format("15:04"), int(end.Sub(start)/time.Minute),
			b.MaxFocusTimeWithoutBreak, b.MandatoryBreakAfterMaxFocus),
		Date: day,
	}
}

func (e *Engine) workloadAdvisories(set *forecast.Set) []models.Recommendation {
	w := e.cfg.Workload
	var out []models.Recommendation
	for _, day := range e.analyzer.Analyze(set) {
		if day.AvailableMinutes <= 0 {
			continue
		}
		pct := day.Percentage
		switch {
		case pct > w.OverloadThreshold:
			out = append(out, models.Recommendation{
				Type:     models.RecommendationWorkload,
				Priority: models.SeverityCritical,
				Message:  fmt.Sprintf("Overloaded on %s: %.0f%% of working time. Move some tasks.", day.Date, pct),
				Date:     day.Date,
			})
		case pct > w.LoadedMin:
			out = append(out, models.Recommendation{
				Type:     models.RecommendationWorkload,
				Priority: models.SeverityHigh,
				Message:  fmt.Sprintf("Heavy load on %s: %.0f%%. Expect an intense day.", day.Date, pct),
				Date:     day.Date,
			})
		case pct < w.UnderloadThreshold:
			out = append(out, models.Recommendation{
				Type:     models.RecommendationWorkload,
				Priority: models.SeverityLow,
				Message:  fmt.Sprintf("Light load on %s: %.0f%%. Room for extra tasks or personal time.", day.Date, pct),
				Date:     day.Date,
			})
		}
	}
	return out
}

func (e *Engine) unfeasibleAdvisories(unfeasible []models.UnfeasibleTask) []models.Recommendation {
	if len(unfeasible) == 0 {
		return nil
	}
	out := []models.Recommendation{{
		Type:     models.RecommendationUnfeasible,
		Priority: models.SeverityCritical,
		Message:  fmt.Sprintf("%d task(s) could not be scheduled. Revisit deadlines or delegate.", len(unfeasible)),
	}}
	for _, u := range unfeasible {
		if u.Task.Priority < 4 {
			continue
		}
		out = append(out, models.Recommendation{
			Type:     models.RecommendationUnfeasible,
			Priority: models.SeverityHigh,
			Message:  fmt.Sprintf("Critical task %q cannot be scheduled before its deadline. Act now.", u.Task.Title),
			TaskID:   u.Task.ID,
		})
	}
	return out
}

func (e *Engine) deadlineAdvisories(scheduled []models.Task) []models.Recommendation {
	var out []models.Recommendation
	for _, t := range scheduled {
		start, ok := firstStart(t)
		if !ok || !t.HasDeadline() || t.Priority < 3 {
			continue
		}
		if t.Deadline.Sub(start) < deadlineAdvisoryWindow {
			out = append(out, models.Recommendation{
				Type:     models.RecommendationDeadline,
				Priority: models.SeverityHigh,
				Message:  fmt.Sprintf("%q is scheduled less than 24 hours before its deadline. Try to do it earlier.", t.Title),
				TaskID:   t.ID,
				Date:     start.Format(forecast.DateLayout),
			})
		}
	}
	return out
}

func firstStart(t models.Task) (time.Time, bool) {
	if len(t.ScheduledDates) == 0 {
		return time.Time{}, false
	}
	return t.ScheduledDates[0].StartTime, true
}
