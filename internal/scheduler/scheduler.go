// Package scheduler places tasks into free calendar slots.
//
// Allocation is greedy and single pass: tasks are admitted most urgent first
// and each takes the earliest slot that fits it with a high enough
// completion probability. Earlier placements are never revisited.
package scheduler

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/fentz26/potok/internal/config"
	"github.com/fentz26/potok/internal/forecast"
	"github.com/fentz26/potok/internal/models"
	"github.com/fentz26/potok/internal/scoring"
)

// Result partitions the tasks of one run.
type Result struct {
	Scheduled  []models.Task
	Unfeasible []models.UnfeasibleTask
}

// Scheduler allocates tasks against the configured working schedule.
type Scheduler struct {
	cfg    *config.Config
	scorer *scoring.Scorer
	logger *slog.Logger

	workStart int // minutes since midnight
	workEnd   int
	breaks    [][2]int
}

// New creates a scheduler. A nil logger uses slog.Default().
func New(cfg *config.Config, scorer *scoring.Scorer, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{cfg: cfg, scorer: scorer, logger: logger}
	s.workStart, _ = config.ParseClock(cfg.WorkingSchedule.WorkStart)
	s.workEnd, _ = config.ParseClock(cfg.WorkingSchedule.WorkEnd)
	for _, b := range cfg.WorkingSchedule.Breaks {
		bs, err1 := config.ParseClock(b.Start)
		be, err2 := config.ParseClock(b.End)
		if err1 != nil || err2 != nil || be <= bs {
			continue
		}
		s.breaks = append(s.breaks, [2]int{bs, be})
	}
	return s
}

// Schedule plans tasks around the intervals already in busy. Tasks are
// copied; accepted placements are added to busy so later calls see them.
func (s *Scheduler) Schedule(tasks []models.Task, state models.UserState, set *forecast.Set, busy *Calendar) Result {
	if busy == nil {
		busy = &Calendar{}
	}
	now := state.CurrentTime

	planned := make([]models.Task, len(tasks))
	urgency := make([]float64, len(tasks))
	order := make([]int, len(tasks))
	for i, t := range tasks {
		planned[i] = t.Clone()
		urgency[i] = s.scorer.Urgency(t, now)
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ia, ib := order[a], order[b]
		if urgency[ia] != urgency[ib] {
			return urgency[ia] > urgency[ib]
		}
		return scoring.TieBreak(&planned[ia], &planned[ib])
	})

	var res Result
	for _, i := range order {
		task := planned[i]
		if reason := s.reject(task, now); reason != "" {
			s.logger.Warn("task rejected", slog.String("task_id", task.ID), slog.String("reason", reason))
			res.Unfeasible = append(res.Unfeasible, models.UnfeasibleTask{Task: task, Reason: reason})
			continue
		}

		slot, ok := s.FindSlot(task, state, set, busy)
		if !ok {
			reason := fmt.Sprintf("no suitable time slot found within %d days", s.cfg.MaxSearchDays)
			s.logger.Warn("task unfeasible", slog.String("task_id", task.ID), slog.String("reason", reason))
			res.Unfeasible = append(res.Unfeasible, models.UnfeasibleTask{Task: task, Reason: reason})
			continue
		}

		task.ScheduledDates = []models.ScheduledOccurrence{{
			Date:      config.At(slot.Start, 0),
			StartTime: slot.Start,
			Duration:  task.EstimatedDuration,
		}}
		task.Status = models.TaskStatusScheduled
		busy.Add(slot.Start, slot.End)
		s.logger.Debug("task scheduled",
			slog.String("task_id", task.ID),
			slog.Time("start", slot.Start),
			slog.Int("duration", task.EstimatedDuration))
		res.Scheduled = append(res.Scheduled, task)
	}
	return res
}

// FindSlot returns the earliest placement of task in a free slot that is long
// enough, ends by the deadline and reaches the completion threshold. The returned slot spans
// exactly the task's duration. busy is not modified.
func (s *Scheduler) FindSlot(task models.Task, state models.UserState, set *forecast.Set, busy *Calendar) (models.TimeSlot, bool) {
	now := state.CurrentTime
	duration := time.Duration(task.EstimatedDuration) * time.Minute
	threshold := s.cfg.CompletionThreshold * 100

	for day := 0; day < s.cfg.MaxSearchDays; day++ {
		date := now.AddDate(0, 0, day)
		if !s.cfg.WorkingSchedule.IsWorkingDay(date.Weekday()) {
			continue
		}
		if task.HasDeadline() && config.At(date, 0).After(task.Deadline) {
			break
		}
		for _, slot := range s.FreeSlots(date, now, busy) {
			if slot.Duration < task.EstimatedDuration {
				continue
			}
			// The whole free slot must close by the deadline.
			if task.HasDeadline() && slot.End.After(task.Deadline) {
				continue
			}
			projected := project(state, set, slot.Start)
			if s.scorer.CompletionProbability(task, projected, set, slot) < threshold {
				continue
			}
			return models.NewTimeSlot(slot.Start, slot.Start.Add(duration)), true
		}
	}
	return models.TimeSlot{}, false
}

// FreeSlots lists the maximal free intervals of the working window on the
// calendar day of date. Slot bounds sit on the slot-step grid anchored at
// the start of work; slots shorter than the minimum task duration are
// dropped. On the day of now the search starts no earlier than now.
func (s *Scheduler) FreeSlots(date, now time.Time, busy *Calendar) []models.TimeSlot {
	dayStart := config.At(date, s.workStart)
	dayEnd := config.At(date, s.workEnd)
	step := time.Duration(s.cfg.SlotStep) * time.Minute

	cursor := dayStart
	if now.After(cursor) {
		cursor = s.gridUp(dayStart, now, step)
	}
	if !cursor.Before(dayEnd) {
		return nil
	}

	blocked := make([]interval, 0, len(s.breaks))
	for _, b := range s.breaks {
		blocked = append(blocked, interval{start: config.At(date, b[0]), end: config.At(date, b[1])})
	}
	if busy != nil {
		blocked = append(blocked, busy.within(dayStart, dayEnd)...)
	}
	sort.Slice(blocked, func(i, j int) bool { return blocked[i].start.Before(blocked[j].start) })

	var slots []models.TimeSlot
	for _, iv := range blocked {
		if !iv.end.After(cursor) {
			continue
		}
		if iv.start.After(cursor) {
			end := s.gridDown(dayStart, minTime(iv.start, dayEnd), step)
			slots = s.appendSlot(slots, cursor, end)
		}
		cursor = s.gridUp(dayStart, iv.end, step)
		if !cursor.Before(dayEnd) {
			return slots
		}
	}
	return s.appendSlot(slots, cursor, dayEnd)
}

// reject returns a reason when task cannot enter slot search at all.
func (s *Scheduler) reject(task models.Task, now time.Time) string {
	if task.EstimatedDuration < s.cfg.MinTaskDuration {
		return fmt.Sprintf("task too short (minimum %d minutes)", s.cfg.MinTaskDuration)
	}
	switch task.Status {
	case "", models.TaskStatusPending, models.TaskStatusScheduled, models.TaskStatusInProgress:
	default:
		return fmt.Sprintf("task is %s", task.Status)
	}
	if task.HasDeadline() && !task.Deadline.After(now) {
		return "deadline has already passed"
	}
	return ""
}

func (s *Scheduler) appendSlot(slots []models.TimeSlot, start, end time.Time) []models.TimeSlot {
	if !end.After(start) {
		return slots
	}
	slot := models.NewTimeSlot(start, end)
	if slot.Duration < s.cfg.MinTaskDuration {
		return slots
	}
	return append(slots, slot)
}

func (s *Scheduler) gridUp(anchor, t time.Time, step time.Duration) time.Time {
	if !t.After(anchor) || step <= 0 {
		return t
	}
	offset := t.Sub(anchor)
	if rem := offset % step; rem != 0 {
		offset += step - rem
	}
	return anchor.Add(offset)
}

func (s *Scheduler) gridDown(anchor, t time.Time, step time.Duration) time.Time {
	if !t.After(anchor) || step <= 0 {
		return t
	}
	offset := t.Sub(anchor)
	return anchor.Add(offset - offset%step)
}

// project moves the state to the start of a candidate slot.
func project(state models.UserState, set *forecast.Set, at time.Time) models.UserState {
	projected := state
	projected.CurrentTime = at
	if energy, ok := set.EnergyAt(at); ok {
		projected.Energy = energy
	}
	return projected
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
