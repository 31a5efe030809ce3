// Package distribution runs one complete scheduling pass: forecast, slot
// allocation, workload analysis, MIT selection and advisories.
package distribution

import (
	"log/slog"
	"time"

	"github.com/fentz26/potok/internal/circadian"
	"github.com/fentz26/potok/internal/config"
	"github.com/fentz26/potok/internal/forecast"
	"github.com/fentz26/potok/internal/mit"
	"github.com/fentz26/potok/internal/models"
	"github.com/fentz26/potok/internal/recommend"
	"github.com/fentz26/potok/internal/scheduler"
	"github.com/fentz26/potok/internal/scoring"
	"github.com/fentz26/potok/internal/workload"
	"github.com/google/uuid"
)

// Options tune a single run.
type Options struct {
	CorrelationID string // generated when empty
	ForecastDays  int    // <= 0 uses the configured horizon
}

// Engine wires the scheduling components together. Safe for concurrent use;
// every run works on its own copies.
type Engine struct {
	cfg       *config.Config
	model     *circadian.Model
	forecast  *forecast.Engine
	scorer    *scoring.Scorer
	scheduler *scheduler.Scheduler
	workload  *workload.Analyzer
	recommend *recommend.Engine
	logger    *slog.Logger
}

// New builds an engine from cfg. A nil logger uses slog.Default().
func New(cfg *config.Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	model := circadian.New(cfg)
	fe := forecast.New(cfg, model)
	scorer := scoring.New(cfg, fe)
	return &Engine{
		cfg:       cfg,
		model:     model,
		forecast:  fe,
		scorer:    scorer,
		scheduler: scheduler.New(cfg, scorer, logger),
		workload:  workload.New(cfg),
		recommend: recommend.New(cfg),
		logger:    logger,
	}
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// Circadian returns the state's circadian descriptor, deriving it from the
// rhythm tables when the state carries none.
func (e *Engine) Circadian(state models.UserState) models.CircadianContext {
	if state.Circadian.Factor > 0 && state.Circadian.Phase != "" {
		return state.Circadian
	}
	return e.model.Context(state.CurrentTime)
}

// Plan partitions tasks for a run: tasks to place, tasks whose occurrences
// are fixed, and the rest.
func Plan(tasks []models.Task) (planning, fixed []models.Task) {
	for _, t := range tasks {
		switch t.Status {
		case models.TaskStatusCompleted, models.TaskStatusCancelled:
			continue
		}
		if len(t.ScheduledDates) > 0 {
			fixed = append(fixed, t)
			continue
		}
		planning = append(planning, t)
	}
	return planning, fixed
}

// Distribute schedules tasks for the user of state and assembles the full
// result. The run is deterministic for a fixed state.CurrentTime, apart from
// the metadata.
func (e *Engine) Distribute(tasks []models.Task, state models.UserState, opts Options) *models.DistributionResult {
	started := time.Now()
	planning, fixed := Plan(tasks)
	if state.Circadian.Factor == 0 {
		state.Circadian = e.Circadian(state)
	}

	set := e.forecast.Project(state, fixed, opts.ForecastDays)
	busy := scheduler.NewCalendar(fixed)
	res := e.scheduler.Schedule(planning, state, set, busy)

	placed := make([]models.Task, 0, len(fixed)+len(res.Scheduled))
	placed = append(placed, fixed...)
	placed = append(placed, res.Scheduled...)
	set.WithWorkload(placed)

	analyses := e.workload.Analyze(set)
	correlationID := opts.CorrelationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}

	result := &models.DistributionResult{
		UserID:          state.UserID,
		Scheduled:       nonNil(res.Scheduled),
		Unfeasible:      res.Unfeasible,
		MIT:             mit.Select(tasks, state, state.Circadian),
		Recommendations: e.recommend.Recommend(res.Scheduled, res.Unfeasible, state, set),
		Report: models.FeasibilityReport{
			TotalTasks:      len(planning),
			ScheduledCount:  len(res.Scheduled),
			UnfeasibleCount: len(res.Unfeasible),
			Warnings:        e.recommend.Warnings(res.Scheduled, res.Unfeasible),
			Workload:        analyses,
			Statistics:      e.workload.Statistics(analyses),
		},
		Metadata: models.RunMetadata{
			CalculatedAt:     state.CurrentTime,
			CorrelationID:    correlationID,
			AlgorithmVersion: config.Version,
		},
	}
	if result.Unfeasible == nil {
		result.Unfeasible = []models.UnfeasibleTask{}
	}
	if result.Recommendations == nil {
		result.Recommendations = []models.Recommendation{}
	}
	if result.Report.Warnings == nil {
		result.Report.Warnings = []models.Warning{}
	}
	result.Metadata.ProcessingTimeMs = time.Since(started).Milliseconds()

	e.logger.Info("distribution completed",
		slog.String("user_id", state.UserID),
		slog.String("correlation_id", correlationID),
		slog.Int("scheduled", len(res.Scheduled)),
		slog.Int("unfeasible", len(res.Unfeasible)),
		slog.Int64("processing_ms", result.Metadata.ProcessingTimeMs))
	return result
}

// MIT selects the most important task for right now.
func (e *Engine) MIT(tasks []models.Task, state models.UserState) *models.MitResult {
	return mit.Select(tasks, state, e.Circadian(state))
}

// Prioritize ranks the active tasks against the current state.
func (e *Engine) Prioritize(tasks []models.Task, state models.UserState) []models.PrioritizedTask {
	var active []models.Task
	for _, t := range tasks {
		if t.Status.IsActive() {
			active = append(active, t)
		}
	}
	return mit.Prioritize(active, state, e.Circadian(state))
}

// SuggestTime proposes the next concrete slot for task around the
// occurrences of others. When no slot qualifies, a time-of-day window based
// on the task's demands is returned with a nil slot.
func (e *Engine) SuggestTime(task models.Task, state models.UserState, others []models.Task) (string, *models.TimeSlot) {
	_, fixed := Plan(others)
	busy := scheduler.NewCalendar(excluding(fixed, task.ID))

	probe := task.Clone()
	probe.ScheduledDates = nil
	if probe.Status == models.TaskStatusScheduled {
		probe.Status = models.TaskStatusPending
	}
	set := e.forecast.Project(state, fixed, 0)
	if slot, ok := e.scheduler.FindSlot(probe, state, set, busy); ok {
		return slot.Start.Format("Mon 2006-01-02 15:04") + "-" + slot.End.Format("15:04"), &slot
	}
	return mit.RecommendedTime(task, models.CircadianContext{}), nil
}

func excluding(tasks []models.Task, id string) []models.Task {
	out := make([]models.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.ID != id {
			out = append(out, t)
		}
	}
	return out
}

func nonNil(tasks []models.Task) []models.Task {
	if tasks == nil {
		return []models.Task{}
	}
	return tasks
}
