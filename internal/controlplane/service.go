// Package controlplane provides the HTTP API and service layer for Potok.
package controlplane

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fentz26/potok/internal/audit"
	"github.com/fentz26/potok/internal/cache"
	"github.com/fentz26/potok/internal/config"
	"github.com/fentz26/potok/internal/connectors"
	"github.com/fentz26/potok/internal/distribution"
	"github.com/fentz26/potok/internal/models"
	"github.com/fentz26/potok/internal/observability"
	"github.com/fentz26/potok/internal/ownership"
	"github.com/fentz26/potok/internal/stateprovider"
	"github.com/fentz26/potok/internal/store"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// rescheduleMatchThreshold is the state match below which a task is moved.
const rescheduleMatchThreshold = 0.4

// schedulableStatuses are loaded for a distribution run.
var schedulableStatuses = []models.TaskStatus{
	models.TaskStatusPending,
	models.TaskStatusScheduled,
	models.TaskStatusInProgress,
}

// activeStatuses are the tasks considered for MIT and sorting.
var activeStatuses = []models.TaskStatus{
	models.TaskStatusPending,
	models.TaskStatusInProgress,
}

// TaskStore is the task persistence used by the service.
type TaskStore interface {
	CreateTask(ctx context.Context, task *models.Task) (*models.Task, error)
	GetTask(ctx context.Context, id string) (*models.Task, error)
	ListTasks(ctx context.Context, filter store.TaskFilter) ([]models.Task, error)
	UpdateTaskStatus(ctx context.Context, id string, status models.TaskStatus) error
	SaveSchedule(ctx context.Context, userID string, tasks []models.Task) error
	Ping(ctx context.Context) error
}

// Dependencies are the collaborators of a Service.
type Dependencies struct {
	Store    TaskStore
	Engine   *distribution.Engine
	States   stateprovider.Provider
	Cache    cache.Cache
	Recorder *audit.Recorder
	Notifier connectors.Notifier
	Logger   *slog.Logger
}

// Service provides the control plane business logic.
type Service struct {
	store    TaskStore
	engine   *distribution.Engine
	states   stateprovider.Provider
	cache    cache.Cache
	group    *cache.Group
	recorder *audit.Recorder
	notifier connectors.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a new control plane service.
func NewService(deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = connectors.Nop{}
	}
	states := deps.States
	if states == nil {
		states = stateprovider.New("", logger)
	}
	return &Service{
		store:    deps.Store,
		engine:   deps.Engine,
		states:   states,
		cache:    deps.Cache,
		group:    cache.NewGroup(),
		recorder: deps.Recorder,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// SetClock overrides the wall clock used for supplied states and cache stamps.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// --- Task Operations ---

// CreateTask validates and stores a new task. Unset scales default to the
// middle of their range.
func (s *Service) CreateTask(ctx context.Context, task *models.Task) (*models.Task, error) {
	if task.UserID == "" {
		return nil, ErrUserRequired
	}
	t := task.Clone()
	if t.Priority == 0 {
		t.Priority = 3
	}
	if t.Complexity == 0 {
		t.Complexity = 5
	}
	if t.RequiredEnergy == 0 {
		t.RequiredEnergy = 5
	}
	if t.RequiredFocus == 0 {
		t.RequiredFocus = 5
	}
	if t.Category == "" {
		t.Category = models.CategoryOther
	}
	if t.Status == "" {
		t.Status = models.TaskStatusPending
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTask, err)
	}

	created, err := s.store.CreateTask(ctx, &t)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, created.UserID)
	return created, nil
}

// GetTask returns a task of userID. Tasks of other users are reported as
// ErrForbidden and logged as a security anomaly.
func (s *Service) GetTask(ctx context.Context, userID, id string) (*models.Task, error) {
	if userID == "" {
		return nil, ErrUserRequired
	}
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, ErrTaskNotFound
	}
	if err := ownership.Check(s.logger, userID, task.UserID, task.ID, "task store"); err != nil {
		return nil, err
	}
	return task, nil
}

// ListTasks returns the tasks of userID, optionally restricted to statuses.
func (s *Service) ListTasks(ctx context.Context, userID string, statuses []models.TaskStatus) ([]models.Task, error) {
	if userID == "" {
		return nil, ErrUserRequired
	}
	for _, st := range statuses {
		if !st.IsValid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, st)
		}
	}
	return s.userTasks(ctx, userID, statuses)
}

// UpdateTaskStatus moves a task of userID to status.
func (s *Service) UpdateTaskStatus(ctx context.Context, userID, id string, status models.TaskStatus) (*models.Task, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	task, err := s.GetTask(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateTaskStatus(ctx, id, status); err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	task.Status = status

	if status == models.TaskStatusCompleted {
		s.recorder.Record(ctx, userID, models.EventTaskCompleted, id, "", map[string]string{"title": task.Title})
	}
	s.invalidate(ctx, userID)
	return task, nil
}

// --- Distribution Operations ---

// DistributeRequest optionally supplies the tasks and state of a run. When
// Tasks is empty the stored tasks are planned and the schedule is saved;
// supplied tasks are planned without being persisted.
type DistributeRequest struct {
	Tasks         []models.Task     `json:"tasks,omitempty"`
	State         *models.UserState `json:"state,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
}

// Distribute runs the scheduling engine for userID.
func (s *Service) Distribute(ctx context.Context, userID string, req DistributeRequest) (result *models.DistributionResult, err error) {
	if userID == "" {
		return nil, ErrUserRequired
	}
	ctx, span := observability.StartSpan(ctx, "distribution.distribute", attribute.String("user.id", userID))
	defer func() { observability.EndSpan(span, err) }()

	unlock := s.group.Lock("potok:distribution:user:" + userID + ":run")
	defer unlock()

	tasks, persist := req.Tasks, false
	if len(tasks) == 0 {
		tasks, err = s.userTasks(ctx, userID, schedulableStatuses)
		if err != nil {
			return nil, err
		}
		persist = true
	} else {
		tasks = s.adopt(userID, tasks)
	}

	state := s.resolveState(ctx, userID, req.State)
	result = s.engine.Distribute(tasks, state, distribution.Options{CorrelationID: req.CorrelationID})
	span.SetAttributes(
		attribute.Int("tasks.scheduled", len(result.Scheduled)),
		attribute.Int("tasks.unfeasible", len(result.Unfeasible)),
	)

	if persist && len(result.Scheduled) > 0 {
		if err = s.store.SaveSchedule(ctx, userID, result.Scheduled); err != nil {
			return nil, fmt.Errorf("save schedule: %w", err)
		}
	}
	s.invalidate(ctx, userID)
	s.announce(ctx, result, state)
	return result, nil
}

// SortedTasks is the ranked list of a user's active tasks.
type SortedTasks struct {
	UserID       string                   `json:"user_id"`
	Tasks        []models.PrioritizedTask `json:"tasks"`
	Total        int                      `json:"total"`
	Cached       bool                     `json:"cached"`
	CalculatedAt time.Time                `json:"calculated_at"`
}

type cachedSorted struct {
	SortedTasks
	CachedForUser string `json:"_cached_for_user"`
}

// SortedTasks returns the ranked active tasks of userID, from cache when a
// still valid entry exists.
func (s *Service) SortedTasks(ctx context.Context, userID string) (*SortedTasks, error) {
	if userID == "" {
		return nil, ErrUserRequired
	}
	key := cache.SortedKey(userID)
	v, err := s.group.Do(key, func() (any, error) {
		var entry cachedSorted
		if s.cacheGet(ctx, key, &entry) {
			ids := make([]string, len(entry.Tasks))
			for i, pt := range entry.Tasks {
				ids[i] = pt.Task.ID
			}
			if s.revalidate(ctx, userID, entry.CachedForUser, key, ids) {
				out := entry.SortedTasks
				out.Cached = true
				return &out, nil
			}
		}
		return s.prioritize(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*SortedTasks), nil
}

// Prioritize recomputes and caches the ranked active tasks of userID.
func (s *Service) Prioritize(ctx context.Context, userID string) (*SortedTasks, error) {
	if userID == "" {
		return nil, ErrUserRequired
	}
	unlock := s.group.Lock(cache.SortedKey(userID))
	defer unlock()
	return s.prioritize(ctx, userID)
}

func (s *Service) prioritize(ctx context.Context, userID string) (result *SortedTasks, err error) {
	ctx, span := observability.StartSpan(ctx, "distribution.prioritize", attribute.String("user.id", userID))
	defer func() { observability.EndSpan(span, err) }()

	tasks, err := s.userTasks(ctx, userID, activeStatuses)
	if err != nil {
		return nil, err
	}
	state := s.states.Current(ctx, userID)
	ranked := s.engine.Prioritize(tasks, state)
	result = &SortedTasks{
		UserID:       userID,
		Tasks:        ranked,
		Total:        len(ranked),
		CalculatedAt: s.now().UTC(),
	}
	s.cacheSet(ctx, cache.SortedKey(userID), cachedSorted{SortedTasks: *result, CachedForUser: userID}, cache.SortedTTL)
	return result, nil
}

// MITResponse carries the Most Important Task of a user.
type MITResponse struct {
	UserID       string            `json:"user_id"`
	MIT          *models.MitResult `json:"mit"`
	Cached       bool              `json:"cached"`
	CalculatedAt time.Time         `json:"calculated_at"`
}

type cachedMIT struct {
	MIT           models.MitResult `json:"mit"`
	CachedForUser string           `json:"_cached_for_user"`
	CachedAt      time.Time        `json:"_cached_at"`
}

// CalculateMIT returns the Most Important Task of userID. A cached MIT is
// only served after its task was re-checked against the store.
func (s *Service) CalculateMIT(ctx context.Context, userID string) (*MITResponse, error) {
	if userID == "" {
		return nil, ErrUserRequired
	}
	key := cache.MITKey(userID)
	v, err := s.group.Do(key, func() (any, error) {
		var entry cachedMIT
		if s.cacheGet(ctx, key, &entry) {
			if entry.MIT.UserID == userID && s.revalidate(ctx, userID, entry.CachedForUser, key, []string{entry.MIT.TaskID}) {
				mit := entry.MIT
				return &MITResponse{UserID: userID, MIT: &mit, Cached: true, CalculatedAt: entry.CachedAt}, nil
			}
			if entry.MIT.UserID != userID {
				ownership.Report(s.logger, userID, entry.MIT.UserID, entry.MIT.TaskID, "mit cache")
				s.cacheDelete(ctx, key)
			}
		}
		return s.calculateMIT(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*MITResponse), nil
}

func (s *Service) calculateMIT(ctx context.Context, userID string) (resp *MITResponse, err error) {
	ctx, span := observability.StartSpan(ctx, "distribution.mit", attribute.String("user.id", userID))
	defer func() { observability.EndSpan(span, err) }()

	tasks, err := s.userTasks(ctx, userID, activeStatuses)
	if err != nil {
		return nil, err
	}
	state := s.states.Current(ctx, userID)
	now := s.now().UTC()
	resp = &MITResponse{UserID: userID, CalculatedAt: now}

	mit := s.engine.MIT(tasks, state)
	if mit == nil {
		return resp, nil
	}
	if err := ownership.Check(s.logger, userID, mit.UserID, mit.TaskID, "mit selection"); err != nil {
		return nil, err
	}
	resp.MIT = mit

	s.cacheSet(ctx, cache.MITKey(userID), cachedMIT{MIT: *mit, CachedForUser: userID, CachedAt: now}, cache.MITTTL)
	correlationID := uuid.New().String()
	s.recorder.Record(ctx, userID, models.EventMITCalculated, mit.TaskID, correlationID, map[string]any{
		"final_score": mit.FinalScore,
		"reason":      mit.Reason,
	})
	s.notify(ctx, connectors.EventMITSelected, userID, correlationID, map[string]any{"mit": mit})
	return resp, nil
}

// RescheduleRequest selects the tasks to move. Without TaskIDs the active
// tasks that fit the current state poorly are picked.
type RescheduleRequest struct {
	TaskIDs []string `json:"task_ids,omitempty"`
	Reason  string   `json:"reason,omitempty"`
}

// RescheduleResult lists the proposed new times.
type RescheduleResult struct {
	UserID        string                        `json:"user_id"`
	Rescheduled   []models.RescheduleSuggestion `json:"rescheduled"`
	Count         int                           `json:"count"`
	RescheduledAt time.Time                     `json:"rescheduled_at"`
	Message       string                        `json:"message,omitempty"`
}

// Reschedule proposes a new slot for each selected task of userID.
func (s *Service) Reschedule(ctx context.Context, userID string, req RescheduleRequest) (result *RescheduleResult, err error) {
	if userID == "" {
		return nil, ErrUserRequired
	}
	ctx, span := observability.StartSpan(ctx, "distribution.reschedule", attribute.String("user.id", userID))
	defer func() { observability.EndSpan(span, err) }()

	var targets []models.Task
	if len(req.TaskIDs) > 0 {
		for _, id := range req.TaskIDs {
			task, err := s.store.GetTask(ctx, id)
			if err != nil {
				return nil, err
			}
			if task == nil {
				s.logger.Warn("reschedule target not found", slog.String("user_id", userID), slog.String("task_id", id))
				continue
			}
			if ownership.Check(s.logger, userID, task.UserID, task.ID, "reschedule request") != nil {
				continue
			}
			targets = append(targets, *task)
		}
	} else {
		sorted, err := s.SortedTasks(ctx, userID)
		if err != nil {
			return nil, err
		}
		for _, pt := range sorted.Tasks {
			if pt.StateMatchScore < rescheduleMatchThreshold && !pt.ShouldDefer {
				targets = append(targets, pt.Task)
			}
		}
	}

	result = &RescheduleResult{UserID: userID, Rescheduled: []models.RescheduleSuggestion{}, RescheduledAt: s.now().UTC()}
	if len(targets) == 0 {
		result.Message = "No tasks need rescheduling"
		return result, nil
	}

	others, err := s.userTasks(ctx, userID, schedulableStatuses)
	if err != nil {
		return nil, err
	}
	state := s.states.Current(ctx, userID)
	reason := req.Reason
	if reason == "" {
		reason = "state mismatch"
	}

	correlationID := uuid.New().String()
	ids := make([]string, 0, len(targets))
	for _, task := range targets {
		suggested, slot := s.engine.SuggestTime(task, state, others)
		sug := models.RescheduleSuggestion{
			TaskID:        task.ID,
			Title:         task.Title,
			Reason:        reason,
			SuggestedTime: suggested,
			SuggestedSlot: slot,
		}
		result.Rescheduled = append(result.Rescheduled, sug)
		ids = append(ids, task.ID)
		s.notify(ctx, connectors.EventTaskRescheduled, userID, correlationID, map[string]any{"task": task, "suggestion": sug})
	}
	result.Count = len(result.Rescheduled)

	s.recorder.Record(ctx, userID, models.EventTaskRescheduled, "", correlationID, map[string]any{
		"count":  result.Count,
		"tasks":  ids,
		"reason": reason,
	})
	s.invalidate(ctx, userID)
	return result, nil
}

// History returns the recent distribution events of userID.
func (s *Service) History(ctx context.Context, userID string) ([]models.Event, error) {
	if userID == "" {
		return nil, ErrUserRequired
	}
	return s.recorder.History(ctx, userID)
}

// HealthResponse is the health check payload.
type HealthResponse struct {
	OK      bool   `json:"ok"`
	DB      string `json:"db"`
	Version string `json:"version"`
	Time    string `json:"time"`
}

// Health reports whether the store is reachable.
func (s *Service) Health(ctx context.Context) HealthResponse {
	h := HealthResponse{OK: true, DB: "ok", Version: config.Version, Time: s.now().UTC().Format(time.RFC3339)}
	if err := s.store.Ping(ctx); err != nil {
		h.OK = false
		h.DB = err.Error()
	}
	return h
}

// --- Helpers ---

// userTasks loads tasks of userID and drops anything the store returned for
// someone else. A foreign record also purges the user's cached artifacts.
func (s *Service) userTasks(ctx context.Context, userID string, statuses []models.TaskStatus) ([]models.Task, error) {
	tasks, err := s.store.ListTasks(ctx, store.TaskFilter{UserID: userID, Statuses: statuses})
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	owned := ownership.Filter(s.logger, userID, "task store", tasks)
	if len(owned) != len(tasks) {
		s.purge(ctx, userID)
	}
	return owned, nil
}

// adopt assigns caller-supplied tasks without an owner to userID and drops
// those owned by someone else.
func (s *Service) adopt(userID string, tasks []models.Task) []models.Task {
	out := make([]models.Task, 0, len(tasks))
	for _, t := range tasks {
		t = t.Clone()
		if t.UserID == "" {
			t.UserID = userID
		}
		if t.ID == "" {
			t.ID = uuid.New().String()
		}
		out = append(out, t)
	}
	return ownership.Filter(s.logger, userID, "distribute request", out)
}

func (s *Service) resolveState(ctx context.Context, userID string, supplied *models.UserState) models.UserState {
	if supplied == nil {
		return s.states.Current(ctx, userID)
	}
	state := *supplied
	state.UserID = userID
	if state.CurrentTime.IsZero() {
		state.CurrentTime = s.now()
	}
	return state
}

// revalidate confirms that a cached artifact under key still belongs to
// userID. Any mismatch deletes the entry.
func (s *Service) revalidate(ctx context.Context, userID, cachedFor, key string, taskIDs []string) bool {
	if cachedFor != userID {
		ownership.Report(s.logger, userID, cachedFor, "", key)
		s.cacheDelete(ctx, key)
		return false
	}
	for _, id := range taskIDs {
		task, err := s.store.GetTask(ctx, id)
		if err != nil {
			s.logger.Error("cache revalidation failed",
				slog.String("key", key), slog.String("task_id", id), slog.String("error", err.Error()))
			s.cacheDelete(ctx, key)
			return false
		}
		if task == nil {
			s.logger.Info("cached task no longer exists, invalidating",
				slog.String("key", key), slog.String("task_id", id))
			s.cacheDelete(ctx, key)
			return false
		}
		if ownership.Check(s.logger, userID, task.UserID, id, key) != nil {
			s.cacheDelete(ctx, key)
			return false
		}
		if !task.Status.IsActive() {
			s.cacheDelete(ctx, key)
			return false
		}
	}
	return true
}

// invalidate drops the cached artifacts of userID, waiting for any
// computation that holds their keys.
func (s *Service) invalidate(ctx context.Context, userID string) {
	for _, key := range []string{cache.MITKey(userID), cache.SortedKey(userID)} {
		unlock := s.group.Lock(key)
		s.cacheDelete(ctx, key)
		unlock()
	}
}

// purge drops the cached artifacts of userID without taking key locks. It
// is safe to call from inside a keyed computation.
func (s *Service) purge(ctx context.Context, userID string) {
	s.cacheDelete(ctx, cache.MITKey(userID))
	s.cacheDelete(ctx, cache.SortedKey(userID))
}

func (s *Service) cacheGet(ctx context.Context, key string, dst any) bool {
	if s.cache == nil {
		return false
	}
	ok, err := s.cache.Get(ctx, key, dst)
	if err != nil {
		s.logger.Warn("cache read failed, recomputing", slog.String("key", key), slog.String("error", err.Error()))
		return false
	}
	return ok
}

func (s *Service) cacheSet(ctx context.Context, key string, value any, ttl time.Duration) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value, ttl); err != nil {
		s.logger.Warn("cache write failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}

func (s *Service) cacheDelete(ctx context.Context, key string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, key); err != nil {
		s.logger.Warn("cache invalidation failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}

func (s *Service) notify(ctx context.Context, typ connectors.EventType, userID, correlationID string, data any) {
	s.notifier.Notify(ctx, connectors.Notification{
		EventType:     typ,
		UserID:        userID,
		Timestamp:     s.now().UTC(),
		CorrelationID: correlationID,
		Data:          data,
	})
}

// announce records and publishes the outcome of a distribution run.
func (s *Service) announce(ctx context.Context, result *models.DistributionResult, state models.UserState) {
	userID := result.UserID
	correlationID := result.Metadata.CorrelationID
	cfg := s.engine.Config()

	scheduled := make(map[string]bool, len(result.Scheduled))
	for _, task := range result.Scheduled {
		scheduled[task.ID] = true
		occ := task.ScheduledDates[0]
		s.recorder.Record(ctx, userID, models.EventTaskAssigned, task.ID, correlationID, map[string]any{
			"start_time": occ.StartTime,
			"duration":   occ.Duration,
		})
		s.notify(ctx, connectors.EventTaskScheduled, userID, correlationID, map[string]any{"task": task})
	}

	for _, day := range result.Report.Workload {
		if day.IsOverloaded {
			s.notify(ctx, connectors.EventWorkloadWarning, userID, correlationID, map[string]any{
				"message":      fmt.Sprintf("Workload on %s is %.0f%%", day.Date, day.Percentage),
				"workloadData": day,
			})
		}
	}

	for _, w := range result.Report.Warnings {
		if scheduled[w.TaskID] {
			s.notify(ctx, connectors.EventDeadlineWarning, userID, correlationID, map[string]any{
				"task_id": w.TaskID,
				"reason":  w.Message,
			})
		}
	}

	var restReason string
	switch {
	case state.Energy < cfg.StateAlerts.LowEnergy:
		restReason = "low energy"
	case state.Stress > cfg.StateAlerts.HighStress:
		restReason = "high stress"
	}
	if restReason != "" {
		s.notify(ctx, connectors.EventRestModeActivated, userID, correlationID, map[string]any{"reason": restReason})
	}

	summary := map[string]any{
		"total_tasks":      result.Report.TotalTasks,
		"scheduled_count":  result.Report.ScheduledCount,
		"unfeasible_count": result.Report.UnfeasibleCount,
		"overloaded_days":  result.Report.Statistics.OverloadedDays,
	}
	s.recorder.Record(ctx, userID, models.EventDistributionCompleted, "", correlationID, summary)
	s.notify(ctx, connectors.EventDistributionCompleted, userID, correlationID, summary)
}
