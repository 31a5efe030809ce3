package controlplane

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fentz26/potok/internal/audit"
	"github.com/fentz26/potok/internal/cache"
	"github.com/fentz26/potok/internal/config"
	"github.com/fentz26/potok/internal/connectors"
	"github.com/fentz26/potok/internal/distribution"
	"github.com/fentz26/potok/internal/models"
	"github.com/fentz26/potok/internal/stateprovider"
	"github.com/fentz26/potok/internal/store"
)

// Wednesday, before work starts.
var testNow = time.Date(2026, 3, 4, 8, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu  sync.Mutex
	got []connectors.Notification
}

func (n *recordingNotifier) Name() string { return "recording" }

func (n *recordingNotifier) Notify(_ context.Context, note connectors.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, note)
}

func (n *recordingNotifier) count(typ connectors.EventType) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, note := range n.got {
		if note.EventType == typ {
			c++
		}
	}
	return c
}

// leakyStore returns a foreign task with every listing.
type leakyStore struct {
	*store.Store
	foreign models.Task
}

func (l *leakyStore) ListTasks(ctx context.Context, filter store.TaskFilter) ([]models.Task, error) {
	tasks, err := l.Store.ListTasks(ctx, filter)
	if err != nil {
		return nil, err
	}
	return append(tasks, l.foreign), nil
}

type testEnv struct {
	svc      *Service
	store    *store.Store
	cache    *cache.Store
	notifier *recordingNotifier
}

func goodState() models.UserState {
	return models.UserState{
		Energy:     70,
		Focus:      70,
		Stress:     20,
		Motivation: 60,
		Circadian:  models.CircadianContext{Phase: models.PhaseNormal, Factor: 1.0},
	}
}

func newTestEnv(t *testing.T, wrap func(*store.Store) TaskStore) *testEnv {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var ts TaskStore = st
	if wrap != nil {
		ts = wrap(st)
	}
	state := goodState()
	state.CurrentTime = testNow

	env := &testEnv{store: st, cache: cache.NewStore(st), notifier: &recordingNotifier{}}
	env.svc = NewService(Dependencies{
		Store:    ts,
		Engine:   distribution.New(config.DefaultConfig(), logger),
		States:   stateprovider.Static{State: state},
		Cache:    env.cache,
		Recorder: audit.NewRecorder(st, logger),
		Notifier: env.notifier,
		Logger:   logger,
	})
	env.svc.SetClock(func() time.Time { return testNow })
	return env
}

func (e *testEnv) addTask(t *testing.T, userID, title string, priority int, deadline time.Time) *models.Task {
	t.Helper()
	task, err := e.svc.CreateTask(context.Background(), &models.Task{
		UserID:            userID,
		Title:             title,
		Priority:          priority,
		Deadline:          deadline,
		EstimatedDuration: 60,
		Category:          models.CategoryWork,
		Complexity:        5,
		RequiredEnergy:    6,
		RequiredFocus:     6,
	})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	return task
}

func TestService_CreateTaskDefaultsAndValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	task, err := env.svc.CreateTask(ctx, &models.Task{UserID: "u1", Title: "Write report", EstimatedDuration: 30})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if task.Priority != 3 || task.Complexity != 5 || task.Status != models.TaskStatusPending {
		t.Errorf("Expected defaults to be applied, got %+v", task)
	}

	_, err = env.svc.CreateTask(ctx, &models.Task{UserID: "u1", Title: "Bad", Priority: 9, EstimatedDuration: 30})
	if !errors.Is(err, ErrInvalidTask) {
		t.Errorf("Expected ErrInvalidTask, got %v", err)
	}

	_, err = env.svc.CreateTask(ctx, &models.Task{Title: "Nobody's"})
	if !errors.Is(err, ErrUserRequired) {
		t.Errorf("Expected ErrUserRequired, got %v", err)
	}
}

func TestService_GetTaskOwnership(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	task := env.addTask(t, "u1", "Mine", 3, time.Time{})

	if _, err := env.svc.GetTask(ctx, "u1", task.ID); err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if _, err := env.svc.GetTask(ctx, "u2", task.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("Expected ErrForbidden for foreign task, got %v", err)
	}
	if _, err := env.svc.GetTask(ctx, "u1", "missing"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("Expected ErrTaskNotFound, got %v", err)
	}
}

func TestService_UpdateTaskStatusRecordsCompletion(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	task := env.addTask(t, "u1", "Finish me", 3, time.Time{})

	if _, err := env.svc.UpdateTaskStatus(ctx, "u1", task.ID, "bogus"); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("Expected ErrInvalidStatus, got %v", err)
	}
	if _, err := env.svc.UpdateTaskStatus(ctx, "u2", task.ID, models.TaskStatusCompleted); !errors.Is(err, ErrForbidden) {
		t.Errorf("Expected ErrForbidden, got %v", err)
	}

	updated, err := env.svc.UpdateTaskStatus(ctx, "u1", task.ID, models.TaskStatusCompleted)
	if err != nil {
		t.Fatalf("UpdateTaskStatus failed: %v", err)
	}
	if updated.Status != models.TaskStatusCompleted {
		t.Errorf("Expected completed, got %s", updated.Status)
	}

	events, err := env.svc.History(ctx, "u1")
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(events) != 1 || events[0].Type != models.EventTaskCompleted {
		t.Errorf("Expected one task_completed event, got %+v", events)
	}
}

func TestService_DistributePersistsSchedule(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	task := env.addTask(t, "u1", "Plan sprint", 4, testNow.Add(72*time.Hour))

	result, err := env.svc.Distribute(ctx, "u1", DistributeRequest{CorrelationID: "corr-1"})
	if err != nil {
		t.Fatalf("Distribute failed: %v", err)
	}
	if len(result.Scheduled) != 1 || len(result.Unfeasible) != 0 {
		t.Fatalf("Expected 1 scheduled task, got %d scheduled, %d unfeasible", len(result.Scheduled), len(result.Unfeasible))
	}
	if result.Metadata.CorrelationID != "corr-1" {
		t.Errorf("Expected correlation id to be kept, got %q", result.Metadata.CorrelationID)
	}

	stored, err := env.store.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if stored.Status != models.TaskStatusScheduled || len(stored.ScheduledDates) != 1 {
		t.Fatalf("Expected persisted schedule, got status %s with %d occurrences", stored.Status, len(stored.ScheduledDates))
	}
	occ := stored.ScheduledDates[0]
	if occ.EndTime().After(task.Deadline) {
		t.Errorf("Occurrence ends %v after deadline %v", occ.EndTime(), task.Deadline)
	}

	if env.notifier.count(connectors.EventTaskScheduled) != 1 {
		t.Error("Expected a task.scheduled notification")
	}
	if env.notifier.count(connectors.EventDistributionCompleted) != 1 {
		t.Error("Expected a distribution.completed notification")
	}

	events, _ := env.svc.History(ctx, "u1")
	if len(events) != 1 || events[0].Type != models.EventTaskAssigned || events[0].TaskID != task.ID {
		t.Errorf("Expected one task_assigned event in history, got %+v", events)
	}
}

func TestService_DistributeSuppliedTasksAreNotPersisted(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	state := goodState()
	result, err := env.svc.Distribute(ctx, "u1", DistributeRequest{
		State: &state,
		Tasks: []models.Task{
			{Title: "What-if", Priority: 3, EstimatedDuration: 45, Complexity: 4, RequiredEnergy: 5, RequiredFocus: 5, Status: models.TaskStatusPending},
			{ID: "x", UserID: "u2", Title: "Foreign", Priority: 5, EstimatedDuration: 45, Complexity: 4, RequiredEnergy: 5, RequiredFocus: 5},
			{Title: "Too short", Priority: 3, EstimatedDuration: 10, Complexity: 4, RequiredEnergy: 5, RequiredFocus: 5},
		},
	})
	if err != nil {
		t.Fatalf("Distribute failed: %v", err)
	}
	if result.Report.TotalTasks != 2 {
		t.Errorf("Expected the foreign task to be dropped, got %d tasks", result.Report.TotalTasks)
	}
	if len(result.Scheduled) != 1 || result.Scheduled[0].UserID != "u1" {
		t.Errorf("Expected the supplied task to be scheduled for u1, got %+v", result.Scheduled)
	}
	if len(result.Unfeasible) != 1 || result.Unfeasible[0].Task.Title != "Too short" {
		t.Errorf("Expected the short task to be unfeasible, got %+v", result.Unfeasible)
	}

	stored, _ := env.store.ListTasks(ctx, store.TaskFilter{UserID: "u1"})
	if len(stored) != 0 {
		t.Errorf("Expected nothing persisted, got %d tasks", len(stored))
	}
}

func TestService_DistributeFiltersForeignStoreRecords(t *testing.T) {
	foreign := models.Task{
		ID: "intruder", UserID: "u2", Title: "Someone else's", Priority: 5, EstimatedDuration: 60,
		Complexity: 5, RequiredEnergy: 5, RequiredFocus: 5, Status: models.TaskStatusPending,
	}
	env := newTestEnv(t, func(st *store.Store) TaskStore { return &leakyStore{Store: st, foreign: foreign} })
	ctx := context.Background()
	env.addTask(t, "u1", "Mine", 3, time.Time{})

	result, err := env.svc.Distribute(ctx, "u1", DistributeRequest{})
	if err != nil {
		t.Fatalf("Distribute failed: %v", err)
	}
	for _, task := range result.Scheduled {
		if task.UserID != "u1" {
			t.Fatalf("Foreign task %s leaked into the schedule", task.ID)
		}
	}
	if result.MIT != nil && result.MIT.TaskID == "intruder" {
		t.Fatal("Foreign task selected as MIT")
	}
}

func TestService_CalculateMITCachesAndRevalidates(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	mine := env.addTask(t, "u1", "Important", 5, testNow.Add(20*time.Hour))
	env.addTask(t, "u1", "Less important", 1, time.Time{})

	first, err := env.svc.CalculateMIT(ctx, "u1")
	if err != nil {
		t.Fatalf("CalculateMIT failed: %v", err)
	}
	if first.MIT == nil || first.MIT.TaskID != mine.ID || first.Cached {
		t.Fatalf("Expected fresh MIT %s, got %+v", mine.ID, first)
	}

	second, err := env.svc.CalculateMIT(ctx, "u1")
	if err != nil {
		t.Fatalf("CalculateMIT failed: %v", err)
	}
	if !second.Cached || second.MIT.TaskID != mine.ID {
		t.Errorf("Expected cached MIT, got %+v", second)
	}
	if env.notifier.count(connectors.EventMITSelected) != 1 {
		t.Errorf("Expected one mit.selected notification, got %d", env.notifier.count(connectors.EventMITSelected))
	}
}

func TestService_CalculateMITInvalidatesForeignCacheEntry(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	mine := env.addTask(t, "u1", "Mine", 3, time.Time{})
	theirs := env.addTask(t, "u2", "Theirs", 5, time.Time{})

	// A corrupted entry under u1's key that points at u2's task.
	poisoned := cachedMIT{
		MIT:           models.MitResult{TaskID: theirs.ID, UserID: "u1", Title: theirs.Title, FinalScore: 9},
		CachedForUser: "u1",
		CachedAt:      testNow,
	}
	if err := env.cache.Set(ctx, cache.MITKey("u1"), poisoned, time.Hour); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	resp, err := env.svc.CalculateMIT(ctx, "u1")
	if err != nil {
		t.Fatalf("CalculateMIT failed: %v", err)
	}
	if resp.Cached {
		t.Fatal("Expected the poisoned entry to be discarded")
	}
	if resp.MIT == nil || resp.MIT.TaskID != mine.ID {
		t.Fatalf("Expected recomputed MIT %s, got %+v", mine.ID, resp.MIT)
	}

	var fresh cachedMIT
	ok, err := env.cache.Get(ctx, cache.MITKey("u1"), &fresh)
	if err != nil || !ok {
		t.Fatalf("Expected a fresh cache entry, got ok=%v err=%v", ok, err)
	}
	if fresh.MIT.TaskID != mine.ID || fresh.CachedForUser != "u1" {
		t.Errorf("unexpected cache entry %+v", fresh)
	}
}

func TestService_CalculateMITInvalidatesEntryCachedForAnotherUser(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	mine := env.addTask(t, "u1", "Mine", 3, time.Time{})

	poisoned := cachedMIT{
		MIT:           models.MitResult{TaskID: mine.ID, UserID: "u1"},
		CachedForUser: "u2",
	}
	env.cache.Set(ctx, cache.MITKey("u1"), poisoned, time.Hour)

	resp, err := env.svc.CalculateMIT(ctx, "u1")
	if err != nil {
		t.Fatalf("CalculateMIT failed: %v", err)
	}
	if resp.Cached {
		t.Error("Expected entry cached for another user to be discarded")
	}
}

func TestService_CalculateMITNoActiveTasks(t *testing.T) {
	env := newTestEnv(t, nil)
	resp, err := env.svc.CalculateMIT(context.Background(), "u1")
	if err != nil {
		t.Fatalf("CalculateMIT failed: %v", err)
	}
	if resp.MIT != nil {
		t.Errorf("Expected no MIT, got %+v", resp.MIT)
	}
}

func TestService_SortedTasksCacheInvalidatedOnChange(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.addTask(t, "u1", "First", 3, time.Time{})

	first, err := env.svc.SortedTasks(ctx, "u1")
	if err != nil {
		t.Fatalf("SortedTasks failed: %v", err)
	}
	if first.Cached || first.Total != 1 {
		t.Fatalf("Expected fresh list of 1, got %+v", first)
	}

	second, _ := env.svc.SortedTasks(ctx, "u1")
	if !second.Cached {
		t.Error("Expected second read to be cached")
	}

	env.addTask(t, "u1", "Second", 5, testNow.Add(10*time.Hour))
	third, _ := env.svc.SortedTasks(ctx, "u1")
	if third.Cached || third.Total != 2 {
		t.Errorf("Expected recomputed list of 2 after create, got %+v", third)
	}
	if third.Tasks[0].Task.Title != "Second" {
		t.Errorf("Expected the urgent high-priority task first, got %s", third.Tasks[0].Task.Title)
	}

	forced, err := env.svc.Prioritize(ctx, "u1")
	if err != nil {
		t.Fatalf("Prioritize failed: %v", err)
	}
	if forced.Cached {
		t.Error("Expected Prioritize to recompute")
	}
}

func TestService_SortedTasksDropsCompletedFromCache(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	task := env.addTask(t, "u1", "Soon done", 3, time.Time{})
	env.svc.SortedTasks(ctx, "u1")

	// Bypass the service so the cache is not invalidated.
	if err := env.store.UpdateTaskStatus(ctx, task.ID, models.TaskStatusCompleted); err != nil {
		t.Fatalf("UpdateTaskStatus failed: %v", err)
	}
	got, _ := env.svc.SortedTasks(ctx, "u1")
	if got.Cached || got.Total != 0 {
		t.Errorf("Expected stale entry to be recomputed, got %+v", got)
	}
}

func TestService_RescheduleExplicitIDs(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	mine := env.addTask(t, "u1", "Move me", 3, time.Time{})
	theirs := env.addTask(t, "u2", "Not yours", 3, time.Time{})

	result, err := env.svc.Reschedule(ctx, "u1", RescheduleRequest{TaskIDs: []string{mine.ID, theirs.ID, "missing"}})
	if err != nil {
		t.Fatalf("Reschedule failed: %v", err)
	}
	if result.Count != 1 || result.Rescheduled[0].TaskID != mine.ID {
		t.Fatalf("Expected only the owned task, got %+v", result.Rescheduled)
	}
	sug := result.Rescheduled[0]
	if sug.SuggestedSlot == nil {
		t.Fatalf("Expected a concrete slot, got %q", sug.SuggestedTime)
	}
	if sug.SuggestedSlot.Start.Before(testNow) {
		t.Errorf("Suggested slot %v starts in the past", sug.SuggestedSlot.Start)
	}
	if sug.Reason != "state mismatch" {
		t.Errorf("Expected default reason, got %q", sug.Reason)
	}
	if env.notifier.count(connectors.EventTaskRescheduled) != 1 {
		t.Error("Expected a task.rescheduled notification")
	}

	events, _ := env.svc.History(ctx, "u1")
	if len(events) != 1 || events[0].Type != models.EventTaskRescheduled {
		t.Errorf("Expected a task_rescheduled event, got %+v", events)
	}
}

func TestService_RescheduleNothingToDo(t *testing.T) {
	env := newTestEnv(t, nil)
	result, err := env.svc.Reschedule(context.Background(), "u1", RescheduleRequest{})
	if err != nil {
		t.Fatalf("Reschedule failed: %v", err)
	}
	if result.Count != 0 || result.Message == "" {
		t.Errorf("Expected an empty result with a message, got %+v", result)
	}
}

func TestService_RequiresUser(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	if _, err := env.svc.Distribute(ctx, "", DistributeRequest{}); !errors.Is(err, ErrUserRequired) {
		t.Errorf("Distribute: expected ErrUserRequired, got %v", err)
	}
	if _, err := env.svc.CalculateMIT(ctx, ""); !errors.Is(err, ErrUserRequired) {
		t.Errorf("CalculateMIT: expected ErrUserRequired, got %v", err)
	}
	if _, err := env.svc.History(ctx, ""); !errors.Is(err, ErrUserRequired) {
		t.Errorf("History: expected ErrUserRequired, got %v", err)
	}
}

func TestService_ConcurrentMITSharesComputation(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.addTask(t, "u1", "Only task", 4, time.Time{})

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := env.svc.CalculateMIT(ctx, "u1")
			if err == nil && resp.MIT == nil {
				err = errors.New("missing MIT")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("CalculateMIT failed: %v", err)
		}
	}

	events, _ := env.svc.History(ctx, "u1")
	if len(events) != 1 {
		t.Errorf("Expected exactly one mit_calculated event, got %d", len(events))
	}
}
