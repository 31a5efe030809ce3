package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fentz26/potok/internal/controlplane"
	"github.com/fentz26/potok/internal/models"
	"github.com/mark3labs/mcp-go/mcp"
)

type fakeBackend struct {
	users   []string
	created models.Task
	resched controlplane.RescheduleRequest
	err     error
}

func (f *fakeBackend) seen(userID string) { f.users = append(f.users, userID) }

func (f *fakeBackend) CreateTask(_ context.Context, task models.Task) (*models.Task, error) {
	f.seen(task.UserID)
	f.created = task
	task.ID = "t-new"
	if task.Priority == 0 {
		task.Priority = 3
	}
	return &task, f.err
}

func (f *fakeBackend) UpdateTaskStatus(_ context.Context, userID, id string, status models.TaskStatus) (*models.Task, error) {
	f.seen(userID)
	return &models.Task{ID: id, Title: "Done thing", Status: status}, f.err
}

func (f *fakeBackend) Distribute(_ context.Context, userID string, req controlplane.DistributeRequest) (*models.DistributionResult, error) {
	f.seen(userID)
	if f.err != nil {
		return nil, f.err
	}
	return &models.DistributionResult{
		UserID:   userID,
		Report:   models.FeasibilityReport{TotalTasks: 1, ScheduledCount: 1},
		Metadata: models.RunMetadata{CorrelationID: req.CorrelationID},
	}, nil
}

func (f *fakeBackend) SortedTasks(_ context.Context, userID string) (*controlplane.SortedTasks, error) {
	f.seen(userID)
	return &controlplane.SortedTasks{Tasks: []models.PrioritizedTask{{Task: models.Task{Title: "Top"}, CalculatedPriority: 0.8}}}, f.err
}

func (f *fakeBackend) MIT(_ context.Context, userID string) (*controlplane.MITResponse, error) {
	f.seen(userID)
	if f.err != nil {
		return nil, f.err
	}
	return &controlplane.MITResponse{MIT: &models.MitResult{Title: "Ship it", Reason: "Due today", EstimatedDuration: 45}}, nil
}

func (f *fakeBackend) Reschedule(_ context.Context, userID string, req controlplane.RescheduleRequest) (*controlplane.RescheduleResult, error) {
	f.seen(userID)
	f.resched = req
	return &controlplane.RescheduleResult{Rescheduled: []models.RescheduleSuggestion{{Title: "Emails", SuggestedTime: "Thu 09:00-09:30", Reason: req.Reason}}}, f.err
}

func (f *fakeBackend) History(_ context.Context, userID string) ([]models.Event, error) {
	f.seen(userID)
	return []models.Event{{Type: models.EventTaskAssigned, TaskID: "t1", CreatedAt: time.Now()}}, f.err
}

func call(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{Params: mcp.CallToolParams{Arguments: args}}
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatal("Expected tool content")
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("Expected text content, got %T", res.Content[0])
	}
	return tc.Text
}

func TestDistributeUsesDefaultUser(t *testing.T) {
	fb := &fakeBackend{}
	h := &Server{backend: fb, defaultUser: "me"}

	res, err := h.distribute(context.Background(), call(map[string]any{"correlation_id": "c-9"}))
	if err != nil {
		t.Fatalf("distribute returned error: %v", err)
	}
	out := text(t, res)
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", out)
	}
	if !strings.Contains(out, "# Distribution for me") || !strings.Contains(out, "c-9") {
		t.Errorf("unexpected report:\n%s", out)
	}
	if len(fb.users) != 1 || fb.users[0] != "me" {
		t.Errorf("Expected the default user, got %v", fb.users)
	}
}

func TestExplicitUserWins(t *testing.T) {
	fb := &fakeBackend{}
	h := &Server{backend: fb, defaultUser: "me"}

	res, _ := h.mostImportant(context.Background(), call(map[string]any{"user_id": "other"}))
	if !strings.Contains(text(t, res), "Ship it") {
		t.Error("Expected MIT title")
	}
	if fb.users[0] != "other" {
		t.Errorf("Expected explicit user, got %v", fb.users)
	}
}

func TestUserRequiredWithoutDefault(t *testing.T) {
	h := &Server{backend: &fakeBackend{}}
	res, err := h.sorted(context.Background(), call(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsError || !strings.Contains(text(t, res), "user_id is required") {
		t.Errorf("Expected a tool error, got %+v", res)
	}
}

func TestBackendErrorsBecomeToolErrors(t *testing.T) {
	h := &Server{backend: &fakeBackend{err: errors.New("daemon down")}, defaultUser: "me"}
	res, err := h.distribute(context.Background(), call(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsError || !strings.Contains(text(t, res), "daemon down") {
		t.Errorf("Expected tool error mentioning the cause, got %+v", res)
	}
}

func TestRescheduleAndHistory(t *testing.T) {
	fb := &fakeBackend{}
	h := &Server{backend: fb, defaultUser: "me"}

	res, _ := h.reschedule(context.Background(), call(map[string]any{
		"task_ids": []any{"a", "b"},
		"reason":   "meeting moved",
	}))
	if !strings.Contains(text(t, res), "**Emails** → Thu 09:00-09:30 (meeting moved)") {
		t.Errorf("unexpected output: %s", text(t, res))
	}
	if len(fb.resched.TaskIDs) != 2 || fb.resched.Reason != "meeting moved" {
		t.Errorf("unexpected request %+v", fb.resched)
	}

	res, _ = h.history(context.Background(), call(nil))
	if !strings.Contains(text(t, res), "task_assigned") {
		t.Errorf("unexpected history: %s", text(t, res))
	}
}

func TestCreateAndCompleteTask(t *testing.T) {
	fb := &fakeBackend{}
	h := &Server{backend: fb, defaultUser: "me"}

	res, _ := h.createTask(context.Background(), call(map[string]any{
		"title":              "Book flights",
		"estimated_duration": 20,
		"deadline":           "2026-03-06T17:00:00Z",
		"category":           "personal",
	}))
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", text(t, res))
	}
	if fb.created.UserID != "me" || fb.created.Deadline.Day() != 6 || fb.created.Category != models.CategoryPersonal {
		t.Errorf("unexpected task %+v", fb.created)
	}
	if !strings.Contains(text(t, res), "t-new") {
		t.Error("Expected the new id in the output")
	}

	res, _ = h.createTask(context.Background(), call(map[string]any{"title": "x", "estimated_duration": 5, "deadline": "friday"}))
	if !res.IsError {
		t.Error("Expected a tool error for an invalid deadline")
	}

	res, _ = h.completeTask(context.Background(), call(map[string]any{}))
	if !res.IsError {
		t.Error("Expected a tool error without task_id")
	}
	res, _ = h.completeTask(context.Background(), call(map[string]any{"task_id": "t1"}))
	if res.IsError || !strings.Contains(text(t, res), "Done thing") {
		t.Errorf("unexpected output: %+v", res)
	}
}

func TestNewRegistersTools(t *testing.T) {
	s := New(&fakeBackend{}, "me")
	resp := s.HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("Failed to encode response: %v", err)
	}
	for _, name := range []string{
		"distribute_tasks", "most_important_task", "sorted_tasks", "reschedule_tasks",
		"create_task", "complete_task", "task_history",
	} {
		if !strings.Contains(string(data), `"`+name+`"`) {
			t.Errorf("Expected tool %s to be listed: %s", name, data)
		}
	}
}
