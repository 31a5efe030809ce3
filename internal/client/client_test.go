package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fentz26/potok/internal/controlplane"
	"github.com/fentz26/potok/internal/models"
)

func TestClient_Distribute(t *testing.T) {
	var gotPath, gotMethod string
	var gotBody controlplane.DistributeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod = r.URL.Path, r.Method
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(models.DistributionResult{UserID: "u 1", Report: models.FeasibilityReport{TotalTasks: 2}})
	}))
	defer srv.Close()

	c := New(srv.URL + "/")
	result, err := c.Distribute(context.Background(), "u 1", controlplane.DistributeRequest{CorrelationID: "c"})
	if err != nil {
		t.Fatalf("Distribute failed: %v", err)
	}
	if gotMethod != http.MethodPost || gotPath != "/distribution/u 1/distribute" {
		t.Errorf("unexpected request %s %s", gotMethod, gotPath)
	}
	if gotBody.CorrelationID != "c" {
		t.Errorf("Expected body to be sent, got %+v", gotBody)
	}
	if result.Report.TotalTasks != 2 {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestClient_ListTasksQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("user_id") != "u1" || r.URL.Query().Get("status") != "pending,scheduled" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Write([]byte(`[{"id":"t1","title":"One"}]`))
	}))
	defer srv.Close()

	tasks, err := New(srv.URL).ListTasks(context.Background(), "u1", models.TaskStatusPending, models.TaskStatusScheduled)
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "t1" {
		t.Errorf("unexpected tasks %+v", tasks)
	}
}

func TestClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":"task belongs to another user"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).GetTask(context.Background(), "u1", "t1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusForbidden || apiErr.Message != "task belongs to another user" {
		t.Errorf("unexpected error %+v", apiErr)
	}
}

func TestClient_HealthUnavailableKeepsPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"ok":false,"db":"database is closed","version":"potok-2.1"}`))
	}))
	defer srv.Close()

	health, err := New(srv.URL).Health(context.Background())
	if err == nil {
		t.Fatal("Expected an error for 503")
	}
	if health == nil || health.OK || health.DB != "database is closed" {
		t.Errorf("Expected payload alongside error, got %+v", health)
	}
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	if _, err := New(addr).History(context.Background(), "u1"); err == nil {
		t.Fatal("Expected an error for a closed server")
	}
}
