// Package client is the HTTP client of the Potok daemon API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fentz26/potok/internal/controlplane"
	"github.com/fentz26/potok/internal/models"
)

// DefaultTimeout is the default timeout for API requests.
const DefaultTimeout = 10 * time.Second

// APIError is a non-2xx response of the daemon.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Message)
}

// Client wraps HTTP calls to the Potok API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the daemon at baseURL.
func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
}

// BaseURL returns the daemon address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health returns the daemon health. The payload is returned alongside the
// error on a non-200 response.
func (c *Client) Health(ctx context.Context) (*controlplane.HealthResponse, error) {
	var health controlplane.HealthResponse
	err := c.do(ctx, http.MethodGet, "/health", nil, &health)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusServiceUnavailable {
		return &health, err
	}
	if err != nil {
		return nil, err
	}
	return &health, nil
}

// CreateTask stores a new task.
func (c *Client) CreateTask(ctx context.Context, task models.Task) (*models.Task, error) {
	var created models.Task
	if err := c.do(ctx, http.MethodPost, "/tasks", task, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// ListTasks returns the tasks of userID, optionally filtered by status.
func (c *Client) ListTasks(ctx context.Context, userID string, statuses ...models.TaskStatus) ([]models.Task, error) {
	q := url.Values{"user_id": {userID}}
	if len(statuses) > 0 {
		parts := make([]string, len(statuses))
		for i, st := range statuses {
			parts[i] = string(st)
		}
		q.Set("status", strings.Join(parts, ","))
	}
	var tasks []models.Task
	if err := c.do(ctx, http.MethodGet, "/tasks?"+q.Encode(), nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// GetTask returns one task of userID.
func (c *Client) GetTask(ctx context.Context, userID, id string) (*models.Task, error) {
	var task models.Task
	path := "/tasks/" + url.PathEscape(id) + "?" + url.Values{"user_id": {userID}}.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// UpdateTaskStatus moves a task of userID to status.
func (c *Client) UpdateTaskStatus(ctx context.Context, userID, id string, status models.TaskStatus) (*models.Task, error) {
	var task models.Task
	body := map[string]string{"user_id": userID, "status": string(status)}
	if err := c.do(ctx, http.MethodPatch, "/tasks/"+url.PathEscape(id), body, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// Distribute runs a distribution for userID.
func (c *Client) Distribute(ctx context.Context, userID string, req controlplane.DistributeRequest) (*models.DistributionResult, error) {
	var result models.DistributionResult
	if err := c.do(ctx, http.MethodPost, c.userPath(userID, "distribute"), req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SortedTasks returns the ranked active tasks of userID.
func (c *Client) SortedTasks(ctx context.Context, userID string) (*controlplane.SortedTasks, error) {
	var result controlplane.SortedTasks
	if err := c.do(ctx, http.MethodGet, c.userPath(userID, "tasks"), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Prioritize forces a recomputation of the ranked tasks of userID.
func (c *Client) Prioritize(ctx context.Context, userID string) (*controlplane.SortedTasks, error) {
	var result controlplane.SortedTasks
	if err := c.do(ctx, http.MethodPost, c.userPath(userID, "prioritize"), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// MIT returns the Most Important Task of userID.
func (c *Client) MIT(ctx context.Context, userID string) (*controlplane.MITResponse, error) {
	var result controlplane.MITResponse
	if err := c.do(ctx, http.MethodPost, c.userPath(userID, "mit"), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Reschedule proposes new times for tasks of userID.
func (c *Client) Reschedule(ctx context.Context, userID string, req controlplane.RescheduleRequest) (*controlplane.RescheduleResult, error) {
	var result controlplane.RescheduleResult
	if err := c.do(ctx, http.MethodPost, c.userPath(userID, "reschedule"), req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// History returns the recent events of userID.
func (c *Client) History(ctx context.Context, userID string) ([]models.Event, error) {
	var result struct {
		Events []models.Event `json:"events"`
	}
	if err := c.do(ctx, http.MethodGet, c.userPath(userID, "history"), nil, &result); err != nil {
		return nil, err
	}
	return result.Events, nil
}

func (c *Client) userPath(userID, action string) string {
	return "/distribution/" + url.PathEscape(userID) + "/" + action
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	// The health check answers 503 with its regular payload.
	decodable := resp.StatusCode < 400 || resp.StatusCode == http.StatusServiceUnavailable
	if out != nil && decodable && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	if resp.StatusCode >= 400 {
		return &APIError{Status: resp.StatusCode, Message: errorMessage(data)}
	}
	return nil
}

func errorMessage(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(body))
}
