// Package mcpserver exposes the Potok daemon as Model Context Protocol tools
// so assistants can plan a user's day.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fentz26/potok/internal/client"
	"github.com/fentz26/potok/internal/config"
	"github.com/fentz26/potok/internal/controlplane"
	"github.com/fentz26/potok/internal/models"
	"github.com/fentz26/potok/internal/report"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Backend is the daemon API used by the tools.
type Backend interface {
	CreateTask(ctx context.Context, task models.Task) (*models.Task, error)
	UpdateTaskStatus(ctx context.Context, userID, id string, status models.TaskStatus) (*models.Task, error)
	Distribute(ctx context.Context, userID string, req controlplane.DistributeRequest) (*models.DistributionResult, error)
	SortedTasks(ctx context.Context, userID string) (*controlplane.SortedTasks, error)
	MIT(ctx context.Context, userID string) (*controlplane.MITResponse, error)
	Reschedule(ctx context.Context, userID string, req controlplane.RescheduleRequest) (*controlplane.RescheduleResult, error)
	History(ctx context.Context, userID string) ([]models.Event, error)
}

var _ Backend = (*client.Client)(nil)

// UserArgs selects the user a tool acts for.
type UserArgs struct {
	UserID string `json:"user_id" jsonschema:"description=User whose tasks are planned. Defaults to the server's user."`
}

// DistributeArgs are the arguments of distribute_tasks.
type DistributeArgs struct {
	UserID        string `json:"user_id" jsonschema:"description=User whose tasks are planned. Defaults to the server's user."`
	CorrelationID string `json:"correlation_id" jsonschema:"description=Optional id attached to the run and its notifications"`
}

// RescheduleArgs are the arguments of reschedule_tasks.
type RescheduleArgs struct {
	UserID  string   `json:"user_id" jsonschema:"description=User whose tasks are planned. Defaults to the server's user."`
	TaskIDs []string `json:"task_ids" jsonschema:"description=Tasks to move. Empty picks tasks that fit the current state poorly."`
	Reason  string   `json:"reason" jsonschema:"description=Why the tasks are moved"`
}

// CreateTaskArgs are the arguments of create_task.
type CreateTaskArgs struct {
	UserID            string `json:"user_id" jsonschema:"description=Owner of the task. Defaults to the server's user."`
	Title             string `json:"title" jsonschema:"required,description=Short title"`
	Description       string `json:"description" jsonschema:"description=Details"`
	Priority          int    `json:"priority" jsonschema:"minimum=1,maximum=5,description=1 (low) to 5 (critical), default 3"`
	EstimatedDuration int    `json:"estimated_duration" jsonschema:"required,description=Minutes of work"`
	Deadline          string `json:"deadline" jsonschema:"description=RFC 3339 timestamp"`
	Category          string `json:"category" jsonschema:"enum=work,enum=health,enum=learning,enum=personal,enum=social,enum=other"`
	Complexity        int    `json:"complexity" jsonschema:"minimum=1,maximum=10"`
	RequiredEnergy    int    `json:"required_energy" jsonschema:"minimum=1,maximum=10"`
	RequiredFocus     int    `json:"required_focus" jsonschema:"minimum=1,maximum=10"`
}

// CompleteTaskArgs are the arguments of complete_task.
type CompleteTaskArgs struct {
	UserID string `json:"user_id" jsonschema:"description=Owner of the task. Defaults to the server's user."`
	TaskID string `json:"task_id" jsonschema:"required,description=Task to mark completed"`
}

// Server holds the tool handlers.
type Server struct {
	backend     Backend
	defaultUser string
}

// New creates the MCP server. defaultUser is used when a call omits user_id.
func New(backend Backend, defaultUser string) *server.MCPServer {
	h := &Server{backend: backend, defaultUser: defaultUser}
	s := server.NewMCPServer("potok", config.Version, server.WithToolCapabilities(true))
	h.Register(s)
	return s
}

// Serve runs the MCP server on stdio until the client disconnects.
func Serve(backend Backend, defaultUser string) error {
	return server.ServeStdio(New(backend, defaultUser))
}

// Register adds the Potok tools to s.
func (h *Server) Register(s *server.MCPServer) {
	s.AddTool(mcp.NewTool("distribute_tasks",
		mcp.WithDescription(`Plan the user's pending tasks into free working time over the coming days.

Saves the schedule and returns it per day, with unfeasible tasks, recommendations and workload.`),
		mcp.WithInputSchema[DistributeArgs](),
	), h.distribute)

	s.AddTool(mcp.NewTool("most_important_task",
		mcp.WithDescription("Return the single task the user should work on right now, with the reasoning behind it."),
		mcp.WithInputSchema[UserArgs](),
	), h.mostImportant)

	s.AddTool(mcp.NewTool("sorted_tasks",
		mcp.WithDescription("Rank the user's active tasks by priority, deadline and fit with the current energy and focus."),
		mcp.WithInputSchema[UserArgs](),
	), h.sorted)

	s.AddTool(mcp.NewTool("reschedule_tasks",
		mcp.WithDescription("Propose new times for tasks that do not fit the user's current state, or for the given task ids."),
		mcp.WithInputSchema[RescheduleArgs](),
	), h.reschedule)

	s.AddTool(mcp.NewTool("create_task",
		mcp.WithDescription("Add a task for the user. It is considered by the next distribution."),
		mcp.WithInputSchema[CreateTaskArgs](),
	), h.createTask)

	s.AddTool(mcp.NewTool("complete_task",
		mcp.WithDescription("Mark a task of the user as completed."),
		mcp.WithInputSchema[CompleteTaskArgs](),
	), h.completeTask)

	s.AddTool(mcp.NewTool("task_history",
		mcp.WithDescription("List the recent scheduling decisions recorded for the user."),
		mcp.WithInputSchema[UserArgs](),
	), h.history)
}

func (h *Server) user(id string) (string, error) {
	if id = strings.TrimSpace(id); id != "" {
		return id, nil
	}
	if h.defaultUser != "" {
		return h.defaultUser, nil
	}
	return "", errors.New("user_id is required")
}

func (h *Server) distribute(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args DistributeArgs
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	userID, err := h.user(args.UserID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := h.backend.Distribute(ctx, userID, controlplane.DistributeRequest{CorrelationID: args.CorrelationID})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("distribution failed: %v", err)), nil
	}
	return mcp.NewToolResultText(report.Distribution(result)), nil
}

func (h *Server) mostImportant(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args UserArgs
	request.BindArguments(&args)
	userID, err := h.user(args.UserID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	resp, err := h.backend.MIT(ctx, userID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("MIT calculation failed: %v", err)), nil
	}
	return mcp.NewToolResultText(report.MIT(resp.MIT)), nil
}

func (h *Server) sorted(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args UserArgs
	request.BindArguments(&args)
	userID, err := h.user(args.UserID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	resp, err := h.backend.SortedTasks(ctx, userID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("prioritization failed: %v", err)), nil
	}
	return mcp.NewToolResultText(report.Prioritized(resp.Tasks)), nil
}

func (h *Server) reschedule(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args RescheduleArgs
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	userID, err := h.user(args.UserID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	resp, err := h.backend.Reschedule(ctx, userID, controlplane.RescheduleRequest{TaskIDs: args.TaskIDs, Reason: args.Reason})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("reschedule failed: %v", err)), nil
	}
	return mcp.NewToolResultText(report.Rescheduled(resp.Rescheduled)), nil
}

func (h *Server) createTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args CreateTaskArgs
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	userID, err := h.user(args.UserID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	task := models.Task{
		UserID:            userID,
		Title:             args.Title,
		Description:       args.Description,
		Priority:          args.Priority,
		EstimatedDuration: args.EstimatedDuration,
		Category:          models.Category(args.Category),
		Complexity:        args.Complexity,
		RequiredEnergy:    args.RequiredEnergy,
		RequiredFocus:     args.RequiredFocus,
	}
	if args.Deadline != "" {
		deadline, err := time.Parse(time.RFC3339, args.Deadline)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("deadline must be RFC 3339: %v", err)), nil
		}
		task.Deadline = deadline
	}

	created, err := h.backend.CreateTask(ctx, task)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("create task failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Created task **%s** (ID: %s, priority %d, %d min).",
		created.Title, created.ID, created.Priority, created.EstimatedDuration)), nil
}

func (h *Server) completeTask(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args CompleteTaskArgs
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if args.TaskID == "" {
		return mcp.NewToolResultError("task_id is required"), nil
	}
	userID, err := h.user(args.UserID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	task, err := h.backend.UpdateTaskStatus(ctx, userID, args.TaskID, models.TaskStatusCompleted)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("complete task failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Completed **%s**.", task.Title)), nil
}

func (h *Server) history(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args UserArgs
	request.BindArguments(&args)
	userID, err := h.user(args.UserID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	events, err := h.backend.History(ctx, userID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("history failed: %v", err)), nil
	}
	return mcp.NewToolResultText(report.History(events)), nil
}
