package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fentz26/potok/internal/models"
	"github.com/spf13/cobra"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks",
}

var taskAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a new task",
	RunE:  runTaskAdd,
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	RunE:  runTaskList,
}

var taskShowCmd = &cobra.Command{
	Use:   "show [task-id]",
	Short: "Show task details",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskShow,
}

var taskDoneCmd = &cobra.Command{
	Use:   "done [task-id]",
	Short: "Mark a task completed",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskStatus(models.TaskStatusCompleted),
}

var taskStartCmd = &cobra.Command{
	Use:   "start [task-id]",
	Short: "Mark a task in progress",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskStatus(models.TaskStatusInProgress),
}

var taskCancelCmd = &cobra.Command{
	Use:   "cancel [task-id]",
	Short: "Cancel a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskStatus(models.TaskStatusCancelled),
}

var (
	taskTitle      string
	taskDesc       string
	taskPriority   int
	taskDuration   int
	taskDeadline   string
	taskCategory   string
	taskComplexity int
	taskEnergy     int
	taskFocus      int
	taskStatus     string
)

func init() {
	taskCmd.AddCommand(taskAddCmd, taskListCmd, taskShowCmd, taskDoneCmd, taskStartCmd, taskCancelCmd)

	taskAddCmd.Flags().StringVar(&taskTitle, "title", "", "Task title (required)")
	taskAddCmd.Flags().StringVar(&taskDesc, "desc", "", "Task description")
	taskAddCmd.Flags().IntVar(&taskPriority, "priority", 3, "Priority from 1 (low) to 5 (critical)")
	taskAddCmd.Flags().IntVar(&taskDuration, "duration", 30, "Estimated duration in minutes")
	taskAddCmd.Flags().StringVar(&taskDeadline, "deadline", "", "Deadline (RFC 3339 or 2006-01-02 15:04, local time)")
	taskAddCmd.Flags().StringVar(&taskCategory, "category", "other", "Category (work, health, learning, personal, social, other)")
	taskAddCmd.Flags().IntVar(&taskComplexity, "complexity", 5, "Complexity from 1 to 10")
	taskAddCmd.Flags().IntVar(&taskEnergy, "energy", 5, "Required energy from 1 to 10")
	taskAddCmd.Flags().IntVar(&taskFocus, "focus", 5, "Required focus from 1 to 10")
	taskAddCmd.MarkFlagRequired("title")

	taskListCmd.Flags().StringVar(&taskStatus, "status", "", "Filter by status, comma separated (pending, scheduled, in_progress, completed, cancelled)")
}

func runTaskAdd(cmd *cobra.Command, args []string) error {
	if err := requireUser(); err != nil {
		return err
	}
	task := models.Task{
		UserID:            userID,
		Title:             taskTitle,
		Description:       taskDesc,
		Priority:          taskPriority,
		EstimatedDuration: taskDuration,
		Category:          models.Category(taskCategory),
		Complexity:        taskComplexity,
		RequiredEnergy:    taskEnergy,
		RequiredFocus:     taskFocus,
	}
	if taskDeadline != "" {
		deadline, err := parseDeadline(taskDeadline)
		if err != nil {
			return err
		}
		task.Deadline = deadline
	}

	created, err := apiClient().CreateTask(cmd.Context(), task)
	if err != nil {
		return err
	}
	fmt.Printf("Created task: %s\n", created.ID)
	return nil
}

func runTaskList(cmd *cobra.Command, args []string) error {
	if err := requireUser(); err != nil {
		return err
	}
	var statuses []models.TaskStatus
	if taskStatus != "" {
		for _, st := range strings.Split(taskStatus, ",") {
			statuses = append(statuses, models.TaskStatus(strings.TrimSpace(st)))
		}
	}

	tasks, err := apiClient().ListTasks(cmd.Context(), userID, statuses...)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Println("No tasks found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tPRIORITY\tDURATION\tDEADLINE\tSTATUS\tNEXT")
	for _, t := range tasks {
		fmt.Fprintf(w, "%s\t%s\t%d\t%dm\t%s\t%s\t%s\n",
			truncateID(t.ID), truncate(t.Title, 40), t.Priority, t.EstimatedDuration,
			formatTime(t.Deadline), t.Status, nextOccurrence(t))
	}
	w.Flush()
	return nil
}

func runTaskShow(cmd *cobra.Command, args []string) error {
	if err := requireUser(); err != nil {
		return err
	}
	task, err := apiClient().GetTask(cmd.Context(), userID, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("ID:          %s\n", task.ID)
	fmt.Printf("Title:       %s\n", task.Title)
	if task.Description != "" {
		fmt.Printf("Description: %s\n", task.Description)
	}
	fmt.Printf("Status:      %s\n", task.Status)
	fmt.Printf("Priority:    %d\n", task.Priority)
	fmt.Printf("Category:    %s\n", task.Category)
	fmt.Printf("Duration:    %dm\n", task.EstimatedDuration)
	fmt.Printf("Demands:     complexity %d, energy %d, focus %d\n", task.Complexity, task.RequiredEnergy, task.RequiredFocus)
	fmt.Printf("Deadline:    %s\n", formatTime(task.Deadline))
	for _, occ := range task.ScheduledDates {
		fmt.Printf("Scheduled:   %s (%dm)\n", occ.StartTime.Local().Format("Mon 2006-01-02 15:04"), occ.Duration)
	}
	fmt.Printf("Created:     %s\n", formatTime(task.CreatedAt))
	fmt.Printf("Updated:     %s\n", formatTime(task.UpdatedAt))
	return nil
}

func runTaskStatus(status models.TaskStatus) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := requireUser(); err != nil {
			return err
		}
		task, err := apiClient().UpdateTaskStatus(cmd.Context(), userID, args[0], status)
		if err != nil {
			return err
		}
		fmt.Printf("Task %s is now %s\n", truncateID(task.ID), task.Status)
		return nil
	}
}

func parseDeadline(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			if layout == "2006-01-02" {
				t = t.Add(23*time.Hour + 59*time.Minute)
			}
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid deadline %q: use RFC 3339 or 2006-01-02 15:04", s)
}

func nextOccurrence(t models.Task) string {
	if len(t.ScheduledDates) == 0 {
		return "-"
	}
	return t.ScheduledDates[0].StartTime.Local().Format("Mon 15:04")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
