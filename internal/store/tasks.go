package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fentz26/potok/internal/models"
	"github.com/google/uuid"
)

// ErrTaskNotFound indicates an update targeted a task that does not exist.
var ErrTaskNotFound = errors.New("task not found")

// TaskFilter narrows ListTasks.
type TaskFilter struct {
	UserID   string
	Statuses []models.TaskStatus
	Limit    int
}

const taskColumns = `id, user_id, title, description, priority, deadline, estimated_duration, category,
	complexity, required_energy, required_focus, status, stages, scheduled_dates, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// CreateTask inserts a new task. ID, status and timestamps are filled in
// when empty.
func (s *Store) CreateTask(ctx context.Context, task *models.Task) (*models.Task, error) {
	now := time.Now().UTC()
	t := task.Clone()
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Status == "" {
		t.Status = models.TaskStatusPending
	}
	if t.Category == "" {
		t.Category = models.CategoryOther
	}
	t.CreatedAt = now
	t.UpdatedAt = now

	stages, scheduled, err := encodeTaskJSON(&t)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.Title, t.Description, t.Priority, nullTime(t.Deadline), t.EstimatedDuration, t.Category,
		t.Complexity, t.RequiredEnergy, t.RequiredFocus, t.Status, stages, scheduled, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	return &t, nil
}

// GetTask retrieves a task by ID. It returns nil, nil when no task matches.
func (s *Store) GetTask(ctx context.Context, id string) (*models.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query task: %w", err)
	}
	return task, nil
}

// ListTasks returns tasks matching filter, oldest first.
func (s *Store) ListTasks(ctx context.Context, filter TaskFilter) ([]models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	var where []string
	var args []any

	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if len(filter.Statuses) > 0 {
		marks := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			marks[i] = "?"
			args = append(args, st)
		}
		where = append(where, "status IN ("+strings.Join(marks, ", ")+")")
	}
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at ASC, id ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

// UpdateTask overwrites every mutable field of an existing task.
func (s *Store) UpdateTask(ctx context.Context, task *models.Task) error {
	return s.updateTask(ctx, s.db, task)
}

// UpdateTaskStatus updates the status of a task.
func (s *Store) UpdateTaskStatus(ctx context.Context, id string, status models.TaskStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	return checkAffected(res)
}

// SaveSchedule persists the outcome of a run for userID in one transaction.
// Tasks owned by someone else are refused and nothing is written.
func (s *Store) SaveSchedule(ctx context.Context, userID string, tasks []models.Task) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i := range tasks {
		if tasks[i].UserID != userID {
			return fmt.Errorf("task %s is not owned by %s", tasks[i].ID, userID)
		}
		if err := s.updateTask(ctx, tx, &tasks[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) updateTask(ctx context.Context, db execer, task *models.Task) error {
	stages, scheduled, err := encodeTaskJSON(task)
	if err != nil {
		return err
	}
	task.UpdatedAt = time.Now().UTC()
	res, err := db.ExecContext(ctx,
		`UPDATE tasks SET title = ?, description = ?, priority = ?, deadline = ?, estimated_duration = ?,
			category = ?, complexity = ?, required_energy = ?, required_focus = ?, status = ?,
			stages = ?, scheduled_dates = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		task.Title, task.Description, task.Priority, nullTime(task.Deadline), task.EstimatedDuration,
		task.Category, task.Complexity, task.RequiredEnergy, task.RequiredFocus, task.Status,
		stages, scheduled, task.UpdatedAt, task.ID, task.UserID,
	)
	if err != nil {
		return fmt.Errorf("update task %s: %w", task.ID, err)
	}
	return checkAffected(res)
}

func scanTask(row rowScanner) (*models.Task, error) {
	var task models.Task
	var description, category, stages, scheduled sql.NullString
	var deadline sql.NullTime

	err := row.Scan(&task.ID, &task.UserID, &task.Title, &description, &task.Priority, &deadline,
		&task.EstimatedDuration, &category, &task.Complexity, &task.RequiredEnergy, &task.RequiredFocus,
		&task.Status, &stages, &scheduled, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return nil, err
	}
	task.Description = description.String
	task.Category = models.Category(category.String)
	if deadline.Valid {
		task.Deadline = deadline.Time
	}
	if stages.Valid && stages.String != "" {
		if err := json.Unmarshal([]byte(stages.String), &task.Stages); err != nil {
			return nil, fmt.Errorf("decode stages: %w", err)
		}
	}
	if scheduled.Valid && scheduled.String != "" {
		if err := json.Unmarshal([]byte(scheduled.String), &task.ScheduledDates); err != nil {
			return nil, fmt.Errorf("decode scheduled dates: %w", err)
		}
	}
	return &task, nil
}

func encodeTaskJSON(t *models.Task) (stages, scheduled sql.NullString, err error) {
	if len(t.Stages) > 0 {
		b, err := json.Marshal(t.Stages)
		if err != nil {
			return stages, scheduled, fmt.Errorf("encode stages: %w", err)
		}
		stages = sql.NullString{String: string(b), Valid: true}
	}
	if len(t.ScheduledDates) > 0 {
		b, err := json.Marshal(t.ScheduledDates)
		if err != nil {
			return stages, scheduled, fmt.Errorf("encode scheduled dates: %w", err)
		}
		scheduled = sql.NullString{String: string(b), Valid: true}
	}
	return stages, scheduled, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return ErrTaskNotFound
	}
	return nil
}
