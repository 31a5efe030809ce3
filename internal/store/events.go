package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/fentz26/potok/internal/models"
	"github.com/google/uuid"
)

// InsertEvent appends an event. ID and CreatedAt are filled in when empty.
func (s *Store) InsertEvent(ctx context.Context, ev *models.Event) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, user_id, event_type, task_id, payload, correlation_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.UserID, ev.Type, ev.TaskID, ev.Payload, ev.CorrelationID, ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// ListEvents returns the newest events of userID, optionally restricted to
// types. A limit <= 0 returns everything.
func (s *Store) ListEvents(ctx context.Context, userID string, types []models.EventType, limit int) ([]models.Event, error) {
	query := `SELECT id, user_id, event_type, task_id, payload, correlation_id, created_at
		FROM events WHERE user_id = ?`
	args := []any{userID}

	if len(types) > 0 {
		marks := make([]string, len(types))
		for i, t := range types {
			marks[i] = "?"
			args = append(args, t)
		}
		query += ` AND event_type IN (` + strings.Join(marks, ", ") + `)`
	}
	query += ` ORDER BY created_at DESC, rowid DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var ev models.Event
		var taskID, payload, correlationID sql.NullString
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.Type, &taskID, &payload, &correlationID, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.TaskID = taskID.String
		ev.Payload = payload.String
		ev.CorrelationID = correlationID.String
		events = append(events, ev)
	}
	return events, rows.Err()
}
