// Package audit records distribution decisions in the per-user event log.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/fentz26/potok/internal/models"
)

// HistoryLimit is the number of events History returns.
const HistoryLimit = 50

// HistoryTypes are the event types shown in a user's history.
var HistoryTypes = []models.EventType{
	models.EventTaskAssigned,
	models.EventTaskCompleted,
	models.EventTaskRescheduled,
	models.EventMITCalculated,
}

// Sink persists events.
type Sink interface {
	InsertEvent(ctx context.Context, ev *models.Event) error
	ListEvents(ctx context.Context, userID string, types []models.EventType, limit int) ([]models.Event, error)
}

// Recorder writes events without ever failing the caller.
type Recorder struct {
	sink   Sink
	logger *slog.Logger
}

// NewRecorder creates a Recorder over sink. A nil logger uses slog.Default().
func NewRecorder(sink Sink, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{sink: sink, logger: logger}
}

// Record appends an event of type typ. payload is JSON-encoded when non-nil.
// Failures are logged and dropped.
func (r *Recorder) Record(ctx context.Context, userID string, typ models.EventType, taskID, correlationID string, payload any) {
	ev := &models.Event{
		UserID:        userID,
		Type:          typ,
		TaskID:        taskID,
		CorrelationID: correlationID,
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			r.logger.Warn("event payload not encodable",
				slog.String("event_type", string(typ)), slog.String("error", err.Error()))
		} else {
			ev.Payload = string(data)
		}
	}

	if err := r.sink.InsertEvent(ctx, ev); err != nil {
		r.logger.Error("record event failed",
			slog.String("user_id", userID),
			slog.String("event_type", string(typ)),
			slog.String("task_id", taskID),
			slog.String("error", err.Error()))
	}
}

// History returns the newest events of userID, newest first.
func (r *Recorder) History(ctx context.Context, userID string) ([]models.Event, error) {
	events, err := r.sink.ListEvents(ctx, userID, HistoryTypes, HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	if events == nil {
		events = []models.Event{}
	}
	return events, nil
}
