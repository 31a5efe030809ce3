// Package connectors defines the outbound notification channel for Potok.
package connectors

import (
	"context"
	"time"
)

// EventType names an outbound notification.
type EventType string

const (
	EventTaskScheduled         EventType = "task.scheduled"
	EventTaskRescheduled       EventType = "task.rescheduled"
	EventMITSelected           EventType = "mit.selected"
	EventWorkloadWarning       EventType = "workload.warning"
	EventRestModeActivated     EventType = "rest_mode.activated"
	EventDeadlineWarning       EventType = "deadline.warning"
	EventDistributionCompleted EventType = "distribution.completed"
)

// Notification is the payload delivered to subscribers.
type Notification struct {
	EventType     EventType `json:"eventType"`
	UserID        string    `json:"userId"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlationId"`
	Data          any       `json:"data"`
}

// Notifier delivers notifications on a best-effort basis.
type Notifier interface {
	// Name returns the notifier identifier.
	Name() string

	// Notify hands n over for delivery. Implementations never fail the
	// caller; delivery problems are logged.
	Notify(ctx context.Context, n Notification)
}

// Nop is a Notifier that drops everything.
type Nop struct{}

// Name implements Notifier.
func (Nop) Name() string { return "nop" }

// Notify implements Notifier.
func (Nop) Notify(context.Context, Notification) {}
