// Package ownership validates that data returned by collaborators belongs to
// the user it was requested for.
package ownership

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/fentz26/potok/internal/models"
)

// ErrViolation is returned when data of another user was about to be served.
var ErrViolation = errors.New("ownership violation")

// Filter returns the tasks owned by userID. Every foreign task is logged as
// a security anomaly with the given source.
func Filter(logger *slog.Logger, userID, source string, tasks []models.Task) []models.Task {
	out := make([]models.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.UserID == userID {
			out = append(out, t)
			continue
		}
		Report(logger, userID, t.UserID, t.ID, source)
	}
	return out
}

// Check returns ErrViolation when owner differs from userID.
func Check(logger *slog.Logger, userID, owner, taskID, source string) error {
	if owner == userID {
		return nil
	}
	Report(logger, userID, owner, taskID, source)
	return fmt.Errorf("task %s in %s: %w", taskID, source, ErrViolation)
}

// Report logs a security anomaly.
func Report(logger *slog.Logger, userID, owner, taskID, source string) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("security anomaly",
		slog.String("anomaly", "ownership_violation"),
		slog.String("user_id", userID),
		slog.String("owner_id", owner),
		slog.String("task_id", taskID),
		slog.String("source", source))
}
