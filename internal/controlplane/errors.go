package controlplane

import (
	"errors"

	"github.com/fentz26/potok/internal/ownership"
)

// Sentinel errors for control plane operations.
var (
	ErrTaskNotFound  = errors.New("task not found")
	ErrInvalidTask   = errors.New("invalid task")
	ErrInvalidStatus = errors.New("invalid status")
	ErrUserRequired  = errors.New("user id required")
	ErrForbidden     = ownership.ErrViolation
)
