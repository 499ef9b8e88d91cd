package assignment

import (
	"errors"
	"fmt"
)

var (
	// ErrConflict is matched by ConflictError.
	ErrConflict = errors.New("assignment: conflict")

	// ErrNotRetryable is returned by Retry when the alert is not in the failed state.
	ErrNotRetryable = errors.New("assignment: only failed assignments can be retried")

	// ErrRejected is matched by errors from an Assigner when the backend
	// refused the request, as opposed to the request never arriving.
	ErrRejected = errors.New("assignment: rejected by backend")
)

// FallbackReason is recorded on Failed when the backend gave no message.
const FallbackReason = "intervention could not be created"

// ConflictError is returned when a request is made for an alert that
// already has one in flight or already holds an intervention.
type ConflictError struct {
	AlertID string
	Current State
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("assignment: alert %s is %s", e.AlertID, e.Current.Kind)
}

// Is reports ErrConflict.
func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// reasoner is implemented by Assigner errors that carry a backend message.
type reasoner interface {
	Reason() string
}

func failureReason(err error) string {
	var r reasoner
	if errors.As(err, &r) && r.Reason() != "" {
		return r.Reason()
	}
	return FallbackReason
}

// ErrInvalidRequest is returned when the alert or team id is empty.
var ErrInvalidRequest = errors.New("assignment: alert id and team id are required")
