package upstream

import (
	"errors"
	"fmt"

	"github.com/linnemanlabs/dispatch/internal/assignment"
)

// TransportError means the backend could not be reached or answered with
// something other than a usable response.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("upstream %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RejectedError means the backend received the request and refused it.
type RejectedError struct {
	StatusCode int
	Message    string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("upstream rejected request: status %d", e.StatusCode)
	}
	return fmt.Sprintf("upstream rejected request: status %d: %s", e.StatusCode, e.Message)
}

// Reason is the backend's message, used as the failure reason.
func (e *RejectedError) Reason() string { return e.Message }

// Is matches assignment.ErrRejected.
func (e *RejectedError) Is(target error) bool { return target == assignment.ErrRejected }

var errEmptyBody = errors.New("empty response body")
