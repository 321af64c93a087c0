package backend

import (
	"errors"
	"fmt"
)

// ErrUnreachable covers every failure where the backend never gave a usable
// answer: transport errors, timeouts, 5xx responses and an open breaker.
var ErrUnreachable = errors.New("backend unreachable")

// StatusError is a non-2xx response. 5xx responses also match ErrUnreachable.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend returned status %d", e.Code)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.Code, e.Body)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrUnreachable && e.Code >= 500
}
