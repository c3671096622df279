package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
)

// RemoteOperationError is the single failure shape of every gateway call.
// Message is the server-provided message when one was returned, otherwise the
// fallback of the operation.
type RemoteOperationError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *RemoteOperationError) Error() string {
	return e.Message
}

func (e *RemoteOperationError) Unwrap() error {
	return e.Err
}

func statusError(status int) error {
	switch status {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	}
	return fmt.Errorf("unexpected status %d", status)
}
