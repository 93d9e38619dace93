package session

import (
	"errors"
	"fmt"
)

// ErrAlreadyStarted is returned when Run is called on a Driver that has already run.
var ErrAlreadyStarted = errors.New("session already started")

// TransportError reports a failed link operation that ended the session.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
