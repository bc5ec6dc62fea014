package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrNoChannel is returned by InitiateOffer when OpenChannel was not called.
	ErrNoChannel = errors.New("no data channel opened")

	// ErrClosed reports that the session has reached CLOSED.
	ErrClosed = errors.New("session closed")
)

// InvalidStateError reports a handshake operation invoked outside its valid
// state. It indicates a caller-ordering bug.
type InvalidStateError struct {
	Op    string
	State State
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s: invalid in state %s", e.Op, e.State)
}

// TransportError wraps a failure reported by the transport engine.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
