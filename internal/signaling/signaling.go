// Package signaling carries session descriptions between producer and
// consumer through the relay: a single offer out, a single answer back.
// The relay is reached either by an HTTP POST (http://, https://) or over a
// short-lived WebSocket (ws://, wss://).
package signaling

import (
	"errors"
	"fmt"
)

// maxMessageBytes bounds a single signaling message in either direction.
const maxMessageBytes = 1 << 20

// ErrMalformedResponse is wrapped by a SignalingError when the relay
// answered successfully but the body is not a well-formed answer.
var ErrMalformedResponse = errors.New("malformed relay response")

// SignalingError reports a failed offer/answer exchange. Status is the HTTP
// status returned by the relay, or 0 when no response was received.
type SignalingError struct {
	Status int
	Err    error
}

func (e *SignalingError) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("signaling failed with status %d: %v", e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("signaling failed with status %d", e.Status)
	default:
		return fmt.Sprintf("signaling failed: %v", e.Err)
	}
}

func (e *SignalingError) Unwrap() error { return e.Err }

func malformed(status int, err error) *SignalingError {
	return &SignalingError{Status: status, Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
}
