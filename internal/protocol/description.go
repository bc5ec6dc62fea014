package protocol

import (
	"errors"
	"fmt"
)

// Kind identifies the role of a session description in the handshake.
type Kind string

const (
	KindOffer  Kind = "offer"
	KindAnswer Kind = "answer"
)

var (
	errInvalidKind = errors.New("invalid session description type")
	errMissingSDP  = errors.New("missing session description sdp")
)

// SessionDescription is the negotiation payload exchanged verbatim through
// the relay. Its JSON form is {"sdp": ..., "type": ...}.
type SessionDescription struct {
	Body string `json:"sdp"`
	Kind Kind   `json:"type"`
}

// Validate checks that the description has a known kind and a non-empty body.
func (d SessionDescription) Validate() error {
	switch d.Kind {
	case KindOffer, KindAnswer:
	default:
		return fmt.Errorf("%w: %q", errInvalidKind, d.Kind)
	}
	if d.Body == "" {
		return errMissingSDP
	}
	return nil
}

// Expect validates d and additionally requires it to be of kind k.
func (d SessionDescription) Expect(k Kind) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if d.Kind != k {
		return fmt.Errorf("%w: want %q, got %q", errInvalidKind, k, d.Kind)
	}
	return nil
}
