package transport

// State is the lifecycle state of a Session.
type State int

const (
	StateNew State = iota
	StateNegotiating
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateNegotiating:
		return "NEGOTIATING"
	case StateConnected:
		return "CONNECTED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}
