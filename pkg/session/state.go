package session

// State is the lifecycle state of a Session.
type State int32

const (
	Disconnected State = iota
	Connecting
	Ready
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Ready:
		return "ready"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// canMove reports whether a session may go from s to next.
// Closing only leads to Closed, and Closed is final.
func (s State) canMove(next State) bool {
	switch s {
	case Closed:
		return false
	case Closing:
		return next == Closed
	}
	return true
}
