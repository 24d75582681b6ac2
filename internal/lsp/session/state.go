package session

// State is the lifecycle state of a Session.
type State int

const (
	Uninitialized State = iota
	Initializing
	Ready
	ShuttingDown
	Closed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	case ShuttingDown:
		return "shutting down"
	case Closed:
		return "closed"
	}
	return "unknown"
}
