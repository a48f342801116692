package proxy

// State represents the proxy process lifecycle state
type State int

const (
	StateNotStarted State = iota
	StateStarting
	StateReady
	StateStopping
	StateStopped
	StateCrashed
	StateFailed // restart budget exhausted, terminal
)

// String returns a human-readable state name
func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateCrashed:
		return "crashed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
