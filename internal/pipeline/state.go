package pipeline

// State is the §4.9 session lifecycle: Idle -> Connecting -> Streaming ->
// Reconnecting* -> Stopped | Error(msg).
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
	StateReconnecting
	StateStopped
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateReconnecting:
		return "reconnecting"
	case StateStopped:
		return "stopped"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}
