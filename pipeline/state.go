package pipeline

// State is the lifecycle stage of the loop
type State int

const (
	Idle State = iota
	Connecting
	Running
	Reconnecting
	ShuttingDown
	Terminated
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Connecting:
		return "CONNECTING"
	case Running:
		return "RUNNING"
	case Reconnecting:
		return "RECONNECTING"
	case ShuttingDown:
		return "SHUTTING_DOWN"
	case Terminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}
