package session

// State is the lifecycle state of a Session.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Ready
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "DISCONNECTED"
	case Connecting:
		return "CONNECTING"
	case Connected:
		return "CONNECTED"
	case Ready:
		return "READY"
	default:
		return "UNKNOWN"
	}
}

// SubStatus is the acknowledgment state of one channel.
type SubStatus int

const (
	SubPending SubStatus = iota
	SubAcknowledged
	SubFailed
)

func (s SubStatus) String() string {
	switch s {
	case SubPending:
		return "pending"
	case SubAcknowledged:
		return "acknowledged"
	case SubFailed:
		return "failed"
	default:
		return "unknown"
	}
}
