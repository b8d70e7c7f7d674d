package wssession

// Session states.
//
// A session starts in AwaitingHandshake, moves to Open once the upgrade request has been accepted,
// to Closing when a close handshake begins and finally to Closed which is terminal.
type State int32

const (
	// Waiting for a complete upgrade request
	AwaitingHandshake State = iota
	// Upgrade completed, frames are exchanged
	Open
	// Close handshake in progress
	Closing
	// Terminal state
	Closed
)

func (s State) String() string {
	switch s {
	case AwaitingHandshake:
		return "awaiting-handshake"
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}
