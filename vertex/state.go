package vertex

// State is the position of a unit in the token protocol.
type State int32

// States of the token protocol. Stopped is terminal.
const (
	Idle State = iota
	AwaitingToken
	TokenHeld
	Paused
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case AwaitingToken:
		return "AwaitingToken"
	case TokenHeld:
		return "TokenHeld"
	case Paused:
		return "Paused"
	case Stopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}
