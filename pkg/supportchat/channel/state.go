package channel

// ConnectionState is the transport's view of its parent connection.
type ConnectionState int

const (
	StateInitialized ConnectionState = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateClosing
	StateClosed
	StateFailed
)

func (s ConnectionState) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Operation is something the manager may ask of a connection.
type Operation int

const (
	OpSubscribe Operation = iota
	OpUnsubscribe
	OpDisconnect
)

func (o Operation) String() string {
	switch o {
	case OpSubscribe:
		return "subscribe"
	case OpUnsubscribe:
		return "unsubscribe"
	case OpDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// legal lists the operations a connection accepts in each state. Unsubscribe
// and disconnect are only issued to a connection that is connected or
// connecting; on any other state they are skipped.
var legal = map[ConnectionState]map[Operation]bool{
	StateConnecting: {OpSubscribe: true, OpUnsubscribe: true, OpDisconnect: true},
	StateConnected:  {OpSubscribe: true, OpUnsubscribe: true, OpDisconnect: true},
}

// Allows reports whether op may be issued in state s. It is defined for every
// state and operation.
func Allows(s ConnectionState, op Operation) bool {
	return legal[s][op]
}
