package ipc

import "fmt"

// ConnID identifies one accepted worker connection on a Server
type ConnID uint64

// EventKind classifies what happened on the channel
type EventKind int

const (
	EventInitialised EventKind = iota + 1
	EventFinished
	EventLog
	EventDisconnected
)

func (k EventKind) String() string {
	switch k {
	case EventInitialised:
		return "initialised"
	case EventFinished:
		return "finished"
	case EventLog:
		return "log"
	case EventDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is one item of the Server's incoming stream
type Event struct {
	Kind    EventKind
	Conn    ConnID
	Message Message
	// Err is the read error that ended the connection, if any
	Err error
}

// eventKindFor maps an incoming message onto an event kind. Messages that
// only travel orchestrator -> worker are not valid here.
func eventKindFor(t MessageType) (EventKind, bool) {
	switch t {
	case TypeInitialised:
		return EventInitialised, true
	case TypeFinished:
		return EventFinished, true
	case TypeLog:
		return EventLog, true
	default:
		return 0, false
	}
}
