package elevation

import (
	"fmt"

	"github.com/arthur-debert/elevlink/pkg/ipc"
	"github.com/arthur-debert/elevlink/pkg/metrics"
)

// State of a Session
type State int

const (
	StateIdle State = iota
	StateStarting
	StateActive
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateActive:
		return "active"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Request is an operation for the worker, tracked by its destination path.
// It is implemented by LinkRequest and UnlinkRequest only.
type Request interface {
	Path() string
	message() ipc.Message
	op() string
}

// LinkRequest asks the worker to create Destination pointing at Source
type LinkRequest struct {
	Source      string
	Destination string
}

func (r LinkRequest) Path() string         { return r.Destination }
func (r LinkRequest) message() ipc.Message { return ipc.LinkFile(r.Source, r.Destination) }
func (r LinkRequest) op() string           { return metrics.OpLink }

// UnlinkRequest asks the worker to remove the link at Destination
type UnlinkRequest struct {
	Destination string
}

func (r UnlinkRequest) Path() string         { return r.Destination }
func (r UnlinkRequest) message() ipc.Message { return ipc.RemoveLink(r.Destination) }
func (r UnlinkRequest) op() string           { return metrics.OpUnlink }
