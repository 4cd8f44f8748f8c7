package domain

// EventType enumerates scene notifications.
type EventType int

const (
	EventNodeAboutToBeAdded EventType = iota + 1
	EventNodeAdded
	EventNodeAboutToBeRemoved
	EventNodeRemoved
	// EventNodeModified carries the node ID and its new modification clock.
	EventNodeModified
	// EventStateStarted, EventStateEnded and EventStateProgress carry the
	// lifecycle state; batch transitions use StateBatchProcess.
	EventStateStarted
	EventStateEnded
	EventStateProgress
)

func (t EventType) String() string {
	switch t {
	case EventNodeAboutToBeAdded:
		return "node_about_to_be_added"
	case EventNodeAdded:
		return "node_added"
	case EventNodeAboutToBeRemoved:
		return "node_about_to_be_removed"
	case EventNodeRemoved:
		return "node_removed"
	case EventNodeModified:
		return "node_modified"
	case EventStateStarted:
		return "state_started"
	case EventStateEnded:
		return "state_ended"
	case EventStateProgress:
		return "state_progress"
	default:
		return "unknown"
	}
}

// Event is delivered synchronously to scene listeners.
type Event struct {
	Type         EventType
	NodeID       string
	Node         Node
	State        StateFlag
	Progress     int
	ModifiedTime uint64
}

// Listener receives scene events.
type Listener func(Event)
