package tasks

import "fmt"

// State is the lifecycle state of a Manager.
type State int32

const (
	StateNew State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// IsTerminal reports whether no task will ever run again.
func (s State) IsTerminal() bool {
	return s == StateStopping || s == StateStopped
}

func isAllowedTransition(from, to State) bool {
	switch from {
	case StateNew:
		return to == StateRunning || to == StateStopped
	case StateRunning:
		return to == StateRunning || to == StateStopping || to == StateStopped
	case StateStopping:
		return to == StateStopped
	default:
		return false
	}
}

// transition moves the manager to state to. Callers hold m.mu.
func (m *Manager) transition(to State) error {
	from := m.state
	if !isAllowedTransition(from, to) {
		return fmt.Errorf("disallowed task manager transition: %s -> %s", from, to)
	}
	m.state = to
	return nil
}
