package runner

// State is the turn loop lifecycle.
type State int

const (
	StateIdle State = iota
	StateSending
	StateDone
	StateStopped
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateDone:
		return "done"
	case StateStopped:
		return "stopped"
	case StateError:
		return "error"
	}
	return "unknown"
}

// Terminal reports whether s ends a turn.
func (s State) Terminal() bool {
	return s == StateDone || s == StateStopped || s == StateError
}
