package resolver

// State is the phase of a resolution session.
type State int32

const (
	// Collecting gathers root requirements and starts their metadata fetches.
	Collecting State = iota
	// Solving runs the backtracking search.
	Solving
	// Resolved is terminal success; the graph and plan are frozen.
	Resolved
	// Conflict is terminal failure: no selection satisfies every requirement.
	Conflict
	// CycleDetected is terminal failure: the selection contains a dependency loop.
	CycleDetected
	// Failed is terminal failure for provider errors, cancellation and the
	// search budget.
	Failed
)

func (s State) String() string {
	switch s {
	case Collecting:
		return "collecting"
	case Solving:
		return "solving"
	case Resolved:
		return "resolved"
	case Conflict:
		return "conflict"
	case CycleDetected:
		return "cycle-detected"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool { return s >= Resolved }
