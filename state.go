package grove

// State is the position of an [Orchestrator] in its startup sequence. States
// only ever move forward.
type State int32

const (
	// NotStarted is the initial state. Providers may only be registered
	// while the orchestrator is in this state.
	NotStarted State = iota

	// Initializing means [Orchestrator.Start] has been called and the init
	// barrier is open.
	Initializing

	// Started means every Init returned successfully and the start phase has
	// been launched. It is terminal.
	Started

	// Failed means the init barrier aborted because a provider failed or the
	// init timeout expired. It is terminal.
	Failed
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Initializing:
		return "initializing"
	case Started:
		return "started"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen from s.
func (s State) Terminal() bool {
	return s == Started || s == Failed
}
