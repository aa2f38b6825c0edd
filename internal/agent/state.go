package agent

// State is the phase of one conversation turn. The loop in Send moves
// through these states explicitly so every transition is visible in
// logs and testable in isolation.
type State int

const (
	// StateAwaitingModel means the next step is a model call.
	StateAwaitingModel State = iota
	// StateAwaitingTool means the model requested tools that have not
	// run yet.
	StateAwaitingTool
	// StateDone means the model produced a final text answer.
	StateDone
	// StateAborted means the turn ceiling was hit before the model
	// settled on an answer.
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateAwaitingModel:
		return "awaiting_model"
	case StateAwaitingTool:
		return "awaiting_tool"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// terminal reports whether the loop should stop.
func (s State) terminal() bool {
	return s == StateDone || s == StateAborted
}
