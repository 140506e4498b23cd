package session

// State represents the lifecycle state of a session.
type State int32

const (
	// Created: goal and trace id assigned, context empty.
	Created State = iota
	// Deciding: waiting for the oracle.
	Deciding
	// Executing: the chosen action is in flight through the gateway.
	Executing
	// Updating: the result is being merged into context.
	Updating
	// Completed: the oracle signalled the goal is satisfied.
	Completed
	// Failed: too many consecutive failures.
	Failed
	// TimedOut: deadline, step budget or stop.
	TimedOut
)

func (s State) String() string {
	switch s {
	case Created:
		return "Created"
	case Deciding:
		return "Deciding"
	case Executing:
		return "Executing"
	case Updating:
		return "Updating"
	case Completed:
		return "Completed"
	case Failed:
		return "Failed"
	case TimedOut:
		return "TimedOut"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Completed || s == Failed || s == TimedOut
}

// MarshalText renders the state name in reports.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Reasons a session ended.
const (
	ReasonGoalSatisfied       = "goal_satisfied"
	ReasonConsecutiveFailures = "consecutive_failures"
	ReasonDeadline            = "deadline"
	ReasonStepBudget          = "step_budget"
	ReasonStopped             = "stopped"
)

// next lists the legal transitions of the state machine.
var next = map[State][]State{
	Created:   {Deciding, TimedOut},
	Deciding:  {Deciding, Executing, Completed, Failed, TimedOut},
	Executing: {Updating},
	Updating:  {Deciding, Failed, TimedOut},
}

func canTransition(from, to State) bool {
	for _, s := range next[from] {
		if s == to {
			return true
		}
	}
	return false
}
