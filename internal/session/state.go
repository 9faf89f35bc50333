package session

import "fmt"

// Phase is a coarse step of a review session.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseBuilding
	PhaseReady
	PhaseQuerying
	PhaseDone
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhaseBuilding:
		return "Building"
	case PhaseReady:
		return "Ready"
	case PhaseQuerying:
		return "Querying"
	case PhaseDone:
		return "Done"
	case PhaseFailed:
		return "Failed"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// State is the session's position in
//
//	Idle -> Building -> Ready -> Querying(1) -> Querying(2) -> Done
//
// with Failed(stage) reachable from Building and Querying.
type State struct {
	Phase Phase
	// Turn is the 1-based question number while Querying.
	Turn int
	// Stage names the state that failed while Failed.
	Stage string
}

func (s State) String() string {
	switch s.Phase {
	case PhaseQuerying:
		return fmt.Sprintf("Querying(%d)", s.Turn)
	case PhaseFailed:
		return fmt.Sprintf("Failed(%s)", s.Stage)
	default:
		return s.Phase.String()
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s.Phase == PhaseDone || s.Phase == PhaseFailed
}

// canTransition reports whether from -> to is a legal move.
func canTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to.Phase == PhaseFailed {
		return from.Phase == PhaseBuilding || from.Phase == PhaseReady || from.Phase == PhaseQuerying
	}
	switch from.Phase {
	case PhaseIdle:
		return to.Phase == PhaseBuilding
	case PhaseBuilding:
		return to.Phase == PhaseReady
	case PhaseReady:
		return to.Phase == PhaseQuerying && to.Turn == 1
	case PhaseQuerying:
		return (to.Phase == PhaseQuerying && to.Turn == from.Turn+1) || to.Phase == PhaseDone
	default:
		return false
	}
}
