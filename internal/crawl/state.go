package crawl

import "github.com/maltedev/mercadona-scraper/internal/catalog"

type Phase int

const (
	PhasePending Phase = iota
	PhaseAttempting
	PhaseSucceeded
	PhaseExhausted
)

func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseAttempting:
		return "attempting"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Terminal reports whether the leaf is finished for this run.
func (p Phase) Terminal() bool {
	return p == PhaseSucceeded || p == PhaseExhausted
}

// Action is what the orchestrator does after a transition.
type Action int

const (
	ActionNone Action = iota
	// ActionCommit keeps the rows, checkpoints and waits the normal wait.
	ActionCommit
	// ActionRetry waits the error wait and attempts the leaf again.
	ActionRetry
	// ActionGiveUp records the leaf as missing and waits the error wait.
	ActionGiveUp
)

func (a Action) String() string {
	switch a {
	case ActionCommit:
		return "commit"
	case ActionRetry:
		return "retry"
	case ActionGiveUp:
		return "give_up"
	default:
		return "none"
	}
}

// LeafState tracks one leaf through a run.
type LeafState struct {
	Phase        Phase
	AttemptsLeft int
}

func NewLeafState(attempts int) LeafState {
	return LeafState{Phase: PhasePending, AttemptsLeft: attempts}
}

// Transition applies the outcome of one attempt. Terminal states absorb every
// outcome with ActionNone.
func Transition(s LeafState, outcome catalog.Outcome) (LeafState, Action) {
	if s.Phase.Terminal() {
		return s, ActionNone
	}

	if outcome == catalog.OutcomeSuccess {
		return LeafState{Phase: PhaseSucceeded, AttemptsLeft: s.AttemptsLeft - 1}, ActionCommit
	}

	left := s.AttemptsLeft - 1
	if left > 0 {
		return LeafState{Phase: PhaseAttempting, AttemptsLeft: left}, ActionRetry
	}
	return LeafState{Phase: PhaseExhausted, AttemptsLeft: 0}, ActionGiveUp
}
