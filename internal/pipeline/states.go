package pipeline

import "fmt"

// State is a step of the moderation run. Non-terminal states only move
// forward; each rejection state is reachable from exactly one state.
type State int

const (
	StateReceived State = iota
	StateDedupedAdmitted
	StateRegistrationChecked
	StateSegmented
	StateClassified
	StateAggregated
	StatePersisted
	StateNotifyDecided
	StateDone
	StateRejectedDuplicate
	StateRejectedExempt
	StateRejectedUnregistered
)

var stateNames = map[State]string{
	StateReceived:             "received",
	StateDedupedAdmitted:      "deduped-admitted",
	StateRegistrationChecked:  "registration-checked",
	StateSegmented:            "segmented",
	StateClassified:           "classified",
	StateAggregated:           "aggregated",
	StatePersisted:            "persisted",
	StateNotifyDecided:        "notify-decided",
	StateDone:                 "done",
	StateRejectedDuplicate:    "rejected-duplicate",
	StateRejectedExempt:       "rejected-exempt",
	StateRejectedUnregistered: "rejected-unregistered",
}

var rejectedFrom = map[State]State{
	StateRejectedDuplicate:    StateReceived,
	StateRejectedExempt:       StateDedupedAdmitted,
	StateRejectedUnregistered: StateDedupedAdmitted,
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) Terminal() bool {
	if s == StateDone {
		return true
	}
	_, ok := rejectedFrom[s]
	return ok
}

// run tracks one message through the state machine.
type run struct {
	current State
	trail   []string
}

func newRun() *run {
	return &run{current: StateReceived, trail: []string{StateReceived.String()}}
}

// advance panics on any move the machine does not allow; callers never
// recover from it.
func (r *run) advance(next State) {
	if r.current.Terminal() {
		panic(fmt.Sprintf("pipeline: transition %s -> %s out of terminal state", r.current, next))
	}
	if from, ok := rejectedFrom[next]; ok {
		if r.current != from {
			panic(fmt.Sprintf("pipeline: %s is not reachable from %s", next, r.current))
		}
	} else if next <= r.current {
		panic(fmt.Sprintf("pipeline: backward transition %s -> %s", r.current, next))
	}

	r.current = next
	r.trail = append(r.trail, next.String())
}

func (r *run) states() []string {
	return append([]string(nil), r.trail...)
}
