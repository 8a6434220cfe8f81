package rotation

import (
	"github.com/m-mizutani/goerr/v2"
)

// State is a step of one rotation attempt.
type State int

const (
	StateMonitoring State = iota
	StateThresholdExceeded
	StateExtracting
	StateArchiving
	StateIndexUpdating
	StateCompleted
	StateRolledBack
)

var stateNames = map[State]string{
	StateMonitoring:        "monitoring",
	StateThresholdExceeded: "threshold_exceeded",
	StateExtracting:        "extracting",
	StateArchiving:         "archiving",
	StateIndexUpdating:     "index_updating",
	StateCompleted:         "completed",
	StateRolledBack:        "rolled_back",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalText renders the state name in JSON and YAML output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateRolledBack
}

var transitions = map[State][]State{
	StateMonitoring:        {StateThresholdExceeded},
	StateThresholdExceeded: {StateExtracting},
	StateExtracting:        {StateArchiving, StateRolledBack},
	StateArchiving:         {StateIndexUpdating, StateRolledBack},
	StateIndexUpdating:     {StateCompleted, StateRolledBack},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// machine tracks the state of one attempt.
type machine struct {
	state State
}

func (m *machine) advance(to State) error {
	if !canTransition(m.state, to) {
		return goerr.New("illegal rotation state transition",
			goerr.V("from", m.state.String()), goerr.V("to", to.String()))
	}
	m.state = to
	return nil
}

// rollback moves an in-flight attempt to RolledBack. Attempts that failed
// before extraction started have nothing to undo and keep their state.
func (m *machine) rollback() bool {
	if !canTransition(m.state, StateRolledBack) {
		return false
	}
	m.state = StateRolledBack
	return true
}
