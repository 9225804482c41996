package analysis

// State is the lifecycle position of a Job.
type State string

const (
	StateIdle      State = "idle"
	StateFetching  State = "fetching"
	StateDecoding  State = "decoding"
	StateResolving State = "resolving"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
	StateFailed    State = "failed"
)

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateCancelled, StateFailed:
		return true
	}
	return false
}

var transitions = map[State][]State{
	StateIdle:      {StateFetching, StateCancelled},
	StateFetching:  {StateDecoding, StateCompleted, StateFailed, StateCancelled},
	StateDecoding:  {StateResolving, StateCancelled},
	StateResolving: {StateCompleted, StateCancelled},
}

func canTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
