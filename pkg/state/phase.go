package state

// Phase is the lifecycle of one remote-backed operation.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhasePending   Phase = "pending"
	PhaseSucceeded Phase = "succeeded"
	PhaseFailed    Phase = "failed"
)

// Ops tracks the phase of every named operation a store exposes.
type Ops map[string]Phase

// Phase returns the recorded phase for op, idle when it never ran.
func (o Ops) Phase(op string) Phase {
	if p, ok := o[op]; ok {
		return p
	}
	return PhaseIdle
}

// Pending reports whether any operation is in flight.
func (o Ops) Pending() bool {
	for _, p := range o {
		if p == PhasePending {
			return true
		}
	}
	return false
}

// Clone copies the map so snapshots stay independent.
func (o Ops) Clone() Ops {
	out := make(Ops, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}
