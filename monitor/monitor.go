// Package monitor implements the specification engine (§4.8): safety
// monitors (deterministic state machines separate from the program
// under test), the hot/warm/cold state classification liveness checking
// depends on, and the assert funnel every safety assertion is routed
// through.
package monitor

// Kind classifies a monitor state for liveness purposes (§3, glossary).
type Kind int

const (
	// Cold resets the monitor's liveness temperature to zero.
	Cold Kind = iota
	// Warm leaves the temperature unchanged.
	Warm
	// Hot increments the temperature on every check.
	Hot
)

func (k Kind) String() string {
	switch k {
	case Cold:
		return "cold"
	case Warm:
		return "warm"
	case Hot:
		return "hot"
	default:
		return "unknown"
	}
}

// StateInfo describes a monitor's current state for the liveness checker
// (§4.5).
type StateInfo struct {
	Name string
	Kind Kind
}

// Monitor is the contract the specification engine consumes (§4.8). A
// Monitor is a deterministic state machine: CurrentState reports its
// classification, HandleEvent delivers one event synchronously inside
// the caller's scheduling step.
//
// TypeName is the dedup key used by Registry.Register: at most one
// Monitor instance per TypeName may be registered in a given iteration
// (§4.8 idempotence); duplicate registrations are no-ops.
type Monitor interface {
	TypeName() string
	CurrentState() StateInfo
	HandleEvent(event string, payload any)
}

// FSM is a small reusable Monitor implementation: a named set of states,
// each classified Cold/Warm/Hot, and a table of event-triggered
// transitions. It covers the common case (§8 Scenario C) without every
// caller having to hand-write a Monitor; callers with richer behavior
// (guards, entry/exit actions) implement Monitor directly instead.
type FSM struct {
	typeName    string
	states      map[string]Kind
	transitions map[string]map[string]string
	current     string
}

// NewFSM returns an FSM named typeName, starting in state start.
func NewFSM(typeName, start string) *FSM {
	return &FSM{
		typeName:    typeName,
		states:      map[string]Kind{},
		transitions: map[string]map[string]string{},
		current:     start,
	}
}

// AddState declares a state and its temperature classification. The
// start state passed to NewFSM must also be declared here before the
// FSM is used.
func (f *FSM) AddState(name string, kind Kind) *FSM {
	f.states[name] = kind
	return f
}

// AddTransition declares that, while in state from, event moves the FSM
// to state to.
func (f *FSM) AddTransition(from, event, to string) *FSM {
	m, ok := f.transitions[from]
	if !ok {
		m = map[string]string{}
		f.transitions[from] = m
	}
	m[event] = to
	return f
}

func (f *FSM) TypeName() string { return f.typeName }

func (f *FSM) CurrentState() StateInfo {
	return StateInfo{Name: f.current, Kind: f.states[f.current]}
}

// HandleEvent moves to the transition target for (current state, event),
// if one is declared; otherwise the event has no effect. payload is
// unused by FSM but part of the Monitor contract for callers that need
// it.
func (f *FSM) HandleEvent(event string, _ any) {
	if to, ok := f.transitions[f.current][event]; ok {
		f.current = to
	}
}
