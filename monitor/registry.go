package monitor

import (
	"fmt"
	"sync"
)

// AssertionFailure is invoked by Registry.Assert when a safety assertion
// is violated. systest wires this to scheduler.Scheduler.NotifyAssertionFailure
// so every safety failure, monitor or not, funnels through the same bug
// path (§7 kind 3).
type AssertionFailure func(message string)

// Registry is the global table of registered monitors (§4.8). At most
// one Monitor instance may be registered per TypeName; Register is
// idempotent, matching the source's "registering the same monitor type
// twice is a no-op, not an error."
//
// Registry also implements strategy.LivenessChecker: CheckTemperatures
// polls every registered monitor's current state and maintains a
// per-monitor temperature counter, the basis for liveness-bug detection
// (§4.5).
type Registry struct {
	mu sync.Mutex

	monitors    map[string]Monitor
	order       []string
	temperature map[string]int

	// OnAssert is invoked every time Assert observes a violated
	// predicate. Optional; systest wires it to the scheduler's assert
	// funnel.
	OnAssert AssertionFailure
}

// NewRegistry returns an empty monitor Registry.
func NewRegistry() *Registry {
	return &Registry{
		monitors:    map[string]Monitor{},
		temperature: map[string]int{},
	}
}

// Register adds m to the registry, keyed by m.TypeName(). Returns false
// without effect if a monitor with that TypeName is already registered
// (§4.8 idempotence).
func (r *Registry) Register(m Monitor) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := m.TypeName()
	if _, exists := r.monitors[name]; exists {
		return false
	}
	r.monitors[name] = m
	r.order = append(r.order, name)
	r.temperature[name] = 0
	return true
}

// Dispatch delivers event (with payload) to the registered monitor named
// typeName, if one exists. Unregistered type names are silently ignored,
// matching the source's "raising a monitor event for an unregistered
// monitor type has no effect."
func (r *Registry) Dispatch(typeName, event string, payload any) {
	r.mu.Lock()
	m, ok := r.monitors[typeName]
	r.mu.Unlock()
	if ok {
		m.HandleEvent(event, payload)
	}
}

// Get returns the registered monitor named typeName, if any.
func (r *Registry) Get(typeName string) (Monitor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.monitors[typeName]
	return m, ok
}

// Assert funnels a safety assertion (§7 kind 3) through the registry: if
// ok is false, OnAssert is invoked with message. Unlike monitor liveness
// temperature, Assert has no per-monitor affiliation; it exists so
// monitor authors and plain user code share one call shape.
func (r *Registry) Assert(ok bool, message string) {
	if ok {
		return
	}
	if r.OnAssert != nil {
		r.OnAssert(message)
	}
}

// CheckTemperatures implements strategy.LivenessChecker (§4.5). For each
// registered monitor, in registration order: increment its temperature
// while it reports Hot, reset it to zero on Cold, and leave it unchanged
// on Warm. The first monitor whose temperature exceeds threshold (a
// threshold of 0 disables the check) yields a descriptive message and
// true; otherwise ("", false).
func (r *Registry) CheckTemperatures(threshold int) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range r.order {
		m := r.monitors[name]
		state := m.CurrentState()
		switch state.Kind {
		case Hot:
			r.temperature[name]++
		case Cold:
			r.temperature[name] = 0
		case Warm:
			// unchanged
		}
		if threshold > 0 && r.temperature[name] > threshold {
			return fmt.Sprintf("monitor %q stuck in hot state %q for %d steps (threshold %d)",
				name, state.Name, r.temperature[name], threshold), true
		}
	}
	return "", false
}

// Temperature returns the current liveness-temperature counter for the
// monitor named typeName, or 0 if it is not registered.
func (r *Registry) Temperature(typeName string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.temperature[typeName]
}

// Reset clears every registered monitor's temperature counter, for reuse
// across iterations. Registered monitor instances themselves are left in
// place; callers that need fresh monitor state per iteration re-register
// new instances instead.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name := range r.temperature {
		r.temperature[name] = 0
	}
}
