package actorsys

import (
	"fmt"

	"github.com/corewright/systest/scheduler"
)

// HaltEventType is the reserved event type that causes an actor to run
// its OnHalt handler and close its queue (§4.7 "halt_event").
const HaltEventType = "$halt"

// State is one entry in an actor's state-machine stack (§4.7). Entry and
// Exit run when the state is pushed/popped or replaced by GotoState.
// Handlers maps event type to the user action that handles it while this
// state is active. Deferred/Ignored are the per-state capability sets
// §3 describes; Default, if true, makes this state supply a
// DefaultEventType event when nothing else is dequeuable.
type State struct {
	Name     string
	Entry    func(a *Actor)
	Exit     func(a *Actor)
	Handlers map[string]func(a *Actor, ev QueuedEvent)
	Deferred map[string]bool
	Ignored  map[string]bool
	Default  bool
}

// Actor is one schedulable actor (§3 glossary): it owns exactly one
// scheduler.Operation (its current handler turn), an EventQueue, and a
// state-machine stack. Actor implements scheduler.TaskHandle so other
// operations can wait on it via Send/halt completion.
type Actor struct {
	Name  string
	sched *scheduler.Scheduler
	op    *scheduler.Operation
	queue *EventQueue

	states map[string]*State
	stack  []string
	halted bool
	onHalt func(a *Actor)

	// Assert funnels a stack-empty-on-unhandled-event violation (§4.7)
	// through to the runtime's assertion path.
	Assert func(ok bool, message string)
	// OnEvent, if set, is called for every event as it is dispatched,
	// for logging (§6 "Logger surface").
	OnEvent func(verdict DequeueVerdict, ev QueuedEvent)
}

// NewActor returns an Actor named name, driven by sched, starting in
// state initial. Call AddState for every state (including initial)
// before Spawn.
func NewActor(sched *scheduler.Scheduler, name, initial string) *Actor {
	a := &Actor{
		Name:   name,
		sched:  sched,
		queue:  NewEventQueue(),
		states: map[string]*State{},
		stack:  []string{initial},
	}
	a.queue.Assert = func(ok bool, msg string) { a.assert(ok, msg) }
	return a
}

// AddState registers a state definition. Must be called before Spawn.
func (a *Actor) AddState(s *State) *Actor {
	a.states[s.Name] = s
	return a
}

// OnHalt sets the action run when the actor processes HaltEventType.
func (a *Actor) OnHalt(fn func(a *Actor)) *Actor {
	a.onHalt = fn
	return a
}

func (a *Actor) assert(ok bool, msg string) {
	if ok {
		return
	}
	if a.Assert != nil {
		a.Assert(ok, msg)
	}
}

// Spawn registers the actor's operation with the scheduler and starts
// its lifetime goroutine, which blocks until the operation is scheduled
// and then idles (BlockedOnResource) whenever its queue has nothing
// dequeuable.
func (a *Actor) Spawn() {
	a.op = scheduler.NewOperation(a.sched.NextOperationID(), fmt.Sprintf("actor(%s)", a.Name))
	a.op.ResourceReady = func() bool { return a.hasWork() }
	a.sched.Register(a.op)
	go a.run()
}

// hasWork reports whether the actor's handler loop has anything to do:
// a raised event or a non-empty FIFO (even one holding only deferred
// events). The queue's running flag is not consulted. It is polled by the scheduler's try-enable pass under the
// scheduler lock, so it must not itself try to acquire any lock the
// scheduler might be holding.
func (a *Actor) hasWork() bool {
	return a.queue.raised != nil || len(a.queue.fifo) > 0
}

// Operation returns the actor's operation, for wait-set construction by
// callers that block until this actor halts.
func (a *Actor) Operation() *scheduler.Operation { return a.op }

// QueueLen returns the number of FIFO-queued events currently buffered
// for this actor (excluding any raised event), for testable assertions
// on final queue depth (§4.6, §8 Scenario D).
func (a *Actor) QueueLen() int { return a.queue.Len() }

// IsCompleted implements scheduler.TaskHandle.
func (a *Actor) IsCompleted() bool { return a.op.Status().IsTerminal() }

// IsControlled implements scheduler.TaskHandle.
func (a *Actor) IsControlled() bool { return true }

func (a *Actor) run() {
	if err := a.sched.Start(a.op); err != nil {
		return
	}
	for {
		res := a.queue.Dequeue(a.isIgnored, a.isDeferred, a.hasDefault)
		if a.OnEvent != nil {
			a.OnEvent(res.Verdict, res.Event)
		}
		if res.Verdict == NotAvailable {
			a.op.BlockOnResource()
			if err := a.sched.ScheduleNext(a.op, false); err != nil {
				return
			}
			continue
		}

		a.handle(res.Event)

		if a.halted {
			a.op.OnCompleted()
			_ = a.sched.ScheduleNext(a.op, false)
			return
		}
		if err := a.sched.ScheduleNext(a.op, false); err != nil {
			return
		}
	}
}

func (a *Actor) currentStateName() string {
	if len(a.stack) == 0 {
		return ""
	}
	return a.stack[len(a.stack)-1]
}

func (a *Actor) currentState() *State {
	return a.states[a.currentStateName()]
}

func (a *Actor) isIgnored(eventType string) bool {
	st := a.currentState()
	return st != nil && st.Ignored[eventType]
}

func (a *Actor) isDeferred(eventType string) bool {
	st := a.currentState()
	return st != nil && st.Deferred[eventType]
}

func (a *Actor) hasDefault() (QueuedEvent, bool) {
	st := a.currentState()
	if st != nil && st.Default {
		return QueuedEvent{Type: DefaultEventType}, true
	}
	return QueuedEvent{}, false
}

// handle dispatches one dequeued event (§4.7): if the current state has
// a handler for it, run it; otherwise pop states until one does, firing
// an assertion if the stack would empty on a non-benign event.
func (a *Actor) handle(ev QueuedEvent) {
	if ev.Type == HaltEventType {
		a.doHalt()
		return
	}
	for {
		st := a.currentState()
		if st == nil {
			a.assert(false, fmt.Sprintf("actor %s: current state not registered", a.Name))
			return
		}
		if h, ok := st.Handlers[ev.Type]; ok {
			h(a, ev)
			return
		}
		if len(a.stack) <= 1 {
			if !isBenign(ev.Type) {
				a.assert(false, fmt.Sprintf(
					"actor %s: unhandled event %q in state %q with an empty state stack", a.Name, ev.Type, st.Name))
			}
			return
		}
		a.popStateLocked()
	}
}

func isBenign(eventType string) bool {
	return eventType == DefaultEventType || eventType == HaltEventType
}

func (a *Actor) doHalt() {
	a.halted = true
	if a.onHalt != nil {
		a.onHalt(a)
	}
	dropped := a.queue.Close()
	_ = dropped
}

// GotoState pops every entered state, running its Exit, then pushes
// target and runs its Entry (§4.7 goto_state).
func (a *Actor) GotoState(target string) {
	for len(a.stack) > 0 {
		a.popExitOnly()
	}
	a.pushEnter(target)
}

// PushState pushes target onto the stack, running its Entry (§4.7
// push_state).
func (a *Actor) PushState(target string) {
	a.pushEnter(target)
}

// PopState pops the current state, running its Exit, and re-enters the
// newly exposed state by running its Entry (§4.7 pop_state).
func (a *Actor) PopState() {
	a.popStateLocked()
}

func (a *Actor) popStateLocked() {
	if len(a.stack) == 0 {
		return
	}
	a.popExitOnly()
	if len(a.stack) > 0 {
		name := a.currentStateName()
		if st := a.states[name]; st != nil && st.Entry != nil {
			st.Entry(a)
		}
	}
}

func (a *Actor) popExitOnly() {
	name := a.currentStateName()
	if st := a.states[name]; st != nil && st.Exit != nil {
		st.Exit(a)
	}
	a.stack = a.stack[:len(a.stack)-1]
}

func (a *Actor) pushEnter(target string) {
	a.stack = append(a.stack, target)
	if st := a.states[target]; st != nil && st.Entry != nil {
		st.Entry(a)
	}
}

// Send implements §4.6's enqueue call site from the sender's side: it
// exposes the send_event scheduling point (§5 item 3), enqueues ev, and
// — because the actor's handler goroutine is already alive, merely
// idling in BlockedOnResource when it has nothing to do — relies on the
// scheduler's own try-enable pass to notice the now-nonempty queue and
// resume it, rather than spawning a fresh handler task per event.
func (a *Actor) Send(current *scheduler.Operation, ev QueuedEvent) (EnqueueVerdict, error) {
	if err := a.sched.ScheduleNext(current, false); err != nil {
		return Dropped, err
	}
	return a.queue.Enqueue(ev, a.isIgnored, a.isDeferred, a.hasDefault), nil
}

// SuppressNextReceiveSchedulingPoint arms the operation's
// NextReceiveSuppressed flag (§3 Operation attributes): the next call to
// Receive that must actually block skips its own scheduling point,
// consuming the flag in the process.
func (a *Actor) SuppressNextReceiveSchedulingPoint() {
	a.op.NextReceiveSuppressed = true
}

// Raise implements §4.6's raise: it is called by the actor's own handler
// code (while it holds the virtual CPU), so it mutates the queue
// directly without a scheduling point.
func (a *Actor) Raise(ev QueuedEvent) {
	a.queue.Raise(ev)
}

// Receive implements §4.6's receive. It exposes the receive_event
// scheduling point (§5 item 4) only when no matching event is already
// queued; if one is, it is returned immediately without blocking.
func (a *Actor) Receive(eventTypes []string, predicates map[string]func(any) bool) (QueuedEvent, error) {
	wait := make(map[string]func(any) bool, len(eventTypes))
	for _, t := range eventTypes {
		wait[t] = predicates[t]
	}
	if ev, ok := a.queue.Receive(wait); ok {
		return ev, nil
	}

	done := make(chan QueuedEvent, 1)
	a.queue.BeginWait(wait, func(ev QueuedEvent) {
		a.op.OnReceivedEvent()
		done <- ev
	})
	a.op.WaitEvent(eventTypes)
	if a.op.NextReceiveSuppressed {
		a.op.NextReceiveSuppressed = false
	} else if err := a.sched.ScheduleNext(a.op, false); err != nil {
		return QueuedEvent{}, err
	}
	return <-done, nil
}
