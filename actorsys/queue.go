// Package actorsys implements the actor / event-queue subsystem (§4.6,
// §4.7): the per-actor FIFO with defer/ignore/raise/receive semantics,
// and the state-machine driver that dispatches dequeued events to user
// handlers under the scheduler's single virtual CPU.
package actorsys

import "fmt"

// EnqueueVerdict is the result of EventQueue.Enqueue (§4.6).
type EnqueueVerdict int

const (
	// Dropped means the queue was already closed; the event never
	// entered the FIFO.
	Dropped EnqueueVerdict = iota
	// EventHandlerRunning means a handler is already active for this
	// actor; the event was queued (or used to complete a pending
	// receive) and will be picked up by that handler's own loop.
	EventHandlerRunning
	// EventHandlerNotRunning means no handler was active, one could be
	// found via a check-only dequeue, and the caller must now start the
	// handler task.
	EventHandlerNotRunning
	// NextEventUnavailable means no handler was active and none could
	// be found (every queued event is deferred or ignored, with no
	// default handler available either).
	NextEventUnavailable
)

func (v EnqueueVerdict) String() string {
	switch v {
	case Dropped:
		return "Dropped"
	case EventHandlerRunning:
		return "EventHandlerRunning"
	case EventHandlerNotRunning:
		return "EventHandlerNotRunning"
	case NextEventUnavailable:
		return "NextEventUnavailable"
	default:
		return fmt.Sprintf("EnqueueVerdict(%d)", int(v))
	}
}

// DequeueVerdict is the result of EventQueue.Dequeue (§4.6).
type DequeueVerdict int

const (
	// Raised means the single-slot raised event was consumed.
	Raised DequeueVerdict = iota
	// Success means an ordinary FIFO entry was consumed.
	Success
	// Default means no real event was available but the current state
	// supplies a default handler; a synthetic default event was
	// returned.
	Default
	// NotAvailable means nothing is available at all; the caller must
	// stop running its handler loop.
	NotAvailable
)

func (v DequeueVerdict) String() string {
	switch v {
	case Raised:
		return "Raised"
	case Success:
		return "Success"
	case Default:
		return "Default"
	case NotAvailable:
		return "NotAvailable"
	default:
		return fmt.Sprintf("DequeueVerdict(%d)", int(v))
	}
}

// DefaultEventType is the synthetic event type returned in a Default
// verdict.
const DefaultEventType = "$default"

// QueuedEvent is one (event, group-id, metadata) triple (§4.1 glossary:
// "Event queue").
type QueuedEvent struct {
	Type    string
	GroupID string
	Payload any

	// AssertLimit, when >= 0, is the maximum number of events of this
	// Type allowed to be queued at once; Enqueue funnels a violation
	// through Assert.
	AssertLimit int
}

// DequeueResult bundles a DequeueVerdict with the event it applies to
// (the zero QueuedEvent when the verdict is NotAvailable).
type DequeueResult struct {
	Verdict DequeueVerdict
	Event   QueuedEvent
}

// receiveWaiter is the single pending Receive call an EventQueue may
// have outstanding (§4.6 invariant: at most one per actor).
type receiveWaiter struct {
	predicates map[string]func(any) bool
	complete   func(QueuedEvent)
}

// EventQueue is one actor's FIFO plus its single raised-event slot
// (§3, §4.6). It is NOT internally synchronized, matching Operation
// (§5 "Scheduling model"): the cooperative scheduler guarantees that at
// most one operation holds the virtual CPU at a time, so a sender's
// Enqueue and the owning actor's Dequeue can never execute concurrently
// with each other. Callers outside that guarantee must add their own
// locking.
type EventQueue struct {
	fifo     []QueuedEvent
	raised   *QueuedEvent
	closed   bool
	running  bool
	waiter   *receiveWaiter

	// Assert funnels a queue-depth assertion violation (§4.6 step 3).
	// NewActor wires it to the owning Actor's Assert.
	Assert func(ok bool, message string)
	// OnDrop is invoked for every event discarded because the queue was
	// closed (§4.6 "Drop handling"), for logging.
	OnDrop func(QueuedEvent)
}

// NewEventQueue returns an empty, open EventQueue.
func NewEventQueue() *EventQueue {
	return &EventQueue{}
}

// classifier groups the three state-dependent callbacks Enqueue/Dequeue
// need: whether a type is ignored or deferred in the current state, and
// what default event (if any) the current state can synthesize.
type classifier struct {
	isIgnored  func(string) bool
	isDeferred func(string) bool
	hasDefault func() (QueuedEvent, bool)
}

// Enqueue implements §4.6's enqueue algorithm.
func (q *EventQueue) Enqueue(ev QueuedEvent, isIgnored, isDeferred func(string) bool, hasDefault func() (QueuedEvent, bool)) EnqueueVerdict {
	if q.closed {
		if q.OnDrop != nil {
			q.OnDrop(ev)
		}
		return Dropped
	}

	if q.waiter != nil {
		if pred, ok := q.waiter.predicates[ev.Type]; ok && (pred == nil || pred(ev.Payload)) {
			complete := q.waiter.complete
			q.waiter = nil
			complete(ev)
			return EventHandlerRunning
		}
	}

	q.fifo = append(q.fifo, ev)

	if ev.AssertLimit >= 0 && q.Assert != nil {
		count := 0
		for _, queued := range q.fifo {
			if queued.Type == ev.Type {
				count++
			}
		}
		q.Assert(count <= ev.AssertLimit, fmt.Sprintf(
			"event queue: %d queued events of type %q exceed limit %d", count, ev.Type, ev.AssertLimit))
	}

	if !q.running {
		c := classifier{isIgnored, isDeferred, hasDefault}
		if res := q.dequeueLocked(false, c); res.Verdict == NotAvailable {
			return NextEventUnavailable
		}
		q.running = true
		return EventHandlerNotRunning
	}
	return EventHandlerRunning
}

// Dequeue implements §4.6's dequeue algorithm, consuming the found
// entry (if any).
func (q *EventQueue) Dequeue(isIgnored, isDeferred func(string) bool, hasDefault func() (QueuedEvent, bool)) DequeueResult {
	c := classifier{isIgnored, isDeferred, hasDefault}
	res := q.dequeueLocked(true, c)
	if res.Verdict == NotAvailable {
		q.running = false
	}
	return res
}

// dequeueLocked is shared by the real Dequeue and Enqueue's check-only
// probe. consume controls whether a found Raised/Success entry is
// actually removed; ignored entries are always discarded, matching the
// source ("if present but ignored, drop it" / dequeue step 2).
func (q *EventQueue) dequeueLocked(consume bool, c classifier) DequeueResult {
	if q.raised != nil {
		ev := *q.raised
		if c.isIgnored(ev.Type) {
			q.raised = nil
		} else {
			if consume {
				q.raised = nil
			}
			return DequeueResult{Verdict: Raised, Event: ev}
		}
	}

	for i := 0; i < len(q.fifo); i++ {
		ev := q.fifo[i]
		if c.isIgnored(ev.Type) {
			q.fifo = append(q.fifo[:i], q.fifo[i+1:]...)
			i--
			continue
		}
		if c.isDeferred(ev.Type) {
			continue
		}
		if consume {
			q.fifo = append(q.fifo[:i], q.fifo[i+1:]...)
		}
		return DequeueResult{Verdict: Success, Event: ev}
	}

	if c.hasDefault != nil {
		if ev, ok := c.hasDefault(); ok {
			return DequeueResult{Verdict: Default, Event: ev}
		}
	}
	return DequeueResult{Verdict: NotAvailable}
}

// Raise sets the one-slot raised-event field (§4.6). It does not enqueue
// into the FIFO and supersedes the ongoing dequeue.
func (q *EventQueue) Raise(ev QueuedEvent) {
	q.raised = &ev
}

// Receive implements §4.6's receive, non-blocking half: scan the FIFO
// head-to-tail for the first entry matching wait, remove and return it
// if found.
func (q *EventQueue) Receive(wait map[string]func(any) bool) (QueuedEvent, bool) {
	for i, ev := range q.fifo {
		pred, ok := wait[ev.Type]
		if !ok {
			continue
		}
		if pred == nil || pred(ev.Payload) {
			q.fifo = append(q.fifo[:i], q.fifo[i+1:]...)
			return ev, true
		}
	}
	return QueuedEvent{}, false
}

// BeginWait records wait as the pending receive, to be completed the
// next time a matching event is Enqueued (§4.6 receive step 3).
func (q *EventQueue) BeginWait(wait map[string]func(any) bool, complete func(QueuedEvent)) {
	q.waiter = &receiveWaiter{predicates: wait, complete: complete}
}

// Close implements §4.6's drop handling: marks the queue closed, passes
// every event still buffered (FIFO plus any raised event) to OnDrop if
// set, and returns them; further Enqueue calls return Dropped.
func (q *EventQueue) Close() []QueuedEvent {
	q.closed = true
	dropped := q.fifo
	q.fifo = nil
	if q.raised != nil {
		dropped = append(dropped, *q.raised)
		q.raised = nil
	}
	if q.OnDrop != nil {
		for _, ev := range dropped {
			q.OnDrop(ev)
		}
	}
	return dropped
}

// Len returns the number of FIFO-queued events (excluding any raised
// event).
func (q *EventQueue) Len() int { return len(q.fifo) }

// IsClosed reports whether the queue has been closed.
func (q *EventQueue) IsClosed() bool { return q.closed }
