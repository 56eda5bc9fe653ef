// Package scheduler implements the cooperative operation scheduler: the
// serializer that owns the single virtual CPU, the operation model it
// schedules, and the blocking primitives operations use to describe what
// they are waiting for.
package scheduler

import (
	"fmt"
)

// OperationStatus is the lifecycle state of an Operation. Exactly one
// status is active at a time; Completed and Canceled are terminal.
type OperationStatus int32

const (
	// None means the operation has been registered but not yet started.
	None OperationStatus = iota
	// Enabled means the operation is eligible for selection.
	Enabled
	// Delayed means the operation is a timer whose virtual deadline has
	// not yet elapsed.
	Delayed
	// BlockedOnWaitAll means the operation is waiting for every task in
	// its dependency set to finish.
	BlockedOnWaitAll
	// BlockedOnWaitAny means the operation is waiting for any one task in
	// its dependency set to finish.
	BlockedOnWaitAny
	// BlockedOnReceive means an actor operation is waiting for an event
	// whose type is in its wait-set.
	BlockedOnReceive
	// BlockedOnResource means the operation is waiting on a user-visible
	// synchronization primitive (a mutex, a semaphore, a barrier).
	BlockedOnResource
	// Completed is terminal: the operation ran to completion.
	Completed
	// Canceled is terminal: the operation was torn down by a detach.
	Canceled
)

func (s OperationStatus) String() string {
	switch s {
	case None:
		return "None"
	case Enabled:
		return "Enabled"
	case Delayed:
		return "Delayed"
	case BlockedOnWaitAll:
		return "BlockedOnWaitAll"
	case BlockedOnWaitAny:
		return "BlockedOnWaitAny"
	case BlockedOnReceive:
		return "BlockedOnReceive"
	case BlockedOnResource:
		return "BlockedOnResource"
	case Completed:
		return "Completed"
	case Canceled:
		return "Canceled"
	default:
		return fmt.Sprintf("OperationStatus(%d)", int32(s))
	}
}

// IsBlocked reports whether the status is one of the Blocked* variants.
func (s OperationStatus) IsBlocked() bool {
	switch s {
	case BlockedOnWaitAll, BlockedOnWaitAny, BlockedOnReceive, BlockedOnResource:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status is Completed or Canceled.
func (s OperationStatus) IsTerminal() bool {
	return s == Completed || s == Canceled
}

// TaskHandle identifies a task or operation that another operation can
// block on. *Operation does not implement it; actorsys.Actor does, and a
// handle for an uncontrolled (native) task reports IsControlled false.
type TaskHandle interface {
	// IsCompleted reports whether the underlying task has finished,
	// either successfully, by cancellation, or by fault.
	IsCompleted() bool
	// IsControlled reports whether this handle refers to an operation the
	// scheduler itself owns and can therefore observe directly. Handles
	// for native (uncontrolled) tasks return false.
	IsControlled() bool
}

// Operation is one schedulable unit of work: a task, or an actor's
// current message-handler turn.
//
// Every field below is only ever read or written while the owning
// Scheduler's SyncObject is held, except NextReceiveSuppressed which is
// also read/written by the actor driver under the same discipline.
type Operation struct { //nolint:govet // betteralign:ignore
	// ID is a stable id, monotonically assigned at registration. Newer
	// operations always have a strictly larger id than older ones; this
	// is the tiebreak rule strategies use when ordering operations.
	ID uint64

	// Name is a human-readable label, e.g. "task-3" or "actor(Server)".
	Name string

	status OperationStatus

	// waitAll distinguishes BlockedOnWaitAll from BlockedOnWaitAny.
	waitAll bool
	// waitTasks is the dependency set for BlockedOnWaitAll/WaitAny.
	waitTasks []TaskHandle

	// waitEvents is the set of event types an actor operation is
	// awaiting, for BlockedOnReceive.
	waitEvents map[string]bool

	// delayUntil is the virtual-time tick at which a Delayed operation
	// becomes Enabled.
	delayUntil int64

	// Exception is the captured panic/error that ended the operation, if
	// any.
	Exception error

	// StateHash holds an optional per-step hashed program-state value.
	// The scheduler never computes or assigns it, whether or not
	// Config.ProgramStateHashing is set.
	StateHash uint64

	// NextReceiveSuppressed, when true, tells the actor driver to skip
	// the next receive-triggered scheduling point. Used by
	// SuppressNextReceiveSchedulingPoint.
	NextReceiveSuppressed bool

	// ResourceReady, when set, is polled by the scheduler's try-enable
	// pass to decide whether a BlockedOnResource operation can be
	// promoted to Enabled (§4.3's "same mechanism" re-enable note, §9
	// Open Questions).
	ResourceReady func() bool
}

// NewOperation constructs a fresh Operation in status None. Callers
// register it with a Scheduler before use.
func NewOperation(id uint64, name string) *Operation {
	return &Operation{ID: id, Name: name, status: None}
}

// Status returns the operation's current status. Callers outside the
// scheduler package must hold the owning SyncObject.
func (o *Operation) Status() OperationStatus { return o.status }

// setStatus is an internal setter used by the scheduler under lock.
func (o *Operation) setStatus(s OperationStatus) { o.status = s }

// TryBlockUntilTaskCompletes sets the operation's status to
// BlockedOnWaitAll with the singleton dependency {task}. Per §4.3 this
// is the primitive used when a single task is awaited.
func (o *Operation) TryBlockUntilTaskCompletes(task TaskHandle) {
	o.status = BlockedOnWaitAll
	o.waitAll = true
	o.waitTasks = []TaskHandle{task}
}

// BlockUntilTasksComplete sets the operation's status to
// BlockedOnWaitAll (waitAll=true) or BlockedOnWaitAny (waitAll=false)
// over the given task set.
func (o *Operation) BlockUntilTasksComplete(tasks []TaskHandle, waitAll bool) {
	if waitAll {
		o.status = BlockedOnWaitAll
	} else {
		o.status = BlockedOnWaitAny
	}
	o.waitAll = waitAll
	o.waitTasks = tasks
}

// WaitEvent sets the operation's status to BlockedOnReceive, recording
// the union of event types it may be woken by.
func (o *Operation) WaitEvent(eventTypes []string) {
	o.status = BlockedOnReceive
	set := make(map[string]bool, len(eventTypes))
	for _, t := range eventTypes {
		set[t] = true
	}
	o.waitEvents = set
}

// BlockOnResource sets the operation's status to BlockedOnResource. The
// scheduler's try-enable pass (Scheduler.tryEnableLocked) re-enables it
// once ResourceReady reports true.
func (o *Operation) BlockOnResource() {
	o.status = BlockedOnResource
}

// OnReceivedEvent clears the event wait-set and marks the operation
// Enabled. Called once a matching event has been delivered.
func (o *Operation) OnReceivedEvent() {
	o.waitEvents = nil
	o.status = Enabled
}

// OnCompleted marks the operation Completed. Idempotent: once terminal,
// further calls are ignored.
func (o *Operation) OnCompleted() {
	if o.status.IsTerminal() {
		return
	}
	o.status = Completed
}

// OnCanceled marks the operation Canceled. Idempotent.
func (o *Operation) OnCanceled() {
	if o.status.IsTerminal() {
		return
	}
	o.status = Canceled
}

// WaitsForEvent reports whether the given event type would satisfy this
// operation's current wait-set.
func (o *Operation) WaitsForEvent(eventType string) bool {
	return o.status == BlockedOnReceive && o.waitEvents[eventType]
}

// IsBlockedOnUncontrolledDependency reports whether every dependency in
// a WaitAll/WaitAny set is a handle the scheduler cannot itself observe
// (e.g. a native goroutine never wrapped by Register). This is the hook
// used by the scheduler's relaxed-mode retry logic (§4.1, §4.3).
func (o *Operation) IsBlockedOnUncontrolledDependency() bool {
	if !o.status.IsBlocked() || o.status == BlockedOnReceive {
		return false
	}
	if len(o.waitTasks) == 0 {
		return false
	}
	for _, t := range o.waitTasks {
		if t.IsControlled() {
			return false
		}
	}
	return true
}

// trySatisfyWait evaluates the WaitAll/WaitAny dependency set against
// current task completion and, if satisfied, flips status to Enabled.
// Returns true if a transition occurred.
func (o *Operation) trySatisfyWait() bool {
	if o.status != BlockedOnWaitAll && o.status != BlockedOnWaitAny {
		return false
	}
	if len(o.waitTasks) == 0 {
		o.status = Enabled
		return true
	}
	if o.waitAll {
		for _, t := range o.waitTasks {
			if !t.IsCompleted() {
				return false
			}
		}
		o.status = Enabled
		return true
	}
	for _, t := range o.waitTasks {
		if t.IsCompleted() {
			o.status = Enabled
			return true
		}
	}
	return false
}

// tryElapseDelay promotes a Delayed operation to Enabled once the
// virtual clock has reached delayUntil. nowTick is the scheduler's
// current virtual-time tick counter.
func (o *Operation) tryElapseDelay(nowTick int64) bool {
	if o.status != Delayed {
		return false
	}
	if nowTick < o.delayUntil {
		return false
	}
	o.status = Enabled
	return true
}

// SetDelay marks the operation Delayed until the given virtual tick.
func (o *Operation) SetDelay(untilTick int64) {
	o.status = Delayed
	o.delayUntil = untilTick
}
