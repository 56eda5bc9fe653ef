package scheduler

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Sentinel errors. ErrExecutionCanceled implements the cooperative
// detach/terminate protocol (§7 kind 1): it must propagate through every
// user stack frame up to the per-operation root frame, and is never
// reported as a bug. ErrUncontrolledTask is kind 2: fatal and immediate.
var (
	ErrExecutionCanceled = errors.New("systest: execution canceled")
	ErrUncontrolledTask  = errors.New("systest: scheduling point reached by an operation not registered with the scheduler")
)

// retryCap and retrySleep are the internal knobs for the relaxed-mode
// retry loop in tryGetNextEnabled (§4.1, §9 Open Questions). They are
// not presently exposed as Config keys, matching the source; a future
// revision could promote them.
const (
	retryCap   = 5
	retrySleep = 10 * time.Millisecond
)

// TraceRecorder receives the three kinds of trace entries the scheduler
// produces. systest/trace.Trace implements this.
type TraceRecorder interface {
	RecordSchedule(opID uint64)
	RecordBoolean(v bool)
	RecordInteger(v int)
}

// BugReport describes the first failure recorded in an iteration (§7).
type BugReport struct {
	Message  string
	Liveness bool
	Deadlock bool
}

// Config bundles the scheduler-relevant subset of the configuration
// surface (§6).
type Config struct {
	MaxUnfairSteps           int
	MaxFairSteps             int
	DepthBoundHitAsBug       bool
	ProgramStateHashing      bool
	RelaxedControlledTesting bool
}

// Scheduler serializes all controlled operations onto a single virtual
// CPU (§4.1). It owns the SyncObject, the OperationMap, and the
// currently-scheduled-operation token.
type Scheduler struct {
	sync *SyncObject
	ops  *OperationMap

	strategy Strategy
	cfg      Config
	trace    TraceRecorder

	scheduledID uint64
	attached    bool

	stepCount  int
	virtualTick int64

	bug *BugReport

	// OnAssertionFailure is invoked (at most once per iteration) the
	// first time a bug is recorded. Optional.
	OnAssertionFailure func(*BugReport)
	// OnUncontrolledTask is invoked when an uncontrolled-task error is
	// raised. Optional.
	OnUncontrolledTask func(error)
}

// New constructs a Scheduler bound to the given strategy, config, and
// trace recorder.
func New(strategy Strategy, cfg Config, trace TraceRecorder) *Scheduler {
	return &Scheduler{
		sync:     NewSyncObject(),
		ops:      NewOperationMap(),
		strategy: strategy,
		cfg:      cfg,
		trace:    trace,
		attached: true,
	}
}

// Operations exposes the underlying map for callers (e.g. the actor
// driver, or diagnostics) that need to enumerate operations. Must be
// called with the Scheduler locked, or treated as a snapshot.
func (s *Scheduler) Operations() *OperationMap { return s.ops }

// NextOperationID returns the id that will be assigned to the next
// registered operation.
func (s *Scheduler) NextOperationID() uint64 {
	s.sync.Lock()
	defer s.sync.Unlock()
	return s.ops.NextID()
}

// Register adds a fresh operation to the map (§4.1). If the map was
// empty, op becomes the scheduled operation.
func (s *Scheduler) Register(op *Operation) bool {
	s.sync.Lock()
	defer s.sync.Unlock()
	wasEmpty := s.ops.Len() == 0
	ok := s.ops.Register(op)
	if ok && wasEmpty {
		s.scheduledID = op.ID
	}
	return ok
}

// Start marks op Enabled, then pauses it so it waits for its turn on the
// virtual CPU (§4.1).
func (s *Scheduler) Start(op *Operation) error {
	s.sync.Lock()
	op.setStatus(Enabled)
	s.sync.Unlock()
	return s.pause(op)
}

// WaitOperationStart blocks the calling (spawning) goroutine until op
// transitions to Enabled, forming the handshake guaranteeing a spawn is
// observed before the spawner proceeds (§4.1).
func (s *Scheduler) WaitOperationStart(op *Operation) {
	s.sync.Lock()
	defer s.sync.Unlock()
	for op.Status() == None && s.attached {
		s.sync.Wait()
	}
}

// pause runs op's handshake: notify everyone, then block until op is
// the scheduled operation or the scheduler detaches.
func (s *Scheduler) pause(op *Operation) error {
	s.sync.Lock()
	defer s.sync.Unlock()
	s.sync.NotifyAll()
	for op.ID != s.scheduledID && s.attached {
		s.sync.Wait()
	}
	if !s.attached {
		return ErrExecutionCanceled
	}
	return nil
}

// ScheduleNext is the main scheduling point (§4.1, §5). current is the
// operation currently holding the virtual CPU, or nil if the caller is
// the uncontrolled root context (in which case ScheduleNext is a no-op,
// matching "if the caller is the root context, return").
func (s *Scheduler) ScheduleNext(current *Operation, isYielding bool) error {
	if current == nil {
		return nil
	}

	s.sync.Lock()

	if (s.ops.Get(current.ID) != current || current.ID != s.scheduledID) && !current.Status().IsTerminal() {
		s.sync.Unlock()
		err := fmt.Errorf("%w: %s", ErrUncontrolledTask, current.Name)
		if s.OnUncontrolledTask != nil {
			s.OnUncontrolledTask(err)
		}
		return err
	}

	if !s.attached {
		s.sync.Unlock()
		return ErrExecutionCanceled
	}

	s.stepCount++
	s.virtualTick++

	maxSteps := s.cfg.MaxUnfairSteps
	if s.strategy.IsFair() {
		maxSteps = s.cfg.MaxFairSteps
	}
	if maxSteps > 0 && s.stepCount > maxSteps {
		if s.cfg.DepthBoundHitAsBug {
			s.sync.Unlock()
			s.NotifyAssertionFailure("step bound exceeded")
			return ErrExecutionCanceled
		}
		s.detachLocked(false)
		s.sync.Unlock()
		return ErrExecutionCanceled
	}

	next, found := s.tryGetNextEnabledLocked(current, isYielding)
	if !found {
		deadlocked, report := s.checkDeadlockLocked()
		s.sync.Unlock()
		if deadlocked {
			s.NotifyAssertionFailure(report)
		} else {
			s.Detach(false)
		}
		return ErrExecutionCanceled
	}

	if s.trace != nil {
		s.trace.RecordSchedule(next.ID)
	}

	if next.ID != current.ID {
		s.scheduledID = next.ID
		s.sync.Unlock()
		return s.pause(current)
	}

	s.sync.Unlock()
	return nil
}

// tryGetNextEnabledLocked implements §4.1's try_get_next_enabled.
// Must be called with the lock held.
func (s *Scheduler) tryGetNextEnabledLocked(current *Operation, isYielding bool) (*Operation, bool) {
	for attempt := 0; attempt <= retryCap; attempt++ {
		ordered := s.ops.InOrder()
		sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

		var enabled []*Operation
		var anyUncontrolledBlocked bool
		for _, op := range ordered {
			s.tryEnableLocked(op)
			if op.Status() == Enabled {
				enabled = append(enabled, op)
			} else if op.IsBlockedOnUncontrolledDependency() {
				anyUncontrolledBlocked = true
			}
		}

		next, ok := s.strategy.NextOperation(enabled, current, isYielding)
		if ok {
			return next, true
		}

		if !(s.cfg.RelaxedControlledTesting && anyUncontrolledBlocked && attempt < retryCap) {
			return nil, false
		}

		s.sync.NotifyAll()
		timer := time.AfterFunc(retrySleep, func() {
			s.sync.Lock()
			s.sync.NotifyAll()
			s.sync.Unlock()
		})
		s.sync.Wait()
		timer.Stop()
	}
	return nil, false
}

// tryEnableLocked promotes Delayed → Enabled when virtual time has
// elapsed, and flips a blocked operation to Enabled if its dependency
// set is satisfied (§4.1, §4.3). Must be called with the lock held.
func (s *Scheduler) tryEnableLocked(op *Operation) {
	if op.tryElapseDelay(s.virtualTick) {
		return
	}
	if op.status == BlockedOnResource && op.ResourceReady != nil && op.ResourceReady() {
		op.setStatus(Enabled)
		return
	}
	op.trySatisfyWait()
}

// checkDeadlockLocked reports whether every non-terminal operation is
// blocked and none can be enabled — the deadlock condition (§8 boundary
// behaviors). Must be called with the lock held.
func (s *Scheduler) checkDeadlockLocked() (bool, string) {
	var blocked []*Operation
	liveCount := 0
	for _, op := range s.ops.InOrder() {
		if op.Status().IsTerminal() {
			continue
		}
		liveCount++
		if op.Status().IsBlocked() || op.Status() == Delayed {
			blocked = append(blocked, op)
		}
	}
	if liveCount == 0 || len(blocked) != liveCount {
		return false, ""
	}
	msg := "deadlock detected:"
	for _, op := range blocked {
		msg += fmt.Sprintf(" %s[%s]", op.Name, op.Status())
	}
	return true, msg
}

// GetNextBool delegates to the strategy for a nondeterministic boolean
// choice, appends it to the trace, and returns it.
func (s *Scheduler) GetNextBool(current *Operation, maxValue int) bool {
	s.sync.Lock()
	v, _ := s.strategy.NextBoolean(current, maxValue)
	s.sync.Unlock()
	if s.trace != nil {
		s.trace.RecordBoolean(v)
	}
	return v
}

// GetNextInt delegates to the strategy for a nondeterministic integer
// choice in [0, maxValue), appends it to the trace, and returns it.
func (s *Scheduler) GetNextInt(current *Operation, maxValue int) int {
	s.sync.Lock()
	v, _ := s.strategy.NextInteger(current, maxValue)
	s.sync.Unlock()
	if s.trace != nil {
		s.trace.RecordInteger(v)
	}
	return v
}

// DelayOp computes a bounded nondeterministic delay for fuzzing-style
// scheduling, optionally sleeping the calling goroutine (§4.1).
func (s *Scheduler) DelayOp(maxValue int) int {
	s.sync.Lock()
	v, ok := s.strategy.NextDelay(maxValue)
	s.sync.Unlock()
	if !ok {
		return 0
	}
	if v > 0 {
		time.Sleep(time.Duration(v) * time.Millisecond)
	}
	return v
}

// Delay marks op Delayed for a nondeterministic number of virtual ticks
// in [0, maxValue), chosen by the active strategy, then yields the
// virtual CPU via ScheduleNext (§4.1 Task.Delay). op becomes re-eligible
// once the scheduler's own virtual clock reaches the computed deadline
// (§4.3); the caller never sees the clock value itself.
func (s *Scheduler) Delay(op *Operation, maxValue int) error {
	s.sync.Lock()
	v, ok := s.strategy.NextDelay(maxValue)
	if ok && v > 0 {
		op.SetDelay(s.virtualTick + int64(v))
	}
	s.sync.Unlock()
	return s.ScheduleNext(op, false)
}

// Detach is the scheduler's one-way transition from running to
// terminated (§9 glossary). Every non-completed operation is marked
// Canceled, every waiter is woken, and every later synchronization point
// of any operation observes ErrExecutionCanceled. cancelExecution is
// accepted but has no effect on this.
func (s *Scheduler) Detach(cancelExecution bool) {
	s.sync.Lock()
	s.detachLocked(cancelExecution)
	s.sync.Unlock()
}

func (s *Scheduler) detachLocked(_ bool) {
	if !s.attached {
		return
	}
	s.attached = false
	s.ops.All(func(op *Operation) bool {
		if !op.Status().IsTerminal() {
			op.OnCanceled()
		}
		return true
	})
	s.sync.NotifyAll()
}

// IsAttached reports whether the scheduler is still running.
func (s *Scheduler) IsAttached() bool {
	s.sync.Lock()
	defer s.sync.Unlock()
	return s.attached
}

// NotifyAssertionFailure funnels every safety/liveness failure through a
// single path (§7): only the first bug per iteration is recorded,
// subsequent failures during teardown are suppressed.
func (s *Scheduler) NotifyAssertionFailure(message string) {
	s.sync.Lock()
	if s.bug != nil {
		s.sync.Unlock()
		return
	}
	s.bug = &BugReport{Message: message}
	report := s.bug
	s.detachLocked(true)
	s.sync.Unlock()

	if s.OnAssertionFailure != nil {
		s.OnAssertionFailure(report)
	}
}

// NotifyLivenessFailure is the liveness-specific entry point into the
// same funnel (§4.5, §7 kind 4).
func (s *Scheduler) NotifyLivenessFailure(message string) {
	s.sync.Lock()
	if s.bug != nil {
		s.sync.Unlock()
		return
	}
	s.bug = &BugReport{Message: message, Liveness: true}
	report := s.bug
	s.detachLocked(true)
	s.sync.Unlock()

	if s.OnAssertionFailure != nil {
		s.OnAssertionFailure(report)
	}
}

// BugReport returns the first bug recorded this iteration, or nil.
func (s *Scheduler) BugReport() *BugReport {
	s.sync.Lock()
	defer s.sync.Unlock()
	return s.bug
}

// Reset prepares the scheduler for a fresh iteration: clears the
// operation map, step/clock counters, and bug report. The strategy and
// trace recorder are left for the caller to swap.
func (s *Scheduler) Reset() {
	s.sync.Lock()
	defer s.sync.Unlock()
	s.ops.Reset()
	s.scheduledID = 0
	s.stepCount = 0
	s.virtualTick = 0
	s.bug = nil
	s.attached = true
}

// StepCount returns the number of scheduling decisions made so far.
func (s *Scheduler) StepCount() int {
	s.sync.Lock()
	defer s.sync.Unlock()
	return s.stepCount
}
