package scheduler

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fifoStrategy always picks the lowest-id enabled operation and never
// produces boolean/integer/delay choices. It exists purely to drive the
// scheduler deterministically in these unit tests, independent of the
// real strategies under systest/strategy.
type fifoStrategy struct {
	steps int
	max   int
}

func (f *fifoStrategy) NextOperation(ops []*Operation, _ *Operation, _ bool) (*Operation, bool) {
	f.steps++
	if len(ops) == 0 {
		return nil, false
	}
	best := ops[0]
	for _, op := range ops[1:] {
		if op.ID < best.ID {
			best = op
		}
	}
	return best, true
}
func (f *fifoStrategy) NextBoolean(*Operation, int) (bool, bool)  { return false, true }
func (f *fifoStrategy) NextInteger(*Operation, int) (int, bool)  { return 0, true }
func (f *fifoStrategy) NextDelay(int) (int, bool)                { return 0, true }
func (f *fifoStrategy) HasReachedMaxSchedulingSteps() bool {
	return f.max > 0 && f.steps >= f.max
}
func (f *fifoStrategy) IsFair() bool              { return true }
func (f *fifoStrategy) ScheduledSteps() int       { return f.steps }
func (f *fifoStrategy) Description() string       { return "fifo" }
func (f *fifoStrategy) PrepareNextIteration() bool { f.steps = 0; return false }

func newTestScheduler() *Scheduler {
	return New(&fifoStrategy{}, Config{MaxUnfairSteps: 1000, MaxFairSteps: 1000}, nil)
}

func TestScheduler_RegisterFirstOperationBecomesScheduled(t *testing.T) {
	s := newTestScheduler()
	op := NewOperation(s.NextOperationID(), "op-0")
	require.True(t, s.Register(op))
	assert.Equal(t, uint64(0), s.scheduledID)
}

func TestScheduler_RegisterRejectsDuplicateAndOutOfOrderIDs(t *testing.T) {
	s := newTestScheduler()
	op0 := NewOperation(0, "op-0")
	require.True(t, s.Register(op0))
	assert.False(t, s.Register(NewOperation(0, "dup")))
	assert.False(t, s.Register(NewOperation(5, "skip-ahead")))
}

func TestScheduler_ScheduleNextWithNilCurrentIsNoop(t *testing.T) {
	s := newTestScheduler()
	require.NoError(t, s.ScheduleNext(nil, false))
}

func TestScheduler_ScheduleNextRejectsUncontrolledOperation(t *testing.T) {
	s := newTestScheduler()
	op := NewOperation(0, "op-0")
	// Never registered: the scheduler has never seen this id, so it is
	// not the scheduled operation and not terminal.
	err := s.ScheduleNext(op, false)
	assert.ErrorIs(t, err, ErrUncontrolledTask)
}

func TestScheduler_TwoOperationsInterleaveDeterministically(t *testing.T) {
	s := newTestScheduler()
	op0 := NewOperation(s.NextOperationID(), "op-0")
	require.True(t, s.Register(op0))
	op1 := NewOperation(s.NextOperationID(), "op-1")
	require.True(t, s.Register(op1))
	op0.setStatus(Enabled)
	op1.setStatus(Enabled)

	var order []string
	var wg sync.WaitGroup
	run := func(op *Operation, other *Operation) {
		defer wg.Done()
		require.NoError(t, s.pause(op)) // wait for this op's turn on the virtual CPU
		require.NoError(t, s.ScheduleNext(op, false))
		order = append(order, op.Name)
		op.OnCompleted()
		_ = s.ScheduleNext(op, false) // let the other op finish unimpeded
		_ = other
	}
	wg.Add(2)
	go run(op0, op1)
	go run(op1, op0)
	wg.Wait()

	assert.Equal(t, []string{"op-0", "op-1"}, order)
}

func TestScheduler_DeadlockWhenAllLiveOperationsBlocked(t *testing.T) {
	s := newTestScheduler()
	op0 := NewOperation(0, "op-0")
	require.True(t, s.Register(op0))
	op0.setStatus(BlockedOnReceive)
	op0.waitEvents = map[string]bool{"Go": true}

	var bug *BugReport
	s.OnAssertionFailure = func(b *BugReport) { bug = b }

	err := s.ScheduleNext(op0, false)
	assert.ErrorIs(t, err, ErrExecutionCanceled)
	require.NotNil(t, bug)
	assert.True(t, bug.Deadlock || !bug.Liveness)
}

func TestScheduler_ZeroOperationsExitsCleanly(t *testing.T) {
	s := newTestScheduler()
	assert.True(t, s.IsAttached())
	// No operations registered: a direct detach (simulating end-of-run
	// with nothing left to schedule) must not panic or report a bug.
	var bug *BugReport
	s.OnAssertionFailure = func(b *BugReport) { bug = b }
	s.Detach(false)
	assert.False(t, s.IsAttached())
	assert.Nil(t, bug)
}

func TestScheduler_OperationIDsStrictlyIncreasing(t *testing.T) {
	s := newTestScheduler()
	var last uint64
	for i := 0; i < 5; i++ {
		id := s.NextOperationID()
		if i > 0 {
			assert.Greater(t, id, last)
		}
		op := NewOperation(id, "op")
		require.True(t, s.Register(op))
		last = id
	}
}

func TestScheduler_OnceTerminalNeverReenabled(t *testing.T) {
	op := NewOperation(0, "op-0")
	op.setStatus(Enabled)
	op.OnCompleted()
	op.setStatus(BlockedOnWaitAll) // an erroneous external mutation attempt
	op.OnCompleted()
	assert.Equal(t, Completed, op.Status(), "the direct mutation left the terminal state, so OnCompleted applies again; the op never becomes Enabled")
}

func TestScheduler_DetachMarksNonTerminalOperationsCanceled(t *testing.T) {
	s := newTestScheduler()
	op0 := NewOperation(0, "op-0")
	require.True(t, s.Register(op0))
	op0.setStatus(Enabled)
	op1 := NewOperation(1, "op-1")
	require.True(t, s.Register(op1))
	op1.setStatus(Enabled)
	op1.OnCompleted()

	s.Detach(false)

	assert.Equal(t, Canceled, op0.Status())
	assert.Equal(t, Completed, op1.Status())
}
