package actorsys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noneIgnored(string) bool  { return false }
func noneDeferred(string) bool { return false }
func noDefault() (QueuedEvent, bool) { return QueuedEvent{}, false }

func TestEventQueue_EnqueueFirstEventStartsHandler(t *testing.T) {
	q := NewEventQueue()
	v := q.Enqueue(QueuedEvent{Type: "Ping", AssertLimit: -1}, noneIgnored, noneDeferred, noDefault)
	assert.Equal(t, EventHandlerNotRunning, v)
}

func TestEventQueue_EnqueueWhileRunningQueuesOnly(t *testing.T) {
	q := NewEventQueue()
	q.Enqueue(QueuedEvent{Type: "A", AssertLimit: -1}, noneIgnored, noneDeferred, noDefault)
	v := q.Enqueue(QueuedEvent{Type: "B", AssertLimit: -1}, noneIgnored, noneDeferred, noDefault)
	assert.Equal(t, EventHandlerRunning, v)
}

func TestEventQueue_EnqueueAfterCloseIsDropped(t *testing.T) {
	q := NewEventQueue()
	var dropped []QueuedEvent
	q.OnDrop = func(ev QueuedEvent) { dropped = append(dropped, ev) }
	q.Close()
	v := q.Enqueue(QueuedEvent{Type: "A", AssertLimit: -1}, noneIgnored, noneDeferred, noDefault)
	assert.Equal(t, Dropped, v)
	require.Len(t, dropped, 1)
	assert.Equal(t, "A", dropped[0].Type)
}

func TestEventQueue_DequeueSkipsDeferredFindsLater(t *testing.T) {
	q := NewEventQueue()
	q.Enqueue(QueuedEvent{Type: "X", AssertLimit: -1}, noneIgnored, noneDeferred, noDefault)
	q.Enqueue(QueuedEvent{Type: "Y", AssertLimit: -1}, noneIgnored, noneDeferred, noDefault)

	deferX := func(t string) bool { return t == "X" }
	res := q.Dequeue(noneIgnored, deferX, noDefault)
	require.Equal(t, Success, res.Verdict)
	assert.Equal(t, "Y", res.Event.Type)
	assert.Equal(t, 1, q.Len(), "X remains deferred in the queue")
}

func TestEventQueue_DequeueDropsIgnoredEvents(t *testing.T) {
	q := NewEventQueue()
	q.Enqueue(QueuedEvent{Type: "X", AssertLimit: -1}, noneIgnored, noneDeferred, noDefault)
	q.Enqueue(QueuedEvent{Type: "Y", AssertLimit: -1}, noneIgnored, noneDeferred, noDefault)

	ignoreX := func(t string) bool { return t == "X" }
	res := q.Dequeue(ignoreX, noneDeferred, noDefault)
	require.Equal(t, Success, res.Verdict)
	assert.Equal(t, "Y", res.Event.Type)
	assert.Equal(t, 0, q.Len(), "X was discarded, not merely skipped")
}

func TestEventQueue_DequeueUsesDefaultWhenEmpty(t *testing.T) {
	q := NewEventQueue()
	withDefault := func() (QueuedEvent, bool) { return QueuedEvent{Type: DefaultEventType}, true }
	res := q.Dequeue(noneIgnored, noneDeferred, withDefault)
	assert.Equal(t, Default, res.Verdict)
	assert.Equal(t, DefaultEventType, res.Event.Type)
}

func TestEventQueue_DequeueNotAvailableWithoutDefault(t *testing.T) {
	q := NewEventQueue()
	res := q.Dequeue(noneIgnored, noneDeferred, noDefault)
	assert.Equal(t, NotAvailable, res.Verdict)
}

func TestEventQueue_RaisedEventTakesPriorityOverFIFO(t *testing.T) {
	q := NewEventQueue()
	q.Enqueue(QueuedEvent{Type: "Queued", AssertLimit: -1}, noneIgnored, noneDeferred, noDefault)
	q.Raise(QueuedEvent{Type: "Urgent"})

	res := q.Dequeue(noneIgnored, noneDeferred, noDefault)
	require.Equal(t, Raised, res.Verdict)
	assert.Equal(t, "Urgent", res.Event.Type)
	assert.Equal(t, 1, q.Len())
}

func TestEventQueue_RaisedEventIgnoredIsDropped(t *testing.T) {
	q := NewEventQueue()
	q.Raise(QueuedEvent{Type: "Urgent"})
	ignoreUrgent := func(t string) bool { return t == "Urgent" }
	res := q.Dequeue(ignoreUrgent, noneDeferred, noDefault)
	assert.Equal(t, NotAvailable, res.Verdict)
}

func TestEventQueue_ReceiveMatchesQueuedEventImmediately(t *testing.T) {
	q := NewEventQueue()
	q.Enqueue(QueuedEvent{Type: "Pong", Payload: 42, AssertLimit: -1}, noneIgnored, noneDeferred, noDefault)
	ev, ok := q.Receive(map[string]func(any) bool{"Pong": nil})
	require.True(t, ok)
	assert.Equal(t, 42, ev.Payload)
}

func TestEventQueue_ReceiveRespectsPredicate(t *testing.T) {
	q := NewEventQueue()
	q.Enqueue(QueuedEvent{Type: "Pong", Payload: 1, AssertLimit: -1}, noneIgnored, noneDeferred, noDefault)
	wantsBig := map[string]func(any) bool{"Pong": func(p any) bool { return p.(int) > 10 }}
	_, ok := q.Receive(wantsBig)
	assert.False(t, ok)
}

func TestEventQueue_EnqueueCompletesPendingWait(t *testing.T) {
	q := NewEventQueue()
	var completed QueuedEvent
	var fired bool
	q.BeginWait(map[string]func(any) bool{"Pong": nil}, func(ev QueuedEvent) {
		fired = true
		completed = ev
	})
	v := q.Enqueue(QueuedEvent{Type: "Pong", Payload: "hi", AssertLimit: -1}, noneIgnored, noneDeferred, noDefault)
	assert.Equal(t, EventHandlerRunning, v)
	require.True(t, fired)
	assert.Equal(t, "hi", completed.Payload)
	assert.Equal(t, 0, q.Len(), "matched event never entered the FIFO")
}

func TestEventQueue_AssertLimitFiresWhenExceeded(t *testing.T) {
	q := NewEventQueue()
	var messages []string
	q.Assert = func(ok bool, msg string) {
		if !ok {
			messages = append(messages, msg)
		}
	}
	for i := 0; i < 3; i++ {
		q.Enqueue(QueuedEvent{Type: "Burst", AssertLimit: 1}, noneIgnored, noneDeferred, noDefault)
	}
	// The 1st enqueue leaves the count at the limit (ok); the 2nd and 3rd
	// each push it further over, firing once per violation.
	require.Len(t, messages, 2)
}
