// Package trace implements the schedule trace (§3, §6): the append-only
// ordered log of scheduling and nondeterministic-choice decisions made
// during one iteration, its textual serialization, and the replay
// strategy used to reproduce a captured run.
package trace

import (
	"sync"

	"github.com/google/uuid"
)

// EntryKind distinguishes the three kinds of trace entry (§3).
type EntryKind int

const (
	// Schedule records which operation id was chosen to run next.
	Schedule EntryKind = iota
	// Boolean records a nondeterministic boolean choice.
	Boolean
	// Integer records a nondeterministic integer choice.
	Integer
)

func (k EntryKind) String() string {
	switch k {
	case Schedule:
		return "SCHED"
	case Boolean:
		return "BOOL"
	case Integer:
		return "INT"
	default:
		return "UNKNOWN"
	}
}

// Entry is one trace entry. Only the field matching Kind is meaningful.
type Entry struct {
	Kind  EntryKind
	OpID  uint64
	Bool  bool
	Int   int
}

// Trace is an append-only ordered sequence of entries (§3), created per
// iteration and kept in memory; it is never flushed anywhere by itself.
// It implements scheduler.TraceRecorder.
//
// IterationID tags every captured trace with a UUID (grounded on the
// pack's widespread use of github.com/google/uuid) so a bug report and
// its replay file can be correlated independent of any file naming
// convention — naming and persistence of that file are the CLI
// front-end's job (out of scope, §1); Trace only owns the in-memory log
// and its (de)serialization.
type Trace struct {
	IterationID uuid.UUID

	mu      sync.Mutex
	entries []Entry
}

// New returns an empty Trace tagged with a fresh iteration id.
func New() *Trace {
	return &Trace{IterationID: uuid.New()}
}

// RecordSchedule appends a Schedule entry.
func (t *Trace) RecordSchedule(opID uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, Entry{Kind: Schedule, OpID: opID})
}

// RecordBoolean appends a Boolean entry.
func (t *Trace) RecordBoolean(v bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, Entry{Kind: Boolean, Bool: v})
}

// RecordInteger appends an Integer entry.
func (t *Trace) RecordInteger(v int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, Entry{Kind: Integer, Int: v})
}

// Entries returns a copy of the recorded entries, in order.
func (t *Trace) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of recorded entries.
func (t *Trace) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
