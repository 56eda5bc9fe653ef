package trace

import (
	"github.com/corewright/systest/scheduler"
)

// Replay is a scheduler.Strategy that returns the decisions recorded in
// a Trace, in order (§6: "configures a replay strategy that returns
// decisions in order, and runs one iteration"). It is deterministic by
// construction: the same Trace always yields the same sequence of
// decisions, which is what makes §8's replay-determinism property
// checkable.
type Replay struct {
	entries []Entry
	pos     int
}

// NewReplay returns a Replay strategy over the entries recorded in t.
func NewReplay(t *Trace) *Replay {
	return &Replay{entries: t.Entries()}
}

func (r *Replay) next() (Entry, bool) {
	if r.pos >= len(r.entries) {
		return Entry{}, false
	}
	e := r.entries[r.pos]
	r.pos++
	return e, true
}

func (r *Replay) NextOperation(ops []*scheduler.Operation, _ *scheduler.Operation, _ bool) (*scheduler.Operation, bool) {
	e, ok := r.next()
	if !ok || e.Kind != Schedule {
		return nil, false
	}
	for _, op := range ops {
		if op.ID == e.OpID {
			return op, true
		}
	}
	return nil, false
}

func (r *Replay) NextBoolean(*scheduler.Operation, int) (bool, bool) {
	e, ok := r.next()
	if !ok || e.Kind != Boolean {
		return false, false
	}
	return e.Bool, true
}

func (r *Replay) NextInteger(*scheduler.Operation, int) (int, bool) {
	e, ok := r.next()
	if !ok || e.Kind != Integer {
		return 0, false
	}
	return e.Int, true
}

func (r *Replay) NextDelay(int) (int, bool) { return 0, true }

func (r *Replay) HasReachedMaxSchedulingSteps() bool {
	return r.pos >= len(r.entries)
}

func (r *Replay) IsFair() bool { return true }

func (r *Replay) ScheduledSteps() int { return r.pos }

func (r *Replay) Description() string { return "replay" }

// PrepareNextIteration always returns false: a replay reproduces exactly
// one captured iteration.
func (r *Replay) PrepareNextIteration() bool { return false }
