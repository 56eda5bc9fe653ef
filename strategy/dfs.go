package strategy

import (
	"github.com/corewright/systest/scheduler"
)

// DFS systematically enumerates choice points depth-first (§4.4): each
// iteration completes one branch of the exploration tree and backtracks,
// incrementing the last choice that still has unexplored alternatives.
// DFS is unfair and only guarantees full coverage for small state
// spaces.
//
// A "choice point" is any call to NextOperation/NextBoolean/NextInteger;
// DFS records, per iteration, which alternative index it picked at each
// point so the next iteration can replay the same prefix and advance the
// last point with remaining alternatives — the classic backtracking
// scheme.
type DFS struct {
	maxSteps int

	// path is this iteration's (cardinality, picked-index) choices, in
	// order, replayed from stack on the next PrepareNextIteration.
	path  []dfsChoice
	stack []dfsChoice
	pos   int
	done  bool
}

type dfsChoice struct {
	cardinality int
	picked      int
}

// NewDFS returns a fresh DFS strategy.
func NewDFS(maxSteps int) *DFS {
	return &DFS{maxSteps: maxSteps}
}

func (d *DFS) nextChoice(cardinality int) int {
	if cardinality <= 0 {
		return 0
	}
	if d.pos < len(d.stack) {
		c := d.stack[d.pos]
		d.path = append(d.path, c)
		d.pos++
		return c.picked
	}
	c := dfsChoice{cardinality: cardinality, picked: 0}
	d.path = append(d.path, c)
	d.pos++
	return 0
}

func (d *DFS) NextOperation(ops []*scheduler.Operation, _ *scheduler.Operation, _ bool) (*scheduler.Operation, bool) {
	if len(ops) == 0 {
		return nil, false
	}
	idx := d.nextChoice(len(ops))
	if idx >= len(ops) {
		idx = len(ops) - 1
	}
	return ops[idx], true
}

func (d *DFS) NextBoolean(_ *scheduler.Operation, maxValue int) (bool, bool) {
	if maxValue <= 0 {
		maxValue = 2
	}
	return d.nextChoice(maxValue) != 0, true
}

func (d *DFS) NextInteger(_ *scheduler.Operation, maxValue int) (int, bool) {
	if maxValue <= 0 {
		return 0, true
	}
	return d.nextChoice(maxValue), true
}

func (d *DFS) NextDelay(int) (int, bool) { return 0, true }

func (d *DFS) HasReachedMaxSchedulingSteps() bool {
	return d.maxSteps > 0 && len(d.path) >= d.maxSteps
}

func (d *DFS) IsFair() bool { return false }

func (d *DFS) ScheduledSteps() int { return len(d.path) }

func (d *DFS) Description() string { return "dfs" }

// PrepareNextIteration backtracks to the last choice point with an
// unexplored alternative, advances it, and discards everything after it.
// Returns false once every branch of the tree has been exhausted.
func (d *DFS) PrepareNextIteration() bool {
	path := d.path
	d.path = nil
	d.pos = 0

	for i := len(path) - 1; i >= 0; i-- {
		c := path[i]
		if c.picked+1 < c.cardinality {
			c.picked++
			d.stack = append(append([]dfsChoice{}, path[:i]...), c)
			return true
		}
	}
	d.stack = nil
	d.done = true
	return false
}

// Done reports whether the DFS enumeration has exhausted every branch.
func (d *DFS) Done() bool { return d.done }
