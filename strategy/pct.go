package strategy

import (
	"fmt"
	"math/rand"

	"github.com/corewright/systest/scheduler"
)

// PCT is the priority-based / Probabilistic Concurrency Testing strategy
// (§4.4). At iteration start it assigns a random total order over
// operation ids and inserts a bounded number of priority-change points
// at random scheduling-step positions; between change points, the
// highest-priority enabled operation is chosen. PCT is unfair by
// default: low-priority operations can be starved until a change point
// promotes them.
//
// Fair is a parameter rather than a second type: when Fair is true, the
// strategy behaves as FairPCT (§4.4) — once every configured
// priority-change point has fired, it falls back to uniform random
// selection instead of continuing to honor a (now-exhausted) order.
type PCT struct {
	rng         *rand.Rand
	seed        uint64
	switchBound int
	fair        bool
	maxSteps    int

	steps         int
	order         []uint64 // priority order, index 0 = highest priority
	rank          map[uint64]int
	changePoints  map[int]bool
	changesFired  int
}

// NewPCT returns an unfair (classic) PCT strategy.
func NewPCT(seed uint64, switchBound int, maxSteps int) *PCT {
	return newPCT(seed, switchBound, maxSteps, false)
}

// NewFairPCT returns the fair variant: after the change-point budget is
// exhausted, selection degrades to uniform random rather than starving
// low-priority operations indefinitely.
func NewFairPCT(seed uint64, switchBound int, maxSteps int) *PCT {
	return newPCT(seed, switchBound, maxSteps, true)
}

func newPCT(seed uint64, switchBound int, maxSteps int, fair bool) *PCT {
	p := &PCT{
		rng:         rand.New(rand.NewSource(int64(seed))),
		seed:        seed,
		switchBound: switchBound,
		fair:        fair,
		maxSteps:    maxSteps,
	}
	p.resetChangePoints()
	return p
}

func (p *PCT) resetChangePoints() {
	p.order = nil
	p.rank = make(map[uint64]int)
	p.changesFired = 0
	bound := p.maxSteps
	if bound <= 0 {
		bound = 1000
	}
	p.changePoints = make(map[int]bool, p.switchBound)
	for i := 0; i < p.switchBound; i++ {
		p.changePoints[p.rng.Intn(bound)] = true
	}
}

// ensureRanked inserts any operation not yet in the priority order at a
// random position, then rebuilds the rank lookup.
func (p *PCT) ensureRanked(ops []*scheduler.Operation) {
	for _, op := range ops {
		if _, ok := p.rank[op.ID]; ok {
			continue
		}
		pos := 0
		if len(p.order) > 0 {
			pos = p.rng.Intn(len(p.order) + 1)
		}
		p.order = append(p.order, 0)
		copy(p.order[pos+1:], p.order[pos:])
		p.order[pos] = op.ID
	}
	p.rank = make(map[uint64]int, len(p.order))
	for i, id := range p.order {
		p.rank[id] = i
	}
}

func (p *PCT) reshuffle() {
	p.rng.Shuffle(len(p.order), func(i, j int) { p.order[i], p.order[j] = p.order[j], p.order[i] })
	p.rank = make(map[uint64]int, len(p.order))
	for i, id := range p.order {
		p.rank[id] = i
	}
}

func (p *PCT) NextOperation(ops []*scheduler.Operation, _ *scheduler.Operation, _ bool) (*scheduler.Operation, bool) {
	if len(ops) == 0 {
		return nil, false
	}

	atChangePoint := p.changePoints[p.steps]
	p.steps++

	exhausted := p.fair && p.changesFired >= p.switchBound
	if exhausted {
		return ops[p.rng.Intn(len(ops))], true
	}

	p.ensureRanked(ops)
	if atChangePoint {
		p.reshuffle()
		p.changesFired++
	}

	best := ops[0]
	for _, op := range ops[1:] {
		if p.rank[op.ID] < p.rank[best.ID] {
			best = op
		}
	}
	return best, true
}

func (p *PCT) NextBoolean(_ *scheduler.Operation, maxValue int) (bool, bool) {
	if maxValue <= 0 {
		maxValue = 2
	}
	return p.rng.Intn(maxValue) == 0, true
}

func (p *PCT) NextInteger(_ *scheduler.Operation, maxValue int) (int, bool) {
	if maxValue <= 0 {
		return 0, true
	}
	return p.rng.Intn(maxValue), true
}

func (p *PCT) NextDelay(maxValue int) (int, bool) {
	if maxValue <= 0 {
		return 0, true
	}
	return p.rng.Intn(maxValue), true
}

func (p *PCT) HasReachedMaxSchedulingSteps() bool {
	return p.maxSteps > 0 && p.steps >= p.maxSteps
}

func (p *PCT) IsFair() bool { return p.fair }

func (p *PCT) ScheduledSteps() int { return p.steps }

func (p *PCT) Description() string {
	name := "pct"
	if p.fair {
		name = "fair-pct"
	}
	return fmt.Sprintf("%s(seed=%d,switch-bound=%d)", name, p.seed, p.switchBound)
}

func (p *PCT) PrepareNextIteration() bool {
	p.steps = 0
	p.resetChangePoints()
	return true
}
