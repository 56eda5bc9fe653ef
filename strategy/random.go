// Package strategy implements the pluggable exploration strategies
// (§4.4): pure decision modules that pick the next operation to run and
// answer nondeterministic boolean/integer/delay choices, given a seeded
// PRNG. Every strategy here implements scheduler.Strategy.
package strategy

import (
	"fmt"
	"math/rand"

	"github.com/corewright/systest/scheduler"
)

// Random chooses uniformly at random among enabled operations, and from
// {false, true} / [0, max) for choices, using a seeded PRNG (§4.4).
// Random is fair.
type Random struct {
	rng       *rand.Rand
	seed      uint64
	steps     int
	maxSteps  int
}

// NewRandom returns a Random strategy seeded with seed, bounded by
// maxSteps scheduling decisions (0 disables the bound here; the
// Scheduler enforces its own configured max independently).
func NewRandom(seed uint64, maxSteps int) *Random {
	return &Random{rng: rand.New(rand.NewSource(int64(seed))), seed: seed, maxSteps: maxSteps}
}

func (r *Random) NextOperation(ops []*scheduler.Operation, _ *scheduler.Operation, _ bool) (*scheduler.Operation, bool) {
	r.steps++
	if len(ops) == 0 {
		return nil, false
	}
	return ops[r.rng.Intn(len(ops))], true
}

func (r *Random) NextBoolean(_ *scheduler.Operation, maxValue int) (bool, bool) {
	if maxValue <= 0 {
		maxValue = 2
	}
	return r.rng.Intn(maxValue) == 0, true
}

func (r *Random) NextInteger(_ *scheduler.Operation, maxValue int) (int, bool) {
	if maxValue <= 0 {
		return 0, true
	}
	return r.rng.Intn(maxValue), true
}

func (r *Random) NextDelay(maxValue int) (int, bool) {
	if maxValue <= 0 {
		return 0, true
	}
	return r.rng.Intn(maxValue), true
}

func (r *Random) HasReachedMaxSchedulingSteps() bool {
	return r.maxSteps > 0 && r.steps >= r.maxSteps
}

func (r *Random) IsFair() bool { return true }

func (r *Random) ScheduledSteps() int { return r.steps }

func (r *Random) Description() string {
	return fmt.Sprintf("random(seed=%d)", r.seed)
}

func (r *Random) PrepareNextIteration() bool {
	r.steps = 0
	return true
}
