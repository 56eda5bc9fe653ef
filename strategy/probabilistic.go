package strategy

import (
	"fmt"
	"math/rand"

	"github.com/corewright/systest/scheduler"
)

// Probabilistic is Random, but before each operation selection it flips
// k biased coins to inject additional randomness patterns (§4.4). A
// "heads" run of all k coins (probability 1/2^k) switches to picking the
// first enabled operation rather than a uniform pick, which in practice
// biases the exploration toward earlier-registered operations on a
// configurable fraction of steps. Fair: yes.
type Probabilistic struct {
	rng      *rand.Rand
	seed     uint64
	coins    int
	steps    int
	maxSteps int
}

// NewProbabilistic returns a Probabilistic strategy seeded with seed,
// flipping coins biased coins per decision.
func NewProbabilistic(seed uint64, coins int, maxSteps int) *Probabilistic {
	if coins < 1 {
		coins = 1
	}
	return &Probabilistic{rng: rand.New(rand.NewSource(int64(seed))), seed: seed, coins: coins, maxSteps: maxSteps}
}

func (p *Probabilistic) flipAllHeads() bool {
	for i := 0; i < p.coins; i++ {
		if p.rng.Intn(2) != 0 {
			return false
		}
	}
	return true
}

func (p *Probabilistic) NextOperation(ops []*scheduler.Operation, _ *scheduler.Operation, _ bool) (*scheduler.Operation, bool) {
	p.steps++
	if len(ops) == 0 {
		return nil, false
	}
	if p.flipAllHeads() {
		return ops[0], true
	}
	return ops[p.rng.Intn(len(ops))], true
}

func (p *Probabilistic) NextBoolean(_ *scheduler.Operation, maxValue int) (bool, bool) {
	if maxValue <= 0 {
		maxValue = 2
	}
	return p.rng.Intn(maxValue) == 0, true
}

func (p *Probabilistic) NextInteger(_ *scheduler.Operation, maxValue int) (int, bool) {
	if maxValue <= 0 {
		return 0, true
	}
	return p.rng.Intn(maxValue), true
}

func (p *Probabilistic) NextDelay(maxValue int) (int, bool) {
	if maxValue <= 0 {
		return 0, true
	}
	return p.rng.Intn(maxValue), true
}

func (p *Probabilistic) HasReachedMaxSchedulingSteps() bool {
	return p.maxSteps > 0 && p.steps >= p.maxSteps
}

func (p *Probabilistic) IsFair() bool { return true }

func (p *Probabilistic) ScheduledSteps() int { return p.steps }

func (p *Probabilistic) Description() string {
	return fmt.Sprintf("probabilistic(seed=%d,coins=%d)", p.seed, p.coins)
}

func (p *Probabilistic) PrepareNextIteration() bool {
	p.steps = 0
	return true
}
