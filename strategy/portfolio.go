package strategy

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// PortfolioMember is one child of a Portfolio run: a strategy identified
// by a label, to be driven by a caller-supplied iteration runner.
type PortfolioMember struct {
	Label    string
	Strategy any // a scheduler.Strategy; kept as any to avoid forcing every caller to import scheduler just to build a member list
}

// Portfolio is not itself a scheduler.Strategy — it is a meta-runner
// (§4.4) that launches N child runs in parallel, each driving its own
// Scheduler with a different strategy and seed, and stops every child as
// soon as the first one reports a bug (§8 Scenario F).
//
// RunIteration is supplied by the caller (systest.Runtime owns the
// Scheduler/actor wiring); Portfolio's job is purely the fan-out,
// first-bug-wins cancellation, and result collection, grounded on the
// teacher's promisifyWg/goroutine-fan-out pattern (promisify.go) but
// built on errgroup for structured cancellation instead of a raw
// sync.WaitGroup, since here (unlike the teacher) child failure must
// actively cancel siblings rather than simply being waited out.
type Portfolio struct {
	Members []PortfolioMember
}

// Result is one child's outcome.
type Result struct {
	Label string
	Bug   string // non-empty if this child found a bug
	Err   error
}

// Run launches runIteration once per member (passing the member's
// Strategy and Label), stopping every other member as soon as one
// returns a non-empty bug string. It returns every result gathered
// before cancellation took effect; exactly one of them should carry a
// non-empty Bug in the common case (§8 Scenario F).
func (p *Portfolio) Run(ctx context.Context, runIteration func(ctx context.Context, member PortfolioMember) (bugMessage string, err error)) ([]Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]Result, len(p.Members))
	g, gctx := errgroup.WithContext(ctx)

	for i, member := range p.Members {
		i, member := i, member
		g.Go(func() error {
			bug, err := runIteration(gctx, member)
			results[i] = Result{Label: member.Label, Bug: bug, Err: err}
			if bug != "" {
				cancel()
			}
			return err
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return results, fmt.Errorf("systest: portfolio member failed: %w", err)
	}
	return results, nil
}
