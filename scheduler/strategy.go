package scheduler

// Strategy is the contract an exploration strategy (package
// systest/strategy) must satisfy to drive a Scheduler (§4.4). Decisions
// that the source models as "Option<T>" are Go (T, bool) pairs, the
// second value reporting whether a decision was produced at all.
type Strategy interface {
	// NextOperation picks the next operation to run from ops (already
	// filtered to Enabled candidates, in ascending id order). current is
	// the operation yielding the virtual CPU; isYielding reports whether
	// this call originated from an explicit yield.
	NextOperation(ops []*Operation, current *Operation, isYielding bool) (*Operation, bool)
	// NextBoolean returns a nondeterministic boolean choice.
	NextBoolean(current *Operation, maxValue int) (bool, bool)
	// NextInteger returns a nondeterministic choice in [0, maxValue).
	NextInteger(current *Operation, maxValue int) (int, bool)
	// NextDelay returns a bounded nondeterministic delay in [0, maxValue),
	// used by fuzzing-style scheduling (Scheduler.DelayOp).
	NextDelay(maxValue int) (int, bool)
	// HasReachedMaxSchedulingSteps reports whether the strategy's
	// configured step bound has been hit (§4.2).
	HasReachedMaxSchedulingSteps() bool
	// IsFair reports whether the strategy guarantees no enabled operation
	// is starved forever, if run long enough.
	IsFair() bool
	// ScheduledSteps returns the number of scheduling decisions made so
	// far in the current iteration.
	ScheduledSteps() int
	// Description returns a short human-readable description, including
	// the configured seed where applicable; used in bug reports (§7).
	Description() string
	// PrepareNextIteration resets per-iteration state and reports whether
	// another iteration should run (false ends the exploration loop).
	PrepareNextIteration() bool
}
