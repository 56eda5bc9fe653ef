package strategy

import (
	"fmt"

	"github.com/corewright/systest/scheduler"
)

// LivenessChecker is implemented by systest/monitor.Registry. It is
// defined here, rather than imported, so that strategy never depends on
// monitor (monitor has no reason to depend on strategy either; the
// dependency only runs one way, from the wrapper to the registry it is
// given at construction time).
type LivenessChecker interface {
	// CheckTemperatures runs one liveness-temperature check across every
	// registered monitor (§4.5) and returns, for the first monitor found
	// stuck above threshold, a message describing it and true. Returns
	// ("", false) if every monitor is within bounds.
	CheckTemperatures(threshold int) (string, bool)
}

// Liveness wraps another strategy (§4.5). Before every operation, boolean
// and integer decision (not NextDelay) it asks the LivenessChecker
// whether any monitor's hot-state temperature has exceeded the
// threshold; if so it calls the OnLivenessFailure hook. Either way it
// then delegates the decision to the inner strategy.
type Liveness struct {
	inner     scheduler.Strategy
	checker   LivenessChecker
	threshold int

	// OnLivenessFailure is invoked with the monitor's message the first
	// time a liveness violation is observed in this iteration.
	OnLivenessFailure func(message string)

	fired bool
}

// NewLiveness wraps inner with a liveness check against checker, using
// threshold as the liveness-temperature-threshold (§6). threshold is
// passed unchanged to checker.CheckTemperatures (monitor.Registry treats
// 0 as "check disabled"); the half-of-max-fair-steps configuration
// default is resolved by the caller before constructing Liveness.
func NewLiveness(inner scheduler.Strategy, checker LivenessChecker, threshold int) *Liveness {
	return &Liveness{inner: inner, checker: checker, threshold: threshold}
}

func (l *Liveness) check() {
	if l.fired || l.checker == nil {
		return
	}
	if msg, stuck := l.checker.CheckTemperatures(l.threshold); stuck {
		l.fired = true
		if l.OnLivenessFailure != nil {
			l.OnLivenessFailure(msg)
		}
	}
}

func (l *Liveness) NextOperation(ops []*scheduler.Operation, current *scheduler.Operation, isYielding bool) (*scheduler.Operation, bool) {
	l.check()
	return l.inner.NextOperation(ops, current, isYielding)
}

func (l *Liveness) NextBoolean(current *scheduler.Operation, maxValue int) (bool, bool) {
	l.check()
	return l.inner.NextBoolean(current, maxValue)
}

func (l *Liveness) NextInteger(current *scheduler.Operation, maxValue int) (int, bool) {
	l.check()
	return l.inner.NextInteger(current, maxValue)
}

func (l *Liveness) NextDelay(maxValue int) (int, bool) {
	return l.inner.NextDelay(maxValue)
}

func (l *Liveness) HasReachedMaxSchedulingSteps() bool {
	return l.inner.HasReachedMaxSchedulingSteps()
}

func (l *Liveness) IsFair() bool { return l.inner.IsFair() }

func (l *Liveness) ScheduledSteps() int { return l.inner.ScheduledSteps() }

func (l *Liveness) Description() string {
	return fmt.Sprintf("liveness[%s](threshold=%d)", l.inner.Description(), l.threshold)
}

func (l *Liveness) PrepareNextIteration() bool {
	l.fired = false
	return l.inner.PrepareNextIteration()
}
