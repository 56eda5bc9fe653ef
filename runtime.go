// runtime.go - the package's single entry point: Runtime orchestrates
// iterations of an external program against a fresh Scheduler/Strategy/
// Registry/Trace per iteration, and exposes the scheduling-point hooks
// an external rewriter calls into (§6).

package systest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/corewright/systest/actorsys"
	"github.com/corewright/systest/monitor"
	"github.com/corewright/systest/scheduler"
	"github.com/corewright/systest/strategy"
	"github.com/corewright/systest/trace"
)

// Result is the outcome of a Run call: how many iterations actually ran,
// and the first bug found, if any (§7, §8).
type Result struct {
	// Iterations is the number of iterations actually executed before
	// Run returned.
	Iterations uint32
	// Bug is nil on a clean run, or the first *AssertionFailureError or
	// *LivenessFailureError recorded.
	Bug error
	// Trace is the schedule trace captured for the iteration that found
	// Bug, or the trace of the final iteration on a clean run.
	Trace *trace.Trace
	// Portfolio carries one entry per member when Config.Strategy is
	// "portfolio"; nil otherwise.
	Portfolio []strategy.Result
	// ExitCode mirrors the §6 "exit codes" convention an external
	// harness can map directly onto a process exit status: 0 for a
	// clean run, 1 for a reported bug.
	ExitCode int
}

// Runtime is the package's single entry point (see doc.go). One Runtime
// instance drives Config.Iterations iterations of a caller-supplied
// program, each against its own Scheduler, Strategy, monitor.Registry,
// and trace.Trace.
type Runtime struct {
	cfg    *Config
	logger Logger

	// Per-iteration state, valid only while program is running inside
	// Run. Exposed to hook methods and to the program via the accessors
	// below.
	sched    *scheduler.Scheduler
	monitors *monitor.Registry
	trace    *trace.Trace
	iterID   uuid.UUID
}

// New constructs a Runtime from the given options, applying the §6
// defaults for anything unset.
func New(opts ...Option) (*Runtime, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	return &Runtime{cfg: cfg, logger: getGlobalLogger()}, nil
}

// Config returns a copy of the Runtime's resolved configuration.
func (rt *Runtime) Config() Config { return *rt.cfg }

// Scheduler returns the Scheduler driving the current iteration. Only
// meaningful while called from within program, during Run.
func (rt *Runtime) Scheduler() *scheduler.Scheduler { return rt.sched }

// Monitors returns the monitor.Registry backing the current iteration.
func (rt *Runtime) Monitors() *monitor.Registry { return rt.monitors }

// Trace returns the trace.Trace being recorded for the current iteration.
func (rt *Runtime) Trace() *trace.Trace { return rt.trace }

// Assert funnels a user assertion (§7 kind 3, "user asserts") through the
// scheduler's single bug-reporting path.
func (rt *Runtime) Assert(ok bool, message string) {
	if ok {
		return
	}
	rt.sched.NotifyAssertionFailure(message)
}

// RegisterMonitor registers m with the iteration's monitor.Registry (§4.8).
func (rt *Runtime) RegisterMonitor(m monitor.Monitor) bool {
	return rt.monitors.Register(m)
}

// DispatchMonitorEvent raises event against the monitor named typeName
// (§4.8), logging the transition per the Logger surface (§6).
func (rt *Runtime) DispatchMonitorEvent(typeName, event string, payload any) {
	rt.monitors.Dispatch(typeName, event, payload)
	LogMonitor(rt.logger, rt.iterID.String(), "monitor event dispatched", map[string]interface{}{
		"monitor": typeName,
		"event":   event,
	})
}

// NewActor constructs an actor driven by the current iteration's
// Scheduler (a thin convenience wrapper over actorsys.NewActor that wires
// the actor's assertion channel into rt.Assert). It does not spawn the
// actor; the caller calls Spawn.
func (rt *Runtime) NewActor(name, initial string) *actorsys.Actor {
	a := actorsys.NewActor(rt.sched, name, initial)
	a.Assert = rt.Assert
	return a
}

// Run drives cfg.Iterations iterations of program, stopping at the
// first reported bug (§7, §8). If Config.Strategy is "portfolio", Run
// instead runs one iteration per member of a fixed set of strategies in
// parallel via strategy.Portfolio (§4.4, §8 Scenario F). Member runs do
// not observe the portfolio's cancellation: every member runs its
// iteration to the end, more than one member can report a bug, and Run
// returns once all members have finished, with the first captured bug.
func (rt *Runtime) Run(ctx context.Context, program func(rt *Runtime) error) (*Result, error) {
	if rt.cfg.Strategy == "portfolio" {
		return rt.runPortfolio(ctx, program)
	}

	var lastTrace *trace.Trace
	for i := uint32(0); i < rt.cfg.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		iterCfg := *rt.cfg
		iterCfg.Seed = rt.cfg.Seed + uint64(i)
		strat, err := iterCfg.BuildStrategy()
		if err != nil {
			return nil, err
		}
		bug, tr, runErr := rt.runIterationWithStrategy(program, strat, rt.cfg.Strategy, iterCfg.Seed)
		lastTrace = tr
		if runErr != nil {
			return nil, runErr
		}
		if bug != nil {
			return &Result{Iterations: i + 1, Bug: bug, Trace: tr, ExitCode: 1}, nil
		}
	}
	return &Result{Iterations: rt.cfg.Iterations, Trace: lastTrace}, nil
}

// RunReplay drives a single iteration of program against the recorded
// schedule trace tr, reproducing its exact scheduling decisions via
// trace.Replay instead of any configured exploration strategy (§6
// "replay mode", §8 Scenario E).
func (rt *Runtime) RunReplay(ctx context.Context, program func(rt *Runtime) error, tr *trace.Trace) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	replay := trace.NewReplay(tr)
	bug, newTrace, err := rt.runIterationWithStrategy(program, replay, "replay", rt.cfg.Seed)
	if err != nil {
		return nil, err
	}
	res := &Result{Iterations: 1, Trace: newTrace}
	if bug != nil {
		res.Bug = bug
		res.ExitCode = 1
	}
	return res, nil
}

// maxSteps returns the larger of the unfair/fair step bounds, the single
// bound every strategy constructor expects.
func (cfg *Config) maxSteps() int {
	if cfg.MaxFairSteps > cfg.MaxUnfairSteps {
		return cfg.MaxFairSteps
	}
	return cfg.MaxUnfairSteps
}

// runPortfolio assembles the default portfolio (§4.4): one random, one
// PCT, one fair-PCT, and one DFS strategy, each seeded from cfg.Seed with
// a distinct per-member offset so members explore independently.
func (rt *Runtime) runPortfolio(ctx context.Context, program func(rt *Runtime) error) (*Result, error) {
	steps := rt.cfg.maxSteps()
	members := []strategy.PortfolioMember{
		{Label: "random", Strategy: strategy.NewRandom(rt.cfg.Seed, steps)},
		{Label: "pct", Strategy: strategy.NewPCT(rt.cfg.Seed+1, 3, steps)},
		{Label: "fair-pct", Strategy: strategy.NewFairPCT(rt.cfg.Seed+2, 3, steps)},
		{Label: "dfs", Strategy: strategy.NewDFS(steps)},
	}
	seeds := map[string]uint64{"random": rt.cfg.Seed, "pct": rt.cfg.Seed + 1, "fair-pct": rt.cfg.Seed + 2, "dfs": rt.cfg.Seed}
	pf := &strategy.Portfolio{Members: members}

	var mu sync.Mutex
	var capturedBug error
	var capturedTrace *trace.Trace

	results, err := pf.Run(ctx, func(_ context.Context, member strategy.PortfolioMember) (string, error) {
		strat, ok := member.Strategy.(scheduler.Strategy)
		if !ok {
			return "", fmt.Errorf("systest: portfolio member %q strategy does not implement scheduler.Strategy", member.Label)
		}
		child := &Runtime{cfg: rt.cfg, logger: rt.logger}
		memberBug, tr, runErr := child.runIterationWithStrategy(program, strat, member.Label, seeds[member.Label])
		if runErr != nil {
			return "", runErr
		}
		if memberBug != nil {
			mu.Lock()
			if capturedBug == nil {
				capturedBug = memberBug
				capturedTrace = tr
			}
			mu.Unlock()
			return memberBug.Error(), nil
		}
		return "", nil
	})
	if err != nil {
		return nil, err
	}

	res := &Result{Iterations: 1, Trace: capturedTrace, Portfolio: results}
	if capturedBug != nil {
		res.Bug = capturedBug
		res.ExitCode = 1
	}
	return res, nil
}

// runIterationWithStrategy runs one iteration of program against a fresh
// Scheduler/monitor.Registry/trace.Trace driven by strat, wiring every
// §7 failure path into the exported error types.
func (rt *Runtime) runIterationWithStrategy(program func(rt *Runtime) error, strat scheduler.Strategy, label string, seed uint64) (bug error, tr *trace.Trace, runErr error) {
	iterID := uuid.New()
	tr = trace.New()
	monitors := monitor.NewRegistry()

	var liveness *strategy.Liveness
	activeStrategy := strat
	if rt.cfg.LivenessTemperatureThreshold > 0 {
		liveness = strategy.NewLiveness(strat, monitors, rt.cfg.LivenessTemperatureThreshold)
		activeStrategy = liveness
	}

	sched := scheduler.New(activeStrategy, scheduler.Config{
		MaxUnfairSteps:           rt.cfg.MaxUnfairSteps,
		MaxFairSteps:             rt.cfg.MaxFairSteps,
		DepthBoundHitAsBug:       rt.cfg.DepthBoundHitAsBug,
		ProgramStateHashing:      rt.cfg.ProgramStateHashing,
		RelaxedControlledTesting: rt.cfg.RelaxedControlledTesting,
	}, tr)

	var bugErr error
	sched.OnAssertionFailure = func(r *scheduler.BugReport) {
		if r.Liveness {
			bugErr = &LivenessFailureError{
				Message:  r.Message,
				Strategy: label,
				Seed:     int64(seed),
				Trace:    tr,
			}
			LogFailure(rt.logger, "monitor", iterID.String(), r.Message, bugErr)
			return
		}
		bugErr = &AssertionFailureError{
			Message:  r.Message,
			Strategy: label,
			Seed:     int64(seed),
			Trace:    tr,
		}
		LogFailure(rt.logger, "schedule", iterID.String(), r.Message, bugErr)
	}
	sched.OnUncontrolledTask = func(err error) {
		LogFailure(rt.logger, "schedule", iterID.String(), "uncontrolled task", err)
	}
	if liveness != nil {
		liveness.OnLivenessFailure = func(message string) { sched.NotifyLivenessFailure(message) }
	}
	monitors.OnAssert = func(message string) { sched.NotifyAssertionFailure(message) }

	rt.sched = sched
	rt.monitors = monitors
	rt.trace = tr
	rt.iterID = iterID

	LogSchedule(rt.logger, iterID.String(), 0, "iteration start", map[string]interface{}{
		"strategy": label,
		"seed":     seed,
	})

	err := rt.callProgram(program)
	if bugErr != nil {
		return bugErr, tr, nil
	}
	if err != nil && !errors.Is(err, scheduler.ErrExecutionCanceled) {
		return nil, tr, err
	}
	return nil, tr, nil
}

// callProgram runs program, converting a Go panic into the same
// assertion-failure funnel as any other unhandled user exception
// (§7 kind 3, "defer+ignore+raise ... unhandled exception").
func (rt *Runtime) callProgram(program func(rt *Runtime) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			rt.sched.NotifyAssertionFailure(fmt.Sprintf("unhandled exception: %v", p))
			err = fmt.Errorf("systest: recovered panic: %v", p)
		}
	}()
	return program(rt)
}

// wrapSchedErr turns a scheduler.ErrUncontrolledTask into the matching
// exported type (§7 kind 2); every other error (principally
// scheduler.ErrExecutionCanceled, i.e. ErrControlledTerminate) passes
// through unchanged, since callers are expected to let it propagate.
func wrapSchedErr(op *scheduler.Operation, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, scheduler.ErrUncontrolledTask) {
		return &UncontrolledTaskError{Cause: err, OperationID: op.ID}
	}
	return err
}

// --- Scheduling-point hooks (§6), called by an external rewriter ---

// OnTaskStart implements the "Task start" hook: register then start.
func (rt *Runtime) OnTaskStart(name string) (*scheduler.Operation, error) {
	op := scheduler.NewOperation(rt.sched.NextOperationID(), name)
	rt.sched.Register(op)
	LogSchedule(rt.logger, rt.iterID.String(), int64(op.ID), "task start", map[string]interface{}{"name": name})
	if err := rt.sched.Start(op); err != nil {
		return op, wrapSchedErr(op, err)
	}
	return op, nil
}

// OnTaskCompleted implements "Task completion": on_completed, then
// schedule_next.
func (rt *Runtime) OnTaskCompleted(op *scheduler.Operation) error {
	op.OnCompleted()
	LogSchedule(rt.logger, rt.iterID.String(), int64(op.ID), "task completed", nil)
	return wrapSchedErr(op, rt.sched.ScheduleNext(op, false))
}

// OnAwaitContinuation implements "Await continuation registration":
// schedule_action, the generic scheduling point crossed whenever op
// registers a continuation on an awaitable the scheduler does not itself
// model as a task dependency (e.g. an actor's own event-queue state).
func (rt *Runtime) OnAwaitContinuation(op *scheduler.Operation) error {
	return wrapSchedErr(op, rt.sched.ScheduleNext(op, false))
}

// OnYield implements "Yield": schedule_next(is_yielding=true).
func (rt *Runtime) OnYield(op *scheduler.Operation) error {
	return wrapSchedErr(op, rt.sched.ScheduleNext(op, true))
}

// OnDelay implements "Task.Delay": schedule_action with the delay flag,
// choosing a nondeterministic virtual-tick deadline via the active
// strategy rather than sleeping the calling goroutine.
func (rt *Runtime) OnDelay(op *scheduler.Operation, maxValue int) error {
	return wrapSchedErr(op, rt.sched.Delay(op, maxValue))
}

// OnWhenAll implements "Task.WhenAll": when_all_tasks_complete.
func (rt *Runtime) OnWhenAll(op *scheduler.Operation, tasks []scheduler.TaskHandle) error {
	op.BlockUntilTasksComplete(tasks, true)
	return wrapSchedErr(op, rt.sched.ScheduleNext(op, false))
}

// OnWhenAny implements "Task.WhenAny": when_any_task_completes.
func (rt *Runtime) OnWhenAny(op *scheduler.Operation, tasks []scheduler.TaskHandle) error {
	op.BlockUntilTasksComplete(tasks, false)
	return wrapSchedErr(op, rt.sched.ScheduleNext(op, false))
}

// OnWaitTaskCompletes implements "Task.Wait": wait_task_completes.
func (rt *Runtime) OnWaitTaskCompletes(op *scheduler.Operation, task scheduler.TaskHandle) error {
	op.TryBlockUntilTaskCompletes(task)
	return wrapSchedErr(op, rt.sched.ScheduleNext(op, false))
}
