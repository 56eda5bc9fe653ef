package systest

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corewright/systest/actorsys"
	"github.com/corewright/systest/monitor"
	"github.com/corewright/systest/scheduler"
)

// Scenario A (§8): a racy shared counter, exercised through two
// goroutine-driven tasks calling the §6 hooks directly (standing in for
// what an external rewriter would insert at an await point), detected by
// the random strategy within a handful of iterations.
func TestRun_ScenarioA_RaceOnSharedCounterIsCaught(t *testing.T) {
	rt, err := New(
		WithStrategy("random"),
		WithSeed(7),
		WithIterations(50),
		WithMaxUnfairSteps(200),
		WithMaxFairSteps(200),
	)
	require.NoError(t, err)

	program := func(rt *Runtime) error {
		counter := 0
		var wg sync.WaitGroup
		wg.Add(2)
		run := func() {
			defer wg.Done()
			op, err := rt.OnTaskStart("writer")
			if err != nil {
				return
			}
			local := counter
			if err := rt.OnAwaitContinuation(op); err != nil {
				_ = rt.OnTaskCompleted(op)
				return
			}
			counter = local + 1
			_ = rt.OnTaskCompleted(op)
		}
		go run()
		go run()
		wg.Wait()
		rt.Assert(counter == 2, "lost update: counter should be 2")
		return nil
	}

	res, err := rt.Run(context.Background(), program)
	require.NoError(t, err)
	require.NotNil(t, res.Bug)
	var assertErr *AssertionFailureError
	require.ErrorAs(t, res.Bug, &assertErr)
	assert.Contains(t, assertErr.Message, "lost update")
	assert.NotNil(t, res.Trace)
}

// Scenario B (§8): two actors each blocked forever on Receive for an
// event type nobody ever sends, with no other enabled operation —
// reported as a deadlock once every live operation is blocked.
//
// An actor's initial state's Entry never runs on construction (only
// GotoState/PushState/PopState run Entry), so each actor bootstraps its
// own blocking Receive from a handler for an explicit "Start" event
// rather than from Idle's Entry. Actor.Spawn does not itself synchronize
// with the scheduler registering its operation as Enabled before
// returning, so the test waits on each via Scheduler.WaitOperationStart
// before sending anything, closing the same race a rewritten caller
// would otherwise need to avoid by never racing a driver's own
// completion against a freshly spawned actor's first scheduling point.
func TestRun_ScenarioB_MutualReceiveDeadlockIsDetected(t *testing.T) {
	rt, err := New(
		WithStrategy("dfs"),
		WithMaxUnfairSteps(100),
		WithMaxFairSteps(100),
		WithDeadlockTimeoutMS(50),
	)
	require.NoError(t, err)

	program := func(rt *Runtime) error {
		// Register the driving task before spawning either actor, for the
		// same reason Scenario D does: the first operation registered in
		// an empty map becomes the scheduled one, so an actor spawned
		// first could observe a false single-operation deadlock on its
		// own initial (empty-queue) scheduling point.
		op, err := rt.OnTaskStart("sender")
		if err != nil {
			return err
		}

		waiter := func(name, waitFor string) *actorsys.Actor {
			a := rt.NewActor(name, "Idle").
				AddState(&actorsys.State{
					Name: "Idle",
					Handlers: map[string]func(*actorsys.Actor, actorsys.QueuedEvent){
						"Start": func(a *actorsys.Actor, _ actorsys.QueuedEvent) {
							_, _ = a.Receive([]string{waitFor}, nil)
						},
					},
				})
			a.Spawn()
			rt.Scheduler().WaitOperationStart(a.Operation())
			return a
		}
		a := waiter("Waiter1", "NeverSent")
		b := waiter("Waiter2", "AlsoNeverSent")

		if _, err := a.Send(op, actorsys.QueuedEvent{Type: "Start", AssertLimit: -1}); err != nil {
			return err
		}
		if _, err := b.Send(op, actorsys.QueuedEvent{Type: "Start", AssertLimit: -1}); err != nil {
			return err
		}
		return rt.OnTaskCompleted(op)
	}

	res, err := rt.Run(context.Background(), program)
	require.NoError(t, err)
	require.NotNil(t, res.Bug)
	var assertErr *AssertionFailureError
	require.ErrorAs(t, res.Bug, &assertErr)
	assert.Contains(t, assertErr.Message, "deadlock")
}

// Scenario C (§8): a monitor stuck in a hot state past the configured
// liveness-temperature threshold is reported as a liveness failure, not
// a safety assertion.
func TestRun_ScenarioC_MonitorStuckHotTriggersLivenessFailure(t *testing.T) {
	rt, err := New(
		WithStrategy("random"),
		WithSeed(1),
		WithMaxUnfairSteps(2000),
		WithMaxFairSteps(2000),
		WithLivenessTemperatureThreshold(50),
	)
	require.NoError(t, err)

	program := func(rt *Runtime) error {
		fsm := monitor.NewFSM("StuckRequest", "Pending").
			AddState("Pending", monitor.Hot).
			AddState("Done", monitor.Cold).
			AddTransition("Pending", "complete", "Done")
		rt.RegisterMonitor(fsm)

		op, err := rt.OnTaskStart("spinner")
		if err != nil {
			return err
		}
		for i := 0; i < 1000; i++ {
			if err := rt.OnYield(op); err != nil {
				return err
			}
		}
		return rt.OnTaskCompleted(op)
	}

	res, err := rt.Run(context.Background(), program)
	require.NoError(t, err)
	require.NotNil(t, res.Bug)
	var liveErr *LivenessFailureError
	require.ErrorAs(t, res.Bug, &liveErr)
	assert.Contains(t, liveErr.Message, "StuckRequest")
}

// Scenario D (§8): defer in S1, ignore in S2, ending with an explicit
// halt, exercising dispatch through Send/the scheduler rather than
// directly against the queue, confirming the final handled sequence and
// queue depth.
//
// DFS always prefers the lowest-id enabled operation (§4.4), and the
// driving "sender" task is registered before the actor precisely to
// avoid the registration race Scenario B's comment describes; the
// consequence is that sender — not the actor — keeps winning every
// scheduling decision for as long as it stays enabled, so none of the
// three sends below are actually processed until OnTaskCompleted marks
// sender terminal and removes it from contention. The halt must be sent
// before sender completes, so that the actor itself reaches a terminal
// state once it runs; otherwise the iteration would end with it parked
// forever on an empty queue — indistinguishable from a genuine deadlock
// to the scheduler.
func TestRun_ScenarioD_DeferIgnoreThenHalt(t *testing.T) {
	rt, err := New(WithStrategy("dfs"), WithMaxUnfairSteps(100), WithMaxFairSteps(100))
	require.NoError(t, err)

	var handled []string
	var finalQueueLen int
	program := func(rt *Runtime) error {
		op, err := rt.OnTaskStart("sender")
		if err != nil {
			return err
		}

		a := rt.NewActor("Scenario", "S1").
			AddState(&actorsys.State{
				Name:     "S1",
				Deferred: map[string]bool{"X": true},
				Handlers: map[string]func(*actorsys.Actor, actorsys.QueuedEvent){
					"Y": func(a *actorsys.Actor, ev actorsys.QueuedEvent) {
						handled = append(handled, "Y-in-S1")
						a.GotoState("S2")
					},
				},
			}).
			AddState(&actorsys.State{Name: "S2", Ignored: map[string]bool{"X": true}})
		a.Spawn()
		rt.Scheduler().WaitOperationStart(a.Operation())

		if _, err := a.Send(op, actorsys.QueuedEvent{Type: "X", AssertLimit: -1}); err != nil {
			return err
		}
		if _, err := a.Send(op, actorsys.QueuedEvent{Type: "Y", AssertLimit: -1}); err != nil {
			return err
		}
		if _, err := a.Send(op, actorsys.QueuedEvent{Type: actorsys.HaltEventType, AssertLimit: -1}); err != nil {
			return err
		}

		_ = rt.OnTaskCompleted(op)
		finalQueueLen = a.QueueLen()
		return nil
	}

	res, err := rt.Run(context.Background(), program)
	require.NoError(t, err)
	require.Nil(t, res.Bug)
	assert.Equal(t, []string{"Y-in-S1"}, handled)
	assert.Equal(t, 0, finalQueueLen)
}

// Scenario E (§8): replaying a captured schedule trace reproduces the
// exact same sequence of scheduling decisions, confirmed by comparing
// the serialized trace of the original run against the serialized trace
// of the replay.
func TestRun_ScenarioE_ReplayReproducesOriginalTrace(t *testing.T) {
	rt, err := New(
		WithStrategy("random"),
		WithSeed(99),
		WithMaxUnfairSteps(50),
		WithMaxFairSteps(50),
	)
	require.NoError(t, err)

	// Both operations are registered from this single (root) goroutine,
	// in program order, before either body goroutine starts: that keeps
	// operation-id assignment — and so every Replay id lookup — free of
	// the real goroutine-scheduling race that two independently
	// self-registering goroutines (each calling NextOperationID/Register
	// on its own) would otherwise introduce between the original run and
	// its replay.
	program := func(rt *Runtime) error {
		sched := rt.Scheduler()
		left := scheduler.NewOperation(sched.NextOperationID(), "left")
		sched.Register(left)
		right := scheduler.NewOperation(sched.NextOperationID(), "right")
		sched.Register(right)

		var wg sync.WaitGroup
		wg.Add(2)
		run := func(op *scheduler.Operation) {
			defer wg.Done()
			if err := sched.Start(op); err != nil {
				return
			}
			for i := 0; i < 3; i++ {
				if err := rt.OnYield(op); err != nil {
					return
				}
			}
			_ = rt.OnTaskCompleted(op)
		}
		go run(left)
		go run(right)
		wg.Wait()
		return nil
	}

	res, err := rt.Run(context.Background(), program)
	require.NoError(t, err)
	require.Nil(t, res.Bug)
	require.NotNil(t, res.Trace)

	var original bytes.Buffer
	require.NoError(t, res.Trace.Serialize(&original))

	replayed, err := rt.RunReplay(context.Background(), program, res.Trace)
	require.NoError(t, err)
	require.NotNil(t, replayed.Trace)

	var replay bytes.Buffer
	require.NoError(t, replayed.Trace.Serialize(&replay))

	assert.Equal(t, original.String(), replay.String())
}

// Scenario F (§8): a portfolio run fans the same program out over
// several strategies in parallel and stops as soon as one finds a bug.
// A single iteration per member cannot guarantee the race below
// actually manifests under every member's chosen interleaving, so this
// only asserts the structural contract: at most one member reports a
// bug, and every member that ran produced a label.
func TestRun_ScenarioF_PortfolioStopsOnFirstBug(t *testing.T) {
	rt, err := New(
		WithStrategy("portfolio"),
		WithSeed(3),
		WithMaxUnfairSteps(200),
		WithMaxFairSteps(200),
	)
	require.NoError(t, err)

	program := func(rt *Runtime) error {
		counter := 0
		var wg sync.WaitGroup
		wg.Add(2)
		run := func() {
			defer wg.Done()
			op, err := rt.OnTaskStart("writer")
			if err != nil {
				return
			}
			local := counter
			if err := rt.OnAwaitContinuation(op); err != nil {
				_ = rt.OnTaskCompleted(op)
				return
			}
			counter = local + 1
			_ = rt.OnTaskCompleted(op)
		}
		go run()
		go run()
		wg.Wait()
		rt.Assert(counter == 2, "lost update: counter should be 2")
		return nil
	}

	res, err := rt.Run(context.Background(), program)
	require.NoError(t, err)
	require.NotEmpty(t, res.Portfolio)

	bugsFound := 0
	for _, r := range res.Portfolio {
		if r.Bug != "" {
			bugsFound++
		}
		assert.NotEmpty(t, r.Label)
	}
	assert.LessOrEqual(t, bugsFound, 1)
	if bugsFound == 1 {
		require.NotNil(t, res.Bug)
	}
}

// TestRun_UnconfiguredLivenessThresholdNeverFires confirms a monitor
// left Hot for a modest number of steps does not trip a liveness
// failure once resolveOptions' half-of-max-fair-steps default is large
// relative to the loop bound, guarding against a too-sensitive default.
func TestRun_UnconfiguredLivenessThresholdNeverFires(t *testing.T) {
	rt, err := New(
		WithStrategy("random"),
		WithSeed(5),
		WithMaxUnfairSteps(40),
		WithMaxFairSteps(40),
	)
	require.NoError(t, err)

	program := func(rt *Runtime) error {
		fsm := monitor.NewFSM("QuickRequest", "Pending").
			AddState("Pending", monitor.Hot).
			AddState("Done", monitor.Cold).
			AddTransition("Pending", "complete", "Done")
		rt.RegisterMonitor(fsm)

		op, err := rt.OnTaskStart("worker")
		if err != nil {
			return err
		}
		for i := 0; i < 3; i++ {
			if err := rt.OnYield(op); err != nil {
				return err
			}
		}
		rt.DispatchMonitorEvent("QuickRequest", "complete", nil)
		return rt.OnTaskCompleted(op)
	}

	res, err := rt.Run(context.Background(), program)
	require.NoError(t, err)
	assert.Nil(t, res.Bug)
}

// TestRun_ContextCancellationStopsBeforeFirstIteration confirms Run
// honors an already-canceled context without invoking program at all.
func TestRun_ContextCancellationStopsBeforeFirstIteration(t *testing.T) {
	rt, err := New(WithIterations(10))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, err = rt.Run(ctx, func(rt *Runtime) error { called = true; return nil })
	require.Error(t, err)
	assert.False(t, called)
}

// TestRun_DifferentIterationsExploreDifferentSeeds confirms each
// iteration of a multi-iteration Run call advances the configured seed,
// rather than repeating the same exploration.
func TestRun_DifferentIterationsExploreDifferentSeeds(t *testing.T) {
	rt, err := New(
		WithStrategy("random"),
		WithSeed(1),
		WithIterations(3),
		WithMaxUnfairSteps(20),
		WithMaxFairSteps(20),
	)
	require.NoError(t, err)

	var seenFirstOp []uint64
	var draws []int
	program := func(rt *Runtime) error {
		op, err := rt.OnTaskStart("solo")
		if err != nil {
			return err
		}
		seenFirstOp = append(seenFirstOp, op.ID)
		// The first draw of each iteration's freshly seeded strategy.
		draws = append(draws, rt.Scheduler().GetNextInt(op, 1<<30))
		return rt.OnTaskCompleted(op)
	}

	res, err := rt.Run(context.Background(), program)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), res.Iterations)
	assert.Len(t, seenFirstOp, 3)
	require.Len(t, draws, 3)
	assert.NotEqual(t, draws[0], draws[1])
	assert.NotEqual(t, draws[1], draws[2])
}
