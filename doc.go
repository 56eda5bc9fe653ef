// Package systest provides a systematic concurrency tester for
// async/actor-based programs: a cooperative, single-threaded operation
// scheduler, a pluggable exploration-strategy contract (random, DFS,
// PCT, probabilistic, portfolio), an actor/event-queue subsystem with
// defer/ignore/raise/receive semantics, specification monitors with
// hot/warm/cold liveness classification, and schedule-trace
// serialization for deterministic replay.
//
// # Architecture
//
// Runtime is the package's single entry point. It owns one
// scheduler.Scheduler per iteration, drives a configured number of
// iterations of an external program, and on the first reported bug
// stops and returns that bug, with the iteration's trace.Trace, in the
// Result. The scheduler, strategy, actorsys, monitor, and trace
// subpackages are usable independently of Runtime by an external
// instrumentation layer that wants finer control.
//
// Binary/IL rewriting, a CLI front end, configuration file parsing, and
// user-facing test/actor/monitor-definition APIs are out of scope: this
// package assumes an external rewriter already inserts calls at
// scheduling points (await, yield, delay, WhenAll/WhenAny, actor
// send/receive) via the Hooks exposed on Runtime.
//
// # Concurrency model
//
// Exactly one operation's goroutine ever runs "live" user code at a
// time; every other registered operation is parked in a
// scheduler.SyncObject wait. Scheduling points call
// Scheduler.ScheduleNext, which hands the virtual CPU to the next
// operation the active strategy selects. This lets actorsys reuse a
// single long-lived goroutine per actor (parked via BlockOnResource
// rather than spawned fresh per event) and lets EventQueue skip its own
// locking entirely — see the actorsys.EventQueue doc for the reasoning.
//
// # Usage
//
//	rt, err := systest.New(
//	    systest.WithStrategy("random"),
//	    systest.WithSeed(42),
//	    systest.WithIterations(100),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := rt.Run(context.Background(), program)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if result.Bug != nil {
//	    log.Fatal(result.Bug)
//	}
//
// # Error Types
//
// The package distinguishes four error kinds (§7 of the governing
// design document):
//   - [ErrControlledTerminate]: the cooperative-cancellation signal
//     every scheduling point may observe after an iteration detaches.
//   - [UncontrolledTaskError]: a scheduling point reached by an
//     operation never registered with the scheduler.
//   - [AssertionFailureError]: a safety violation — user assert, monitor
//     assert, deadlock, or unhandled exception.
//   - [LivenessFailureError]: a monitor's hot-state temperature exceeded
//     its configured threshold.
//
// All error types implement the standard [error] interface, support
// [errors.Unwrap], and are matchable via [errors.Is]/[errors.As].
package systest
