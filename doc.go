// Package grove bootstraps applications built from singleton providers.
//
// Providers are registered with an [Orchestrator] at the composition root,
// before the host starts. [Orchestrator.Start] then runs two phases: every
// provider implementing [Initializer] is initialised concurrently behind a
// barrier, and once all of them have returned every provider implementing
// [Starter] is launched in the background. Other code blocks on
// [Orchestrator.AwaitStart] until the barrier has closed.
//
// # Quick Start
//
//	o := grove.New()
//	o.Register(NewConfigStore())
//	o.Register(NewMatchmaker())
//
//	if err := o.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//
//	mm, err := grove.Get[*Matchmaker](o)
//
// # Failures
//
// The first Init that fails cancels the context of its siblings, the start
// phase is skipped and Start returns an error wrapping [ErrInitFailed].
// [WithInitTimeout] bounds the barrier so that an Init that never returns
// surfaces as [ErrInitTimeout] instead of a silent hang.
//
// # Lifecycles
//
// [Lifecycle] is the fan-out primitive the start phase is built on. It is
// exported for any cross-cutting hook, such as a per-tick callback:
//
//	tick := grove.NewLifecycle[time.Duration]("tick", grove.Concurrent)
//	grove.Bind(o, tick, (*Matchmaker).OnTick)
//	tick.Fire(ctx, dt)
//
// A [Serial] lifecycle runs hooks in registration order and stops at the
// first error; a [Concurrent] lifecycle runs each hook in its own goroutine
// and isolates failures.
package grove
