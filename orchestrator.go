package grove

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Orchestrator defines the interface for the provider orchestrator.
// Use [New] to create an instance.
type Orchestrator interface {
	// Register adds a singleton provider. The provider identity is the
	// dynamic type of instance unless overridden with [As]. Registering the
	// same identity twice replaces the first instance. Register fails with
	// [ErrRegistrationAfterStart] once Start has been called.
	Register(instance any, opts ...RegisterOption) error

	// Start runs the two startup phases. Every [Initializer] is run
	// concurrently and Start blocks until all of them have returned. Then
	// every [Starter] is launched in its own goroutine and Start returns
	// without waiting for them.
	//
	// If an Init fails, the sibling init units are cancelled, no Starter is
	// launched and the error is returned. Only the first call does any work;
	// later calls return immediately with nil, or with the startup error if
	// the first call failed.
	Start(ctx context.Context) error

	// AwaitStart blocks until Start has completed. It returns nil once the
	// orchestrator is [Started], the startup error once it has [Failed], or
	// ctx.Err() if ctx is done first.
	AwaitStart(ctx context.Context) error

	// Get returns the instance registered under t. It works in every state.
	// Prefer the generic [Get] helper over calling this method directly.
	Get(t reflect.Type) (any, error)

	// State returns the current startup state.
	State() State

	// Providers lists the registered providers in registration order.
	Providers() []ProviderInfo

	// StateChanges returns the serial lifecycle fired with the new state on
	// every transition. Hooks run on the goroutine that called Start.
	StateChanges() *Lifecycle[State]

	// Shutdown cancels the context passed to every Starter, waits for them and
	// for any init unit left running by an aborted barrier to return, and
	// then closes every provider that implements [io.Closer] in
	// reverse registration order. The context controls the overall
	// deadline; if it expires, remaining closers are skipped and the
	// context error is included in the result.
	//
	// Shutdown returns [ErrNotStarted] before Start and
	// [ErrAlreadyShutdown] on repeat calls.
	Shutdown(ctx context.Context) error
}

type orchestrator struct {
	mu sync.Mutex

	state    State
	startErr error
	shutdown bool

	registry *registry
	waiters  *waiterQueue
	pending  atomic.Int64

	// startPhase is the concurrent lifecycle carrying every Starter.
	startPhase   *Lifecycle[struct{}]
	stateChanges *Lifecycle[State]

	// runCtx is handed to Starters and cancelled by Shutdown.
	runCtx    context.Context
	runCancel context.CancelFunc
	startDone chan struct{}
	// initDone is closed once every init unit has returned, including
	// units abandoned by an aborted barrier.
	initDone chan struct{}

	logger         *slog.Logger
	metrics        *Metrics
	tracerProvider trace.TracerProvider
	tracer         trace.Tracer
	initTimeout    time.Duration
}

// New creates an empty [Orchestrator] ready for registration.
func New(opts ...Option) Orchestrator {
	o := &orchestrator{
		registry:  newRegistry(),
		waiters:   newWaiterQueue(),
		startDone: make(chan struct{}),
		initDone:  make(chan struct{}),
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(o)
	}
	o.tracer = tracerFrom(o.tracerProvider)

	lopts := []LifecycleOption{
		WithLifecycleLogger(o.logger),
		WithLifecycleMetrics(o.metrics),
		WithLifecycleTracerProvider(o.tracerProvider),
	}
	o.startPhase = NewLifecycle[struct{}]("start", Concurrent, append(lopts, WithErrorHandler(o.startFailed))...)
	o.stateChanges = NewLifecycle[State]("state", Serial, lopts...)

	o.metrics.setState(NotStarted)
	return o
}

func (o *orchestrator) Register(instance any, opts ...RegisterOption) error {
	if isNil(instance) {
		return ErrNilProvider
	}

	dyn := reflect.TypeOf(instance)
	r := registration{id: dyn}
	for _, opt := range opts {
		opt(&r)
	}

	if !dyn.AssignableTo(r.id) {
		return fmt.Errorf("provider %s is not assignable to %s", dyn, r.id)
	}

	replaced, err := o.registry.register(r.id, instance)
	if err != nil {
		o.logger.Error("Provider registered after start", "provider", r.id.String(), "state", o.State().String())
		return err
	}

	if replaced {
		o.logger.Warn("Provider replaced", "provider", r.id.String())
	} else {
		o.logger.Debug("Provider registered", "provider", r.id.String())
	}
	o.metrics.setProviders(o.registry.len())
	return nil
}

func (o *orchestrator) Get(t reflect.Type) (any, error) {
	p, err := o.registry.lookup(t)
	if err != nil {
		return nil, err
	}
	return p.instance, nil
}

func (o *orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *orchestrator) Providers() []ProviderInfo {
	providers := o.registry.snapshot()
	out := make([]ProviderInfo, len(providers))
	for i, p := range providers {
		out[i] = p.info()
	}
	return out
}

func (o *orchestrator) StateChanges() *Lifecycle[State] {
	return o.stateChanges
}

// ---------------------------------------------------------------------------
// Start
// ---------------------------------------------------------------------------

func (o *orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.state != NotStarted {
		err := o.startErr
		o.mu.Unlock()
		return err
	}
	o.state = Initializing
	o.runCtx, o.runCancel = context.WithCancel(context.WithoutCancel(ctx))
	providers := o.registry.seal()
	o.mu.Unlock()

	defer close(o.startDone)

	ctx, span := o.tracer.Start(ctx, SpanStart, trace.WithAttributes(attribute.Int(AttrProviders, len(providers))))
	o.metrics.setState(Initializing)
	o.notifyState(ctx, Initializing)

	began := time.Now()
	if err := o.initPhase(ctx, providers); err != nil {
		o.logger.Error("Startup failed", "error", err, "duration", time.Since(began))
		o.finish(ctx, Failed, err)
		endSpan(span, err)
		return err
	}

	launched := o.launch(providers)
	o.logger.Info("Startup complete", "providers", len(providers), "starters", launched, "duration", time.Since(began))
	o.finish(ctx, Started, nil)
	endSpan(span, nil)
	return nil
}

// initPhase runs every Initializer concurrently and returns once all of them
// have returned. The first failure cancels the others.
func (o *orchestrator) initPhase(ctx context.Context, providers []*provider) error {
	var inits []*provider
	for _, p := range providers {
		if p.init != nil {
			inits = append(inits, p)
		}
	}

	o.pending.Store(int64(len(inits)))
	o.metrics.setPendingInit(int64(len(inits)))
	if len(inits) == 0 {
		close(o.initDone)
		o.logger.Debug("No init providers, skipping init barrier")
		return nil
	}

	if o.initTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, o.initTimeout, ErrInitTimeout)
		defer cancel()
	}

	// Shutdown aborts the barrier.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(o.runCtx, cancel)
	defer stop()

	tracker := newPendingSet(inits)
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range inits {
		g.Go(func() error {
			defer tracker.done(p)
			return o.runInit(gctx, p)
		})
	}

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
		close(o.initDone)
	}()

	// Units that ignore cancellation are abandoned rather than waited for.
	var err error
	select {
	case err = <-done:
		if err == nil {
			return nil
		}
	case <-gctx.Done():
	}

	if ctx.Err() != nil {
		pending := tracker.names()
		if errors.Is(context.Cause(ctx), ErrInitTimeout) {
			return fmt.Errorf("%w after %s: pending %v", ErrInitTimeout, o.initTimeout, pending)
		}
		return fmt.Errorf("init barrier aborted with pending %v: %w", pending, ctx.Err())
	}
	if err != nil {
		return err
	}
	if cause := context.Cause(gctx); errors.Is(cause, ErrInitFailed) {
		return cause
	}
	// gctx is also cancelled by Wait once every unit has returned.
	return <-done
}

func (o *orchestrator) runInit(ctx context.Context, p *provider) (err error) {
	id := p.id.String()
	ctx, span := startProviderSpan(ctx, o.tracer, SpanInit, id)
	began := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			err = fmt.Errorf("%w: %s: %w", ErrInitFailed, id, err)
		}

		d := time.Since(began)
		left := o.pending.Add(-1)
		o.metrics.observeInit(id, d, err)
		o.metrics.setPendingInit(left)
		endSpan(span, err)

		if err != nil {
			o.logger.Error("Provider init failed", "provider", id, "duration", d, "error", err)
			return
		}
		o.logger.Debug("Provider initialized", "provider", id, "duration", d, "pending", left)
	}()

	return p.init.Init(ctx)
}

// launch registers every Starter on the start phase lifecycle and fires it.
// It returns the number of starters launched.
func (o *orchestrator) launch(providers []*provider) int {
	for _, p := range providers {
		if p.starter == nil {
			continue
		}
		o.startPhase.Register(func(ctx context.Context, _ struct{}) error {
			return p.starter.Start(ctx)
		}, WithHookName(p.id.String()))
	}

	n := o.startPhase.Len()
	if n > 0 {
		_ = o.startPhase.Fire(o.runCtx, struct{}{})
	}
	return n
}

func (o *orchestrator) startFailed(_ context.Context, _, hook string, err error) {
	o.metrics.recordStartFailure(hook)
	o.logger.Error("Provider start failed", "provider", hook, "error", err)
}

// finish moves to a terminal state and releases every parked waiter.
func (o *orchestrator) finish(ctx context.Context, s State, err error) {
	o.mu.Lock()
	o.state = s
	o.startErr = err
	o.mu.Unlock()

	o.metrics.setState(s)
	n := o.waiters.release()
	o.metrics.addWaiters(-n)
	if n > 0 {
		o.logger.Debug("Released start waiters", "count", n, "state", s.String())
	}
	o.notifyState(ctx, s)
}

// notifyState fires the state lifecycle. A panicking hook is logged so the
// state machine still reaches a terminal state.
func (o *orchestrator) notifyState(ctx context.Context, s State) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("State change hook panicked", "state", s.String(), "panic", r)
		}
	}()
	if err := o.stateChanges.Fire(ctx, s); err != nil {
		o.logger.Warn("State change hook failed", "state", s.String(), "error", err)
	}
}

// ---------------------------------------------------------------------------
// AwaitStart
// ---------------------------------------------------------------------------

func (o *orchestrator) AwaitStart(ctx context.Context) error {
	o.mu.Lock()
	if o.state.Terminal() {
		err := o.startErr
		o.mu.Unlock()
		return err
	}
	ch := o.waiters.park()
	o.metrics.addWaiters(1)
	o.mu.Unlock()

	select {
	case <-ch:
	case <-ctx.Done():
		if o.waiters.remove(ch) {
			o.metrics.addWaiters(-1)
			return ctx.Err()
		}
		<-ch
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	return o.startErr
}

// ---------------------------------------------------------------------------
// Shutdown
// ---------------------------------------------------------------------------

func (o *orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	if o.state == NotStarted {
		o.mu.Unlock()
		return ErrNotStarted
	}
	if o.shutdown {
		o.mu.Unlock()
		return ErrAlreadyShutdown
	}
	o.shutdown = true
	cancel := o.runCancel
	o.mu.Unlock()

	ctx, span := o.tracer.Start(ctx, SpanShutdown)
	o.logger.Info("Shutting down")
	cancel()

	var errs []error
	if err := waitDone(ctx, o.startDone); err != nil {
		errs = append(errs, err)
	} else if err := waitDone(ctx, o.initDone); err != nil {
		errs = append(errs, err)
	} else if err := waitFunc(ctx, o.startPhase.Wait); err != nil {
		errs = append(errs, err)
	}

	providers := o.registry.snapshot()
	for i := len(providers) - 1; i >= 0; i-- {
		p := providers[i]
		if p.closer == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			if !slices.ContainsFunc(errs, func(e error) bool { return errors.Is(e, err) }) {
				errs = append(errs, err)
			}
			break
		}
		if err := p.closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", p.id, err))
		}
	}

	err := errors.Join(errs...)
	endSpan(span, err)
	return err
}

// ---------------------------------------------------------------------------
// Internal
// ---------------------------------------------------------------------------

// pendingSet tracks init units that have not returned, for diagnostics.
type pendingSet struct {
	mu   sync.Mutex
	left map[*provider]struct{}
}

func newPendingSet(providers []*provider) *pendingSet {
	s := &pendingSet{left: make(map[*provider]struct{}, len(providers))}
	for _, p := range providers {
		s.left[p] = struct{}{}
	}
	return s
}

func (s *pendingSet) done(p *provider) {
	s.mu.Lock()
	delete(s.left, p)
	s.mu.Unlock()
}

func (s *pendingSet) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.left))
	for p := range s.left {
		out = append(out, p.id.String())
	}
	sort.Strings(out)
	return out
}

func waitDone(ctx context.Context, ch <-chan struct{}) error {
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func waitFunc(ctx context.Context, fn func()) error {
	ch := make(chan struct{})
	go func() {
		fn()
		close(ch)
	}()
	return waitDone(ctx, ch)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
