package grove

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Mode selects how a [Lifecycle] invokes its hooks. It is fixed at
// construction.
type Mode int

const (
	// Serial invokes hooks one after another on the caller's goroutine, in
	// registration order. The first failing hook stops the fire.
	Serial Mode = iota

	// Concurrent invokes every hook in its own goroutine and returns without
	// waiting. Failures are isolated per hook.
	Concurrent
)

// String returns the human-readable name of the mode.
func (m Mode) String() string {
	switch m {
	case Serial:
		return "serial"
	case Concurrent:
		return "concurrent"
	default:
		return "unknown"
	}
}

// Callback is the function signature of a lifecycle hook.
type Callback[A any] func(ctx context.Context, arg A) error

// ErrorHandler receives failures of hooks fired by a [Concurrent] lifecycle.
type ErrorHandler func(ctx context.Context, lifecycle, hook string, err error)

// Hook is a single registration on a [Lifecycle]. Hooks are compared by
// identity: the pointer returned from [Lifecycle.Register] is the handle used
// to unregister it.
type Hook[A any] struct {
	id       string
	name     string
	metadata map[string]string
	fn       Callback[A]
}

// ID returns the unique id assigned at registration.
func (h *Hook[A]) ID() string { return h.id }

// Name returns the hook name, or its id when no name was given.
func (h *Hook[A]) Name() string { return h.name }

// Metadata returns a copy of the hook metadata.
func (h *Hook[A]) Metadata() map[string]string {
	return maps.Clone(h.metadata)
}

type hookConfig struct {
	name     string
	metadata map[string]string
}

// HookOption configures a hook during registration.
type HookOption func(*hookConfig)

// WithHookName sets the name used for the hook in logs, metrics and spans.
func WithHookName(name string) HookOption {
	return func(c *hookConfig) {
		c.name = name
	}
}

// WithHookMetadata attaches a key/value pair to the hook.
func WithHookMetadata(key, value string) HookOption {
	return func(c *hookConfig) {
		if c.metadata == nil {
			c.metadata = make(map[string]string)
		}
		c.metadata[key] = value
	}
}

type lifecycleConfig struct {
	logger       *slog.Logger
	metrics      *Metrics
	tracer       trace.Tracer
	errorHandler ErrorHandler
}

// LifecycleOption configures a [Lifecycle].
type LifecycleOption func(*lifecycleConfig)

// WithLifecycleLogger sets the logger. The default is [slog.Default].
func WithLifecycleLogger(l *slog.Logger) LifecycleOption {
	return func(c *lifecycleConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithLifecycleMetrics records fires and hook failures on m.
func WithLifecycleMetrics(m *Metrics) LifecycleOption {
	return func(c *lifecycleConfig) {
		c.metrics = m
	}
}

// WithLifecycleTracerProvider sets the tracer provider used for hook spans.
// The default is the global otel provider.
func WithLifecycleTracerProvider(tp trace.TracerProvider) LifecycleOption {
	return func(c *lifecycleConfig) {
		c.tracer = tracerFrom(tp)
	}
}

// WithErrorHandler replaces the default handling of concurrent hook failures,
// which logs them at error level.
func WithErrorHandler(h ErrorHandler) LifecycleOption {
	return func(c *lifecycleConfig) {
		c.errorHandler = h
	}
}

type observer[A any] struct {
	id int
	fn func(*Hook[A])
}

// Lifecycle is an ordered list of hooks fired together. It is safe for
// concurrent use. Hooks and observers are always called without internal
// locks held, so they may register or unregister hooks themselves.
type Lifecycle[A any] struct {
	name string
	mode Mode
	cfg  lifecycleConfig

	mu             sync.Mutex
	hooks          []*Hook[A]
	onRegistered   []observer[A]
	onUnregistered []observer[A]
	nextObserver   int

	running inflight
}

// inflight counts running concurrent invocations. Unlike sync.WaitGroup it
// allows an add from zero while another goroutine is waiting.
type inflight struct {
	mu   sync.Mutex
	cond *sync.Cond
	n    int
}

func (f *inflight) add(n int) {
	f.mu.Lock()
	f.n += n
	f.mu.Unlock()
}

func (f *inflight) done() {
	f.mu.Lock()
	f.n--
	if f.n == 0 && f.cond != nil {
		f.cond.Broadcast()
	}
	f.mu.Unlock()
}

func (f *inflight) wait() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cond == nil {
		f.cond = sync.NewCond(&f.mu)
	}
	for f.n > 0 {
		f.cond.Wait()
	}
}

// NewLifecycle creates an empty lifecycle. The name labels logs, metrics and
// spans.
func NewLifecycle[A any](name string, mode Mode, opts ...LifecycleOption) *Lifecycle[A] {
	cfg := lifecycleConfig{
		logger: slog.Default(),
		tracer: defaultTracer(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Lifecycle[A]{
		name: name,
		mode: mode,
		cfg:  cfg,
	}
}

// Name returns the lifecycle name.
func (l *Lifecycle[A]) Name() string { return l.name }

// Mode returns the firing mode.
func (l *Lifecycle[A]) Mode() Mode { return l.mode }

// Register appends fn and notifies every OnRegistered observer with the new
// hook before returning.
func (l *Lifecycle[A]) Register(fn Callback[A], opts ...HookOption) *Hook[A] {
	var cfg hookConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	h := &Hook[A]{
		id:       uuid.NewString(),
		name:     cfg.name,
		metadata: cfg.metadata,
		fn:       fn,
	}
	if h.name == "" {
		h.name = h.id
	}

	l.mu.Lock()
	l.hooks = append(l.hooks, h)
	observers := cloneObservers(l.onRegistered)
	l.mu.Unlock()

	l.cfg.logger.Debug("Lifecycle hook registered", "lifecycle", l.name, "hook", h.name)
	for _, o := range observers {
		o.fn(h)
	}
	return h
}

// Unregister removes h. It reports whether h was registered; OnUnregistered
// observers are only notified when it was. Invocations already started by a
// concurrent Fire are not interrupted.
func (l *Lifecycle[A]) Unregister(h *Hook[A]) bool {
	l.mu.Lock()
	idx := -1
	for i, cur := range l.hooks {
		if cur == h {
			idx = i
			break
		}
	}
	if idx < 0 {
		l.mu.Unlock()
		return false
	}
	l.hooks = append(l.hooks[:idx:idx], l.hooks[idx+1:]...)
	observers := cloneObservers(l.onUnregistered)
	l.mu.Unlock()

	l.cfg.logger.Debug("Lifecycle hook unregistered", "lifecycle", l.name, "hook", h.name)
	for _, o := range observers {
		o.fn(h)
	}
	return true
}

// UnregisterAll notifies OnUnregistered observers for every hook, in
// registration order, then clears the list.
func (l *Lifecycle[A]) UnregisterAll() {
	l.mu.Lock()
	hooks := l.hooks
	l.hooks = nil
	observers := cloneObservers(l.onUnregistered)
	l.mu.Unlock()

	for _, h := range hooks {
		for _, o := range observers {
			o.fn(h)
		}
	}
}

// OnRegistered adds an observer called synchronously from Register. The
// returned function removes it.
func (l *Lifecycle[A]) OnRegistered(fn func(*Hook[A])) (unsubscribe func()) {
	return l.observe(&l.onRegistered, fn)
}

// OnUnregistered adds an observer called synchronously from Unregister and
// UnregisterAll. The returned function removes it.
func (l *Lifecycle[A]) OnUnregistered(fn func(*Hook[A])) (unsubscribe func()) {
	return l.observe(&l.onUnregistered, fn)
}

func (l *Lifecycle[A]) observe(list *[]observer[A], fn func(*Hook[A])) func() {
	l.mu.Lock()
	id := l.nextObserver
	l.nextObserver++
	*list = append(*list, observer[A]{id: id, fn: fn})
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		for i, o := range *list {
			if o.id == id {
				*list = append((*list)[:i:i], (*list)[i+1:]...)
				return
			}
		}
	}
}

// Len returns the number of registered hooks.
func (l *Lifecycle[A]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hooks)
}

// Hooks returns the registered hooks in registration order.
func (l *Lifecycle[A]) Hooks() []*Hook[A] {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Hook[A], len(l.hooks))
	copy(out, l.hooks)
	return out
}

// Fire invokes every hook registered at the time of the call.
//
// In [Serial] mode hooks run in registration order and the first error stops
// the remaining hooks and is returned. Panics propagate to the caller.
//
// In [Concurrent] mode each hook runs in its own goroutine and Fire returns
// nil immediately. Errors and panics are reported to the error handler and
// never reach the caller or sibling hooks.
func (l *Lifecycle[A]) Fire(ctx context.Context, arg A) error {
	hooks := l.Hooks()
	l.cfg.metrics.recordFire(l.name)

	if l.mode == Serial {
		for _, h := range hooks {
			if err := l.call(ctx, h, arg); err != nil {
				l.cfg.metrics.recordHookFailure(l.name, h.name)
				return fmt.Errorf("lifecycle %s: hook %s: %w", l.name, h.name, err)
			}
		}
		return nil
	}

	l.running.add(len(hooks))
	for _, h := range hooks {
		go func() {
			defer l.running.done()
			if err := l.callIsolated(ctx, h, arg); err != nil {
				l.cfg.metrics.recordHookFailure(l.name, h.name)
				l.handleError(ctx, h, err)
			}
		}()
	}
	return nil
}

// Wait blocks until no concurrent invocation is running. It is safe to call
// while other goroutines Fire; invocations started before Wait observes an
// idle lifecycle are waited for.
func (l *Lifecycle[A]) Wait() {
	l.running.wait()
}

func (l *Lifecycle[A]) call(ctx context.Context, h *Hook[A], arg A) (err error) {
	ctx, span := l.cfg.tracer.Start(ctx, SpanHook, trace.WithAttributes(
		attribute.String(AttrLifecycle, l.name),
		attribute.String(AttrHook, h.name),
	))
	defer func() { endSpan(span, err) }()

	return h.fn(ctx, arg)
}

func (l *Lifecycle[A]) callIsolated(ctx context.Context, h *Hook[A], arg A) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return l.call(ctx, h, arg)
}

func (l *Lifecycle[A]) handleError(ctx context.Context, h *Hook[A], err error) {
	if l.cfg.errorHandler != nil {
		l.cfg.errorHandler(ctx, l.name, h.name, err)
		return
	}
	l.cfg.logger.Error("Lifecycle hook failed", "lifecycle", l.name, "hook", h.name, "error", err)
}

func cloneObservers[A any](in []observer[A]) []observer[A] {
	out := make([]observer[A], len(in))
	copy(out, in)
	return out
}
