package grove

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Shared test types and constructors used across test files.

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestOrchestrator returns an orchestrator with a silent logger.
func newTestOrchestrator(opts ...Option) Orchestrator {
	return New(append([]Option{WithLogger(quietLogger())}, opts...)...)
}

// mustRegister calls t.Fatal if registration fails.
func mustRegister(t *testing.T, o Orchestrator, instance any, opts ...RegisterOption) {
	t.Helper()
	require.NoError(t, o.Register(instance, opts...))
}

// mustStart calls t.Fatal if Start fails.
func mustStart(t *testing.T, o Orchestrator) {
	t.Helper()
	require.NoError(t, o.Start(context.Background()))
}

// recorder is a concurrency-safe event log.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) contains(event string) bool {
	for _, e := range r.snapshot() {
		if e == event {
			return true
		}
	}
	return false
}

func (r *recorder) index(event string) int {
	for i, e := range r.snapshot() {
		if e == event {
			return i
		}
	}
	return -1
}

// Marker types give each generic unit below a distinct provider identity.
type (
	keyA struct{}
	keyB struct{}
	keyC struct{}
)

// initUnit is a provider with only the init capability.
type initUnit[K any] struct {
	fn func(ctx context.Context) error
}

func (u *initUnit[K]) Init(ctx context.Context) error { return u.fn(ctx) }

// startUnit is a provider with only the start capability.
type startUnit[K any] struct {
	fn func(ctx context.Context) error
}

func (u *startUnit[K]) Start(ctx context.Context) error { return u.fn(ctx) }

// fullUnit has both capabilities.
type fullUnit[K any] struct {
	init  func(ctx context.Context) error
	start func(ctx context.Context) error
}

func (u *fullUnit[K]) Init(ctx context.Context) error  { return u.init(ctx) }
func (u *fullUnit[K]) Start(ctx context.Context) error { return u.start(ctx) }

// plainProvider has no lifecycle capability.
type plainProvider struct{ Name string }

type testGreeter interface {
	Greet() string
}

type englishGreeter struct{}

func (g *englishGreeter) Greet() string { return "hello" }

// testClosable is a provider that implements io.Closer for shutdown tests.
type testClosable[K any] struct {
	name  string
	order *recorder
}

func (c *testClosable[K]) Close() error {
	c.order.add(c.name)
	return nil
}

// testFailCloser implements io.Closer but returns an error.
type testFailCloser struct{}

func (f *testFailCloser) Close() error {
	return errors.New("close failed")
}

// lingeringInit keeps working briefly after its context is cancelled and
// records whether Close ran before Init returned.
type lingeringInit struct {
	returned    atomic.Bool
	closedEarly atomic.Bool
}

func (l *lingeringInit) Init(ctx context.Context) error {
	<-ctx.Done()
	time.Sleep(50 * time.Millisecond)
	l.returned.Store(true)
	return ctx.Err()
}

func (l *lingeringInit) Close() error {
	if !l.returned.Load() {
		l.closedEarly.Store(true)
	}
	return nil
}

func succeed(context.Context) error { return nil }

func blockUntilDone(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}
