package grove

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLifecycle[A any](mode Mode, opts ...LifecycleOption) *Lifecycle[A] {
	return NewLifecycle[A]("test", mode, append([]LifecycleOption{WithLifecycleLogger(quietLogger())}, opts...)...)
}

func TestMode_String(t *testing.T) {
	tests := []struct {
		m    Mode
		want string
	}{
		{Serial, "serial"},
		{Concurrent, "concurrent"},
		{Mode(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.m.String(); got != tt.want {
			t.Errorf("Mode(%d).String() = %q, want %q", tt.m, got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Register / Unregister
// ---------------------------------------------------------------------------

func TestLifecycle_Register(t *testing.T) {
	t.Run("assigns id and default name", func(t *testing.T) {
		l := newTestLifecycle[int](Serial)
		h := l.Register(func(context.Context, int) error { return nil })

		_, err := uuid.Parse(h.ID())
		require.NoError(t, err)
		assert.Equal(t, h.ID(), h.Name())
		assert.Equal(t, 1, l.Len())
	})

	t.Run("name and metadata", func(t *testing.T) {
		l := newTestLifecycle[int](Serial)
		h := l.Register(func(context.Context, int) error { return nil },
			WithHookName("physics"),
			WithHookMetadata("priority", "high"),
		)

		assert.Equal(t, "physics", h.Name())
		md := h.Metadata()
		assert.Equal(t, map[string]string{"priority": "high"}, md)

		md["priority"] = "low"
		assert.Equal(t, "high", h.Metadata()["priority"], "metadata is copied")
	})

	t.Run("observers are notified synchronously", func(t *testing.T) {
		l := newTestLifecycle[int](Serial)
		var seen []*Hook[int]
		unsubscribe := l.OnRegistered(func(h *Hook[int]) { seen = append(seen, h) })

		h1 := l.Register(func(context.Context, int) error { return nil })
		require.Equal(t, []*Hook[int]{h1}, seen)

		unsubscribe()
		l.Register(func(context.Context, int) error { return nil })
		assert.Len(t, seen, 1)

		unsubscribe()
	})

	t.Run("observer may mutate the lifecycle", func(t *testing.T) {
		l := newTestLifecycle[int](Serial)
		l.OnRegistered(func(h *Hook[int]) { l.Unregister(h) })

		l.Register(func(context.Context, int) error { return nil })
		assert.Zero(t, l.Len())
	})
}

func TestLifecycle_Unregister(t *testing.T) {
	t.Run("removes by identity", func(t *testing.T) {
		l := newTestLifecycle[int](Serial)
		var calls []string
		fn := func(context.Context, int) error {
			calls = append(calls, "x")
			return nil
		}
		h1 := l.Register(fn)
		h2 := l.Register(fn)

		assert.True(t, l.Unregister(h1))
		assert.Equal(t, []*Hook[int]{h2}, l.Hooks())

		require.NoError(t, l.Fire(context.Background(), 0))
		assert.Len(t, calls, 1)
	})

	t.Run("absent hook is a no-op", func(t *testing.T) {
		l := newTestLifecycle[int](Serial)
		other := newTestLifecycle[int](Serial)
		h := other.Register(func(context.Context, int) error { return nil })

		var notified bool
		l.OnUnregistered(func(*Hook[int]) { notified = true })

		assert.False(t, l.Unregister(h))
		assert.False(t, notified)
	})

	t.Run("notifies observers", func(t *testing.T) {
		l := newTestLifecycle[int](Serial)
		h := l.Register(func(context.Context, int) error { return nil })

		var got *Hook[int]
		l.OnUnregistered(func(h *Hook[int]) { got = h })

		require.True(t, l.Unregister(h))
		assert.Same(t, h, got)
	})

	t.Run("unregister all", func(t *testing.T) {
		l := newTestLifecycle[int](Serial)
		h1 := l.Register(func(context.Context, int) error { return nil })
		h2 := l.Register(func(context.Context, int) error { return nil })

		var got []*Hook[int]
		l.OnUnregistered(func(h *Hook[int]) { got = append(got, h) })

		l.UnregisterAll()
		assert.Equal(t, []*Hook[int]{h1, h2}, got)
		assert.Zero(t, l.Len())
	})
}

// ---------------------------------------------------------------------------
// Fire
// ---------------------------------------------------------------------------

func TestLifecycle_FireSerial(t *testing.T) {
	t.Run("registration order", func(t *testing.T) {
		l := newTestLifecycle[string](Serial)
		var got []string
		for _, name := range []string{"a", "b", "c", "d"} {
			l.Register(func(_ context.Context, arg string) error {
				got = append(got, name+arg)
				return nil
			})
		}

		require.NoError(t, l.Fire(context.Background(), "!"))
		assert.Equal(t, []string{"a!", "b!", "c!", "d!"}, got)
	})

	t.Run("error halts remaining hooks", func(t *testing.T) {
		l := newTestLifecycle[int](Serial)
		boom := errors.New("boom")
		var got []int
		for i := range 5 {
			l.Register(func(context.Context, int) error {
				got = append(got, i)
				if i == 2 {
					return boom
				}
				return nil
			}, WithHookName("hook"))
		}

		err := l.Fire(context.Background(), 0)
		require.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "lifecycle test: hook hook")
		assert.Equal(t, []int{0, 1, 2}, got)

		got = nil
		require.ErrorIs(t, l.Fire(context.Background(), 0), boom)
		assert.Equal(t, []int{0, 1, 2}, got, "every fire starts from the first hook")
	})

	t.Run("panic propagates", func(t *testing.T) {
		l := newTestLifecycle[int](Serial)
		var after bool
		l.Register(func(context.Context, int) error { panic("boom") })
		l.Register(func(context.Context, int) error { after = true; return nil })

		assert.Panics(t, func() { _ = l.Fire(context.Background(), 0) })
		assert.False(t, after)
	})

	t.Run("empty", func(t *testing.T) {
		l := newTestLifecycle[int](Serial)
		assert.NoError(t, l.Fire(context.Background(), 0))
	})
}

func TestLifecycle_FireConcurrent(t *testing.T) {
	t.Run("each hook exactly once per fire", func(t *testing.T) {
		l := newTestLifecycle[int](Concurrent)
		counts := make([]atomic.Int32, 5)
		for i := range counts {
			l.Register(func(context.Context, int) error {
				counts[i].Add(1)
				return nil
			})
		}

		for range 3 {
			require.NoError(t, l.Fire(context.Background(), 0))
		}
		l.Wait()

		for i := range counts {
			assert.Equal(t, int32(3), counts[i].Load(), "hook %d", i)
		}
	})

	t.Run("fire returns before hooks complete", func(t *testing.T) {
		l := newTestLifecycle[int](Concurrent)
		release := make(chan struct{})
		var done atomic.Bool
		l.Register(func(context.Context, int) error {
			<-release
			done.Store(true)
			return nil
		})

		require.NoError(t, l.Fire(context.Background(), 0))
		assert.False(t, done.Load())

		close(release)
		l.Wait()
		assert.True(t, done.Load())
	})

	t.Run("failures are isolated", func(t *testing.T) {
		var mu sync.Mutex
		failed := map[string]error{}
		handler := func(_ context.Context, lifecycle, hook string, err error) {
			assert.Equal(t, "test", lifecycle)
			mu.Lock()
			failed[hook] = err
			mu.Unlock()
		}
		m := NewMetrics(nil, "")
		l := newTestLifecycle[int](Concurrent, WithErrorHandler(handler), WithLifecycleMetrics(m))

		var ok atomic.Bool
		l.Register(func(context.Context, int) error { return errors.New("boom") }, WithHookName("err"))
		l.Register(func(context.Context, int) error { panic("bad") }, WithHookName("panic"))
		l.Register(func(context.Context, int) error { ok.Store(true); return nil }, WithHookName("ok"))

		require.NoError(t, l.Fire(context.Background(), 0))
		l.Wait()

		assert.True(t, ok.Load())
		require.Len(t, failed, 2)
		assert.EqualError(t, failed["err"], "boom")
		assert.EqualError(t, failed["panic"], "panic: bad")
		assert.Equal(t, 1.0, testutil.ToFloat64(m.LifecycleFires.WithLabelValues("test")))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.HookFailures.WithLabelValues("test", "panic")))
	})

	t.Run("unregister during flight stops later fires", func(t *testing.T) {
		l := newTestLifecycle[int](Concurrent)
		entered := make(chan struct{}, 1)
		release := make(chan struct{})
		var calls atomic.Int32
		h := l.Register(func(context.Context, int) error {
			calls.Add(1)
			entered <- struct{}{}
			<-release
			return nil
		})

		require.NoError(t, l.Fire(context.Background(), 0))
		<-entered
		require.True(t, l.Unregister(h))
		close(release)
		l.Wait()
		assert.Equal(t, int32(1), calls.Load(), "in-flight invocation completes")

		require.NoError(t, l.Fire(context.Background(), 0))
		l.Wait()
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("hook may register during fire", func(t *testing.T) {
		l := newTestLifecycle[int](Concurrent)
		var added atomic.Int32
		l.Register(func(context.Context, int) error {
			l.Register(func(context.Context, int) error { added.Add(1); return nil })
			return nil
		})

		require.NoError(t, l.Fire(context.Background(), 0))
		l.Wait()
		assert.Equal(t, 2, l.Len())

		require.NoError(t, l.Fire(context.Background(), 0))
		l.Wait()
		assert.Equal(t, int32(1), added.Load())
	})

	t.Run("wait may run alongside fire", func(t *testing.T) {
		l := newTestLifecycle[int](Concurrent)
		var calls atomic.Int32
		l.Register(func(context.Context, int) error {
			calls.Add(1)
			return nil
		})

		var wg sync.WaitGroup
		wg.Go(func() {
			for range 200 {
				_ = l.Fire(context.Background(), 0)
			}
		})
		wg.Go(func() {
			for range 200 {
				l.Wait()
			}
		})
		wg.Wait()
		l.Wait()

		assert.Equal(t, int32(200), calls.Load())
	})

	t.Run("hooks receive the fire context", func(t *testing.T) {
		type ctxKey struct{}
		l := newTestLifecycle[int](Concurrent)
		got := make(chan any, 1)
		l.Register(func(ctx context.Context, _ int) error {
			got <- ctx.Value(ctxKey{})
			return nil
		})

		ctx := context.WithValue(context.Background(), ctxKey{}, "v")
		require.NoError(t, l.Fire(ctx, 0))

		select {
		case v := <-got:
			assert.Equal(t, "v", v)
		case <-time.After(time.Second):
			t.Fatal("hook not called")
		}
	})
}
