package grove

import (
	"log/slog"
	"reflect"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Option configures an [Orchestrator] at construction.
type Option func(*orchestrator)

// WithLogger sets the structured logger used by the orchestrator and its
// internal lifecycles. The default is [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(o *orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics records orchestrator metrics on m. See [NewMetrics].
func WithMetrics(m *Metrics) Option {
	return func(o *orchestrator) {
		o.metrics = m
	}
}

// WithTracerProvider sets the tracer provider used for startup spans. The
// default is the global otel provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *orchestrator) {
		o.tracerProvider = tp
	}
}

// WithInitTimeout bounds the init barrier. When d elapses before every Init
// has returned, the remaining units are cancelled and Start fails with
// [ErrInitTimeout]. Zero, the default, waits forever.
func WithInitTimeout(d time.Duration) Option {
	return func(o *orchestrator) {
		o.initTimeout = d
	}
}

// registration holds per-call settings for [Orchestrator.Register].
type registration struct {
	id reflect.Type
}

// RegisterOption configures a single registration.
type RegisterOption func(*registration)

// As registers the instance under the type I instead of its dynamic type.
// I is usually an interface the instance implements:
//
//	o.Register(&postgresStore{}, grove.As[Store]())
//	store, err := grove.Get[Store](o)
func As[I any]() RegisterOption {
	return func(r *registration) {
		r.id = reflect.TypeFor[I]()
	}
}

// WithIdentity registers the instance under t. Prefer [As] when the type is
// known at compile time.
func WithIdentity(t reflect.Type) RegisterOption {
	return func(r *registration) {
		if t != nil {
			r.id = t
		}
	}
}
