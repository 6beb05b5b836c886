package grove

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/ARTM2000/grove"

// Span names.
const (
	SpanStart    = "grove.start"
	SpanInit     = "grove.provider.init"
	SpanHook     = "grove.lifecycle.hook"
	SpanShutdown = "grove.shutdown"
)

// Attribute keys.
const (
	AttrProvider  = "grove.provider"
	AttrLifecycle = "grove.lifecycle"
	AttrHook      = "grove.hook"
	AttrProviders = "grove.providers"
)

func defaultTracer() trace.Tracer {
	return otel.GetTracerProvider().Tracer(tracerName)
}

func tracerFrom(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		return defaultTracer()
	}
	return tp.Tracer(tracerName)
}

func startProviderSpan(ctx context.Context, t trace.Tracer, name, provider string) (context.Context, trace.Span) {
	return t.Start(ctx, name, trace.WithAttributes(attribute.String(AttrProvider, provider)))
}

// endSpan records err on span, if any, and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
