package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ajitpratap0/stageflow/pkg/errors"
)

// Attribute keys set on stageflow spans.
const (
	AttrPipeline  = attribute.Key("stageflow.pipeline")
	AttrPhase     = attribute.Key("stageflow.phase")
	AttrObject    = attribute.Key("stageflow.object")
	AttrConnector = attribute.Key("stageflow.connector")
	AttrErrorType = attribute.Key("stageflow.error_type")
)

// StartPhase starts the root span of an extract or load run.
func StartPhase(ctx context.Context, pipeline, phase string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, phase,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(AttrPipeline.String(pipeline), AttrPhase.String(phase)))
}

// StartObject starts the span of one data object inside a phase.
func StartObject(ctx context.Context, phase, object string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, phase+" "+object,
		trace.WithAttributes(AttrPhase.String(phase), AttrObject.String(object)))
}

// StartCall starts the span of one connector call.
func StartCall(ctx context.Context, connector, operation string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, connector+"."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(AttrConnector.String(connector)))
}

// End records err on span, if any, and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(AttrErrorType.String(string(errors.TypeOf(err))))
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// Event adds a named event, such as a state transition, to the span in ctx.
func Event(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}
