package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of docqa spans.
const TracerName = "github.com/kart-io/docqa"

// Attribute keys of pipeline spans.
const (
	AttrDocumentID = "docqa.document_id"
	AttrChunks     = "docqa.chunks"
	AttrCollection = "docqa.collection"
	AttrTopK       = "docqa.top_k"
	AttrHits       = "docqa.hits"
	AttrProvider   = "docqa.provider"
)

// StartSpan starts an internal span named after a pipeline stage.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// End records err on the span, if any, and ends it. Intended for use with a named error result:
//
//	ctx, span := tracing.StartSpan(ctx, "docqa.embed")
//	defer func() { tracing.End(span, err) }()
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// TraceIDFromContext extracts the trace ID, or "" when no trace is active.
func TraceIDFromContext(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}

// String creates a string attribute.
func String(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// Int creates an int attribute.
func Int(key string, value int) attribute.KeyValue {
	return attribute.Int(key, value)
}
