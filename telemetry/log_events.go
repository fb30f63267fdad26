package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RecordChangeEvent emits a span event for one applied change
func RecordChangeEvent(span trace.Span, kind, identity, phase, message string) {
	if span == nil {
		return
	}

	span.AddEvent("monitoring.change.applied", trace.WithAttributes(
		attribute.String("event.type", "monitoring.change.applied"),
		attribute.String("entity.kind", kind),
		attribute.String("entity.identity", identity),
		attribute.String("phase", phase),
		attribute.String("message", message),
	))
}

// RecordPolicyDeniedEvent emits a span event when a spec is vetoed
func RecordPolicyDeniedEvent(span trace.Span, kind, identity string, reasons []string) {
	if span == nil {
		return
	}

	span.AddEvent("monitoring.policy.denied", trace.WithAttributes(
		attribute.String("event.type", "monitoring.policy.denied"),
		attribute.String("entity.kind", kind),
		attribute.String("entity.identity", identity),
		attribute.StringSlice("reasons", reasons),
	))
}

// RecordPublishEvent emits a span event for a configuration publish
func RecordPublishEvent(span trace.Span, instance string, err error) {
	if span == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("event.type", "monitoring.config.published"),
		attribute.String("poller", instance),
		attribute.Bool("success", err == nil),
	}
	if err != nil {
		attrs = append(attrs, attribute.String("error", err.Error()))
	}
	span.AddEvent("monitoring.config.published", trace.WithAttributes(attrs...))
}
