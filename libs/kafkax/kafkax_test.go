package kafkax

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestEventMetaHeaders(t *testing.T) {
	headers := EventMeta{EventID: "e-1", EventType: "booking.appointment.booked.v1"}.Headers()
	if len(headers) != 2 {
		t.Fatalf("expected empty aggregate type to be omitted, got %d headers", len(headers))
	}
	if HeaderValue(headers, "event_type") != "booking.appointment.booked.v1" {
		t.Fatalf("unexpected headers %+v", headers)
	}
}

func TestInjectTraceHeaders(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	headers := InjectTraceHeaders(ctx, EventMeta{EventID: "e-1"}.Headers())
	if got := HeaderValue(headers, "traceparent"); got != "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01" {
		t.Fatalf("unexpected traceparent %q", got)
	}
	if HeaderValue(headers, "event_id") != "e-1" {
		t.Fatal("expected existing headers to be kept")
	}
}

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" kafka:9092, ,kafka2:9092 ")
	if len(got) != 2 || got[0] != "kafka:9092" || got[1] != "kafka2:9092" {
		t.Fatalf("unexpected brokers %v", got)
	}
}
