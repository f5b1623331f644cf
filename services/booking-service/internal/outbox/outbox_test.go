package outbox

import (
	"context"
	"encoding/json"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/HadjievK/BoKe/libs/kafkax"
	otelx "github.com/HadjievK/BoKe/libs/otel"
)

func TestNewEvent(t *testing.T) {
	evt, err := NewEvent(AggregateAppointment, "a-1", EventAppointmentBooked, map[string]any{"start": "10:00"})
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	var payload map[string]string
	if err := json.Unmarshal(evt.Payload, &payload); err != nil {
		t.Fatalf("payload is not json: %v", err)
	}
	if payload["start"] != "10:00" || evt.EventType != EventAppointmentBooked || evt.AggregateID != "a-1" {
		t.Fatalf("unexpected event %+v", evt)
	}

	if _, err := NewEvent(AggregateAppointment, "a-1", EventAppointmentBooked, make(chan int)); err == nil {
		t.Fatal("expected marshal error for unsupported payload")
	}
}

func TestToMessageCarriesMetaAndTrace(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	const parent = "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	msg := toMessage(context.Background(), Record{
		ID:            7,
		EventID:       "e-7",
		AggregateType: AggregateAppointment,
		AggregateID:   "a-1",
		EventType:     EventAppointmentCancelled,
		Payload:       []byte(`{}`),
		Trace:         otelx.TraceContext{Parent: parent},
	})

	if msg.Topic != EventAppointmentCancelled || string(msg.Key) != "a-1" {
		t.Fatalf("unexpected topic/key %q/%q", msg.Topic, msg.Key)
	}
	if kafkax.HeaderValue(msg.Headers, "event_id") != "e-7" {
		t.Fatal("expected event_id header")
	}
	if kafkax.HeaderValue(msg.Headers, "aggregate_type") != AggregateAppointment {
		t.Fatal("expected aggregate_type header")
	}
	if got := kafkax.HeaderValue(msg.Headers, "traceparent"); got != parent {
		t.Fatalf("expected stored trace context to be propagated, got %q", got)
	}
}
