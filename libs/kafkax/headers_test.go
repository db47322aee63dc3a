package kafkax

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestExtractEventMetaFallbacks(t *testing.T) {
	msg := kafka.Message{Topic: "records.appointment.completed.v1", Key: []byte("appt-1")}
	meta := ExtractEventMeta(msg)
	if meta.EventID != "appt-1" || meta.EventType != "records.appointment.completed.v1" {
		t.Fatalf("unexpected meta: %+v", meta)
	}

	msg.Headers = []kafka.Header{{Key: HeaderEventID, Value: []byte("evt-9")}}
	if got := ExtractEventMeta(msg).EventID; got != "evt-9" {
		t.Fatalf("expected header event id, got %q", got)
	}
}

func TestTraceHeadersRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
		SpanID:     trace.SpanID{1, 2, 3, 4, 5, 6, 7, 8},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	headers := InjectTraceHeaders(ctx, []kafka.Header{{Key: HeaderEventID, Value: []byte("e1")}})
	if HeaderValue(headers, "traceparent") == "" {
		t.Fatal("expected traceparent header")
	}
	got := trace.SpanContextFromContext(ExtractTraceContext(context.Background(), kafka.Message{Headers: headers}))
	if got.TraceID() != sc.TraceID() {
		t.Fatalf("trace id mismatch: %s", got.TraceID())
	}
}

func TestSplitBrokers(t *testing.T) {
	if got := SplitBrokers(" kafka:9092, ,kafka2:9092 "); len(got) != 2 {
		t.Fatalf("unexpected brokers: %v", got)
	}
}
