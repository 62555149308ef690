package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// recordSpans installs a recording global provider for the test.
func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})
	return recorder
}

func attrValue(span sdktrace.ReadOnlySpan, key string) (string, bool) {
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			return kv.Value.Emit(), true
		}
	}
	return "", false
}

func TestStartDBSpan(t *testing.T) {
	tests := []struct {
		name      string
		table     string
		operation DBOperation
		wantName  string
	}{
		{"query", "content_items", DBOperationQuery, "query content_items"},
		{"insert", "evaluation_events", DBOperationInsert, "insert evaluation_events"},
		{"no table", "", DBOperationExec, "exec"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := recordSpans(t)

			_, end := StartDBSpan(context.Background(), tt.table, tt.operation)
			end(nil)

			spans := recorder.Ended()
			if len(spans) != 1 {
				t.Fatalf("expected 1 span, got %d", len(spans))
			}
			span := spans[0]
			if span.Name() != tt.wantName {
				t.Errorf("name = %q, want %q", span.Name(), tt.wantName)
			}
			if span.SpanKind() != trace.SpanKindClient {
				t.Errorf("kind = %v, want client", span.SpanKind())
			}
			if span.InstrumentationScope().Name != DBTracerName {
				t.Errorf("scope = %q", span.InstrumentationScope().Name)
			}
			if v, _ := attrValue(span, "db.operation"); v != string(tt.operation) {
				t.Errorf("db.operation = %q", v)
			}
			v, ok := attrValue(span, "db.sql.table")
			if tt.table == "" && ok {
				t.Errorf("unexpected db.sql.table %q", v)
			}
			if tt.table != "" && v != tt.table {
				t.Errorf("db.sql.table = %q, want %q", v, tt.table)
			}
		})
	}
}

func TestStartSpan_RecordsError(t *testing.T) {
	recorder := recordSpans(t)

	_, end := StartSpan(context.Background(), "spam.evaluate", attribute.Bool("strict", true))
	end(errors.New("snapshot missing"))

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	span := spans[0]
	if span.Status().Code != codes.Error || span.Status().Description != "snapshot missing" {
		t.Errorf("status = %+v", span.Status())
	}
	if len(span.Events()) != 1 || span.Events()[0].Name != "exception" {
		t.Errorf("expected the error to be recorded as an exception event, got %v", span.Events())
	}
	if v, _ := attrValue(span, "strict"); v != "true" {
		t.Errorf("strict = %q", v)
	}
	if span.InstrumentationScope().Name != TracerName {
		t.Errorf("scope = %q", span.InstrumentationScope().Name)
	}
}

func TestStartSpan_Nesting(t *testing.T) {
	recorder := recordSpans(t)

	ctx, endOuter := StartSpan(context.Background(), "trending.compute")
	_, endInner := StartDBSpan(ctx, "content_items", DBOperationQuery)
	endInner(nil)
	endOuter(nil)

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	inner, outer := spans[0], spans[1]
	if inner.Parent().SpanID() != outer.SpanContext().SpanID() {
		t.Error("store span is not a child of the scoring span")
	}
	if inner.SpanContext().TraceID() != outer.SpanContext().TraceID() {
		t.Error("spans belong to different traces")
	}
}

func TestAddEventAndSetAttributes(t *testing.T) {
	recorder := recordSpans(t)

	ctx, end := StartSpan(context.Background(), "spam.check")
	SetAttributes(ctx, attribute.Int("batch_size", 3))
	AddEvent(ctx, "enrichment_degraded", attribute.Bool("strict", false))
	end(nil)

	span := recorder.Ended()[0]
	if v, _ := attrValue(span, "batch_size"); v != "3" {
		t.Errorf("batch_size = %q", v)
	}
	if len(span.Events()) != 1 || span.Events()[0].Name != "enrichment_degraded" {
		t.Errorf("events = %v", span.Events())
	}
}

func TestHelpers_WithoutSpan(t *testing.T) {
	// No span in ctx: the calls are no-ops.
	AddEvent(context.Background(), "ignored")
	SetAttributes(context.Background(), attribute.String("k", "v"))
}
