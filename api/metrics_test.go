package api

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSeverityForStatus(t *testing.T) {
	cases := []struct {
		name       string
		status     int
		err        error
		wantText   string
		wantNumber int
	}{
		{"ok", 200, nil, "info", 9},
		{"created", 201, nil, "info", 9},
		{"client error", 404, nil, "warning", 13},
		{"server error", 500, nil, "error", 17},
		{"ok status with error", 200, errors.New("boom"), "error", 17},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			text, number := severityForStatus(tc.status, tc.err)
			if text != tc.wantText || number != tc.wantNumber {
				t.Fatalf("severityForStatus(%d, %v) = (%q, %d), want (%q, %d)",
					tc.status, tc.err, text, number, tc.wantText, tc.wantNumber)
			}
		})
	}
}

func TestDurationToMillis(t *testing.T) {
	if got := durationToMillis(1500 * time.Microsecond); got != 1.5 {
		t.Fatalf("durationToMillis(1.5ms) = %v", got)
	}
	if got := durationToMillis(-time.Second); got != 0 {
		t.Fatalf("negative duration: %v", got)
	}
}

func TestRequestMetricsNilReceiver(t *testing.T) {
	var m *requestMetrics
	m.Log(200, nil)
}

func TestRequestMetricsEmitsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	defer otel.SetTracerProvider(previous)

	metrics, spanCtx := newRequestMetrics(context.Background(), quietLogger(), "/api/state")
	if spanCtx == nil {
		t.Fatalf("no span context returned")
	}
	metrics.ObserveAuth(2 * time.Millisecond)
	metrics.ObserveApply(3 * time.Millisecond)
	metrics.Log(200, nil)

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 ended span, got %d", len(spans))
	}
	span := spans[0]
	if span.Name() != "/api/state" {
		t.Fatalf("span name %q", span.Name())
	}
	if span.Status().Code != codes.Ok {
		t.Fatalf("span status %v", span.Status())
	}
	attrs := span.Attributes()
	if !hasAttr(attrs, "http.status_code", "200") && !hasIntAttr(attrs, "http.status_code", 200) {
		t.Fatalf("status attribute missing: %v", attrs)
	}
	if !hasAttr(attrs, "severity", "info") {
		t.Fatalf("severity attribute missing: %v", attrs)
	}
}

func TestRequestMetricsRecordsError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	defer otel.SetTracerProvider(previous)

	metrics, _ := newRequestMetrics(context.Background(), quietLogger(), "/api/auth/signin")
	metrics.SetErrorStage("auth")
	metrics.Log(401, errors.New("bad token"))

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 ended span, got %d", len(spans))
	}
	span := spans[0]
	if span.Status().Code != codes.Error {
		t.Fatalf("span status %v", span.Status())
	}
	if !hasAttr(span.Attributes(), "error_stage", "auth") {
		t.Fatalf("error_stage attribute missing: %v", span.Attributes())
	}
	if len(span.Events()) == 0 {
		t.Fatalf("error not recorded as span event")
	}
}

func hasAttr(attrs []attribute.KeyValue, key, value string) bool {
	for _, kv := range attrs {
		if string(kv.Key) == key && kv.Value.Emit() == value {
			return true
		}
	}
	return false
}

func hasIntAttr(attrs []attribute.KeyValue, key string, value int64) bool {
	for _, kv := range attrs {
		if string(kv.Key) == key && kv.Value.Type() == attribute.INT64 && kv.Value.AsInt64() == value {
			return true
		}
	}
	return false
}
