package reconcile

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/linnemanlabs/dispatch/internal/alert"
	"github.com/linnemanlabs/dispatch/internal/assignment"
)

// useSpanRecorder installs a recording provider for the duration of the
// test. Tests calling it must not run in parallel.
func useSpanRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return sr
}

func endedSpan(t *testing.T, sr *tracetest.SpanRecorder, name string) sdktrace.ReadOnlySpan {
	t.Helper()
	var found sdktrace.ReadOnlySpan
	for _, s := range sr.Ended() {
		if s.Name() == name {
			found = s
		}
	}
	if found == nil {
		t.Fatalf("no ended span named %q", name)
	}
	return found
}

func spanAttrs(s sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value, len(s.Attributes()))
	for _, kv := range s.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestRefresh_Span(t *testing.T) {
	sr := useSpanRecorder(t)
	h := newHarness(t)

	h.feed.set([]alert.Raw{
		raw("1", "Fire", time.Hour),
		raw("2", "Flood", 30*time.Hour),
		{"id": "3"},
	}, nil)
	if _, err := h.orch.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	s := endedSpan(t, sr, "reconcile.Refresh")
	attrs := spanAttrs(s)
	if got := attrs["dispatch.refresh.alerts"].AsInt64(); got != 2 {
		t.Errorf("dispatch.refresh.alerts = %d, want 2", got)
	}
	if got := attrs["dispatch.refresh.rejected"].AsInt64(); got != 1 {
		t.Errorf("dispatch.refresh.rejected = %d, want 1", got)
	}
	if got := attrs["dispatch.refresh.visible"].AsInt64(); got != 1 {
		t.Errorf("dispatch.refresh.visible = %d, want 1", got)
	}
	if s.Status().Code == codes.Error {
		t.Errorf("status = %v, want unset", s.Status())
	}
}

func TestRefresh_SpanRecordsTransportError(t *testing.T) {
	sr := useSpanRecorder(t)
	h := newHarness(t)

	h.feed.set(nil, errFeedDown)
	if _, err := h.orch.Refresh(context.Background()); err == nil {
		t.Fatal("expected error")
	}

	s := endedSpan(t, sr, "reconcile.Refresh")
	if s.Status().Code != codes.Error {
		t.Errorf("status = %v, want Error", s.Status())
	}
	if len(s.Events()) == 0 || s.Events()[0].Name != "exception" {
		t.Errorf("events = %v, want a recorded exception", s.Events())
	}
}

func TestAssign_Span(t *testing.T) {
	sr := useSpanRecorder(t)
	h := newHarness(t)
	h.orch.SetRefreshDelay(time.Hour)

	if _, err := h.orch.Assign(context.Background(), "A1", "T1"); err != nil {
		t.Fatalf("Assign: %v", err)
	}

	attrs := spanAttrs(endedSpan(t, sr, "reconcile.Assign"))
	want := map[attribute.Key]string{
		"dispatch.alert.id":        "A1",
		"dispatch.team.id":         "T1",
		"dispatch.assignment.kind": string(assignment.KindAssigned),
	}
	for k, v := range want {
		if got := attrs[k].AsString(); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}

func TestAssign_SpanMarksFailureAndConflict(t *testing.T) {
	sr := useSpanRecorder(t)
	h := newHarness(t)
	h.asg.fn = func(string, string) (assignment.Intervention, error) {
		return assignment.Intervention{}, &rejection{msg: "team busy"}
	}

	st, err := h.orch.Assign(context.Background(), "A1", "T1")
	if err != nil || st.Kind != assignment.KindFailed {
		t.Fatalf("Assign = %+v, %v", st, err)
	}
	s := endedSpan(t, sr, "reconcile.Assign")
	if s.Status().Code != codes.Error || s.Status().Description != "team busy" {
		t.Errorf("status = %v, want Error with reason", s.Status())
	}
	if got := spanAttrs(s)["dispatch.assignment.reason"].AsString(); got != "team busy" {
		t.Errorf("dispatch.assignment.reason = %q", got)
	}

	// retry from an unassigned alert is refused and marked on the span
	if _, err := h.orch.Retry(context.Background(), "A2", "T1"); err == nil {
		t.Fatal("expected error")
	}
	if s := endedSpan(t, sr, "reconcile.Retry"); s.Status().Code != codes.Error {
		t.Errorf("retry status = %v, want Error", s.Status())
	}
}
