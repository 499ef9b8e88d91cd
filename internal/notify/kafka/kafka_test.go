package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"

	"github.com/linnemanlabs/dispatch/internal/assignment"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestNotify_PublishesKeyedJSON(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{}
	p := &Publisher{w: w}
	e := assignment.Event{
		ID:      "01JN",
		AlertID: "A1",
		State:   assignment.State{Kind: assignment.KindAssigned, TeamID: "T1", InterventionID: "I1"},
	}
	if err := p.Notify(context.Background(), e); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(w.msgs))
	}
	if string(w.msgs[0].Key) != "A1" {
		t.Errorf("key = %q, want A1", w.msgs[0].Key)
	}
	var got assignment.Event
	if err := json.Unmarshal(w.msgs[0].Value, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.State.InterventionID != "I1" || got.State.Kind != assignment.KindAssigned {
		t.Errorf("payload = %+v", got)
	}

	if err := p.Close(); err != nil || !w.closed {
		t.Errorf("Close = %v, closed = %v", err, w.closed)
	}
}

func TestNotify_WriteError(t *testing.T) {
	t.Parallel()

	boom := errors.New("leader not available")
	p := &Publisher{w: &fakeWriter{err: boom}}
	if err := p.Notify(context.Background(), assignment.Event{ID: "x"}); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped write error", err)
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, "t"); err == nil {
		t.Error("expected error without brokers")
	}
	if _, err := New([]string{"localhost:9092"}, ""); err == nil {
		t.Error("expected error without topic")
	}
	p, err := New([]string{"localhost:9092"}, "assignments")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_ = p.Close()
}
