package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
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

func TestKafkaPublisherWritesKeyedJSON(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaPublisherWithWriter(w)

	if err := p.Publish(context.Background(), "notification.1002", map[string]string{"title": "Leave APPROVED"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.msgs))
	}
	if string(w.msgs[0].Key) != "notification.1002" {
		t.Fatalf("unexpected key %q", w.msgs[0].Key)
	}
	var body map[string]string
	if err := json.Unmarshal(w.msgs[0].Value, &body); err != nil {
		t.Fatalf("value is not json: %v", err)
	}
	if body["title"] != "Leave APPROVED" {
		t.Fatalf("unexpected body %+v", body)
	}

	if err := p.Close(); err != nil || !w.closed {
		t.Fatal("expected writer to be closed")
	}
}

func TestKafkaPublisherWrapsWriteError(t *testing.T) {
	boom := errors.New("broker down")
	p := NewKafkaPublisherWithWriter(&fakeWriter{err: boom})
	err := p.Publish(context.Background(), "k", 1)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped broker error, got %v", err)
	}
}
