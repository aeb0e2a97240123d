package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("connection.", 10)
	defer unsub()

	b.Publish(Event{Topic: "connection.status_changed", Payload: "test"})

	select {
	case evt := <-ch:
		if evt.Topic != "connection.status_changed" {
			t.Errorf("got topic %q, want connection.status_changed", evt.Topic)
		}
		if evt.Timestamp.IsZero() {
			t.Error("expected Publish to stamp a timestamp")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestPrefixFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("message.", 10)
	defer unsub()

	b.Publish(Event{Topic: "connection.status_changed"})
	b.Publish(Event{Topic: "message.delivery"})

	select {
	case evt := <-ch:
		if evt.Topic != "message.delivery" {
			t.Errorf("got topic %q, want message.delivery", evt.Topic)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	// The connection event must not have been delivered.
	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("connection.", 10)
	unsub()

	b.Publish(Event{Topic: "connection.qr"})

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("test.", 1)
	defer unsub()

	b.Publish(Event{Topic: "test.one"})
	// Buffer is full, this one should be dropped without blocking.
	b.Publish(Event{Topic: "test.two"})

	evt := <-ch
	if evt.Topic != "test.one" {
		t.Errorf("got %q, want test.one", evt.Topic)
	}
}
