package events

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch := b.Subscribe(4)

	b.Publish(Event{Kind: KindRequestStart, Data: map[string]any{"request_id": "r1"}})

	select {
	case ev := <-ch:
		if ev.Kind != KindRequestStart {
			t.Errorf("kind: got %q", ev.Kind)
		}
		if ev.Timestamp.IsZero() {
			t.Error("timestamp not stamped")
		}
		if ev.Data["request_id"] != "r1" {
			t.Errorf("data: %+v", ev.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("event never arrived")
	}
}

func TestPublishNonBlockingWhenSubscriberFull(t *testing.T) {
	b := New()
	ch := b.Subscribe(1)

	// The second publish must not block even though nobody is reading.
	done := make(chan struct{})
	go func() {
		b.Publish(Event{Kind: KindLLMCall})
		b.Publish(Event{Kind: KindLLMCall})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}

	// Exactly one event was retained.
	<-ch
	select {
	case ev := <-ch:
		t.Errorf("unexpected second event: %+v", ev)
	default:
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch := b.Subscribe(1)

	if got := b.SubscriberCount(); got != 1 {
		t.Fatalf("subscriber count: got %d, want 1", got)
	}

	b.Unsubscribe(ch)
	if got := b.SubscriberCount(); got != 0 {
		t.Errorf("subscriber count after unsubscribe: got %d, want 0", got)
	}

	if _, open := <-ch; open {
		t.Error("channel still open after unsubscribe")
	}

	// Double unsubscribe is a no-op.
	b.Unsubscribe(ch)
}

func TestNilBusPublish(t *testing.T) {
	var b *Bus
	b.Publish(Event{Kind: KindTurnComplete}) // must not panic
	if got := b.SubscriberCount(); got != 0 {
		t.Errorf("nil bus subscriber count: %d", got)
	}
}
