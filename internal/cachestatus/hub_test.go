package cachestatus

import (
	"testing"
	"time"
)

func TestNotifyDeliversToAllSubscribers(t *testing.T) {
	hub := NewHub()
	a, unsubA := hub.Subscribe(4)
	defer unsubA()
	b, unsubB := hub.Subscribe(4)
	defer unsubB()

	hub.Notify("42")

	for _, ch := range []<-chan Event{a, b} {
		select {
		case evt := <-ch:
			if evt.ID != "42" || !evt.Cached || evt.Sequence != 1 {
				t.Fatalf("unexpected event %+v", evt)
			}
		case <-time.After(time.Second):
			t.Fatal("expected event")
		}
	}
}

func TestNotifyNeverBlocksOnSlowSubscriber(t *testing.T) {
	hub := NewHub()
	ch, unsub := hub.Subscribe(1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			hub.Notify("id")
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a full subscriber")
	}
	if hub.Dropped() != 9 {
		t.Fatalf("expected 9 dropped deliveries, got %d", hub.Dropped())
	}
	if evt := <-ch; evt.Sequence != 1 {
		t.Fatalf("expected first event retained, got %+v", evt)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub()
	ch, unsub := hub.Subscribe(1)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel")
	}
	if hub.Subscribers() != 0 {
		t.Fatalf("expected no subscribers, got %d", hub.Subscribers())
	}
	hub.Notify("after")
}

func TestNilHubIsNoop(t *testing.T) {
	var hub *Hub
	hub.Notify("x")
	hub.NotifyRemoved("x")
	ch, unsub := hub.Subscribe(1)
	unsub()
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel from nil hub")
	}
}

func TestNotifyRemoved(t *testing.T) {
	hub := NewHub()
	ch, unsub := hub.Subscribe(1)
	defer unsub()
	hub.NotifyRemoved("gone")
	if evt := <-ch; evt.Cached || evt.ID != "gone" {
		t.Fatalf("unexpected event %+v", evt)
	}
}
