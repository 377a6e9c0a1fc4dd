package notifications_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"scanmaster/internal/notifications"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []notifications.Event
	bodies []string
}

func (r *recordingPublisher) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	if msg, ok := payload["message"].(string); ok {
		r.bodies = append(r.bodies, msg)
	}
	return nil
}

func TestSinkKeepsOrderAndDuplicates(t *testing.T) {
	sink := notifications.NewSink(time.Minute)
	defer sink.Close()

	a := sink.Notify("a.png processed", notifications.KindSuccess)
	b := sink.Notify("a.png processed", notifications.KindSuccess)
	c := sink.Notify("b.png failed: boom", notifications.KindError)

	list := sink.List()
	if len(list) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(list))
	}
	for idx, want := range []string{a.ID, b.ID, c.ID} {
		if list[idx].ID != want {
			t.Fatalf("position %d: got %s want %s", idx, list[idx].ID, want)
		}
	}
	if a.ID == b.ID {
		t.Fatal("duplicate messages must get distinct ids")
	}
	if list[2].Kind != notifications.KindError {
		t.Fatalf("expected error kind, got %s", list[2].Kind)
	}
	if !list[0].ExpiresAt.Equal(list[0].CreatedAt.Add(time.Minute)) {
		t.Fatal("expected expiry at creation plus TTL")
	}
}

func TestSinkDismissAndClear(t *testing.T) {
	sink := notifications.NewSink(time.Minute)
	defer sink.Close()

	first := sink.Notify("one", notifications.KindSuccess)
	sink.Notify("two", notifications.KindSuccess)

	if !sink.Dismiss(first.ID) {
		t.Fatal("expected dismiss to find notification")
	}
	if sink.Dismiss(first.ID) {
		t.Fatal("second dismiss should report absence")
	}
	if got := len(sink.List()); got != 1 {
		t.Fatalf("expected 1 notification after dismiss, got %d", got)
	}

	sink.Clear()
	if got := len(sink.List()); got != 0 {
		t.Fatalf("expected empty sink after clear, got %d", got)
	}
}

func TestSinkExpiresAfterTTL(t *testing.T) {
	sink := notifications.NewSink(30 * time.Millisecond)
	defer sink.Close()

	sink.Notify("short lived", notifications.KindSuccess)
	if len(sink.List()) != 1 {
		t.Fatal("expected notification visible before expiry")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(sink.List()) == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("notification did not expire")
}

func TestSinkForwardsToPublisher(t *testing.T) {
	pub := &recordingPublisher{}
	sink := notifications.NewSink(time.Minute, notifications.WithPublisher(pub))

	sink.Notify("a.png processed", notifications.KindSuccess)
	sink.Notify("b.png failed", notifications.KindError)
	sink.Close()

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.events) != 2 {
		t.Fatalf("expected 2 published events, got %d", len(pub.events))
	}
	seen := map[notifications.Event]bool{}
	for _, event := range pub.events {
		seen[event] = true
	}
	if !seen[notifications.EventItemCropped] || !seen[notifications.EventItemFailed] {
		t.Fatalf("unexpected events %v", pub.events)
	}
}
