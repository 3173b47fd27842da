package eventbus

import (
	"testing"
	"time"
)

func TestPublishFansOut(t *testing.T) {
	b := New()
	a, unsubA := b.Subscribe(1)
	c, unsubC := b.Subscribe(1)
	defer unsubA()
	defer unsubC()

	b.Publish(Event{Type: SubscriptionAdded, Data: SubscriptionChange{Address: "+11234567890"}})

	for i, ch := range []<-chan Event{a, c} {
		select {
		case e := <-ch:
			if e.Type != SubscriptionAdded || e.Time.IsZero() {
				t.Fatalf("subscriber %d: unexpected event %+v", i, e)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d: no event", i)
		}
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: "a"})
	b.Publish(Event{Type: "b"})
	if got := Dropped(b); got != 1 {
		t.Fatalf("expected 1 dropped, got %d", got)
	}
}

func TestUnsubscribeClosesAndIsIdempotent(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel")
	}
	b.Publish(Event{Type: "after"})
}

func TestDiscard(t *testing.T) {
	b := Discard()
	b.Publish(Event{Type: "x"})
	ch, unsub := b.Subscribe(4)
	defer unsub()
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel")
	}
}
