package eventbus

import (
	"testing"
	"time"
)

func TestPublishFanout(t *testing.T) {
	t.Parallel()
	b := New()
	a, unsubA := b.Subscribe(1)
	c, unsubC := b.Subscribe(1)
	defer unsubC()

	b.Publish(Event{Type: TopicCycleFinished, Data: 3})
	for _, ch := range []<-chan Event{a, c} {
		select {
		case e := <-ch:
			if e.Type != TopicCycleFinished || e.Time.IsZero() {
				t.Fatalf("unexpected event %+v", e)
			}
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}

	unsubA()
	unsubA()
	b.Publish(Event{Type: TopicCycleFailed})
	if _, ok := <-a; ok {
		t.Fatal("unsubscribed channel should be closed")
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: "first"})
	b.Publish(Event{Type: "second"})
	if e := <-ch; e.Type != "first" {
		t.Fatalf("got %q, want first", e.Type)
	}
	select {
	case e := <-ch:
		t.Fatalf("unexpected %q", e.Type)
	default:
	}
}

func TestOrNop(t *testing.T) {
	t.Parallel()
	OrNop(nil).Publish(Event{Type: "x"})
	if _, ok := OrNop(New()).(Nop); ok {
		t.Fatal("non-nil bus must be returned as is")
	}
}
