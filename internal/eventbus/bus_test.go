package eventbus

import "testing"

func TestPublishFanout(t *testing.T) {
	t.Parallel()
	b := New()
	a, unsubA := b.Subscribe(2)
	c, unsubC := b.Subscribe(2)
	defer unsubA()
	defer unsubC()

	Publish(b, TypeTimerFired, "reminder_1")

	for i, ch := range []<-chan Event{a, c} {
		select {
		case e := <-ch:
			if e.Type != TypeTimerFired || e.Data != "reminder_1" || e.Time.IsZero() {
				t.Fatalf("sub %d got %+v", i, e)
			}
		default:
			t.Fatalf("sub %d got nothing", i)
		}
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	b.Publish(Event{Type: "a"})
	b.Publish(Event{Type: "b"}) // dropped, must not block
	if e := <-ch; e.Type != "a" {
		t.Fatalf("Type = %q, want a", e.Type)
	}
	unsub()
	unsub()
	b.Publish(Event{Type: "c"}) // no subscribers left
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after unsubscribe")
	}
}

func TestPublishNilBus(t *testing.T) {
	t.Parallel()
	Publish(nil, TypeTaskStarted, nil)
}
