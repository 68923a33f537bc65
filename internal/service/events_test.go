package service

import "testing"

func TestEventBus(t *testing.T) {
	bus := NewEventBus()
	fast := make(chan Event, 2)
	full := make(chan Event) // never read
	bus.Subscribe(fast)
	bus.Subscribe(full)

	bus.Publish(Event{Type: EventDeploymentStarted})

	select {
	case ev := <-fast:
		if ev.Type != EventDeploymentStarted || ev.Time.IsZero() {
			t.Errorf("unexpected event %+v", ev)
		}
	default:
		t.Fatal("expected event on subscriber")
	}

	bus.Unsubscribe(fast)
	bus.Publish(Event{Type: EventDeploymentFinished})
	if len(fast) != 0 {
		t.Error("unsubscribed channel received an event")
	}
}
