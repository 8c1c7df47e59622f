package events

import (
	"testing"
	"time"
)

func TestPublishFanOut(t *testing.T) {
	bus := NewBus()
	a, unsubA := bus.Subscribe(EventOrderAccepted, 1)
	defer unsubA()
	b, unsubB := bus.SubscribeMany([]Event{EventOrderAccepted, EventTrailStopped}, 2)
	defer unsubB()

	bus.Publish(EventOrderAccepted, "ticket-1")
	bus.Publish(EventTrailStopped, "ticket-2")

	select {
	case env := <-a:
		if env.Type != EventOrderAccepted || env.Payload != "ticket-1" || env.ID == "" {
			t.Fatalf("env=%+v, expected order.accepted with an id", env)
		}
	case <-time.After(time.Second):
		t.Fatalf("subscriber a received nothing")
	}
	for _, want := range []Event{EventOrderAccepted, EventTrailStopped} {
		select {
		case env := <-b:
			if env.Type != want {
				t.Fatalf("Type=%v, expected %v", env.Type, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber b missed %v", want)
		}
	}
	select {
	case env := <-a:
		t.Fatalf("subscriber a received unsubscribed topic %v", env.Type)
	default:
	}
}

func TestPublishDropsForSlowSubscriber(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(EventOrderRetry, 1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(EventOrderRetry, i)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Publish blocked on a full subscriber")
	}
	if env := <-ch; env.Payload != 0 {
		t.Fatalf("Payload=%v, expected the first event kept", env.Payload)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.SubscribeMany(All, 1)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatalf("channel still open after unsubscribe")
	}
	bus.Publish(EventSessionChange, nil)
}

func TestNilBusPublish(t *testing.T) {
	var bus *Bus
	bus.Publish(EventOrderSubmitted, "ignored")
}
