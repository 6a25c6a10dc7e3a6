package eventbus

import "testing"

func TestPublishDeliversToSubscriber(t *testing.T) {
	b := New(4)
	ch := b.Subscribe(TopicSessionEvent, "test")

	b.Publish(Event{Topic: TopicSessionEvent, SessionID: "s1", Payload: "connected"})

	select {
	case ev := <-ch:
		if ev.SessionID != "s1" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	default:
		t.Fatal("expected event to be delivered")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := New(1)
	ch := b.Subscribe(TopicFrameIn, "slow")

	b.Publish(Event{Topic: TopicFrameIn, SessionID: "s1"})
	b.Publish(Event{Topic: TopicFrameIn, SessionID: "s2"}) // buffer full, dropped

	if len(ch) != 1 {
		t.Fatalf("expected buffer depth 1, got %d", len(ch))
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(4)
	b.Subscribe(TopicMetricsTick, "m")
	b.Unsubscribe(TopicMetricsTick, "m")

	if b.SubscriberCount(TopicMetricsTick) != 0 {
		t.Fatalf("expected 0 subscribers after unsubscribe")
	}
	// Publish after unsubscribe must not panic.
	b.Publish(Event{Topic: TopicMetricsTick})
}
