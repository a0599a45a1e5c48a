package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/spec-kit/lifecycle-engine/internal/domain"
	"github.com/spec-kit/lifecycle-engine/internal/events"
)

func receive(t *testing.T, sub *subscriber) []byte {
	t.Helper()
	select {
	case data := <-sub.send:
		return data
	case <-time.After(time.Second):
		t.Fatal("expected an event")
	}
	return nil
}

func expectNothing(t *testing.T, sub *subscriber) {
	t.Helper()
	select {
	case data := <-sub.send:
		t.Fatalf("unexpected event %s", data)
	default:
	}
}

func TestHubBroadcastsToEveryone(t *testing.T) {
	hub := NewHub(nil)
	a := hub.subscribe("staff-a")
	b := hub.subscribe("staff-b")

	err := hub.Publish(context.Background(), events.Event{
		ID:     "evt-1",
		Type:   events.EventItemStatusChanged,
		ItemID: "item-1",
		Payload: events.StatusChangedPayload{
			OldStatus: domain.StatusOpen,
			NewStatus: domain.StatusPending,
		},
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	for _, sub := range []*subscriber{a, b} {
		var got events.Event
		if err := json.Unmarshal(receive(t, sub), &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.ID != "evt-1" || got.ItemID != "item-1" {
			t.Fatalf("unexpected event %+v", got)
		}
	}
}

func TestHubRoutesAddressedEvents(t *testing.T) {
	hub := NewHub(nil)
	target := hub.subscribe("staff-a")
	other := hub.subscribe("staff-b")

	_ = hub.Publish(context.Background(), events.Event{
		Type:   events.EventEscalationRaised,
		ItemID: "item-1",
		Payload: events.EscalationPayload{
			EscalationID: "esc-1",
			Targets:      []string{"staff-a"},
			Recipient:    "staff-a",
		},
	})

	receive(t, target)
	expectNothing(t, other)
}

func TestHubDropsSlowSubscribers(t *testing.T) {
	hub := NewHub(nil)
	sub := hub.subscribe("staff-a")
	for i := 0; i < sendBuffer+1; i++ {
		hub.Broadcast([]byte(`{"type":"message_added"}`))
	}
	if hub.Len() != 0 {
		t.Fatalf("expected slow subscriber to be dropped, have %d", hub.Len())
	}
	// unsubscribe after drop must not panic on the closed channel
	hub.unsubscribe(sub)
}

func TestRelayIgnoresOwnMessages(t *testing.T) {
	hub := NewHub(nil)
	sub := hub.subscribe("staff-a")
	relay := NewRedisRelay(nil, "events", hub, nil)

	own, _ := json.Marshal(envelope{Origin: relay.origin, Event: json.RawMessage(`{"type":"item_created"}`)})
	relay.handle(own)
	expectNothing(t, sub)

	remote, _ := json.Marshal(envelope{Origin: "other-instance", Event: json.RawMessage(`{"type":"item_created","item_id":"item-9"}`)})
	relay.handle(remote)
	data := receive(t, sub)
	var got events.Event
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ItemID != "item-9" {
		t.Fatalf("unexpected relayed event %s", data)
	}

	relay.handle([]byte("not json"))
	expectNothing(t, sub)
}
