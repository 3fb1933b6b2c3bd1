package ws

import (
	"testing"

	"go.uber.org/zap"
)

func TestShouldBroadcastEvent(t *testing.T) {
	hub := NewHub(&HubConfig{
		BroadcastRedactions:  true,
		BroadcastRequests:    false,
		BroadcastConnections: true,
	}, zap.NewNop())

	if !hub.shouldBroadcastEvent(EventTypeRedaction) {
		t.Error("redaction events should be broadcast when enabled")
	}
	if hub.shouldBroadcastEvent(EventTypeRequestLog) {
		t.Error("request events should not be broadcast when disabled")
	}
	if !hub.shouldBroadcastEvent(EventTypeSystemStatus) {
		t.Error("status events should always be broadcast")
	}

	hub = NewHub(nil, zap.NewNop())
	if hub.shouldBroadcastEvent(EventTypeRedaction) {
		t.Error("nil config should broadcast nothing")
	}
}

func TestSubscriptionFiltering(t *testing.T) {
	hub := NewHub(&HubConfig{BroadcastRedactions: true}, zap.NewNop())

	unfiltered := &Client{ID: "a"}
	filtered := &Client{ID: "b", Subscription: &SubscriptionRequest{
		Events: []EventType{EventTypeRedaction},
	}}

	redaction := Event{Type: EventTypeRedaction}
	status := Event{Type: EventTypeSystemStatus}

	if !hub.shouldSendToClient(unfiltered, redaction) || !hub.shouldSendToClient(unfiltered, status) {
		t.Error("client without subscription should receive all events")
	}
	if !hub.shouldSendToClient(filtered, redaction) {
		t.Error("subscribed event type should be delivered")
	}
	if hub.shouldSendToClient(filtered, status) {
		t.Error("unsubscribed event type should be filtered out")
	}
}
