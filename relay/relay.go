// Package relay forwards applied events from the in-process event bus
// to external transports (Redis Pub/Sub, Kafka). Relays are optional:
// a relay that is not enabled in configuration is never constructed.
//
// Delivery matches the bus semantics: at-least-once while connected,
// no replay. Downstream consumers reconcile against the derived state
// store after gaps.
package relay

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/tokenlytics/engine-go/events"
)

// subscriptionBuffer is the bus channel depth for a relay subscription.
// Relays write to the network, so they need more slack than in-process
// consumers before the bus starts dropping.
const subscriptionBuffer = 1024

// allEventTypes lists every topic category the bus can carry. Relays
// forward everything; filtering is the downstream consumer's job.
func allEventTypes() []events.EventType {
	return []events.EventType{
		events.EventTypeTransaction,
		events.EventTypeGovernance,
		events.EventTypeMetrics,
	}
}

// envelope is the wire format shared by all external transports
type envelope struct {
	Type      events.EventType `json:"type"`
	Kind      events.Kind      `json:"kind"`
	Timestamp time.Time        `json:"timestamp"`
	Payload   events.Event     `json:"payload"`
}

// encodeEvent serializes an event into the transport envelope
func encodeEvent(event events.Event) ([]byte, error) {
	return json.Marshal(envelope{
		Type:      event.Type(),
		Kind:      event.Kind(),
		Timestamp: event.Timestamp(),
		Payload:   event,
	})
}

// partitionKey returns a stable key for ordering-sensitive transports.
// Chain events key on their originating transaction so all logs of one
// transaction land on the same partition.
func partitionKey(event events.Event) string {
	if ce, ok := event.(events.ChainEvent); ok {
		return ce.Ref().TxHash.Hex()
	}
	return string(event.Kind())
}

// drainLoop pulls events from a bus subscription until the channel
// closes or done fires, invoking forward for each event. Forward errors
// are logged and counted by the caller, never fatal.
func drainLoop(done <-chan struct{}, sub *events.Subscription, forward func(events.Event), logger *zap.Logger) {
	for {
		select {
		case <-done:
			return
		case event, ok := <-sub.Channel:
			if !ok {
				logger.Debug("bus subscription closed")
				return
			}
			forward(event)
		}
	}
}
