// Package websocket streams applied events to browser and service
// clients over gorilla/websocket connections. Clients subscribe to
// named topics; the hub fans out, evicting clients that cannot keep up.
package websocket

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tokenlytics/engine-go/events"
)

// Topic identifies a subscription stream
type Topic string

const (
	// TopicTransactions covers Transfer, Mint, Burn, FeeCollected and
	// UserActivity events
	TopicTransactions Topic = "transactions"

	// TopicGovernance covers ProposalCreated and VoteCast events
	TopicGovernance Topic = "governance"

	// TopicMetrics covers periodic token metrics snapshots
	TopicMetrics Topic = "metrics"
)

// userTopicPrefix marks per-address rooms: user:0x...
const userTopicPrefix = "user:"

// UserTopic returns the per-address room topic for an address
func UserTopic(addr common.Address) Topic {
	return Topic(userTopicPrefix + strings.ToLower(addr.Hex()))
}

// ParseTopic validates a client-supplied topic string
func ParseTopic(s string) (Topic, error) {
	switch Topic(s) {
	case TopicTransactions, TopicGovernance, TopicMetrics:
		return Topic(s), nil
	}

	if rest, ok := strings.CutPrefix(s, userTopicPrefix); ok {
		if !common.IsHexAddress(rest) {
			return "", fmt.Errorf("invalid address in topic %q", s)
		}
		return UserTopic(common.HexToAddress(rest)), nil
	}

	return "", fmt.Errorf("unknown topic %q", s)
}

// addressOfUserTopic extracts the address from a per-address room topic
func addressOfUserTopic(topic Topic) (common.Address, bool) {
	rest, ok := strings.CutPrefix(string(topic), userTopicPrefix)
	if !ok || !common.IsHexAddress(rest) {
		return common.Address{}, false
	}
	return common.HexToAddress(rest), true
}

// topicForType maps a bus event type to its base topic
func topicForType(et events.EventType) Topic {
	switch et {
	case events.EventTypeTransaction:
		return TopicTransactions
	case events.EventTypeGovernance:
		return TopicGovernance
	case events.EventTypeMetrics:
		return TopicMetrics
	}
	return Topic(et)
}

// Message is the framing for all client-facing messages
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SubscribeRequest is the payload of subscribe and unsubscribe messages
type SubscribeRequest struct {
	Topic string `json:"topic"`
}

// EventPayload is the payload of event messages
type EventPayload struct {
	Topic Topic        `json:"topic"`
	Kind  events.Kind  `json:"kind"`
	Data  events.Event `json:"data"`
}

// ErrorMessage is the payload of error messages
type ErrorMessage struct {
	Error string `json:"error"`
}

// SuccessMessage is the payload of success messages
type SuccessMessage struct {
	Message string `json:"message"`
}
