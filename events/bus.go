package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// SubscriptionID is a unique identifier for a subscription
type SubscriptionID string

// SubscriptionStats tracks statistics for a subscription
type SubscriptionStats struct {
	// EventsReceived is the total number of events received by this subscription
	EventsReceived atomic.Uint64

	// EventsDropped is the number of events dropped due to full channel
	EventsDropped atomic.Uint64

	// LastEventTime is the timestamp of the last event received
	LastEventTime atomic.Int64 // Unix timestamp in nanoseconds

	// CreatedAt is when the subscription was created
	CreatedAt time.Time
}

// Subscription represents a consumer subscription to engine events.
//
// Delivery is at-least-once for connected subscribers and there is no
// replay buffer: a subscriber that falls behind has events dropped and
// must reconcile against the derived state store.
type Subscription struct {
	// ID is the unique identifier for this subscription
	ID SubscriptionID

	// EventTypes is the set of topic categories this subscription covers
	EventTypes map[EventType]bool

	// Filter contains the filtering conditions for this subscription.
	// If nil, no filtering is applied (receives all events of matching types)
	Filter *Filter

	// Channel is where events are delivered to the subscriber
	Channel chan Event

	// CancelFunc allows canceling this subscription
	CancelFunc context.CancelFunc

	// Stats tracks statistics for this subscription
	Stats SubscriptionStats
}

// EventBus is the live publisher fanning out applied events to subscribers
type EventBus struct {
	// subscribers is the registry of active subscriptions
	subscribers map[SubscriptionID]*Subscription
	mu          sync.RWMutex

	// publishCh is the channel for publishing events
	publishCh chan Event

	// subscribeCh is the channel for new subscription requests
	subscribeCh chan *Subscription

	// unsubscribeCh is the channel for unsubscribe requests
	unsubscribeCh chan SubscriptionID

	// done signals when the event bus has stopped
	done chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	// stats tracks event bus statistics
	stats struct {
		totalEvents     atomic.Uint64
		totalDeliveries atomic.Uint64
		droppedEvents   atomic.Uint64
	}

	// metrics holds Prometheus metrics (optional)
	metrics *Metrics
}

// NewEventBus creates a new EventBus with the given buffer sizes
func NewEventBus(publishBufferSize, subscribeBufferSize int) *EventBus {
	ctx, cancel := context.WithCancel(context.Background())

	return &EventBus{
		subscribers:   make(map[SubscriptionID]*Subscription),
		publishCh:     make(chan Event, publishBufferSize),
		subscribeCh:   make(chan *Subscription, subscribeBufferSize),
		unsubscribeCh: make(chan SubscriptionID, subscribeBufferSize),
		done:          make(chan struct{}),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// SetMetrics enables Prometheus metrics for the EventBus.
// This is optional - if not called, metrics will not be collected.
func (eb *EventBus) SetMetrics(metrics *Metrics) {
	eb.metrics = metrics
}

// Run starts the event bus main loop.
// This should be called in a goroutine.
func (eb *EventBus) Run() {
	defer close(eb.done)

	for {
		select {
		case <-eb.ctx.Done():
			eb.closeAllSubscriptions()
			return

		case sub := <-eb.subscribeCh:
			eb.mu.Lock()
			eb.subscribers[sub.ID] = sub
			eb.mu.Unlock()

			if eb.metrics != nil {
				eb.metrics.RecordSubscription()
				eb.updateSubscriberMetrics()
			}

		case subID := <-eb.unsubscribeCh:
			eb.mu.Lock()
			if sub, exists := eb.subscribers[subID]; exists {
				close(sub.Channel)
				delete(eb.subscribers, subID)
			}
			eb.mu.Unlock()

			if eb.metrics != nil {
				eb.metrics.RecordUnsubscription()
				eb.updateSubscriberMetrics()
			}

		case event := <-eb.publishCh:
			eb.stats.totalEvents.Add(1)

			if eb.metrics != nil {
				eb.metrics.RecordEventPublished(event.Type())
			}

			eb.broadcastEvent(event)
		}
	}
}

// broadcastEvent sends an event to all interested subscribers
func (eb *EventBus) broadcastEvent(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	eventType := event.Type()

	for _, sub := range eb.subscribers {
		if !sub.EventTypes[eventType] {
			continue
		}

		if sub.Filter != nil && !sub.Filter.Match(event) {
			if eb.metrics != nil {
				eb.metrics.RecordEventFiltered(eventType)
			}
			continue
		}

		// Non-blocking send: a slow subscriber must never backpressure
		// the applier, so a full channel drops the event instead.
		select {
		case sub.Channel <- event:
			eb.stats.totalDeliveries.Add(1)
			sub.Stats.EventsReceived.Add(1)
			sub.Stats.LastEventTime.Store(time.Now().UnixNano())
			if eb.metrics != nil {
				eb.metrics.RecordEventDelivered(eventType)
			}
		default:
			eb.stats.droppedEvents.Add(1)
			sub.Stats.EventsDropped.Add(1)
			if eb.metrics != nil {
				eb.metrics.RecordEventDropped(eventType)
			}
		}
	}
}

// closeAllSubscriptions closes all active subscriptions
func (eb *EventBus) closeAllSubscriptions() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for _, sub := range eb.subscribers {
		close(sub.Channel)
		if sub.CancelFunc != nil {
			sub.CancelFunc()
		}
	}

	eb.subscribers = make(map[SubscriptionID]*Subscription)
}

// Stop gracefully stops the event bus
func (eb *EventBus) Stop() {
	eb.cancel()
	<-eb.done
}

// SubscriberCount returns the current number of active subscribers
func (eb *EventBus) SubscriberCount() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.subscribers)
}

// Stats returns the current statistics
func (eb *EventBus) Stats() (totalEvents, totalDeliveries, droppedEvents uint64) {
	return eb.stats.totalEvents.Load(),
		eb.stats.totalDeliveries.Load(),
		eb.stats.droppedEvents.Load()
}

// Publish publishes an event to all interested subscribers.
// This is a non-blocking operation - if the publish channel is full, it
// returns false and the event is not delivered.
func (eb *EventBus) Publish(event Event) bool {
	select {
	case <-eb.ctx.Done():
		return false
	default:
	}

	select {
	case eb.publishCh <- event:
		return true
	default:
		return false
	}
}

// Subscribe creates a new subscription for the given topic categories.
// Returns a Subscription that can be used to receive events.
// filter can be nil for no filtering.
func (eb *EventBus) Subscribe(id SubscriptionID, eventTypes []EventType, filter *Filter, channelSize int) *Subscription {
	if filter != nil {
		if err := filter.Validate(); err != nil {
			return nil
		}
		// Clone to prevent external modification after registration
		filter = filter.Clone()
	}

	eventTypeMap := make(map[EventType]bool)
	for _, et := range eventTypes {
		eventTypeMap[et] = true
	}

	ctx, cancel := context.WithCancel(eb.ctx)

	sub := &Subscription{
		ID:         id,
		EventTypes: eventTypeMap,
		Filter:     filter,
		Channel:    make(chan Event, channelSize),
		CancelFunc: cancel,
		Stats: SubscriptionStats{
			CreatedAt: time.Now(),
		},
	}

	select {
	case eb.subscribeCh <- sub:
		return sub
	case <-ctx.Done():
		close(sub.Channel)
		return nil
	}
}

// Unsubscribe removes a subscription
func (eb *EventBus) Unsubscribe(id SubscriptionID) {
	select {
	case eb.unsubscribeCh <- id:
	case <-eb.ctx.Done():
	}
}

// updateSubscriberMetrics updates subscriber count metrics
func (eb *EventBus) updateSubscriberMetrics() {
	if eb.metrics == nil {
		return
	}

	eb.mu.RLock()
	totalCount := len(eb.subscribers)
	typeCount := make(map[EventType]int)
	for _, sub := range eb.subscribers {
		for eventType := range sub.EventTypes {
			typeCount[eventType]++
		}
	}
	eb.mu.RUnlock()

	eb.metrics.UpdateSubscriberCount(totalCount)
	for eventType, count := range typeCount {
		eb.metrics.UpdateSubscribersByType(eventType, count)
	}
}

// SubscriberInfo contains information about a subscriber
type SubscriberInfo struct {
	ID             SubscriptionID
	EventTypes     []EventType
	HasFilter      bool
	EventsReceived uint64
	EventsDropped  uint64
	CreatedAt      time.Time
}

// GetSubscriberInfo returns information about a specific subscriber
func (eb *EventBus) GetSubscriberInfo(id SubscriptionID) *SubscriberInfo {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	sub, exists := eb.subscribers[id]
	if !exists {
		return nil
	}

	eventTypes := make([]EventType, 0, len(sub.EventTypes))
	for et := range sub.EventTypes {
		eventTypes = append(eventTypes, et)
	}

	return &SubscriberInfo{
		ID:             sub.ID,
		EventTypes:     eventTypes,
		HasFilter:      sub.Filter != nil,
		EventsReceived: sub.Stats.EventsReceived.Load(),
		EventsDropped:  sub.Stats.EventsDropped.Load(),
		CreatedAt:      sub.Stats.CreatedAt,
	}
}
