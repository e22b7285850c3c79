package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventUserRegistered  EventType = "USER_REGISTERED"
	EventUserLogin       EventType = "USER_LOGIN"
	EventUserLogout      EventType = "USER_LOGOUT"
	EventUserUpdated     EventType = "USER_UPDATED"
	EventTrialStarted    EventType = "TRIAL_STARTED"
	EventKeyGenerated    EventType = "KEY_GENERATED"
	EventKeyActivated    EventType = "KEY_ACTIVATED"
	EventKeyAssigned     EventType = "KEY_ASSIGNED"
	EventKeyUpdated      EventType = "KEY_UPDATED"
	EventKeyRevoked      EventType = "KEY_REVOKED"
	EventKeyDeleted      EventType = "KEY_DELETED"
	EventLicenseExtended EventType = "LICENSE_EXTENDED"
	EventCatalogImported EventType = "CATALOG_IMPORTED"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// Publisher is the write side of the bus used by services
type Publisher interface {
	Publish(event Event)
}

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber // Subscribers to all events
	synchronous bool
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// NewSyncEventBus creates a bus that delivers on the publishing goroutine
func NewSyncEventBus() *EventBus {
	eb := NewEventBus()
	eb.synchronous = true
	return eb
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	deliver := func(sub Subscriber) {
		if eb.synchronous {
			sub(event)
			return
		}
		go sub(event) // Run in goroutine to avoid blocking
	}

	for _, sub := range eb.subscribers[event.Type] {
		deliver(sub)
	}
	for _, sub := range eb.allSubs {
		deliver(sub)
	}
}

// NopPublisher discards every event
type NopPublisher struct{}

func (NopPublisher) Publish(Event) {}
