package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventSyncQueued      = "sync_queued"
	EventSyncCompleted   = "sync_completed"
	EventSyncFailed      = "sync_failed"
	EventCacheRefreshed  = "cache_refreshed"
	EventContentRollback = "content_rollback"
)

// SyncEventPayload describes the minimal queue item snapshot for event consumers.
type SyncEventPayload struct {
	QueueItemID string    `json:"queue_item_id,omitempty"`
	ContentType string    `json:"content_type"`
	ContentID   string    `json:"content_id"`
	Operation   string    `json:"operation,omitempty"`
	Success     bool      `json:"success,omitempty"`
	Error       string    `json:"error,omitempty"`
	Version     int       `json:"version,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
