package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventTrainingCreated   = "training_created"
	EventTrainingBooked    = "training_booked"
	EventTrainingUpdated   = "training_updated"
	EventTrainingCancelled = "training_cancelled"
	EventTrainingCompleted = "training_completed"

	EventClientLocationChanged    = "client_location_changed"
	EventClientPreferencesChanged = "client_preferences_changed"
)

// TrainingEventPayload describes the minimal training snapshot for event consumers.
type TrainingEventPayload struct {
	TrainingID int64   `json:"training_id"`
	TrainerID  int64   `json:"trainer_id"`
	RoomID     int64   `json:"room_id"`
	Status     string  `json:"status"`
	ClientIDs  []int64 `json:"client_ids,omitempty"`
}

// ClientEventPayload identifies the client whose profile changed.
type ClientEventPayload struct {
	ClientID int64 `json:"client_id"`
}

// Event represents a lightweight domain event.
type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
	Processed bool
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

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
