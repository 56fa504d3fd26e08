package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Event is an internal lifecycle notification (import finished, product
// changed) consumed by the webhook dispatcher.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"event_type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// NewEvent builds an event with a fresh delivery-dedup ID
func NewEvent(eventType string, data map[string]interface{}) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// Bus is a bounded in-process queue between producers (orchestrator, catalog
// mutations) and the single dispatcher consumer. Publish never blocks: when
// the buffer is full the event is dropped and logged, so a slow subscriber
// can never stall ingestion.
type Bus struct {
	ch     chan Event
	logger *logrus.Entry
}

// NewBus creates a bus with the given buffer capacity
func NewBus(capacity int, logger *logrus.Logger) *Bus {
	if capacity <= 0 {
		capacity = 256
	}
	return &Bus{
		ch:     make(chan Event, capacity),
		logger: logger.WithField("component", "event-bus"),
	}
}

// Publish enqueues an event without blocking
func (b *Bus) Publish(event Event) {
	select {
	case b.ch <- event:
		b.logger.WithFields(logrus.Fields{
			"eventType": event.Type,
			"eventId":   event.ID,
		}).Debug("Event published")
	default:
		b.logger.WithFields(logrus.Fields{
			"eventType": event.Type,
			"eventId":   event.ID,
		}).Warn("Event bus full, dropping event")
	}
}

// Events returns the consumer side of the bus
func (b *Bus) Events() <-chan Event {
	return b.ch
}

// Close closes the bus; pending events remain readable until drained
func (b *Bus) Close() {
	close(b.ch)
}
