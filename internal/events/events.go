package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/valenrosasc/chatbot/internal/models"
)

const (
	AppointmentBooked    = "appointment.booked"
	AppointmentCancelled = "appointment.cancelled"
)

// Event is an appointment lifecycle change.
type Event struct {
	ID          string
	Type        string
	SenderID    string
	Appointment models.Appointment
	CreatedAt   time.Time
}

// EventHandler reacts to an event. Handlers must not block the caller for long.
type EventHandler func(ctx context.Context, event Event) error

// EventBus provides in-process pub/sub for appointment events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	logger      *zerolog.Logger
}

// NewEventBus constructs an empty bus.
func NewEventBus(logger *zerolog.Logger) *EventBus {
	l := logger.With().Str("component", "events").Logger()
	return &EventBus{subscribers: make(map[string][]EventHandler), logger: &l}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type. Handler errors are logged and
// never reach the publisher.
func (b *EventBus) Publish(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			b.logger.Error().Err(err).Str("event_id", event.ID).Str("type", event.Type).Msg("event handler failed")
		}
	}
}
