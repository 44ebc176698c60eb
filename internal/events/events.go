package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const TypeSubscriptionUpdated = "SUBSCRIPTION_UPDATED"

// SubscriptionData is the payload broadcast after a successful payment.
type SubscriptionData struct {
	Email          string `json:"email"`
	SubscriptionID string `json:"subscriptionId"`
	Tier           string `json:"tier"`
	ExpiresAt      int64  `json:"expiresAt"`
}

// Event is one broadcast notification.
type Event struct {
	ID   string           `json:"id"`
	Type string           `json:"type"`
	Data SubscriptionData `json:"data"`
	At   time.Time        `json:"at"`
}

// Handler processes one event. A nil return is the acknowledgement.
type Handler func(Event) error

// Broadcaster delivers events to every subscriber. Delivery is synchronous
// and a listener that fails to acknowledge never blocks the others.
type Broadcaster struct {
	log zerolog.Logger

	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewBroadcaster(log zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		log:      log.With().Str("component", "events").Logger(),
		handlers: make(map[string]Handler),
	}
}

// Subscribe registers h under name, replacing any previous handler with
// the same name.
func (b *Broadcaster) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = h
}

// Unsubscribe removes the named handler.
func (b *Broadcaster) Unsubscribe(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, name)
}

// SubscriptionUpdated builds and publishes the payment-success event.
// Returns the number of listeners that acknowledged.
func (b *Broadcaster) SubscriptionUpdated(data SubscriptionData) int {
	return b.Publish(Event{
		ID:   uuid.NewString(),
		Type: TypeSubscriptionUpdated,
		Data: data,
		At:   time.Now(),
	})
}

// Publish delivers ev to all subscribers and returns the ack count.
func (b *Broadcaster) Publish(ev Event) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	acked := 0
	for name, h := range b.handlers {
		if err := h(ev); err != nil {
			b.log.Warn().Err(err).Str("listener", name).Str("event", ev.Type).
				Msg("listener did not acknowledge")
			continue
		}
		acked++
	}
	return acked
}
