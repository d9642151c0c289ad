// Package events carries reservation change notifications from the
// booking engine to in-process consumers: the websocket stream handler
// and anything else that wants to watch an item's calendar move.
package events

import (
	"sync"

	"github.com/yourorg/bookingsystem/internal/domain"
)

// Event types published by the booking engine.
const (
	TypeCreated     = "reservation.created"
	TypeRescheduled = "reservation.rescheduled"
	TypeCancelled   = "reservation.cancelled"
)

// Event describes one committed change to an item's reservations
type Event struct {
	Type        string             `json:"type"`
	Reservation domain.Reservation `json:"reservation"`
}

const subscriberBuffer = 16

// Broker is an in-process publish/subscribe hub keyed by item ID.
// Publish never blocks: a subscriber that falls behind loses events
// rather than stalling the booking path.
type Broker struct {
	mu   sync.RWMutex
	subs map[int64]map[chan Event]struct{}
}

// NewBroker creates an event broker
func NewBroker() *Broker {
	return &Broker{subs: map[int64]map[chan Event]struct{}{}}
}

// Subscribe registers interest in one item's events. The returned cancel
// function must be called to release the subscription.
func (b *Broker) Subscribe(itemID int64) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	if b.subs[itemID] == nil {
		b.subs[itemID] = map[chan Event]struct{}{}
	}
	b.subs[itemID][ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if set, ok := b.subs[itemID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(b.subs, itemID)
			}
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers an event to all subscribers of the reservation's item
func (b *Broker) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[ev.Reservation.ItemID] {
		select {
		case ch <- ev:
		default:
		}
	}
}
