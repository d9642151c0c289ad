package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/bookingsystem/internal/domain"
)

func TestPublishReachesItemSubscribers(t *testing.T) {
	b := NewBroker()

	ch, cancel := b.Subscribe(1)
	defer cancel()
	other, cancelOther := b.Subscribe(2)
	defer cancelOther()

	b.Publish(Event{Type: TypeCreated, Reservation: domain.Reservation{ID: 10, ItemID: 1}})

	select {
	case ev := <-ch:
		assert.Equal(t, TypeCreated, ev.Type)
		assert.Equal(t, int64(10), ev.Reservation.ID)
	case <-time.After(time.Second):
		t.Fatal("expected event for item 1")
	}

	select {
	case ev := <-other:
		t.Fatalf("subscriber for item 2 received foreign event: %+v", ev)
	default:
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	b := NewBroker()

	ch, cancel := b.Subscribe(1)
	cancel()

	b.Publish(Event{Type: TypeCancelled, Reservation: domain.Reservation{ItemID: 1}})

	select {
	case _, ok := <-ch:
		require.False(t, ok, "expected no delivery after cancel")
	default:
	}
}

func TestPublishNeverBlocksOnSlowSubscriber(t *testing.T) {
	b := NewBroker()

	_, cancel := b.Subscribe(1)
	defer cancel()

	// Overflow the subscriber buffer; the publisher must not stall.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer*2; i++ {
			b.Publish(Event{Type: TypeCreated, Reservation: domain.Reservation{ItemID: 1}})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}
