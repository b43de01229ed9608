package conn

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rxtech-lab/argo-station/internal/types"
)

// EventQueue is a bounded FIFO buffer between the network thread (producer)
// and the aggregator (consumer). The producer never blocks: when the queue
// is full the oldest evictable event is dropped and a counter increments.
//
// Heartbeats and connection-state changes are never evicted. Heartbeat
// absence drives liveness detection, and a lost state change would leave
// the snapshot's staleness flag wrong until the next transition.
type EventQueue struct {
	mu      sync.Mutex
	events  []types.InboundEvent
	cap     int
	notify  chan struct{}
	dropped atomic.Uint64
}

// NewEventQueue creates a queue holding at most capacity events.
func NewEventQueue(capacity int) *EventQueue {
	if capacity <= 0 {
		capacity = 1
	}

	return &EventQueue{
		events: make([]types.InboundEvent, 0, capacity),
		cap:    capacity,
		notify: make(chan struct{}, 1),
	}
}

// evictable reports whether an event may be dropped under overflow.
func evictable(event types.InboundEvent) bool {
	switch event.(type) {
	case types.HeartbeatEvent, types.ConnectionChangeEvent:
		return false
	default:
		return true
	}
}

// Push appends an event, evicting the oldest evictable event if the queue
// is full. Returns false if the incoming event itself had to be dropped
// (full queue holding only non-evictable events).
func (q *EventQueue) Push(event types.InboundEvent) bool {
	q.mu.Lock()

	if len(q.events) >= q.cap {
		evicted := false

		for i, e := range q.events {
			if evictable(e) {
				q.events = append(q.events[:i], q.events[i+1:]...)
				q.dropped.Add(1)

				evicted = true

				break
			}
		}

		if !evicted {
			if !evictable(event) {
				// Make room for a liveness-critical event by dropping the
				// oldest entry regardless.
				q.events[0] = nil
				q.events = q.events[1:]
				q.dropped.Add(1)
			} else {
				q.mu.Unlock()
				q.dropped.Add(1)

				return false
			}
		}
	}

	q.events = append(q.events, event)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}

	return true
}

// Next blocks until an event is available or ctx is cancelled. Events are
// returned strictly in push order.
func (q *EventQueue) Next(ctx context.Context) (types.InboundEvent, error) {
	for {
		q.mu.Lock()
		if len(q.events) > 0 {
			event := q.events[0]
			// Clear the slot so the backing array does not pin
			// consumed events.
			q.events[0] = nil
			q.events = q.events[1:]
			q.mu.Unlock()

			return event, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.notify:
		}
	}
}

// Len returns the number of buffered events.
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.events)
}

// Dropped returns the number of events evicted or rejected under overflow.
func (q *EventQueue) Dropped() uint64 {
	return q.dropped.Load()
}
