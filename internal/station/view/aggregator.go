// Package view folds the inbound event stream into immutable snapshots of
// everything the GUI renders. One goroutine applies events; any number of
// readers load the latest snapshot without locks.
package view

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/rxtech-lab/argo-station/internal/logger"
	"github.com/rxtech-lab/argo-station/internal/types"
)

// EventSource is where the aggregator pulls decoded events from. The
// connection manager's queue satisfies it; tests feed a fake.
type EventSource interface {
	Next(ctx context.Context) (types.InboundEvent, error)
	Dropped() uint64
}

// Aggregator consumes events on its own goroutine and publishes a fresh
// immutable snapshot after every state-changing event. Published snapshots
// are never mutated; each publication swaps in a new entity map, so a
// reader holding an old snapshot keeps a consistent view.
type Aggregator struct {
	source EventSource
	log    *logger.Logger

	snapshot atomic.Pointer[types.ViewSnapshot]

	// dirty is a capacity-one wakeup for the render side. Publishing when
	// the signal is already pending is a no-op; the reader coalesces.
	dirty chan struct{}

	// Working state, touched only by the Run goroutine.
	sequence   uint64
	entities   map[string]types.EntityState
	notices    []types.Notice
	stale      bool
	connStatus types.ConnectionStatus
}

// NewAggregator creates an aggregator over the given event source. The
// bootstrap snapshot is available immediately, before Run starts.
func NewAggregator(source EventSource, log *logger.Logger) *Aggregator {
	a := &Aggregator{
		source:     source,
		log:        log,
		dirty:      make(chan struct{}, 1),
		entities:   map[string]types.EntityState{},
		stale:      true,
		connStatus: types.ConnectionStatus{State: types.ConnStateDisconnected},
	}

	a.snapshot.Store(types.NewBootstrapSnapshot())

	return a
}

// Latest returns the most recently published snapshot. Never nil.
func (a *Aggregator) Latest() *types.ViewSnapshot {
	return a.snapshot.Load()
}

// Dirty returns a channel that receives a signal when a new snapshot has
// been published since the last receive. Signals coalesce.
func (a *Aggregator) Dirty() <-chan struct{} {
	return a.dirty
}

// Run applies events until ctx is cancelled.
func (a *Aggregator) Run(ctx context.Context) error {
	for {
		event, err := a.source.Next(ctx)
		if err != nil {
			return err
		}

		if a.apply(event) {
			a.publish()
		}
	}
}

// apply folds one event into the working state. Returns false when the
// event changes nothing a reader could observe.
func (a *Aggregator) apply(event types.InboundEvent) bool {
	switch e := event.(type) {
	case types.EntityUpdateEvent:
		next := a.cloneEntities()
		next[e.Entity.ID] = e.Entity
		a.entities = next

		return true

	case types.EntityRemoveEvent:
		if _, ok := a.entities[e.EntityID]; !ok {
			// Remove for an entity that was never streamed. Harmless.
			a.log.Debug("Ignoring remove for unknown entity",
				zap.String("entity_id", e.EntityID),
			)

			return false
		}

		next := a.cloneEntities()
		delete(next, e.EntityID)
		a.entities = next

		return true

	case types.NoticeEvent:
		a.notices = appendNotice(a.notices, types.Notice{
			Level:   e.Level,
			Message: e.Message,
			SentAt:  e.SentAt,
		})

		return true

	case types.ConnectionChangeEvent:
		a.connStatus = e.Status
		a.stale = e.Status.State != types.ConnStateConnected

		return true

	case types.HeartbeatEvent:
		// Liveness is handled upstream; nothing visible changes here.
		return false

	default:
		a.log.Warn("Unhandled event type in aggregator")

		return false
	}
}

// publish swaps in a new snapshot. Working maps and slices are referenced,
// not copied: apply already replaced them on mutation, so the previous
// snapshot still owns its old versions.
func (a *Aggregator) publish() {
	a.sequence++

	notices := make([]types.Notice, len(a.notices))
	copy(notices, a.notices)

	a.snapshot.Store(&types.ViewSnapshot{
		Sequence:      a.sequence,
		GeneratedAt:   time.Now(),
		Stale:         a.stale,
		ConnStatus:    a.connStatus,
		Entities:      a.entities,
		Notices:       notices,
		DroppedEvents: a.source.Dropped(),
	})

	select {
	case a.dirty <- struct{}{}:
	default:
	}
}

func (a *Aggregator) cloneEntities() map[string]types.EntityState {
	next := make(map[string]types.EntityState, len(a.entities)+1)
	for id, e := range a.entities {
		next[id] = e
	}

	return next
}

// appendNotice keeps the most recent MaxSnapshotNotices notices, oldest
// first.
func appendNotice(notices []types.Notice, n types.Notice) []types.Notice {
	notices = append(notices, n)
	if len(notices) > types.MaxSnapshotNotices {
		trimmed := make([]types.Notice, types.MaxSnapshotNotices)
		copy(trimmed, notices[len(notices)-types.MaxSnapshotNotices:])

		return trimmed
	}

	return notices
}
