package types

import (
	"sort"
	"time"
)

// MaxSnapshotNotices bounds the notice ring carried on each snapshot.
const MaxSnapshotNotices = 16

// Notice is a backend control notice retained for display.
type Notice struct {
	Level   NoticeLevel
	Message string
	SentAt  time.Time
}

// ViewSnapshot is an immutable, internally consistent copy of all known
// entity states at a given sequence number. Snapshots are shared between
// the aggregator (producer) and the render side (readers); a snapshot is
// never mutated after publication, so readers may hold one across frames
// without locking.
type ViewSnapshot struct {
	// Sequence increases strictly by one per applied event for the
	// lifetime of the station. Within one snapshot every entry reflects
	// events processed up to this sequence number.
	Sequence uint64
	// GeneratedAt is the wall-clock time of publication.
	GeneratedAt time.Time
	// Stale is set while the connection is down; entity data keeps the
	// last known values so the GUI can render them greyed out.
	Stale bool
	// ConnStatus is the connection status at publication time.
	ConnStatus ConnectionStatus
	// Entities maps entity id to latest known state. Readers must treat
	// the map as read-only.
	Entities map[string]EntityState
	// Notices holds the most recent backend notices, oldest first.
	Notices []Notice
	// DroppedEvents counts events evicted from the ingest queue under
	// overflow since station start.
	DroppedEvents uint64
}

// NewBootstrapSnapshot returns the empty snapshot the render bridge serves
// before the first event is applied.
func NewBootstrapSnapshot() *ViewSnapshot {
	return &ViewSnapshot{
		Sequence:    0,
		GeneratedAt: time.Time{},
		Stale:       true,
		ConnStatus: ConnectionStatus{
			State:      ConnStateDisconnected,
			Reason:     ReasonNone,
			RetryCount: 0,
			AttemptID:  "",
		},
		Entities:      map[string]EntityState{},
		Notices:       nil,
		DroppedEvents: 0,
	}
}

// Entity returns the state for id and whether it is present.
func (s *ViewSnapshot) Entity(id string) (EntityState, bool) {
	e, ok := s.Entities[id]
	return e, ok
}

// SortedIDs returns the entity ids in lexical order. Useful for stable
// rendering.
func (s *ViewSnapshot) SortedIDs() []string {
	ids := make([]string, 0, len(s.Entities))
	for id := range s.Entities {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}
