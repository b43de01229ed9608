package conn

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/rxtech-lab/argo-station/internal/types"
)

type EventQueueTestSuite struct {
	suite.Suite
}

func TestEventQueueSuite(t *testing.T) {
	suite.Run(t, new(EventQueueTestSuite))
}

func (s *EventQueueTestSuite) entityEvent(id string) types.EntityUpdateEvent {
	return types.EntityUpdateEvent{
		Entity: types.EntityState{
			ID:    id,
			Kind:  types.EntityKindInstrument,
			Price: decimal.NewFromInt(100),
		},
	}
}

func (s *EventQueueTestSuite) TestPushNextOrdering() {
	q := NewEventQueue(8)

	s.True(q.Push(s.entityEvent("a")))
	s.True(q.Push(s.entityEvent("b")))
	s.True(q.Push(s.entityEvent("c")))
	s.Equal(3, q.Len())

	ctx := context.Background()

	for _, want := range []string{"a", "b", "c"} {
		event, err := q.Next(ctx)
		s.Require().NoError(err)

		update, ok := event.(types.EntityUpdateEvent)
		s.Require().True(ok)
		s.Equal(want, update.Entity.ID)
	}

	s.Equal(0, q.Len())
}

func (s *EventQueueTestSuite) TestOverflowEvictsOldest() {
	q := NewEventQueue(2)

	s.True(q.Push(s.entityEvent("a")))
	s.True(q.Push(s.entityEvent("b")))
	s.True(q.Push(s.entityEvent("c")))

	s.Equal(2, q.Len())
	s.Equal(uint64(1), q.Dropped())

	event, err := q.Next(context.Background())
	s.Require().NoError(err)
	s.Equal("b", event.(types.EntityUpdateEvent).Entity.ID)

	event, err = q.Next(context.Background())
	s.Require().NoError(err)
	s.Equal("c", event.(types.EntityUpdateEvent).Entity.ID)
}

func (s *EventQueueTestSuite) TestHeartbeatSurvivesOverflow() {
	q := NewEventQueue(3)

	s.True(q.Push(types.HeartbeatEvent{SentAt: time.Now()}))
	s.True(q.Push(s.entityEvent("a")))
	s.True(q.Push(s.entityEvent("b")))

	// Queue is full. The heartbeat at the head must not be the victim.
	s.True(q.Push(s.entityEvent("c")))

	event, err := q.Next(context.Background())
	s.Require().NoError(err)

	_, ok := event.(types.HeartbeatEvent)
	s.True(ok, "heartbeat should still be at the head")
}

func (s *EventQueueTestSuite) TestConnectionChangeSurvivesOverflow() {
	q := NewEventQueue(2)

	change := types.ConnectionChangeEvent{
		Status: types.ConnectionStatus{State: types.ConnStateConnected},
	}

	s.True(q.Push(change))
	s.True(q.Push(s.entityEvent("a")))
	s.True(q.Push(s.entityEvent("b")))

	event, err := q.Next(context.Background())
	s.Require().NoError(err)

	_, ok := event.(types.ConnectionChangeEvent)
	s.True(ok, "connection change should still be at the head")
}

func (s *EventQueueTestSuite) TestEvictableRejectedWhenFullOfProtected() {
	q := NewEventQueue(2)

	s.True(q.Push(types.HeartbeatEvent{SentAt: time.Now()}))
	s.True(q.Push(types.HeartbeatEvent{SentAt: time.Now()}))

	s.False(q.Push(s.entityEvent("a")))
	s.Equal(uint64(1), q.Dropped())
	s.Equal(2, q.Len())
}

func (s *EventQueueTestSuite) TestProtectedDisplacesProtectedWhenFull() {
	q := NewEventQueue(2)

	first := types.HeartbeatEvent{SentAt: time.Unix(1, 0)}
	second := types.HeartbeatEvent{SentAt: time.Unix(2, 0)}
	third := types.HeartbeatEvent{SentAt: time.Unix(3, 0)}

	s.True(q.Push(first))
	s.True(q.Push(second))
	s.True(q.Push(third))

	event, err := q.Next(context.Background())
	s.Require().NoError(err)
	s.Equal(second.SentAt, event.(types.HeartbeatEvent).SentAt)
}

func (s *EventQueueTestSuite) TestConsumedEventsReleased() {
	q := NewEventQueue(4)

	s.True(q.Push(s.entityEvent("a")))
	s.True(q.Push(s.entityEvent("b")))

	backing := q.events

	_, err := q.Next(context.Background())
	s.Require().NoError(err)

	// The backing array must not keep the consumed event reachable.
	s.Nil(backing[0])
	s.NotNil(backing[1])
}

func (s *EventQueueTestSuite) TestNextBlocksUntilPush() {
	q := NewEventQueue(4)

	type result struct {
		event types.InboundEvent
		err   error
	}

	resultCh := make(chan result, 1)

	go func() {
		event, err := q.Next(context.Background())
		resultCh <- result{event: event, err: err}
	}()

	select {
	case <-resultCh:
		s.Fail("Next returned before any event was pushed")
	case <-time.After(20 * time.Millisecond):
	}

	q.Push(s.entityEvent("a"))

	select {
	case r := <-resultCh:
		s.Require().NoError(r.err)
		s.Equal("a", r.event.(types.EntityUpdateEvent).Entity.ID)
	case <-time.After(time.Second):
		s.Fail("Next did not wake up after push")
	}
}

func (s *EventQueueTestSuite) TestNextHonorsContextCancel() {
	q := NewEventQueue(4)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Next(ctx)
	s.ErrorIs(err, context.Canceled)
}
