package types

import "time"

// InboundEvent is a decoded, typed representation of one backend message.
// The set of variants is closed: the codec maps every recognized frame to
// exactly one of the types below, and unrecognized frames are rejected at
// decode time rather than coerced.
//
// Events are immutable once constructed and travel by value through the
// event queue; ownership transfers to the consumer.
type InboundEvent interface {
	inboundEvent()
}

// EntityUpdateEvent carries a full replacement state for one entity.
type EntityUpdateEvent struct {
	Entity EntityState
}

// EntityRemoveEvent signals that the backend no longer tracks an entity.
type EntityRemoveEvent struct {
	EntityID string
}

// HeartbeatEvent is a periodic liveness message from the backend.
type HeartbeatEvent struct {
	SentAt time.Time
}

// NoticeEvent is a human-readable control notice from the backend.
type NoticeEvent struct {
	Level   NoticeLevel
	Message string
	SentAt  time.Time
}

// ConnectionChangeEvent is synthesized by the connection manager (it never
// arrives on the wire) so the aggregator can mark snapshots stale.
type ConnectionChangeEvent struct {
	Status ConnectionStatus
}

func (EntityUpdateEvent) inboundEvent()     {}
func (EntityRemoveEvent) inboundEvent()     {}
func (HeartbeatEvent) inboundEvent()        {}
func (NoticeEvent) inboundEvent()           {}
func (ConnectionChangeEvent) inboundEvent() {}

// NoticeLevel is the severity of a backend notice.
type NoticeLevel string

const (
	NoticeLevelInfo    NoticeLevel = "info"
	NoticeLevelWarning NoticeLevel = "warning"
	NoticeLevelError   NoticeLevel = "error"
)

// OutboundCommand is a typed representation of a GUI-initiated request.
// Commands are immutable once constructed; ownership transfers from the
// GUI thread to the connection manager via the command channel. Delivery
// is at-most-once: commands pending at disconnect are dropped.
type OutboundCommand interface {
	outboundCommand()
}

// SubscribeCommand asks the backend to start streaming the given entities.
type SubscribeCommand struct {
	EntityIDs []string
}

// UnsubscribeCommand asks the backend to stop streaming the given entities.
type UnsubscribeCommand struct {
	EntityIDs []string
}

// PingCommand requests a liveness round trip.
type PingCommand struct {
	Nonce string
}

func (SubscribeCommand) outboundCommand()   {}
func (UnsubscribeCommand) outboundCommand() {}
func (PingCommand) outboundCommand()        {}
