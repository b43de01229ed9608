// Package bridge is the render side's only doorway into the ingest
// machinery. Every call is non-blocking: the GUI thread polls snapshots at
// its own cadence and fires commands without waiting on network state.
package bridge

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rxtech-lab/argo-station/internal/logger"
	"github.com/rxtech-lab/argo-station/internal/types"
)

// SnapshotSource publishes immutable snapshots. The view aggregator
// satisfies it.
type SnapshotSource interface {
	Latest() *types.ViewSnapshot
	Dirty() <-chan struct{}
}

// CommandSink accepts outbound commands best-effort. The connection
// manager satisfies it.
type CommandSink interface {
	SendCommand(cmd types.OutboundCommand) bool
}

// Bridge adapts the aggregator and connection manager to the render loop.
// Safe for use from a single render goroutine; snapshot reads may happen
// from any goroutine.
type Bridge struct {
	source SnapshotSource
	sink   CommandSink
	log    *logger.Logger
}

// NewBridge wires a bridge over the given source and sink.
func NewBridge(source SnapshotSource, sink CommandSink, log *logger.Logger) *Bridge {
	return &Bridge{
		source: source,
		sink:   sink,
		log:    log,
	}
}

// LatestSnapshot returns the newest published snapshot without blocking.
// Before the first event it returns the bootstrap snapshot, never nil.
func (b *Bridge) LatestSnapshot() *types.ViewSnapshot {
	return b.source.Latest()
}

// ConsumeDirty reports whether a new snapshot was published since the last
// call, clearing the flag. Non-blocking; intermediate publications coalesce
// into a single true.
func (b *Bridge) ConsumeDirty() bool {
	select {
	case <-b.source.Dirty():
		return true
	default:
		return false
	}
}

// SendCommand forwards an arbitrary command best-effort. Returns false if
// it was dropped; dropped commands are logged, never surfaced as errors.
func (b *Bridge) SendCommand(cmd types.OutboundCommand) bool {
	ok := b.sink.SendCommand(cmd)
	if !ok {
		b.log.Debug("Command dropped")
	}

	return ok
}

// Subscribe requests streaming for the given entity ids. Returns false if
// the command was dropped; the caller may retry on a later frame.
func (b *Bridge) Subscribe(entityIDs []string) bool {
	if len(entityIDs) == 0 {
		return false
	}

	ok := b.sink.SendCommand(types.SubscribeCommand{EntityIDs: entityIDs})
	if !ok {
		b.log.Debug("Subscribe dropped", zap.Strings("entity_ids", entityIDs))
	}

	return ok
}

// Unsubscribe requests that streaming stop for the given entity ids.
func (b *Bridge) Unsubscribe(entityIDs []string) bool {
	if len(entityIDs) == 0 {
		return false
	}

	ok := b.sink.SendCommand(types.UnsubscribeCommand{EntityIDs: entityIDs})
	if !ok {
		b.log.Debug("Unsubscribe dropped", zap.Strings("entity_ids", entityIDs))
	}

	return ok
}

// Ping sends a liveness probe with a fresh nonce. Returns the nonce and
// whether the command was accepted.
func (b *Bridge) Ping() (string, bool) {
	nonce := uuid.New().String()

	ok := b.sink.SendCommand(types.PingCommand{Nonce: nonce})
	if !ok {
		b.log.Debug("Ping dropped", zap.String("nonce", nonce))
	}

	return nonce, ok
}
