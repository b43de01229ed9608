// Package conn owns the single logical connection to the backend: the
// dial/retry/backoff state machine, the blocking read and write pumps, the
// heartbeat watchdog, and the bounded event queue feeding the aggregator.
//
// All transport and decode failures are contained here. The rest of the
// system only ever observes ConnectionChangeEvents with a reason code;
// nothing in this package terminates the host process.
package conn

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jpillora/backoff"
	"go.uber.org/zap"

	"github.com/rxtech-lab/argo-station/internal/logger"
	"github.com/rxtech-lab/argo-station/internal/types"
	"github.com/rxtech-lab/argo-station/internal/wire"
	"github.com/rxtech-lab/argo-station/pkg/errors"
)

// Default configuration values.
const (
	DefaultBackoffBase         = 100 * time.Millisecond
	DefaultBackoffCap          = 5 * time.Second
	DefaultHandshakeTimeout    = 10 * time.Second
	DefaultHeartbeatInterval   = time.Second
	DefaultHeartbeatMissFactor = 3
	DefaultQueueCapacity       = 1024
	DefaultCommandBuffer       = 64
)

// Config holds the connection manager's tunables. Zero values are replaced
// with defaults by NewManager.
type Config struct {
	// URL is the backend websocket address (ws:// or wss://).
	URL string
	// InitialSubscriptions are sent immediately after every successful
	// connect.
	InitialSubscriptions []string
	// BackoffBase is the first retry delay; doubles per failed attempt.
	BackoffBase time.Duration
	// BackoffCap bounds the retry delay.
	BackoffCap time.Duration
	// BackoffJitter randomizes delays to avoid reconnect stampedes.
	BackoffJitter bool
	// HandshakeTimeout bounds a single dial attempt.
	HandshakeTimeout time.Duration
	// HeartbeatInterval is the backend's advertised heartbeat cadence.
	HeartbeatInterval time.Duration
	// HeartbeatMissFactor: no heartbeat within MissFactor*Interval forces
	// a disconnect as if the socket had errored.
	HeartbeatMissFactor int
	// QueueCapacity bounds the inbound event queue.
	QueueCapacity int
	// CommandBuffer bounds the outbound command channel.
	CommandBuffer int
}

func (c Config) withDefaults() Config {
	if c.BackoffBase <= 0 {
		c.BackoffBase = DefaultBackoffBase
	}

	if c.BackoffCap <= 0 {
		c.BackoffCap = DefaultBackoffCap
	}

	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}

	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}

	if c.HeartbeatMissFactor <= 0 {
		c.HeartbeatMissFactor = DefaultHeartbeatMissFactor
	}

	if c.QueueCapacity <= 0 {
		c.QueueCapacity = DefaultQueueCapacity
	}

	if c.CommandBuffer <= 0 {
		c.CommandBuffer = DefaultCommandBuffer
	}

	return c
}

// Manager owns one logical connection to the backend and reconnects it with
// capped exponential backoff. At most one Manager goroutine performs network
// I/O per station instance; the connection value itself is never shared
// outside this package.
type Manager struct {
	config Config
	dialer Dialer
	queue  *EventQueue
	log    *logger.Logger

	commands chan types.OutboundCommand

	statusMu sync.Mutex
	status   types.ConnectionStatus

	connected     atomic.Bool
	lastHeartbeat atomic.Int64 // unix nanos

	// forcedReason is set before an intentional conn.Close so the read
	// loop can attribute the resulting read error.
	forcedReason atomic.Value // types.DisconnectReason

	backoff *backoff.Backoff
}

// NewManager creates a Manager using the production websocket dialer.
func NewManager(config Config, log *logger.Logger) *Manager {
	config = config.withDefaults()

	return NewManagerWithDialer(config, NewWebSocketDialer(config.HandshakeTimeout), log)
}

// NewManagerWithDialer creates a Manager with an injected dialer. Used by
// tests to run the state machine against an in-memory transport.
func NewManagerWithDialer(config Config, dialer Dialer, log *logger.Logger) *Manager {
	config = config.withDefaults()

	return &Manager{
		config:   config,
		dialer:   dialer,
		queue:    NewEventQueue(config.QueueCapacity),
		log:      log,
		commands: make(chan types.OutboundCommand, config.CommandBuffer),
		status: types.ConnectionStatus{
			State:      types.ConnStateDisconnected,
			Reason:     types.ReasonNone,
			RetryCount: 0,
			AttemptID:  "",
		},
		backoff: &backoff.Backoff{
			Min:    config.BackoffBase,
			Max:    config.BackoffCap,
			Factor: 2,
			Jitter: config.BackoffJitter,
		},
	}
}

// Queue returns the inbound event queue consumed by the aggregator.
func (m *Manager) Queue() *EventQueue {
	return m.queue
}

// Status returns a copy of the current connection status.
func (m *Manager) Status() types.ConnectionStatus {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()

	return m.status
}

// SendCommand enqueues an outbound command without blocking. Returns false
// when the command was dropped (connection down or channel full); delivery
// is best-effort and at-most-once.
func (m *Manager) SendCommand(cmd types.OutboundCommand) bool {
	if !m.connected.Load() {
		m.log.Debug("Command dropped, connection down",
			zap.String("command", commandName(cmd)),
		)

		return false
	}

	select {
	case m.commands <- cmd:
		return true
	default:
		m.log.Warn("Command dropped, channel full",
			zap.String("command", commandName(cmd)),
		)

		return false
	}
}

// Run drives the connection state machine until ctx is cancelled. It never
// returns a transport error; the only error value is ctx.Err().
func (m *Manager) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			m.setStatus(types.ConnStateDisconnected, types.ReasonShutdown, "")

			return ctx.Err()
		}

		attemptID := uuid.New().String()
		m.setStatus(types.ConnStateConnecting, types.ReasonNone, attemptID)
		m.publishStatus()

		dialCtx, cancel := context.WithTimeout(ctx, m.config.HandshakeTimeout)
		c, err := m.dialer.DialContext(dialCtx, m.config.URL)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				m.setStatus(types.ConnStateDisconnected, types.ReasonShutdown, attemptID)
				m.publishStatus()

				return ctx.Err()
			}

			m.incrementRetry()
			delay := m.backoff.Duration()

			m.log.Warn("Connect failed, backing off",
				zap.String("attempt_id", attemptID),
				zap.String("url", m.config.URL),
				zap.Int("retry", m.Status().RetryCount),
				zap.Duration("delay", delay),
				zap.Error(err),
			)

			m.setStatus(types.ConnStateBackoff, types.ReasonDialFailed, attemptID)
			m.publishStatus()

			if !sleepCtx(ctx, delay) {
				m.setStatus(types.ConnStateDisconnected, types.ReasonShutdown, attemptID)

				return ctx.Err()
			}

			continue
		}

		// Connected: the retry counter resets on every successful
		// handshake. The backoff resets only once the session proves
		// stable, so a backend that accepts dials and immediately drops
		// is not redialed in a tight loop.
		m.resetRetry()
		m.setStatus(types.ConnStateConnected, types.ReasonNone, attemptID)
		m.publishStatus()

		m.log.Info("Connected to backend",
			zap.String("attempt_id", attemptID),
			zap.String("url", m.config.URL),
		)

		connectedAt := time.Now()
		reason := m.runSession(ctx, c, attemptID)

		m.dropPendingCommands()

		if reason == types.ReasonShutdown {
			m.setStatus(types.ConnStateClosing, types.ReasonShutdown, attemptID)
			m.publishStatus()
			m.setStatus(types.ConnStateDisconnected, types.ReasonShutdown, attemptID)
			m.publishStatus()

			return ctx.Err()
		}

		m.log.Warn("Disconnected from backend",
			zap.String("attempt_id", attemptID),
			zap.String("reason", string(reason)),
		)

		m.setStatus(types.ConnStateDisconnected, reason, attemptID)
		m.publishStatus()

		if time.Since(connectedAt) >= m.config.BackoffCap {
			m.backoff.Reset()

			continue
		}

		// Session died before outlasting the backoff cap. Treat the
		// redial like a failed attempt and wait out the next delay.
		delay := m.backoff.Duration()
		m.log.Warn("Session ended early, backing off before redial",
			zap.String("attempt_id", attemptID),
			zap.Duration("delay", delay),
		)
		m.setStatus(types.ConnStateBackoff, reason, attemptID)
		m.publishStatus()

		if !sleepCtx(ctx, delay) {
			m.setStatus(types.ConnStateDisconnected, types.ReasonShutdown, attemptID)
			m.publishStatus()

			return ctx.Err()
		}
	}
}

// runSession runs the read loop plus the write pump and heartbeat watchdog
// for one established connection. Returns the disconnect reason.
func (m *Manager) runSession(ctx context.Context, c Conn, attemptID string) types.DisconnectReason {
	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var closeOnce sync.Once
	closeConn := func() {
		closeOnce.Do(func() { _ = c.Close() })
	}
	defer closeConn()

	m.forcedReason.Store(types.ReasonNone)
	m.lastHeartbeat.Store(time.Now().UnixNano())
	m.connected.Store(true)

	defer m.connected.Store(false)

	var wg sync.WaitGroup

	// Shutdown watcher: a cancelled context must interrupt the blocking
	// read within the handshake grace period, not wait for the next frame.
	wg.Add(1)

	go func() {
		defer wg.Done()
		<-sessionCtx.Done()

		if ctx.Err() != nil {
			m.force(types.ReasonShutdown)
		}

		closeConn()
	}()

	wg.Add(1)

	go func() {
		defer wg.Done()
		m.watchHeartbeats(sessionCtx, closeConn)
	}()

	wg.Add(1)

	go func() {
		defer wg.Done()
		m.writePump(sessionCtx, c, closeConn)
	}()

	reason := m.readLoop(sessionCtx, c, attemptID, closeConn)

	cancel()
	wg.Wait()

	return reason
}

func (m *Manager) readLoop(ctx context.Context, c Conn, attemptID string, closeConn func()) types.DisconnectReason {
	for {
		raw, err := c.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return types.ReasonShutdown
			}

			if forced := m.forced(); forced != types.ReasonNone {
				return forced
			}

			if errors.HasCode(err, errors.ErrCodePeerClosed) {
				return types.ReasonPeerClosed
			}

			return types.ReasonReadError
		}

		event, decodeErr := wire.Decode(raw)
		if decodeErr != nil {
			if wire.IsFatal(decodeErr) {
				// Schema drift: every following frame is unreliable, so
				// tear the connection down and reconnect.
				m.log.Error("Fatal decode error, forcing reconnect",
					zap.String("attempt_id", attemptID),
					zap.Error(decodeErr),
				)
				m.force(types.ReasonSchemaMismatch)
				closeConn()

				continue
			}

			// Message-local: discard the frame, keep the connection.
			m.log.Warn("Discarding undecodable frame",
				zap.String("attempt_id", attemptID),
				zap.Error(decodeErr),
			)

			continue
		}

		if hb, ok := event.(types.HeartbeatEvent); ok {
			m.lastHeartbeat.Store(time.Now().UnixNano())

			m.log.Debug("Heartbeat received",
				zap.Time("sent_at", hb.SentAt),
			)
		}

		m.queue.Push(event)
	}
}

// watchHeartbeats forces a disconnect when no heartbeat arrives within
// MissFactor*HeartbeatInterval, as if the socket had errored.
func (m *Manager) watchHeartbeats(ctx context.Context, closeConn func()) {
	deadline := time.Duration(m.config.HeartbeatMissFactor) * m.config.HeartbeatInterval

	ticker := time.NewTicker(m.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			last := time.Unix(0, m.lastHeartbeat.Load())
			if time.Since(last) > deadline {
				m.log.Warn("Heartbeat deadline missed, closing connection",
					zap.Duration("deadline", deadline),
					zap.Time("last_heartbeat", last),
				)
				m.force(types.ReasonHeartbeatTimeout)
				closeConn()

				return
			}
		}
	}
}

// writePump is the only goroutine that writes to the connection. It sends
// the initial subscriptions first, then drains the command channel while
// the session lasts.
func (m *Manager) writePump(ctx context.Context, c Conn, closeConn func()) {
	if err := m.sendInitialSubscriptions(c); err != nil {
		m.log.Warn("Failed to send initial subscription, closing connection",
			zap.Error(err),
		)
		closeConn()

		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-m.commands:
			raw, err := wire.Encode(cmd)
			if err != nil {
				m.log.Error("Failed to encode command", zap.Error(err))

				continue
			}

			if err := c.WriteMessage(raw); err != nil {
				m.log.Warn("Failed to write command, closing connection",
					zap.Error(err),
				)
				closeConn()

				return
			}
		}
	}
}

func (m *Manager) sendInitialSubscriptions(c Conn) error {
	if len(m.config.InitialSubscriptions) == 0 {
		return nil
	}

	raw, err := wire.Encode(types.SubscribeCommand{EntityIDs: m.config.InitialSubscriptions})
	if err != nil {
		m.log.Error("Failed to encode initial subscription", zap.Error(err))

		return nil
	}

	return c.WriteMessage(raw)
}

// dropPendingCommands discards commands queued while the session was ending.
// Delivery is at-most-once; there is no replay buffer.
func (m *Manager) dropPendingCommands() {
	dropped := 0

	for {
		select {
		case <-m.commands:
			dropped++
		default:
			if dropped > 0 {
				m.log.Debug("Dropped pending commands on disconnect",
					zap.Int("count", dropped),
				)
			}

			return
		}
	}
}

func (m *Manager) setStatus(state types.ConnectionState, reason types.DisconnectReason, attemptID string) {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()

	m.status.State = state
	m.status.Reason = reason

	if attemptID != "" {
		m.status.AttemptID = attemptID
	}
}

func (m *Manager) incrementRetry() {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()

	m.status.RetryCount++
}

func (m *Manager) resetRetry() {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()

	m.status.RetryCount = 0
}

// publishStatus pushes the current status into the event queue so the
// aggregator can flip the snapshot's staleness flag.
func (m *Manager) publishStatus() {
	m.queue.Push(types.ConnectionChangeEvent{Status: m.Status()})
}

func (m *Manager) force(reason types.DisconnectReason) {
	m.forcedReason.CompareAndSwap(types.ReasonNone, reason)
}

func (m *Manager) forced() types.DisconnectReason {
	if v := m.forcedReason.Load(); v != nil {
		return v.(types.DisconnectReason)
	}

	return types.ReasonNone
}

// sleepCtx waits for d or until ctx is cancelled. Returns false on cancel.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func commandName(cmd types.OutboundCommand) string {
	switch cmd.(type) {
	case types.SubscribeCommand:
		return "subscribe"
	case types.UnsubscribeCommand:
		return "unsubscribe"
	case types.PingCommand:
		return "ping"
	default:
		return "unknown"
	}
}
