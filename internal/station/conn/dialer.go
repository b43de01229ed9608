package conn

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rxtech-lab/argo-station/pkg/errors"
)

// Conn is the minimal transport surface the manager needs. ReadMessage
// blocks; Close from another goroutine unblocks it with an error, which is
// how shutdown and the heartbeat watchdog interrupt an in-flight read.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer establishes a Conn to the backend. Tests inject an in-memory
// implementation; production uses the websocket dialer below.
type Dialer interface {
	DialContext(ctx context.Context, url string) (Conn, error)
}

// WebSocketDialer dials the backend over a websocket using text frames,
// one protocol frame per websocket message.
type WebSocketDialer struct {
	HandshakeTimeout time.Duration
}

// NewWebSocketDialer creates a dialer with the given handshake timeout.
func NewWebSocketDialer(handshakeTimeout time.Duration) *WebSocketDialer {
	return &WebSocketDialer{HandshakeTimeout: handshakeTimeout}
}

// DialContext implements Dialer.
func (d *WebSocketDialer) DialContext(ctx context.Context, url string) (Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: d.HandshakeTimeout,
	}

	ws, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeDialFailed, err, "failed to dial %s", url)
	}

	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	return &websocketConn{ws: ws}, nil
}

type websocketConn struct {
	ws *websocket.Conn
}

func (c *websocketConn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, errors.Wrap(errors.ErrCodePeerClosed, "peer closed connection", err)
		}

		return nil, err
	}

	return data, nil
}

func (c *websocketConn) WriteMessage(data []byte) error {
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *websocketConn) Close() error {
	return c.ws.Close()
}

// Verify WebSocketDialer implements Dialer.
var _ Dialer = (*WebSocketDialer)(nil)
