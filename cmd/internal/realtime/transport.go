package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/coder/websocket"
)

// ErrClosed is wrapped by Conn.Read when the peer closed the connection with a close frame.
var ErrClosed = errors.New("realtime: connection closed")

// Conn is one open push connection.
type Conn interface {
	// Read blocks for the next frame.
	Read(ctx context.Context) ([]byte, error)
	// Write sends one text frame.
	Write(ctx context.Context, data []byte) error
	// Close closes the connection. It must unblock a pending Read.
	Close(reason string) error
}

// Transport opens push connections.
type Transport interface {
	Dial(ctx context.Context, url, accessToken string) (Conn, error)
}

// WSTransport dials the push server with coder/websocket.
type WSTransport struct {
	// Header is sent with every handshake.
	Header http.Header
	// HTTPClient is used for the handshake. Nil uses http.DefaultClient.
	HTTPClient *http.Client
	// Subprotocols offered during the handshake.
	Subprotocols []string
}

// Dial implements Transport. A non-empty accessToken is sent as a bearer Authorization header.
func (t *WSTransport) Dial(ctx context.Context, url, accessToken string) (Conn, error) {
	h := http.Header{}
	for k, v := range t.Header {
		h[k] = append([]string(nil), v...)
	}
	if accessToken != "" {
		h.Set("Authorization", "Bearer "+accessToken)
	}

	c, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPClient:   t.HTTPClient,
		HTTPHeader:   h,
		Subprotocols: t.Subprotocols,
	})
	if err != nil {
		return nil, fmt.Errorf("realtime: dial: %w", err)
	}
	c.SetReadLimit(maxFrameBytes)
	return &wsConn{c: c}, nil
}

type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) Read(ctx context.Context) ([]byte, error) {
	for {
		mt, data, err := w.c.Read(ctx)
		if err != nil {
			if st := websocket.CloseStatus(err); st != -1 {
				return nil, fmt.Errorf("%w: status=%d", ErrClosed, st)
			}
			return nil, err
		}
		if mt == websocket.MessageText || mt == websocket.MessageBinary {
			return data, nil
		}
	}
}

func (w *wsConn) Write(ctx context.Context, data []byte) error {
	return w.c.Write(ctx, websocket.MessageText, data)
}

func (w *wsConn) Close(reason string) error {
	return w.c.Close(websocket.StatusNormalClosure, reason)
}
