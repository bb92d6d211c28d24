// Package gorilla carries chat envelopes over github.com/gorilla/websocket.
package gorilla

import (
	"context"
	"fmt"
	"io"
	stdhttp "net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/heyitswither/rwci/internal/core"
)

// Dialer opens websocket connections with gorilla/websocket.
type Dialer struct {
	Timeout      time.Duration
	WriteTimeout time.Duration
	ReadLimit    int64
	HTTPHeader   stdhttp.Header
}

// Dial performs the websocket handshake against url.
func (d *Dialer) Dial(ctx context.Context, url string) (core.Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            stdhttp.ProxyFromEnvironment,
		HandshakeTimeout: d.Timeout,
	}
	conn, resp, err := dialer.DialContext(ctx, url, d.HTTPHeader)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("gorilla dial: %w", err)
	}
	if d.ReadLimit > 0 {
		conn.SetReadLimit(d.ReadLimit)
	}
	return &Conn{conn: conn, writeTimeout: d.WriteTimeout}, nil
}

// Conn adapts *websocket.Conn to core.Conn. gorilla allows one concurrent
// writer, so data frames are serialized here.
type Conn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	wmu       sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// Send writes data as a single text frame.
func (c *Conn) Send(ctx context.Context, data []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok && c.writeTimeout > 0 {
		deadline = time.Now().Add(c.writeTimeout)
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { _ = c.conn.SetWriteDeadline(time.Now()) })
	defer stop()

	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// Receive returns the next data frame. A normal or going-away close from the
// peer is reported as io.EOF.
func (c *Conn) Receive(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() { _ = c.conn.SetReadDeadline(time.Now()) })
	defer stop()

	_, data, err := c.conn.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
			return nil, io.EOF
		}
		return nil, err
	}
	return data, nil
}

// Close sends a close frame and tears the connection down.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "closing")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
