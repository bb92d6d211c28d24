// Package ws carries chat envelopes over github.com/coder/websocket.
package ws

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/heyitswither/rwci/internal/core"
)

// Dialer opens text-frame websocket connections.
type Dialer struct {
	// Timeout bounds the handshake.
	Timeout time.Duration
	// WriteTimeout bounds each Send when the caller's ctx has no deadline.
	WriteTimeout time.Duration
	// ReadLimit caps the size of one inbound frame. Zero keeps the library default.
	ReadLimit  int64
	HTTPHeader stdhttp.Header
	HTTPClient *stdhttp.Client
}

// Dial performs the websocket handshake against url.
func (d *Dialer) Dial(ctx context.Context, url string) (core.Conn, error) {
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}
	conn, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: d.HTTPHeader,
		HTTPClient: d.HTTPClient,
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("ws dial: %w", err)
	}
	if d.ReadLimit > 0 {
		conn.SetReadLimit(d.ReadLimit)
	}
	return &Conn{conn: conn, writeTimeout: d.WriteTimeout}, nil
}

// Conn adapts *websocket.Conn to core.Conn.
type Conn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

// Send writes data as a single text frame.
func (c *Conn) Send(ctx context.Context, data []byte) error {
	if _, ok := ctx.Deadline(); !ok && c.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.writeTimeout)
		defer cancel()
	}
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// Receive returns the next data frame. A normal or going-away close from the
// peer is reported as io.EOF.
func (c *Conn) Receive(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			return nil, io.EOF
		}
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	return data, nil
}

// Close performs the closing handshake.
func (c *Conn) Close() error {
	err := c.conn.Close(websocket.StatusNormalClosure, "closing")
	if err != nil && websocket.CloseStatus(err) == websocket.StatusNormalClosure {
		return nil
	}
	return err
}
