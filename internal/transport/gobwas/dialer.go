// Package gobwas carries chat envelopes over github.com/gobwas/ws, the
// low-level alternative to the default transport.
package gobwas

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	stdhttp "net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/heyitswither/rwci/internal/core"
)

// Dialer opens websocket connections with gobwas/ws.
type Dialer struct {
	Timeout      time.Duration
	WriteTimeout time.Duration
	HTTPHeader   stdhttp.Header
}

// Dial performs the websocket handshake against url.
func (d *Dialer) Dial(ctx context.Context, url string) (core.Conn, error) {
	dialer := ws.Dialer{Timeout: d.Timeout}
	if d.HTTPHeader != nil {
		dialer.Header = ws.HandshakeHeaderHTTP(d.HTTPHeader)
	}

	conn, br, _, err := dialer.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("gobwas dial: %w", err)
	}

	// Frames the server sent right after the handshake may sit in br. Copy
	// them out so br can go back to the pool.
	var r io.Reader = conn
	if br != nil {
		if n := br.Buffered(); n > 0 {
			head, err := br.Peek(n)
			if err != nil {
				ws.PutReader(br)
				_ = conn.Close()
				return nil, fmt.Errorf("gobwas dial: read handshake tail: %w", err)
			}
			r = io.MultiReader(bytes.NewReader(bytes.Clone(head)), conn)
		}
		ws.PutReader(br)
	}

	c := &Conn{conn: conn, writeTimeout: d.WriteTimeout}
	c.rw = struct {
		io.Reader
		io.Writer
	}{r, lockedWriter{c}}
	return c, nil
}

// Conn adapts a client-side net.Conn to core.Conn.
type Conn struct {
	conn         net.Conn
	rw           io.ReadWriter
	writeTimeout time.Duration

	wmu       sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// lockedWriter serializes frames written by Send with control replies
// written while reading.
type lockedWriter struct{ c *Conn }

func (w lockedWriter) Write(p []byte) (int, error) {
	w.c.wmu.Lock()
	defer w.c.wmu.Unlock()
	return w.c.conn.Write(p)
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

	if err := wsutil.WriteClientText(c.conn, data); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// Receive returns the next data frame. Pings are answered while reading.
// A normal or going-away close from the peer is reported as io.EOF.
func (c *Conn) Receive(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() { _ = c.conn.SetReadDeadline(time.Now()) })
	defer stop()

	data, _, err := wsutil.ReadServerData(c.rw)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var closed wsutil.ClosedError
		if errors.As(err, &closed) {
			switch closed.Code {
			case ws.StatusNormalClosure, ws.StatusGoingAway, ws.StatusNoStatusRcvd:
				return nil, io.EOF
			}
			return nil, fmt.Errorf("closed by server: %d %s", closed.Code, closed.Reason)
		}
		return nil, err
	}
	return data, nil
}

// Close sends a close frame and tears the connection down.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		// Unblocks a Send stuck on a dead peer before taking the lock.
		_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
		c.wmu.Lock()
		body := ws.NewCloseFrameBody(ws.StatusNormalClosure, "closing")
		_ = wsutil.WriteClientMessage(c.conn, ws.OpClose, body)
		c.wmu.Unlock()
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
