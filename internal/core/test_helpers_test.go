package core

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var errBrokenPipe = errors.New("broken pipe")

// fakeConn is an in-memory Conn. Frames pushed before hangup are always
// received before io.EOF.
type fakeConn struct {
	inbound chan []byte
	sent    chan []byte
	failure chan error
	closed  chan struct{}
	once    sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 64),
		sent:    make(chan []byte, 64),
		failure: make(chan error, 1),
		closed:  make(chan struct{}),
	}
}

func (f *fakeConn) Send(ctx context.Context, data []byte) error {
	select {
	case <-f.closed:
		return errBrokenPipe
	default:
	}
	select {
	case f.sent <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeConn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case data := <-f.inbound:
		return data, nil
	default:
	}
	select {
	case data := <-f.inbound:
		return data, nil
	case err := <-f.failure:
		return nil, err
	case <-f.closed:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) pushRaw(raw string) {
	f.inbound <- []byte(raw)
}

func (f *fakeConn) push(t *testing.T, v map[string]any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	f.inbound <- data
}

// hangup closes the stream once everything pushed so far has been read.
func (f *fakeConn) hangup() {
	go func() {
		for len(f.inbound) > 0 {
			time.Sleep(time.Millisecond)
		}
		_ = f.Close()
	}()
}

type fakeDialer struct {
	conn  *fakeConn
	err   error
	calls atomic.Int32
}

func (d *fakeDialer) Dial(context.Context, string) (Conn, error) {
	d.calls.Add(1)
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

func newTestClient(t *testing.T, opts Options) (*Client, *fakeConn, *fakeDialer) {
	t.Helper()
	conn := newFakeConn()
	dialer := &fakeDialer{conn: conn}
	return NewClient("ws://chat.test/gateway", dialer, opts), conn, dialer
}

// start runs the client in the background and returns its result channel.
func start(t *testing.T, c *Client, username string) <-chan error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.Run(ctx, username, "secret")
	}()
	return errCh
}

func mustFinish(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(3 * time.Second):
		t.Fatalf("Run did not return")
		return nil
	}
}

func mustSent(t *testing.T, conn *fakeConn) map[string]any {
	t.Helper()
	select {
	case data := <-conn.sent:
		var frame map[string]any
		if err := json.Unmarshal(data, &frame); err != nil {
			t.Fatalf("sent frame is not json: %v", err)
		}
		return frame
	case <-time.After(2 * time.Second):
		t.Fatalf("expected an outbound frame")
		return nil
	}
}

func mustReady(t *testing.T, c *Client) {
	t.Helper()
	select {
	case <-c.Ready():
	case <-time.After(2 * time.Second):
		t.Fatalf("client never became ready")
	}
}

func eventually(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// waitForPending blocks until n waits are queued.
func waitForPending(t *testing.T, c *Client, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for c.waiters.size() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d pending waits, have %d", n, c.waiters.size())
		}
		time.Sleep(time.Millisecond)
	}
}
