package gorilla

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/heyitswither/rwci/internal/core"
)

var upgrader = websocket.Upgrader{}

func gateway(t *testing.T, serve func(conn *websocket.Conn)) string {
	t.Helper()
	ts := httptest.NewServer(stdhttp.HandlerFunc(func(w stdhttp.ResponseWriter, r *stdhttp.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		serve(conn)
	}))
	t.Cleanup(ts.Close)
	return strings.Replace(ts.URL, "http", "ws", 1)
}

func closeWith(conn *websocket.Conn, code int) {
	msg := websocket.FormatCloseMessage(code, "bye")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	// Wait for the client's close reply before hanging up.
	_, _, _ = conn.ReadMessage()
}

func TestSendAndReceive(t *testing.T) {
	url := gateway(t, func(conn *websocket.Conn) {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			t.Errorf("server read: %v", err)
			return
		}
		if typ != websocket.TextMessage {
			t.Errorf("expected a text frame, got %d", typ)
		}
		_ = conn.WriteMessage(websocket.TextMessage, data)
		closeWith(conn, websocket.CloseNormalClosure)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := (&Dialer{Timeout: time.Second, WriteTimeout: time.Second, ReadLimit: 1 << 16}).Dial(ctx, url)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.Send(ctx, []byte(`{"type":"typing"}`)); err != nil {
		t.Fatalf("send: %v", err)
	}
	data, err := conn.Receive(ctx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if string(data) != `{"type":"typing"}` {
		t.Fatalf("unexpected echo: %s", data)
	}
	if _, err := conn.Receive(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF after normal closure, got %v", err)
	}
}

func TestAbnormalCloseIsAnError(t *testing.T) {
	url := gateway(t, func(conn *websocket.Conn) {
		closeWith(conn, websocket.ClosePolicyViolation)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := (&Dialer{}).Dial(ctx, url)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_, err = conn.Receive(ctx)
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected a policy violation close, got %v", err)
	}
}

func TestReceiveHonoursContext(t *testing.T) {
	release := make(chan struct{})
	url := gateway(t, func(*websocket.Conn) { <-release })
	defer close(release)

	conn, err := (&Dialer{}).Dial(context.Background(), url)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := conn.Receive(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestClientSessionOverGorilla(t *testing.T) {
	url := gateway(t, func(conn *websocket.Conn) {
		var auth map[string]any
		if err := conn.ReadJSON(&auth); err != nil {
			t.Errorf("read auth: %v", err)
			return
		}
		if auth["username"] != "alice" {
			t.Errorf("unexpected auth frame: %v", auth)
		}
		_ = conn.WriteJSON(map[string]any{"type": "join", "username": "alice"})
		_ = conn.WriteJSON(map[string]any{"type": "direct_message", "author": "bob", "recipient": "alice", "message": "psst"})

		var typing map[string]any
		if err := conn.ReadJSON(&typing); err != nil || typing["type"] != "typing" {
			t.Errorf("expected a typing frame, got %v (%v)", typing, err)
		}
		closeWith(conn, websocket.CloseGoingAway)
	})

	client := core.NewClient(url, &Dialer{Timeout: time.Second}, core.Options{})
	client.OnDirectMessage(func(ctx context.Context, m core.Message) {
		if m.Recipient != "alice" || !m.Direct {
			t.Errorf("unexpected direct message: %+v", m)
		}
		_ = client.SendTyping(ctx)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Run(ctx, "alice", "secret"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !client.Session().Ready() {
		t.Fatalf("session never became ready")
	}
}
