package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/heyitswither/rwci/internal/core"
	"github.com/heyitswither/rwci/internal/proto"
	"github.com/heyitswither/rwci/internal/transport/ws"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("ws_smoke: %v", err)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/gateway", "gateway websocket address")
	user := flag.String("user", "tester", "username")
	pass := flag.String("pass", "tester", "password")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := core.NewClient(*addr, &ws.Dialer{}, core.Options{})
	client.OnRawReceive(func(_ context.Context, env proto.Envelope) {
		raw, _ := json.Marshal(env)
		fmt.Printf("Received %s: %s\n", env.Type, raw)
	})

	errCh := make(chan error, 1)
	go func() { errCh <- client.Run(ctx, *user, *pass) }()

	select {
	case <-client.Ready():
	case err := <-errCh:
		return fmt.Errorf("session ended before ready: %v", err)
	case <-ctx.Done():
		return fmt.Errorf("not ready: %w", ctx.Err())
	}

	if err := client.Send(ctx, *text, ""); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	// The server may or may not echo our own message; any message will do.
	msg, err := client.WaitFor(ctx, core.OfType(proto.TypeMessage))
	if err != nil {
		fmt.Printf("no message seen: %v\n", err)
	} else {
		fmt.Printf("Message: author=%s text=%q\n", msg.Author, msg.Message)
	}

	snap, _ := json.Marshal(client.Session().Snapshot())
	fmt.Printf("Session: %s\n", snap)

	_ = client.Close()
	return <-errCh
}
