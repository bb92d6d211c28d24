package core

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/heyitswither/rwci/internal/proto"
)

func benchmarkRoute(b *testing.B, users int) {
	logger := zerolog.Nop()
	registry := NewRegistry()
	var seen int
	registry.OnMessage(func(context.Context, Message) { seen++ })
	registry.OnRawReceive(func(context.Context, proto.Envelope) {})

	d := &dispatcher{
		session:  NewSession("bench"),
		registry: registry,
		waiters:  newWaiterQueue(nil),
		log:      &logger,
		now:      time.Now,
		stopping: func() bool { return false },
		onReady:  func() {},
	}

	list := make([]string, 0, users)
	for i := range users {
		list = append(list, "u"+string(rune('a'+i%26))+string(rune('a'+i/26%26)))
	}
	ctx := context.Background()
	d.route(ctx, proto.Envelope{Type: proto.TypeUserList, Users: list})

	env := proto.Envelope{Type: proto.TypeMessage, Author: "ua", Message: "payload"}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		d.route(ctx, env)
	}

	if seen != b.N {
		b.Fatalf("handler saw %d of %d envelopes", seen, b.N)
	}
}

func BenchmarkRoute_10(b *testing.B)  { benchmarkRoute(b, 10) }
func BenchmarkRoute_100(b *testing.B) { benchmarkRoute(b, 100) }
func BenchmarkRoute_500(b *testing.B) { benchmarkRoute(b, 500) }
