package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/heyitswither/rwci/internal/metrics"
	"github.com/heyitswither/rwci/internal/proto"
)

// dispatcher is the only reader of a connection. Every envelope is applied to
// the session, offered to waiters, then handed to handlers, in that order,
// before the next frame is read.
type dispatcher struct {
	conn     Conn
	session  *Session
	registry *Registry
	waiters  *waiterQueue
	metrics  *metrics.Metrics
	log      *zerolog.Logger
	now      func() time.Time
	// stopping reports whether the client asked for the connection to close.
	stopping func() bool
	onReady  func()
}

// run reads until the connection ends. A normal closure, a requested close,
// or a cancelled ctx return nil.
func (d *dispatcher) run(ctx context.Context) error {
	for {
		data, err := d.conn.Receive(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil || d.stopping() {
				d.log.Debug().Err(err).Msg("connection closed")
				return nil
			}
			return fmt.Errorf("%w: receive: %w", ErrConnection, err)
		}

		env, err := proto.Decode(data, d.now())
		if err != nil {
			d.metrics.DecodeFailed()
			d.log.Warn().Err(err).Int("bytes", len(data)).Msg("dropping undecodable frame")
			continue
		}

		if env.Type == proto.TypeAuth {
			if env.AuthRejected() {
				d.metrics.EnvelopeReceived(env.Type, true)
				d.log.Warn().Str("username", d.session.Username()).Msg("server rejected credentials")
				return ErrAuthenticationFailed
			}
			// Readiness comes from the self-join, not from this ack.
			d.log.Debug().Msg("auth acknowledged")
		}

		d.route(ctx, env)
	}
}

func (d *dispatcher) route(ctx context.Context, env proto.Envelope) {
	d.metrics.EnvelopeReceived(env.Type, env.Known())

	becameReady := d.session.apply(env)

	d.offer(env)

	if kind, ok := eventForType(env.Type); ok {
		d.dispatchTyped(ctx, kind, env)
	}

	if becameReady {
		d.log.Info().Str("username", d.session.Username()).Msg("session ready")
		if d.onReady != nil {
			d.onReady()
		}
		invoke(ctx, d, EventReady, struct{}{})
	}

	invoke(ctx, d, EventRawReceive, env)
}

// offer hands env to the first matching waiter. The envelope keeps flowing
// to handlers either way.
func (d *dispatcher) offer(env proto.Envelope) {
	onPanic := func(r any) {
		d.log.Error().Interface("panic", r).Str("type", env.Type).Msg("wait predicate panicked")
	}
	if d.waiters.deliver(env, onPanic) {
		d.log.Debug().Str("type", env.Type).Msg("envelope delivered to waiter")
	}
}

func (d *dispatcher) dispatchTyped(ctx context.Context, kind EventKind, env proto.Envelope) {
	switch kind {
	case EventMessage, EventDirectMessage:
		invoke(ctx, d, kind, MessageFromEnvelope(env))
	case EventJoin, EventQuit, EventTyping:
		invoke(ctx, d, kind, env.Username)
	case EventBroadcast:
		invoke(ctx, d, kind, env.Message)
	case EventUserList:
		invoke(ctx, d, kind, slices.Clone(env.Users))
	case EventChannelList:
		invoke(ctx, d, kind, slices.Clone(env.Channels))
	case EventChannelCreate, EventChannelDelete, EventDefaultChannel:
		invoke(ctx, d, kind, env.Channel)
	}
}

// invoke runs the handler for kind, if any, and survives a panic in it.
func invoke[T any](ctx context.Context, d *dispatcher, kind EventKind, payload T) {
	h := lookup[T](d.registry, kind)
	if h == nil {
		return
	}
	ctx, leave := enterHandler(ctx)
	defer leave()
	defer func() {
		if r := recover(); r != nil {
			d.metrics.HandlerPanicked(kind.String())
			d.log.Error().
				Str("event", kind.String()).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("event handler panicked")
		}
	}()
	h(ctx, payload)
}
