package core

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/heyitswither/rwci/internal/proto"
)

// Handler receives the payload of one event. It runs on the dispatch loop,
// so the next envelope is not read until it returns.
type Handler[T any] func(ctx context.Context, payload T)

// Registry holds at most one handler per EventKind. Registering again replaces
// the previous handler.
type Registry struct {
	mu    sync.RWMutex
	slots [eventCount]any
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// OnReady sets the handler fired on the first self-join.
func (r *Registry) OnReady(h func(ctx context.Context)) {
	r.set(EventReady, Handler[struct{}](func(ctx context.Context, _ struct{}) { h(ctx) }), h == nil)
}

// OnMessage sets the channel message handler.
func (r *Registry) OnMessage(h Handler[Message]) { r.set(EventMessage, h, h == nil) }

// OnDirectMessage sets the direct message handler.
func (r *Registry) OnDirectMessage(h Handler[Message]) { r.set(EventDirectMessage, h, h == nil) }

// OnJoin sets the handler receiving the username that joined.
func (r *Registry) OnJoin(h Handler[string]) { r.set(EventJoin, h, h == nil) }

// OnQuit sets the handler receiving the username that left.
func (r *Registry) OnQuit(h Handler[string]) { r.set(EventQuit, h, h == nil) }

// OnUserList sets the handler receiving the full user list.
func (r *Registry) OnUserList(h Handler[[]string]) { r.set(EventUserList, h, h == nil) }

// OnTyping sets the handler receiving the username that is typing.
func (r *Registry) OnTyping(h Handler[string]) { r.set(EventTyping, h, h == nil) }

// OnBroadcast sets the handler receiving server announcements.
func (r *Registry) OnBroadcast(h Handler[string]) { r.set(EventBroadcast, h, h == nil) }

// OnChannelList sets the handler receiving the full channel list.
func (r *Registry) OnChannelList(h Handler[[]string]) { r.set(EventChannelList, h, h == nil) }

// OnChannelCreate sets the handler receiving a created channel.
func (r *Registry) OnChannelCreate(h Handler[string]) { r.set(EventChannelCreate, h, h == nil) }

// OnChannelDelete sets the handler receiving a deleted channel.
func (r *Registry) OnChannelDelete(h Handler[string]) { r.set(EventChannelDelete, h, h == nil) }

// OnDefaultChannel sets the handler receiving the new default channel.
func (r *Registry) OnDefaultChannel(h Handler[string]) { r.set(EventDefaultChannel, h, h == nil) }

// OnRawReceive sets the handler that sees every decoded envelope, last.
func (r *Registry) OnRawReceive(h Handler[proto.Envelope]) { r.set(EventRawReceive, h, h == nil) }

// Register attaches a handler by name, e.g. "on_message". The handler must be
// the exact function type of that event: func(context.Context) for on_ready,
// func(context.Context, T) otherwise.
func (r *Registry) Register(name string, handler any) error {
	kind, err := ParseEvent(name)
	if err != nil {
		return err
	}
	if handler == nil || reflect.ValueOf(handler).Kind() != reflect.Func || reflect.ValueOf(handler).IsNil() {
		return fmt.Errorf("%w: %s needs a function, got %T", ErrInvalidHandlerShape, name, handler)
	}

	switch kind {
	case EventReady:
		h, ok := handler.(func(context.Context))
		if !ok {
			return shapeError(kind, "func(context.Context)", handler)
		}
		r.OnReady(h)
	case EventMessage, EventDirectMessage:
		h, ok := asHandler[Message](handler)
		if !ok {
			return shapeError(kind, "func(context.Context, core.Message)", handler)
		}
		r.set(kind, h, false)
	case EventUserList, EventChannelList:
		h, ok := asHandler[[]string](handler)
		if !ok {
			return shapeError(kind, "func(context.Context, []string)", handler)
		}
		r.set(kind, h, false)
	case EventRawReceive:
		h, ok := asHandler[proto.Envelope](handler)
		if !ok {
			return shapeError(kind, "func(context.Context, proto.Envelope)", handler)
		}
		r.set(kind, h, false)
	default:
		h, ok := asHandler[string](handler)
		if !ok {
			return shapeError(kind, "func(context.Context, string)", handler)
		}
		r.set(kind, h, false)
	}
	return nil
}

// Registered reports whether kind has a handler.
func (r *Registry) Registered(kind EventKind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.slots[kind] != nil
}

// set stores h, or empties the slot when reset is true.
func (r *Registry) set(kind EventKind, h any, reset bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if reset {
		r.slots[kind] = nil
		return
	}
	r.slots[kind] = h
}

// lookup returns the handler for kind, or nil.
func lookup[T any](r *Registry, kind EventKind) Handler[T] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, _ := r.slots[kind].(Handler[T])
	return h
}

func asHandler[T any](handler any) (Handler[T], bool) {
	switch h := handler.(type) {
	case Handler[T]:
		return h, true
	case func(context.Context, T):
		return Handler[T](h), true
	}
	return nil, false
}

func shapeError(kind EventKind, want string, got any) error {
	return fmt.Errorf("%w: %s expects %s, got %T", ErrInvalidHandlerShape, kind, want, got)
}
