package core

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/heyitswither/rwci/internal/proto"
)

// Predicate selects the envelope a waiter is interested in. It runs on the
// dispatch loop and should be quick and free of side effects.
type Predicate func(env proto.Envelope) bool

// All matches every envelope.
func All(proto.Envelope) bool { return true }

// OfType matches envelopes of any of the given types.
func OfType(types ...string) Predicate {
	return func(env proto.Envelope) bool {
		return slices.Contains(types, env.Type)
	}
}

// FromOthers matches channel messages not authored by username.
func FromOthers(username string) Predicate {
	return func(env proto.Envelope) bool {
		return env.Type == proto.TypeMessage && env.Author != username
	}
}

type dispatchKey struct{}

// handlerScope marks the context given to one handler call. It is active only
// while that call runs, so goroutines the handler starts may wait freely once
// it has returned.
type handlerScope struct {
	active atomic.Bool
}

// enterHandler derives the context for a single handler call. The returned
// func ends the scope.
func enterHandler(ctx context.Context) (context.Context, func()) {
	scope := &handlerScope{}
	scope.active.Store(true)
	return context.WithValue(ctx, dispatchKey{}, scope), func() { scope.active.Store(false) }
}

func inDispatch(ctx context.Context) bool {
	scope, _ := ctx.Value(dispatchKey{}).(*handlerScope)
	return scope != nil && scope.active.Load()
}

type waiter struct {
	match Predicate
	ch    chan proto.Envelope
	// err is set before ch is closed when the wait fails for its own reason.
	err error
}

// matches runs the predicate, turning a panic into a miss.
func (w *waiter) matches(env proto.Envelope) (ok bool, panicked any) {
	defer func() {
		if r := recover(); r != nil {
			ok, panicked = false, r
		}
	}()
	return w.match(env), nil
}

// waiterQueue holds outstanding waits in arrival order. The dispatch loop is
// the only producer; each envelope completes at most one waiter.
type waiterQueue struct {
	mu      sync.Mutex
	pending []*waiter
	closed  bool
	// observe is told the queue length after every change.
	observe func(n int)
}

func newWaiterQueue(observe func(n int)) *waiterQueue {
	if observe == nil {
		observe = func(int) {}
	}
	return &waiterQueue{observe: observe}
}

// wait blocks until the loop hands over a matching envelope, the queue is
// closed, or ctx ends.
func (q *waiterQueue) wait(ctx context.Context, match Predicate) (proto.Envelope, error) {
	if inDispatch(ctx) {
		return proto.Envelope{}, ErrWaitInHandler
	}
	w, err := q.add(match)
	if err != nil {
		return proto.Envelope{}, err
	}
	return q.await(ctx, w)
}

func (q *waiterQueue) await(ctx context.Context, w *waiter) (proto.Envelope, error) {
	select {
	case env, ok := <-w.ch:
		if !ok {
			return proto.Envelope{}, w.failure()
		}
		return env, nil
	case <-ctx.Done():
		if q.remove(w) {
			return proto.Envelope{}, ctx.Err()
		}
		// Delivered or closed while we were giving up; the channel is ready.
		env, ok := <-w.ch
		if !ok {
			return proto.Envelope{}, w.failure()
		}
		return env, nil
	}
}

func (w *waiter) failure() error {
	if w.err != nil {
		return w.err
	}
	return ErrConnectionClosed
}

// Pending is a wait that already holds its place in the queue. Handlers use
// it to claim the next matching envelope without blocking the loop.
type Pending struct {
	q *waiterQueue
	w *waiter
}

// Wait blocks for the envelope. Call it once, outside the dispatch loop.
// If ctx ends first the wait is withdrawn.
func (p *Pending) Wait(ctx context.Context) (proto.Envelope, error) {
	if inDispatch(ctx) {
		return proto.Envelope{}, ErrWaitInHandler
	}
	return p.q.await(ctx, p.w)
}

// Cancel withdraws the wait if it is still pending.
func (p *Pending) Cancel() {
	p.q.remove(p.w)
}

func (q *waiterQueue) add(match Predicate) (*waiter, error) {
	if match == nil {
		match = All
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrConnectionClosed
	}
	w := &waiter{match: match, ch: make(chan proto.Envelope, 1)}
	q.pending = append(q.pending, w)
	q.observe(len(q.pending))
	return w, nil
}

// remove drops w if it is still pending and reports whether it was.
func (q *waiterQueue) remove(w *waiter) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := slices.Index(q.pending, w)
	if i < 0 {
		return false
	}
	q.pending = slices.Delete(q.pending, i, i+1)
	q.observe(len(q.pending))
	return true
}

// deliver hands env to the earliest waiter whose predicate matches. A waiter
// whose predicate panics is failed with ErrPredicatePanicked and the envelope
// moves on to the next one; onPanic is told about each such panic.
func (q *waiterQueue) deliver(env proto.Envelope, onPanic func(r any)) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	defer func() { q.observe(len(q.pending)) }()

	for i := 0; i < len(q.pending); {
		w := q.pending[i]
		ok, panicked := w.matches(env)
		if panicked != nil {
			q.pending = slices.Delete(q.pending, i, i+1)
			w.err = ErrPredicatePanicked
			close(w.ch)
			if onPanic != nil {
				onPanic(panicked)
			}
			continue
		}
		if !ok {
			i++
			continue
		}
		q.pending = slices.Delete(q.pending, i, i+1)
		w.ch <- env
		return true
	}
	return false
}

// close fails every pending waiter and rejects new ones.
func (q *waiterQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	for _, w := range q.pending {
		close(w.ch)
	}
	q.pending = nil
	q.observe(0)
}

func (q *waiterQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
