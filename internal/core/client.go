package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/heyitswither/rwci/internal/metrics"
	"github.com/heyitswither/rwci/internal/proto"
	"github.com/heyitswither/rwci/internal/utils"
)

// Credential bounds checked before any network I/O.
const (
	MaxUsernameLength = 32
	MaxPasswordLength = 128
)

// Conn is an established message-stream connection carrying one envelope per frame.
type Conn interface {
	// Send writes one frame. It may be called concurrently with Receive.
	Send(ctx context.Context, data []byte) error
	// Receive blocks for the next frame and returns io.EOF after a normal closure.
	Receive(ctx context.Context) ([]byte, error)
	// Close tears the connection down and unblocks a pending Receive.
	Close() error
}

// Dialer opens connections to a gateway URL.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// DialFunc adapts a function to Dialer.
type DialFunc func(ctx context.Context, url string) (Conn, error)

// Dial calls f.
func (f DialFunc) Dial(ctx context.Context, url string) (Conn, error) {
	return f(ctx, url)
}

// State is the lifecycle position of a Client.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateAuthenticating
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Options configures a Client. Zero values are usable.
type Options struct {
	Logger  *zerolog.Logger
	Metrics *metrics.Metrics
	// Now stamps received envelopes. Defaults to time.Now.
	Now func() time.Time
}

// Client runs one chat session: it authenticates, then dispatches inbound
// envelopes until the connection closes. Handlers are registered through the
// embedded Registry. A Client runs at most once.
type Client struct {
	*Registry

	id         string
	gatewayURL string
	dialer     Dialer
	log        *zerolog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time

	waiters *waiterQueue
	session atomic.Pointer[Session]
	state   atomic.Int32
	started atomic.Bool
	closing atomic.Bool

	mu   sync.Mutex
	conn Conn

	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
}

// NewClient constructs a client for gatewayURL. Nothing is dialed until Run.
func NewClient(gatewayURL string, dialer Dialer, opts Options) *Client {
	id := utils.NewID()

	base := opts.Logger
	if base == nil {
		nop := zerolog.Nop()
		base = &nop
	}
	logger := base.With().Str("session_id", id).Str("gateway", gatewayURL).Logger()

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	c := &Client{
		Registry:   NewRegistry(),
		id:         id,
		gatewayURL: gatewayURL,
		dialer:     dialer,
		log:        &logger,
		metrics:    opts.Metrics,
		now:        now,
		waiters:    newWaiterQueue(opts.Metrics.SetWaiters),
		ready:      make(chan struct{}),
		done:       make(chan struct{}),
	}
	c.session.Store(NewSession(""))
	return c
}

// ID returns the identifier used to correlate this session in logs.
func (c *Client) ID() string { return c.id }

// State returns the current lifecycle state.
func (c *Client) State() State { return State(c.state.Load()) }

// Session returns the cached server view. It is empty until Run starts.
func (c *Client) Session() *Session { return c.session.Load() }

// Ready is closed once the server announces our own join.
func (c *Client) Ready() <-chan struct{} { return c.ready }

// Done is closed when the session has reached StateClosed.
func (c *Client) Done() <-chan struct{} { return c.done }

// Run validates the credentials, connects, authenticates, and dispatches
// inbound envelopes until the connection closes or ctx is cancelled.
// A normal closure returns nil.
func (c *Client) Run(ctx context.Context, username, password string) error {
	if err := ValidateCredentials(username, password); err != nil {
		return err
	}
	if !c.started.CompareAndSwap(false, true) {
		return ErrSessionStarted
	}
	defer c.finish()

	session := NewSession(username)
	c.session.Store(session)

	c.setState(StateConnecting)
	conn, err := c.dialer.Dial(ctx, c.gatewayURL)
	if err != nil {
		c.log.Error().Err(err).Msg("connect failed")
		return fmt.Errorf("%w: dial %s: %w", ErrConnection, c.gatewayURL, err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	if c.closing.Load() {
		return nil
	}

	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	c.setState(StateAuthenticating)
	if err := c.write(ctx, proto.NewAuth(username, password)); err != nil {
		return err
	}
	c.setState(StateActive)
	c.log.Info().Str("username", username).Msg("auth sent, dispatching")

	d := &dispatcher{
		conn:     conn,
		session:  session,
		registry: c.Registry,
		waiters:  c.waiters,
		metrics:  c.metrics,
		log:      c.log,
		now:      c.now,
		stopping: c.closing.Load,
		onReady:  func() { c.readyOnce.Do(func() { close(c.ready) }) },
	}
	if err := d.run(ctx); err != nil {
		c.log.Warn().Err(err).Msg("session ended")
		return err
	}
	c.log.Info().Msg("session ended")
	return nil
}

// Close closes the connection. Run then returns nil. Safe to call at any time.
func (c *Client) Close() error {
	c.closing.Store(true)
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

// Send posts content to channel, or to the server's default channel when
// channel is empty.
func (c *Client) Send(ctx context.Context, content, channel string) error {
	return c.send(ctx, proto.NewMessage(content, channel))
}

// SendDirect posts a private message to recipient.
func (c *Client) SendDirect(ctx context.Context, content, recipient string) error {
	return c.send(ctx, proto.NewDirectMessage(content, recipient))
}

// SendTyping tells other users we are typing.
func (c *Client) SendTyping(ctx context.Context) error {
	return c.send(ctx, proto.NewTyping())
}

// WaitFor blocks until the dispatch loop sees an envelope matching pred and
// returns it. The envelope still reaches the registered handlers. Concurrent
// waits are served in call order. Bound the wait with ctx. A handler may not
// wait on its own ctx while it runs (ErrWaitInHandler) since the loop would
// stall; goroutines it starts may wait once it has returned.
func (c *Client) WaitFor(ctx context.Context, pred Predicate) (proto.Envelope, error) {
	return c.waiters.wait(ctx, pred)
}

// Expect registers a wait for pred and returns at once, so it is safe inside
// a handler: the wait is queued before the loop reads the next envelope.
// Complete it with Pending.Wait from another goroutine.
func (c *Client) Expect(pred Predicate) (*Pending, error) {
	w, err := c.waiters.add(pred)
	if err != nil {
		return nil, err
	}
	return &Pending{q: c.waiters, w: w}, nil
}

// WaitForMessage waits for the next channel message written by someone else.
func (c *Client) WaitForMessage(ctx context.Context) (Message, error) {
	// The username is read per envelope: Run may not have set it yet.
	env, err := c.WaitFor(ctx, func(env proto.Envelope) bool {
		return env.Type == proto.TypeMessage && env.Author != c.Session().Username()
	})
	if err != nil {
		return Message{}, err
	}
	return MessageFromEnvelope(env), nil
}

func (c *Client) send(ctx context.Context, req proto.Request) error {
	if c.State() != StateActive {
		return ErrNotConnected
	}
	return c.write(ctx, req)
}

func (c *Client) write(ctx context.Context, req proto.Request) error {
	data, err := proto.Encode(req)
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	if err := conn.Send(ctx, data); err != nil {
		if c.closing.Load() || c.State() == StateClosed {
			return ErrNotConnected
		}
		return fmt.Errorf("%w: send %s: %w", ErrConnection, proto.TypeOf(req), err)
	}
	c.metrics.EnvelopeSent(proto.TypeOf(req))
	return nil
}

func (c *Client) setState(s State) {
	old := State(c.state.Swap(int32(s)))
	c.log.Debug().Stringer("from", old).Stringer("to", s).Msg("state change")
}

func (c *Client) finish() {
	c.setState(StateClosed)
	c.waiters.close()
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	close(c.done)
}

// ValidateCredentials rejects empty values, line breaks, and over-long values.
func ValidateCredentials(username, password string) error {
	if err := validateCredential("username", username, MaxUsernameLength); err != nil {
		return err
	}
	return validateCredential("password", password, MaxPasswordLength)
}

func validateCredential(field, value string, maxLen int) error {
	switch {
	case value == "":
		return fmt.Errorf("%w: %s is empty", ErrInvalidCredentials, field)
	case strings.ContainsAny(value, "\r\n"):
		return fmt.Errorf("%w: %s contains a line break", ErrInvalidCredentials, field)
	case len(value) > maxLen:
		return fmt.Errorf("%w: %s is longer than %d bytes", ErrInvalidCredentials, field, maxLen)
	}
	return nil
}
