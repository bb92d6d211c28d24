package core

import "errors"

var (
	// ErrConnection wraps transport failures: dial errors and abnormal closures.
	ErrConnection = errors.New("connection error")
	// ErrAuthenticationFailed is returned when the server rejects the credentials.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrInvalidCredentials is returned before any I/O when credentials are malformed.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidHandlerShape is returned when a handler has the wrong function type.
	ErrInvalidHandlerShape = errors.New("invalid handler shape")
	// ErrInvalidEventName is returned for names outside the on_<payload-type> set.
	ErrInvalidEventName = errors.New("invalid event name")
	// ErrNotConnected is returned by sends attempted outside the active state.
	ErrNotConnected = errors.New("not connected")
	// ErrConnectionClosed is returned to waiters when the session ends.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrWaitInHandler is returned when a handler waits with its own dispatch context.
	ErrWaitInHandler = errors.New("wait called from dispatch handler")
	// ErrPredicatePanicked is returned to a waiter whose predicate panicked.
	ErrPredicatePanicked = errors.New("wait predicate panicked")
	// ErrSessionStarted is returned by a second Run on the same client.
	ErrSessionStarted = errors.New("session already started")
)
