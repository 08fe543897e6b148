package eventapi

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the client.
var (
	// ErrConnection is matched by every *ConnectionError.
	ErrConnection = errors.New("eventapi: connection failed")

	// ErrNoActiveConnection is returned when an operation needs an open session.
	ErrNoActiveConnection = errors.New("eventapi: no active connection")

	// ErrAlreadyConnected is returned by Connect on a connected client.
	ErrAlreadyConnected = errors.New("eventapi: already connected")

	// ErrCapacityExceeded is matched by every *CapacityExceededError.
	ErrCapacityExceeded = errors.New("eventapi: subscription limit exceeded")

	// ErrLedgerEmpty is returned when unsubscribing with no active subscriptions.
	ErrLedgerEmpty = errors.New("eventapi: no active subscriptions")

	// ErrMalformedFrame is returned when an inbound frame cannot be decoded.
	ErrMalformedFrame = errors.New("eventapi: malformed frame")

	// ErrReconnectFailed is passed to the disconnect callback when automatic
	// reconnection gives up.
	ErrReconnectFailed = errors.New("eventapi: reconnect attempts exhausted")

	// ErrStreamClosed is returned by EventStream.Next once the stream has ended.
	ErrStreamClosed = errors.New("eventapi: event stream closed")
)

// ConnectionError wraps a transport failure (DNS, TLS, refused, handshake)
// raised while dialing the event service.
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("eventapi: connect %s: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrConnection.
func (e *ConnectionError) Is(target error) bool {
	return target == ErrConnection
}

// CapacityExceededError is returned when a subscription would grow the
// ledger past the limit announced by the server.
type CapacityExceededError struct {
	Limit int
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("eventapi: subscription limit of %d exceeded", e.Limit)
}

// Is reports whether target is ErrCapacityExceeded.
func (e *CapacityExceededError) Is(target error) bool {
	return target == ErrCapacityExceeded
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedFrame, fmt.Sprintf(format, args...))
}
