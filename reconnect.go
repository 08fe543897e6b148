package eventapi

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Reconnect triggers, used for logs and metrics.
const (
	reasonTransport     = "transport"
	reasonMalformed     = "malformed_frame"
	reasonServerRequest = "server_request"
	reasonEndOfStream   = "end_of_stream"
	reasonManual        = "manual"
)

// isRecoverableError reports whether err looks like an ordinary network
// failure rather than something unexpected.
func isRecoverableError(err error) bool {
	if err == nil {
		return false
	}

	// Check for common network errors
	if errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}

	// Check for net.OpError
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		return true
	}

	// Close frames sent by the server, including its own 4xxx codes
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return true
	}

	// Check error message for common connection issues
	errMsg := strings.ToLower(err.Error())
	recoverableMessages := []string{
		"broken pipe",
		"connection reset",
		"connection refused",
		"i/o timeout",
		"use of closed network connection",
		"connection closed",
		"eof",
	}

	for _, msg := range recoverableMessages {
		if strings.Contains(errMsg, msg) {
			return true
		}
	}

	return false
}

// nextBackoff doubles d, capped at max.
func nextBackoff(d, max time.Duration) time.Duration {
	d *= 2
	if d > max {
		return max
	}
	return d
}

// handleFault reacts to a dead socket reported by the read or write loop.
func (c *Client) handleFault(conn *connection, reason string, cause error) {
	c.mu.Lock()
	current := c.conn == conn
	c.mu.Unlock()
	if !current {
		return
	}

	if c.cfg.OnDisconnectCallback != nil {
		c.cfg.OnDisconnectCallback(cause)
	}
	c.reconnectFrom(conn, reason)
}

// reconnectFrom tears down conn and reconnects, provided conn is still the
// current connection. The session id survives so the next hello can resume.
func (c *Client) reconnectFrom(conn *connection, reason string) {
	c.mu.Lock()
	if c.conn != conn || c.state != StateConnected {
		c.mu.Unlock()
		return
	}

	if !c.cfg.AutoReconnect {
		if reason == reasonServerRequest || reason == reasonEndOfStream {
			c.mu.Unlock()
			c.logger.Info("Auto-reconnect is disabled, ignoring %s", reason)
			return
		}
		c.teardownLocked()
		c.state = StateDisconnected
		c.mu.Unlock()
		c.sink.finish()
		c.logger.Info("Auto-reconnect is disabled, connection will not be restored")
		return
	}

	c.state = StateReconnecting
	old := c.teardownLocked()
	ctx, cancel := context.WithCancel(context.Background())
	c.cancelReconnect = cancel
	c.mu.Unlock()
	defer cancel()

	<-old.readDone
	c.metrics.reconnect(reason)
	c.logger.Info("Reconnecting (%s)", reason)
	c.runReconnect(ctx, reason)
}

// runReconnect dials until a connection is installed, the attempt budget is
// spent or another operation takes over the state. The first attempt is
// immediate; later ones back off exponentially. Giving up ends the event
// stream and reports ErrReconnectFailed to the disconnect callback.
func (c *Client) runReconnect(ctx context.Context, reason string) {
	ctx, span := c.tracer.Start(ctx, "eventapi.reconnect",
		trace.WithAttributes(attribute.String("eventapi.reason", reason)))
	defer span.End()

	backoff := c.cfg.ReconnectBackoffInit
	for attempt := 1; ; attempt++ {
		c.mu.Lock()
		if c.state != StateReconnecting {
			c.mu.Unlock()
			c.logger.Debug("Reconnection superseded, stopping")
			return
		}
		if c.cfg.MaxReconnectAttempts > 0 && attempt > c.cfg.MaxReconnectAttempts {
			c.state = StateDisconnected
			c.cancelReconnect = nil
			c.mu.Unlock()
			c.logger.Error("Max reconnection attempts (%d) reached, giving up", c.cfg.MaxReconnectAttempts)
			span.SetStatus(codes.Error, "max reconnection attempts reached")
			c.sink.finish()
			if c.cfg.OnDisconnectCallback != nil {
				c.cfg.OnDisconnectCallback(ErrReconnectFailed)
			}
			return
		}
		c.mu.Unlock()

		span.SetAttributes(attribute.Int("eventapi.attempts", attempt))
		err := c.open(ctx, StateReconnecting)
		if err == nil {
			c.logger.Info("Reconnection successful after %d attempts", attempt)
			if c.cfg.OnReconnectCallback != nil {
				c.cfg.OnReconnectCallback()
			}
			return
		}
		if errors.Is(err, errConnectSuperseded) || ctx.Err() != nil {
			return
		}

		c.logger.Error("Reconnection attempt %d failed: %v (next retry in %v)", attempt, err, backoff)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff = nextBackoff(backoff, c.cfg.ReconnectBackoffMax)
	}
}
