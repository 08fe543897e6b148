package eventapi

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeQueueSize    = 64
	closeFrameTimeout = time.Second
)

var errWriteQueueFull = errors.New("write queue full")

// writeRequest represents a request to write a frame to the WebSocket
type writeRequest struct {
	op     Opcode
	data   []byte
	result chan error // nil when nobody waits for the write
}

func newWriteRequest(op Opcode, payload any, wait bool) (writeRequest, error) {
	data, err := EncodeFrame(op, payload)
	if err != nil {
		return writeRequest{}, err
	}
	req := writeRequest{op: op, data: data}
	if wait {
		req.result = make(chan error, 1)
	}
	return req, nil
}

// connection bundles one websocket with the goroutines serving it. The read
// loop and the write loop live exactly as long as the socket.
type connection struct {
	ws       *websocket.Conn
	writes   chan writeRequest
	stop     chan struct{}
	stopOnce sync.Once
	readDone chan struct{}
}

func newConnection(ws *websocket.Conn) *connection {
	return &connection{
		ws:       ws,
		writes:   make(chan writeRequest, writeQueueSize),
		stop:     make(chan struct{}),
		readDone: make(chan struct{}),
	}
}

func (conn *connection) stopped() bool {
	select {
	case <-conn.stop:
		return true
	default:
		return false
	}
}

// shutdown sends a close frame best-effort and closes the socket, which
// unblocks the read loop.
func (conn *connection) shutdown() {
	conn.stopOnce.Do(func() {
		close(conn.stop)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeFrameTimeout))
		_ = conn.ws.Close()
	})
}

func (conn *connection) enqueue(req writeRequest) error {
	select {
	case conn.writes <- req:
		return nil
	case <-conn.stop:
		return ErrNoActiveConnection
	}
}

// tryEnqueue queues req only if the write queue has room.
func (conn *connection) tryEnqueue(req writeRequest) error {
	select {
	case <-conn.stop:
		return ErrNoActiveConnection
	default:
	}
	select {
	case conn.writes <- req:
		return nil
	default:
		return errWriteQueueFull
	}
}

func (conn *connection) await(ctx context.Context, req writeRequest) error {
	select {
	case err := <-req.result:
		return err
	case <-conn.stop:
		return ErrNoActiveConnection
	case <-ctx.Done():
		return ctx.Err()
	}
}

// writeLoop serializes all WebSocket writes through a channel
func (c *Client) writeLoop(conn *connection) {
	defer c.logger.Debug("Write loop stopped")

	for {
		select {
		case <-conn.stop:
			return
		case req := <-conn.writes:
			c.logger.Debug("Sending %s frame: %s", req.op, req.data)

			_ = conn.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			err := conn.ws.WriteMessage(websocket.TextMessage, req.data)
			if req.result != nil {
				req.result <- err
			}
			if err != nil {
				if conn.stopped() {
					return
				}
				c.logger.Error("Error writing %s frame: %v", req.op, err)
				// Nothing drains writes after this; release blocked enqueuers.
				conn.shutdown()
				go c.handleFault(conn, reasonTransport, err)
				return
			}
			c.metrics.frameSent(req.op)
		}
	}
}

// readLoop reads frames in arrival order until the socket fails or is shut
// down. Faults hand over to a detached reconnect.
func (c *Client) readLoop(conn *connection) {
	defer close(conn.readDone)
	defer c.logger.Debug("Read loop stopped")

	for {
		_, message, err := conn.ws.ReadMessage()
		if err != nil {
			if conn.stopped() {
				return
			}
			if isRecoverableError(err) {
				c.logger.Info("Connection lost: %v", err)
			} else {
				c.logger.Warn("Unexpected read error, attempting to recover: %v", err)
			}
			go c.handleFault(conn, reasonTransport, err)
			return
		}

		c.logger.Debug("Received message (len=%d): %s", len(message), message)

		frame, err := DecodeFrame(message)
		var event Event
		if err == nil {
			event, err = decodeEvent(frame)
		}
		if err != nil {
			c.metrics.malformedFrame()
			c.logger.Error("Dropping connection after malformed frame: %v", err)
			go c.handleFault(conn, reasonMalformed, err)
			return
		}

		c.metrics.frameReceived(frame.Op)
		if event == nil {
			c.logger.Debug("Ignoring frame with unknown opcode %d", int(frame.Op))
			continue
		}
		c.handleEvent(conn, event)
	}
}

// handleEvent applies the state changes an inbound event implies and hands
// the event to the sink. Side effects that talk to the network run detached
// so that a slow peer never stalls ingestion.
func (c *Client) handleEvent(conn *connection, event Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != conn {
		return
	}

	switch e := event.(type) {
	case Hello:
		if c.sessionID != "" {
			c.logger.Info("Resuming session %s", c.sessionID)
			if err := c.enqueueLocked(OpResume, resumePayload{SessionID: c.sessionID}); err != nil {
				c.logger.Error("Failed to send resume: %v", err)
			}
		}
		c.sessionID = e.SessionID
		c.ledger.SetLimit(e.SubscriptionLimit)
		c.logger.Info("Session %s ready (subscription limit %d)", e.SessionID, e.SubscriptionLimit)

	case ReconnectRequest:
		c.logger.Info("Server requested reconnect")
		go c.reconnectFrom(conn, reasonServerRequest)

	case Ack:
		if e.Command == OpResume.String() && !e.Succeeded() {
			subs := c.ledger.Snapshot()
			c.logger.Info("Resume failed, restoring %d subscriptions", len(subs))
			for _, sub := range subs {
				go c.resubscribe(conn, sub)
			}
		}

	case ServerError:
		c.logger.Warn("Server error: %s", e.Message)

	case EndOfStream:
		c.logger.Info("End of stream: code=%s reconnect=%t message=%q", e.Code, e.ShouldReconnect, e.Message)
		if e.ShouldReconnect {
			go c.reconnectFrom(conn, reasonEndOfStream)
		}
	}

	c.sink.emit(event)
}

// resubscribe resends a subscription that is already in the ledger on the
// connection that reported the failed resume.
func (c *Client) resubscribe(conn *connection, sub Subscription) {
	req, err := newWriteRequest(OpSubscribe, sub, false)
	if err == nil {
		err = conn.enqueue(req)
	}
	if err != nil {
		c.logger.Warn("Failed to restore %s: %v", sub, err)
	}
}

// enqueueLocked queues a frame on the current connection without waiting
// for it to be written. It never blocks, since the caller holds c.mu.
func (c *Client) enqueueLocked(op Opcode, payload any) error {
	if c.conn == nil {
		return ErrNoActiveConnection
	}
	req, err := newWriteRequest(op, payload, false)
	if err != nil {
		return err
	}
	return c.conn.tryEnqueue(req)
}
