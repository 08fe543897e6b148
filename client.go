package eventapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/yoggys/eventapi"

// errConnectSuperseded is returned by open when Close or another connect
// changed the state while the dial was in flight.
var errConnectSuperseded = errors.New("superseded while connecting")

// State is the lifecycle state of a Client.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Client holds a single session against the event service.
//
// A single mutex guards the connection, the session id and the state across
// Connect, Reconnect, Close, Subscribe, Unsubscribe and the handling of each
// inbound frame. The host application must call Close before exiting; Close
// is idempotent and safe to call from a signal handler goroutine.
type Client struct {
	cfg     *Config
	logger  Logger
	dialer  *websocket.Dialer
	tracer  trace.Tracer
	metrics *metrics
	sink    *eventSink
	ledger  *Ledger

	mu        sync.Mutex
	state     State
	conn      *connection
	sessionID string

	// cancelReconnect stops the backoff loop of the running reconnect.
	cancelReconnect context.CancelFunc
}

// New creates a client. Nothing is dialed until Connect.
func New(opts ...ClientOption) *Client {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = NewSilentLogger()
	}

	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	m := newMetrics(cfg.MetricsRegisterer)
	return &Client{
		cfg:     cfg,
		logger:  cfg.Logger,
		dialer:  newDialer(cfg),
		tracer:  tp.Tracer(tracerName),
		metrics: m,
		sink:    newEventSink(cfg.Handler, cfg.Logger, m),
		ledger:  NewLedger(defaultSubscriptionLimit),
		state:   StateDisconnected,
	}
}

func newDialer(cfg *Config) *websocket.Dialer {
	var d websocket.Dialer
	if cfg.Dialer != nil {
		d = *cfg.Dialer
	} else {
		d = websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: defaultHandshakeTimeout,
		}
	}
	if cfg.ProxyURL != nil {
		d.Proxy = http.ProxyURL(cfg.ProxyURL)
	}
	return &d
}

// Connect opens the session. It fails with a *ConnectionError when the
// service cannot be reached and with ErrAlreadyConnected when a connection
// is open or being opened.
func (c *Client) Connect(ctx context.Context) error {
	_, err := c.connect(ctx, false)
	return err
}

// ConnectStream is Connect with an event stream that is active before the
// socket is dialed, so the hello and anything sent right after it are not
// missed. The stream is closed if the connection fails.
func (c *Client) ConnectStream(ctx context.Context) (*EventStream, error) {
	return c.connect(ctx, true)
}

func (c *Client) connect(ctx context.Context, withStream bool) (*EventStream, error) {
	c.mu.Lock()
	if c.state == StateConnecting || c.state == StateConnected {
		c.mu.Unlock()
		return nil, ErrAlreadyConnected
	}
	c.state = StateConnecting
	var stream *EventStream
	if withStream {
		stream = c.sink.activate()
	}
	c.mu.Unlock()

	if err := c.open(ctx, StateConnecting); err != nil {
		c.logger.Error("Failed to connect to %s: %v", c.cfg.Host, err)
		if stream != nil {
			stream.Close()
		}
		return nil, err
	}

	if c.cfg.OnConnectCallback != nil {
		c.cfg.OnConnectCallback()
	}
	return stream, nil
}

// Reconnect drops the current connection and opens a new one. The session
// id is kept and offered to the server for resumption.
func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateConnected && c.state != StateReconnecting {
		c.mu.Unlock()
		return ErrNoActiveConnection
	}
	c.state = StateConnecting
	c.stopReconnectLocked()
	old := c.teardownLocked()
	c.mu.Unlock()

	if old != nil {
		<-old.readDone
	}
	c.metrics.reconnect(reasonManual)

	if err := c.open(ctx, StateConnecting); err != nil {
		c.logger.Error("Failed to reconnect to %s: %v", c.cfg.Host, err)
		return err
	}

	if c.cfg.OnReconnectCallback != nil {
		c.cfg.OnReconnectCallback()
	}
	return nil
}

// Close ends the session. It stops the read loop, closes the socket and lets
// the active event stream drain. Calling Close on a closed client is a no-op.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.state == StateClosed && c.conn == nil {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosed
	c.stopReconnectLocked()
	old := c.teardownLocked()
	c.mu.Unlock()

	c.sink.finish()
	if old != nil {
		<-old.readDone
		c.logger.Info("Disconnected from %s", c.cfg.Host)
	}
	return nil
}

// Subscribe records sub in the ledger and sends it to the server. A
// subscription that is already active is left alone.
func (c *Client) Subscribe(ctx context.Context, sub Subscription) error {
	c.mu.Lock()
	if c.state != StateConnected || c.conn == nil {
		c.mu.Unlock()
		return ErrNoActiveConnection
	}

	added, err := c.ledger.Add(sub)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if !added {
		c.mu.Unlock()
		c.logger.Warn("Attempted to subscribe to already existing subscription %s", sub)
		return nil
	}
	c.metrics.setSubscriptions(c.ledger.Len())

	conn := c.conn
	c.mu.Unlock()

	if err := c.send(ctx, conn, OpSubscribe, sub); err != nil {
		return fmt.Errorf("subscribe %s: %w", sub, err)
	}
	c.logger.Info("Subscribed to %s (%d total)", sub, c.ledger.Len())
	return nil
}

// Unsubscribe removes sub from the ledger and tells the server. Removing a
// subscription that is not active is a no-op.
func (c *Client) Unsubscribe(ctx context.Context, sub Subscription) error {
	c.mu.Lock()
	if c.state != StateConnected || c.conn == nil {
		c.mu.Unlock()
		return ErrNoActiveConnection
	}

	removed, err := c.ledger.Remove(sub)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if !removed {
		c.mu.Unlock()
		c.logger.Warn("Attempted to unsubscribe from non-existent subscription %s", sub)
		return nil
	}
	c.metrics.setSubscriptions(c.ledger.Len())

	conn := c.conn
	c.mu.Unlock()

	if err := c.send(ctx, conn, OpUnsubscribe, sub); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", sub, err)
	}
	c.logger.Info("Unsubscribed from %s (%d remaining)", sub, c.ledger.Len())
	return nil
}

// Stream starts a new event stream. Any previous stream ends and loses its
// queued events. It fails with ErrNoActiveConnection on a client that is
// disconnected or closed.
func (c *Client) Stream() (*EventStream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateDisconnected || c.state == StateClosed {
		return nil, ErrNoActiveConnection
	}
	return c.sink.activate(), nil
}

// State returns the lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Closed reports whether the client holds no open connection.
func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn == nil
}

// SessionID returns the id from the latest hello, or "" before the first one.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// SubscriptionLimit returns the capacity announced by the server.
func (c *Client) SubscriptionLimit() int {
	return c.ledger.Limit()
}

// Subscriptions returns the active subscriptions in the order they were made.
func (c *Client) Subscriptions() []Subscription {
	return c.ledger.Snapshot()
}

func (c *Client) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fmt.Sprintf("<Client session_id=%q subscription_limit=%d state=%s>",
		c.sessionID, c.ledger.Limit(), c.state)
}

// open dials the service and installs the connection if the state still
// equals expect once the dial returns.
func (c *Client) open(ctx context.Context, expect State) error {
	ctx, span := c.tracer.Start(ctx, "eventapi.connect",
		trace.WithAttributes(attribute.String("eventapi.url", c.cfg.Host)))
	defer span.End()

	c.logger.Debug("Connecting to %s", c.cfg.Host)
	ws, _, err := c.dialer.DialContext(ctx, c.cfg.Host, c.cfg.Header)
	c.metrics.connectResult(err)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if c.state == expect && expect == StateConnecting {
			c.state = StateDisconnected
		}
		return &ConnectionError{URL: c.cfg.Host, Err: err}
	}
	if c.state != expect {
		_ = ws.Close()
		span.SetStatus(codes.Error, errConnectSuperseded.Error())
		return &ConnectionError{URL: c.cfg.Host, Err: errConnectSuperseded}
	}

	conn := newConnection(ws)
	c.conn = conn
	c.state = StateConnected
	c.metrics.setConnected(true)

	go c.readLoop(conn)
	go c.writeLoop(conn)

	c.logger.Info("Connected to %s", c.cfg.Host)
	return nil
}

// teardownLocked detaches and shuts down the current connection. The caller
// waits on the returned connection's readDone after releasing the lock.
func (c *Client) teardownLocked() *connection {
	conn := c.conn
	if conn == nil {
		return nil
	}
	c.conn = nil
	conn.shutdown()
	c.metrics.setConnected(false)
	return conn
}

func (c *Client) stopReconnectLocked() {
	if c.cancelReconnect != nil {
		c.cancelReconnect()
		c.cancelReconnect = nil
	}
}

// send writes a frame on conn and waits until it is on the wire. It must be
// called without c.mu held.
func (c *Client) send(ctx context.Context, conn *connection, op Opcode, payload any) error {
	req, err := newWriteRequest(op, payload, true)
	if err != nil {
		return err
	}
	if err := conn.enqueue(req); err != nil {
		return err
	}
	return conn.await(ctx, req)
}
