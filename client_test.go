package eventapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

// fakeServer is a websocket endpoint speaking the event protocol from the
// server side. Every accepted connection is handed to the test through
// accept.
type fakeServer struct {
	srv     *httptest.Server
	conns   chan *serverConn
	accepts atomic.Int32
}

type serverConn struct {
	ws     *websocket.Conn
	frames chan Frame

	// stalled stops reading from the client after the current message.
	stalled atomic.Bool
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	s := &fakeServer{conns: make(chan *serverConn, 8)}
	upgrader := websocket.Upgrader{}

	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.accepts.Add(1)

		sc := &serverConn{ws: ws, frames: make(chan Frame, 64)}
		s.conns <- sc

		defer close(sc.frames)
		for !sc.stalled.Load() {
			_, msg, err := ws.ReadMessage()
			if err != nil {
				return
			}
			f, err := DecodeFrame(msg)
			if err != nil {
				continue
			}
			sc.frames <- f
		}
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *fakeServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *fakeServer) accept(t *testing.T) *serverConn {
	t.Helper()
	select {
	case sc := <-s.conns:
		return sc
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for the client to connect")
		return nil
	}
}

func (sc *serverConn) send(t *testing.T, raw string) {
	t.Helper()
	require.NoError(t, sc.ws.WriteMessage(websocket.TextMessage, []byte(raw)))
}

func (sc *serverConn) hello(t *testing.T, sessionID string, limit int) {
	t.Helper()
	data, err := EncodeFrame(OpHello, Hello{SessionID: sessionID, HeartbeatInterval: 25000, SubscriptionLimit: limit})
	require.NoError(t, err)
	require.NoError(t, sc.ws.WriteMessage(websocket.TextMessage, data))
}

func (sc *serverConn) expectFrame(t *testing.T) Frame {
	t.Helper()
	select {
	case f, ok := <-sc.frames:
		require.True(t, ok, "connection closed before a frame arrived")
		return f
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for a frame from the client")
		return Frame{}
	}
}

func (sc *serverConn) expectNoFrame(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case f, ok := <-sc.frames:
		if ok {
			t.Fatalf("unexpected %s frame: %s", f.Op, f.Data)
		}
	case <-time.After(wait):
	}
}

func decodeSubscription(t *testing.T, f Frame) Subscription {
	t.Helper()
	var sub Subscription
	require.NoError(t, f.Decode(&sub))
	return sub
}

func nextEvent(t *testing.T, s *EventStream) Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	e, err := s.Next(ctx)
	require.NoError(t, err)
	return e
}

// connectClient connects a client to s and returns it along with its
// stream and the server side of the connection.
func connectClient(t *testing.T, s *fakeServer, opts ...ClientOption) (*Client, *EventStream, *serverConn) {
	t.Helper()
	c := New(append([]ClientOption{WithHost(s.url())}, opts...)...)
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.Connect(context.Background()))
	stream, err := c.Stream()
	require.NoError(t, err)
	return c, stream, s.accept(t)
}

// connectReady connects and completes the hello exchange.
func connectReady(t *testing.T, s *fakeServer, limit int, opts ...ClientOption) (*Client, *EventStream, *serverConn) {
	t.Helper()
	c, stream, sc := connectClient(t, s, opts...)
	sc.hello(t, "abc", limit)
	require.IsType(t, Hello{}, nextEvent(t, stream))
	return c, stream, sc
}

func TestClientHello(t *testing.T) {
	s := newFakeServer(t)
	c, stream, sc := connectClient(t, s)
	assert.Equal(t, StateConnected, c.State())
	assert.Equal(t, "", c.SessionID())
	assert.Equal(t, defaultSubscriptionLimit, c.SubscriptionLimit())

	sc.send(t, `{"op":1,"d":{"session_id":"abc","heartbeat_interval":25000,"subscription_limit":100}}`)

	e := nextEvent(t, stream)
	assert.Equal(t, Hello{SessionID: "abc", HeartbeatInterval: 25000, SubscriptionLimit: 100}, e)
	assert.Equal(t, "abc", c.SessionID())
	assert.Equal(t, 100, c.SubscriptionLimit())
	assert.Contains(t, c.String(), `session_id="abc"`)

	sc.expectNoFrame(t, 50*time.Millisecond)
}

func TestClientResumesPreviousSession(t *testing.T) {
	s := newFakeServer(t)
	c, stream, _ := connectReady(t, s, 100)

	require.NoError(t, c.Reconnect(context.Background()))
	sc := s.accept(t)
	assert.Equal(t, "abc", c.SessionID(), "session id survives reconnect")

	sc.hello(t, "def", 200)

	f := sc.expectFrame(t)
	assert.Equal(t, OpResume, f.Op)
	assert.JSONEq(t, `{"session_id":"abc"}`, string(f.Data))

	assert.Equal(t, Hello{SessionID: "def", HeartbeatInterval: 25000, SubscriptionLimit: 200}, nextEvent(t, stream))
	assert.Equal(t, "def", c.SessionID())
	assert.Equal(t, 200, c.SubscriptionLimit())
}

func TestClientEndOfStreamReconnects(t *testing.T) {
	s := newFakeServer(t)
	reconnected := make(chan struct{}, 1)
	c, stream, sc := connectReady(t, s, 100, WithOnReconnect(func() { reconnected <- struct{}{} }))

	sc.send(t, `{"op":7,"d":{"code":4006,"message":"bye"}}`)

	assert.Equal(t, EndOfStream{Code: 4006, ShouldReconnect: true, Message: "bye"}, nextEvent(t, stream))

	next := s.accept(t)
	assert.EqualValues(t, 2, s.accepts.Load())

	select {
	case <-reconnected:
	case <-time.After(waitTimeout):
		t.Fatal("reconnect callback not called")
	}
	assert.Equal(t, StateConnected, c.State())

	next.hello(t, "def", 100)
	f := next.expectFrame(t)
	assert.Equal(t, OpResume, f.Op)
}

func TestClientEndOfStreamWithoutReconnect(t *testing.T) {
	s := newFakeServer(t)
	c, stream, sc := connectReady(t, s, 100)

	sc.send(t, `{"op":7,"d":{"code":4005,"message":"rate limited"}}`)

	e := nextEvent(t, stream)
	assert.Equal(t, EndOfStream{Code: CloseRateLimited, Message: "rate limited"}, e)
	assert.Equal(t, StateConnected, c.State())
	assert.EqualValues(t, 1, s.accepts.Load())
}

func TestClientServerRequestedReconnect(t *testing.T) {
	s := newFakeServer(t)
	_, stream, sc := connectReady(t, s, 100)

	sc.send(t, `{"op":4,"d":{}}`)

	assert.Equal(t, ReconnectRequest{}, nextEvent(t, stream))
	s.accept(t)
}

func TestClientResumeFailureReplaysSubscriptions(t *testing.T) {
	s := newFakeServer(t)
	c, _, sc := connectReady(t, s, 100)
	ctx := context.Background()

	subs := []Subscription{
		{Type: EventEmoteSetUpdate, Condition: ObjectCondition("set1")},
		{Type: EventUserAll, Condition: ObjectCondition("user1")},
	}
	for _, sub := range subs {
		require.NoError(t, c.Subscribe(ctx, sub))
		f := sc.expectFrame(t)
		require.Equal(t, OpSubscribe, f.Op)
		assert.Equal(t, sub, decodeSubscription(t, f))
	}

	sc.send(t, `{"op":5,"d":{"command":"RESUME","data":{"success":false}}}`)

	var replayed []Subscription
	for range 2 {
		f := sc.expectFrame(t)
		require.Equal(t, OpSubscribe, f.Op)
		replayed = append(replayed, decodeSubscription(t, f))
	}
	assert.ElementsMatch(t, subs, replayed)
	sc.expectNoFrame(t, 100*time.Millisecond)
	assert.Equal(t, subs, c.Subscriptions())
}

func TestClientResumeSuccessSendsNothing(t *testing.T) {
	s := newFakeServer(t)
	c, stream, sc := connectReady(t, s, 100)

	require.NoError(t, c.Subscribe(context.Background(), Subscription{Type: EventEmoteCreate}))
	sc.expectFrame(t)

	sc.send(t, `{"op":5,"d":{"command":"RESUME","data":{"success":true}}}`)
	assert.IsType(t, Ack{}, nextEvent(t, stream))
	sc.expectNoFrame(t, 100*time.Millisecond)
}

func TestClientSubscriptionCapacity(t *testing.T) {
	s := newFakeServer(t)
	c, _, sc := connectReady(t, s, 2)
	ctx := context.Background()

	require.NoError(t, c.Subscribe(ctx, emoteSub("a")))
	require.NoError(t, c.Subscribe(ctx, emoteSub("b")))

	err := c.Subscribe(ctx, emoteSub("c"))
	require.ErrorIs(t, err, ErrCapacityExceeded)
	var capErr *CapacityExceededError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, 2, capErr.Limit)

	assert.Equal(t, []Subscription{emoteSub("a"), emoteSub("b")}, c.Subscriptions())

	sc.expectFrame(t)
	sc.expectFrame(t)
	sc.expectNoFrame(t, 50*time.Millisecond)
}

func TestClientSubscribeDuplicate(t *testing.T) {
	s := newFakeServer(t)
	c, _, sc := connectReady(t, s, 100)
	ctx := context.Background()

	require.NoError(t, c.Subscribe(ctx, emoteSub("a")))
	require.NoError(t, c.Subscribe(ctx, emoteSub("a")))
	assert.Len(t, c.Subscriptions(), 1)

	sc.expectFrame(t)
	sc.expectNoFrame(t, 50*time.Millisecond)
}

func TestClientUnsubscribe(t *testing.T) {
	s := newFakeServer(t)
	c, _, sc := connectReady(t, s, 100)
	ctx := context.Background()

	require.ErrorIs(t, c.Unsubscribe(ctx, emoteSub("a")), ErrLedgerEmpty)

	require.NoError(t, c.Subscribe(ctx, emoteSub("a")))
	sc.expectFrame(t)

	require.NoError(t, c.Unsubscribe(ctx, emoteSub("missing")))
	assert.Equal(t, []Subscription{emoteSub("a")}, c.Subscriptions())
	sc.expectNoFrame(t, 50*time.Millisecond)

	require.NoError(t, c.Unsubscribe(ctx, emoteSub("a")))
	f := sc.expectFrame(t)
	assert.Equal(t, OpUnsubscribe, f.Op)
	assert.Equal(t, emoteSub("a"), decodeSubscription(t, f))
	assert.Empty(t, c.Subscriptions())
}

func TestClientRequiresConnection(t *testing.T) {
	c := New()
	ctx := context.Background()

	assert.ErrorIs(t, c.Subscribe(ctx, emoteSub("a")), ErrNoActiveConnection)
	assert.ErrorIs(t, c.Unsubscribe(ctx, emoteSub("a")), ErrNoActiveConnection)
	assert.ErrorIs(t, c.Reconnect(ctx), ErrNoActiveConnection)

	_, err := c.Stream()
	assert.ErrorIs(t, err, ErrNoActiveConnection)
	assert.True(t, c.Closed())
	assert.Equal(t, StateDisconnected, c.State())
}

func TestClientConnectError(t *testing.T) {
	s := newFakeServer(t)
	host := s.url()
	s.srv.Close()

	c := New(WithHost(host))
	err := c.Connect(context.Background())
	require.ErrorIs(t, err, ErrConnection)

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, host, connErr.URL)
	assert.Equal(t, StateDisconnected, c.State())
}

func TestClientConnectTwice(t *testing.T) {
	s := newFakeServer(t)
	c, _, _ := connectClient(t, s)

	assert.ErrorIs(t, c.Connect(context.Background()), ErrAlreadyConnected)
	assert.EqualValues(t, 1, s.accepts.Load())
}

func TestClientCloseTwice(t *testing.T) {
	s := newFakeServer(t)
	c, _, sc := connectClient(t, s)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	assert.Equal(t, StateClosed, c.State())
	assert.True(t, c.Closed())

	_, err := c.Stream()
	assert.ErrorIs(t, err, ErrNoActiveConnection)
	assert.ErrorIs(t, c.Subscribe(context.Background(), emoteSub("a")), ErrNoActiveConnection)

	sc.expectNoFrame(t, 50*time.Millisecond)
	assert.EqualValues(t, 1, s.accepts.Load(), "close must not reconnect")
}

func TestClientCloseDrainsStream(t *testing.T) {
	s := newFakeServer(t)
	c, stream, sc := connectReady(t, s, 100)

	sc.send(t, `{"op":2,"d":{"count":1}}`)
	sc.send(t, `{"op":2,"d":{"count":2}}`)
	require.Eventually(t, func() bool { return stream.Len() == 2 }, waitTimeout, 5*time.Millisecond)

	require.NoError(t, c.Close())

	var got []Event
	for e := range stream.All(context.Background()) {
		got = append(got, e)
	}
	assert.Equal(t, []Event{Heartbeat{Count: 1}, Heartbeat{Count: 2}}, got)
}

func TestClientConnectAfterClose(t *testing.T) {
	s := newFakeServer(t)
	c, _, _ := connectReady(t, s, 100)

	require.NoError(t, c.Close())
	require.NoError(t, c.Connect(context.Background()))
	sc := s.accept(t)
	assert.Equal(t, StateConnected, c.State())

	sc.hello(t, "def", 100)
	f := sc.expectFrame(t)
	assert.Equal(t, OpResume, f.Op)
	assert.JSONEq(t, `{"session_id":"abc"}`, string(f.Data))
}

func TestClientMalformedFrameReconnects(t *testing.T) {
	s := newFakeServer(t)
	reg := prometheus.NewRegistry()
	c, _, sc := connectReady(t, s, 100, WithMetrics(reg))

	sc.send(t, `{"op":1,"d":[]}`)

	s.accept(t)
	require.Eventually(t, func() bool { return c.State() == StateConnected }, waitTimeout, 5*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.malformedFrames))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.reconnects.WithLabelValues(reasonMalformed)))
}

func TestClientTransportFaultReconnects(t *testing.T) {
	s := newFakeServer(t)
	disconnected := make(chan error, 1)
	reconnected := make(chan struct{}, 1)
	c, _, sc := connectReady(t, s, 100,
		WithOnDisconnect(func(err error) { disconnected <- err }),
		WithOnReconnect(func() { reconnected <- struct{}{} }),
	)

	require.NoError(t, sc.ws.Close())

	select {
	case err := <-disconnected:
		assert.Error(t, err)
	case <-time.After(waitTimeout):
		t.Fatal("disconnect callback not called")
	}

	s.accept(t)
	select {
	case <-reconnected:
	case <-time.After(waitTimeout):
		t.Fatal("reconnect callback not called")
	}
	assert.Equal(t, StateConnected, c.State())
}

func TestClientAutoReconnectDisabled(t *testing.T) {
	s := newFakeServer(t)
	c, stream, sc := connectReady(t, s, 100, WithAutoReconnect(false))

	sc.send(t, `{"op":4,"d":{}}`)
	assert.Equal(t, ReconnectRequest{}, nextEvent(t, stream))

	time.Sleep(100 * time.Millisecond)
	assert.EqualValues(t, 1, s.accepts.Load())
	assert.Equal(t, StateConnected, c.State())

	require.NoError(t, sc.ws.Close())
	require.Eventually(t, func() bool { return c.State() == StateDisconnected }, waitTimeout, 5*time.Millisecond)
	assert.True(t, c.Closed())
	assert.EqualValues(t, 1, s.accepts.Load())
}

func TestClientHandlerFailuresDoNotStall(t *testing.T) {
	s := newFakeServer(t)
	var calls atomic.Int32
	handler := func(e Event) error {
		calls.Add(1)
		if _, ok := e.(Heartbeat); ok {
			panic("handler bug")
		}
		return assert.AnError
	}
	_, stream, sc := connectReady(t, s, 100, WithEventHandler(handler))

	sc.send(t, `{"op":2,"d":{"count":1}}`)
	sc.send(t, `{"op":6,"d":{"message":"bad request"}}`)

	assert.Equal(t, Heartbeat{Count: 1}, nextEvent(t, stream))
	assert.Equal(t, ServerError{Message: "bad request"}, nextEvent(t, stream))
	require.Eventually(t, func() bool { return calls.Load() == 3 }, waitTimeout, 5*time.Millisecond)
}

func TestClientDispatch(t *testing.T) {
	s := newFakeServer(t)
	_, stream, sc := connectReady(t, s, 100)

	body, err := json.Marshal(map[string]any{
		"type": "emote.update",
		"body": map[string]any{
			"id":   "e1",
			"kind": 2,
			"updated": []any{
				map[string]any{"key": "name", "old_value": "a", "value": "b"},
			},
		},
	})
	require.NoError(t, err)
	sc.send(t, `{"op":0,"d":`+string(body)+`}`)

	d, ok := nextEvent(t, stream).(Dispatch)
	require.True(t, ok)
	assert.Equal(t, EventEmoteUpdate, d.Type)
	assert.Equal(t, KindEmote, d.Body.Kind)
	require.Len(t, d.Body.Updated, 1)
	assert.JSONEq(t, `"b"`, string(d.Body.Updated[0].Value.Scalar))
}

func TestClientStreamReplacement(t *testing.T) {
	s := newFakeServer(t)
	c, first, sc := connectReady(t, s, 100)

	second, err := c.Stream()
	require.NoError(t, err)

	sc.send(t, `{"op":2,"d":{"count":5}}`)
	assert.Equal(t, Heartbeat{Count: 5}, nextEvent(t, second))

	_, err = first.Next(context.Background())
	assert.ErrorIs(t, err, ErrStreamClosed)
}

func TestClientConnectStreamSeesHello(t *testing.T) {
	s := newFakeServer(t)
	c := New(WithHost(s.url()))
	t.Cleanup(func() { _ = c.Close() })

	stream, err := c.ConnectStream(context.Background())
	require.NoError(t, err)
	sc := s.accept(t)
	sc.hello(t, "abc", 100)
	sc.send(t, `{"op":2,"d":{"count":1}}`)

	assert.IsType(t, Hello{}, nextEvent(t, stream))
	assert.Equal(t, Heartbeat{Count: 1}, nextEvent(t, stream))

	_, err = c.ConnectStream(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyConnected)
}

func TestClientConnectStreamError(t *testing.T) {
	s := newFakeServer(t)
	s.srv.Close()

	c := New(WithHost(s.url()))
	stream, err := c.ConnectStream(context.Background())
	require.ErrorIs(t, err, ErrConnection)
	assert.Nil(t, stream)
	assert.Equal(t, StateDisconnected, c.State())
}

func TestClientIgnoresUnknownOpcode(t *testing.T) {
	s := newFakeServer(t)
	reg := prometheus.NewRegistry()
	c, stream, sc := connectReady(t, s, 100, WithMetrics(reg))

	sc.send(t, `{"op":3,"d":{}}`)
	sc.send(t, `{"op":2,"d":{"count":9}}`)

	assert.Equal(t, Heartbeat{Count: 9}, nextEvent(t, stream))
	assert.Equal(t, 0, stream.Len())
	assert.Equal(t, StateConnected, c.State())
	assert.EqualValues(t, 1, s.accepts.Load())
	assert.Equal(t, 0.0, testutil.ToFloat64(c.metrics.malformedFrames))
}

func TestClientAckWithScalarData(t *testing.T) {
	s := newFakeServer(t)
	c, stream, sc := connectReady(t, s, 100)

	sc.send(t, `{"op":5,"d":{"command":"SUBSCRIBE","data":"ok"}}`)

	ack, ok := nextEvent(t, stream).(Ack)
	require.True(t, ok)
	assert.False(t, ack.Succeeded())
	assert.Equal(t, StateConnected, c.State())
	assert.EqualValues(t, 1, s.accepts.Load())
}

func TestClientCloseWithStalledWrites(t *testing.T) {
	s := newFakeServer(t)
	c, _, sc := connectReady(t, s, 1000, WithWriteTimeout(300*time.Millisecond))
	ctx := context.Background()

	pad := strings.Repeat("x", 128<<10)
	for i := range 200 {
		require.NoError(t, c.Subscribe(ctx, emoteSub(fmt.Sprintf("%d-%s", i, pad))))
		sc.expectFrame(t)
	}

	// The peer stops reading, so replaying the ledger fills the socket.
	sc.stalled.Store(true)
	sc.send(t, `{"op":5,"d":{"command":"RESUME","data":{"success":false}}}`)
	time.Sleep(500 * time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- c.Close() }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Close blocked behind pending writes")
	}
	assert.Equal(t, StateClosed, c.State())
}

func TestClientGivesUpAfterMaxAttempts(t *testing.T) {
	s := newFakeServer(t)
	disconnects := make(chan error, 4)
	c, stream, sc := connectReady(t, s, 100,
		WithMaxReconnectAttempts(2),
		WithReconnectBackoff(10*time.Millisecond, 20*time.Millisecond),
		WithOnDisconnect(func(err error) { disconnects <- err }),
	)

	s.srv.Close()
	require.NoError(t, sc.ws.Close())

	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	_, err := stream.Next(ctx)
	require.ErrorIs(t, err, ErrStreamClosed)
	assert.Equal(t, StateDisconnected, c.State())
	assert.True(t, c.Closed())

	_, err = c.Stream()
	assert.ErrorIs(t, err, ErrNoActiveConnection)

	var got []error
	for range 2 {
		select {
		case err := <-disconnects:
			got = append(got, err)
		case <-time.After(waitTimeout):
			t.Fatal("disconnect callback not called")
		}
	}
	assert.NotErrorIs(t, got[0], ErrReconnectFailed)
	assert.ErrorIs(t, got[1], ErrReconnectFailed)
}

func TestClientFaultWithoutReconnectEndsStream(t *testing.T) {
	s := newFakeServer(t)
	c, stream, sc := connectReady(t, s, 100, WithAutoReconnect(false))

	sc.send(t, `{"op":2,"d":{"count":1}}`)
	require.NoError(t, sc.ws.Close())

	assert.Equal(t, Heartbeat{Count: 1}, nextEvent(t, stream))
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	_, err := stream.Next(ctx)
	require.ErrorIs(t, err, ErrStreamClosed)
	assert.Equal(t, StateDisconnected, c.State())
}

func TestClientCloseStopsReconnecting(t *testing.T) {
	s := newFakeServer(t)
	reg := prometheus.NewRegistry()
	c, _, sc := connectReady(t, s, 100,
		WithMetrics(reg),
		WithMaxReconnectAttempts(0),
		WithReconnectBackoff(50*time.Millisecond, 50*time.Millisecond),
	)
	failed := func() float64 { return testutil.ToFloat64(c.metrics.connects.WithLabelValues("error")) }

	s.srv.Close()
	require.NoError(t, sc.ws.Close())
	require.Eventually(t, func() bool { return failed() >= 2 }, waitTimeout, 5*time.Millisecond)
	assert.Equal(t, StateReconnecting, c.State())

	require.NoError(t, c.Close())
	time.Sleep(20 * time.Millisecond)
	attempts := failed()

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, attempts, failed(), "dialing continued after Close")
	assert.Equal(t, StateClosed, c.State())
}
