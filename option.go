package eventapi

import (
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultHost                 = "wss://events.7tv.io/v3"
	defaultAutoReconnect        = true
	defaultMaxReconnectAttempts = 10 // 0 means infinite retries
	defaultReconnectBackoffInit = 1 * time.Second
	defaultReconnectBackoffMax  = 30 * time.Second
	defaultWriteTimeout         = 10 * time.Second
	defaultHandshakeTimeout     = 10 * time.Second
)

// EventHandler receives every event emitted by the client. It runs on its own
// goroutine; a returned error or a panic is logged and otherwise ignored.
type EventHandler func(Event) error

// Config holds the construction-time settings of a Client.
type Config struct {
	Host    string
	Logger  Logger
	Handler EventHandler

	Dialer   *websocket.Dialer
	ProxyURL *url.URL
	Header   http.Header

	AutoReconnect        bool
	MaxReconnectAttempts int
	ReconnectBackoffInit time.Duration
	ReconnectBackoffMax  time.Duration
	WriteTimeout         time.Duration

	OnConnectCallback    func()
	OnDisconnectCallback func(error)
	OnReconnectCallback  func()

	MetricsRegisterer prometheus.Registerer
	TracerProvider    trace.TracerProvider
}

// ClientOption configures a Client.
type ClientOption func(*Config)

func defaultConfig() *Config {
	return &Config{
		Host:                 defaultHost,
		Logger:               NewSilentLogger(),
		AutoReconnect:        defaultAutoReconnect,
		MaxReconnectAttempts: defaultMaxReconnectAttempts,
		ReconnectBackoffInit: defaultReconnectBackoffInit,
		ReconnectBackoffMax:  defaultReconnectBackoffMax,
		WriteTimeout:         defaultWriteTimeout,
	}
}

// WithHost overrides the default service URL
func WithHost(host string) ClientOption {
	return func(c *Config) {
		c.Host = host
	}
}

// WithLogger sets the logger for the client
func WithLogger(l Logger) ClientOption {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithEventHandler registers the callback invoked for every event
func WithEventHandler(h EventHandler) ClientOption {
	return func(c *Config) {
		c.Handler = h
	}
}

// WithDialer replaces the websocket dialer
func WithDialer(d *websocket.Dialer) ClientOption {
	return func(c *Config) {
		c.Dialer = d
	}
}

// WithProxyURL routes the connection through an HTTP proxy
func WithProxyURL(u *url.URL) ClientOption {
	return func(c *Config) {
		c.ProxyURL = u
	}
}

// WithHeader sets extra headers sent with the websocket handshake
func WithHeader(h http.Header) ClientOption {
	return func(c *Config) {
		c.Header = h
	}
}

// WithAutoReconnect enables or disables reconnecting after faults and
// server requests
func WithAutoReconnect(enabled bool) ClientOption {
	return func(c *Config) {
		c.AutoReconnect = enabled
	}
}

// WithMaxReconnectAttempts sets the maximum number of reconnection attempts
// Set to 0 for infinite retries
func WithMaxReconnectAttempts(max int) ClientOption {
	return func(c *Config) {
		c.MaxReconnectAttempts = max
	}
}

// WithReconnectBackoff sets the initial and maximum backoff duration between
// failed reconnection attempts
func WithReconnectBackoff(initial, max time.Duration) ClientOption {
	return func(c *Config) {
		c.ReconnectBackoffInit = initial
		c.ReconnectBackoffMax = max
	}
}

// WithWriteTimeout bounds every frame write
func WithWriteTimeout(d time.Duration) ClientOption {
	return func(c *Config) {
		c.WriteTimeout = d
	}
}

// WithOnConnect sets a callback that is called after every successful connect
func WithOnConnect(f func()) ClientOption {
	return func(c *Config) {
		c.OnConnectCallback = f
	}
}

// WithOnDisconnect sets a callback that is called when the connection is lost
func WithOnDisconnect(f func(error)) ClientOption {
	return func(c *Config) {
		c.OnDisconnectCallback = f
	}
}

// WithOnReconnect sets a callback that is called when reconnection succeeds
func WithOnReconnect(f func()) ClientOption {
	return func(c *Config) {
		c.OnReconnectCallback = f
	}
}

// WithMetrics registers the client's Prometheus collectors with reg
func WithMetrics(reg prometheus.Registerer) ClientOption {
	return func(c *Config) {
		c.MetricsRegisterer = reg
	}
}

// WithTracerProvider sets the provider used for connect and reconnect spans.
// The global provider is used by default.
func WithTracerProvider(tp trace.TracerProvider) ClientOption {
	return func(c *Config) {
		c.TracerProvider = tp
	}
}
