package eventapi

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics holds the Prometheus collectors of one client. A nil *metrics
// records nothing.
type metrics struct {
	framesReceived  *prometheus.CounterVec
	framesSent      *prometheus.CounterVec
	malformedFrames prometheus.Counter
	eventsEmitted   *prometheus.CounterVec
	handlerErrors   prometheus.Counter
	connects        *prometheus.CounterVec
	reconnects      *prometheus.CounterVec
	subscriptions   prometheus.Gauge
	connected       prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		return nil
	}
	factory := promauto.With(reg)
	const namespace = "eventapi"

	return &metrics{
		framesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Frames received from the event service by opcode",
		}, []string{"op"}),

		framesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Frames written to the event service by opcode",
		}, []string{"op"}),

		malformedFrames: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_frames_total",
			Help:      "Inbound frames that could not be decoded",
		}),

		eventsEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_emitted_total",
			Help:      "Events handed to the callback and stream by opcode",
		}, []string{"op"}),

		handlerErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_errors_total",
			Help:      "Event handler invocations that returned an error or panicked",
		}),

		connects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connects_total",
			Help:      "Connection attempts by result",
		}, []string{"result"}),

		reconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Reconnects by trigger",
		}, []string{"reason"}),

		subscriptions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscriptions",
			Help:      "Active subscriptions in the ledger",
		}),

		connected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected",
			Help:      "1 while the session holds an open connection",
		}),
	}
}

func (m *metrics) frameReceived(op Opcode) {
	if m != nil {
		m.framesReceived.WithLabelValues(op.String()).Inc()
	}
}

func (m *metrics) frameSent(op Opcode) {
	if m != nil {
		m.framesSent.WithLabelValues(op.String()).Inc()
	}
}

func (m *metrics) malformedFrame() {
	if m != nil {
		m.malformedFrames.Inc()
	}
}

func (m *metrics) eventEmitted(op Opcode) {
	if m != nil {
		m.eventsEmitted.WithLabelValues(op.String()).Inc()
	}
}

func (m *metrics) handlerError() {
	if m != nil {
		m.handlerErrors.Inc()
	}
}

func (m *metrics) connectResult(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.connects.WithLabelValues("error").Inc()
		return
	}
	m.connects.WithLabelValues("ok").Inc()
}

func (m *metrics) reconnect(reason string) {
	if m != nil {
		m.reconnects.WithLabelValues(reason).Inc()
	}
}

func (m *metrics) setSubscriptions(n int) {
	if m != nil {
		m.subscriptions.Set(float64(n))
	}
}

func (m *metrics) setConnected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}
