// Package metrics exposes Prometheus instruments for a chat session.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rwci"

// Metrics groups the counters a session updates. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	Received      *prometheus.CounterVec
	DecodeErrors  prometheus.Counter
	HandlerPanics *prometheus.CounterVec
	Sent          *prometheus.CounterVec
	Waiters       prometheus.Gauge
}

// New builds the instruments and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "envelopes_received_total",
			Help:      "Decoded inbound envelopes by type.",
		}, []string{"type"}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Inbound frames dropped because they could not be decoded.",
		}),
		HandlerPanics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_panics_total",
			Help:      "Event handlers that panicked, by event name.",
		}, []string{"event"}),
		Sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "envelopes_sent_total",
			Help:      "Outbound envelopes written to the connection, by type.",
		}, []string{"type"}),
		Waiters: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_waiters",
			Help:      "Outstanding waits for a matching envelope.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Received, m.DecodeErrors, m.HandlerPanics, m.Sent, m.Waiters)
	}
	return m
}

// EnvelopeReceived counts one decoded envelope. Unknown types share one label
// so a misbehaving server cannot grow the label set.
func (m *Metrics) EnvelopeReceived(typ string, known bool) {
	if m == nil {
		return
	}
	if !known {
		typ = "unknown"
	}
	m.Received.WithLabelValues(typ).Inc()
}

// DecodeFailed counts one dropped frame.
func (m *Metrics) DecodeFailed() {
	if m == nil {
		return
	}
	m.DecodeErrors.Inc()
}

// HandlerPanicked counts one recovered handler panic.
func (m *Metrics) HandlerPanicked(event string) {
	if m == nil {
		return
	}
	m.HandlerPanics.WithLabelValues(event).Inc()
}

// EnvelopeSent counts one outbound envelope.
func (m *Metrics) EnvelopeSent(typ string) {
	if m == nil {
		return
	}
	m.Sent.WithLabelValues(typ).Inc()
}

// SetWaiters records the waiter queue length.
func (m *Metrics) SetWaiters(n int) {
	if m == nil {
		return
	}
	m.Waiters.Set(float64(n))
}
