package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "httpframer"

// Variables declared for monitoring.
var (
	ConnectionsOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "conn",
		Name:      "open",
		Help:      "Gauge of connections currently open.",
	})
	BytesReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "conn",
		Name:      "received_bytes_total",
		Help:      "Counter of bytes handed to the framer.",
	})
	RequestsFramed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "framer",
		Name:      "requests_total",
		Help:      "Counter of complete requests framed.",
	})
	RequestsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "framer",
		Name:      "rejected_total",
		Help:      "Counter of connections rejected for exceeding a framing limit.",
	}, []string{"reason"})
	ResponsesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "writer",
		Name:      "responses_total",
		Help:      "Counter of status line writes by outcome.",
	}, []string{"outcome"})
	WritesFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "writer",
		Name:      "writes_failed_total",
		Help:      "Counter of body and chunk writes the transport failed.",
	})
)

// MustRegister registers every collector above with reg.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		ConnectionsOpen,
		BytesReceived,
		RequestsFramed,
		RequestsRejected,
		ResponsesSent,
		WritesFailed,
	)
}
