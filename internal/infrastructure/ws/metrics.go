package ws

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	events       *prometheus.CounterVec
	dialAttempts *prometheus.CounterVec
	connected    prometheus.Gauge
}

// newMetrics registers on reg. A nil reg yields unregistered collectors.
func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codenexus",
			Subsystem: "channel",
			Name:      "events_total",
			Help:      "Channel events by direction and name.",
		}, []string{"direction", "event"}),
		dialAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "codenexus",
			Subsystem: "channel",
			Name:      "dial_attempts_total",
			Help:      "Connection attempts by outcome.",
		}, []string{"outcome"}),
		connected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "codenexus",
			Subsystem: "channel",
			Name:      "connected",
			Help:      "1 while the channel holds an open connection.",
		}),
	}
}
