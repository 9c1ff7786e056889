package provider

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	MessagesSent     *prometheus.CounterVec
	MessagesReceived *prometheus.CounterVec
	MessagesDropped  *prometheus.CounterVec
}

// NewMetrics creates the provider counters. A nil registerer leaves them
// unregistered, so one Metrics value can be shared by successive providers.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		MessagesSent: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "nestnote_provider_messages_sent_total",
				Help: "Total number of sync frames sent",
			},
			[]string{"type"},
		),
		MessagesReceived: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "nestnote_provider_messages_received_total",
				Help: "Total number of sync frames received",
			},
			[]string{"type"},
		),
		MessagesDropped: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "nestnote_provider_messages_dropped_total",
				Help: "Total number of sync frames dropped",
			},
			[]string{"reason"}, // not_synced/send_error/malformed
		),
	}
}
