package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type ServerMetrics struct {
	Connections   prometheus.Gauge
	FramesTotal   *prometheus.CounterVec
	FramesDropped prometheus.Counter
}

func NewServerMetrics(reg prometheus.Registerer) *ServerMetrics {
	return &ServerMetrics{
		Connections: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "nestnote_relay_connections",
				Help: "Number of open relay connections",
			},
		),
		FramesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "nestnote_relay_frames_total",
				Help: "Total number of relay frames",
			},
			[]string{"direction"}, // in/out
		),
		FramesDropped: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "nestnote_relay_frames_dropped_total",
				Help: "Frames dropped because a member could not keep up",
			},
		),
	}
}
