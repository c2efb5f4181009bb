package relay

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metrics holds the relay's prometheus instruments.
type metrics struct {
	registry *prometheus.Registry

	turnsPersisted       *prometheus.CounterVec
	streamErrors         *prometheus.CounterVec
	compactionsScheduled prometheus.Counter
	streamDuration       prometheus.Histogram
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &metrics{
		registry: registry,
		turnsPersisted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fable_turns_persisted_total",
			Help: "Turns persisted to the conversation store.",
		}, []string{"role"}),
		streamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fable_stream_errors_total",
			Help: "Streams terminated with an error event.",
		}, []string{"provider"}),
		compactionsScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fable_compactions_scheduled_total",
			Help: "Background compactions scheduled by the trigger rule.",
		}),
		streamDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fable_stream_duration_seconds",
			Help:    "Wall time of completed chat streams.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
	}

	registry.MustRegister(m.turnsPersisted, m.streamErrors, m.compactionsScheduled, m.streamDuration)
	return m
}

// handler serves the registry in prometheus exposition format.
func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
