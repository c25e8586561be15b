// Package instrumentation exports the pipeline counters to Prometheus.
package instrumentation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"tickflow/internal/obs"
)

// Metrics bridges the engine's lock-free counters into the Prometheus
// registry. Counter funcs read the live values at scrape time, so the
// hot path never touches a Prometheus primitive.
type Metrics struct {
	EventsProcessed prometheus.CounterFunc
	EventsDropped   prometheus.CounterFunc
	TicksRejected   prometheus.CounterFunc
	TicksFiltered   prometheus.CounterFunc
	FeedErrors      prometheus.CounterFunc
	ProcessingRate  prometheus.GaugeFunc
	DistributeAvgUs prometheus.GaugeFunc
}

// NewMetrics registers collectors backed by the given counters.
func NewMetrics(src *obs.Metrics) *Metrics {
	return &Metrics{
		EventsProcessed: promauto.NewCounterFunc(prometheus.CounterOpts{
			Name: "tickflow_events_processed_total",
			Help: "Total number of events distributed to subscribers",
		}, func() float64 { return float64(src.EventsProcessed()) }),

		EventsDropped: promauto.NewCounterFunc(prometheus.CounterOpts{
			Name: "tickflow_events_dropped_total",
			Help: "Total number of events dropped due to a full ring buffer",
		}, func() float64 { return float64(src.EventsDropped()) }),

		TicksRejected: promauto.NewCounterFunc(prometheus.CounterOpts{
			Name: "tickflow_ticks_rejected_total",
			Help: "Total number of ticks rejected by validation",
		}, func() float64 { return float64(src.TicksRejected()) }),

		TicksFiltered: promauto.NewCounterFunc(prometheus.CounterOpts{
			Name: "tickflow_ticks_filtered_total",
			Help: "Total number of updates filtered by disabled data classes",
		}, func() float64 { return float64(src.TicksFiltered()) }),

		FeedErrors: promauto.NewCounterFunc(prometheus.CounterOpts{
			Name: "tickflow_feed_errors_total",
			Help: "Total number of errors reported by feeds",
		}, func() float64 { return float64(src.FeedErrors()) }),

		ProcessingRate: promauto.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "tickflow_processing_rate_events_per_second",
			Help: "Events per second since the engine first started",
		}, src.ProcessingRate),

		DistributeAvgUs: promauto.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "tickflow_distribute_latency_avg_us",
			Help: "Average ingest-to-distribute latency in microseconds",
		}, func() float64 {
			return float64(src.Snapshot().DistributeLatency.Avg.Microseconds())
		}),
	}
}
