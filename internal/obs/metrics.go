// Package obs groups the pipeline's performance counters into a single
// structure with read-only accessors, so callers can snapshot a
// consistent-enough view without reaching into engine internals.
package obs

import (
	"sync/atomic"
	"time"
)

// Metrics collects lock-free counters for the ingestion pipeline.
// All methods are safe to call from any goroutine at any time.
type Metrics struct {
	eventsProcessed atomic.Uint64
	eventsDropped   atomic.Uint64
	ticksRejected   atomic.Uint64
	ticksFiltered   atomic.Uint64
	feedErrors      atomic.Uint64
	startNano       atomic.Int64

	distributeLatency LatencyStats
}

// Snapshot is a point-in-time view of the counters.
type Snapshot struct {
	EventsProcessed   uint64
	EventsDropped     uint64
	TicksRejected     uint64
	TicksFiltered     uint64
	FeedErrors        uint64
	ProcessingRate    float64 // events per second since start
	DistributeLatency LatencySnapshot
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

// MarkStart records the rate baseline. Idempotent across restarts: the
// first call wins so counters and rate stay comparable over a
// stop/start cycle.
func (m *Metrics) MarkStart(now time.Time) {
	m.startNano.CompareAndSwap(0, now.UnixNano())
}

func (m *Metrics) IncProcessed() { m.eventsProcessed.Add(1) }
func (m *Metrics) IncDropped()   { m.eventsDropped.Add(1) }
func (m *Metrics) IncRejected()  { m.ticksRejected.Add(1) }
func (m *Metrics) IncFiltered()  { m.ticksFiltered.Add(1) }
func (m *Metrics) IncFeedError() { m.feedErrors.Add(1) }

// ObserveDistribute records one ingest-to-distribute latency sample.
func (m *Metrics) ObserveDistribute(d time.Duration) {
	m.distributeLatency.Observe(d)
}

func (m *Metrics) EventsProcessed() uint64 { return m.eventsProcessed.Load() }
func (m *Metrics) EventsDropped() uint64   { return m.eventsDropped.Load() }
func (m *Metrics) TicksRejected() uint64   { return m.ticksRejected.Load() }
func (m *Metrics) TicksFiltered() uint64   { return m.ticksFiltered.Load() }
func (m *Metrics) FeedErrors() uint64      { return m.feedErrors.Load() }

// ProcessingRate returns events per second since the start mark.
func (m *Metrics) ProcessingRate() float64 {
	start := m.startNano.Load()
	if start == 0 {
		return 0
	}
	elapsed := time.Since(time.Unix(0, start)).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(m.eventsProcessed.Load()) / elapsed
}

// Snapshot captures the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		EventsProcessed:   m.eventsProcessed.Load(),
		EventsDropped:     m.eventsDropped.Load(),
		TicksRejected:     m.ticksRejected.Load(),
		TicksFiltered:     m.ticksFiltered.Load(),
		FeedErrors:        m.feedErrors.Load(),
		ProcessingRate:    m.ProcessingRate(),
		DistributeLatency: m.distributeLatency.Snapshot(),
	}
}

// LatencyStats aggregates duration samples in nanoseconds.
type LatencyStats struct {
	count atomic.Uint64
	sum   atomic.Uint64
	min   atomic.Uint64
	max   atomic.Uint64
}

// LatencySnapshot is a point-in-time view of latency stats.
type LatencySnapshot struct {
	Count uint64
	Min   time.Duration
	Max   time.Duration
	Avg   time.Duration
}

// Observe records a duration sample.
func (l *LatencyStats) Observe(d time.Duration) {
	if d < 0 {
		return
	}
	nanos := uint64(d)
	l.count.Add(1)
	l.sum.Add(nanos)

	for {
		min := l.min.Load()
		if min != 0 && nanos >= min {
			break
		}
		if l.min.CompareAndSwap(min, nanos) {
			break
		}
	}

	for {
		max := l.max.Load()
		if nanos <= max {
			break
		}
		if l.max.CompareAndSwap(max, nanos) {
			break
		}
	}
}

// Snapshot returns the aggregated latency stats.
func (l *LatencyStats) Snapshot() LatencySnapshot {
	count := l.count.Load()
	if count == 0 {
		return LatencySnapshot{}
	}
	return LatencySnapshot{
		Count: count,
		Min:   time.Duration(l.min.Load()),
		Max:   time.Duration(l.max.Load()),
		Avg:   time.Duration(l.sum.Load() / count),
	}
}
