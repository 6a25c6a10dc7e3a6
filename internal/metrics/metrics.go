// Package metrics implements the pool-wide Prometheus collectors and the
// latency-percentile snapshot of spec §4.5. It is grounded on the
// gateway's promauto-registered Gauge/CounterVec/HistogramVec globals
// (scraped via promhttp), re-labeled for the simulator's own counters —
// active sessions instead of active connections, frames in/out instead of
// messages received, per-kind error counts instead of nothing (the gateway
// never counted errors by kind since it never initiated connections).
package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry groups every collector one pool instance exposes. The gateway
// used bare package-level vars; this module wraps them in a struct that is
// handed to its users explicitly. NewRegistry still registers on promauto's
// default registry, so it can be called once per process: a second call
// panics on duplicate registration.
type Registry struct {
	ActiveSessions     prometheus.Gauge
	ConnectionsStarted prometheus.Counter
	ConnectionsFailed  prometheus.Counter
	FramesIn           prometheus.Counter
	FramesOut          prometheus.Counter
	ErrorsByKind       *prometheus.CounterVec
	ActionsHandled     *prometheus.CounterVec
	RampProgress       prometheus.Gauge
	ConnectionLatency  prometheus.Histogram
	MessageLatency     prometheus.Histogram

	latency *latencyTracker
}

// NewRegistry constructs and registers every collector against the default
// Prometheus registry, exactly as the gateway's promauto globals did.
func NewRegistry() *Registry {
	return &Registry{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "simulator_active_sessions",
			Help: "Number of sessions currently in a non-terminal state.",
		}),
		ConnectionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "simulator_connections_started_total",
			Help: "Total number of WebSocket connect attempts.",
		}),
		ConnectionsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "simulator_connections_failed_total",
			Help: "Total number of WebSocket connect attempts that failed.",
		}),
		FramesIn: promauto.NewCounter(prometheus.CounterOpts{
			Name: "simulator_frames_in_total",
			Help: "Total number of OCPP-J frames received from CSMS endpoints.",
		}),
		FramesOut: promauto.NewCounter(prometheus.CounterOpts{
			Name: "simulator_frames_out_total",
			Help: "Total number of OCPP-J frames sent to CSMS endpoints.",
		}),
		ErrorsByKind: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "simulator_errors_total",
			Help: "Total number of errors observed, labeled by ErrorKind.",
		}, []string{"kind"}),
		ActionsHandled: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "simulator_actions_total",
			Help: "Total number of OCPP actions handled, labeled by action and direction.",
		}, []string{"action", "direction"}),
		RampProgress: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "simulator_ramp_progress_percent",
			Help: "Percentage of the current StartBatch ramp completed.",
		}),
		ConnectionLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "simulator_connection_latency_seconds",
			Help:    "Time from dial to BootNotification acceptance.",
			Buckets: prometheus.DefBuckets,
		}),
		MessageLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "simulator_message_latency_seconds",
			Help:    "Round-trip time of outbound CALLs.",
			Buckets: prometheus.DefBuckets,
		}),
		latency: newLatencyTracker(4096),
	}
}

// ObserveConnectionLatency records both the Prometheus histogram and the
// in-memory reservoir the Snapshot method summarizes for spec §4.5's
// avg/p50/p95/p99/max fields.
func (r *Registry) ObserveConnectionLatency(d time.Duration) {
	r.ConnectionLatency.Observe(d.Seconds())
	r.latency.observeConnection(d)
}

// ObserveMessageLatency records a completed CALL round trip.
func (r *Registry) ObserveMessageLatency(d time.Duration) {
	r.MessageLatency.Observe(d.Seconds())
	r.latency.observeMessage(d)
}

// LatencySummary is the avg/p50/p95/p99/max view spec §4.5 names.
type LatencySummary struct {
	Avg time.Duration
	P50 time.Duration
	P95 time.Duration
	P99 time.Duration
	Max time.Duration
}

// ConnectionLatencySnapshot summarizes the connection-latency reservoir.
func (r *Registry) ConnectionLatencySnapshot() LatencySummary {
	return r.latency.snapshotConnection()
}

// MessageLatencySnapshot summarizes the message-latency reservoir.
func (r *Registry) MessageLatencySnapshot() LatencySummary {
	return r.latency.snapshotMessage()
}

// latencyTracker keeps a bounded, lock-protected ring of recent samples per
// kind so percentile snapshots don't require a separate metrics backend to
// read back from Prometheus. A plain mutex is sufficient here: this is
// read/written far less often than the per-session hot path (once per
// connect or per CALL completion, not per frame).
type latencyTracker struct {
	mu         sync.Mutex
	connection []time.Duration
	message    []time.Duration
	cap        int
}

func newLatencyTracker(capacity int) *latencyTracker {
	return &latencyTracker{cap: capacity}
}

func (t *latencyTracker) observeConnection(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connection = appendBounded(t.connection, d, t.cap)
}

func (t *latencyTracker) observeMessage(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.message = appendBounded(t.message, d, t.cap)
}

func appendBounded(s []time.Duration, d time.Duration, capacity int) []time.Duration {
	s = append(s, d)
	if len(s) > capacity {
		s = s[len(s)-capacity:]
	}
	return s
}

func (t *latencyTracker) snapshotConnection() LatencySummary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return summarize(t.connection)
}

func (t *latencyTracker) snapshotMessage() LatencySummary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return summarize(t.message)
}

func summarize(samples []time.Duration) LatencySummary {
	if len(samples) == 0 {
		return LatencySummary{}
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}
	return LatencySummary{
		Avg: sum / time.Duration(len(sorted)),
		P50: percentile(sorted, 0.50),
		P95: percentile(sorted, 0.95),
		P99: percentile(sorted, 0.99),
		Max: sorted[len(sorted)-1],
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
