package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the telemetry port shared by the engines. Counters are exported
// through Prometheus and mirrored in an in-process map so GetMetrics() can
// return a snapshot without scraping. Read paths record fire-and-forget;
// nothing here blocks on I/O.
type Metrics struct {
	registry *prometheus.Registry

	counters  *prometheus.CounterVec
	durations *prometheus.HistogramVec

	mu     sync.RWMutex
	totals map[string]map[string]int64
}

func New() *Metrics {
	reg := prometheus.NewRegistry()

	counters := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "brightfeed",
		Name:      "engine_events_total",
		Help:      "Engine-level event counts (cache hits, provider calls, jobs processed...).",
	}, []string{"engine", "event"})

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "brightfeed",
		Name:      "engine_operation_seconds",
		Help:      "Engine operation latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"engine", "operation"})

	reg.MustRegister(counters, durations)

	return &Metrics{
		registry:  reg,
		counters:  counters,
		durations: durations,
		totals:    make(map[string]map[string]int64),
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Inc(engine, event string) {
	m.counters.WithLabelValues(engine, event).Inc()
	m.mu.Lock()
	byEvent, ok := m.totals[engine]
	if !ok {
		byEvent = make(map[string]int64)
		m.totals[engine] = byEvent
	}
	byEvent[event]++
	m.mu.Unlock()
}

func (m *Metrics) Observe(engine, operation string, d time.Duration) {
	m.durations.WithLabelValues(engine, operation).Observe(d.Seconds())
}

// Snapshot returns a copy of all engine counters, keyed engine -> event.
func (m *Metrics) Snapshot() map[string]map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]map[string]int64, len(m.totals))
	for engine, byEvent := range m.totals {
		cp := make(map[string]int64, len(byEvent))
		for k, v := range byEvent {
			cp[k] = v
		}
		out[engine] = cp
	}
	return out
}
