package chunkcache

import "github.com/prometheus/client_golang/prometheus"

// Metrics mirrors cacheStats as Prometheus series so a running cache can
// be scraped without polling Stats(). Every method is nil-receiver-safe
// so wiring metrics is optional.
type Metrics struct {
	lookupsTotal          prometheus.Counter
	hitsTotal             prometheus.Counter
	chunksAdmittedTotal   prometheus.Counter
	chunksEvictedTotal    prometheus.Counter
	exceededCapacityTotal prometheus.Counter
	retriesTotal          prometheus.Counter
	bytesUsedGauge        prometheus.Gauge
}

// NewMetrics creates and registers chunk cache metrics. If registry is
// nil, metrics are created but not registered — useful in tests.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		lookupsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chunkcache",
			Name:      "lookups_total",
			Help:      "Total number of Get calls.",
		}),
		hitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chunkcache",
			Name:      "hits_total",
			Help:      "Total number of Get calls served entirely from already-VALID chunks, with no admission during the call.",
		}),
		chunksAdmittedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chunkcache",
			Name:      "chunks_admitted_total",
			Help:      "Total number of chunks admitted into the cache.",
		}),
		chunksEvictedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chunkcache",
			Name:      "chunks_evicted_total",
			Help:      "Total number of chunks evicted by the background evictor.",
		}),
		exceededCapacityTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chunkcache",
			Name:      "exceeded_capacity_total",
			Help:      "Total number of admissions rejected due to capacity.",
		}),
		retriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chunkcache",
			Name:      "retries_total",
			Help:      "Total number of retry spins observed against RESERVED chunks.",
		}),
		bytesUsedGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chunkcache",
			Name:      "bytes_used",
			Help:      "Current chunk payload residency in bytes.",
		}),
	}

	if registry != nil {
		registry.MustRegister(
			m.lookupsTotal,
			m.hitsTotal,
			m.chunksAdmittedTotal,
			m.chunksEvictedTotal,
			m.exceededCapacityTotal,
			m.retriesTotal,
			m.bytesUsedGauge,
		)
	}

	return m
}

// observeLookup records one Get call. servedFromCache must be true only
// when result is Hit and no chunk was admitted during the call — a Hit
// that required admitting a chunk along the way is not a cache hit.
func (m *Metrics) observeLookup(result Result, servedFromCache bool) {
	if m == nil {
		return
	}
	m.lookupsTotal.Inc()
	if result == Hit && servedFromCache {
		m.hitsTotal.Inc()
	}
}

func (m *Metrics) observeAdmission() {
	if m == nil {
		return
	}
	m.chunksAdmittedTotal.Inc()
}

func (m *Metrics) observeEviction() {
	if m == nil {
		return
	}
	m.chunksEvictedTotal.Inc()
}

func (m *Metrics) observeExceededCapacity() {
	if m == nil {
		return
	}
	m.exceededCapacityTotal.Inc()
}

func (m *Metrics) observeRetry() {
	if m == nil {
		return
	}
	m.retriesTotal.Inc()
}

func (m *Metrics) setBytesUsed(n uint64) {
	if m == nil {
		return
	}
	m.bytesUsedGauge.Set(float64(n))
}
