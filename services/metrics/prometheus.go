// Package metricsvc exposes the synchronization cache events as Prometheus metrics.
package metricsvc

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tymastrangelo/groupgrade-sub000/core/synccache"
)

const namespace = "groupgrade"

// Cache event label values.
const (
	EventHit          = "hit"
	EventMiss         = "miss"
	EventDeduplicated = "deduplicated"
	EventNotModified  = "not_modified"
	EventFailed       = "failed"
)

// CacheMetrics holds the collectors shared by every synccache.Cache of the process.
type CacheMetrics struct {
	events  *prometheus.CounterVec
	evicted *prometheus.CounterVec
}

// NewCacheMetrics creates the cache collectors and registers them on reg.
func NewCacheMetrics(reg prometheus.Registerer) (*CacheMetrics, error) {
	m := &CacheMetrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "synccache",
			Name:      "events_total",
			Help:      "Cache reads by outcome.",
		}, []string{"cache", "kind", "event"}),
		evicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "synccache",
			Name:      "evicted_total",
			Help:      "Idle entries evicted from the cache.",
		}, []string{"cache"}),
	}
	for _, c := range []prometheus.Collector{m.events, m.evicted} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// For returns the synccache.Metrics of the named cache.
func (m *CacheMetrics) For(cache string) synccache.Metrics {
	return &cacheMetrics{
		events:  m.events.MustCurryWith(prometheus.Labels{"cache": cache}),
		evicted: m.evicted.WithLabelValues(cache),
	}
}

type cacheMetrics struct {
	events  *prometheus.CounterVec
	evicted prometheus.Counter
}

var _ synccache.Metrics = (*cacheMetrics)(nil)

func (m *cacheMetrics) inc(key, event string) {
	m.events.WithLabelValues(synccache.KeyKind(key), event).Inc()
}

func (m *cacheMetrics) Hit(key string)          { m.inc(key, EventHit) }
func (m *cacheMetrics) Miss(key string)         { m.inc(key, EventMiss) }
func (m *cacheMetrics) Deduplicated(key string) { m.inc(key, EventDeduplicated) }
func (m *cacheMetrics) NotModified(key string)  { m.inc(key, EventNotModified) }
func (m *cacheMetrics) Failed(key string)       { m.inc(key, EventFailed) }
func (m *cacheMetrics) Evicted(n int)           { m.evicted.Add(float64(n)) }
