// Package metrics exposes Prometheus instrumentation for the query manager.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds all Prometheus metrics. It registers against its own
// Registry so the admin server can serve exactly this process's metrics.
type Collector struct {
	Registry *prometheus.Registry

	connectionsActive   prometheus.Gauge
	connectionsAccepted prometheus.Counter
	connectionsRejected *prometheus.CounterVec
	queriesTotal        *prometheus.CounterVec
	queryDuration       *prometheus.HistogramVec
	queryRetries        prometheus.Counter
	queueDepth          prometheus.Gauge
	queueFull           prometheus.Counter
	databaseHealthy     prometheus.Gauge
	hostCacheHits       prometheus.Counter
	hostCacheMisses     prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Collector {
	c := &Collector{
		Registry: prometheus.NewRegistry(),
		connectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "queryman_connections_active",
				Help: "Number of currently open client connections",
			},
		),
		connectionsAccepted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "queryman_connections_accepted_total",
				Help: "Total number of accepted client connections",
			},
		),
		connectionsRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queryman_connections_rejected_total",
				Help: "Total number of rejected client connections",
			},
			[]string{"reason"},
		),
		queriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "queryman_queries_total",
				Help: "Total number of processed queries by name and final status",
			},
			[]string{"query", "status"},
		),
		queryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "queryman_query_duration_seconds",
				Help:    "Duration of query execution in seconds",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
			},
			[]string{"query"},
		),
		queryRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "queryman_query_retries_total",
				Help: "Total number of query attempts retried after a database failure",
			},
		),
		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "queryman_queue_depth",
				Help: "Number of queries waiting in the dispatch queue",
			},
		),
		queueFull: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "queryman_queue_full_total",
				Help: "Total number of times an enqueue blocked on a full queue",
			},
		),
		databaseHealthy: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "queryman_database_healthy",
				Help: "Database health status (1=healthy, 0=unhealthy)",
			},
		),
		hostCacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "queryman_host_cache_hits_total",
				Help: "Total number of host name cache hits",
			},
		),
		hostCacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "queryman_host_cache_misses_total",
				Help: "Total number of host name cache misses",
			},
		),
	}

	c.Registry.MustRegister(
		c.connectionsActive,
		c.connectionsAccepted,
		c.connectionsRejected,
		c.queriesTotal,
		c.queryDuration,
		c.queryRetries,
		c.queueDepth,
		c.queueFull,
		c.databaseHealthy,
		c.hostCacheHits,
		c.hostCacheMisses,
	)

	return c
}

// ConnectionOpened counts an accepted connection.
func (c *Collector) ConnectionOpened() {
	c.connectionsAccepted.Inc()
	c.connectionsActive.Inc()
}

// ConnectionClosed decrements the active connection gauge.
func (c *Collector) ConnectionClosed() {
	c.connectionsActive.Dec()
}

// ConnectionRejected counts a rejected connection by reason.
func (c *Collector) ConnectionRejected(reason string) {
	c.connectionsRejected.WithLabelValues(reason).Inc()
}

// QueryCompleted counts a finished query and observes its duration.
func (c *Collector) QueryCompleted(query, status string, d time.Duration) {
	c.queriesTotal.WithLabelValues(query, status).Inc()
	c.queryDuration.WithLabelValues(query).Observe(d.Seconds())
}

// QueryRetried counts a retried query attempt.
func (c *Collector) QueryRetried() {
	c.queryRetries.Inc()
}

// SetQueueDepth sets the queue depth gauge.
func (c *Collector) SetQueueDepth(depth int) {
	c.queueDepth.Set(float64(depth))
}

// QueueFull counts an enqueue that blocked on a full queue.
func (c *Collector) QueueFull() {
	c.queueFull.Inc()
}

// SetDatabaseHealthy sets the database health gauge.
func (c *Collector) SetDatabaseHealthy(healthy bool) {
	val := 0.0
	if healthy {
		val = 1.0
	}
	c.databaseHealthy.Set(val)
}

// HostCacheHit counts a host cache hit.
func (c *Collector) HostCacheHit() {
	c.hostCacheHits.Inc()
}

// HostCacheMiss counts a host cache miss.
func (c *Collector) HostCacheMiss() {
	c.hostCacheMisses.Inc()
}
