// Package metrics records per-run figures and pushes them to a Prometheus Pushgateway.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const _namespace = "asn2srs"

// Collector ...
type Collector struct {
	reg *prometheus.Registry

	duration    prometheus.Gauge
	lastSuccess prometheus.Gauge
	entries     *prometheus.GaugeVec
	artifacts   *prometheus.GaugeVec
	failures    *prometheus.CounterVec
	updated     prometheus.Gauge
	requests    prometheus.Counter
}

// New ...
func New() *Collector {
	c := &Collector{
		reg: prometheus.NewRegistry(),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: _namespace, Name: "run_duration_seconds",
			Help: "Wall time of the last run.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: _namespace, Name: "last_success_timestamp_seconds",
			Help: "Unix time of the last successful run.",
		}),
		entries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: _namespace, Name: "category_entries",
			Help: "Entries in the rule document of a category.",
		}, []string{"category"}),
		artifacts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: _namespace, Name: "artifact_bytes",
			Help: "Size of the compiled artifact of a category.",
		}, []string{"category"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: _namespace, Name: "failures_total",
			Help: "Failed runs by stage.",
		}, []string{"stage"}),
		updated: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: _namespace, Name: "categories_updated",
			Help: "Categories whose artifact changed in the last run.",
		}),
		requests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: _namespace, Name: "upstream_queries_total",
			Help: "Upstream collections issued (one per category source).",
		}),
	}
	c.reg.MustRegister(c.duration, c.lastSuccess, c.entries, c.artifacts, c.failures, c.updated, c.requests)
	return c
}

// Registry exposes the underlying registry, mainly for tests.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

// Entries ...
func (c *Collector) Entries(category string, n int) { c.entries.WithLabelValues(category).Set(float64(n)) }

// Artifact ...
func (c *Collector) Artifact(category string, size int) {
	c.artifacts.WithLabelValues(category).Set(float64(size))
}

// Query ...
func (c *Collector) Query() { c.requests.Inc() }

// Failed ...
func (c *Collector) Failed(stage string) { c.failures.WithLabelValues(stage).Inc() }

// Finished records the run outcome.
func (c *Collector) Finished(d time.Duration, updated int, ok bool) {
	c.duration.Set(d.Seconds())
	c.updated.Set(float64(updated))
	if ok {
		c.lastSuccess.SetToCurrentTime()
	}
}

// Push sends all metrics to the gateway at url under job. An empty url is a no-op.
func (c *Collector) Push(ctx context.Context, url, job string) error {
	if url == "" {
		return nil
	}
	return push.New(url, job).Gatherer(c.reg).PushContext(ctx)
}
