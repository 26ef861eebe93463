// Package prometheus exports database and HTTP metrics to Prometheus.
package prometheus

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector implements hnswfield.MetricsCollector with Prometheus metrics.
type Collector struct {
	inserts        *prometheus.CounterVec
	insertDuration *prometheus.HistogramVec
	searches       *prometheus.CounterVec
	searchDuration *prometheus.HistogramVec
	searchK        prometheus.Histogram
	saves          *prometheus.CounterVec
	saveDuration   prometheus.Histogram
	savedFields    prometheus.Gauge

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewCollector creates a collector and registers its metrics with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewCollector(reg prometheus.Registerer, namespace string) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "hnswfield"
	}

	c := &Collector{
		inserts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inserts_total",
			Help:      "Total number of vector inserts",
		}, []string{"field", "result"}),
		insertDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "insert_duration_seconds",
			Help:      "Latency of vector inserts",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 14),
		}, []string{"field"}),
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Total number of searches by filter status",
		}, []string{"field", "status"}),
		searchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Latency of searches",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 14),
		}, []string{"field"}),
		searchK: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_k",
			Help:      "Requested number of neighbors",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 1000},
		}),
		saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "saves_total",
			Help:      "Total number of saves",
		}, []string{"result"}),
		saveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "save_duration_seconds",
			Help:      "Latency of saves",
			Buckets:   prometheus.DefBuckets,
		}),
		savedFields: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "saved_fields",
			Help:      "Number of fields written by the last successful save",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests processed",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5},
		}, []string{"method", "path"}),
	}

	reg.MustRegister(
		c.inserts, c.insertDuration,
		c.searches, c.searchDuration, c.searchK,
		c.saves, c.saveDuration, c.savedFields,
		c.httpRequests, c.httpDuration,
	)
	return c
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordInsert implements hnswfield.MetricsCollector.
func (c *Collector) RecordInsert(field string, duration time.Duration, err error) {
	c.inserts.WithLabelValues(field, result(err)).Inc()
	c.insertDuration.WithLabelValues(field).Observe(duration.Seconds())
}

// RecordSearch implements hnswfield.MetricsCollector. Failed searches are
// counted with status "error".
func (c *Collector) RecordSearch(field string, k int, status string, duration time.Duration, err error) {
	if err != nil {
		status = "error"
	}
	c.searches.WithLabelValues(field, status).Inc()
	c.searchDuration.WithLabelValues(field).Observe(duration.Seconds())
	c.searchK.Observe(float64(k))
}

// RecordSave implements hnswfield.MetricsCollector.
func (c *Collector) RecordSave(fields int, duration time.Duration, err error) {
	c.saves.WithLabelValues(result(err)).Inc()
	c.saveDuration.Observe(duration.Seconds())
	if err == nil {
		c.savedFields.Set(float64(fields))
	}
}

// ObserveHTTP records one served HTTP request. path should be a route
// template, not the raw URL, to bound label cardinality.
func (c *Collector) ObserveHTTP(method, path string, code int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, path, strconv.Itoa(code)).Inc()
	c.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
