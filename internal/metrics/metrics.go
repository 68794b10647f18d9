// ============================================================================
// Beaver-Chat Metrics - Prometheus monitoring
// ============================================================================
//
// Package: internal/metrics
// File: metrics.go
// Function: Collects and exposes runtime metrics for Prometheus scraping
//
// Metric Categories:
//
//   1. Request counters / latency (RED):
//      - chat_requests_total{route,status}
//      - chat_request_duration_seconds{route}
//
//   2. Worker pool (USE):
//      - chat_jobs_completed_total
//      - chat_jobs_panicked_total
//      - chat_job_duration_seconds
//      - chat_jobs_in_flight
//      - chat_jobs_queued
//
//   3. Room state:
//      - chat_messages_posted_total
//      - chat_users_online
//      - chat_users_offline
//
// Example Queries:
//
//   # Error rate
//   sum(rate(chat_requests_total{status=~"4..|5.."}[5m])) / sum(rate(chat_requests_total[5m]))
//
//   # Pool saturation
//   chat_jobs_in_flight / <threads>
//
//   # Backlog
//   chat_jobs_queued
//
// HTTP Endpoint:
//   NewServer exposes /metrics on a side port (default 9090), separate from
//   the hand-parsed chat listener.
//
// Route labels are limited to the fixed routing table plus "static",
// "not_found" and "rejected", so label cardinality is bounded.
//
// ============================================================================

package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector is the Prometheus metrics collector. It implements
// worker.Observer and handler.Recorder.
type Collector struct {
	// Request metrics
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	// Pool metrics
	jobsCompleted prometheus.Counter
	jobsPanicked  prometheus.Counter
	jobDuration   prometheus.Histogram
	jobsInFlight  prometheus.Gauge
	jobsQueued    prometheus.Gauge

	// Room metrics
	messagesPosted prometheus.Counter
	usersOnline    prometheus.Gauge
	usersOffline   prometheus.Gauge
}

// NewCollector creates a collector and registers it with reg. A nil reg
// means prometheus.DefaultRegisterer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_requests_total",
			Help: "Total number of HTTP requests handled, by route and status code",
		}, []string{"route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chat_request_duration_seconds",
			Help:    "Time spent dispatching a request, by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		jobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_jobs_completed_total",
			Help: "Total number of connection jobs run by the worker pool",
		}),
		jobsPanicked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_jobs_panicked_total",
			Help: "Total number of connection jobs that panicked and were recovered",
		}),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chat_job_duration_seconds",
			Help:    "Connection job latency in seconds, from pickup to completion",
			Buckets: prometheus.DefBuckets,
		}),
		jobsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chat_jobs_in_flight",
			Help: "Current number of jobs being executed by workers",
		}),
		jobsQueued: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chat_jobs_queued",
			Help: "Current number of jobs waiting for a free worker",
		}),
		messagesPosted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_messages_posted_total",
			Help: "Total number of chat messages appended to the log",
		}),
		usersOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chat_users_online",
			Help: "Current number of online users",
		}),
		usersOffline: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chat_users_offline",
			Help: "Current number of users who have left the room",
		}),
	}

	reg.MustRegister(
		c.requests,
		c.requestDuration,
		c.jobsCompleted,
		c.jobsPanicked,
		c.jobDuration,
		c.jobsInFlight,
		c.jobsQueued,
		c.messagesPosted,
		c.usersOnline,
		c.usersOffline,
	)

	return c
}

// RequestHandled records one dispatched request
func (c *Collector) RequestHandled(route string, status int, duration time.Duration) {
	c.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	c.requestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// MessagePosted records one appended message
func (c *Collector) MessagePosted() {
	c.messagesPosted.Inc()
}

// UsersChanged updates the room occupancy gauges
func (c *Collector) UsersChanged(online, offline int) {
	c.usersOnline.Set(float64(online))
	c.usersOffline.Set(float64(offline))
}

// JobStarted records a worker picking up a job
func (c *Collector) JobStarted(int) {
	c.jobsInFlight.Inc()
}

// JobFinished records a worker finishing a job
func (c *Collector) JobFinished(_ int, duration time.Duration, panicked bool) {
	c.jobsInFlight.Dec()
	c.jobsCompleted.Inc()
	c.jobDuration.Observe(duration.Seconds())
	if panicked {
		c.jobsPanicked.Inc()
	}
}

// QueueDepth updates the backlog gauge
func (c *Collector) QueueDepth(n int) {
	c.jobsQueued.Set(float64(n))
}

// NewServer returns an HTTP server exposing g on /metrics at addr.
// The caller owns ListenAndServe and Shutdown.
func NewServer(addr string, g prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
