// Package metrics exports coordinator and outbox activity to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/mcdev12/tourney-auction/go/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "auction"

// Prometheus implements coordinator.Metrics and outbox.MetricsCollector on one registry.
type Prometheus struct {
	registry *prometheus.Registry

	roundsStarted   prometheus.Counter
	roundsFinished  *prometheus.CounterVec
	bidsAccepted    prometheus.Counter
	bidsRejected    *prometheus.CounterVec
	conflictRetries prometheus.Counter
	roundsStalled   prometheus.Counter

	eventsProcessed *prometheus.CounterVec
	eventDuration   *prometheus.HistogramVec
	batchSize       prometheus.Histogram
	batchDuration   prometheus.Histogram
	outboxLag       prometheus.Gauge
	publishAttempts *prometheus.CounterVec
}

func New() *Prometheus {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Prometheus{
		registry: reg,

		roundsStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "coordinator", Name: "rounds_started_total",
			Help: "Rounds moved to IN_PROGRESS.",
		}),
		roundsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "coordinator", Name: "rounds_finished_total",
			Help: "Rounds that left IN_PROGRESS, or were undone, by resulting status.",
		}, []string{"status"}),
		bidsAccepted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "coordinator", Name: "bids_accepted_total",
			Help: "Bids recorded on a round.",
		}),
		bidsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "coordinator", Name: "bids_rejected_total",
			Help: "Bids refused by validation, by error kind.",
		}, []string{"reason"}),
		conflictRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "coordinator", Name: "conflict_retries_total",
			Help: "Transactions retried after a concurrency conflict.",
		}),
		roundsStalled: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "coordinator", Name: "rounds_stalled_total",
			Help: "Rounds whose timer stopped on a persistence failure.",
		}),

		eventsProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "outbox", Name: "events_processed_total",
			Help: "Outbox events handed to the publisher, by type and result.",
		}, []string{"event_type", "status"}),
		eventDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "outbox", Name: "publish_duration_seconds",
			Help:    "Time to publish one event.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"event_type"}),
		batchSize: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "outbox", Name: "batch_size",
			Help:    "Events marked sent per relay batch.",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
		batchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "outbox", Name: "batch_duration_seconds",
			Help:    "Time to relay one batch.",
			Buckets: prometheus.DefBuckets,
		}),
		outboxLag: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "outbox", Name: "lag_events",
			Help: "Unsent events seen by the last fetch.",
		}),
		publishAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "outbox", Name: "publish_attempts_total",
			Help: "Publish attempts, by type, attempt number and result.",
		}, []string{"event_type", "attempt", "status"}),
	}
}

// Handler serves the registry for scraping.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

func (p *Prometheus) RoundStarted() {
	p.roundsStarted.Inc()
}

func (p *Prometheus) RoundFinished(status models.RoundStatus) {
	p.roundsFinished.WithLabelValues(string(status)).Inc()
}

func (p *Prometheus) BidAccepted() {
	p.bidsAccepted.Inc()
}

func (p *Prometheus) BidRejected(reason string) {
	p.bidsRejected.WithLabelValues(reason).Inc()
}

func (p *Prometheus) ConflictRetried() {
	p.conflictRetries.Inc()
}

func (p *Prometheus) RoundStalled() {
	p.roundsStalled.Inc()
}

func (p *Prometheus) RecordEventProcessed(eventType string, success bool, duration time.Duration) {
	p.eventsProcessed.WithLabelValues(eventType, status(success)).Inc()
	if success {
		p.eventDuration.WithLabelValues(eventType).Observe(duration.Seconds())
	}
}

func (p *Prometheus) RecordBatchProcessed(count int, duration time.Duration) {
	p.batchSize.Observe(float64(count))
	p.batchDuration.Observe(duration.Seconds())
}

func (p *Prometheus) RecordOutboxLag(lag int) {
	p.outboxLag.Set(float64(lag))
}

func (p *Prometheus) RecordPublishAttempt(eventType string, attempt int, success bool) {
	p.publishAttempts.WithLabelValues(eventType, strconv.Itoa(attempt), status(success)).Inc()
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
