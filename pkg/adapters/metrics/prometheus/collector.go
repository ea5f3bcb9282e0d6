package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector implements ports.MetricsCollector using Prometheus.
type Collector struct {
	runsStarted     prometheus.Counter
	runsCompleted   *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	stagesExecuted  *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	deployments     *prometheus.CounterVec
	rollbacks       prometheus.Counter
	deployDuration  *prometheus.HistogramVec
	activePipelines prometheus.Gauge
}

// NewCollector creates a new Prometheus metrics collector.
func NewCollector() *Collector {
	return &Collector{
		runsStarted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "slipway_runs_started_total",
				Help: "Total number of runs started",
			},
		),
		runsCompleted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "slipway_runs_completed_total",
				Help: "Total number of runs completed",
			},
			[]string{"verdict"},
		),
		runDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "slipway_run_duration_seconds",
				Help:    "Run duration in seconds",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
			},
			[]string{"verdict"},
		),
		stagesExecuted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "slipway_stages_executed_total",
				Help: "Total number of stages executed",
			},
			[]string{"kind", "status"},
		),
		stageDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "slipway_stage_duration_seconds",
				Help:    "Stage execution duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
			},
			[]string{"kind"},
		),
		cacheHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "slipway_cache_hits_total",
				Help: "Total number of artifact cache hits",
			},
			[]string{"kind"},
		),
		cacheMisses: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "slipway_cache_misses_total",
				Help: "Total number of artifact cache misses",
			},
			[]string{"kind"},
		),
		deployments: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "slipway_deployments_total",
				Help: "Total number of rollout attempts",
			},
			[]string{"state"},
		),
		rollbacks: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "slipway_rollbacks_total",
				Help: "Total number of automatic rollbacks",
			},
		),
		deployDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "slipway_deployment_duration_seconds",
				Help:    "Rollout duration in seconds",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"state"},
		),
		activePipelines: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "slipway_active_pipelines",
				Help: "Number of service pipelines currently executing",
			},
		),
	}
}

// RecordRunStarted records a run start.
func (c *Collector) RecordRunStarted() {
	c.runsStarted.Inc()
}

// RecordRunCompleted records a run completion with its verdict.
func (c *Collector) RecordRunCompleted(verdict string, duration time.Duration) {
	c.runsCompleted.WithLabelValues(verdict).Inc()
	c.runDuration.WithLabelValues(verdict).Observe(duration.Seconds())
}

// RecordStageExecuted records a stage execution.
func (c *Collector) RecordStageExecuted(kind, status string, duration time.Duration) {
	c.stagesExecuted.WithLabelValues(kind, status).Inc()
	c.stageDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordCacheHit records an artifact cache hit.
func (c *Collector) RecordCacheHit(kind string) {
	c.cacheHits.WithLabelValues(kind).Inc()
}

// RecordCacheMiss records an artifact cache miss.
func (c *Collector) RecordCacheMiss(kind string) {
	c.cacheMisses.WithLabelValues(kind).Inc()
}

// RecordDeployment records a rollout attempt outcome.
func (c *Collector) RecordDeployment(state string, rolledBack bool, duration time.Duration) {
	c.deployments.WithLabelValues(state).Inc()
	c.deployDuration.WithLabelValues(state).Observe(duration.Seconds())
	if rolledBack {
		c.rollbacks.Inc()
	}
}

// SetActivePipelines sets the number of currently executing pipelines.
func (c *Collector) SetActivePipelines(count int) {
	c.activePipelines.Set(float64(count))
}
