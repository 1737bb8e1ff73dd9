package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	GatewayCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discovery_gateway_calls_total",
			Help: "LLM gateway calls by outcome",
		},
		[]string{"model", "outcome"},
	)

	GatewayLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "discovery_gateway_latency_seconds",
			Help:    "LLM gateway call latency in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		},
		[]string{"model"},
	)

	// CycleOutcomes counts finished generate/evaluate cycles by kind
	// (questions, destinations) and final grade.
	CycleOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discovery_cycle_outcomes_total",
			Help: "Finished discovery cycles by kind and grade",
		},
		[]string{"kind", "grade"},
	)

	CycleIterations = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "discovery_cycle_iterations",
			Help:    "Optimizer iterations used per cycle",
			Buckets: []float64{0, 1, 2, 3},
		},
		[]string{"kind"},
	)

	Commitments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discovery_commitments_total",
			Help: "Commitment detection results",
		},
		[]string{"result"},
	)
)

// ObserveCycle records the outcome of one cycle run.
func ObserveCycle(kind, grade string, iterations int) {
	CycleOutcomes.WithLabelValues(kind, grade).Inc()
	CycleIterations.WithLabelValues(kind).Observe(float64(iterations))
}
