package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AnalysisJobsCreatedTotal counts analysis jobs created on the orchestrator
	AnalysisJobsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gweizero",
			Subsystem: "orchestrator",
			Name:      "analysis_jobs_created_total",
			Help:      "Total number of analysis jobs created",
		},
	)

	// AnalysisJobsReusedTotal counts submissions answered from the dedup map
	AnalysisJobsReusedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gweizero",
			Subsystem: "orchestrator",
			Name:      "analysis_jobs_reused_total",
			Help:      "Total number of submissions deduplicated to an existing job",
		},
	)

	// AnalysisJobsTerminalTotal counts terminal analysis jobs by status
	AnalysisJobsTerminalTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gweizero",
			Subsystem: "orchestrator",
			Name:      "analysis_jobs_terminal_total",
			Help:      "Total number of analysis jobs reaching a terminal status",
		},
		[]string{"status"},
	)

	// AnalysisPhaseDuration observes per-phase duration of the pipeline
	AnalysisPhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gweizero",
			Subsystem: "orchestrator",
			Name:      "analysis_phase_duration_seconds",
			Help:      "Duration of analysis pipeline phases",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"phase"},
	)

	// AIProviderCallsTotal counts AI provider calls by provider, model and outcome
	AIProviderCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gweizero",
			Subsystem: "orchestrator",
			Name:      "ai_provider_calls_total",
			Help:      "Total number of AI provider calls",
		},
		[]string{"provider", "model", "outcome"},
	)

	// WorkerJobsTotal counts worker jobs by terminal status
	WorkerJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gweizero",
			Subsystem: "worker",
			Name:      "jobs_total",
			Help:      "Total number of worker jobs reaching a terminal status",
		},
		[]string{"status"},
	)

	// SubprocessDuration observes compile/measure subprocess duration
	SubprocessDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "gweizero",
			Subsystem: "worker",
			Name:      "subprocess_duration_seconds",
			Help:      "Duration of gas estimator subprocess runs",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)
)
