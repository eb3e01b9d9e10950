// Package metrics exposes dispatch activity to prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	prometheus.MustRegister(dispatchOutcomes)
	prometheus.MustRegister(jobsSubmitted)
	prometheus.MustRegister(submissionFailures)
	prometheus.MustRegister(capacityQueryFailures)
	prometheus.MustRegister(pendingJobs)
	prometheus.MustRegister(lastSweep)
	prometheus.MustRegister(sweepDuration)
}

var dispatchOutcomes = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "autoproc",
		Subsystem: "dispatch",
		Name:      "outcomes_total",
		Help:      "Number of folder dispatch decisions, by outcome and pipeline.",
	},
	[]string{"outcome", "pipeline"},
)

var jobsSubmitted = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "autoproc",
		Subsystem: "jobs",
		Name:      "submitted_total",
		Help:      "Number of jobs submitted, by pipeline and resource profile.",
	},
	[]string{"pipeline", "profile"},
)

var submissionFailures = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "autoproc",
		Subsystem: "jobs",
		Name:      "submission_failures_total",
		Help:      "Number of failed job submissions, by pipeline.",
	},
	[]string{"pipeline"},
)

var capacityQueryFailures = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "autoproc",
		Subsystem: "cluster",
		Name:      "query_failures_total",
		Help:      "Number of failed cluster occupancy queries, by query.",
	},
	[]string{"query"},
)

var pendingJobs = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: "autoproc",
	Subsystem: "cluster",
	Name:      "pending_jobs",
	Help:      "Pending jobs of the processing user at the last dispatch.",
})

var lastSweep = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: "autoproc",
	Subsystem: "scan",
	Name:      "last_sweep_timestamp_seconds",
	Help:      "Unix time the last sweep of the raw directory finished.",
})

var sweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
	Namespace: "autoproc",
	Subsystem: "scan",
	Name:      "sweep_duration_seconds",
	Help:      "Time taken by one sweep of the raw directory.",
	Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
})

// DispatchOutcome counts one folder decision.
func DispatchOutcome(outcome, pipeline string) {
	dispatchOutcomes.WithLabelValues(outcome, pipeline).Inc()
}

// JobSubmitted counts one submitted job.
func JobSubmitted(pipeline, profile string) {
	jobsSubmitted.WithLabelValues(pipeline, profile).Inc()
}

// SubmissionFailed counts one failed submission.
func SubmissionFailed(pipeline string) {
	submissionFailures.WithLabelValues(pipeline).Inc()
}

// CapacityQueryFailed counts one failed occupancy query.
func CapacityQueryFailed(query string) {
	capacityQueryFailures.WithLabelValues(query).Inc()
}

// PendingJobs records the pending job count.
func PendingJobs(n int) {
	pendingJobs.Set(float64(n))
}

// SweepDone records a finished sweep which started at start.
func SweepDone(start time.Time) {
	now := time.Now()
	sweepDuration.Observe(now.Sub(start).Seconds())
	lastSweep.Set(float64(now.Unix()))
}
