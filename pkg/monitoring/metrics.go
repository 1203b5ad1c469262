package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Workflow metrics
	workflowTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_transitions_total",
			Help: "Total number of referral workflow transitions",
		},
		[]string{"target_status", "outcome"},
	)

	// Package lifecycle metrics
	packagesCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_packages_created_total",
			Help: "Total number of intake package creation attempts",
		},
		[]string{"outcome"},
	)

	packageStepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "intake_package_step_duration_seconds",
			Help:    "Duration of intake package lifecycle steps in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0, 10.0},
		},
		[]string{"step"},
	)

	// Automation sweep metrics
	sweepRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "automation_sweep_runs_total",
			Help: "Total number of automation sweep runs",
		},
		[]string{"job", "outcome"},
	)

	sweepTransitionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "automation_sweep_transitions_total",
			Help: "Total number of referrals transitioned by automation sweeps",
		},
	)

	slaViolationsOpen = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sla_violations_open",
			Help: "Number of open SLA violations found by the last SLA sweep",
		},
		[]string{"severity"},
	)
)

func init() {
	prometheus.MustRegister(
		workflowTransitionsTotal,
		packagesCreatedTotal,
		packageStepDuration,
		sweepRunsTotal,
		sweepTransitionsTotal,
		slaViolationsOpen,
	)
}

// RecordTransition records one workflow transition attempt.
func RecordTransition(targetStatus string, success bool) {
	outcome := "success"
	if !success {
		outcome = "rejected"
	}
	workflowTransitionsTotal.WithLabelValues(targetStatus, outcome).Inc()
}

// RecordPackageOutcome records one package creation outcome.
func RecordPackageOutcome(outcome string) {
	packagesCreatedTotal.WithLabelValues(outcome).Inc()
}

// ObservePackageStep records the duration of one lifecycle step.
func ObservePackageStep(step string, seconds float64) {
	packageStepDuration.WithLabelValues(step).Observe(seconds)
}

// RecordSweepRun records one automation sweep run.
func RecordSweepRun(job string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	sweepRunsTotal.WithLabelValues(job, outcome).Inc()
}

// AddSweepTransitions adds to the total of sweep-driven transitions.
func AddSweepTransitions(n int) {
	sweepTransitionsTotal.Add(float64(n))
}

// SetOpenSLAViolations publishes the violation counts of the last SLA sweep.
func SetOpenSLAViolations(warning, critical int) {
	slaViolationsOpen.WithLabelValues("warning").Set(float64(warning))
	slaViolationsOpen.WithLabelValues("critical").Set(float64(critical))
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
