// Package metrics exposes the engine's Prometheus instruments.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	/* Step processor */
	stepsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "petflow_steps_processed_total",
			Help: "Step messages handled by the processor",
		},
		[]string{"step_type", "outcome"},
	)

	stepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "petflow_step_duration_seconds",
			Help:    "Time spent processing one step message",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"step_type"},
	)

	actionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "petflow_actions_total",
			Help: "Action invocations",
		},
		[]string{"action_type", "status"},
	)

	retriesScheduledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "petflow_retries_scheduled_total",
			Help: "Action retries parked with backoff",
		},
		[]string{"action_type"},
	)

	executionsFinishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "petflow_executions_finished_total",
			Help: "Executions that reached a terminal status",
		},
		[]string{"status", "reason"},
	)

	/* Trigger evaluator */
	enrollmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "petflow_enrollments_total",
			Help: "Enrollment decisions by outcome",
		},
		[]string{"outcome"},
	)

	/* Scheduler */
	resumesDispatchedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "petflow_resumes_dispatched_total",
			Help: "Scheduled messages moved to the step queue",
		},
	)

	/* Execution log */
	logWriteFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "petflow_execution_log_write_failures_total",
			Help: "Execution log entries that could not be written",
		},
	)
)

func RecordStep(stepType, outcome string, duration time.Duration) {
	stepsProcessedTotal.WithLabelValues(stepType, outcome).Inc()
	stepDuration.WithLabelValues(stepType).Observe(duration.Seconds())
}

func RecordAction(actionType string, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}

	actionsTotal.WithLabelValues(actionType, status).Inc()
}

func RecordRetryScheduled(actionType string) {
	retriesScheduledTotal.WithLabelValues(actionType).Inc()
}

func RecordExecutionFinished(status, reason string) {
	executionsFinishedTotal.WithLabelValues(status, reason).Inc()
}

// RecordEnrollment counts an enrollment decision; outcome is "enrolled" or the skip reason.
func RecordEnrollment(outcome string) {
	enrollmentsTotal.WithLabelValues(outcome).Inc()
}

func RecordResumesDispatched(n int) {
	resumesDispatchedTotal.Add(float64(n))
}

func RecordLogWriteFailure() {
	logWriteFailuresTotal.Inc()
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
