// Package metrics instruments the runtime itself with in-process
// Prometheus collectors. Nothing in this package mounts an HTTP handler —
// an embedding binary that wants to expose these over /metrics is
// responsible for registering promhttp.Handler() itself.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Task metrics
	TasksStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "corort_tasks_started_total",
			Help: "Total number of tasks started",
		},
	)

	TasksFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corort_tasks_finished_total",
			Help: "Total number of tasks reaching a terminal state",
		},
		[]string{"outcome"}, // "finished" or "cancelled"
	)

	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "corort_task_duration_seconds",
			Help:    "Wall-clock time from task start to terminal state",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 18), // 0.1ms to ~13s
		},
		[]string{"outcome"},
	)

	// Queue metrics
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "corort_queue_depth",
			Help: "Advisory count of ready closures observed in a queue",
		},
		[]string{"queue"},
	)

	// Worker metrics
	ActiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "corort_active_workers",
			Help: "Current number of running worker goroutines",
		},
	)

	WorkerBusyTime = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corort_worker_busy_seconds_total",
			Help: "Total time workers spent executing closures",
		},
		[]string{"worker"},
	)

	WorkerIdleSleeps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corort_worker_idle_sleeps_total",
			Help: "Total number of times a worker exceeded its idle-spin budget and slept",
		},
		[]string{"worker"},
	)

	// Timer metrics
	DelayedTasksPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "corort_delayed_tasks_pending",
			Help: "Current number of delayed tasks pending in the timer heap",
		},
	)

	DelayedTasksCancelled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "corort_delayed_tasks_cancelled_total",
			Help: "Total number of delayed tasks cancelled before firing",
		},
	)

	// Combinator metrics
	CombinatorCompletions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corort_combinator_completions_total",
			Help: "Total number of all_of/any_of combinators that fired their parent continuation",
		},
		[]string{"kind", "outcome"}, // kind: "all_of"/"any_of"/"all_of2"/"any_of2"; outcome: "finished"/"cancelled"
	)
)

// RecordTaskStart increments the tasks-started counter.
func RecordTaskStart() {
	TasksStarted.Inc()
}

// RecordTaskFinish records a task reaching a terminal state with its
// total duration.
func RecordTaskFinish(outcome string, durationSeconds float64) {
	TasksFinished.WithLabelValues(outcome).Inc()
	TaskDuration.WithLabelValues(outcome).Observe(durationSeconds)
}

// SetQueueDepth sets the advisory depth gauge for one named queue.
func SetQueueDepth(queue string, depth float64) {
	QueueDepth.WithLabelValues(queue).Set(depth)
}

// SetActiveWorkers sets the active-worker gauge.
func SetActiveWorkers(count float64) {
	ActiveWorkers.Set(count)
}

// RecordWorkerBusyTime adds to one worker's cumulative busy time.
func RecordWorkerBusyTime(worker string, durationSeconds float64) {
	WorkerBusyTime.WithLabelValues(worker).Add(durationSeconds)
}

// RecordWorkerIdleSleep increments one worker's idle-sleep counter.
func RecordWorkerIdleSleep(worker string) {
	WorkerIdleSleeps.WithLabelValues(worker).Inc()
}

// SetDelayedTasksPending sets the timer-heap size gauge.
func SetDelayedTasksPending(count float64) {
	DelayedTasksPending.Set(count)
}

// RecordDelayedTaskCancelled increments the cancelled-delayed-task counter.
func RecordDelayedTaskCancelled() {
	DelayedTasksCancelled.Inc()
}

// RecordCombinatorCompletion records one all_of/any_of firing its parent
// continuation.
func RecordCombinatorCompletion(kind, outcome string) {
	CombinatorCompletions.WithLabelValues(kind, outcome).Inc()
}
